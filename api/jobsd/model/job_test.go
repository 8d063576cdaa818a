package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJob_Title(t *testing.T) {
	tests := []struct {
		args string
		want string
	}{
		{args: "", want: ""},
		{args: "{}", want: ""},
		{args: `{"title":"The Expanse"}`, want: "The Expanse"},
		{args: `{"Title":"Severance"}`, want: "Severance"},
		{args: `{"title":"","Title":"fallback"}`, want: "fallback"},
		{args: `{"name":"no title"}`, want: ""},
		{args: `{"title":42}`, want: ""},
		{args: `[1,2,3]`, want: ""},
		{args: `not json`, want: ""},
	}
	for _, tt := range tests {
		j := &Job{Args: tt.args}
		assert.Equal(t, tt.want, j.Title(), "args %q", tt.args)
	}
}

func TestJob_LastAttempt(t *testing.T) {
	j := &Job{}
	assert.Nil(t, j.LastAttempt())

	j.Attempts = []*Attempt{{Status: StatusFailed}, {Status: StatusFinished}}
	require.NotNil(t, j.LastAttempt())
	assert.Equal(t, StatusFinished, j.LastAttempt().Status)
}

func TestStatus_Valid(t *testing.T) {
	for _, s := range Statuses {
		assert.True(t, s.Valid())
	}
	assert.False(t, Status("").Valid())
	assert.False(t, Status("done").Valid())
}

func TestStats_AddCount(t *testing.T) {
	var s Stats
	s.Add(StatusPending, 3)
	s.Add(StatusFailed, 2)
	s.Add(StatusArchived, 1)

	assert.Equal(t, int64(6), s.Count(""))
	assert.Equal(t, int64(3), s.Count(StatusPending))
	assert.Equal(t, int64(2), s.Count(StatusFailed))
	assert.Equal(t, int64(1), s.Count(StatusArchived))
	assert.Equal(t, int64(0), s.Count(StatusRunning))
	assert.Equal(t, int64(0), s.Count("bogus"))
}

func TestJob_JSON(t *testing.T) {
	started := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	raw := `{
		"id": "01HQ",
		"client": "flame",
		"kind": "download",
		"queue": "default",
		"args": "{\"title\":\"x\"}",
		"status": "failed",
		"attempts": [{"started_at": "2024-03-01T12:00:00Z", "duration": 1.25, "status": "failed", "error": "boom", "stacktrace": ["a", "b"]}],
		"created_at": "2024-03-01T11:00:00Z",
		"updated_at": "2024-03-01T12:00:01Z"
	}`
	var j Job
	require.NoError(t, json.Unmarshal([]byte(raw), &j))
	assert.Equal(t, "flame", j.Client)
	assert.Equal(t, StatusFailed, j.Status)
	require.Len(t, j.Attempts, 1)
	assert.Equal(t, started, j.Attempts[0].StartedAt)
	assert.Equal(t, 1.25, j.Attempts[0].Duration)
	assert.Equal(t, []string{"a", "b"}, j.Attempts[0].Stacktrace)
	assert.Equal(t, "x", j.Title())
}
