package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/textileio/go-ds-mongo/test"
	"github.com/textileio/minion/api/jobsd/model"
	"github.com/textileio/minion/util"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func TestMain(m *testing.M) {
	cleanup := func() {}
	if os.Getenv("SKIP_SERVICES") != "true" {
		cleanup = test.StartMongoDB()
	}
	ret := m.Run()
	cleanup()
	os.Exit(ret)
}

func TestCreateAndGet(t *testing.T) {
	ctx := context.Background()
	s := setup(t, ctx)

	created, err := s.Create(ctx, "download", "flame", "", "")
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, DefaultQueue, created.Queue)
	assert.Equal(t, "{}", created.Args)
	assert.Equal(t, model.StatusPending, created.Status)

	got, err := s.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "download", got.Kind)
	assert.Equal(t, "flame", got.Client)
	assert.Equal(t, model.StatusPending, got.Status)

	_, err = s.Get(ctx, "missing")
	require.ErrorIs(t, err, ErrJobNotFound)
}

func TestList(t *testing.T) {
	ctx := context.Background()
	s := setup(t, ctx)

	var ids []string
	for i := 0; i < 5; i++ {
		client := "flame"
		if i%2 == 1 {
			client = "tower"
		}
		j, err := s.Create(ctx, "kind", client, "", "")
		require.NoError(t, err)
		ids = append(ids, j.ID)
		time.Sleep(2 * time.Millisecond)
	}
	require.NoError(t, s.Cancel(ctx, ids[0]))

	all, err := s.List(ctx, Filter{}, 10, 0)
	require.NoError(t, err)
	require.Len(t, all, 5)
	assert.Equal(t, ids[4], all[0].ID, "newest first")
	assert.Equal(t, ids[0], all[4].ID)

	page, err := s.List(ctx, Filter{}, 2, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, ids[2], page[0].ID)

	flame, err := s.List(ctx, Filter{Client: "flame"}, 10, 0)
	require.NoError(t, err)
	assert.Len(t, flame, 3)

	cancelled, err := s.List(ctx, Filter{Status: model.StatusCancelled}, 10, 0)
	require.NoError(t, err)
	require.Len(t, cancelled, 1)
	assert.Equal(t, ids[0], cancelled[0].ID)

	none, err := s.List(ctx, Filter{Client: "nobody"}, 10, 0)
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)

	_, err = s.List(ctx, Filter{}, 0, 0)
	require.Error(t, err)
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	s := setup(t, ctx)

	a, err := s.Create(ctx, "a", "flame", "", "")
	require.NoError(t, err)
	b, err := s.Create(ctx, "b", "flame", "", "")
	require.NoError(t, err)
	_, err = s.Create(ctx, "c", "tower", "", "")
	require.NoError(t, err)

	require.NoError(t, s.AddAttempt(ctx, a.ID, &model.Attempt{Status: model.StatusFailed, Error: "boom"}))
	require.NoError(t, s.Cancel(ctx, b.ID))

	stats, err := s.Stats(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.Total)
	assert.Equal(t, int64(1), stats.Pending)
	assert.Equal(t, int64(1), stats.Failed)
	assert.Equal(t, int64(1), stats.Cancelled)

	stats, err = s.Stats(ctx, "flame")
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Total)
	assert.Equal(t, int64(0), stats.Pending)

	// Every bucket agrees with a status-filtered listing.
	for _, st := range model.Statuses {
		list, err := s.List(ctx, Filter{Status: st}, 100, 0)
		require.NoError(t, err)
		all, err := s.Stats(ctx, "")
		require.NoError(t, err)
		assert.Equal(t, int64(len(list)), all.Count(st), "status %s", st)
	}
}

func TestRequeueAndCancel(t *testing.T) {
	ctx := context.Background()
	s := setup(t, ctx)

	j, err := s.Create(ctx, "a", "flame", "", "")
	require.NoError(t, err)
	require.NoError(t, s.AddAttempt(ctx, j.ID, &model.Attempt{Status: model.StatusFailed, Error: "boom"}))

	require.NoError(t, s.Requeue(ctx, j.ID))
	got, err := s.Get(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, got.Status)
	require.Len(t, got.Attempts, 1)
	assert.Equal(t, "boom", got.Attempts[0].Error)

	require.NoError(t, s.Cancel(ctx, j.ID))
	got, err = s.Get(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, got.Status)

	require.ErrorIs(t, s.Requeue(ctx, "missing"), ErrJobNotFound)
	require.ErrorIs(t, s.Cancel(ctx, "missing"), ErrJobNotFound)
	require.ErrorIs(t, s.AddAttempt(ctx, "missing", &model.Attempt{}), ErrJobNotFound)
}

func TestTransition(t *testing.T) {
	ctx := context.Background()
	s := setup(t, ctx)

	for i := 0; i < 3; i++ {
		_, err := s.Create(ctx, "a", "flame", "", "")
		require.NoError(t, err)
	}
	n, err := s.Transition(ctx, model.StatusPending, model.StatusCancelled)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	n, err = s.Transition(ctx, model.StatusCancelled, model.StatusArchived)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	stats, err := s.Stats(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.Archived)
	assert.Equal(t, int64(0), stats.Pending)
}

func TestDeleteOlderThan(t *testing.T) {
	ctx := context.Background()
	s := setup(t, ctx)

	j, err := s.Create(ctx, "a", "flame", "", "")
	require.NoError(t, err)
	require.NoError(t, s.AddAttempt(ctx, j.ID, &model.Attempt{Status: model.StatusFinished, Duration: 1}))
	k, err := s.Create(ctx, "b", "flame", "", "")
	require.NoError(t, err)
	require.NoError(t, s.AddAttempt(ctx, k.ID, &model.Attempt{Status: model.StatusFailed}))

	n, err := s.DeleteOlderThan(ctx, model.StatusFinished, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	n, err = s.DeleteOlderThan(ctx, model.StatusFinished, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = s.Get(ctx, j.ID)
	require.ErrorIs(t, err, ErrJobNotFound)
	_, err = s.Get(ctx, k.ID)
	require.NoError(t, err)
}

func setup(t *testing.T, ctx context.Context) *Store {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(test.GetMongoUri()))
	require.NoError(t, err)
	db := client.Database("test_jobs_" + util.MakeToken(6))
	t.Cleanup(func() {
		err := db.Drop(ctx)
		require.NoError(t, err)
		require.NoError(t, client.Disconnect(ctx))
	})
	s, err := New(db, "jobs")
	require.NoError(t, err)
	return s
}

func TestClaimAndMarkRunning(t *testing.T) {
	ctx := context.Background()
	s := setup(t, ctx)

	var ids []string
	for i := 0; i < 3; i++ {
		j, err := s.Create(ctx, "scan", "flame", "", "")
		require.NoError(t, err)
		ids = append(ids, j.ID)
		time.Sleep(time.Millisecond)
	}
	other, err := s.Create(ctx, "unknown", "flame", "", "")
	require.NoError(t, err)
	slow, err := s.Create(ctx, "scan", "flame", "slow", "")
	require.NoError(t, err)

	claimed, err := s.Claim(ctx, DefaultQueue, []string{"scan"}, 2)
	require.NoError(t, err)
	require.Len(t, claimed, 2)
	assert.Equal(t, ids[0], claimed[0].ID)
	assert.Equal(t, ids[1], claimed[1].ID)
	assert.Equal(t, model.StatusQueued, claimed[0].Status)

	claimed, err = s.Claim(ctx, DefaultQueue, []string{"scan"}, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, ids[2], claimed[0].ID)

	claimed, err = s.Claim(ctx, DefaultQueue, nil, 10)
	require.NoError(t, err)
	assert.Empty(t, claimed)

	for _, id := range []string{other.ID, slow.ID} {
		got, err := s.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, model.StatusPending, got.Status)
	}

	running, err := s.MarkRunning(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, model.StatusRunning, running.Status)
	assert.Equal(t, "scan", running.Kind)

	// Already running.
	_, err = s.MarkRunning(ctx, ids[0])
	require.ErrorIs(t, err, ErrJobNotFound)

	// Cancelled while queued.
	require.NoError(t, s.Cancel(ctx, ids[1]))
	_, err = s.MarkRunning(ctx, ids[1])
	require.ErrorIs(t, err, ErrJobNotFound)
	require.NoError(t, s.Release(ctx, ids[1]))
	got, err := s.Get(ctx, ids[1])
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, got.Status)

	require.NoError(t, s.Release(ctx, ids[2]))
	got, err = s.Get(ctx, ids[2])
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, got.Status)

	a := &model.Attempt{StartedAt: time.Now().UTC(), Duration: 0.5, Status: model.StatusFailed, Error: "boom", Stacktrace: []string{"main.go:1"}}
	require.NoError(t, s.AddAttempt(ctx, ids[0], a))
	got, err = s.Get(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, got.Status)
	require.Len(t, got.Attempts, 1)
	assert.Equal(t, "boom", got.Attempts[0].Error)
	assert.Equal(t, []string{"main.go:1"}, got.Attempts[0].Stacktrace)
}
