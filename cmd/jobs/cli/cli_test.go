package cli

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/textileio/minion/api/jobsd/client"
	"github.com/textileio/minion/api/jobsd/model"
)

// fakeAPI serves total failed jobs across pages and records requeues.
type fakeAPI struct {
	lk       sync.Mutex
	total    int
	requeued []string
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.lk.Lock()
	defer f.lk.Unlock()
	switch r.Method {
	case http.MethodGet:
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		var res model.JobsResponse
		for i := (page - 1) * limit; i < page*limit && i < f.total; i++ {
			res.Results = append(res.Results, &model.Job{ID: "job" + strconv.Itoa(i), Status: model.StatusFailed})
		}
		_ = json.NewEncoder(w).Encode(res)
	case http.MethodPatch:
		id := strings.TrimPrefix(r.URL.Path, "/jobs/")
		if id == "job3" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		f.requeued = append(f.requeued, id)
		_ = json.NewEncoder(w).Encode(model.ActionResponse{ID: id})
	}
}

func setup(t *testing.T, total int) *fakeAPI {
	f := &fakeAPI{total: total}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	c, err := client.NewClient(srv.URL)
	require.NoError(t, err)
	SetClient(c)
	config.Viper.Set("timeout", time.Minute)
	return f
}

func TestListIDs(t *testing.T) {
	setup(t, bulkPageSize+5)
	ids, err := listIDs(context.Background(), model.StatusFailed, "")
	require.NoError(t, err)
	assert.Len(t, ids, bulkPageSize+5)
	assert.Equal(t, "job0", ids[0])

	setup(t, 0)
	ids, err = listIDs(context.Background(), model.StatusFailed, "flame")
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestRequeueAll(t *testing.T) {
	f := setup(t, 10)
	ids, err := listIDs(context.Background(), model.StatusFailed, "")
	require.NoError(t, err)

	failed := requeueAll(context.Background(), ids, 3)
	assert.Equal(t, 1, failed)
	f.lk.Lock()
	defer f.lk.Unlock()
	assert.Len(t, f.requeued, 9)
	assert.NotContains(t, f.requeued, "job3")
}
