package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/textileio/minion/api/jobsd/model"
	"github.com/textileio/minion/api/jobsd/store"
)

func TestGateway_Health(t *testing.T) {
	g, _ := setup(t)
	rec := do(t, g, http.MethodGet, "/health")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestGateway_List(t *testing.T) {
	g, s := setup(t)
	s.add("flame", model.StatusPending)
	s.add("flame", model.StatusFailed)
	s.add("tower", model.StatusFailed)

	rec := do(t, g, http.MethodGet, "/jobs")
	require.Equal(t, http.StatusOK, rec.Code)
	var res model.JobsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.False(t, res.Error)
	assert.Len(t, res.Results, 3)
	assert.Equal(t, int64(3), res.Stats.Total)
	assert.Equal(t, int64(2), res.Stats.Failed)

	rec = do(t, g, http.MethodGet, "/jobs?status=failed&client=flame&limit=10&page=1")
	require.Equal(t, http.StatusOK, rec.Code)
	res = model.JobsResponse{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.Len(t, res.Results, 1)
	assert.Equal(t, model.StatusFailed, res.Results[0].Status)
	assert.Equal(t, "flame", res.Results[0].Client)
	// Stats follow the client scope, not the status filter.
	assert.Equal(t, int64(2), res.Stats.Total)
	assert.Equal(t, int64(1), res.Stats.Pending)
	assert.Equal(t, store.Filter{Client: "flame", Status: model.StatusFailed}, s.lastFilter)
	assert.Equal(t, int64(10), s.lastLimit)

	rec = do(t, g, http.MethodGet, "/jobs?page=3&limit=5")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(10), s.lastSkip)
	assert.Equal(t, int64(5), s.lastLimit)

	rec = do(t, g, http.MethodGet, "/jobs?page=nope")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(0), s.lastSkip)
	assert.Equal(t, int64(DefaultPageSize), s.lastLimit)

	rec = do(t, g, http.MethodGet, "/jobs?status=bogus")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var eres model.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &eres))
	assert.True(t, eres.Error)
	assert.Contains(t, eres.Message, "unknown status")
}

func TestGateway_ListEmpty(t *testing.T) {
	g, _ := setup(t)
	rec := do(t, g, http.MethodGet, "/jobs")
	require.Equal(t, http.StatusOK, rec.Code)
	var res model.JobsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Empty(t, res.Results)
	assert.Equal(t, model.Stats{}, res.Stats)
}

func TestGateway_ListForClient(t *testing.T) {
	g, s := setup(t)
	s.add("flame", model.StatusPending)
	s.add("tower", model.StatusPending)

	rec := do(t, g, http.MethodGet, "/jobs/?page=1&client=tower")
	require.Equal(t, http.StatusOK, rec.Code)
	var res model.ClientJobsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.Len(t, res.Jobs, 1)
	assert.Equal(t, "tower", res.Jobs[0].Client)
}

func TestGateway_Create(t *testing.T) {
	g, s := setup(t)

	rec := do(t, g, http.MethodPost, "/jobs?job=download&client=flame")
	require.Equal(t, http.StatusOK, rec.Code)
	var res model.ActionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.NotEmpty(t, res.ID)
	j, err := s.Get(context.Background(), res.ID)
	require.NoError(t, err)
	assert.Equal(t, "download", j.Kind)
	assert.Equal(t, "flame", j.Client)
	assert.Equal(t, model.StatusPending, j.Status)

	rec = do(t, g, http.MethodPost, "/jobs?kind=scan&client=tower")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, g, http.MethodPost, "/jobs?client=flame")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(t, g, http.MethodPost, "/jobs?job=download")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(t, g, http.MethodPost, "/jobs?job=download&client=flame&args=%7Bnope")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGateway_Get(t *testing.T) {
	g, s := setup(t)
	j := s.add("flame", model.StatusFailed)

	rec := do(t, g, http.MethodGet, "/jobs/"+j.ID)
	require.Equal(t, http.StatusOK, rec.Code)
	var res model.JobResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.NotNil(t, res.Job)
	assert.Equal(t, j.ID, res.Job.ID)

	rec = do(t, g, http.MethodGet, "/jobs/missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGateway_Requeue(t *testing.T) {
	g, s := setup(t)
	j := s.add("flame", model.StatusFailed)

	rec := do(t, g, http.MethodPatch, "/jobs/"+j.ID)
	require.Equal(t, http.StatusOK, rec.Code)
	got, err := s.Get(context.Background(), j.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, got.Status)

	rec = do(t, g, http.MethodPatch, "/jobs/missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGateway_Delete(t *testing.T) {
	g, s := setup(t)
	a := s.add("flame", model.StatusRunning)
	b := s.add("flame", model.StatusFailed)

	rec := do(t, g, http.MethodDelete, "/jobs/"+a.ID+"?hard=false")
	require.Equal(t, http.StatusOK, rec.Code)
	got, _ := s.Get(context.Background(), a.ID)
	assert.Equal(t, model.StatusCancelled, got.Status)

	rec = do(t, g, http.MethodDelete, "/jobs/"+b.ID+"?hard=true")
	require.Equal(t, http.StatusOK, rec.Code)
	got, _ = s.Get(context.Background(), b.ID)
	assert.Equal(t, model.StatusArchived, got.Status)

	rec = do(t, g, http.MethodDelete, "/jobs/missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGateway_DeleteBulk(t *testing.T) {
	g, s := setup(t)
	p1 := s.add("flame", model.StatusPending)
	p2 := s.add("tower", model.StatusPending)
	f1 := s.add("flame", model.StatusFailed)
	c1 := s.add("flame", model.StatusCancelled)

	rec := do(t, g, http.MethodDelete, "/jobs/pending?hard=false")
	require.Equal(t, http.StatusOK, rec.Code)
	var res model.ActionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, int64(2), res.Count)
	for _, id := range []string{p1.ID, p2.ID} {
		got, _ := s.Get(context.Background(), id)
		assert.Equal(t, model.StatusCancelled, got.Status)
	}

	rec = do(t, g, http.MethodDelete, "/jobs/failed?hard=true")
	require.Equal(t, http.StatusOK, rec.Code)
	got, _ := s.Get(context.Background(), f1.ID)
	assert.Equal(t, model.StatusArchived, got.Status)

	rec = do(t, g, http.MethodDelete, "/jobs/cancelled?hard=true")
	require.Equal(t, http.StatusOK, rec.Code)
	res = model.ActionResponse{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, int64(3), res.Count)
	got, _ = s.Get(context.Background(), c1.ID)
	assert.Equal(t, model.StatusArchived, got.Status)

	// A soft delete of "failed" is not a bulk action; it addresses a job id.
	rec = do(t, g, http.MethodDelete, "/jobs/failed?hard=false")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGateway_StoreError(t *testing.T) {
	g, s := setup(t)
	s.err = fmt.Errorf("mongo is down")

	rec := do(t, g, http.MethodGet, "/jobs")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var eres model.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &eres))
	assert.Equal(t, "mongo is down", eres.Message)
}

func TestGateway_Static(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "remoteEntry.js"), []byte("// entry"), 0644))
	g, err := NewGateway(Config{Store: newMemStore(), StaticDir: dir})
	require.NoError(t, err)

	rec := do(t, g, http.MethodGet, "/remoteEntry.js")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "// entry", rec.Body.String())

	rec = do(t, g, http.MethodGet, "/jobs")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGateway_CORS(t *testing.T) {
	g, _ := setup(t)
	req := httptest.NewRequest(http.MethodOptions, "/jobs/abc", nil)
	req.Header.Set("Origin", "http://shell.local")
	req.Header.Set("Access-Control-Request-Method", http.MethodPatch)
	rec := httptest.NewRecorder()
	g.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, http.MethodPatch, rec.Header().Get("Access-Control-Allow-Methods"))
}

func setup(t *testing.T) (*Gateway, *memStore) {
	s := newMemStore()
	g, err := NewGateway(Config{Store: s})
	require.NoError(t, err)
	return g, s
}

func do(t *testing.T, g *Gateway, method, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	g.Handler().ServeHTTP(rec, req)
	return rec
}

// memStore is an in-memory Store.
type memStore struct {
	sync.Mutex
	jobs map[string]*model.Job
	seq  int
	err  error

	lastFilter store.Filter
	lastLimit  int64
	lastSkip   int64
}

var _ Store = (*memStore)(nil)

func newMemStore() *memStore {
	return &memStore{jobs: make(map[string]*model.Job)}
}

func (m *memStore) add(client string, status model.Status) *model.Job {
	m.Lock()
	defer m.Unlock()
	m.seq++
	j := &model.Job{
		ID:        fmt.Sprintf("job-%03d", m.seq),
		Client:    client,
		Kind:      "kind",
		Queue:     store.DefaultQueue,
		Args:      "{}",
		Status:    status,
		CreatedAt: time.Unix(int64(m.seq), 0),
	}
	m.jobs[j.ID] = j
	return j
}

func (m *memStore) Create(_ context.Context, kind, client, queue, args string) (*model.Job, error) {
	if m.err != nil {
		return nil, m.err
	}
	j := m.add(client, model.StatusPending)
	j.Kind = kind
	return j, nil
}

func (m *memStore) Get(_ context.Context, id string) (*model.Job, error) {
	m.Lock()
	defer m.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	j, ok := m.jobs[id]
	if !ok {
		return nil, store.ErrJobNotFound
	}
	cp := *j
	return &cp, nil
}

func (m *memStore) List(_ context.Context, filter store.Filter, limit, skip int64) ([]*model.Job, error) {
	m.Lock()
	defer m.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	m.lastFilter, m.lastLimit, m.lastSkip = filter, limit, skip
	list := []*model.Job{}
	for _, j := range m.jobs {
		if filter.Client != "" && j.Client != filter.Client {
			continue
		}
		if filter.Status != "" && j.Status != filter.Status {
			continue
		}
		list = append(list, j)
	}
	sort.Slice(list, func(i, k int) bool { return list[i].CreatedAt.After(list[k].CreatedAt) })
	if skip >= int64(len(list)) {
		return []*model.Job{}, nil
	}
	list = list[skip:]
	if int64(len(list)) > limit {
		list = list[:limit]
	}
	return list, nil
}

func (m *memStore) Stats(_ context.Context, client string) (model.Stats, error) {
	m.Lock()
	defer m.Unlock()
	if m.err != nil {
		return model.Stats{}, m.err
	}
	var s model.Stats
	for _, j := range m.jobs {
		if client == "" || j.Client == client {
			s.Add(j.Status, 1)
		}
	}
	return s, nil
}

func (m *memStore) set(id string, status model.Status) error {
	m.Lock()
	defer m.Unlock()
	if m.err != nil {
		return m.err
	}
	j, ok := m.jobs[id]
	if !ok {
		return store.ErrJobNotFound
	}
	j.Status = status
	return nil
}

func (m *memStore) Cancel(_ context.Context, id string) error {
	return m.set(id, model.StatusCancelled)
}

func (m *memStore) Archive(_ context.Context, id string) error {
	return m.set(id, model.StatusArchived)
}

func (m *memStore) Requeue(_ context.Context, id string) error {
	return m.set(id, model.StatusPending)
}

func (m *memStore) Transition(_ context.Context, from, to model.Status) (int64, error) {
	m.Lock()
	defer m.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	var n int64
	for _, j := range m.jobs {
		if j.Status == from {
			j.Status = to
			n++
		}
	}
	return n, nil
}
