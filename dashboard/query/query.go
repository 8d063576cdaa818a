package query

import (
	"context"
	"fmt"
	"sync"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"github.com/textileio/minion/api/jobsd/client"
	"github.com/textileio/minion/api/jobsd/model"
)

var log = logging.Logger("dashboard.query")

const (
	// DefaultPageSize is the page size of list queries.
	DefaultPageSize = 25

	jobsPrefix = "job"

	writeTimeout = time.Minute
)

// API is the jobs api the queries read from and write to.
type API interface {
	List(ctx context.Context, page, limit int64, status model.Status, client string) (*model.JobsResponse, error)
	ListForClient(ctx context.Context, client string, page int64) ([]*model.Job, error)
	Get(ctx context.Context, id string) (*model.Job, error)
	Enqueue(ctx context.Context, kind, client string) (string, error)
	Delete(ctx context.Context, id string, hard bool) (int64, error)
	Requeue(ctx context.Context, id string) error
}

// ClientAPI adapts a jobs client to API.
func ClientAPI(c *client.Client) API {
	return &clientAPI{Client: c}
}

type clientAPI struct {
	*client.Client
}

func (a *clientAPI) List(ctx context.Context, page, limit int64, status model.Status, c string) (*model.JobsResponse, error) {
	opts := []client.ListOption{client.WithPage(page), client.WithLimit(limit)}
	if status != "" {
		opts = append(opts, client.WithStatus(status))
	}
	if c != "" {
		opts = append(opts, client.WithClient(c))
	}
	return a.Client.List(ctx, opts...)
}

func (a *clientAPI) Enqueue(ctx context.Context, kind, c string) (string, error) {
	return a.Client.Enqueue(ctx, kind, c)
}

// Queries are the cached reads and fire-and-forget writes the dashboard uses.
type Queries struct {
	api      API
	cache    *Cache
	pageSize int64

	wg sync.WaitGroup
}

// New returns queries over api backed by cache.
func New(api API, cache *Cache) *Queries {
	return &Queries{api: api, cache: cache, pageSize: DefaultPageSize}
}

// Cache returns the underlying cache.
func (q *Queries) Cache() *Cache {
	return q.cache
}

// JobsKey is the cache key of a list query.
func JobsKey(page int64, status model.Status, client string) string {
	return fmt.Sprintf("%s/list/%d/%s/%s", jobsPrefix, page, status, client)
}

// ClientJobsKey is the cache key of a client scoped list query.
func ClientJobsKey(client string, page int64) string {
	return fmt.Sprintf("%s/client/%s/%d", jobsPrefix, client, page)
}

// JobKey is the cache key of a single job query.
func JobKey(id string) string {
	return fmt.Sprintf("%s/one/%s", jobsPrefix, id)
}

// Jobs lists a page of jobs filtered by status and client.
func (q *Queries) Jobs(ctx context.Context, page int64, status model.Status, client string) (*model.JobsResponse, error) {
	if page < 1 {
		page = 1
	}
	v, err := q.cache.Fetch(ctx, JobsKey(page, status, client), func(ctx context.Context) (interface{}, error) {
		return q.api.List(ctx, page, q.pageSize, status, client)
	})
	if err != nil {
		return nil, err
	}
	return v.(*model.JobsResponse), nil
}

// ClientJobs lists a page of jobs enqueued by client.
func (q *Queries) ClientJobs(ctx context.Context, client string, page int64) ([]*model.Job, error) {
	if page < 1 {
		page = 1
	}
	v, err := q.cache.Fetch(ctx, ClientJobsKey(client, page), func(ctx context.Context) (interface{}, error) {
		return q.api.ListForClient(ctx, client, page)
	})
	if err != nil {
		return nil, err
	}
	return v.([]*model.Job), nil
}

// Stats returns the aggregate counts for client. The counts ride on the first
// unfiltered page so they share its cache entry.
func (q *Queries) Stats(ctx context.Context, client string) (model.Stats, error) {
	res, err := q.Jobs(ctx, 1, "", client)
	if err != nil {
		return model.Stats{}, err
	}
	return res.Stats, nil
}

// Job returns one job with its attempt history.
func (q *Queries) Job(ctx context.Context, id string) (*model.Job, error) {
	v, err := q.cache.Fetch(ctx, JobKey(id), func(ctx context.Context) (interface{}, error) {
		return q.api.Get(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	return v.(*model.Job), nil
}

// InvalidateJobs marks every cached job query stale.
func (q *Queries) InvalidateJobs() int {
	return q.cache.Invalidate(jobsPrefix)
}

// Enqueue asks the backend to run kind for client.
func (q *Queries) Enqueue(kind, client string) {
	q.write(fmt.Sprintf("enqueueing %s for %s", kind, client), func(ctx context.Context) error {
		_, err := q.api.Enqueue(ctx, kind, client)
		return err
	})
}

// Cancel soft deletes a job.
func (q *Queries) Cancel(id string) {
	q.Delete(id, false)
}

// Delete cancels (soft) or archives (hard) a job, or a whole status bucket
// when id is a status name.
func (q *Queries) Delete(id string, hard bool) {
	q.write(fmt.Sprintf("deleting %s", id), func(ctx context.Context) error {
		_, err := q.api.Delete(ctx, id, hard)
		return err
	})
}

// Requeue moves a job back to pending.
func (q *Queries) Requeue(id string) {
	q.write(fmt.Sprintf("requeueing %s", id), func(ctx context.Context) error {
		return q.api.Requeue(ctx, id)
	})
}

// Wait blocks until in-flight writes are done.
func (q *Queries) Wait() {
	q.wg.Wait()
}

// write runs fn in the background. Failures are only logged; the next poll
// shows the backend's state either way.
func (q *Queries) write(desc string, fn func(ctx context.Context) error) {
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			log.Errorf("%s: %s", desc, err)
			return
		}
		log.Debugf("%s: done", desc)
		q.InvalidateJobs()
	}()
}
