package client

import (
	"net/http"
	"time"

	"github.com/textileio/minion/api/jobsd/model"
)

type options struct {
	httpClient *http.Client
	timeout    time.Duration
}

type Option func(*options)

// WithHTTPClient sets the underlying http client.
func WithHTTPClient(c *http.Client) Option {
	return func(args *options) {
		args.httpClient = c
	}
}

// WithTimeout bounds every request made by the client.
func WithTimeout(timeout time.Duration) Option {
	return func(args *options) {
		args.timeout = timeout
	}
}

type listOptions struct {
	page   int64
	limit  int64
	status model.Status
	client string
}

type ListOption func(*listOptions)

// WithPage is used to fetch the next page when paginating. Pages start at 1.
func WithPage(page int64) ListOption {
	return func(args *listOptions) {
		args.page = page
	}
}

// WithLimit is used to set a page size when paginating.
func WithLimit(limit int64) ListOption {
	return func(args *listOptions) {
		args.limit = limit
	}
}

// WithStatus filters the list by job status.
func WithStatus(status model.Status) ListOption {
	return func(args *listOptions) {
		args.status = status
	}
}

// WithClient filters the list by the client that enqueued the job.
func WithClient(client string) ListOption {
	return func(args *listOptions) {
		args.client = client
	}
}

type enqueueOptions struct {
	queue string
	args  string
}

type EnqueueOption func(*enqueueOptions)

// WithQueue sets the queue a new job is placed in.
func WithQueue(queue string) EnqueueOption {
	return func(args *enqueueOptions) {
		args.queue = queue
	}
}

// WithArgs sets the JSON encoded job arguments.
func WithArgs(a string) EnqueueOption {
	return func(args *enqueueOptions) {
		args.args = a
	}
}
