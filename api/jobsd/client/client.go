package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/textileio/minion/api/jobsd/model"
)

// ErrNotFound indicates the requested job does not exist.
var ErrNotFound = errors.New("job not found")

// Client provides the jobs api.
type Client struct {
	base *url.URL
	hc   *http.Client
}

// NewClient returns a client for the jobs api at target, e.g. http://127.0.0.1:9010.
func NewClient(target string, opts ...Option) (*Client, error) {
	args := &options{}
	for _, opt := range opts {
		opt(args)
	}
	base, err := url.Parse(strings.TrimSuffix(target, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing target: %s", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme: %q", base.Scheme)
	}
	hc := args.httpClient
	if hc == nil {
		hc = &http.Client{}
	}
	if args.timeout > 0 {
		c := *hc
		c.Timeout = args.timeout
		hc = &c
	}
	return &Client{base: base, hc: hc}, nil
}

// List returns a page of jobs along with stats for the client scope.
func (c *Client) List(ctx context.Context, opts ...ListOption) (*model.JobsResponse, error) {
	args := &listOptions{}
	for _, opt := range opts {
		opt(args)
	}
	q := url.Values{}
	if args.page > 0 {
		q.Set("page", strconv.FormatInt(args.page, 10))
	}
	if args.limit > 0 {
		q.Set("limit", strconv.FormatInt(args.limit, 10))
	}
	if args.status != "" {
		q.Set("status", string(args.status))
	}
	if args.client != "" {
		q.Set("client", args.client)
	}
	res := &model.JobsResponse{}
	if err := c.do(ctx, http.MethodGet, "/jobs", q, res); err != nil {
		return nil, err
	}
	return res, nil
}

// ListForClient returns a page of jobs enqueued by client.
func (c *Client) ListForClient(ctx context.Context, client string, page int64) ([]*model.Job, error) {
	q := url.Values{}
	if page > 0 {
		q.Set("page", strconv.FormatInt(page, 10))
	}
	q.Set("client", client)
	res := &model.ClientJobsResponse{}
	if err := c.do(ctx, http.MethodGet, "/jobs/", q, res); err != nil {
		return nil, err
	}
	return res.Jobs, nil
}

// Get returns a single job.
func (c *Client) Get(ctx context.Context, id string) (*model.Job, error) {
	res := &model.JobResponse{}
	if err := c.do(ctx, http.MethodGet, "/jobs/"+url.PathEscape(id), nil, res); err != nil {
		return nil, err
	}
	return res.Job, nil
}

// Enqueue asks the backend to run the named job for client. It returns the new job id.
func (c *Client) Enqueue(ctx context.Context, kind, client string, opts ...EnqueueOption) (string, error) {
	args := &enqueueOptions{}
	for _, opt := range opts {
		opt(args)
	}
	q := url.Values{}
	q.Set("job", kind)
	q.Set("client", client)
	if args.queue != "" {
		q.Set("queue", args.queue)
	}
	if args.args != "" {
		q.Set("args", args.args)
	}
	res := &model.ActionResponse{}
	if err := c.do(ctx, http.MethodPost, "/jobs", q, res); err != nil {
		return "", err
	}
	return res.ID, nil
}

// Delete cancels (soft) or archives (hard) a job. Passing a status name as id
// addresses every job in that status and the number of affected jobs is returned.
func (c *Client) Delete(ctx context.Context, id string, hard bool) (int64, error) {
	q := url.Values{}
	q.Set("hard", strconv.FormatBool(hard))
	res := &model.ActionResponse{}
	if err := c.do(ctx, http.MethodDelete, "/jobs/"+url.PathEscape(id), q, res); err != nil {
		return 0, err
	}
	return res.Count, nil
}

// Cancel soft deletes a job.
func (c *Client) Cancel(ctx context.Context, id string) error {
	_, err := c.Delete(ctx, id, false)
	return err
}

// Requeue moves a job back to pending.
func (c *Client) Requeue(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPatch, "/jobs/"+url.PathEscape(id), nil, &model.ActionResponse{})
}

func (c *Client) do(ctx context.Context, method, path string, q url.Values, out interface{}) error {
	u := *c.base
	u.Path = c.base.Path + path
	u.RawQuery = q.Encode()
	req, err := http.NewRequestWithContext(ctx, method, u.String(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	res, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return fmt.Errorf("reading response: %s", err)
	}
	if res.StatusCode != http.StatusOK {
		if res.StatusCode == http.StatusNotFound {
			return ErrNotFound
		}
		var e model.ErrorResponse
		if err := json.Unmarshal(body, &e); err == nil && e.Message != "" {
			return fmt.Errorf("%s %s: %s", method, path, e.Message)
		}
		return fmt.Errorf("%s %s: %s", method, path, res.Status)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decoding response: %s", err)
	}
	return nil
}
