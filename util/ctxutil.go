package util

import (
	"context"
	"time"
)

// DetachedContext returns a context that carries the values of ctx but is
// never cancelled, so work started on behalf of a request can outlive it.
func DetachedContext(ctx context.Context) context.Context {
	return detached{parent: ctx}
}

type detached struct{ parent context.Context }

func (detached) Deadline() (time.Time, bool)         { return time.Time{}, false }
func (detached) Done() <-chan struct{}               { return nil }
func (detached) Err() error                          { return nil }
func (d detached) Value(key interface{}) interface{} { return d.parent.Value(key) }
