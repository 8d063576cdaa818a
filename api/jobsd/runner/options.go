package runner

import (
	"time"

	"github.com/textileio/minion/api/jobsd/store"
)

var defaultConfig = config{
	concurrency:  5,
	bufferSize:   100,
	pollInterval: time.Second,
	timeout:      10 * time.Minute,
	queue:        store.DefaultQueue,
}

type config struct {
	concurrency  int
	bufferSize   int
	pollInterval time.Duration
	timeout      time.Duration
	queue        string
}

// Option configures a Runner.
type Option func(*config)

// WithConcurrency sets how many jobs run at once.
func WithConcurrency(n int) Option {
	return func(c *config) {
		c.concurrency = n
	}
}

// WithBufferSize sets how many claimed jobs may wait for a free runner.
func WithBufferSize(n int) Option {
	return func(c *config) {
		c.bufferSize = n
	}
}

// WithPollInterval sets how often pending jobs are claimed.
func WithPollInterval(d time.Duration) Option {
	return func(c *config) {
		c.pollInterval = d
	}
}

// WithTimeout sets the default work timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithQueue sets the queue jobs are claimed from and enqueued to.
func WithQueue(q string) Option {
	return func(c *config) {
		c.queue = q
	}
}
