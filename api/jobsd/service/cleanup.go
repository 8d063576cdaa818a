package service

import (
	"context"
	"fmt"
	"time"

	"github.com/textileio/minion/api/jobsd/model"
)

// Cleanup deletes finished and failed jobs that have not been updated within
// their retention window. A zero window keeps those jobs forever.
func (s *Service) Cleanup(ctx context.Context) (int64, error) {
	now := time.Now()
	var total int64
	for _, r := range []struct {
		status model.Status
		keep   time.Duration
	}{
		{status: model.StatusFinished, keep: s.config.KeepFinished},
		{status: model.StatusFailed, keep: s.config.KeepFailed},
	} {
		if r.keep <= 0 {
			continue
		}
		n, err := s.store.DeleteOlderThan(ctx, r.status, now.Add(-r.keep))
		if err != nil {
			return total, fmt.Errorf("cleaning up %s jobs: %s", r.status, err)
		}
		if n > 0 {
			log.Infof("removed %d %s jobs older than %s", n, r.status, r.keep)
		}
		total += n
	}
	return total, nil
}
