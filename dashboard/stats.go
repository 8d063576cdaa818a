package dashboard

import (
	"fmt"
	"io"
	"strings"

	"github.com/logrusorgru/aurora"
	"github.com/textileio/minion/api/jobsd/model"
)

// BucketStatuses are the statuses shown in the stats bar, in order.
var BucketStatuses = []model.Status{
	model.StatusPending,
	model.StatusQueued,
	model.StatusRunning,
	model.StatusCancelled,
	model.StatusFailed,
	model.StatusArchived,
}

// Bucket is one entry of the stats bar.
type Bucket struct {
	Status model.Status
	Count  int64
	Paint  Paint
}

// Buckets returns the stats bar buckets for stats.
func Buckets(stats model.Stats) []Bucket {
	b := make([]Bucket, len(BucketStatuses))
	for i, s := range BucketStatuses {
		b[i] = Bucket{Status: s, Count: stats.Count(s), Paint: styleFor(s).paint}
	}
	return b
}

// StatsBar shows per-status counts. Selecting a bucket sets the status filter.
type StatsBar struct {
	// Stats is nil when the counts are unavailable.
	Stats    *model.Stats
	Selected model.Status

	OnSelect func(status model.Status)
}

// Select picks a bucket. The empty status clears the filter.
func (b *StatsBar) Select(status model.Status) error {
	if status != "" && !status.Valid() {
		return fmt.Errorf("unknown status: %s", status)
	}
	if b.OnSelect != nil {
		b.OnSelect(status)
	}
	return nil
}

// Render writes the bar to w. Nothing is written while the counts are
// unavailable.
func (b *StatsBar) Render(w io.Writer) {
	if b.Stats == nil {
		return
	}
	parts := make([]string, 0, len(BucketStatuses))
	for _, bk := range Buckets(*b.Stats) {
		label := fmt.Sprintf("%s %s %d", StatusIcon(bk.Status), bk.Status, bk.Count)
		if bk.Status == b.Selected {
			parts = append(parts, aurora.Underline(bk.Paint(label)).String())
		} else {
			parts = append(parts, bk.Paint(label).String())
		}
	}
	fmt.Fprintln(w, strings.Join(parts, "  "))
}
