package dashboard

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/logrusorgru/aurora"
	"github.com/textileio/minion/api/jobsd/model"
	"github.com/textileio/minion/cmd"
)

// NoJobs is rendered in place of an empty list.
const NoJobs = "No jobs"

// Row is the display summary of one job.
type Row struct {
	ID     string
	Status model.Status
	Client string
	Kind   string
	// Subtitle is the last attempt's error, else the title from args.
	Subtitle string
	IsError  bool
	Queue    string
	Duration string
	Started  string
}

// Summarize builds the row for a job from its last attempt and args.
func Summarize(j *model.Job, now time.Time) Row {
	r := Row{
		ID:     j.ID,
		Status: j.Status,
		Client: j.Client,
		Kind:   j.Kind,
		Queue:  j.Queue,
	}
	if r.Client == "" {
		r.Client = "unknown"
	}
	a := j.LastAttempt()
	if a != nil && a.Error != "" {
		r.Subtitle = a.Error
		r.IsError = true
	} else {
		r.Subtitle = j.Title()
	}
	if a != nil {
		if a.Duration > 0 {
			r.Duration = fmt.Sprintf("%.1fs", a.Duration)
		}
		if !a.StartedAt.IsZero() {
			r.Started = humanize.RelTime(a.StartedAt, now, "ago", "from now")
		}
	}
	return r
}

// ListView renders a page of jobs. Cancel and Requeue only report intent
// through their callbacks; Open is the one action that navigates.
type ListView struct {
	Jobs []*model.Job

	OnCancel  func(id string)
	OnRequeue func(id string)
	OnOpen    func(id string)
}

// Rows returns the summaries of the view's jobs.
func (v *ListView) Rows(now time.Time) []Row {
	rows := make([]Row, len(v.Jobs))
	for i, j := range v.Jobs {
		rows[i] = Summarize(j, now)
	}
	return rows
}

// Render writes the list to w.
func (v *ListView) Render(w io.Writer, now time.Time) {
	if len(v.Jobs) == 0 {
		fmt.Fprintln(w, aurora.BrightBlack(NoJobs))
		return
	}
	data := make([][]string, len(v.Jobs))
	for i, r := range v.Rows(now) {
		kind := aurora.Cyan(r.Kind)
		if r.Status == model.StatusFailed {
			kind = aurora.Red(r.Kind)
		}
		sub := aurora.BrightBlack(r.Subtitle)
		if r.IsError {
			sub = aurora.Red(r.Subtitle)
		}
		data[i] = []string{
			aurora.BrightBlack(fmt.Sprintf("%d", i+1)).String(),
			StatusIcon(r.Status),
			ClientPaint(r.Client)(r.Client).String(),
			kind.String(),
			sub.String(),
			aurora.Cyan(r.Queue).String(),
			aurora.Bold(r.Duration).String(),
			aurora.BrightBlack(r.Started).String(),
		}
	}
	cmd.RenderTableTo(w, []string{"#", "", "client", "kind", "", "queue", "duration", "started"}, data)
}

// Cancel cancels the job at a 1-based row.
func (v *ListView) Cancel(row int) error {
	return v.act(row, v.OnCancel)
}

// Requeue requeues the job at a 1-based row.
func (v *ListView) Requeue(row int) error {
	return v.act(row, v.OnRequeue)
}

// Open opens the detail view of the job at a 1-based row.
func (v *ListView) Open(row int) error {
	return v.act(row, v.OnOpen)
}

func (v *ListView) act(row int, fn func(id string)) error {
	if row < 1 || row > len(v.Jobs) {
		return fmt.Errorf("no row %d", row)
	}
	if fn != nil {
		fn(v.Jobs[row-1].ID)
	}
	return nil
}
