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

// DetailView renders one job with its attempt history.
type DetailView struct {
	Job *model.Job
}

// Render writes the job to w.
func (v *DetailView) Render(w io.Writer, now time.Time) {
	j := v.Job
	if j == nil {
		return
	}
	client := j.Client
	if client == "" {
		client = "unknown"
	}
	fmt.Fprintf(w, "%s %s %s\n", StatusIcon(j.Status), ClientPaint(client)(client), aurora.Bold(j.Kind))
	fmt.Fprintln(w, aurora.BrightBlack(fmt.Sprintf("id %s  queue %s  status %s", j.ID, j.Queue, j.Status)))
	fmt.Fprintln(w, aurora.BrightBlack(fmt.Sprintf("created %s  updated %s",
		humanize.RelTime(j.CreatedAt, now, "ago", "from now"),
		humanize.RelTime(j.UpdatedAt, now, "ago", "from now"))))
	if j.Args != "" && j.Args != "{}" {
		fmt.Fprintln(w, aurora.BrightBlack("args "+j.Args))
	}
	if len(j.Attempts) == 0 {
		fmt.Fprintln(w, aurora.BrightBlack("No attempts"))
		return
	}

	data := make([][]string, len(j.Attempts))
	for i, a := range j.Attempts {
		started := ""
		if !a.StartedAt.IsZero() {
			started = humanize.RelTime(a.StartedAt, now, "ago", "from now")
		}
		data[i] = []string{
			fmt.Sprintf("%d", i+1),
			StatusIcon(a.Status) + " " + string(a.Status),
			started,
			fmt.Sprintf("%.1fs", a.Duration),
			a.Error,
		}
	}
	cmd.RenderTableTo(w, []string{"#", "status", "started", "duration", "error"}, data)

	for i, a := range j.Attempts {
		if len(a.Stacktrace) == 0 {
			continue
		}
		fmt.Fprintln(w, aurora.Red(fmt.Sprintf("attempt %d stacktrace:", i+1)))
		for _, line := range a.Stacktrace {
			fmt.Fprintln(w, aurora.BrightBlack("  "+line))
		}
	}
}
