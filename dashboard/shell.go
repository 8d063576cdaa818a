package dashboard

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	logging "github.com/ipfs/go-log/v2"
	"github.com/logrusorgru/aurora"
	"github.com/textileio/minion/api/jobsd/model"
	"github.com/textileio/minion/dashboard/query"
)

var log = logging.Logger("dashboard")

// DefaultRefresh is the interval at which every job query is invalidated.
const DefaultRefresh = 5 * time.Second

const clearScreen = "\033[H\033[2J"

// Config defines the shell configuration.
type Config struct {
	Queries *query.Queries
	Out     io.Writer
	// In is read line by line for commands. Nil means the shell only watches.
	In io.Reader

	Refresh time.Duration
	Client  string
	Status  model.Status
	// ClearScreen redraws from the top of the terminal on every render.
	ClearScreen bool
}

// Shell owns the filter state and redraws the dashboard on a fixed timer.
type Shell struct {
	q       *query.Queries
	out     io.Writer
	in      io.Reader
	refresh time.Duration
	clear   bool
	now     func() time.Time

	lk     sync.Mutex
	status model.Status
	client string
	page   int64
	open   string
	list   *ListView
	bar    *StatsBar
}

// NewShell returns a new shell.
func NewShell(conf Config) (*Shell, error) {
	if conf.Queries == nil {
		return nil, fmt.Errorf("queries are required")
	}
	if conf.Out == nil {
		return nil, fmt.Errorf("output is required")
	}
	if conf.Status != "" && !conf.Status.Valid() {
		return nil, fmt.Errorf("unknown status: %s", conf.Status)
	}
	if conf.Refresh <= 0 {
		conf.Refresh = DefaultRefresh
	}
	return &Shell{
		q:       conf.Queries,
		out:     conf.Out,
		in:      conf.In,
		refresh: conf.Refresh,
		clear:   conf.ClearScreen,
		now:     time.Now,
		status:  conf.Status,
		client:  conf.Client,
		page:    1,
	}, nil
}

// Status returns the current status filter.
func (s *Shell) Status() model.Status {
	s.lk.Lock()
	defer s.lk.Unlock()
	return s.status
}

// SetStatus sets the status filter and returns to the first page.
func (s *Shell) SetStatus(status model.Status) {
	s.lk.Lock()
	defer s.lk.Unlock()
	s.status = status
	s.page = 1
}

// SetClient sets the client filter and returns to the first page.
func (s *Shell) SetClient(client string) {
	s.lk.Lock()
	defer s.lk.Unlock()
	s.client = client
	s.page = 1
}

// Run redraws until ctx is done or the quit command is read.
func (s *Shell) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.refresh)
	defer ticker.Stop()

	var lines chan string
	if s.in != nil {
		lines = make(chan string)
		go func() {
			defer close(lines)
			scanner := bufio.NewScanner(s.in)
			for scanner.Scan() {
				select {
				case lines <- scanner.Text():
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	s.render(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.q.InvalidateJobs()
			s.render(ctx)
		case <-s.q.Cache().Updates():
			s.render(ctx)
		case line, ok := <-lines:
			if !ok {
				lines = nil
				continue
			}
			quit, err := s.Handle(line)
			if quit {
				return nil
			}
			s.render(ctx)
			if err != nil {
				fmt.Fprintln(s.out, aurora.Red("> "+err.Error()))
			}
		}
	}
}

func (s *Shell) render(ctx context.Context) {
	var buf bytes.Buffer
	s.Render(ctx, &buf)
	if s.clear {
		fmt.Fprint(s.out, clearScreen)
	}
	if _, err := s.out.Write(buf.Bytes()); err != nil {
		log.Errorf("writing dashboard: %s", err)
	}
}

// Render fetches the current views and writes them to w. Views whose reads
// fail are left out.
func (s *Shell) Render(ctx context.Context, w io.Writer) {
	s.lk.Lock()
	status, client, page, open := s.status, s.client, s.page, s.open
	s.lk.Unlock()

	now := s.now()
	if open != "" {
		j, err := s.q.Job(ctx, open)
		if err != nil {
			log.Debugf("fetching job %s: %s", open, err)
		}
		(&DetailView{Job: j}).Render(w, now)
		fmt.Fprintln(w, aurora.BrightBlack("b: back  r: requeue  x: cancel  q: quit"))
		return
	}

	list := &ListView{
		OnCancel:  s.q.Cancel,
		OnRequeue: s.q.Requeue,
		OnOpen: func(id string) {
			s.lk.Lock()
			defer s.lk.Unlock()
			s.open = id
		},
	}
	res, err := s.q.Jobs(ctx, page, status, client)
	if err != nil {
		log.Debugf("listing jobs: %s", err)
	} else {
		list.Jobs = res.Results
	}

	bar := &StatsBar{Selected: status, OnSelect: s.SetStatus}
	if stats, err := s.q.Stats(ctx, client); err != nil {
		log.Debugf("fetching stats: %s", err)
	} else {
		bar.Stats = &stats
	}

	s.lk.Lock()
	s.list, s.bar = list, bar
	s.lk.Unlock()

	s.header(w, status, client, page, bar.Stats)
	bar.Render(w)
	fmt.Fprintln(w)
	if res != nil {
		list.Render(w, now)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, aurora.BrightBlack("s <status>: filter  c <client>: client  n/p: page  o|r|x <row>: open|requeue|cancel  clear <status>  q: quit"))
}

func (s *Shell) header(w io.Writer, status model.Status, client string, page int64, stats *model.Stats) {
	parts := []string{aurora.Bold("minion").String()}
	if client != "" {
		parts = append(parts, "client "+ClientPaint(client)(client).String())
	}
	if status != "" {
		parts = append(parts, "status "+styleFor(status).paint(status).String())
	}
	if stats != nil {
		parts = append(parts, fmt.Sprintf("page %d/%d", page, pages(stats.Count(status))))
	}
	if t, ok := s.q.Cache().UpdatedAt(query.JobsKey(page, status, client)); ok {
		parts = append(parts, aurora.BrightBlack("updated "+humanize.RelTime(t, s.now(), "ago", "from now")).String())
	} else {
		parts = append(parts, aurora.Red("offline").String())
	}
	fmt.Fprintln(w, strings.Join(parts, "  "))
}

func pages(total int64) int64 {
	n := (total + query.DefaultPageSize - 1) / query.DefaultPageSize
	if n < 1 {
		return 1
	}
	return n
}

// Handle applies one command line. It reports whether the shell should quit.
func (s *Shell) Handle(line string) (bool, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		s.q.InvalidateJobs()
		return false, nil
	}
	arg := ""
	if len(fields) > 1 {
		arg = fields[1]
	}

	s.lk.Lock()
	list, bar, open := s.list, s.bar, s.open
	s.lk.Unlock()

	switch fields[0] {
	case "q", "quit", "exit":
		return true, nil
	case "s", "status":
		if bar == nil {
			bar = &StatsBar{OnSelect: s.SetStatus}
		}
		return false, bar.Select(model.Status(arg))
	case "c", "client":
		s.SetClient(arg)
	case "n", "next":
		s.lk.Lock()
		s.page++
		s.lk.Unlock()
	case "p", "prev":
		s.lk.Lock()
		if s.page > 1 {
			s.page--
		}
		s.lk.Unlock()
	case "b", "back":
		s.lk.Lock()
		s.open = ""
		s.lk.Unlock()
	case "o", "open", "r", "requeue", "x", "cancel":
		if open != "" && arg == "" {
			if fields[0][0] == 'r' {
				s.q.Requeue(open)
			} else if fields[0][0] == 'x' || fields[0] == "cancel" {
				s.q.Cancel(open)
			}
			return false, nil
		}
		if list == nil {
			return false, fmt.Errorf("no jobs loaded")
		}
		row, err := strconv.Atoi(arg)
		if err != nil {
			return false, fmt.Errorf("invalid row: %q", arg)
		}
		switch fields[0][0] {
		case 'o':
			return false, list.Open(row)
		case 'r':
			return false, list.Requeue(row)
		default:
			return false, list.Cancel(row)
		}
	case "clear":
		return false, s.clearBucket(model.Status(arg))
	default:
		return false, fmt.Errorf("unknown command: %s", fields[0])
	}
	return false, nil
}

// clearBucket cancels every pending job, or archives every cancelled or
// failed job.
func (s *Shell) clearBucket(status model.Status) error {
	switch status {
	case model.StatusPending:
		s.q.Cancel(string(status))
	case model.StatusCancelled, model.StatusFailed:
		s.q.Delete(string(status), true)
	default:
		return fmt.Errorf("can only clear pending, cancelled, or failed jobs")
	}
	return nil
}
