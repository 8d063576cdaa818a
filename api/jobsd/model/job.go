package model

import (
	"encoding/json"
	"time"
)

// Status is the lifecycle state of a job. Transitions are owned by the
// job-queue backend.
type Status string

const (
	StatusPending   Status = "pending"
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCancelled Status = "cancelled"
	StatusFailed    Status = "failed"
	StatusFinished  Status = "finished"
	StatusArchived  Status = "archived"
)

// Statuses lists every known status.
var Statuses = []Status{
	StatusPending,
	StatusQueued,
	StatusRunning,
	StatusCancelled,
	StatusFailed,
	StatusFinished,
	StatusArchived,
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	for _, v := range Statuses {
		if s == v {
			return true
		}
	}
	return false
}

func (s Status) String() string {
	return string(s)
}

// Job is one unit of background work tracked by the queue service.
type Job struct {
	ID     string `bson:"_id" json:"id"`
	Client string `bson:"client" json:"client"`
	Kind   string `bson:"kind" json:"kind"`
	Queue  string `bson:"queue,omitempty" json:"queue,omitempty"`
	// Args is the JSON encoded payload.
	Args     string     `bson:"args,omitempty" json:"args,omitempty"`
	Status   Status     `bson:"status,omitempty" json:"status,omitempty"`
	Attempts []*Attempt `bson:"attempts,omitempty" json:"attempts,omitempty"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// LastAttempt returns the most recent attempt, or nil if the job never ran.
func (j *Job) LastAttempt() *Attempt {
	if len(j.Attempts) == 0 {
		return nil
	}
	return j.Attempts[len(j.Attempts)-1]
}

// Title returns the "title" (or "Title") field embedded in the job args.
// Args that are empty or not a JSON object yield an empty title.
func (j *Job) Title() string {
	if j.Args == "" || j.Args == "{}" {
		return ""
	}
	var parsed map[string]interface{}
	if err := json.Unmarshal([]byte(j.Args), &parsed); err != nil {
		return ""
	}
	for _, k := range []string{"title", "Title"} {
		if v, ok := parsed[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// Attempt is one execution try of a job.
type Attempt struct {
	StartedAt time.Time `bson:"started_at,omitempty" json:"started_at,omitempty"`
	// Duration in seconds.
	Duration   float64  `bson:"duration,omitempty" json:"duration,omitempty"`
	Status     Status   `bson:"status,omitempty" json:"status,omitempty"`
	Error      string   `bson:"error,omitempty" json:"error,omitempty"`
	Stacktrace []string `bson:"stacktrace,omitempty" json:"stacktrace,omitempty"`
}

// Stats holds aggregate per-status job counts.
type Stats struct {
	Total     int64 `json:"total"`
	Pending   int64 `json:"pending"`
	Queued    int64 `json:"queued"`
	Running   int64 `json:"running"`
	Cancelled int64 `json:"cancelled"`
	Failed    int64 `json:"failed"`
	Finished  int64 `json:"finished"`
	Archived  int64 `json:"archived"`
}

// Count returns the count for a status bucket. An empty status returns the total.
func (s Stats) Count(status Status) int64 {
	switch status {
	case "":
		return s.Total
	case StatusPending:
		return s.Pending
	case StatusQueued:
		return s.Queued
	case StatusRunning:
		return s.Running
	case StatusCancelled:
		return s.Cancelled
	case StatusFailed:
		return s.Failed
	case StatusFinished:
		return s.Finished
	case StatusArchived:
		return s.Archived
	default:
		return 0
	}
}

// Add increments the bucket for status by n and the total by n.
func (s *Stats) Add(status Status, n int64) {
	switch status {
	case StatusPending:
		s.Pending += n
	case StatusQueued:
		s.Queued += n
	case StatusRunning:
		s.Running += n
	case StatusCancelled:
		s.Cancelled += n
	case StatusFailed:
		s.Failed += n
	case StatusFinished:
		s.Finished += n
	case StatusArchived:
		s.Archived += n
	}
	s.Total += n
}

// JobsResponse is the body of GET /jobs.
type JobsResponse struct {
	Error   bool   `json:"error"`
	Results []*Job `json:"results"`
	Stats   Stats  `json:"stats"`
}

// ClientJobsResponse is the body of GET /jobs/ (client scoped listing).
type ClientJobsResponse struct {
	Error bool   `json:"error"`
	Jobs  []*Job `json:"jobs"`
}

// JobResponse is the body of GET /jobs/:id.
type JobResponse struct {
	Error bool `json:"error"`
	Job   *Job `json:"job"`
}

// ActionResponse is the body returned by write requests. Count is set for
// bulk actions.
type ActionResponse struct {
	Error bool   `json:"error"`
	ID    string `json:"id,omitempty"`
	Count int64  `json:"count,omitempty"`
}

// ErrorResponse is the body returned by any failed request.
type ErrorResponse struct {
	Error   bool   `json:"error"`
	Message string `json:"message"`
}
