package runner

// EventType names a job lifecycle event.
type EventType string

const (
	EventCreated   EventType = "job:created"
	EventScheduled EventType = "job:scheduled"
	EventQueued    EventType = "job:queued"
	EventStart     EventType = "job:start"
	EventFinish    EventType = "job:finish"
	EventFail      EventType = "job:fail"
	EventSuccess   EventType = "job:success"
)

// Event is delivered to subscribers. JobID is empty for EventScheduled.
type Event struct {
	Type  EventType
	JobID string
	Kind  string
}

// Subscribe registers fn for every event. fn runs on the goroutine that
// raised the event and must not block.
func (r *Runner) Subscribe(fn func(Event)) {
	r.lk.Lock()
	defer r.lk.Unlock()
	r.subs = append(r.subs, fn)
}

func (r *Runner) notify(t EventType, id, kind string) {
	r.lk.RLock()
	subs := r.subs
	r.lk.RUnlock()
	e := Event{Type: t, JobID: id, Kind: kind}
	for _, fn := range subs {
		fn(e)
	}
}
