package domain

import (
	"fmt"
	"time"
)

// EventKind is the reported state of a monitor over an interval.
type EventKind string

const (
	KindDischarging    EventKind = "Discharging"
	KindOffline        EventKind = "Offline"
	KindNotDischarging EventKind = "Not Discharging"
)

// validKind reports whether k is one of the three feed states.
func validKind(k EventKind) bool {
	switch k {
	case KindDischarging, KindOffline, KindNotDischarging:
		return true
	}
	return false
}

// Event is a half-open interval [start, end) during which a monitor was in
// a single state. An ongoing event has no end yet and can be closed exactly
// once; a closed event is immutable.
type Event struct {
	monitorID string
	kind      EventKind
	start     time.Time
	end       time.Time
	ongoing   bool
}

// NewOngoingEvent creates an event that is still open.
func NewOngoingEvent(monitorID string, kind EventKind, start time.Time) (Event, error) {
	if monitorID == "" {
		return Event{}, fmt.Errorf("event monitor id is empty: %w", ErrValidation)
	}
	if !validKind(kind) {
		return Event{}, fmt.Errorf("event kind %q: %w", kind, ErrValidation)
	}
	return Event{monitorID: monitorID, kind: kind, start: start, ongoing: true}, nil
}

// NewClosedEvent creates an already-finished event. The end may equal the
// start (a zero-length record) but may not precede it.
func NewClosedEvent(monitorID string, kind EventKind, start, end time.Time) (Event, error) {
	ev, err := NewOngoingEvent(monitorID, kind, start)
	if err != nil {
		return Event{}, err
	}
	if end.Before(start) {
		return Event{}, fmt.Errorf("event end %s before start %s: %w",
			end.Format(time.RFC3339), start.Format(time.RFC3339), ErrValidation)
	}
	ev.end = end
	ev.ongoing = false
	return ev, nil
}

func (e Event) MonitorID() string { return e.monitorID }
func (e Event) Kind() EventKind   { return e.kind }
func (e Event) Start() time.Time  { return e.start }

// Ongoing reports whether the event is still open.
func (e Event) Ongoing() bool { return e.ongoing }

// End returns the close time. ok is false while the event is ongoing.
func (e Event) End() (end time.Time, ok bool) {
	if e.ongoing {
		return time.Time{}, false
	}
	return e.end, true
}

// Close finishes an ongoing event at the given instant.
func (e *Event) Close(at time.Time) error {
	if !e.ongoing {
		return fmt.Errorf("close of already closed event: %w", ErrInvalidState)
	}
	if at.Before(e.start) {
		return fmt.Errorf("close at %s before start %s: %w",
			at.Format(time.RFC3339), e.start.Format(time.RFC3339), ErrValidation)
	}
	e.end = at
	e.ongoing = false
	return nil
}

// DurationMinutes is the event length in minutes. Ongoing events are measured
// up to now.
func (e Event) DurationMinutes(now time.Time) float64 {
	end := e.end
	if e.ongoing {
		end = now
	}
	return end.Sub(e.start).Minutes()
}

// contains reports whether t falls strictly inside the event's interval,
// with no upper bound for an ongoing event. The boundary instants belong to
// neither side, mirroring how the feed stamps back-to-back records.
func (e Event) contains(t time.Time) bool {
	if !t.After(e.start) {
		return false
	}
	if e.ongoing {
		return true
	}
	return t.Before(e.end)
}
