package domain

import (
	"fmt"
	"sort"
	"time"
)

// recordsBegan stands in for "since forever". EDM feeds did not exist before
// the millennium, so clipping against it never discards real data.
var recordsBegan = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

// Monitor is a single sewer overflow monitor: identity, location on the
// national grid, the latest ongoing event, and (once loaded) its full event
// history in oldest-first order.
type Monitor struct {
	id          string
	name        string
	x, y        float64
	watercourse string

	current    Event
	hasCurrent bool

	// Feed-supplied 48h flag, tri-state: some operators omit it.
	recent48h    bool
	recent48hSet bool

	history    []Event
	hasHistory bool
}

// NewMonitor creates a monitor. x and y are the easting/northing of the
// overflow on the flow grid's coordinate reference system.
func NewMonitor(id, name string, x, y float64, watercourse string) (*Monitor, error) {
	if id == "" {
		return nil, fmt.Errorf("monitor id is empty: %w", ErrValidation)
	}
	return &Monitor{id: id, name: name, x: x, y: y, watercourse: watercourse}, nil
}

func (m *Monitor) ID() string          { return m.id }
func (m *Monitor) Name() string        { return m.name }
func (m *Monitor) X() float64          { return m.x }
func (m *Monitor) Y() float64          { return m.y }
func (m *Monitor) Watercourse() string { return m.watercourse }

// SetCurrentEvent records the monitor's present state. Only an ongoing event
// for this monitor is accepted.
func (m *Monitor) SetCurrentEvent(ev Event) error {
	if ev.MonitorID() != m.id {
		return fmt.Errorf("event for monitor %q on monitor %q: %w", ev.MonitorID(), m.id, ErrValidation)
	}
	if !ev.Ongoing() {
		return fmt.Errorf("current event must be ongoing: %w", ErrValidation)
	}
	m.current = ev
	m.hasCurrent = true
	return nil
}

// CurrentEvent returns the present state of the monitor.
func (m *Monitor) CurrentEvent() (Event, error) {
	if !m.hasCurrent {
		return Event{}, fmt.Errorf("monitor %q has no current event: %w", m.id, ErrInvalidState)
	}
	return m.current, nil
}

// SetDischargedInLast48h records the feed's 48-hour flag.
func (m *Monitor) SetDischargedInLast48h(v bool) {
	m.recent48h = v
	m.recent48hSet = true
}

// DischargedInLast48h reports the feed's 48-hour flag. known is false when
// the operator does not publish one.
func (m *Monitor) DischargedInLast48h() (discharged, known bool) {
	return m.recent48h, m.recent48hSet
}

// SetHistory loads the monitor's full event record, exactly once. Events are
// sorted oldest first regardless of input order. The newest event may be
// ongoing; all others must be closed.
func (m *Monitor) SetHistory(events []Event) error {
	if m.hasHistory {
		return fmt.Errorf("history for monitor %q already set: %w", m.id, ErrInvalidState)
	}
	return m.storeHistory(events)
}

// storeHistory validates and stores a record, replacing any previous one.
// The fleet's bulk loader uses this to refresh stale histories; external
// callers go through the set-once SetHistory.
func (m *Monitor) storeHistory(events []Event) error {
	for _, ev := range events {
		if ev.MonitorID() != m.id {
			return fmt.Errorf("history event for monitor %q on monitor %q: %w",
				ev.MonitorID(), m.id, ErrValidation)
		}
	}
	sorted := make([]Event, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Start().Before(sorted[j].Start())
	})
	for i, ev := range sorted {
		if ev.Ongoing() && i != len(sorted)-1 {
			return fmt.Errorf("ongoing event %q is not the newest record: %w", m.id, ErrValidation)
		}
	}
	m.history = sorted
	m.hasHistory = true
	return nil
}

// HasHistory reports whether the full event record has been loaded.
func (m *Monitor) HasHistory() bool { return m.hasHistory }

// History returns the loaded event record, oldest first.
func (m *Monitor) History() ([]Event, error) {
	if !m.hasHistory {
		return nil, fmt.Errorf("history for monitor %q not loaded: %w", m.id, ErrInvalidState)
	}
	out := make([]Event, len(m.history))
	copy(out, m.history)
	return out, nil
}

// EventAt returns the event covering the instant t. When records overlap the
// newest matching record wins. ok is false for gaps.
func (m *Monitor) EventAt(t time.Time) (ev Event, ok bool, err error) {
	if !m.hasHistory {
		return Event{}, false, fmt.Errorf("history for monitor %q not loaded: %w", m.id, ErrInvalidState)
	}
	for _, candidate := range m.history {
		if candidate.contains(t) {
			ev, ok = candidate, true
		}
	}
	return ev, ok, nil
}

// TotalDischarge sums discharge minutes over (since, now]. A zero since means
// the whole record. Events are clipped at the window edges; ongoing events
// are measured up to now.
func (m *Monitor) TotalDischarge(since, now time.Time) (float64, error) {
	if !m.hasHistory {
		return 0, fmt.Errorf("history for monitor %q not loaded: %w", m.id, ErrInvalidState)
	}
	if since.IsZero() {
		since = recordsBegan
	}
	var total time.Duration
	for _, ev := range m.history {
		if ev.Kind() != KindDischarging {
			continue
		}
		end, closed := ev.End()
		switch {
		case !closed && ev.Start().Before(since):
			total += now.Sub(since)
		case !closed:
			total += now.Sub(ev.Start())
		case !end.After(since):
			// Fully before the window.
		case ev.Start().Before(since):
			total += end.Sub(since)
		default:
			total += end.Sub(ev.Start())
		}
	}
	return total.Minutes(), nil
}

// TotalDischargeLast6Months sums discharge minutes over the 183 days before now.
func (m *Monitor) TotalDischargeLast6Months(now time.Time) (float64, error) {
	return m.TotalDischarge(now.AddDate(0, 0, -183), now)
}

// TotalDischargeLast12Months sums discharge minutes over the 365 days before now.
func (m *Monitor) TotalDischargeLast12Months(now time.Time) (float64, error) {
	return m.TotalDischarge(now.AddDate(0, 0, -365), now)
}

// TotalDischargeSinceStartOfYear sums discharge minutes since 1 January of
// now's year.
func (m *Monitor) TotalDischargeSinceStartOfYear(now time.Time) (float64, error) {
	start := time.Date(now.Year(), 1, 1, 0, 0, 0, 0, now.Location())
	return m.TotalDischarge(start, now)
}
