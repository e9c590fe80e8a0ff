package domain

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Fleet is one operator's monitor network: the set of active monitors, when
// they were last refreshed, and the lazily opened flow grid. Discharging and
// recently-discharging subsets are always derived from current state, never
// stored.
//
// A refresh loop mutates the fleet while HTTP handlers read it, hence the
// RWMutex. The grid is built at most once for the fleet's lifetime.
type Fleet struct {
	operator string
	source   MonitorSource
	openGrid GridOpener

	mu                 sync.RWMutex
	monitors           map[string]*Monitor
	refreshedAt        time.Time
	historyRefreshedAt time.Time

	gridOnce sync.Once
	grid     FlowGrid
	gridErr  error
}

// NewFleet creates a fleet for one operator.
func NewFleet(operator string, source MonitorSource, openGrid GridOpener) (*Fleet, error) {
	if operator == "" {
		return nil, fmt.Errorf("fleet operator is empty: %w", ErrValidation)
	}
	if source == nil {
		return nil, fmt.Errorf("fleet monitor source is nil: %w", ErrValidation)
	}
	return &Fleet{operator: operator, source: source, openGrid: openGrid}, nil
}

func (f *Fleet) Operator() string { return f.operator }

// Refresh replaces the active monitor set from the source and stamps the
// refresh time. Histories loaded on the old set carry over to monitors that
// are still active, so read endpoints keep working between bulk loads.
func (f *Fleet) Refresh(ctx context.Context) error {
	monitors, err := f.source.FetchActiveMonitors(ctx)
	if err != nil {
		return fmt.Errorf("refreshing %s monitors: %w", f.operator, err)
	}
	byID := make(map[string]*Monitor, len(monitors))
	for _, m := range monitors {
		byID[m.ID()] = m
	}
	f.mu.Lock()
	for id, m := range byID {
		if old, ok := f.monitors[id]; ok && old.hasHistory && !m.hasHistory {
			m.history = old.history
			m.hasHistory = true
		}
	}
	f.monitors = byID
	f.refreshedAt = clock.Now()
	f.mu.Unlock()
	return nil
}

// LoadAllHistories fetches the event record for every active monitor,
// replacing whatever was loaded before. Individual fetch failures are logged
// and skipped so one dead endpoint cannot block the rest of the fleet.
func (f *Fleet) LoadAllHistories(ctx context.Context, logger *slog.Logger) error {
	for _, m := range f.Monitors() {
		events, err := f.source.FetchMonitorHistory(ctx, m.ID())
		if err != nil {
			logger.Warn("history fetch failed",
				"operator", f.operator,
				"monitor", m.ID(),
				"error", err,
			)
			continue
		}
		if err := m.storeHistory(events); err != nil {
			logger.Warn("history rejected",
				"operator", f.operator,
				"monitor", m.ID(),
				"error", err,
			)
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	f.mu.Lock()
	f.historyRefreshedAt = clock.Now()
	f.mu.Unlock()
	return nil
}

// RefreshedAt is when the active monitor set was last replaced.
func (f *Fleet) RefreshedAt() time.Time {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.refreshedAt
}

// HistoryRefreshedAt is when histories were last bulk loaded.
func (f *Fleet) HistoryRefreshedAt() time.Time {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.historyRefreshedAt
}

// Monitors returns the active monitors sorted by ID.
func (f *Fleet) Monitors() []*Monitor {
	f.mu.RLock()
	out := make([]*Monitor, 0, len(f.monitors))
	for _, m := range f.monitors {
		out = append(out, m)
	}
	f.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// Monitor looks up one monitor by ID.
func (f *Fleet) Monitor(id string) (*Monitor, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	m, ok := f.monitors[id]
	return m, ok
}

// Discharging returns the monitors whose current event is a discharge.
func (f *Fleet) Discharging() []*Monitor {
	var out []*Monitor
	for _, m := range f.Monitors() {
		ev, err := m.CurrentEvent()
		if err == nil && ev.Kind() == KindDischarging {
			out = append(out, m)
		}
	}
	return out
}

// RecentlyDischarging returns the monitors whose feed flag says they
// discharged in the last 48 hours. Monitors without a flag are excluded.
func (f *Fleet) RecentlyDischarging() []*Monitor {
	var out []*Monitor
	for _, m := range f.Monitors() {
		if discharged, known := m.DischargedInLast48h(); known && discharged {
			out = append(out, m)
		}
	}
	return out
}

// Grid returns the operator's flow grid, opening it on first use. The open
// happens at most once; a failed open is permanent for this fleet.
func (f *Fleet) Grid() (FlowGrid, error) {
	f.gridOnce.Do(func() {
		if f.openGrid == nil {
			f.gridErr = fmt.Errorf("fleet %s has no flow grid: %w", f.operator, ErrInvalidState)
			return
		}
		f.grid, f.gridErr = f.openGrid()
	})
	return f.grid, f.gridErr
}
