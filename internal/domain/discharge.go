package domain

import (
	"fmt"
	"log/slog"
	"sort"
	"time"
)

// DischargeRow is one discharge event flattened for export: monitor
// identity, location, interval and duration. EndTime is nil while the
// discharge is ongoing.
type DischargeRow struct {
	MonitorID       string     `json:"monitor_id"`
	MonitorName     string     `json:"monitor_name"`
	X               float64    `json:"x"`
	Y               float64    `json:"y"`
	Watercourse     string     `json:"watercourse,omitempty"`
	StartTime       time.Time  `json:"start_time"`
	EndTime         *time.Time `json:"end_time,omitempty"`
	DurationMinutes float64    `json:"duration_minutes"`
	Ongoing         bool       `json:"ongoing"`
}

// DischargeLog flattens every discharge event across the fleet into rows
// sorted newest start first. Histories must have been bulk loaded; monitors
// still missing one are skipped with a diagnostic.
func (f *Fleet) DischargeLog(logger *slog.Logger) ([]DischargeRow, error) {
	if f.HistoryRefreshedAt().IsZero() {
		return nil, fmt.Errorf("histories for %s not loaded: %w", f.operator, ErrInvalidState)
	}
	now := clock.Now()
	var rows []DischargeRow
	for _, m := range f.Monitors() {
		history, err := m.History()
		if err != nil {
			logger.Warn("monitor excluded from discharge log",
				"operator", f.operator,
				"monitor", m.ID(),
				"error", err,
			)
			continue
		}
		for _, ev := range history {
			if ev.Kind() != KindDischarging {
				continue
			}
			row := DischargeRow{
				MonitorID:       m.ID(),
				MonitorName:     m.Name(),
				X:               m.X(),
				Y:               m.Y(),
				Watercourse:     m.Watercourse(),
				StartTime:       ev.Start(),
				DurationMinutes: ev.DurationMinutes(now),
				Ongoing:         ev.Ongoing(),
			}
			if end, ok := ev.End(); ok {
				row.EndTime = &end
			}
			rows = append(rows, row)
		}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].StartTime.After(rows[j].StartTime)
	})
	return rows, nil
}
