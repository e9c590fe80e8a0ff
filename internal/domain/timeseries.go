package domain

import (
	"log/slog"
	"time"
)

// SamplePoint is one quarter-hour sample of fleet-wide activity counts.
type SamplePoint struct {
	Time                time.Time `json:"time"`
	Online              int       `json:"online"`
	Discharging         int       `json:"discharging"`
	RecentlyDischarging int       `json:"recently_discharging"`
}

// TimeSeries reconstructs how many monitors were online, discharging and
// recently discharging at each quarter hour from since until now. Monitors
// are assumed offline before their first record; monitors with no loaded
// history are skipped with a diagnostic.
func (f *Fleet) TimeSeries(since time.Time, logger *slog.Logger) []SamplePoint {
	times := SampleTimes(since, clock.Now())
	points := make([]SamplePoint, len(times))
	for i, t := range times {
		points[i].Time = t
	}

	for _, m := range f.Monitors() {
		online, active, recent, err := m.StatusMasks(times)
		if err != nil {
			logger.Warn("monitor excluded from time series",
				"operator", f.operator,
				"monitor", m.ID(),
				"error", err,
			)
			continue
		}
		for i := range points {
			if online[i] {
				points[i].Online++
			}
			if active[i] {
				points[i].Discharging++
			}
			if recent[i] {
				points[i].RecentlyDischarging++
			}
		}
	}
	return points
}
