package domain

import (
	"fmt"
	"time"
)

const (
	// sampleStep is the grid spacing for reconstructed status series.
	sampleStep = 15 * time.Minute

	// recentWindow is how long a monitor stays "recently active" after a
	// discharge ends.
	recentWindow = 48 * time.Hour
)

// RoundDown15 rounds t down to the nearest quarter hour.
func RoundDown15(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute()/15*15, 0, 0, t.Location())
}

// RoundUp15 rounds t up to the nearest quarter hour. Instants already on a
// quarter-hour boundary are unchanged.
func RoundUp15(t time.Time) time.Time {
	down := RoundDown15(t)
	if down.Equal(t) {
		return down
	}
	return down.Add(sampleStep)
}

// SampleTimes builds the 15-minute grid from since (rounded down) up to and
// including the last quarter hour at or before now.
func SampleTimes(since, now time.Time) []time.Time {
	var times []time.Time
	for t := RoundDown15(since); !t.After(now); t = t.Add(sampleStep) {
		times = append(times, t)
	}
	return times
}

// gridIndex locates t on the sample grid. Callers clamp the result.
func gridIndex(times []time.Time, t time.Time) int {
	return int(t.Sub(times[0]) / sampleStep)
}

// setRange stores v in mask[from:to), clamped to the mask bounds.
func setRange(mask []bool, from, to int, v bool) {
	if from < 0 {
		from = 0
	}
	if to > len(mask) {
		to = len(mask)
	}
	for i := from; i < to; i++ {
		mask[i] = v
	}
}

// StatusMasks reconstructs the monitor's state on the given 15-minute grid.
// Three parallel masks come back: online (reporting), active (discharging)
// and recent (discharging now or within the last 48 hours).
//
// Record starts round down and ends round up, so a spill always covers every
// sample it touches. The walk runs newest record first and stops at the
// first record starting before the grid; online is seeded from the oldest
// record's start. Offline and Discharging write disjoint masks, so a sample
// can be active while offline when overlapping records say so.
func (m *Monitor) StatusMasks(times []time.Time) (online, active, recent []bool, err error) {
	if !m.hasHistory {
		return nil, nil, nil, fmt.Errorf("history for monitor %q not loaded: %w", m.id, ErrInvalidState)
	}
	n := len(times)
	online = make([]bool, n)
	active = make([]bool, n)
	recent = make([]bool, n)
	if len(m.history) == 0 || n == 0 {
		return online, active, recent, nil
	}

	firstStart := RoundDown15(m.history[0].Start())
	if firstStart.Before(times[0]) {
		setRange(online, 0, n, true)
	} else {
		setRange(online, gridIndex(times, firstStart), n, true)
	}

	for i := len(m.history) - 1; i >= 0; i-- {
		ev := m.history[i]
		if ev.Kind() == KindNotDischarging {
			continue
		}
		startRound := RoundDown15(ev.Start())
		if startRound.Before(times[0]) {
			// Everything older starts even earlier.
			break
		}
		si := gridIndex(times, startRound)

		if ev.Ongoing() {
			if ev.Kind() == KindDischarging {
				setRange(active, si, n, true)
				setRange(recent, si, n, true)
			} else {
				setRange(online, si, n, false)
			}
			continue
		}

		end, _ := ev.End()
		endRound := RoundUp15(end)
		ei := gridIndex(times, endRound)
		if ev.Kind() == KindDischarging {
			setRange(active, si, ei, true)
			recentEnd := endRound.Add(recentWindow)
			if recentEnd.After(times[n-1]) {
				setRange(recent, si, n, true)
			} else {
				setRange(recent, si, gridIndex(times, recentEnd), true)
			}
		} else {
			setRange(online, si, ei, false)
		}
	}
	return online, active, recent, nil
}
