package domain

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSource is an in-memory MonitorSource for fleet tests.
type fakeSource struct {
	monitors     func() []*Monitor
	histories    map[string][]Event
	historyErrs  map[string]error
	fetchErr     error
	historyCalls int
}

func (s *fakeSource) FetchActiveMonitors(context.Context) ([]*Monitor, error) {
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	return s.monitors(), nil
}

func (s *fakeSource) FetchMonitorHistory(_ context.Context, id string) ([]Event, error) {
	s.historyCalls++
	if err := s.historyErrs[id]; err != nil {
		return nil, err
	}
	return s.histories[id], nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testMonitor(t *testing.T, id string, kind EventKind, recent bool) *Monitor {
	t.Helper()
	m, err := NewMonitor(id, "Site "+id, 400000, 200000, "")
	require.NoError(t, err)
	ev, err := NewOngoingEvent(id, kind, time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.NoError(t, m.SetCurrentEvent(ev))
	m.SetDischargedInLast48h(recent)
	return m
}

func TestFleetRefresh(t *testing.T) {
	fake := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	SetClock(fake)
	t.Cleanup(func() { SetClock(nil) })

	src := &fakeSource{monitors: func() []*Monitor {
		return []*Monitor{
			testMonitor(t, "b", KindNotDischarging, false),
			testMonitor(t, "a", KindDischarging, true),
		}
	}}
	fleet, err := NewFleet("thames", src, nil)
	require.NoError(t, err)
	assert.True(t, fleet.RefreshedAt().IsZero())

	require.NoError(t, fleet.Refresh(context.Background()))
	assert.Equal(t, fake.Now(), fleet.RefreshedAt())

	monitors := fleet.Monitors()
	require.Len(t, monitors, 2)
	assert.Equal(t, "a", monitors[0].ID(), "monitors sorted by ID")
	assert.Equal(t, "b", monitors[1].ID())

	_, ok := fleet.Monitor("a")
	assert.True(t, ok)
	_, ok = fleet.Monitor("z")
	assert.False(t, ok)
}

func TestFleetRefreshError(t *testing.T) {
	src := &fakeSource{fetchErr: errors.New("edm down")}
	fleet, err := NewFleet("thames", src, nil)
	require.NoError(t, err)

	err = fleet.Refresh(context.Background())
	assert.ErrorContains(t, err, "edm down")
	assert.True(t, fleet.RefreshedAt().IsZero())
}

func TestFleetDerivedSubsets(t *testing.T) {
	src := &fakeSource{monitors: func() []*Monitor {
		return []*Monitor{
			testMonitor(t, "discharging", KindDischarging, true),
			testMonitor(t, "quiet-recent", KindNotDischarging, true),
			testMonitor(t, "quiet", KindNotDischarging, false),
			testMonitor(t, "offline", KindOffline, false),
		}
	}}
	fleet, err := NewFleet("thames", src, nil)
	require.NoError(t, err)
	require.NoError(t, fleet.Refresh(context.Background()))

	discharging := fleet.Discharging()
	require.Len(t, discharging, 1)
	assert.Equal(t, "discharging", discharging[0].ID())

	recent := fleet.RecentlyDischarging()
	require.Len(t, recent, 2)
	assert.Equal(t, "discharging", recent[0].ID())
	assert.Equal(t, "quiet-recent", recent[1].ID())
}

func TestFleetLoadAllHistories(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	src := &fakeSource{
		monitors: func() []*Monitor {
			return []*Monitor{
				testMonitor(t, "a", KindNotDischarging, false),
				testMonitor(t, "b", KindNotDischarging, false),
			}
		},
		histories: map[string][]Event{
			"a": {mustClosed(t, "a", KindDischarging, base, base.Add(time.Hour))},
		},
		historyErrs: map[string]error{
			"b": errors.New("timeout"),
		},
	}
	fleet, err := NewFleet("thames", src, nil)
	require.NoError(t, err)
	require.NoError(t, fleet.Refresh(context.Background()))

	require.NoError(t, fleet.LoadAllHistories(context.Background(), discardLogger()))
	assert.False(t, fleet.HistoryRefreshedAt().IsZero())

	a, _ := fleet.Monitor("a")
	assert.True(t, a.HasHistory())
	b, _ := fleet.Monitor("b")
	assert.False(t, b.HasHistory(), "failed fetch skipped, not fatal")

	// A second bulk load replaces loaded histories rather than skipping them.
	calls := src.historyCalls
	require.NoError(t, fleet.LoadAllHistories(context.Background(), discardLogger()))
	assert.Equal(t, calls+2, src.historyCalls, "every monitor is refetched")
}

func TestFleetRefreshCarriesHistoriesOver(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	src := &fakeSource{
		monitors: func() []*Monitor {
			return []*Monitor{testMonitor(t, "a", KindNotDischarging, false)}
		},
		histories: map[string][]Event{
			"a": {mustClosed(t, "a", KindDischarging, base, base.Add(time.Hour))},
		},
	}
	fleet, err := NewFleet("thames", src, nil)
	require.NoError(t, err)
	require.NoError(t, fleet.Refresh(context.Background()))
	require.NoError(t, fleet.LoadAllHistories(context.Background(), discardLogger()))

	require.NoError(t, fleet.Refresh(context.Background()))

	a, ok := fleet.Monitor("a")
	require.True(t, ok)
	assert.True(t, a.HasHistory(), "history survives a monitor refresh")
}

func TestFleetGridOpensOnce(t *testing.T) {
	opens := 0
	opener := func() (FlowGrid, error) {
		opens++
		return nil, fmt.Errorf("raster missing")
	}
	src := &fakeSource{monitors: func() []*Monitor { return nil }}
	fleet, err := NewFleet("thames", src, opener)
	require.NoError(t, err)

	_, err1 := fleet.Grid()
	_, err2 := fleet.Grid()
	assert.Error(t, err1)
	assert.Error(t, err2)
	assert.Equal(t, 1, opens, "a failed open is permanent")
}

func TestFleetGridMissingOpener(t *testing.T) {
	src := &fakeSource{monitors: func() []*Monitor { return nil }}
	fleet, err := NewFleet("thames", src, nil)
	require.NoError(t, err)

	_, err = fleet.Grid()
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestNewFleetValidation(t *testing.T) {
	_, err := NewFleet("", &fakeSource{}, nil)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = NewFleet("thames", nil, nil)
	assert.ErrorIs(t, err, ErrValidation)
}
