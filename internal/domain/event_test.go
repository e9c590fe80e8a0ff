package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClosedEvent(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		monitorID string
		kind      EventKind
		start     time.Time
		end       time.Time
		wantErr   error
	}{
		{
			name:      "valid interval",
			monitorID: "mon-1",
			kind:      KindDischarging,
			start:     start,
			end:       start.Add(45 * time.Minute),
		},
		{
			name:      "zero length interval",
			monitorID: "mon-1",
			kind:      KindOffline,
			start:     start,
			end:       start,
		},
		{
			name:      "end before start",
			monitorID: "mon-1",
			kind:      KindDischarging,
			start:     start,
			end:       start.Add(-time.Minute),
			wantErr:   ErrValidation,
		},
		{
			name:      "empty monitor id",
			monitorID: "",
			kind:      KindDischarging,
			start:     start,
			end:       start.Add(time.Hour),
			wantErr:   ErrValidation,
		},
		{
			name:      "unknown kind",
			monitorID: "mon-1",
			kind:      EventKind("Exploding"),
			start:     start,
			end:       start.Add(time.Hour),
			wantErr:   ErrValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := NewClosedEvent(tt.monitorID, tt.kind, tt.start, tt.end)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.monitorID, ev.MonitorID())
			assert.Equal(t, tt.kind, ev.Kind())
			assert.False(t, ev.Ongoing())
			end, ok := ev.End()
			assert.True(t, ok)
			assert.Equal(t, tt.end, end)
		})
	}
}

func TestEventCloseOnce(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	ev, err := NewOngoingEvent("mon-1", KindDischarging, start)
	require.NoError(t, err)
	assert.True(t, ev.Ongoing())
	_, ok := ev.End()
	assert.False(t, ok)

	require.NoError(t, ev.Close(start.Add(30*time.Minute)))
	assert.False(t, ev.Ongoing())
	end, ok := ev.End()
	assert.True(t, ok)
	assert.Equal(t, start.Add(30*time.Minute), end)

	err = ev.Close(start.Add(time.Hour))
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestEventCloseBeforeStart(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	ev, err := NewOngoingEvent("mon-1", KindDischarging, start)
	require.NoError(t, err)

	err = ev.Close(start.Add(-time.Minute))
	assert.ErrorIs(t, err, ErrValidation)
	assert.True(t, ev.Ongoing(), "failed close must not finish the event")
}

func TestEventDurationMinutes(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	now := start.Add(90 * time.Minute)

	closed, err := NewClosedEvent("mon-1", KindDischarging, start, start.Add(47*time.Minute))
	require.NoError(t, err)
	assert.InDelta(t, 47, closed.DurationMinutes(now), 1e-9)

	ongoing, err := NewOngoingEvent("mon-1", KindDischarging, start)
	require.NoError(t, err)
	assert.InDelta(t, 90, ongoing.DurationMinutes(now), 1e-9)
}
