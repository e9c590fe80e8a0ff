package domain

import "context"

// MonitorSource fetches monitor data from an operator's EDM feed. One
// implementation exists per operator API; the fleet is constructed with the
// right one and never branches on operator identity itself.
type MonitorSource interface {
	// FetchActiveMonitors returns the operator's currently installed
	// monitors with their ongoing current event and, where published, the
	// 48-hour discharge flag. Histories are not loaded.
	FetchActiveMonitors(ctx context.Context) ([]*Monitor, error)

	// FetchMonitorHistory returns the full event record for one monitor,
	// in any order.
	FetchMonitorHistory(ctx context.Context, monitorID string) ([]Event, error)
}

// GridOpener lazily constructs the operator's flow grid. Loading a national
// raster is expensive, so the fleet defers it until impact is first queried.
type GridOpener func() (FlowGrid, error)
