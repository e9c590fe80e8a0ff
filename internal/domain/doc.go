// Package domain models combined sewer overflow (CSO) monitoring data.
//
// # Data Source
//
// Water companies publish Event Duration Monitoring (EDM) feeds for the
// sewer overflow monitors on their networks. Each monitor reports a stream
// of timestamped records of three kinds:
//
//	"Discharging"      - untreated sewage is spilling from the overflow
//	"Offline"          - the monitor is not reporting
//	"Not Discharging"  - the monitor is online and the overflow is quiet
//
// A record covers a half-open interval [start, end). The newest record per
// monitor is usually ongoing (no end yet); it is closed the moment a record
// of a different kind arrives. Feeds are polled by the adapter layer; the
// domain only sees validated [Event] values in oldest-first order.
//
// # Time Conventions
//
// All reconstruction happens on a 15-minute grid. Interval starts round down
// to the nearest quarter hour and ends round up, so a spill that ran
// 09:07-09:21 occupies the 09:00, 09:15 and 09:30 samples. A monitor counts
// as "recently active" for 48 hours after a discharge ends.
//
// Duration arithmetic never reads the wall clock implicitly: ongoing events
// are measured against an explicit now (or the package clock at the fleet
// boundary), so replays and backfills stay deterministic.
//
// # Downstream Impact
//
// Monitors sit on a hydrological flow grid (one node per raster cell, each
// node draining to at most one downstream node). Marking the cells of
// discharging monitors with 1.0 and accumulating along flow paths yields,
// per cell, the count of upstream sources currently discharging. Dividing by
// the accumulated drainage area gives sources per square kilometre. The grid
// itself is a capability ([FlowGrid]) supplied by an adapter; the domain
// never routes water itself.
package domain
