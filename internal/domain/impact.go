package domain

import (
	"fmt"
	"log/slog"
	"sort"
)

// channelThreshold is the accumulated-weight cutoff for drawing channel
// geometry. With unit source weights this selects every cell with at least
// one discharging source upstream.
const channelThreshold = 0.9

// Coordinate is an easting/northing pair in the grid's reference system.
type Coordinate struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Polyline is an ordered run of coordinates along a flow path.
type Polyline []Coordinate

// FlowGrid is the hydrological capability the impact calculations consume.
// Implementations map coordinates onto raster nodes and propagate weights
// downstream along D8 flow directions.
type FlowGrid interface {
	// CoordToNode maps a coordinate to its node index. Coordinates outside
	// the raster extent return an error.
	CoordToNode(x, y float64) (int, error)

	// NodeToCoord returns the cell-centre coordinate of a node.
	NodeToCoord(node int) (x, y float64)

	// Accumulate sums weights downstream: the result at each node is its
	// own weight plus that of every node draining through it.
	Accumulate(weights []float64) []float64

	// Profile returns the flow path from node to the grid edge or sink,
	// starting with node itself.
	Profile(node int) []int

	// ChannelSegments extracts polylines along flow paths whose
	// accumulated weight meets the threshold.
	ChannelSegments(weights []float64, threshold float64) []Polyline

	// Shape returns the raster dimensions.
	Shape() (rows, cols int)

	// CellSize returns the geotransform cell size. dy is negative for the
	// usual north-up rasters.
	CellSize() (dx, dy float64)
}

// ImpactedNode describes one grid cell downstream of at least one
// discharging source.
type ImpactedNode struct {
	Node            int      `json:"node"`
	X               float64  `json:"x"`
	Y               float64  `json:"y"`
	UpstreamSources float64  `json:"upstream_sources"`
	SourcesPerKm2   float64  `json:"sources_per_km2"`
	Monitors        []string `json:"monitors"`
}

// sources picks the monitor set that seeds the propagation.
func (f *Fleet) sources(includeRecent bool) []*Monitor {
	if includeRecent {
		return f.RecentlyDischarging()
	}
	return f.Discharging()
}

// sourceNodes maps source monitors onto grid nodes. Monitors sited outside
// the raster extent are skipped with a diagnostic rather than failing the
// whole computation.
func sourceNodes(grid FlowGrid, monitors []*Monitor, operator string, logger *slog.Logger) map[int][]*Monitor {
	nodes := make(map[int][]*Monitor)
	for _, m := range monitors {
		node, err := grid.CoordToNode(m.X(), m.Y())
		if err != nil {
			logger.Warn("monitor outside flow grid extent",
				"operator", operator,
				"monitor", m.ID(),
				"x", m.X(),
				"y", m.Y(),
				"error", err,
			)
			continue
		}
		nodes[node] = append(nodes[node], m)
	}
	return nodes
}

// DownstreamImpact propagates the current discharging sources (or, with
// includeRecent, the recently-discharging set) down the flow grid. The
// result holds, per node, the count of upstream sources. An empty source set
// yields an all-zero field.
func (f *Fleet) DownstreamImpact(includeRecent bool, logger *slog.Logger) ([]float64, error) {
	grid, err := f.Grid()
	if err != nil {
		return nil, fmt.Errorf("opening flow grid: %w", err)
	}
	rows, cols := grid.Shape()
	weights := make([]float64, rows*cols)
	for node := range sourceNodes(grid, f.sources(includeRecent), f.operator, logger) {
		weights[node] = 1
	}
	return grid.Accumulate(weights), nil
}

// ImpactedNodes details every node with at least one upstream source:
// location, source count, sources per square kilometre of drained area, and
// the names of the contributing monitors. Nodes come back in ascending node
// order.
func (f *Fleet) ImpactedNodes(includeRecent bool, logger *slog.Logger) ([]ImpactedNode, error) {
	grid, err := f.Grid()
	if err != nil {
		return nil, fmt.Errorf("opening flow grid: %w", err)
	}
	impact, err := f.DownstreamImpact(includeRecent, logger)
	if err != nil {
		return nil, err
	}

	dx, dy := grid.CellSize()
	cellAreaKm2 := dx * -dy / 1e6
	rows, cols := grid.Shape()
	areas := make([]float64, rows*cols)
	for i := range areas {
		areas[i] = cellAreaKm2
	}
	drainage := grid.Accumulate(areas)

	contributors := make(map[int][]string)
	for node, monitors := range sourceNodes(grid, f.sources(includeRecent), f.operator, logger) {
		path := grid.Profile(node)
		for _, m := range monitors {
			for _, downstream := range path {
				contributors[downstream] = append(contributors[downstream], m.Name())
			}
		}
	}

	var out []ImpactedNode
	for node, count := range impact {
		if count <= 0 {
			continue
		}
		x, y := grid.NodeToCoord(node)
		names := contributors[node]
		sort.Strings(names)
		out = append(out, ImpactedNode{
			Node:            node,
			X:               x,
			Y:               y,
			UpstreamSources: count,
			SourcesPerKm2:   count / drainage[node],
			Monitors:        names,
		})
	}
	return out, nil
}

// ChannelGeometry extracts the polylines of every flow path carrying
// discharge, for rendering the affected channel network.
func (f *Fleet) ChannelGeometry(includeRecent bool, logger *slog.Logger) ([]Polyline, error) {
	grid, err := f.Grid()
	if err != nil {
		return nil, fmt.Errorf("opening flow grid: %w", err)
	}
	impact, err := f.DownstreamImpact(includeRecent, logger)
	if err != nil {
		return nil, err
	}
	return grid.ChannelSegments(impact, channelThreshold), nil
}
