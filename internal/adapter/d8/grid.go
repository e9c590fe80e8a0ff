// Package d8 implements domain.FlowGrid from a precomputed D8
// flow-direction raster in ESRI ASCII grid format.
//
// Each cell holds an ESRI D8 code naming the neighbour it drains to
// (1=E, 2=SE, 4=S, 8=SW, 16=W, 32=NW, 64=N, 128=NE); 0 and NODATA cells are
// sinks. Nodes are numbered row-major from the top-left corner.
package d8

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/couchcryptid/cso-impact-service/internal/domain"
)

// Grid is a loaded D8 raster with its drainage topology precomputed.
type Grid struct {
	rows, cols int
	cellSize   float64
	xll, yll   float64

	// receiver[n] is the node n drains to, -1 for sinks.
	receiver []int
	// order lists nodes donors-first, so one pass accumulates everything.
	order []int
}

// Open loads a D8 raster from an ESRI ASCII grid file.
func Open(path string) (*Grid, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening flow grid: %w", err)
	}
	defer f.Close()
	g, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parsing flow grid %s: %w", path, err)
	}
	return g, nil
}

// Parse reads an ESRI ASCII D8 raster.
func Parse(r io.Reader) (*Grid, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
	scanner.Split(bufio.ScanWords)

	next := func() (string, error) {
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return "", err
			}
			return "", io.ErrUnexpectedEOF
		}
		return scanner.Text(), nil
	}

	header := map[string]float64{}
	nodata := -9999.0
	var firstCell string
	for {
		tok, err := next()
		if err != nil {
			return nil, fmt.Errorf("reading header: %w", err)
		}
		key := strings.ToLower(tok)
		switch key {
		case "ncols", "nrows", "xllcorner", "yllcorner", "cellsize", "nodata_value":
			val, err := next()
			if err != nil {
				return nil, fmt.Errorf("reading header value for %s: %w", key, err)
			}
			f, err := strconv.ParseFloat(val, 64)
			if err != nil {
				return nil, fmt.Errorf("header %s: %w", key, err)
			}
			if key == "nodata_value" {
				nodata = f
			} else {
				header[key] = f
			}
		default:
			// First data cell.
			firstCell = tok
		}
		if firstCell != "" {
			break
		}
	}

	for _, required := range []string{"ncols", "nrows", "xllcorner", "yllcorner", "cellsize"} {
		if _, ok := header[required]; !ok {
			return nil, fmt.Errorf("header missing %s", required)
		}
	}

	g := &Grid{
		rows:     int(header["nrows"]),
		cols:     int(header["ncols"]),
		cellSize: header["cellsize"],
		xll:      header["xllcorner"],
		yll:      header["yllcorner"],
	}
	if g.rows <= 0 || g.cols <= 0 || g.cellSize <= 0 {
		return nil, fmt.Errorf("degenerate raster %dx%d cellsize %v", g.rows, g.cols, g.cellSize)
	}

	n := g.rows * g.cols
	codes := make([]float64, 0, n)
	cell := firstCell
	for {
		f, err := strconv.ParseFloat(cell, 64)
		if err != nil {
			return nil, fmt.Errorf("cell %d: %w", len(codes), err)
		}
		codes = append(codes, f)
		if len(codes) == n {
			break
		}
		if cell, err = next(); err != nil {
			return nil, fmt.Errorf("raster truncated at cell %d of %d: %w", len(codes), n, err)
		}
	}

	g.receiver = make([]int, n)
	for node, code := range codes {
		g.receiver[node] = g.receiverOf(node, code, nodata)
	}
	if err := g.buildOrder(); err != nil {
		return nil, err
	}
	return g, nil
}

// receiverOf resolves a D8 code to the downstream node index, -1 for sinks
// and flows off the raster edge.
func (g *Grid) receiverOf(node int, code, nodata float64) int {
	if code == nodata || code == 0 {
		return -1
	}
	var drow, dcol int
	switch int(code) {
	case 1:
		dcol = 1
	case 2:
		drow, dcol = 1, 1
	case 4:
		drow = 1
	case 8:
		drow, dcol = 1, -1
	case 16:
		dcol = -1
	case 32:
		drow, dcol = -1, -1
	case 64:
		drow = -1
	case 128:
		drow, dcol = -1, 1
	default:
		return -1
	}
	row, col := node/g.cols+drow, node%g.cols+dcol
	if row < 0 || row >= g.rows || col < 0 || col >= g.cols {
		return -1
	}
	return row*g.cols + col
}

// buildOrder computes a donors-first topological order over the drainage
// topology (Kahn's algorithm). A D8 raster cannot legally contain a cycle;
// finding one means the input is corrupt.
func (g *Grid) buildOrder() error {
	n := len(g.receiver)
	indegree := make([]int, n)
	for _, r := range g.receiver {
		if r >= 0 {
			indegree[r]++
		}
	}

	queue := make([]int, 0, n)
	for node, deg := range indegree {
		if deg == 0 {
			queue = append(queue, node)
		}
	}

	g.order = make([]int, 0, n)
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		g.order = append(g.order, node)
		if r := g.receiver[node]; r >= 0 {
			indegree[r]--
			if indegree[r] == 0 {
				queue = append(queue, r)
			}
		}
	}
	if len(g.order) != n {
		return fmt.Errorf("flow grid contains a drainage cycle")
	}
	return nil
}

// Shape returns the raster dimensions.
func (g *Grid) Shape() (rows, cols int) { return g.rows, g.cols }

// CellSize returns the geotransform cell size, dy negative (north-up).
func (g *Grid) CellSize() (dx, dy float64) { return g.cellSize, -g.cellSize }

// CoordToNode maps an easting/northing to its node index. Floor, not
// truncate: coordinates just outside the extent must not land in cell 0.
func (g *Grid) CoordToNode(x, y float64) (int, error) {
	col := int(math.Floor((x - g.xll) / g.cellSize))
	row := int(math.Floor((g.yll + float64(g.rows)*g.cellSize - y) / g.cellSize))
	if row < 0 || row >= g.rows || col < 0 || col >= g.cols {
		return 0, fmt.Errorf("coordinate (%v, %v) outside raster extent", x, y)
	}
	return row*g.cols + col, nil
}

// NodeToCoord returns the cell-centre coordinate of a node.
func (g *Grid) NodeToCoord(node int) (x, y float64) {
	row, col := node/g.cols, node%g.cols
	x = g.xll + (float64(col)+0.5)*g.cellSize
	y = g.yll + float64(g.rows)*g.cellSize - (float64(row)+0.5)*g.cellSize
	return x, y
}

// Accumulate sums weights downstream along flow paths. The donors-first
// order makes this a single O(n) pass.
func (g *Grid) Accumulate(weights []float64) []float64 {
	out := make([]float64, len(g.receiver))
	copy(out, weights)
	for _, node := range g.order {
		if r := g.receiver[node]; r >= 0 {
			out[r] += out[node]
		}
	}
	return out
}

// Profile returns the flow path from node to its sink, starting with node.
func (g *Grid) Profile(node int) []int {
	path := []int{node}
	for cur := g.receiver[node]; cur >= 0; cur = g.receiver[cur] {
		path = append(path, cur)
	}
	return path
}

// ChannelSegments extracts polylines along flow paths whose accumulated
// weight meets the threshold. Walks start at channel heads (the most
// upstream qualifying cells) and stop where they merge into a line already
// drawn, so confluences are shared vertices rather than duplicated reaches.
func (g *Grid) ChannelSegments(weights []float64, threshold float64) []domain.Polyline {
	visited := make([]bool, len(g.receiver))
	var segments []domain.Polyline

	for _, node := range g.order {
		if visited[node] || weights[node] < threshold {
			continue
		}
		var line domain.Polyline
		for cur := node; cur >= 0 && weights[cur] >= threshold; cur = g.receiver[cur] {
			x, y := g.NodeToCoord(cur)
			line = append(line, domain.Coordinate{X: x, Y: y})
			if visited[cur] {
				// Joined an existing segment at this vertex.
				break
			}
			visited[cur] = true
		}
		if len(line) >= 2 {
			segments = append(segments, line)
		}
	}
	return segments
}
