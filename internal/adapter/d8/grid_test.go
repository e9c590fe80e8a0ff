package d8

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/cso-impact-service/internal/domain"
)

// testRaster drains every cell east into the right-hand column, which drains
// south into the sink at the bottom-right corner:
//
//	0 1 2       E E S
//	3 4 5   =   E E S
//	6 7 8       E E .
const testRaster = `ncols 3
nrows 3
xllcorner 0
yllcorner 0
cellsize 100
NODATA_value -9999
1 1 4
1 1 4
1 1 0
`

func parseTestGrid(t *testing.T) *Grid {
	t.Helper()
	g, err := Parse(strings.NewReader(testRaster))
	require.NoError(t, err)
	return g
}

func TestParse(t *testing.T) {
	g := parseTestGrid(t)

	rows, cols := g.Shape()
	assert.Equal(t, 3, rows)
	assert.Equal(t, 3, cols)

	dx, dy := g.CellSize()
	assert.Equal(t, 100.0, dx)
	assert.Equal(t, -100.0, dy)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr string
	}{
		{
			name:    "missing header field",
			input:   "ncols 2\nnrows 2\ncellsize 10\n1 1 1 1",
			wantErr: "header missing",
		},
		{
			name:    "truncated raster",
			input:   "ncols 2\nnrows 2\nxllcorner 0\nyllcorner 0\ncellsize 10\n1 1 1",
			wantErr: "truncated",
		},
		{
			name:    "non-numeric cell",
			input:   "ncols 2\nnrows 1\nxllcorner 0\nyllcorner 0\ncellsize 10\n1 potato",
			wantErr: "cell 1",
		},
		{
			name:    "drainage cycle",
			input:   "ncols 2\nnrows 1\nxllcorner 0\nyllcorner 0\ncellsize 10\n1 16",
			wantErr: "cycle",
		},
		{
			name:    "degenerate dimensions",
			input:   "ncols 0\nnrows 3\nxllcorner 0\nyllcorner 0\ncellsize 10\n1",
			wantErr: "degenerate",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.input))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestCoordMapping(t *testing.T) {
	g := parseTestGrid(t)

	// Bottom-left cell is node 6; its centre is (50, 50).
	node, err := g.CoordToNode(50, 50)
	require.NoError(t, err)
	assert.Equal(t, 6, node)

	x, y := g.NodeToCoord(6)
	assert.Equal(t, 50.0, x)
	assert.Equal(t, 50.0, y)

	// Top-left cell is node 0.
	node, err = g.CoordToNode(10, 290)
	require.NoError(t, err)
	assert.Equal(t, 0, node)
	x, y = g.NodeToCoord(0)
	assert.Equal(t, 50.0, x)
	assert.Equal(t, 250.0, y)

	_, err = g.CoordToNode(-10, 50)
	assert.Error(t, err)
	_, err = g.CoordToNode(50, 301)
	assert.Error(t, err)
}

func TestAccumulate(t *testing.T) {
	g := parseTestGrid(t)

	ones := make([]float64, 9)
	for i := range ones {
		ones[i] = 1
	}
	acc := g.Accumulate(ones)

	// Everything drains through the bottom-right sink.
	assert.Equal(t, 9.0, acc[8])
	// The middle of the right column carries the top two rows minus itself's
	// own donors: cells 0,1,2 via node 2 plus 3,4 and itself.
	assert.Equal(t, 6.0, acc[5])
	assert.Equal(t, 1.0, acc[0], "heads keep their own weight")
	assert.Equal(t, 2.0, acc[1])
}

func TestAccumulateSingleSource(t *testing.T) {
	g := parseTestGrid(t)

	weights := make([]float64, 9)
	weights[0] = 1
	acc := g.Accumulate(weights)

	want := []float64{1, 1, 1, 0, 0, 1, 0, 0, 1}
	assert.Equal(t, want, acc)
}

func TestProfile(t *testing.T) {
	g := parseTestGrid(t)

	assert.Equal(t, []int{0, 1, 2, 5, 8}, g.Profile(0))
	assert.Equal(t, []int{8}, g.Profile(8), "sink profiles to itself")
}

func TestChannelSegments(t *testing.T) {
	g := parseTestGrid(t)

	weights := make([]float64, 9)
	weights[0] = 1
	segments := g.ChannelSegments(g.Accumulate(weights), 0.9)

	require.Len(t, segments, 1)
	want := domain.Polyline{
		{X: 50, Y: 250}, {X: 150, Y: 250}, {X: 250, Y: 250}, {X: 250, Y: 150}, {X: 250, Y: 50},
	}
	assert.Equal(t, want, segments[0])
}

func TestChannelSegmentsConfluence(t *testing.T) {
	g := parseTestGrid(t)

	weights := make([]float64, 9)
	weights[0] = 1
	weights[3] = 1
	segments := g.ChannelSegments(g.Accumulate(weights), 0.9)

	require.Len(t, segments, 2)
	// The second walk stops one vertex past the confluence so the lines share it.
	assert.Equal(t, domain.Coordinate{X: 250, Y: 150}, segments[0][3])
	assert.Equal(t, domain.Coordinate{X: 250, Y: 150}, segments[1][2])
}

func TestChannelSegmentsEmpty(t *testing.T) {
	g := parseTestGrid(t)

	segments := g.ChannelSegments(make([]float64, 9), 0.9)
	assert.Empty(t, segments)
}

func TestNodataCellsAreSinks(t *testing.T) {
	raster := `ncols 2
nrows 1
xllcorner 0
yllcorner 0
cellsize 10
NODATA_value -9999
1 -9999
`
	g, err := Parse(strings.NewReader(raster))
	require.NoError(t, err)

	assert.Equal(t, []int{0, 1}, g.Profile(0), "flow into nodata stops there")
	assert.Equal(t, []int{1}, g.Profile(1))
}
