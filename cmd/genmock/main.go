// Command genmock generates a synthetic EDM API fixture set: a monitor list,
// a per-monitor event history, and a matching D8 flow raster. The output is
// what a stub EDM server would serve, so a full local stack can run without
// water company credentials.
//
// Usage:
//
//	go run ./cmd/genmock -out data/mock -monitors 25 -seed 1
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/couchcryptid/cso-impact-service/internal/adapter/edm"
	"github.com/couchcryptid/cso-impact-service/internal/domain"
)

// The fixture clock. Histories run up to this instant; the newest event of
// each monitor is left ongoing.
var fixtureNow = time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)

// Raster extent: 40x40 cells of 500m anchored at an arbitrary easting and
// northing. All monitors are placed inside it.
const (
	gridCols = 40
	gridRows = 40
	cellSize = 500.0
	gridXll  = 400000.0
	gridYll  = 180000.0
)

var watercourses = []string{
	"River Crane", "River Mole", "Beverley Brook", "Hogsmill River",
	"River Wandle", "Salmons Brook", "Pymmes Brook", "The Cut",
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	outDir := flag.String("out", "", "output directory for fixture files")
	count := flag.Int("monitors", 25, "number of monitors to generate")
	seed := flag.Int64("seed", 1, "random seed, fixed for reproducible fixtures")
	flag.Parse()

	if *outDir == "" {
		flag.Usage()
		return fmt.Errorf("missing required flag: -out")
	}

	rng := rand.New(rand.NewSource(*seed))

	monitors := make([]edm.MonitorRecord, 0, *count)
	histories := make(map[string][]edm.EventRecord, *count)
	for i := 0; i < *count; i++ {
		id := fmt.Sprintf("CSO-%03d", i+1)
		events := generateHistory(rng, id)
		monitors = append(monitors, monitorRecord(rng, id, events))
		histories[id] = events
	}

	if err := writeJSON(filepath.Join(*outDir, "monitors.json"), listResponse[edm.MonitorRecord]{Items: monitors}); err != nil {
		return fmt.Errorf("writing monitor fixture: %w", err)
	}
	for id, events := range histories {
		name := "events_" + strings.ReplaceAll(id, "-", "_") + ".json"
		if err := writeJSON(filepath.Join(*outDir, name), listResponse[edm.EventRecord]{Items: events}); err != nil {
			return fmt.Errorf("writing history fixture for %s: %w", id, err)
		}
	}
	if err := writeRaster(filepath.Join(*outDir, "flowdir.asc")); err != nil {
		return fmt.Errorf("writing raster fixture: %w", err)
	}

	log.Printf("wrote %d monitors and histories to %s", len(monitors), *outDir)
	printStats(monitors, histories)
	return nil
}

// generateHistory walks backwards from fixtureNow producing a closed event
// chain, then reverses it to oldest-first as the EDM APIs serve it. The
// newest event is always ongoing.
func generateHistory(rng *rand.Rand, id string) []edm.EventRecord {
	n := 4 + rng.Intn(12)
	events := make([]edm.EventRecord, 0, n)

	end := fixtureNow.Add(-time.Duration(rng.Intn(72)) * time.Hour)
	for i := 0; i < n; i++ {
		dur := time.Duration(30+rng.Intn(48*60)) * time.Minute
		start := end.Add(-dur)
		rec := edm.EventRecord{
			Status:    string(randomKind(rng)),
			StartTime: start.Format(time.RFC3339),
		}
		if i > 0 {
			rec.EndTime = end.Format(time.RFC3339)
		}
		events = append(events, rec)
		// Gap before the next older event.
		end = start.Add(-time.Duration(rng.Intn(24*60)) * time.Minute)
	}

	for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
		events[i], events[j] = events[j], events[i]
	}
	return events
}

// monitorRecord derives the live-status row from the history so the two
// fixture files agree, the way a real EDM feed does.
func monitorRecord(rng *rand.Rand, id string, events []edm.EventRecord) edm.MonitorRecord {
	current := events[len(events)-1]

	recent := false
	cutoff := fixtureNow.Add(-48 * time.Hour)
	for _, ev := range events {
		if ev.Status != string(domain.KindDischarging) {
			continue
		}
		if ev.EndTime == "" {
			recent = true
			break
		}
		end, err := time.Parse(time.RFC3339, ev.EndTime)
		if err == nil && end.After(cutoff) {
			recent = true
			break
		}
	}

	// Keep monitors off the raster edge so every one resolves to a node.
	col := 2 + rng.Intn(gridCols-4)
	row := 2 + rng.Intn(gridRows-4)
	return edm.MonitorRecord{
		ID:                 id,
		SiteName:           "Mock Outfall " + strings.TrimPrefix(id, "CSO-"),
		X:                  gridXll + (float64(col)+0.5)*cellSize,
		Y:                  gridYll + (float64(row)+0.5)*cellSize,
		Watercourse:        watercourses[rng.Intn(len(watercourses))],
		Status:             current.Status,
		StatusSince:        current.StartTime,
		DischargeInLast48h: &recent,
	}
}

func randomKind(rng *rand.Rand) domain.EventKind {
	switch r := rng.Float64(); {
	case r < 0.15:
		return domain.KindDischarging
	case r < 0.25:
		return domain.KindOffline
	default:
		return domain.KindNotDischarging
	}
}

type listResponse[T any] struct {
	Items []T `json:"items"`
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o600)
}

// writeRaster emits a D8 flow-direction grid where every cell drains east
// and the last column drains south to a single outlet in the corner. Flow
// from any monitor reaches the outlet, which keeps the fixture's impact
// output easy to reason about.
func writeRaster(path string) error {
	var b strings.Builder
	fmt.Fprintf(&b, "ncols %d\n", gridCols)
	fmt.Fprintf(&b, "nrows %d\n", gridRows)
	fmt.Fprintf(&b, "xllcorner %g\n", gridXll)
	fmt.Fprintf(&b, "yllcorner %g\n", gridYll)
	fmt.Fprintf(&b, "cellsize %g\n", cellSize)
	b.WriteString("NODATA_value -9999\n")

	for row := 0; row < gridRows; row++ {
		cells := make([]string, gridCols)
		for col := 0; col < gridCols; col++ {
			switch {
			case row == gridRows-1 && col == gridCols-1:
				cells[col] = "0" // outlet
			case col == gridCols-1:
				cells[col] = "4" // south along the east edge
			default:
				cells[col] = "1" // east
			}
		}
		b.WriteString(strings.Join(cells, " "))
		b.WriteByte('\n')
	}
	return os.WriteFile(path, []byte(b.String()), 0o600)
}

func printStats(monitors []edm.MonitorRecord, histories map[string][]edm.EventRecord) {
	statusCounts := map[string]int{}
	recent := 0
	totalEvents := 0
	for _, m := range monitors {
		statusCounts[m.Status]++
		if m.DischargeInLast48h != nil && *m.DischargeInLast48h {
			recent++
		}
	}
	for _, events := range histories {
		totalEvents += len(events)
	}

	fmt.Println("\n=== Stats for updating test assertions ===")
	fmt.Printf("Monitors: %d\n", len(monitors))
	fmt.Printf("By status: discharging=%d, offline=%d, quiet=%d\n",
		statusCounts[string(domain.KindDischarging)],
		statusCounts[string(domain.KindOffline)],
		statusCounts[string(domain.KindNotDischarging)])
	fmt.Printf("Discharged in last 48h: %d\n", recent)
	fmt.Printf("History events: %d\n", totalEvents)
}
