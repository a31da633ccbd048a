package telemetry

import (
	"fmt"
	"os"

	"github.com/gocarina/gocsv"
)

// PerfStatsCSV is a flat struct for CSV export of performance stats.
type PerfStatsCSV struct {
	WindowEnd      uint64  `csv:"window_end"`
	AvgFrameUS     int64   `csv:"avg_frame_us"`
	MinFrameUS     int64   `csv:"min_frame_us"`
	MaxFrameUS     int64   `csv:"max_frame_us"`
	P50US          int64   `csv:"p50_us"`
	P95US          int64   `csv:"p95_us"`
	P99US          int64   `csv:"p99_us"`
	FPS            float64 `csv:"fps"`
	CommandsPct    float64 `csv:"commands_pct"`
	AIPct          float64 `csv:"ai_pct"`
	CollisionPct   float64 `csv:"collision_pct"`
	BackgroundPct  float64 `csv:"background_pct"`
	PathfindingPct float64 `csv:"pathfinding_pct"`
	SnapshotPct    float64 `csv:"snapshot_pct"`
}

// ToCSV converts PerfStats to a flat CSV-friendly struct.
func (s PerfStats) ToCSV(windowEnd uint64) PerfStatsCSV {
	return PerfStatsCSV{
		WindowEnd:      windowEnd,
		AvgFrameUS:     s.AvgFrame.Microseconds(),
		MinFrameUS:     s.MinFrame.Microseconds(),
		MaxFrameUS:     s.MaxFrame.Microseconds(),
		P50US:          s.P50.Microseconds(),
		P95US:          s.P95.Microseconds(),
		P99US:          s.P99.Microseconds(),
		FPS:            s.FramesPerSecond,
		CommandsPct:    s.PhasePct[PhaseCommands],
		AIPct:          s.PhasePct[PhaseAI],
		CollisionPct:   s.PhasePct[PhaseCollision],
		BackgroundPct:  s.PhasePct[PhaseBackground],
		PathfindingPct: s.PhasePct[PhasePathfinding],
		SnapshotPct:    s.PhasePct[PhaseSnapshot],
	}
}

// CSVWriter accumulates stat windows and writes them out on Close.
type CSVWriter struct {
	path string
	rows []PerfStatsCSV
}

// NewCSVWriter creates a writer targeting the given path.
func NewCSVWriter(path string) *CSVWriter {
	return &CSVWriter{path: path}
}

// Append records one stats window.
func (w *CSVWriter) Append(row PerfStatsCSV) {
	w.rows = append(w.rows, row)
}

// Close writes all accumulated rows.
func (w *CSVWriter) Close() error {
	if w.path == "" || len(w.rows) == 0 {
		return nil
	}
	f, err := os.Create(w.path)
	if err != nil {
		return fmt.Errorf("create perf csv: %w", err)
	}
	defer f.Close()
	return gocsv.MarshalFile(&w.rows, f)
}
