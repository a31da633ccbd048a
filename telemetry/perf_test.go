package telemetry

import (
	"testing"
	"time"
)

func TestCollectorAggregatesWindow(t *testing.T) {
	p := NewPerfCollector(4)

	for i := 0; i < 6; i++ { // wraps the window
		p.StartFrame()
		p.StartPhase(PhaseAI)
		p.StartPhase(PhaseCollision)
		p.EndFrame()
	}

	stats := p.Stats()
	if stats.AvgFrame < 0 || stats.MaxFrame < stats.MinFrame {
		t.Fatalf("inconsistent stats: %+v", stats)
	}
	if stats.P99 < stats.P50 {
		t.Fatalf("p99 (%v) below p50 (%v)", stats.P99, stats.P50)
	}
	if _, ok := stats.PhaseAvg[PhaseAI]; !ok {
		t.Fatal("ai phase missing from aggregation")
	}
}

func TestEmptyCollector(t *testing.T) {
	p := NewPerfCollector(8)
	stats := p.Stats()
	if stats.AvgFrame != 0 || len(stats.PhaseAvg) != 0 {
		t.Fatalf("empty collector produced stats: %+v", stats)
	}
}

func TestPhaseDurationsSumBelowFrame(t *testing.T) {
	p := NewPerfCollector(2)
	p.StartFrame()
	p.StartPhase(PhaseAI)
	time.Sleep(time.Millisecond)
	p.StartPhase(PhaseCollision)
	time.Sleep(time.Millisecond)
	p.EndFrame()

	stats := p.Stats()
	var phases time.Duration
	for _, d := range stats.PhaseAvg {
		phases += d
	}
	if phases > stats.AvgFrame {
		t.Fatalf("phase sum %v exceeds frame %v", phases, stats.AvgFrame)
	}
	if stats.PhaseAvg[PhaseAI] < 500*time.Microsecond {
		t.Fatalf("ai phase implausibly short: %v", stats.PhaseAvg[PhaseAI])
	}
}

func TestCSVRowMirrorsStats(t *testing.T) {
	p := NewPerfCollector(2)
	p.StartFrame()
	p.StartPhase(PhaseAI)
	p.EndFrame()

	stats := p.Stats()
	row := stats.ToCSV(120)
	if row.WindowEnd != 120 {
		t.Fatalf("window end = %d", row.WindowEnd)
	}
	if row.AvgFrameUS != stats.AvgFrame.Microseconds() {
		t.Fatalf("avg mismatch: %d vs %d", row.AvgFrameUS, stats.AvgFrame.Microseconds())
	}
}
