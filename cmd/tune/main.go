// Command tune fits a worker batch multiplier offline by minimizing the
// wall time of a synthetic batched workload. The fitted value seeds the
// budget arbitrator's hill-climb so live tuning starts near the optimum.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"math"
	"runtime"
	"time"

	"gonum.org/v1/gonum/optimize"

	"github.com/pthm-cable/forge/pool"
)

func main() {
	workload := flag.Int("workload", 20000, "Synthetic items per evaluation")
	repeats := flag.Int("repeats", 20, "Evaluations to average per candidate")
	workers := flag.Int("workers", 0, "Pool size (0 = NumCPU-1)")
	flag.Parse()

	n := *workers
	if n <= 0 {
		n = runtime.NumCPU() - 1
	}
	if n < 1 {
		n = 1
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	workersPool, err := pool.New(n, logger)
	if err != nil {
		log.Fatalf("pool init: %v", err)
	}
	defer workersPool.Shutdown()

	cost := func(x []float64) float64 {
		mult := clamp(x[0], 0.4, 2.0)
		batchCount := int(float64(n) * mult)
		if batchCount < 1 {
			batchCount = 1
		}
		batchSize := (*workload + batchCount - 1) / batchCount

		var total time.Duration
		for r := 0; r < *repeats; r++ {
			start := time.Now()
			h := workersPool.SubmitBatch(pool.Normal, batchCount, func(b int) error {
				lo := b * batchSize
				hi := lo + batchSize
				if hi > *workload {
					hi = *workload
				}
				sink := 0.0
				for i := lo; i < hi; i++ {
					sink += math.Sqrt(float64(i))
				}
				_ = sink
				return nil
			})
			if err := h.Wait(); err != nil {
				return math.Inf(1)
			}
			total += time.Since(start)
		}
		return float64(total) / float64(*repeats)
	}

	problem := optimize.Problem{Func: cost}
	result, err := optimize.Minimize(problem, []float64{1.0}, &optimize.Settings{
		MajorIterations: 40,
	}, &optimize.NelderMead{})
	if err != nil {
		log.Fatalf("optimize: %v", err)
	}

	best := clamp(result.X[0], 0.4, 2.0)
	fmt.Printf("workers=%d workload=%d\n", n, *workload)
	fmt.Printf("best multiplier=%.3f avg=%s\n", best, time.Duration(result.F).Round(time.Microsecond))
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
