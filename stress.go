package lagshed

import (
	"context"
	"math"
	"runtime"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// Operation is one unit of work admitted by Stress.
// Implementations must be safe for concurrent execution.
type Operation func(ctx context.Context) error

// Gate is the admission check consulted before every operation. *Monitor
// satisfies it.
type Gate interface {
	TooBusy() bool
	Lag() int
}

// StressConfig controls a Stress run.
type StressConfig struct {
	Workers  int           // Concurrent workers (default: 4 x GOMAXPROCS)
	Duration time.Duration // Measurement duration
	Warmup   time.Duration // Run before measuring; results discarded
	Poll     time.Duration // How often the peak lag is sampled
}

// DefaultStressConfig returns a five second run with a half second warmup.
func DefaultStressConfig() StressConfig {
	return StressConfig{
		Workers:  4 * runtime.GOMAXPROCS(0),
		Duration: 5 * time.Second,
		Warmup:   500 * time.Millisecond,
		Poll:     10 * time.Millisecond,
	}
}

// StressResult summarises a Stress run.
type StressResult struct {
	Workers    int
	Duration   time.Duration
	Accepted   int64           // Operations admitted and completed without error
	Shed       int64           // Operations refused by the gate
	Errors     int64           // Admitted operations that returned an error
	Throughput float64         // Accepted operations per second
	ShedRatio  float64         // Shed / (Accepted + Shed + Errors)
	PeakLag    int             // Highest Lag() observed, ms
	Latencies  []time.Duration // Latencies of accepted operations
}

// Statistics contains percentile latency data.
type Statistics struct {
	Mean   time.Duration
	Stddev time.Duration
	P50    time.Duration
	P95    time.Duration
	P99    time.Duration
}

// Stress drives op from cfg.Workers goroutines for cfg.Duration, asking gate
// before each call. Shed calls are counted and skipped. It returns early with
// ctx.Err() if ctx is cancelled.
func Stress(ctx context.Context, gate Gate, op Operation, cfg StressConfig) (StressResult, error) {
	if cfg.Workers < 1 {
		return StressResult{}, invalid("workers", cfg.Workers, "must be at least 1")
	}
	if cfg.Duration <= 0 {
		return StressResult{}, invalid("duration", cfg.Duration, "must be positive")
	}
	if cfg.Poll <= 0 {
		cfg.Poll = 10 * time.Millisecond
	}

	if cfg.Warmup > 0 {
		warmupCtx, cancel := context.WithTimeout(ctx, cfg.Warmup)
		_, _ = runStressPhase(warmupCtx, gate, op, cfg)
		cancel()
	}

	measureCtx, cancel := context.WithTimeout(ctx, cfg.Duration)
	defer cancel()

	result, err := runStressPhase(measureCtx, gate, op, cfg)
	if err == nil {
		err = ctx.Err()
	}
	return result, err
}

func runStressPhase(ctx context.Context, gate Gate, op Operation, cfg StressConfig) (StressResult, error) {
	var (
		accepted  atomic.Int64
		shed      atomic.Int64
		failed    atomic.Int64
		peak      atomic.Int64
		mu        sync.Mutex
		latencies = make([]time.Duration, 0, 1024)
	)

	g, gctx := errgroup.WithContext(ctx)
	start := time.Now()

	for i := 0; i < cfg.Workers; i++ {
		g.Go(func() error {
			local := make([]time.Duration, 0, 256)
			defer func() {
				mu.Lock()
				latencies = append(latencies, local...)
				mu.Unlock()
			}()

			for gctx.Err() == nil {
				if gate.TooBusy() {
					shed.Add(1)
					runtime.Gosched()
					continue
				}

				opStart := time.Now()
				if err := op(gctx); err != nil {
					failed.Add(1)
					continue
				}
				accepted.Add(1)
				local = append(local, time.Since(opStart))
			}
			return nil
		})
	}

	g.Go(func() error {
		ticker := time.NewTicker(cfg.Poll)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if lag := int64(gate.Lag()); lag > peak.Load() {
					peak.Store(lag)
				}
			}
		}
	})

	err := g.Wait()
	elapsed := time.Since(start)

	r := StressResult{
		Workers:   cfg.Workers,
		Duration:  elapsed,
		Accepted:  accepted.Load(),
		Shed:      shed.Load(),
		Errors:    failed.Load(),
		PeakLag:   int(peak.Load()),
		Latencies: latencies,
	}
	if elapsed > 0 {
		r.Throughput = float64(r.Accepted) / elapsed.Seconds()
	}
	if total := r.Accepted + r.Shed + r.Errors; total > 0 {
		r.ShedRatio = float64(r.Shed) / float64(total)
	}
	return r, err
}

// CalculateStatistics summarises the latencies of admitted operations, as
// collected in StressResult.Latencies. It returns the zero Statistics when
// nothing was admitted.
func CalculateStatistics(latencies []time.Duration) Statistics {
	n := len(latencies)
	if n == 0 {
		return Statistics{}
	}

	sorted := slices.Clone(latencies)
	slices.Sort(sorted)

	var sum, sumSq float64
	for _, lat := range sorted {
		v := float64(lat)
		sum += v
		sumSq += v * v
	}
	mean := sum / float64(n)
	variance := math.Max(0, sumSq/float64(n)-mean*mean)

	return Statistics{
		Mean:   time.Duration(mean),
		Stddev: time.Duration(math.Sqrt(variance)),
		P50:    rank(sorted, 50),
		P95:    rank(sorted, 95),
		P99:    rank(sorted, 99),
	}
}

// rank is the nearest-rank percentile of an ascending slice.
func rank(sorted []time.Duration, pct int) time.Duration {
	i := (len(sorted)*pct + 99) / 100
	return sorted[max(i, 1)-1]
}
