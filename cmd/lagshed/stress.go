package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/alexshd/lagshed"
	"github.com/spf13/cobra"
)

var (
	stressCfg  = lagshed.DefaultStressConfig()
	stressWork time.Duration

	stressCmd = &cobra.Command{
		Use:   "stress",
		Short: "Saturate the scheduler locally and report how much work was shed",
		RunE:  runStress,
	}
)

func init() {
	f := stressCmd.Flags()
	f.IntVar(&stressCfg.Workers, "workers", stressCfg.Workers, "Concurrent workers")
	f.DurationVar(&stressCfg.Duration, "duration", stressCfg.Duration, "Measurement duration")
	f.DurationVar(&stressCfg.Warmup, "warmup", stressCfg.Warmup, "Warmup before measuring")
	f.DurationVar(&stressWork, "work", 5*time.Millisecond, "CPU time burned per admitted operation")
}

func runStress(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	monitor.Start()
	defer monitor.Shutdown()

	op := func(ctx context.Context) error {
		spin(stressWork)
		return nil
	}

	res, err := lagshed.Stress(ctx, monitor, op, stressCfg)
	if err != nil {
		return err
	}
	stats := lagshed.CalculateStatistics(res.Latencies)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "workers      %d\n", res.Workers)
	fmt.Fprintf(out, "duration     %v\n", res.Duration.Round(time.Millisecond))
	fmt.Fprintf(out, "accepted     %d (%.1f ops/s)\n", res.Accepted, res.Throughput)
	fmt.Fprintf(out, "shed         %d (%.1f%%)\n", res.Shed, res.ShedRatio*100)
	fmt.Fprintf(out, "errors       %d\n", res.Errors)
	fmt.Fprintf(out, "peak lag     %dms (threshold %.0fms)\n", res.PeakLag, monitor.Threshold())
	fmt.Fprintf(out, "latency      mean=%v p50=%v p95=%v p99=%v\n",
		stats.Mean, stats.P50, stats.P95, stats.P99)
	return nil
}
