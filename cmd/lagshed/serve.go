package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/alexshd/lagshed"
	"github.com/alexshd/lagshed/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

var (
	serveAddr     string
	lagAlertMs    float64
	retryAfter    time.Duration
	shutdownGrace time.Duration

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run a demo HTTP server protected by the lag monitor",
		Long: `serve exposes:
  /work?ms=N   burns N ms of CPU (shed with 503 when too busy)
  /status      monitor snapshot as JSON
  /metrics     Prometheus metrics`,
		RunE: runServe,
	}
)

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "Listen address")
	serveCmd.Flags().Float64Var(&lagAlertMs, "alert", 0, "Log lag events above this many ms (0 = threshold)")
	serveCmd.Flags().DurationVar(&retryAfter, "retry-after", time.Second, "Retry-After sent with shed responses")
	serveCmd.Flags().DurationVar(&shutdownGrace, "grace", 5*time.Second, "Graceful shutdown timeout")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	monitor.Start()
	defer monitor.Shutdown()

	watchLag(monitor, lagAlertMs)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		lagshed.NewCollector(monitor),
		collectors.NewGoCollector(),
	)

	mux := http.NewServeMux()
	mux.Handle("/work", middleware.Handler(monitor, http.HandlerFunc(handleWork),
		middleware.WithRetryAfter(retryAfter),
		middleware.WithLogger(slog.Default()),
	))
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(monitor.Stats())
	})
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              serveAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("Server starting with lag shedding", "addr", serveAddr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		slog.Info("Server shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// watchLag logs lag events, at most one per second. alertMs <= 0 means the
// monitor threshold.
func watchLag(m *lagshed.Monitor, alertMs float64) {
	limit := rate.NewLimiter(rate.Every(time.Second), 1)
	logLag := func(lag int) {
		if limit.Allow() {
			slog.Warn("Scheduling lag above alert level", "lag_ms", lag, "threshold_ms", m.Threshold())
		}
	}

	if alertMs <= 0 {
		m.OnLag(logLag)
		return
	}
	m.OnLagAbove(alertMs, logLag)
}

func handleWork(w http.ResponseWriter, r *http.Request) {
	ms, err := strconv.Atoi(r.URL.Query().Get("ms"))
	if err != nil || ms < 0 {
		ms = 10
	}

	spin(time.Duration(ms) * time.Millisecond)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"worked_ms": ms,
		"lag_ms":    monitor.Lag(),
	})
}

// spin burns CPU for d without yielding voluntarily.
func spin(d time.Duration) {
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
	}
}
