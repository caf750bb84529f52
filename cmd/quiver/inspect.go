package main

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/quiver-dev/quiver/pkg/inspect"
	"github.com/quiver-dev/quiver/pkg/quiver"
	"github.com/quiver-dev/quiver/pkg/snapshot"
	"github.com/quiver-dev/quiver/pkg/telemetry"
)

func inspectCmd() *cobra.Command {
	var (
		addr     string
		interval time.Duration
		stateDir string
	)

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Run a demo app with the live inspector",
		Long: `Start a small reactive workload and serve the inspector UI for it.

The demo mutates an order book on a timer. The inspector at / shows
live stats, the event feed, and dependency-graph snapshots; Prometheus
metrics are at /metrics. With --state-dir the order book is restored
on start and autosaved on change.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspectDemo(addr, interval, stateDir)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":9321", "listen address")
	cmd.Flags().DurationVar(&interval, "interval", 250*time.Millisecond, "mutation interval")
	cmd.Flags().StringVar(&stateDir, "state-dir", "", "restore and autosave demo state in this directory")

	return cmd
}

func runInspectDemo(addr string, interval time.Duration, stateDir string) error {
	logger, err := zap.NewDevelopment()
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rt := quiver.New(quiver.WithLogger(logger), quiver.WithDevMode())

	book := rt.ReactiveMap(map[string]any{
		"orders": []any{},
		"open":   0.0,
		"filled": 0.0,
	})
	total := quiver.NewComputed(rt, func() float64 {
		return asFloat(book.Get("open")) + asFloat(book.Get("filled"))
	})
	rt.Watch(total, func(newV, _ any, _ func(func())) {
		logger.Debug("order total changed", zap.Any("total", newV))
	}, quiver.WithFlush(quiver.FlushPost))

	if stateDir != "" {
		store, err := snapshot.NewDiskStore(stateDir)
		if err != nil {
			return err
		}
		if err := snapshot.LoadInto(ctx, store, "orderbook", book); err != nil && !errors.Is(err, snapshot.ErrNotFound) {
			return err
		}
		saver, err := snapshot.AutoSave(ctx, rt, store, "orderbook", book,
			snapshot.WithLogger(logger))
		if err != nil {
			return err
		}
		defer saver.Stop()
	}

	ins := inspect.New(rt, inspect.WithLogger(logger))
	if _, err := telemetry.Register(rt, prometheus.DefaultRegisterer); err != nil {
		return err
	}
	tracer := telemetry.NewTracer(rt)

	srv := inspect.NewServer(ins, &inspect.ServerConfig{Logger: logger})
	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.Mount("/", srv.Handler())

	httpServer := &http.Server{Addr: addr, Handler: r}
	go func() {
		logger.Info("inspector listening",
			zap.String("addr", addr),
			zap.String("metrics", "/metrics"))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("inspect server failed", zap.Error(err))
			cancel()
		}
	}()

	// The runtime lives on this goroutine. Every mutation and every graph
	// snapshot happens here; the inspector bridges to the HTTP side.
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancelShutdown()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("hub shutdown", zap.Error(err))
			}
			return httpServer.Shutdown(shutdownCtx)

		case <-ticker.C:
			tracer.Update(ctx, "tick", func(context.Context) {
				mutateBook(book, rng)
			})
			ins.SnapshotGraph()
		}
	}
}

// mutateBook fills an order once the book is deep enough, otherwise
// places a new one.
func mutateBook(book *quiver.Map, rng *rand.Rand) {
	orders, ok := book.Get("orders").(*quiver.List)
	if !ok {
		return
	}
	if orders.Len() > 12 {
		orders.Shift()
		book.Set("filled", asFloat(book.Get("filled"))+1)
		book.Set("open", asFloat(book.Get("open"))-1)
		return
	}
	orders.Push(map[string]any{
		"id":    float64(rng.Intn(1_000_000)),
		"price": math.Round(rng.Float64()*10_000) / 100,
	})
	book.Set("open", asFloat(book.Get("open"))+1)
}

func asFloat(v any) float64 {
	f, _ := v.(float64)
	return f
}
