// Command watchdog runs the independent lease-resurrection sweep
// (§4.6, §6 "watchdog daemon (environment-only)").
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/sxm1129/bookqueue/internal/config"
	"github.com/sxm1129/bookqueue/internal/health"
	"github.com/sxm1129/bookqueue/internal/store"
	"github.com/sxm1129/bookqueue/internal/watchdog"
)

func main() {
	cmd := &cobra.Command{
		Use:   "watchdog",
		Short: "Resurrect chapter tasks with a stale heartbeat",
		RunE:  run,
	}
	if err := cmd.Execute(); err != nil {
		log.Fatalf("watchdog: %v", err)
	}
}

func run(cmd *cobra.Command, args []string) error {
	runID := uuid.NewString()
	log.Printf("watchdog starting, run_id=%s", runID)

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	installSignalHandler(cancel)

	taskStore, err := store.Open(ctx, cfg.Database.DSN, store.PoolOptions{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: time.Duration(cfg.Database.ConnMaxLifetime) * time.Second,
	})
	if err != nil {
		return fmt.Errorf("open task store: %w", err)
	}
	defer taskStore.Close()

	go serveHealth(taskStore, ":9091")

	wd := watchdog.New(taskStore, cfg.Watchdog.ThresholdMinutes, cfg.Watchdog.ResurrectionInterval())
	log.Printf("watchdog ready (threshold=%dm, interval=%s)", cfg.Watchdog.ThresholdMinutes, cfg.Watchdog.ResurrectionInterval())
	wd.Run(ctx)
	return nil
}

func installSignalHandler(cancel context.CancelFunc) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("received %v, shutting down", sig)
		cancel()
	}()
}

func serveHealth(taskStore *store.Store, addr string) {
	handler := health.NewHandler("bookqueue-watchdog")
	handler.Register("task_store", func(ctx context.Context) (health.Status, error) {
		if err := taskStore.Ping(ctx); err != nil {
			return health.StatusUnhealthy, err
		}
		return health.StatusHealthy, nil
	})
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", handler.ReadinessHandler())
	log.Printf("health endpoint listening on %s/healthz", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Printf("health endpoint stopped: %v", err)
	}
}
