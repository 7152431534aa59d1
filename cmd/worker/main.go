// Command worker runs the chapter-task processing loop: fetch one
// eligible task, process it to completion or backoff, repeat, idling
// between empty fetches (§2 component 4, §6 "worker daemon
// (environment-only)").
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
	"github.com/sxm1129/bookqueue/internal/storage"
	"github.com/sxm1129/bookqueue/internal/store"
	"github.com/sxm1129/bookqueue/internal/ttsclient"
	"github.com/sxm1129/bookqueue/internal/worker"
)

func main() {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run the chapter-task processing loop",
		RunE:  run,
	}
	if err := cmd.Execute(); err != nil {
		log.Fatalf("worker: %v", err)
	}
}

func run(cmd *cobra.Command, args []string) error {
	runID := uuid.NewString()
	log.Printf("worker starting, run_id=%s", runID)

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if dump, err := cfg.Dump(); err == nil {
		log.Printf("resolved config:\n%s", dump)
	}

	// bgCtx backs anything that must not be interrupted by a shutdown
	// signal: opening the store/blob client, and every in-flight task
	// (§5 "exits after the current task completes (cooperative).
	// In-flight HTTP calls are not interrupted"). loopCtx backs only
	// the idle/fetch wait between tasks, so the worker still reacts to
	// a signal promptly when it isn't holding a task.
	bgCtx := context.Background()
	loopCtx, cancelLoop := context.WithCancel(bgCtx)
	defer cancelLoop()
	stopCh := installSignalHandler(cancelLoop)

	taskStore, err := store.Open(bgCtx, cfg.Database.DSN, store.PoolOptions{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: time.Duration(cfg.Database.ConnMaxLifetime) * time.Second,
	})
	if err != nil {
		return fmt.Errorf("open task store: %w", err)
	}
	defer taskStore.Close()

	blob, err := storage.NewBlobStore(cfg.Storage)
	if err != nil {
		return fmt.Errorf("open blob store: %w", err)
	}
	defer blob.Close()

	ttsClient := ttsclient.New(ttsclient.Config{
		BaseURL:          cfg.TTS.APIURL,
		APIKey:           cfg.TTS.APIKey,
		SpeakerAudioPath: cfg.TTS.SpeakerAudioPath,
		PollAttempts:     cfg.TTS.PollAttempts,
		PollInterval:     cfg.TTS.PollInterval(),
	})

	fetcher := worker.NewFetcher(taskStore, cfg.Worker.ID)
	processor := worker.NewProcessor(
		taskStore,
		worker.NewTTSClientAdapter(ttsClient),
		blob,
		cfg.Worker.ID,
		cfg.Worker.MaxRetries,
		cfg.Worker.GPULimit,
		cfg.Worker.HeartbeatPeriod(),
		cfg.Storage.PresignExpiration(),
	)

	go serveHealth(taskStore, ":9090")

	log.Printf("worker %s ready (gpu_limit=%d, max_retries=%d)", cfg.Worker.ID, cfg.Worker.GPULimit, cfg.Worker.MaxRetries)
	for {
		select {
		case <-stopCh:
			log.Printf("worker %s shutting down", cfg.Worker.ID)
			return nil
		default:
		}

		task, err := fetcher.FetchOne(loopCtx)
		if err != nil {
			log.Printf("fetch error: %v", err)
			worker.Idle(loopCtx)
			continue
		}
		if task == nil {
			worker.Idle(loopCtx)
			continue
		}

		log.Printf("claimed task %d (book %d, chapter %d)", task.TaskID, task.BookID, task.ChapterIndex)
		if err := processor.ProcessTask(bgCtx, task); err != nil {
			log.Printf("process task %d: %v", task.TaskID, err)
		}
	}
}

// installSignalHandler returns a channel closed on SIGINT/SIGTERM. The
// main loop checks it between tasks to stop claiming new work;
// cancelLoop additionally unblocks an in-progress idle wait or fetch
// so shutdown doesn't wait out a full idle sleep.
func installSignalHandler(cancelLoop context.CancelFunc) <-chan struct{} {
	stopCh := make(chan struct{})
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("received %v, finishing current task before exit", sig)
		close(stopCh)
		cancelLoop()
	}()
	return stopCh
}

func serveHealth(taskStore *store.Store, addr string) {
	handler := health.NewHandler("bookqueue-worker")
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
