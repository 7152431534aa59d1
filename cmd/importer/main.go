// Command importer bulk-imports *.txt book files under a root
// directory into the task store (§4.2, §6 "bulk importer (root_dir,
// --limit, --log-level, --env)"). --watch and --dry-run are carried
// forward from the original project's ad-hoc verification scripts,
// folded into this single entry point instead of staying separate
// one-shot tools.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/sxm1129/bookqueue/internal/config"
	"github.com/sxm1129/bookqueue/internal/importer"
	"github.com/sxm1129/bookqueue/internal/store"
)

var (
	limit    int
	logLevel string
	env      string
	watch    bool
	dryRun   bool
)

func main() {
	cmd := &cobra.Command{
		Use:   "importer ROOT_DIR",
		Short: "Bulk-import book files from ROOT_DIR into the task store",
		Args:  cobra.ExactArgs(1),
		RunE:  run,
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of files to import (0 = unlimited)")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "log verbosity: debug, info, warning, error")
	cmd.Flags().StringVar(&env, "env", "production", "deployment environment label, logged only")
	cmd.Flags().BoolVar(&watch, "watch", false, "after the initial pass, watch ROOT_DIR for new or modified *.txt files")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "parse and report chapter counts without writing to the store")

	if err := cmd.Execute(); err != nil {
		log.Fatalf("importer: %v", err)
	}
}

func run(cmd *cobra.Command, args []string) error {
	rootDir := args[0]
	runID := uuid.NewString()
	log.Printf("importer starting, run_id=%s env=%s log_level=%s root=%s", runID, env, logLevel, rootDir)

	var imp *importer.Importer
	if dryRun {
		imp = importer.New(nil)
		log.Printf("dry run: no database connection will be opened")
	} else {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		ctx := context.Background()
		taskStore, err := store.Open(ctx, cfg.Database.DSN, store.PoolOptions{
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: time.Duration(cfg.Database.ConnMaxLifetime) * time.Second,
		})
		if err != nil {
			return fmt.Errorf("open task store: %w", err)
		}
		defer taskStore.Close()
		imp = importer.New(taskStore)
	}

	ctx := context.Background()
	results, err := imp.ImportTree(ctx, rootDir, limit, dryRun)
	if err != nil {
		return fmt.Errorf("import tree %s: %w", rootDir, err)
	}
	reportResults(results)

	if watch {
		return watchTree(ctx, imp, rootDir)
	}
	return nil
}

func reportResults(results []*importer.Result) {
	total := 0
	for _, r := range results {
		total += r.ChapterCount
		log.Printf("  %-40s %q (%d chapters)", filepath.Base(r.Path), r.Title, r.ChapterCount)
	}
	log.Printf("imported %d file(s), %d chapter(s) total", len(results), total)
}

func watchTree(ctx context.Context, imp *importer.Importer, rootDir string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := addRecursive(watcher, rootDir); err != nil {
		return fmt.Errorf("watch %s: %w", rootDir, err)
	}

	log.Printf("watching %s for new or modified *.txt files", rootDir)
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !strings.EqualFold(filepath.Ext(event.Name), ".txt") {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			res, err := imp.ImportFile(ctx, event.Name)
			if err != nil {
				log.Printf("watch: skip %s: %v", event.Name, err)
				continue
			}
			log.Printf("watch: imported %s (%d chapters)", event.Name, res.ChapterCount)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Printf("watch error: %v", err)
		}
	}
}

func addRecursive(watcher *fsnotify.Watcher, root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return watcher.Add(path)
		}
		return nil
	})
}
