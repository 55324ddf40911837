package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/kalaiselvan-arumugam/imagegrep/internal/config"
	"github.com/kalaiselvan-arumugam/imagegrep/internal/embed"
	"github.com/kalaiselvan-arumugam/imagegrep/internal/ingest"
	"github.com/kalaiselvan-arumugam/imagegrep/internal/store"
	"github.com/kalaiselvan-arumugam/imagegrep/internal/thumbnail"
	"github.com/kalaiselvan-arumugam/imagegrep/internal/tokenizer"
	"github.com/kalaiselvan-arumugam/imagegrep/internal/ui"
	"github.com/kalaiselvan-arumugam/imagegrep/internal/vectorindex"
	"github.com/kalaiselvan-arumugam/imagegrep/internal/watcher"
	"github.com/kalaiselvan-arumugam/imagegrep/internal/weights"
)

var watchNoInitial bool

// watchCmd represents the watch command.
var watchCmd = &cobra.Command{
	Use:   "watch [folders...]",
	Short: "Watch folders for changes and auto-reindex",
	Long: `Watch one or more folders for file changes and automatically
re-index new, modified, or deleted images as they happen, without running
the HTTP server.

Examples:
  imagegrepd watch ~/Pictures

  # Skip the initial bulk reindex
  imagegrepd watch --no-initial ~/Pictures`,
	RunE: runWatchCmd,
}

func init() {
	watchCmd.Flags().BoolVar(&watchNoInitial, "no-initial", false, "skip the initial bulk reindex")
}

func runWatchCmd(cmd *cobra.Command, args []string) error {
	cfg := config.Get()

	folders := args
	if len(folders) == 0 {
		folders = cfg.Folders
	}
	if len(folders) == 0 {
		return fmt.Errorf("no folders to watch: pass folders as arguments or configure them")
	}

	repo, err := store.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer repo.Close()

	if err := initOnnxRuntime(cfg); err != nil {
		return err
	}
	defer embed.ShutdownRuntime()

	visionPath, textPath, tokenizerPath := weights.LocalPaths(cfg.Models.Dir)
	tok := tokenizer.New()
	embedder := embed.New(embed.OnnxFactory{}, tok)
	if err := embedder.LoadModels(visionPath, textPath, tokenizerPath); err != nil {
		return fmt.Errorf("failed to load CLIP models (run 'imagegrepd models download' first): %w", err)
	}

	index := vectorindex.New()
	thumbs := thumbnail.New(cfg.Indexing.ThumbnailDir, cfg.Indexing.ThumbnailPx)
	pipeline := ingest.New(repo, thumbs, embedder, index, cfg.Indexing.ExtractExif)
	if err := pipeline.LoadIndex(); err != nil {
		log.Warn("failed to load existing vector index", "error", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nShutting down...")
		cancel()
	}()

	if !watchNoInitial {
		fmt.Println(ui.Header.Render("Initial Reindex"))
		for _, f := range folders {
			fmt.Printf("  %s\n", f)
		}
		fmt.Println()

		if err := pipeline.Reindex(ctx, folders, func(p ingest.Progress) {}); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("initial reindex failed: %w", err)
		}

		final := pipeline.Progress()
		fmt.Printf("Initial reindex complete: %d processed, %d errors\n\n", final.ProcessedFiles, final.Errors)
	}

	w, err := watcher.New(folders, pipeline,
		watcher.WithDebounceTime(time.Duration(cfg.Watch.DebounceMS)*time.Millisecond),
		watcher.WithAutoIndex(cfg.Watch.AutoIndex),
		watcher.WithEventCallback(func(event, path string) {
			log.Debug("file event", "event", event, "path", path)
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	fmt.Println(ui.Header.Render("Watching for Changes"))
	for _, f := range folders {
		fmt.Printf("  %s\n", f)
	}
	fmt.Println("Press Ctrl+C to stop.")
	fmt.Println()

	return w.Start(ctx)
}
