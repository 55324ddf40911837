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
	"github.com/kalaiselvan-arumugam/imagegrep/internal/weights"
)

var reindexFolders []string

// reindexCmd represents the reindex command.
var reindexCmd = &cobra.Command{
	Use:   "reindex [folders...]",
	Short: "Run a one-shot bulk reindex",
	Long: `Walk the configured (or given) folders once, indexing every new or
changed image. Records for files that no longer exist on disk are not
removed by this command.

Requires the CLIP model weights to already be downloaded; run
'imagegrepd models download' first if they are not.

Examples:
  imagegrepd reindex
  imagegrepd reindex ~/Pictures ~/Camera`,
	RunE: runReindexCmd,
}

func init() {
	reindexCmd.Flags().StringSliceVar(&reindexFolders, "folder", nil, "folder to scan (repeatable; defaults to configured folders)")
}

func runReindexCmd(cmd *cobra.Command, args []string) error {
	cfg := config.Get()

	folders := reindexFolders
	if len(folders) == 0 {
		folders = args
	}

	repo, err := store.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer repo.Close()

	if len(folders) == 0 {
		watched, err := repo.ListWatchedFolders()
		if err != nil {
			return fmt.Errorf("failed to list watched folders: %w", err)
		}
		for _, f := range watched {
			folders = append(folders, f.FolderPath)
		}
	}
	if len(folders) == 0 {
		folders = cfg.Folders
	}
	if len(folders) == 0 {
		return fmt.Errorf("no folders to index: pass --folder or configure folders")
	}

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
		fmt.Println("\nInterrupted, finishing current file...")
		cancel()
	}()

	fmt.Println(ui.Header.Render("Reindexing"))
	for _, f := range folders {
		fmt.Printf("  %s\n", f)
	}
	fmt.Println()

	startTime := time.Now()
	lastUpdate := time.Now()

	err = pipeline.Reindex(ctx, folders, func(p ingest.Progress) {
		if time.Since(lastUpdate) < 100*time.Millisecond {
			return
		}
		lastUpdate = time.Now()

		fmt.Printf("\r\033[K")
		if p.TotalFiles > 0 {
			pct := float64(p.ProcessedFiles) / float64(p.TotalFiles) * 100
			fmt.Printf("Progress: %d/%d (%.0f%%) | errors: %d | %s",
				p.ProcessedFiles, p.TotalFiles, pct, p.Errors, truncatePath(p.CurrentFile, 40))
		}
	})

	fmt.Printf("\r\033[K")

	if err != nil {
		if ctx.Err() != nil {
			fmt.Println(ui.Warning.Render("Reindex cancelled"))
			return nil
		}
		return fmt.Errorf("reindex failed: %w", err)
	}

	final := pipeline.Progress()
	duration := time.Since(startTime).Round(time.Millisecond)

	fmt.Println(ui.Success.Render("Reindex complete!"))
	fmt.Println()
	fmt.Printf("  Processed: %d\n", final.ProcessedFiles)
	fmt.Printf("  Skipped:   %d\n", final.SkippedFiles)
	fmt.Printf("  Errors:    %d\n", final.Errors)
	fmt.Printf("  Duration:  %s\n", duration)

	return nil
}

// truncatePath shortens a path for single-line progress display.
func truncatePath(path string, maxLen int) string {
	if len(path) <= maxLen {
		return path
	}
	return "..." + path[len(path)-maxLen+3:]
}
