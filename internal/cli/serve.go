package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/kalaiselvan-arumugam/imagegrep/internal/config"
	"github.com/kalaiselvan-arumugam/imagegrep/internal/embed"
	"github.com/kalaiselvan-arumugam/imagegrep/internal/httpapi"
	"github.com/kalaiselvan-arumugam/imagegrep/internal/ingest"
	"github.com/kalaiselvan-arumugam/imagegrep/internal/query"
	"github.com/kalaiselvan-arumugam/imagegrep/internal/store"
	"github.com/kalaiselvan-arumugam/imagegrep/internal/thumbnail"
	"github.com/kalaiselvan-arumugam/imagegrep/internal/tokenizer"
	"github.com/kalaiselvan-arumugam/imagegrep/internal/vault"
	"github.com/kalaiselvan-arumugam/imagegrep/internal/vectorindex"
	"github.com/kalaiselvan-arumugam/imagegrep/internal/watcher"
	"github.com/kalaiselvan-arumugam/imagegrep/internal/weights"
)

var serveAddr string

// serveCmd represents the serve command.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and web UI",
	Long: `Start the HTTP server that backs the web UI: search, browse, tag,
favorite, and reindex your photo library, and manage the CLIP model weights
and Hugging Face credential.

The configured folders are watched for changes while the server runs;
auto-index controls whether new or modified files are queued for
re-indexing (deletions are always applied) and can be toggled live via
the advanced settings endpoint.

Examples:
  imagegrepd serve
  imagegrepd serve --addr :9090`,
	RunE: runServeCmd,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "address to listen on (overrides config)")
}

func runServeCmd(cmd *cobra.Command, args []string) error {
	cfg := config.Get()

	addr := cfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}

	repo, err := store.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer repo.Close()

	v, err := vault.New()
	if err != nil {
		return fmt.Errorf("failed to initialize credential vault: %w", err)
	}

	if err := initOnnxRuntime(cfg); err != nil {
		return err
	}
	defer embed.ShutdownRuntime()

	tok := tokenizer.New()
	embedder := embed.New(embed.OnnxFactory{}, tok)

	creds := newVaultCredentialSource(repo, v)
	fetcher := weights.New(cfg.Models.Dir, cfg.Models.Repo, creds, embedder)

	if err := tryLoadModels(cfg, embedder); err != nil {
		log.Warn("models not loaded yet; search and indexing will be unavailable until a download completes", "error", err)
	}

	index := vectorindex.New()
	thumbs := thumbnail.New(cfg.Indexing.ThumbnailDir, cfg.Indexing.ThumbnailPx)
	pipeline := ingest.New(repo, thumbs, embedder, index, cfg.Indexing.ExtractExif)
	engine := query.New(repo, embedder, index)

	if err := pipeline.LoadIndex(); err != nil {
		log.Warn("failed to load vector index from store", "error", err)
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

	foldersFn := func() []string {
		paths := append([]string{}, cfg.Folders...)
		folders, err := repo.ListWatchedFolders()
		if err != nil {
			log.Warn("failed to list watched folders", "error", err)
			return paths
		}
		for _, f := range folders {
			if f.Active && !slices.Contains(paths, f.FolderPath) {
				paths = append(paths, f.FolderPath)
			}
		}
		return paths
	}

	srv := httpapi.New(repo, engine, pipeline, thumbs, index, fetcher, v, cfg.Models.Dir, foldersFn)

	// The watcher always runs so delete events keep the index consistent
	// with disk regardless of the auto-index setting; auto-index only
	// gates whether create/modify events get queued for re-indexing, and
	// that gate can flip live via POST /settings/advanced.
	if w := startWatcher(ctx, foldersFn(), pipeline, cfg.Watch.DebounceMS, cfg.Watch.AutoIndex); w != nil {
		srv.SetWatcherControl(w)
	}

	server := &http.Server{Addr: addr, Handler: srv.Routes()}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	log.Info("serving", "addr", addr)
	if err := server.ListenAndServe(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// tryLoadModels loads the CLIP weights from cfg.Models.Dir if every file is
// already present, so a restart doesn't require re-downloading weights
// that were fetched in a previous run.
func tryLoadModels(cfg *config.Config, embedder *embed.Service) error {
	visionPath, textPath, tokenizerPath := weights.LocalPaths(cfg.Models.Dir)
	for _, p := range []string{visionPath, textPath, tokenizerPath} {
		if _, err := os.Stat(p); err != nil {
			return err
		}
	}
	return embedder.LoadModels(visionPath, textPath, tokenizerPath)
}

func startWatcher(ctx context.Context, folders []string, pipeline *ingest.Pipeline, debounceMS int, autoIndex bool) *watcher.Watcher {
	if len(folders) == 0 {
		log.Debug("no folders configured; skipping folder watcher")
		return nil
	}

	w, err := watcher.New(folders, pipeline,
		watcher.WithDebounceTime(time.Duration(debounceMS)*time.Millisecond),
		watcher.WithAutoIndex(autoIndex),
		watcher.WithEventCallback(func(event, path string) {
			log.Debug("watch event", "event", event, "path", path)
		}),
	)
	if err != nil {
		log.Warn("failed to start folder watcher", "error", err)
		return nil
	}

	go func() {
		if err := w.Start(ctx); err != nil && ctx.Err() == nil {
			log.Warn("watcher stopped", "error", err)
		}
	}()

	return w
}
