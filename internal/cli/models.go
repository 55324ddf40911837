package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kalaiselvan-arumugam/imagegrep/internal/config"
	"github.com/kalaiselvan-arumugam/imagegrep/internal/embed"
	"github.com/kalaiselvan-arumugam/imagegrep/internal/tokenizer"
	"github.com/kalaiselvan-arumugam/imagegrep/internal/ui"
	"github.com/kalaiselvan-arumugam/imagegrep/internal/weights"
)

var modelsRepo string

// modelsCmd groups the CLIP weights management subcommands.
var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "Manage the CLIP model weights",
}

var modelsDownloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Download the CLIP vision/text models and tokenizer",
	Long: `Downloads the vision encoder, text encoder, and tokenizer vocabulary
from the configured Hugging Face repository into the local model
directory, then loads them so the embedding service is ready to use.

Examples:
  imagegrepd models download
  imagegrepd models download --repo openai/clip-vit-base-patch32`,
	RunE: runModelsDownloadCmd,
}

var modelsStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the model files are present on disk",
	RunE:  runModelsStatusCmd,
}

func init() {
	modelsDownloadCmd.Flags().StringVar(&modelsRepo, "repo", "", "Hugging Face repo to download from (overrides config)")
	modelsCmd.AddCommand(modelsDownloadCmd, modelsStatusCmd)
}

func runModelsDownloadCmd(cmd *cobra.Command, args []string) error {
	cfg := config.Get()

	repo, v, err := openTokenStore()
	if err != nil {
		return err
	}
	defer repo.Close()

	if err := initOnnxRuntime(cfg); err != nil {
		return err
	}
	defer embed.ShutdownRuntime()

	tok := tokenizer.New()
	embedder := embed.New(embed.OnnxFactory{}, tok)
	creds := newVaultCredentialSource(repo, v)
	fetcher := weights.New(cfg.Models.Dir, cfg.Models.Repo, creds, embedder)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nCancelling download...")
		cancel()
	}()

	events, unsubscribe := fetcher.Subscribe(16)
	defer unsubscribe()

	fmt.Println(ui.Header.Render("Downloading CLIP Models"))
	repoName := modelsRepo
	if repoName == "" {
		repoName = cfg.Models.Repo
	}
	fmt.Printf("Repo: %s\n\n", repoName)

	if err := fetcher.Start(ctx, modelsRepo); err != nil {
		return fmt.Errorf("failed to start download: %w", err)
	}

	for ev := range events {
		switch ev.Status {
		case weights.StatusDownloading:
			fmt.Printf("\r\033[K%s %s", ui.Dim.Render("downloading"), ev.File)
		case weights.StatusRetrying:
			fmt.Printf("\r\033[K%s %s: %s\n", ui.Warning.Render("retrying"), ev.File, ev.Message)
		case weights.StatusFileComplete:
			fmt.Printf("\r\033[K%s %s\n", ui.Success.Render("done"), ev.File)
		case weights.StatusSkipped:
			fmt.Printf("%s %s (already present)\n", ui.Dim.Render("skip"), ev.File)
		case weights.StatusLoading:
			fmt.Println(ui.Dim.Render("loading models..."))
		case weights.StatusReady:
			fmt.Println(ui.Success.Render("Models ready."))
			return nil
		case weights.StatusError:
			return fmt.Errorf("download failed: %s", ev.Message)
		}
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("download cancelled")
	}
	return nil
}

func runModelsStatusCmd(cmd *cobra.Command, args []string) error {
	cfg := config.Get()

	visionPath, textPath, tokenizerPath := weights.LocalPaths(cfg.Models.Dir)

	fmt.Println(ui.Header.Render("Model Files"))
	for _, p := range []string{visionPath, textPath, tokenizerPath} {
		if _, err := os.Stat(p); err != nil {
			fmt.Printf("  %s %s\n", ui.Warning.Render("missing"), p)
		} else {
			fmt.Printf("  %s %s\n", ui.Success.Render("present"), p)
		}
	}
	return nil
}
