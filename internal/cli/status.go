package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/kalaiselvan-arumugam/imagegrep/internal/config"
	"github.com/kalaiselvan-arumugam/imagegrep/internal/store"
	"github.com/kalaiselvan-arumugam/imagegrep/internal/ui"
	"github.com/kalaiselvan-arumugam/imagegrep/internal/weights"
)

// statusCmd represents the status command.
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show index and model health",
	Long: `Display information about the indexed library: how many images
carry an embedding, how many are favorited, watched folders, and whether
the CLIP model weights are present on disk.

Examples:
  imagegrepd status`,
	RunE: runStatusCmd,
}

func runStatusCmd(cmd *cobra.Command, args []string) error {
	cfg := config.Get()

	repo, err := store.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer repo.Close()

	fmt.Println(ui.Header.Render("Index Status"))
	fmt.Println()

	embedded, err := repo.CountWithEmbedding()
	if err != nil {
		return fmt.Errorf("failed to count embedded images: %w", err)
	}
	favorites, err := repo.CountFavorites()
	if err != nil {
		return fmt.Errorf("failed to count favorites: %w", err)
	}

	fmt.Printf("  %s %s\n", ui.Dim.Render("Indexed:"), ui.FormatCount(embedded, "image", "images"))
	fmt.Printf("  %s %s\n", ui.Dim.Render("Favorites:"), ui.FormatCount(favorites, "image", "images"))

	folders, err := repo.ListWatchedFolders()
	if err != nil {
		return fmt.Errorf("failed to list watched folders: %w", err)
	}
	fmt.Printf("  %s %s\n", ui.Dim.Render("Watched folders:"), ui.FormatCount(len(folders), "folder", "folders"))
	for _, f := range folders {
		marker := ui.Success.Render("active")
		if !f.Active {
			marker = ui.Dim.Render("inactive")
		}
		if _, statErr := os.Stat(f.FolderPath); os.IsNotExist(statErr) {
			marker = ui.Warning.Render("missing")
		}
		fmt.Printf("    - %s (%s, %s)\n", f.FolderPath, marker, ui.FormatCount(f.ImageCount, "image", "images"))
	}

	logs, err := repo.RecentReindexLogs(5)
	if err == nil && len(logs) > 0 {
		fmt.Println()
		fmt.Println(ui.Dim.Render("Recent activity:"))
		for _, entry := range logs {
			detail := entry.FilePath
			if entry.ErrorMessage != "" {
				detail = fmt.Sprintf("%s (%s)", entry.FilePath, entry.ErrorMessage)
			}
			fmt.Printf("    %s  %s  %s\n", formatStatusTime(entry.ProcessedAt), entry.Status, detail)
		}
	}

	fmt.Println()
	fmt.Println(ui.Dim.Render("Models:"))
	visionPath, textPath, tokenizerPath := weights.LocalPaths(cfg.Models.Dir)
	for _, p := range []string{visionPath, textPath, tokenizerPath} {
		if _, err := os.Stat(p); err != nil {
			fmt.Printf("    %s %s\n", ui.Warning.Render("missing"), p)
		} else {
			fmt.Printf("    %s %s\n", ui.Success.Render("present"), p)
		}
	}

	fmt.Println()
	fmt.Println(ui.Dim.Render("Configuration:"))
	fmt.Printf("  Database: %s\n", cfg.Database.Path)
	fmt.Printf("  Model repo: %s\n", cfg.Models.Repo)
	fmt.Printf("  Server address: %s\n", cfg.Server.Addr)

	return nil
}

func formatStatusTime(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	now := time.Now()
	if t.Year() == now.Year() && t.YearDay() == now.YearDay() {
		return "today at " + t.Format("15:04")
	}
	return t.Format("Jan 2 at 15:04")
}
