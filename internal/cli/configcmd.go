package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kalaiselvan-arumugam/imagegrep/internal/config"
	"github.com/kalaiselvan-arumugam/imagegrep/internal/ui"
)

var configShowPath bool

// configCmd represents the config command.
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show configuration settings and file locations",
	Long: `Display the active configuration, or just the config file paths
that were searched.

Examples:
  imagegrepd config
  imagegrepd config --path`,
	RunE: runConfigCmd,
}

func init() {
	configCmd.Flags().BoolVar(&configShowPath, "path", false, "show config file paths instead of values")
	rootCmd.AddCommand(configCmd)
}

func runConfigCmd(cmd *cobra.Command, args []string) error {
	if configShowPath {
		fmt.Println(ui.SectionTitle.Render("Configuration Paths"))
		fmt.Println()
		fmt.Printf("Global config: %s\n", config.GlobalConfigPath())
		fmt.Printf("Local config:  .imagegreprc.yaml (searched from cwd upward)\n")
		fmt.Printf("Active config: %s\n", config.ConfigFilePath())
		fmt.Printf("Database:      %s\n", config.Get().Database.Path)
		return nil
	}

	cfg := config.Get()

	fmt.Println(ui.SectionTitle.Render("Current Configuration"))
	fmt.Println()

	fmt.Println(ui.Bold.Render("Server:"))
	fmt.Printf("  Address: %s\n", cfg.Server.Addr)
	fmt.Println()

	fmt.Println(ui.Bold.Render("Models:"))
	fmt.Printf("  Directory: %s\n", cfg.Models.Dir)
	fmt.Printf("  Repo: %s\n", cfg.Models.Repo)
	fmt.Printf("  ONNX Runtime: %s\n", cfg.Models.OnnxRuntime)
	fmt.Println()

	fmt.Println(ui.Bold.Render("Indexing:"))
	fmt.Printf("  Thumbnail Directory: %s\n", cfg.Indexing.ThumbnailDir)
	fmt.Printf("  Thumbnail Size: %dpx\n", cfg.Indexing.ThumbnailPx)
	fmt.Printf("  Extract EXIF: %t\n", cfg.Indexing.ExtractExif)
	fmt.Println()

	fmt.Println(ui.Bold.Render("Search:"))
	fmt.Printf("  Minimum Score: %.2f\n", cfg.Search.MinScore)
	fmt.Println()

	fmt.Println(ui.Bold.Render("Watch:"))
	fmt.Printf("  Auto-index: %t\n", cfg.Watch.AutoIndex)
	fmt.Printf("  Debounce: %dms\n", cfg.Watch.DebounceMS)
	fmt.Println()

	fmt.Println(ui.Bold.Render("Database:"))
	fmt.Printf("  Path: %s\n", cfg.Database.Path)
	fmt.Println()

	fmt.Println(ui.Bold.Render("Folders:"))
	if len(cfg.Folders) == 0 {
		fmt.Println("  (none configured)")
	}
	for _, f := range cfg.Folders {
		fmt.Printf("  - %s\n", f)
	}

	return nil
}
