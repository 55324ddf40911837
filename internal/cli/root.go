// Package cli implements the command-line interface for imagegrep.
package cli

import (
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kalaiselvan-arumugam/imagegrep/internal/config"
	"github.com/kalaiselvan-arumugam/imagegrep/internal/ui"
)

var (
	// Version information set at build time
	version = "dev"
	commit  = "none"
	date    = "unknown"

	// Global flags
	cfgFile string
	debug   bool
)

// SetVersionInfo sets the version information from build flags.
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
}

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "imagegrepd",
	Short: "Offline semantic image search",
	Long: `imagegrepd indexes your local photo library with a local CLIP model and
lets you search it by natural language, by example image, by tag, or by
folder — entirely offline once the model weights are downloaded.

Examples:
  # Run the HTTP API and web UI
  imagegrepd serve

  # Bulk reindex the configured folders once
  imagegrepd reindex

  # Watch the configured folders for changes
  imagegrepd watch

  # Check index health
  imagegrepd status`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Load(cfgFile); err != nil {
			log.Warn("failed to load config", "error", err)
		}

		// After config.Load has set the IMAGEGREP env prefix, viper's "debug"
		// key reflects both the --debug flag and IMAGEGREP_DEBUG.
		if debug || viper.GetBool("debug") {
			log.SetLevel(log.DebugLevel)
			log.Debug("debug logging enabled")
		}

		return nil
	},
}

// Execute adds all child commands to the root command and sets flags
// appropriately. Called once by main.main().
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	ui.InitLogger()

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/imagegrep/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(reindexCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(modelsCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("imagegrepd %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
	},
}
