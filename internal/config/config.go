// Package config handles configuration loading and validation for
// imagegrep: a layered defaults → config file → environment variables
// stack in the viper idiom.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/viper"
)

// Config represents the complete imagegrep configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Models   ModelsConfig   `mapstructure:"models"`
	Indexing IndexingConfig `mapstructure:"indexing"`
	Search   SearchConfig   `mapstructure:"search"`
	Watch    WatchConfig    `mapstructure:"watch"`
	Folders  []string       `mapstructure:"folders"`
}

// ServerConfig configures the HTTP façade.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// DatabaseConfig configures the SQLite database.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// ModelsConfig configures the CLIP weights download and storage.
type ModelsConfig struct {
	Dir         string `mapstructure:"dir"`
	Repo        string `mapstructure:"repo"`
	HFToken     string `mapstructure:"hf_token"`
	OnnxRuntime string `mapstructure:"onnx_runtime_path"`
}

// IndexingConfig configures the ingestion pipeline.
type IndexingConfig struct {
	ThumbnailDir string `mapstructure:"thumbnail_dir"`
	ThumbnailPx  int    `mapstructure:"thumbnail_px"`
	ExtractExif  bool   `mapstructure:"extract_exif"`
}

// SearchConfig configures default query behavior.
type SearchConfig struct {
	MinScore float64 `mapstructure:"min_score"`
}

// WatchConfig configures the filesystem watcher.
type WatchConfig struct {
	AutoIndex  bool `mapstructure:"auto_index"`
	DebounceMS int  `mapstructure:"debounce_ms"`
}

// Global configuration instance
var cfg *Config

// Get returns the current configuration.
func Get() *Config {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return cfg
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr: DefaultServerAddr,
		},
		Database: DatabaseConfig{
			Path: DefaultDatabasePath(),
		},
		Models: ModelsConfig{
			Dir:  DefaultModelDir(),
			Repo: DefaultHFRepo,
		},
		Indexing: IndexingConfig{
			ThumbnailDir: DefaultThumbnailDir(),
			ThumbnailPx:  DefaultThumbnailPx,
			ExtractExif:  DefaultExtractExif,
		},
		Search: SearchConfig{
			MinScore: DefaultMinScore,
		},
		Watch: WatchConfig{
			AutoIndex:  DefaultAutoIndex,
			DebounceMS: DefaultDebounceMS,
		},
	}
}

// Load reads configuration from file and environment variables.
func Load(configFile string) error {
	// Set defaults
	setDefaults()

	// Set config file if specified
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		// Search for config in standard locations
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(DefaultConfigDir())
		viper.AddConfigPath(".")

		// Also check for .imagegreprc.yaml in current directory and parents
		if rcPath := findRCFile(); rcPath != "" {
			viper.SetConfigFile(rcPath)
		}
	}

	// Environment variables
	viper.SetEnvPrefix("IMAGEGREP")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Read config file
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
		log.Debug("No config file found, using defaults")
	} else {
		log.Debug("Loaded config from", "file", viper.ConfigFileUsed())
	}

	// Unmarshal into config struct
	cfg = &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return fmt.Errorf("error parsing config: %w", err)
	}

	// Load the Hugging Face token from the environment if not in config
	loadHFTokenFromEnv()

	return nil
}

// setDefaults sets default values in viper.
func setDefaults() {
	// Server
	viper.SetDefault("server.addr", DefaultServerAddr)

	// Database
	viper.SetDefault("database.path", DefaultDatabasePath())

	// Models
	viper.SetDefault("models.dir", DefaultModelDir())
	viper.SetDefault("models.repo", DefaultHFRepo)

	// Indexing
	viper.SetDefault("indexing.thumbnail_dir", DefaultThumbnailDir())
	viper.SetDefault("indexing.thumbnail_px", DefaultThumbnailPx)
	viper.SetDefault("indexing.extract_exif", DefaultExtractExif)

	// Search
	viper.SetDefault("search.min_score", DefaultMinScore)

	// Watch
	viper.SetDefault("watch.auto_index", DefaultAutoIndex)
	viper.SetDefault("watch.debounce_ms", DefaultDebounceMS)
}

// findRCFile searches for .imagegreprc.yaml starting from current directory.
func findRCFile() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	dir := cwd
	for {
		rcPath := filepath.Join(dir, ".imagegreprc.yaml")
		if _, err := os.Stat(rcPath); err == nil {
			return rcPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

// loadHFTokenFromEnv loads the Hugging Face access token from the
// environment if it wasn't set in the config file.
func loadHFTokenFromEnv() {
	if cfg.Models.HFToken != "" {
		return
	}
	if key := os.Getenv("HF_TOKEN"); key != "" {
		cfg.Models.HFToken = key
		return
	}
	if key := os.Getenv("HUGGINGFACE_TOKEN"); key != "" {
		cfg.Models.HFToken = key
	}
}

// ConfigFilePath returns the path of the loaded config file, or empty string if none.
func ConfigFilePath() string {
	return viper.ConfigFileUsed()
}

// GlobalConfigPath returns the path to the global config file.
func GlobalConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}
