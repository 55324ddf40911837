package config

import (
	"os"
	"path/filepath"
)

// Default configuration values.
const (
	DefaultHFRepo       = "openai/clip-vit-base-patch32"
	DefaultServerAddr   = ":8080"
	DefaultMinScore     = 0.24
	DefaultDebounceMS   = 1500
	DefaultThumbnailPx  = 300
	DefaultAutoIndex    = true
	DefaultExtractExif  = true
	DefaultDBFileName   = "imagegrep.db"
	DefaultModelSubdir  = "models"
	DefaultThumbsSubdir = "thumbnails"
)

// DefaultConfigDir returns the default configuration directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/imagegrep"
	}
	return filepath.Join(home, ".config", "imagegrep")
}

// DefaultDataDir returns the default data directory path.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".local/share/imagegrep"
	}
	return filepath.Join(home, ".local", "share", "imagegrep")
}

// DefaultDatabasePath returns the default database file path.
func DefaultDatabasePath() string {
	return filepath.Join(DefaultDataDir(), DefaultDBFileName)
}

// DefaultModelDir returns the default directory the CLIP weights are
// downloaded into.
func DefaultModelDir() string {
	return filepath.Join(DefaultDataDir(), DefaultModelSubdir)
}

// DefaultThumbnailDir returns the default directory generated thumbnails
// are written to.
func DefaultThumbnailDir() string {
	return filepath.Join(DefaultDataDir(), DefaultThumbsSubdir)
}
