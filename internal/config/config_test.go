package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.NotNil(t, cfg)

	assert.Equal(t, DefaultServerAddr, cfg.Server.Addr)
	assert.Equal(t, DefaultHFRepo, cfg.Models.Repo)
	assert.Equal(t, DefaultThumbnailPx, cfg.Indexing.ThumbnailPx)
	assert.Equal(t, DefaultExtractExif, cfg.Indexing.ExtractExif)
	assert.Equal(t, DefaultMinScore, cfg.Search.MinScore)
	assert.Equal(t, DefaultAutoIndex, cfg.Watch.AutoIndex)
	assert.Equal(t, DefaultDebounceMS, cfg.Watch.DebounceMS)
}

func TestDefaultPaths(t *testing.T) {
	configDir := DefaultConfigDir()
	dataDir := DefaultDataDir()
	dbPath := DefaultDatabasePath()
	modelDir := DefaultModelDir()
	thumbDir := DefaultThumbnailDir()

	assert.NotEmpty(t, configDir)
	assert.NotEmpty(t, dataDir)
	assert.NotEmpty(t, dbPath)

	assert.Contains(t, configDir, "imagegrep")
	assert.Contains(t, dataDir, "imagegrep")
	assert.Contains(t, dbPath, DefaultDBFileName)
	assert.Contains(t, modelDir, DefaultModelSubdir)
	assert.Contains(t, thumbDir, DefaultThumbsSubdir)
}

func TestLoadWithConfigFile(t *testing.T) {
	viper.Reset()
	cfg = nil

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
server:
  addr: ":9090"
database:
  path: /custom/path/imagegrep.db
models:
  dir: /custom/models
  repo: custom/clip-repo
indexing:
  thumbnail_px: 512
  extract_exif: false
search:
  min_score: 0.35
watch:
  auto_index: false
  debounce_ms: 3000
folders:
  - /photos/vacation
  - /photos/family
`
	err := os.WriteFile(configPath, []byte(configContent), 0644)
	require.NoError(t, err)

	err = Load(configPath)
	require.NoError(t, err)

	loadedCfg := Get()

	assert.Equal(t, ":9090", loadedCfg.Server.Addr)
	assert.Equal(t, "/custom/path/imagegrep.db", loadedCfg.Database.Path)
	assert.Equal(t, "/custom/models", loadedCfg.Models.Dir)
	assert.Equal(t, "custom/clip-repo", loadedCfg.Models.Repo)
	assert.Equal(t, 512, loadedCfg.Indexing.ThumbnailPx)
	assert.False(t, loadedCfg.Indexing.ExtractExif)
	assert.InDelta(t, 0.35, loadedCfg.Search.MinScore, 0.0001)
	assert.False(t, loadedCfg.Watch.AutoIndex)
	assert.Equal(t, 3000, loadedCfg.Watch.DebounceMS)
	assert.ElementsMatch(t, []string{"/photos/vacation", "/photos/family"}, loadedCfg.Folders)
}

func TestLoadWithEnvironmentVariables(t *testing.T) {
	viper.Reset()
	cfg = nil

	t.Setenv("IMAGEGREP_SERVER_ADDR", ":7070")
	t.Setenv("IMAGEGREP_MODELS_REPO", "env/clip-repo")
	t.Setenv("IMAGEGREP_WATCH_AUTO_INDEX", "false")

	err := Load("")
	require.NoError(t, err)

	loadedCfg := Get()

	assert.Equal(t, ":7070", loadedCfg.Server.Addr)
	assert.Equal(t, "env/clip-repo", loadedCfg.Models.Repo)
	assert.False(t, loadedCfg.Watch.AutoIndex)
}

func TestLoadReadsHFTokenFromEnv(t *testing.T) {
	viper.Reset()
	cfg = nil

	t.Setenv("HF_TOKEN", "hf_from_env")

	err := Load("")
	require.NoError(t, err)

	loadedCfg := Get()
	assert.Equal(t, "hf_from_env", loadedCfg.Models.HFToken)
}

func TestLoadFallsBackToHuggingfaceTokenEnv(t *testing.T) {
	viper.Reset()
	cfg = nil

	t.Setenv("HUGGINGFACE_TOKEN", "hf_legacy_env")

	err := Load("")
	require.NoError(t, err)

	loadedCfg := Get()
	assert.Equal(t, "hf_legacy_env", loadedCfg.Models.HFToken)
}

func TestLoadPrefersConfiguredTokenOverEnv(t *testing.T) {
	viper.Reset()
	cfg = nil

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	err := os.WriteFile(configPath, []byte("models:\n  hf_token: hf_from_file\n"), 0644)
	require.NoError(t, err)

	t.Setenv("HF_TOKEN", "hf_from_env")

	err = Load(configPath)
	require.NoError(t, err)

	loadedCfg := Get()
	assert.Equal(t, "hf_from_file", loadedCfg.Models.HFToken)
}

func TestLoadMissingConfigFile(t *testing.T) {
	viper.Reset()
	cfg = nil

	err := Load("")
	require.NoError(t, err)

	loadedCfg := Get()

	assert.Equal(t, DefaultServerAddr, loadedCfg.Server.Addr)
	assert.Equal(t, DefaultHFRepo, loadedCfg.Models.Repo)
}

func TestGet(t *testing.T) {
	cfg = nil

	c1 := Get()
	assert.NotNil(t, c1)

	c2 := Get()
	assert.Same(t, c1, c2)
}

func TestGlobalConfigPath(t *testing.T) {
	path := GlobalConfigPath()
	assert.Contains(t, path, "imagegrep")
	assert.Contains(t, path, "config.yaml")
}
