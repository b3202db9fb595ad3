package config

import (
	"bytes"
	"encoding/json"
	"go/format"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateDefault(t *testing.T) {
	cfg := GenerateDefault()

	assert.Equal(t, "1.0", cfg.Version)
	assert.Equal(t, ".", cfg.WorkspaceRoot)

	// Entry files should be empty array, not nil
	assert.NotNil(t, cfg.EntryFiles)
	assert.Empty(t, cfg.EntryFiles)

	assert.Equal(t, "anthropic", cfg.Oracle.Provider)
	assert.Equal(t, []string{"claude", "-p"}, cfg.Oracle.CLICmd)
	assert.Equal(t, 180, cfg.Oracle.TimeoutS)
	assert.True(t, cfg.Oracle.ClassifyIntent)

	assert.Equal(t, 100, cfg.Runner.PollIntervalMs)
	assert.Equal(t, int64(1048576), cfg.Limits.MaxReadBytes)
	assert.Equal(t, 204800, cfg.Limits.MaxPromptBytes)
	assert.Equal(t, ".patchloop", cfg.Storage.Dir)
}

func TestGenerateDefaultMatchesGoldenFile(t *testing.T) {
	goldenPath := filepath.Join("..", "..", "testdata", "golden_config.json")
	goldenBytes, err := os.ReadFile(goldenPath)
	require.NoError(t, err, "Failed to read golden config file")

	generatedJSON, err := json.MarshalIndent(GenerateDefault(), "", "  ")
	require.NoError(t, err)

	assert.JSONEq(t, string(goldenBytes), string(generatedJSON),
		"Generated config should match golden file")
}

func TestValidate_ValidConfig(t *testing.T) {
	assert.NoError(t, GenerateDefault().Validate(), "Default config should be valid")
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing version", func(c *Config) { c.Version = "" }, "version"},
		{"missing provider", func(c *Config) { c.Oracle.Provider = "" }, "oracle.provider"},
		{"unknown provider", func(c *Config) { c.Oracle.Provider = "skynet" }, "unknown 'oracle.provider'"},
		{"cli without command", func(c *Config) {
			c.Oracle.Provider = CLIProvider
			c.Oracle.CLICmd = nil
		}, "cli_cmd"},
		{"temperature", func(c *Config) { c.Oracle.Temperature = 3 }, "temperature"},
		{"negative timeout", func(c *Config) { c.Oracle.TimeoutS = -1 }, "timeout_s"},
		{"negative poll", func(c *Config) { c.Runner.PollIntervalMs = -5 }, "poll_interval_ms"},
		{"negative limits", func(c *Config) { c.Limits.MaxCycles = -1 }, "limits"},
		{"empty storage", func(c *Config) { c.Storage.Dir = " " }, "storage.dir"},
		{"empty entry", func(c *Config) { c.EntryFiles = []string{"main.py", ""} }, "entry_files"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := GenerateDefault()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
			assert.Contains(t, err.Error(), "Hint:")
		})
	}
}

func TestValidate_ProviderCaseInsensitive(t *testing.T) {
	cfg := GenerateDefault()
	cfg.Oracle.Provider = "OpenAI"
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromFile_ValidFile(t *testing.T) {
	goldenPath := filepath.Join("..", "..", "testdata", "golden_config.json")
	cfg, err := LoadFromFile(goldenPath)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, GenerateDefault(), cfg)
}

func TestLoadFromFile_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, os.WriteFile(path, []byte(`{
  "version": "1.0",
  "entry_files": ["app/main.py"],
  "oracle": {"provider": "gemini", "model": "gemini-2.5-pro"}
}`), 0600))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"app/main.py"}, cfg.EntryFiles)
	assert.Equal(t, "gemini", cfg.Oracle.Provider)
	assert.Equal(t, "gemini-2.5-pro", cfg.Oracle.Model)
	assert.Equal(t, 4096, cfg.Oracle.MaxTokens)
	assert.Equal(t, ".patchloop", cfg.Storage.Dir)
	assert.Equal(t, 50, cfg.Limits.MaxCycles)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("PATCHLOOP_ORACLE_MODEL", "gpt-4o")
	t.Setenv("PATCHLOOP_LIMITS_MAX_CYCLES", "7")
	t.Setenv("PATCHLOOP_ENTRY_FILES", "a.py,b.py")
	t.Setenv("PATCHLOOP_SERVER_ADDR", ":9000")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "gpt-4o", cfg.Oracle.Model)
	assert.Equal(t, 7, cfg.Limits.MaxCycles)
	assert.Equal(t, []string{"a.py", "b.py"}, cfg.EntryFiles)
	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, "anthropic", cfg.Oracle.Provider)
}

func TestLoadFromFile_EnvironmentBeatsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, GenerateDefault().SaveToFile(path))
	t.Setenv("PATCHLOOP_ORACLE_PROVIDER", "ollama")

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "ollama", cfg.Oracle.Provider)
}

func TestLoadFromFile_NonExistent(t *testing.T) {
	cfg, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
	assert.Nil(t, cfg)
}

func TestLoadFromFile_InvalidJSON(t *testing.T) {
	invalidFile := filepath.Join(t.TempDir(), "invalid.json")
	require.NoError(t, os.WriteFile(invalidFile, []byte("{invalid json"), 0600))

	cfg, err := LoadFromFile(invalidFile)
	assert.Error(t, err)
	assert.Nil(t, cfg)
}

func TestSaveToFile(t *testing.T) {
	cfg := GenerateDefault()
	cfg.EntryFiles = []string{"main.py"}
	configPath := filepath.Join(t.TempDir(), FileName)

	require.NoError(t, cfg.SaveToFile(configPath))

	loaded, err := LoadFromFile(configPath)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)

	info, err := os.Stat(configPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestFindInTree(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0755))

	found, err := FindInTree(nested)
	require.NoError(t, err)
	if found != "" {
		// A patchloop.json above the temp dir would shadow the test.
		t.Skipf("unexpected config above temp dir: %s", found)
	}

	configPath := filepath.Join(root, FileName)
	require.NoError(t, GenerateDefault().SaveToFile(configPath))

	found, err = FindInTree(nested)
	require.NoError(t, err)
	assert.Equal(t, configPath, found)
}

func TestResolvedPaths(t *testing.T) {
	cfg := GenerateDefault()
	cfg.WorkspaceRoot = "src"
	cfg.EntryFiles = []string{"main.py", "/abs/tool.py"}

	ws := cfg.WorkspacePath(filepath.Join("/proj", FileName), "/elsewhere")
	assert.Equal(t, filepath.Join("/proj", "src"), ws)
	assert.Equal(t, filepath.Join("/proj", "src", ".patchloop"), cfg.StoragePath(ws))
	assert.Equal(t, filepath.Join("/proj", "src", ".patchloop", "history", "snapshots"), cfg.SnapshotPath(ws))
	assert.Equal(t, []string{filepath.Join("/proj", "src", "main.py"), "/abs/tool.py"}, cfg.EntryPaths(ws))

	cfg.WorkspaceRoot = "."
	assert.Equal(t, "/elsewhere", cfg.WorkspacePath("", "/elsewhere"))
}

func TestSourceIsFormatted(t *testing.T) {
	src, err := os.ReadFile("config.go")
	require.NoError(t, err)

	formatted, err := format.Source(src)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(src, formatted), "config.go is not gofmt-formatted")
}
