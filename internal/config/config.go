package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// FileName is the config file searched for in the project tree
const FileName = "patchloop.json"

// EnvPrefix prefixes environment overrides, e.g. PATCHLOOP_ORACLE_MODEL
const EnvPrefix = "PATCHLOOP"

// Config represents the patchloop.json configuration file
type Config struct {
	Version       string        `json:"version" mapstructure:"version"`
	WorkspaceRoot string        `json:"workspace_root" mapstructure:"workspace_root"`
	EntryFiles    []string      `json:"entry_files" mapstructure:"entry_files"`
	Oracle        OracleConfig  `json:"oracle" mapstructure:"oracle"`
	Runner        RunnerConfig  `json:"runner" mapstructure:"runner"`
	Limits        LimitsConfig  `json:"limits" mapstructure:"limits"`
	Storage       StorageConfig `json:"storage" mapstructure:"storage"`
	Server        ServerConfig  `json:"server" mapstructure:"server"`
}

// OracleConfig selects the model that makes decisions
type OracleConfig struct {
	// Provider is a gollm provider name or "cli"
	Provider string `json:"provider" mapstructure:"provider"`
	Model    string `json:"model" mapstructure:"model"`
	// APIKeyEnv names the variable holding the key; empty uses the provider default
	APIKeyEnv      string   `json:"api_key_env" mapstructure:"api_key_env"`
	MaxTokens      int      `json:"max_tokens" mapstructure:"max_tokens"`
	Temperature    float64  `json:"temperature" mapstructure:"temperature"`
	CLICmd         []string `json:"cli_cmd" mapstructure:"cli_cmd"`
	TimeoutS       int      `json:"timeout_s" mapstructure:"timeout_s"`
	MaxOutputBytes int64    `json:"max_output_bytes" mapstructure:"max_output_bytes"`
	ClassifyIntent bool     `json:"classify_intent" mapstructure:"classify_intent"`
}

// RunnerConfig configures shell command execution
type RunnerConfig struct {
	// Shell is the argv prefix commands are appended to; empty uses the platform shell
	Shell          []string `json:"shell" mapstructure:"shell"`
	PollIntervalMs int      `json:"poll_interval_ms" mapstructure:"poll_interval_ms"`
}

// LimitsConfig bounds resource use per run
type LimitsConfig struct {
	MaxReadBytes   int64 `json:"max_read_bytes" mapstructure:"max_read_bytes"`
	MaxPromptBytes int   `json:"max_prompt_bytes" mapstructure:"max_prompt_bytes"`
	MaxCycles      int   `json:"max_cycles" mapstructure:"max_cycles"`
}

// StorageConfig locates run state and snapshots
type StorageConfig struct {
	// Dir is relative to the workspace root
	Dir string `json:"dir" mapstructure:"dir"`
	// SnapshotDir is relative to Dir
	SnapshotDir string `json:"snapshot_dir" mapstructure:"snapshot_dir"`
}

// ServerConfig configures the HTTP adapter
type ServerConfig struct {
	Addr string `json:"addr" mapstructure:"addr"`
}

// CLIProvider selects the external CLI oracle instead of a gollm provider
const CLIProvider = "cli"

var knownProviders = []string{"anthropic", "openai", "gemini", "groq", "ollama", "mistral", "cohere", "deepseek", "openrouter", CLIProvider}

// GenerateDefault creates a new Config with default values
func GenerateDefault() *Config {
	return &Config{
		Version:       "1.0",
		WorkspaceRoot: ".",
		EntryFiles:    []string{},
		Oracle: OracleConfig{
			Provider:       "anthropic",
			MaxTokens:      4096,
			Temperature:    0,
			CLICmd:         []string{"claude", "-p"},
			TimeoutS:       180,
			MaxOutputBytes: 1048576,
			ClassifyIntent: true,
		},
		Runner: RunnerConfig{
			Shell:          []string{},
			PollIntervalMs: 100,
		},
		Limits: LimitsConfig{
			MaxReadBytes:   1048576,
			MaxPromptBytes: 204800,
			MaxCycles:      50,
		},
		Storage: StorageConfig{
			Dir:         ".patchloop",
			SnapshotDir: "history/snapshots",
		},
		Server: ServerConfig{
			Addr: "127.0.0.1:8420",
		},
	}
}

// Validate checks the configuration for errors and returns user-friendly error messages
func (c *Config) Validate() error {
	if c.Version == "" {
		return fmt.Errorf("configuration error: missing required field 'version'\n\nHint: Add a version field like:\n  \"version\": \"1.0\"")
	}

	if err := c.Oracle.Validate(); err != nil {
		return err
	}

	if c.Runner.PollIntervalMs < 0 {
		return fmt.Errorf("configuration error: invalid 'runner.poll_interval_ms' value: %d\n\nHint: Use a positive interval, or 0 for the default:\n  \"runner\": {\n    \"poll_interval_ms\": 100\n  }", c.Runner.PollIntervalMs)
	}

	if c.Limits.MaxReadBytes < 0 || c.Limits.MaxPromptBytes < 0 || c.Limits.MaxCycles < 0 {
		return fmt.Errorf("configuration error: 'limits' values must not be negative\n\nHint: Use 0 for the built-in default (or, for max_cycles, no limit):\n  \"limits\": {\n    \"max_read_bytes\": 1048576,\n    \"max_prompt_bytes\": 204800,\n    \"max_cycles\": 50\n  }")
	}

	if strings.TrimSpace(c.Storage.Dir) == "" {
		return fmt.Errorf("configuration error: missing required field 'storage.dir'\n\nHint: Keep run state inside the project:\n  \"storage\": {\n    \"dir\": \".patchloop\"\n  }")
	}

	for _, entry := range c.EntryFiles {
		if strings.TrimSpace(entry) == "" {
			return fmt.Errorf("configuration error: 'entry_files' contains an empty path\n\nHint: List entry points relative to the workspace root:\n  \"entry_files\": [\"main.py\"]")
		}
	}

	return nil
}

// Validate checks the oracle configuration
func (o *OracleConfig) Validate() error {
	provider := strings.ToLower(strings.TrimSpace(o.Provider))
	if provider == "" {
		return fmt.Errorf("configuration error: missing required field 'oracle.provider'\n\nHint: Choose one of %s:\n  \"oracle\": {\n    \"provider\": \"anthropic\"\n  }", strings.Join(knownProviders, ", "))
	}

	known := false
	for _, p := range knownProviders {
		if p == provider {
			known = true
			break
		}
	}
	if !known {
		return fmt.Errorf("configuration error: unknown 'oracle.provider' %q\n\nHint: Choose one of %s", o.Provider, strings.Join(knownProviders, ", "))
	}

	if provider == CLIProvider && len(o.CLICmd) == 0 {
		return fmt.Errorf("configuration error: oracle provider 'cli' has empty 'cli_cmd' field\n\nHint: Specify the command that reads a prompt on stdin:\n  \"cli_cmd\": [\"claude\", \"-p\"]")
	}

	if o.Temperature < 0 || o.Temperature > 2 {
		return fmt.Errorf("configuration error: invalid 'oracle.temperature' value: %g\n\nHint: Temperature must be between 0 and 2", o.Temperature)
	}

	if o.TimeoutS < 0 {
		return fmt.Errorf("configuration error: invalid 'oracle.timeout_s' value: %d\n\nHint: Use a positive number of seconds", o.TimeoutS)
	}

	return nil
}

// Load reads path (when non-empty) over the defaults and applies
// PATCHLOOP_* environment overrides. Nested keys join with "_", so
// oracle.model is PATCHLOOP_ORACLE_MODEL. List values in the environment are
// comma separated.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("json")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := setDefaults(v, GenerateDefault()); err != nil {
		return nil, err
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return &cfg, nil
}

// LoadFromFile loads a configuration from a JSON file, with environment overrides
func LoadFromFile(path string) (*Config, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return Load(path)
}

// setDefaults registers every leaf of cfg with v, so each key is known to
// AutomaticEnv and can be overridden from the environment.
func setDefaults(v *viper.Viper, cfg *Config) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal default config: %w", err)
	}
	var tree map[string]any
	if err := json.Unmarshal(data, &tree); err != nil {
		return fmt.Errorf("failed to unmarshal default config: %w", err)
	}

	var walk func(prefix string, node map[string]any)
	walk = func(prefix string, node map[string]any) {
		for key, value := range node {
			full := key
			if prefix != "" {
				full = prefix + "." + key
			}
			if child, ok := value.(map[string]any); ok {
				walk(full, child)
				continue
			}
			v.SetDefault(full, value)
		}
	}
	walk("", tree)
	return nil
}

// SaveToFile writes the configuration to a JSON file with 0600 permissions
func (c *Config) SaveToFile(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	data = append(data, '\n')

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", path, err)
	}

	return nil
}

// FindInTree searches startDir and its parents for patchloop.json.
// It returns "" when no file is found.
func FindInTree(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve directory %s: %w", startDir, err)
	}

	for {
		configPath := filepath.Join(dir, FileName)
		if _, err := os.Stat(configPath); err == nil {
			return configPath, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", nil
}

// WorkspacePath resolves workspace_root relative to the directory holding
// the config file. Without a config file it is relative to fallbackDir.
func (c *Config) WorkspacePath(configPath, fallbackDir string) string {
	base := fallbackDir
	if configPath != "" {
		base = filepath.Dir(configPath)
	}
	if filepath.IsAbs(c.WorkspaceRoot) {
		return filepath.Clean(c.WorkspaceRoot)
	}
	return filepath.Join(base, c.WorkspaceRoot)
}

// StoragePath resolves storage.dir under workspace
func (c *Config) StoragePath(workspace string) string {
	if filepath.IsAbs(c.Storage.Dir) {
		return filepath.Clean(c.Storage.Dir)
	}
	return filepath.Join(workspace, c.Storage.Dir)
}

// SnapshotPath resolves storage.snapshot_dir under the storage dir
func (c *Config) SnapshotPath(workspace string) string {
	storage := c.StoragePath(workspace)
	if c.Storage.SnapshotDir == "" {
		return filepath.Join(storage, "history", "snapshots")
	}
	if filepath.IsAbs(c.Storage.SnapshotDir) {
		return filepath.Clean(c.Storage.SnapshotDir)
	}
	return filepath.Join(storage, filepath.FromSlash(c.Storage.SnapshotDir))
}

// EntryPaths resolves entry_files against workspace
func (c *Config) EntryPaths(workspace string) []string {
	paths := make([]string, 0, len(c.EntryFiles))
	for _, entry := range c.EntryFiles {
		if filepath.IsAbs(entry) {
			paths = append(paths, filepath.Clean(entry))
			continue
		}
		paths = append(paths, filepath.Join(workspace, entry))
	}
	return paths
}
