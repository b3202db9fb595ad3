package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/iambrandonn/patchloop/internal/config"
	"github.com/iambrandonn/patchloop/internal/dispatch"
	"github.com/iambrandonn/patchloop/internal/observe"
	"github.com/iambrandonn/patchloop/internal/oracle"
	"github.com/iambrandonn/patchloop/internal/runner"
	"github.com/iambrandonn/patchloop/internal/snapshot"
	"github.com/iambrandonn/patchloop/internal/workspace"
	"github.com/spf13/cobra"
)

// project is a loaded configuration with its paths resolved
type project struct {
	cfg        *config.Config
	configPath string
	workspace  string
	storage    string
	snapshots  string
}

// openProject loads the config named by --config, or the nearest
// patchloop.json above the working directory, or the defaults.
func openProject(cmd *cobra.Command, logger *slog.Logger) (*project, error) {
	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get current directory: %w", err)
	}

	cfg, cfgPath, err := loadConfig(configPath, cwd, logger)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	ws := cfg.WorkspacePath(cfgPath, cwd)
	p := &project{
		cfg:        cfg,
		configPath: cfgPath,
		workspace:  ws,
		storage:    cfg.StoragePath(ws),
		snapshots:  cfg.SnapshotPath(ws),
	}
	logger.Debug("project resolved", "config", cfgPath, "workspace", p.workspace, "storage", p.storage)
	return p, nil
}

func loadConfig(configPath, cwd string, logger *slog.Logger) (*config.Config, string, error) {
	if configPath != "" {
		cfg, err := config.LoadFromFile(configPath)
		if err != nil {
			return nil, "", fmt.Errorf("failed to load config from %s: %w", configPath, err)
		}
		abs, err := filepath.Abs(configPath)
		if err != nil {
			return nil, "", fmt.Errorf("failed to resolve config path: %w", err)
		}
		return cfg, abs, nil
	}

	foundPath, err := config.FindInTree(cwd)
	if err != nil {
		return nil, "", err
	}
	if foundPath != "" {
		logger.Info("found existing config", "path", foundPath)
		cfg, err := config.LoadFromFile(foundPath)
		if err != nil {
			return nil, "", fmt.Errorf("failed to load config: %w", err)
		}
		return cfg, foundPath, nil
	}

	logger.Debug("no config found, using defaults", "cwd", cwd)
	cfg, err := config.Load("")
	if err != nil {
		return nil, "", err
	}
	return cfg, "", nil
}

// initStorage creates the storage layout
func (p *project) initStorage() error {
	if ok, err := workspace.IsInitialized(p.storage); err == nil && ok {
		return nil
	}
	if err := workspace.Initialize(p.storage); err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	return nil
}

func (p *project) newObserver(logger *slog.Logger) *observe.Observer {
	return observe.New(snapshot.NewStore(p.snapshots, logger), logger)
}

func (p *project) newDispatcher(logger *slog.Logger) *dispatch.Dispatcher {
	r := runner.New(runner.Options{
		Shell:        p.cfg.Runner.Shell,
		PollInterval: time.Duration(p.cfg.Runner.PollIntervalMs) * time.Millisecond,
		Logger:       logger,
	})
	return dispatch.New(dispatch.Options{
		Runner:       r,
		MaxReadBytes: p.cfg.Limits.MaxReadBytes,
		Logger:       logger,
	})
}

// newOracle builds the decision oracle for the configured provider
func (p *project) newOracle(logger *slog.Logger) (*oracle.LLM, error) {
	gen, err := newGenerator(p.cfg.Oracle, logger)
	if err != nil {
		return nil, err
	}
	return oracle.New(gen, oracle.Options{
		MaxPromptBytes: p.cfg.Limits.MaxPromptBytes,
		Logger:         logger,
	}), nil
}

func newGenerator(cfg config.OracleConfig, logger *slog.Logger) (oracle.Generator, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	timeout := time.Duration(cfg.TimeoutS) * time.Second

	if provider == config.CLIProvider {
		cliCfg := oracle.DefaultCLIConfig(cfg.CLICmd[0])
		cliCfg.Args = cfg.CLICmd[1:]
		if timeout > 0 {
			cliCfg.Timeout = timeout
		}
		if cfg.MaxOutputBytes > 0 {
			cliCfg.MaxOutputBytes = cfg.MaxOutputBytes
		}
		logger.Info("using CLI oracle", "cmd", cfg.CLICmd[0])
		return oracle.NewCLIGenerator(cliCfg, logger), nil
	}

	gen, err := oracle.NewGollmGenerator(oracle.GollmConfig{
		Provider:    provider,
		Model:       cfg.Model,
		APIKey:      oracle.APIKeyFromEnv(cfg.APIKeyEnv),
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
	})
	if err != nil {
		return nil, err
	}
	logger.Info("using hosted oracle", "provider", gen.Provider(), "model", gen.Model())

	if timeout <= 0 {
		return gen, nil
	}
	return withTimeout(gen, timeout), nil
}

// withTimeout bounds each generation call
func withTimeout(gen oracle.Generator, timeout time.Duration) oracle.Generator {
	return oracle.GeneratorFunc(func(ctx context.Context, prompt string) (string, error) {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return gen.Generate(ctx, prompt)
	})
}
