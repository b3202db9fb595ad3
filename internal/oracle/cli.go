package oracle

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// CLIConfig describes an external model CLI that reads the prompt on stdin
// and writes its reply to stdout.
type CLIConfig struct {
	CLIPath        string
	Args           []string
	Timeout        time.Duration
	MaxOutputBytes int64
}

// DefaultCLIConfig returns the defaults for cliPath
func DefaultCLIConfig(cliPath string) CLIConfig {
	return CLIConfig{
		CLIPath:        cliPath,
		Timeout:        180 * time.Second,
		MaxOutputBytes: 1024 * 1024,
	}
}

// CLIGenerator shells out to a model CLI per prompt
type CLIGenerator struct {
	config CLIConfig
	logger *slog.Logger
}

// NewCLIGenerator creates a generator for config
func NewCLIGenerator(config CLIConfig, logger *slog.Logger) *CLIGenerator {
	if config.Timeout <= 0 {
		config.Timeout = 180 * time.Second
	}
	if config.MaxOutputBytes <= 0 {
		config.MaxOutputBytes = 1024 * 1024
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CLIGenerator{config: config, logger: logger}
}

// limitedBuffer records writes until limit is passed, then fails them
type limitedBuffer struct {
	buf      bytes.Buffer
	limit    int64
	exceeded bool
}

var errOutputTooLarge = errors.New("output exceeds size limit")

func (b *limitedBuffer) Write(p []byte) (int, error) {
	if int64(b.buf.Len()+len(p)) > b.limit {
		b.exceeded = true
		return 0, errOutputTooLarge
	}
	return b.buf.Write(p)
}

// Generate runs the CLI with prompt on stdin
func (g *CLIGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.config.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, g.config.CLIPath, g.config.Args...)
	cmd.Stdin = strings.NewReader(prompt)
	// Grandchildren may hold stdout open after a kill.
	cmd.WaitDelay = time.Second

	stdout := &limitedBuffer{limit: g.config.MaxOutputBytes}
	var stderr bytes.Buffer
	cmd.Stdout = stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()

	if stderr.Len() > 0 {
		g.logger.Debug("model cli stderr", "cli", g.config.CLIPath, "stderr", strings.TrimSpace(stderr.String()))
	}

	if stdout.exceeded {
		return "", fmt.Errorf("model cli %s: %w (%d bytes)", g.config.CLIPath, errOutputTooLarge, g.config.MaxOutputBytes)
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", fmt.Errorf("model cli %s: %w", g.config.CLIPath, ctxErr)
		}
		return "", fmt.Errorf("model cli %s failed: %w", g.config.CLIPath, err)
	}

	g.logger.Debug("model cli finished", "cli", g.config.CLIPath, "duration", time.Since(start), "bytes", stdout.buf.Len())
	return stdout.buf.String(), nil
}
