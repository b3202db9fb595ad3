package cli

import (
	"bufio"
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/iambrandonn/patchloop/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

// executeCommand runs the root command with args and returns stdout
func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetIn(strings.NewReader(""))
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetIn(nil)
		resetAllFlags(rootCmd)
	})

	err := rootCmd.Execute()
	return out.String(), err
}

func resetAllFlags(cmd *cobra.Command) {
	reset := func(flag *pflag.Flag) {
		if sv, ok := flag.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = flag.Value.Set(flag.DefValue)
		}
		flag.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, child := range cmd.Commands() {
		resetAllFlags(child)
	}
}

func lookupFlag(cmd *cobra.Command, name string) *pflag.Flag {
	if flag := cmd.Flags().Lookup(name); flag != nil {
		return flag
	}
	return cmd.PersistentFlags().Lookup(name)
}

func writeProject(t *testing.T, mutate func(*config.Config)) (string, string) {
	t.Helper()
	dir, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)

	cfg := config.GenerateDefault()
	if mutate != nil {
		mutate(cfg)
	}
	path := filepath.Join(dir, config.FileName)
	require.NoError(t, cfg.SaveToFile(path))
	return dir, path
}

func TestRootCommandIncludesRunFlags(t *testing.T) {
	goalFlag := lookupFlag(rootCmd, "goal")
	require.NotNil(t, goalFlag, "root command should expose the --goal flag")
	require.Equal(t, "g", goalFlag.Shorthand, "root goal flag shorthand mismatch")

	for _, name := range []string{"cwd", "entry", "no-intent", "config", "log-level"} {
		require.NotNil(t, lookupFlag(rootCmd, name), "missing flag --%s", name)
	}
}

func TestRootCommandDelegatesToRun(t *testing.T) {
	originalRunE := runCmd.RunE
	t.Cleanup(func() { runCmd.RunE = originalRunE })

	called := false
	runCmd.RunE = func(cmd *cobra.Command, args []string) error {
		called = true
		goal, err := cmd.Flags().GetString("goal")
		require.NoError(t, err)
		require.Equal(t, "fix the tests", goal)
		return nil
	}

	_, err := executeCommand(t, "--goal", "fix the tests")
	require.NoError(t, err)
	require.True(t, called, "root command should delegate to run command")
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"":        slog.LevelInfo,
		" warn ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	}
	for input, want := range tests {
		got, err := parseLogLevel(input)
		require.NoError(t, err, input)
		require.Equal(t, want, got, input)
	}

	_, err := parseLogLevel("verbose")
	require.Error(t, err)
	require.Contains(t, err.Error(), "verbose")
}

func TestInvalidLogLevelFailsCommand(t *testing.T) {
	_, err := executeCommand(t, "history", "--log-level", "loud")
	require.Error(t, err)
	require.Contains(t, err.Error(), "log-level")
}

func TestPromptForInstructionTTY(t *testing.T) {
	input := bufio.NewReader(strings.NewReader("Fix the failing test\n"))
	var output bytes.Buffer

	instruction, err := promptForInstruction(input, &output, true)
	require.NoError(t, err)
	require.Equal(t, "Fix the failing test", instruction)
	require.Contains(t, output.String(), "patchloop> What should I do?")
}

func TestPromptForInstructionNonTTY(t *testing.T) {
	var output bytes.Buffer

	instruction, err := promptForInstruction(strings.NewReader("Add a --verbose flag"), &output, false)
	require.NoError(t, err)
	require.Equal(t, "Add a --verbose flag", instruction)
	require.Empty(t, output.String())
}

func TestPromptForInstructionEmpty(t *testing.T) {
	_, err := promptForInstruction(strings.NewReader("\n"), &bytes.Buffer{}, true)
	require.ErrorIs(t, err, errInstructionRequired)

	_, err = promptForInstruction(strings.NewReader(""), &bytes.Buffer{}, false)
	require.ErrorIs(t, err, errInstructionRequired)
}

func TestInitWritesDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), config.FileName)

	out, err := executeCommand(t, "init", "--config", path, "--entry", "main.py")
	require.NoError(t, err)
	require.Contains(t, out, path)

	cfg, err := config.LoadFromFile(path)
	require.NoError(t, err)
	require.Equal(t, []string{"main.py"}, cfg.EntryFiles)

	_, err = executeCommand(t, "init", "--config", path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "already exists")

	_, err = executeCommand(t, "init", "--config", path, "--force")
	require.NoError(t, err)
}

func TestObserveCommandReportsChanges(t *testing.T) {
	dir, cfgPath := writeProject(t, nil)
	entry := filepath.Join(dir, "main.py")
	helper := filepath.Join(dir, "helper.py")
	require.NoError(t, os.WriteFile(entry, []byte("import helper\n"), 0o644))
	require.NoError(t, os.WriteFile(helper, []byte("VALUE = 1\n"), 0o644))

	out, err := executeCommand(t, "observe", "--config", cfgPath, entry)
	require.NoError(t, err)

	var reports []observeReport
	require.NoError(t, json.Unmarshal([]byte(out), &reports))
	require.Len(t, reports, 1)
	require.True(t, reports[0].FirstRun)
	require.Equal(t, []string{helper, entry}, reports[0].Files)
	require.Len(t, reports[0].ChangedFiles, 2)

	require.NoError(t, os.WriteFile(helper, []byte("VALUE = 2\n"), 0o644))
	out, err = executeCommand(t, "observe", "--config", cfgPath, entry)
	require.NoError(t, err)

	reports = nil
	require.NoError(t, json.Unmarshal([]byte(out), &reports))
	require.False(t, reports[0].FirstRun)
	require.Len(t, reports[0].ChangedFiles, 1)
	require.Contains(t, reports[0].ChangedFiles[helper], "+VALUE = 2")

	require.DirExists(t, filepath.Join(dir, ".patchloop", "history", "snapshots"))
}

func TestObserveCommandRequiresEntries(t *testing.T) {
	_, cfgPath := writeProject(t, nil)

	_, err := executeCommand(t, "observe", "--config", cfgPath)
	require.Error(t, err)
	require.Contains(t, err.Error(), "no entry files")
}

func TestHistoryWithoutRuns(t *testing.T) {
	_, cfgPath := writeProject(t, nil)

	out, err := executeCommand(t, "history", "--config", cfgPath)
	require.NoError(t, err)
	require.Contains(t, out, "No runs recorded.")
}

func TestInvalidConfigIsRejected(t *testing.T) {
	_, cfgPath := writeProject(t, func(c *config.Config) { c.Oracle.Provider = "skynet" })

	_, err := executeCommand(t, "history", "--config", cfgPath)
	require.Error(t, err)
	require.Contains(t, err.Error(), "Hint:")
}
