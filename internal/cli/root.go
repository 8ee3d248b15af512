package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/thruflo/taskwatch/internal/config"
	"github.com/thruflo/taskwatch/internal/logging"
)

// Version is set at build time via ldflags.
var Version = "dev"

var (
	baseDir  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "taskwatch",
	Short: "Watch the progress of long-running server tasks",
	Long: `Taskwatch follows the progress stream of a server-side task over a
websocket and renders the status fragments it receives in the terminal.
It also ships a debug progress server that plays scripted tasks.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.Version = Version
	rootCmd.SetVersionTemplate("taskwatch version {{.Version}}\n")

	rootCmd.PersistentFlags().StringVar(&baseDir, "dir", "", "directory holding .taskwatch/config.yaml (default: current directory)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error (default: from config)")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// resolveBaseDir returns the --dir flag or the working directory.
func resolveBaseDir() (string, error) {
	if baseDir != "" {
		return baseDir, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get current directory: %w", err)
	}
	return cwd, nil
}

// loadConfig loads the config under the resolved base directory.
func loadConfig() (*config.Config, error) {
	dir, err := resolveBaseDir()
	if err != nil {
		return nil, err
	}
	cfg, err := config.LoadConfig(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// newLogger builds a logger writing to w at the --log-level flag or the
// configured level.
func newLogger(w io.Writer, cfg *config.Config) (*logging.Logger, error) {
	name := cfg.Log.Level
	if logLevel != "" {
		name = logLevel
	}
	level, ok := logging.ParseLevel(name)
	if !ok {
		return nil, config.ValidationError{Field: "log-level", Message: fmt.Sprintf("unknown level %q", name)}
	}

	logger := logging.New()
	logger.SetOutput(w)
	logger.SetLevel(level)
	return logger, nil
}
