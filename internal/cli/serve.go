package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/thruflo/taskwatch/internal/config"
	"github.com/thruflo/taskwatch/internal/server"
	"golang.org/x/sync/errgroup"
)

var (
	serveHost       string
	servePort       int
	serveScenario   string
	serveDeployPath string
	serveRoute      string
	serveTask       string
	serveOrigins    []string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the debug progress server",
	Long: `Start a progress server that keeps tasks in memory and plays a scripted
scenario against them. One demo task is created on start and its ID is
printed together with the matching watch command.

Scenario files are YAML:

  name: flip
  steps:
    - line: extracting audio track
      delay: 500ms
    - line: frame 120 of 480
      delay: 1s
  final_status: success

Example:
  taskwatch serve
  taskwatch serve --port 9000 --scenario flip.yaml --task 42
  taskwatch serve --allowed-origin example.com --allowed-origin partner.test`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "interface to listen on (default: from config)")
	serveCmd.Flags().IntVarP(&servePort, "port", "p", -1, "port to listen on, 0 picks a free port (default: from config)")
	serveCmd.Flags().StringVar(&serveScenario, "scenario", "", "scenario YAML file (default: built-in demo)")
	serveCmd.Flags().StringVar(&serveDeployPath, "deploy-path", "", "path prefix the routes are mounted under")
	serveCmd.Flags().StringVar(&serveRoute, "route", "", "route segment between the deploy path and /tasks (default: from config)")
	serveCmd.Flags().StringVar(&serveTask, "task", "", "ID of the demo task (default: random UUID)")
	serveCmd.Flags().StringSliceVar(&serveOrigins, "allowed-origin", nil, "domain whose pages may open progress streams, repeatable (default: from config, any origin)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyServeFlags(cmd, &cfg.Server)
	if err := config.ValidateServerConfig(&cfg.Server); err != nil {
		return err
	}

	logger, err := newLogger(cmd.ErrOrStderr(), cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	var sc *server.Scenario
	if cfg.Server.Scenario != "" {
		sc, err = server.LoadScenario(cfg.Server.Scenario)
		if err != nil {
			return err
		}
	}

	srv, err := server.NewServerFromConfig(&cfg.Server, sc, logger)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	var task server.Task
	if serveTask != "" {
		task, err = srv.Tasks().CreateWithID(serveTask)
		if err != nil {
			return err
		}
	} else {
		task = srv.Tasks().Create()
	}
	if err := srv.Launch(task.ID, nil); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Start(gctx)
	})
	g.Go(func() error {
		select {
		case <-srv.Ready():
		case <-gctx.Done():
			return nil
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Serving progress on http://%s%s\n", srv.ListenAddr(), srv.Prefix())
		fmt.Fprintf(out, "Demo task: %s\n", task.ID)
		fmt.Fprintf(out, "Watch it with:\n  %s\n", watchCommandFor(srv, task.ID))
		return nil
	})

	return g.Wait()
}

// applyServeFlags overrides configured server values with flags that were set.
func applyServeFlags(cmd *cobra.Command, c *config.ServerConfig) {
	if serveHost != "" {
		c.Host = serveHost
	}
	if servePort >= 0 {
		c.Port = servePort
	}
	if serveScenario != "" {
		c.Scenario = serveScenario
	}
	if cmd.Flags().Changed("deploy-path") {
		c.DeployPath = serveDeployPath
	}
	if serveRoute != "" {
		c.Route = serveRoute
	}
	if len(serveOrigins) > 0 {
		c.AllowedOrigins = append([]string(nil), serveOrigins...)
	}
}

// watchCommandFor renders the watch invocation matching a served task.
func watchCommandFor(srv *server.Server, taskID string) string {
	target := srv.Target(taskID)
	parts := []string{"taskwatch", "watch", "--host", target.Host}
	if target.DeployPath != "" {
		parts = append(parts, "--deploy-path", target.DeployPath)
	}
	parts = append(parts, "--route", target.Route, taskID)
	return strings.Join(parts, " ")
}
