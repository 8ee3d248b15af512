package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
	"github.com/thruflo/taskwatch/internal/config"
	"github.com/thruflo/taskwatch/internal/progress"
	"github.com/thruflo/taskwatch/internal/surface"
)

var (
	watchOrigin     string
	watchHost       string
	watchSecure     bool
	watchDeployPath string
	watchRoute      string
	watchInterval   time.Duration
	watchEncoding   string
	watchDecoding   string
	watchPlain      bool
	watchNotify     bool
)

var watchCmd = &cobra.Command{
	Use:   "watch <task-id>",
	Short: "Follow the progress stream of a task",
	Long: `Connect to the progress endpoint of a task and render every status
fragment the server sends. A progress request is sent on connect and
then on every heartbeat until the task completes or the connection closes.

The command exits non-zero when the stream dies without a clean close.

Example:
  taskwatch watch 3f2c9a1e-7c4b-4f0e-9d8a-1b2c3d4e5f60
  taskwatch watch --origin https://example.com --deploy-path video/flip --route ui 42
  taskwatch watch --host localhost:8375 --encoding legacy --plain 42`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&watchOrigin, "origin", "", "page origin the scheme and host derive from, e.g. https://example.com")
	watchCmd.Flags().StringVar(&watchHost, "host", "", "server host[:port] (default: from config)")
	watchCmd.Flags().BoolVar(&watchSecure, "secure", false, "use wss instead of ws")
	watchCmd.Flags().StringVar(&watchDeployPath, "deploy-path", "", "path prefix the application is mounted under")
	watchCmd.Flags().StringVar(&watchRoute, "route", "", "route segment between the deploy path and /tasks (default: from config)")
	watchCmd.Flags().DurationVar(&watchInterval, "interval", 0, "heartbeat interval (default: from config)")
	watchCmd.Flags().StringVar(&watchEncoding, "encoding", "", "request encoding: command or legacy (default: from config)")
	watchCmd.Flags().StringVar(&watchDecoding, "decoding", "", "message decoding: auto, tagged or legacy (default: from config)")
	watchCmd.Flags().BoolVar(&watchPlain, "plain", false, "print only the final status as plain text")
	watchCmd.Flags().BoolVar(&watchNotify, "notify", false, "send a desktop notification when the stream ends")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	taskID := args[0]

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
	applyWatchFlags(cmd, &cfg.Client)
	if err := config.ValidateClientConfig(&cfg.Client); err != nil {
		return err
	}

	logger, err := newLogger(cmd.ErrOrStderr(), cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	target, err := watchTarget(&cfg.Client, taskID)
	if err != nil {
		return err
	}
	encoder, err := progress.EncoderFor(cfg.Client.Encoding)
	if err != nil {
		return err
	}
	mode, err := progress.ParseDecodeMode(cfg.Client.Decoding)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	view := newWatchView(out, taskID, watchPlain)

	client, err := progress.New(ctx, view.surface, target,
		progress.WithEncoder(encoder),
		progress.WithDecodeMode(mode),
		progress.WithInterval(cfg.Client.Interval),
		progress.WithLogger(logger),
	)
	if err != nil {
		return err
	}
	logger.Debug("watching task", "url", client.URL())

	ev := client.Wait()
	if err := view.finish(ev); err != nil {
		logger.Warn("failed to render final status", "error", err)
	}

	if watchNotify || view.interactive {
		notifier := surface.NewNotifier(out)
		if err := notifier.NotifyForReason(notificationReason(ev), taskID, !watchNotify); err != nil {
			logger.Debug("notification failed", "error", err)
		}
	}

	if !ev.Clean {
		return fmt.Errorf("progress stream of task %s died: %w", taskID, ev.Err)
	}
	return nil
}

// applyWatchFlags overrides configured client values with flags that were set.
func applyWatchFlags(cmd *cobra.Command, c *config.ClientConfig) {
	if watchOrigin != "" {
		c.Origin = watchOrigin
	}
	if watchHost != "" {
		c.Host = watchHost
		if watchOrigin == "" {
			c.Origin = ""
		}
	}
	if cmd.Flags().Changed("secure") {
		c.Secure = watchSecure
	}
	if cmd.Flags().Changed("deploy-path") {
		c.DeployPath = watchDeployPath
	}
	if watchRoute != "" {
		c.Route = watchRoute
	}
	if watchInterval > 0 {
		c.Interval = watchInterval
	}
	if watchEncoding != "" {
		c.Encoding = watchEncoding
	}
	if watchDecoding != "" {
		c.Decoding = watchDecoding
	}
}

// watchTarget builds the progress target from the client config.
func watchTarget(c *config.ClientConfig, taskID string) (progress.Target, error) {
	if c.Origin != "" {
		return progress.TargetFromOrigin(c.Origin, c.DeployPath, c.Route, taskID)
	}
	target := progress.Target{
		Secure:     c.Secure,
		Host:       c.Host,
		DeployPath: c.DeployPath,
		Route:      c.Route,
		TaskID:     taskID,
	}
	if err := target.Validate(); err != nil {
		return progress.Target{}, err
	}
	return target, nil
}

// watchView is the surface a watch renders into plus its final output.
type watchView struct {
	out         io.Writer
	surface     progress.Surface
	terminal    *surface.Terminal
	buffer      *surface.Buffer
	interactive bool
}

func newWatchView(out io.Writer, taskID string, plain bool) *watchView {
	v := &watchView{out: out}
	if plain {
		v.buffer = surface.NewBuffer()
		v.surface = v.buffer
		return v
	}
	v.terminal = surface.NewTerminal(out, surface.WithTitle("task "+taskID))
	v.interactive = v.terminal.ANSI()
	v.surface = v.terminal
	return v
}

func (v *watchView) finish(ev progress.CloseEvent) error {
	status := describeClose(ev)
	if v.buffer != nil {
		if text := surface.ToText(v.buffer.Content()); text != "" {
			if _, err := fmt.Fprintln(v.out, text); err != nil {
				return err
			}
		}
		_, err := fmt.Fprintln(v.out, status)
		return err
	}
	return v.terminal.Finish(status)
}

// describeClose renders the final status line of a watch.
func describeClose(ev progress.CloseEvent) string {
	switch {
	case !ev.Clean:
		return fmt.Sprintf("connection lost (%v)", ev.Err)
	case ev.Initiator == progress.InitiatorClient && ev.Code == websocket.CloseNormalClosure:
		return "task complete"
	case ev.Initiator == progress.InitiatorClient:
		return "stopped watching"
	case ev.Reason != "":
		return fmt.Sprintf("closed by server: %s (code %d)", ev.Reason, ev.Code)
	default:
		return fmt.Sprintf("closed by server (code %d)", ev.Code)
	}
}

func notificationReason(ev progress.CloseEvent) surface.NotificationReason {
	switch {
	case !ev.Clean:
		return surface.NotifyReasonDied
	case ev.Initiator == progress.InitiatorClient && ev.Code == websocket.CloseNormalClosure:
		return surface.NotifyReasonComplete
	default:
		return surface.NotifyReasonStopped
	}
}
