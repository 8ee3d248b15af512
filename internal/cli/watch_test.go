package cli

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thruflo/taskwatch/internal/config"
	"github.com/thruflo/taskwatch/internal/logging"
	"github.com/thruflo/taskwatch/internal/progress"
	"github.com/thruflo/taskwatch/internal/server"
	"github.com/thruflo/taskwatch/internal/testutil"
)

func resetWatchFlags(t *testing.T) {
	t.Helper()
	t.Cleanup(func() {
		watchOrigin = ""
		watchHost = ""
		watchSecure = false
		watchDeployPath = ""
		watchRoute = ""
		watchInterval = 0
		watchEncoding = ""
		watchDecoding = ""
		watchPlain = false
		watchNotify = false
	})
}

func startDebugServer(t *testing.T) *server.Server {
	t.Helper()

	quiet := logging.New()
	quiet.SetOutput(io.Discard)

	srv, err := server.NewServer(&server.Config{
		Host:       "127.0.0.1",
		DeployPath: "video",
		Route:      "flip/ui",
		Scenario: &server.Scenario{
			Name: "quick",
			Steps: []server.Step{
				{Line: "frame 1", Delay: 10 * time.Millisecond},
				{Line: "frame 2", Delay: 10 * time.Millisecond},
				{Line: "frame 3", Delay: 10 * time.Millisecond},
			},
			FinalStatus: server.StatusSuccess,
		},
		Logger: quiet,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go srv.Start(ctx)
	testutil.WaitClosed(t, srv.Ready(), 5*time.Second)
	t.Cleanup(func() {
		cancel()
		srv.Stop()
	})
	return srv
}

// pointAt sets the watch flags to the debug server. The deploy path is
// folded into the route since a bare command reports no flag as changed.
func pointAt(srv *server.Server) {
	watchHost = srv.ListenAddr()
	watchRoute = strings.TrimPrefix(srv.Prefix(), "/")
	watchInterval = 15 * time.Millisecond
}

func TestWatchCommand_RequiresTaskArg(t *testing.T) {
	assert.Equal(t, "watch <task-id>", watchCmd.Use)

	assert.Error(t, watchCmd.Args(watchCmd, []string{}))
	assert.Error(t, watchCmd.Args(watchCmd, []string{"a", "b"}))
	assert.NoError(t, watchCmd.Args(watchCmd, []string{"42"}))
}

func TestWatchCommand_Flags(t *testing.T) {
	tests := []struct {
		name     string
		defValue string
	}{
		{"origin", ""},
		{"host", ""},
		{"secure", "false"},
		{"deploy-path", ""},
		{"route", ""},
		{"interval", "0s"},
		{"encoding", ""},
		{"decoding", ""},
		{"plain", "false"},
		{"notify", "false"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flag := watchCmd.Flags().Lookup(tt.name)
			require.NotNil(t, flag)
			assert.Equal(t, tt.defValue, flag.DefValue)
		})
	}
}

func TestWatchCommand_RendersUntilComplete(t *testing.T) {
	for _, plain := range []bool{false, true} {
		name := "terminal"
		if plain {
			name = "plain"
		}
		t.Run(name, func(t *testing.T) {
			useBaseDir(t, t.TempDir())
			resetWatchFlags(t)

			srv := startDebugServer(t)
			task := srv.Tasks().Create()
			require.NoError(t, srv.Launch(task.ID, nil))

			pointAt(srv)
			watchPlain = plain

			var out bytes.Buffer
			require.NoError(t, runWatch(testCommand(&out), []string{task.ID}))

			assert.Equal(t, "frame 1\nframe 2\nframe 3\ntask complete\n", out.String())
		})
	}
}

func TestWatchCommand_LegacyEncoding(t *testing.T) {
	useBaseDir(t, t.TempDir())
	resetWatchFlags(t)

	srv := startDebugServer(t)
	task := srv.Tasks().Create()
	require.NoError(t, srv.Launch(task.ID, nil))

	pointAt(srv)
	watchEncoding = "legacy"
	watchPlain = true

	var out bytes.Buffer
	require.NoError(t, runWatch(testCommand(&out), []string{task.ID}))

	assert.True(t, hasLine(out.String(), "frame 3"), out.String())
	assert.True(t, hasLine(out.String(), "closed by server: process stopped (code 1000)"), out.String())
}

func TestWatchCommand_UnknownTask(t *testing.T) {
	useBaseDir(t, t.TempDir())
	resetWatchFlags(t)

	srv := startDebugServer(t)
	pointAt(srv)
	watchPlain = true

	var out bytes.Buffer
	require.NoError(t, runWatch(testCommand(&out), []string{"nope"}))
	assert.Equal(t, "closed by server: no task with ID nope found (code 4404)\n", out.String())
}

func TestWatchCommand_ConnectionFailure(t *testing.T) {
	useBaseDir(t, t.TempDir())
	resetWatchFlags(t)

	// Reserve a port and release it so nothing listens there.
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	watchHost = l.Addr().String()
	require.NoError(t, l.Close())
	watchPlain = true

	var out bytes.Buffer
	err = runWatch(testCommand(&out), []string{"42"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, progress.ErrConnectionFailure), "got %v", err)
	assert.True(t, strings.HasPrefix(out.String(), "connection lost"), out.String())
}

func TestWatchCommand_InvalidFlags(t *testing.T) {
	useBaseDir(t, t.TempDir())
	resetWatchFlags(t)

	watchEncoding = "xml"
	err := runWatch(testCommand(io.Discard), []string{"42"})
	assert.True(t, config.IsValidationError(err), "got %v", err)
}

func TestWatchCommand_UsesConfigFile(t *testing.T) {
	dir := testutil.SetupTestDir(t)
	useBaseDir(t, dir)
	resetWatchFlags(t)

	cfg, err := loadConfig()
	require.NoError(t, err)
	applyWatchFlags(testCommand(io.Discard), &cfg.Client)

	target, err := watchTarget(&cfg.Client, "42")
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:8375/video/flip/ui/tasks/42/progress", target.URL())
}

func TestApplyWatchFlags(t *testing.T) {
	resetWatchFlags(t)

	c := config.DefaultConfig().Client
	c.Origin = "https://example.com"

	watchHost = "tasks.internal:9000"
	watchRoute = "ui"
	watchInterval = 3 * time.Second
	watchDecoding = "tagged"
	applyWatchFlags(testCommand(io.Discard), &c)

	assert.Equal(t, "", c.Origin, "--host replaces a configured origin")
	assert.Equal(t, "tasks.internal:9000", c.Host)
	assert.Equal(t, "ui", c.Route)
	assert.Equal(t, 3*time.Second, c.Interval)
	assert.Equal(t, "tagged", c.Decoding)
	assert.Equal(t, config.DefaultEncoding, c.Encoding)
}

func TestWatchTarget_Origin(t *testing.T) {
	c := config.ClientConfig{Origin: "https://example.com", DeployPath: "video/flip", Route: "ui"}

	target, err := watchTarget(&c, "42")
	require.NoError(t, err)
	assert.Equal(t, "wss://example.com/video/flip/ui/tasks/42/progress", target.URL())

	_, err = watchTarget(&config.ClientConfig{}, "42")
	assert.ErrorIs(t, err, progress.ErrInvalidTarget)
}

func TestDescribeClose(t *testing.T) {
	tests := []struct {
		name string
		ev   progress.CloseEvent
		want string
	}{
		{
			name: "complete",
			ev:   progress.CloseEvent{Clean: true, Code: websocket.CloseNormalClosure, Initiator: progress.InitiatorClient},
			want: "task complete",
		},
		{
			name: "client teardown",
			ev:   progress.CloseEvent{Clean: true, Code: websocket.CloseGoingAway, Initiator: progress.InitiatorClient},
			want: "stopped watching",
		},
		{
			name: "server close with reason",
			ev:   progress.CloseEvent{Clean: true, Code: 1000, Reason: "process stopped", Initiator: progress.InitiatorServer},
			want: "closed by server: process stopped (code 1000)",
		},
		{
			name: "server close without reason",
			ev:   progress.CloseEvent{Clean: true, Code: 1011, Initiator: progress.InitiatorServer},
			want: "closed by server (code 1011)",
		},
		{
			name: "died",
			ev:   progress.CloseEvent{Code: 1006, Initiator: progress.InitiatorNetwork, Err: progress.ErrUnexpectedClose},
			want: "connection lost (unexpected close)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, describeClose(tt.ev))
		})
	}
}
