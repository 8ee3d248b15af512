// Simple standalone progress server for debugging clients.
// Run with: go run ./cmd/debug-server [scenario.yaml]
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/thruflo/taskwatch/internal/logging"
	"github.com/thruflo/taskwatch/internal/server"
)

func main() {
	var sc *server.Scenario
	if len(os.Args) > 1 {
		loaded, err := server.LoadScenario(os.Args[1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load scenario: %v\n", err)
			os.Exit(1)
		}
		sc = loaded
	}

	logger := logging.New()
	logger.SetLevel(logging.LevelDebug)

	srv, err := server.NewServer(&server.Config{
		Host:      "127.0.0.1",
		Port:      8375,
		Scenario:  sc,
		RateLimit: server.DefaultRateLimitConfig(),
		Logger:    logger,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create server: %v\n", err)
		os.Exit(1)
	}

	task, err := srv.Tasks().CreateWithID("42")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create task: %v\n", err)
		os.Exit(1)
	}
	if err := srv.Launch(task.ID, nil); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to launch task: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle Ctrl+C
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nShutting down...")
		cancel()
	}()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(ctx)
	}()

	select {
	case <-srv.Ready():
	case err := <-errCh:
		fmt.Fprintf(os.Stderr, "Server failed: %v\n", err)
		os.Exit(1)
	}

	target := srv.Target(task.ID)
	fmt.Printf("Server running on http://%s%s\n", srv.ListenAddr(), srv.Prefix())
	fmt.Println("\nTest with:")
	fmt.Printf("  curl http://%s%s/tasks/%s\n", srv.ListenAddr(), srv.Prefix(), task.ID)
	fmt.Printf("  websocat %s  # then type: progress\n", target.URL())

	<-ctx.Done()
	srv.Stop()
}
