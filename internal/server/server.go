package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/thruflo/taskwatch/internal/config"
	"github.com/thruflo/taskwatch/internal/logging"
	"github.com/thruflo/taskwatch/internal/progress"
	"golang.org/x/sync/errgroup"
)

const (
	shutdownTimeout = 5 * time.Second
	cleanupInterval = time.Minute
)

// Server is the debug progress server.
type Server struct {
	host           string
	port           int
	deployPath     string
	route          string
	basePath       string
	scenario       *Scenario
	allowedOrigins []string
	logger         *logging.Logger

	tasks    *TaskStore
	runner   *Runner
	limiter  *rateLimiter
	upgrader websocket.Upgrader

	mu       sync.RWMutex
	server   *http.Server
	listener net.Listener
	started  bool
	ctx      context.Context
	cancel   context.CancelFunc
	group    *errgroup.Group
	pending  []launch
	ready    chan struct{}
	done     chan struct{}
}

type launch struct {
	taskID   string
	scenario *Scenario
}

// Config holds server configuration options.
type Config struct {
	Host       string
	Port       int
	DeployPath string
	Route      string

	// Scenario is played for tasks created through the API. Defaults to
	// DefaultScenario.
	Scenario *Scenario

	RateLimit RateLimitConfig

	// AllowedOrigins restricts websocket upgrades to Origin hosts equal to
	// or under one of these domains. Empty allows any origin.
	AllowedOrigins []string

	Logger *logging.Logger
}

// NewServer creates a new Server instance.
func NewServer(cfg *Config) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if cfg.Port < 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid port %d", cfg.Port)
	}

	sc := cfg.Scenario
	if sc == nil {
		sc = DefaultScenario()
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}

	route := strings.Trim(cfg.Route, "/ ")
	if route == "" {
		route = progress.DefaultRoute
	}
	deployPath := strings.Trim(cfg.DeployPath, "/ ")

	s := &Server{
		host:           cfg.Host,
		port:           cfg.Port,
		deployPath:     deployPath,
		route:          route,
		basePath:       joinPath(deployPath, route),
		scenario:       sc,
		allowedOrigins: cfg.AllowedOrigins,
		logger:         logger.With("component", "server"),
		tasks:          NewTaskStore(),
		limiter:        newRateLimiter(cfg.RateLimit),
		ready:          make(chan struct{}),
		done:           make(chan struct{}),
	}
	s.runner = NewRunner(s.tasks, s.logger)
	s.upgrader = websocket.Upgrader{CheckOrigin: s.checkOrigin}
	return s, nil
}

// NewServerFromConfig creates a new Server from a config.ServerConfig.
func NewServerFromConfig(cfg *config.ServerConfig, sc *Scenario, logger *logging.Logger) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("server config is required")
	}

	rl := DefaultRateLimitConfig()
	rl.MaxAttempts = cfg.ConnectLimit
	if cfg.ConnectWindow > 0 {
		rl.Window = cfg.ConnectWindow
	}

	return NewServer(&Config{
		Host:           cfg.Host,
		Port:           cfg.Port,
		DeployPath:     cfg.DeployPath,
		Route:          cfg.Route,
		Scenario:       sc,
		RateLimit:      rl,
		AllowedOrigins: cfg.AllowedOrigins,
		Logger:         logger,
	})
}

// Tasks returns the task store.
func (s *Server) Tasks() *TaskStore {
	return s.tasks
}

// Prefix returns the path all routes live under, e.g. "/video/flip/ui".
func (s *Server) Prefix() string {
	return s.basePath
}

// Target returns the progress target of taskID on this server. Valid once
// the server is listening.
func (s *Server) Target(taskID string) progress.Target {
	return progress.Target{
		Host:       s.ListenAddr(),
		DeployPath: s.deployPath,
		Route:      s.route,
		TaskID:     taskID,
	}
}

// Ready is closed once the server listens.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// ListenAddr returns the actual address the server is listening on.
// Useful when port 0 is used to get an available port.
// Returns empty string if not started.
func (s *Server) ListenAddr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Launch plays sc (or the server scenario when nil) against an existing
// task. Launches before Start are deferred until the server runs.
func (s *Server) Launch(taskID string, sc *Scenario) error {
	if _, ok := s.tasks.Get(taskID); !ok {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	if sc == nil {
		sc = s.scenario
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		s.pending = append(s.pending, launch{taskID: taskID, scenario: sc})
		return nil
	}
	if s.ctx.Err() != nil {
		return errors.New("server is stopping")
	}
	s.goRun(taskID, sc)
	return nil
}

// goRun starts a runner on the server group. Callers hold s.mu.
func (s *Server) goRun(taskID string, sc *Scenario) {
	ctx := s.ctx
	s.group.Go(func() error {
		return s.runner.Run(ctx, taskID, sc)
	})
}

// Start starts the HTTP server.
// The server runs until ctx is cancelled or Stop is called.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return errors.New("server already started")
	}

	addr := net.JoinHostPort(s.host, strconv.Itoa(s.port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = listener

	mux := http.NewServeMux()
	s.setupRoutes(mux)

	s.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	runCtx, cancel := context.WithCancel(ctx)
	group, groupCtx := errgroup.WithContext(runCtx)
	s.ctx = groupCtx
	s.cancel = cancel
	s.group = group
	s.started = true

	for _, l := range s.pending {
		s.goRun(l.taskID, l.scenario)
	}
	s.pending = nil
	s.mu.Unlock()

	defer close(s.done)

	s.logger.Info("debug server listening", "addr", listener.Addr().String(), "prefix", s.basePath)
	close(s.ready)

	group.Go(func() error {
		err := s.server.Serve(listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}
		return nil
	})

	group.Go(func() error {
		ticker := time.NewTicker(cleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-groupCtx.Done():
				return nil
			case <-ticker.C:
				s.limiter.cleanup()
			}
		}
	})

	err = group.Wait()
	cancel()
	return err
}

// Stop gracefully shuts down the server and waits for Start to return.
func (s *Server) Stop() error {
	s.mu.RLock()
	started, cancel := s.started, s.cancel
	s.mu.RUnlock()

	if !started {
		return nil
	}

	cancel()
	select {
	case <-s.done:
		return nil
	case <-time.After(2 * shutdownTimeout):
		return errors.New("server did not stop in time")
	}
}

// setupRoutes configures the HTTP routes.
func (s *Server) setupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET "+s.basePath+"/tasks", s.handleListTasks)
	mux.HandleFunc("POST "+s.basePath+"/tasks", s.handleCreateTask)
	mux.HandleFunc("GET "+s.basePath+"/tasks/{id}", s.handleGetTask)
	mux.HandleFunc("POST "+s.basePath+"/tasks/{id}/restart", s.handleRestartTask)
	mux.HandleFunc("GET "+s.basePath+"/tasks/{id}/progress", s.handleProgress)
}

// checkOrigin accepts requests without an Origin header and origins whose
// host is one of the allowed domains or a subdomain of one.
func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.allowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if originAllowed(originHost(origin), s.allowedOrigins) {
		return true
	}
	s.logger.Debug("rejected websocket origin", "origin", origin)
	return false
}

// originAllowed matches host against domains on label boundaries, so
// "example.com" and ".example.com" both allow app.example.com but not
// evilexample.com.
func originAllowed(host string, domains []string) bool {
	for _, d := range domains {
		domain := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(d), "."))
		if domain == "" {
			continue
		}
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return true
		}
	}
	return false
}

// taskView is the JSON form of a task.
type taskView struct {
	Task
	ProgressURL string `json:"progress_url"`
}

func (s *Server) view(task Task) taskView {
	return taskView{Task: task, ProgressURL: s.basePath + "/tasks/" + task.ID + "/progress"}
}

// handleListTasks handles GET /tasks.
func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	tasks := s.tasks.List()
	views := make([]taskView, 0, len(tasks))
	for _, task := range tasks {
		views = append(views, s.view(task))
	}
	writeJSON(w, http.StatusOK, views)
}

// handleCreateTask handles POST /tasks.
func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	task := s.tasks.Create()
	if err := s.Launch(task.ID, nil); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	s.logger.Info("task created", "task", task.ID)
	writeJSON(w, http.StatusCreated, s.view(task))
}

// handleGetTask handles GET /tasks/{id}.
func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	task, ok := s.tasks.Get(r.PathValue("id"))
	if !ok {
		http.Error(w, "task not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, s.view(task))
}

// handleRestartTask handles POST /tasks/{id}/restart.
func (s *Server) handleRestartTask(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	task, ok := s.tasks.Get(id)
	if !ok {
		http.Error(w, "task not found", http.StatusNotFound)
		return
	}
	if !task.Status.Finished() {
		http.Error(w, "task is still running", http.StatusConflict)
		return
	}

	if err := s.tasks.Reset(id); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if err := s.Launch(id, nil); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	task, _ = s.tasks.Get(id)
	s.logger.Info("task restarted", "task", id)
	writeJSON(w, http.StatusOK, s.view(task))
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
}

func joinPath(parts ...string) string {
	var kept []string
	for _, p := range parts {
		if p = strings.Trim(p, "/ "); p != "" {
			kept = append(kept, p)
		}
	}
	return "/" + strings.Join(kept, "/")
}

func originHost(origin string) string {
	host := origin
	if _, rest, ok := strings.Cut(origin, "://"); ok {
		host = rest
	}
	host, _, _ = strings.Cut(host, "/")
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return strings.ToLower(host)
}
