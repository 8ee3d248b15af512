package server

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/thruflo/taskwatch/internal/logging"
	"gopkg.in/yaml.v3"
)

// Step is one progress line emitted after Delay.
type Step struct {
	Line  string        `yaml:"line"`
	Delay time.Duration `yaml:"delay"`
}

// Scenario scripts the progress of a task.
type Scenario struct {
	Name        string `yaml:"name"`
	Steps       []Step `yaml:"steps"`
	FinalStatus Status `yaml:"final_status"`
}

// DefaultScenario returns the scenario used when none is loaded.
func DefaultScenario() *Scenario {
	step := 400 * time.Millisecond
	return &Scenario{
		Name: "demo",
		Steps: []Step{
			{Line: "extracting audio track", Delay: step},
			{Line: "detecting scene boundaries", Delay: step},
			{Line: "frame 120 of 480", Delay: step},
			{Line: "frame 240 of 480", Delay: step},
			{Line: "frame 360 of 480", Delay: step},
			{Line: "frame 480 of 480", Delay: step},
			{Line: "joining video and audio", Delay: step},
		},
		FinalStatus: StatusSuccess,
	}
}

// LoadScenario reads a scenario YAML file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario decodes and validates a scenario. A missing final_status
// means success.
func ParseScenario(data []byte) (*Scenario, error) {
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("failed to parse scenario: %w", err)
	}
	if sc.FinalStatus == "" {
		sc.FinalStatus = StatusSuccess
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return &sc, nil
}

// Validate checks that the scenario can be played.
func (sc *Scenario) Validate() error {
	if !sc.FinalStatus.Finished() {
		return fmt.Errorf("scenario final_status must be %s or %s, got %q", StatusStopped, StatusSuccess, sc.FinalStatus)
	}
	for i, step := range sc.Steps {
		if step.Delay < 0 {
			return fmt.Errorf("scenario step %d: delay must not be negative", i+1)
		}
	}
	return nil
}

// Duration is the total delay of all steps.
func (sc *Scenario) Duration() time.Duration {
	var total time.Duration
	for _, step := range sc.Steps {
		total += step.Delay
	}
	return total
}

// Runner plays scenarios against tasks in a TaskStore.
type Runner struct {
	store  *TaskStore
	logger *logging.Logger
}

// NewRunner creates a Runner for store.
func NewRunner(store *TaskStore, logger *logging.Logger) *Runner {
	if logger == nil {
		logger = logging.Default()
	}
	return &Runner{store: store, logger: logger}
}

// Run marks the task running, appends each step after its delay and sets
// the final status. When ctx ends first the task is marked stopped and Run
// returns nil. Errors are returned only for store failures.
func (r *Runner) Run(ctx context.Context, taskID string, sc *Scenario) error {
	log := r.logger.WithFields(map[string]interface{}{"task": taskID, "scenario": sc.Name})

	if err := r.store.SetStatus(taskID, StatusRunning); err != nil {
		return err
	}
	log.Debug("scenario started", "steps", len(sc.Steps))

	for _, step := range sc.Steps {
		select {
		case <-ctx.Done():
			log.Info("scenario interrupted")
			return r.store.SetStatus(taskID, StatusStopped)
		case <-time.After(step.Delay):
		}

		if err := r.store.AppendProgress(taskID, step.Line); err != nil {
			return err
		}
	}

	log.Debug("scenario finished", "status", string(sc.FinalStatus))
	return r.store.SetStatus(taskID, sc.FinalStatus)
}
