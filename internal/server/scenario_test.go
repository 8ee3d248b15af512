package server

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thruflo/taskwatch/internal/logging"
	"github.com/thruflo/taskwatch/internal/testutil"
)

func quietLogger() *logging.Logger {
	l := logging.New()
	l.SetOutput(&bytes.Buffer{})
	return l
}

func TestParseScenario(t *testing.T) {
	t.Parallel()

	sc, err := ParseScenario([]byte(`name: flip
steps:
  - line: extracting audio
    delay: 10ms
  - line: frame 1 of 2
    delay: 1s
final_status: stopped
`))
	require.NoError(t, err)

	assert.Equal(t, "flip", sc.Name)
	require.Len(t, sc.Steps, 2)
	assert.Equal(t, Step{Line: "extracting audio", Delay: 10 * time.Millisecond}, sc.Steps[0])
	assert.Equal(t, StatusStopped, sc.FinalStatus)
	assert.Equal(t, 1010*time.Millisecond, sc.Duration())
}

func TestParseScenario_DefaultsToSuccess(t *testing.T) {
	t.Parallel()

	sc, err := ParseScenario([]byte("steps:\n  - line: only\n"))
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, sc.FinalStatus)
	assert.Zero(t, sc.Steps[0].Delay)
}

func TestParseScenario_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		yaml string
	}{
		{name: "bad yaml", yaml: "steps: [\n"},
		{name: "unfinished final status", yaml: "final_status: running\n"},
		{name: "negative delay", yaml: "steps:\n  - line: x\n    delay: -1s\n"},
		{name: "bad delay", yaml: "steps:\n  - line: x\n    delay: soon\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := ParseScenario([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoadScenario(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	testutil.WriteTestFile(t, dir, "scenario.yaml", []byte("name: file\nsteps:\n  - line: a\n"))

	sc, err := LoadScenario(filepath.Join(dir, "scenario.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "file", sc.Name)

	_, err = LoadScenario(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestDefaultScenario(t *testing.T) {
	t.Parallel()

	sc := DefaultScenario()
	require.NoError(t, sc.Validate())
	assert.NotEmpty(t, sc.Steps)
	assert.Equal(t, StatusSuccess, sc.FinalStatus)
}

func TestRunner_Run(t *testing.T) {
	t.Parallel()

	store := NewTaskStore()
	task := store.Create()
	sc := &Scenario{
		Name: "quick",
		Steps: []Step{
			{Line: "one"},
			{Line: "two", Delay: time.Millisecond},
		},
		FinalStatus: StatusSuccess,
	}

	ctx, cancel := testutil.ShortOperationContext(t)
	defer cancel()
	require.NoError(t, NewRunner(store, quietLogger()).Run(ctx, task.ID, sc))

	got, _ := store.Get(task.ID)
	assert.Equal(t, StatusSuccess, got.Status)
	assert.Equal(t, []string{"one", "two"}, got.Progress)
}

func TestRunner_Cancelled(t *testing.T) {
	t.Parallel()

	store := NewTaskStore()
	task := store.Create()
	sc := &Scenario{
		Steps:       []Step{{Line: "one"}, {Line: "never", Delay: time.Hour}},
		FinalStatus: StatusSuccess,
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- NewRunner(store, quietLogger()).Run(ctx, task.ID, sc)
	}()

	require.Eventually(t, func() bool {
		got, _ := store.Get(task.ID)
		return len(got.Progress) == 1
	}, 5*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("runner did not stop")
	}

	got, _ := store.Get(task.ID)
	assert.Equal(t, StatusStopped, got.Status)
	assert.Equal(t, []string{"one"}, got.Progress)
}

func TestRunner_UnknownTask(t *testing.T) {
	t.Parallel()

	err := NewRunner(NewTaskStore(), quietLogger()).Run(context.Background(), "missing", DefaultScenario())
	assert.ErrorIs(t, err, ErrTaskNotFound)
}
