package progress

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTargetURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		target Target
		want   string
	}{
		{
			name:   "secure with deploy path",
			target: Target{Secure: true, Host: "example.com", DeployPath: "video/flip", Route: "ui", TaskID: "42"},
			want:   "wss://example.com/video/flip/ui/tasks/42/progress",
		},
		{
			name:   "insecure without deploy path",
			target: Target{Host: "localhost:8080", Route: "ui", TaskID: "42"},
			want:   "ws://localhost:8080/ui/tasks/42/progress",
		},
		{
			name:   "default route",
			target: Target{Host: "localhost", DeployPath: "app", TaskID: "abc"},
			want:   "ws://localhost/app/video/flip/ui/tasks/abc/progress",
		},
		{
			name:   "stray slashes are dropped",
			target: Target{Host: "localhost", DeployPath: "/app/", Route: "/ui/", TaskID: "7"},
			want:   "ws://localhost/app/ui/tasks/7/progress",
		},
		{
			name:   "task ID whitespace is trimmed",
			target: Target{Host: "localhost", Route: "ui", TaskID: " 42 "},
			want:   "ws://localhost/ui/tasks/42/progress",
		},
		{
			name:   "task ID is one path segment",
			target: Target{Host: "localhost", Route: "ui", TaskID: "a/b c"},
			want:   "ws://localhost/ui/tasks/a%2Fb%20c/progress",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.target.URL())
			assert.Equal(t, tt.want, tt.target.String())
		})
	}
}

func TestTargetValidate(t *testing.T) {
	t.Parallel()

	err := Target{TaskID: "42"}.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidTarget))
	assert.Contains(t, err.Error(), "host")

	err = Target{Host: "localhost", TaskID: "  "}.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidTarget))
	assert.Contains(t, err.Error(), "task ID")

	assert.NoError(t, Target{Host: "localhost", TaskID: "42"}.Validate())
}

func TestTargetFromOrigin(t *testing.T) {
	t.Parallel()

	t.Run("https selects wss", func(t *testing.T) {
		t.Parallel()

		target, err := TargetFromOrigin("https://example.com:8443", "video/flip", "ui", "42")
		require.NoError(t, err)
		assert.True(t, target.Secure)
		assert.Equal(t, "wss", target.Scheme())
		assert.Equal(t, "wss://example.com:8443/video/flip/ui/tasks/42/progress", target.URL())
	})

	t.Run("http selects ws", func(t *testing.T) {
		t.Parallel()

		target, err := TargetFromOrigin("http://localhost:8375", "", "", "42")
		require.NoError(t, err)
		assert.False(t, target.Secure)
		assert.Equal(t, "ws://localhost:8375/video/flip/ui/tasks/42/progress", target.URL())
	})

	t.Run("rejects other schemes", func(t *testing.T) {
		t.Parallel()

		_, err := TargetFromOrigin("ftp://example.com", "", "", "42")
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidTarget))
	})

	t.Run("rejects missing host", func(t *testing.T) {
		t.Parallel()

		_, err := TargetFromOrigin("https://", "", "", "42")
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidTarget))
	})
}
