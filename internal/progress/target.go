package progress

import (
	"fmt"
	"net/url"
	"strings"
)

// DefaultRoute is the route segment the task UI is mounted under.
const DefaultRoute = "video/flip/ui"

// Target identifies the progress endpoint of one task.
type Target struct {
	// Secure selects wss instead of ws.
	Secure bool

	// Host is the host[:port] of the hosting page.
	Host string

	// DeployPath is an optional path prefix the application is deployed under.
	DeployPath string

	// Route is the fixed route segment in front of "/tasks". Empty means DefaultRoute.
	Route string

	// TaskID is the opaque task identifier.
	TaskID string
}

// TargetFromOrigin builds a Target from the origin of the hosting page
// (e.g. "https://example.com:8443"). http maps to ws and https to wss.
func TargetFromOrigin(origin, deployPath, route, taskID string) (Target, error) {
	u, err := url.Parse(strings.TrimSpace(origin))
	if err != nil {
		return Target{}, fmt.Errorf("%w: bad origin %q: %v", ErrInvalidTarget, origin, err)
	}

	var secure bool
	switch strings.ToLower(u.Scheme) {
	case "http", "ws":
	case "https", "wss":
		secure = true
	default:
		return Target{}, fmt.Errorf("%w: unsupported origin scheme %q", ErrInvalidTarget, u.Scheme)
	}

	t := Target{
		Secure:     secure,
		Host:       u.Host,
		DeployPath: deployPath,
		Route:      route,
		TaskID:     taskID,
	}
	if err := t.Validate(); err != nil {
		return Target{}, err
	}
	return t, nil
}

// Validate reports whether the target has everything needed to build a URL.
func (t Target) Validate() error {
	if strings.TrimSpace(t.Host) == "" {
		return fmt.Errorf("%w: host is required", ErrInvalidTarget)
	}
	if strings.TrimSpace(t.TaskID) == "" {
		return fmt.Errorf("%w: task ID is required", ErrInvalidTarget)
	}
	return nil
}

// Scheme returns "wss" for secure targets and "ws" otherwise.
func (t Target) Scheme() string {
	if t.Secure {
		return "wss"
	}
	return "ws"
}

// Path returns [/<deployPath>]/<route>/tasks/<taskID>/progress.
// Stray slashes around the deploy path and route are dropped and the task
// ID is trimmed and escaped as a single path segment.
func (t Target) Path() string {
	route := strings.Trim(t.Route, "/ ")
	if route == "" {
		route = DefaultRoute
	}

	var sb strings.Builder
	if deploy := strings.Trim(t.DeployPath, "/ "); deploy != "" {
		sb.WriteString("/")
		sb.WriteString(deploy)
	}
	sb.WriteString("/")
	sb.WriteString(route)
	sb.WriteString("/tasks/")
	sb.WriteString(url.PathEscape(strings.TrimSpace(t.TaskID)))
	sb.WriteString("/progress")
	return sb.String()
}

// URL renders the websocket URL of the target.
func (t Target) URL() string {
	return t.Scheme() + "://" + strings.TrimSpace(t.Host) + t.Path()
}

func (t Target) String() string {
	return t.URL()
}
