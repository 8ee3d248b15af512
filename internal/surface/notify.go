package surface

import (
	"fmt"
	"io"
	"os/exec"
	"runtime"
)

// Notifier tells the user that a stream ended. In the foreground it rings
// the terminal bell; in the background it uses OS-native notifications.
type Notifier struct {
	out    io.Writer
	notify func(title, message string) error
}

// NewNotifier creates a Notifier that writes the bell to out.
func NewNotifier(out io.Writer) *Notifier {
	return &Notifier{out: out, notify: notifyOS}
}

// Bell writes the terminal bell character to output.
func (n *Notifier) Bell() {
	fmt.Fprint(n.out, Bell)
}

// NotifyAttention rings the bell when foreground is true and sends an OS
// notification otherwise.
func (n *Notifier) NotifyAttention(title, message string, foreground bool) error {
	if foreground {
		n.Bell()
		return nil
	}
	return n.notify(title, message)
}

// NotificationReason represents why a notification is being sent.
type NotificationReason int

const (
	NotifyReasonComplete NotificationReason = iota
	NotifyReasonStopped
	NotifyReasonDied
)

// String returns a human-readable title for the notification reason.
func (r NotificationReason) String() string {
	switch r {
	case NotifyReasonComplete:
		return "Completed"
	case NotifyReasonStopped:
		return "Stopped"
	case NotifyReasonDied:
		return "Connection Lost"
	default:
		return "taskwatch"
	}
}

// DefaultMessage returns a default notification message for the reason.
func (r NotificationReason) DefaultMessage(taskID string) string {
	switch r {
	case NotifyReasonComplete:
		return fmt.Sprintf("Task %s completed", taskID)
	case NotifyReasonStopped:
		return fmt.Sprintf("Task %s stream closed by the server", taskID)
	case NotifyReasonDied:
		return fmt.Sprintf("Lost the progress stream of task %s", taskID)
	default:
		return fmt.Sprintf("Task %s needs attention", taskID)
	}
}

// NotifyForReason sends a notification for the given reason.
func (n *Notifier) NotifyForReason(reason NotificationReason, taskID string, foreground bool) error {
	title := "taskwatch: " + reason.String()
	return n.NotifyAttention(title, reason.DefaultMessage(taskID), foreground)
}

// notifyOS uses osascript on macOS and is a no-op elsewhere.
func notifyOS(title, message string) error {
	if runtime.GOOS != "darwin" {
		return nil
	}
	script := fmt.Sprintf(`display notification %q with title %q`, message, title)
	return exec.Command("osascript", "-e", script).Run()
}
