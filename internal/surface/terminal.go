package surface

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

const (
	defaultWidth  = 80
	defaultHeight = 24
)

var spinnerFrames = []string{"|", "/", "-", "\\"}

// Terminal renders progress fragments to a terminal. On a TTY it redraws a
// titled box in place; on any other writer it prints plain text and only
// the lines that are new since the previous update.
type Terminal struct {
	mu sync.Mutex

	out   io.Writer
	fd    int
	ansi  bool
	title string
	width int

	lines    []string
	printed  []string
	activity string
	frame    int
}

// TerminalOption configures a Terminal.
type TerminalOption func(*Terminal)

// WithTitle sets the box title.
func WithTitle(title string) TerminalOption {
	return func(t *Terminal) {
		t.title = title
	}
}

// WithWidth fixes the render width instead of querying the terminal.
func WithWidth(width int) TerminalOption {
	return func(t *Terminal) {
		t.width = width
	}
}

// WithANSI forces ANSI rendering on or off.
func WithANSI(enabled bool) TerminalOption {
	return func(t *Terminal) {
		t.ansi = enabled
	}
}

// NewTerminal creates a Terminal writing to out. ANSI rendering is enabled
// when out is a terminal.
func NewTerminal(out io.Writer, opts ...TerminalOption) *Terminal {
	t := &Terminal{out: out, fd: -1}
	if f, ok := out.(*os.File); ok {
		t.fd = int(f.Fd())
		t.ansi = term.IsTerminal(t.fd)
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// ANSI reports whether the terminal redraws in place.
func (t *Terminal) ANSI() bool {
	return t.ansi
}

// ReplaceContent shows fragment in place of the current content.
func (t *Terminal) ReplaceContent(fragment string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.lines = ToLines(fragment)
	t.activity = ""

	if !t.ansi {
		return t.printNew()
	}
	return t.draw(false)
}

// AppendContent shows fragment as an activity line under the content.
// Plain output ignores it.
func (t *Terminal) AppendContent(fragment string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.ansi {
		return nil
	}

	t.frame = (t.frame + 1) % len(spinnerFrames)
	text := ToText(fragment)
	if text == "" {
		text = "working"
	}
	t.activity = spinnerFrames[t.frame] + " " + strings.ReplaceAll(text, "\n", " ")
	return t.draw(false)
}

// ScrollIntoView redraws the whole screen with the latest lines visible.
func (t *Terminal) ScrollIntoView() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.ansi {
		return nil
	}
	return t.draw(true)
}

// Finish prints a final status line below the content and restores the cursor.
func (t *Terminal) Finish(status string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.ansi {
		t.activity = ""
		if err := t.draw(false); err != nil {
			return err
		}
		_, err := fmt.Fprintf(t.out, "%s%s\n", CursorShow, status)
		return err
	}
	_, err := fmt.Fprintln(t.out, status)
	return err
}

// printNew writes the lines not printed yet. When the new content does not
// extend the previous one, all of it is printed.
func (t *Terminal) printNew() error {
	start := 0
	if hasPrefix(t.lines, t.printed) {
		start = len(t.printed)
	}

	var sb strings.Builder
	for _, line := range t.lines[start:] {
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	t.printed = append(t.printed[:0], t.lines...)

	if sb.Len() == 0 {
		return nil
	}
	_, err := io.WriteString(t.out, sb.String())
	return err
}

func (t *Terminal) draw(clear bool) error {
	width, height := t.size()

	visible := height - 3
	if t.activity != "" {
		visible--
	}
	if visible < 1 {
		visible = 1
	}

	content := TailLines(t.lines, visible)
	box := BoxWithContent(width, t.title, content)

	var sb strings.Builder
	sb.WriteString(CursorHide)
	if clear {
		sb.WriteString(ClearScreen)
	}
	sb.WriteString(CursorHome)
	for _, line := range box {
		sb.WriteString(line)
		sb.WriteString(ClearLine)
		sb.WriteString("\r\n")
	}
	if t.activity != "" {
		sb.WriteString(Style(t.activity, Dim))
		sb.WriteString(ClearLine)
		sb.WriteString("\r\n")
	}
	sb.WriteString(ClearToEnd)

	_, err := io.WriteString(t.out, sb.String())
	return err
}

func (t *Terminal) size() (int, int) {
	width, height := defaultWidth, defaultHeight
	if t.fd >= 0 {
		if w, h, err := term.GetSize(t.fd); err == nil && w > 0 && h > 0 {
			width, height = w, h
		}
	}
	if t.width > 0 {
		width = t.width
	}
	return width, height
}

func hasPrefix(lines, prefix []string) bool {
	if len(prefix) > len(lines) {
		return false
	}
	for i := range prefix {
		if lines[i] != prefix[i] {
			return false
		}
	}
	return true
}
