package surface

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// ANSI escape sequences
const (
	ClearScreen = "\033[2J" // Clear entire screen
	ClearToEnd  = "\033[J"  // Clear from cursor to end of screen
	ClearLine   = "\033[K"  // Clear from cursor to end of line
	CursorHome  = "\033[H"  // Move cursor to home position (1,1)
	CursorHide  = "\033[?25l"
	CursorShow  = "\033[?25h"

	Reset = "\033[0m"
	Bold  = "\033[1m"
	Dim   = "\033[2m"

	FgRed         = "\033[31m"
	FgGreen       = "\033[32m"
	FgYellow      = "\033[33m"
	FgCyan        = "\033[36m"
	FgBrightGreen = "\033[92m"

	Bell = "\a"
)

// Box drawing characters (Unicode)
const (
	BoxTopLeft     = "┌"
	BoxTopRight    = "┐"
	BoxBottomLeft  = "└"
	BoxBottomRight = "┘"
	BoxHorizontal  = "─"
	BoxVertical    = "│"
)

// CursorTo returns an ANSI escape sequence to move the cursor to (row, col).
// Row and column are 1-indexed.
func CursorTo(row, col int) string {
	return fmt.Sprintf("\033[%d;%dH", row, col)
}

// BoxWithContent draws a box with title in its top border containing the
// given content lines. Each line is padded/truncated to fit.
func BoxWithContent(width int, title string, content []string) []string {
	if width < 4 {
		return nil
	}

	innerWidth := width - 4 // Account for borders and padding
	lines := make([]string, 0, len(content)+2)

	top := BoxHorizontal
	if title != "" {
		top += " " + Truncate(title, width-6) + " "
	}
	pad := width - 2 - utf8.RuneCountInString(top)
	if pad < 0 {
		pad = 0
	}
	lines = append(lines, BoxTopLeft+top+strings.Repeat(BoxHorizontal, pad)+BoxTopRight)

	for _, line := range content {
		lines = append(lines, BoxVertical+" "+PadOrTruncate(line, innerWidth)+" "+BoxVertical)
	}

	lines = append(lines, BoxBottomLeft+strings.Repeat(BoxHorizontal, width-2)+BoxBottomRight)
	return lines
}

// PadOrTruncate pads or truncates a string to exactly width characters.
// Uses visual width (rune count) for proper Unicode handling.
func PadOrTruncate(s string, width int) string {
	if width <= 0 {
		return ""
	}

	runeLen := utf8.RuneCountInString(s)
	if runeLen == width {
		return s
	}
	if runeLen < width {
		return s + strings.Repeat(" ", width-runeLen)
	}
	return Truncate(s, width)
}

// Truncate truncates a string to max width, adding ellipsis if needed.
func Truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}

	runes := []rune(s)
	if len(runes) <= width {
		return s
	}

	if width >= 3 {
		return string(runes[:width-3]) + "..."
	}
	return string(runes[:width])
}

// TailLines returns the last n lines.
func TailLines(lines []string, n int) []string {
	if n <= 0 {
		return nil
	}
	if len(lines) <= n {
		return lines
	}
	return lines[len(lines)-n:]
}

// Style applies ANSI style codes to text.
func Style(s string, codes ...string) string {
	if len(codes) == 0 {
		return s
	}
	return strings.Join(codes, "") + s + Reset
}
