package cli

import (
	"bytes"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/cobra"
)

// syncBuffer is a bytes.Buffer safe for one writer and concurrent readers.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// testCommand returns a bare command writing to out. Flag lookups on it
// report every flag as unchanged.
func testCommand(out io.Writer) *cobra.Command {
	cmd := &cobra.Command{}
	cmd.SetOut(out)
	cmd.SetErr(io.Discard)
	return cmd
}

// useBaseDir points config loading at dir and silences logging for the
// duration of the test.
func useBaseDir(t *testing.T, dir string) {
	t.Helper()
	baseDir = dir
	logLevel = "error"
	t.Cleanup(func() {
		baseDir = ""
		logLevel = ""
	})
}

func hasLine(output, line string) bool {
	for _, l := range strings.Split(output, "\n") {
		if l == line {
			return true
		}
	}
	return false
}
