// Package surface provides progress surfaces: render targets that a
// progress client writes status fragments into.
package surface

import (
	"sync"
)

// Buffer is an in-memory surface. It is safe for concurrent use, so tests
// and headless callers can read it while a client writes.
type Buffer struct {
	mu       sync.Mutex
	content  string
	replaced []string
	appends  int
	scrolls  int
}

// NewBuffer returns an empty Buffer.
func NewBuffer() *Buffer {
	return &Buffer{}
}

// ReplaceContent replaces the whole content with fragment.
func (b *Buffer) ReplaceContent(fragment string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.content = fragment
	b.replaced = append(b.replaced, fragment)
	return nil
}

// AppendContent appends fragment to the content.
func (b *Buffer) AppendContent(fragment string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.content += fragment
	b.appends++
	return nil
}

// ScrollIntoView counts scroll requests.
func (b *Buffer) ScrollIntoView() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.scrolls++
	return nil
}

// Content returns the current content.
func (b *Buffer) Content() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.content
}

// History returns every fragment passed to ReplaceContent, oldest first.
func (b *Buffer) History() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.replaced...)
}

// AppendCount returns how many times AppendContent was called.
func (b *Buffer) AppendCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.appends
}

// ScrollCount returns how many times ScrollIntoView was called.
func (b *Buffer) ScrollCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.scrolls
}
