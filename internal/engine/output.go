package engine

import (
	"strings"
	"sync"
	"unicode"
)

// lineCounter counts non-blank lines written to it without keeping them.
type lineCounter struct {
	lines      int64
	hasContent bool
}

func (c *lineCounter) Write(p []byte) (int, error) {
	for _, b := range p {
		switch {
		case b == '\n':
			if c.hasContent {
				c.lines++
			}
			c.hasContent = false
		case !unicode.IsSpace(rune(b)):
			c.hasContent = true
		}
	}
	return len(p), nil
}

// Count returns the number of non-blank lines, including an unterminated
// final line.
func (c *lineCounter) Count() int64 {
	if c.hasContent {
		return c.lines + 1
	}
	return c.lines
}

// rows converts a line count into a row count by dropping header lines.
func rows(lines int64, headerLines int) int64 {
	n := lines - int64(headerLines)
	if n < 0 {
		return 0
	}
	return n
}

const tailSize = 4096

// tailBuffer keeps the last tailSize bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	buf []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if len(t.buf) > tailSize {
		t.buf = append([]byte(nil), t.buf[len(t.buf)-tailSize:]...)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.TrimSpace(string(t.buf))
}
