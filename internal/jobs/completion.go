package jobs

import (
	"bytes"
	"sync"
)

type outcome struct {
	timedOut bool
	exitCode int
	stdout   string
	stderr   string
}

// completion resolves a run exactly once. The timer and the exit watcher
// both call settle; only the first call has any effect.
type completion struct {
	once sync.Once
	ch   chan outcome
}

func newCompletion() *completion {
	return &completion{ch: make(chan outcome, 1)}
}

// settle seals the capture buffers, snapshots them into o, runs before (if
// any) and then publishes o. It reports whether this call won.
func (c *completion) settle(o outcome, stdout, stderr *capture, before func()) bool {
	won := false
	c.once.Do(func() {
		won = true
		o.stdout = stdout.seal()
		o.stderr = stderr.seal()
		if before != nil {
			before()
		}
		c.ch <- o
	})
	return won
}

func (c *completion) wait() outcome {
	return <-c.ch
}

// capture is an io.Writer that stops accepting data once sealed.
type capture struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	sealed bool
}

func (c *capture) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.sealed {
		c.buf.Write(p)
	}
	return len(p), nil
}

// seal stops further writes and returns what was captured so far.
func (c *capture) seal() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sealed = true
	return c.buf.String()
}

func (c *capture) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.String()
}
