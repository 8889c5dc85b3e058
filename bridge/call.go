package bridge

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// Call is the eventual result of one invoke. It completes exactly once,
// with either a result payload or an error.
type Call struct {
	ID       string
	Command  string
	Timeout  time.Duration
	IssuedAt time.Time

	timer  *time.Timer
	once   sync.Once
	done   chan struct{}
	result json.RawMessage
	err    error

	// abandon removes the call from its correlator when a waiter gives up
	abandon func(call *Call, err error)
}

func newCall(id, command string, timeout time.Duration) *Call {
	return &Call{
		ID:       id,
		Command:  command,
		Timeout:  timeout,
		IssuedAt: time.Now(),
		done:     make(chan struct{}),
	}
}

// Done is closed once the call has completed
func (c *Call) Done() <-chan struct{} {
	return c.done
}

// Result blocks until the call completes and returns its outcome
func (c *Call) Result() (json.RawMessage, error) {
	<-c.done
	return c.result, c.err
}

// Wait blocks until the call completes or ctx is done. When ctx wins, the
// pending call is withdrawn and fails with the context error, unless a
// response or timeout completed it first.
func (c *Call) Wait(ctx context.Context) (json.RawMessage, error) {
	select {
	case <-c.done:
		return c.result, c.err
	case <-ctx.Done():
		if c.abandon != nil {
			c.abandon(c, ctx.Err())
		}
		return c.Result()
	}
}

// complete records the outcome; only the first completion wins
func (c *Call) complete(result json.RawMessage, err error) bool {
	completed := false
	c.once.Do(func() {
		c.result = result
		c.err = err
		completed = true
		close(c.done)
	})
	return completed
}
