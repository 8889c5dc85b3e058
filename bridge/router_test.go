package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventRouter(t *testing.T) {
	t.Run("event reaches every subscriber exactly once", func(t *testing.T) {
		r := NewEventRouter()
		var got1, got2 []string

		r.Subscribe("progress", func(ctx context.Context, payload json.RawMessage) error {
			got1 = append(got1, string(payload))
			return nil
		})
		r.Subscribe("progress", func(ctx context.Context, payload json.RawMessage) error {
			got2 = append(got2, string(payload))
			return nil
		})

		n := r.Dispatch(context.Background(), "progress", json.RawMessage(`{"pct":40}`))

		assert.Equal(t, 2, n)
		assert.Equal(t, []string{`{"pct":40}`}, got1)
		assert.Equal(t, []string{`{"pct":40}`}, got2)
	})

	t.Run("unsubscribed handler never runs", func(t *testing.T) {
		r := NewEventRouter()
		called := false
		unsubscribe := r.Subscribe("progress", func(ctx context.Context, payload json.RawMessage) error {
			called = true
			return nil
		})

		unsubscribe()
		n := r.Dispatch(context.Background(), "progress", json.RawMessage(`null`))

		assert.False(t, called)
		assert.Equal(t, 0, n)
		assert.Equal(t, 0, r.SubscriberCount("progress"))
	})

	t.Run("unsubscribe removes only its own registration", func(t *testing.T) {
		r := NewEventRouter()
		count := 0
		handler := func(ctx context.Context, payload json.RawMessage) error {
			count++
			return nil
		}

		first := r.Subscribe("tick", handler)
		r.Subscribe("tick", handler)

		first()
		first()
		r.Dispatch(context.Background(), "tick", nil)

		assert.Equal(t, 1, count)
		assert.Equal(t, 1, r.SubscriberCount("tick"))
	})

	t.Run("failing handler does not stop the others", func(t *testing.T) {
		metrics := newRecordingMetrics()
		r := NewEventRouter(WithMetrics(metrics))
		delivered := 0

		r.Subscribe("progress", func(ctx context.Context, payload json.RawMessage) error {
			return errors.New("boom")
		})
		r.Subscribe("progress", func(ctx context.Context, payload json.RawMessage) error {
			panic("handler bug")
		})
		r.Subscribe("progress", func(ctx context.Context, payload json.RawMessage) error {
			delivered++
			return nil
		})

		assert.NotPanics(t, func() {
			r.Dispatch(context.Background(), "progress", json.RawMessage(`1`))
		})
		assert.Equal(t, 1, delivered)
		assert.Equal(t, 2, metrics.handlerFailuresFor("progress"))
	})

	t.Run("event without subscribers is dropped", func(t *testing.T) {
		metrics := newRecordingMetrics()
		r := NewEventRouter(WithMetrics(metrics))

		n := r.Dispatch(context.Background(), "orphan", json.RawMessage(`{}`))

		assert.Equal(t, 0, n)
		assert.Equal(t, 1, metrics.droppedFor(DropNoSubscriber))
	})

	t.Run("changes during dispatch apply to the next event", func(t *testing.T) {
		r := NewEventRouter()
		var order []string
		var unsubscribeSecond func()

		r.Subscribe("step", func(ctx context.Context, payload json.RawMessage) error {
			order = append(order, "first")
			unsubscribeSecond()
			r.Subscribe("step", func(ctx context.Context, payload json.RawMessage) error {
				order = append(order, "late")
				return nil
			})
			return nil
		})
		unsubscribeSecond = r.Subscribe("step", func(ctx context.Context, payload json.RawMessage) error {
			order = append(order, "second")
			return nil
		})

		r.Dispatch(context.Background(), "step", nil)

		assert.Equal(t, []string{"first", "second"}, order)
		assert.Equal(t, 2, r.SubscriberCount("step"))
	})

	t.Run("each handler gets its own copy of the payload", func(t *testing.T) {
		r := NewEventRouter()
		var seen string

		r.Subscribe("data", func(ctx context.Context, payload json.RawMessage) error {
			payload[0] = 'X'
			return nil
		})
		r.Subscribe("data", func(ctx context.Context, payload json.RawMessage) error {
			seen = string(payload)
			return nil
		})

		original := json.RawMessage(`"abc"`)
		r.Dispatch(context.Background(), "data", original)

		assert.Equal(t, `"abc"`, seen)
		assert.Equal(t, `"abc"`, string(original))
	})

	t.Run("nil handler is ignored", func(t *testing.T) {
		r := NewEventRouter()
		unsubscribe := r.Subscribe("x", nil)

		require.NotNil(t, unsubscribe)
		assert.NotPanics(t, unsubscribe)
		assert.Equal(t, 0, r.SubscriberCount("x"))
	})

	t.Run("Events lists names with subscribers", func(t *testing.T) {
		r := NewEventRouter()
		noop := func(ctx context.Context, payload json.RawMessage) error { return nil }

		r.Subscribe("windowFocus", noop)
		stop := r.Subscribe("progress", noop)
		r.Subscribe("closing", noop)
		assert.Equal(t, []string{"closing", "progress", "windowFocus"}, r.Events())

		stop()
		assert.Equal(t, []string{"closing", "windowFocus"}, r.Events())
	})

	t.Run("concurrent subscribe and dispatch is safe", func(t *testing.T) {
		r := NewEventRouter()
		var wg sync.WaitGroup

		for i := 0; i < 20; i++ {
			wg.Add(2)
			go func() {
				defer wg.Done()
				stop := r.Subscribe("busy", func(ctx context.Context, payload json.RawMessage) error { return nil })
				stop()
			}()
			go func() {
				defer wg.Done()
				r.Dispatch(context.Background(), "busy", json.RawMessage(`{}`))
			}()
		}
		wg.Wait()

		assert.Equal(t, 0, r.SubscriberCount("busy"))
	})
}
