package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/glimte/nativebridge/contracts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type windowList struct {
	Code    int   `json:"code"`
	Windows []int `json:"windows"`
}

func newTestBridge(t *testing.T, opts ...BridgeOption) (*Bridge, *mockTransport) {
	t.Helper()
	transport := newMockTransport()
	transport.On("IsConnected").Return(true)

	b, err := NewBridge(transport, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b, transport
}

func TestNewBridge(t *testing.T) {
	t.Run("NewBridge rejects a nil transport", func(t *testing.T) {
		b, err := NewBridge(nil)
		assert.Error(t, err)
		assert.Nil(t, b)
	})

	t.Run("NewBridge connects a disconnected transport", func(t *testing.T) {
		transport := newMockTransport()
		transport.On("IsConnected").Return(false)
		transport.On("Connect", mock.Anything).Return(nil)

		b, err := NewBridge(transport)
		require.NoError(t, err)
		defer b.Close()

		transport.AssertExpectations(t)
		assert.Same(t, transport, b.Transport())
	})

	t.Run("NewBridge surfaces connect failures", func(t *testing.T) {
		transport := newMockTransport()
		transport.On("IsConnected").Return(false)
		transport.On("Connect", mock.Anything).Return(errors.New("refused"))

		b, err := NewBridge(transport)
		assert.ErrorContains(t, err, "refused")
		assert.Nil(t, b)
	})
}

func TestBridgeInvoke(t *testing.T) {
	t.Run("Invoke returns the correlated result", func(t *testing.T) {
		b, transport := newTestBridge(t)
		transport.publisher.onPublish = func(req contracts.Request) {
			go transport.subscriber.deliver(responseJSON(t, req.ID, map[string]interface{}{
				"code": 10001, "echo": req.Command,
			}))
		}

		result, err := b.Invoke(context.Background(), "echo", nil)

		require.NoError(t, err)
		assert.JSONEq(t, `{"code":10001,"echo":"echo"}`, string(result))
		assert.Equal(t, 0, b.PendingCount())
	})

	t.Run("Invoke surfaces native failures", func(t *testing.T) {
		b, transport := newTestBridge(t)
		transport.publisher.onPublish = func(req contracts.Request) {
			go transport.subscriber.deliver(responseJSON(t, req.ID, json.RawMessage(`{"code":40000,"msg":"bad args"}`)))
		}

		_, err := b.Invoke(context.Background(), "activateWindow", map[string]string{"id": "x"})

		assert.ErrorIs(t, err, contracts.ErrNative)
		assert.EqualError(t, err, "bad args")
	})

	t.Run("Invoke times out when nothing answers", func(t *testing.T) {
		b, _ := newTestBridge(t)

		_, err := b.Invoke(context.Background(), "ping", nil, WithTimeout(50*time.Millisecond))

		assert.ErrorIs(t, err, contracts.ErrTimeout)
		assert.Contains(t, err.Error(), "ping")
	})

	t.Run("Invoke returns when ctx is cancelled", func(t *testing.T) {
		b, _ := newTestBridge(t)
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		_, err := b.Invoke(ctx, "slow", nil, WithTimeout(time.Minute))

		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Equal(t, 0, b.PendingCount())
	})

	t.Run("InvokeTyped decodes the result", func(t *testing.T) {
		b, transport := newTestBridge(t)
		transport.publisher.onPublish = func(req contracts.Request) {
			go transport.subscriber.deliver(responseJSON(t, req.ID, windowList{Code: 10000, Windows: []int{3, 5}}))
		}

		list, err := InvokeTyped[windowList](context.Background(), b, "getWindows", nil)

		require.NoError(t, err)
		assert.Equal(t, []int{3, 5}, list.Windows)
	})

	t.Run("Go returns a call that completes later", func(t *testing.T) {
		b, transport := newTestBridge(t)

		call := b.Go(context.Background(), "quit", nil)
		req := transport.publisher.next(t)
		assert.Equal(t, call.ID, req.ID)
		assert.Equal(t, 1, b.PendingCount())

		require.NoError(t, transport.subscriber.deliver(responseJSON(t, req.ID, nil)))

		_, err := awaitCall(t, call)
		assert.NoError(t, err)
	})
}

func TestBridgeEvents(t *testing.T) {
	t.Run("On receives events pushed by the native side", func(t *testing.T) {
		b, transport := newTestBridge(t)
		got := make(chan string, 2)
		b.On("progress", func(ctx context.Context, data json.RawMessage) error {
			got <- "first:" + string(data)
			return nil
		})
		b.On("progress", func(ctx context.Context, data json.RawMessage) error {
			got <- "second:" + string(data)
			return nil
		})

		require.NoError(t, transport.subscriber.deliver(`{"event":"progress","data":{"pct":40}}`))

		assert.ElementsMatch(t, []string{`first:{"pct":40}`, `second:{"pct":40}`}, []string{<-got, <-got})
		assert.Empty(t, got)
	})

	t.Run("OnMessage feeds the dispatcher directly", func(t *testing.T) {
		b, _ := newTestBridge(t)
		seen := false
		stop := b.On("tick", func(ctx context.Context, data json.RawMessage) error {
			seen = true
			return nil
		})
		stop()

		b.OnMessage([]byte(`{"event":"tick"}`))

		assert.False(t, seen)
		assert.Empty(t, b.Router().Events())
	})
}

func TestBridgeClose(t *testing.T) {
	t.Run("Close fails pending calls and stops delivery", func(t *testing.T) {
		transport := newMockTransport()
		transport.On("IsConnected").Return(true)
		b, err := NewBridge(transport)
		require.NoError(t, err)

		call := b.Go(context.Background(), "ping", nil)
		require.NoError(t, b.Close())
		require.NoError(t, b.Close())

		_, err = awaitCall(t, call)
		assert.ErrorIs(t, err, contracts.ErrBridgeClosed)
		assert.Error(t, transport.subscriber.deliver(`{"event":"x"}`))

		_, err = b.Invoke(context.Background(), "ping", nil)
		assert.ErrorIs(t, err, contracts.ErrBridgeClosed)
		transport.AssertNotCalled(t, "Close")
	})
}
