package host

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/glimte/nativebridge/bridge"
	"github.com/glimte/nativebridge/contracts"
	"github.com/glimte/nativebridge/messaging"
	"github.com/glimte/nativebridge/transports/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type window struct {
	Title  string `json:"title"`
	Handle string `json:"handle"`
}

type windowsResult struct {
	Code    int      `json:"code"`
	Windows []window `json:"windows"`
}

// newRoundTrip wires a bridge and a server over one memory pipe
func newRoundTrip(t *testing.T, register func(s *Server)) (*bridge.Bridge, *Server) {
	t.Helper()
	front, native := memory.NewPipe()

	srv, err := NewServer(native)
	require.NoError(t, err)
	if register != nil {
		register(srv)
	}
	require.NoError(t, srv.Start(context.Background()))

	b, err := bridge.NewBridge(front, bridge.WithDefaultTimeout(time.Second))
	require.NoError(t, err)

	t.Cleanup(func() {
		b.Close()
		srv.Stop()
		front.Close()
		native.Close()
	})
	return b, srv
}

func TestServerRoundTrip(t *testing.T) {
	t.Run("handler result reaches the caller with a success code", func(t *testing.T) {
		b, _ := newRoundTrip(t, func(s *Server) {
			require.NoError(t, s.HandleFunc("getWindows", func(ctx context.Context, args json.RawMessage) (interface{}, error) {
				return map[string]interface{}{
					"windows": []window{{Title: "Editor", Handle: "0x1f04"}},
				}, nil
			}))
		})

		res, err := bridge.InvokeTyped[windowsResult](context.Background(), b, "getWindows", nil)

		require.NoError(t, err)
		assert.Equal(t, contracts.CodeOK, res.Code)
		assert.Equal(t, []window{{Title: "Editor", Handle: "0x1f04"}}, res.Windows)
	})

	t.Run("handler receives the call arguments", func(t *testing.T) {
		b, _ := newRoundTrip(t, func(s *Server) {
			require.NoError(t, s.HandleFunc("add", func(ctx context.Context, args json.RawMessage) (interface{}, error) {
				var in struct{ A, B int }
				if err := json.Unmarshal(args, &in); err != nil {
					return nil, BadRequest("bad args")
				}
				return in.A + in.B, nil
			}))
		})

		raw, err := b.Invoke(context.Background(), "add", map[string]int{"a": 2, "b": 3})

		require.NoError(t, err)
		assert.JSONEq(t, `{"code":10000,"data":5}`, string(raw))
	})

	t.Run("command error reaches the caller as a native error", func(t *testing.T) {
		b, _ := newRoundTrip(t, func(s *Server) {
			require.NoError(t, s.HandleFunc("activate", func(ctx context.Context, args json.RawMessage) (interface{}, error) {
				return nil, BadRequest("bad args")
			}))
		})

		_, err := b.Invoke(context.Background(), "activate", nil)

		var nativeErr *contracts.NativeError
		require.ErrorAs(t, err, &nativeErr)
		assert.Equal(t, contracts.CodeBadRequest, nativeErr.Code)
		assert.Equal(t, "bad args", nativeErr.Message)
	})

	t.Run("plain errors answer with the internal code", func(t *testing.T) {
		b, _ := newRoundTrip(t, func(s *Server) {
			require.NoError(t, s.HandleFunc("fail", func(ctx context.Context, args json.RawMessage) (interface{}, error) {
				return nil, errors.New("disk full")
			}))
		})

		_, err := b.Invoke(context.Background(), "fail", nil)

		var nativeErr *contracts.NativeError
		require.ErrorAs(t, err, &nativeErr)
		assert.Equal(t, contracts.CodeInternal, nativeErr.Code)
		assert.Equal(t, "disk full", nativeErr.Message)
	})

	t.Run("unknown command answers 40400", func(t *testing.T) {
		b, _ := newRoundTrip(t, nil)

		_, err := b.Invoke(context.Background(), "missing", nil)

		var nativeErr *contracts.NativeError
		require.ErrorAs(t, err, &nativeErr)
		assert.Equal(t, contracts.CodeUnknownCommand, nativeErr.Code)
		assert.Equal(t, "unknown command: missing", nativeErr.Message)
	})

	t.Run("panicking handler answers with the internal code", func(t *testing.T) {
		b, _ := newRoundTrip(t, func(s *Server) {
			require.NoError(t, s.HandleFunc("crash", func(ctx context.Context, args json.RawMessage) (interface{}, error) {
				panic("nil window")
			}))
		})

		_, err := b.Invoke(context.Background(), "crash", nil)

		var nativeErr *contracts.NativeError
		require.ErrorAs(t, err, &nativeErr)
		assert.Equal(t, contracts.CodeInternal, nativeErr.Code)

		_, err = b.Invoke(context.Background(), PingCommand, nil)
		assert.NoError(t, err)
	})

	t.Run("built-in ping answers pong", func(t *testing.T) {
		b, _ := newRoundTrip(t, nil)

		raw, err := b.Invoke(context.Background(), PingCommand, nil)

		require.NoError(t, err)
		var pong struct {
			Code int  `json:"code"`
			Pong bool `json:"pong"`
		}
		require.NoError(t, json.Unmarshal(raw, &pong))
		assert.Equal(t, contracts.CodeOK, pong.Code)
		assert.True(t, pong.Pong)
	})

	t.Run("emitted events reach subscribers", func(t *testing.T) {
		b, srv := newRoundTrip(t, nil)
		got := make(chan string, 1)
		b.On("progress", func(ctx context.Context, data json.RawMessage) error {
			got <- string(data)
			return nil
		})

		require.NoError(t, srv.Emit(context.Background(), "progress", map[string]int{"pct": 50}))

		select {
		case data := <-got:
			assert.JSONEq(t, `{"pct":50}`, data)
		case <-time.After(time.Second):
			t.Fatal("event not delivered")
		}
	})

	t.Run("lost reply ends in a timeout", func(t *testing.T) {
		front, native := memory.NewPipe(memory.WithDropFunc(func(from memory.End, body []byte) bool {
			return from == memory.EndNative
		}))
		srv, err := NewServer(native)
		require.NoError(t, err)
		require.NoError(t, srv.Start(context.Background()))
		b, err := bridge.NewBridge(front)
		require.NoError(t, err)
		defer func() {
			b.Close()
			srv.Stop()
			front.Close()
			native.Close()
		}()

		_, err = b.Invoke(context.Background(), PingCommand, nil, bridge.WithTimeout(50*time.Millisecond))

		assert.ErrorIs(t, err, contracts.ErrTimeout)
		assert.Contains(t, err.Error(), PingCommand)
	})
}

func TestServerCommands(t *testing.T) {
	t.Run("envelopes without id run but are not answered", func(t *testing.T) {
		front, native := memory.NewPipe()
		var ran atomic.Bool
		srv, err := NewServer(native)
		require.NoError(t, err)
		require.NoError(t, srv.HandleFunc("activateWindow", func(ctx context.Context, args json.RawMessage) (interface{}, error) {
			ran.Store(true)
			return nil, nil
		}))
		require.NoError(t, srv.Start(context.Background()))
		defer srv.Stop()

		var replies atomic.Int32
		require.NoError(t, front.Connect(context.Background()))
		defer front.Close()
		require.NoError(t, front.Subscriber().Subscribe(context.Background(), func(d messaging.TransportDelivery) error {
			replies.Add(1)
			return nil
		}))

		require.NoError(t, front.Publisher().Publish(context.Background(), []byte(`{"id":"","cmd":"activateWindow","args":{"handle":"0x1"}}`)))

		assert.Eventually(t, ran.Load, time.Second, 5*time.Millisecond)
		time.Sleep(20 * time.Millisecond)
		assert.Equal(t, int32(0), replies.Load())
	})

	t.Run("duplicate registration is rejected", func(t *testing.T) {
		_, native := memory.NewPipe()
		srv, err := NewServer(native)
		require.NoError(t, err)
		noop := func(ctx context.Context, args json.RawMessage) (interface{}, error) { return nil, nil }

		require.NoError(t, srv.HandleFunc("quit", noop))
		assert.Error(t, srv.HandleFunc("quit", noop))
	})

	t.Run("built-in ping can be overridden once", func(t *testing.T) {
		_, native := memory.NewPipe()
		srv, err := NewServer(native)
		require.NoError(t, err)
		noop := func(ctx context.Context, args json.RawMessage) (interface{}, error) { return nil, nil }

		require.NoError(t, srv.HandleFunc(PingCommand, noop))
		assert.Error(t, srv.HandleFunc(PingCommand, noop))
	})

	t.Run("invalid registrations are rejected", func(t *testing.T) {
		_, native := memory.NewPipe()
		srv, err := NewServer(native)
		require.NoError(t, err)

		assert.ErrorIs(t, srv.Handle("", CommandHandlerFunc(ping)), contracts.ErrEmptyCommand)
		assert.Error(t, srv.Handle("x", nil))
		assert.Error(t, srv.HandleFunc("x", nil))
		assert.Equal(t, []string{PingCommand}, srv.Commands())
	})

	t.Run("NewServer rejects a nil transport", func(t *testing.T) {
		srv, err := NewServer(nil)
		assert.Error(t, err)
		assert.Nil(t, srv)
	})

	t.Run("Start twice fails", func(t *testing.T) {
		_, native := memory.NewPipe()
		srv, err := NewServer(native)
		require.NoError(t, err)
		require.NoError(t, srv.Start(context.Background()))
		defer srv.Stop()

		assert.Error(t, srv.Start(context.Background()))
	})

	t.Run("Emit requires an event name", func(t *testing.T) {
		_, native := memory.NewPipe()
		srv, err := NewServer(native)
		require.NoError(t, err)

		assert.Error(t, srv.Emit(context.Background(), "", nil))
	})
}

func TestFailureFor(t *testing.T) {
	code, msg := failureFor(&CommandError{Code: 40100, Err: errors.New("denied")})
	assert.Equal(t, 40100, code)
	assert.Equal(t, "denied", msg)

	code, _ = failureFor(errors.New("boom"))
	assert.Equal(t, contracts.CodeInternal, code)

	wrapped := &CommandError{Code: 40000, Message: "bad", Err: context.Canceled}
	assert.ErrorIs(t, wrapped, context.Canceled)
}
