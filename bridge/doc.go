// Package bridge provides request-response calls and event subscriptions
// over an asynchronous, unordered, best-effort message channel.
//
// A Bridge owns three parts:
//   - Correlator: assigns correlation ids, tracks pending calls, applies
//     per-call timeouts and classifies results
//   - EventRouter: maps event names to subscriber sets and fans events out
//   - Dispatcher: the single inbound entry point, routing responses to the
//     correlator and events to the router
//
// Basic usage:
//
//	b, err := bridge.NewBridge(transport)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer b.Close()
//
//	result, err := b.Invoke(ctx, "add", map[string]int{"a": 1, "b": 2},
//	    bridge.WithTimeout(5*time.Second))
//
//	unsubscribe := b.On("progress", func(ctx context.Context, data json.RawMessage) error {
//	    fmt.Println(string(data))
//	    return nil
//	})
//	defer unsubscribe()
//
// Every call completes exactly once: with its result, a NativeError when
// the native side reports failure, or a TimeoutError when no response
// arrives in time. Responses arriving after a timeout are ignored.
package bridge
