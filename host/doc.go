// Package host implements the native side of the bridge.
//
// A Server reads {id, cmd, args} envelopes from its transport, runs the
// registered handler and answers with {id, result}. Results follow the
// status-code convention the front-end classifies by: successes carry
// code 10000, failures carry a code outside [10000, 20000) and a msg.
//
//	srv, _ := host.NewServer(transport)
//	srv.HandleFunc("getWindows", func(ctx context.Context, args json.RawMessage) (interface{}, error) {
//	    return map[string]interface{}{"windows": listWindows()}, nil
//	})
//	srv.Start(ctx)
//	defer srv.Stop()
//
//	srv.Emit(ctx, "windowFocus", map[string]string{"handle": "0x1f04"})
//
// Commands sent without an id are fire-and-forget: they run but are never
// answered.
package host
