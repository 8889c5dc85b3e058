// Package memory provides an in-process transport pair for running the
// front-end bridge and a native host in one program, and for tests.
//
//	front, native := memory.NewPipe()
//	srv, _ := host.NewServer(native)
//	srv.Start(ctx)
//	b, _ := bridge.NewBridge(front)
//
// Publishing never waits for the peer to process a message. Messages sent
// to an end without a subscriber are discarded, as on a real channel.
package memory
