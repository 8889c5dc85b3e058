// Package contracts defines the wire format shared by the front-end bridge
// and the native host.
//
// Three JSON envelopes travel over the transport:
//   - Request:           {"id": "...", "cmd": "...", "args": ...}   front-end -> native
//   - Response:          {"id": "...", "result": ...}              native -> front-end
//   - EventNotification: {"event": "...", "data": ...}             native -> front-end
//
// Inbound payloads are classified by ParseInbound into a tagged union before
// any routing happens. Result payloads follow the status-code policy in
// Classify: a numeric "code" outside [10000, 20000) marks a failure whose
// message is carried in "msg".
//
// The package also holds the error taxonomy surfaced to callers:
// TimeoutError, NativeError and SendError.
package contracts
