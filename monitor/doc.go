// Package monitor collects bridge metrics and runs health checks.
//
// BridgeMetrics plugs into a bridge through bridge.WithMetrics. The
// health Registry runs checkers concurrently and can be served over HTTP
// with NewHandler.
package monitor
