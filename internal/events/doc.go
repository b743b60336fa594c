// Package events provides the event primitives, non-blocking hub, and emitter
// interfaces the gateway uses to report query handling. The hub batches
// events on a background goroutine and fans them out to pluggable sinks such
// as structured logs, Prometheus metrics, or a message publisher. A slow or
// failing sink never delays a response.
package events
