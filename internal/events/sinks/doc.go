// Package sinks implements concrete event consumers: structured logging,
// Prometheus collectors and downstream publishing of degradation notices.
// Each sink satisfies events.Sink and tolerates repeated Consume/Close calls.
package sinks
