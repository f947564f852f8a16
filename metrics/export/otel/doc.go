// Package otel exports authcore engine metrics as OpenTelemetry observable
// instruments.
//
// The caller owns the MeterProvider and passes a Meter in. Counters are
// grouped per flow: authcore.login, authcore.signup and so on, each with an
// "outcome" attribute. Token validation latency is a cumulative bucket
// gauge keyed by an "le" attribute.
package otel
