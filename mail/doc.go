// Package mail provides [authcore.MailDispatcher] implementations.
//
// [KafkaDispatcher] publishes each mail as an event for a downstream
// notification service to deliver. [BreakerDispatcher] wraps any dispatcher
// in a circuit breaker. [LogDispatcher] only logs, for local development.
package mail
