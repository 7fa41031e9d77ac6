// Package webhooks contains webhook verification, decoding, and dispatch
// components.
//
// An inbound delivery moves through a fixed pipeline:
// received -> signature checked -> timestamp checked -> decoded -> dispatched.
// Verification failures reject the delivery before the body is ever parsed,
// and unknown event types fail closed rather than dispatching a partial
// event. Delivery processing adds a claim lifecycle on top:
// pending/retry_ready -> processing -> processed|dead, so duplicate
// deliveries dedupe and transient handler failures retry explicitly.
package webhooks
