package backend

import "context"

// Sink is the interface that wraps the basic Notify method.
//
// Sink implementations deliver end-of-job notifications through some
// channel (eg. Bark, PushDeer, Kafka, SQS). Delivery is best-effort:
// a failed notification never affects the job itself.
type Sink interface {
	// Start initializes the sink. Start must be called once, before
	// any calls to Notify.
	Start(context.Context, map[string]interface{}) error

	// Notify delivers one notification. key is the sink-specific
	// destination: a device key for push services, a topic for Kafka,
	// a queue URL for SQS.
	Notify(key, title, body string) error

	// ID returns a constant string used as an identifier for the
	// concrete sink implementation.
	ID() string

	// Stop performs finalization actions. After calling Stop the sink
	// is no longer usable.
	Stop() error
}
