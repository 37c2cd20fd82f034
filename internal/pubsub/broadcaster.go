package pubsub

import "context"

// Broadcaster fans processed-entity patches out to downstream consumers.
// Publishing is best-effort; a dropped patch is healed by the next event on
// the same topic.
type Broadcaster interface {
	Publish(ctx context.Context, subject string, data interface{}) error
	Health(ctx context.Context) error
}
