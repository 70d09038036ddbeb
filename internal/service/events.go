package service

import (
	"context"

	"github.com/Skotchmaster/vending_machine/internal/mykafka"
	"github.com/Skotchmaster/vending_machine/pkg/logging"
)

// publish sends an event after the state change has committed. A failed
// publish is logged and never undoes or fails the operation.
func publish(ctx context.Context, pub mykafka.Publisher, topic, key string, event any) {
	if pub == nil {
		return
	}
	if err := pub.PublishEvent(ctx, topic, key, event); err != nil {
		logging.FromContext(ctx).Warn("publish_event_failed", "topic", topic, "key", key, "error", err)
	}
}
