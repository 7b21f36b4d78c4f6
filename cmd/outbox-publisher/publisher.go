package main

import (
	"context"

	gcppubsub "cloud.google.com/go/pubsub/v2"
)

// orderedPublisher is implemented by publishers that pause an ordering key
// after a failed publish.
type orderedPublisher interface {
	ResumePublish(orderingKey string)
}

func orderingEnabled(client pubSubClient) bool {
	o, ok := client.(interface{ OrderingEnabled() bool })
	return ok && o.OrderingEnabled()
}

// resume unblocks key so the retry of a failed ordered publish is accepted.
func resume(pub publisher, key string) {
	if key == "" {
		return
	}
	if op, ok := pub.(orderedPublisher); ok {
		op.ResumePublish(key)
	}
}

// gcpPublisherFactory adapts the client's per-topic publishers. The client
// caches them, so lookups are cheap.
func gcpPublisherFactory(client pubSubClient) publisherFactory {
	return func(topic string) publisher {
		raw := client.Publisher(topic)
		if raw == nil {
			return nil
		}
		return gcpPublisher{raw}
	}
}

type gcpPublisher struct {
	p *gcppubsub.Publisher
}

func (g gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	return g.p.Publish(ctx, msg)
}

func (g gcpPublisher) ResumePublish(orderingKey string) {
	g.p.ResumePublish(orderingKey)
}
