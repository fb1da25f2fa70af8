// Package mq publishes catalogue change events to a message broker.
// Nothing in the apiserver consumes; downstream services subscribe on
// their own.
package mq

import "context"

// Publisher is the broker-agnostic publishing surface used by the app.
type Publisher interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
	Close() error
}

// NopPublisher discards events. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	return "", nil
}

func (NopPublisher) Close() error { return nil }
