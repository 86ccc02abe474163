// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqtt

import (
	"context"
	"log/slog"

	"github.com/eclipse/paho.golang/paho"
)

type subscription struct {
	filter  string
	handler MessageHandler
	opts    SubscribeOptions
}

// Subscribe registers a handler for a topic filter. The subscription is sent
// now if connected and restored after every reconnection. Handlers run on a
// single dispatch goroutine in arrival order.
func (c *SessionClient) Subscribe(
	ctx context.Context,
	filter string,
	handler MessageHandler,
	opts ...SubscribeOption,
) error {
	if err := c.ready(); err != nil {
		return err
	}
	if !isTopicFilter(filter) {
		return &InvalidArgumentError{message: "invalid topic filter: " + filter}
	}

	sub := &subscription{filter: filter, handler: handler}
	sub.opts.Apply(opts)
	if sub.opts.QoS > 1 {
		return &InvalidArgumentError{message: "unsupported QoS"}
	}

	c.subsMu.Lock()
	if _, ok := c.subscriptions[filter]; ok {
		c.subsMu.Unlock()
		return &InvalidArgumentError{
			message: "cannot subscribe to existing topic filter: " + filter,
		}
	}
	c.subscriptions[filter] = sub
	c.subsMu.Unlock()

	client := c.current()
	if client == nil {
		// Sent by resubscribe once connected.
		return nil
	}
	return c.sendSubscribe(ctx, client, sub)
}

func (c *SessionClient) sendSubscribe(
	ctx context.Context,
	client *paho.Client,
	sub *subscription,
) error {
	packet := &paho.Subscribe{
		Subscriptions: []paho.SubscribeOptions{{
			Topic: sub.filter,
			QoS:   sub.opts.QoS,
		}},
	}

	c.log.Packet(ctx, "subscribe", packet)
	suback, err := client.Subscribe(ctx, packet)
	if suback != nil {
		c.log.Packet(ctx, "suback", suback)
	}
	if err != nil {
		return &ConnectionError{message: "error sending SUBSCRIBE", wrapped: err}
	}
	return nil
}

func (c *SessionClient) resubscribe(ctx context.Context) {
	client := c.current()
	if client == nil {
		return
	}

	c.subsMu.RLock()
	subs := make([]*subscription, 0, len(c.subscriptions))
	for _, sub := range c.subscriptions {
		subs = append(subs, sub)
	}
	c.subsMu.RUnlock()

	for _, sub := range subs {
		if err := c.sendSubscribe(ctx, client, sub); err != nil {
			c.log.Warn(ctx, "failed to restore subscription",
				slog.String("filter", sub.filter),
				slog.String("error", err.Error()),
			)
		}
	}
}

// Called by paho for each incoming PUBLISH.
func (c *SessionClient) onPublishReceived(
	pr paho.PublishReceived,
) (bool, error) {
	msg := &Message{
		Topic:   pr.Packet.Topic,
		Payload: pr.Packet.Payload,
		QoS:     pr.Packet.QoS,
		Retain:  pr.Packet.Retain,
	}

	select {
	case c.incoming <- msg:
	case <-c.shutdown.Done():
	}
	return true, nil
}

func (c *SessionClient) dispatch(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-c.incoming:
			c.log.Debug(ctx, "message received",
				slog.String("topic", msg.Topic),
				slog.Int("size", len(msg.Payload)),
			)

			c.subsMu.RLock()
			var handlers []MessageHandler
			for filter, sub := range c.subscriptions {
				if IsTopicFilterMatch(filter, msg.Topic) {
					handlers = append(handlers, sub.handler)
				}
			}
			c.subsMu.RUnlock()

			for _, h := range handlers {
				h(ctx, msg)
			}
		}
	}
}
