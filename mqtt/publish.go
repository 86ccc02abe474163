// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqtt

import (
	"context"

	"github.com/eclipse/paho.golang/paho"
)

// Publish sends a PUBLISH packet. For QoS 1 it waits for the PUBACK. It fails
// immediately with a NotConnectedError while the client is reconnecting.
func (c *SessionClient) Publish(
	ctx context.Context,
	topic string,
	payload []byte,
	opts ...PublishOption,
) error {
	if err := c.ready(); err != nil {
		return err
	}

	var opt PublishOptions
	opt.Apply(opts)

	if opt.QoS > 1 {
		return &InvalidArgumentError{message: "unsupported QoS"}
	}
	if topic == "" || !isTopicName(topic) {
		return &InvalidArgumentError{message: "invalid topic name: " + topic}
	}

	client := c.current()
	if client == nil {
		return &NotConnectedError{}
	}

	ctx, cancel := c.shutdown.With(ctx)
	defer cancel()

	packet := &paho.Publish{
		Topic:   topic,
		Payload: payload,
		QoS:     opt.QoS,
		Retain:  opt.Retain,
	}

	c.log.Packet(ctx, "publish", packet)
	res, err := client.Publish(ctx, packet)
	if res != nil {
		c.log.Packet(ctx, "puback", res)
	}
	if err != nil {
		return &PublishError{Topic: topic, wrapped: err}
	}
	return nil
}
