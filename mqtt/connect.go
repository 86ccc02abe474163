// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqtt

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/Azure/iot-operations-sdks/go/rtlbridge/internal/container"
	"github.com/Azure/iot-operations-sdks/go/rtlbridge/internal/wallclock"
	"github.com/eclipse/paho.golang/paho"
)

// Start the session client, spawning the goroutines that connect to the
// server and keep the connection alive. It returns immediately; use a connect
// event handler to learn when the first connection succeeds.
func (c *SessionClient) Start() error {
	if !c.sessionStarted.CompareAndSwap(false, true) {
		return &ClientStateError{Started}
	}

	c.shutdown = container.NewBackground(&ClientStateError{ShutDown})
	ctx, cancel := c.shutdown.With(context.Background())

	go c.dispatch(ctx)
	go func() {
		defer cancel()
		c.manage(ctx)
	}()

	return nil
}

// Stop the session client, sending a clean DISCONNECT if connected. The will
// message is not published by the server after a clean stop.
func (c *SessionClient) Stop() error {
	if !c.sessionStarted.Load() {
		return &ClientStateError{NotStarted}
	}
	c.shutdown.Close()
	<-c.stopped
	return nil
}

// Connect, wait for the connection to drop, repeat; until shutdown or a fatal
// error.
func (c *SessionClient) manage(ctx context.Context) {
	defer close(c.stopped)
	defer c.disconnect(ctx)

	for {
		var lost <-chan error
		var connack *paho.Connack

		err := c.options.ConnectionRetry.Start(ctx, "connect",
			func(ctx context.Context) (bool, error) {
				var retry bool
				var err error
				connack, lost, retry, err = c.attemptConnect(ctx)
				return retry, err
			},
		)
		if err != nil {
			if ctx.Err() == nil {
				c.fatal(ctx, err)
			}
			return
		}

		c.log.Info(ctx, "connected",
			slog.String("client_id", c.options.ClientID),
			slog.Bool("session_present", connack.SessionPresent),
		)
		c.resubscribe(ctx)
		c.onConnect(ctx, &ConnectEvent{
			ReasonCode:     connack.ReasonCode,
			SessionPresent: connack.SessionPresent,
		})

		select {
		case <-ctx.Done():
			return
		case err := <-lost:
			c.setCurrent(nil)
			if errors.Is(err, io.EOF) {
				err = &ConnectionError{
					message: "server closed connection",
					wrapped: err,
				}
			}
			c.log.Warn(ctx, "connection lost", slog.String("error", err.Error()))
			c.onDisconnect(ctx, &DisconnectEvent{Error: err})

			var fatal *FatalDisconnectError
			if errors.As(err, &fatal) {
				c.fatal(ctx, err)
				return
			}
		}
	}
}

// A single connection attempt, returning whether the error is retryable.
func (c *SessionClient) attemptConnect(
	ctx context.Context,
) (*paho.Connack, <-chan error, bool, error) {
	ctx, cancel := wallclock.Instance.WithTimeoutCause(
		ctx,
		c.options.ConnectionTimeout,
		&ConnectionError{message: "connection attempt timed out"},
	)
	defer cancel()

	conn, err := c.connectionProvider(ctx)
	if err != nil {
		return nil, nil, true, err
	}

	// Buffered so the first error is kept even if nobody is listening yet.
	lost := make(chan error, 1)
	signal := func(err error) {
		select {
		case lost <- err:
		default:
		}
	}

	client := paho.NewClient(paho.ClientConfig{
		ClientID: c.options.ClientID,
		Conn:     conn,
		OnPublishReceived: []func(paho.PublishReceived) (bool, error){
			c.onPublishReceived,
		},
		OnClientError: signal,
		OnServerDisconnect: func(d *paho.Disconnect) {
			c.log.Packet(ctx, "disconnect", d)
			if isFatalDisconnectReasonCode(d.ReasonCode) {
				signal(&FatalDisconnectError{d.ReasonCode})
			} else {
				signal(&DisconnectError{d.ReasonCode})
			}
		},
	})

	packet, err := c.buildConnect(ctx)
	if err != nil {
		_ = conn.Close()
		return nil, nil, false, err
	}

	c.log.Packet(ctx, "connect", packet)
	connack, err := client.Connect(ctx, packet)
	if connack != nil {
		c.log.Packet(ctx, "connack", connack)
	}
	if err != nil {
		_ = conn.Close()
		if connack != nil && connack.ReasonCode >= 0x80 {
			if isFatalConnackReasonCode(connack.ReasonCode) {
				return nil, nil, false, &FatalConnackError{connack.ReasonCode}
			}
			return nil, nil, true, &ConnackError{connack.ReasonCode}
		}
		return nil, nil, true, &ConnectionError{
			message: "error establishing MQTT session",
			wrapped: err,
		}
	}

	c.setCurrent(client)
	return connack, lost, false, nil
}

func (c *SessionClient) buildConnect(ctx context.Context) (*paho.Connect, error) {
	packet := &paho.Connect{
		ClientID:   c.options.ClientID,
		CleanStart: c.options.CleanStart,
		KeepAlive:  c.options.KeepAlive,
	}

	if c.options.SessionExpiry > 0 {
		expiry := c.options.SessionExpiry
		packet.Properties = &paho.ConnectProperties{
			SessionExpiryInterval: &expiry,
		}
	}

	if c.options.Username != nil {
		username, ok, err := c.options.Username(ctx)
		if err != nil {
			return nil, &InvalidArgumentError{
				message: "error getting MQTT username",
				wrapped: err,
			}
		}
		packet.Username, packet.UsernameFlag = username, ok
	}

	if c.options.Password != nil {
		password, ok, err := c.options.Password(ctx)
		if err != nil {
			return nil, &InvalidArgumentError{
				message: "error getting MQTT password",
				wrapped: err,
			}
		}
		packet.Password, packet.PasswordFlag = password, ok
	}

	if w := c.options.WillMessage; w != nil {
		packet.WillMessage = &paho.WillMessage{
			Topic:   w.Topic,
			Payload: w.Payload,
			Retain:  w.Retain,
			QoS:     w.QoS,
		}
	}

	return packet, nil
}

// Send a clean DISCONNECT for the current connection, if any.
func (c *SessionClient) disconnect(ctx context.Context) {
	client := c.current()
	if client == nil {
		return
	}
	c.setCurrent(nil)

	packet := &paho.Disconnect{ReasonCode: 0}
	c.log.Packet(ctx, "disconnect", packet)
	if err := client.Disconnect(packet); err != nil {
		c.log.Warn(ctx, "error sending DISCONNECT",
			slog.String("error", err.Error()),
		)
	}
}

func (c *SessionClient) onConnect(ctx context.Context, e *ConnectEvent) {
	c.handlersMu.RLock()
	handlers := c.connectHandlers
	c.handlersMu.RUnlock()

	for _, h := range handlers {
		h(ctx, e)
	}
}

func (c *SessionClient) onDisconnect(ctx context.Context, e *DisconnectEvent) {
	c.handlersMu.RLock()
	handlers := c.disconnectHandlers
	c.handlersMu.RUnlock()

	for _, h := range handlers {
		h(ctx, e)
	}
}

func (c *SessionClient) fatal(ctx context.Context, err error) {
	c.log.Err(ctx, err)
	c.shutdown.Close()

	c.handlersMu.RLock()
	handlers := c.fatalHandlers
	c.handlersMu.RUnlock()

	for _, h := range handlers {
		go h(err)
	}
}
