// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqtt

import (
	"log/slog"
	"time"

	"github.com/Azure/iot-operations-sdks/go/rtlbridge/internal/options"
	"github.com/Azure/iot-operations-sdks/go/rtlbridge/mqtt/retry"
)

type (
	// SessionClientOption represents a single option for the session client.
	SessionClientOption interface{ sessionClient(*SessionClientOptions) }

	// SessionClientOptions are the resolved options for the session client.
	SessionClientOptions struct {
		CleanStart    bool
		KeepAlive     uint16
		SessionExpiry uint32
		ClientID      string
		Username      UsernameProvider
		Password      PasswordProvider

		// WillMessage is registered with the server on every connection.
		WillMessage *WillMessage

		ConnectionRetry   retry.Policy
		ConnectionTimeout time.Duration

		Logger *slog.Logger
	}

	// WillMessage is the message the server publishes on the client's behalf
	// when the connection is lost without a clean DISCONNECT. It may be passed
	// directly as a session client option.
	WillMessage struct {
		Topic   string
		Payload []byte
		Retain  bool
		QoS     byte
	}

	// WithCleanStart sets whether the initial connection starts a new session.
	WithCleanStart bool

	// WithKeepAlive sets the keep-alive interval in seconds.
	WithKeepAlive uint16

	// WithSessionExpiry sets the session expiry interval in seconds.
	WithSessionExpiry uint32

	// WithClientID sets the MQTT client ID.
	WithClientID string

	// WithUsername sets the username provider.
	WithUsername UsernameProvider

	// WithPassword sets the password provider.
	WithPassword PasswordProvider

	// WithConnectionTimeout bounds each individual connection attempt.
	WithConnectionTimeout time.Duration

	withConnectionRetry struct{ retry.Policy }
	withLogger          struct{ *slog.Logger }
)

func (o WithCleanStart) sessionClient(opt *SessionClientOptions) {
	opt.CleanStart = bool(o)
}

func (o WithKeepAlive) sessionClient(opt *SessionClientOptions) {
	opt.KeepAlive = uint16(o)
}

func (o WithSessionExpiry) sessionClient(opt *SessionClientOptions) {
	opt.SessionExpiry = uint32(o)
}

func (o WithClientID) sessionClient(opt *SessionClientOptions) {
	opt.ClientID = string(o)
}

func (o WithUsername) sessionClient(opt *SessionClientOptions) {
	opt.Username = UsernameProvider(o)
}

func (o WithPassword) sessionClient(opt *SessionClientOptions) {
	opt.Password = PasswordProvider(o)
}

func (o WithConnectionTimeout) sessionClient(opt *SessionClientOptions) {
	opt.ConnectionTimeout = time.Duration(o)
}

func (o *WillMessage) sessionClient(opt *SessionClientOptions) {
	opt.WillMessage = o
}

// WithConnectionRetry sets the retry policy for connection attempts.
func WithConnectionRetry(policy retry.Policy) SessionClientOption {
	return withConnectionRetry{policy}
}

func (o withConnectionRetry) sessionClient(opt *SessionClientOptions) {
	opt.ConnectionRetry = o.Policy
}

// WithLogger enables logging with the provided slog logger.
func WithLogger(logger *slog.Logger) SessionClientOption {
	return withLogger{logger}
}

func (o withLogger) sessionClient(opt *SessionClientOptions) {
	opt.Logger = o.Logger
}

// Apply resolves the provided list of options.
func (o *SessionClientOptions) Apply(
	opts []SessionClientOption,
	rest ...SessionClientOption,
) {
	for opt := range options.Apply[SessionClientOption](opts, rest...) {
		opt.sessionClient(o)
	}
}

// Assign non-nil options.
func (o *SessionClientOptions) sessionClient(opt *SessionClientOptions) {
	if o != nil {
		*opt = *o
	}
}

type (
	// PublishOptions are the resolved publish options.
	PublishOptions struct {
		QoS    byte
		Retain bool
	}

	// PublishOption represents a single publish option.
	PublishOption interface{ publish(*PublishOptions) }

	// SubscribeOptions are the resolved subscribe options.
	SubscribeOptions struct {
		QoS byte
	}

	// SubscribeOption represents a single subscribe option.
	SubscribeOption interface{ subscribe(*SubscribeOptions) }

	// WithQoS sets the QoS level for the publish or subscribe.
	WithQoS byte

	// WithRetain sets the retain flag for the publish.
	WithRetain bool
)

func (o WithQoS) publish(opt *PublishOptions) {
	opt.QoS = byte(o)
}

func (o WithQoS) subscribe(opt *SubscribeOptions) {
	opt.QoS = byte(o)
}

func (o WithRetain) publish(opt *PublishOptions) {
	opt.Retain = bool(o)
}

// Apply resolves the provided list of options.
func (o *PublishOptions) Apply(
	opts []PublishOption,
	rest ...PublishOption,
) {
	for opt := range options.Apply[PublishOption](opts, rest...) {
		opt.publish(o)
	}
}

// Assign non-nil options.
func (o *PublishOptions) publish(opt *PublishOptions) {
	if o != nil {
		*opt = *o
	}
}

// Apply resolves the provided list of options.
func (o *SubscribeOptions) Apply(
	opts []SubscribeOption,
	rest ...SubscribeOption,
) {
	for opt := range options.Apply[SubscribeOption](opts, rest...) {
		opt.subscribe(o)
	}
}

// Assign non-nil options.
func (o *SubscribeOptions) subscribe(opt *SubscribeOptions) {
	if o != nil {
		*opt = *o
	}
}
