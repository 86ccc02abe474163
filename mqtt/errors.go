// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqtt

import "fmt"

// ClientState indicates the current state of the session client.
type ClientState byte

const (
	// The session client has not yet been started.
	NotStarted ClientState = iota

	// The session client has been started and has not yet been stopped by the
	// user or terminated due to a fatal error.
	Started

	// The session client has been stopped by the user or terminated due to a
	// fatal error.
	ShutDown
)

// ClientStateError is returned when the operation cannot proceed due to the
// state of the session client.
type ClientStateError struct {
	State ClientState
}

func (e *ClientStateError) Error() string {
	switch e.State {
	case NotStarted:
		return "the session client has not yet been started"
	case Started:
		return "the session client has already been started"
	case ShutDown:
		return "the session client has been shut down"
	default:
		// It should not be possible to get here.
		return ""
	}
}

// NotConnectedError is returned by operations attempted while the session
// client is between connections. The bridge does not queue publishes.
type NotConnectedError struct{}

func (*NotConnectedError) Error() string {
	return "the session client is not connected to the MQTT server"
}

// DisconnectError indicates that the session client received a DISCONNECT
// packet from the server with a reason code that is not deemed to be fatal.
type DisconnectError struct {
	ReasonCode byte
}

func (e *DisconnectError) Error() string {
	return fmt.Sprintf(
		"received DISCONNECT packet with reason code %x",
		e.ReasonCode,
	)
}

// FatalDisconnectError indicates that the session client has terminated due
// to receiving a DISCONNECT packet from the server with a reason code that
// is deemed to be fatal.
type FatalDisconnectError struct {
	ReasonCode byte
}

func (e *FatalDisconnectError) Error() string {
	return fmt.Sprintf(
		"received DISCONNECT packet with fatal reason code %x",
		e.ReasonCode,
	)
}

// ConnectionError indicates an issue with the network connection to the MQTT
// server. It may wrap an underlying error using Go standard error wrapping.
type ConnectionError struct {
	wrapped error
	message string
}

func (e *ConnectionError) Error() string {
	if e.wrapped != nil {
		return fmt.Sprintf("%s: %v", e.message, e.wrapped)
	}
	return e.message
}

func (e *ConnectionError) Unwrap() error {
	return e.wrapped
}

// ConnackError indicates that the session client received a CONNACK with a
// reason code that indicates an error but is not deemed to be fatal. It may
// appear as a fatal error if it is the final error returned once the session
// client has exhausted its connection retries.
type ConnackError struct {
	ReasonCode byte
}

func (e *ConnackError) Error() string {
	return fmt.Sprintf(
		"received CONNACK packet with error reason code %x",
		e.ReasonCode,
	)
}

// FatalConnackError indicates that the session client has terminated due to
// receiving a CONNACK with with a reason code that is deemed to be fatal.
type FatalConnackError struct {
	ReasonCode byte
}

func (e *FatalConnackError) Error() string {
	return fmt.Sprintf(
		"received CONNACK packet with fatal reason code %x",
		e.ReasonCode,
	)
}

// PublishError indicates that a PUBLISH could not be delivered to the server.
type PublishError struct {
	Topic   string
	wrapped error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("error publishing to %q: %v", e.Topic, e.wrapped)
}

func (e *PublishError) Unwrap() error {
	return e.wrapped
}

// InvalidArgumentError indicates that the user has provided an invalid value
// for an option. It may wrap an underlying error using Go standard error
// wrapping.
type InvalidArgumentError struct {
	wrapped error
	message string
}

func (e *InvalidArgumentError) Error() string {
	if e.wrapped != nil {
		return fmt.Sprintf("%s: %v", e.message, e.wrapped)
	}
	return e.message
}

func (e *InvalidArgumentError) Unwrap() error {
	return e.wrapped
}

// Reason codes after which reconnecting cannot succeed without intervention.
func isFatalConnackReasonCode(code byte) bool {
	switch code {
	case 0x82, // Protocol error
		0x84, // Unsupported protocol version
		0x85, // Client identifier not valid
		0x86, // Bad username or password
		0x87, // Not authorized
		0x88, // Server unavailable
		0x8A, // Banned
		0x8C, // Bad authentication method
		0x90, // Topic name invalid
		0x95, // Packet too large
		0x9A, // Retain not supported
		0x9B, // QoS not supported
		0x9D: // Server moved
		return true
	default:
		return false
	}
}

func isFatalDisconnectReasonCode(code byte) bool {
	switch code {
	case 0x82, // Protocol error
		0x87, // Not authorized
		0x8A, // Banned
		0x8E, // Session taken over
		0x90, // Topic name invalid
		0x95, // Packet too large
		0x9A, // Retain not supported
		0x9B, // QoS not supported
		0x9D: // Server moved
		return true
	default:
		return false
	}
}
