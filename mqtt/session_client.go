// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqtt

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Azure/iot-operations-sdks/go/rtlbridge/internal/container"
	"github.com/Azure/iot-operations-sdks/go/rtlbridge/internal/log"
	"github.com/Azure/iot-operations-sdks/go/rtlbridge/mqtt/retry"
	"github.com/eclipse/paho.golang/paho"
)

type (
	// SessionClient implements an MQTT v5 client that keeps a connection to
	// the server alive in the background, restoring subscriptions after each
	// reconnection. Publishes are not queued; they fail fast while the client
	// is disconnected.
	SessionClient struct {
		// Used to ensure Start() is called only once and that user operations
		// are only started after Start() is called.
		sessionStarted atomic.Bool

		// Used to signal client shutdown for cleaning up background goroutines
		// and inflight operations. Only valid once started.
		shutdown *container.Background

		// Closed once the connection manager has exited.
		stopped chan struct{}

		// The current paho client; nil while disconnected.
		connMu sync.RWMutex
		conn   *paho.Client

		subsMu        sync.RWMutex
		subscriptions map[string]*subscription

		handlersMu         sync.RWMutex
		connectHandlers    []ConnectEventHandler
		disconnectHandlers []DisconnectEventHandler
		fatalHandlers      []func(error)

		// Incoming messages are dispatched from a dedicated goroutine so
		// handlers may publish without blocking paho's receive path.
		incoming chan *Message

		connectionProvider ConnectionProvider
		options            SessionClientOptions

		log logger
	}

	// Message represents a received message.
	Message struct {
		Topic   string
		Payload []byte
		QoS     byte
		Retain  bool
	}

	// MessageHandler is a callback used to handle messages received on a
	// subscribed topic filter.
	MessageHandler = func(context.Context, *Message)

	// ConnectEvent contains the relevent metadata provided to the handler when
	// the MQTT client connects to the broker.
	ConnectEvent struct {
		ReasonCode     byte
		SessionPresent bool
	}

	// ConnectEventHandler is called synchronously after each successful
	// connection, once subscriptions have been restored.
	ConnectEventHandler = func(context.Context, *ConnectEvent)

	// DisconnectEvent contains the relevent metadata provided to the handler
	// when the MQTT client disconnects from the broker.
	DisconnectEvent struct {
		Error error
	}

	// DisconnectEventHandler is called after each lost connection.
	DisconnectEventHandler = func(context.Context, *DisconnectEvent)
)

const (
	defaultKeepAlive         = 60
	defaultConnectionTimeout = 30 * time.Second
	incomingQueueSize        = 1024
)

// NewSessionClient constructs a new session client with user options.
func NewSessionClient(
	connectionProvider ConnectionProvider,
	opts ...SessionClientOption,
) *SessionClient {
	client := &SessionClient{
		stopped:            make(chan struct{}),
		subscriptions:      make(map[string]*subscription),
		incoming:           make(chan *Message, incomingQueueSize),
		connectionProvider: connectionProvider,
	}

	client.options.Apply(opts)

	if client.options.ClientID == "" {
		client.options.ClientID = RandomClientID()
	}

	if client.options.KeepAlive == 0 {
		client.options.KeepAlive = defaultKeepAlive
	}

	if client.options.ConnectionTimeout == 0 {
		client.options.ConnectionTimeout = defaultConnectionTimeout
	}

	if client.options.ConnectionRetry == nil {
		client.options.ConnectionRetry = &retry.Backoff{
			Max:    time.Minute,
			Jitter: 0.05,
			Logger: client.options.Logger,
		}
	}

	client.log = logger{log.Wrap(client.options.Logger)}

	return client
}

// ID returns the MQTT client ID for this session client.
func (c *SessionClient) ID() string {
	return c.options.ClientID
}

// Connected reports whether the client currently holds a live connection.
func (c *SessionClient) Connected() bool {
	return c.current() != nil
}

// RegisterConnectEventHandler registers a handler called after every
// successful connection.
func (c *SessionClient) RegisterConnectEventHandler(h ConnectEventHandler) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	c.connectHandlers = append(c.connectHandlers, h)
}

// RegisterDisconnectEventHandler registers a handler called after every lost
// connection.
func (c *SessionClient) RegisterDisconnectEventHandler(
	h DisconnectEventHandler,
) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	c.disconnectHandlers = append(c.disconnectHandlers, h)
}

// RegisterFatalErrorHandler registers a handler called in a goroutine when
// the session client terminates due to an error it cannot recover from.
func (c *SessionClient) RegisterFatalErrorHandler(h func(error)) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	c.fatalHandlers = append(c.fatalHandlers, h)
}

func (c *SessionClient) current() *paho.Client {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.conn
}

func (c *SessionClient) setCurrent(conn *paho.Client) {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	c.conn = conn
}

// Checks that the client is usable for a user operation.
func (c *SessionClient) ready() error {
	if !c.sessionStarted.Load() {
		return &ClientStateError{NotStarted}
	}
	select {
	case <-c.shutdown.Done():
		return &ClientStateError{ShutDown}
	default:
		return nil
	}
}
