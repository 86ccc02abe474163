// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqtt

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/eclipse/paho.golang/packets"
	"github.com/gorilla/websocket"
)

// Subprotocol registered for MQTT over WebSockets.
const webSocketSubprotocol = "mqtt"

// WebSocketConnection is a ConnectionProvider that connects to an MQTT server
// over a WebSocket, e.g. "ws://homeassistant.local:1884/mqtt". TLS options are
// applied for "wss" URLs.
func WebSocketConnection(url string, opts ...TLSOption) ConnectionProvider {
	return func(ctx context.Context) (net.Conn, error) {
		d := websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 30 * time.Second,
			Subprotocols:     []string{webSocketSubprotocol},
		}
		if len(opts) > 0 {
			d.TLSClientConfig = newTLSConfig()
			for _, opt := range opts {
				if err := opt(ctx, d.TLSClientConfig); err != nil {
					return nil, &ConnectionError{
						message: "error getting TLS configuration",
						wrapped: err,
					}
				}
			}
		}

		ws, res, err := d.DialContext(ctx, url, nil)
		if res != nil && res.Body != nil {
			_ = res.Body.Close()
		}
		if err != nil {
			return nil, &ConnectionError{
				message: "error opening WebSocket connection",
				wrapped: err,
			}
		}
		return packets.NewThreadSafeConn(&webSocketConn{Conn: ws}), nil
	}
}

// webSocketConn adapts a message-oriented WebSocket to the byte stream paho
// expects. Each Write is sent as one binary message.
type webSocketConn struct {
	*websocket.Conn
	reader io.Reader
}

func (c *webSocketConn) Read(p []byte) (int, error) {
	for {
		if c.reader == nil {
			_, r, err := c.NextReader()
			if err != nil {
				var closeErr *websocket.CloseError
				if errors.As(err, &closeErr) {
					return 0, io.EOF
				}
				return 0, err
			}
			c.reader = r
		}

		n, err := c.reader.Read(p)
		if errors.Is(err, io.EOF) {
			c.reader = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (c *webSocketConn) Write(p []byte) (int, error) {
	if err := c.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (c *webSocketConn) SetDeadline(t time.Time) error {
	if err := c.SetReadDeadline(t); err != nil {
		return err
	}
	return c.SetWriteDeadline(t)
}
