// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqtt

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"

	"github.com/eclipse/paho.golang/packets"
)

type (
	// ConnectionProvider is a function that returns a net.Conn connected to an
	// MQTT server that is ready to read to and write from. Note that the
	// returned net.Conn must be thread-safe (i.e., concurrent Write calls must
	// not interleave).
	ConnectionProvider func(context.Context) (net.Conn, error)

	// TLSOption is a function that modifies the TLS configuration before each
	// connection.
	TLSOption func(context.Context, *tls.Config) error
)

// TCPConnection is a ConnectionProvider that connects to an MQTT server over
// TCP.
func TCPConnection(hostname string, port uint16) ConnectionProvider {
	return func(ctx context.Context) (net.Conn, error) {
		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", hostPort(hostname, port))
		if err != nil {
			return nil, &ConnectionError{
				message: "error opening TCP connection",
				wrapped: err,
			}
		}
		return packets.NewThreadSafeConn(conn), nil
	}
}

// TLSConnection is a ConnectionProvider that connects to an MQTT server with
// TLS over TCP.
func TLSConnection(
	hostname string,
	port uint16,
	opts ...TLSOption,
) ConnectionProvider {
	return func(ctx context.Context) (net.Conn, error) {
		cfg := newTLSConfig()
		cfg.ServerName = hostname
		for _, opt := range opts {
			if err := opt(ctx, cfg); err != nil {
				return nil, &ConnectionError{
					message: "error getting TLS configuration",
					wrapped: err,
				}
			}
		}

		d := tls.Dialer{Config: cfg}
		conn, err := d.DialContext(ctx, "tcp", hostPort(hostname, port))
		if err != nil {
			return nil, &ConnectionError{
				message: "error opening TLS connection",
				wrapped: err,
			}
		}
		return packets.NewThreadSafeConn(conn), nil
	}
}

// WithCA trusts the CA certificates in the given PEM file.
func WithCA(caFile string) TLSOption {
	return func(_ context.Context, cfg *tls.Config) error {
		pool, err := loadCACertPool(caFile)
		if err != nil {
			return err
		}
		cfg.RootCAs = pool
		return nil
	}
}

// WithX509 presents the given client certificate and key.
func WithX509(certFile, keyFile string) TLSOption {
	return func(_ context.Context, cfg *tls.Config) error {
		cert, err := tls.LoadX509KeyPair(certFile, keyFile)
		if err != nil {
			return err
		}
		cfg.Certificates = []tls.Certificate{cert}
		return nil
	}
}

// WithEncryptedX509 presents the given client certificate and a key encrypted
// with the password stored in passFile.
func WithEncryptedX509(certFile, keyFile, passFile string) TLSOption {
	return func(_ context.Context, cfg *tls.Config) error {
		cert, err := loadX509KeyPairWithPassword(certFile, keyFile, passFile)
		if err != nil {
			return err
		}
		cfg.Certificates = []tls.Certificate{cert}
		return nil
	}
}

// WithInsecureSkipVerify disables server certificate verification. Only meant
// for brokers reached over localhost.
func WithInsecureSkipVerify() TLSOption {
	return func(_ context.Context, cfg *tls.Config) error {
		cfg.InsecureSkipVerify = true // #nosec G402
		return nil
	}
}

func newTLSConfig() *tls.Config {
	return &tls.Config{MinVersion: tls.VersionTLS12}
}

func hostPort(hostname string, port uint16) string {
	return net.JoinHostPort(hostname, fmt.Sprint(port))
}
