// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqtt

import (
	"context"
	"crypto/tls"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/Azure/iot-operations-sdks/go/rtlbridge/internal/iso"
)

// ConnectionSettings describes how to reach the MQTT server. It can be decoded
// from a configuration file, parsed from a connection string, or overridden
// from the environment.
type ConnectionSettings struct {
	Hostname string `yaml:"hostname" toml:"hostname"`
	Port     uint16 `yaml:"port"     toml:"port"`
	UseTLS   bool   `yaml:"use_tls"  toml:"use_tls"`

	CAFile          string `yaml:"ca_file"           toml:"ca_file"`
	CertFile        string `yaml:"cert_file"         toml:"cert_file"`
	KeyFile         string `yaml:"key_file"          toml:"key_file"`
	KeyPasswordFile string `yaml:"key_password_file" toml:"key_password_file"`

	// WebSocketURL replaces the TCP connection when set, e.g.
	// "wss://broker.local:8884/mqtt".
	WebSocketURL string `yaml:"websocket_url" toml:"websocket_url"`

	ClientID     string `yaml:"client_id"     toml:"client_id"`
	Username     string `yaml:"username"      toml:"username"`
	Password     string `yaml:"password"      toml:"password"`
	PasswordFile string `yaml:"password_file" toml:"password_file"`

	CleanStart        bool         `yaml:"clean_start"        toml:"clean_start"`
	KeepAlive         iso.Duration `yaml:"keep_alive"         toml:"keep_alive"`
	SessionExpiry     iso.Duration `yaml:"session_expiry"     toml:"session_expiry"`
	ConnectionTimeout iso.Duration `yaml:"connection_timeout" toml:"connection_timeout"`
}

const (
	defaultTCPPort = 1883
	defaultTLSPort = 8883
)

// ParseConnectionString parses settings of the form
// "HostName=localhost;TcpPort=1883;UseTls=false;KeepAlive=PT60S". Keys are
// case insensitive.
func ParseConnectionString(connStr string) (*ConnectionSettings, error) {
	settingsMap := make(map[string]string)
	for _, param := range strings.Split(strings.TrimSuffix(connStr, ";"), ";") {
		k, v, ok := strings.Cut(param, "=")
		if !ok {
			continue
		}
		settingsMap[strings.ToLower(strings.TrimSpace(k))] = strings.TrimSpace(v)
	}

	if settingsMap["hostname"] == "" {
		return nil, &InvalidArgumentError{
			message: "HostName must not be empty",
		}
	}

	cs := &ConnectionSettings{}
	if err := cs.applySettingsMap(settingsMap); err != nil {
		return nil, err
	}
	return cs, nil
}

// ApplyEnv overrides settings from environment entries ("KEY=value") carrying
// the given prefix, e.g. with prefix "RTL_BRIDGE_MQTT_":
//
//	RTL_BRIDGE_MQTT_HOSTNAME=localhost
//	RTL_BRIDGE_MQTT_TCP_PORT=8883
//	RTL_BRIDGE_MQTT_USE_TLS=true
func (cs *ConnectionSettings) ApplyEnv(environ []string, prefix string) error {
	settingsMap := make(map[string]string)
	for _, env := range environ {
		k, v, ok := strings.Cut(env, "=")
		if !ok || !strings.HasPrefix(k, prefix) {
			continue
		}
		key := strings.ToLower(
			strings.ReplaceAll(strings.TrimPrefix(k, prefix), "_", ""),
		)
		settingsMap[key] = strings.TrimSpace(v)
	}
	return cs.applySettingsMap(settingsMap)
}

func (cs *ConnectionSettings) applySettingsMap(
	settingsMap map[string]string,
) error {
	assignIfExists(settingsMap, "hostname", &cs.Hostname)
	assignIfExists(settingsMap, "cafile", &cs.CAFile)
	assignIfExists(settingsMap, "certfile", &cs.CertFile)
	assignIfExists(settingsMap, "keyfile", &cs.KeyFile)
	assignIfExists(settingsMap, "keypasswordfile", &cs.KeyPasswordFile)
	assignIfExists(settingsMap, "websocketurl", &cs.WebSocketURL)
	assignIfExists(settingsMap, "clientid", &cs.ClientID)
	assignIfExists(settingsMap, "username", &cs.Username)
	assignIfExists(settingsMap, "password", &cs.Password)
	assignIfExists(settingsMap, "passwordfile", &cs.PasswordFile)

	for _, key := range []string{"tcpport", "port"} {
		value, exists := settingsMap[key]
		if !exists {
			continue
		}
		port, err := strconv.ParseUint(value, 10, 16)
		if err != nil {
			return &InvalidArgumentError{
				message: "invalid TcpPort",
				wrapped: err,
			}
		}
		cs.Port = uint16(port)
	}

	for key, field := range map[string]*bool{
		"usetls":     &cs.UseTLS,
		"cleanstart": &cs.CleanStart,
	} {
		value, exists := settingsMap[key]
		if !exists {
			continue
		}
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return &InvalidArgumentError{
				message: "invalid boolean for " + key,
				wrapped: err,
			}
		}
		*field = parsed
	}

	for key, field := range map[string]*iso.Duration{
		"keepalive":         &cs.KeepAlive,
		"sessionexpiry":     &cs.SessionExpiry,
		"connectiontimeout": &cs.ConnectionTimeout,
	} {
		value, exists := settingsMap[key]
		if !exists {
			continue
		}
		if err := field.UnmarshalText([]byte(value)); err != nil {
			return &InvalidArgumentError{
				message: "invalid duration for " + key,
				wrapped: err,
			}
		}
	}

	return nil
}

// Build validates the settings and returns the connection provider and session
// client options they describe.
func (cs *ConnectionSettings) Build() (
	ConnectionProvider,
	[]SessionClientOption,
	error,
) {
	provider, err := cs.connectionProvider()
	if err != nil {
		return nil, nil, err
	}

	var opts []SessionClientOption

	if cs.ClientID != "" {
		opts = append(opts, WithClientID(cs.ClientID))
	}
	if cs.CleanStart {
		opts = append(opts, WithCleanStart(true))
	}
	if cs.Username != "" {
		opts = append(opts, WithUsername(ConstantUsername(cs.Username)))
	}

	switch {
	case cs.Password != "" && cs.PasswordFile != "":
		return nil, nil, &InvalidArgumentError{
			message: "password and password file are mutually exclusive",
		}
	case cs.Password != "":
		opts = append(opts, WithPassword(ConstantPassword([]byte(cs.Password))))
	case cs.PasswordFile != "":
		opts = append(opts, WithPassword(FilePassword(cs.PasswordFile)))
	}

	if ka := time.Duration(cs.KeepAlive); ka != 0 {
		secs := ka.Seconds()
		if secs < 1 || secs > math.MaxUint16 {
			return nil, nil, &InvalidArgumentError{
				message: "keep-alive must be between 1 and 65535 seconds",
			}
		}
		opts = append(opts, WithKeepAlive(uint16(secs)))
	}

	if se := time.Duration(cs.SessionExpiry); se != 0 {
		secs := se.Seconds()
		if secs < 0 || secs > math.MaxUint32 {
			return nil, nil, &InvalidArgumentError{
				message: "session expiry is out of range",
			}
		}
		opts = append(opts, WithSessionExpiry(uint32(secs)))
	}

	if ct := time.Duration(cs.ConnectionTimeout); ct != 0 {
		if ct < 0 {
			return nil, nil, &InvalidArgumentError{
				message: "connection timeout must be positive",
			}
		}
		opts = append(opts, WithConnectionTimeout(ct))
	}

	return provider, opts, nil
}

func (cs *ConnectionSettings) connectionProvider() (ConnectionProvider, error) {
	hasTLS := cs.CAFile != "" || cs.CertFile != "" ||
		cs.KeyFile != "" || cs.KeyPasswordFile != ""

	if (cs.CertFile != "") != (cs.KeyFile != "") {
		return nil, &InvalidArgumentError{
			message: "certificate file and key file must be provided together",
		}
	}

	if cs.WebSocketURL != "" {
		if cs.Hostname != "" {
			return nil, &InvalidArgumentError{
				message: "hostname and WebSocket URL are mutually exclusive",
			}
		}
		return WebSocketConnection(cs.WebSocketURL, cs.tlsOptions()...), nil
	}

	if cs.Hostname == "" {
		return nil, &InvalidArgumentError{
			message: "connection configuration provided without hostname",
		}
	}

	if !cs.UseTLS {
		if hasTLS {
			return nil, &InvalidArgumentError{
				message: "TLS configuration provided but not using TLS",
			}
		}
		port := cs.Port
		if port == 0 {
			port = defaultTCPPort
		}
		return TCPConnection(cs.Hostname, port), nil
	}

	port := cs.Port
	if port == 0 {
		port = defaultTLSPort
	}
	return TLSConnection(cs.Hostname, port, cs.tlsOptions()...), nil
}

func (cs *ConnectionSettings) tlsOptions() []TLSOption {
	var tlsOpts []TLSOption

	// Bypasses hostname check in TLS config when deliberately connecting to
	// localhost.
	if cs.Hostname == "localhost" {
		tlsOpts = append(tlsOpts, func(
			_ context.Context,
			cfg *tls.Config,
		) error {
			cfg.InsecureSkipVerify = true // #nosec G402
			return nil
		})
	}

	if cs.CertFile != "" {
		if cs.KeyPasswordFile != "" {
			tlsOpts = append(tlsOpts, WithEncryptedX509(
				cs.CertFile,
				cs.KeyFile,
				cs.KeyPasswordFile,
			))
		} else {
			tlsOpts = append(tlsOpts, WithX509(cs.CertFile, cs.KeyFile))
		}
	}

	if cs.CAFile != "" {
		tlsOpts = append(tlsOpts, WithCA(cs.CAFile))
	}

	return tlsOpts
}

// NewSessionClientFromSettings is a shorthand for constructing a session client
// using ConnectionSettings.Build. Explicit options take precedence.
func NewSessionClientFromSettings(
	cs *ConnectionSettings,
	opt ...SessionClientOption,
) (*SessionClient, error) {
	provider, opts, err := cs.Build()
	if err != nil {
		return nil, err
	}
	return NewSessionClient(provider, append(opts, opt...)...), nil
}

// assignIfExists assigns non-empty string values from settingsMap to the
// corresponding field.
func assignIfExists(
	settingsMap map[string]string,
	key string,
	field *string,
) {
	if value, exists := settingsMap[key]; exists && value != "" {
		*field = value
	}
}
