// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package config

import (
	"fmt"
	"log/slog"
)

// Error reports an invalid configuration property.
type Error struct {
	Property string
	Value    any
	Message  string
	wrapped  error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("invalid %s %q: %s", e.Property, fmt.Sprint(e.Value), e.Message)
	if e.wrapped != nil {
		msg += ": " + e.wrapped.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.wrapped
}

// Attrs returns additional error attributes for slog.
func (e *Error) Attrs() []slog.Attr {
	return []slog.Attr{
		slog.String("property", e.Property),
		slog.Any("value", e.Value),
	}
}
