// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.

// Package retry runs broker operations until they succeed or are given up on.
package retry

import (
	"context"
	"log/slog"
	"strconv"
)

type (
	// Task is one attempt of a retried operation. It reports whether its error
	// may be retried.
	Task = func(context.Context) (retryable bool, err error)

	// Policy decides how often and how long a task is attempted.
	Policy interface {
		Start(ctx context.Context, name string, task Task) error
	}

	// PolicyFunc adapts a function to a Policy.
	PolicyFunc func(ctx context.Context, name string, task Task) error

	// Error is returned when a task is given up on. It wraps the last error of
	// the task, or the context error if the context ended first.
	Error struct {
		Task     string
		Attempts uint64
		wrapped  error
	}
)

// Once attempts a task a single time.
var Once Policy = PolicyFunc(
	func(ctx context.Context, name string, task Task) error {
		if _, err := task(ctx); err != nil {
			return &Error{Task: name, Attempts: 1, wrapped: err}
		}
		return nil
	},
)

// Start calls f.
func (f PolicyFunc) Start(ctx context.Context, name string, task Task) error {
	return f(ctx, name, task)
}

func (e *Error) Error() string {
	return e.Task + " gave up after " + strconv.FormatUint(e.Attempts, 10) +
		" attempt(s): " + e.wrapped.Error()
}

func (e *Error) Unwrap() error {
	return e.wrapped
}

// Attrs returns additional error attributes for slog.
func (e *Error) Attrs() []slog.Attr {
	return []slog.Attr{
		slog.String("task", e.Task),
		slog.Uint64("attempts", e.Attempts),
	}
}
