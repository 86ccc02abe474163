// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package container

import (
	"context"
	"sync"
)

// Background represents a long-running background process that contexts can
// be tied to. Closing it cancels every derived context with the given cause.
type Background struct {
	err   error
	done  chan struct{}
	close func()
}

// NewBackground creates a background whose derived contexts are cancelled with
// err once it is closed.
func NewBackground(err error) *Background {
	done := make(chan struct{})
	return &Background{err, done, sync.OnceFunc(func() { close(done) })}
}

// With derives a context that is also cancelled when the background closes.
func (b *Background) With(
	ctx context.Context,
) (context.Context, context.CancelFunc) {
	c, cancel := context.WithCancelCause(ctx)
	go func() {
		select {
		case <-b.done:
			cancel(b.err)
		case <-c.Done():
		}
	}()
	return c, func() { cancel(context.Canceled) }
}

// Close closes the background. It is safe to call more than once.
func (b *Background) Close() {
	b.close()
}

// Done is closed once the background closes.
func (b *Background) Done() <-chan struct{} {
	return b.done
}
