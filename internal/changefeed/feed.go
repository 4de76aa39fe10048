// Package changefeed delivers row-level change notifications from the scenario store to
// in-process subscribers.
package changefeed

import (
	"context"
	"errors"
)

// ErrClosed is returned by Listen on a closed feed.
var ErrClosed = errors.New("change feed closed")

// Feed opens subscriptions on named channels.
type Feed interface {
	// Listen subscribes to channel. Only changes committed after Listen returns are delivered.
	Listen(ctx context.Context, channel string) (Listener, error)
	Close() error
}

// Listener is one subscription. C is closed after Close returns or the Listen context ends.
type Listener interface {
	ID() string
	// C yields raw JSON payloads in commit order.
	C() <-chan []byte
	// Close stops delivery and waits for the delivery goroutine to exit.
	Close() error
}
