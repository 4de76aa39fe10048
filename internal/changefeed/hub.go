package changefeed

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const defaultHubBuffer = 256

// Hub is an in-process Feed. Publish never blocks: a listener whose buffer is full misses
// the message, which is logged and counted.
type Hub struct {
	mu        sync.Mutex
	listeners map[string]map[string]*hubListener // channel -> id -> listener
	buffer    int
	closed    bool
	dropped   atomic.Int64
	logger    *zap.Logger
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithHubLogger sets the hub logger.
func WithHubLogger(l *zap.Logger) HubOption {
	return func(h *Hub) { h.logger = l }
}

// WithBuffer sets the per-listener buffer size.
func WithBuffer(n int) HubOption {
	return func(h *Hub) {
		if n > 0 {
			h.buffer = n
		}
	}
}

// NewHub creates an empty hub.
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		listeners: make(map[string]map[string]*hubListener),
		buffer:    defaultHubBuffer,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

type hubListener struct {
	id      string
	channel string
	ch      chan []byte
	hub     *Hub
	once    sync.Once
	// detach unregisters the close-on-cancel hook from the Listen context.
	detach func() bool
}

func (l *hubListener) ID() string       { return l.id }
func (l *hubListener) C() <-chan []byte { return l.ch }

func (l *hubListener) Close() error {
	l.once.Do(func() {
		l.hub.mu.Lock()
		defer l.hub.mu.Unlock()
		if l.detach != nil {
			l.detach()
		}
		if subs, ok := l.hub.listeners[l.channel]; ok {
			delete(subs, l.id)
			if len(subs) == 0 {
				delete(l.hub.listeners, l.channel)
			}
		}
		close(l.ch)
	})
	return nil
}

// Listen subscribes to channel. The listener is closed when ctx ends.
func (h *Hub) Listen(ctx context.Context, channel string) (Listener, error) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrClosed
	}
	l := &hubListener{
		id:      uuid.NewString(),
		channel: channel,
		ch:      make(chan []byte, h.buffer),
		hub:     h,
	}
	if h.listeners[channel] == nil {
		h.listeners[channel] = make(map[string]*hubListener)
	}
	h.listeners[channel][l.id] = l
	l.detach = context.AfterFunc(ctx, func() { l.Close() })
	h.mu.Unlock()

	h.logger.Debug("hub listener registered", zap.String("channel", channel), zap.String("listener", l.id))
	return l, nil
}

// Publish delivers payload to every listener on channel and returns how many received it.
func (h *Hub) Publish(channel string, payload []byte) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	delivered := 0
	for id, l := range h.listeners[channel] {
		msg := append([]byte(nil), payload...)
		select {
		case l.ch <- msg:
			delivered++
		default:
			h.dropped.Add(1)
			h.logger.Warn("hub listener buffer full, dropping notification",
				zap.String("channel", channel), zap.String("listener", id))
		}
	}
	return delivered
}

// Dropped returns the number of notifications dropped because a listener buffer was full.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}

// Close closes every listener. Later Listen calls fail with ErrClosed.
func (h *Hub) Close() error {
	h.mu.Lock()
	h.closed = true
	var all []*hubListener
	for _, subs := range h.listeners {
		for _, l := range subs {
			all = append(all, l)
		}
	}
	h.mu.Unlock()
	for _, l := range all {
		l.Close()
	}
	return nil
}
