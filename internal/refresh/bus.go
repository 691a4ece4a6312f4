// Package refresh provides the process-wide refresh signal. Anything that
// changes certificate data pulses the bus; every mounted view reloads itself
// with its own query state.
package refresh

import (
	"context"
	"sync"
	"sync/atomic"
)

// Bus broadcasts payload-free refresh pings to all subscribers.
// Pings coalesce: a subscriber that has not drained its channel gets at most
// one pending ping.
type Bus struct {
	ticket atomic.Uint64

	mu        sync.RWMutex
	listeners map[chan struct{}]struct{}
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{
		listeners: make(map[chan struct{}]struct{}),
	}
}

// Ticket returns the number of pulses so far. It is only meant for
// "did anything change" comparisons.
func (b *Bus) Ticket() uint64 {
	return b.ticket.Load()
}

// Pulse bumps the ticket and pings every subscriber without blocking.
func (b *Bus) Pulse() {
	b.PulseFrom(nil)
}

// PulseFrom is Pulse on behalf of the subscriber origin, which is skipped:
// it has already reloaded for the change it announces. A nil origin pings
// everyone.
func (b *Bus) PulseFrom(origin chan struct{}) {
	b.ticket.Add(1)

	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.listeners {
		if ch == origin {
			continue
		}
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Subscribe returns a channel that receives a ping after each pulse.
// The caller must call Unsubscribe when done.
func (b *Bus) Subscribe() chan struct{} {
	ch := make(chan struct{}, 1)
	b.mu.Lock()
	b.listeners[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes and closes a subscriber channel.
func (b *Bus) Unsubscribe(ch chan struct{}) {
	b.mu.Lock()
	_, ok := b.listeners[ch]
	delete(b.listeners, ch)
	b.mu.Unlock()
	if ok {
		close(ch)
	}
}

// Watch calls fn after every pulse until ctx is done. It blocks.
func Watch(ctx context.Context, b *Bus, fn func(ctx context.Context)) {
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ch:
			fn(ctx)
		}
	}
}
