// Package events fans out in-process notifications.
package events

import (
	"sync"

	"github.com/vadiminshakov/cointax/internal/domain"
)

// RunBroadcaster fans out finished run summaries to all subscribers via buffered channels.
type RunBroadcaster struct {
	mu     sync.RWMutex
	subs   map[chan domain.RunSummary]struct{}
	buffer int
}

// NewRunBroadcaster creates a broadcaster with the given per-subscriber buffer.
func NewRunBroadcaster(buffer int) *RunBroadcaster {
	if buffer < 1 {
		buffer = 16
	}
	return &RunBroadcaster{
		subs:   make(map[chan domain.RunSummary]struct{}),
		buffer: buffer,
	}
}

// Publish sends the summary to all subscribers, dropping it for a reader whose buffer is full.
func (b *RunBroadcaster) Publish(s domain.RunSummary) {
	if b == nil {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- s:
		default:
			// slow consumer catches up from the store
		}
	}
}

// Subscribe returns a channel that receives summaries until Unsubscribe is called.
func (b *RunBroadcaster) Subscribe() chan domain.RunSummary {
	ch := make(chan domain.RunSummary, b.buffer)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes the channel and closes it.
func (b *RunBroadcaster) Unsubscribe(ch chan domain.RunSummary) {
	b.mu.Lock()
	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
	b.mu.Unlock()
}

// Subscribers number of active subscriptions.
func (b *RunBroadcaster) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
