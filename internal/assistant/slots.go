package assistant

import (
	"context"
	"sync"
	"time"
)

// keyedSlots provides one single-occupancy slot per key with a bounded
// acquisition wait. It serializes all conversation turns for a channel
// without blocking other channels.
type keyedSlots struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

// slot returns the channel's slot, creating it on first use. Slots are
// never removed; the key space is the set of active chat channels,
// which is small and bounded by workspace size.
func (k *keyedSlots) slot(key string) chan struct{} {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.slots == nil {
		k.slots = make(map[string]chan struct{})
	}
	s, ok := k.slots[key]
	if !ok {
		s = make(chan struct{}, 1)
		k.slots[key] = s
	}
	return s
}

// acquire takes the key's slot, waiting up to wait for the current
// occupant to finish. Returns ErrBusy when the wait elapses, or the
// context error on cancellation. The returned release function must be
// called exactly once.
func (k *keyedSlots) acquire(ctx context.Context, key string, wait time.Duration) (func(), error) {
	s := k.slot(key)

	select {
	case s <- struct{}{}:
		return func() { <-s }, nil
	default:
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case s <- struct{}{}:
		return func() { <-s }, nil
	case <-timer.C:
		return nil, ErrBusy
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
