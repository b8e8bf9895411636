package phy

import (
	"context"
	"sync"
	"sync/atomic"
)

// MemoryChannel is one end of an in-process link, used by the simulator and
// by tests
type MemoryChannel struct {
	peer *MemoryChannel
	rx   chan []byte
	done chan struct{}

	dropMu sync.RWMutex
	drop   func([]byte) bool

	closed atomic.Bool
	stats  counters
}

// NewMemoryPair returns two connected ends. Each end buffers up to depth
// envelopes; writes block while the peer's buffer is full.
func NewMemoryPair(depth int) (*MemoryChannel, *MemoryChannel) {
	if depth <= 0 {
		depth = 64
	}
	a := &MemoryChannel{rx: make(chan []byte, depth), done: make(chan struct{})}
	b := &MemoryChannel{rx: make(chan []byte, depth), done: make(chan struct{})}
	a.peer, b.peer = b, a
	a.stats.connects.Add(1)
	b.stats.connects.Add(1)
	return a, b
}

// SetDrop installs a filter on outgoing envelopes. Envelopes for which drop
// returns true are counted as sent but never delivered.
func (mc *MemoryChannel) SetDrop(drop func([]byte) bool) {
	mc.dropMu.Lock()
	defer mc.dropMu.Unlock()
	mc.drop = drop
}

// Read implements PhysicalChannel.Read
func (mc *MemoryChannel) Read(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-mc.done:
		return nil, ErrClosed
	case data := <-mc.rx:
		mc.stats.bytesReceived.Add(uint64(len(data)))
		return data, nil
	}
}

// Write implements PhysicalChannel.Write
func (mc *MemoryChannel) Write(ctx context.Context, data []byte) error {
	if mc.closed.Load() {
		return ErrClosed
	}
	if len(data) > MaxEnvelopeSize {
		mc.stats.writeErrors.Add(1)
		return ErrEnvelopeTooLarge
	}

	mc.dropMu.RLock()
	drop := mc.drop
	mc.dropMu.RUnlock()

	mc.stats.bytesSent.Add(uint64(len(data)))
	if drop != nil && drop(data) {
		return nil
	}

	buf := make([]byte, len(data))
	copy(buf, data)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-mc.done:
		return ErrClosed
	case <-mc.peer.done:
		mc.stats.writeErrors.Add(1)
		return ErrNotConnected
	case mc.peer.rx <- buf:
		return nil
	}
}

// Close implements PhysicalChannel.Close. The peer stays open but its
// writes fail.
func (mc *MemoryChannel) Close() error {
	if !mc.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(mc.done)
	mc.stats.disconnects.Add(1)
	return nil
}

// Statistics implements PhysicalChannel.Statistics
func (mc *MemoryChannel) Statistics() TransportStats {
	return mc.stats.snapshot()
}

// SetConnectionStateListener implements PhysicalChannel. The pair is
// connected from creation, so the listener is never called.
func (mc *MemoryChannel) SetConnectionStateListener(ConnectionStateListener) {}
