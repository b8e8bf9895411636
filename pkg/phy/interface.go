package phy

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

var (
	ErrClosed           = errors.New("physical channel closed")
	ErrNotConnected     = errors.New("no connection")
	ErrEnvelopeTooLarge = errors.New("envelope too large")
	ErrAddressRequired  = errors.New("address is required")
)

// MaxEnvelopeSize bounds one envelope on the wire
const MaxEnvelopeSize = 1024

// ConnectionStateListener receives notifications about connection state changes
type ConnectionStateListener interface {
	// OnConnectionEstablished is called when a new connection is established
	OnConnectionEstablished()

	// OnConnectionLost is called when a connection is lost
	OnConnectionLost()
}

// PhysicalChannel carries PH-SAP envelopes between a Layer 1 driver and its
// remote peer. Each Read returns exactly one envelope as written by the
// peer's Write.
type PhysicalChannel interface {
	// Read blocks until the next envelope arrives or ctx is cancelled
	Read(ctx context.Context) ([]byte, error)

	// Write sends one envelope. Must be safe for concurrent use.
	Write(ctx context.Context, data []byte) error

	// Close releases the medium and unblocks pending Read/Write calls
	Close() error

	// Statistics returns transport-level statistics
	Statistics() TransportStats

	// SetConnectionStateListener sets a listener for connection state changes.
	// Connectionless transports never call it.
	SetConnectionStateListener(listener ConnectionStateListener)
}

// TransportStats provides transport-level statistics
type TransportStats struct {
	BytesSent     uint64 // Total bytes sent
	BytesReceived uint64 // Total bytes received
	WriteErrors   uint64 // Number of write errors
	ReadErrors    uint64 // Number of read errors
	Connects      uint64 // Number of connections (for connection-oriented transports)
	Disconnects   uint64 // Number of disconnections
}

// counters backs TransportStats for every transport
type counters struct {
	bytesSent     atomic.Uint64
	bytesReceived atomic.Uint64
	writeErrors   atomic.Uint64
	readErrors    atomic.Uint64
	connects      atomic.Uint64
	disconnects   atomic.Uint64
}

func (c *counters) snapshot() TransportStats {
	return TransportStats{
		BytesSent:     c.bytesSent.Load(),
		BytesReceived: c.bytesReceived.Load(),
		WriteErrors:   c.writeErrors.Load(),
		ReadErrors:    c.readErrors.Load(),
		Connects:      c.connects.Load(),
		Disconnects:   c.disconnects.Load(),
	}
}

// notifier holds an optional connection state listener
type notifier struct {
	mu       sync.RWMutex
	listener ConnectionStateListener
}

func (n *notifier) set(listener ConnectionStateListener) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.listener = listener
}

func (n *notifier) established() {
	n.mu.RLock()
	listener := n.listener
	n.mu.RUnlock()

	if listener != nil {
		listener.OnConnectionEstablished()
	}
}

func (n *notifier) lost() {
	n.mu.RLock()
	listener := n.listener
	n.mu.RUnlock()

	if listener != nil {
		listener.OnConnectionLost()
	}
}
