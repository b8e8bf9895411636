package phy

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
)

// StreamChannel carries length-prefixed envelopes over any byte stream,
// such as a serial line or a pipe. A background reader feeds Read so that
// blocked reads honour their context.
type StreamChannel struct {
	rwc     io.ReadWriteCloser
	writeMu sync.Mutex

	rx     chan []byte
	rxErr  error
	done   chan struct{}
	closed atomic.Bool

	stats counters
}

// NewStreamChannel takes ownership of rwc
func NewStreamChannel(rwc io.ReadWriteCloser) *StreamChannel {
	sc := &StreamChannel{
		rwc:  rwc,
		rx:   make(chan []byte, 16),
		done: make(chan struct{}),
	}
	sc.stats.connects.Add(1)
	go sc.readLoop()
	return sc
}

func (sc *StreamChannel) readLoop() {
	defer close(sc.rx)
	for {
		data, err := readEnvelope(sc.rwc)
		if err != nil {
			if !sc.closed.Load() {
				sc.stats.readErrors.Add(1)
				sc.rxErr = err
			}
			return
		}
		sc.stats.bytesReceived.Add(uint64(lengthPrefixSize + len(data)))

		select {
		case sc.rx <- data:
		case <-sc.done:
			return
		}
	}
}

// Read implements PhysicalChannel.Read. After the stream fails, Read
// returns the error that stopped it.
func (sc *StreamChannel) Read(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-sc.done:
		return nil, ErrClosed
	case data, ok := <-sc.rx:
		if !ok {
			if sc.rxErr != nil {
				return nil, sc.rxErr
			}
			return nil, ErrClosed
		}
		return data, nil
	}
}

// Write implements PhysicalChannel.Write
func (sc *StreamChannel) Write(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if sc.closed.Load() {
		return ErrClosed
	}

	buf, err := encodeEnvelope(data)
	if err != nil {
		sc.stats.writeErrors.Add(1)
		return err
	}

	sc.writeMu.Lock()
	defer sc.writeMu.Unlock()

	if _, err := sc.rwc.Write(buf); err != nil {
		sc.stats.writeErrors.Add(1)
		return err
	}
	sc.stats.bytesSent.Add(uint64(len(buf)))
	return nil
}

// Close implements PhysicalChannel.Close
func (sc *StreamChannel) Close() error {
	if !sc.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(sc.done)
	sc.stats.disconnects.Add(1)
	return sc.rwc.Close()
}

// Statistics implements PhysicalChannel.Statistics
func (sc *StreamChannel) Statistics() TransportStats {
	return sc.stats.snapshot()
}

// SetConnectionStateListener implements PhysicalChannel. A stream is
// connected for its whole lifetime, so the listener is never called.
func (sc *StreamChannel) SetConnectionStateListener(ConnectionStateListener) {}
