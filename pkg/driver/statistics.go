package driver

import "sync/atomic"

// Statistics tracks driver-level statistics
type Statistics struct {
	// Envelopes on the physical channel
	numEnvelopesTx   uint64
	numEnvelopesRx   uint64
	numBadEnvelopes  uint64
	numUnrouted      uint64
	numWriteErrors   uint64
	numQueueOverflow uint64

	// Layer 1 emulation
	numRTS          uint64
	numT200Fired    uint64
	numRACHConfirms uint64
	numEmptyFrames  uint64
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	return &Statistics{}
}

func (s *Statistics) envelopeTx()    { atomic.AddUint64(&s.numEnvelopesTx, 1) }
func (s *Statistics) envelopeRx()    { atomic.AddUint64(&s.numEnvelopesRx, 1) }
func (s *Statistics) badEnvelope()   { atomic.AddUint64(&s.numBadEnvelopes, 1) }
func (s *Statistics) unrouted()      { atomic.AddUint64(&s.numUnrouted, 1) }
func (s *Statistics) writeError()    { atomic.AddUint64(&s.numWriteErrors, 1) }
func (s *Statistics) queueOverflow() { atomic.AddUint64(&s.numQueueOverflow, 1) }
func (s *Statistics) rts()           { atomic.AddUint64(&s.numRTS, 1) }
func (s *Statistics) t200Fired()     { atomic.AddUint64(&s.numT200Fired, 1) }
func (s *Statistics) rachConfirm()   { atomic.AddUint64(&s.numRACHConfirms, 1) }
func (s *Statistics) emptyFrame()    { atomic.AddUint64(&s.numEmptyFrames, 1) }

// GetEnvelopesTx returns envelopes written to the physical channel
func (s *Statistics) GetEnvelopesTx() uint64 {
	return atomic.LoadUint64(&s.numEnvelopesTx)
}

// GetEnvelopesRx returns envelopes read from the physical channel
func (s *Statistics) GetEnvelopesRx() uint64 {
	return atomic.LoadUint64(&s.numEnvelopesRx)
}

// GetBadEnvelopes returns envelopes that could not be decoded or were not
// expected from a peer
func (s *Statistics) GetBadEnvelopes() uint64 {
	return atomic.LoadUint64(&s.numBadEnvelopes)
}

// GetUnrouted returns primitives whose chan_nr matched no channel
func (s *Statistics) GetUnrouted() uint64 {
	return atomic.LoadUint64(&s.numUnrouted)
}

// GetWriteErrors returns failed physical channel writes
func (s *Statistics) GetWriteErrors() uint64 {
	return atomic.LoadUint64(&s.numWriteErrors)
}

// GetQueueOverflows returns primitives dropped because the write queue was full
func (s *Statistics) GetQueueOverflows() uint64 {
	return atomic.LoadUint64(&s.numQueueOverflow)
}

// GetRTS returns ready-to-send indications issued
func (s *Statistics) GetRTS() uint64 {
	return atomic.LoadUint64(&s.numRTS)
}

// GetT200Fired returns T200 expiries delivered
func (s *Statistics) GetT200Fired() uint64 {
	return atomic.LoadUint64(&s.numT200Fired)
}

// GetRACHConfirms returns random access bursts confirmed
func (s *Statistics) GetRACHConfirms() uint64 {
	return atomic.LoadUint64(&s.numRACHConfirms)
}

// GetEmptyFrames returns empty frame requests absorbed
func (s *Statistics) GetEmptyFrames() uint64 {
	return atomic.LoadUint64(&s.numEmptyFrames)
}

// Reset resets all statistics
func (s *Statistics) Reset() {
	atomic.StoreUint64(&s.numEnvelopesTx, 0)
	atomic.StoreUint64(&s.numEnvelopesRx, 0)
	atomic.StoreUint64(&s.numBadEnvelopes, 0)
	atomic.StoreUint64(&s.numUnrouted, 0)
	atomic.StoreUint64(&s.numWriteErrors, 0)
	atomic.StoreUint64(&s.numQueueOverflow, 0)
	atomic.StoreUint64(&s.numRTS, 0)
	atomic.StoreUint64(&s.numT200Fired, 0)
	atomic.StoreUint64(&s.numRACHConfirms, 0)
	atomic.StoreUint64(&s.numEmptyFrames, 0)
}
