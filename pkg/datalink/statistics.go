package datalink

import "sync/atomic"

// Statistics tracks datalink counters
type Statistics struct {
	TxFrames        uint64
	RxFrames        uint64
	TxIFrames       uint64
	RxIFrames       uint64
	Retransmissions uint64
	T200Expiries    uint64
	SequenceErrors  uint64
	RejectsSent     uint64
	RejectsReceived uint64
	TxMessages      uint64
	RxMessages      uint64
	ProtocolErrors  uint64
	BufferOverflows uint64
	LinkFailures    uint64
	StaleExpiries   uint64
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	return &Statistics{}
}

func (s *Statistics) incTxFrames()        { atomic.AddUint64(&s.TxFrames, 1) }
func (s *Statistics) incRxFrames()        { atomic.AddUint64(&s.RxFrames, 1) }
func (s *Statistics) incTxIFrames()       { atomic.AddUint64(&s.TxIFrames, 1) }
func (s *Statistics) incRxIFrames()       { atomic.AddUint64(&s.RxIFrames, 1) }
func (s *Statistics) incRetransmissions() { atomic.AddUint64(&s.Retransmissions, 1) }
func (s *Statistics) incT200Expiries()    { atomic.AddUint64(&s.T200Expiries, 1) }
func (s *Statistics) incSequenceErrors()  { atomic.AddUint64(&s.SequenceErrors, 1) }
func (s *Statistics) incRejectsSent()     { atomic.AddUint64(&s.RejectsSent, 1) }
func (s *Statistics) incRejectsReceived() { atomic.AddUint64(&s.RejectsReceived, 1) }
func (s *Statistics) incTxMessages()      { atomic.AddUint64(&s.TxMessages, 1) }
func (s *Statistics) incRxMessages()      { atomic.AddUint64(&s.RxMessages, 1) }
func (s *Statistics) incProtocolErrors()  { atomic.AddUint64(&s.ProtocolErrors, 1) }
func (s *Statistics) incBufferOverflows() { atomic.AddUint64(&s.BufferOverflows, 1) }
func (s *Statistics) incLinkFailures()    { atomic.AddUint64(&s.LinkFailures, 1) }
func (s *Statistics) incStaleExpiries()   { atomic.AddUint64(&s.StaleExpiries, 1) }

// GetTxFrames returns the number of frames handed to the entity
func (s *Statistics) GetTxFrames() uint64 { return atomic.LoadUint64(&s.TxFrames) }

// GetRxFrames returns the number of frames received
func (s *Statistics) GetRxFrames() uint64 { return atomic.LoadUint64(&s.RxFrames) }

// GetTxIFrames returns the number of new I frames sent
func (s *Statistics) GetTxIFrames() uint64 { return atomic.LoadUint64(&s.TxIFrames) }

// GetRxIFrames returns the number of in-sequence I frames accepted
func (s *Statistics) GetRxIFrames() uint64 { return atomic.LoadUint64(&s.RxIFrames) }

// GetRetransmissions returns the number of I frames queued again
func (s *Statistics) GetRetransmissions() uint64 { return atomic.LoadUint64(&s.Retransmissions) }

// GetT200Expiries returns the number of T200 expiries acted upon
func (s *Statistics) GetT200Expiries() uint64 { return atomic.LoadUint64(&s.T200Expiries) }

// GetSequenceErrors returns the number of out-of-sequence I frames
func (s *Statistics) GetSequenceErrors() uint64 { return atomic.LoadUint64(&s.SequenceErrors) }

// GetRejectsSent returns the number of REJ frames sent
func (s *Statistics) GetRejectsSent() uint64 { return atomic.LoadUint64(&s.RejectsSent) }

// GetRejectsReceived returns the number of REJ frames received
func (s *Statistics) GetRejectsReceived() uint64 { return atomic.LoadUint64(&s.RejectsReceived) }

// GetTxMessages returns the number of Layer 3 messages fully segmented
func (s *Statistics) GetTxMessages() uint64 { return atomic.LoadUint64(&s.TxMessages) }

// GetRxMessages returns the number of Layer 3 messages delivered
func (s *Statistics) GetRxMessages() uint64 { return atomic.LoadUint64(&s.RxMessages) }

// GetProtocolErrors returns the number of discarded frames invalid for the state
func (s *Statistics) GetProtocolErrors() uint64 { return atomic.LoadUint64(&s.ProtocolErrors) }

// GetBufferOverflows returns the number of reassembly overflows
func (s *Statistics) GetBufferOverflows() uint64 { return atomic.LoadUint64(&s.BufferOverflows) }

// GetLinkFailures returns the number of establishment and recovery failures
func (s *Statistics) GetLinkFailures() uint64 { return atomic.LoadUint64(&s.LinkFailures) }

// GetStaleExpiries returns the number of ignored timer expiries
func (s *Statistics) GetStaleExpiries() uint64 { return atomic.LoadUint64(&s.StaleExpiries) }

// Reset resets all statistics to zero
func (s *Statistics) Reset() {
	atomic.StoreUint64(&s.TxFrames, 0)
	atomic.StoreUint64(&s.RxFrames, 0)
	atomic.StoreUint64(&s.TxIFrames, 0)
	atomic.StoreUint64(&s.RxIFrames, 0)
	atomic.StoreUint64(&s.Retransmissions, 0)
	atomic.StoreUint64(&s.T200Expiries, 0)
	atomic.StoreUint64(&s.SequenceErrors, 0)
	atomic.StoreUint64(&s.RejectsSent, 0)
	atomic.StoreUint64(&s.RejectsReceived, 0)
	atomic.StoreUint64(&s.TxMessages, 0)
	atomic.StoreUint64(&s.RxMessages, 0)
	atomic.StoreUint64(&s.ProtocolErrors, 0)
	atomic.StoreUint64(&s.BufferOverflows, 0)
	atomic.StoreUint64(&s.LinkFailures, 0)
	atomic.StoreUint64(&s.StaleExpiries, 0)
}
