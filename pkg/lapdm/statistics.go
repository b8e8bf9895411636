package lapdm

import "sync/atomic"

// Statistics tracks entity-level statistics
type Statistics struct {
	framesRx     uint64
	framesTx     uint64
	malformed    uint64
	uiRx         uint64
	uiTx         uint64
	fillFrames   uint64
	emptyFrames  uint64
	unknownSAPI  uint64
	rtsReceived  uint64
	pushedFrames uint64
	l1Errors     uint64
	l3Errors     uint64
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	return &Statistics{}
}

func (s *Statistics) incFramesRx()     { atomic.AddUint64(&s.framesRx, 1) }
func (s *Statistics) incFramesTx()     { atomic.AddUint64(&s.framesTx, 1) }
func (s *Statistics) incMalformed()    { atomic.AddUint64(&s.malformed, 1) }
func (s *Statistics) incUIRx()         { atomic.AddUint64(&s.uiRx, 1) }
func (s *Statistics) incUITx()         { atomic.AddUint64(&s.uiTx, 1) }
func (s *Statistics) incFillFrames()   { atomic.AddUint64(&s.fillFrames, 1) }
func (s *Statistics) incEmptyFrames()  { atomic.AddUint64(&s.emptyFrames, 1) }
func (s *Statistics) incUnknownSAPI()  { atomic.AddUint64(&s.unknownSAPI, 1) }
func (s *Statistics) incRTS()          { atomic.AddUint64(&s.rtsReceived, 1) }
func (s *Statistics) incPushedFrames() { atomic.AddUint64(&s.pushedFrames, 1) }
func (s *Statistics) incL1Errors()     { atomic.AddUint64(&s.l1Errors, 1) }
func (s *Statistics) incL3Errors()     { atomic.AddUint64(&s.l3Errors, 1) }

// GetFramesRx returns frames received from Layer 1
func (s *Statistics) GetFramesRx() uint64 {
	return atomic.LoadUint64(&s.framesRx)
}

// GetFramesTx returns frames handed to Layer 1, fill frames included
func (s *Statistics) GetFramesTx() uint64 {
	return atomic.LoadUint64(&s.framesTx)
}

// GetMalformed returns frames discarded by the decoder
func (s *Statistics) GetMalformed() uint64 {
	return atomic.LoadUint64(&s.malformed)
}

// GetUIRx returns UI frames delivered as UNIT-DATA-IND
func (s *Statistics) GetUIRx() uint64 {
	return atomic.LoadUint64(&s.uiRx)
}

// GetUITx returns UI frames transmitted
func (s *Statistics) GetUITx() uint64 {
	return atomic.LoadUint64(&s.uiTx)
}

// GetFillFrames returns fill frames sent for an idle ready-to-send
func (s *Statistics) GetFillFrames() uint64 {
	return atomic.LoadUint64(&s.fillFrames)
}

// GetEmptyFrames returns PH-EMPTY_FRAME requests
func (s *Statistics) GetEmptyFrames() uint64 {
	return atomic.LoadUint64(&s.emptyFrames)
}

// GetUnknownSAPI returns frames dropped for an unsupported SAPI
func (s *Statistics) GetUnknownSAPI() uint64 {
	return atomic.LoadUint64(&s.unknownSAPI)
}

// GetRTS returns ready-to-send indications received
func (s *Statistics) GetRTS() uint64 {
	return atomic.LoadUint64(&s.rtsReceived)
}

// GetPushedFrames returns frames sent to Layer 1 without a ready-to-send
func (s *Statistics) GetPushedFrames() uint64 {
	return atomic.LoadUint64(&s.pushedFrames)
}

// GetL1Errors returns failed Layer 1 submissions
func (s *Statistics) GetL1Errors() uint64 {
	return atomic.LoadUint64(&s.l1Errors)
}

// GetL3Errors returns messages Layer 3 refused
func (s *Statistics) GetL3Errors() uint64 {
	return atomic.LoadUint64(&s.l3Errors)
}

// Reset resets all statistics
func (s *Statistics) Reset() {
	atomic.StoreUint64(&s.framesRx, 0)
	atomic.StoreUint64(&s.framesTx, 0)
	atomic.StoreUint64(&s.malformed, 0)
	atomic.StoreUint64(&s.uiRx, 0)
	atomic.StoreUint64(&s.uiTx, 0)
	atomic.StoreUint64(&s.fillFrames, 0)
	atomic.StoreUint64(&s.emptyFrames, 0)
	atomic.StoreUint64(&s.unknownSAPI, 0)
	atomic.StoreUint64(&s.rtsReceived, 0)
	atomic.StoreUint64(&s.pushedFrames, 0)
	atomic.StoreUint64(&s.l1Errors, 0)
	atomic.StoreUint64(&s.l3Errors, 0)
}
