package datalink

import "time"

// Scheduler runs T200 on behalf of a datalink. The datalink never reads
// a clock; when the deadline passes the driver calls OnT200Expiry with the
// generation it was given.
type Scheduler interface {
	StartTimer(dl *Datalink, gen uint32, d time.Duration)
	StopTimer(dl *Datalink)
}

// Owner receives the output of a datalink
type Owner interface {
	// FrameReady is called when the datalink has something to transmit
	FrameReady(dl *Datalink)

	// Indicate delivers a Layer 3 indication or confirmation
	Indicate(dl *Datalink, ind Indication)
}

// IndicationType identifies an upward primitive
type IndicationType int

const (
	IndEstablishConf IndicationType = iota
	IndEstablishInd
	IndReleaseConf
	IndReleaseInd
	IndDataInd
	IndErrorInd
	IndSuspendConf
)

// String returns string representation of IndicationType
func (t IndicationType) String() string {
	switch t {
	case IndEstablishConf:
		return "EST-CONF"
	case IndEstablishInd:
		return "EST-IND"
	case IndReleaseConf:
		return "REL-CONF"
	case IndReleaseInd:
		return "REL-IND"
	case IndDataInd:
		return "DATA-IND"
	case IndErrorInd:
		return "ERROR-IND"
	case IndSuspendConf:
		return "SUSP-CONF"
	default:
		return "UNKNOWN"
	}
}

// Indication is passed to the owner for delivery to Layer 3
type Indication struct {
	Type    IndicationType
	Payload []byte
	Err     error
}

type noopScheduler struct{}

func (noopScheduler) StartTimer(*Datalink, uint32, time.Duration) {}
func (noopScheduler) StopTimer(*Datalink)                         {}
