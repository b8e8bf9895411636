package datalink

import (
	"errors"
	"fmt"
)

// State represents the state of a datalink
type State int

const (
	StateNull       State = iota // Not initialized
	StateIdle                    // No multiple frame operation
	StateSABMSent                // Establishment requested, awaiting UA
	StateMFEst                   // Multiple frame established
	StateTimerRecov              // T200 expired, recovering outstanding frames
	StateDiscSent                // Release requested, awaiting UA or DM
)

// String returns string representation of State
func (s State) String() string {
	switch s {
	case StateNull:
		return "NULL"
	case StateIdle:
		return "IDLE"
	case StateSABMSent:
		return "SABM_SENT"
	case StateMFEst:
		return "MF_EST"
	case StateTimerRecov:
		return "TIMER_RECOV"
	case StateDiscSent:
		return "DISC_SENT"
	default:
		return "UNKNOWN"
	}
}

// Connected returns true in the states where I frames are exchanged
func (s State) Connected() bool {
	return s == StateMFEst || s == StateTimerRecov
}

// ReleaseMode selects how a release request is carried out
type ReleaseMode int

const (
	ReleaseNormal   ReleaseMode = iota // DISC/UA exchange with the peer
	ReleaseLocalEnd                    // Drop the link without signalling
)

// String returns string representation of ReleaseMode
func (m ReleaseMode) String() string {
	if m == ReleaseLocalEnd {
		return "local-end"
	}
	return "normal"
}

// Protocol defaults (GSM TS 04.06 section 5.8)
const (
	DefaultN200EstRel = 5
	DefaultN200DCCH   = 23
	DefaultN200ACCH   = 5
	DefaultWindowSize = 1
	MaxWindowSize     = 7
)

// Errors
var (
	ErrSequence             = errors.New("N(S) sequence error")
	ErrEstablishmentFailure = errors.New("establishment failure")
	ErrRecoveryExhausted    = errors.New("recovery retries exhausted")
	ErrReleaseFailure       = errors.New("release failure")
	ErrProtocolViolation    = errors.New("protocol violation")
	ErrEstablishmentPending = errors.New("establishment already pending")
	ErrNotEstablished       = errors.New("link not established")
	ErrMessageTooLong       = errors.New("message too long")
	ErrEmptyMessage         = errors.New("empty message")
	ErrInvalidState         = errors.New("invalid state for operation")
	ErrInvalidConfig        = errors.New("invalid datalink configuration")

	// MDL error causes
	ErrT200Expired          = fmt.Errorf("%w: T200 expired N200+1 times", ErrEstablishmentFailure)
	ErrContentionResolution = fmt.Errorf("%w: contention resolution mismatch", ErrEstablishmentFailure)
	ErrUnsolicitedUA        = fmt.Errorf("%w: unsolicited UA response", ErrProtocolViolation)
	ErrUnsolicitedDM        = fmt.Errorf("%w: unsolicited DM response", ErrProtocolViolation)
	ErrIncorrectParameters  = fmt.Errorf("%w: frame with incorrect parameters", ErrProtocolViolation)
	ErrInvalidNR            = fmt.Errorf("%w: N(R) outside window", ErrProtocolViolation)
)
