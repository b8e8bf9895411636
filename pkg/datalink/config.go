package datalink

import (
	"fmt"
	"time"

	"avaneesh/lapdm-go/pkg/frame"
	"avaneesh/lapdm-go/pkg/segment"
)

// Config holds the per-link protocol parameters
type Config struct {
	Role frame.Role
	SAPI uint8

	// N201 is the maximum information field length
	N201 int

	// T200 is the recovery timer
	T200 time.Duration

	// N200EstRel bounds SABM and DISC retransmissions
	N200EstRel int

	// N200 bounds I frame recovery attempts
	N200 int

	// WindowSize is k, the maximum number of outstanding I frames
	WindowSize int

	// MaxMessageSize bounds both outbound and reassembled messages
	MaxMessageSize int
}

// DefaultT200 returns the TS 04.06 recovery timer for a role and channel type
func DefaultT200(role frame.Role, acch bool) time.Duration {
	switch {
	case role == frame.RoleMS && acch:
		return 2 * time.Second
	case role == frame.RoleMS:
		return time.Second
	case acch:
		return 900 * time.Millisecond
	default:
		return 220 * time.Millisecond
	}
}

// DefaultConfig returns the configuration for one SAPI on a DCCH or ACCH entity
func DefaultConfig(role frame.Role, sapi uint8, acch bool) Config {
	cfg := Config{
		Role:           role,
		SAPI:           sapi,
		N201:           frame.N201DCCH,
		T200:           DefaultT200(role, acch),
		N200EstRel:     DefaultN200EstRel,
		N200:           DefaultN200DCCH,
		WindowSize:     DefaultWindowSize,
		MaxMessageSize: segment.DefaultMaxMessageSize,
	}
	if acch {
		cfg.N201 = frame.N201SACCH
		cfg.N200 = DefaultN200ACCH
	}
	return cfg
}

// Validate checks the configuration
func (c Config) Validate() error {
	if c.SAPI > 7 {
		return fmt.Errorf("%w: SAPI %d", ErrInvalidConfig, c.SAPI)
	}
	if c.N201 < 1 || c.N201 > frame.FrameSize-frame.HeaderSizeB {
		return fmt.Errorf("%w: N201 %d", ErrInvalidConfig, c.N201)
	}
	if c.T200 <= 0 {
		return fmt.Errorf("%w: T200 %v", ErrInvalidConfig, c.T200)
	}
	if c.N200EstRel < 0 || c.N200 < 1 {
		return fmt.Errorf("%w: N200 %d, N200 est/rel %d", ErrInvalidConfig, c.N200, c.N200EstRel)
	}
	if c.WindowSize < 1 || c.WindowSize > MaxWindowSize {
		return fmt.Errorf("%w: window size %d", ErrInvalidConfig, c.WindowSize)
	}
	if c.MaxMessageSize < 1 {
		return fmt.Errorf("%w: max message size %d", ErrInvalidConfig, c.MaxMessageSize)
	}
	return nil
}
