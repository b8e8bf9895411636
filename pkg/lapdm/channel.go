package lapdm

import (
	"fmt"
	"sync"
	"time"

	"avaneesh/lapdm-go/pkg/datalink"
	"avaneesh/lapdm-go/pkg/frame"
	"avaneesh/lapdm-go/pkg/internal/logger"
	"avaneesh/lapdm-go/pkg/segment"
)

// ChannelConfig holds the channel parameters. Zero timer and counter
// values select the TS 04.06 defaults for the channel role.
type ChannelConfig struct {
	Flags Flags

	T200DCCH time.Duration
	T200ACCH time.Duration

	N200EstRel int
	N200DCCH   int
	N200ACCH   int

	WindowSize     int
	MaxMessageSize int

	// Scheduler runs T200 for every datalink of the channel
	Scheduler datalink.Scheduler

	Logger logger.Logger
}

// DefaultChannelConfig returns a configuration using protocol defaults
func DefaultChannelConfig() ChannelConfig {
	return ChannelConfig{
		N200EstRel:     datalink.DefaultN200EstRel,
		N200DCCH:       datalink.DefaultN200DCCH,
		N200ACCH:       datalink.DefaultN200ACCH,
		WindowSize:     datalink.DefaultWindowSize,
		MaxMessageSize: segment.DefaultMaxMessageSize,
	}
}

// Validate checks the configuration
func (c ChannelConfig) Validate() error {
	if c.Flags&^(FlagEmptyFrame|FlagPollingOnly) != 0 {
		return fmt.Errorf("%w: flags 0x%x", datalink.ErrInvalidConfig, uint(c.Flags))
	}
	if c.T200DCCH < 0 || c.T200ACCH < 0 {
		return fmt.Errorf("%w: negative T200", datalink.ErrInvalidConfig)
	}
	if c.N200EstRel < 0 || c.N200DCCH < 0 || c.N200ACCH < 0 || c.WindowSize < 0 || c.MaxMessageSize < 0 {
		return fmt.Errorf("%w: negative counter", datalink.ErrInvalidConfig)
	}
	for _, role := range []frame.Role{frame.RoleBTS, frame.RoleMS} {
		for _, acch := range []bool{false, true} {
			if err := c.linkConfig(role, frame.SAPI0, acch).Validate(); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c ChannelConfig) linkConfig(role frame.Role, sapi uint8, acch bool) datalink.Config {
	cfg := datalink.DefaultConfig(role, sapi, acch)
	switch {
	case acch && c.T200ACCH > 0:
		cfg.T200 = c.T200ACCH
	case !acch && c.T200DCCH > 0:
		cfg.T200 = c.T200DCCH
	}
	if c.N200EstRel > 0 {
		cfg.N200EstRel = c.N200EstRel
	}
	if acch && c.N200ACCH > 0 {
		cfg.N200 = c.N200ACCH
	}
	if !acch && c.N200DCCH > 0 {
		cfg.N200 = c.N200DCCH
	}
	if c.WindowSize > 0 {
		cfg.WindowSize = c.WindowSize
	}
	if c.MaxMessageSize > 0 {
		cfg.MaxMessageSize = c.MaxMessageSize
	}
	return cfg
}

// delivery is output produced while the channel lock was held
type delivery struct {
	entity *Entity
	prim   *Primitive
	msg    *Message
}

// Channel pairs the DCCH and ACCH entities of one GSM logical channel
type Channel struct {
	name   string
	config ChannelConfig
	logger logger.Logger

	mu   sync.Mutex
	mode frame.Role
	dcch *Entity
	acch *Entity
	l1   L1
	l3   L3

	outbox     []delivery
	delivering bool
}

// NewChannel creates a channel with both entities in IDLE
func NewChannel(name string, mode frame.Role, config ChannelConfig) (*Channel, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.Logger == nil {
		config.Logger = logger.GetDefault()
	}

	c := &Channel{
		name:   name,
		config: config,
		logger: config.Logger,
		mode:   mode,
	}

	var err error
	if c.dcch, err = newEntity(c, "DCCH", false); err != nil {
		return nil, err
	}
	if c.acch, err = newEntity(c, "ACCH", true); err != nil {
		return nil, err
	}

	c.logger.Debug("lapdm channel %s created (%s)", name, mode)
	return c, nil
}

func (c *Channel) linkConfig(role frame.Role, sapi uint8, acch bool) datalink.Config {
	return c.config.linkConfig(role, sapi, acch)
}

// Name returns the channel name
func (c *Channel) Name() string { return c.name }

// DCCH returns the dedicated control channel entity
func (c *Channel) DCCH() *Entity { return c.dcch }

// ACCH returns the associated control channel entity
func (c *Channel) ACCH() *Entity { return c.acch }

// Entity returns the entity a link identifier addresses
func (c *Channel) Entity(linkID uint8) *Entity {
	if linkID&LinkIDSACCH != 0 {
		return c.acch
	}
	return c.dcch
}

// Mode returns the channel role
func (c *Channel) Mode() frame.Role {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// SetMode changes the role of both entities. Both are reset.
func (c *Channel) SetMode(mode frame.Role) error {
	return c.do(func() error {
		dcch, err := c.dcch.modeConfigs(mode)
		if err != nil {
			return err
		}
		acch, err := c.acch.modeConfigs(mode)
		if err != nil {
			return err
		}
		if err := c.dcch.setMode(mode, dcch); err != nil {
			return err
		}
		if err := c.acch.setMode(mode, acch); err != nil {
			return err
		}
		c.mode = mode
		c.logger.Info("lapdm channel %s: mode %s", c.name, mode)
		return nil
	})
}

// SetFlags sets the flags of both entities
func (c *Channel) SetFlags(flags Flags) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dcch.flags = flags
	c.acch.flags = flags
	c.config.Flags = flags
}

// SetL1 binds the Layer 1 of both entities
func (c *Channel) SetL1(l1 L1) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.l1 = l1
}

// SetL3 binds the Layer 3 of both entities
func (c *Channel) SetL3(l3 L3) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.l3 = l3
}

// SetScheduler replaces the T200 scheduler of all four datalinks
func (c *Channel) SetScheduler(s datalink.Scheduler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.config.Scheduler = s
	for _, e := range []*Entity{c.dcch, c.acch} {
		for _, dl := range e.links {
			dl.SetScheduler(s)
		}
	}
}

// Reset returns all datalinks to IDLE and drops queued frames
func (c *Channel) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dcch.reset()
	c.acch.reset()
	c.outbox = nil
}

// Exit returns all datalinks to NULL
func (c *Channel) Exit() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dcch.exit()
	c.acch.exit()
	c.outbox = nil
	c.logger.Debug("lapdm channel %s exited", c.name)
}

// SendL3 hands a Layer 3 request to the entity its link identifier
// addresses. Frames are queued for the next ready-to-send unless the
// entity may push them.
func (c *Channel) SendL3(msg *Message) error {
	if !msg.Type.IsRequest() {
		return fmt.Errorf("%w: %s", ErrUnknownMessage, msg.Type)
	}
	e := c.Entity(msg.LinkID)
	return c.do(func() error {
		return e.rslmsRecv(msg)
	})
}

// PhSapUp routes a Layer 1 primitive to the entity its link identifier
// addresses
func (c *Channel) PhSapUp(p *Primitive) error {
	e := c.Entity(p.LinkID)
	return c.do(func() error {
		return e.phSapUp(p)
	})
}

// T200Expired hands a T200 expiry to dl. Expiries for datalinks of another
// channel are ignored.
func (c *Channel) T200Expired(dl *datalink.Datalink, gen uint32) {
	c.do(func() error {
		for _, e := range []*Entity{c.dcch, c.acch} {
			for _, own := range e.links {
				if own == dl {
					dl.OnT200Expiry(gen)
					return nil
				}
			}
		}
		return nil
	})
}

// do runs fn under the channel lock, then delivers the output fn produced
// with the lock released. Calls made from inside a Layer 1 or Layer 3
// callback queue their output behind the delivery in progress.
func (c *Channel) do(fn func() error) error {
	c.mu.Lock()
	err := fn()
	if c.delivering {
		c.mu.Unlock()
		return err
	}

	c.delivering = true
	for len(c.outbox) > 0 {
		out := c.outbox
		c.outbox = nil
		l1, l3 := c.l1, c.l3
		c.mu.Unlock()

		c.deliver(out, l1, l3)

		c.mu.Lock()
	}
	c.delivering = false
	c.mu.Unlock()
	return err
}

func (c *Channel) deliver(out []delivery, l1 L1, l3 L3) {
	for _, d := range out {
		if d.prim != nil {
			if l1 == nil {
				d.entity.stats.incL1Errors()
				c.logger.Debug("lapdm channel %s: %v, dropping %s", c.name, ErrNoLayer1, d.prim)
				continue
			}
			if err := l1.SendPrimitive(d.prim); err != nil {
				d.entity.stats.incL1Errors()
				c.logger.Error("lapdm channel %s: layer 1 refused %s: %v", c.name, d.prim, err)
			}
			continue
		}

		if l3 == nil {
			c.logger.Debug("lapdm channel %s: no layer 3, dropping %s", c.name, d.msg)
			continue
		}
		if err := l3.ReceiveMessage(d.msg, d.entity); err != nil {
			d.entity.stats.incL3Errors()
			c.logger.Warn("lapdm channel %s: layer 3 refused %s: %v", c.name, d.msg, err)
		}
	}
}
