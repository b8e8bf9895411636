// Package driver runs LAPDm channels on top of a physical channel. It plays
// the part of Layer 1: it clocks ready-to-send indications, runs T200 and
// carries PH-SAP primitives to the peer station.
package driver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"avaneesh/lapdm-go/pkg/internal/logger"
	"avaneesh/lapdm-go/pkg/internal/timerq"
	"avaneesh/lapdm-go/pkg/lapdm"
	"avaneesh/lapdm-go/pkg/phy"
)

var (
	ErrDriverClosed     = errors.New("driver is closed")
	ErrDriverOpen       = errors.New("driver is already open")
	ErrDuplicateChannel = errors.New("channel number already registered")
	ErrNoChannel        = errors.New("no channel for channel number")
	ErrQueueFull        = errors.New("write queue full")
	ErrInvalidConfig    = errors.New("invalid driver configuration")
)

const (
	// FramesPerBlock is the number of TDMA frames one radio block spans
	FramesPerBlock = 4

	// Hyperframe is the TDMA frame number modulus
	Hyperframe = 2715648

	// DefaultBlockInterval is four TDMA frames of 4.615 ms
	DefaultBlockInterval = FramesPerBlock * 4615 * time.Microsecond

	// DefaultACCHEvery gives the SACCH one block per 26-multiframe
	DefaultACCHEvery = 26
)

// State is the lifecycle state of a driver
type State int

const (
	StateClosed State = iota
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "Closed"
	case StateOpen:
		return "Open"
	default:
		return "Unknown"
	}
}

// Config configures a driver
type Config struct {
	BlockInterval  time.Duration // Period of the DCCH ready-to-send clock
	ACCHEvery      int           // The ACCH gets a ready-to-send every ACCHEvery blocks
	WriteQueueSize int
	Logger         logger.Logger
}

// DefaultConfig returns a configuration with GSM block timing
func DefaultConfig() Config {
	return Config{
		BlockInterval:  DefaultBlockInterval,
		ACCHEvery:      DefaultACCHEvery,
		WriteQueueSize: 100,
	}
}

// Validate checks the configuration
func (c Config) Validate() error {
	if c.BlockInterval <= 0 {
		return fmt.Errorf("%w: block interval %v", ErrInvalidConfig, c.BlockInterval)
	}
	if c.ACCHEvery <= 0 {
		return fmt.Errorf("%w: ACCH period %d", ErrInvalidConfig, c.ACCHEvery)
	}
	if c.WriteQueueSize <= 0 {
		return fmt.Errorf("%w: write queue size %d", ErrInvalidConfig, c.WriteQueueSize)
	}
	return nil
}

// Driver binds LAPDm channels to one physical channel
type Driver struct {
	id       string
	physical phy.PhysicalChannel
	router   *Router
	stats    *Statistics
	logger   logger.Logger
	config   Config

	// State
	state   State
	stateMu sync.RWMutex

	// Event loop inputs
	timers *timerq.Queue
	wakeCh chan struct{}
	events chan *lapdm.Primitive

	frameNumber atomic.Uint32

	// Concurrency
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Write queue for serializing writes
	writeQueue chan *writeRequest
}

// writeRequest is one primitive bound for the peer
type writeRequest struct {
	prim *lapdm.Primitive
	data []byte
}

// New creates a driver on physical. The driver owns physical from now on.
func New(id string, physical phy.PhysicalChannel, config Config) (*Driver, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	log := config.Logger
	if log == nil {
		log = logger.NewNoOpLogger()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Driver{
		id:         id,
		physical:   physical,
		router:     NewRouter(),
		stats:      NewStatistics(),
		logger:     log,
		config:     config,
		state:      StateClosed,
		timers:     timerq.New(),
		wakeCh:     make(chan struct{}, 1),
		events:     make(chan *lapdm.Primitive, config.WriteQueueSize),
		ctx:        ctx,
		cancel:     cancel,
		writeQueue: make(chan *writeRequest, config.WriteQueueSize),
	}, nil
}

// ID returns the driver ID
func (d *Driver) ID() string {
	return d.id
}

// AddChannel serves ch under chanNr. The driver becomes the channel's
// Layer 1 and runs its timers.
func (d *Driver) AddChannel(chanNr uint8, ch *lapdm.Channel) error {
	if err := d.router.AddChannel(chanNr, ch); err != nil {
		return err
	}
	ch.SetScheduler(&scheduler{d: d, ch: ch})
	ch.SetL1(d)

	d.logger.Info("Driver %s: added channel %s at chan_nr 0x%02x", d.id, ch.Name(), chanNr)
	return nil
}

// RemoveChannel stops serving the channel at chanNr
func (d *Driver) RemoveChannel(chanNr uint8) {
	ch, ok := d.router.Lookup(chanNr)
	if !ok {
		return
	}
	d.router.RemoveChannel(chanNr)
	ch.SetL1(nil)
	ch.SetScheduler(nil)

	d.logger.Info("Driver %s: removed channel at chan_nr 0x%02x", d.id, chanNr)
}

// Open starts the event loop and the physical channel loops
func (d *Driver) Open() error {
	d.stateMu.Lock()
	defer d.stateMu.Unlock()

	if d.state == StateOpen {
		return ErrDriverOpen
	}
	if d.ctx.Err() != nil {
		return ErrDriverClosed
	}

	d.state = StateOpen
	d.physical.SetConnectionStateListener(d)

	for _, loop := range []func(){d.readLoop, d.writeLoop, d.run} {
		loop := loop
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			loop()
		}()
	}

	d.logger.Info("Driver %s opened", d.id)
	return nil
}

// Close stops the driver and closes the physical channel
func (d *Driver) Close() error {
	d.stateMu.Lock()
	if d.state == StateClosed {
		d.stateMu.Unlock()
		return nil
	}
	d.state = StateClosed
	d.stateMu.Unlock()

	d.logger.Info("Driver %s closing", d.id)

	d.cancel()

	if err := d.physical.Close(); err != nil {
		d.logger.Error("Error closing physical channel: %v", err)
	}

	d.wg.Wait()
	d.timers.Clear()

	d.logger.Info("Driver %s closed", d.id)
	return nil
}

// SendPrimitive implements lapdm.L1. It queues p for the peer and never
// blocks; a full queue drops p.
func (d *Driver) SendPrimitive(p *lapdm.Primitive) error {
	if d.State() != StateOpen {
		return ErrDriverClosed
	}

	if p.Type == lapdm.PrimEmptyFrame {
		d.stats.emptyFrame()
		return nil
	}

	data, err := p.MarshalBinary()
	if err != nil {
		return err
	}

	select {
	case d.writeQueue <- &writeRequest{prim: p, data: data}:
		return nil
	default:
		d.stats.queueOverflow()
		return ErrQueueFull
	}
}

// OnConnectionEstablished implements phy.ConnectionStateListener. Every
// channel gets PH-CONN.ind.
func (d *Driver) OnConnectionEstablished() {
	d.logger.Info("Driver %s: physical connection established", d.id)
	fn := d.FrameNumber()
	d.router.Each(func(chanNr uint8, _ *lapdm.Channel) {
		d.post(&lapdm.Primitive{Type: lapdm.PrimConn, Op: lapdm.OpIndication, ChanNr: chanNr, FrameNumber: fn})
	})
}

// OnConnectionLost implements phy.ConnectionStateListener
func (d *Driver) OnConnectionLost() {
	d.logger.Warn("Driver %s: physical connection lost", d.id)
}

// post hands p to the event loop
func (d *Driver) post(p *lapdm.Primitive) {
	select {
	case d.events <- p:
	case <-d.ctx.Done():
	}
}

func (d *Driver) wake() {
	select {
	case d.wakeCh <- struct{}{}:
	default:
	}
}

// run is the event loop. Every primitive for a local channel, every
// ready-to-send and every T200 expiry is applied here, one at a time.
func (d *Driver) run() {
	d.logger.Debug("Driver %s event loop started", d.id)
	defer d.logger.Debug("Driver %s event loop stopped", d.id)

	ticker := time.NewTicker(d.config.BlockInterval)
	defer ticker.Stop()

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	var block uint64
	for {
		select {
		case <-d.ctx.Done():
			return
		case p := <-d.events:
			d.route(p)
		case <-ticker.C:
			d.clock(block)
			block++
		case <-d.wakeCh:
		case <-timer.C:
		}

		if next, ok := d.fireTimers(time.Now()); ok {
			timer.Reset(time.Until(next))
		} else {
			timer.Stop()
		}
	}
}

// clock advances the frame number by one block and polls every channel
func (d *Driver) clock(block uint64) {
	fn := (d.frameNumber.Load() + FramesPerBlock) % Hyperframe
	d.frameNumber.Store(fn)

	acch := block%uint64(d.config.ACCHEvery) == 0
	d.router.Each(func(chanNr uint8, ch *lapdm.Channel) {
		d.rts(ch, chanNr, 0, fn)
		if acch {
			d.rts(ch, chanNr, lapdm.LinkIDSACCH, fn)
		}
	})
}

func (d *Driver) rts(ch *lapdm.Channel, chanNr, linkID uint8, fn uint32) {
	p := lapdm.NewRTSIndication(chanNr, linkID)
	p.FrameNumber = fn
	d.stats.rts()
	if err := ch.PhSapUp(p); err != nil {
		d.logger.Debug("Driver %s: %s: %v", d.id, p, err)
	}
}

func (d *Driver) route(p *lapdm.Primitive) {
	err := d.router.Route(p)
	switch {
	case errors.Is(err, ErrNoChannel):
		d.stats.unrouted()
		d.logger.Debug("Driver %s: dropping %s: %v", d.id, p, err)
	case err != nil:
		d.logger.Debug("Driver %s: %s: %v", d.id, p, err)
	}
}

// readLoop continuously reads envelopes from the physical channel
func (d *Driver) readLoop() {
	d.logger.Debug("Driver %s read loop started", d.id)
	defer d.logger.Debug("Driver %s read loop stopped", d.id)

	for {
		data, err := d.physical.Read(d.ctx)
		if err != nil {
			if d.ctx.Err() != nil || errors.Is(err, phy.ErrClosed) {
				return
			}
			d.logger.Error("Driver %s read error: %v", d.id, err)
			select {
			case <-d.ctx.Done():
				return
			case <-time.After(100 * time.Millisecond):
			}
			continue
		}

		var p lapdm.Primitive
		if err := p.UnmarshalBinary(data); err != nil {
			d.logger.Warn("Driver %s: bad envelope: %v", d.id, err)
			d.stats.badEnvelope()
			continue
		}
		d.stats.envelopeRx()

		if local, ok := d.fromPeer(&p); ok {
			d.post(local)
		}
	}
}

// fromPeer turns a request of the peer's Layer 1 into what the local
// Layer 1 would indicate
func (d *Driver) fromPeer(p *lapdm.Primitive) (*lapdm.Primitive, bool) {
	switch {
	case p.Type == lapdm.PrimData && p.Op == lapdm.OpRequest:
		ind := lapdm.NewDataIndication(p.ChanNr, p.LinkID, p.Data)
		ind.FrameNumber = d.FrameNumber()
		return ind, true

	case p.Type == lapdm.PrimRACH && p.Op == lapdm.OpRequest:
		return &lapdm.Primitive{
			Type:        lapdm.PrimRACH,
			Op:          lapdm.OpIndication,
			ChanNr:      p.ChanNr,
			RA:          p.RA,
			FrameNumber: d.FrameNumber(),
		}, true

	default:
		d.logger.Warn("Driver %s: unexpected %s from peer", d.id, p)
		d.stats.badEnvelope()
		return nil, false
	}
}

// writeLoop processes write requests
func (d *Driver) writeLoop() {
	d.logger.Debug("Driver %s write loop started", d.id)
	defer d.logger.Debug("Driver %s write loop stopped", d.id)

	for {
		select {
		case <-d.ctx.Done():
			return

		case req := <-d.writeQueue:
			if err := d.physical.Write(d.ctx, req.data); err != nil {
				d.stats.writeError()
				d.logger.Error("Driver %s write error: %v", d.id, err)
				continue
			}
			d.stats.envelopeTx()

			if req.prim.Type == lapdm.PrimRACH {
				d.stats.rachConfirm()
				d.post(&lapdm.Primitive{
					Type:        lapdm.PrimRACH,
					Op:          lapdm.OpConfirm,
					ChanNr:      req.prim.ChanNr,
					RA:          req.prim.RA,
					FrameNumber: d.FrameNumber(),
				})
			}
		}
	}
}

// FrameNumber returns the current TDMA frame number
func (d *Driver) FrameNumber() uint32 {
	return d.frameNumber.Load()
}

// Router returns the channel router
func (d *Driver) Router() *Router {
	return d.router
}

// GetStatistics returns driver statistics
func (d *Driver) GetStatistics() *Statistics {
	return d.stats
}

// GetPhysicalStatistics returns physical channel statistics
func (d *Driver) GetPhysicalStatistics() phy.TransportStats {
	return d.physical.Statistics()
}

// State returns the current driver state
func (d *Driver) State() State {
	d.stateMu.RLock()
	defer d.stateMu.RUnlock()
	return d.state
}

// String returns string representation of driver
func (d *Driver) String() string {
	return fmt.Sprintf("Driver{ID=%s, State=%s, Channels=%d}",
		d.id, d.State(), d.router.Count())
}

var (
	_ lapdm.L1                    = (*Driver)(nil)
	_ phy.ConnectionStateListener = (*Driver)(nil)
)
