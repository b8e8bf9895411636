package lapdm

import (
	"fmt"

	"avaneesh/lapdm-go/pkg/datalink"
	"avaneesh/lapdm-go/pkg/frame"
	"avaneesh/lapdm-go/pkg/internal/logger"
)

// Transmit sources served round-robin on ready-to-send
const (
	sourceSAPI0 = iota
	sourceSAPI3
	sourceUI
	numSources
)

// fillFrame is the empty UI frame sent when a block has nothing to carry
var fillFrame = []byte{0x01, 0x03, 0x01}

type uiFrame struct {
	sapi uint8
	data []byte
}

// Entity is one LAPDm entity: the SAPI0 and SAPI3 datalinks of a DCCH or
// ACCH plus unacknowledged transfer. All state is guarded by the mutex of
// the owning channel.
type Entity struct {
	ch     *Channel
	name   string
	acch   bool
	mode   frame.Role
	flags  Flags
	stats  *Statistics
	logger logger.Logger

	links [2]*datalink.Datalink
	ui    []uiFrame

	lastTx    int
	txPending bool
	chanNr    uint8

	// SACCH layer 1 header: outbound values and the last one received
	txPower, ta   uint8
	rxPower, rxTA uint8
}

func newEntity(ch *Channel, name string, acch bool) (*Entity, error) {
	e := &Entity{
		ch:     ch,
		name:   name,
		acch:   acch,
		mode:   ch.mode,
		flags:  ch.config.Flags,
		stats:  NewStatistics(),
		logger: ch.logger,
		lastTx: sourceUI,
	}

	for i, sapi := range []uint8{frame.SAPI0, frame.SAPI3} {
		dl, err := datalink.New(ch.linkConfig(ch.mode, sapi, acch), e, ch.config.Scheduler, ch.logger)
		if err != nil {
			return nil, fmt.Errorf("%s SAPI%d: %w", name, sapi, err)
		}
		dl.SetLabel(fmt.Sprintf("%s/%s SAPI%d", ch.name, name, sapi))
		dl.Reset()
		e.links[i] = dl
	}
	return e, nil
}

// Name returns "DCCH" or "ACCH"
func (e *Entity) Name() string { return e.name }

// IsACCH reports whether this is the associated control channel entity
func (e *Entity) IsACCH() bool { return e.acch }

// Channel returns the channel the entity belongs to
func (e *Entity) Channel() *Channel { return e.ch }

// Statistics returns the entity counters
func (e *Entity) Statistics() *Statistics { return e.stats }

// Mode returns the entity role
func (e *Entity) Mode() frame.Role {
	e.ch.mu.Lock()
	defer e.ch.mu.Unlock()
	return e.mode
}

// Flags returns the entity flags
func (e *Entity) Flags() Flags {
	e.ch.mu.Lock()
	defer e.ch.mu.Unlock()
	return e.flags
}

// State returns the state of the datalink for sapi
func (e *Entity) State(sapi uint8) (datalink.State, error) {
	e.ch.mu.Lock()
	defer e.ch.mu.Unlock()

	dl, err := e.link(sapi)
	if err != nil {
		return datalink.StateNull, err
	}
	return dl.State(), nil
}

// Datalink returns the datalink for sapi. The datalink must only be used
// while no other goroutine drives the channel.
func (e *Entity) Datalink(sapi uint8) (*datalink.Datalink, error) {
	return e.link(sapi)
}

// TxPending reports whether a frame was pushed to Layer 1 since the last
// ready-to-send
func (e *Entity) TxPending() bool {
	e.ch.mu.Lock()
	defer e.ch.mu.Unlock()
	return e.txPending
}

// SetSACCHHeader sets the MS power level and timing advance prepended to
// frames sent on the ACCH
func (e *Entity) SetSACCHHeader(txPower, ta uint8) {
	e.ch.mu.Lock()
	defer e.ch.mu.Unlock()
	e.txPower, e.ta = txPower, ta
}

// SetReceiverBusy sets or clears the own receiver busy condition of sapi
func (e *Entity) SetReceiverBusy(sapi uint8, busy bool) error {
	return e.ch.do(func() error {
		dl, err := e.link(sapi)
		if err != nil {
			return err
		}
		dl.SetOwnBusy(busy)
		return nil
	})
}

// PhSapUp is the input from Layer 1
func (e *Entity) PhSapUp(p *Primitive) error {
	return e.ch.do(func() error {
		return e.phSapUp(p)
	})
}

// DequeuePrimitive returns the next PH-DATA.req for a Layer 1 that polls
// instead of issuing ready-to-send
func (e *Entity) DequeuePrimitive() (*Primitive, bool) {
	e.ch.mu.Lock()
	defer e.ch.mu.Unlock()
	return e.dequeue()
}

func (e *Entity) link(sapi uint8) (*datalink.Datalink, error) {
	switch sapi {
	case frame.SAPI0:
		return e.links[0], nil
	case frame.SAPI3:
		return e.links[1], nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownSAPI, sapi)
	}
}

func (e *Entity) linkID(sapi uint8) uint8 {
	if e.acch {
		return sapi | LinkIDSACCH
	}
	return sapi
}

// frameSize is the octets left for LAPDm after the layer 1 header
func (e *Entity) frameSize() int {
	if e.acch {
		return frame.FrameSize - frame.SACCHL1Size
	}
	return frame.FrameSize
}

func isBbis(chanNr uint8) bool {
	cbits := chanNr >> 3
	return cbits == CbitsBCCH || cbits == CbitsPCHAGCH
}

// FrameReady implements datalink.Owner
func (e *Entity) FrameReady(dl *datalink.Datalink) {
	e.push()
}

// Indicate implements datalink.Owner
func (e *Entity) Indicate(dl *datalink.Datalink, ind datalink.Indication) {
	msg := &Message{
		Type:    indicationMessage(ind.Type),
		ChanNr:  e.chanNr,
		LinkID:  e.linkID(dl.SAPI()),
		Payload: ind.Payload,
		Err:     ind.Err,
	}
	if e.acch {
		msg.TxPower, msg.TimingAdvance = e.rxPower, e.rxTA
	}
	if ind.Err != nil {
		e.logger.Warn("%s/%s SAPI%d: %s: %v", e.ch.name, e.name, dl.SAPI(), msg.Type, ind.Err)
	}
	e.toL3(msg)
}

func (e *Entity) phSapUp(p *Primitive) error {
	switch {
	case p.Type == PrimData && p.Op == OpIndication:
		return e.phDataInd(p)
	case p.Type == PrimRTS && p.Op == OpIndication:
		e.phRTSInd(p)
		return nil
	case p.Type == PrimRACH && p.Op == OpIndication:
		e.toL3(&Message{
			Type:        MsgChanRqd,
			ChanNr:      p.ChanNr,
			RA:          p.RA,
			AccessDelay: p.AccessDelay,
			FrameNumber: p.FrameNumber,
		})
		return nil
	case p.Type == PrimRACH && p.Op == OpConfirm:
		e.toL3(&Message{Type: MsgRandomAccessConf, ChanNr: p.ChanNr, RA: p.RA, FrameNumber: p.FrameNumber})
		return nil
	case p.Type == PrimConn && p.Op == OpIndication:
		e.toL3(&Message{Type: MsgConnectInd, ChanNr: p.ChanNr, FrameNumber: p.FrameNumber})
		return nil
	default:
		e.logger.Warn("%s/%s: unhandled primitive %s", e.ch.name, e.name, p)
		return fmt.Errorf("%w: %s.%s", ErrUnknownPrimitive, p.Type, p.Op)
	}
}

func (e *Entity) phDataInd(p *Primitive) error {
	e.stats.incFramesRx()
	if p.ChanNr != 0 {
		e.chanNr = p.ChanNr
	}
	if logger.FrameDebug() {
		logger.DumpFrame(e.logger, fmt.Sprintf("%s/%s rx", e.ch.name, e.name), p.Data)
	}

	if isBbis(p.ChanNr) {
		if _, err := frame.Decode(p.Data, frame.Context{Format: frame.FormatBbis, N201: frame.N201Bbis}); err != nil {
			e.stats.incMalformed()
			return err
		}
		e.stats.incUIRx()
		e.toL3(&Message{
			Type:    MsgUnitDataInd,
			ChanNr:  p.ChanNr,
			LinkID:  p.LinkID,
			Payload: append([]byte(nil), p.Data...),
		})
		return nil
	}

	data := p.Data
	if e.acch {
		if len(data) < frame.SACCHL1Size {
			e.stats.incMalformed()
			return fmt.Errorf("%w: SACCH block of %d octets", frame.ErrMalformedFrame, len(data))
		}
		e.rxPower, e.rxTA = data[0], data[1]
		data = data[frame.SACCHL1Size:]
	}

	f, err := frame.Decode(data, e.decodeContext(data))
	if err != nil {
		e.stats.incMalformed()
		e.logger.Debug("%s/%s: discarding frame: %v", e.ch.name, e.name, err)
		return err
	}

	if f.Type == frame.TypeUI {
		if len(f.Info) == 0 {
			return nil
		}
		e.stats.incUIRx()
		msg := &Message{
			Type:    MsgUnitDataInd,
			ChanNr:  e.chanNr,
			LinkID:  e.linkID(f.SAPI),
			Payload: f.Info,
		}
		if e.acch {
			msg.TxPower, msg.TimingAdvance = e.rxPower, e.rxTA
		}
		e.toL3(msg)
		return nil
	}

	dl, err := e.link(f.SAPI)
	if err != nil {
		e.stats.incUnknownSAPI()
		e.logger.Debug("%s/%s: discarding %s", e.ch.name, e.name, f)
		return err
	}
	return dl.Receive(f)
}

// decodeContext selects the frame format. UI frames sent by the network on
// the SACCH have no length octet.
func (e *Entity) decodeContext(data []byte) frame.Context {
	if !e.acch {
		return frame.Context{Format: frame.FormatB, N201: frame.N201DCCH}
	}
	if e.mode == frame.RoleMS && len(data) >= 2 && isUI(data[1]) {
		return frame.Context{Format: frame.FormatB4, N201: frame.N201SACCHB4}
	}
	return frame.Context{Format: frame.FormatB, N201: frame.N201SACCH}
}

func isUI(ctrl uint8) bool {
	return ctrl&0x03 == 0x03 && ctrl&0xec == 0
}

func (e *Entity) phRTSInd(p *Primitive) {
	e.stats.incRTS()
	e.txPending = false
	if p.ChanNr != 0 {
		e.chanNr = p.ChanNr
	}

	if prim, ok := e.dequeue(); ok {
		e.toL1(prim)
		return
	}

	if e.flags&FlagEmptyFrame != 0 {
		e.stats.incEmptyFrames()
		e.toL1(&Primitive{Type: PrimEmptyFrame, Op: OpRequest, ChanNr: e.chanNr, LinkID: e.linkID(frame.SAPI0)})
		return
	}

	e.stats.incFillFrames()
	e.stats.incFramesTx()
	e.toL1(e.dataRequest(frame.SAPI0, fillFrame))
}

// push hands the next frame to Layer 1 without waiting for ready-to-send
func (e *Entity) push() {
	if e.txPending || e.flags&FlagPollingOnly != 0 {
		return
	}
	p, ok := e.dequeue()
	if !ok {
		return
	}
	e.txPending = true
	e.stats.incPushedFrames()
	e.toL1(p)
}

// dequeue takes one frame, serving the sources round-robin starting after
// the one served last
func (e *Entity) dequeue() (*Primitive, bool) {
	for i := 1; i <= numSources; i++ {
		src := (e.lastTx + i) % numSources

		var (
			sapi uint8
			data []byte
			ok   bool
		)
		switch src {
		case sourceUI:
			if len(e.ui) > 0 {
				sapi, data, ok = e.ui[0].sapi, e.ui[0].data, true
				e.ui = e.ui[1:]
				e.stats.incUITx()
			}
		default:
			dl := e.links[src]
			sapi = dl.SAPI()
			data, ok = dl.Dequeue()
		}
		if !ok {
			continue
		}

		e.lastTx = src
		e.stats.incFramesTx()
		return e.dataRequest(sapi, data), true
	}
	return nil, false
}

// dataRequest pads a frame to the block size and wraps it in PH-DATA.req
func (e *Entity) dataRequest(sapi uint8, data []byte) *Primitive {
	padded := frame.Pad(data, e.frameSize())
	if e.acch {
		block := make([]byte, 0, frame.FrameSize)
		block = append(block, e.txPower, e.ta)
		padded = append(block, padded...)
	}
	return NewDataRequest(e.chanNr, e.linkID(sapi), padded)
}

// rslmsRecv handles a Layer 3 request addressed to this entity
func (e *Entity) rslmsRecv(msg *Message) error {
	// A random access goes out on the RACH, not on this channel
	if msg.Type == MsgRandomAccessReq {
		e.toL1(&Primitive{
			Type:         PrimRACH,
			Op:           OpRequest,
			ChanNr:       msg.ChanNr,
			RA:           msg.RA,
			TA:           msg.TimingAdvance,
			TxPower:      msg.TxPower,
			CombinedCCCH: msg.CombinedCCCH,
			Offset:       msg.Offset,
		})
		return nil
	}

	if msg.ChanNr != 0 {
		e.chanNr = msg.ChanNr
	}
	if msg.Type == MsgUnitDataReq {
		return e.sendUnitData(msg)
	}

	dl, err := e.link(msg.SAPI())
	if err != nil {
		return err
	}

	switch msg.Type {
	case MsgDataReq:
		return dl.SendData(msg.Payload)
	case MsgEstablishReq:
		return dl.Establish(msg.Payload)
	case MsgSuspendReq:
		return dl.Suspend()
	case MsgResumeReq:
		return dl.Resume(msg.Payload)
	case MsgReconnectReq:
		return dl.Reconnect(msg.Payload)
	case MsgReleaseReq:
		return dl.Release(msg.ReleaseMode)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownMessage, msg.Type)
	}
}

func (e *Entity) sendUnitData(msg *Message) error {
	sapi := msg.SAPI()
	if sapi != frame.SAPI0 && sapi != frame.SAPI3 {
		return fmt.Errorf("%w: %d", ErrUnknownSAPI, sapi)
	}

	f := frame.NewU(frame.TypeUI, sapi, e.mode.CR(true), false, msg.Payload)
	n201 := frame.N201DCCH
	switch {
	case isBbis(e.chanNr):
		f.Format, n201 = frame.FormatBbis, frame.N201Bbis
	case e.acch && e.mode == frame.RoleBTS:
		f.Format, n201 = frame.FormatB4, frame.N201SACCHB4
	case e.acch:
		n201 = frame.N201SACCH
	}
	if len(msg.Payload) > n201 {
		return fmt.Errorf("%w: %d octets, N201 %d", ErrMessageTooLong, len(msg.Payload), n201)
	}

	data, err := frame.Encode(f)
	if err != nil {
		return err
	}
	e.ui = append(e.ui, uiFrame{sapi: sapi, data: data})
	e.push()
	return nil
}

// modeConfigs builds and validates the link configurations for mode
func (e *Entity) modeConfigs(mode frame.Role) ([]datalink.Config, error) {
	configs := make([]datalink.Config, len(e.links))
	for i, sapi := range []uint8{frame.SAPI0, frame.SAPI3} {
		configs[i] = e.ch.linkConfig(mode, sapi, e.acch)
		if err := configs[i].Validate(); err != nil {
			return nil, err
		}
	}
	return configs, nil
}

// setMode applies configurations returned by modeConfigs
func (e *Entity) setMode(mode frame.Role, configs []datalink.Config) error {
	for i, cfg := range configs {
		if err := e.links[i].Reconfigure(cfg); err != nil {
			return err
		}
	}
	e.mode = mode
	e.clearTx()
	return nil
}

func (e *Entity) reset() {
	for _, dl := range e.links {
		dl.Reset()
	}
	e.clearTx()
}

func (e *Entity) exit() {
	for _, dl := range e.links {
		dl.Shutdown()
	}
	e.clearTx()
}

func (e *Entity) clearTx() {
	e.ui = nil
	e.txPending = false
	e.lastTx = sourceUI
}

func (e *Entity) toL1(p *Primitive) {
	if p.Type == PrimData && logger.FrameDebug() {
		logger.DumpFrame(e.logger, fmt.Sprintf("%s/%s tx", e.ch.name, e.name), p.Data)
	}
	e.ch.outbox = append(e.ch.outbox, delivery{entity: e, prim: p})
}

func (e *Entity) toL3(msg *Message) {
	e.ch.outbox = append(e.ch.outbox, delivery{entity: e, msg: msg})
}
