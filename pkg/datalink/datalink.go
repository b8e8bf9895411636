package datalink

import (
	"bytes"
	"errors"
	"fmt"

	"avaneesh/lapdm-go/pkg/frame"
	"avaneesh/lapdm-go/pkg/internal/logger"
	"avaneesh/lapdm-go/pkg/segment"
)

// txFrame is an encoded frame waiting for the entity to pull it
type txFrame struct {
	data []byte
	isI  bool
	ns   uint8
}

// timer is the T200 state. The generation changes on every start and
// stop so an expiry scheduled before a restart can be recognised.
type timer struct {
	running bool
	gen     uint32
}

// Datalink implements the acknowledged mode procedures for one SAPI.
// It is not safe for concurrent use; the owning channel serializes calls.
type Datalink struct {
	config    Config
	owner     Owner
	scheduler Scheduler
	logger    logger.Logger
	stats     *Statistics
	label     string

	state      State
	vSend      uint8
	vAck       uint8
	vRecv      uint8
	retransCtr int
	ownBusy    bool
	peerBusy   bool
	seqErrCond bool

	history   history
	sendQueue []*segment.Cursor
	txQueue   []txFrame
	rx        *segment.Reassembler
	t200      timer

	sabmInfo []byte // Contention resolution info of our SABM
	peerSABM []byte // Info field of the SABM that established the link
}

// New creates a datalink in the NULL state
func New(config Config, owner Owner, scheduler Scheduler, log logger.Logger) (*Datalink, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if scheduler == nil {
		scheduler = noopScheduler{}
	}
	if log == nil {
		log = logger.NewNoOpLogger()
	}

	return &Datalink{
		config:    config,
		owner:     owner,
		scheduler: scheduler,
		logger:    log,
		stats:     NewStatistics(),
		label:     fmt.Sprintf("SAPI%d", config.SAPI),
		state:     StateNull,
		rx:        segment.NewReassembler(config.MaxMessageSize),
	}, nil
}

// SetLabel sets the prefix used in log messages
func (dl *Datalink) SetLabel(label string) {
	dl.label = label
}

// SetScheduler replaces the T200 scheduler. A running timer is stopped first.
func (dl *Datalink) SetScheduler(s Scheduler) {
	dl.stopT200()
	if s == nil {
		s = noopScheduler{}
	}
	dl.scheduler = s
}

// Config returns the link configuration
func (dl *Datalink) Config() Config { return dl.config }

// SAPI returns the service access point of the link
func (dl *Datalink) SAPI() uint8 { return dl.config.SAPI }

// State returns the current state
func (dl *Datalink) State() State { return dl.state }

// VSend returns V(S)
func (dl *Datalink) VSend() uint8 { return dl.vSend }

// VAck returns V(A)
func (dl *Datalink) VAck() uint8 { return dl.vAck }

// VRecv returns V(R)
func (dl *Datalink) VRecv() uint8 { return dl.vRecv }

// RetransmissionCount returns the recovery counter
func (dl *Datalink) RetransmissionCount() int { return dl.retransCtr }

// T200Running returns true while the recovery timer runs
func (dl *Datalink) T200Running() bool { return dl.t200.running }

// T200Generation returns the generation of the current timer
func (dl *Datalink) T200Generation() uint32 { return dl.t200.gen }

// Outstanding returns the number of unacknowledged I frames
func (dl *Datalink) Outstanding() int { return int(sub(dl.vSend, dl.vAck)) }

// HistoryInUse reports whether the history slot for ns holds a frame
func (dl *Datalink) HistoryInUse(ns uint8) bool {
	_, ok := dl.history.get(ns)
	return ok
}

// QueuedMessages returns the number of Layer 3 messages not fully sent
func (dl *Datalink) QueuedMessages() int { return len(dl.sendQueue) }

// PeerBusy returns true after RNR from the peer
func (dl *Datalink) PeerBusy() bool { return dl.peerBusy }

// OwnBusy returns true while the local receiver is busy
func (dl *Datalink) OwnBusy() bool { return dl.ownBusy }

// SequenceErrorCondition returns true after a REJ was sent until the
// expected I frame arrives
func (dl *Datalink) SequenceErrorCondition() bool { return dl.seqErrCond }

// Statistics returns the link counters
func (dl *Datalink) Statistics() *Statistics { return dl.stats }

// Reset stops T200 and returns the link to IDLE with all counters and
// buffers cleared
func (dl *Datalink) Reset() {
	dl.stopT200()
	dl.clear()
	dl.setState(StateIdle)
}

// Reconfigure replaces the link parameters and resets the link, as on a
// role change
func (dl *Datalink) Reconfigure(config Config) error {
	if err := config.Validate(); err != nil {
		return err
	}
	dl.stopT200()
	dl.config = config
	dl.rx = segment.NewReassembler(config.MaxMessageSize)
	dl.clear()
	dl.setState(StateIdle)
	return nil
}

// Shutdown returns the link to NULL
func (dl *Datalink) Shutdown() {
	dl.stopT200()
	dl.clear()
	dl.setState(StateNull)
}

// Pending reports whether Dequeue would return a frame
func (dl *Datalink) Pending() bool {
	return len(dl.txQueue) > 0 || dl.canSendI()
}

// Dequeue returns the next encoded frame to transmit. New I frames are
// built here so they carry the current V(R).
func (dl *Datalink) Dequeue() ([]byte, bool) {
	if len(dl.txQueue) > 0 {
		f := dl.txQueue[0]
		dl.txQueue = dl.txQueue[1:]
		dl.stats.incTxFrames()
		return f.data, true
	}

	if !dl.canSendI() {
		return nil, false
	}

	data, err := dl.sendI()
	if err != nil {
		dl.logger.Error("%s: cannot build I frame: %v", dl.label, err)
		return nil, false
	}
	dl.stats.incTxFrames()
	return data, true
}

// Establish sends SABM, optionally carrying a contention resolution
// information field
func (dl *Datalink) Establish(info []byte) error {
	defer dl.kick()
	return dl.establish(info)
}

// SendData queues a Layer 3 message for acknowledged transfer. On an idle
// link it triggers establishment first.
func (dl *Datalink) SendData(msg []byte) error {
	defer dl.kick()

	if len(msg) == 0 {
		return ErrEmptyMessage
	}
	if len(msg) > dl.config.MaxMessageSize {
		return fmt.Errorf("%w: %d octets, max %d", ErrMessageTooLong, len(msg), dl.config.MaxMessageSize)
	}

	switch dl.state {
	case StateNull:
		return ErrInvalidState
	case StateDiscSent:
		return fmt.Errorf("%w: release in progress", ErrNotEstablished)
	}

	buf := make([]byte, len(msg))
	copy(buf, msg)
	dl.sendQueue = append(dl.sendQueue, segment.NewCursor(buf, dl.config.N201))

	if dl.state == StateIdle {
		return dl.establish(nil)
	}
	return nil
}

// Release ends multiple frame operation
func (dl *Datalink) Release(mode ReleaseMode) error {
	defer dl.kick()

	switch dl.state {
	case StateNull:
		return ErrInvalidState
	case StateIdle:
		dl.indicate(IndReleaseConf, nil, nil)
		return nil
	}

	if mode == ReleaseLocalEnd {
		dl.toIdle()
		dl.indicate(IndReleaseConf, nil, nil)
		return nil
	}

	if dl.state == StateDiscSent {
		return nil
	}

	dl.stopT200()
	dl.history.clear()
	dl.txQueue = nil
	dl.sendQueue = nil
	dl.retransCtr = 0
	dl.queueU(frame.TypeDISC, true, true, nil)
	dl.startT200()
	dl.setState(StateDiscSent)
	return nil
}

// Suspend stops multiple frame operation for a handover. Unsent messages
// are kept; a partially transmitted message starts over on resume.
func (dl *Datalink) Suspend() error {
	defer dl.kick()

	if !dl.state.Connected() {
		return fmt.Errorf("%w: suspend in %s", ErrNotEstablished, dl.state)
	}

	dl.stopT200()
	dl.history.clear()
	dl.txQueue = nil
	dl.rx.Reset()
	if len(dl.sendQueue) > 0 {
		dl.sendQueue[0].Rewind()
	}
	dl.setState(StateIdle)
	dl.indicate(IndSuspendConf, nil, nil)
	return nil
}

// Resume re-establishes the link on the new channel after a handover
func (dl *Datalink) Resume(info []byte) error {
	defer dl.kick()

	if dl.state != StateIdle {
		return fmt.Errorf("%w: resume in %s", ErrInvalidState, dl.state)
	}
	return dl.establish(info)
}

// Reconnect re-establishes the link on the old channel after a failed handover
func (dl *Datalink) Reconnect(info []byte) error {
	return dl.Resume(info)
}

// SetOwnBusy enters or leaves the own receiver busy condition
func (dl *Datalink) SetOwnBusy(busy bool) {
	defer dl.kick()

	if dl.ownBusy == busy {
		return
	}
	dl.ownBusy = busy
	if dl.state.Connected() {
		dl.queueS(dl.ackType(), false, false)
	}
}

// OnT200Expiry handles a T200 timeout. Expiries for a generation other
// than the running one are ignored.
func (dl *Datalink) OnT200Expiry(gen uint32) {
	if !dl.t200.running || gen != dl.t200.gen {
		dl.stats.incStaleExpiries()
		return
	}
	dl.t200.running = false
	dl.stats.incT200Expiries()
	defer dl.kick()

	switch dl.state {
	case StateSABMSent:
		if dl.retransCtr >= dl.config.N200EstRel {
			dl.logger.Warn("%s: no UA after %d SABM retransmissions", dl.label, dl.retransCtr)
			dl.fail(ErrT200Expired)
			return
		}
		dl.retransCtr++
		dl.queueU(frame.TypeSABM, true, true, dl.sabmInfo)
		dl.startT200()

	case StateDiscSent:
		if dl.retransCtr >= dl.config.N200EstRel {
			dl.logger.Warn("%s: no response to DISC after %d retransmissions", dl.label, dl.retransCtr)
			dl.toIdle()
			dl.indicate(IndReleaseConf, nil, ErrReleaseFailure)
			return
		}
		dl.retransCtr++
		dl.queueU(frame.TypeDISC, true, true, nil)
		dl.startT200()

	case StateMFEst:
		dl.retransCtr = 1
		dl.setState(StateTimerRecov)
		dl.retransmitOutstanding()

	case StateTimerRecov:
		if dl.retransCtr >= dl.config.N200 {
			dl.logger.Warn("%s: %d outstanding frames unacknowledged after %d attempts",
				dl.label, dl.Outstanding(), dl.retransCtr)
			dl.fail(ErrRecoveryExhausted)
			return
		}
		dl.retransCtr++
		dl.retransmitOutstanding()
	}
}

// Receive processes a decoded frame addressed to this SAPI
func (dl *Datalink) Receive(f *frame.Frame) error {
	if dl.state == StateNull {
		return ErrInvalidState
	}
	defer dl.kick()

	dl.stats.incRxFrames()
	cmd := dl.config.Role.IsCommand(f.CR)

	var err error
	switch f.Type {
	case frame.TypeSABM:
		err = dl.rxSABM(f, cmd)
	case frame.TypeUA:
		err = dl.rxUA(f, cmd)
	case frame.TypeDM:
		err = dl.rxDM(f, cmd)
	case frame.TypeDISC:
		err = dl.rxDISC(f, cmd)
	case frame.TypeI:
		err = dl.rxI(f, cmd)
	case frame.TypeRR, frame.TypeRNR, frame.TypeREJ:
		err = dl.rxS(f, cmd)
	default:
		err = fmt.Errorf("%w: %s frame on %s", ErrIncorrectParameters, f.Type, dl.label)
	}

	if err != nil && !errors.Is(err, ErrSequence) {
		dl.stats.incProtocolErrors()
	}
	return err
}

func (dl *Datalink) rxSABM(f *frame.Frame, cmd bool) error {
	if !cmd {
		return fmt.Errorf("%w: SABM response", ErrIncorrectParameters)
	}

	switch dl.state {
	case StateIdle:
		dl.establishedByPeer(f)

	case StateMFEst, StateTimerRecov:
		if len(f.Info) > 0 && bytes.Equal(f.Info, dl.peerSABM) {
			// Repeated SABM, our UA was lost
			dl.queueU(frame.TypeUA, false, f.PF, f.Info)
			return nil
		}
		dl.logger.Info("%s: link re-established by peer", dl.label)
		dl.establishedByPeer(f)

	case StateSABMSent:
		dl.logger.Debug("%s: SABM collision", dl.label)
		dl.stopT200()
		dl.resetSequence()
		dl.queueU(frame.TypeUA, false, f.PF, f.Info)
		dl.setState(StateMFEst)
		dl.indicate(IndEstablishConf, nil, nil)

	case StateDiscSent:
		dl.queueU(frame.TypeDM, false, f.PF, nil)
	}
	return nil
}

func (dl *Datalink) establishedByPeer(f *frame.Frame) {
	dl.stopT200()
	dl.resetSequence()
	dl.peerSABM = append(dl.peerSABM[:0], f.Info...)
	dl.queueU(frame.TypeUA, false, f.PF, f.Info)
	dl.setState(StateMFEst)
	dl.indicate(IndEstablishInd, f.Info, nil)
}

func (dl *Datalink) rxUA(f *frame.Frame, cmd bool) error {
	if cmd {
		return fmt.Errorf("%w: UA command", ErrIncorrectParameters)
	}

	switch dl.state {
	case StateSABMSent:
		if len(dl.sabmInfo) > 0 && !bytes.Equal(f.Info, dl.sabmInfo) {
			dl.logger.Warn("%s: contention resolution failed", dl.label)
			dl.toIdle()
			dl.indicate(IndReleaseInd, nil, ErrContentionResolution)
			return nil
		}
		dl.stopT200()
		dl.resetSequence()
		dl.setState(StateMFEst)
		dl.indicate(IndEstablishConf, nil, nil)

	case StateDiscSent:
		dl.toIdle()
		dl.indicate(IndReleaseConf, nil, nil)

	default:
		return ErrUnsolicitedUA
	}
	return nil
}

func (dl *Datalink) rxDM(f *frame.Frame, cmd bool) error {
	if cmd {
		return fmt.Errorf("%w: DM command", ErrIncorrectParameters)
	}

	switch dl.state {
	case StateSABMSent:
		if !f.PF {
			return nil
		}
		dl.fail(fmt.Errorf("%w: DM received", ErrEstablishmentFailure))

	case StateDiscSent:
		if !f.PF {
			return nil
		}
		dl.toIdle()
		dl.indicate(IndReleaseConf, nil, nil)

	case StateMFEst, StateTimerRecov:
		dl.fail(ErrUnsolicitedDM)
	}
	return nil
}

func (dl *Datalink) rxDISC(f *frame.Frame, cmd bool) error {
	if !cmd {
		return fmt.Errorf("%w: DISC response", ErrIncorrectParameters)
	}

	switch dl.state {
	case StateIdle, StateSABMSent:
		dl.queueU(frame.TypeDM, false, f.PF, nil)

	case StateMFEst, StateTimerRecov:
		dl.toIdle()
		dl.queueU(frame.TypeUA, false, f.PF, nil)
		dl.indicate(IndReleaseInd, nil, nil)

	case StateDiscSent:
		dl.queueU(frame.TypeUA, false, f.PF, nil)
	}
	return nil
}

func (dl *Datalink) rxI(f *frame.Frame, cmd bool) error {
	if !cmd {
		return fmt.Errorf("%w: I frame response", ErrIncorrectParameters)
	}

	switch dl.state {
	case StateMFEst, StateTimerRecov:
	case StateIdle:
		if f.PF {
			dl.queueU(frame.TypeDM, false, true, nil)
		}
		return fmt.Errorf("%w: I frame in %s", ErrProtocolViolation, dl.state)
	default:
		return nil
	}

	if !dl.validNR(f.NR) {
		return fmt.Errorf("%w: N(R)=%d, V(A)=%d, V(S)=%d", ErrInvalidNR, f.NR, dl.vAck, dl.vSend)
	}
	dl.acknowledge(f.NR)

	if f.NS != dl.vRecv {
		dl.stats.incSequenceErrors()
		if !dl.seqErrCond {
			dl.seqErrCond = true
			dl.queueS(frame.TypeREJ, false, f.PF)
			dl.stats.incRejectsSent()
		} else if f.PF {
			dl.queueS(dl.ackType(), false, true)
		}
		return fmt.Errorf("%w: N(S)=%d, V(R)=%d", ErrSequence, f.NS, dl.vRecv)
	}

	if dl.ownBusy {
		if f.PF {
			dl.queueS(frame.TypeRNR, false, true)
		}
		return nil
	}

	dl.seqErrCond = false
	dl.vRecv = inc(dl.vRecv)
	dl.stats.incRxIFrames()

	msg, err := dl.rx.Add(segment.Segment{More: f.More, Data: f.Info})
	switch {
	case err != nil:
		dl.stats.incBufferOverflows()
		dl.logger.Warn("%s: dropping message: %v", dl.label, err)
	case msg != nil:
		dl.stats.incRxMessages()
		dl.indicate(IndDataInd, msg, nil)
	}

	if f.PF {
		dl.queueS(frame.TypeRR, false, true)
	} else if !dl.canSendI() {
		dl.queueS(frame.TypeRR, false, false)
	}
	return nil
}

func (dl *Datalink) rxS(f *frame.Frame, cmd bool) error {
	switch dl.state {
	case StateMFEst, StateTimerRecov:
	case StateIdle:
		if cmd && f.PF {
			dl.queueU(frame.TypeDM, false, true, nil)
		}
		return nil
	default:
		return nil
	}

	if !dl.validNR(f.NR) {
		return fmt.Errorf("%w: N(R)=%d, V(A)=%d, V(S)=%d", ErrInvalidNR, f.NR, dl.vAck, dl.vSend)
	}

	dl.peerBusy = f.Type == frame.TypeRNR
	if cmd && f.PF {
		dl.queueS(dl.ackType(), false, true)
	}

	recovering := dl.state == StateTimerRecov
	dl.acknowledge(f.NR)

	switch {
	case f.Type == frame.TypeREJ:
		dl.stats.incRejectsReceived()
		if dl.vSend != dl.vAck {
			dl.requeueOutstanding(false)
			dl.startT200()
		}
	case recovering && !cmd && f.PF && f.Type == frame.TypeRR && dl.vSend != dl.vAck:
		// Answer to our poll: send the rest again and continue normally
		dl.requeueOutstanding(false)
		dl.retransCtr = 0
		dl.setState(StateMFEst)
		dl.startT200()
	}
	return nil
}

// establish queues SABM and enters SABM_SENT
func (dl *Datalink) establish(info []byte) error {
	if len(info) > dl.config.N201 {
		return fmt.Errorf("%w: SABM information field of %d octets", ErrMessageTooLong, len(info))
	}

	switch dl.state {
	case StateNull, StateDiscSent:
		return fmt.Errorf("%w: establish in %s", ErrInvalidState, dl.state)
	case StateSABMSent:
		return ErrEstablishmentPending
	case StateMFEst, StateTimerRecov:
		dl.logger.Info("%s: re-establishing link", dl.label)
		dl.stopT200()
		dl.history.clear()
		dl.txQueue = nil
	}

	dl.sabmInfo = append(dl.sabmInfo[:0], info...)
	dl.retransCtr = 0
	dl.queueU(frame.TypeSABM, true, true, dl.sabmInfo)
	dl.startT200()
	dl.setState(StateSABMSent)
	return nil
}

// retransmitOutstanding sends everything outstanding again, or polls when nothing is
func (dl *Datalink) retransmitOutstanding() {
	if dl.vSend != dl.vAck {
		dl.requeueOutstanding(true)
	} else {
		dl.queueS(dl.ackType(), true, true)
	}
	dl.startT200()
}

// requeueOutstanding queues history frames V(A)..V(S)-1 in order with
// their original N(S) and information field
func (dl *Datalink) requeueOutstanding(pollLast bool) {
	dl.dropQueuedI()

	for ns := dl.vAck; ns != dl.vSend; ns = inc(ns) {
		slot, ok := dl.history.get(ns)
		if !ok {
			dl.logger.Error("%s: history slot %d empty while outstanding", dl.label, ns)
			continue
		}
		last := inc(ns) == dl.vSend
		f := frame.NewI(dl.config.SAPI, dl.config.Role.CR(true), ns, dl.vRecv, pollLast && last, slot.more, slot.info)
		data, err := frame.Encode(f)
		if err != nil {
			dl.logger.Error("%s: cannot encode retransmission: %v", dl.label, err)
			continue
		}
		dl.txQueue = append(dl.txQueue, txFrame{data: data, isI: true, ns: ns})
		dl.stats.incRetransmissions()
	}
}

// acknowledge advances V(A) to nr, releasing history slots
func (dl *Datalink) acknowledge(nr uint8) {
	progressed := false
	for dl.vAck != nr {
		dl.history.release(dl.vAck)
		dl.vAck = inc(dl.vAck)
		progressed = true
	}
	if progressed {
		dl.pruneAcked()
	}

	switch {
	case dl.vAck == dl.vSend:
		dl.stopT200()
		if dl.state == StateTimerRecov {
			dl.retransCtr = 0
			dl.setState(StateMFEst)
		}
	case progressed && dl.state == StateMFEst:
		dl.startT200()
	}
}

func (dl *Datalink) validNR(nr uint8) bool {
	return sub(nr, dl.vAck) <= sub(dl.vSend, dl.vAck)
}

func (dl *Datalink) canSendI() bool {
	if dl.state != StateMFEst || dl.peerBusy || len(dl.sendQueue) == 0 {
		return false
	}
	return int(sub(dl.vSend, dl.vAck)) < dl.config.WindowSize
}

// sendI builds the next new I frame from the head of the send queue
func (dl *Datalink) sendI() ([]byte, error) {
	cur := dl.sendQueue[0]
	seg, _ := cur.Next()

	ns := dl.vSend
	f := frame.NewI(dl.config.SAPI, dl.config.Role.CR(true), ns, dl.vRecv, false, seg.More, seg.Data)
	data, err := frame.Encode(f)
	if err != nil {
		return nil, err
	}

	if cur.Done() {
		dl.sendQueue = dl.sendQueue[1:]
		dl.stats.incTxMessages()
	}
	dl.history.store(ns, seg.Data, seg.More)
	dl.vSend = inc(ns)
	dl.stats.incTxIFrames()
	if !dl.t200.running {
		dl.startT200()
	}
	return data, nil
}

// fail drops the link after an establishment or recovery failure
func (dl *Datalink) fail(cause error) {
	dl.stats.incLinkFailures()
	dl.toIdle()
	dl.indicate(IndErrorInd, nil, cause)
	dl.indicate(IndReleaseInd, nil, cause)
}

func (dl *Datalink) toIdle() {
	dl.stopT200()
	dl.clear()
	dl.setState(StateIdle)
}

func (dl *Datalink) clear() {
	dl.resetSequence()
	dl.sendQueue = nil
	dl.sabmInfo = dl.sabmInfo[:0]
	dl.peerSABM = dl.peerSABM[:0]
}

// resetSequence zeroes the state variables and drops in-flight frames
func (dl *Datalink) resetSequence() {
	dl.vSend, dl.vAck, dl.vRecv = 0, 0, 0
	dl.retransCtr = 0
	dl.ownBusy = false
	dl.peerBusy = false
	dl.seqErrCond = false
	dl.history.clear()
	dl.txQueue = nil
	dl.rx.Reset()
	if len(dl.sendQueue) > 0 {
		dl.sendQueue[0].Rewind()
	}
}

func (dl *Datalink) dropQueuedI() {
	kept := dl.txQueue[:0:0]
	for _, f := range dl.txQueue {
		if !f.isI {
			kept = append(kept, f)
		}
	}
	dl.txQueue = kept
}

// pruneAcked removes queued retransmissions the peer has acknowledged meanwhile
func (dl *Datalink) pruneAcked() {
	outstanding := sub(dl.vSend, dl.vAck)
	kept := dl.txQueue[:0:0]
	for _, f := range dl.txQueue {
		if f.isI && sub(f.ns, dl.vAck) >= outstanding {
			continue
		}
		kept = append(kept, f)
	}
	dl.txQueue = kept
}

func (dl *Datalink) ackType() frame.Type {
	if dl.ownBusy {
		return frame.TypeRNR
	}
	return frame.TypeRR
}

func (dl *Datalink) queueS(t frame.Type, command, pf bool) {
	dl.queue(frame.NewS(t, dl.config.SAPI, dl.config.Role.CR(command), dl.vRecv, pf))
}

func (dl *Datalink) queueU(t frame.Type, command, pf bool, info []byte) {
	dl.queue(frame.NewU(t, dl.config.SAPI, dl.config.Role.CR(command), pf, info))
}

func (dl *Datalink) queue(f *frame.Frame) {
	data, err := frame.Encode(f)
	if err != nil {
		dl.logger.Error("%s: cannot encode %s: %v", dl.label, f, err)
		return
	}
	dl.txQueue = append(dl.txQueue, txFrame{data: data})
}

func (dl *Datalink) startT200() {
	dl.t200.gen++
	dl.t200.running = true
	dl.scheduler.StartTimer(dl, dl.t200.gen, dl.config.T200)
}

func (dl *Datalink) stopT200() {
	if !dl.t200.running {
		return
	}
	dl.t200.gen++
	dl.t200.running = false
	dl.scheduler.StopTimer(dl)
}

func (dl *Datalink) setState(s State) {
	if dl.state == s {
		return
	}
	dl.logger.Debug("%s: state %s -> %s", dl.label, dl.state, s)
	dl.state = s
}

func (dl *Datalink) indicate(t IndicationType, payload []byte, err error) {
	if dl.owner == nil {
		return
	}
	var p []byte
	if len(payload) > 0 {
		p = make([]byte, len(payload))
		copy(p, payload)
	}
	dl.owner.Indicate(dl, Indication{Type: t, Payload: p, Err: err})
}

// kick tells the owner there is something to send
func (dl *Datalink) kick() {
	if dl.owner != nil && dl.Pending() {
		dl.owner.FrameReady(dl)
	}
}
