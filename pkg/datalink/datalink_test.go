package datalink

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"avaneesh/lapdm-go/pkg/frame"
)

// The link under test is the BTS side; peer frames come from an MS
const peer = frame.RoleMS

type fakeOwner struct {
	ready int
	inds  []Indication
}

func (o *fakeOwner) FrameReady(dl *Datalink) { o.ready++ }

func (o *fakeOwner) Indicate(dl *Datalink, ind Indication) { o.inds = append(o.inds, ind) }

func (o *fakeOwner) last() Indication {
	if len(o.inds) == 0 {
		return Indication{Type: -1}
	}
	return o.inds[len(o.inds)-1]
}

func (o *fakeOwner) count(t IndicationType) int {
	n := 0
	for _, ind := range o.inds {
		if ind.Type == t {
			n++
		}
	}
	return n
}

type fakeScheduler struct {
	gen     uint32
	running bool
	starts  int
	last    time.Duration
}

func (s *fakeScheduler) StartTimer(dl *Datalink, gen uint32, d time.Duration) {
	s.gen = gen
	s.running = true
	s.starts++
	s.last = d
}

func (s *fakeScheduler) StopTimer(dl *Datalink) { s.running = false }

func newTestLink(t *testing.T, mutate func(*Config)) (*Datalink, *fakeOwner, *fakeScheduler) {
	t.Helper()
	cfg := DefaultConfig(frame.RoleBTS, frame.SAPI0, false)
	if mutate != nil {
		mutate(&cfg)
	}
	owner := &fakeOwner{}
	sched := &fakeScheduler{}
	dl, err := New(cfg, owner, sched, nil)
	require.NoError(t, err)
	require.Equal(t, StateNull, dl.State())
	dl.Reset()
	return dl, owner, sched
}

func drain(t *testing.T, dl *Datalink) []*frame.Frame {
	t.Helper()
	var out []*frame.Frame
	for {
		data, ok := dl.Dequeue()
		if !ok {
			return out
		}
		f, err := frame.Decode(data, frame.Context{Format: frame.FormatB, N201: dl.Config().N201})
		require.NoError(t, err)
		out = append(out, f)
	}
}

func peerCmd(t frame.Type, pf bool, info []byte) *frame.Frame {
	return frame.NewU(t, frame.SAPI0, peer.CR(true), pf, info)
}

func peerResp(t frame.Type, pf bool, info []byte) *frame.Frame {
	return frame.NewU(t, frame.SAPI0, peer.CR(false), pf, info)
}

func peerI(ns, nr uint8, p, more bool, info []byte) *frame.Frame {
	return frame.NewI(frame.SAPI0, peer.CR(true), ns, nr, p, more, info)
}

func peerS(t frame.Type, command bool, nr uint8, pf bool) *frame.Frame {
	return frame.NewS(t, frame.SAPI0, peer.CR(command), nr, pf)
}

func establish(t *testing.T, dl *Datalink) {
	t.Helper()
	require.NoError(t, dl.Establish(nil))
	frames := drain(t, dl)
	require.Len(t, frames, 1)
	require.Equal(t, frame.TypeSABM, frames[0].Type)
	require.NoError(t, dl.Receive(peerResp(frame.TypeUA, true, nil)))
	require.Equal(t, StateMFEst, dl.State())
}

func TestDefaultConfig_Roles(t *testing.T) {
	assert.Equal(t, 220*time.Millisecond, DefaultConfig(frame.RoleBTS, 0, false).T200)
	assert.Equal(t, 900*time.Millisecond, DefaultConfig(frame.RoleBTS, 0, true).T200)
	assert.Equal(t, time.Second, DefaultConfig(frame.RoleMS, 0, false).T200)
	assert.Equal(t, 2*time.Second, DefaultConfig(frame.RoleMS, 3, true).T200)

	acch := DefaultConfig(frame.RoleMS, 0, true)
	assert.Equal(t, frame.N201SACCH, acch.N201)
	assert.NoError(t, acch.Validate())

	bad := acch
	bad.WindowSize = 8
	assert.ErrorIs(t, bad.Validate(), ErrInvalidConfig)
	bad = acch
	bad.N201 = 21
	assert.ErrorIs(t, bad.Validate(), ErrInvalidConfig)
}

func TestDatalink_ScenarioA_DataTriggersEstablishment(t *testing.T) {
	dl, owner, sched := newTestLink(t, nil)

	msg := []byte{0x05, 0x08, 0x70}
	require.NoError(t, dl.SendData(msg))

	frames := drain(t, dl)
	require.Len(t, frames, 1)
	assert.Equal(t, frame.TypeSABM, frames[0].Type)
	assert.True(t, frames[0].PF)
	assert.True(t, frames[0].CR, "BTS commands carry C/R=1")
	assert.Equal(t, StateSABMSent, dl.State())
	assert.True(t, dl.T200Running())
	assert.Equal(t, 220*time.Millisecond, sched.last)
	assert.Greater(t, owner.ready, 0)

	require.NoError(t, dl.Receive(peerResp(frame.TypeUA, true, nil)))
	assert.Equal(t, StateMFEst, dl.State())
	assert.Equal(t, IndEstablishConf, owner.last().Type)
	assert.False(t, dl.T200Running())

	frames = drain(t, dl)
	require.Len(t, frames, 1)
	assert.Equal(t, frame.TypeI, frames[0].Type)
	assert.Equal(t, uint8(0), frames[0].NS)
	assert.Equal(t, msg, frames[0].Info)
	assert.Equal(t, uint8(1), dl.VSend())
	assert.True(t, dl.T200Running())
}

func TestDatalink_ScenarioB_RecoveryRetransmitsInOrder(t *testing.T) {
	dl, _, sched := newTestLink(t, func(c *Config) { c.WindowSize = 7 })
	establish(t, dl)

	msgs := [][]byte{{0x10, 0x11}, {0x20, 0x21, 0x22}, {0x30}}
	for _, m := range msgs {
		require.NoError(t, dl.SendData(m))
	}
	sent := drain(t, dl)
	require.Len(t, sent, 3)

	require.NoError(t, dl.Receive(peerS(frame.TypeRR, false, 1, false)))
	require.Equal(t, uint8(3), dl.VSend())
	require.Equal(t, uint8(1), dl.VAck())
	assert.False(t, dl.HistoryInUse(0))

	dl.OnT200Expiry(sched.gen)

	assert.Equal(t, StateTimerRecov, dl.State())
	assert.Equal(t, 1, dl.RetransmissionCount())
	assert.True(t, dl.T200Running())

	resent := drain(t, dl)
	require.Len(t, resent, 2)
	for i, f := range resent {
		orig := sent[i+1]
		assert.Equal(t, frame.TypeI, f.Type)
		assert.Equal(t, orig.NS, f.NS)
		assert.Equal(t, orig.Info, f.Info)
		assert.Equal(t, orig.More, f.More)
	}
	assert.False(t, resent[0].PF)
	assert.True(t, resent[1].PF, "last retransmission polls the peer")
	assert.Equal(t, uint64(2), dl.Statistics().GetRetransmissions())

	// Acknowledging everything ends recovery
	require.NoError(t, dl.Receive(peerS(frame.TypeRR, false, 3, true)))
	assert.Equal(t, StateMFEst, dl.State())
	assert.Equal(t, 0, dl.RetransmissionCount())
	assert.False(t, dl.T200Running())
}

func TestDatalink_ScenarioC_SequenceError(t *testing.T) {
	dl, owner, _ := newTestLink(t, nil)
	establish(t, dl)

	err := dl.Receive(peerI(2, 0, false, false, []byte{0x01}))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSequence))
	assert.Equal(t, uint8(0), dl.VRecv())
	assert.True(t, dl.SequenceErrorCondition())
	assert.Equal(t, uint64(1), dl.Statistics().GetSequenceErrors())
	assert.Equal(t, 0, owner.count(IndDataInd))

	frames := drain(t, dl)
	require.Len(t, frames, 1)
	assert.Equal(t, frame.TypeREJ, frames[0].Type)
	assert.Equal(t, uint8(0), frames[0].NR)

	// Only one REJ per error condition
	err = dl.Receive(peerI(3, 0, false, false, []byte{0x02}))
	assert.ErrorIs(t, err, ErrSequence)
	assert.Empty(t, drain(t, dl))

	require.NoError(t, dl.Receive(peerI(0, 0, false, false, []byte{0x03})))
	assert.False(t, dl.SequenceErrorCondition())
	assert.Equal(t, uint8(1), dl.VRecv())
	assert.Equal(t, []byte{0x03}, owner.last().Payload)
}

func TestDatalink_ScenarioD_RecoveryExhausted(t *testing.T) {
	dl, owner, sched := newTestLink(t, func(c *Config) { c.N200 = 3 })
	establish(t, dl)

	require.NoError(t, dl.SendData([]byte{0xaa, 0xbb}))
	require.Len(t, drain(t, dl), 1)

	for i := 1; i <= 3; i++ {
		dl.OnT200Expiry(sched.gen)
		require.Equal(t, StateTimerRecov, dl.State())
		require.Equal(t, i, dl.RetransmissionCount())
		resent := drain(t, dl)
		require.Len(t, resent, 1)
		assert.Equal(t, []byte{0xaa, 0xbb}, resent[0].Info)
	}

	dl.OnT200Expiry(sched.gen)

	assert.Equal(t, StateIdle, dl.State())
	assert.False(t, dl.T200Running())
	assert.Equal(t, 0, dl.Outstanding())
	require.GreaterOrEqual(t, len(owner.inds), 2)
	errInd := owner.inds[len(owner.inds)-2]
	assert.Equal(t, IndErrorInd, errInd.Type)
	assert.ErrorIs(t, errInd.Err, ErrRecoveryExhausted)
	assert.Equal(t, IndReleaseInd, owner.last().Type)
	assert.Equal(t, uint64(1), dl.Statistics().GetLinkFailures())
}

func TestDatalink_EstablishmentFailure(t *testing.T) {
	dl, owner, sched := newTestLink(t, func(c *Config) { c.N200EstRel = 2 })

	require.NoError(t, dl.Establish(nil))
	assert.ErrorIs(t, dl.Establish(nil), ErrEstablishmentPending)

	for i := 0; i < 2; i++ {
		dl.OnT200Expiry(sched.gen)
		require.Equal(t, StateSABMSent, dl.State())
	}
	// Initial SABM and two retransmissions
	assert.Len(t, drain(t, dl), 3)

	dl.OnT200Expiry(sched.gen)
	assert.Equal(t, StateIdle, dl.State())
	assert.Equal(t, 1, owner.count(IndErrorInd))
	assert.ErrorIs(t, owner.inds[0].Err, ErrEstablishmentFailure)
	assert.Equal(t, IndReleaseInd, owner.last().Type)
}

func TestDatalink_DMRefusesEstablishment(t *testing.T) {
	dl, owner, _ := newTestLink(t, nil)
	require.NoError(t, dl.SendData([]byte{0x01}))
	drain(t, dl)

	// DM without F is ignored while waiting for UA
	require.NoError(t, dl.Receive(peerResp(frame.TypeDM, false, nil)))
	assert.Equal(t, StateSABMSent, dl.State())

	require.NoError(t, dl.Receive(peerResp(frame.TypeDM, true, nil)))
	assert.Equal(t, StateIdle, dl.State())
	assert.Equal(t, 0, dl.QueuedMessages())
	assert.ErrorIs(t, owner.last().Err, ErrEstablishmentFailure)
}

func TestDatalink_ContentionResolution(t *testing.T) {
	info := []byte{0x06, 0x27, 0x07, 0x03}

	t.Run("matching UA", func(t *testing.T) {
		dl, owner, _ := newTestLink(t, nil)
		require.NoError(t, dl.Establish(info))
		frames := drain(t, dl)
		require.Len(t, frames, 1)
		assert.Equal(t, info, frames[0].Info)

		require.NoError(t, dl.Receive(peerResp(frame.TypeUA, true, info)))
		assert.Equal(t, StateMFEst, dl.State())
		assert.Equal(t, IndEstablishConf, owner.last().Type)
	})

	t.Run("mismatching UA", func(t *testing.T) {
		dl, owner, _ := newTestLink(t, nil)
		require.NoError(t, dl.Establish(info))
		drain(t, dl)

		require.NoError(t, dl.Receive(peerResp(frame.TypeUA, true, []byte{0x06, 0x27, 0x07, 0x04})))
		assert.Equal(t, StateIdle, dl.State())
		assert.Equal(t, IndReleaseInd, owner.last().Type)
		assert.ErrorIs(t, owner.last().Err, ErrContentionResolution)
		assert.False(t, dl.T200Running())
	})
}

func TestDatalink_PeerEstablishment(t *testing.T) {
	dl, owner, _ := newTestLink(t, nil)
	info := []byte{0x06, 0x27, 0x07}

	require.NoError(t, dl.Receive(peerCmd(frame.TypeSABM, true, info)))
	assert.Equal(t, StateMFEst, dl.State())
	assert.Equal(t, IndEstablishInd, owner.last().Type)
	assert.Equal(t, info, owner.last().Payload)

	frames := drain(t, dl)
	require.Len(t, frames, 1)
	assert.Equal(t, frame.TypeUA, frames[0].Type)
	assert.Equal(t, info, frames[0].Info)
	assert.True(t, frames[0].PF)
	assert.False(t, frames[0].CR, "BTS responses carry C/R=0")

	// The same SABM again only repeats the UA
	require.NoError(t, dl.Receive(peerCmd(frame.TypeSABM, true, info)))
	assert.Equal(t, 1, owner.count(IndEstablishInd))
	frames = drain(t, dl)
	require.Len(t, frames, 1)
	assert.Equal(t, frame.TypeUA, frames[0].Type)

	// SABM given as a response is rejected
	err := dl.Receive(peerResp(frame.TypeSABM, true, nil))
	assert.ErrorIs(t, err, ErrProtocolViolation)
}

func TestDatalink_SABMCollision(t *testing.T) {
	dl, owner, _ := newTestLink(t, nil)
	require.NoError(t, dl.Establish(nil))

	require.NoError(t, dl.Receive(peerCmd(frame.TypeSABM, true, nil)))
	assert.Equal(t, StateMFEst, dl.State())
	assert.Equal(t, IndEstablishConf, owner.last().Type)
	assert.False(t, dl.T200Running())

	frames := drain(t, dl)
	require.Len(t, frames, 1)
	assert.Equal(t, frame.TypeUA, frames[0].Type)
}

func TestDatalink_Release(t *testing.T) {
	t.Run("normal", func(t *testing.T) {
		dl, owner, _ := newTestLink(t, nil)
		establish(t, dl)

		require.NoError(t, dl.Release(ReleaseNormal))
		assert.Equal(t, StateDiscSent, dl.State())
		frames := drain(t, dl)
		require.Len(t, frames, 1)
		assert.Equal(t, frame.TypeDISC, frames[0].Type)
		assert.ErrorIs(t, dl.SendData([]byte{1}), ErrNotEstablished)

		require.NoError(t, dl.Receive(peerResp(frame.TypeUA, true, nil)))
		assert.Equal(t, StateIdle, dl.State())
		assert.Equal(t, IndReleaseConf, owner.last().Type)
		assert.NoError(t, owner.last().Err)
	})

	t.Run("DM answers DISC", func(t *testing.T) {
		dl, owner, _ := newTestLink(t, nil)
		establish(t, dl)
		require.NoError(t, dl.Release(ReleaseNormal))
		require.NoError(t, dl.Receive(peerResp(frame.TypeDM, true, nil)))
		assert.Equal(t, StateIdle, dl.State())
		assert.Equal(t, IndReleaseConf, owner.last().Type)
	})

	t.Run("unanswered", func(t *testing.T) {
		dl, owner, sched := newTestLink(t, func(c *Config) { c.N200EstRel = 1 })
		establish(t, dl)
		require.NoError(t, dl.Release(ReleaseNormal))

		dl.OnT200Expiry(sched.gen)
		assert.Equal(t, StateDiscSent, dl.State())
		dl.OnT200Expiry(sched.gen)

		assert.Equal(t, StateIdle, dl.State())
		assert.Equal(t, IndReleaseConf, owner.last().Type)
		assert.ErrorIs(t, owner.last().Err, ErrReleaseFailure)
	})

	t.Run("local end", func(t *testing.T) {
		dl, owner, _ := newTestLink(t, nil)
		establish(t, dl)
		require.NoError(t, dl.SendData([]byte{1, 2, 3}))
		drain(t, dl)

		require.NoError(t, dl.Release(ReleaseLocalEnd))
		assert.Equal(t, StateIdle, dl.State())
		assert.False(t, dl.T200Running())
		assert.Empty(t, drain(t, dl))
		assert.Equal(t, IndReleaseConf, owner.last().Type)
	})

	t.Run("idle", func(t *testing.T) {
		dl, owner, _ := newTestLink(t, nil)
		require.NoError(t, dl.Release(ReleaseNormal))
		assert.Equal(t, IndReleaseConf, owner.last().Type)
		assert.Empty(t, drain(t, dl))
	})
}

func TestDatalink_PeerDisconnect(t *testing.T) {
	dl, owner, _ := newTestLink(t, nil)

	require.NoError(t, dl.Receive(peerCmd(frame.TypeDISC, true, nil)))
	frames := drain(t, dl)
	require.Len(t, frames, 1)
	assert.Equal(t, frame.TypeDM, frames[0].Type)
	assert.True(t, frames[0].PF)

	establish(t, dl)
	require.NoError(t, dl.SendData([]byte{9}))
	drain(t, dl)

	require.NoError(t, dl.Receive(peerCmd(frame.TypeDISC, true, nil)))
	assert.Equal(t, StateIdle, dl.State())
	assert.False(t, dl.T200Running())
	assert.Equal(t, IndReleaseInd, owner.last().Type)
	frames = drain(t, dl)
	require.Len(t, frames, 1)
	assert.Equal(t, frame.TypeUA, frames[0].Type)
}

func TestDatalink_DuplicateNotRedelivered(t *testing.T) {
	dl, owner, _ := newTestLink(t, nil)
	establish(t, dl)

	require.NoError(t, dl.Receive(peerI(0, 0, false, false, []byte("abc"))))
	assert.Equal(t, 1, owner.count(IndDataInd))
	assert.Equal(t, uint8(1), dl.VRecv())
	frames := drain(t, dl)
	require.Len(t, frames, 1)
	assert.Equal(t, frame.TypeRR, frames[0].Type)
	assert.Equal(t, uint8(1), frames[0].NR)

	err := dl.Receive(peerI(0, 0, true, false, []byte("abc")))
	assert.ErrorIs(t, err, ErrSequence)
	assert.Equal(t, 1, owner.count(IndDataInd))
	assert.Equal(t, uint8(1), dl.VRecv())
}

func TestDatalink_Reassembly(t *testing.T) {
	dl, owner, _ := newTestLink(t, nil)
	establish(t, dl)

	first := bytes.Repeat([]byte{0x11}, frame.N201DCCH)
	require.NoError(t, dl.Receive(peerI(0, 0, false, true, first)))
	assert.Equal(t, 0, owner.count(IndDataInd))

	require.NoError(t, dl.Receive(peerI(1, 0, false, false, []byte{0x22, 0x33})))
	require.Equal(t, 1, owner.count(IndDataInd))
	got := owner.last().Payload
	assert.Len(t, got, frame.N201DCCH+2)
	assert.Equal(t, first, got[:frame.N201DCCH])
}

func TestDatalink_Segmentation(t *testing.T) {
	dl, _, _ := newTestLink(t, func(c *Config) { c.WindowSize = 3 })
	establish(t, dl)

	msg := make([]byte, 45)
	for i := range msg {
		msg[i] = byte(i)
	}
	require.NoError(t, dl.SendData(msg))

	frames := drain(t, dl)
	require.Len(t, frames, 3)
	var joined []byte
	for i, f := range frames {
		assert.Equal(t, uint8(i), f.NS)
		assert.Equal(t, i < 2, f.More)
		joined = append(joined, f.Info...)
	}
	assert.Equal(t, msg, joined)
	assert.Equal(t, uint64(1), dl.Statistics().GetTxMessages())
}

func TestDatalink_WindowLimitsOutstanding(t *testing.T) {
	dl, _, _ := newTestLink(t, nil)
	establish(t, dl)

	require.NoError(t, dl.SendData([]byte{1}))
	require.NoError(t, dl.SendData([]byte{2}))

	require.Len(t, drain(t, dl), 1)
	assert.Equal(t, 1, dl.Outstanding())

	// Ack opens the window for the next frame
	require.NoError(t, dl.Receive(peerS(frame.TypeRR, false, 1, false)))
	frames := drain(t, dl)
	require.Len(t, frames, 1)
	assert.Equal(t, []byte{2}, frames[0].Info)
	assert.Equal(t, uint8(1), frames[0].NS)
}

func TestDatalink_RejectedReestablishKeepsLink(t *testing.T) {
	dl, _, sched := newTestLink(t, func(c *Config) { c.WindowSize = 3 })
	establish(t, dl)

	require.NoError(t, dl.SendData([]byte{1}))
	require.NoError(t, dl.SendData([]byte{2}))
	require.Len(t, drain(t, dl), 2)
	require.Equal(t, 2, dl.Outstanding())

	err := dl.Establish(make([]byte, dl.Config().N201+1))
	assert.ErrorIs(t, err, ErrMessageTooLong)

	assert.Equal(t, StateMFEst, dl.State())
	assert.Equal(t, 2, dl.Outstanding())
	assert.True(t, dl.T200Running())
	assert.True(t, sched.running)
	assert.True(t, dl.HistoryInUse(0))
	assert.True(t, dl.HistoryInUse(1))
	assert.Empty(t, drain(t, dl))

	// Recovery still has both frames to send again
	dl.OnT200Expiry(sched.gen)
	frames := drain(t, dl)
	require.Len(t, frames, 2)
	assert.Equal(t, []byte{1}, frames[0].Info)
	assert.Equal(t, []byte{2}, frames[1].Info)
}

func TestConfig_HistoryEntryBound(t *testing.T) {
	cfg := DefaultConfig(frame.RoleMS, frame.SAPI0, false)
	require.NoError(t, cfg.Validate())

	cfg.N201 = frame.FrameSize - frame.HeaderSizeB + 1
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
}

func TestDatalink_InvalidNR(t *testing.T) {
	dl, _, _ := newTestLink(t, nil)
	establish(t, dl)

	err := dl.Receive(peerS(frame.TypeRR, false, 3, false))
	assert.ErrorIs(t, err, ErrProtocolViolation)
	assert.ErrorIs(t, err, ErrInvalidNR)
	assert.Equal(t, uint8(0), dl.VAck())
	assert.Equal(t, StateMFEst, dl.State())
	assert.Equal(t, uint64(1), dl.Statistics().GetProtocolErrors())
}

func TestDatalink_IFrameWhileIdle(t *testing.T) {
	dl, _, _ := newTestLink(t, nil)

	err := dl.Receive(peerI(0, 0, true, false, []byte{1}))
	assert.ErrorIs(t, err, ErrProtocolViolation)
	frames := drain(t, dl)
	require.Len(t, frames, 1)
	assert.Equal(t, frame.TypeDM, frames[0].Type)

	assert.ErrorIs(t, dl.Receive(peerResp(frame.TypeUA, true, nil)), ErrUnsolicitedUA)
}

func TestDatalink_PeerBusy(t *testing.T) {
	dl, _, _ := newTestLink(t, nil)
	establish(t, dl)

	require.NoError(t, dl.Receive(peerS(frame.TypeRNR, false, 0, false)))
	assert.True(t, dl.PeerBusy())

	require.NoError(t, dl.SendData([]byte{0x42}))
	assert.Empty(t, drain(t, dl))
	assert.Equal(t, uint8(0), dl.VSend())

	require.NoError(t, dl.Receive(peerS(frame.TypeRR, false, 0, false)))
	assert.False(t, dl.PeerBusy())
	frames := drain(t, dl)
	require.Len(t, frames, 1)
	assert.Equal(t, frame.TypeI, frames[0].Type)
}

func TestDatalink_OwnBusy(t *testing.T) {
	dl, owner, _ := newTestLink(t, nil)
	establish(t, dl)

	dl.SetOwnBusy(true)
	frames := drain(t, dl)
	require.Len(t, frames, 1)
	assert.Equal(t, frame.TypeRNR, frames[0].Type)

	require.NoError(t, dl.Receive(peerI(0, 0, true, false, []byte{1})))
	assert.Equal(t, 0, owner.count(IndDataInd))
	assert.Equal(t, uint8(0), dl.VRecv())
	frames = drain(t, dl)
	require.Len(t, frames, 1)
	assert.Equal(t, frame.TypeRNR, frames[0].Type)
	assert.True(t, frames[0].PF)

	dl.SetOwnBusy(false)
	frames = drain(t, dl)
	require.Len(t, frames, 1)
	assert.Equal(t, frame.TypeRR, frames[0].Type)
}

func TestDatalink_RejectRetransmits(t *testing.T) {
	dl, _, _ := newTestLink(t, func(c *Config) { c.WindowSize = 7 })
	establish(t, dl)

	for i := byte(0); i < 3; i++ {
		require.NoError(t, dl.SendData([]byte{i}))
	}
	require.Len(t, drain(t, dl), 3)

	require.NoError(t, dl.Receive(peerS(frame.TypeREJ, false, 1, false)))
	assert.Equal(t, uint8(1), dl.VAck())
	frames := drain(t, dl)
	require.Len(t, frames, 2)
	assert.Equal(t, uint8(1), frames[0].NS)
	assert.Equal(t, uint8(2), frames[1].NS)
	assert.Equal(t, uint64(1), dl.Statistics().GetRejectsReceived())
}

func TestDatalink_PollAnswered(t *testing.T) {
	dl, _, _ := newTestLink(t, nil)
	establish(t, dl)

	require.NoError(t, dl.Receive(peerS(frame.TypeRR, true, 0, true)))
	frames := drain(t, dl)
	require.Len(t, frames, 1)
	assert.Equal(t, frame.TypeRR, frames[0].Type)
	assert.True(t, frames[0].PF)
	assert.False(t, frames[0].CR)
}

func TestDatalink_StaleExpiryIgnored(t *testing.T) {
	dl, _, sched := newTestLink(t, nil)
	establish(t, dl)

	require.NoError(t, dl.SendData([]byte{1}))
	drain(t, dl)
	stale := sched.gen

	require.NoError(t, dl.Receive(peerS(frame.TypeRR, false, 1, false)))
	assert.False(t, dl.T200Running())

	require.NoError(t, dl.SendData([]byte{2}))
	drain(t, dl)
	require.True(t, dl.T200Running())
	require.NotEqual(t, stale, sched.gen)

	dl.OnT200Expiry(stale)
	assert.Equal(t, StateMFEst, dl.State())
	assert.Equal(t, 0, dl.RetransmissionCount())
	assert.Equal(t, uint64(1), dl.Statistics().GetStaleExpiries())
}

func TestDatalink_SuspendResume(t *testing.T) {
	dl, owner, _ := newTestLink(t, nil)
	establish(t, dl)

	msg := bytes.Repeat([]byte{0x5a}, 30)
	require.NoError(t, dl.SendData(msg))
	frames := drain(t, dl)
	require.Len(t, frames, 1)
	require.True(t, frames[0].More)

	require.NoError(t, dl.Suspend())
	assert.Equal(t, StateIdle, dl.State())
	assert.False(t, dl.T200Running())
	assert.Equal(t, IndSuspendConf, owner.last().Type)
	assert.Equal(t, 1, dl.QueuedMessages())
	assert.ErrorIs(t, dl.Suspend(), ErrNotEstablished)

	require.NoError(t, dl.Resume(nil))
	frames = drain(t, dl)
	require.Len(t, frames, 1)
	assert.Equal(t, frame.TypeSABM, frames[0].Type)

	require.NoError(t, dl.Receive(peerResp(frame.TypeUA, true, nil)))
	assert.Equal(t, IndEstablishConf, owner.last().Type)

	// The interrupted message starts over from its first segment
	frames = drain(t, dl)
	require.Len(t, frames, 1)
	assert.Equal(t, uint8(0), frames[0].NS)
	assert.Equal(t, msg[:frame.N201DCCH], frames[0].Info)
	assert.True(t, frames[0].More)
}

func TestDatalink_SendDataErrors(t *testing.T) {
	dl, _, _ := newTestLink(t, func(c *Config) { c.MaxMessageSize = 40 })

	assert.ErrorIs(t, dl.SendData(nil), ErrEmptyMessage)
	assert.ErrorIs(t, dl.SendData(make([]byte, 41)), ErrMessageTooLong)

	dl.Shutdown()
	assert.Equal(t, StateNull, dl.State())
	assert.ErrorIs(t, dl.SendData([]byte{1}), ErrInvalidState)
	assert.ErrorIs(t, dl.Receive(peerCmd(frame.TypeSABM, true, nil)), ErrInvalidState)
}

type snapshot struct {
	state      State
	vs, va, vr uint8
	retrans    int
	ownBusy    bool
	peerBusy   bool
	seqErr     bool
	t200       bool
	gen        uint32
	queued     int
	tx         int
	history    int
	rxPending  bool
}

func snap(dl *Datalink) snapshot {
	return snapshot{
		state: dl.state, vs: dl.vSend, va: dl.vAck, vr: dl.vRecv,
		retrans: dl.retransCtr, ownBusy: dl.ownBusy, peerBusy: dl.peerBusy,
		seqErr: dl.seqErrCond, t200: dl.t200.running, gen: dl.t200.gen,
		queued: len(dl.sendQueue), tx: len(dl.txQueue), history: dl.history.count(),
		rxPending: dl.rx.InProgress(),
	}
}

func TestDatalink_ResetIdempotent(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		cfg := DefaultConfig(frame.RoleBTS, frame.SAPI0, false)
		cfg.WindowSize = rapid.IntRange(1, 7).Draw(rt, "k")
		sched := &fakeScheduler{}
		dl, err := New(cfg, &fakeOwner{}, sched, nil)
		if err != nil {
			rt.Fatalf("new: %v", err)
		}
		dl.Reset()

		ops := rapid.IntRange(0, 40).Draw(rt, "ops")
		for i := 0; i < ops; i++ {
			switch rapid.IntRange(0, 5).Draw(rt, "op") {
			case 0:
				_ = dl.SendData(rapid.SliceOfN(rapid.Byte(), 1, 60).Draw(rt, "msg"))
			case 1:
				dl.Dequeue()
			case 2:
				_ = dl.Receive(peerResp(frame.TypeUA, true, nil))
			case 3:
				nr := rapid.Uint8Range(0, 7).Draw(rt, "nr")
				_ = dl.Receive(peerS(frame.TypeRR, false, nr, false))
			case 4:
				ns := rapid.Uint8Range(0, 7).Draw(rt, "ns")
				_ = dl.Receive(peerI(ns, dl.vAck, false, rapid.Bool().Draw(rt, "more"), bytes.Repeat([]byte{1}, frame.N201DCCH)))
			case 5:
				if dl.T200Running() {
					dl.OnT200Expiry(sched.gen)
				}
			}
		}

		dl.Reset()
		first := snap(dl)
		dl.Reset()
		second := snap(dl)

		if first != second {
			rt.Fatalf("second reset changed state: %+v -> %+v", first, second)
		}
		want := snapshot{state: StateIdle, gen: first.gen}
		if first != want {
			rt.Fatalf("reset left %+v", first)
		}
	})
}

func (o *fakeOwner) lifecycleEvents() int {
	return len(o.inds) - o.count(IndDataInd)
}

// Two links back to back over a lossy channel. Checks the sequence
// invariants after every step and that the receiver delivers messages in
// submission order without duplicates or corruption.
func TestDatalink_PairProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		k := rapid.IntRange(1, 7).Draw(rt, "k")
		cfgA := DefaultConfig(frame.RoleBTS, frame.SAPI0, false)
		cfgA.WindowSize = k
		cfgA.N200 = 4
		cfgB := DefaultConfig(frame.RoleMS, frame.SAPI0, false)
		cfgB.WindowSize = k

		ownerA, ownerB := &fakeOwner{}, &fakeOwner{}
		schedA := &fakeScheduler{}
		a, err := New(cfgA, ownerA, schedA, nil)
		if err != nil {
			rt.Fatalf("new A: %v", err)
		}
		b, err := New(cfgB, ownerB, &fakeScheduler{}, nil)
		if err != nil {
			rt.Fatalf("new B: %v", err)
		}
		a.Reset()
		b.Reset()

		ctx := frame.Context{Format: frame.FormatB, N201: frame.N201DCCH}
		sent := make(map[uint16][]byte)
		var nextID uint16
		lastDelivered := -1
		delivered := 0

		transfer := func(from, to *Datalink, drop bool) {
			data, ok := from.Dequeue()
			if !ok {
				return
			}
			f, err := frame.Decode(data, ctx)
			if err != nil {
				rt.Fatalf("undecodable frame %x: %v", data, err)
			}
			if from == a && f.Type == frame.TypeI {
				slot, inUse := a.history.get(f.NS)
				if !inUse {
					rt.Fatalf("I frame N(S)=%d sent after its slot was released", f.NS)
				}
				if !bytes.Equal(slot.info, f.Info) || slot.more != f.More {
					rt.Fatalf("I frame N(S)=%d differs from history", f.NS)
				}
			}
			if !drop {
				_ = to.Receive(f)
			}
		}

		steps := rapid.IntRange(1, 300).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			oldAck, oldSend := a.VAck(), a.VSend()
			events := ownerA.lifecycleEvents()

			switch rapid.IntRange(0, 3).Draw(rt, "op") {
			case 0:
				n := rapid.IntRange(2, 60).Draw(rt, "len")
				msg := bytes.Repeat([]byte{byte(nextID)}, n)
				binary.BigEndian.PutUint16(msg, nextID)
				if err := a.SendData(msg); err != nil {
					rt.Fatalf("send: %v", err)
				}
				sent[nextID] = msg
				nextID++
			case 1:
				transfer(a, b, rapid.IntRange(0, 9).Draw(rt, "lossAB") < 2)
			case 2:
				transfer(b, a, rapid.IntRange(0, 9).Draw(rt, "lossBA") < 2)
			case 3:
				if a.T200Running() {
					a.OnT200Expiry(schedA.gen)
				}
			}

			for _, dl := range []*Datalink{a, b} {
				if dl.VSend() > 7 || dl.VAck() > 7 || dl.VRecv() > 7 {
					rt.Fatalf("state variable out of range")
				}
				if dl.Outstanding() > k {
					rt.Fatalf("%d outstanding frames with window %d", dl.Outstanding(), k)
				}
				if dl.history.count() != dl.Outstanding() {
					rt.Fatalf("%d history slots for %d outstanding frames", dl.history.count(), dl.Outstanding())
				}
			}
			if ownerA.lifecycleEvents() == events {
				if sub(a.VAck(), oldAck) > sub(oldSend, oldAck) {
					rt.Fatalf("V(A) moved from %d to %d with V(S)=%d", oldAck, a.VAck(), oldSend)
				}
			}

			for _, ind := range ownerB.inds[delivered:] {
				if ind.Type != IndDataInd {
					continue
				}
				id := binary.BigEndian.Uint16(ind.Payload)
				if int(id) <= lastDelivered {
					rt.Fatalf("message %d delivered after %d", id, lastDelivered)
				}
				if !bytes.Equal(sent[id], ind.Payload) {
					rt.Fatalf("message %d corrupted", id)
				}
				lastDelivered = int(id)
			}
			delivered = len(ownerB.inds)
		}
	})
}
