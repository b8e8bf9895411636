package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"avaneesh/lapdm-go/pkg/datalink"
	"avaneesh/lapdm-go/pkg/frame"
	"avaneesh/lapdm-go/pkg/lapdm"
)

var errNotEstablished = errors.New("SAPI 0 not established")

type stationLogger interface {
	Debug(format string, args ...interface{})
	Info(format string, args ...interface{})
	Warn(format string, args ...interface{})
	Error(format string, args ...interface{})
}

// station is the simulated Layer 3 on top of one channel
type station struct {
	log    stationLogger
	ch     *lapdm.Channel
	chanNr uint8
	ra     uint8
	cr     []byte
	echo   bool

	establishOnce sync.Once
	established   chan struct{}
	released      chan struct{}
}

func (s *station) isMS() bool {
	return s.ch.Mode() == frame.RoleMS
}

// randomAccess sends a channel request on the RACH. Establishment follows
// the confirmation.
func (s *station) randomAccess() error {
	msg := &lapdm.Message{
		Type:   lapdm.MsgRandomAccessReq,
		ChanNr: lapdm.CbitsRACH << 3,
		RA:     s.ra,
	}
	if err := s.ch.SendL3(msg); err != nil {
		return fmt.Errorf("random access failed: %w", err)
	}
	s.log.Info("%s: channel request RA=0x%02x", s.ch.Name(), s.ra)
	return nil
}

// send transmits one line in acknowledged mode once the link is up
func (s *station) send(line string) error {
	select {
	case <-s.established:
	case <-time.After(5 * time.Second):
		return errNotEstablished
	}
	return s.ch.SendL3(lapdm.NewDataReq(s.chanNr, frame.SAPI0, []byte(line)))
}

// release disconnects SAPI 0 and waits for the peer to confirm
func (s *station) release(timeout time.Duration) {
	select {
	case <-s.established:
	default:
		return
	}
	if err := s.ch.SendL3(lapdm.NewReleaseReq(s.chanNr, frame.SAPI0, datalink.ReleaseNormal)); err != nil {
		s.log.Warn("%s: release failed: %v", s.ch.Name(), err)
		return
	}
	select {
	case <-s.released:
	case <-time.After(timeout):
		s.log.Warn("%s: no release confirmation", s.ch.Name())
	}
}

func (s *station) ReceiveMessage(msg *lapdm.Message, e *lapdm.Entity) error {
	name := s.ch.Name()

	switch msg.Type {
	case lapdm.MsgConnectInd:
		s.log.Info("%s: peer connected", name)

	case lapdm.MsgChanRqd:
		s.log.Info("%s: channel request RA=0x%02x FN=%d delay=%d", name, msg.RA, msg.FrameNumber, msg.AccessDelay)

	case lapdm.MsgRandomAccessConf:
		s.log.Info("%s: random access sent at FN=%d, establishing SAPI 0", name, msg.FrameNumber)
		return s.ch.SendL3(lapdm.NewEstablishReq(s.chanNr, frame.SAPI0, s.cr))

	case lapdm.MsgEstablishInd:
		s.log.Info("%s: SAPI %d established by peer, contention resolution % x", name, msg.SAPI(), msg.Payload)
		s.markEstablished()

	case lapdm.MsgEstablishConf:
		s.log.Info("%s: SAPI %d established", name, msg.SAPI())
		s.markEstablished()

	case lapdm.MsgDataInd:
		s.log.Info("%s: %s received %q", name, e.Name(), msg.Payload)
		if s.echo && !s.isMS() {
			return s.ch.SendL3(lapdm.NewDataReq(msg.ChanNr, msg.LinkID, msg.Payload))
		}

	case lapdm.MsgUnitDataInd:
		s.log.Debug("%s: %s unit data % x", name, e.Name(), msg.Payload)

	case lapdm.MsgReleaseInd, lapdm.MsgReleaseConf:
		if msg.Err != nil {
			s.log.Warn("%s: SAPI %d released: %v", name, msg.SAPI(), msg.Err)
		} else {
			s.log.Info("%s: SAPI %d released", name, msg.SAPI())
		}
		select {
		case s.released <- struct{}{}:
		default:
		}

	case lapdm.MsgErrorInd:
		s.log.Warn("%s: SAPI %d error: %v", name, msg.SAPI(), msg.Err)

	default:
		s.log.Debug("%s: %s", name, msg)
	}
	return nil
}

func (s *station) markEstablished() {
	s.establishOnce.Do(func() { close(s.established) })
}

// readLines forwards non-empty lines from standard input until EOF
func readLines(lines chan<- string) {
	defer close(lines)
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			lines <- line
		}
	}
}
