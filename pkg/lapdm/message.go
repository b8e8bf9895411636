package lapdm

import (
	"fmt"

	"avaneesh/lapdm-go/pkg/datalink"
)

// MessageType identifies a Layer 3 message exchanged with the entity,
// modelled on the RSL radio link layer management messages
type MessageType int

const (
	// Requests from Layer 3
	MsgDataReq MessageType = iota
	MsgUnitDataReq
	MsgEstablishReq
	MsgSuspendReq
	MsgResumeReq
	MsgReconnectReq
	MsgReleaseReq
	MsgRandomAccessReq

	// Indications and confirmations to Layer 3
	MsgDataInd
	MsgUnitDataInd
	MsgEstablishInd
	MsgEstablishConf
	MsgReleaseInd
	MsgReleaseConf
	MsgSuspendConf
	MsgErrorInd
	MsgChanRqd
	MsgRandomAccessConf
	MsgConnectInd
)

var messageNames = map[MessageType]string{
	MsgDataReq:          "DATA-REQ",
	MsgUnitDataReq:      "UNIT-DATA-REQ",
	MsgEstablishReq:     "EST-REQ",
	MsgSuspendReq:       "SUSP-REQ",
	MsgResumeReq:        "RES-REQ",
	MsgReconnectReq:     "RECON-REQ",
	MsgReleaseReq:       "REL-REQ",
	MsgRandomAccessReq:  "RAND-ACC-REQ",
	MsgDataInd:          "DATA-IND",
	MsgUnitDataInd:      "UNIT-DATA-IND",
	MsgEstablishInd:     "EST-IND",
	MsgEstablishConf:    "EST-CONF",
	MsgReleaseInd:       "REL-IND",
	MsgReleaseConf:      "REL-CONF",
	MsgSuspendConf:      "SUSP-CONF",
	MsgErrorInd:         "ERROR-IND",
	MsgChanRqd:          "CHAN-RQD",
	MsgRandomAccessConf: "RAND-ACC-CONF",
	MsgConnectInd:       "CONNECT-IND",
}

// String returns string representation of MessageType
func (t MessageType) String() string {
	if name, ok := messageNames[t]; ok {
		return name
	}
	return fmt.Sprintf("MSG(%d)", int(t))
}

// IsRequest reports whether the message travels from Layer 3 downwards
func (t MessageType) IsRequest() bool {
	return t <= MsgRandomAccessReq
}

// Message is a Layer 3 message. LinkID carries the SAPI in bits 0-2
// and LinkIDSACCH for the associated channel.
type Message struct {
	Type    MessageType
	ChanNr  uint8
	LinkID  uint8
	Payload []byte

	// REL-REQ
	ReleaseMode datalink.ReleaseMode

	// ERROR-IND, and the cause of a failed REL-IND or REL-CONF
	Err error

	// SACCH layer 1 header of the frame an indication came from
	TxPower       uint8
	TimingAdvance uint8

	// Random access parameters
	RA           uint8
	CombinedCCCH bool
	Offset       uint16
	AccessDelay  uint8
	FrameNumber  uint32
}

// SAPI returns the SAPI carried in the link identifier
func (m *Message) SAPI() uint8 {
	return m.LinkID & 0x07
}

// IsSACCH reports whether the message addresses the associated channel
func (m *Message) IsSACCH() bool {
	return m.LinkID&LinkIDSACCH != 0
}

// String returns a string representation of the message
func (m *Message) String() string {
	s := fmt.Sprintf("%s{chan_nr=0x%02x, link_id=0x%02x, len=%d", m.Type, m.ChanNr, m.LinkID, len(m.Payload))
	if m.Err != nil {
		s += fmt.Sprintf(", err=%v", m.Err)
	}
	return s + "}"
}

// NewDataReq creates a DATA-REQ for acknowledged transfer
func NewDataReq(chanNr, linkID uint8, payload []byte) *Message {
	return &Message{Type: MsgDataReq, ChanNr: chanNr, LinkID: linkID, Payload: payload}
}

// NewUnitDataReq creates a UNIT-DATA-REQ for unacknowledged transfer
func NewUnitDataReq(chanNr, linkID uint8, payload []byte) *Message {
	return &Message{Type: MsgUnitDataReq, ChanNr: chanNr, LinkID: linkID, Payload: payload}
}

// NewEstablishReq creates an EST-REQ. A non-empty payload is sent in the
// SABM for contention resolution.
func NewEstablishReq(chanNr, linkID uint8, payload []byte) *Message {
	return &Message{Type: MsgEstablishReq, ChanNr: chanNr, LinkID: linkID, Payload: payload}
}

// NewReleaseReq creates a REL-REQ
func NewReleaseReq(chanNr, linkID uint8, mode datalink.ReleaseMode) *Message {
	return &Message{Type: MsgReleaseReq, ChanNr: chanNr, LinkID: linkID, ReleaseMode: mode}
}

// indicationMessage maps a datalink indication type to its message type
func indicationMessage(t datalink.IndicationType) MessageType {
	switch t {
	case datalink.IndEstablishConf:
		return MsgEstablishConf
	case datalink.IndEstablishInd:
		return MsgEstablishInd
	case datalink.IndReleaseConf:
		return MsgReleaseConf
	case datalink.IndReleaseInd:
		return MsgReleaseInd
	case datalink.IndDataInd:
		return MsgDataInd
	case datalink.IndSuspendConf:
		return MsgSuspendConf
	default:
		return MsgErrorInd
	}
}
