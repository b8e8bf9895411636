package lapdm

import (
	"encoding/binary"
	"fmt"
)

// PrimitiveType identifies a PH-SAP primitive
type PrimitiveType uint8

const (
	PrimData       PrimitiveType = iota // PH-DATA
	PrimRACH                            // PH-RANDOM_ACCESS
	PrimConn                            // PH-CONNECT
	PrimEmptyFrame                      // PH-EMPTY_FRAME
	PrimRTS                             // PH-READY_TO_SEND
)

// String returns string representation of PrimitiveType
func (t PrimitiveType) String() string {
	switch t {
	case PrimData:
		return "PH-DATA"
	case PrimRACH:
		return "PH-RANDOM_ACCESS"
	case PrimConn:
		return "PH-CONNECT"
	case PrimEmptyFrame:
		return "PH-EMPTY_FRAME"
	case PrimRTS:
		return "PH-RTS"
	default:
		return fmt.Sprintf("PH-UNKNOWN(%d)", uint8(t))
	}
}

// Operation is the primitive direction
type Operation uint8

const (
	OpRequest Operation = iota
	OpResponse
	OpIndication
	OpConfirm
)

// String returns string representation of Operation
func (o Operation) String() string {
	switch o {
	case OpRequest:
		return "req"
	case OpResponse:
		return "resp"
	case OpIndication:
		return "ind"
	case OpConfirm:
		return "conf"
	default:
		return fmt.Sprintf("op(%d)", uint8(o))
	}
}

// Channel number class bits (chan_nr >> 3) of the common control channels
const (
	CbitsBCCH    = 0x10
	CbitsRACH    = 0x11
	CbitsPCHAGCH = 0x12
)

// LinkIDSACCH marks the associated control channel in a link identifier
const LinkIDSACCH = 0x40

// Primitive is a PH-SAP primitive exchanged with Layer 1. Only the
// parameters of the primitive type are meaningful.
type Primitive struct {
	Type PrimitiveType
	Op   Operation

	// PH-DATA
	ChanNr uint8
	LinkID uint8

	// PH-RANDOM_ACCESS.req
	RA           uint8
	TA           uint8
	TxPower      uint8
	CombinedCCCH bool
	Offset       uint16

	// PH-RANDOM_ACCESS.ind
	AccessDelay uint8

	// PH-RANDOM_ACCESS.ind and PH-CONNECT.ind
	FrameNumber uint32

	Data []byte
}

// primitiveHeaderSize is the fixed part of the binary envelope
const primitiveHeaderSize = 15

// NewDataRequest creates a PH-DATA.req
func NewDataRequest(chanNr, linkID uint8, data []byte) *Primitive {
	return &Primitive{Type: PrimData, Op: OpRequest, ChanNr: chanNr, LinkID: linkID, Data: data}
}

// NewDataIndication creates a PH-DATA.ind
func NewDataIndication(chanNr, linkID uint8, data []byte) *Primitive {
	return &Primitive{Type: PrimData, Op: OpIndication, ChanNr: chanNr, LinkID: linkID, Data: data}
}

// NewRTSIndication creates a PH-RTS.ind
func NewRTSIndication(chanNr, linkID uint8) *Primitive {
	return &Primitive{Type: PrimRTS, Op: OpIndication, ChanNr: chanNr, LinkID: linkID}
}

// IsSACCH reports whether the primitive belongs to the associated channel
func (p *Primitive) IsSACCH() bool {
	return p.LinkID&LinkIDSACCH != 0
}

// SAPI returns the SAPI carried in the link identifier
func (p *Primitive) SAPI() uint8 {
	return p.LinkID & 0x07
}

// String returns a string representation of the primitive
func (p *Primitive) String() string {
	switch p.Type {
	case PrimRACH:
		return fmt.Sprintf("%s.%s{RA=0x%02x, FN=%d}", p.Type, p.Op, p.RA, p.FrameNumber)
	case PrimConn:
		return fmt.Sprintf("%s.%s{FN=%d}", p.Type, p.Op, p.FrameNumber)
	default:
		return fmt.Sprintf("%s.%s{chan_nr=0x%02x, link_id=0x%02x, len=%d}",
			p.Type, p.Op, p.ChanNr, p.LinkID, len(p.Data))
	}
}

// MarshalBinary encodes the primitive into the envelope used between a
// Layer 1 driver and its remote peer:
//
//	type op chan_nr link_id ra ta tx_power combined offset(2) acc_delay fn(4) data...
func (p *Primitive) MarshalBinary() ([]byte, error) {
	buf := make([]byte, primitiveHeaderSize, primitiveHeaderSize+len(p.Data))
	buf[0] = byte(p.Type)
	buf[1] = byte(p.Op)
	buf[2] = p.ChanNr
	buf[3] = p.LinkID
	buf[4] = p.RA
	buf[5] = p.TA
	buf[6] = p.TxPower
	if p.CombinedCCCH {
		buf[7] = 1
	}
	binary.BigEndian.PutUint16(buf[8:10], p.Offset)
	buf[10] = p.AccessDelay
	binary.BigEndian.PutUint32(buf[11:15], p.FrameNumber)
	return append(buf, p.Data...), nil
}

// UnmarshalBinary decodes an envelope written by MarshalBinary
func (p *Primitive) UnmarshalBinary(data []byte) error {
	if len(data) < primitiveHeaderSize {
		return fmt.Errorf("%w: %d octets", ErrShortPrimitive, len(data))
	}
	if PrimitiveType(data[0]) > PrimRTS || Operation(data[1]) > OpConfirm {
		return fmt.Errorf("%w: type %d op %d", ErrUnknownPrimitive, data[0], data[1])
	}

	*p = Primitive{
		Type:         PrimitiveType(data[0]),
		Op:           Operation(data[1]),
		ChanNr:       data[2],
		LinkID:       data[3],
		RA:           data[4],
		TA:           data[5],
		TxPower:      data[6],
		CombinedCCCH: data[7] != 0,
		Offset:       binary.BigEndian.Uint16(data[8:10]),
		AccessDelay:  data[10],
		FrameNumber:  binary.BigEndian.Uint32(data[11:15]),
	}
	if len(data) > primitiveHeaderSize {
		p.Data = append([]byte(nil), data[primitiveHeaderSize:]...)
	}
	return nil
}
