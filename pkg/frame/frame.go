package frame

import (
	"bytes"
	"fmt"
)

// Role selects the command/response bit polarity
type Role int

const (
	RoleBTS Role = iota // Network side
	RoleMS              // Mobile side
)

// String returns string representation of Role
func (r Role) String() string {
	switch r {
	case RoleBTS:
		return "BTS"
	case RoleMS:
		return "MS"
	default:
		return "Unknown"
	}
}

// CR returns the C/R bit to put on a frame this role transmits.
// BTS sends commands with C/R=1, MS sends commands with C/R=0.
func (r Role) CR(command bool) bool {
	if r == RoleMS {
		return !command
	}
	return command
}

// IsCommand reports whether a received frame carrying cr is a command
func (r Role) IsCommand(cr bool) bool {
	if r == RoleMS {
		return cr
	}
	return !cr
}

// Context describes the channel a frame was received on
type Context struct {
	Format Format
	N201   int
}

// Frame represents one LAPDm frame
type Frame struct {
	Format Format
	Type   Type

	// Address field
	SAPI uint8
	CR   bool // Raw C/R bit as carried on the wire

	// Control field
	PF bool  // Poll (command) or final (response) bit
	NS uint8 // Send sequence number, I frames only
	NR uint8 // Receive sequence number, I and S frames

	// Length field
	More bool

	Info []byte
}

// NewI creates an I frame
func NewI(sapi uint8, cr bool, ns, nr uint8, p, more bool, info []byte) *Frame {
	return &Frame{Type: TypeI, SAPI: sapi, CR: cr, NS: ns, NR: nr, PF: p, More: more, Info: info}
}

// NewS creates a supervisory frame (RR, RNR or REJ)
func NewS(t Type, sapi uint8, cr bool, nr uint8, pf bool) *Frame {
	return &Frame{Type: t, SAPI: sapi, CR: cr, NR: nr, PF: pf}
}

// NewU creates an unnumbered frame
func NewU(t Type, sapi uint8, cr bool, pf bool, info []byte) *Frame {
	return &Frame{Type: t, SAPI: sapi, CR: cr, PF: pf, Info: info}
}

func (f *Frame) address() uint8 {
	a := AddrEA | (f.SAPI<<2)&AddrSAPIMask
	if f.CR {
		a |= AddrCR
	}
	return a
}

func (f *Frame) control() (uint8, error) {
	var pf uint8
	if f.PF {
		pf = CtrlPF
	}
	nr := (f.NR & 0x07) << 5

	switch f.Type {
	case TypeI:
		return nr | pf | (f.NS&0x07)<<1, nil
	case TypeRR:
		return nr | pf | sRR<<2 | 0x01, nil
	case TypeRNR:
		return nr | pf | sRNR<<2 | 0x01, nil
	case TypeREJ:
		return nr | pf | sREJ<<2 | 0x01, nil
	}

	var u uint8
	switch f.Type {
	case TypeSABM:
		u = uSABM
	case TypeDM:
		u = uDM
	case TypeUI:
		u = uUI
	case TypeDISC:
		u = uDISC
	case TypeUA:
		u = uUA
	default:
		return 0, fmt.Errorf("%w: frame type %d", ErrInvalidField, f.Type)
	}
	return (u&0x1c)<<3 | pf | (u&0x03)<<2 | 0x03, nil
}

// maxInfo returns the largest information field the format can carry
func maxInfo(format Format) int {
	switch format {
	case FormatB4:
		return FrameSize - HeaderSizeB4
	case FormatBbis:
		return FrameSize
	default:
		return FrameSize - HeaderSizeB
	}
}

// Encode serializes the frame without fill octets
func Encode(f *Frame) ([]byte, error) {
	if len(f.Info) > maxInfo(f.Format) {
		return nil, ErrFrameTooLong
	}

	if f.Format == FormatBbis {
		out := make([]byte, len(f.Info))
		copy(out, f.Info)
		return out, nil
	}

	if f.SAPI > 7 || f.NS > 7 || f.NR > 7 {
		return nil, fmt.Errorf("%w: sapi=%d ns=%d nr=%d", ErrInvalidField, f.SAPI, f.NS, f.NR)
	}
	if f.More && f.Type != TypeI {
		return nil, fmt.Errorf("%w: M bit on %s frame", ErrInvalidField, f.Type)
	}

	ctrl, err := f.control()
	if err != nil {
		return nil, err
	}

	if f.Format == FormatB4 {
		if f.Type != TypeUI {
			return nil, fmt.Errorf("%w: %s frame in format B4", ErrInvalidField, f.Type)
		}
		out := make([]byte, 0, HeaderSizeB4+len(f.Info))
		out = append(out, f.address(), ctrl)
		return append(out, f.Info...), nil
	}

	length := uint8(len(f.Info))<<2 | LenEL
	if f.More {
		length |= LenMore
	}

	out := make([]byte, 0, HeaderSizeB+len(f.Info))
	out = append(out, f.address(), ctrl, length)
	return append(out, f.Info...), nil
}

// Pad appends fill octets until data is size octets long
func Pad(data []byte, size int) []byte {
	if len(data) >= size {
		return data
	}
	out := make([]byte, size)
	copy(out, data)
	for i := len(data); i < size; i++ {
		out[i] = FillOctet
	}
	return out
}

func malformed(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrMalformedFrame, fmt.Sprintf(format, args...))
}

// Decode parses a received frame. Fill octets after the information
// field are ignored.
func Decode(data []byte, ctx Context) (*Frame, error) {
	if ctx.Format == FormatBbis {
		if len(data) > FrameSize {
			return nil, malformed("Bbis frame of %d octets", len(data))
		}
		info := make([]byte, len(data))
		copy(info, data)
		return &Frame{Format: FormatBbis, Type: TypeUI, Info: info}, nil
	}

	hdr := HeaderSizeB
	if ctx.Format == FormatB4 {
		hdr = HeaderSizeB4
	}
	if len(data) < hdr {
		return nil, malformed("short frame (%d octets)", len(data))
	}

	f := &Frame{Format: ctx.Format}

	addr := data[0]
	if addr&AddrEA == 0 {
		return nil, malformed("EA bit not set")
	}
	if addr&AddrLPDMask != 0 {
		return nil, malformed("unsupported LPD %d", (addr&AddrLPDMask)>>5)
	}
	if addr&AddrSpare != 0 {
		return nil, malformed("spare address bit set")
	}
	f.SAPI = (addr & AddrSAPIMask) >> 2
	f.CR = addr&AddrCR != 0

	ctrl := data[1]
	f.PF = ctrl&CtrlPF != 0
	switch {
	case ctrl&0x01 == 0:
		f.Type = TypeI
		f.NS = (ctrl & CtrlNSMask) >> 1
		f.NR = (ctrl & CtrlNRMask) >> 5
	case ctrl&0x03 == 0x01:
		f.NR = (ctrl & CtrlNRMask) >> 5
		switch (ctrl & 0x0c) >> 2 {
		case sRR:
			f.Type = TypeRR
		case sRNR:
			f.Type = TypeRNR
		case sREJ:
			f.Type = TypeREJ
		default:
			return nil, malformed("reserved S function")
		}
	default:
		switch (ctrl&0x0c)>>2 | (ctrl&0xe0)>>3 {
		case uSABM:
			f.Type = TypeSABM
		case uDM:
			f.Type = TypeDM
		case uUI:
			f.Type = TypeUI
		case uDISC:
			f.Type = TypeDISC
		case uUA:
			f.Type = TypeUA
		default:
			return nil, malformed("reserved U function 0x%02x", ctrl)
		}
	}

	if ctx.Format == FormatB4 {
		if f.Type != TypeUI {
			return nil, malformed("%s frame in format B4", f.Type)
		}
		f.Info = append([]byte(nil), data[HeaderSizeB4:]...)
		return f, nil
	}

	length := data[2]
	if length&LenEL == 0 {
		return nil, malformed("EL bit not set")
	}
	l := int(length >> 2)
	f.More = length&LenMore != 0

	if ctx.N201 > 0 && l > ctx.N201 {
		return nil, malformed("length %d exceeds N201 %d", l, ctx.N201)
	}
	if l > len(data)-HeaderSizeB {
		return nil, malformed("length %d exceeds %d received octets", l, len(data)-HeaderSizeB)
	}

	switch f.Type {
	case TypeI:
		if l == 0 {
			return nil, malformed("I frame without information field")
		}
		if f.More && ctx.N201 > 0 && l != ctx.N201 {
			return nil, malformed("M bit set on %d octet segment", l)
		}
	case TypeRR, TypeRNR, TypeREJ, TypeDISC, TypeDM:
		if f.More {
			return nil, malformed("M bit on %s frame", f.Type)
		}
		if l != 0 {
			return nil, malformed("%s frame with information field", f.Type)
		}
	default:
		if f.More {
			return nil, malformed("M bit on %s frame", f.Type)
		}
	}

	if l > 0 {
		f.Info = append([]byte(nil), data[HeaderSizeB:HeaderSizeB+l]...)
	}
	return f, nil
}

// Equal reports whether two frames carry the same fields
func (f *Frame) Equal(o *Frame) bool {
	return f.Format == o.Format && f.Type == o.Type && f.SAPI == o.SAPI &&
		f.CR == o.CR && f.PF == o.PF && f.NS == o.NS && f.NR == o.NR &&
		f.More == o.More && bytes.Equal(f.Info, o.Info)
}

// String returns a string representation of the frame
func (f *Frame) String() string {
	var buf bytes.Buffer
	buf.WriteString(fmt.Sprintf("%s{SAPI=%d, CR=%t, PF=%t", f.Type, f.SAPI, f.CR, f.PF))
	switch {
	case f.Type == TypeI:
		buf.WriteString(fmt.Sprintf(", NS=%d, NR=%d, M=%t", f.NS, f.NR, f.More))
	case f.Type.IsSupervisory():
		buf.WriteString(fmt.Sprintf(", NR=%d", f.NR))
	}
	buf.WriteString(fmt.Sprintf(", Len=%d}", len(f.Info)))
	return buf.String()
}
