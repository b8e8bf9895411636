package frame

import "errors"

// LAPDm frame sizes (GSM TS 04.06 section 5.8.3)
const (
	FrameSize    = 23   // Octets in one LAPDm block
	HeaderSizeB  = 3    // Address + control + length
	HeaderSizeB4 = 2    // Address + control
	SACCHL1Size  = 2    // MS power level + timing advance on SACCH
	FillOctet    = 0x2B // Padding after the information field

	N201DCCH    = 20 // SDCCH and FACCH, format A/B
	N201SACCH   = 18 // SACCH, format A/B
	N201SACCHB4 = 19 // SACCH, format B4
	N201Bbis    = 23 // BCCH, PCH, AGCH

	// HistorySize is the number of sequence numbers (modulo 8)
	HistorySize = 8
)

// Address field bits
const (
	AddrEA       uint8 = 0x01 // Address field extension bit
	AddrCR       uint8 = 0x02 // Command/response bit
	AddrSAPIMask uint8 = 0x1C
	AddrLPDMask  uint8 = 0x60
	AddrSpare    uint8 = 0x80
)

// Length indicator bits
const (
	LenEL   uint8 = 0x01 // Length indicator extension bit
	LenMore uint8 = 0x02 // More data bit
)

// Control field bits
const (
	CtrlPF     uint8 = 0x10 // Poll/final bit
	CtrlNRMask uint8 = 0xE0
	CtrlNSMask uint8 = 0x0E
)

// SAPI values used on the radio interface
const (
	SAPI0 uint8 = 0 // Signalling
	SAPI3 uint8 = 3 // Short message service
)

// LPD values
const (
	LPDNormal uint8 = 0
	LPDSMSCB  uint8 = 1
)

// Supervisory function bits
const (
	sRR  uint8 = 0
	sRNR uint8 = 1
	sREJ uint8 = 2
)

// Unnumbered function bits (combined M bits, 5 bit value)
const (
	uSABM uint8 = 0x07
	uDM   uint8 = 0x03
	uUI   uint8 = 0x00
	uDISC uint8 = 0x08
	uUA   uint8 = 0x0C
)

// Format selects the frame layout
type Format int

const (
	FormatB    Format = iota // Address, control, length (format A when L=0)
	FormatB4                 // Address, control; SACCH UI only
	FormatBbis               // No LAPDm header
)

// String returns string representation of Format
func (f Format) String() string {
	switch f {
	case FormatB:
		return "B"
	case FormatB4:
		return "B4"
	case FormatBbis:
		return "Bbis"
	default:
		return "Unknown"
	}
}

// Type identifies the frame class
type Type int

const (
	TypeI Type = iota
	TypeRR
	TypeRNR
	TypeREJ
	TypeSABM
	TypeDM
	TypeUI
	TypeDISC
	TypeUA
)

// String returns string representation of Type
func (t Type) String() string {
	switch t {
	case TypeI:
		return "I"
	case TypeRR:
		return "RR"
	case TypeRNR:
		return "RNR"
	case TypeREJ:
		return "REJ"
	case TypeSABM:
		return "SABM"
	case TypeDM:
		return "DM"
	case TypeUI:
		return "UI"
	case TypeDISC:
		return "DISC"
	case TypeUA:
		return "UA"
	default:
		return "Unknown"
	}
}

// IsSupervisory reports whether t is RR, RNR or REJ
func (t Type) IsSupervisory() bool {
	return t == TypeRR || t == TypeRNR || t == TypeREJ
}

// IsUnnumbered reports whether t is a U frame
func (t Type) IsUnnumbered() bool {
	return t >= TypeSABM
}

// Errors
var (
	ErrMalformedFrame = errors.New("malformed frame")
	ErrFrameTooLong   = errors.New("information field exceeds N201")
	ErrInvalidField   = errors.New("invalid frame field")
)
