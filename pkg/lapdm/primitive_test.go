package lapdm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestPrimitive_Envelope(t *testing.T) {
	p := &Primitive{
		Type:         PrimRACH,
		Op:           OpIndication,
		ChanNr:       0x88,
		LinkID:       0x00,
		RA:           0x12,
		TA:           3,
		TxPower:      5,
		CombinedCCCH: true,
		Offset:       0x1234,
		AccessDelay:  7,
		FrameNumber:  0xdeadbeef,
		Data:         []byte{0x01, 0x02},
	}

	raw, err := p.MarshalBinary()
	require.NoError(t, err)
	assert.Equal(t, []byte{
		0x01, 0x02, 0x88, 0x00, 0x12, 0x03, 0x05, 0x01,
		0x12, 0x34, 0x07, 0xde, 0xad, 0xbe, 0xef, 0x01, 0x02,
	}, raw)

	var got Primitive
	require.NoError(t, got.UnmarshalBinary(raw))
	assert.Equal(t, *p, got)
}

func TestPrimitive_UnmarshalErrors(t *testing.T) {
	var p Primitive
	assert.ErrorIs(t, p.UnmarshalBinary([]byte{0x00, 0x02}), ErrShortPrimitive)

	raw := make([]byte, primitiveHeaderSize)
	raw[0] = 9
	assert.ErrorIs(t, p.UnmarshalBinary(raw), ErrUnknownPrimitive)

	raw[0], raw[1] = byte(PrimData), 7
	assert.ErrorIs(t, p.UnmarshalBinary(raw), ErrUnknownPrimitive)
}

func TestPrimitive_Property(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		p := &Primitive{
			Type:         PrimitiveType(rapid.IntRange(0, int(PrimRTS)).Draw(t, "type")),
			Op:           Operation(rapid.IntRange(0, int(OpConfirm)).Draw(t, "op")),
			ChanNr:       rapid.Byte().Draw(t, "chan_nr"),
			LinkID:       rapid.Byte().Draw(t, "link_id"),
			RA:           rapid.Byte().Draw(t, "ra"),
			CombinedCCCH: rapid.Bool().Draw(t, "combined"),
			Offset:       rapid.Uint16().Draw(t, "offset"),
			FrameNumber:  rapid.Uint32().Draw(t, "fn"),
		}
		if n := rapid.IntRange(0, 23).Draw(t, "len"); n > 0 {
			p.Data = rapid.SliceOfN(rapid.Byte(), n, n).Draw(t, "data")
		}

		raw, err := p.MarshalBinary()
		if err != nil {
			t.Fatal(err)
		}
		var got Primitive
		if err := got.UnmarshalBinary(raw); err != nil {
			t.Fatal(err)
		}
		assert.Equal(t, *p, got)
	})
}

func TestPrimitive_String(t *testing.T) {
	assert.Equal(t, "PH-DATA.req{chan_nr=0x20, link_id=0x40, len=1}", NewDataRequest(0x20, 0x40, []byte{1}).String())
	assert.Equal(t, "PH-RTS", PrimRTS.String())
	assert.True(t, NewRTSIndication(0x20, 0x43).IsSACCH())
	assert.Equal(t, uint8(3), NewRTSIndication(0x20, 0x43).SAPI())
}
