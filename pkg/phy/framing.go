package phy

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Stream transports prefix every envelope with its length as two octets,
// big endian.
const lengthPrefixSize = 2

// readEnvelope reads one length-prefixed envelope
func readEnvelope(r io.Reader) ([]byte, error) {
	var prefix [lengthPrefixSize]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return nil, err
	}

	n := int(binary.BigEndian.Uint16(prefix[:]))
	if n > MaxEnvelopeSize {
		return nil, fmt.Errorf("%w: %d octets", ErrEnvelopeTooLarge, n)
	}

	data := make([]byte, n)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, err
	}
	return data, nil
}

// encodeEnvelope prepends the length prefix
func encodeEnvelope(data []byte) ([]byte, error) {
	if len(data) > MaxEnvelopeSize {
		return nil, fmt.Errorf("%w: %d octets", ErrEnvelopeTooLarge, len(data))
	}
	buf := make([]byte, lengthPrefixSize, lengthPrefixSize+len(data))
	binary.BigEndian.PutUint16(buf, uint16(len(data)))
	return append(buf, data...), nil
}
