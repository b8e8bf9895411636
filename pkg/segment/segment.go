package segment

import "errors"

// DefaultMaxMessageSize bounds a reassembled Layer 3 message
const DefaultMaxMessageSize = 512

var (
	ErrBufferOverflow = errors.New("reassembly buffer overflow")
	ErrEmptySegment   = errors.New("empty segment")
)

// Segment is one piece of a Layer 3 message carried in an I frame
type Segment struct {
	More bool   // M bit: further segments follow
	Data []byte // At most N201 octets
}

// Cursor walks a message one segment at a time
type Cursor struct {
	data []byte
	off  int
	n201 int
}

// NewCursor creates a cursor over data producing segments of at most n201 octets
func NewCursor(data []byte, n201 int) *Cursor {
	if n201 <= 0 {
		n201 = 1
	}
	return &Cursor{data: data, n201: n201}
}

// Next returns the next segment, or false when the message is exhausted
func (c *Cursor) Next() (Segment, bool) {
	if c.off >= len(c.data) {
		return Segment{}, false
	}

	size := len(c.data) - c.off
	if size > c.n201 {
		size = c.n201
	}
	seg := Segment{
		Data: c.data[c.off : c.off+size],
		More: c.off+size < len(c.data),
	}
	c.off += size
	return seg, true
}

// Done returns true once every segment has been produced
func (c *Cursor) Done() bool {
	return c.off >= len(c.data)
}

// Started returns true if at least one segment has been produced
func (c *Cursor) Started() bool {
	return c.off > 0
}

// Rewind restarts segmentation from the first octet
func (c *Cursor) Rewind() {
	c.off = 0
}

// Message returns the whole message being segmented
func (c *Cursor) Message() []byte {
	return c.data
}

// Split breaks a message into segments of at most n201 octets
func Split(data []byte, n201 int) []Segment {
	if len(data) == 0 {
		return nil
	}

	var segments []Segment
	c := NewCursor(data, n201)
	for {
		seg, ok := c.Next()
		if !ok {
			return segments
		}
		segments = append(segments, seg)
	}
}
