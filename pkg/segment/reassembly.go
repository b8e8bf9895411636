package segment

import "bytes"

// Reassembler collects the segments of one inbound message
type Reassembler struct {
	buffer     bytes.Buffer
	maxSize    int
	inProgress bool
}

// NewReassembler creates a reassembler bounded to maxSize octets
func NewReassembler(maxSize int) *Reassembler {
	if maxSize <= 0 {
		maxSize = DefaultMaxMessageSize
	}
	return &Reassembler{maxSize: maxSize}
}

// Add appends a segment. It returns the complete message once a segment
// without the M bit arrives, nil otherwise.
func (r *Reassembler) Add(seg Segment) ([]byte, error) {
	if len(seg.Data) == 0 {
		return nil, ErrEmptySegment
	}

	if r.buffer.Len()+len(seg.Data) > r.maxSize {
		r.Reset()
		return nil, ErrBufferOverflow
	}

	r.buffer.Write(seg.Data)
	r.inProgress = true

	if seg.More {
		return nil, nil
	}

	result := make([]byte, r.buffer.Len())
	copy(result, r.buffer.Bytes())
	r.Reset()
	return result, nil
}

// Reset discards any partial message
func (r *Reassembler) Reset() {
	r.buffer.Reset()
	r.inProgress = false
}

// InProgress returns true if a multi-segment message is being collected
func (r *Reassembler) InProgress() bool {
	return r.inProgress
}

// Len returns the number of octets buffered
func (r *Reassembler) Len() int {
	return r.buffer.Len()
}
