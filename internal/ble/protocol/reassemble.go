package protocol

import "bytes"

// Reassembler rebuilds payloads from received frames.
//
// A start marker opens a message and clears the buffer; an end marker
// closes it and yields the buffer. Frames in between are appended verbatim,
// binary or not. A frame that arrives while no message is open is a
// complete single-frame payload.
type Reassembler struct {
	start []byte
	end   []byte

	buf  []byte
	open bool
}

// NewReassembler builds a reassembler for already encoded markers.
func NewReassembler(start, end []byte) *Reassembler {
	return &Reassembler{start: start, end: end}
}

// NewTextReassembler encodes m with enc and builds a reassembler for it.
func NewTextReassembler(m Markers, enc Encoding) (*Reassembler, error) {
	start, end, err := m.Encode(enc)
	if err != nil {
		return nil, err
	}
	return NewReassembler(start, end), nil
}

// Feed consumes one frame. It returns a payload and true when the frame
// completed one.
func (r *Reassembler) Feed(frame []byte) ([]byte, bool) {
	switch {
	case bytes.Equal(frame, r.start):
		r.buf = r.buf[:0]
		r.open = true
		return nil, false
	case bytes.Equal(frame, r.end):
		if !r.open {
			return nil, false
		}
		msg := bytes.Clone(r.buf)
		if msg == nil {
			msg = []byte{}
		}
		r.buf = r.buf[:0]
		r.open = false
		return msg, true
	case !r.open:
		return bytes.Clone(frame), true
	default:
		r.buf = append(r.buf, frame...)
		return nil, false
	}
}

// Reset drops any partially received message.
func (r *Reassembler) Reset() {
	r.buf = nil
	r.open = false
}

// Buffered is the number of bytes held for the open message.
func (r *Reassembler) Buffered() int { return len(r.buf) }

// Open reports whether a start marker has been seen without its end marker.
func (r *Reassembler) Open() bool { return r.open }
