// Package protocol implements the framing used to move payloads larger than
// one transport frame over a GATT characteristic.
//
// Wire format:
//
//	[start marker] [chunk_1] ... [chunk_k] [end marker]
//
// Markers are only sent when the payload does not fit in a single frame.
// Each chunk is at most frameLimit bytes. There are no length prefixes,
// sequence numbers or checksums, so a data chunk whose bytes equal an
// encoded marker is indistinguishable from that marker.
package protocol

import (
	"bytes"
	"errors"
	"fmt"
)

// Default marker strings.
const (
	DefaultStartMarker = "BOM"
	DefaultEndMarker   = "EOM"
)

var (
	ErrEmptyPayload = errors.New("protocol: empty payload")
	ErrFrameLimit   = errors.New("protocol: frame limit must be positive")
)

// Markers bracket a multi-frame payload.
type Markers struct {
	Start string
	End   string
}

// DefaultMarkers returns the BOM/EOM pair.
func DefaultMarkers() Markers {
	return Markers{Start: DefaultStartMarker, End: DefaultEndMarker}
}

// Validate rejects empty or identical markers.
func (m Markers) Validate() error {
	if m.Start == "" || m.End == "" {
		return fmt.Errorf("protocol: markers must not be empty")
	}
	if m.Start == m.End {
		return fmt.Errorf("protocol: start and end marker are both %q", m.Start)
	}
	return nil
}

// Encode returns the wire bytes of both markers.
func (m Markers) Encode(enc Encoding) (start, end []byte, err error) {
	if err := m.Validate(); err != nil {
		return nil, nil, err
	}
	if start, err = enc.Encode(m.Start); err != nil {
		return nil, nil, err
	}
	if end, err = enc.Encode(m.End); err != nil {
		return nil, nil, err
	}
	return start, end, nil
}

// FrameKind tells what a frame carries.
type FrameKind int

const (
	FrameSingle FrameKind = iota // whole payload, no markers
	FrameStart
	FrameData
	FrameEnd
)

func (k FrameKind) String() string {
	switch k {
	case FrameSingle:
		return "single"
	case FrameStart:
		return "start"
	case FrameData:
		return "data"
	case FrameEnd:
		return "end"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Frame is one transport write.
type Frame struct {
	Kind FrameKind
	Data []byte
}

// FrameCount returns how many transport writes a payload of n bytes takes.
func FrameCount(n, frameLimit int) int {
	if frameLimit <= 0 {
		return 0
	}
	if n <= frameLimit {
		return 1
	}
	return 2 + (n+frameLimit-1)/frameLimit
}

// Sender walks a payload frame by frame. It never talks to a transport:
// the caller emits Pending, and calls Advance only once the transport has
// accepted the frame. A rejected frame is simply emitted again later, so
// suspension and resumption need no extra state.
type Sender struct {
	payload []byte
	start   []byte
	end     []byte
	limit   int

	next   FrameKind
	offset int // start of the pending data chunk
	cursor int
	frames int
	done   bool
}

// NewSender prepares payload for transmission. start and end are the
// encoded markers; they must fit in one frame when the payload needs them.
func NewSender(payload, start, end []byte, frameLimit int) (*Sender, error) {
	if frameLimit <= 0 {
		return nil, ErrFrameLimit
	}
	if len(payload) == 0 {
		return nil, ErrEmptyPayload
	}
	s := &Sender{
		payload: payload,
		start:   start,
		end:     end,
		limit:   frameLimit,
		next:    FrameSingle,
	}
	if len(payload) > frameLimit {
		if len(start) == 0 || len(end) == 0 {
			return nil, fmt.Errorf("protocol: %d-byte payload needs markers", len(payload))
		}
		if len(start) > frameLimit || len(end) > frameLimit {
			return nil, fmt.Errorf("protocol: markers (%d/%d bytes) exceed frame limit %d", len(start), len(end), frameLimit)
		}
		s.next = FrameStart
	}
	return s, nil
}

// Pending returns the next frame to emit, or false once the transfer is
// complete.
func (s *Sender) Pending() (Frame, bool) {
	if s.done {
		return Frame{}, false
	}
	switch s.next {
	case FrameSingle:
		return Frame{Kind: FrameSingle, Data: s.payload}, true
	case FrameStart:
		return Frame{Kind: FrameStart, Data: s.start}, true
	case FrameData:
		return Frame{Kind: FrameData, Data: s.payload[s.offset:s.chunkEnd()]}, true
	default:
		return Frame{Kind: FrameEnd, Data: s.end}, true
	}
}

// Advance records that the pending frame was accepted.
func (s *Sender) Advance() {
	if s.done {
		return
	}
	s.frames++
	switch s.next {
	case FrameSingle:
		s.cursor = len(s.payload)
		s.done = true
	case FrameStart:
		s.next = FrameData
	case FrameData:
		s.offset = s.chunkEnd()
		if s.offset == len(s.payload) {
			// The last chunk counts once the end marker is accepted.
			s.next = FrameEnd
			break
		}
		s.cursor = s.offset
	case FrameEnd:
		s.cursor = len(s.payload)
		s.done = true
	}
}

func (s *Sender) chunkEnd() int {
	return min(s.offset+s.limit, len(s.payload))
}

// Cursor is the number of payload bytes accepted so far. It reaches Total
// only when the last frame (the end marker or the single frame) is accepted.
func (s *Sender) Cursor() int { return s.cursor }

// Total is the payload length.
func (s *Sender) Total() int { return len(s.payload) }

// Frames is the number of frames accepted so far, markers included.
func (s *Sender) Frames() int { return s.frames }

// Done reports whether every frame has been accepted.
func (s *Sender) Done() bool { return s.done }

// CollidesWithMarker reports whether f is a data frame whose bytes equal
// one of the markers. The receiver will misread such a frame.
func (s *Sender) CollidesWithMarker(f Frame) bool {
	if f.Kind != FrameData {
		return false
	}
	return bytes.Equal(f.Data, s.start) || bytes.Equal(f.Data, s.end)
}

// Plan returns the complete frame sequence for payload, as if the
// transport accepted every frame.
func Plan(payload []byte, m Markers, enc Encoding, frameLimit int) ([][]byte, error) {
	start, end, err := m.Encode(enc)
	if err != nil {
		return nil, err
	}
	s, err := NewSender(payload, start, end, frameLimit)
	if err != nil {
		return nil, err
	}
	frames := make([][]byte, 0, FrameCount(len(payload), frameLimit))
	for {
		f, ok := s.Pending()
		if !ok {
			return frames, nil
		}
		frames = append(frames, bytes.Clone(f.Data))
		s.Advance()
	}
}
