package protocol

import (
	"bytes"
	"math/rand"
	"testing"
)

func testPayload(n int) []byte {
	p := make([]byte, n)
	r := rand.New(rand.NewSource(int64(n)))
	r.Read(p)
	return p
}

func TestPlanFitsInOneFrame(t *testing.T) {
	payload := []byte("hello world")
	frames, err := Plan(payload, DefaultMarkers(), UTF8, 64)
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	if !bytes.Equal(frames[0], payload) {
		t.Errorf("frame[0] = %q, want %q", frames[0], payload)
	}
}

func TestPlanExactFitHasNoMarkers(t *testing.T) {
	payload := bytes.Repeat([]byte("a"), 64)
	frames, err := Plan(payload, DefaultMarkers(), UTF8, 64)
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
}

func TestPlan1000BytesFrameLimit64(t *testing.T) {
	payload := testPayload(1000)
	frames, err := Plan(payload, DefaultMarkers(), UTF8, 64)
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	if len(frames) != 18 {
		t.Fatalf("got %d frames, want 18", len(frames))
	}
	if string(frames[0]) != "BOM" {
		t.Errorf("first frame = %q, want BOM", frames[0])
	}
	if string(frames[17]) != "EOM" {
		t.Errorf("last frame = %q, want EOM", frames[17])
	}
	for i := 1; i <= 15; i++ {
		if len(frames[i]) != 64 {
			t.Errorf("frame[%d] len = %d, want 64", i, len(frames[i]))
		}
	}
	if len(frames[16]) != 40 {
		t.Errorf("final data frame len = %d, want 40", len(frames[16]))
	}
	if got := bytes.Join(frames[1:17], nil); !bytes.Equal(got, payload) {
		t.Error("data frames do not concatenate to the payload")
	}
}

func TestPlanFrameCounts(t *testing.T) {
	tests := []struct {
		size, limit int
		wantFrames  int
		wantLast    int
	}{
		{size: 1, limit: 20, wantFrames: 1, wantLast: 1},
		{size: 20, limit: 20, wantFrames: 1, wantLast: 20},
		{size: 21, limit: 20, wantFrames: 4, wantLast: 1},
		{size: 40, limit: 20, wantFrames: 4, wantLast: 20},
		{size: 41, limit: 20, wantFrames: 5, wantLast: 1},
		{size: 512, limit: 185, wantFrames: 5, wantLast: 142},
	}
	for _, tt := range tests {
		frames, err := Plan(testPayload(tt.size), DefaultMarkers(), UTF8, tt.limit)
		if err != nil {
			t.Fatalf("Plan(%d, %d) error = %v", tt.size, tt.limit, err)
		}
		if len(frames) != tt.wantFrames {
			t.Errorf("Plan(%d, %d) = %d frames, want %d", tt.size, tt.limit, len(frames), tt.wantFrames)
		}
		if got := FrameCount(tt.size, tt.limit); got != tt.wantFrames {
			t.Errorf("FrameCount(%d, %d) = %d, want %d", tt.size, tt.limit, got, tt.wantFrames)
		}
		last := frames[len(frames)-1]
		if len(frames) > 1 {
			last = frames[len(frames)-2]
		}
		if len(last) != tt.wantLast {
			t.Errorf("Plan(%d, %d) final data frame = %d bytes, want %d", tt.size, tt.limit, len(last), tt.wantLast)
		}
		for i, f := range frames {
			if len(f) > tt.limit {
				t.Errorf("frame[%d] len=%d exceeds limit %d", i, len(f), tt.limit)
			}
		}
	}
}

func TestNewSenderRejects(t *testing.T) {
	if _, err := NewSender(nil, []byte("BOM"), []byte("EOM"), 20); err != ErrEmptyPayload {
		t.Errorf("empty payload error = %v, want ErrEmptyPayload", err)
	}
	if _, err := NewSender([]byte("x"), []byte("BOM"), []byte("EOM"), 0); err != ErrFrameLimit {
		t.Errorf("zero limit error = %v, want ErrFrameLimit", err)
	}
	if _, err := NewSender(testPayload(10), []byte("BOM"), []byte("EOM"), 2); err == nil {
		t.Error("markers larger than the frame limit should be rejected")
	}
}

func TestSenderResumesAtPendingFrame(t *testing.T) {
	payload := testPayload(100)
	s, err := NewSender(payload, []byte("BOM"), []byte("EOM"), 30)
	if err != nil {
		t.Fatalf("NewSender() error = %v", err)
	}

	// Transport accepts start + one chunk, then rejects.
	var wire [][]byte
	accept := func(n int) {
		for i := 0; i < n; i++ {
			f, ok := s.Pending()
			if !ok {
				return
			}
			wire = append(wire, bytes.Clone(f.Data))
			s.Advance()
		}
	}
	accept(2)
	f, _ := s.Pending()
	if f.Kind != FrameData || s.Cursor() != 30 {
		t.Fatalf("after 2 accepts: pending %s, cursor %d; want data at 30", f.Kind, s.Cursor())
	}

	// A rejected frame leaves everything untouched.
	again, _ := s.Pending()
	if !bytes.Equal(again.Data, f.Data) || s.Cursor() != 30 {
		t.Fatal("Pending() changed without Advance()")
	}

	accept(100)
	if !s.Done() {
		t.Fatal("sender not done after draining")
	}
	if s.Cursor() != s.Total() {
		t.Errorf("Cursor() = %d, want %d", s.Cursor(), s.Total())
	}
	if s.Frames() != 6 {
		t.Errorf("Frames() = %d, want 6", s.Frames())
	}
	if got := bytes.Join(wire[1:len(wire)-1], nil); !bytes.Equal(got, payload) {
		t.Error("resumed transfer does not reproduce the payload")
	}
}

func TestSenderCursorMonotonic(t *testing.T) {
	tests := []struct {
		name     string
		size     int
		lastKind FrameKind
	}{
		{"multi-frame", 257, FrameEnd},
		{"exact chunks", 64, FrameEnd},
		{"single frame", 16, FrameSingle},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := NewSender(testPayload(tt.size), []byte("BOM"), []byte("EOM"), 16)
			last := 0
			reachedTotal := 0
			for {
				f, ok := s.Pending()
				if !ok {
					break
				}
				s.Advance()
				if s.Cursor() < last {
					t.Fatalf("cursor went backwards: %d -> %d", last, s.Cursor())
				}
				if s.Cursor() == s.Total() && last != s.Total() {
					reachedTotal++
					if f.Kind != tt.lastKind {
						t.Errorf("cursor reached total on a %s frame, want %s", f.Kind, tt.lastKind)
					}
				}
				last = s.Cursor()
			}
			if reachedTotal != 1 {
				t.Errorf("cursor reached total %d times, want 1", reachedTotal)
			}
		})
	}
}

func TestSenderCursorWaitsForEndMarker(t *testing.T) {
	s, _ := NewSender(testPayload(20), []byte("BOM"), []byte("EOM"), 10)
	for i := 0; i < 3; i++ { // start + both data chunks
		s.Advance()
	}
	if f, _ := s.Pending(); f.Kind != FrameEnd {
		t.Fatalf("pending %s, want end", f.Kind)
	}
	if s.Cursor() == s.Total() {
		t.Errorf("Cursor() = %d before the end marker was accepted", s.Cursor())
	}
	s.Advance()
	if s.Cursor() != s.Total() || !s.Done() {
		t.Errorf("after end marker: Cursor() = %d, Done() = %v", s.Cursor(), s.Done())
	}
}

func TestSenderDetectsMarkerCollision(t *testing.T) {
	payload := []byte("abcBOMxyz")
	s, _ := NewSender(payload, []byte("BOM"), []byte("EOM"), 3)
	collisions := 0
	for {
		f, ok := s.Pending()
		if !ok {
			break
		}
		if s.CollidesWithMarker(f) {
			collisions++
		}
		s.Advance()
	}
	if collisions != 1 {
		t.Errorf("collisions = %d, want 1", collisions)
	}
}

func TestMarkersValidate(t *testing.T) {
	tests := []struct {
		name    string
		m       Markers
		wantErr bool
	}{
		{"defaults", DefaultMarkers(), false},
		{"custom", Markers{Start: "<<", End: ">>"}, false},
		{"empty start", Markers{End: "EOM"}, true},
		{"same", Markers{Start: "X", End: "X"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.m.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
