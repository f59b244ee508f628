package peripheral

import (
	"bytes"
	"slices"
	"sync"

	"github.com/chaz8081/blelink/internal/ble"
)

// fakeTransport models a notification queue of fixed capacity. Accepted
// frames stay queued until drain.
type fakeTransport struct {
	mu       sync.Mutex
	h        ble.PeripheralHandler
	state    ble.PowerState
	adverts  []ble.AdvertiseConfig
	stops    int
	capacity int // 0 means unlimited
	queued   int
	frames   [][]byte
	attempts int
	onReject func()
	advErr   error
}

func newFakeTransport(state ble.PowerState) *fakeTransport {
	return &fakeTransport{state: state}
}

func (f *fakeTransport) SetHandler(h ble.PeripheralHandler) {
	f.mu.Lock()
	f.h = h
	f.mu.Unlock()
}

func (f *fakeTransport) handler() ble.PeripheralHandler {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.h
}

func (f *fakeTransport) State() ble.PowerState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeTransport) Advertise(cfg ble.AdvertiseConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.advErr != nil {
		return f.advErr
	}
	f.adverts = append(f.adverts, cfg)
	return nil
}

func (f *fakeTransport) StopAdvertising() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	return nil
}

func (f *fakeTransport) UpdateValue(frame []byte) bool {
	f.mu.Lock()
	f.attempts++
	if f.capacity > 0 && f.queued >= f.capacity {
		cb := f.onReject
		f.mu.Unlock()
		if cb != nil {
			cb()
		}
		return false
	}
	f.queued++
	f.frames = append(f.frames, bytes.Clone(frame))
	f.mu.Unlock()
	return true
}

// drain empties the queue without signalling readiness.
func (f *fakeTransport) drain() {
	f.mu.Lock()
	f.queued = 0
	f.mu.Unlock()
}

func (f *fakeTransport) sent() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.frames)
}

func (f *fakeTransport) advertCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.adverts)
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) handle(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func eventsOf[T Event](r *recorder) []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []T
	for _, ev := range r.events {
		if e, ok := ev.(T); ok {
			out = append(out, e)
		}
	}
	return out
}
