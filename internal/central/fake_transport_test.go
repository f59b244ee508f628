package central

import (
	"fmt"
	"slices"
	"sync"

	"github.com/chaz8081/blelink/internal/ble"
)

// fakeTransport records calls; tests drive results through handler().
type fakeTransport struct {
	mu      sync.Mutex
	h       ble.CentralHandler
	state   ble.PowerState
	calls   []string
	filter  []string
	failOn  map[string]error // call verb -> synchronous error
	readErr error
	params  ble.ConnectParams // last Connect
}

func newFakeTransport(state ble.PowerState) *fakeTransport {
	return &fakeTransport{state: state, failOn: make(map[string]error)}
}

func (f *fakeTransport) record(verb string, args ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	call := verb
	for _, a := range args {
		call += " " + a
	}
	f.calls = append(f.calls, call)
	return f.failOn[verb]
}

func (f *fakeTransport) handler() ble.CentralHandler {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.h
}

func (f *fakeTransport) called(call string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Contains(f.calls, call)
}

func (f *fakeTransport) lastParams() ble.ConnectParams {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.params
}

func (f *fakeTransport) count(call string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == call {
			n++
		}
	}
	return n
}

func (f *fakeTransport) SetHandler(h ble.CentralHandler) {
	f.mu.Lock()
	f.h = h
	f.mu.Unlock()
}

func (f *fakeTransport) State() ble.PowerState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeTransport) Scan(uuids []string) error {
	f.mu.Lock()
	f.filter = uuids
	f.mu.Unlock()
	return f.record("scan")
}

func (f *fakeTransport) StopScan() error          { return f.record("stop-scan") }
func (f *fakeTransport) Connect(addr string, params ble.ConnectParams) error {
	f.mu.Lock()
	f.params = params
	f.mu.Unlock()
	return f.record("connect", addr)
}
func (f *fakeTransport) Disconnect(addr string) error {
	return f.record("disconnect", addr)
}
func (f *fakeTransport) DiscoverServices(addr string) error { return f.record("services", addr) }
func (f *fakeTransport) DiscoverCharacteristics(addr, svc string) error {
	return f.record("chars", addr, svc)
}
func (f *fakeTransport) DiscoverDescriptors(addr, svc, char string) error {
	return f.record("descs", addr, svc, char)
}
func (f *fakeTransport) ReadValue(addr, svc, char string) error { return f.record("read", addr, svc, char) }
func (f *fakeTransport) WriteValue(addr, svc, char string, data []byte, withResponse bool) error {
	return f.record("write", addr, svc, char, fmt.Sprintf("%x", data), fmt.Sprint(withResponse))
}
func (f *fakeTransport) SetNotify(addr, svc, char string, enabled bool) error {
	return f.record("notify", addr, svc, char, fmt.Sprint(enabled))
}
func (f *fakeTransport) ReadRSSI(addr string) error { return f.record("rssi", addr) }

// recorder collects events delivered to a Handler.
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) handle(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) all() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.events)
}

func eventsOf[T Event](r *recorder) []T {
	var out []T
	for _, ev := range r.all() {
		if e, ok := ev.(T); ok {
			out = append(out, e)
		}
	}
	return out
}
