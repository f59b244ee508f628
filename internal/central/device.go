package central

import (
	"fmt"
	"time"

	"github.com/chaz8081/blelink/internal/ble"
)

// State is the per-device connection state.
type State int

const (
	StateDiscovered State = iota
	StateConnecting
	StateConnected
	StateDiscoveringServices
	StateDiscoveringCharacteristics
	StateDiscoveringDescriptors
	StateReady
	StateIdle  // disconnected
	StateError // terminal until Connect is issued again
)

func (s State) String() string {
	switch s {
	case StateDiscovered:
		return "discovered"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDiscoveringServices:
		return "discovering-services"
	case StateDiscoveringCharacteristics:
		return "discovering-characteristics"
	case StateDiscoveringDescriptors:
		return "discovering-descriptors"
	case StateReady:
		return "ready"
	case StateIdle:
		return "idle"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// stage maps an in-flight state to the stage a failure would be tagged with.
func (s State) stage() (ble.Stage, bool) {
	switch s {
	case StateConnecting:
		return ble.StageConnect, true
	case StateDiscoveringServices:
		return ble.StageServices, true
	case StateDiscoveringCharacteristics:
		return ble.StageCharacteristics, true
	case StateDiscoveringDescriptors:
		return ble.StageDescriptors, true
	}
	return 0, false
}

// Device is a snapshot of one registry entry.
type Device struct {
	ID            ble.DeviceID
	Address       string
	Name          string
	Advertisement ble.Advertisement
	RSSI          int
	State         State
	Err           error // set while State is StateError
	FirstSeen     time.Time
	LastSeen      time.Time
}

// entry is the mutable registry record behind a Device.
type entry struct {
	Device

	profile *Profile
	linked  bool // transport link is up
	closing bool // Disconnect was requested

	attempt      uint64 // bumped on every connect/disconnect; stale timers and callbacks compare against it
	timer        *time.Timer
	pendingChars int
	pendingDescs int
}

// registry keeps devices unique by id, in first-seen order.
type registry struct {
	order   []ble.DeviceID
	entries map[ble.DeviceID]*entry
}

func newRegistry() *registry {
	return &registry{entries: make(map[ble.DeviceID]*entry)}
}

func (r *registry) get(id ble.DeviceID) *entry {
	return r.entries[id]
}

// upsert returns the entry for id, creating it when absent.
func (r *registry) upsert(id ble.DeviceID, now time.Time) (*entry, bool) {
	if e, ok := r.entries[id]; ok {
		return e, false
	}
	e := &entry{Device: Device{ID: id, State: StateDiscovered, FirstSeen: now}}
	r.entries[id] = e
	r.order = append(r.order, id)
	return e, true
}

func (r *registry) remove(id ble.DeviceID) {
	if _, ok := r.entries[id]; !ok {
		return
	}
	delete(r.entries, id)
	for i, o := range r.order {
		if o == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// reset drops every entry without a link or a connect in flight and
// returns the dropped ones. Live entries keep their place.
func (r *registry) reset() []*entry {
	var dropped []*entry
	kept := r.order[:0]
	for _, id := range r.order {
		e := r.entries[id]
		if e.linked || e.State == StateConnecting {
			kept = append(kept, id)
			continue
		}
		dropped = append(dropped, e)
		delete(r.entries, id)
	}
	r.order = kept
	return dropped
}

func (r *registry) snapshot() []Device {
	out := make([]Device, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.entries[id].Device)
	}
	return out
}

func (r *registry) len() int { return len(r.order) }
