// Package peripheral streams framed payloads to a subscribed central and
// reassembles framed writes coming back.
package peripheral

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/chaz8081/blelink/internal/ble"
	"github.com/chaz8081/blelink/internal/ble/protocol"
)

// ErrClosed is returned by Close when called twice.
var ErrClosed = errors.New("peripheral: manager closed")

// session is one outbound transfer.
type session struct {
	gen    uint64
	sender *protocol.Sender
}

// Manager is the peripheral-side transfer manager.
type Manager struct {
	transport ble.PeripheralTransport
	cfg       Config
	log       *slog.Logger

	mu         sync.Mutex
	handler    Handler
	state      State
	power      ble.PowerState
	central    string
	frameLimit int
	session    *session
	generation uint64
	pumping    bool
	readyKick  bool // OnReadyToUpdate fired while the pump was running
	reasm      *protocol.Reassembler
	closed     bool
}

// Build creates a Manager bound to cfg's service and starts advertising as
// soon as the radio is powered on.
func Build(transport ble.PeripheralTransport, cfg Config, handler Handler) (*Manager, error) {
	if err := cfg.fill(); err != nil {
		return nil, err
	}
	enc, err := protocol.LookupEncoding(cfg.Encoding)
	if err != nil {
		return nil, fmt.Errorf("peripheral: %w", err)
	}
	reasm, err := protocol.NewTextReassembler(cfg.Markers, enc)
	if err != nil {
		return nil, fmt.Errorf("peripheral: %w", err)
	}
	m := &Manager{
		transport: transport,
		cfg:       cfg,
		log:       cfg.Logger,
		handler:   handler,
		state:     StatePoweredOff,
		power:     transport.State(),
		reasm:     reasm,
	}
	transport.SetHandler(transportHandler{m})
	if m.power == ble.StatePoweredOn {
		m.startAdvertising()
	}
	return m, nil
}

// ServiceUUID is the advertised service, random unless configured.
func (m *Manager) ServiceUUID() string { return m.cfg.ServiceUUID }

// CharacteristicUUID is the managed characteristic.
func (m *Manager) CharacteristicUUID() string { return m.cfg.CharacteristicUUID }

// State returns the current state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// FrameLimit returns the frame limit of the current subscriber, or 0.
func (m *Manager) FrameLimit() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.frameLimit
}

// Progress reports the byte cursor of the outbound transfer in flight.
func (m *Manager) Progress() (sent, total int, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return 0, 0, false
	}
	return m.session.sender.Cursor(), m.session.sender.Total(), true
}

// SetHandler replaces the event consumer.
func (m *Manager) SetHandler(h Handler) {
	m.mu.Lock()
	m.handler = h
	m.mu.Unlock()
}

// Send streams data with the configured markers and encoding.
func (m *Manager) Send(data []byte) bool {
	return m.SendData(data, "", "", "")
}

// SendString streams text with the configured markers and encoding.
func (m *Manager) SendString(text string) bool {
	return m.SendText(text, "", "", "")
}

// SendText encodes text and streams it. Empty arguments fall back to the
// configured defaults. It reports whether the transfer was accepted, not
// whether it completed.
func (m *Manager) SendText(text, start, end, encoding string) bool {
	enc, err := m.encoding(encoding)
	if err != nil {
		m.log.Warn("[peripheral] send rejected", "error", err)
		return false
	}
	data, err := enc.Encode(text)
	if err != nil {
		m.log.Warn("[peripheral] send rejected", "encoding", enc.Name(), "error", err)
		return false
	}
	return m.send(data, start, end, enc)
}

// SendData streams raw bytes. Markers are still encoded with encoding.
func (m *Manager) SendData(data []byte, start, end, encoding string) bool {
	enc, err := m.encoding(encoding)
	if err != nil {
		m.log.Warn("[peripheral] send rejected", "error", err)
		return false
	}
	return m.send(bytes.Clone(data), start, end, enc)
}

func (m *Manager) encoding(name string) (protocol.Encoding, error) {
	if name == "" {
		name = m.cfg.Encoding
	}
	return protocol.LookupEncoding(name)
}

func (m *Manager) send(data []byte, start, end string, enc protocol.Encoding) bool {
	markers := m.cfg.Markers
	if start != "" {
		markers.Start = start
	}
	if end != "" {
		markers.End = end
	}
	startB, endB, err := markers.Encode(enc)
	if err != nil {
		m.log.Warn("[peripheral] send rejected", "error", err)
		return false
	}

	m.mu.Lock()
	if m.closed || m.state != StateSubscribed {
		state := m.state
		m.mu.Unlock()
		m.log.Warn("[peripheral] send rejected", "state", state)
		return false
	}
	sender, err := protocol.NewSender(data, startB, endB, m.frameLimit)
	if err != nil {
		m.mu.Unlock()
		m.log.Warn("[peripheral] send rejected", "bytes", len(data), "error", err)
		return false
	}
	m.generation++
	m.session = &session{gen: m.generation, sender: sender}
	limit := m.frameLimit
	m.mu.Unlock()

	m.log.Info("[peripheral] sending", "bytes", len(data), "frame_limit", limit, "frames", protocol.FrameCount(len(data), limit))
	m.pump()
	return true
}

// pump emits frames until the transport rejects one or the transfer ends.
// Only one pump runs at a time; OnReadyToUpdate starts the next.
func (m *Manager) pump() {
	m.mu.Lock()
	if m.pumping {
		m.mu.Unlock()
		return
	}
	m.pumping = true

	for m.session != nil {
		s := m.session
		f, ok := s.sender.Pending()
		if !ok {
			m.session = nil
			break
		}
		var evs []Event
		if st := stateFor(f.Kind); st != m.state {
			m.state = st
			evs = append(evs, StateChanged{State: st})
		}
		m.readyKick = false
		h := m.handler
		m.mu.Unlock()

		m.emitAll(h, evs)
		if s.sender.CollidesWithMarker(f) {
			m.log.Warn("[peripheral] data frame equals a marker; receiver will misread it", "cursor", s.sender.Cursor())
		}
		accepted := m.transport.UpdateValue(f.Data)

		m.mu.Lock()
		if m.session != s {
			// Discarded or replaced while the frame was in the transport.
			continue
		}
		if !accepted {
			if m.readyKick {
				m.readyKick = false
				continue
			}
			m.log.Debug("[peripheral] transport queue full, suspended", "kind", f.Kind, "cursor", s.sender.Cursor())
			break
		}
		s.sender.Advance()
		if s.sender.Done() {
			m.session = nil
			m.state = StateSubscribed
			done := Sent{Bytes: s.sender.Total(), Frames: s.sender.Frames()}
			h := m.handler
			m.pumping = false
			m.mu.Unlock()

			m.log.Info("[peripheral] transfer complete", "bytes", done.Bytes, "frames", done.Frames)
			m.emitAll(h, []Event{StateChanged{State: StateSubscribed}, done})
			return
		}
	}
	m.pumping = false
	m.mu.Unlock()
}

// Close stops advertising and discards any transfer in flight.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.closed = true
	m.generation++
	m.session = nil
	m.reasm.Reset()
	m.central, m.frameLimit = "", 0
	m.state = StatePoweredOff
	m.mu.Unlock()

	if err := m.transport.StopAdvertising(); err != nil {
		return fmt.Errorf("peripheral: stop advertising: %w", err)
	}
	return nil
}

func (m *Manager) startAdvertising() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	h := m.handler
	m.mu.Unlock()

	adv := m.cfg.advertise()
	if err := m.transport.Advertise(adv); err != nil {
		m.log.Error("[peripheral] advertise failed", "error", err)
		m.emit(h, Failed{Err: fmt.Errorf("peripheral: advertise: %w", err)})
		return
	}

	m.mu.Lock()
	changed := m.state == StatePoweredOff
	if changed {
		m.state = StateAdvertising
	}
	h = m.handler
	m.mu.Unlock()

	m.log.Info("[peripheral] advertising", "name", adv.LocalName, "service", adv.ServiceUUID, "characteristic", adv.CharacteristicUUID)
	if changed {
		m.emit(h, StateChanged{State: StateAdvertising})
	}
}

func (m *Manager) emit(h Handler, ev Event) {
	if h != nil {
		h(ev)
	}
}

func (m *Manager) emitAll(h Handler, evs []Event) {
	for _, ev := range evs {
		m.emit(h, ev)
	}
}
