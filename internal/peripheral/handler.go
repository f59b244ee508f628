package peripheral

import (
	"github.com/chaz8081/blelink/internal/ble"
)

// transportHandler adapts transport callbacks onto the Manager.
type transportHandler struct {
	m *Manager
}

var _ ble.PeripheralHandler = transportHandler{}

func (t transportHandler) OnStateChange(state ble.PowerState) {
	m := t.m
	m.mu.Lock()
	prev := m.power
	m.power = state
	if m.closed {
		m.mu.Unlock()
		return
	}
	if state == ble.StatePoweredOn {
		m.mu.Unlock()
		m.log.Info("[peripheral] radio powered on")
		if prev != ble.StatePoweredOn {
			m.startAdvertising()
		}
		return
	}

	var evs []Event
	m.dropLinkLocked()
	if m.state != StatePoweredOff {
		m.state = StatePoweredOff
		evs = append(evs, StateChanged{State: StatePoweredOff})
	}
	if state != prev {
		evs = append(evs, Failed{Err: &ble.NotPoweredOnError{State: state}})
	}
	h := m.handler
	m.mu.Unlock()

	m.log.Warn("[peripheral] radio not powered on", "state", state)
	m.emitAll(h, evs)
}

// dropLinkLocked discards the subscriber, the outbound session and any
// partially reassembled inbound value.
func (m *Manager) dropLinkLocked() {
	m.generation++
	m.session = nil
	m.readyKick = false
	m.reasm.Reset()
	m.central = ""
	m.frameLimit = 0
}

func (t transportHandler) OnSubscriptionChanged(central string, subscribed bool, frameLimit int) {
	m := t.m
	m.mu.Lock()
	if m.closed || m.state == StatePoweredOff {
		m.mu.Unlock()
		return
	}
	var evs []Event
	if subscribed {
		if frameLimit <= 0 {
			frameLimit = m.cfg.FrameLimit
		}
		m.central = central
		m.frameLimit = frameLimit
		if !m.state.Sending() && m.state != StateSubscribed {
			m.state = StateSubscribed
			evs = append(evs, StateChanged{State: StateSubscribed})
		}
		evs = append(evs, Ready{Central: central, FrameLimit: frameLimit})
		m.log.Info("[peripheral] central subscribed", "central", central, "frame_limit", frameLimit)
	} else {
		if m.central != "" && central != m.central {
			m.mu.Unlock()
			return
		}
		if sent, total := m.progressLocked(); total > 0 {
			m.log.Warn("[peripheral] central left mid-transfer", "sent", sent, "total", total)
		}
		m.dropLinkLocked()
		if m.state != StateAdvertising {
			m.state = StateAdvertising
			evs = append(evs, StateChanged{State: StateAdvertising})
		}
		m.log.Info("[peripheral] central unsubscribed", "central", central)
	}
	h := m.handler
	m.mu.Unlock()

	m.emitAll(h, evs)
}

func (m *Manager) progressLocked() (sent, total int) {
	if m.session == nil {
		return 0, 0
	}
	return m.session.sender.Cursor(), m.session.sender.Total()
}

func (t transportHandler) OnReadyToUpdate() {
	m := t.m
	m.mu.Lock()
	if m.session == nil {
		m.mu.Unlock()
		return
	}
	if m.pumping {
		m.readyKick = true
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()
	m.pump()
}

func (t transportHandler) OnWriteRequests(reqs []ble.WriteRequest) {
	m := t.m
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	var (
		evs      []Event
		relevant int
		valued   int
	)
	for _, r := range reqs {
		if !ble.SameUUID(r.Characteristic, m.cfg.CharacteristicUUID) {
			continue
		}
		relevant++
		if len(r.Value) == 0 {
			continue
		}
		valued++
		if msg, ok := m.reasm.Feed(r.Value); ok {
			evs = append(evs, Received{Value: msg})
		}
	}
	if relevant > 0 && valued == 0 {
		evs = append(evs, Failed{Err: ble.ErrNoValue})
	}
	h := m.handler
	m.mu.Unlock()

	if relevant == 0 && len(reqs) > 0 {
		m.log.Debug("[peripheral] ignoring writes to other characteristics", "count", len(reqs))
	}
	m.emitAll(h, evs)
}
