package central

import (
	"bytes"
	"slices"
	"time"

	"github.com/chaz8081/blelink/internal/ble"
)

// transportHandler adapts transport callbacks onto the Manager.
type transportHandler struct {
	m *Manager
}

var _ ble.CentralHandler = transportHandler{}

func (t transportHandler) OnStateChange(state ble.PowerState) {
	m := t.m
	m.mu.Lock()
	prev := m.power
	m.power = state
	h := m.handler
	var evs []Event
	evs = append(evs, StateChanged{State: state})
	if state != ble.StatePoweredOn {
		m.radioScanning = false
		// Links do not survive a radio power loss.
		for _, id := range m.registry.order {
			e := m.registry.entries[id]
			if e.linked || e.State == StateConnecting {
				stopTimer(e)
				e.attempt++
				e.linked, e.closing = false, false
				e.State = StateIdle
				evs = append(evs, Disconnected{ID: e.ID, Name: e.Name})
			}
		}
		if state != prev {
			evs = append(evs, Failed{Err: &ble.NotPoweredOnError{State: state}})
		}
	}
	wantScan := m.scanWanted
	m.mu.Unlock()

	m.log.Info("[central] radio state", "state", state)
	m.emitAll(h, evs)

	if state == ble.StatePoweredOn && wantScan {
		if err := m.startRadioScan(); err != nil {
			m.log.Error("[central] deferred scan failed", "error", err)
		}
	}
}

func (t transportHandler) OnAdvertisement(r ble.ScanReport) {
	m := t.m
	id := ble.DeviceIDFromAddress(r.Address)
	now := time.Now()

	m.mu.Lock()
	if !m.scanWanted {
		m.mu.Unlock()
		return
	}
	e, created := m.registry.upsert(id, now)
	e.Address = r.Address
	if r.Name != "" {
		e.Name = r.Name
	} else if r.Advertisement.LocalName != "" {
		e.Name = r.Advertisement.LocalName
	}
	e.Advertisement = r.Advertisement
	e.RSSI = r.RSSI
	e.LastSeen = now
	ev := Scanned{Devices: m.registry.snapshot(), Device: e.Device}
	h := m.handler
	m.mu.Unlock()

	if created {
		m.log.Debug("[central] discovered", "device", id.Short(), "name", r.Name, "rssi", r.RSSI)
	}
	m.emit(h, ev)
}

func (t transportHandler) OnConnect(addr string, err error) {
	m := t.m
	id := ble.DeviceIDFromAddress(addr)

	m.mu.Lock()
	e := m.registry.get(id)
	if e == nil || e.State != StateConnecting {
		m.mu.Unlock()
		if err == nil {
			// Link we no longer want (cancelled or timed out).
			m.log.Debug("[central] dropping stray connection", "address", addr)
			if derr := m.transport.Disconnect(addr); derr != nil {
				m.log.Warn("[central] stray disconnect failed", "address", addr, "error", derr)
			}
		}
		return
	}
	attempt := e.attempt
	if err != nil {
		m.mu.Unlock()
		m.fail(id, attempt, ble.StageConnect, err)
		return
	}
	e.linked = true
	e.State = StateConnected
	ev := Connected{ID: id, Name: e.Name}
	e.State = StateDiscoveringServices
	m.armTimer(e, ble.StageServices, m.discoveryTimeout)
	h := m.handler
	m.mu.Unlock()

	m.log.Info("[central] connected", "device", id.Short(), "name", ev.Name)
	m.emit(h, ev)
	if err := m.transport.DiscoverServices(addr); err != nil {
		m.fail(id, attempt, ble.StageServices, err)
	}
}

func (t transportHandler) OnDisconnect(addr string, err error) {
	m := t.m
	id := ble.DeviceIDFromAddress(addr)

	m.mu.Lock()
	e := m.registry.get(id)
	if e == nil || (!e.linked && e.State != StateConnecting) {
		m.mu.Unlock()
		return
	}
	stopTimer(e)
	e.attempt++
	e.linked = false
	var evs []Event
	if err != nil && !e.closing {
		evs = append(evs, Failed{Err: &ble.ConnectError{Device: id, Name: e.Name, Stage: ble.StageDisconnect, Err: err}})
	}
	if e.State != StateError || e.closing {
		e.State = StateIdle
	}
	e.closing = false
	evs = append(evs, Disconnected{ID: id, Name: e.Name})
	h := m.handler
	m.mu.Unlock()

	m.log.Info("[central] disconnected", "device", id.Short(), "error", err)
	m.emitAll(h, evs)
}

func (t transportHandler) OnServices(addr string, services []ble.Service, err error) {
	m := t.m
	id := ble.DeviceIDFromAddress(addr)

	m.mu.Lock()
	e := m.registry.get(id)
	if e == nil || e.State != StateDiscoveringServices {
		m.mu.Unlock()
		return
	}
	attempt := e.attempt
	if err != nil {
		m.mu.Unlock()
		m.fail(id, attempt, ble.StageServices, err)
		return
	}
	e.profile.setServices(services)
	evs := []Event{ServicesDiscovered{ID: id, Name: e.Name, Services: slices.Clone(services)}}
	if len(services) == 0 {
		evs = append(evs, m.readyLocked(e))
	} else {
		e.State = StateDiscoveringCharacteristics
		e.pendingChars = len(services)
		m.armTimer(e, ble.StageCharacteristics, m.discoveryTimeout)
	}
	h := m.handler
	m.mu.Unlock()

	m.log.Debug("[central] services discovered", "device", id.Short(), "count", len(services))
	m.emitAll(h, evs)
	if len(services) == 0 {
		return
	}
	for _, s := range services {
		if err := m.transport.DiscoverCharacteristics(addr, s.UUID); err != nil {
			m.fail(id, attempt, ble.StageCharacteristics, err)
			return
		}
	}
}

func (t transportHandler) OnCharacteristics(addr, service string, chars []ble.Characteristic, err error) {
	m := t.m
	id := ble.DeviceIDFromAddress(addr)

	m.mu.Lock()
	e := m.registry.get(id)
	if e == nil || e.State != StateDiscoveringCharacteristics {
		m.mu.Unlock()
		return
	}
	attempt := e.attempt
	if err != nil {
		m.mu.Unlock()
		m.fail(id, attempt, ble.StageCharacteristics, err)
		return
	}
	e.profile.setCharacteristics(service, chars)
	e.pendingChars--
	e.pendingDescs += len(chars)
	evs := []Event{CharacteristicsDiscovered{ID: id, Name: e.Name, Service: service, Characteristics: slices.Clone(chars)}}
	evs = append(evs, m.advanceLocked(e)...)
	h := m.handler
	m.mu.Unlock()

	m.log.Debug("[central] characteristics discovered", "device", id.Short(), "service", ble.ShortUUID(service), "count", len(chars))
	m.emitAll(h, evs)
	for _, c := range chars {
		if err := m.transport.DiscoverDescriptors(addr, service, c.UUID); err != nil {
			m.fail(id, attempt, ble.StageDescriptors, err)
			return
		}
	}
}

func (t transportHandler) OnDescriptors(addr, service, char string, descs []ble.Descriptor, err error) {
	m := t.m
	id := ble.DeviceIDFromAddress(addr)

	m.mu.Lock()
	e := m.registry.get(id)
	// Descriptor requests go out as soon as a service's characteristics
	// arrive, so results can land while other services are still pending.
	if e == nil || (e.State != StateDiscoveringCharacteristics && e.State != StateDiscoveringDescriptors) || e.pendingDescs == 0 {
		m.mu.Unlock()
		return
	}
	attempt := e.attempt
	if err != nil {
		m.mu.Unlock()
		m.fail(id, attempt, ble.StageDescriptors, err)
		return
	}
	e.profile.setDescriptors(service, char, descs)
	e.pendingDescs--
	evs := []Event{DescriptorsDiscovered{ID: id, Name: e.Name, Service: service, Characteristic: char, Descriptors: slices.Clone(descs)}}
	evs = append(evs, m.advanceLocked(e)...)
	h := m.handler
	m.mu.Unlock()

	m.emitAll(h, evs)
}

// advanceLocked moves the cascade forward once the outstanding requests of
// a stage are answered.
func (m *Manager) advanceLocked(e *entry) []Event {
	if e.pendingChars > 0 {
		return nil
	}
	if e.pendingDescs > 0 {
		if e.State != StateDiscoveringDescriptors {
			e.State = StateDiscoveringDescriptors
			m.armTimer(e, ble.StageDescriptors, m.discoveryTimeout)
		}
		return nil
	}
	return []Event{m.readyLocked(e)}
}

func (m *Manager) readyLocked(e *entry) Event {
	stopTimer(e)
	e.State = StateReady
	m.log.Info("[central] ready", "device", e.ID.Short(), "services", len(e.profile.Services), "characteristics", e.profile.CharacteristicCount())
	return Ready{ID: e.ID, Name: e.Name, Profile: e.profile.clone()}
}

func (t transportHandler) OnValue(addr, service, char string, value []byte, notification bool, err error) {
	m := t.m
	id := ble.DeviceIDFromAddress(addr)

	m.mu.Lock()
	e := m.registry.get(id)
	if e == nil || !e.linked {
		m.mu.Unlock()
		return
	}
	var ev Event
	if err != nil {
		ev = Failed{Err: &ble.UpdateError{Device: id, Name: e.Name, Stage: ble.StageValue, Characteristic: char, Err: err}}
	} else {
		if c, ok := e.profile.Characteristic(service, char); ok {
			c.Value = bytes.Clone(value)
		}
		ev = Updated{ID: id, Kind: UpdateValue, Service: service, Characteristic: char, Value: bytes.Clone(value), Notification: notification}
	}
	h := m.handler
	m.mu.Unlock()

	m.emit(h, ev)
}

func (t transportHandler) OnNotifyState(addr, service, char string, enabled bool, err error) {
	m := t.m
	id := ble.DeviceIDFromAddress(addr)

	m.mu.Lock()
	e := m.registry.get(id)
	if e == nil || !e.linked {
		m.mu.Unlock()
		return
	}
	var ev Event
	if err != nil {
		ev = Failed{Err: &ble.UpdateError{Device: id, Name: e.Name, Stage: ble.StageNotificationState, Characteristic: char, Err: err}}
	} else {
		if c, ok := e.profile.Characteristic(service, char); ok {
			c.Notifying = enabled
		}
		ev = Updated{ID: id, Kind: UpdateNotificationState, Service: service, Characteristic: char, Notifying: enabled}
	}
	h := m.handler
	m.mu.Unlock()

	m.emit(h, ev)
}

func (t transportHandler) OnServicesModified(addr string, invalidated []string) {
	m := t.m
	id := ble.DeviceIDFromAddress(addr)

	m.mu.Lock()
	e := m.registry.get(id)
	if e == nil || !e.linked {
		m.mu.Unlock()
		return
	}
	e.profile.removeServices(invalidated)
	h := m.handler
	m.mu.Unlock()

	m.log.Info("[central] services modified", "device", id.Short(), "invalidated", invalidated)
	m.emit(h, ServicesModified{ID: id, Invalidated: slices.Clone(invalidated)})
}

func (t transportHandler) OnRSSI(addr string, rssi int, err error) {
	m := t.m
	id := ble.DeviceIDFromAddress(addr)

	m.mu.Lock()
	e := m.registry.get(id)
	if e == nil {
		m.mu.Unlock()
		return
	}
	var ev Event
	if err != nil {
		ev = Failed{Err: &ble.UpdateError{Device: id, Name: e.Name, Stage: ble.StageRSSI, Err: err}}
	} else {
		e.RSSI = rssi
		ev = RSSIRead{ID: id, RSSI: rssi}
	}
	h := m.handler
	m.mu.Unlock()

	m.emit(h, ev)
}
