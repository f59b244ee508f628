// Package central manages BLE peripherals seen from the central role:
// scanning, the connect and discovery cascade, and characteristic I/O.
//
// All transport callbacks funnel through one Manager mutex. Events are
// delivered to the consumer after the lock is released so a Handler may
// call back into the Manager.
package central

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chaz8081/blelink/internal/ble"
)

const (
	DefaultConnectTimeout   = 10 * time.Second
	DefaultDiscoveryTimeout = 10 * time.Second
)

// ConnectOption tunes a single Connect call.
type ConnectOption func(*ble.ConnectParams)

// ConnectWithin overrides the connect deadline for one attempt. Zero
// disables it.
func ConnectWithin(d time.Duration) ConnectOption {
	return func(p *ble.ConnectParams) { p.Timeout = d }
}

// ConnectInterval asks the host stack for a connection interval between
// lo and hi.
func ConnectInterval(lo, hi time.Duration) ConnectOption {
	return func(p *ble.ConnectParams) {
		p.MinInterval, p.MaxInterval = lo, hi
	}
}

// Option configures a Manager.
type Option func(*Manager)

// WithConnectTimeout bounds the connecting state. Zero disables the deadline.
func WithConnectTimeout(d time.Duration) Option {
	return func(m *Manager) { m.connectTimeout = d }
}

// WithDiscoveryTimeout bounds each discovery stage. Zero disables it.
func WithDiscoveryTimeout(d time.Duration) Option {
	return func(m *Manager) { m.discoveryTimeout = d }
}

// WithScanFilter limits scanning to peripherals advertising one of uuids.
func WithScanFilter(uuids ...string) Option {
	return func(m *Manager) { m.scanFilter = append([]string(nil), uuids...) }
}

// WithLogger overrides slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.log = l }
}

// Manager is the central-side session manager.
type Manager struct {
	transport        ble.CentralTransport
	log              *slog.Logger
	connectTimeout   time.Duration
	discoveryTimeout time.Duration
	scanFilter       []string

	mu            sync.Mutex
	handler       Handler
	registry      *registry
	scanWanted    bool
	radioScanning bool
	power         ble.PowerState
}

// New creates a Manager and registers it as the transport's handler.
func New(transport ble.CentralTransport, opts ...Option) *Manager {
	m := &Manager{
		transport:        transport,
		log:              slog.Default(),
		connectTimeout:   DefaultConnectTimeout,
		discoveryTimeout: DefaultDiscoveryTimeout,
		registry:         newRegistry(),
		power:            transport.State(),
	}
	for _, o := range opts {
		o(m)
	}
	transport.SetHandler(transportHandler{m})
	return m
}

// SetHandler replaces the event consumer without touching scan state.
func (m *Manager) SetHandler(h Handler) {
	m.mu.Lock()
	m.handler = h
	m.mu.Unlock()
}

// StartScan clears the registry of devices without a link and begins
// scanning. Connected or connecting devices stay registered. If the radio is not
// powered on yet, scanning starts on the next power-on.
func (m *Manager) StartScan(h Handler) error {
	m.mu.Lock()
	if h != nil {
		m.handler = h
	}
	for _, e := range m.registry.reset() {
		stopTimer(e)
	}
	m.scanWanted = true
	power := m.power
	m.mu.Unlock()

	if power != ble.StatePoweredOn {
		m.log.Info("[central] radio not powered on, scan deferred", "state", power)
		return nil
	}
	return m.startRadioScan()
}

func (m *Manager) startRadioScan() error {
	m.mu.Lock()
	if !m.scanWanted || m.radioScanning {
		m.mu.Unlock()
		return nil
	}
	m.radioScanning = true
	filter := m.scanFilter
	m.mu.Unlock()

	if err := m.transport.Scan(filter); err != nil {
		m.mu.Lock()
		m.radioScanning = false
		m.mu.Unlock()
		return fmt.Errorf("central: start scan: %w", err)
	}
	m.log.Info("[central] scanning", "filter", filter)
	return nil
}

// StopScan stops scanning. Calling it while idle is a no-op.
func (m *Manager) StopScan() {
	m.mu.Lock()
	m.scanWanted = false
	running := m.radioScanning
	m.radioScanning = false
	m.mu.Unlock()

	if !running {
		return
	}
	if err := m.transport.StopScan(); err != nil {
		m.log.Warn("[central] stop scan failed", "error", err)
	}
}

// RestartScan is StopScan followed by StartScan. A nil handler keeps the
// current one.
func (m *Manager) RestartScan(h Handler) error {
	m.StopScan()
	return m.StartScan(h)
}

// Scanning reports whether a scan has been requested and not stopped.
func (m *Manager) Scanning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.scanWanted
}

// Devices returns a snapshot of the registry in first-seen order.
func (m *Manager) Devices() []Device {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.registry.snapshot()
}

// Device returns one registry entry.
func (m *Manager) Device(id ble.DeviceID) (Device, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.registry.get(id)
	if e == nil {
		return Device{}, false
	}
	return e.Device, true
}

// Profile returns the GATT tree discovered so far for id.
func (m *Manager) Profile(id ble.DeviceID) (Profile, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.registry.get(id)
	if e == nil || e.profile == nil {
		return Profile{}, false
	}
	return e.profile.clone(), true
}

// Connect starts the connect and discovery cascade for a registered device.
// Options apply to this attempt only.
func (m *Manager) Connect(id ble.DeviceID, opts ...ConnectOption) error {
	m.mu.Lock()
	e := m.registry.get(id)
	if e == nil {
		m.mu.Unlock()
		return fmt.Errorf("central: connect %s: %w", id.Short(), ble.ErrNotFound)
	}
	if e.State == StateConnecting || (e.linked && e.State != StateError) {
		m.mu.Unlock()
		return fmt.Errorf("central: connect %s: %w", id.Short(), ble.ErrAlreadyConnected)
	}

	e.attempt++
	e.Err = nil
	e.closing = false
	e.profile = &Profile{}
	e.pendingChars, e.pendingDescs = 0, 0
	addr, attempt, relink := e.Address, e.attempt, e.linked

	if relink {
		// Link survived the failed cascade; restart discovery on it.
		e.State = StateDiscoveringServices
		m.armTimer(e, ble.StageServices, m.discoveryTimeout)
		m.mu.Unlock()
		m.log.Info("[central] rediscovering", "device", id.Short())
		if err := m.transport.DiscoverServices(addr); err != nil {
			m.fail(id, attempt, ble.StageServices, err)
		}
		return nil
	}

	params := ble.ConnectParams{Timeout: m.connectTimeout}
	for _, opt := range opts {
		opt(&params)
	}
	e.State = StateConnecting
	m.armTimer(e, ble.StageConnect, params.Timeout)
	m.mu.Unlock()

	m.log.Info("[central] connecting", "device", id.Short(), "address", addr)
	if err := m.transport.Connect(addr, params); err != nil {
		return m.fail(id, attempt, ble.StageConnect, err)
	}
	return nil
}

// ConnectString parses s as a device id and connects. An unparsable id is
// reported as not found.
func (m *Manager) ConnectString(s string, opts ...ConnectOption) error {
	id, err := ble.ParseDeviceID(s)
	if err != nil {
		return fmt.Errorf("central: connect %q: %w", s, ble.ErrNotFound)
	}
	return m.Connect(id, opts...)
}

// Disconnect tears down the link to id. Unknown or already disconnected
// devices yield ErrNotFound.
func (m *Manager) Disconnect(id ble.DeviceID) error {
	m.mu.Lock()
	e := m.registry.get(id)
	if e == nil || (!e.linked && e.State != StateConnecting) {
		m.mu.Unlock()
		return fmt.Errorf("central: disconnect %s: %w", id.Short(), ble.ErrNotFound)
	}
	stopTimer(e)
	e.closing = true
	addr, name := e.Address, e.Name
	pending := !e.linked
	if pending {
		// Cancel a connect still in flight; a late OnConnect is dropped.
		e.attempt++
		e.State = StateIdle
		e.closing = false
	}
	h := m.handler
	m.mu.Unlock()

	if err := m.transport.Disconnect(addr); err != nil {
		cerr := &ble.ConnectError{Device: id, Name: name, Stage: ble.StageDisconnect, Err: err}
		m.emit(h, Failed{Err: cerr})
		return cerr
	}
	if pending {
		m.emit(h, Disconnected{ID: id, Name: name})
	}
	return nil
}

// Forget removes a device that is not connected from the registry.
func (m *Manager) Forget(id ble.DeviceID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.registry.get(id)
	if e == nil {
		return fmt.Errorf("central: forget %s: %w", id.Short(), ble.ErrNotFound)
	}
	if e.linked || e.State == StateConnecting {
		return fmt.Errorf("central: forget %s: %w", id.Short(), ble.ErrAlreadyConnected)
	}
	stopTimer(e)
	m.registry.remove(id)
	return nil
}

// ReadValue requests a characteristic read. The result arrives as Updated.
func (m *Manager) ReadValue(id ble.DeviceID, service, char string) error {
	addr, name, err := m.linkedAddress(id)
	if err != nil {
		return err
	}
	if err := m.transport.ReadValue(addr, service, char); err != nil {
		return &ble.UpdateError{Device: id, Name: name, Stage: ble.StageValue, Characteristic: char, Err: err}
	}
	return nil
}

// WriteValue writes data to a characteristic.
func (m *Manager) WriteValue(id ble.DeviceID, service, char string, data []byte, withResponse bool) error {
	addr, name, err := m.linkedAddress(id)
	if err != nil {
		return err
	}
	if err := m.transport.WriteValue(addr, service, char, data, withResponse); err != nil {
		return &ble.UpdateError{Device: id, Name: name, Stage: ble.StageValue, Characteristic: char, Err: err}
	}
	return nil
}

// SetNotify enables or disables notifications on a characteristic.
func (m *Manager) SetNotify(id ble.DeviceID, service, char string, enabled bool) error {
	addr, name, err := m.linkedAddress(id)
	if err != nil {
		return err
	}
	if err := m.transport.SetNotify(addr, service, char, enabled); err != nil {
		return &ble.UpdateError{Device: id, Name: name, Stage: ble.StageNotificationState, Characteristic: char, Err: err}
	}
	return nil
}

// ReadRSSI requests a signal-strength reading. The result arrives as RSSIRead.
func (m *Manager) ReadRSSI(id ble.DeviceID) error {
	addr, name, err := m.linkedAddress(id)
	if err != nil {
		return err
	}
	if err := m.transport.ReadRSSI(addr); err != nil {
		return &ble.UpdateError{Device: id, Name: name, Stage: ble.StageRSSI, Err: err}
	}
	return nil
}

func (m *Manager) linkedAddress(id ble.DeviceID) (addr, name string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.registry.get(id)
	if e == nil {
		return "", "", fmt.Errorf("central: %s: %w", id.Short(), ble.ErrNotFound)
	}
	if !e.linked {
		return "", "", fmt.Errorf("central: %s: %w", id.Short(), ble.ErrNotConnected)
	}
	return e.Address, e.Name, nil
}

// armTimer must be called with m.mu held.
func (m *Manager) armTimer(e *entry, stage ble.Stage, d time.Duration) {
	stopTimer(e)
	if d <= 0 {
		return
	}
	id, attempt := e.ID, e.attempt
	e.timer = time.AfterFunc(d, func() {
		m.expire(id, attempt, stage)
	})
}

func stopTimer(e *entry) {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
}

func (m *Manager) expire(id ble.DeviceID, attempt uint64, stage ble.Stage) {
	m.mu.Lock()
	e := m.registry.get(id)
	if e == nil || e.attempt != attempt {
		m.mu.Unlock()
		return
	}
	if cur, ok := e.State.stage(); !ok || cur != stage {
		m.mu.Unlock()
		return
	}
	addr := e.Address
	m.mu.Unlock()

	m.log.Warn("[central] deadline expired", "device", id.Short(), "stage", stage)
	if m.fail(id, attempt, stage, ble.ErrTimeout) != nil {
		if err := m.transport.Disconnect(addr); err != nil {
			m.log.Warn("[central] disconnect after timeout failed", "device", id.Short(), "error", err)
		}
	}
}

// fail moves id to StateError and emits Failed. It returns the typed error,
// or nil when the attempt is stale.
func (m *Manager) fail(id ble.DeviceID, attempt uint64, stage ble.Stage, cause error) error {
	m.mu.Lock()
	e := m.registry.get(id)
	if e == nil || e.attempt != attempt || e.State == StateError {
		m.mu.Unlock()
		return nil
	}
	var err error
	if stage == ble.StageConnect || stage == ble.StageDisconnect {
		err = &ble.ConnectError{Device: id, Name: e.Name, Stage: stage, Err: cause}
	} else {
		err = &ble.DiscoverError{Device: id, Name: e.Name, Stage: stage, Err: cause}
	}
	stopTimer(e)
	e.State = StateError
	e.Err = err
	h := m.handler
	m.mu.Unlock()

	if errors.Is(cause, ble.ErrTimeout) {
		m.log.Warn("[central] stage timed out", "device", id.Short(), "stage", stage)
	} else {
		m.log.Error("[central] stage failed", "device", id.Short(), "stage", stage, "error", cause)
	}
	m.emit(h, Failed{Err: err})
	return err
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
