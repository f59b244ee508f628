// Package loopback is an in-memory radio joining one central and one
// peripheral transport. Callbacks are delivered in order on a single
// dispatch goroutine, the way a host stack delivers them.
package loopback

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/chaz8081/blelink/internal/ble"
	"github.com/chaz8081/blelink/internal/ble/capability"
)

// CentralID is the address the peripheral sees for the loopback central.
const CentralID = "loopback-central"

// ErrNoPeripheral is reported when connecting to an address nobody advertises.
var ErrNoPeripheral = errors.New("loopback: no peripheral at address")

// Option configures a Radio.
type Option func(*Radio)

// WithFrameLimit sets the limit reported on subscription. Default 20.
func WithFrameLimit(n int) Option { return func(r *Radio) { r.frameLimit = n } }

// WithQueueDepth bounds the notifications in flight. Default 4.
func WithQueueDepth(n int) Option { return func(r *Radio) { r.queueDepth = n } }

// WithRSSI sets the signal strength reported for the peripheral.
func WithRSSI(rssi int) Option { return func(r *Radio) { r.rssi = rssi } }

// WithPower sets the initial power state. Default powered on.
func WithPower(s ble.PowerState) Option { return func(r *Radio) { r.power = s } }

// WithAddress sets the peripheral address. Default is a random UUID.
func WithAddress(addr string) Option { return func(r *Radio) { r.address = addr } }

// Radio links a Central and a Peripheral.
type Radio struct {
	d *dispatcher

	frameLimit int
	queueDepth int
	rssi       int
	address    string

	mu          sync.Mutex
	power       ble.PowerState
	centralH    ble.CentralHandler
	periphH     ble.PeripheralHandler
	scanning    bool
	filter      []string
	advertising bool
	adv         ble.AdvertiseConfig
	connected   bool
	subscribed  bool
	queued      int
	wantReady   bool
	lastValue   []byte
}

// New creates a Radio and starts its dispatch goroutine.
func New(opts ...Option) *Radio {
	r := &Radio{
		d:          newDispatcher(),
		frameLimit: 20,
		queueDepth: 4,
		rssi:       -42,
		address:    ble.NewUUID(),
		power:      ble.StatePoweredOn,
	}
	for _, o := range opts {
		o(r)
	}
	r.queueDepth = max(r.queueDepth, 1)
	go r.d.run()
	return r
}

// Close stops callback delivery.
func (r *Radio) Close() { r.d.stop() }

// Address is the peripheral's address as seen by the central.
func (r *Radio) Address() string { return r.address }

// Central returns the central-role transport.
func (r *Radio) Central() *Central { return &Central{r: r} }

// Peripheral returns the peripheral-role transport.
func (r *Radio) Peripheral() *Peripheral { return &Peripheral{r: r} }

// SetPower changes the power state seen by both roles. Powering off drops
// the link and stops scanning and advertising.
func (r *Radio) SetPower(s ble.PowerState) {
	r.mu.Lock()
	r.power = s
	if s != ble.StatePoweredOn {
		r.scanning, r.advertising = false, false
		r.connected, r.subscribed = false, false
		r.queued, r.wantReady = 0, false
	}
	ch, ph := r.centralH, r.periphH
	r.mu.Unlock()

	slog.Debug("[loopback] power", "state", s)
	if ch != nil {
		r.d.post(func() { ch.OnStateChange(s) })
	}
	if ph != nil {
		r.d.post(func() { ph.OnStateChange(s) })
	}
}

// advertiseLocked posts an advertisement when both sides allow it.
func (r *Radio) advertiseLocked() {
	if !r.scanning || !r.advertising || r.centralH == nil {
		return
	}
	if len(r.filter) > 0 && !containsUUID(r.filter, r.adv.ServiceUUID) {
		return
	}
	h := r.centralH
	report := ble.ScanReport{
		Address: r.address,
		Name:    r.adv.LocalName,
		RSSI:    r.rssi,
		Advertisement: ble.Advertisement{
			LocalName:    r.adv.LocalName,
			ServiceUUIDs: []string{r.adv.ServiceUUID},
			Connectable:  true,
		},
	}
	r.d.post(func() { h.OnAdvertisement(report) })
}

func containsUUID(list []string, u string) bool {
	for _, l := range list {
		if ble.SameUUID(l, u) {
			return true
		}
	}
	return false
}

// Central is the central-role side of a Radio.
type Central struct {
	r *Radio
}

var _ ble.CentralTransport = (*Central)(nil)

func (c *Central) SetHandler(h ble.CentralHandler) {
	c.r.mu.Lock()
	c.r.centralH = h
	c.r.mu.Unlock()
}

func (c *Central) State() ble.PowerState {
	c.r.mu.Lock()
	defer c.r.mu.Unlock()
	return c.r.power
}

func (c *Central) Scan(serviceUUIDs []string) error {
	r := c.r
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.power != ble.StatePoweredOn {
		return &ble.NotPoweredOnError{State: r.power}
	}
	r.scanning = true
	r.filter = serviceUUIDs
	r.advertiseLocked()
	return nil
}

func (c *Central) StopScan() error {
	c.r.mu.Lock()
	c.r.scanning = false
	c.r.mu.Unlock()
	return nil
}

func (c *Central) Connect(addr string, _ ble.ConnectParams) error {
	r := c.r
	r.mu.Lock()
	defer r.mu.Unlock()
	h := r.centralH
	if h == nil {
		return nil
	}
	var err error
	if addr != r.address || !r.advertising {
		err = fmt.Errorf("%w %s", ErrNoPeripheral, addr)
	} else {
		r.connected = true
	}
	r.d.post(func() { h.OnConnect(addr, err) })
	return nil
}

func (c *Central) Disconnect(addr string) error {
	r := c.r
	r.mu.Lock()
	defer r.mu.Unlock()
	if addr != r.address || !r.connected {
		return nil
	}
	r.connected = false
	ch, ph := r.centralH, r.periphH
	if r.subscribed {
		r.subscribed = false
		r.queued, r.wantReady = 0, false
		if ph != nil {
			r.d.post(func() { ph.OnSubscriptionChanged(CentralID, false, 0) })
		}
	}
	if ch != nil {
		r.d.post(func() { ch.OnDisconnect(addr, nil) })
	}
	return nil
}

func (c *Central) linked(addr string) (ble.CentralHandler, error) {
	r := c.r
	if addr != r.address || !r.connected {
		return nil, ble.ErrNotConnected
	}
	return r.centralH, nil
}

func (c *Central) DiscoverServices(addr string) error {
	r := c.r
	r.mu.Lock()
	defer r.mu.Unlock()
	h, err := c.linked(addr)
	if err != nil {
		return err
	}
	svcs := []ble.Service{{UUID: r.adv.ServiceUUID, Primary: true}}
	r.d.post(func() { h.OnServices(addr, svcs, nil) })
	return nil
}

func (c *Central) DiscoverCharacteristics(addr, service string) error {
	r := c.r
	r.mu.Lock()
	defer r.mu.Unlock()
	h, err := c.linked(addr)
	if err != nil {
		return err
	}
	var chars []ble.Characteristic
	if ble.SameUUID(service, r.adv.ServiceUUID) {
		chars = append(chars, ble.Characteristic{UUID: r.adv.CharacteristicUUID, Properties: r.adv.Properties})
	}
	r.d.post(func() { h.OnCharacteristics(addr, service, chars, nil) })
	return nil
}

func (c *Central) DiscoverDescriptors(addr, service, char string) error {
	r := c.r
	r.mu.Lock()
	defer r.mu.Unlock()
	h, err := c.linked(addr)
	if err != nil {
		return err
	}
	var descs []ble.Descriptor
	if r.adv.Properties&(capability.Notify|capability.Indicate) != 0 {
		// Client Characteristic Configuration.
		descs = append(descs, ble.Descriptor{UUID: "2902"})
	}
	r.d.post(func() { h.OnDescriptors(addr, service, char, descs, nil) })
	return nil
}

func (c *Central) ReadValue(addr, service, char string) error {
	r := c.r
	r.mu.Lock()
	defer r.mu.Unlock()
	h, err := c.linked(addr)
	if err != nil {
		return err
	}
	v := bytes.Clone(r.lastValue)
	r.d.post(func() { h.OnValue(addr, service, char, v, false, nil) })
	return nil
}

func (c *Central) WriteValue(addr, service, char string, data []byte, withResponse bool) error {
	r := c.r
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := c.linked(addr); err != nil {
		return err
	}
	ph := r.periphH
	if ph == nil {
		return nil
	}
	req := ble.WriteRequest{Central: CentralID, Characteristic: char, Value: bytes.Clone(data)}
	r.d.post(func() { ph.OnWriteRequests([]ble.WriteRequest{req}) })
	return nil
}

func (c *Central) SetNotify(addr, service, char string, enabled bool) error {
	r := c.r
	r.mu.Lock()
	defer r.mu.Unlock()
	h, err := c.linked(addr)
	if err != nil {
		return err
	}
	if !ble.SameUUID(char, r.adv.CharacteristicUUID) {
		r.d.post(func() { h.OnNotifyState(addr, service, char, false, ble.ErrUnsupported) })
		return nil
	}
	r.d.post(func() { h.OnNotifyState(addr, service, char, enabled, nil) })
	if enabled == r.subscribed {
		return nil
	}
	r.subscribed = enabled
	r.queued, r.wantReady = 0, false
	if ph := r.periphH; ph != nil {
		limit := r.frameLimit
		if !enabled {
			limit = 0
		}
		r.d.post(func() { ph.OnSubscriptionChanged(CentralID, enabled, limit) })
	}
	return nil
}

func (c *Central) ReadRSSI(addr string) error {
	r := c.r
	r.mu.Lock()
	defer r.mu.Unlock()
	h, err := c.linked(addr)
	if err != nil {
		return err
	}
	rssi := r.rssi
	r.d.post(func() { h.OnRSSI(addr, rssi, nil) })
	return nil
}

// Peripheral is the peripheral-role side of a Radio.
type Peripheral struct {
	r *Radio
}

var _ ble.PeripheralTransport = (*Peripheral)(nil)

func (p *Peripheral) SetHandler(h ble.PeripheralHandler) {
	p.r.mu.Lock()
	p.r.periphH = h
	p.r.mu.Unlock()
}

func (p *Peripheral) State() ble.PowerState {
	p.r.mu.Lock()
	defer p.r.mu.Unlock()
	return p.r.power
}

func (p *Peripheral) Advertise(cfg ble.AdvertiseConfig) error {
	r := p.r
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.power != ble.StatePoweredOn {
		return &ble.NotPoweredOnError{State: r.power}
	}
	r.adv = cfg
	r.advertising = true
	r.advertiseLocked()
	return nil
}

func (p *Peripheral) StopAdvertising() error {
	p.r.mu.Lock()
	p.r.advertising = false
	p.r.mu.Unlock()
	return nil
}

// UpdateValue queues a notification. It returns false without a subscriber
// and while queueDepth notifications are undelivered; in the latter case
// OnReadyToUpdate follows once one lands.
func (p *Peripheral) UpdateValue(frame []byte) bool {
	r := p.r
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastValue = bytes.Clone(frame)
	if !r.subscribed || r.centralH == nil {
		// Nobody to notify; the unsubscribe callback discards the transfer.
		return false
	}
	if r.queued >= r.queueDepth {
		r.wantReady = true
		return false
	}
	r.queued++
	ch := r.centralH
	addr, svc, char := r.address, r.adv.ServiceUUID, r.adv.CharacteristicUUID
	v := bytes.Clone(frame)
	r.d.post(func() {
		ch.OnValue(addr, svc, char, v, true, nil)
		r.delivered()
	})
	return true
}

func (r *Radio) delivered() {
	r.mu.Lock()
	if r.queued > 0 {
		r.queued--
	}
	ready := r.wantReady
	r.wantReady = false
	ph := r.periphH
	r.mu.Unlock()
	if ready && ph != nil {
		ph.OnReadyToUpdate()
	}
}

// dispatcher runs posted callbacks one at a time, in order. post never
// blocks, so callbacks may post more work.
type dispatcher struct {
	mu    sync.Mutex
	queue []func()
	wake  chan struct{}
	done  chan struct{}
	once  sync.Once
}

func newDispatcher() *dispatcher {
	return &dispatcher{wake: make(chan struct{}, 1), done: make(chan struct{})}
}

func (d *dispatcher) post(fn func()) {
	d.mu.Lock()
	d.queue = append(d.queue, fn)
	d.mu.Unlock()
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *dispatcher) run() {
	for {
		select {
		case <-d.done:
			return
		case <-d.wake:
		}
		for {
			d.mu.Lock()
			if len(d.queue) == 0 {
				d.mu.Unlock()
				break
			}
			fn := d.queue[0]
			d.queue = d.queue[1:]
			d.mu.Unlock()
			fn()
		}
	}
}

func (d *dispatcher) stop() {
	d.once.Do(func() { close(d.done) })
}
