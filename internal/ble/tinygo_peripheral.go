//go:build !darwin

package ble

import (
	"bytes"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"tinygo.org/x/bluetooth"
)

// TinyGoPeripheral implements PeripheralTransport on tinygo-org/bluetooth.
//
// The library exposes neither subscription nor MTU events, nor a
// ready-to-update signal. Advertising start therefore stands in for a
// subscription at the configured frame limit, and a rejected notification
// schedules OnReadyToUpdate after the retry interval.
type TinyGoPeripheral struct {
	adapter       *bluetooth.Adapter
	frameLimit    int
	retryInterval time.Duration

	mu         sync.Mutex
	h          PeripheralHandler
	state      PowerState
	char       bluetooth.Characteristic
	registered string // characteristic UUID added to the GATT server
	adv        *bluetooth.Advertisement
	retry      *time.Timer
	echo       []byte // frame being notified; BlueZ reports it back as a write
}

// NewTinyGoPeripheral wraps the default adapter.
func NewTinyGoPeripheral(frameLimit int, retryInterval time.Duration) *TinyGoPeripheral {
	return &TinyGoPeripheral{
		adapter:       bluetooth.DefaultAdapter,
		frameLimit:    frameLimit,
		retryInterval: retryInterval,
		state:         StatePoweredOff,
	}
}

// Enable powers the adapter up and reports the result to the handler.
func (p *TinyGoPeripheral) Enable() error {
	if err := p.adapter.Enable(); err != nil {
		p.setState(StateUnsupported)
		return fmt.Errorf("ble: enable adapter: %w", err)
	}
	p.setState(StatePoweredOn)
	return nil
}

func (p *TinyGoPeripheral) setState(s PowerState) {
	p.mu.Lock()
	p.state = s
	h := p.h
	p.mu.Unlock()
	if h != nil {
		h.OnStateChange(s)
	}
}

func (p *TinyGoPeripheral) SetHandler(h PeripheralHandler) {
	p.mu.Lock()
	p.h = h
	p.mu.Unlock()
}

func (p *TinyGoPeripheral) State() PowerState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Advertise registers the service once and starts advertising it.
func (p *TinyGoPeripheral) Advertise(cfg AdvertiseConfig) error {
	svcUUID, err := parseUUID(cfg.ServiceUUID)
	if err != nil {
		return err
	}
	charUUID, err := parseUUID(cfg.CharacteristicUUID)
	if err != nil {
		return err
	}

	p.mu.Lock()
	needService := p.registered == ""
	p.mu.Unlock()

	if needService {
		charID := cfg.CharacteristicUUID
		err := p.adapter.AddService(&bluetooth.Service{
			UUID: svcUUID,
			Characteristics: []bluetooth.CharacteristicConfig{{
				Handle: &p.char,
				UUID:   charUUID,
				Flags:  permissions(cfg.Properties),
				WriteEvent: func(client bluetooth.Connection, offset int, value []byte) {
					p.written(strconv.Itoa(int(client)), charID, offset, value)
				},
			}},
		})
		if err != nil {
			return fmt.Errorf("ble: add service %s: %w", cfg.ServiceUUID, err)
		}
		p.mu.Lock()
		p.registered = cfg.CharacteristicUUID
		p.mu.Unlock()
	}

	adv := p.adapter.DefaultAdvertisement()
	if err := adv.Configure(bluetooth.AdvertisementOptions{
		LocalName:    cfg.LocalName,
		ServiceUUIDs: []bluetooth.UUID{svcUUID},
	}); err != nil {
		return fmt.Errorf("ble: configure advertisement: %w", err)
	}
	if err := adv.Start(); err != nil {
		return fmt.Errorf("ble: start advertising: %w", err)
	}

	p.mu.Lock()
	p.adv = adv
	h := p.h
	limit := p.frameLimit
	p.mu.Unlock()

	slog.Info("[BLE] advertising", "name", cfg.LocalName, "service", cfg.ServiceUUID)
	if h != nil {
		go h.OnSubscriptionChanged(SubscribedCentral, true, limit)
	}
	return nil
}

// written forwards a remote write, dropping the copy of our own
// notification that Characteristic.Write feeds back through WriteEvent.
func (p *TinyGoPeripheral) written(central, char string, offset int, value []byte) {
	p.mu.Lock()
	if p.echo != nil && bytes.Equal(value, p.echo) {
		p.echo = nil
		p.mu.Unlock()
		return
	}
	h := p.h
	p.mu.Unlock()
	if h == nil {
		return
	}
	h.OnWriteRequests([]WriteRequest{{
		Central:        central,
		Characteristic: char,
		Offset:         offset,
		Value:          bytes.Clone(value),
	}})
}

func (p *TinyGoPeripheral) StopAdvertising() error {
	p.mu.Lock()
	adv := p.adv
	p.adv = nil
	if p.retry != nil {
		p.retry.Stop()
		p.retry = nil
	}
	p.mu.Unlock()
	if adv == nil {
		return nil
	}
	if err := adv.Stop(); err != nil {
		return fmt.Errorf("ble: stop advertising: %w", err)
	}
	return nil
}

// UpdateValue notifies subscribers. A failed write is treated as a full
// queue and retried after the retry interval via OnReadyToUpdate.
func (p *TinyGoPeripheral) UpdateValue(frame []byte) bool {
	p.mu.Lock()
	if p.registered == "" {
		p.mu.Unlock()
		return false
	}
	p.echo = frame
	p.mu.Unlock()

	_, err := p.char.Write(frame)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.echo = nil
	if err != nil {
		slog.Debug("[BLE] notify rejected", "error", err)
		if p.retry == nil {
			p.retry = time.AfterFunc(p.retryInterval, p.ready)
		}
		return false
	}
	return true
}

func (p *TinyGoPeripheral) ready() {
	p.mu.Lock()
	p.retry = nil
	h := p.h
	p.mu.Unlock()
	if h != nil {
		h.OnReadyToUpdate()
	}
}

var _ PeripheralTransport = (*TinyGoPeripheral)(nil)
