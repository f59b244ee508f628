//go:build darwin

package ble

import (
	"fmt"
	"sync"
	"time"
)

// TinyGoPeripheral is unavailable on macOS: tinygo-org/bluetooth has no GATT
// server or advertiser for CoreBluetooth. Every operation fails with
// ErrUnsupported so the same binary still runs the central role.
type TinyGoPeripheral struct {
	mu    sync.Mutex
	h     PeripheralHandler
	state PowerState
}

// NewTinyGoPeripheral returns the unsupported stub. The arguments are
// accepted for parity with other platforms.
func NewTinyGoPeripheral(frameLimit int, retryInterval time.Duration) *TinyGoPeripheral {
	return &TinyGoPeripheral{state: StatePoweredOff}
}

// Enable reports StateUnsupported and fails.
func (p *TinyGoPeripheral) Enable() error {
	p.mu.Lock()
	p.state = StateUnsupported
	h := p.h
	p.mu.Unlock()
	if h != nil {
		h.OnStateChange(StateUnsupported)
	}
	return fmt.Errorf("ble: peripheral role on macOS: %w", ErrUnsupported)
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

func (p *TinyGoPeripheral) Advertise(cfg AdvertiseConfig) error {
	return fmt.Errorf("ble: advertise %s: %w", cfg.ServiceUUID, ErrUnsupported)
}

func (p *TinyGoPeripheral) StopAdvertising() error { return nil }

func (p *TinyGoPeripheral) UpdateValue(frame []byte) bool { return false }

var _ PeripheralTransport = (*TinyGoPeripheral)(nil)
