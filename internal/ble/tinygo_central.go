package ble

import (
	"bytes"
	"fmt"
	"log/slog"
	"sync"

	"tinygo.org/x/bluetooth"
)

// TinyGoCentral implements CentralTransport on tinygo-org/bluetooth.
// On macOS addresses are CoreBluetooth UUIDs, elsewhere MAC addresses.
//
// The library has no descriptor discovery, property accessor, RSSI read or
// service-change notification: descriptors come back empty, properties as
// zero and ReadRSSI fails with ErrUnsupported. BlueZ has no acknowledged
// write either, so withResponse writes go out without response on Linux.
type TinyGoCentral struct {
	adapter *bluetooth.Adapter

	mu    sync.Mutex
	h     CentralHandler
	state PowerState
	links map[string]*tinyGoLink // keyed by address
}

type tinyGoLink struct {
	device   bluetooth.Device
	services map[string]bluetooth.DeviceService        // ShortUUID(service)
	chars    map[string]*bluetooth.DeviceCharacteristic // ShortUUID(service)/ShortUUID(char)
}

func charKey(service, char string) string {
	return ShortUUID(service) + "/" + ShortUUID(char)
}

// NewTinyGoCentral wraps the default adapter.
func NewTinyGoCentral() *TinyGoCentral {
	return &TinyGoCentral{
		adapter: bluetooth.DefaultAdapter,
		state:   StatePoweredOff,
		links:   make(map[string]*tinyGoLink),
	}
}

// Enable powers the adapter up and reports the result to the handler.
func (a *TinyGoCentral) Enable() error {
	if err := a.adapter.Enable(); err != nil {
		a.setState(StateUnsupported)
		return fmt.Errorf("ble: enable adapter: %w", err)
	}

	// tinygo/bluetooth fires this with connected=false when the remote side
	// drops the link.
	a.adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		if connected {
			return
		}
		addr := device.Address.String()
		a.mu.Lock()
		_, ok := a.links[addr]
		delete(a.links, addr)
		h := a.h
		a.mu.Unlock()
		if ok && h != nil {
			h.OnDisconnect(addr, nil)
		}
	})

	a.setState(StatePoweredOn)
	return nil
}

func (a *TinyGoCentral) setState(s PowerState) {
	a.mu.Lock()
	a.state = s
	h := a.h
	a.mu.Unlock()
	if h != nil {
		h.OnStateChange(s)
	}
}

func (a *TinyGoCentral) SetHandler(h CentralHandler) {
	a.mu.Lock()
	a.h = h
	a.mu.Unlock()
}

func (a *TinyGoCentral) handler() CentralHandler {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.h
}

func (a *TinyGoCentral) State() PowerState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Scan runs until StopScan. Results go to OnAdvertisement.
func (a *TinyGoCentral) Scan(serviceUUIDs []string) error {
	filter, err := parseUUIDs(serviceUUIDs)
	if err != nil {
		return err
	}
	go func() {
		err := a.adapter.Scan(func(_ *bluetooth.Adapter, result bluetooth.ScanResult) {
			if len(filter) > 0 && !hasAnyService(result, filter) {
				return
			}
			h := a.handler()
			if h == nil {
				return
			}
			name := result.LocalName()
			h.OnAdvertisement(ScanReport{
				Address: result.Address.String(),
				Name:    name,
				RSSI:    int(result.RSSI),
				Advertisement: Advertisement{
					LocalName:    name,
					ServiceUUIDs: append([]string(nil), serviceUUIDs...),
					Connectable:  true,
				},
			})
		})
		if err != nil {
			slog.Warn("[BLE] scan ended", "error", err)
		}
	}()
	return nil
}

func hasAnyService(r bluetooth.ScanResult, uuids []bluetooth.UUID) bool {
	for _, u := range uuids {
		if r.HasServiceUUID(u) {
			return true
		}
	}
	return false
}

func (a *TinyGoCentral) StopScan() error {
	if err := a.adapter.StopScan(); err != nil {
		return fmt.Errorf("ble: stop scan: %w", err)
	}
	return nil
}

// Connect dials addr in the background; tinygo's Connect blocks until the
// link is up or params.Timeout passes.
func (a *TinyGoCentral) Connect(addr string, params ConnectParams) error {
	var ba bluetooth.Address
	ba.Set(addr)
	cp := connectionParams(params)
	go func() {
		device, err := a.adapter.Connect(ba, cp)
		if err == nil {
			a.mu.Lock()
			a.links[addr] = &tinyGoLink{
				device:   device,
				services: make(map[string]bluetooth.DeviceService),
				chars:    make(map[string]*bluetooth.DeviceCharacteristic),
			}
			a.mu.Unlock()
		}
		if h := a.handler(); h != nil {
			h.OnConnect(addr, err)
		}
	}()
	return nil
}

func (a *TinyGoCentral) link(addr string) (*tinyGoLink, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	l, ok := a.links[addr]
	if !ok {
		return nil, fmt.Errorf("ble: %s: %w", addr, ErrNotConnected)
	}
	return l, nil
}

func (a *TinyGoCentral) Disconnect(addr string) error {
	l, err := a.link(addr)
	if err != nil {
		// Connects in flight cannot be cancelled; the late link is dropped
		// by the manager.
		return nil
	}
	if err := l.device.Disconnect(); err != nil {
		return fmt.Errorf("ble: disconnect %s: %w", addr, err)
	}
	a.mu.Lock()
	_, still := a.links[addr]
	delete(a.links, addr)
	h := a.h
	a.mu.Unlock()
	if still && h != nil {
		go h.OnDisconnect(addr, nil)
	}
	return nil
}

func (a *TinyGoCentral) DiscoverServices(addr string) error {
	l, err := a.link(addr)
	if err != nil {
		return err
	}
	go func() {
		svcs, err := l.device.DiscoverServices(nil)
		var out []Service
		if err == nil {
			a.mu.Lock()
			for _, s := range svcs {
				u := s.UUID().String()
				l.services[ShortUUID(u)] = s
				out = append(out, Service{UUID: u, Primary: true})
			}
			a.mu.Unlock()
		}
		if h := a.handler(); h != nil {
			h.OnServices(addr, out, err)
		}
	}()
	return nil
}

func (a *TinyGoCentral) DiscoverCharacteristics(addr, service string) error {
	l, err := a.link(addr)
	if err != nil {
		return err
	}
	a.mu.Lock()
	svc, ok := l.services[ShortUUID(service)]
	a.mu.Unlock()
	if !ok {
		return fmt.Errorf("ble: service %s not discovered on %s", service, addr)
	}
	go func() {
		chars, err := svc.DiscoverCharacteristics(nil)
		var out []Characteristic
		if err == nil {
			a.mu.Lock()
			for i := range chars {
				u := chars[i].UUID().String()
				l.chars[charKey(service, u)] = &chars[i]
				out = append(out, Characteristic{UUID: u})
			}
			a.mu.Unlock()
		}
		if h := a.handler(); h != nil {
			h.OnCharacteristics(addr, service, out, err)
		}
	}()
	return nil
}

func (a *TinyGoCentral) DiscoverDescriptors(addr, service, char string) error {
	if _, err := a.link(addr); err != nil {
		return err
	}
	go func() {
		if h := a.handler(); h != nil {
			h.OnDescriptors(addr, service, char, nil, nil)
		}
	}()
	return nil
}

func (a *TinyGoCentral) characteristic(addr, service, char string) (*bluetooth.DeviceCharacteristic, error) {
	l, err := a.link(addr)
	if err != nil {
		return nil, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	c, ok := l.chars[charKey(service, char)]
	if !ok {
		return nil, fmt.Errorf("ble: characteristic %s not discovered on %s", char, addr)
	}
	return c, nil
}

func (a *TinyGoCentral) ReadValue(addr, service, char string) error {
	c, err := a.characteristic(addr, service, char)
	if err != nil {
		return err
	}
	go func() {
		buf := make([]byte, 512)
		n, err := c.Read(buf)
		if h := a.handler(); h != nil {
			h.OnValue(addr, service, char, buf[:n], false, err)
		}
	}()
	return nil
}

func (a *TinyGoCentral) WriteValue(addr, service, char string, data []byte, withResponse bool) error {
	c, err := a.characteristic(addr, service, char)
	if err != nil {
		return err
	}
	if withResponse {
		err = writeWithResponse(c, data)
	} else {
		_, err = c.WriteWithoutResponse(data)
	}
	if err != nil {
		return fmt.Errorf("ble: write %s: %w", char, err)
	}
	return nil
}

func (a *TinyGoCentral) SetNotify(addr, service, char string, enabled bool) error {
	c, err := a.characteristic(addr, service, char)
	if err != nil {
		return err
	}
	go func() {
		var err error
		if enabled {
			err = c.EnableNotifications(func(buf []byte) {
				if h := a.handler(); h != nil {
					h.OnValue(addr, service, char, bytes.Clone(buf), true, nil)
				}
			})
		} else {
			err = disableNotifications(c)
		}
		if h := a.handler(); h != nil {
			h.OnNotifyState(addr, service, char, enabled && err == nil, err)
		}
	}()
	return nil
}

func (a *TinyGoCentral) ReadRSSI(addr string) error {
	return fmt.Errorf("ble: read RSSI of %s: %w", addr, ErrUnsupported)
}

var _ CentralTransport = (*TinyGoCentral)(nil)
