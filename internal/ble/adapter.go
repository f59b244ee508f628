// Package ble defines the contracts between the link managers and the host
// radio stack: the central and peripheral transports, the events they report
// back, device identities and the error taxonomy shared by both roles.
package ble

import (
	"fmt"
	"time"

	"github.com/chaz8081/blelink/internal/ble/capability"
)

// PowerState mirrors the radio manager state reported by the host stack.
type PowerState int

const (
	StateUnknown PowerState = iota
	StateResetting
	StateUnsupported
	StateUnauthorized
	StatePoweredOff
	StatePoweredOn
)

func (s PowerState) String() string {
	switch s {
	case StateResetting:
		return "resetting"
	case StateUnsupported:
		return "unsupported"
	case StateUnauthorized:
		return "unauthorized"
	case StatePoweredOff:
		return "powered-off"
	case StatePoweredOn:
		return "powered-on"
	default:
		return "unknown"
	}
}

// Advertisement is the payload seen while scanning.
type Advertisement struct {
	LocalName        string
	ServiceUUIDs     []string
	ManufacturerData map[uint16][]byte
	TxPower          int
	Connectable      bool
}

// ScanReport is one advertisement observed by the transport.
type ScanReport struct {
	Address       string // transport address: MAC on Linux, CoreBluetooth UUID on macOS
	Name          string
	Advertisement Advertisement
	RSSI          int
}

// Service is a remote GATT service as reported by the transport.
type Service struct {
	UUID    string
	Primary bool
}

// Characteristic is a remote GATT characteristic.
type Characteristic struct {
	UUID       string
	Properties capability.Properties
	Value      []byte
}

// Descriptor is a remote GATT descriptor.
type Descriptor struct {
	UUID  string
	Value []byte
}

// CentralHandler receives the asynchronous results of CentralTransport calls.
// Implementations must tolerate being called from any goroutine.
type CentralHandler interface {
	OnStateChange(state PowerState)
	OnAdvertisement(report ScanReport)
	OnConnect(addr string, err error)
	OnDisconnect(addr string, err error)
	OnServices(addr string, services []Service, err error)
	OnCharacteristics(addr, service string, chars []Characteristic, err error)
	OnDescriptors(addr, service, char string, descs []Descriptor, err error)
	// OnValue reports a read completion or, when notification is true, an
	// unsolicited notification/indication.
	OnValue(addr, service, char string, value []byte, notification bool, err error)
	OnNotifyState(addr, service, char string, enabled bool, err error)
	OnServicesModified(addr string, invalidated []string)
	OnRSSI(addr string, rssi int, err error)
}

// ConnectParams tunes one connection attempt. Zero fields leave the host
// stack's defaults in place.
type ConnectParams struct {
	Timeout     time.Duration
	MinInterval time.Duration
	MaxInterval time.Duration
}

// CentralTransport is the radio stack in the central role. Every call is
// fire-and-forget; results arrive later through the installed CentralHandler.
type CentralTransport interface {
	SetHandler(h CentralHandler)
	State() PowerState
	Scan(serviceUUIDs []string) error
	StopScan() error
	Connect(addr string, params ConnectParams) error
	Disconnect(addr string) error
	DiscoverServices(addr string) error
	DiscoverCharacteristics(addr, service string) error
	DiscoverDescriptors(addr, service, char string) error
	ReadValue(addr, service, char string) error
	WriteValue(addr, service, char string, data []byte, withResponse bool) error
	SetNotify(addr, service, char string, enabled bool) error
	ReadRSSI(addr string) error
}

// AdvertiseConfig describes the single service a peripheral publishes.
type AdvertiseConfig struct {
	LocalName          string
	ServiceUUID        string
	CharacteristicUUID string
	Properties         capability.Properties
}

// WriteRequest is one ATT write received by the peripheral.
type WriteRequest struct {
	Central        string
	Characteristic string
	Offset         int
	Value          []byte
}

// PeripheralHandler receives peripheral-role events from the transport.
type PeripheralHandler interface {
	OnStateChange(state PowerState)
	OnWriteRequests(reqs []WriteRequest)
	// OnReadyToUpdate fires after UpdateValue returned false, once the
	// outbound queue has room again.
	OnReadyToUpdate()
	// OnSubscriptionChanged reports a central (un)subscribing to the
	// characteristic and the maximum value length usable for that central.
	OnSubscriptionChanged(central string, subscribed bool, frameLimit int)
}

// PeripheralTransport is the radio stack in the peripheral role.
type PeripheralTransport interface {
	SetHandler(h PeripheralHandler)
	State() PowerState
	Advertise(cfg AdvertiseConfig) error
	StopAdvertising() error
	// UpdateValue queues one frame for subscribed centrals and reports
	// whether the transport accepted it.
	UpdateValue(frame []byte) bool
}

func (r ScanReport) String() string {
	return fmt.Sprintf("%s %q rssi=%d", r.Address, r.Name, r.RSSI)
}
