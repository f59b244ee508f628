package central

import "github.com/chaz8081/blelink/internal/ble"

// Event is delivered to the consumer's Handler. Switch on the concrete type.
type Event interface {
	event()
}

// Handler consumes manager events. It is called without any manager lock
// held and may call back into the manager.
type Handler func(Event)

// StateChanged reports the radio power state.
type StateChanged struct {
	State ble.PowerState
}

// Scanned carries the whole registry plus the device that was just seen or
// updated.
type Scanned struct {
	Devices []Device
	Device  Device
}

// Connected reports that the link is up. Service discovery follows.
type Connected struct {
	ID   ble.DeviceID
	Name string
}

// Disconnected reports a link that went down, whether requested, cancelled
// or lost.
type Disconnected struct {
	ID   ble.DeviceID
	Name string
}

// ServicesDiscovered lists the services found on the device.
type ServicesDiscovered struct {
	ID       ble.DeviceID
	Name     string
	Services []ble.Service
}

// CharacteristicsDiscovered lists the characteristics of one service.
type CharacteristicsDiscovered struct {
	ID              ble.DeviceID
	Name            string
	Service         string
	Characteristics []ble.Characteristic
}

// DescriptorsDiscovered lists the descriptors of one characteristic.
type DescriptorsDiscovered struct {
	ID             ble.DeviceID
	Name           string
	Service        string
	Characteristic string
	Descriptors    []ble.Descriptor
}

// Ready fires once the discovery cascade has completed.
type Ready struct {
	ID      ble.DeviceID
	Name    string
	Profile Profile
}

// UpdateKind tells what an Updated event refers to.
type UpdateKind int

const (
	UpdateValue             UpdateKind = iota // a read result or notification
	UpdateNotificationState                   // SetNotify took effect
)

// Updated reports a characteristic value (read result or notification) or
// a notification-state change.
type Updated struct {
	ID             ble.DeviceID
	Kind           UpdateKind
	Service        string
	Characteristic string
	Value          []byte
	Notification   bool // value arrived unsolicited
	Notifying      bool // for UpdateNotificationState
}

// ServicesModified reports services the remote invalidated.
type ServicesModified struct {
	ID          ble.DeviceID
	Invalidated []string
}

// RSSIRead carries the signal strength requested with ReadRSSI.
type RSSIRead struct {
	ID   ble.DeviceID
	RSSI int
}

// Failed carries a typed error: *ble.ConnectError, *ble.DiscoverError,
// *ble.UpdateError or *ble.NotPoweredOnError.
type Failed struct {
	Err error
}

func (StateChanged) event()              {}
func (Scanned) event()                   {}
func (Connected) event()                 {}
func (Disconnected) event()              {}
func (ServicesDiscovered) event()        {}
func (CharacteristicsDiscovered) event() {}
func (DescriptorsDiscovered) event()     {}
func (Ready) event()                     {}
func (Updated) event()                   {}
func (ServicesModified) event()          {}
func (RSSIRead) event()                  {}
func (Failed) event()                    {}
