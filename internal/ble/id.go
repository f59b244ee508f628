package ble

import (
	"strings"

	"github.com/google/uuid"
)

// deviceNamespace seeds name-based ids for transports that report MAC
// addresses instead of stable UUIDs.
var deviceNamespace = uuid.MustParse("6f1d6f5e-6c1b-4f0a-9d7e-3b8f2a6c0b11")

// DeviceID identifies a remote device independently of the transport
// handle that reaches it.
type DeviceID uuid.UUID

// NilDeviceID is the zero id.
var NilDeviceID DeviceID

// DeviceIDFromAddress derives the id for a transport address. CoreBluetooth
// already hands out UUIDs, which are kept as is; anything else (MAC
// addresses) maps to a name-based UUID of the lower-cased address.
func DeviceIDFromAddress(addr string) DeviceID {
	if id, err := uuid.Parse(addr); err == nil {
		return DeviceID(id)
	}
	return DeviceID(uuid.NewSHA1(deviceNamespace, []byte(strings.ToLower(addr))))
}

// ParseDeviceID parses the textual form produced by DeviceID.String.
func ParseDeviceID(s string) (DeviceID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return NilDeviceID, err
	}
	return DeviceID(id), nil
}

func (id DeviceID) String() string {
	return uuid.UUID(id).String()
}

// Short returns the first eight characters, for log lines.
func (id DeviceID) Short() string {
	return id.String()[:8]
}

// NewUUID returns a random UUID string, used for service and characteristic
// identities a peripheral makes up on the spot.
func NewUUID() string {
	return strings.ToUpper(uuid.NewString())
}
