package ble

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned for ids the registry does not know, and for
	// teardown requests against devices that are not connected.
	ErrNotFound = errors.New("ble: device not found")
	// ErrAlreadyConnected rejects a second connection to the same device.
	ErrAlreadyConnected = errors.New("ble: device already connected")
	// ErrNotConnected rejects value operations on devices without a link.
	ErrNotConnected = errors.New("ble: device not connected")
	// ErrTimeout is the cause recorded when a connect or discovery deadline expires.
	ErrTimeout = errors.New("ble: deadline exceeded")
	// ErrUnsupported is returned by transports lacking a primitive.
	ErrUnsupported = errors.New("ble: operation not supported by transport")
	// ErrNoValue reports a write request that carried an empty payload.
	ErrNoValue = errors.New("ble: write request carried no value")
)

// Stage tags the step of the link lifecycle an error belongs to.
type Stage int

const (
	StageConnect Stage = iota
	StageDisconnect
	StageServices
	StageCharacteristics
	StageDescriptors
	StageValue
	StageNotificationState
	StageRSSI
)

func (s Stage) String() string {
	switch s {
	case StageConnect:
		return "connect"
	case StageDisconnect:
		return "disconnect"
	case StageServices:
		return "services"
	case StageCharacteristics:
		return "characteristics"
	case StageDescriptors:
		return "descriptors"
	case StageValue:
		return "value"
	case StageNotificationState:
		return "notification-state"
	case StageRSSI:
		return "rssi"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// ConnectError is a transport-level connect or disconnect failure.
type ConnectError struct {
	Device DeviceID
	Name   string
	Stage  Stage // StageConnect or StageDisconnect
	Err    error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("ble: %s %s (%q): %v", e.Stage, e.Device, e.Name, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// DiscoverError is a failed service, characteristic or descriptor discovery.
type DiscoverError struct {
	Device DeviceID
	Name   string
	Stage  Stage
	Err    error
}

func (e *DiscoverError) Error() string {
	return fmt.Sprintf("ble: discover %s on %s (%q): %v", e.Stage, e.Device, e.Name, e.Err)
}

func (e *DiscoverError) Unwrap() error { return e.Err }

// UpdateError is a failed read, write, notification-state change or RSSI read.
type UpdateError struct {
	Device         DeviceID
	Name           string
	Stage          Stage
	Characteristic string
	Err            error
}

func (e *UpdateError) Error() string {
	if e.Characteristic == "" {
		return fmt.Sprintf("ble: update %s on %s (%q): %v", e.Stage, e.Device, e.Name, e.Err)
	}
	return fmt.Sprintf("ble: update %s of %s on %s (%q): %v", e.Stage, e.Characteristic, e.Device, e.Name, e.Err)
}

func (e *UpdateError) Unwrap() error { return e.Err }

// NotPoweredOnError reports that the radio is not ready.
type NotPoweredOnError struct {
	State PowerState
}

func (e *NotPoweredOnError) Error() string {
	return fmt.Sprintf("ble: radio not powered on (state %s)", e.State)
}
