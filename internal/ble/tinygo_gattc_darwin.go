//go:build darwin

package ble

import (
	"fmt"

	"tinygo.org/x/bluetooth"
)

func writeWithResponse(c *bluetooth.DeviceCharacteristic, data []byte) error {
	_, err := c.Write(data)
	return err
}

// CoreBluetooth notifications cannot be switched off through tinygo.
func disableNotifications(c *bluetooth.DeviceCharacteristic) error {
	return fmt.Errorf("ble: disable notifications on %s: %w", c.UUID(), ErrUnsupported)
}
