//go:build !darwin

package ble

import "tinygo.org/x/bluetooth"

// BlueZ exposes no acknowledged write through tinygo; the write goes out
// without response.
func writeWithResponse(c *bluetooth.DeviceCharacteristic, data []byte) error {
	_, err := c.WriteWithoutResponse(data)
	return err
}

func disableNotifications(c *bluetooth.DeviceCharacteristic) error {
	return c.EnableNotifications(nil)
}
