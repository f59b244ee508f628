package ble

import (
	"strings"
	"testing"
	"time"

	"github.com/chaz8081/blelink/internal/ble/capability"
	"tinygo.org/x/bluetooth"
)

// Both transports must satisfy their contracts on every platform.
var (
	_ CentralTransport    = (*TinyGoCentral)(nil)
	_ PeripheralTransport = (*TinyGoPeripheral)(nil)
)

func TestParseUUIDExpandsShortForm(t *testing.T) {
	u, err := parseUUID("180F")
	if err != nil {
		t.Fatalf("parseUUID() error = %v", err)
	}
	if got := strings.ToLower(u.String()); got != "0000180f-0000-1000-8000-00805f9b34fb" {
		t.Errorf("parseUUID(180F) = %s", got)
	}

	full := "6E400001-B5A3-F393-E0A9-E50E24DCCA9E"
	u, err = parseUUID(full)
	if err != nil {
		t.Fatalf("parseUUID() error = %v", err)
	}
	if !SameUUID(u.String(), full) {
		t.Errorf("parseUUID(%s) = %s", full, u.String())
	}

	if _, err := parseUUIDs([]string{"180F", "not-a-uuid"}); err == nil {
		t.Error("parseUUIDs should reject an invalid entry")
	}
}

func TestPermissions(t *testing.T) {
	got := permissions(capability.Notify | capability.Read | capability.Write | capability.WriteWithoutResponse)
	want := bluetooth.CharacteristicNotifyPermission | bluetooth.CharacteristicReadPermission |
		bluetooth.CharacteristicWritePermission | bluetooth.CharacteristicWriteWithoutResponsePermission
	if got != want {
		t.Errorf("permissions() = %08b, want %08b", got, want)
	}
	if permissions(capability.AuthenticatedSignedWrites) != 0 {
		t.Error("bits without a tinygo permission should map to nothing")
	}
}

func TestConnectionParams(t *testing.T) {
	got := connectionParams(ConnectParams{
		Timeout:     5 * time.Second,
		MinInterval: 15 * time.Millisecond,
		MaxInterval: 30 * time.Millisecond,
	})
	if got.ConnectionTimeout != 8000 || got.MinInterval != 24 || got.MaxInterval != 48 {
		t.Errorf("connectionParams() = %+v", got)
	}

	if zero := connectionParams(ConnectParams{}); zero != (bluetooth.ConnectionParams{}) {
		t.Errorf("zero params should keep stack defaults, got %+v", zero)
	}

	if d := duration(time.Minute); d != 0xFFFF {
		t.Errorf("duration(1m) = %d, want saturation", d)
	}
}
