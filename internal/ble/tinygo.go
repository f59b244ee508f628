package ble

import (
	"fmt"
	"math"
	"time"

	"tinygo.org/x/bluetooth"

	"github.com/chaz8081/blelink/internal/ble/capability"
)

// SubscribedCentral is the central name reported by TinyGoPeripheral, which
// cannot see who subscribed.
const SubscribedCentral = "any"

func parseUUIDs(in []string) ([]bluetooth.UUID, error) {
	out := make([]bluetooth.UUID, 0, len(in))
	for _, s := range in {
		u, err := parseUUID(s)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, nil
}

// parseUUID accepts the 16-bit short form as well as full UUIDs.
func parseUUID(s string) (bluetooth.UUID, error) {
	short := ShortUUID(s)
	if len(short) == 4 {
		s = "0000" + short + baseUUIDSuffix
	}
	u, err := bluetooth.ParseUUID(s)
	if err != nil {
		return bluetooth.UUID{}, fmt.Errorf("ble: parse UUID %q: %w", s, err)
	}
	return u, nil
}

func permissions(props capability.Properties) bluetooth.CharacteristicPermissions {
	var perm bluetooth.CharacteristicPermissions
	if props.Has(capability.Broadcast) {
		perm |= bluetooth.CharacteristicBroadcastPermission
	}
	if props.Has(capability.Read) {
		perm |= bluetooth.CharacteristicReadPermission
	}
	if props.Has(capability.WriteWithoutResponse) {
		perm |= bluetooth.CharacteristicWriteWithoutResponsePermission
	}
	if props.Has(capability.Write) {
		perm |= bluetooth.CharacteristicWritePermission
	}
	if props.Has(capability.Notify) {
		perm |= bluetooth.CharacteristicNotifyPermission
	}
	if props.Has(capability.Indicate) {
		perm |= bluetooth.CharacteristicIndicatePermission
	}
	return perm
}

func connectionParams(p ConnectParams) bluetooth.ConnectionParams {
	return bluetooth.ConnectionParams{
		ConnectionTimeout: duration(p.Timeout),
		MinInterval:       duration(p.MinInterval),
		MaxInterval:       duration(p.MaxInterval),
	}
}

// duration converts to the stack's 0.625ms units, saturating at the
// largest value it can carry.
func duration(d time.Duration) bluetooth.Duration {
	if d <= 0 {
		return 0
	}
	if d/(625*time.Microsecond) > math.MaxUint16 {
		return math.MaxUint16
	}
	return bluetooth.NewDuration(d)
}
