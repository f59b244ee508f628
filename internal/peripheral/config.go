package peripheral

import (
	"fmt"
	"log/slog"

	"github.com/chaz8081/blelink/internal/ble"
	"github.com/chaz8081/blelink/internal/ble/capability"
	"github.com/chaz8081/blelink/internal/ble/protocol"
)

// DefaultFrameLimit is used when the transport cannot report one. It is the
// ATT default MTU minus the 3-byte notification header.
const DefaultFrameLimit = 20

// Properties are advertised on the managed characteristic.
const Properties = capability.Notify | capability.Read | capability.Write | capability.WriteWithoutResponse

// Config binds a Manager to its service and framing defaults.
type Config struct {
	LocalName          string
	ServiceUUID        string // random when empty
	CharacteristicUUID string // random when empty
	FrameLimit         int    // fallback when the subscriber reports none
	Markers            protocol.Markers
	Encoding           string
	Logger             *slog.Logger
}

func (c *Config) fill() error {
	if c.ServiceUUID == "" {
		c.ServiceUUID = ble.NewUUID()
	}
	if c.CharacteristicUUID == "" {
		c.CharacteristicUUID = ble.NewUUID()
	}
	if c.FrameLimit <= 0 {
		c.FrameLimit = DefaultFrameLimit
	}
	if c.Markers.Start == "" {
		c.Markers.Start = protocol.DefaultStartMarker
	}
	if c.Markers.End == "" {
		c.Markers.End = protocol.DefaultEndMarker
	}
	if c.Encoding == "" {
		c.Encoding = protocol.DefaultEncoding
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if err := c.Markers.Validate(); err != nil {
		return fmt.Errorf("peripheral: %w", err)
	}
	if _, err := protocol.LookupEncoding(c.Encoding); err != nil {
		return fmt.Errorf("peripheral: %w", err)
	}
	return nil
}

func (c *Config) advertise() ble.AdvertiseConfig {
	return ble.AdvertiseConfig{
		LocalName:          c.LocalName,
		ServiceUUID:        c.ServiceUUID,
		CharacteristicUUID: c.CharacteristicUUID,
		Properties:         Properties,
	}
}
