package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli"

	"github.com/chaz8081/blelink/internal/ble"
	"github.com/chaz8081/blelink/internal/ble/capability"
	"github.com/chaz8081/blelink/internal/ble/protocol"
	"github.com/chaz8081/blelink/internal/central"
)

var errInterrupted = errors.New("interrupted")

// session wires a central manager to a TinyGo radio and funnels its events
// into a channel for the command loop.
type session struct {
	m      *central.Manager
	events chan central.Event
}

func newSession(c *cli.Context) (*session, error) {
	radio := ble.NewTinyGoCentral()
	s := &session{events: make(chan central.Event, 64)}
	s.m = central.New(radio,
		central.WithConnectTimeout(cfg.Central.ConnectTimeout),
		central.WithDiscoveryTimeout(cfg.Central.DiscoveryTimeout),
		central.WithScanFilter(scanServices(c)...),
	)
	s.m.SetHandler(func(ev central.Event) { s.events <- ev })
	if err := radio.Enable(); err != nil {
		return nil, err
	}
	return s, nil
}

func scan(c *cli.Context) error {
	s, err := newSession(c)
	if err != nil {
		return err
	}
	sigCh, stop := interrupted()
	defer stop()

	d := scanDuration(c)
	var timeout <-chan time.Time
	if d > 0 {
		timeout = time.After(d)
		fmt.Printf("Scanning for %s...\n", d)
	} else {
		fmt.Println("Scanning, Ctrl+C to stop...")
	}
	if err := s.m.StartScan(nil); err != nil {
		return err
	}
	defer s.m.StopScan()

	seen := make(map[ble.DeviceID]bool)
	for {
		select {
		case ev := <-s.events:
			switch e := ev.(type) {
			case central.Scanned:
				if !seen[e.Device.ID] {
					seen[e.Device.ID] = true
					fmt.Printf("[ %s ] %-24q rssi %d\n", e.Device.Address, e.Device.Name, e.Device.RSSI)
				}
			case central.Failed:
				slog.Warn("[blelink] scan", "error", e.Err)
			}
		case <-timeout:
			printDevices(s.m.Devices())
			return nil
		case <-sigCh:
			printDevices(s.m.Devices())
			return nil
		}
	}
}

func printDevices(devices []central.Device) {
	sort.Slice(devices, func(i, j int) bool { return devices[i].RSSI > devices[j].RSSI })
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "\nID\tADDRESS\tNAME\tRSSI\tSERVICES")
	for _, d := range devices {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", d.ID.Short(), d.Address, d.Name, d.RSSI,
			strings.Join(d.Advertisement.ServiceUUIDs, ","))
	}
	w.Flush()
}

// matches reports whether d is the device selected by --addr / --name.
// With neither flag set the first device seen matches.
func matches(c *cli.Context, d central.Device) bool {
	if addr := c.String("addr"); addr != "" {
		return strings.EqualFold(addr, d.Address) || strings.EqualFold(addr, d.ID.String())
	}
	if name := c.String("name"); name != "" {
		return strings.EqualFold(name, d.Name)
	}
	return true
}

// connect scans for the selected device, connects and waits for the
// discovery cascade to finish.
func (s *session) connect(c *cli.Context, sigCh <-chan os.Signal) (central.Ready, error) {
	d := scanDuration(c)
	var timeout <-chan time.Time
	if d > 0 {
		timeout = time.After(d)
	}
	fmt.Println("Scanning for target...")
	if err := s.m.StartScan(nil); err != nil {
		return central.Ready{}, err
	}

	var target ble.DeviceID
	for target == ble.NilDeviceID {
		select {
		case ev := <-s.events:
			if e, ok := ev.(central.Scanned); ok && matches(c, e.Device) {
				target = e.Device.ID
				fmt.Printf("Found [ %s ] %q\n", e.Device.Address, e.Device.Name)
			}
		case <-timeout:
			s.m.StopScan()
			return central.Ready{}, fmt.Errorf("no matching device within %s", d)
		case <-sigCh:
			s.m.StopScan()
			return central.Ready{}, errInterrupted
		}
	}
	s.m.StopScan()

	if err := s.m.Connect(target, connectOptions(c)...); err != nil {
		return central.Ready{}, err
	}
	for {
		select {
		case ev := <-s.events:
			switch e := ev.(type) {
			case central.Connected:
				fmt.Printf("Connected, discovering %q...\n", e.Name)
			case central.Ready:
				return e, nil
			case central.Failed:
				return central.Ready{}, e.Err
			}
		case <-sigCh:
			_ = s.m.Disconnect(target)
			return central.Ready{}, errInterrupted
		}
	}
}

func explore(c *cli.Context) error {
	s, err := newSession(c)
	if err != nil {
		return err
	}
	sigCh, stop := interrupted()
	defer stop()

	ready, err := s.connect(c, sigCh)
	if errors.Is(err, errInterrupted) {
		return nil
	}
	if err != nil {
		return err
	}

	printProfile(ready.Profile)
	fmt.Printf("Disconnecting [ %s ]...\n", ready.Name)
	return s.m.Disconnect(ready.ID)
}

func printProfile(p central.Profile) {
	for _, svc := range p.Services {
		fmt.Printf("Service: %s %s\n", svc.UUID, friendly(svc.UUID))
		for _, ch := range svc.Characteristics {
			fmt.Printf("  Characteristic: %s %s\n", ch.UUID, friendly(ch.UUID))
			fmt.Printf("    Properties: %s\n", strings.Join(capability.Parse(ch.Properties), ", "))
			for _, d := range ch.Descriptors {
				fmt.Printf("    Descriptor: %s %s\n", d.UUID, friendly(d.UUID))
			}
		}
	}
}

func friendly(uuid string) string {
	if n := ble.Name(uuid); n != "" {
		return "(" + n + ")"
	}
	return ""
}

// notifiable picks the characteristic to subscribe to: the one named by
// --char, else the first one that notifies or indicates.
func notifiable(c *cli.Context, p central.Profile) (service, char string, ok bool) {
	want := c.String("char")
	for _, svc := range p.Services {
		for _, ch := range svc.Characteristics {
			if want != "" {
				if ble.SameUUID(want, ch.UUID) {
					return svc.UUID, ch.UUID, true
				}
				continue
			}
			if ch.Properties.Has(capability.Notify) || ch.Properties.Has(capability.Indicate) {
				return svc.UUID, ch.UUID, true
			}
		}
	}
	// tinygo reports no properties, so fall back to the first characteristic.
	if want == "" {
		for _, svc := range p.Services {
			if len(svc.Characteristics) > 0 {
				return svc.UUID, svc.Characteristics[0].UUID, true
			}
		}
	}
	return "", "", false
}

func listen(c *cli.Context) error {
	enc, err := protocol.LookupEncoding(cfg.Framing.Encoding)
	if err != nil {
		return err
	}
	reasm, err := protocol.NewTextReassembler(cfg.Framing.Markers(), enc)
	if err != nil {
		return err
	}

	s, err := newSession(c)
	if err != nil {
		return err
	}
	sigCh, stop := interrupted()
	defer stop()

	ready, err := s.connect(c, sigCh)
	if errors.Is(err, errInterrupted) {
		return nil
	}
	if err != nil {
		return err
	}

	svc, char, ok := notifiable(c, ready.Profile)
	if !ok {
		_ = s.m.Disconnect(ready.ID)
		return fmt.Errorf("%q has no characteristic to subscribe to", ready.Name)
	}
	if err := s.m.SetNotify(ready.ID, svc, char, true); err != nil {
		return err
	}
	fmt.Printf("Listening on %s, Ctrl+C to stop...\n", char)

	for {
		select {
		case ev := <-s.events:
			switch e := ev.(type) {
			case central.Updated:
				if e.Kind != central.UpdateValue || !ble.SameUUID(e.Characteristic, char) {
					continue
				}
				payload, done := reasm.Feed(e.Value)
				if !done {
					continue
				}
				text, err := enc.Decode(payload)
				if err != nil {
					slog.Warn("[blelink] undecodable message", "bytes", len(payload), "error", err)
					continue
				}
				fmt.Printf("> %s\n", text)
			case central.Disconnected:
				fmt.Printf("%q disconnected\n", e.Name)
				return nil
			case central.Failed:
				slog.Warn("[blelink] link error", "error", e.Err)
			}
		case <-sigCh:
			return s.m.Disconnect(ready.ID)
		}
	}
}
