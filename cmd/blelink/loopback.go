package main

import (
	"fmt"
	"time"

	"github.com/urfave/cli"

	"github.com/chaz8081/blelink/internal/ble"
	"github.com/chaz8081/blelink/internal/ble/loopback"
	"github.com/chaz8081/blelink/internal/ble/protocol"
	"github.com/chaz8081/blelink/internal/central"
	"github.com/chaz8081/blelink/internal/peripheral"
)

const loopbackWait = 5 * time.Second

// runLoopback runs the peripheral and central roles against the in-process
// radio and moves one framed message from the peripheral to the central.
func runLoopback(c *cli.Context) error {
	enc, err := protocol.LookupEncoding(cfg.Framing.Encoding)
	if err != nil {
		return err
	}
	reasm, err := protocol.NewTextReassembler(cfg.Framing.Markers(), enc)
	if err != nil {
		return err
	}

	radio := loopback.New(loopback.WithFrameLimit(frameLimit(c)), loopback.WithQueueDepth(c.Int("queue")))
	defer radio.Close()

	pcfg := peripheralConfig(c)
	pcfg.LocalName = "blelink-loopback"
	pevents := make(chan peripheral.Event, 64)
	pm, err := peripheral.Build(radio.Peripheral(), pcfg, func(ev peripheral.Event) { pevents <- ev })
	if err != nil {
		return err
	}
	defer pm.Close()

	cevents := make(chan central.Event, 256)
	cm := central.New(radio.Central(), central.WithScanFilter(pm.ServiceUUID()))
	if err := cm.StartScan(func(ev central.Event) { cevents <- ev }); err != nil {
		return err
	}

	id := ble.DeviceIDFromAddress(radio.Address())
	frames, connecting := 0, false
	deadline := time.After(loopbackWait)
	for {
		select {
		case ev := <-cevents:
			switch e := ev.(type) {
			case central.Scanned:
				if e.Device.ID == id && !connecting {
					connecting = true
					cm.StopScan()
					fmt.Printf("central: found %q\n", e.Device.Name)
					if err := cm.Connect(id); err != nil {
						return err
					}
				}
			case central.Ready:
				fmt.Printf("central: %q ready, %d characteristics\n", e.Name, e.Profile.CharacteristicCount())
				if err := cm.SetNotify(id, pm.ServiceUUID(), pm.CharacteristicUUID(), true); err != nil {
					return err
				}
			case central.Updated:
				if e.Kind != central.UpdateValue {
					continue
				}
				frames++
				if payload, ok := reasm.Feed(e.Value); ok {
					text, err := enc.Decode(payload)
					if err != nil {
						return err
					}
					fmt.Printf("central: received %q in %d frames\n", text, frames)
					return cm.Disconnect(id)
				}
			case central.Failed:
				return e.Err
			}
		case ev := <-pevents:
			switch e := ev.(type) {
			case peripheral.Ready:
				fmt.Printf("peripheral: subscribed, %d bytes per frame\n", e.FrameLimit)
				if !pm.SendString(c.String("text")) {
					return fmt.Errorf("peripheral refused the transfer")
				}
			case peripheral.Sent:
				fmt.Printf("peripheral: sent %d bytes in %d frames\n", e.Bytes, e.Frames)
			case peripheral.Failed:
				return e.Err
			}
		case <-deadline:
			return fmt.Errorf("loopback transfer did not finish within %s", loopbackWait)
		}
	}
}
