package main

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli"

	"github.com/chaz8081/blelink/internal/ble"
	"github.com/chaz8081/blelink/internal/ble/protocol"
	"github.com/chaz8081/blelink/internal/peripheral"
)

// peripheralConfig builds the manager config from the config file and
// command flags.
func peripheralConfig(c *cli.Context) peripheral.Config {
	name := c.String("local-name")
	if name == "" {
		name = cfg.Peripheral.LocalName
	}
	return peripheral.Config{
		LocalName:          name,
		ServiceUUID:        cfg.Peripheral.ServiceUUID,
		CharacteristicUUID: cfg.Peripheral.CharacteristicUUID,
		FrameLimit:         frameLimit(c),
		Markers:            cfg.Framing.Markers(),
		Encoding:           cfg.Framing.Encoding,
	}
}

func advertise(c *cli.Context) error {
	enc, err := protocol.LookupEncoding(cfg.Framing.Encoding)
	if err != nil {
		return err
	}

	events := make(chan peripheral.Event, 64)
	radio := ble.NewTinyGoPeripheral(frameLimit(c), cfg.Peripheral.RetryInterval)
	pm, err := peripheral.Build(radio, peripheralConfig(c), func(ev peripheral.Event) { events <- ev })
	if err != nil {
		return err
	}
	defer pm.Close()
	if err := radio.Enable(); err != nil {
		return err
	}

	fmt.Printf("Service:        %s\n", pm.ServiceUUID())
	fmt.Printf("Characteristic: %s\n", pm.CharacteristicUUID())
	fmt.Println("Type a line to send it, Ctrl+C to quit.")

	lines := make(chan string)
	go func() {
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			lines <- sc.Text()
		}
		close(lines)
	}()

	sigCh, stop := interrupted()
	defer stop()

	var queue []string
	flush := func() {
		for len(queue) > 0 && pm.State() == peripheral.StateSubscribed {
			if !pm.SendString(queue[0]) {
				return
			}
			queue = queue[1:]
		}
	}

	for {
		select {
		case line, ok := <-lines:
			if !ok {
				lines = nil
				continue
			}
			queue = append(queue, line)
			flush()
		case ev := <-events:
			switch e := ev.(type) {
			case peripheral.StateChanged:
				slog.Info("[blelink] peripheral state", "state", e.State)
			case peripheral.Ready:
				fmt.Printf("Subscriber %s ready, %d bytes per frame\n", e.Central, e.FrameLimit)
				flush()
			case peripheral.Sent:
				fmt.Printf("Sent %d bytes in %d frames\n", e.Bytes, e.Frames)
				flush()
			case peripheral.Received:
				text, err := enc.Decode(e.Value)
				if err != nil {
					fmt.Printf("< %x\n", e.Value)
					continue
				}
				fmt.Printf("< %s\n", text)
			case peripheral.Failed:
				slog.Warn("[blelink] peripheral", "error", e.Err)
			}
		case <-sigCh:
			fmt.Println("Goodbye!")
			return nil
		}
	}
}
