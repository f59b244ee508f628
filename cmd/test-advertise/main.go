// Command test-advertise is a manual test for the peripheral role.
// It advertises a framing service, waits for a subscriber, counts down
// 3 seconds, then streams a test message.
// Run `blelink listen --name blelink-test` on another machine first.
//
// Usage:
//
//	go run ./cmd/test-advertise [--frame-limit 20] [--repeat 1]
package main

import (
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/chaz8081/blelink/internal/ble"
	"github.com/chaz8081/blelink/internal/peripheral"
)

func main() {
	limit := flag.Int("frame-limit", peripheral.DefaultFrameLimit, "payload bytes per frame")
	repeat := flag.Int("repeat", 1, "repeat the test text this many times")
	flag.Parse()

	text := strings.Repeat("Hello from blelink! ", *repeat)

	events := make(chan peripheral.Event, 16)
	radio := ble.NewTinyGoPeripheral(*limit, 20*time.Millisecond)
	pm, err := peripheral.Build(radio, peripheral.Config{LocalName: "blelink-test", FrameLimit: *limit},
		func(ev peripheral.Event) { events <- ev })
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	defer pm.Close()
	if err := radio.Enable(); err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	fmt.Printf("Advertising service %s\n", pm.ServiceUUID())
	fmt.Println("Waiting for a subscriber...")

	for ev := range events {
		switch e := ev.(type) {
		case peripheral.Ready:
			fmt.Printf("Will send %d bytes at %d bytes per frame in 3 seconds...\n", len(text), e.FrameLimit)
			for i := 3; i > 0; i-- {
				fmt.Printf("%d...\n", i)
				time.Sleep(time.Second)
			}
			if !pm.SendString(text) {
				fmt.Println("Error: transfer refused")
				return
			}
		case peripheral.Sent:
			fmt.Printf("\nDone! %d bytes in %d frames\n", e.Bytes, e.Frames)
			return
		case peripheral.Failed:
			fmt.Printf("Error: %v\n", e.Err)
			return
		}
	}
}
