package main

import (
	"time"

	"github.com/urfave/cli"

	"github.com/chaz8081/blelink/internal/central"
)

var (
	flgDuration   = cli.DurationFlag{Name: "duration, d", Value: 0, Usage: "how long to scan (default: central.scan_duration)"}
	flgService    = cli.StringSliceFlag{Name: "svc, s", Usage: "only report peripherals advertising this service (repeatable)"}
	flgName       = cli.StringFlag{Name: "name, n", Usage: "name of the remote device"}
	flgAddr       = cli.StringFlag{Name: "addr, a", Usage: "address or device id of the remote device"}
	flgChar       = cli.StringFlag{Name: "char", Usage: "characteristic UUID to subscribe to (default: first notifiable)"}
	flgLocalName  = cli.StringFlag{Name: "local-name", Usage: "advertised name (default: peripheral.local_name)"}
	flgFrameLimit = cli.IntFlag{Name: "frame-limit", Usage: "payload bytes per frame (default: peripheral.frame_limit)"}
	flgInterval   = cli.DurationFlag{Name: "interval", Usage: "preferred connection interval (default: host stack)"}
)

// scanDuration resolves --duration against the config.
func scanDuration(c *cli.Context) time.Duration {
	if d := c.Duration("duration"); d > 0 {
		return d
	}
	return cfg.Central.ScanDuration
}

// scanServices resolves --svc against the config.
func scanServices(c *cli.Context) []string {
	if s := c.StringSlice("svc"); len(s) > 0 {
		return s
	}
	return cfg.Central.ScanServices
}

// frameLimit resolves --frame-limit against the config.
func frameLimit(c *cli.Context) int {
	if n := c.Int("frame-limit"); n > 0 {
		return n
	}
	return cfg.Peripheral.FrameLimit
}

// connectOptions turns --interval into per-attempt connect options.
func connectOptions(c *cli.Context) []central.ConnectOption {
	if d := c.Duration("interval"); d > 0 {
		return []central.ConnectOption{central.ConnectInterval(d, d)}
	}
	return nil
}
