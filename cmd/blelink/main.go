// Command blelink scans, explores and talks to BLE peripherals, and can act
// as a framing peripheral itself.
//
// Usage:
//
//	blelink [--config path] scan|explore|listen|advertise|loopback|config init
package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli"

	"github.com/chaz8081/blelink/internal/config"
)

var cfg *config.Config

func main() {
	app := cli.NewApp()

	app.Name = "blelink"
	app.Usage = "BLE central and peripheral link tool"
	app.Version = "0.1.0"
	app.Action = cli.ShowAppHelp
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "config, c",
			Usage: "path to config file (default: ~/.config/blelink/config.yaml)",
		},
		cli.StringFlag{
			Name:  "log-level",
			Usage: "override log_level from the config file",
		},
	}

	app.Commands = []cli.Command{
		{
			Name:    "scan",
			Aliases: []string{"s"},
			Usage:   "List advertising peripherals",
			Action:  scan,
			Flags:   []cli.Flag{flgDuration, flgService},
		},
		{
			Name:    "explore",
			Aliases: []string{"e"},
			Usage:   "Connect to a peripheral and print its GATT profile",
			Action:  explore,
			Flags:   []cli.Flag{flgDuration, flgService, flgName, flgAddr, flgInterval},
		},
		{
			Name:    "listen",
			Aliases: []string{"l"},
			Usage:   "Subscribe to a characteristic and print framed messages",
			Action:  listen,
			Flags:   []cli.Flag{flgDuration, flgService, flgName, flgAddr, flgChar, flgInterval},
		},
		{
			Name:    "advertise",
			Aliases: []string{"a"},
			Usage:   "Advertise a framing service and send each stdin line to the subscriber",
			Action:  advertise,
			Flags:   []cli.Flag{flgLocalName, flgFrameLimit},
		},
		{
			Name:   "loopback",
			Usage:  "Run both roles in-process and transfer a message between them",
			Action: runLoopback,
			Flags: []cli.Flag{
				flgFrameLimit,
				cli.StringFlag{Name: "text, t", Value: "Hello from blelink over the loopback radio!", Usage: "message to transfer"},
				cli.IntFlag{Name: "queue", Value: 4, Usage: "notification queue depth"},
			},
		},
		{
			Name:  "config",
			Usage: "Manage the config file",
			Subcommands: []cli.Command{
				{
					Name:   "init",
					Usage:  "Write the default config file if it does not exist",
					Action: configInit,
				},
			},
		},
	}

	app.Before = setup
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "blelink: %v\n", err)
		os.Exit(1)
	}
}

// setup loads the config and installs the slog handler.
func setup(c *cli.Context) error {
	loaded, err := loadConfig(c.GlobalString("config"))
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if lvl := c.GlobalString("log-level"); lvl != "" {
		loaded.LogLevel = lvl
	}
	if err := loaded.Validate(); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}
	cfg = loaded

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: config.ParseLogLevel(cfg.LogLevel),
	})))
	return nil
}

// loadConfig loads the config from the specified path, or falls back to
// the default config path, or uses built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}

	defaultPath := config.DefaultConfigPath()
	if _, err := os.Stat(defaultPath); err == nil {
		loaded, err := config.Load(defaultPath)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", defaultPath, err)
		}
		return loaded, nil
	}

	return config.Default(), nil
}

func configInit(c *cli.Context) error {
	path, err := config.WriteDefault()
	if err != nil {
		return err
	}
	if path == "" {
		fmt.Printf("Config already exists at %s\n", config.DefaultConfigPath())
		return nil
	}
	fmt.Printf("Wrote default config to %s\n", path)
	return nil
}

// interrupted returns a channel that fires on SIGINT or SIGTERM.
func interrupted() (<-chan os.Signal, func()) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	return sigCh, func() { signal.Stop(sigCh) }
}
