package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"
)

// Version is set during build using ldflags
var Version = "dev"

func main() {
	if err := newApp().Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:      "winter",
		Version:   Version,
		Usage:     "Serve one JavaScript fetch handler over HTTP",
		ArgsUsage: "[script.js]",
		Flags:     flags(),
		Action:    serveAction,
		Commands: []*cli.Command{
			{
				Name:      "serve",
				Usage:     "Start the server (default)",
				ArgsUsage: "[script.js]",
				Action:    serveAction,
			},
			{
				Name:      "check",
				Usage:     "Load the script into one context and report whether it registers a fetch handler",
				ArgsUsage: "[script.js]",
				Action:    checkAction,
			},
			{
				Name:  "version",
				Usage: "Print the version information",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					fmt.Fprintf(cmd.Root().Writer, "winter version %s (%s)\n", cmd.Root().Version, engineName())
					return nil
				},
			},
		},
	}
}
