package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	configFlags := []cli.Flag{
		&cli.StringFlag{
			Name:  "config",
			Usage: "path to the YAML configuration file",
			Value: "config/config.yaml",
		},
		&cli.StringFlag{
			Name:  "env",
			Usage: "path to an optional .env file",
			Value: ".env",
		},
	}

	app := &cli.Command{
		Name:  "briefly",
		Usage: "audio summary service",
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "start the HTTP server and job processor",
				Flags:  configFlags,
				Action: serveAction,
			},
			{
				Name:      "probe",
				Usage:     "print the duration of a YouTube video",
				ArgsUsage: "<url>",
				Flags:     configFlags,
				Action:    probeAction,
			},
			{
				Name:  "jobs",
				Usage: "list mirrored jobs of an owner",
				Flags: append([]cli.Flag{
					&cli.StringFlag{
						Name:     "owner",
						Usage:    "owner id",
						Required: true,
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "maximum number of jobs",
						Value: 20,
					},
				}, configFlags...),
				Action: jobsAction,
			},
			{
				Name:  "google-auth",
				Usage: "authorize Google Drive and Gmail access and cache the token",
				Flags: append([]cli.Flag{
					&cli.StringFlag{
						Name:  "code",
						Usage: "authorization code (prompted when empty)",
					},
				}, configFlags...),
				Action: googleAuthAction,
			},
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}
