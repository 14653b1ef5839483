package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/chainline/chainline/internal/version"
)

func main() {
	app := &cli.Command{
		Name:    "chainline",
		Usage:   "Chainline - self-requeuing pipeline worker service",
		Version: version.Version(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to config file",
				Sources: cli.EnvVars("CONFIG"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "Run the task consumer",
				Action: func(ctx context.Context, c *cli.Command) error {
					return runServe(ctx, c.String("config"))
				},
			},
			{
				Name:  "enqueue",
				Usage: "Submit one work item onto the task queue",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "worker",
						Usage:    "Registered worker type name",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "params",
						Usage: "Worker parameters as a JSON object",
						Value: "{}",
					},
					&cli.StringFlag{
						Name:  "instance-id",
						Usage: "Pipeline run to attach to; a fresh run is created when omitted",
					},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					return runEnqueue(ctx, c.String("config"), c.String("worker"), c.String("params"), c.String("instance-id"))
				},
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			return cli.ShowAppHelp(c)
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
