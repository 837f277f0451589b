package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/urfave/cli/v3"

	"github.com/angelhodar/neuro-exercises/pkg/app"
	"github.com/angelhodar/neuro-exercises/pkg/config"
)

// stdout is where command results are printed as JSON.
var stdout io.Writer = os.Stdout

func snapshotCommand() *cli.Command {
	return &cli.Command{
		Name:  "snapshot",
		Usage: "Inspect or rebuild the agent base snapshot",
		Commands: []*cli.Command{
			{
				Name:  "current",
				Usage: "Print the current snapshot, rebuilding it when missing or near expiry",
				Action: withApp(func(ctx context.Context, c *cli.Command, a *app.App) error {
					cache, _, err := a.RequireSnapshots()
					if err != nil {
						return err
					}
					snap, err := cache.GetOrRefresh(ctx)
					if err != nil {
						return err
					}
					return printJSON(snap)
				}),
			},
			{
				Name:  "create",
				Usage: "Build a new snapshot from a fresh or an existing sandbox",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "sandbox-id",
						Usage: "Snapshot this running sandbox instead of provisioning a fresh one",
					},
				},
				Action: withApp(func(ctx context.Context, c *cli.Command, a *app.App) error {
					_, pipeline, err := a.RequireSnapshots()
					if err != nil {
						return err
					}
					snap, err := pipeline.CreateSnapshot(ctx, c.String("sandbox-id"))
					if err != nil {
						return err
					}
					return printJSON(snap)
				}),
			},
		},
	}
}

func exerciseCommand() *cli.Command {
	idArg := []cli.Argument{
		&cli.StringArg{
			Name:      "id",
			UsageText: "The exercise id",
			Config:    cli.StringConfig{TrimSpace: true},
		},
	}
	return &cli.Command{
		Name:  "exercise",
		Usage: "Start or stop exercise sandboxes",
		Commands: []*cli.Command{
			{
				Name:      "start",
				Usage:     "Connect to the exercise sandbox, provisioning one if needed",
				Arguments: idArg,
				Action: withApp(func(ctx context.Context, c *cli.Command, a *app.App) error {
					id, err := exerciseID(c)
					if err != nil {
						return err
					}
					m, err := a.RequireExercises()
					if err != nil {
						return err
					}
					sb, err := m.CreateOrConnect(ctx, id)
					if err != nil {
						return err
					}
					return printJSON(sb)
				}),
			},
			{
				Name:      "stop",
				Usage:     "Kill the exercise sandbox and clear its persisted id",
				Arguments: idArg,
				Action: withApp(func(ctx context.Context, c *cli.Command, a *app.App) error {
					id, err := exerciseID(c)
					if err != nil {
						return err
					}
					m, err := a.RequireExercises()
					if err != nil {
						return err
					}
					sandboxID, err := m.Stop(ctx, id)
					if err != nil {
						return err
					}
					return printJSON(map[string]string{"sandbox_id": sandboxID})
				}),
			},
		},
	}
}

func agentCommand() *cli.Command {
	return &cli.Command{
		Name:  "agent",
		Usage: "Acquire agent sandboxes",
		Commands: []*cli.Command{
			{
				Name:  "sandbox",
				Usage: "Reuse the previous agent sandbox or create one from the current snapshot",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "previous",
						Usage: "Sandbox id to try reusing",
					},
				},
				Action: withApp(func(ctx context.Context, c *cli.Command, a *app.App) error {
					p, err := a.RequireAgents()
					if err != nil {
						return err
					}
					sb, err := p.Acquire(ctx, c.String("previous"))
					if err != nil {
						return err
					}
					return printJSON(sb)
				}),
			},
		},
	}
}

// withApp loads configuration, builds the components and closes them after
// the action returns.
func withApp(action func(ctx context.Context, c *cli.Command, a *app.App) error) cli.ActionFunc {
	return func(ctx context.Context, c *cli.Command) error {
		cfg, err := config.Load(c.String("config"))
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		a, err := app.Build(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()
		return action(ctx, c, a)
	}
}

func exerciseID(c *cli.Command) (int64, error) {
	id, err := strconv.ParseInt(c.StringArg("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("exercise id must be a positive integer, got %q", c.StringArg("id"))
	}
	return id, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
