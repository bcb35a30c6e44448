package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/urfave/cli/v3"

	"github.com/starford/charforge/internal/remote"
)

func adminClient(cmd *cli.Command) (*remote.Client, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	token := cmd.String("admin-token")
	if token == "" {
		token = cfg.Auth.AdminToken
	}
	return remote.New(cfg.Client.APIBase,
		remote.WithHTTPClient(&http.Client{Timeout: cfg.Client.Timeout}),
		remote.WithCredentials(remote.StaticCredential(token)),
	), nil
}

func adminCommand() *cli.Command {
	return &cli.Command{
		Name:  "admin",
		Usage: "Maintenance of the character store",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "admin-token",
				Usage:   "Bearer token of the admin routes",
				Sources: cli.EnvVars("CHARFORGE_ADMIN_TOKEN"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List every stored character",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					client, err := adminClient(cmd)
					if err != nil {
						return err
					}
					items, err := client.AdminList(ctx)
					if err != nil {
						return err
					}
					for _, s := range items {
						fmt.Fprintf(out(cmd), "%s\t%s\t%s\n", s.ID, s.Name, s.UpdatedAt.Local().Format("2006-01-02 15:04"))
					}
					return nil
				},
			},
			{
				Name:  "purge",
				Usage: "Delete every stored character",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "yes", Usage: "Confirm the purge"},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					if !cmd.Bool("yes") {
						return errors.New("purge deletes every character; pass --yes to confirm")
					}
					client, err := adminClient(cmd)
					if err != nil {
						return err
					}
					n, err := client.AdminPurge(ctx)
					if err != nil {
						return err
					}
					fmt.Fprintf(out(cmd), "deleted %d characters\n", n)
					return nil
				},
			},
		},
	}
}
