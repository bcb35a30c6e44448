package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/charforge/internal"
	pkgconfig "github.com/starford/charforge/pkg/config"
)

var version = "dev"

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	configPath := cmd.String("config")

	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadOptional(configPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if dir := cmd.String("state-dir"); dir != "" {
		cfg.Client.StateDir = dir
	}
	return cfg, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, internal.WithConfig(cfg), internal.WithVersion(version)); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func serveMCP(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.RunMCP(ctx, internal.WithConfig(cfg), internal.WithVersion(version)); err != nil {
		return fmt.Errorf("mcp run error: %w", err)
	}
	return nil
}

func main() {
	cmd := &cli.Command{
		Name:    "charforge",
		Usage:   "Character creation wizard with local drafts and cloud sync",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
			&cli.StringFlag{
				Name:    "state-dir",
				Usage:   "Directory holding the draft and settings",
				Sources: cli.EnvVars("CHARFORGE_STATE_DIR"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the character storage HTTP server",
				Action: serve,
			},
			{
				Name:   "mcp",
				Usage:  "Serve the character tools over MCP stdio",
				Action: serveMCP,
			},
			wizardCommand(),
			{
				Name:      "watch",
				Usage:     "Import every change of an exported character file and sync it",
				ArgsUsage: "<file>",
				Action: withSession(func(ctx context.Context, cmd *cli.Command, sess *internal.Session) error {
					path, err := arg(cmd, 0, "file")
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.Root().Writer, "watching %s\n", path)
					return sess.WatchFile(ctx, path, cmd.Root().Writer)
				}),
			},
			adminCommand(),
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
