package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"
	"mvdan.cc/sh/v3/syntax"

	"github.com/starford/comicshelf/internal"
	pkgconfig "github.com/starford/comicshelf/pkg/config"
)

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	configPath := cmd.String("config")

	cfg := internal.NewDefaultConfig()
	found, err := pkgconfig.LoadIfExists(configPath, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if !found {
		slog.Warn("config file not found, using defaults", slog.String("path", configPath))
	}
	return cfg, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, internal.WithConfig(cfg)); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func scan(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	res, err := internal.Scan(ctx, internal.WithConfig(cfg), internal.WithLogOutput(os.Stderr))
	if err != nil {
		return fmt.Errorf("scan: %w", err)
	}
	out := cmd.Root().Writer
	for _, c := range res.Additions {
		fmt.Fprintf(out, "+ %s\n", c.ID())
	}
	for _, c := range res.Removals {
		fmt.Fprintf(out, "- %s\n", c.ID())
	}
	fmt.Fprintf(out, "scan %s: %d added, %d removed, %d unchanged\n",
		res.ScanID, len(res.Additions), len(res.Removals), res.Unchanged)
	return nil
}

func tokenize(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	args, err := internal.Tokenize(ctx, cmd.String("format"), cmd.String("id"),
		internal.WithConfig(cfg), internal.WithLogOutput(io.Discard))
	if err != nil {
		return err
	}
	return printArgs(cmd.Root().Writer, args)
}

// printArgs writes args on one line, each quoted so the line can be pasted
// into a POSIX shell.
func printArgs(w io.Writer, args []string) error {
	quoted := make([]string, len(args))
	for i, a := range args {
		q, err := syntax.Quote(a, syntax.LangPOSIX)
		if err != nil {
			return fmt.Errorf("quote %q: %w", a, err)
		}
		quoted[i] = q
	}
	_, err := fmt.Fprintln(w, strings.Join(quoted, " "))
	return err
}

func mcp(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.ServeMCP(ctx, internal.WithConfig(cfg))
}

func newCommand() *cli.Command {
	return &cli.Command{
		Name:   "comicshelf",
		Usage:  "Catalog comic folders, tag them and open them in your viewer",
		Action: serve,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API and library watcher",
				Action: serve,
			},
			{
				Name:   "scan",
				Usage:  "Scan the library once and print what changed",
				Action: scan,
			},
			{
				Name:   "tokenize",
				Usage:  "Expand an execution string into shell-quoted arguments",
				Action: tokenize,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Usage: "Execution string", Required: true},
					&cli.StringFlag{Name: "id", Usage: "Comic identifier; placeholders when empty"},
				},
			},
			{
				Name:   "mcp",
				Usage:  "Serve MCP tools over stdio",
				Action: mcp,
			},
		},
	}
}

func main() {
	if err := newCommand().Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
