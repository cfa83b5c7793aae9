// File: cmd/exportctl/main.go
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"social-export/internal/application"
	"social-export/internal/config"
	"social-export/internal/infra/api"
	"social-export/internal/infra/db/migrations"
	"social-export/internal/infra/logging"
)

const usage = `usage: exportctl [--config path] [--dev] <command> [flags]

commands:
  process   run one export queue invocation and print the batch result
  migrate   apply database migrations
  token     mint a bearer token for a user
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "exportctl: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	global := pflag.NewFlagSet("exportctl", pflag.ContinueOnError)
	global.SetInterspersed(false)
	configPath := global.String("config", "config.yaml", "path to config yaml")
	dev := global.Bool("dev", false, "development mode")
	if err := global.Parse(args); err != nil {
		return err
	}
	rest := global.Args()
	if len(rest) == 0 {
		fmt.Fprint(out, usage)
		return errors.New("missing command")
	}

	cfg, err := config.Load(*configPath, *dev)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)

	switch rest[0] {
	case "process":
		fs := pflag.NewFlagSet("process", pflag.ContinueOnError)
		batch := fs.Int("batch", cfg.Export.BatchSize, "maximum requests to select")
		if err := fs.Parse(rest[1:]); err != nil {
			return err
		}
		svc, err := application.Build(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer svc.Close()
		res, err := svc.Exports.ProcessQueue(ctx, *batch)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res)

	case "migrate":
		fs := pflag.NewFlagSet("migrate", pflag.ContinueOnError)
		dir := fs.String("dir", migrations.DefaultDir, "directory holding goose migrations")
		if err := fs.Parse(rest[1:]); err != nil {
			return err
		}
		if err := migrations.Up(cfg.Database.URL, *dir); err != nil {
			return err
		}
		logger.Info().Str("dir", *dir).Msg("migrations applied")
		return nil

	case "token":
		fs := pflag.NewFlagSet("token", pflag.ContinueOnError)
		user := fs.String("user", "", "subject user id")
		admin := fs.Bool("admin", false, "grant the admin role")
		ttl := fs.Duration("ttl", time.Hour, "token lifetime")
		if err := fs.Parse(rest[1:]); err != nil {
			return err
		}
		role := ""
		if *admin {
			role = api.RoleAdmin
		}
		tok, err := api.NewAuthenticator(cfg.Server.JWTSecret).Mint(*user, role, *ttl)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, tok)
		return err

	default:
		fmt.Fprint(out, usage)
		return fmt.Errorf("unknown command %q", rest[0])
	}
}
