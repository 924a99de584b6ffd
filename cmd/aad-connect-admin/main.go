package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/target/aad-connect/config"
	"github.com/target/aad-connect/internal/adapters/clientconfig"
	"github.com/target/aad-connect/internal/bootstrap"
	"github.com/target/aad-connect/internal/data"
	"github.com/target/aad-connect/internal/domain/rolemap"
)

type commandFn func(ctx *commandContext, args []string) error

type command struct {
	name        string
	description string
	run         commandFn
}

type commandContext struct {
	Ctx    context.Context
	Logger *slog.Logger
	Config config.AppConfig
	Out    io.Writer
}

const defaultCommandTimeout = 5 * time.Minute

func main() {
	logger := bootstrap.InitLogger()

	if len(os.Args) < 2 {
		if err := printUsage(os.Stdout); err != nil {
			logger.Error("print usage failed", "error", err)
		}
		os.Exit(2) //nolint:forbidigo // CLI must exit with failure status when no command is provided
	}

	cmdName := os.Args[1]
	cmd, ok := commands()[cmdName]
	if !ok {
		if err := writef(os.Stderr, "unknown command %q\n\n", cmdName); err != nil {
			logger.Error("print unknown command message failed", "error", err)
		}
		if err := printUsage(os.Stderr); err != nil {
			logger.Error("print usage failed", "error", err)
		}
		os.Exit(2) //nolint:forbidigo // CLI must exit with failure status when command is unknown
	}

	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		logger.ErrorContext(context.Background(), "load config", "error", err)
		os.Exit(1) //nolint:forbidigo // CLI must signal configuration load failure to shell scripts
	}

	cmdCtx := &commandContext{
		Ctx:    context.Background(),
		Logger: logger,
		Config: cfg,
		Out:    os.Stdout,
	}
	if runErr := cmd.run(cmdCtx, os.Args[2:]); runErr != nil {
		logger.ErrorContext(cmdCtx.Ctx, "command failed", "command", cmdName, "error", runErr)
		os.Exit(1) //nolint:forbidigo // CLI must propagate command execution failure to callers
	}
}

func commands() map[string]command {
	return map[string]command{
		"migrate": {
			name:        "migrate",
			description: "Run database migrations",
			run:         runMigrations,
		},
		"validate-rules": {
			name:        "validate-rules",
			description: "Report group mapping rules that will be skipped at login",
			run:         runValidateRules,
		},
		"unblock": {
			name:        "unblock",
			description: "Activate a blocked account: unblock --user <id>",
			run:         runUnblock,
		},
		"providers": {
			name:        "providers",
			description: "List the SSO providers linked to an account: providers --user <id>",
			run:         runProviders,
		},
	}
}

func printUsage(w io.Writer) error {
	if err := writef(w, "Usage: aad-connect-admin <command> [flags]\n\n"); err != nil {
		return err
	}
	if err := writef(w, "Available commands:\n"); err != nil {
		return err
	}
	names := make([]string, 0, len(commands()))
	for name := range commands() {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := writef(w, "  %-16s %s\n", name, commands()[name].description); err != nil {
			return err
		}
	}
	return nil
}

type timeoutOptions struct {
	Timeout time.Duration
	UserID  string
}

func parseFlags(name string, args []string, needUser bool) (timeoutOptions, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	opts := timeoutOptions{Timeout: defaultCommandTimeout}
	fs.DurationVar(&opts.Timeout, "timeout", defaultCommandTimeout, "Maximum duration for the command")
	if needUser {
		fs.StringVar(&opts.UserID, "user", "", "Local user id")
	}

	if err := fs.Parse(args); err != nil {
		return timeoutOptions{}, err
	}
	if opts.Timeout <= 0 {
		return timeoutOptions{}, errors.New("--timeout must be greater than zero")
	}
	opts.UserID = strings.TrimSpace(opts.UserID)
	if needUser && opts.UserID == "" {
		return timeoutOptions{}, errors.New("--user is required")
	}
	return opts, nil
}

// withDatabase connects to Postgres for the duration of fn.
func withDatabase(cmdCtx *commandContext, timeout time.Duration, fn func(ctx context.Context, db *sql.DB) error) error {
	ctx, stop := signal.NotifyContext(cmdCtx.Ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	db, err := bootstrap.ConnectDB(ctx, bootstrap.DatabaseConfig{
		DBConfig: cmdCtx.Config.Postgres,
		Logger:   cmdCtx.Logger,
	})
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			cmdCtx.Logger.Warn("db close failed", "error", closeErr)
		}
	}()

	return fn(ctx, db)
}

func runMigrations(cmdCtx *commandContext, args []string) error {
	opts, err := parseFlags("migrate", args, false)
	if err != nil {
		return err
	}
	return withDatabase(cmdCtx, opts.Timeout, func(ctx context.Context, db *sql.DB) error {
		cmdCtx.Logger.Info("running database migrations")
		if migrateErr := bootstrap.RunMigrations(ctx, db, cmdCtx.Logger); migrateErr != nil {
			return fmt.Errorf("run migrations: %w", migrateErr)
		}
		cmdCtx.Logger.Info("migrations completed successfully")
		return nil
	})
}

func runValidateRules(cmdCtx *commandContext, args []string) error {
	opts, err := parseFlags("validate-rules", args, false)
	if err != nil {
		return err
	}
	store, err := clientconfig.New(clientconfig.Options{AAD: cmdCtx.Config.Auth.AAD, Logger: cmdCtx.Logger})
	if err != nil {
		return fmt.Errorf("load mapping rules: %w", err)
	}
	return withDatabase(cmdCtx, opts.Timeout, func(ctx context.Context, db *sql.DB) error {
		roles, listErr := data.NewRoleRepo(db).ListRoles(ctx)
		if listErr != nil {
			return fmt.Errorf("list roles: %w", listErr)
		}
		return printSkippedRules(cmdCtx.Out, rolemap.ValidateRules(store.Rules(), roles))
	})
}

func printSkippedRules(w io.Writer, skipped []rolemap.SkippedRule) error {
	if len(skipped) == 0 {
		return writef(w, "All group mapping rules resolve to known roles.\n")
	}
	if err := writef(w, "%d rule(s) will be skipped:\n\n", len(skipped)); err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if err := writef(tw, "LINE\tREASON\tRULE\n"); err != nil {
		return err
	}
	for _, s := range skipped {
		if err := writef(tw, "%d\t%s\t%s\n", s.Line, s.Reason, s.Text); err != nil {
			return err
		}
	}
	return tw.Flush()
}

func runUnblock(cmdCtx *commandContext, args []string) error {
	opts, err := parseFlags("unblock", args, true)
	if err != nil {
		return err
	}
	return withDatabase(cmdCtx, opts.Timeout, func(ctx context.Context, db *sql.DB) error {
		if unblockErr := data.NewAccountRepo(db, data.AccountRepoConfig{}).Unblock(ctx, opts.UserID); unblockErr != nil {
			return fmt.Errorf("unblock %s: %w", opts.UserID, unblockErr)
		}
		cmdCtx.Logger.InfoContext(ctx, "account activated", "user_id", opts.UserID, "audit", true)
		return writef(cmdCtx.Out, "Account %s activated.\n", opts.UserID)
	})
}

func runProviders(cmdCtx *commandContext, args []string) error {
	opts, err := parseFlags("providers", args, true)
	if err != nil {
		return err
	}
	return withDatabase(cmdCtx, opts.Timeout, func(ctx context.Context, db *sql.DB) error {
		providers, listErr := data.NewAccountRepo(db, data.AccountRepoConfig{}).ConnectedProviders(ctx, opts.UserID)
		if listErr != nil {
			return fmt.Errorf("list providers for %s: %w", opts.UserID, listErr)
		}
		if len(providers) == 0 {
			return writef(cmdCtx.Out, "No linked providers.\n")
		}
		return writef(cmdCtx.Out, "%s\n", strings.Join(providers, "\n"))
	})
}

func writef(w io.Writer, format string, args ...any) error {
	_, err := fmt.Fprintf(w, format, args...)
	return err
}
