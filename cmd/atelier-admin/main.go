// Command atelier-admin is an operator CLI for the atelier database:
// migrations, invitation issuance and user provisioning outside the HTTP
// surface.
package main

import (
	"bufio"
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/atelierhq/atelier/config"
	"github.com/atelierhq/atelier/internal/bootstrap"
	"github.com/atelierhq/atelier/internal/data"
	domainauth "github.com/atelierhq/atelier/internal/domain/auth"
	"github.com/atelierhq/atelier/internal/service"
)

const defaultCommandTimeout = 30 * time.Second

type commandContext struct {
	Ctx    context.Context
	Logger *slog.Logger
	Config *config.AppConfig
}

type commandFn func(cmdCtx commandContext, args []string) error

type command struct {
	name        string
	description string
	run         commandFn
}

func commands() map[string]command {
	return map[string]command{
		"migrate": {
			name:        "migrate",
			description: "Apply pending database migrations",
			run:         runMigrate,
		},
		"invite": {
			name:        "invite",
			description: "Issue a registration invitation and print its token",
			run:         runInvite,
		},
		"list-invitations": {
			name:        "list-invitations",
			description: "List invitations with status and expiry",
			run:         runListInvitations,
		},
		"list-users": {
			name:        "list-users",
			description: "List provisioned users with role and access window",
			run:         runListUsers,
		},
		"seed-admin": {
			name:        "seed-admin",
			description: "Provision an admin user for an existing provider identity",
			run:         runSeedAdmin,
		},
	}
}

func main() {
	logger := bootstrap.InitLogger()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(2) //nolint:forbidigo // CLI exit.
	}

	name := os.Args[1]
	if name == "help" || name == "-h" || name == "--help" {
		printUsage()
		return
	}

	cmd, ok := commands()[name]
	if !ok {
		writef("unknown command %q\n\n", name)
		printUsage()
		os.Exit(2) //nolint:forbidigo // CLI exit.
	}

	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		logger.Error("loading configuration failed", "error", err)
		os.Exit(1) //nolint:forbidigo // CLI exit.
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cmdCtx := commandContext{Ctx: ctx, Logger: logger, Config: &cfg}
	if err := cmd.run(cmdCtx, os.Args[2:]); err != nil {
		logger.Error("command failed", "command", cmd.name, "error", err)
		stop()
		os.Exit(1) //nolint:forbidigo // CLI exit.
	}
}

func printUsage() {
	writeln("usage: atelier-admin <command> [flags]")
	writeln("")
	writeln("commands:")

	cmds := commands()
	names := make([]string, 0, len(cmds))
	for name := range cmds {
		names = append(names, name)
	}
	sort.Strings(names)

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	for _, name := range names {
		fmt.Fprintf(tw, "  %s\t%s\n", name, cmds[name].description)
	}
	_ = tw.Flush()
}

// withDatabase connects, runs fn against the pool and closes it. The
// timeout bounds the whole command, not individual queries.
func withDatabase(cmdCtx commandContext, timeout time.Duration, fn func(ctx context.Context, db *sql.DB) error) error {
	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, timeout)
	defer cancel()

	db, err := bootstrap.ConnectDB(bootstrap.DatabaseConfig{
		DBConfig: cmdCtx.Config.Postgres,
		Logger:   cmdCtx.Logger,
	})
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			cmdCtx.Logger.Error("closing database failed", "error", closeErr)
		}
	}()

	return fn(ctx, db)
}

// guardRemoteHost asks for confirmation before mutating a database that
// does not look local.
func guardRemoteHost(cmdCtx commandContext) error {
	host := cmdCtx.Config.Postgres.Host
	if host == "localhost" || host == "127.0.0.1" || host == "::1" {
		return nil
	}
	return confirmAction(fmt.Sprintf("target database host is %q", host))
}

func confirmAction(what string) error {
	writef("%s; continue? [y/N] ", what)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("read confirmation: %w", err)
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	if answer != "y" && answer != "yes" {
		return fmt.Errorf("aborted")
	}
	return nil
}

func runMigrate(cmdCtx commandContext, args []string) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	timeout := fs.Duration("timeout", 2*time.Minute, "overall command timeout")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if err := guardRemoteHost(cmdCtx); err != nil {
		return err
	}

	return withDatabase(cmdCtx, *timeout, func(ctx context.Context, db *sql.DB) error {
		return bootstrap.RunMigrations(ctx, db, cmdCtx.Logger)
	})
}

func runInvite(cmdCtx commandContext, args []string) error {
	fs := flag.NewFlagSet("invite", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	email := fs.String("email", "", "e-mail address the invitation is bound to (required)")
	days := fs.Int("days", 0, "lifetime in days (default 7)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *email == "" {
		fs.Usage()
		return fmt.Errorf("-email is required")
	}

	return withDatabase(cmdCtx, defaultCommandTimeout, func(ctx context.Context, db *sql.DB) error {
		svc := service.NewInvitationService(service.InvitationServiceOptions{
			Store:  data.NewInvitationRepo(db),
			Logger: cmdCtx.Logger,
		})
		inv, err := svc.Create(ctx, service.CreateInvitationInput{
			Email: *email,
			TTL:   time.Duration(*days) * 24 * time.Hour,
		})
		if err != nil {
			return err
		}

		writef("invitation %s\n", inv.ID)
		writef("  email:      %s\n", inv.Email)
		writef("  token:      %s\n", inv.Token)
		writef("  expires at: %s\n", inv.ExpiresAt.Format(time.RFC3339))
		if base := cmdCtx.Config.HTTP.BaseURL; base != "" {
			writef("  signup:     %s/register?invitation=%s\n", strings.TrimRight(base, "/"), inv.Token)
		}
		return nil
	})
}

func runListInvitations(cmdCtx commandContext, args []string) error {
	fs := flag.NewFlagSet("list-invitations", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}

	return withDatabase(cmdCtx, defaultCommandTimeout, func(ctx context.Context, db *sql.DB) error {
		invitations, err := data.NewInvitationRepo(db).List(ctx)
		if err != nil {
			return err
		}
		if len(invitations) == 0 {
			writeln("no invitations")
			return nil
		}

		now := time.Now()
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tEMAIL\tSTATUS\tEXPIRES")
		for _, inv := range invitations {
			status := string(inv.Status)
			if inv.Status == domainauth.InvitationPending && inv.Expired(now) {
				status = "expired"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", inv.ID, inv.Email, status, inv.ExpiresAt.Format(time.RFC3339))
		}
		return tw.Flush()
	})
}

func runListUsers(cmdCtx commandContext, args []string) error {
	fs := flag.NewFlagSet("list-users", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}

	return withDatabase(cmdCtx, defaultCommandTimeout, func(ctx context.Context, db *sql.DB) error {
		users, err := data.NewUserRepo(db).List(ctx)
		if err != nil {
			return err
		}
		if len(users) == 0 {
			writeln("no users")
			return nil
		}

		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tEMAIL\tROLE\tACCESS WINDOW")
		for _, user := range users {
			window := "unrestricted"
			if user.AccessWindow != nil {
				window = user.AccessWindow.String()
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", user.ID, user.Email, user.Role, window)
		}
		return tw.Flush()
	})
}

// runSeedAdmin inserts an admin row directly. The identity must already
// exist at the provider; the id here has to match the provider subject or
// the session manager will treat the login as unprovisioned.
func runSeedAdmin(cmdCtx commandContext, args []string) error {
	fs := flag.NewFlagSet("seed-admin", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	id := fs.String("id", "", "provider identity id, e.g. the JWT subject (required)")
	email := fs.String("email", "", "e-mail address of the identity (required)")
	yes := fs.Bool("yes", false, "skip the confirmation prompt")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == "" || *email == "" {
		fs.Usage()
		return fmt.Errorf("-id and -email are required")
	}

	if !*yes {
		if err := confirmAction(fmt.Sprintf("grant admin to %s (%s)", *email, *id)); err != nil {
			return err
		}
	}
	if err := guardRemoteHost(cmdCtx); err != nil {
		return err
	}

	return withDatabase(cmdCtx, defaultCommandTimeout, func(ctx context.Context, db *sql.DB) error {
		user := domainauth.UserRecord{
			ID:    *id,
			Email: *email,
			Role:  domainauth.RoleAdmin,
		}
		if err := data.NewUserRepo(db).Insert(ctx, user); err != nil {
			return err
		}
		writef("admin %s provisioned\n", *email)
		return nil
	})
}

//nolint:forbidigo // operator-facing output belongs on stdout.
func writef(format string, args ...any) {
	fmt.Printf(format, args...)
}

//nolint:forbidigo // operator-facing output belongs on stdout.
func writeln(line string) {
	fmt.Println(line)
}
