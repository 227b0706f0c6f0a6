package migration

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"
)

// ErrUsage 表示子命令或参数不合法
var ErrUsage = errors.New("invalid migrate usage")

// CLI provides command-line interface functionality for migrations
type CLI struct {
	migrator Migrator
	output   io.Writer
}

// NewCLI creates a new CLI instance
func NewCLI(migrator Migrator) *CLI {
	return &CLI{
		migrator: migrator,
		output:   os.Stdout,
	}
}

// SetOutput sets the output writer for CLI messages
func (c *CLI) SetOutput(w io.Writer) {
	c.output = w
}

// Run dispatches a migrate subcommand: up, down, steps N, goto V, force V, reset,
// version, status, info.
func (c *CLI) Run(ctx context.Context, subcommand string, args []string) error {
	switch subcommand {
	case "up":
		return c.apply(ctx, "Applying pending migrations", c.migrator.Up)
	case "down":
		return c.apply(ctx, "Rolling back the last migration", c.migrator.Down)
	case "reset":
		return c.apply(ctx, "Rolling back every migration", c.migrator.DownAll)
	case "steps":
		n, err := intArg(args, 0)
		if err != nil {
			return err
		}
		return c.apply(ctx, fmt.Sprintf("Moving %+d migration(s)", n), func(ctx context.Context) error {
			return c.migrator.Steps(ctx, n)
		})
	case "goto":
		v, err := intArg(args, 0)
		if err != nil || v < 0 {
			return fmt.Errorf("%w: goto needs a non-negative version", ErrUsage)
		}
		return c.apply(ctx, fmt.Sprintf("Migrating to version %d", v), func(ctx context.Context) error {
			return c.migrator.Goto(ctx, uint(v))
		})
	case "force":
		v, err := intArg(args, 0)
		if err != nil {
			return err
		}
		return c.apply(ctx, fmt.Sprintf("Forcing version %d", v), func(ctx context.Context) error {
			return c.migrator.Force(ctx, v)
		})
	case "version":
		return c.printVersion(ctx)
	case "status":
		return c.printStatus(ctx)
	case "info":
		return c.printInfo(ctx)
	default:
		return fmt.Errorf("%w: unknown subcommand %q", ErrUsage, subcommand)
	}
}

func intArg(args []string, i int) (int, error) {
	if len(args) <= i {
		return 0, fmt.Errorf("%w: missing numeric argument", ErrUsage)
	}
	n, err := strconv.Atoi(args[i])
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a number", ErrUsage, args[i])
	}
	return n, nil
}

// apply runs one mutating operation and reports the resulting version
func (c *CLI) apply(ctx context.Context, banner string, op func(context.Context) error) error {
	fmt.Fprintf(c.output, "%s...\n", banner)

	if err := op(ctx); err != nil {
		return err
	}

	version, dirty, err := c.migrator.Version(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.output, "Done. Schema version: %d%s\n", version, dirtySuffix(dirty))
	return nil
}

func dirtySuffix(dirty bool) string {
	if dirty {
		return " (dirty)"
	}
	return ""
}

func (c *CLI) printVersion(ctx context.Context) error {
	version, dirty, err := c.migrator.Version(ctx)
	if err != nil {
		return err
	}
	if version == 0 {
		fmt.Fprintln(c.output, "No migrations applied yet.")
		return nil
	}
	fmt.Fprintf(c.output, "Schema version: %d%s\n", version, dirtySuffix(dirty))
	return nil
}

func (c *CLI) printStatus(ctx context.Context) error {
	statuses, err := c.migrator.Status(ctx)
	if err != nil {
		return err
	}
	if len(statuses) == 0 {
		fmt.Fprintln(c.output, "No migrations found.")
		return nil
	}

	w := tabwriter.NewWriter(c.output, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "VERSION\tNAME\tSTATUS")
	applied := 0
	for _, s := range statuses {
		state := "pending"
		switch {
		case s.Dirty:
			state = "dirty"
		case s.Applied:
			state = "applied"
		}
		if s.Applied {
			applied++
		}
		fmt.Fprintf(w, "%06d\t%s\t%s\n", s.Version, s.Name, state)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(c.output, "\n%d applied, %d pending\n", applied, len(statuses)-applied)
	return nil
}

func (c *CLI) printInfo(ctx context.Context) error {
	info, err := c.migrator.Info(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(c.output, "current=%d dirty=%v total=%d applied=%d pending=%d\n",
		info.CurrentVersion, info.Dirty, info.TotalMigrations, info.AppliedMigrations, info.PendingMigrations)
	return nil
}
