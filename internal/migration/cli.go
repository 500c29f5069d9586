package migration

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"
)

// CLI provides terminal-facing formatting on top of an Engine. Output is
// injected through SetOutput so tests can capture it without touching
// os.Stdout.
type CLI struct {
	engine *Engine
	set    Set
	output io.Writer
}

// NewCLI builds a CLI over engine and the discovered migration set.
func NewCLI(engine *Engine, set Set) *CLI {
	return &CLI{engine: engine, set: set, output: os.Stdout}
}

// SetOutput sets the writer CLI methods print to.
func (c *CLI) SetOutput(w io.Writer) {
	c.output = w
}

// RunMigrate runs every pending migration.
func (c *CLI) RunMigrate(ctx context.Context) error {
	fmt.Fprintln(c.output, "Running pending migrations...")
	return c.runAndReport(ctx, Request{Command: CommandMigrate})
}

// RunMigrateUntilJustBefore runs every pending migration with id less
// than target.
func (c *CLI) RunMigrateUntilJustBefore(ctx context.Context, target int64) error {
	fmt.Fprintf(c.output, "Running migrations up to (but not including) %d...\n", target)
	return c.runAndReport(ctx, Request{Command: CommandMigrateUntilJustBefore, Target: target})
}

// RunUp applies exactly the named migrations, in order.
func (c *CLI) RunUp(ctx context.Context, ids []int64) error {
	fmt.Fprintf(c.output, "Applying %d migration(s)...\n", len(ids))
	return c.runAndReport(ctx, Request{Command: CommandUp, Targets: ids})
}

// RunDown reverts exactly the named migrations, in order.
func (c *CLI) RunDown(ctx context.Context, ids []int64) error {
	fmt.Fprintf(c.output, "Reverting %d migration(s)...\n", len(ids))
	return c.runAndReport(ctx, Request{Command: CommandDown, Targets: ids})
}

// RunRollback reverts the single most recently applied migration.
func (c *CLI) RunRollback(ctx context.Context) error {
	fmt.Fprintln(c.output, "Rolling back last migration...")
	return c.runAndReport(ctx, Request{Command: CommandRollback})
}

// RunRollbackUntilJustAfter reverts every completed migration with id
// greater than target.
func (c *CLI) RunRollbackUntilJustAfter(ctx context.Context, target int64) error {
	fmt.Fprintf(c.output, "Rolling back migrations down to (but not including) %d...\n", target)
	return c.runAndReport(ctx, Request{Command: CommandRollbackUntilJustAfter, Target: target})
}

// RunReset reverts every completed migration, then re-applies the full set.
func (c *CLI) RunReset(ctx context.Context) error {
	fmt.Fprintln(c.output, "Resetting: rolling back all applied migrations, then migrating...")
	return c.runAndReport(ctx, Request{Command: CommandReset})
}

// RunCreate writes a new empty up/down migration pair into dir, named
// from the current time and name.
func (c *CLI) RunCreate(dir, name string) error {
	up, down, err := CreateFiles(dir, name, time.Now())
	if err != nil {
		return err
	}
	fmt.Fprintf(c.output, "Created:\n  %s\n  %s\n", up, down)
	return nil
}

// RunInit reads scriptPath and runs it against the target database as a
// one-time initialization step, outside the bookkeeping table.
func (c *CLI) RunInit(ctx context.Context, scriptPath string, transactional bool) error {
	data, err := os.ReadFile(scriptPath)
	if err != nil {
		return fmt.Errorf("read init script: %w", err)
	}
	fmt.Fprintf(c.output, "Running init script %s...\n", scriptPath)
	if err := c.engine.Init(ctx, string(data), transactional); err != nil {
		return err
	}
	fmt.Fprintln(c.output, "Init script applied.")
	return nil
}

func (c *CLI) runAndReport(ctx context.Context, req Request) error {
	outcomes, err := c.engine.Run(ctx, c.set, req)
	c.printOutcomes(outcomes)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.output, "Done. %d step(s) executed.\n", len(outcomes))
	return nil
}

func (c *CLI) printOutcomes(outcomes []Outcome) {
	if len(outcomes) == 0 {
		return
	}
	w := tabwriter.NewWriter(c.output, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tDIRECTION\tSTATUS")
	for _, o := range outcomes {
		status := string(o.Status)
		if o.Status == StatusFailed && o.Err != nil {
			status = fmt.Sprintf("%s (%s)", status, o.Err)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", o.Descriptor.ID, o.Descriptor.Name, o.Direction, status)
	}
	w.Flush()
}

// RunList prints the migration set against the store's completion state,
// filtered to one of "available", "pending", or "applied".
func (c *CLI) RunList(ctx context.Context, filter string) error {
	if err := c.engine.store.Connect(ctx); err != nil {
		return fmt.Errorf("connect store: %w", err)
	}
	defer c.engine.store.Disconnect(ctx)

	completed, err := c.engine.store.CompletedIDs(ctx)
	if err != nil {
		return fmt.Errorf("load completed ids: %w", err)
	}

	var ids []int64
	switch filter {
	case "", "available":
		ids = c.set.SortedIDs()
	case "pending":
		ids = Pending(c.set, completed)
	case "applied":
		ids = Applied(c.set, completed)
	default:
		return fmt.Errorf("migration: unknown list filter %q", filter)
	}

	done := toSet(completed)
	w := tabwriter.NewWriter(c.output, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tAPPLIED")
	for _, id := range ids {
		_, applied := done[id]
		fmt.Fprintf(w, "%d\t%s\t%v\n", id, c.set[id].Name, applied)
	}
	w.Flush()
	return nil
}
