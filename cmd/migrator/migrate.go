package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/kilnhq/migrator/internal/migration"
)

// runMigrate handles the migrate command and its subcommands.
func runMigrate(args []string) {
	subcommand := "migrate"
	subargs := args
	if len(args) > 0 && !looksLikeFlag(args[0]) {
		subcommand = args[0]
		subargs = args[1:]
	}

	switch subcommand {
	case "migrate", "up":
		runMigrateUp(subargs)
	case "rollback":
		runMigrateRollback(subargs)
	case "reset":
		runMigrateReset(subargs)
	case "apply":
		runMigrateApply(subargs)
	case "revert":
		runMigrateRevert(subargs)
	case "list":
		runMigrateList(subargs)
	case "create":
		runMigrateCreate(subargs)
	case "init":
		runMigrateInit(subargs)
	case "help", "-h", "--help":
		printMigrateUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown migrate subcommand: %s\n", subcommand)
		printMigrateUsage()
		os.Exit(1)
	}
}

func looksLikeFlag(s string) bool {
	return len(s) > 0 && s[0] == '-'
}

func printMigrateUsage() {
	fmt.Println(`Database migration commands

Usage:
  migrator migrate <subcommand> [options]

Subcommands:
  (none) / up          Apply all pending migrations
  rollback              Revert the most recently applied migration
  reset                 Revert every applied migration, then re-apply all
  apply <id>...          Apply exactly the named migrations, in order
  revert <id>...         Revert exactly the named migrations, in order
  list                   List available migrations
  create <name>          Scaffold a new timestamped up/down pair
  init                   Run the one-time init script (migration.init_script)
  help                   Show this help message

Options:
  --config <path>        Path to configuration file (YAML)
  --until-just-before <id>   With no subcommand/up: stop just before id
  --until-just-after <id>    With rollback: stop just after id
  --available|--pending|--applied   With list: filter the rows shown

Examples:
  migrator migrate
  migrator migrate --until-just-before 20240301000000
  migrator migrate rollback
  migrator migrate apply 20240301000000 20240302000000
  migrator migrate list --pending
  migrator migrate create add-users-table
  migrator migrate init`)
}

// buildCLI loads config, wires the engine and returns a CLI writing to
// stdout, along with a cleanup func the caller must defer.
func buildCLI(configPath string) (*migration.CLI, func(), error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, func() {}, err
	}

	logger := initLogger(cfg.Log)
	stopTelemetry := initTelemetry(cfg, logger)
	cleanup := func() {
		stopTelemetry()
		_ = logger.Sync()
	}

	engine, set, err := migration.NewEngineFromConfig(cfg, logger)
	if err != nil {
		cleanup()
		return nil, func() {}, fmt.Errorf("build engine: %w", err)
	}

	return migration.NewCLI(engine, set), cleanup, nil
}

func runMigrateUp(args []string) {
	fs := flag.NewFlagSet("migrate up", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	untilJustBefore := fs.Int64("until-just-before", 0, "Stop just before this migration id")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	cli, cleanup, err := buildCLI(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	ctx := context.Background()
	if *untilJustBefore != 0 {
		err = cli.RunMigrateUntilJustBefore(ctx, *untilJustBefore)
	} else {
		err = cli.RunMigrate(ctx)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Migration failed: %v\n", err)
		os.Exit(1)
	}
}

func runMigrateRollback(args []string) {
	fs := flag.NewFlagSet("migrate rollback", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	untilJustAfter := fs.Int64("until-just-after", 0, "Stop just after this migration id")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	cli, cleanup, err := buildCLI(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	ctx := context.Background()
	if *untilJustAfter != 0 {
		err = cli.RunRollbackUntilJustAfter(ctx, *untilJustAfter)
	} else {
		err = cli.RunRollback(ctx)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Rollback failed: %v\n", err)
		os.Exit(1)
	}
}

func runMigrateReset(args []string) {
	fs := flag.NewFlagSet("migrate reset", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	cli, cleanup, err := buildCLI(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	if err := cli.RunReset(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Reset failed: %v\n", err)
		os.Exit(1)
	}
}

func runMigrateApply(args []string) {
	fs := flag.NewFlagSet("migrate apply", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	ids, err := parseIDs(fs.Args())
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	cli, cleanup, err := buildCLI(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	if err := cli.RunUp(context.Background(), ids); err != nil {
		fmt.Fprintf(os.Stderr, "Apply failed: %v\n", err)
		os.Exit(1)
	}
}

func runMigrateRevert(args []string) {
	fs := flag.NewFlagSet("migrate revert", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	ids, err := parseIDs(fs.Args())
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	cli, cleanup, err := buildCLI(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	if err := cli.RunDown(context.Background(), ids); err != nil {
		fmt.Fprintf(os.Stderr, "Revert failed: %v\n", err)
		os.Exit(1)
	}
}

func runMigrateList(args []string) {
	fs := flag.NewFlagSet("migrate list", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	available := fs.Bool("available", false, "List every discovered migration")
	pending := fs.Bool("pending", false, "List migrations not yet applied")
	applied := fs.Bool("applied", false, "List migrations already applied")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	filter := "available"
	switch {
	case *pending:
		filter = "pending"
	case *applied:
		filter = "applied"
	case *available:
		filter = "available"
	}

	cli, cleanup, err := buildCLI(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	if err := cli.RunList(context.Background(), filter); err != nil {
		fmt.Fprintf(os.Stderr, "List failed: %v\n", err)
		os.Exit(1)
	}
}

func runMigrateCreate(args []string) {
	fs := flag.NewFlagSet("migrate create", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	dir := fs.String("dir", "", "Directory to write the migration pair into (default: migration.dir from config)")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	rest := fs.Args()
	if len(rest) != 1 {
		fmt.Fprintln(os.Stderr, "Usage: migrator migrate create <name>")
		os.Exit(1)
	}
	name := rest[0]

	targetDir := *dir
	if targetDir == "" {
		cfg, err := loadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			os.Exit(1)
		}
		targetDir = cfg.Migration.Dir
	}

	cli := migration.NewCLI(nil, nil)
	if err := cli.RunCreate(targetDir, name); err != nil {
		fmt.Fprintf(os.Stderr, "Create failed: %v\n", err)
		os.Exit(1)
	}
}

func runMigrateInit(args []string) {
	fs := flag.NewFlagSet("migrate init", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	scriptPath := fs.String("script", "", "Path to the init script (default: migration.init_script under migration.dir)")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	target := *scriptPath
	if target == "" {
		target = filepath.Join(cfg.Migration.Dir, cfg.Migration.InitScript)
	}

	cli, cleanup, err := buildCLI(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	if err := cli.RunInit(context.Background(), target, cfg.Migration.InitInTransaction); err != nil {
		fmt.Fprintf(os.Stderr, "Init failed: %v\n", err)
		os.Exit(1)
	}
}

func parseIDs(args []string) ([]int64, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("at least one migration id is required")
	}
	ids := make([]int64, 0, len(args))
	for _, a := range args {
		id, err := strconv.ParseInt(a, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid migration id %q: %w", a, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
