// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package main provides the migrator command line entry point.

# Overview

cmd/migrator is the executable front end for the migration engine: it
loads configuration (YAML file plus environment overrides), wires a
database connection and discovers a migration set, and dispatches to
one of the migrate subcommands.

# Subcommands

  - migrate                 apply every pending migration
  - migrate up               alias for migrate
  - migrate rollback         revert the most recently applied migration
  - migrate reset            revert every applied migration, then re-apply all
  - migrate apply <id>...    apply exactly the named migrations
  - migrate revert <id>...   revert exactly the named migrations
  - migrate list             show available/pending/applied migrations
  - migrate create <name>    scaffold a new timestamped up/down pair
  - migrate init             run the one-time init script, once
  - version                  print build version information

Exit code is 0 when every executed step succeeded or was ignored, and
non-zero when any step failed or the command itself could not run.
*/
package main
