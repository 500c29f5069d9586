package migration

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// SQLKindTag is the KindTag Discovery assigns to *.sql migration files.
const SQLKindTag = "sql"

// statementSeparator splits a migration file's raw SQL into individually
// dispatched statements. A line consisting of only "--;;" (optionally
// followed by a trailing comment) is the separator; drivers that choke on
// multi-statement strings (pq, mysql in certain modes) need this.
var statementSeparator = regexp.MustCompile(`(?m)^--;;.*\n`)

var sqlLineComment = regexp.MustCompile(`(?m)^\s*--.*$`)

// ModifySQLFunc rewrites a statement's text before it is sent to the
// driver. DBStore applies its ModifySQLFunc, if configured, to the
// bookkeeping table's DDL and to every Init statement, and Engine applies
// its own to every statement of every SQL kind; typical uses are schema-qualifying
// unqualified table names or swapping a placeholder dialect. A statement
// can expand into more than one: returning several strings dispatches
// them to the driver in order, in place of the original.
type ModifySQLFunc func(statement string) ([]string, error)

// sqlPayload is the UpPayload/DownPayload shape a descriptor carries for
// the SQL kind.
type sqlPayload struct {
	raw string
}

// sqlKind runs one side (up or down) of a *.sql migration file. The raw
// text is split into statements once, at construction, so repeated Up/Down
// calls (retries) do not re-parse.
type sqlKind struct {
	id             int64
	name           string
	upStatements   []string
	downStatements []string
	modify         ModifySQLFunc
}

var _ Kind = (*sqlKind)(nil)

// RegisterSQLKind registers the SQL kind's constructor under SQLKindTag.
func RegisterSQLKind(r KindRegistry) error {
	return r.Register(SQLKindTag, newSQLKind)
}

func newSQLKind(d Descriptor) (Kind, error) {
	k := &sqlKind{id: d.ID, name: d.Name}
	if p, ok := d.UpPayload.(sqlPayload); ok {
		k.upStatements = splitStatements(p.raw)
	}
	if p, ok := d.DownPayload.(sqlPayload); ok {
		k.downStatements = splitStatements(p.raw)
	}
	return k, nil
}

// WithModifySQL returns a copy of k that rewrites every statement through
// fn before executing it. Engine wires its configured ModifySQLFunc this
// way immediately after Build.
func WithModifySQL(k Kind, fn ModifySQLFunc) Kind {
	sk, ok := k.(*sqlKind)
	if !ok || fn == nil {
		return k
	}
	clone := *sk
	clone.modify = fn
	return &clone
}

func (k *sqlKind) ID() int64    { return k.id }
func (k *sqlKind) Name() string { return k.name }

func (k *sqlKind) Up(ctx context.Context, conn Conn) error {
	return k.run(ctx, conn, k.upStatements)
}

func (k *sqlKind) Down(ctx context.Context, conn Conn) error {
	return k.run(ctx, conn, k.downStatements)
}

func (k *sqlKind) run(ctx context.Context, conn Conn, statements []string) error {
	for i, stmt := range statements {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("migration %d: %w", k.id, ErrCancelled)
		}
		expanded := []string{stmt}
		if k.modify != nil {
			modified, err := k.modify(stmt)
			if err != nil {
				return fmt.Errorf("migration %d: modify statement %d: %w", k.id, i, err)
			}
			expanded = modified
		}
		for _, s := range expanded {
			if _, err := conn.ExecContext(ctx, s); err != nil {
				return fmt.Errorf("migration %d: statement %d: %w", k.id, i, err)
			}
		}
	}
	return nil
}

// splitStatements breaks raw SQL text on the --;; separator, strips full-line
// comments, and discards statements that are empty after stripping.
func splitStatements(raw string) []string {
	if raw == "" {
		return nil
	}
	raw = statementSeparator.ReplaceAllString(raw, "\x00")
	parts := strings.Split(raw, "\x00")

	stmts := make([]string, 0, len(parts))
	for _, part := range parts {
		cleaned := sqlLineComment.ReplaceAllString(part, "")
		cleaned = strings.TrimSpace(cleaned)
		if cleaned == "" {
			continue
		}
		stmts = append(stmts, cleaned)
	}
	return stmts
}
