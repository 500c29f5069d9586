package migration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"

	"github.com/kilnhq/migrator/internal/database"
)

// Store is the persistence boundary between the engine and the target
// database. It owns the bookkeeping table, the reservation row, and the
// transaction a migration runs inside.
type Store interface {
	// Connect opens the underlying connection pool and ensures the
	// bookkeeping table exists.
	Connect(ctx context.Context) error
	// Disconnect releases the connection pool. Safe to call more than
	// once.
	Disconnect(ctx context.Context) error

	// CompletedIDs returns the ids recorded as applied, in no particular
	// order.
	CompletedIDs(ctx context.Context) ([]int64, error)

	// MigrateUp reserves id, runs k.Up inside a transaction (unless
	// d.Transactional is false), records completion, and unreserves.
	// Returns StepIgnored, nil if the reservation could not be acquired.
	MigrateUp(ctx context.Context, d Descriptor, k Kind) (StepResult, error)
	// MigrateDown reserves id, runs k.Down, removes the completion
	// record, and unreserves. Returns StepIgnored, nil on a lost
	// reservation race.
	MigrateDown(ctx context.Context, d Descriptor, k Kind) (StepResult, error)

	// Init runs a one-time initialization script's raw SQL text, either
	// inside a single transaction or statement-by-statement. It is not
	// reserved against other actors and its completion is not recorded
	// in the bookkeeping table; the caller is responsible for running it
	// at most once.
	Init(ctx context.Context, script string, transactional bool) error
}

// DBStore is the default Store, built on a GORM connection pool. All SQL
// runs against the raw *sql.DB/*sql.Tx beneath GORM; GORM's model layer is
// unused here on purpose - the bookkeeping table's schema is fixed and
// owned entirely by this package.
type DBStore struct {
	pool   *database.PoolManager
	table  string
	modify ModifySQLFunc
	log    *zap.Logger

	existsGroup singleflight.Group
	tableReady  bool
	closed      bool
}

var _ Store = (*DBStore)(nil)

// NewDBStore builds a DBStore against an already-open gorm.DB. table is the
// bookkeeping table name (e.g. "schema_migrations"); modify, if non-nil, is
// applied to the bookkeeping table's DDL and to every Init statement. SQL
// kind statements are rewritten by the Engine's own ModifySQLFunc
// (WithEngineModifySQL), not by the store.
func NewDBStore(db *gorm.DB, poolConfig database.PoolConfig, table string, modify ModifySQLFunc, log *zap.Logger) (*DBStore, error) {
	if table == "" {
		return nil, ErrTableNotConfigured
	}
	if log == nil {
		log = zap.NewNop()
	}

	pool, err := database.NewPoolManager(db, poolConfig, log)
	if err != nil {
		return nil, fmt.Errorf("build connection pool: %w", err)
	}

	return &DBStore{
		pool:   pool,
		table:  table,
		modify: modify,
		log:    log.With(zap.String("component", "migration_store")),
	}, nil
}

func (s *DBStore) Connect(ctx context.Context) error {
	if s.closed {
		return ErrStoreClosed
	}
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	return s.ensureTable(ctx)
}

func (s *DBStore) Disconnect(ctx context.Context) error {
	s.closed = true
	return s.pool.Close()
}

// ensureTable creates the bookkeeping table if it does not exist.
// singleflight collapses concurrent callers within this process into one
// CREATE TABLE IF NOT EXISTS; it does not replace the reservation row as
// the cross-process mutex.
func (s *DBStore) ensureTable(ctx context.Context) error {
	if s.tableReady {
		return nil
	}

	_, err, _ := s.existsGroup.Do("ensure-table", func() (any, error) {
		ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id BIGINT PRIMARY KEY,
	name TEXT NOT NULL,
	applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
)`, s.table)

		ddls := []string{ddl}
		if s.modify != nil {
			modified, err := s.modify(ddl)
			if err != nil {
				return nil, fmt.Errorf("modify bookkeeping DDL: %w", err)
			}
			ddls = modified
		}

		sqlDB, err := s.pool.SQLDB()
		if err != nil {
			return nil, err
		}
		for _, stmt := range ddls {
			if _, err := sqlDB.ExecContext(ctx, stmt); err != nil {
				return nil, fmt.Errorf("create bookkeeping table: %w", err)
			}
		}
		s.tableReady = true
		return nil, nil
	})
	return err
}

func (s *DBStore) CompletedIDs(ctx context.Context) ([]int64, error) {
	if s.closed {
		return nil, ErrStoreClosed
	}
	sqlDB, err := s.pool.SQLDB()
	if err != nil {
		return nil, err
	}

	rows, err := sqlDB.QueryContext(ctx, fmt.Sprintf("SELECT id FROM %s WHERE id != ?", s.table), ReservationID)
	if err != nil {
		return nil, fmt.Errorf("query completed ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan completed id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *DBStore) MigrateUp(ctx context.Context, d Descriptor, k Kind) (StepResult, error) {
	return s.step(ctx, d, k, Up)
}

func (s *DBStore) MigrateDown(ctx context.Context, d Descriptor, k Kind) (StepResult, error) {
	return s.step(ctx, d, k, Down)
}

// step is the full reserve -> run -> record -> unreserve state machine
// shared by MigrateUp and MigrateDown. It never returns a transient
// reservation conflict to the caller as an error; that case is StepIgnored.
func (s *DBStore) step(ctx context.Context, d Descriptor, k Kind, dir Direction) (StepResult, error) {
	if s.closed {
		return StepIgnored, ErrStoreClosed
	}
	sqlDB, err := s.pool.SQLDB()
	if err != nil {
		return StepIgnored, err
	}

	if err := s.markReserved(ctx, sqlDB, d.ID, d.Name); err != nil {
		if errors.Is(err, ErrReservationHeld) {
			s.log.Info("reservation held by another actor, skipping",
				zap.Int64("id", d.ID), zap.String("direction", string(dir)))
			return StepIgnored, nil
		}
		return StepIgnored, err
	}

	// A concurrent actor may have completed (or reverted) d.ID between the
	// plan being built and this reservation being acquired. Re-check the
	// bookkeeping table now that the reservation guarantees no one else can
	// change it underneath us, so a stale plan never re-runs a kind whose
	// side effects already landed.
	alreadyDone, err := s.isCompleted(ctx, sqlDB, d.ID)
	if err != nil {
		if unreserveErr := s.markUnreserved(ctx, sqlDB, d.ID); unreserveErr != nil {
			s.log.Error("failed to release reservation",
				zap.Int64("id", d.ID), zap.Error(unreserveErr))
		}
		return StepIgnored, err
	}

	var runErr error
	if (dir == Up && alreadyDone) || (dir == Down && !alreadyDone) {
		s.log.Info("migration already in target state, skipping redundant run",
			zap.Int64("id", d.ID), zap.String("direction", string(dir)))
	} else {
		runErr = s.runAndRecord(ctx, sqlDB, d, k, dir)
	}

	if unreserveErr := s.markUnreserved(ctx, sqlDB, d.ID); unreserveErr != nil {
		s.log.Error("failed to release reservation",
			zap.Int64("id", d.ID), zap.Error(unreserveErr))
	}

	if runErr != nil {
		return StepIgnored, runErr
	}
	return StepSuccess, nil
}

// isCompleted reports whether id has a bookkeeping row, i.e. it has already
// been recorded as applied.
func (s *DBStore) isCompleted(ctx context.Context, sqlDB *sql.DB, id int64) (bool, error) {
	var exists int
	err := sqlDB.QueryRowContext(ctx, fmt.Sprintf("SELECT 1 FROM %s WHERE id = ?", s.table), id).Scan(&exists)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("check completion for migration %d: %w", id, err)
	default:
		return true, nil
	}
}

func (s *DBStore) runAndRecord(ctx context.Context, sqlDB *sql.DB, d Descriptor, k Kind, dir Direction) error {
	run := func(conn Conn) error {
		if dir == Up {
			return k.Up(ctx, conn)
		}
		return k.Down(ctx, conn)
	}

	if !d.Transactional {
		if err := run(sqlDB); err != nil {
			return fmt.Errorf("migration %d: %w", d.ID, err)
		}
		return s.recordCompletion(ctx, sqlDB, d, dir)
	}

	tx, err := sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction for migration %d: %w", d.ID, err)
	}

	if err := run(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.log.Error("rollback failed after migration error",
				zap.Int64("id", d.ID), zap.Error(rbErr))
		}
		if dir == Up {
			s.backOut(ctx, sqlDB, d, k)
		}
		return fmt.Errorf("migration %d: %w", d.ID, err)
	}

	if err := s.recordCompletionTx(ctx, tx, d, dir); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.log.Error("rollback failed after bookkeeping error",
				zap.Int64("id", d.ID), zap.Error(rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %d: %w", d.ID, err)
	}
	return nil
}

// backOut makes a best-effort attempt to run k.Down outside the failed
// transaction after a transactional Up fails partway through. Any error is
// logged, not propagated: the caller already has the Up failure to report,
// and a half-applied Up is the state operators need to see and fix by hand.
func (s *DBStore) backOut(ctx context.Context, conn Conn, d Descriptor, k Kind) {
	s.log.Warn("attempting best-effort back-out after failed up", zap.Int64("id", d.ID))
	if err := k.Down(ctx, conn); err != nil {
		s.log.Error("back-out after failed up also failed; manual intervention required",
			zap.Int64("id", d.ID), zap.Error(err))
	}
}

func (s *DBStore) recordCompletion(ctx context.Context, sqlDB *sql.DB, d Descriptor, dir Direction) error {
	if dir == Up {
		_, err := sqlDB.ExecContext(ctx, fmt.Sprintf("INSERT INTO %s (id, name) VALUES (?, ?)", s.table), d.ID, d.Name)
		return err
	}
	_, err := sqlDB.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = ?", s.table), d.ID)
	return err
}

func (s *DBStore) recordCompletionTx(ctx context.Context, tx *sql.Tx, d Descriptor, dir Direction) error {
	var err error
	if dir == Up {
		_, err = tx.ExecContext(ctx, fmt.Sprintf("INSERT INTO %s (id, name) VALUES (?, ?)", s.table), d.ID, d.Name)
	} else {
		_, err = tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = ?", s.table), d.ID)
	}
	if err != nil {
		return fmt.Errorf("record completion for migration %d: %w", d.ID, err)
	}
	return nil
}

// markReserved inserts the reservation row. The bookkeeping table's
// primary key on id is the cross-process mutex: a second actor's insert at
// the same ReservationID fails with a unique-constraint violation, which
// this method reports as ErrReservationHeld.
func (s *DBStore) markReserved(ctx context.Context, sqlDB *sql.DB, id int64, name string) error {
	_, err := sqlDB.ExecContext(ctx, fmt.Sprintf("INSERT INTO %s (id, name) VALUES (?, ?)", s.table), ReservationID, name)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrReservationHeld
		}
		return fmt.Errorf("reserve migration %d: %w", id, err)
	}
	return nil
}

func (s *DBStore) markUnreserved(ctx context.Context, sqlDB *sql.DB, id int64) error {
	_, err := sqlDB.ExecContext(context.WithoutCancel(ctx), fmt.Sprintf("DELETE FROM %s WHERE id = ?", s.table), ReservationID)
	if err != nil {
		return fmt.Errorf("unreserve after migration %d: %w", id, err)
	}
	return nil
}

// Init runs script's statements against the target database, applying the
// configured ModifySQLFunc to each the same way a SQL kind would. It is not
// a migration: it has no id, is not reserved, and never touches the
// bookkeeping table.
func (s *DBStore) Init(ctx context.Context, script string, transactional bool) error {
	if s.closed {
		return ErrStoreClosed
	}
	sqlDB, err := s.pool.SQLDB()
	if err != nil {
		return err
	}

	statements := splitStatements(script)
	if s.modify != nil {
		expanded := make([]string, 0, len(statements))
		for i, stmt := range statements {
			modified, err := s.modify(stmt)
			if err != nil {
				return fmt.Errorf("init: modify statement %d: %w", i, err)
			}
			expanded = append(expanded, modified...)
		}
		statements = expanded
	}

	if !transactional {
		for i, stmt := range statements {
			if _, err := sqlDB.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("init: statement %d: %w", i, err)
			}
		}
		return nil
	}

	tx, err := sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("init: begin transaction: %w", err)
	}
	for i, stmt := range statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				s.log.Error("rollback failed after init error", zap.Error(rbErr))
			}
			return fmt.Errorf("init: statement %d: %w", i, err)
		}
	}
	return tx.Commit()
}

// isUniqueViolation recognizes the driver-specific spellings of a
// unique/primary-key violation across postgres, mysql, and sqlite, which
// is all the store needs to tell a reservation conflict from a real error.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, needle := range []string{
		"duplicate key value violates unique constraint", // postgres
		"Duplicate entry",                                // mysql
		"UNIQUE constraint failed",                       // sqlite
	} {
		if strings.Contains(msg, needle) {
			return true
		}
	}
	return false
}
