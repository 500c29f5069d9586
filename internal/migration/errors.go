package migration

import "errors"

var (
	// ErrReservationHeld is returned internally when mark-reserved fails
	// because another actor holds the row; callers observe this as
	// StepIgnored / Outcome{Status: StatusIgnored}, never as a raised error.
	ErrReservationHeld = errors.New("migration: reservation already held")

	// ErrCancelled is returned when the engine observes context
	// cancellation between migrations or before a statement dispatch.
	ErrCancelled = errors.New("migration: cancelled")

	// ErrUnknownKind is returned when a descriptor's KindTag has no
	// registered constructor.
	ErrUnknownKind = errors.New("migration: unknown kind")

	// ErrTableNotConfigured is returned when the bookkeeping table name is
	// empty.
	ErrTableNotConfigured = errors.New("migration: bookkeeping table name not configured")

	// ErrStoreClosed is returned by Store methods called after Disconnect.
	ErrStoreClosed = errors.New("migration: store is closed")

	// ErrNilStore guards against an Engine constructed without a Store.
	ErrNilStore = errors.New("migration: engine requires a non-nil store")

	// ErrDirectoryNotFound is returned by Discovery.Scan when the root
	// filesystem does not exist or its top level cannot be read.
	ErrDirectoryNotFound = errors.New("migration: migrations directory not found")
)
