package migration

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/kilnhq/migrator/internal/ctxkeys"
)

// OutcomeStatus classifies how one migration step ended.
type OutcomeStatus string

const (
	// StatusOK means the step ran and was recorded, or the store found the
	// id already in the target state (already applied for an up, already
	// reverted for a down) and had nothing to run.
	StatusOK OutcomeStatus = "ok"
	// StatusIgnored means the step was skipped because the reservation was
	// held by another actor.
	StatusIgnored OutcomeStatus = "ignored"
	// StatusFailed means the step ran and returned an error, or could
	// not be started.
	StatusFailed OutcomeStatus = "failed"
)

// Outcome is the result of running one WorkItem. It is a closed ADT by
// convention: Err is non-nil if and only if Status is StatusFailed.
type Outcome struct {
	Descriptor Descriptor
	Direction  Direction
	Status     OutcomeStatus
	Err        error
}

// Metrics is the subset of the process's metrics collector the engine
// writes to. Kept as a narrow interface so engine tests do not need a real
// Prometheus registry.
type Metrics interface {
	RecordMigration(direction, kind, status string)
	RecordMigrationDuration(direction, kind string, seconds float64)
	RecordReservation(outcome string)
}

// noopMetrics discards everything; used when the caller does not wire a
// real collector.
type noopMetrics struct{}

func (noopMetrics) RecordMigration(string, string, string)          {}
func (noopMetrics) RecordMigrationDuration(string, string, float64) {}
func (noopMetrics) RecordReservation(string)                        {}

// Engine orchestrates one run of the migration system: it builds a plan
// against the current completion state, then executes the plan
// sequentially, stopping at the first failure, at the first ignored step,
// or at caller cancellation.
type Engine struct {
	store    Store
	registry KindRegistry
	modify   ModifySQLFunc
	metrics  Metrics
	log      *zap.Logger
	tracer   trace.Tracer
}

// EngineOption configures optional Engine dependencies.
type EngineOption func(*Engine)

// WithKindRegistry overrides the default process-wide kind registry.
func WithKindRegistry(r KindRegistry) EngineOption {
	return func(e *Engine) { e.registry = r }
}

// WithEngineModifySQL installs a ModifySQLFunc applied to every SQL kind's
// statements as the engine builds them.
func WithEngineModifySQL(fn ModifySQLFunc) EngineOption {
	return func(e *Engine) { e.modify = fn }
}

// WithMetrics installs a metrics sink.
func WithMetrics(m Metrics) EngineOption {
	return func(e *Engine) { e.metrics = m }
}

// NewEngine builds an Engine against store. A nil logger is replaced with
// a no-op logger.
func NewEngine(store Store, log *zap.Logger, opts ...EngineOption) (*Engine, error) {
	if store == nil {
		return nil, ErrNilStore
	}
	if log == nil {
		log = zap.NewNop()
	}

	e := &Engine{
		store:    store,
		registry: DefaultKindRegistry,
		metrics:  noopMetrics{},
		log:      log.With(zap.String("component", "migration_engine")),
		tracer:   otel.Tracer("github.com/kilnhq/migrator/internal/migration"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Run connects the store, plans req against set, and executes the plan in
// order. It stops at the first StatusFailed outcome, at the first
// StatusIgnored outcome (another actor holds the reservation; the caller
// should not keep racing it), or when ctx is cancelled - returning the
// outcomes produced so far alongside the error that stopped it (nil on a
// clean run, including one that stopped early on StatusIgnored).
func (e *Engine) Run(ctx context.Context, set Set, req Request) ([]Outcome, error) {
	runID := uuid.NewString()
	ctx = ctxkeys.WithRunID(ctx, runID)

	ctx, span := e.tracer.Start(ctx, "migration.Engine.Run",
		trace.WithAttributes(
			attribute.String("migration.command", string(req.Command)),
			attribute.String("migration.run_id", runID),
		))
	defer span.End()

	if err := e.store.Connect(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "connect failed")
		return nil, fmt.Errorf("connect store: %w", err)
	}
	defer func() {
		if err := e.store.Disconnect(ctx); err != nil {
			e.log.Error("failed to disconnect store", zap.Error(err))
		}
	}()

	completed, err := e.store.CompletedIDs(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "load completed ids failed")
		return nil, fmt.Errorf("load completed ids: %w", err)
	}

	plan, err := Plan(req, set, completed, e.log)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "plan failed")
		return nil, fmt.Errorf("plan: %w", err)
	}

	outcomes := make([]Outcome, 0, len(plan))
	for _, item := range plan {
		if err := ctx.Err(); err != nil {
			span.SetStatus(codes.Error, "cancelled")
			return outcomes, fmt.Errorf("%w: stopped before migration %d", ErrCancelled, item.Descriptor.ID)
		}

		outcome := e.runOne(ctx, item)
		outcomes = append(outcomes, outcome)

		if outcome.Status == StatusFailed {
			span.RecordError(outcome.Err)
			span.SetStatus(codes.Error, "migration failed")
			return outcomes, fmt.Errorf("migration %d: %w", item.Descriptor.ID, outcome.Err)
		}

		if outcome.Status == StatusIgnored {
			span.SetStatus(codes.Ok, "stopped: reservation held by another actor")
			return outcomes, nil
		}
	}

	span.SetStatus(codes.Ok, "")
	return outcomes, nil
}

// Init connects the store, runs script as a one-time initialization
// statement sequence, and disconnects. Unlike Run, it produces no Outcome
// slice: the script has no migration id and its success is all-or-nothing.
func (e *Engine) Init(ctx context.Context, script string, transactional bool) error {
	ctx, span := e.tracer.Start(ctx, "migration.Engine.Init")
	defer span.End()

	if err := e.store.Connect(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "connect failed")
		return fmt.Errorf("connect store: %w", err)
	}
	defer func() {
		if err := e.store.Disconnect(ctx); err != nil {
			e.log.Error("failed to disconnect store", zap.Error(err))
		}
	}()

	if err := e.store.Init(ctx, script, transactional); err != nil {
		e.log.Error("init script failed", zap.Error(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "init failed")
		return fmt.Errorf("init: %w", err)
	}
	e.log.Info("init script applied")
	span.SetStatus(codes.Ok, "")
	return nil
}

func (e *Engine) runOne(ctx context.Context, item WorkItem) Outcome {
	d := item.Descriptor
	log := e.log.With(zap.Int64("id", d.ID), zap.String("name", d.Name), zap.String("direction", string(item.Direction)))
	if runID, ok := ctxkeys.RunID(ctx); ok {
		log = log.With(zap.String("run_id", runID))
	}

	ctx, span := e.tracer.Start(ctx, "migration.Engine.runOne",
		trace.WithAttributes(
			attribute.Int64("migration.id", d.ID),
			attribute.String("migration.direction", string(item.Direction)),
			attribute.String("migration.kind", d.KindTag),
		))
	defer span.End()

	k, err := e.registry.Build(d)
	if err != nil {
		log.Error("failed to build kind", zap.Error(err))
		span.RecordError(err)
		return Outcome{Descriptor: d, Direction: item.Direction, Status: StatusFailed, Err: err}
	}
	if e.modify != nil {
		k = WithModifySQL(k, e.modify)
	}

	var (
		result  StepResult
		stepErr error
	)
	start := time.Now()
	if item.Direction == Up {
		result, stepErr = e.store.MigrateUp(ctx, d, k)
	} else {
		result, stepErr = e.store.MigrateDown(ctx, d, k)
	}
	e.metrics.RecordMigrationDuration(string(item.Direction), d.KindTag, time.Since(start).Seconds())

	switch {
	case stepErr != nil:
		log.Error("migration failed", zap.Error(stepErr))
		e.metrics.RecordMigration(string(item.Direction), d.KindTag, string(StatusFailed))
		span.RecordError(stepErr)
		return Outcome{Descriptor: d, Direction: item.Direction, Status: StatusFailed, Err: stepErr}

	case result == StepIgnored:
		log.Info("migration ignored")
		e.metrics.RecordMigration(string(item.Direction), d.KindTag, string(StatusIgnored))
		e.metrics.RecordReservation("conflict")
		return Outcome{Descriptor: d, Direction: item.Direction, Status: StatusIgnored}

	default:
		log.Info("migration applied")
		e.metrics.RecordMigration(string(item.Direction), d.KindTag, string(StatusOK))
		e.metrics.RecordReservation("acquired")
		return Outcome{Descriptor: d, Direction: item.Direction, Status: StatusOK}
	}
}
