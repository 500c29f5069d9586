package migration

import (
	"context"
	"fmt"
)

// CodeKindTag is the KindTag NewCodeDescriptor assigns to Go-function
// migrations registered by the application rather than found on disk.
const CodeKindTag = "code"

// CodeFunc is one side of a code migration. It receives the same Conn a SQL
// kind would get, so code migrations can mix raw ExecContext calls with
// arbitrary Go logic (looping over rows, calling an external service to
// backfill data, and so on).
type CodeFunc func(ctx context.Context, conn Conn) error

// codePayload is the UpPayload/DownPayload shape a descriptor carries for
// the code kind.
type codePayload struct {
	fn CodeFunc
}

// NewCodeDescriptor builds a Descriptor for a programmatically registered
// migration. Applications that ship Go-code migrations call this instead
// of relying on Discovery to find a file.
func NewCodeDescriptor(id int64, name string, up, down CodeFunc, transactional bool) Descriptor {
	d := Descriptor{
		ID:            id,
		Name:          name,
		KindTag:       CodeKindTag,
		Transactional: transactional,
	}
	if up != nil {
		d.UpPayload = codePayload{fn: up}
	}
	if down != nil {
		d.DownPayload = codePayload{fn: down}
	}
	return d
}

type codeKind struct {
	id   int64
	name string
	up   CodeFunc
	down CodeFunc
}

var _ Kind = (*codeKind)(nil)

// RegisterCodeKind registers the code kind's constructor under CodeKindTag.
func RegisterCodeKind(r KindRegistry) error {
	return r.Register(CodeKindTag, newCodeKind)
}

func newCodeKind(d Descriptor) (Kind, error) {
	k := &codeKind{id: d.ID, name: d.Name}
	if p, ok := d.UpPayload.(codePayload); ok {
		k.up = p.fn
	}
	if p, ok := d.DownPayload.(codePayload); ok {
		k.down = p.fn
	}
	return k, nil
}

func (k *codeKind) ID() int64    { return k.id }
func (k *codeKind) Name() string { return k.name }

func (k *codeKind) Up(ctx context.Context, conn Conn) error {
	if k.up == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("migration %d: %w", k.id, ErrCancelled)
	}
	return k.up(ctx, conn)
}

func (k *codeKind) Down(ctx context.Context, conn Conn) error {
	if k.down == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("migration %d: %w", k.id, ErrCancelled)
	}
	return k.down(ctx, conn)
}
