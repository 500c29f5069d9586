package migration

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryKindRegistry_RegisterAndBuild(t *testing.T) {
	r := NewInMemoryKindRegistry(nil)

	err := r.Register("noop", func(d Descriptor) (Kind, error) {
		return &codeKind{id: d.ID, name: d.Name}, nil
	})
	require.NoError(t, err)

	k, err := r.Build(Descriptor{ID: 1, Name: "init", KindTag: "noop"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), k.ID())
	assert.Equal(t, "init", k.Name())
}

func TestInMemoryKindRegistry_RegisterDuplicate(t *testing.T) {
	r := NewInMemoryKindRegistry(nil)
	ctor := func(d Descriptor) (Kind, error) { return nil, nil }

	require.NoError(t, r.Register("noop", ctor))
	err := r.Register("noop", ctor)
	assert.ErrorIs(t, err, ErrKindAlreadyRegistered)
}

func TestInMemoryKindRegistry_RegisterRejectsEmptyTagOrNilCtor(t *testing.T) {
	r := NewInMemoryKindRegistry(nil)

	assert.Error(t, r.Register("", func(d Descriptor) (Kind, error) { return nil, nil }))
	assert.Error(t, r.Register("x", nil))
}

func TestInMemoryKindRegistry_BuildUnknownTag(t *testing.T) {
	r := NewInMemoryKindRegistry(nil)

	_, err := r.Build(Descriptor{ID: 1, KindTag: "missing"})
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestInMemoryKindRegistry_Tags(t *testing.T) {
	r := NewInMemoryKindRegistry(nil)
	ctor := func(d Descriptor) (Kind, error) { return nil, nil }

	require.NoError(t, r.Register("zebra", ctor))
	require.NoError(t, r.Register("alpha", ctor))

	assert.Equal(t, []string{"alpha", "zebra"}, r.Tags())
}

func TestDefaultKindRegistry_HasSQLAndCode(t *testing.T) {
	tags := DefaultKindRegistry.Tags()
	assert.Contains(t, tags, SQLKindTag)
	assert.Contains(t, tags, CodeKindTag)
}

func TestInMemoryKindRegistry_BuildWrapsConstructorError(t *testing.T) {
	r := NewInMemoryKindRegistry(nil)
	boom := assertErr("boom")
	require.NoError(t, r.Register("bad", func(d Descriptor) (Kind, error) { return nil, boom }))

	_, err := r.Build(Descriptor{ID: 7, KindTag: "bad"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

// assertErr is a trivial error type for a one-off sentinel in this file.
type assertErr string

func (e assertErr) Error() string { return string(e) }
