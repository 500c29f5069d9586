package migration

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCodeDescriptor(t *testing.T) {
	called := false
	up := func(ctx context.Context, conn Conn) error { called = true; return nil }

	d := NewCodeDescriptor(1, "backfill", up, nil, true)
	assert.Equal(t, int64(1), d.ID)
	assert.Equal(t, "backfill", d.Name)
	assert.Equal(t, CodeKindTag, d.KindTag)
	assert.True(t, d.Transactional)
	assert.NotNil(t, d.UpPayload)
	assert.Nil(t, d.DownPayload)

	k, err := newCodeKind(d)
	require.NoError(t, err)
	require.NoError(t, k.Up(context.Background(), &fakeConn{}))
	assert.True(t, called)
}

func TestCodeKind_DownNoopWhenNil(t *testing.T) {
	d := NewCodeDescriptor(2, "no-down", func(ctx context.Context, conn Conn) error { return nil }, nil, true)
	k, err := newCodeKind(d)
	require.NoError(t, err)
	assert.NoError(t, k.Down(context.Background(), &fakeConn{}))
}

func TestCodeKind_RespectsCancellation(t *testing.T) {
	d := NewCodeDescriptor(3, "cancel-check", func(ctx context.Context, conn Conn) error {
		t.Fatal("up should not run once context is cancelled")
		return nil
	}, nil, true)
	k, err := newCodeKind(d)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = k.Up(ctx, &fakeConn{})
	assert.ErrorIs(t, err, ErrCancelled)
}

func TestCodeKind_PropagatesFuncError(t *testing.T) {
	boom := assertErr("backfill failed")
	d := NewCodeDescriptor(4, "fails", func(ctx context.Context, conn Conn) error { return boom }, nil, true)
	k, err := newCodeKind(d)
	require.NoError(t, err)

	err = k.Up(context.Background(), &fakeConn{})
	assert.ErrorIs(t, err, boom)
}
