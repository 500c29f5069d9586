package ctxkeys

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWithTraceID_RoundTrips(t *testing.T) {
	ctx := WithTraceID(context.Background(), "trace-123")
	got, ok := TraceID(ctx)
	assert.True(t, ok)
	assert.Equal(t, "trace-123", got)
}

func TestTraceID_AbsentReturnsFalse(t *testing.T) {
	_, ok := TraceID(context.Background())
	assert.False(t, ok)
}

func TestTraceID_EmptyStringIsTreatedAsAbsent(t *testing.T) {
	ctx := WithTraceID(context.Background(), "")
	_, ok := TraceID(ctx)
	assert.False(t, ok)
}

func TestWithRunID_RoundTrips(t *testing.T) {
	ctx := WithRunID(context.Background(), "run-abc")
	got, ok := RunID(ctx)
	assert.True(t, ok)
	assert.Equal(t, "run-abc", got)
}

func TestRunID_AbsentReturnsFalse(t *testing.T) {
	_, ok := RunID(context.Background())
	assert.False(t, ok)
}

func TestTraceIDAndRunID_AreIndependent(t *testing.T) {
	ctx := WithTraceID(context.Background(), "trace-1")
	ctx = WithRunID(ctx, "run-1")

	trace, ok := TraceID(ctx)
	assert.True(t, ok)
	assert.Equal(t, "trace-1", trace)

	run, ok := RunID(ctx)
	assert.True(t, ok)
	assert.Equal(t, "run-1", run)
}
