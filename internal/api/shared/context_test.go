package shared

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/trace"
)

func TestSetTraceID(t *testing.T) {
	t.Parallel()

	t.Run("generated", func(t *testing.T) {
		t.Parallel()
		a := GetTraceID(SetTraceID(context.Background()))
		b := GetTraceID(SetTraceID(context.Background()))
		assert.Len(t, a, TraceIDLength*2)
		assert.NotEqual(t, a, b)
	})

	t.Run("reuses span trace ID", func(t *testing.T) {
		t.Parallel()
		traceID := trace.TraceID{0x01, 0x02, 0x03}
		sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: trace.SpanID{0x01}})
		ctx := trace.ContextWithSpanContext(context.Background(), sc)
		assert.Equal(t, traceID.String(), GetTraceID(SetTraceID(ctx)))
	})

	t.Run("absent", func(t *testing.T) {
		t.Parallel()
		assert.Empty(t, GetTraceID(context.Background()))
	})
}

func TestUserIDFromContext(t *testing.T) {
	t.Parallel()

	id := uuid.New()
	got, ok := UserIDFromContext(WithUserID(context.Background(), id))
	assert.True(t, ok)
	assert.Equal(t, id, got)

	_, ok = UserIDFromContext(WithUserID(context.Background(), uuid.Nil))
	assert.False(t, ok)

	_, ok = UserIDFromContext(context.Background())
	assert.False(t, ok)
}
