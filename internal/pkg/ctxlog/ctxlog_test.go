package ctxlog

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromContext_Default(t *testing.T) {
	assert.Same(t, slog.Default(), FromContext(context.Background()))
}

func TestWith_AccumulatesAttributes(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewTextHandler(&buf, nil))

	ctx := WithLogger(context.Background(), base)
	ctx = With(ctx, "request_id", "r1")
	ctx = With(ctx, "message_id", "m1")

	FromContext(ctx).Info("delivered")

	out := buf.String()
	assert.Contains(t, out, "request_id=r1")
	assert.Contains(t, out, "message_id=m1")
	assert.Contains(t, out, "msg=delivered")
}
