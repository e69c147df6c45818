package requestcontext

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequestIDRoundTrip(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, RequestID(ctx))

	ctx = WithRequestID(ctx, "req-1")
	assert.Equal(t, "req-1", RequestID(ctx))
	assert.Empty(t, AdminSubject(ctx))

	ctx = WithAdminSubject(ctx, "admin-token")
	assert.Equal(t, "admin-token", AdminSubject(ctx))
	assert.Equal(t, "req-1", RequestID(ctx))
}
