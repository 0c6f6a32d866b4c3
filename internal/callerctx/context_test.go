package callerctx

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
)

func TestUserIDFromContext(t *testing.T) {
	ctx := WithUserID(context.Background(), snowflake.ID(1010))
	id, ok := UserIDFromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, snowflake.ID(1010), id)

	_, ok = UserIDFromContext(context.Background())
	assert.False(t, ok)

	_, ok = UserIDFromContext(WithUserID(context.Background(), 0))
	assert.False(t, ok)

	id, ok = UserIDFromContext(context.WithValue(context.Background(), UserContextKey{}, " 77 "))
	assert.True(t, ok)
	assert.Equal(t, snowflake.ID(77), id)
}

func TestRequestID(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-1")
	assert.Equal(t, "req-1", RequestIDFromContext(ctx))
	assert.Equal(t, "", RequestIDFromContext(WithRequestID(context.Background(), "  ")))
}
