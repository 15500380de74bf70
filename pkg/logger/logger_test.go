package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestInit(t *testing.T) {
	_, err := Init("loud", "json")
	require.Error(t, err)

	_, err = Init("info", "xml")
	require.Error(t, err)

	l, err := Init("debug", "console")
	require.NoError(t, err)
	require.Same(t, l, L())
}

func TestCtxFields(t *testing.T) {
	_, err := Init("info", "json")
	require.NoError(t, err)

	ctx := With(context.Background(), zap.String("request_id", "r-1"))
	ctx = With(ctx, zap.String("user_id", "u-1"))

	fields, ok := ctx.Value(fieldsKey{}).([]zap.Field)
	require.True(t, ok)
	require.Len(t, fields, 2)
	require.NotSame(t, L(), Ctx(ctx))
	require.Same(t, L(), Ctx(context.Background()))
}
