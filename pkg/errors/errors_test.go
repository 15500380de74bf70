package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCodeOf(t *testing.T) {
	t.Run("plain error", func(t *testing.T) {
		require.Equal(t, CodeUnknown, CodeOf(errors.New("boom")))
	})

	t.Run("wrapped app error", func(t *testing.T) {
		inner := New(CodeNotFound, "workflow not found")
		err := fmt.Errorf("load: %w", inner)
		require.Equal(t, CodeNotFound, CodeOf(err))
		require.True(t, IsCode(err, CodeNotFound))
		require.False(t, IsCode(err, CodeInvalid))
	})

	t.Run("nil", func(t *testing.T) {
		require.Equal(t, CodeUnknown, CodeOf(nil))
	})
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(cause, CodeProvider, "completion failed")
	require.ErrorIs(t, err, cause)
	require.Equal(t, "provider_error: completion failed: connection refused", err.Error())

	err = Wrap(nil, CodeInternal, "no cause")
	require.Nil(t, err.Err)
}

func TestHTTPStatus(t *testing.T) {
	cases := map[Code]int{
		CodeInvalid:         http.StatusBadRequest,
		CodeNotFound:        http.StatusNotFound,
		CodeConflict:        http.StatusConflict,
		CodeUnauthorized:    http.StatusUnauthorized,
		CodeForbidden:       http.StatusForbidden,
		CodeProvider:        http.StatusBadGateway,
		CodeMalformedOutput: http.StatusBadGateway,
		CodeRateLimited:     http.StatusTooManyRequests,
		CodeInternal:        http.StatusInternalServerError,
		CodeUnknown:         http.StatusInternalServerError,
	}
	for code, want := range cases {
		require.Equal(t, want, HTTPStatus(code), string(code))
	}
}

func TestWithMeta(t *testing.T) {
	err := New(CodeInvalid, "bad node").WithMeta("node_id", "node_3")
	require.Equal(t, "node_3", err.Meta["node_id"])
}
