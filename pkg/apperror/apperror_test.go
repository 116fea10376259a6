package apperror

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorsUnwrapToBase(t *testing.T) {
	assert.ErrorIs(t, NewNotFound("post", "hello"), ErrNotFound)
	assert.ErrorIs(t, NewConflict("post", "slug", "hello"), ErrConflict)
	assert.ErrorIs(t, NewTimeout("pool", nil), ErrTimeout)
	assert.ErrorIs(t, NewInternal("query", errors.New("disk error")), ErrInternal)
}

func TestToHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, ToHTTPStatus(NewNotFound("post", "x")))
	assert.Equal(t, http.StatusConflict, ToHTTPStatus(NewConflict("post", "slug", "x")))
	assert.Equal(t, http.StatusBadRequest, ToHTTPStatus(NewInvalidInput("bad", nil)))
	assert.Equal(t, http.StatusServiceUnavailable, ToHTTPStatus(NewTimeout("pool", nil)))
	assert.Equal(t, http.StatusInternalServerError, ToHTTPStatus(errors.New("anything else")))
}

func TestErrorMessageKeepsCause(t *testing.T) {
	cause := errors.New("UNIQUE constraint failed: posts.slug")
	err := NewInternal("insert post", cause)
	assert.Contains(t, err.Error(), "insert post")
	assert.Contains(t, err.Error(), "UNIQUE constraint failed")
	assert.Equal(t, cause, err.Cause())
}
