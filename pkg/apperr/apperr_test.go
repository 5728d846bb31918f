package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindValidation, KindOf(Validation("bad")))
	assert.Equal(t, KindConflict, KindOf(fmt.Errorf("wrapped: %w", Busy("busy", nil))))
	assert.Equal(t, KindUnexpected, KindOf(errors.New("plain")))
	assert.Equal(t, KindUnexpected, KindOf(nil))
}

func TestIs(t *testing.T) {
	err := fmt.Errorf("handler: %w", Forbidden("no"))
	assert.True(t, Is(err, KindAuthorization))
	assert.False(t, Is(err, KindAuthentication))
	assert.False(t, Is(errors.New("plain"), KindUnexpected))
}

func TestError_MessageAndCause(t *testing.T) {
	cause := errors.New("database is locked")
	err := Busy("Match was modified concurrently", cause)

	assert.Equal(t, "Match was modified concurrently: database is locked", err.Error())
	assert.True(t, errors.Is(err, cause))
	assert.True(t, err.Retryable)

	assert.Equal(t, "Match not found.", NotFound("Match not found.").Error())
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "VALIDATION_FAILED", KindValidation.String())
	assert.Equal(t, "UNAUTHORIZED", KindAuthentication.String())
	assert.Equal(t, "FORBIDDEN", KindAuthorization.String())
	assert.Equal(t, "NOT_FOUND", KindNotFound.String())
	assert.Equal(t, "CONFLICT", KindConflict.String())
	assert.Equal(t, "INTERNAL_ERROR", KindUnexpected.String())
}
