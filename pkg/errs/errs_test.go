package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorString(t *testing.T) {
	assert.Equal(t, "not_found", New(KindNotFound, "").Error())
	assert.Equal(t, "not_found: project missing", New(KindNotFound, "project missing").Error())

	wrapped := Wrap(KindAIProviderError, "gemini call failed", errors.New("HTTP 503"))
	assert.Contains(t, wrapped.Error(), "ai_provider_error")
	assert.Contains(t, wrapped.Error(), "HTTP 503")
}

func TestIsMatchesByKind(t *testing.T) {
	err := Wrap(KindUsageLimitExceeded, "25 of 25 used", nil)
	assert.True(t, errors.Is(err, ErrUsageLimitExceeded))
	assert.False(t, errors.Is(err, ErrForbidden))

	// Matching survives further wrapping.
	deep := fmt.Errorf("generate report: %w", err)
	assert.True(t, errors.Is(deep, ErrUsageLimitExceeded))
}

func TestIsDoesNotMatchPlainErrors(t *testing.T) {
	assert.False(t, errors.Is(errors.New("boom"), ErrNotFound))
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(KindAIProviderError, "provider unavailable", cause)
	assert.True(t, errors.Is(err, cause))
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindLastOwner, KindOf(ErrLastOwner))
	assert.Equal(t, KindLastOwner, KindOf(fmt.Errorf("change role: %w", ErrLastOwner)))
	assert.Equal(t, Kind(""), KindOf(errors.New("storage down")))
}
