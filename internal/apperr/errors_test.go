package apperr

import (
	"fmt"
	"net/http"
	"testing"

	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestHTTPStatusFollowsWrappedCode(t *testing.T) {
	base := InsufficientBalance("not enough points")
	wrapped := fmt.Errorf("post message: %w", pkgerrors.Wrap(base, "ledger.Debit"))

	assert.Equal(t, CodeInsufficientBalance, CodeOf(wrapped))
	assert.Equal(t, http.StatusPaymentRequired, HTTPStatus(wrapped))
	assert.Equal(t, "not enough points", MessageOf(wrapped))
}

func TestSentinelMatchesAfterWrap(t *testing.T) {
	sentinel := NotFound("room not found")
	err := pkgerrors.Wrap(NotFound("room not found"), "rooms.Get")

	assert.ErrorIs(t, err, sentinel)
	assert.NotErrorIs(t, err, NotFound("user not found"))
}

func TestUnknownErrorsAreInternal(t *testing.T) {
	err := fmt.Errorf("boom")

	assert.Equal(t, CodeInternal, CodeOf(err))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(err))
	assert.Equal(t, "internal error", MessageOf(err))
}
