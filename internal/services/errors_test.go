package services

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_MatchesByKind(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("allocate: %w", newErr(KindInsufficientBalance, "pool holds 3"))
	assert.ErrorIs(t, err, ErrInsufficientBalance)
	assert.NotErrorIs(t, err, ErrInsufficientCredits)
	assert.Equal(t, KindInsufficientBalance, KindOf(err))
	assert.Equal(t, "pool holds 3", Message(err))
}

func TestError_WrapsCause(t *testing.T) {
	t.Parallel()

	cause := errors.New("dial tcp: refused")
	err := wrapErr(KindUnavailable, "ledger store unavailable", cause)
	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, "ledger store unavailable: dial tcp: refused", err.Error())
	assert.Equal(t, "ledger store unavailable", Message(err))
}

func TestError_Foreign(t *testing.T) {
	t.Parallel()

	err := errors.New("boom")
	assert.Equal(t, Kind(""), KindOf(err))
	assert.Equal(t, "internal error", Message(err))
	assert.Equal(t, "unauthorized", ErrUnauthorized.Error())
	assert.NotErrorIs(t, ErrUnauthorized, ErrSelfAllocation)
}
