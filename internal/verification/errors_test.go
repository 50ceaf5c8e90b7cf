package verification

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorKinds(t *testing.T) {
	err := fmt.Errorf("handler: %w", conflictf("verification %d has already been processed", 7))

	assert.ErrorIs(t, err, ErrConflict)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Equal(t, KindConflict, KindOf(err))
	assert.Contains(t, err.Error(), "already been processed")
}

func TestPersistenceKeepsEngineErrors(t *testing.T) {
	inner := forbiddenf("nope")
	assert.Same(t, inner, persistence("do thing", inner))

	dbErr := errors.New("connection reset")
	wrapped := persistence("update property", dbErr)
	assert.ErrorIs(t, wrapped, ErrPersistence)
	assert.ErrorIs(t, wrapped, dbErr)
	assert.Equal(t, "failed to update property: connection reset", wrapped.Error())

	assert.NoError(t, persistence("noop", nil))
	assert.Equal(t, KindUnknown, KindOf(dbErr))
}

func TestPolicyResponseWindow(t *testing.T) {
	p := DefaultPolicy()

	w, err := p.responseWindow(0)
	assert.NoError(t, err)
	assert.Equal(t, 3*days, w)

	w, err = p.responseWindow(14)
	assert.NoError(t, err)
	assert.Equal(t, 14*days, w)

	_, err = p.responseWindow(15)
	assert.ErrorIs(t, err, ErrValidation)
	_, err = p.responseWindow(-1)
	assert.ErrorIs(t, err, ErrValidation)
}
