package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindValidation, KindOf(Validation("quantity must be between %d and %d", 1, 99)))
	assert.Equal(t, KindConflict, KindOf(fmt.Errorf("add item: %w", Conflict("only 2 left in stock"))))
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
	assert.Equal(t, KindInternal, KindOf(nil))
}

func TestMessageHidesInternalDetail(t *testing.T) {
	assert.Equal(t, "internal server error", Message(errors.New("pq: relation does not exist")))
	assert.Equal(t, "internal server error", Message(Wrap(KindInternal, "scan order", errors.New("bad column"))))
	assert.Equal(t, "raffle not found", Message(NotFound("raffle not found")))
}

func TestWrapUnwraps(t *testing.T) {
	cause := errors.New("connection refused")
	err := External("payment processor unavailable", cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "payment processor unavailable: connection refused", err.Error())
	assert.Equal(t, "external", KindExternal.String())
}
