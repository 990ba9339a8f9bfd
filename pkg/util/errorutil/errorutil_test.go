package errorutil

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToDomainErrorWrapsUnknownErrors(t *testing.T) {
	cause := errors.New("boom")
	domainErr := ToDomainError(cause)
	require.NotNil(t, domainErr)
	assert.Equal(t, CodeInternal, domainErr.Code)
	assert.Equal(t, http.StatusInternalServerError, domainErr.HTTPStatus)
	assert.ErrorIs(t, domainErr, cause)
}

func TestToDomainErrorKeepsWrappedDomainError(t *testing.T) {
	err := fmt.Errorf("create: %w", NewValidationError("exchange required", nil))
	domainErr := ToDomainError(err)
	assert.Equal(t, CodeValidationFailed, domainErr.Code)
	assert.Equal(t, http.StatusBadRequest, domainErr.HTTPStatus)
}

func TestPartialBatchDetails(t *testing.T) {
	committed := []string{"GIM000001"}
	err := NewPartialBatchFailure(committed, 1, errors.New("tx aborted"))
	committed[0] = "mutated"

	numbers, idx, ok := PartialBatchDetails(err)
	require.True(t, ok)
	assert.Equal(t, []string{"GIM000001"}, numbers)
	assert.Equal(t, 1, idx)
	assert.True(t, HasCode(err, CodePartialBatchFailure))

	_, _, ok = PartialBatchDetails(NewAllocationError("gpon", nil))
	assert.False(t, ok)
}
