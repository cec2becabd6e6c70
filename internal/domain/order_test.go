package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOrderStatus(t *testing.T) {
	st, err := ParseOrderStatus("Order_Completed")
	require.NoError(t, err)
	assert.Equal(t, StatusOrderCompleted, st)

	st, err = ParseOrderStatus("In delivery")
	require.NoError(t, err)
	assert.Equal(t, StatusInDelivery, st)

	st, err = ParseOrderStatus("counsel")
	require.NoError(t, err)
	assert.Equal(t, StatusCounsel, st)

	_, err = ParseOrderStatus("Shipped")
	assert.Error(t, err)
}

func TestErrors(t *testing.T) {
	v := NewValidationError("affiliation", "affiliation required")
	assert.Equal(t, "affiliation: affiliation required", v.Error())

	cause := errors.New("connection refused")
	p := NewPersistenceError(cause)
	assert.ErrorIs(t, p, cause)

	var target *PersistenceError
	assert.True(t, errors.As(error(p), &target))
	assert.Contains(t, target.Message, "could not be saved")
}
