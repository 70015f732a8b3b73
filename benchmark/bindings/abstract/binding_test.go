package abstract

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusErr(t *testing.T) {
	assert.NoError(t, StatusOK.Err())
	assert.Error(t, StatusError.Err())
	assert.Error(t, StatusBadRequest.Err())
}

func TestRecordNullVsAbsent(t *testing.T) {
	record := Record{"field0": nil}

	value, present := record["field0"]
	assert.True(t, present)
	assert.Nil(t, value)

	_, present = record["field1"]
	assert.False(t, present)
}
