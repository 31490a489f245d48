package apiutil

import (
	"testing"

	apperrors "github.com/Aidin1998/teammatch/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	TeamID string `json:"team_id" validate:"required"`
	Score  int    `json:"score" validate:"min=0"`
	Hidden string `json:"-" validate:"omitempty,len=3"`
}

func TestValidatorUsesJSONNames(t *testing.T) {
	v := NewValidator()
	require.NoError(t, v.Validate(sample{TeamID: "t1"}))

	err := v.Validate(sample{Score: -1})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.Validation)

	var appErr *apperrors.Error
	require.ErrorAs(t, err, &appErr)
	require.Len(t, appErr.Fields, 2)
	assert.Equal(t, "team_id", appErr.Fields[0].Field)
	assert.Equal(t, "failed on required", appErr.Fields[0].Message)
	assert.Equal(t, "score", appErr.Fields[1].Field)
}
