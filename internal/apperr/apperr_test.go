package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		key    string
	}{
		{"not found", ErrNotFound, http.StatusNotFound, "alert.not_found"},
		{"wrapped forbidden", fmt.Errorf("club x: %w", ErrForbidden), http.StatusForbidden, "alert.forbidden"},
		{"validation", Invalid("title", "required"), http.StatusBadRequest, "alert.validation"},
		{"external", External("stripe", errors.New("timeout")), http.StatusBadGateway, "alert.external_failure"},
		{"rejected upload", &UploadFailure{Path: "a.png", Reason: "too large"}, http.StatusBadRequest, "alert.upload_failed"},
		{"storage upload", &UploadFailure{Path: "a.png", Reason: "store", Err: errors.New("io")}, http.StatusBadGateway, "alert.upload_failed"},
		{"plain", errors.New("boom"), http.StatusInternalServerError, "alert.unexpected"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.status, Status(tc.err))
			assert.Equal(t, tc.key, MessageKey(tc.err))
		})
	}
}

func TestExternalKeepsCodedErrors(t *testing.T) {
	assert.Nil(t, External("db", nil))
	assert.Same(t, ErrNotFound, External("db", ErrNotFound))

	inner := errors.New("connection refused")
	err := External("redis", inner)
	assert.ErrorIs(t, err, inner)
	assert.Contains(t, err.Error(), "redis failure")
}

func TestValidationErrorMessage(t *testing.T) {
	err := &ValidationError{Fields: []FieldError{
		{Field: "title", Message: "is required"},
		{Field: "end_date", Message: "must be after start_date"},
	}}
	assert.Equal(t, "validation failed: title: is required; end_date: must be after start_date", err.Error())
}
