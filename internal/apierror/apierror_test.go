/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package apierror_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/blnkfinance/commissions/internal/apierror"
	"github.com/stretchr/testify/assert"
)

func TestNewAPIError(t *testing.T) {
	details := "Some internal error details"
	apiErr := apierror.NewAPIError(apierror.ErrInternalServer, "Something went wrong", details)

	assert.Equal(t, apierror.ErrInternalServer, apiErr.Code)
	assert.Equal(t, "Something went wrong", apiErr.Message)
	assert.Equal(t, details, apiErr.Details)
	assert.Equal(t, "INTERNAL_SERVER_ERROR: Something went wrong", apiErr.Error())
}

func TestIsCode(t *testing.T) {
	err := apierror.NewAPIError(apierror.ErrInsufficientFunds, "Insufficient funds", nil)
	assert.True(t, apierror.IsCode(err, apierror.ErrInsufficientFunds))
	assert.False(t, apierror.IsCode(err, apierror.ErrNotFound))

	wrapped := fmt.Errorf("debit failed: %w", err)
	assert.True(t, apierror.IsCode(wrapped, apierror.ErrInsufficientFunds))

	assert.False(t, apierror.IsCode(errors.New("plain"), apierror.ErrInsufficientFunds))
	assert.False(t, apierror.IsCode(nil, apierror.ErrInsufficientFunds))
}

func TestUnwrapDetails(t *testing.T) {
	cause := errors.New("connection reset")
	err := apierror.NewAPIError(apierror.ErrInternalServer, "Failed to post entry", cause)
	assert.ErrorIs(t, err, cause)

	noCause := apierror.NewAPIError(apierror.ErrNotFound, "Agent not found", "agt_1")
	assert.Nil(t, noCause.Unwrap())
}

func TestMapErrorToExitCode(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{name: "nil", err: nil, expected: 0},
		{name: "NotFound Error", err: apierror.NewAPIError(apierror.ErrNotFound, "Resource not found", nil), expected: 3},
		{name: "Conflict Error", err: apierror.NewAPIError(apierror.ErrConflict, "Conflict occurred", nil), expected: 4},
		{name: "InvalidInput Error", err: apierror.NewAPIError(apierror.ErrInvalidInput, "Invalid input", nil), expected: 2},
		{name: "BadRequest Error", err: apierror.NewAPIError(apierror.ErrBadRequest, "Bad request", nil), expected: 2},
		{name: "InsufficientFunds Error", err: apierror.NewAPIError(apierror.ErrInsufficientFunds, "Insufficient funds", nil), expected: 5},
		{name: "Retryable Error", err: apierror.NewAPIError(apierror.ErrRetryable, "Serialization failure", nil), expected: 75},
		{name: "InternalServerError", err: apierror.NewAPIError(apierror.ErrInternalServer, "Internal server error", nil), expected: 1},
		{name: "Non-APIError", err: errors.New("some other error"), expected: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, apierror.MapErrorToExitCode(tt.err))
		})
	}
}
