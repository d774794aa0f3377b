package engine

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorCodesAreUnique(t *testing.T) {
	all := []*Error{
		ErrNotImplemented,
		ErrMissingResourceName,
		ErrMissingResourceDataProvider,
		ErrInvalidResourceDataProvider,
		ErrInvalidResource,
		ErrInvalidResourceName,
	}

	seen := make(map[ErrorCode]bool)
	for _, e := range all {
		assert.False(t, seen[e.Code], "duplicate code %s", e.Code)
		seen[e.Code] = true
	}
}

func TestErrorIsMatchesByCode(t *testing.T) {
	err := ErrInvalidResourceName.WithResource("users").WithOperation("getResourceByName")

	assert.True(t, errors.Is(err, ErrInvalidResourceName))
	assert.False(t, errors.Is(err, ErrInvalidResource))
	assert.Equal(t, "", ErrInvalidResourceName.Resource, "sentinel must not be modified")

	wrapped := fmt.Errorf("lookup: %w", err)
	assert.True(t, errors.Is(wrapped, ErrInvalidResourceName))
	assert.Equal(t, CodeInvalidResourceName, CodeOf(wrapped))
	assert.Equal(t, ErrorCode(""), CodeOf(errors.New("plain")))
}

func TestErrorMessage(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{"bare", ErrInvalidResource, "[RB_ERR_INVALID_RESOURCE] invalid resource"},
		{"resource", ErrInvalidResource.WithResource("users"), "[RB_ERR_INVALID_RESOURCE] invalid resource (resource=users)"},
		{"operation", NotImplemented("getMany"), "[RB_ERR_NOT_IMPLEMENTED] not implemented (operation=getMany)"},
		{
			"both",
			ErrInvalidResource.WithResource("users").WithOperation("register"),
			"[RB_ERR_INVALID_RESOURCE] invalid resource (resource=users, operation=register)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}
