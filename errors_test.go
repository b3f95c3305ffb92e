package elasticcache

import (
	"testing"
)

func TestErrorVariables(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{"ErrInvalidInput", ErrInvalidInput, "invalid input parameters"},
		{"ErrNotFound", ErrNotFound, "document not found"},
		{"ErrStoreUnavailable", ErrStoreUnavailable, "document store unavailable"},
		{"ErrIndexExists", ErrIndexExists, "index already exists"},
		{"ErrInitialization", ErrInitialization, "cache backend initialization failed"},
		{"ErrConfiguration", ErrConfiguration, "invalid cache backend configuration"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Error() != tt.expected {
				t.Errorf("Expected error message '%s', got '%s'", tt.expected, tt.err.Error())
			}
		})
	}
}
