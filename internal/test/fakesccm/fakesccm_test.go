package fakesccm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFilter(t *testing.T) {
	row := map[string]any{"Name": "O'Brien Lab", "ResourceId": int64(16777220)}
	tests := []struct {
		filter string
		match  bool
	}{
		{"", true},
		{"Name eq 'o''brien lab'", true},
		{"Name eq 'Other'", false},
		{"startswith(Name,'O''B')", true},
		{"endswith(Name,'LAB')", true},
		{"contains(Name,'brien')", true},
		{"startswith(Name,'O') and endswith(Name,'x')", false},
		{"ResourceId eq 16777220", true},
		{"Name eq 'a and b'", false},
	}
	for _, tt := range tests {
		t.Run(tt.filter, func(t *testing.T) {
			pred, err := parseFilter(tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.match, pred(row))
		})
	}

	_, err := parseFilter("Name ne 'x'")
	assert.Error(t, err)
}

func TestSplitAnd(t *testing.T) {
	assert.Equal(t, []string{"Name eq 'a and b'", "x eq 1"}, splitAnd("Name eq 'a and b' and x eq 1"))
}
