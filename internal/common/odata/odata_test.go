package odata

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQuote(t *testing.T) {
	assert.Equal(t, "'All Systems'", Quote("All Systems"))
	assert.Equal(t, "'O''Brien''s'", Quote("O'Brien's"))
	assert.Equal(t, "''", Quote(""))
	assert.Equal(t, "Name eq 'it''s'", Eq("Name", "it's"))
	assert.Equal(t, "ResourceId eq 16777220", EqInt("ResourceId", 16777220))
}

func TestKey(t *testing.T) {
	assert.Equal(t, "SMS_Collection('SMS00001')", Key("SMS_Collection", "SMS00001", false))
	assert.Equal(t, "SMS_R_System(16777220)", Key("SMS_R_System", "16777220", true))
}

func TestWildcardFilter(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		want    string
	}{
		{"literal", "All Systems", "Name eq 'All Systems'"},
		{"literal with quote", "Bob's", "Name eq 'Bob''s'"},
		{"prefix", "Work*", "startswith(Name,'Work')"},
		{"suffix", "*Servers", "endswith(Name,'Servers')"},
		{"infix", "*Win*", "contains(Name,'Win')"},
		{"both ends", "A*Z", "startswith(Name,'A') and endswith(Name,'Z')"},
		{"three runs", "A*B*C", "startswith(Name,'A') and contains(Name,'B') and endswith(Name,'C')"},
		{"question mark", "WKS00?", "startswith(Name,'WKS00')"},
		{"question mark inside", "W?S", "startswith(Name,'W') and endswith(Name,'S')"},
		{"escaped run", "*O'B*", "contains(Name,'O''B')"},
		{"star only", "*", ""},
		{"wildcards only", "*?*", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, WildcardFilter("Name", tt.pattern))
		})
	}
}

func TestGlob(t *testing.T) {
	tests := []struct {
		pattern string
		name    string
		match   bool
	}{
		{"WKS*", "WKS001", true},
		{"wks*", "WKS001", true},
		{"WKS00?", "WKS001", true},
		{"WKS00?", "WKS0011", false},
		{"A*B*C", "AxxBxxC", true},
		{"A*B*C", "AxxCxxB", false},
		{"*", "", true},
		{"a.b", "axb", false},
		{"a.b", "a.b", true},
		{"(test)*", "(test) lab", true},
	}
	for _, tt := range tests {
		t.Run(tt.pattern+"/"+tt.name, func(t *testing.T) {
			assert.Equal(t, tt.match, Match(tt.pattern, tt.name))
		})
	}
}

func TestAnd(t *testing.T) {
	assert.Equal(t, "a and b", And("a", "", "b"))
	assert.Equal(t, "", And())
}
