package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPromptConfirmer(t *testing.T) {
	tests := []struct {
		input string
		want  []bool
	}{
		{"y\n", []bool{true}},
		{"YES\n", []bool{true}},
		{"n\n", []bool{false}},
		{"\n", []bool{false}},
		{"", []bool{false}},
		{"y", []bool{true}},
		{"y\nn\ny\n", []bool{true, false, true}},
	}
	for _, tt := range tests {
		t.Run(strings.ReplaceAll(tt.input, "\n", `\n`), func(t *testing.T) {
			var out bytes.Buffer
			p := &promptConfirmer{in: strings.NewReader(tt.input), out: &out}
			for _, want := range tt.want {
				ok, err := p.Confirm(context.Background(), "remove collection", "PS100010 (Pilot)")
				require.NoError(t, err)
				assert.Equal(t, want, ok)
			}
			assert.Contains(t, out.String(), "remove collection PS100010 (Pilot)? [y/N]")
		})
	}
}
