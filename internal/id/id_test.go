package id

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate_Unique(t *testing.T) {
	seen := make(map[string]bool, 500)
	for range 500 {
		v, err := Session()
		require.NoError(t, err)
		assert.False(t, seen[v], "duplicate id %s", v)
		seen[v] = true
	}
}

func TestGenerate_Format(t *testing.T) {
	tests := []struct {
		name string
		gen  func() (string, error)
		want string
	}{
		{"session", Session, PrefixSession},
		{"record", Record, PrefixRecord},
		{"client", func() (string, error) { return Generate(PrefixClient) }, PrefixClient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := tt.gen()
			require.NoError(t, err)
			assert.True(t, strings.HasPrefix(v, tt.want+"-"))
			assert.Len(t, v, len(tt.want)+1+21)
		})
	}
}

func TestMustGenerate(t *testing.T) {
	assert.NotPanics(t, func() {
		assert.NotEmpty(t, MustGenerate("x"))
	})
}
