package watcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOptions_NilPatternsSelectDefaults(t *testing.T) {
	var opts Options
	opts.setDefaults()

	assert.Equal(t, defaultSettleDelay, opts.SettleDelay)
	assert.Equal(t, DefaultIgnorePatterns, opts.IgnorePatterns)
	assert.True(t, opts.IgnoreHidden)

	opts.IgnorePatterns[0] = "changed"
	assert.Equal(t, "*.tmp", DefaultIgnorePatterns[0], "defaults must not be aliased")
}

func TestOptions_EmptyPatternsKeepCallerChoice(t *testing.T) {
	opts := Options{IgnorePatterns: []string{}, SettleDelay: time.Second}
	opts.setDefaults()

	assert.Empty(t, opts.IgnorePatterns)
	assert.False(t, opts.IgnoreHidden)
	assert.Equal(t, time.Second, opts.SettleDelay)
}

func TestOptions_ShouldIgnore(t *testing.T) {
	var opts Options
	opts.setDefaults()

	tests := []struct {
		path string
		want bool
	}{
		{"/data/anime-offline-database.json", false},
		{"/home/me/.config/shirosync/mappings.json", false},
		{"/data/anime-offline-database.json.part", true},
		{"/data/anime-offline-database.json.crdownload", true},
		{"/data/.mappings.json.swp", true},
		{"/data/mappings.json~", true},
		{"/data/.hidden.json", true},
		{"/data/dump.tmp", true},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, opts.shouldIgnore(tt.path))
		})
	}
}

func TestOptions_OnlyOverridesIgnoreRules(t *testing.T) {
	opts := Options{Only: []string{".dataset.json"}}
	opts.setDefaults()

	assert.False(t, opts.shouldIgnore("/data/.dataset.json"))
	assert.True(t, opts.shouldIgnore("/data/other.json"))
	assert.True(t, opts.shouldIgnore("/data/.dataset.json.part"))
}
