package watcher

import (
	"path/filepath"
	"slices"
	"strings"
	"time"
)

const defaultSettleDelay = 250 * time.Millisecond

// DefaultIgnorePatterns match partial downloads and editor scratch files
// that appear next to a dataset while it is being replaced.
var DefaultIgnorePatterns = []string{
	"*.tmp",
	"*.part",
	"*.crdownload",
	"*.swp",
	"*~",
	".DS_Store",
}

// Options configures a Watcher.
type Options struct {
	// Only limits events to these base names. When set, IgnorePatterns and
	// IgnoreHidden are not consulted.
	Only []string

	// IgnorePatterns are filepath.Match globs tested against the base name.
	// Nil selects DefaultIgnorePatterns and turns IgnoreHidden on; an empty
	// slice disables pattern matching.
	IgnorePatterns []string

	// SettleDelay is how long size and mtime must hold still before a write is reported.
	SettleDelay time.Duration

	// IgnoreHidden drops dot files. Only the base name is checked, so a
	// dataset kept under ~/.config is still seen.
	IgnoreHidden bool
}

func (o *Options) setDefaults() {
	if o.SettleDelay <= 0 {
		o.SettleDelay = defaultSettleDelay
	}
	if o.IgnorePatterns == nil {
		o.IgnorePatterns = slices.Clone(DefaultIgnorePatterns)
		o.IgnoreHidden = true
	}
}

func (o *Options) shouldIgnore(path string) bool {
	name := filepath.Base(path)
	if len(o.Only) > 0 {
		return !slices.Contains(o.Only, name)
	}
	if o.IgnoreHidden && strings.HasPrefix(name, ".") {
		return true
	}
	return slices.ContainsFunc(o.IgnorePatterns, func(glob string) bool {
		ok, err := filepath.Match(glob, name)
		return err == nil && ok
	})
}
