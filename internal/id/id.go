// Package id generates prefixed identifiers for sessions and local records.
package id

import (
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Prefixes used across the engine.
const (
	PrefixSession = "sync"
	PrefixRecord  = "anime"
	PrefixClient  = "sse"
)

// Generate returns prefix + "-" + a 21 character NanoID, e.g. "sync-V1StGXR8_Z5jdHi6B-myT".
func Generate(prefix string) (string, error) {
	nid, err := gonanoid.New()
	if err != nil {
		return "", fmt.Errorf("generate nanoid: %w", err)
	}
	return prefix + "-" + nid, nil
}

// MustGenerate is like Generate but panics when the system has no entropy.
func MustGenerate(prefix string) string {
	v, err := Generate(prefix)
	if err != nil {
		panic(fmt.Sprintf("failed to generate ID: %v", err))
	}
	return v
}

// Session returns a new sync session id.
func Session() (string, error) { return Generate(PrefixSession) }

// Record returns a new local anime record id.
func Record() (string, error) { return Generate(PrefixRecord) }
