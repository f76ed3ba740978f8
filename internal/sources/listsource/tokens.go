package listsource

import (
	"context"
	"os"
	"strings"
	"sync"

	domainerrors "github.com/shirosync/shirosync-server/internal/errors"
)

// TokenProvider resolves the bearer token for a user. Credential storage lives elsewhere.
type TokenProvider interface {
	Token(ctx context.Context, userID string) (string, error)
}

// StaticTokens is an in-memory TokenProvider.
type StaticTokens struct {
	mu     sync.RWMutex
	tokens map[string]string
}

// NewStaticTokens creates a provider seeded with tokens.
func NewStaticTokens(tokens map[string]string) *StaticTokens {
	t := &StaticTokens{tokens: make(map[string]string, len(tokens))}
	for k, v := range tokens {
		t.tokens[k] = v
	}
	return t
}

// Set stores a token for userID.
func (t *StaticTokens) Set(userID, token string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tokens[userID] = token
}

// Token returns the stored token or an Unauthorized error.
func (t *StaticTokens) Token(_ context.Context, userID string) (string, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	tok, ok := t.tokens[userID]
	if !ok || tok == "" {
		return "", domainerrors.Unauthorized("no list token for user " + userID)
	}
	return tok, nil
}

// EnvTokens reads LIST_TOKEN_<USER> variables, with the user id upper-cased
// and dashes turned into underscores.
type EnvTokens struct {
	Prefix string
}

// Token implements TokenProvider.
func (e EnvTokens) Token(_ context.Context, userID string) (string, error) {
	prefix := e.Prefix
	if prefix == "" {
		prefix = "LIST_TOKEN_"
	}
	key := prefix + strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(userID))
	tok := os.Getenv(key)
	if tok == "" {
		return "", domainerrors.Unauthorized("no list token for user " + userID)
	}
	return tok, nil
}
