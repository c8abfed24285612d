// Package authguard loads and caches the bearer-token set from
// kiwibes.auth, reloading it on a background poll when the file's
// modification time changes. The cache is held behind an atomic
// pointer swap so Validate never blocks on the poller.
package authguard

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"os"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// pollInterval is how often the auth file's mtime is checked.
const pollInterval = 2 * time.Second

type tokenSet struct {
	tokens []string
	mtime  time.Time
}

// AuthGuard validates bearer tokens against the current contents of
// kiwibes.auth.
type AuthGuard struct {
	path   string
	cache  atomic.Pointer[tokenSet]
	logger zerolog.Logger
}

// New creates an AuthGuard for the given auth file path, performing an
// initial synchronous load.
func New(path string, logger zerolog.Logger) *AuthGuard {
	g := &AuthGuard{
		path:   path,
		logger: logger.With().Str("component", "authguard").Logger(),
	}
	g.reload()
	return g
}

// Validate reports whether token is present in the current token set.
// An empty cached set (missing or malformed file) rejects every token,
// including the empty string.
func (g *AuthGuard) Validate(token string) bool {
	if token == "" {
		return false
	}

	set := g.cache.Load()
	if set == nil {
		return false
	}

	for _, t := range set.tokens {
		// Constant-time comparison guards against timing side-channels
		// on the token match.
		if subtle.ConstantTimeCompare([]byte(token), []byte(t)) == 1 {
			return true
		}
	}
	return false
}

// StartPolling begins the background mtime-poll loop; it returns once
// ctx is cancelled.
func (g *AuthGuard) StartPolling(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(pollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				g.reloadIfChanged()
			}
		}
	}()
}

func (g *AuthGuard) reloadIfChanged() {
	info, err := os.Stat(g.path)
	if err != nil {
		// File vanished: fail closed with an empty set.
		if current := g.cache.Load(); current == nil || len(current.tokens) != 0 {
			g.logger.Warn().Str("path", g.path).Msg("auth file missing, clearing token cache")
			g.cache.Store(&tokenSet{})
		}
		return
	}

	current := g.cache.Load()
	if current != nil && info.ModTime().Equal(current.mtime) {
		return
	}

	g.reload()
}

func (g *AuthGuard) reload() {
	info, statErr := os.Stat(g.path)

	data, err := os.ReadFile(g.path)
	if err != nil {
		g.cache.Store(&tokenSet{})
		return
	}

	tokens, parseErr := parseTokens(data)
	if parseErr != nil {
		g.logger.Warn().Err(parseErr).Str("path", g.path).Msg("auth file malformed, clearing token cache")
		g.cache.Store(&tokenSet{})
		return
	}

	mtime := time.Time{}
	if statErr == nil {
		mtime = info.ModTime()
	}

	g.cache.Store(&tokenSet{tokens: tokens, mtime: mtime})
	g.logger.Info().Int("count", len(tokens)).Msg("auth tokens loaded")
}

func parseTokens(data []byte) ([]string, error) {
	var tokens []string
	if err := json.Unmarshal(data, &tokens); err != nil {
		return nil, err
	}
	return tokens, nil
}
