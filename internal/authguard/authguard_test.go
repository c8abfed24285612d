package authguard

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func writeAuthFile(t *testing.T, path, contents string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func TestValidateAgainstLoadedTokens(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kiwibes.auth")
	writeAuthFile(t, path, `["secret-1", "secret-2"]`)

	g := New(path, zerolog.Nop())

	if !g.Validate("secret-1") {
		t.Errorf("expected secret-1 to validate")
	}
	if g.Validate("unknown") {
		t.Errorf("expected unknown token to be rejected")
	}
}

func TestMissingFileRejectsEverything(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kiwibes.auth")

	g := New(path, zerolog.Nop())
	if g.Validate("") {
		t.Errorf("empty token must never validate")
	}
	if g.Validate("anything") {
		t.Errorf("missing auth file must reject every token")
	}
}

func TestMalformedFileRejectsEverything(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kiwibes.auth")
	writeAuthFile(t, path, `not json`)

	g := New(path, zerolog.Nop())
	if g.Validate("anything") {
		t.Errorf("malformed auth file must reject every token")
	}
}

func TestReloadPicksUpChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kiwibes.auth")
	writeAuthFile(t, path, `["old"]`)

	g := New(path, zerolog.Nop())
	if !g.Validate("old") {
		t.Fatalf("expected old token to validate")
	}

	// Ensure mtime advances on filesystems with coarse resolution.
	time.Sleep(10 * time.Millisecond)
	writeAuthFile(t, path, `["new"]`)
	g.reload()

	if g.Validate("old") {
		t.Errorf("old token should no longer validate after reload")
	}
	if !g.Validate("new") {
		t.Errorf("new token should validate after reload")
	}
}
