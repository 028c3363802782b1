package gitsource

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalPath(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://github.com/conorfennell/decks.git", filepath.Join("repos", "github.com", "conorfennell", "decks")},
		{"http://example.com/team/cards", filepath.Join("repos", "example.com", "team", "cards")},
		{"git@github.com:conorfennell/decks.git", filepath.Join("repos", "github.com", "conorfennell", "decks")},
	}
	for _, tt := range tests {
		got, err := LocalPath("repos", tt.url)
		require.NoError(t, err, tt.url)
		assert.Equal(t, tt.want, got)
	}

	_, err := LocalPath("repos", "not a url")
	assert.Error(t, err)
}

func TestIsGitURL(t *testing.T) {
	assert.True(t, IsGitURL("git@github.com:a/b.git"))
	assert.True(t, IsGitURL("https://github.com/a/b"))
	assert.True(t, IsGitURL("/srv/decks.git"))
	assert.False(t, IsGitURL("./decks"))
}

func TestSyncClonesAndPulls(t *testing.T) {
	origin := t.TempDir()
	repo, err := git.PlainInit(origin, false)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(origin, "deck.md"), []byte("Q: a\nA: b\n"), 0o644))
	wt, err := repo.Worktree()
	require.NoError(t, err)
	_, err = wt.Add("deck.md")
	require.NoError(t, err)
	_, err = wt.Commit("add deck", &git.CommitOptions{
		Author: &object.Signature{Name: "test", Email: "test@example.com", When: time.Now()},
	})
	require.NoError(t, err)

	logger := slog.New(slog.DiscardHandler)
	checkout := filepath.Join(t.TempDir(), "checkout")
	ctx := context.Background()

	require.NoError(t, Sync(ctx, logger, origin, checkout, io.Discard))
	assert.FileExists(t, filepath.Join(checkout, "deck.md"))

	// Second run pulls and is already up to date.
	require.NoError(t, Sync(ctx, logger, origin, checkout, io.Discard))
}
