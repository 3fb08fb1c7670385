// Package gitfetcher keeps a shallow checkout of a git repository up to
// date.
package gitfetcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
	"go.uber.org/zap"
)

type GitFetcher struct {
	RepoURL  string
	Branch   string
	LocalDir string
	Token    string
	Logger   *zap.Logger
}

// IsRepo reports whether locator names a git repository rather than a
// package name.
func IsRepo(locator string) bool {
	return strings.Contains(locator, "://") ||
		strings.HasPrefix(locator, "git@") ||
		strings.HasSuffix(locator, ".git")
}

func (g *GitFetcher) auth() transport.AuthMethod {
	if g.Token == "" {
		return nil
	}
	return &http.BasicAuth{
		Username: "git", // can be anything but not empty
		Password: g.Token,
	}
}

func (g *GitFetcher) log() *zap.Logger {
	if g.Logger == nil {
		return zap.NewNop()
	}
	return g.Logger
}

// CloneOrPull clones the repository into LocalDir, or pulls when a
// checkout is already there. A broken checkout is removed and cloned again.
func (g *GitFetcher) CloneOrPull(ctx context.Context) error {
	if _, err := os.Stat(filepath.Join(g.LocalDir, ".git")); os.IsNotExist(err) {
		return g.clone(ctx)
	}

	repo, err := git.PlainOpen(g.LocalDir)
	if err != nil {
		g.log().Warn("repo open failed, cleaning checkout", zap.String("dir", g.LocalDir), zap.Error(err))
		if err := os.RemoveAll(g.LocalDir); err != nil {
			return err
		}
		return g.clone(ctx)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("worktree failed: %w", err)
	}

	g.log().Info("pulling latest changes", zap.String("repo", g.RepoURL))
	err = wt.PullContext(ctx, &git.PullOptions{RemoteName: "origin", Auth: g.auth()})
	if errors.Is(err, git.NoErrAlreadyUpToDate) {
		g.log().Info("repo already up-to-date", zap.String("repo", g.RepoURL))
		return nil
	}
	if err != nil {
		return fmt.Errorf("pull failed: %w", err)
	}
	return nil
}

func (g *GitFetcher) clone(ctx context.Context) error {
	g.log().Info("cloning", zap.String("repo", g.RepoURL), zap.String("branch", g.Branch))
	opts := &git.CloneOptions{
		URL:          g.RepoURL,
		Auth:         g.auth(),
		SingleBranch: true,
		Depth:        1,
	}
	if g.Branch != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(g.Branch)
	}
	if _, err := git.PlainCloneContext(ctx, g.LocalDir, false, opts); err != nil {
		return fmt.Errorf("clone failed: %w", err)
	}
	return nil
}
