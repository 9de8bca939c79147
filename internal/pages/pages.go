// Package pages publishes a report directory to a static-hosting git
// branch (gh-pages). The branch is bootstrapped when absent, the report
// tree replaces the previous one wholesale, and pushes authenticate with
// the platform token. Clones are shallow and in-memory; nothing touches
// the checkout's own worktree.
package pages

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/storage/memory"
)

// DefaultBranch is the branch reports are published to.
const DefaultBranch = "gh-pages"

// tokenUser is the basic-auth username platform tokens expect.
const tokenUser = "x-access-token"

// Options configures a publish or history fetch.
type Options struct {
	// RepoURL is the remote to publish to (https URL or local path).
	RepoURL string
	// Branch defaults to DefaultBranch.
	Branch string
	// Token authenticates https pushes; ignored for local remotes.
	Token string
	// Committer defaults to "greenlight-ci".
	Committer string
	Logger    *slog.Logger
}

func (o *Options) applyDefaults() error {
	if o.RepoURL == "" {
		return fmt.Errorf("pages: repo URL is required")
	}
	if o.Branch == "" {
		o.Branch = DefaultBranch
	}
	if o.Committer == "" {
		o.Committer = "greenlight-ci"
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return nil
}

func (o *Options) auth() transport.AuthMethod {
	if o.Token == "" || !strings.HasPrefix(o.RepoURL, "http") {
		return nil
	}
	return &githttp.BasicAuth{Username: tokenUser, Password: o.Token}
}

// Publish replaces the branch's tree with the contents of reportDir and
// pushes one commit with the given message.
func Publish(ctx context.Context, opts Options, reportDir, message string) error {
	if err := opts.applyDefaults(); err != nil {
		return err
	}
	if message == "" {
		message = "update regression report"
	}

	repo, wt, err := cloneOrInit(ctx, opts)
	if err != nil {
		return err
	}

	if err := clearWorktree(wt.Filesystem); err != nil {
		return err
	}
	if err := copyIntoWorktree(wt.Filesystem, reportDir); err != nil {
		return err
	}

	if err := wt.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return fmt.Errorf("pages: stage report: %w", err)
	}
	sig := &object.Signature{Name: opts.Committer, Email: opts.Committer + "@users.noreply.local", When: time.Now()}
	commit, err := wt.Commit(message, &git.CommitOptions{Author: sig, AllowEmptyCommits: true})
	if err != nil {
		return fmt.Errorf("pages: commit report: %w", err)
	}

	// Push the resolved branch ref, not "HEAD": go-git does not expand
	// HEAD as a refspec source, so pushing it matches nothing and the
	// remote branch would never be created.
	head, err := repo.Head()
	if err != nil {
		return fmt.Errorf("pages: resolve head: %w", err)
	}
	refSpec := gitconfig.RefSpec(fmt.Sprintf("%s:refs/heads/%s", head.Name(), opts.Branch))
	err = repo.PushContext(ctx, &git.PushOptions{
		RemoteName: git.DefaultRemoteName,
		RefSpecs:   []gitconfig.RefSpec{refSpec},
		Auth:       opts.auth(),
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("pages: push %s: %w", opts.Branch, err)
	}

	opts.Logger.Info("report published", "branch", opts.Branch, "commit", commit.String())
	return nil
}

// FetchPrevious copies the branch's current tree into destDir and
// reports whether a previous report existed. A missing branch (or a
// missing repo on a local path) is not an error: the caller proceeds
// with an empty history, matching the workflow's tolerated-failure step.
func FetchPrevious(ctx context.Context, opts Options, destDir string) (bool, error) {
	if err := opts.applyDefaults(); err != nil {
		return false, err
	}

	_, wt, err := clone(ctx, opts)
	if isMissingBranch(err) {
		opts.Logger.Info("no published report yet", "branch", opts.Branch)
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("pages: fetch previous report: %w", err)
	}

	if err := os.MkdirAll(destDir, 0755); err != nil {
		return false, fmt.Errorf("pages: create dest dir: %w", err)
	}
	if err := copyFromWorktree(wt.Filesystem, destDir); err != nil {
		return false, err
	}
	return true, nil
}

func clone(ctx context.Context, opts Options) (*git.Repository, *git.Worktree, error) {
	repo, err := git.CloneContext(ctx, memory.NewStorage(), memfs.New(), &git.CloneOptions{
		URL:           opts.RepoURL,
		ReferenceName: plumbing.NewBranchReferenceName(opts.Branch),
		SingleBranch:  true,
		Depth:         1,
		Auth:          opts.auth(),
	})
	if err != nil {
		return nil, nil, err
	}
	wt, err := repo.Worktree()
	if err != nil {
		return nil, nil, fmt.Errorf("pages: worktree: %w", err)
	}
	return repo, wt, nil
}

// cloneOrInit clones the publish branch, or bootstraps a fresh repository
// pointed at the remote when the branch (or any history) does not exist
// yet.
func cloneOrInit(ctx context.Context, opts Options) (*git.Repository, *git.Worktree, error) {
	repo, wt, err := clone(ctx, opts)
	if err == nil {
		return repo, wt, nil
	}
	if !isMissingBranch(err) {
		return nil, nil, fmt.Errorf("pages: clone %s: %w", opts.Branch, err)
	}

	repo, err = git.Init(memory.NewStorage(), memfs.New())
	if err != nil {
		return nil, nil, fmt.Errorf("pages: init publish repo: %w", err)
	}
	_, err = repo.CreateRemote(&gitconfig.RemoteConfig{
		Name: git.DefaultRemoteName,
		URLs: []string{opts.RepoURL},
	})
	if err != nil {
		return nil, nil, fmt.Errorf("pages: add remote: %w", err)
	}
	wt, err = repo.Worktree()
	if err != nil {
		return nil, nil, fmt.Errorf("pages: worktree: %w", err)
	}
	return repo, wt, nil
}

func isMissingBranch(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, transport.ErrEmptyRemoteRepository) ||
		errors.Is(err, transport.ErrRepositoryNotFound) ||
		errors.Is(err, plumbing.ErrReferenceNotFound) {
		return true
	}
	// go-git reports a missing single-branch ref as a plain error string.
	return strings.Contains(err.Error(), "couldn't find remote ref")
}

func clearWorktree(bfs billy.Filesystem) error {
	entries, err := bfs.ReadDir("/")
	if err != nil {
		return fmt.Errorf("pages: read worktree: %w", err)
	}
	for _, e := range entries {
		if e.Name() == git.GitDirName {
			continue
		}
		if err := util.RemoveAll(bfs, e.Name()); err != nil {
			return fmt.Errorf("pages: clear %s: %w", e.Name(), err)
		}
	}
	return nil
}

func copyIntoWorktree(bfs billy.Filesystem, srcDir string) error {
	return filepath.WalkDir(srcDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(srcDir, p)
		if err != nil || rel == "." {
			return err
		}
		target := filepath.ToSlash(rel)
		if d.IsDir() {
			return bfs.MkdirAll(target, 0755)
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return fmt.Errorf("pages: read %s: %w", rel, err)
		}
		return util.WriteFile(bfs, target, data, 0644)
	})
}

func copyFromWorktree(bfs billy.Filesystem, destDir string) error {
	return util.Walk(bfs, "/", func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		name := strings.TrimPrefix(p, "/")
		if name == "" {
			return nil
		}
		if info.IsDir() {
			if name == git.GitDirName {
				return filepath.SkipDir
			}
			return os.MkdirAll(filepath.Join(destDir, filepath.FromSlash(name)), 0755)
		}
		data, err := util.ReadFile(bfs, p)
		if err != nil {
			return fmt.Errorf("pages: read %s: %w", name, err)
		}
		return os.WriteFile(filepath.Join(destDir, filepath.FromSlash(name)), data, 0644)
	})
}

// BranchRef returns the fully qualified ref of the publish branch.
func BranchRef(branch string) string {
	if branch == "" {
		branch = DefaultBranch
	}
	return path.Join("refs/heads", branch)
}
