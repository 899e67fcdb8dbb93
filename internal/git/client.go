package git

import (
	"context"
	stdErrors "errors"
	"log/slog"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"git.home.luguber.info/inful/pagesdeploy/internal/auth"
	"git.home.luguber.info/inful/pagesdeploy/internal/config"
	"git.home.luguber.info/inful/pagesdeploy/internal/foundation/errors"
	"git.home.luguber.info/inful/pagesdeploy/internal/logfields"
)

// CloneRequest describes the source of one run.
type CloneRequest struct {
	URL    string
	Ref    string // branch name or full ref, e.g. "main" or "refs/heads/main"
	Commit string // optional; checked out after clone when set
	Dir    string
	Auth   *config.AuthConfig
	Depth  int
}

// Checkout is a source tree on disk.
type Checkout struct {
	Dir    string
	Ref    string
	Commit string
}

// Client performs source checkouts.
type Client struct {
	auth *auth.Registry
}

// NewClient returns a Client using the default auth providers.
func NewClient() *Client { return &Client{auth: auth.NewRegistry()} }

// BranchRef normalizes a branch name to a full reference name.
func BranchRef(ref string) plumbing.ReferenceName {
	if strings.HasPrefix(ref, "refs/") {
		return plumbing.ReferenceName(ref)
	}
	return plumbing.NewBranchReferenceName(ref)
}

// Clone clones req.Ref into req.Dir, which must not exist or be empty.
func (c *Client) Clone(ctx context.Context, req CloneRequest) (*Checkout, error) {
	method, err := c.auth.Create(req.Auth)
	if err != nil {
		return nil, err
	}

	refName := BranchRef(req.Ref)
	opts := &git.CloneOptions{
		URL:           req.URL,
		Auth:          method,
		ReferenceName: refName,
		SingleBranch:  true,
		Depth:         req.Depth,
		Tags:          git.NoTags,
	}
	if req.Commit != "" {
		// A pinned commit may be behind the tip; fetch full history of the branch.
		opts.Depth = 0
	}

	slog.Debug("Cloning source", logfields.URL(req.URL), logfields.Ref(refName.String()), logfields.Path(req.Dir))
	repo, err := git.PlainCloneContext(ctx, req.Dir, false, opts)
	if err != nil {
		return nil, ClassifyGitError(err, "clone", req.URL)
	}

	if req.Commit != "" {
		wt, err := repo.Worktree()
		if err != nil {
			return nil, ClassifyGitError(err, "checkout", req.URL)
		}
		if err := wt.Checkout(&git.CheckoutOptions{Hash: plumbing.NewHash(req.Commit), Force: true}); err != nil {
			return nil, errors.GitError("pushed commit not found on branch").
				WithCause(err).
				WithCategory(errors.CategoryNotFound).
				WithContext("commit", req.Commit).
				WithContext("ref", refName.String()).
				Build()
		}
	}

	head, err := repo.Head()
	if err != nil {
		return nil, ClassifyGitError(err, "head", req.URL)
	}
	co := &Checkout{Dir: req.Dir, Ref: refName.String(), Commit: head.Hash().String()}
	slog.Info("Source checked out", logfields.URL(req.URL), logfields.Ref(co.Ref), logfields.Commit(short(co.Commit)))
	return co, nil
}

// Inspect describes an existing local checkout. A directory that is not a git
// repository yields an empty commit.
func Inspect(dir string) (*Checkout, error) {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		if stdErrors.Is(err, git.ErrRepositoryNotExists) {
			return &Checkout{Dir: dir}, nil
		}
		return nil, ClassifyGitError(err, "open", dir)
	}
	head, err := repo.Head()
	if err != nil {
		return &Checkout{Dir: dir}, nil
	}
	co := &Checkout{Dir: dir, Commit: head.Hash().String()}
	if head.Name().IsBranch() {
		co.Ref = head.Name().String()
	}
	return co, nil
}

func short(sha string) string {
	if len(sha) > 8 {
		return sha[:8]
	}
	return sha
}
