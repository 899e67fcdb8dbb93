package deploy

import (
	"context"
	stdErrors "errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"

	"git.home.luguber.info/inful/pagesdeploy/internal/auth"
	"git.home.luguber.info/inful/pagesdeploy/internal/config"
	"git.home.luguber.info/inful/pagesdeploy/internal/foundation/errors"
	gitsrc "git.home.luguber.info/inful/pagesdeploy/internal/git"
	"git.home.luguber.info/inful/pagesdeploy/internal/logfields"
	"git.home.luguber.info/inful/pagesdeploy/internal/workspace"
)

// Status is the outcome of a publish.
type Status string

const (
	StatusPublished Status = "published"
	StatusUpToDate  Status = "up_to_date"
)

// Request describes one publish.
type Request struct {
	// SourceDir is the output directory to publish. It is only read.
	SourceDir string
	// ScratchDir receives the clone of the hosting branch; it must not exist or be empty.
	ScratchDir string

	Repository string
	Branch     string
	Folder     string
	Auth       *config.AuthConfig
	Author     config.AuthorConfig
	Message    string
}

// Result describes a finished publish.
type Result struct {
	Status       Status        `json:"status"`
	Branch       string        `json:"branch"`
	Folder       string        `json:"folder"`
	Commit       string        `json:"commit,omitempty"`
	FilesWritten int           `json:"files_written"`
	Created      bool          `json:"created_branch"`
	Duration     time.Duration `json:"duration"`
}

// Publisher pushes output directories to hosting branches.
type Publisher struct {
	auth *auth.Registry
	now  func() time.Time
}

// NewPublisher returns a Publisher using the default auth providers.
func NewPublisher() *Publisher {
	return &Publisher{auth: auth.NewRegistry(), now: time.Now}
}

// Publish merges req.SourceDir into req.Folder of req.Branch and pushes the result.
// An unchanged tree is reported as up to date without creating a commit.
func (p *Publisher) Publish(ctx context.Context, req Request) (*Result, error) {
	start := p.now()
	res := &Result{Branch: req.Branch, Folder: req.Folder}
	defer func() { res.Duration = p.now().Sub(start) }()

	method, err := p.auth.Create(req.Auth)
	if err != nil {
		return res, err
	}
	target, err := targetDir(req.ScratchDir, req.Folder)
	if err != nil {
		return res, err
	}

	repo, created, err := p.openBranch(ctx, req, method)
	if err != nil {
		return res, err
	}
	res.Created = created

	if err := os.MkdirAll(target, 0o750); err != nil {
		return res, publishError(err, "failed to prepare target folder", req)
	}
	n, err := workspace.CopyTree(req.SourceDir, target, workspace.SkipGitDir)
	if err != nil {
		return res, publishError(err, "failed to copy output into hosting branch", req)
	}
	res.FilesWritten = n

	wt, err := repo.Worktree()
	if err != nil {
		return res, publishError(err, "failed to open worktree", req)
	}
	if err := wt.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return res, publishError(err, "failed to stage files", req)
	}
	status, err := wt.Status()
	if err != nil {
		return res, publishError(err, "failed to compute status", req)
	}
	if status.IsClean() {
		res.Status = StatusUpToDate
		if head, err := repo.Head(); err == nil {
			res.Commit = head.Hash().String()
		}
		slog.Info("Hosting branch already up to date", logfields.Branch(req.Branch), logfields.Path(req.Folder))
		return res, nil
	}

	hash, err := wt.Commit(req.Message, &git.CommitOptions{
		Author: &object.Signature{Name: req.Author.Name, Email: req.Author.Email, When: p.now()},
	})
	if err != nil {
		return res, publishError(err, "failed to commit", req)
	}

	branchRef := plumbing.NewBranchReferenceName(req.Branch)
	err = repo.PushContext(ctx, &git.PushOptions{
		RemoteName: git.DefaultRemoteName,
		Auth:       method,
		RefSpecs:   []gitconfig.RefSpec{gitconfig.RefSpec(branchRef + ":" + branchRef)},
	})
	if err != nil && !stdErrors.Is(err, git.NoErrAlreadyUpToDate) {
		return res, publishError(gitsrc.ClassifyGitError(err, "push", req.Repository), "failed to push hosting branch", req)
	}

	res.Status = StatusPublished
	res.Commit = hash.String()
	slog.Info("Published site",
		logfields.Branch(req.Branch),
		logfields.Path(req.Folder),
		logfields.Commit(res.Commit),
		slog.Int("files", n),
		slog.Bool("created_branch", created))
	return res, nil
}

// openBranch clones the hosting branch, or initializes an orphan branch when the
// remote has no such branch. It reports whether the branch is new.
func (p *Publisher) openBranch(ctx context.Context, req Request, method transport.AuthMethod) (*git.Repository, bool, error) {
	branchRef := plumbing.NewBranchReferenceName(req.Branch)
	repo, err := git.PlainCloneContext(ctx, req.ScratchDir, false, &git.CloneOptions{
		URL:           req.Repository,
		Auth:          method,
		ReferenceName: branchRef,
		SingleBranch:  true,
		Tags:          git.NoTags,
	})
	if err == nil {
		return repo, false, nil
	}
	if !missingBranch(err) {
		return nil, false, publishError(gitsrc.ClassifyGitError(err, "clone", req.Repository), "failed to clone hosting branch", req)
	}

	slog.Info("Hosting branch not found, creating orphan branch", logfields.Branch(req.Branch), logfields.URL(req.Repository))
	if err := os.RemoveAll(req.ScratchDir); err != nil {
		return nil, false, publishError(err, "failed to reset scratch directory", req)
	}
	repo, err = git.PlainInitWithOptions(req.ScratchDir, &git.PlainInitOptions{
		InitOptions: git.InitOptions{DefaultBranch: branchRef},
	})
	if err != nil {
		return nil, false, publishError(err, "failed to initialize orphan branch", req)
	}
	if _, err := repo.CreateRemote(&gitconfig.RemoteConfig{Name: git.DefaultRemoteName, URLs: []string{req.Repository}}); err != nil {
		return nil, false, publishError(err, "failed to configure remote", req)
	}
	return repo, true, nil
}

func missingBranch(err error) bool {
	var noMatch git.NoMatchingRefSpecError
	if stdErrors.As(err, &noMatch) {
		return true
	}
	if stdErrors.Is(err, transport.ErrEmptyRemoteRepository) || stdErrors.Is(err, plumbing.ErrReferenceNotFound) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "couldn't find remote ref")
}

// targetDir resolves folder inside scratch, refusing paths that escape it.
func targetDir(scratch, folder string) (string, error) {
	if folder == "" {
		folder = "."
	}
	clean := filepath.Clean(filepath.FromSlash(folder))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", errors.ValidationError("deploy folder must be relative to the branch root").
			WithContext("folder", folder).
			Build()
	}
	if clean == ".git" || strings.HasPrefix(clean, ".git"+string(filepath.Separator)) {
		return "", errors.ValidationError("deploy folder must not be inside .git").
			WithContext("folder", folder).
			Build()
	}
	return filepath.Join(scratch, clean), nil
}

func publishError(err error, msg string, req Request) error {
	return errors.WrapError(err, errors.CategoryPublish, msg).
		Fatal().
		WithContext("branch", req.Branch).
		WithContext("url", req.Repository).
		Build()
}
