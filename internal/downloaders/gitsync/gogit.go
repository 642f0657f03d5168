package gitsync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/rs/zerolog/log"
)

// GoGitSyncer clones without smudging: large files land as pointers and are
// fetched afterwards by the downloader.
type GoGitSyncer struct {
	Token      string
	Revision   string
	Depth      int
	StreamFunc func(string)
}

func (s *GoGitSyncer) auth() transport.AuthMethod {
	if s.Token == "" {
		return nil
	}
	log.Debug().Str("op", "gitsync/gogit").Msg("token found")
	return &http.BasicAuth{Username: "hf_user", Password: s.Token}
}

func (s *GoGitSyncer) stream(message string) {
	if s.StreamFunc != nil {
		s.StreamFunc(message)
	}
}

func (s *GoGitSyncer) CloneOrPull(ctx context.Context, repoURL, dir string) error {
	progress := &progressWriter{streamFunc: s.StreamFunc}
	if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
		s.stream(fmt.Sprintf("Pulling %s", repoURL))
		repo, err := git.PlainOpen(dir)
		if err != nil {
			return fmt.Errorf("error opening repository: %v", err)
		}
		// tags and commits check out a detached HEAD, which never moves
		if head, err := repo.Head(); err == nil && !head.Name().IsBranch() {
			log.Debug().Str("op", "gitsync/gogit").Msgf("%s is pinned at %s, skipping pull", dir, head.Hash())
			return nil
		}
		worktree, err := repo.Worktree()
		if err != nil {
			return fmt.Errorf("error opening worktree: %v", err)
		}
		err = worktree.PullContext(ctx, &git.PullOptions{
			RemoteName: "origin",
			Auth:       s.auth(),
			Progress:   progress,
		})
		switch {
		case err == nil, errors.Is(err, git.NoErrAlreadyUpToDate):
			return nil
		case ctx.Err() != nil:
			return ctx.Err()
		}
		// Fetched large files show up as unstaged changes, which blocks the
		// worktree reset; listing still works from HEAD.
		log.Warn().Str("op", "gitsync/gogit").Err(err).Msgf("Pull incomplete for %s, continuing with local HEAD", dir)
		s.stream(fmt.Sprintf("Warning: pull incomplete: %v", err))
		return nil
	}
	s.stream(fmt.Sprintf("Cloning %s", repoURL))
	if isCommitHash(s.Revision) {
		return s.cloneCommit(ctx, repoURL, dir, progress)
	}
	refs := []plumbing.ReferenceName{""}
	if s.Revision != "" {
		refs = []plumbing.ReferenceName{
			plumbing.NewBranchReferenceName(s.Revision),
			plumbing.NewTagReferenceName(s.Revision),
		}
	}
	var err error
	for _, ref := range refs {
		options := &git.CloneOptions{
			URL:      repoURL,
			Auth:     s.auth(),
			Progress: progress,
		}
		if ref != "" {
			options.ReferenceName = ref
			options.SingleBranch = true
		}
		if s.Depth > 0 {
			options.Depth = s.Depth
		}
		// a failed clone removes what it created, so the next ref starts clean
		if _, err = git.PlainCloneContext(ctx, dir, false, options); err == nil {
			log.Info().Str("op", "gitsync/gogit").Msgf("Cloned %s (%s) into %s", repoURL, ref, dir)
			return nil
		}
		if !isMissingRef(err) {
			break
		}
		log.Debug().Str("op", "gitsync/gogit").Msgf("No remote ref %s for %s", ref, repoURL)
	}
	return fmt.Errorf("git clone failed: %v", err)
}

// cloneCommit fetches full history since a shallow or single-branch clone
// may not contain the commit, then detaches HEAD at it.
func (s *GoGitSyncer) cloneCommit(ctx context.Context, repoURL, dir string, progress *progressWriter) error {
	repo, err := git.PlainCloneContext(ctx, dir, false, &git.CloneOptions{
		URL:      repoURL,
		Auth:     s.auth(),
		Progress: progress,
	})
	if err != nil {
		return fmt.Errorf("git clone failed: %v", err)
	}
	worktree, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("error opening worktree: %v", err)
	}
	if err := worktree.Checkout(&git.CheckoutOptions{Hash: plumbing.NewHash(s.Revision)}); err != nil {
		return fmt.Errorf("error checking out %s: %v", s.Revision, err)
	}
	log.Info().Str("op", "gitsync/gogit").Msgf("Cloned %s at %s into %s", repoURL, s.Revision, dir)
	return nil
}

func isMissingRef(err error) bool {
	var noMatch git.NoMatchingRefSpecError
	return errors.As(err, &noMatch) || errors.Is(err, plumbing.ErrReferenceNotFound) ||
		strings.Contains(err.Error(), "couldn't find remote ref")
}

// ListLargeFiles walks the HEAD tree and returns every path whose blob is
// an LFS pointer.
func (s *GoGitSyncer) ListLargeFiles(dir string) ([]string, error) {
	repo, err := git.PlainOpen(dir)
	if err != nil {
		return nil, fmt.Errorf("error opening repository: %v", err)
	}
	head, err := repo.Head()
	if err != nil {
		return nil, fmt.Errorf("error resolving HEAD: %v", err)
	}
	commit, err := repo.CommitObject(head.Hash())
	if err != nil {
		return nil, fmt.Errorf("error reading HEAD commit: %v", err)
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, fmt.Errorf("error reading tree: %v", err)
	}
	var files []string
	err = tree.Files().ForEach(func(f *object.File) error {
		if f.Size > maxPointerSize {
			return nil
		}
		reader, err := f.Reader()
		if err != nil {
			return err
		}
		defer reader.Close()
		data, err := io.ReadAll(reader)
		if err != nil {
			return err
		}
		if _, ok := ParsePointer(data); ok {
			files = append(files, f.Name)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("error walking tree: %v", err)
	}
	log.Debug().Str("op", "gitsync/gogit").Msgf("Found %d large files in %s", len(files), dir)
	return sortedUnique(files), nil
}
