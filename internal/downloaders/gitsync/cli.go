package gitsync

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

// CLISyncer drives the installed git and git-lfs binaries.
type CLISyncer struct {
	Token      string
	Revision   string
	Depth      int
	StreamFunc func(string)
}

func (s *CLISyncer) git(ctx context.Context, args ...string) ([]byte, error) {
	if s.Token != "" {
		args = append([]string{"-c", "http.extraHeader=Authorization: Bearer " + s.Token}, args...)
	}
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Env = append(os.Environ(), "GIT_LFS_SKIP_SMUDGE=1", "GIT_TERMINAL_PROMPT=0")
	out, err := cmd.CombinedOutput()
	if err != nil {
		return out, fmt.Errorf("git command failed: %v: %s", err, strings.TrimSpace(string(out)))
	}
	return out, nil
}

func (s *CLISyncer) CloneOrPull(ctx context.Context, repoURL, dir string) error {
	if err := CheckTools("git", "git-lfs"); err != nil {
		return err
	}
	progress := &progressWriter{streamFunc: s.StreamFunc}
	if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
		if isCommitHash(s.Revision) {
			return nil
		}
		out, err := s.git(ctx, "-C", dir, "pull")
		progress.Write(out)
		if err != nil {
			log.Warn().Str("op", "gitsync/cli").Err(err).Msgf("Pull incomplete for %s, continuing with local HEAD", dir)
		}
		return nil
	}
	pinned := isCommitHash(s.Revision)
	args := []string{"clone"}
	if s.Revision != "" && !pinned {
		args = append(args, "--branch", s.Revision, "--single-branch")
	}
	if s.Depth > 0 && !pinned {
		args = append(args, "--depth", fmt.Sprint(s.Depth))
	}
	args = append(args, repoURL, dir)
	out, err := s.git(ctx, args...)
	progress.Write(out)
	if err != nil {
		return fmt.Errorf("git clone failed: %v", err)
	}
	if pinned {
		out, err := s.git(ctx, "-C", dir, "checkout", "--quiet", s.Revision)
		progress.Write(out)
		if err != nil {
			return fmt.Errorf("error checking out %s: %v", s.Revision, err)
		}
	}
	return nil
}

func (s *CLISyncer) ListLargeFiles(dir string) ([]string, error) {
	out, err := s.git(context.Background(), "-C", dir, "lfs", "ls-files", "--name-only")
	if err != nil {
		return nil, err
	}
	return parseLsFiles(string(out)), nil
}

func parseLsFiles(out string) []string {
	var files []string
	for _, line := range strings.Split(out, "\n") {
		files = append(files, strings.TrimSpace(line))
	}
	return sortedUnique(files)
}
