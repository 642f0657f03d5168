package gitsync

import (
	"context"
	"encoding/hex"
	"fmt"
	"os/exec"
	"sort"
	"strings"

	"github.com/tanq16/hfmirror/internal/utils"
)

// Syncer brings the tracking repository up to date and lists the files
// stored through git-lfs.
type Syncer interface {
	CloneOrPull(ctx context.Context, repoURL, dir string) error
	ListLargeFiles(dir string) ([]string, error)
}

type progressWriter struct {
	streamFunc func(string)
}

func (p *progressWriter) Write(data []byte) (int, error) {
	// git progress rewrites lines with \r
	for _, part := range strings.FieldsFunc(string(data), func(r rune) bool { return r == '\r' || r == '\n' }) {
		if message := strings.TrimSpace(part); message != "" && p.streamFunc != nil {
			p.streamFunc(message)
		}
	}
	return len(data), nil
}

// CheckTools fails with a FatalMissingTool error for the first binary not on PATH.
func CheckTools(names ...string) error {
	for _, name := range names {
		if _, err := exec.LookPath(name); err != nil {
			return &utils.FatalError{Kind: utils.FatalMissingTool, Err: fmt.Errorf("%s is not installed (try 'apt install %s' or 'brew install %s')", name, name, name)}
		}
	}
	return nil
}

// isCommitHash reports whether rev is a full 40-character commit id.
func isCommitHash(rev string) bool {
	if len(rev) != 40 {
		return false
	}
	_, err := hex.DecodeString(rev)
	return err == nil
}

func sortedUnique(files []string) []string {
	sort.Strings(files)
	out := make([]string, 0, len(files))
	for _, f := range files {
		if f == "" || (len(out) > 0 && out[len(out)-1] == f) {
			continue
		}
		out = append(out, f)
	}
	return out
}
