package utils

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// DefaultCacheDir mirrors the huggingface hub cache lookup and appends hfd.
func DefaultCacheDir() (string, error) {
	if dir := os.Getenv("HF_HUB_CACHE"); dir != "" {
		return filepath.Join(dir, "hfd"), nil
	}
	if dir := os.Getenv("HF_HOME"); dir != "" {
		return filepath.Join(dir, "hub", "hfd"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("error locating home directory: %v", err)
	}
	return filepath.Join(home, ".cache", "huggingface", "hub", "hfd"), nil
}

// ResolveToken prefers HF_TOKEN over the value given on the command line.
func ResolveToken(flagToken string) string {
	if token := os.Getenv("HF_TOKEN"); token != "" {
		return token
	}
	return flagToken
}

func ResolveEndpoint(flagEndpoint string, origin bool) string {
	switch {
	case origin:
		return OriginEndpoint
	case flagEndpoint != "":
		return strings.TrimSuffix(flagEndpoint, "/")
	case os.Getenv("HF_ENDPOINT") != "":
		return strings.TrimSuffix(os.Getenv("HF_ENDPOINT"), "/")
	}
	return MirrorEndpoint
}

func ValidateModelID(modelID string) error {
	modelID = strings.Trim(modelID, "/")
	if modelID == "" {
		return errors.New("model id is empty")
	}
	for _, part := range strings.Split(modelID, "/") {
		if part == "" || part == "." || part == ".." {
			return fmt.Errorf("invalid model id %q", modelID)
		}
	}
	return nil
}

// ModelDirName is the last path segment of the model id ("Intel/dynamic_tinybert" -> "dynamic_tinybert").
func ModelDirName(modelID string) string {
	parts := strings.Split(strings.Trim(modelID, "/"), "/")
	return parts[len(parts)-1]
}

func RepoURL(endpoint, modelID string) string {
	return fmt.Sprintf("%s/%s", endpoint, strings.Trim(modelID, "/"))
}

func FileURL(endpoint, modelID, revision, filename string) string {
	if revision == "" {
		revision = DefaultRevision
	}
	segments := strings.Split(filepath.ToSlash(filename), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return fmt.Sprintf("%s/resolve/%s/%s", RepoURL(endpoint, modelID), url.PathEscape(revision), strings.Join(segments, "/"))
}

// ParseHeaderArgs turns "Key: Value" flag values into a header map,
// ignoring entries without a colon.
func ParseHeaderArgs(headers []string) map[string]string {
	result := make(map[string]string)
	for _, header := range headers {
		key, value, found := strings.Cut(header, ":")
		if !found || strings.TrimSpace(key) == "" {
			continue
		}
		result[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return result
}

// BuildTargets turns the large-file listing into download targets, dropping
// empty entries and duplicates while keeping the listing order.
func BuildTargets(endpoint, modelID, revision, modelDir string, files []string) []DownloadTarget {
	seen := make(map[string]bool, len(files))
	targets := make([]DownloadTarget, 0, len(files))
	for _, name := range files {
		name = strings.TrimSpace(name)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		targets = append(targets, DownloadTarget{
			URL:         FileURL(endpoint, modelID, revision, name),
			LocalPath:   filepath.Join(modelDir, filepath.FromSlash(name)),
			DisplayName: name,
		})
	}
	return targets
}
