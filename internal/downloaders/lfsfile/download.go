package lfsfile

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/hfmirror/internal/utils"
)

type Fetcher struct {
	Client *http.Client
	Guard  *utils.SpaceGuard
}

func NewFetcher(dctx *utils.DownloaderContext) *Fetcher {
	return &Fetcher{Client: dctx.Client, Guard: dctx.Guard}
}

// Fetch runs one Resume or Fresh transfer and returns the bytes written in
// this session. sizeHint is the declared remote size, or 0 when unknown.
// On failure the partial file is left on disk so a later run can resume.
func (f *Fetcher) Fetch(ctx context.Context, target utils.DownloadTarget, plan utils.TransferPlan, sizeHint int64, progress utils.ProgressFunc) (int64, error) {
	var fileMode int
	switch plan.Action {
	case utils.PlanResume:
		fileMode = os.O_CREATE | os.O_WRONLY | os.O_APPEND
	case utils.PlanFresh:
		fileMode = os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	default:
		return 0, fmt.Errorf("nothing to fetch for plan %s", plan)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.URL, nil)
	if err != nil {
		return 0, fmt.Errorf("error creating GET request: %v", err)
	}
	if plan.Action == utils.PlanResume {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", plan.Offset))
		log.Debug().Str("op", "lfsfile/download").Msgf("Resuming %s from offset %d", target.DisplayName, plan.Offset)
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("error executing GET request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case plan.Action == utils.PlanResume && resp.StatusCode == http.StatusOK:
		return 0, utils.ErrRangeIgnored
	case plan.Action == utils.PlanResume && resp.StatusCode != http.StatusPartialContent:
		return 0, fmt.Errorf("unexpected status code for range request: %d", resp.StatusCode)
	case plan.Action == utils.PlanFresh && (resp.StatusCode < 200 || resp.StatusCode >= 300):
		return 0, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	// For a range response the declared length is what remains, which is
	// both the progress total and the space that will be consumed.
	total := resp.ContentLength
	estimate := total
	if estimate < 0 {
		estimate = max(sizeHint-plan.Offset, 0)
	}
	if f.Guard != nil {
		if err := f.Guard.Check(estimate, target.LocalPath); err != nil {
			return 0, err
		}
	}

	if err := os.MkdirAll(filepath.Dir(target.LocalPath), 0755); err != nil {
		return 0, fmt.Errorf("error creating output directory: %v", err)
	}
	outFile, err := os.OpenFile(target.LocalPath, fileMode, 0644)
	if err != nil {
		return 0, fmt.Errorf("error opening output file: %v", err)
	}
	defer outFile.Close()

	written, err := copyChunks(outFile, resp.Body, total, progress)
	if err != nil {
		return written, err
	}
	if err := outFile.Sync(); err != nil {
		return written, fmt.Errorf("error syncing output file: %v", err)
	}
	if total >= 0 && written != total {
		return written, fmt.Errorf("size mismatch: expected %d bytes, got %d", total, written)
	}
	log.Info().Str("op", "lfsfile/download").Msgf("Downloaded %d bytes for %s (%s)", written, target.DisplayName, plan)
	return written, nil
}

func copyChunks(dst io.Writer, src io.Reader, total int64, progress utils.ProgressFunc) (int64, error) {
	buffer := make([]byte, utils.DefaultBufferSize)
	var written int64
	for {
		bytesRead, readErr := src.Read(buffer)
		if bytesRead > 0 {
			if _, writeErr := dst.Write(buffer[:bytesRead]); writeErr != nil {
				return written, fmt.Errorf("error writing to output file: %v", writeErr)
			}
			written += int64(bytesRead)
			if progress != nil {
				progress(written, total)
			}
		}
		if readErr != nil {
			if readErr == io.EOF {
				return written, nil
			}
			return written, fmt.Errorf("error reading response body: %v", readErr)
		}
	}
}
