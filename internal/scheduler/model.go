package scheduler

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/hfmirror/internal/downloaders/gitsync"
	"github.com/tanq16/hfmirror/internal/utils"
)

type ModelSpec struct {
	ID       string
	Revision string
}

// SyncerFactory builds a repository adapter that reports progress lines to stream.
type SyncerFactory func(stream func(string)) gitsync.Syncer

// DownloadModel syncs the tracking repository for one model, lists its
// large files and fetches them into the same directory.
func DownloadModel(ctx context.Context, dctx *utils.DownloaderContext, newSyncer SyncerFactory, model ModelSpec) (Summary, error) {
	if err := utils.ValidateModelID(model.ID); err != nil {
		return Summary{}, err
	}
	if model.Revision == "" {
		model.Revision = utils.DefaultRevision
	}
	modelDir := filepath.Join(dctx.CacheDir, utils.ModelDirName(model.ID))
	repoURL := utils.RepoURL(dctx.Endpoint, model.ID)

	out := dctx.Output
	syncID := out.Register(model.ID)
	out.SetMessage(syncID, fmt.Sprintf("Syncing %s", repoURL))
	syncer := newSyncer(func(line string) { out.AddStreamLine(syncID, line) })

	log.Info().Str("op", "scheduler/model").Msgf("Syncing %s into %s", repoURL, modelDir)
	if err := syncer.CloneOrPull(ctx, repoURL, modelDir); err != nil {
		err = fmt.Errorf("error syncing repository: %w", err)
		out.ReportError(syncID, err)
		return Summary{}, err
	}
	files, err := syncer.ListLargeFiles(modelDir)
	if err != nil {
		err = fmt.Errorf("error listing large files: %w", err)
		out.ReportError(syncID, err)
		return Summary{}, err
	}
	out.Complete(syncID, fmt.Sprintf("Synced %s (%d large files)", model.ID, len(files)))
	log.Debug().Str("op", "scheduler/model").Msgf("Large files for %s: %v", model.ID, files)

	targets := utils.BuildTargets(dctx.Endpoint, model.ID, model.Revision, modelDir, files)
	return New(dctx).Run(ctx, targets)
}
