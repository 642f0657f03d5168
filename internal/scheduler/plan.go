package scheduler

import (
	"fmt"
	"os"

	"github.com/tanq16/hfmirror/internal/downloaders/gitsync"
	"github.com/tanq16/hfmirror/internal/utils"
)

// LocalState reads the file fresh on every call. A checked-out LFS pointer
// is reported as absent since none of its bytes belong to the real file.
func LocalState(path string) utils.LocalFileState {
	info, err := os.Stat(path)
	if err != nil {
		return utils.LocalFileState{}
	}
	if gitsync.IsPointerFile(path) {
		return utils.LocalFileState{}
	}
	return utils.LocalFileState{Exists: true, Size: info.Size()}
}

// Decide maps the local and remote state of one target onto a plan.
// Unauthorized comes back as a FatalError; a local file larger than the
// remote one is PlanFailed with ErrLocalLarger.
func Decide(local utils.LocalFileState, remote utils.RemoteSize) (utils.TransferPlan, error) {
	if remote.Kind == utils.SizeUnauthorized {
		return utils.TransferPlan{Action: utils.PlanFailed}, &utils.FatalError{
			Kind: utils.FatalUnauthorized,
			Err:  fmt.Errorf("access restricted; set HF_TOKEN or pass --token"),
		}
	}
	if !local.Exists || remote.Kind == utils.SizeUnknown {
		return utils.TransferPlan{Action: utils.PlanFresh}, nil
	}
	switch {
	case local.Size < remote.Size:
		return utils.TransferPlan{Action: utils.PlanResume, Offset: local.Size}, nil
	case local.Size == remote.Size:
		return utils.TransferPlan{Action: utils.PlanSkip}, nil
	default:
		return utils.TransferPlan{Action: utils.PlanFailed}, fmt.Errorf("%w (local %d, remote %d)", utils.ErrLocalLarger, local.Size, remote.Size)
	}
}
