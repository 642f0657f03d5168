package utils

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog/log"
)

// SpaceProber reports free bytes for the filesystem holding path.
// ok is false when the platform cannot tell.
type SpaceProber interface {
	FreeBytes(path string) (free uint64, ok bool, err error)
}

type noopProber struct{}

func (noopProber) FreeBytes(string) (uint64, bool, error) { return 0, false, nil }

type SpaceGuard struct {
	Prober SpaceProber
	Margin uint64
}

func NewSpaceGuard(prober SpaceProber) *SpaceGuard {
	if prober == nil {
		prober = DefaultSpaceProber()
	}
	return &SpaceGuard{Prober: prober, Margin: SafetyMargin}
}

// Check fails with a FatalLowDisk error when writing prospective more bytes
// under path would leave less than the margin free. Two jobs can pass the
// check before either writes; it is not a reservation.
func (g *SpaceGuard) Check(prospective int64, path string) error {
	dir := existingDir(path)
	free, ok, err := g.Prober.FreeBytes(dir)
	if err != nil {
		log.Warn().Str("op", "utils/diskspace").Err(err).Msgf("Could not read free space for %s", dir)
		return nil
	}
	if !ok {
		return nil
	}
	need := uint64(max(prospective, 0)) + g.Margin
	if free < need {
		return &FatalError{
			Kind: FatalLowDisk,
			Err: fmt.Errorf("%s free on %s, need %s plus %s margin",
				humanize.IBytes(free), dir, humanize.IBytes(uint64(max(prospective, 0))), humanize.IBytes(g.Margin)),
		}
	}
	log.Debug().Str("op", "utils/diskspace").Msgf("%s free on %s", humanize.IBytes(free), dir)
	return nil
}

// existingDir walks up from path to the nearest directory that exists, since
// the file being guarded is usually not created yet.
func existingDir(path string) string {
	dir := path
	for {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return dir
		}
		dir = parent
	}
}
