//go:build linux || darwin || freebsd

package utils

import "golang.org/x/sys/unix"

type statfsProber struct{}

func (statfsProber) FreeBytes(path string) (uint64, bool, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, false, err
	}
	return uint64(st.Bavail) * uint64(st.Bsize), true, nil
}

func DefaultSpaceProber() SpaceProber {
	return statfsProber{}
}
