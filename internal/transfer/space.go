package transfer

import (
	"golang.org/x/sys/unix"
)

// FreeSpaceFunc reports the bytes available to unprivileged writers on the
// file system holding path.
type FreeSpaceFunc func(path string) (uint64, error)

// StatfsFreeSpace is the default FreeSpaceFunc.
func StatfsFreeSpace(path string) (uint64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, err
	}
	return uint64(st.Bavail) * uint64(st.Bsize), nil
}
