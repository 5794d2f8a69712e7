//go:build unix

package filewatch

import "golang.org/x/sys/unix"

func linkCount(path string) (uint64, bool) {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return 0, false
	}
	return uint64(st.Nlink), true
}
