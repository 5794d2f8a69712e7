//go:build !unix

package filewatch

// Link changes are folded into Attrib where the link count is unavailable.
func linkCount(string) (uint64, bool) {
	return 0, false
}
