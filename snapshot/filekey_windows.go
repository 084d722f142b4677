//go:build windows

package snapshot

import "os"

// Windows' os.FileInfo does not expose the NTFS file index without a
// syscall.GetFileInformationByHandle round-trip, which requires an
// open handle we don't have at Stat time. Fall back to MISSING, same
// as the source does on platforms without a usable identity
// (spec.md §3: "MISSING when the platform has none").
func fileKeyOf(fi os.FileInfo) FileKey {
	return MissingFileKey
}
