//go:build !windows

package snapshot

import (
	"os"
	"syscall"
)

func fileKeyOf(fi os.FileInfo) FileKey {
	st, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		return MissingFileKey
	}
	return FileKey{valid: true, dev: uint64(st.Dev), ino: uint64(st.Ino)} //nolint:unconvert
}
