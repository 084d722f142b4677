// Package snapshot detects whether a file on disk has changed since
// it was last observed, resisting racy-clean filesystem timestamps:
// a file modified within the same timer tick as the last observation
// must not be trusted as unchanged (spec.md §4.1).
//
// This is the one place in gitstore that sleeps (WaitUntilNotRacy);
// everywhere else a racy read is handled by forcing one rescan.
package snapshot

import (
	"context"
	"os"
	"time"

	"github.com/go-git/go-billy/v5"
)

// UnknownSize is the wildcard size used when the underlying stat call
// could not report a length (spec.md §3: "with UNKNOWN_SIZE acting as
// a wildcard").
const UnknownSize int64 = -1

// FileKey is an opaque OS-level file identity (inode+dev on POSIX).
// Windows builds and filesystems that expose no such identity (billy
// in-memory fs, some network mounts) report MissingFileKey.
type FileKey struct {
	valid bool
	dev   uint64
	ino   uint64
}

// MissingFileKey is the identity used when the platform has none.
var MissingFileKey = FileKey{}

// Equal reports whether two FileKeys name the same file. Two missing
// keys are never considered equal — spec.md treats MISSING as "no
// information", not as a wildcard match.
func (k FileKey) Equal(other FileKey) bool {
	if !k.valid || !other.valid {
		return false
	}
	return k.dev == other.dev && k.ino == other.ino
}

// Snapshot is a point-in-time observation of a file: its last
// modification instant, its size, its FileKey, when it was observed,
// and the filesystem timer resolution used to judge raciness
// (spec.md §3 "FileSnapshot").
type Snapshot struct {
	lastModified time.Time
	size         int64
	key          FileKey
	lastRead     time.Time
	resolution   time.Duration
	cannotBeRacy bool
}

// DefaultResolution is used when the caller has no better estimate of
// the filesystem's mtime granularity. 1 second covers ext4, HFS+ and
// most network filesystems; NTFS/APFS are finer but never coarser.
const DefaultResolution = time.Second

// Save stats path and returns a Snapshot. Stat errors fall back to a
// snapshot with UnknownSize/MissingFileKey rather than failing — the
// function is total (spec.md §4.1 "Failure").
func Save(fs billy.Filesystem, path string, resolution time.Duration) Snapshot {
	now := time.Now()
	fi, err := fs.Stat(path)
	if err != nil {
		return Snapshot{lastRead: now, resolution: resolution, size: UnknownSize}
	}
	return Snapshot{
		lastModified: fi.ModTime(),
		size:         fi.Size(),
		key:          fileKeyOf(fi),
		lastRead:     now,
		resolution:   resolution,
	}
}

// SaveOS is Save for plain *os.File-backed paths, used by components
// that don't go through a billy.Filesystem.
func SaveOS(path string, resolution time.Duration) Snapshot {
	now := time.Now()
	fi, err := os.Stat(path)
	if err != nil {
		return Snapshot{lastRead: now, resolution: resolution, size: UnknownSize}
	}
	return Snapshot{
		lastModified: fi.ModTime(),
		size:         fi.Size(),
		key:          fileKeyOf(fi),
		lastRead:     now,
		resolution:   resolution,
	}
}

// Equal reports whether two snapshots describe the same file state:
// size, lastModified and fileKey all match, with UnknownSize treated
// as a wildcard on either side (spec.md §3 invariant (a)).
func (s Snapshot) Equal(other Snapshot) bool {
	if s.size != UnknownSize && other.size != UnknownSize && s.size != other.size {
		return false
	}
	if s.key.valid && other.key.valid && !s.key.Equal(other.key) {
		return false
	}
	return s.lastModified.Equal(other.lastModified)
}

// IsModified re-stats path and reports whether it has changed since s
// was taken, applying the racy-clean rule of spec.md §4.1: when the
// mtime matches but the observation happened within 1.1x the timer
// resolution of the modification, the file is reported modified (and
// the caller should rescan) even though nothing may actually have
// changed, because the filesystem's timer cannot prove otherwise.
//
// IsModified never mutates s; callers that want the "latch
// cannotBeRacily-clean" behavior across repeated calls should keep
// reusing the Snapshot returned by SetClean.
func (s Snapshot) IsModified(fs billy.Filesystem, path string) bool {
	fi, err := fs.Stat(path)
	if err != nil {
		return true
	}
	return s.isModified(fi.ModTime(), fi.Size(), fileKeyOf(fi))
}

// IsModifiedOS is IsModified for plain OS paths.
func (s Snapshot) IsModifiedOS(path string) bool {
	fi, err := os.Stat(path)
	if err != nil {
		return true
	}
	return s.isModified(fi.ModTime(), fi.Size(), fileKeyOf(fi))
}

func (s Snapshot) isModified(modTime time.Time, size int64, key FileKey) bool {
	if s.size != UnknownSize && size != UnknownSize && s.size != size {
		return true
	}
	if s.key.valid && key.valid && !s.key.Equal(key) {
		return true
	}
	if !s.lastModified.Equal(modTime) {
		return true
	}

	if s.cannotBeRacy {
		return false
	}

	resolution := s.resolution
	if resolution <= 0 {
		resolution = DefaultResolution
	}
	window := time.Duration(float64(resolution) * 1.1)
	if s.lastRead.Sub(s.lastModified) <= window {
		// Racy window: force the caller to re-check next time too.
		return true
	}

	return false
}

// SetClean latches that this Snapshot is no longer within the racy
// window, given a fresh observation `fresh` taken by the caller. It
// returns an updated Snapshot that will answer IsModified from the
// cache instead of re-deriving raciness on every call.
func (s Snapshot) SetClean(fresh Snapshot) Snapshot {
	fresh.cannotBeRacy = true
	return fresh
}

// WaitUntilNotRacy blocks until the snapshot can no longer be racily
// clean, or ctx is cancelled. This is the only sleep in gitstore
// (spec.md §9 "Racy-clean sleep"): bounded by the snapshot's
// resolution with a 10% safety margin, never unbounded.
func (s Snapshot) WaitUntilNotRacy(ctx context.Context) error {
	resolution := s.resolution
	if resolution <= 0 {
		resolution = DefaultResolution
	}
	window := time.Duration(float64(resolution) * 1.1)
	deadline := s.lastModified.Add(window)
	d := time.Until(deadline)
	if d <= 0 {
		return nil
	}

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
