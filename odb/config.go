// Package odb implements the object directory: the façade that
// aggregates loose objects, packs, alternates, the shallow file and
// the commit-graph into the single has/open/insert/pack_writer API
// spec.md §6 describes, plus the freshness/rescan policy that keeps
// that view correct while another process repacks concurrently
// (spec.md §4.7, §4.8, §4.9). Grounded on
// storage/filesystem/object.go's ObjectStorage and
// storage/filesystem/dotgit's pack/loose layout conventions in the
// teacher; storage/filesystem/dotgit/dotgit.go itself (the current
// DotGit type) did not survive distillation into the retrieval pack,
// so the directory-scan and loose-path conventions below are
// reconstructed from ObjectStorage's call patterns
// (dir.ObjectPacks/dir.ObjectPackIdx/dir.NewObject) rather than ported
// line for line; see DESIGN.md.
package odb

// TrustLooseObjectStat governs how LooseStore treats a stat() result
// before trusting it (spec.md §4.7 "Read contract").
type TrustLooseObjectStat int8

const (
	// TrustAlways: if stat says the file is absent, return "not
	// found" without ever attempting to open it.
	TrustAlways TrustLooseObjectStat = iota
	// TrustAfterOpen: open speculatively; only an ENOENT from the
	// open itself means "not found".
	TrustAfterOpen
	// TrustNever: skip the stat entirely, always attempt to open.
	TrustNever
)

// Config carries the core.*/pack.*/gc.* keys spec.md §6 names, with
// the same defaults.
type Config struct {
	TrustFolderStat             bool
	TrustLooseObjectStat        TrustLooseObjectStat
	CommitGraph                 bool
	WriteCommitGraph            bool
	MinBytesForObjectSizeIndex  int64
	DeltaBaseCacheLimit         int64
	StreamFileThreshold         int64
	BlockSize                   int64
	BlockLimit                  int64
	ConcurrencyLevel            int
	MaxDeltaDepth               int
	VerifyCRC32OnRead           bool
}

// DefaultConfig matches the defaults tabulated in spec.md §6.
func DefaultConfig() Config {
	return Config{
		TrustFolderStat:            true,
		TrustLooseObjectStat:       TrustAfterOpen,
		CommitGraph:                false,
		WriteCommitGraph:           false,
		MinBytesForObjectSizeIndex: -1,
		BlockSize:                  64 * 1024,
		BlockLimit:                 96 * 1024 * 1024,
		ConcurrencyLevel:           32,
		MaxDeltaDepth:              50,
	}
}
