package gitstore

import "errors"

// ErrObjectNotFound is the sentinel used by low-level lookups
// (PackIndex, PackReverseIndex, LooseStore, ...) for "absent". It is
// not part of the §7 error-kind taxonomy proper — the main read
// paths (odb.Directory.Open) translate it into a nil Object plus a
// nil error, matching spec.md §7: "NotFound is returned via an
// optional value, not an error, on the main read paths."
var ErrObjectNotFound = errors.New("gitstore: object not found")

// Error kinds the core distinguishes, per spec.md §7.
var (
	// ErrCorruptObject marks a hash mismatch, bad header, bad tree
	// entry ordering, or bad delta instruction.
	ErrCorruptObject = errors.New("gitstore: corrupt object")

	// ErrCorruptIndex marks an idx/rev/size-index/commit-graph
	// structural failure.
	ErrCorruptIndex = errors.New("gitstore: corrupt index")

	// ErrTrailerMismatch means a pack or idx final SHA-1 disagrees
	// with its computed checksum.
	ErrTrailerMismatch = errors.New("gitstore: trailer checksum mismatch")

	// ErrUnsupportedVersion marks a known-forward-incompatible file
	// version.
	ErrUnsupportedVersion = errors.New("gitstore: unsupported version")

	// ErrUnsupportedEncoding marks a known-forward-incompatible
	// encoding within an otherwise recognized file.
	ErrUnsupportedEncoding = errors.New("gitstore: unsupported encoding")

	// ErrDeltaChainTooDeep means a delta chain exceeded the
	// configured maximum depth.
	ErrDeltaChainTooDeep = errors.New("gitstore: delta chain too deep")

	// ErrDeltaCycle means a delta chain revisited an offset already
	// on its own resolution path.
	ErrDeltaCycle = errors.New("gitstore: delta cycle detected")

	// errStaleHandle names an FS-level race (NFS-style stale file
	// handle). No code path returns it: odb.LooseStore.Open absorbs a
	// stale-handle read by dropping its hint and reporting the object
	// absent.
	errStaleHandle = errors.New("gitstore: stale file handle")

	// errPackInvalidated names a pack descriptor that no longer exists
	// on disk. No code path returns it: odb.Directory drops vanished
	// packs from its list when it rescans the pack directory.
	errPackInvalidated = errors.New("gitstore: pack invalidated")

	// ErrCorruptShallowFile marks a malformed line in the shallow
	// file (spec.md §4.7(e)).
	ErrCorruptShallowFile = errors.New("gitstore: corrupt shallow file")

	// ErrCancelled is returned by odb.Directory lookups when the
	// caller-supplied context is already done as the lookup starts.
	ErrCancelled = errors.New("gitstore: operation cancelled")

	// ErrUnsupportedSizeIndex marks a size-index bucket encoding this
	// reader does not implement (spec.md §4.4: 128-bit bucket,
	// unknown position-encoding byte).
	ErrUnsupportedSizeIndex = errors.New("gitstore: unsupported object size index")
)
