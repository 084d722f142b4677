package commitgraph

import "bytes"

// chunkType identifies one section of a commit-graph file by its
// 4-byte signature, grounded on plumbing/format/commitgraph/v2's
// ChunkType in the teacher. Only the chunks spec.md §4.6 names are
// implemented: fanout, oid lookup, commit data, and the extra-edge
// list for octopus merges. Bloom-filter and generation-data-v2
// chunks are never emitted or consulted — gitstore's generation
// number is git's original (v1) definition, matching spec.md's
// "generation = 1 + max(parent.generation)" exactly.
type chunkType int

const (
	chunkOIDFanout chunkType = iota
	chunkOIDLookup
	chunkCommitData
	chunkExtraEdgeList
	chunkUnknown
)

var chunkSignatures = [][4]byte{
	chunkOIDFanout:     {'O', 'I', 'D', 'F'},
	chunkOIDLookup:     {'O', 'I', 'D', 'L'},
	chunkCommitData:    {'C', 'D', 'A', 'T'},
	chunkExtraEdgeList: {'E', 'D', 'G', 'E'},
}

func chunkTypeFromBytes(b []byte) (chunkType, bool) {
	for t, sig := range chunkSignatures {
		if bytes.Equal(sig[:], b) {
			return chunkType(t), true
		}
	}
	return chunkUnknown, false
}
