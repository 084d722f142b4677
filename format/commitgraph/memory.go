package commitgraph

import (
	"sort"
	"time"

	"github.com/go-git/gitstore"
)

// node is one commit collected by a Writer before the graph is
// finalized into id order.
type node struct {
	id      gitstore.ObjectID
	tree    gitstore.ObjectID
	parents []gitstore.ObjectID
	gen     uint64
	when    time.Time
}

// Writer accumulates commits and computes their generation numbers,
// then emits them through Encoder.Encode.
type Writer struct {
	nodes map[gitstore.ObjectID]*node
	order []gitstore.ObjectID
}

// Add records one commit. Parents must themselves have been added
// (or be resolved externally; see ComputeGenerations) before
// generation numbers can be computed.
func (w *Writer) Add(id, tree gitstore.ObjectID, parents []gitstore.ObjectID, when time.Time) {
	if w.nodes == nil {
		w.nodes = make(map[gitstore.ObjectID]*node)
	}
	if _, exists := w.nodes[id]; !exists {
		w.order = append(w.order, id)
	}
	w.nodes[id] = &node{id: id, tree: tree, parents: parents, when: when}
}

// ComputeGenerations assigns generation = 1 at roots and
// 1+max(parent.generation) otherwise (spec.md §3), walking in
// insertion order which callers are expected to supply bottom-up
// (parents added before children, as a topological commit walk
// would produce).
func (w *Writer) ComputeGenerations() {
	for _, id := range w.order {
		n := w.nodes[id]
		var maxParent uint64
		for _, p := range n.parents {
			if pn, ok := w.nodes[p]; ok && pn.gen > maxParent {
				maxParent = pn.gen
			}
		}
		n.gen = maxParent + 1
	}
}

// Build sorts the accumulated commits by id and resolves parent
// object ids into graph positions, ready for Encoder.Encode.
func (w *Writer) Build() *MemoryIndex {
	ids := make([]gitstore.ObjectID, len(w.order))
	copy(ids, w.order)
	sort.Slice(ids, func(i, j int) bool { return ids[i].Compare(ids[j]) < 0 })

	pos := make(map[gitstore.ObjectID]uint32, len(ids))
	for i, id := range ids {
		pos[id] = uint32(i)
	}

	data := make([]CommitData, len(ids))
	for i, id := range ids {
		n := w.nodes[id]
		parentIdx := make([]uint32, len(n.parents))
		for j, p := range n.parents {
			parentIdx[j] = pos[p]
		}
		data[i] = CommitData{
			TreeID:        n.tree,
			ParentIndexes: parentIdx,
			Generation:    n.gen,
			When:          n.when,
		}
	}

	return &MemoryIndex{ids: ids, data: data}
}

// MemoryIndex is a fully-resolved, in-memory commit graph, used both
// as Encoder's input and as a dependency-free Index implementation
// for tests and small repositories.
type MemoryIndex struct {
	ids  []gitstore.ObjectID
	data []CommitData
}

var _ Index = (*MemoryIndex)(nil)

func (m *MemoryIndex) Close() error { return nil }

func (m *MemoryIndex) Len() uint32 { return uint32(len(m.ids)) }

func (m *MemoryIndex) IndexOf(id gitstore.ObjectID) (uint32, error) {
	lo, hi := 0, len(m.ids)
	for lo < hi {
		mid := (lo + hi) / 2
		switch {
		case m.ids[mid] == id:
			return uint32(mid), nil
		case m.ids[mid].Compare(id) < 0:
			lo = mid + 1
		default:
			hi = mid
		}
	}
	return 0, gitstore.ErrObjectNotFound
}

func (m *MemoryIndex) IDAt(i uint32) (gitstore.ObjectID, error) {
	if int(i) >= len(m.ids) {
		return gitstore.ZeroID, gitstore.ErrObjectNotFound
	}
	return m.ids[i], nil
}

func (m *MemoryIndex) CommitDataAt(i uint32) (*CommitData, error) {
	if int(i) >= len(m.data) {
		return nil, gitstore.ErrObjectNotFound
	}
	d := m.data[i]
	return &d, nil
}
