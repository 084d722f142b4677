package odb

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/gitstore"
	"github.com/go-git/gitstore/format/objfile"
)

// LooseStore is the fanout-directory loose-object store:
// objects/xx/yyyy…yy (spec.md §4.7 "Loose layout"), grounded on
// dotgit.ObjectWriter's temp-file-then-rename insertion and
// storage/filesystem/object.go's RawObjectWriter/EncodedObject read
// path.
type LooseStore struct {
	fs    billy.Filesystem
	root  string
	trust TrustLooseObjectStat

	// hintMu/unpacked is the "unpacked-object hint cache" spec.md
	// §4.7 describes: oids this store has positively located before,
	// evicted on a stale-handle race so the next read re-stats
	// instead of trusting a cached "exists" answer.
	hintMu   sync.Mutex
	unpacked map[gitstore.ObjectID]bool
}

// NewLooseStore returns a LooseStore rooted at root (e.g. "objects")
// within fs.
func NewLooseStore(fs billy.Filesystem, root string, trust TrustLooseObjectStat) *LooseStore {
	return &LooseStore{fs: fs, root: root, trust: trust, unpacked: make(map[gitstore.ObjectID]bool)}
}

func (s *LooseStore) pathOf(id gitstore.ObjectID) string {
	hex := id.String()
	return s.fs.Join(s.root, hex[:2], hex[2:])
}

// Has reports whether id's loose object file is present, honoring
// TrustLooseObjectStat. A prior successful Open/Insert for id short
// circuits the stat entirely under TrustAfterOpen.
func (s *LooseStore) Has(id gitstore.ObjectID) bool {
	if s.trust == TrustAfterOpen {
		s.hintMu.Lock()
		known := s.unpacked[id]
		s.hintMu.Unlock()
		if known {
			return true
		}
	}

	if s.trust == TrustNever {
		f, err := s.fs.Open(s.pathOf(id))
		if err != nil {
			return false
		}
		f.Close()
		return true
	}

	_, err := s.fs.Stat(s.pathOf(id))
	return err == nil
}

// isStaleHandle reports whether err looks like an NFS-style stale
// file handle rather than a genuine absence (spec.md §4.7
// "Stale-handle tolerance").
func isStaleHandle(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "stale")
}

// Open returns id's content, or (nil, nil) if the object is not
// present — NotFound is a value, not an error, on this path (spec.md
// §7). Other I/O errors propagate.
func (s *LooseStore) Open(id gitstore.ObjectID) (*gitstore.MemoryObject, error) {
	path := s.pathOf(id)

	if s.trust == TrustAlways {
		if _, err := s.fs.Stat(path); err != nil {
			if os.IsNotExist(err) {
				return nil, nil
			}
			return nil, fmt.Errorf("odb: stat %s: %w", path, err)
		}
	}

	f, err := s.fs.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		if isStaleHandle(err) && s.trust != TrustNever {
			s.hintMu.Lock()
			delete(s.unpacked, id)
			s.hintMu.Unlock()
			return nil, nil
		}
		return nil, fmt.Errorf("odb: open %s: %w", path, err)
	}
	defer f.Close()

	r, err := objfile.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("odb: %w: %v", gitstore.ErrCorruptObject, err)
	}
	defer r.Close()

	kind, _, err := r.Header()
	if err != nil {
		return nil, fmt.Errorf("odb: %w: %v", gitstore.ErrCorruptObject, err)
	}

	content, err := io.ReadAll(r)
	if err != nil {
		if isStaleHandle(err) && s.trust != TrustNever {
			s.hintMu.Lock()
			delete(s.unpacked, id)
			s.hintMu.Unlock()
			return nil, nil
		}
		return nil, fmt.Errorf("odb: read %s: %w", path, err)
	}

	if got := r.Hash(); got != id {
		return nil, fmt.Errorf("odb: %w: %s read back as %s", gitstore.ErrCorruptObject, id, got)
	}

	s.hintMu.Lock()
	s.unpacked[id] = true
	s.hintMu.Unlock()

	return gitstore.NewMemoryObject(kind, content), nil
}

// Insert writes kind/body as a loose object via temp-file-then-rename
// and returns its ObjectID, a no-op if the object is already present
// (spec.md §4.8 "Loose insertion").
func (s *LooseStore) Insert(kind gitstore.Kind, body []byte) (gitstore.ObjectID, error) {
	id := gitstore.NewObjectID(kind, body)
	path := s.pathOf(id)

	if s.Has(id) {
		return id, nil
	}

	tmp, err := s.fs.TempFile(s.root, "tmp_obj_")
	if err != nil {
		return gitstore.ZeroID, fmt.Errorf("odb: create temp object: %w", err)
	}
	tmpName := tmp.Name()

	w := objfile.NewWriter(tmp)
	if err := w.WriteHeader(kind, int64(len(body))); err != nil {
		tmp.Close()
		s.fs.Remove(tmpName)
		return gitstore.ZeroID, err
	}
	if _, err := w.Write(body); err != nil {
		tmp.Close()
		s.fs.Remove(tmpName)
		return gitstore.ZeroID, err
	}
	if err := w.Close(); err != nil {
		tmp.Close()
		s.fs.Remove(tmpName)
		return gitstore.ZeroID, err
	}
	if err := tmp.Close(); err != nil {
		s.fs.Remove(tmpName)
		return gitstore.ZeroID, err
	}

	if err := s.fs.Rename(tmpName, path); err != nil {
		fanout := s.fs.Join(s.root, id.String()[:2])
		if mkErr := s.fs.MkdirAll(fanout, 0o755); mkErr != nil {
			s.fs.Remove(tmpName)
			return gitstore.ZeroID, fmt.Errorf("odb: mkdir %s: %w", fanout, mkErr)
		}
		if err := s.fs.Rename(tmpName, path); err != nil {
			s.fs.Remove(tmpName)
			return gitstore.ZeroID, fmt.Errorf("odb: rename into place: %w", err)
		}
	}

	s.hintMu.Lock()
	s.unpacked[id] = true
	s.hintMu.Unlock()
	return id, nil
}

// IDs enumerates every loose object present by scanning the fanout
// directories (used by Directory.OpenByPrefix).
func (s *LooseStore) IDs() ([]gitstore.ObjectID, error) {
	entries, err := s.fs.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var ids []gitstore.ObjectID
	for _, e := range entries {
		if !e.IsDir() || len(e.Name()) != 2 || !isHexPair(e.Name()) {
			continue
		}
		sub, err := s.fs.ReadDir(s.fs.Join(s.root, e.Name()))
		if err != nil {
			return nil, err
		}
		for _, f := range sub {
			id, err := gitstore.FromHex(e.Name() + f.Name())
			if err != nil {
				continue
			}
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func isHexPair(s string) bool {
	for _, b := range []byte(s) {
		if (b >= '0' && b <= '9') || (b >= 'a' && b <= 'f') {
			continue
		}
		return false
	}
	return true
}
