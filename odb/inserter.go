package odb

import (
	"fmt"

	"github.com/go-git/gitstore"
	"github.com/go-git/gitstore/format/idxfile"
	"github.com/go-git/gitstore/format/packfile"
	"github.com/go-git/gitstore/format/revindex"
	"github.com/go-git/gitstore/format/sizeindex"
)

// ObjectInserter is the write side of a Directory: loose objects go
// straight through LooseStore.Insert; a batch destined for a pack is
// staged on a PackWriter instead (spec.md §4.8).
type ObjectInserter struct {
	dir *Directory
}

// NewObjectInserter returns an ObjectInserter writing into dir.
func NewObjectInserter(dir *Directory) *ObjectInserter {
	return &ObjectInserter{dir: dir}
}

// InsertLoose stores kind/content as a loose object and returns its id.
func (w *ObjectInserter) InsertLoose(kind gitstore.Kind, content []byte) (gitstore.ObjectID, error) {
	return w.dir.Loose().Insert(kind, content)
}

// NewPackWriter starts a new pack-writing session.
func (w *ObjectInserter) NewPackWriter() *PackWriter {
	return &PackWriter{dir: w.dir}
}

// PackWriter streams a batch of objects into a new pack, emitting
// .pack, .idx, .rev and (when configured) .size side by side, all
// sharing the pack's trailing SHA-1 as filename (spec.md §4.8
// "Pack writing").
type PackWriter struct {
	dir  *Directory
	objs []gitstore.Object
}

// Add stages obj for the next Write call.
func (w *PackWriter) Add(obj gitstore.Object) {
	w.objs = append(w.objs, obj)
}

// Write encodes every staged object into a new pack and its sibling
// index files, and registers the pack with the directory so
// subsequent Has/Open calls see it immediately.
func (w *PackWriter) Write() (gitstore.PackFile, error) {
	d := w.dir
	packDir := d.packDirPath()
	if err := d.fs.MkdirAll(packDir, 0o755); err != nil {
		return gitstore.PackFile{}, fmt.Errorf("odb: mkdir %s: %w", packDir, err)
	}

	tmpPack, err := d.fs.TempFile(packDir, "tmp_pack_")
	if err != nil {
		return gitstore.PackFile{}, err
	}
	tmpPackName := tmpPack.Name()

	enc := packfile.NewEncoder(tmpPack)
	entries, checksum, err := enc.EncodeWithEntries(w.objs)
	if cerr := tmpPack.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		d.fs.Remove(tmpPackName)
		return gitstore.PackFile{}, err
	}

	iw := &idxfile.Writer{}
	for _, e := range entries {
		iw.Add(e.ID, e.Offset, e.CRC32)
	}
	iw.SetChecksum(checksum)
	idx, err := iw.Index()
	if err != nil {
		d.fs.Remove(tmpPackName)
		return gitstore.PackFile{}, err
	}

	base := d.fs.Join(packDir, "pack-"+checksum.String())
	desc := gitstore.PackFile{ID: checksum, Extensions: map[gitstore.PackExt]bool{}}

	if err := d.fs.Rename(tmpPackName, base+".pack"); err != nil {
		d.fs.Remove(tmpPackName)
		return gitstore.PackFile{}, err
	}
	desc.Extensions[gitstore.PackExtPack] = true

	if err := w.writeIdx(base, idx); err != nil {
		return gitstore.PackFile{}, err
	}
	desc.Extensions[gitstore.PackExtIndex] = true

	revIdx, err := revindex.BuildFromIndex(idx)
	if err == nil {
		if err := w.writeRev(base, revIdx, idx); err == nil {
			desc.Extensions[gitstore.PackExtReverseIndex] = true
		}
	}

	if d.cfg.MinBytesForObjectSizeIndex >= 0 {
		if ok, err := w.writeSizeIndex(base, idx); err == nil && ok {
			desc.Extensions[gitstore.PackExtObjectSizeIndex] = true
		}
	}

	if err := d.rescanPacks(); err != nil {
		return desc, err
	}
	return desc, nil
}

func (w *PackWriter) writeIdx(base string, idx *idxfile.MemoryIndex) error {
	d := w.dir
	tmp, err := d.fs.TempFile(d.packDirPath(), "tmp_idx_")
	if err != nil {
		return err
	}
	name := tmp.Name()

	enc := idxfile.NewEncoder(tmp)
	_, err = enc.Encode(idx)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		d.fs.Remove(name)
		return err
	}
	return d.fs.Rename(name, base+".idx")
}

func (w *PackWriter) writeRev(base string, rev *revindex.MemoryIndex, idx idxfile.Index) error {
	d := w.dir
	tmp, err := d.fs.TempFile(d.packDirPath(), "tmp_rev_")
	if err != nil {
		return err
	}
	name := tmp.Name()

	enc := revindex.NewEncoder(tmp)
	_, err = enc.Encode(rev, idx)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		d.fs.Remove(name)
		return err
	}
	return d.fs.Rename(name, base+".rev")
}

// writeSizeIndex materializes sizes for every staged object at or
// above the configured threshold, keyed by its idx-position (spec.md
// §4.4), and reports whether anything was written.
func (w *PackWriter) writeSizeIndex(base string, idx *idxfile.MemoryIndex) (bool, error) {
	d := w.dir
	threshold := d.cfg.MinBytesForObjectSizeIndex

	sizeByID := make(map[gitstore.ObjectID]int64, len(w.objs))
	for _, obj := range w.objs {
		sizeByID[obj.ID()] = obj.Size()
	}

	it, err := idx.Entries()
	if err != nil {
		return false, err
	}
	defer it.Close()

	sw := &sizeindex.Writer{}
	var pos uint32
	for {
		e, err := it.Next()
		if err != nil {
			break
		}
		if size, ok := sizeByID[e.ID]; ok && size >= threshold {
			sw.Add(pos, size)
		}
		pos++
	}
	if sw.Len() == 0 {
		return false, nil
	}

	sidx, err := sw.Index()
	if err != nil {
		return false, err
	}

	tmp, err := d.fs.TempFile(d.packDirPath(), "tmp_size_")
	if err != nil {
		return false, err
	}
	name := tmp.Name()

	enc := sizeindex.NewEncoder(tmp)
	_, err = enc.Encode(sidx)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		d.fs.Remove(name)
		return false, err
	}
	if err := d.fs.Rename(name, base+".size"); err != nil {
		return false, err
	}
	return true, nil
}
