package odb

import (
	"bufio"
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/gitstore"
	"github.com/go-git/gitstore/cache"
	"github.com/go-git/gitstore/format/commitgraph"
	"github.com/go-git/gitstore/format/idxfile"
	"github.com/go-git/gitstore/format/packfile"
	"github.com/go-git/gitstore/format/revindex"
	"github.com/go-git/gitstore/format/sizeindex"
	"github.com/go-git/gitstore/internal/trace"
	"github.com/go-git/gitstore/snapshot"
)

// dotSuffixToExt mirrors gitstore.PackExt.suffix()'s private table so
// the directory scan can classify files named "pack-<40hex><suffix>"
// without the gitstore package exporting it.
var dotSuffixToExt = map[string]gitstore.PackExt{
	".pack":   gitstore.PackExtPack,
	".idx":    gitstore.PackExtIndex,
	".rev":    gitstore.PackExtReverseIndex,
	".bitmap": gitstore.PackExtBitmapIndex,
	".keep":   gitstore.PackExtKeep,
	".size":   gitstore.PackExtObjectSizeIndex,
}

// openPack is a lazily-populated handle on one on-disk pack: its
// index, reverse index and packfile reader, plus a FileSnapshot of its
// .idx recorded when the pack is opened (spec.md §4.9). No lookup
// compares that snapshot against the file on disk.
type openPack struct {
	mu   sync.Mutex
	desc gitstore.PackFile

	file    billy.File
	idx     idxfile.Index
	rev     revindex.Index
	pack    *packfile.Pack
	idxSnap snapshot.Snapshot

	// size is the pack's decoded object-size index, nil when the pack
	// carries no .size file or it failed to decode — either way
	// IsNotLargerThan falls back to opening the object (spec.md §4.4).
	size *sizeindex.MemoryIndex

	invalid bool
}

// Directory is the object directory façade (spec.md §4.7, component
// C10): it aggregates loose objects, packs, alternates, the shallow
// file and the commit-graph behind one has/open/open_by_prefix API,
// grounded on storage/filesystem/object.go's ObjectStorage.
type Directory struct {
	fs     billy.Filesystem
	gitDir string
	objDir string
	cfg    Config

	loose  *LooseStore
	blocks *cache.BlockCache

	mu       sync.RWMutex
	packDir  snapshot.Snapshot
	packs    map[gitstore.ObjectID]*openPack
	packList []gitstore.ObjectID // search order: pack ids by descending hex name

	altMu          sync.Mutex
	alternates     []*Directory
	httpAlternates []string

	shallowMu   sync.Mutex
	shallowSnap snapshot.Snapshot
	shallow     map[gitstore.ObjectID]bool

	graphMu   sync.Mutex
	graphSnap snapshot.Snapshot
	graph     commitgraph.Index
}

// NewDirectory opens the object directory rooted at gitDir (the
// repository's ".git"-equivalent directory; objects live at
// gitDir/objects).
func NewDirectory(fs billy.Filesystem, gitDir string, cfg Config) (*Directory, error) {
	objDir := fs.Join(gitDir, "objects")

	blocks, err := cache.NewBlockCache(cache.FileSize(cfg.BlockLimit), cfg.ConcurrencyLevel, nil)
	if err != nil {
		return nil, err
	}

	d := &Directory{
		fs:     fs,
		gitDir: gitDir,
		objDir: objDir,
		cfg:    cfg,
		loose:  NewLooseStore(fs, objDir, cfg.TrustLooseObjectStat),
		blocks: blocks,
		packs:  make(map[gitstore.ObjectID]*openPack),
	}

	if err := d.rescanPacks(); err != nil {
		return nil, err
	}
	if err := d.loadAlternates(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Directory) packDirPath() string { return d.fs.Join(d.objDir, "pack") }

// rescanPacks lists objects/pack, groups entries by 40-hex id and
// extension, and reconciles the result with the currently open pack
// set: still-present descriptors and handles are preserved, vanished
// ones are dropped (invalidating any open handle), new ones are
// added (spec.md §4.7(b)).
func (d *Directory) rescanPacks() error {
	trace.General.Printf("odb: rescanning %s", d.packDirPath())
	d.packDir = snapshot.Save(d.fs, d.packDirPath(), snapshot.DefaultResolution)

	found := make(map[gitstore.ObjectID]gitstore.PackFile)
	if err := d.scanPackDir(d.packDirPath(), false, found); err != nil {
		return err
	}
	if err := d.scanPackDir(d.fs.Join(d.packDirPath(), "preserved"), true, found); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	for id, p := range d.packs {
		desc, ok := found[id]
		if !ok {
			p.mu.Lock()
			p.invalid = true
			if p.file != nil {
				p.file.Close()
			}
			p.mu.Unlock()
			delete(d.packs, id)
			continue
		}
		p.mu.Lock()
		p.desc = desc
		p.mu.Unlock()
	}

	var ids []gitstore.ObjectID
	for id, desc := range found {
		if _, ok := d.packs[id]; !ok {
			d.packs[id] = &openPack{desc: desc}
		}
		if !desc.Preserved {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() > ids[j].String() })
	d.packList = ids
	return nil
}

// PreservedPacks lists the pack descriptors kept under pack/preserved/
// after a repack — exposed read-only for recovery tooling, never
// consulted by Has/Open and never auto-deleted (spec.md §6
// "preserved/pack-<40hex>.old-<ext>").
func (d *Directory) PreservedPacks() []gitstore.PackFile {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []gitstore.PackFile
	for _, p := range d.packs {
		if p.desc.Preserved {
			out = append(out, p.desc)
		}
	}
	return out
}

func (d *Directory) scanPackDir(dir string, preserved bool, found map[gitstore.ObjectID]gitstore.PackFile) error {
	entries, err := d.fs.ReadDir(dir)
	if err != nil {
		return nil // absent pack/ or preserved/ dir is not an error
	}

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasPrefix(name, "pack-") {
			continue
		}
		rest := strings.TrimPrefix(name, "pack-")

		var hexPart, suf string
		if preserved {
			// pack-<40hex>.old-<ext>
			idx := strings.Index(rest, ".old-")
			if idx < 0 || idx != 40 {
				continue
			}
			hexPart = rest[:idx]
			suf = "." + rest[idx+len(".old-"):]
		} else {
			if len(rest) < 41 || rest[40] != '.' {
				continue
			}
			hexPart = rest[:40]
			suf = rest[40:]
		}

		ext, ok := dotSuffixToExt[suf]
		if !ok {
			continue
		}

		id, err := gitstore.FromHex(hexPart)
		if err != nil {
			continue
		}

		desc := found[id]
		desc.ID = id
		desc.Preserved = preserved
		if desc.Extensions == nil {
			desc.Extensions = make(map[gitstore.PackExt]bool)
		}
		desc.Extensions[ext] = true
		found[id] = desc
	}
	return nil
}

func (d *Directory) loadAlternates() error {
	alts, err := d.parseAlternatesFile("alternates")
	if err != nil {
		return err
	}
	httpAlts, err := d.parseAlternatesFile("http-alternates")
	if err != nil {
		return err
	}

	d.altMu.Lock()
	defer d.altMu.Unlock()
	d.alternates = nil
	d.httpAlternates = httpAlts
	for _, path := range alts {
		abs := path
		if !strings.HasPrefix(path, "/") {
			abs = d.fs.Join(d.objDir, path)
		}
		sub, err := NewDirectory(d.fs, strings.TrimSuffix(abs, "/objects"), d.cfg)
		if err != nil {
			continue // an unreadable alternate is skipped, not fatal
		}
		d.alternates = append(d.alternates, sub)
	}
	return nil
}

// HTTPAlternates returns the URL values parsed from
// objects/info/http-alternates. These are surfaced for a transport
// layer to dereference; Directory itself never fetches over the
// network.
func (d *Directory) HTTPAlternates() []string {
	d.altMu.Lock()
	defer d.altMu.Unlock()
	return append([]string(nil), d.httpAlternates...)
}

func (d *Directory) parseAlternatesFile(name string) ([]string, error) {
	f, err := d.fs.Open(d.fs.Join(d.objDir, "info", name))
	if err != nil {
		return nil, nil
	}
	defer f.Close()

	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out, sc.Err()
}

// needsRescan reports whether the pack directory has to be rescanned
// before treating a lookup as a genuine miss (spec.md §4.9).
func (d *Directory) needsRescan() bool {
	if !d.cfg.TrustFolderStat {
		return true
	}
	return d.packDir.IsModified(d.fs, d.packDirPath())
}

func (d *Directory) openPackList() []*openPack {
	d.mu.RLock()
	defer d.mu.RUnlock()
	list := make([]*openPack, 0, len(d.packList))
	for _, id := range d.packList {
		list = append(list, d.packs[id])
	}
	return list
}

func (d *Directory) ensureOpen(p *openPack) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pack != nil && !p.invalid {
		return nil
	}
	if p.invalid {
		return fmt.Errorf("odb: pack %s invalidated", p.desc.ID)
	}
	if !p.desc.Has(gitstore.PackExtIndex) {
		return fmt.Errorf("odb: pack %s has no .idx", p.desc.ID)
	}

	base := d.packBasePath(p.desc)
	idxPath := base + ".idx"
	trace.Pack.Printf("odb: opening pack %s", p.desc.ID)

	idxFile, err := d.fs.Open(idxPath)
	if err != nil {
		return err
	}
	defer idxFile.Close()
	idx, err := idxfile.NewDecoder(idxFile).Decode()
	if err != nil {
		return fmt.Errorf("odb: %w: %v", gitstore.ErrCorruptIndex, err)
	}

	var rev revindex.Index
	if p.desc.Has(gitstore.PackExtReverseIndex) {
		revFile, err := d.fs.Open(base + ".rev")
		if err == nil {
			rev, err = revindex.NewDecoder(revFile, idx).Decode()
			revFile.Close()
			if err != nil {
				rev = nil
			}
		}
	}
	if rev == nil {
		if built, err := revindex.BuildFromIndex(idx); err == nil {
			rev = built
		}
	}

	pf, err := d.fs.Open(base + ".pack")
	if err != nil {
		return err
	}
	fi, err := d.fs.Stat(base + ".pack")
	if err != nil {
		pf.Close()
		return err
	}

	ra := &cachedReaderAt{
		file:   pf,
		blocks: d.blocks,
		ext:    gitstore.PackExtPack,
		stream: cache.StreamKey(p.desc.ID.String()),
	}

	pack, err := packfile.Open(ra, fi.Size(), idx, rev)
	if err != nil {
		pf.Close()
		return err
	}
	pack.SetMaxDeltaDepth(d.cfg.MaxDeltaDepth)

	var sizeIdx *sizeindex.MemoryIndex
	if p.desc.Has(gitstore.PackExtObjectSizeIndex) {
		if sf, err := d.fs.Open(base + ".size"); err == nil {
			sizeIdx, err = sizeindex.NewDecoder(sf).Decode()
			sf.Close()
			if err != nil {
				sizeIdx = nil // corrupt .size degrades to "not indexed", not an error
			}
		}
	}

	p.file = pf
	p.idx = idx
	p.rev = rev
	p.pack = pack
	p.size = sizeIdx
	p.idxSnap = snapshot.Save(d.fs, idxPath, snapshot.DefaultResolution)
	p.invalid = false
	return nil
}

func (d *Directory) packBasePath(desc gitstore.PackFile) string {
	dir := d.packDirPath()
	name := "pack-" + desc.ID.String()
	if desc.Preserved {
		dir = d.fs.Join(dir, "preserved")
	}
	return d.fs.Join(dir, name)
}

// Has reports whether id is present anywhere in this directory or an
// alternate (spec.md §4.7(c): packs, then loose, then alternates).
func (d *Directory) Has(ctx context.Context, id gitstore.ObjectID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, gitstore.ErrCancelled
	}

	ok, err := d.hasOnce(id)
	if err != nil {
		return false, err
	}
	if ok {
		return true, nil
	}

	if d.needsRescan() {
		if err := d.rescanPacks(); err != nil {
			return false, err
		}
		ok, err = d.hasOnce(id)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}

	d.altMu.Lock()
	alts := append([]*Directory(nil), d.alternates...)
	d.altMu.Unlock()
	for _, alt := range alts {
		ok, err := alt.Has(ctx, id)
		if err == nil && ok {
			return true, nil
		}
	}
	return false, nil
}

func (d *Directory) hasOnce(id gitstore.ObjectID) (bool, error) {
	for _, p := range d.openPackList() {
		if !p.desc.Has(gitstore.PackExtIndex) {
			continue
		}
		if err := d.ensureOpen(p); err != nil {
			continue
		}
		if _, err := p.idx.FindOffset(id); err == nil {
			return true, nil
		}
	}
	return d.loose.Has(id), nil
}

// Open returns id's object, or (nil, nil) if it is not found anywhere
// (spec.md §4.7(d)). The search order matches Has: packs, loose,
// alternates.
func (d *Directory) Open(ctx context.Context, id gitstore.ObjectID) (*gitstore.MemoryObject, error) {
	if err := ctx.Err(); err != nil {
		return nil, gitstore.ErrCancelled
	}

	obj, err := d.openOnce(id)
	if err != nil {
		return nil, err
	}
	if obj != nil {
		return obj, nil
	}

	if d.needsRescan() {
		if err := d.rescanPacks(); err != nil {
			return nil, err
		}
		obj, err = d.openOnce(id)
		if err != nil {
			return nil, err
		}
		if obj != nil {
			return obj, nil
		}
	}

	d.altMu.Lock()
	alts := append([]*Directory(nil), d.alternates...)
	d.altMu.Unlock()
	for _, alt := range alts {
		obj, err := alt.Open(ctx, id)
		if err == nil && obj != nil {
			return obj, nil
		}
	}
	return nil, nil
}

func (d *Directory) openOnce(id gitstore.ObjectID) (*gitstore.MemoryObject, error) {
	for _, p := range d.openPackList() {
		if !p.desc.Has(gitstore.PackExtIndex) {
			continue
		}
		if err := d.ensureOpen(p); err != nil {
			continue
		}
		offset, err := p.idx.FindOffset(id)
		if err != nil {
			continue
		}

		obj, err := p.pack.Load(offset)
		if err != nil {
			return nil, err
		}
		if d.cfg.VerifyCRC32OnRead && p.rev != nil {
			if err := p.pack.VerifyObjectCRC32(offset, id); err != nil {
				return nil, err
			}
		}
		return obj, nil
	}

	return d.loose.Open(id)
}

// OpenByPrefix resolves an abbreviated id across every open pack and
// the loose store, returning ErrObjectNotFound for none, the single
// match for unique, or a wrapped ambiguity error for more than one
// (spec.md §6 open_by_prefix).
func (d *Directory) OpenByPrefix(ctx context.Context, prefix gitstore.AbbrevID) (gitstore.ObjectID, error) {
	if err := ctx.Err(); err != nil {
		return gitstore.ZeroID, gitstore.ErrCancelled
	}
	if !prefix.Valid() {
		return gitstore.ZeroID, fmt.Errorf("odb: invalid abbreviation length %d", len(prefix))
	}

	seen := make(map[gitstore.ObjectID]bool)
	for _, p := range d.openPackList() {
		if err := d.ensureOpen(p); err != nil {
			continue
		}
		entries, err := p.idx.FindByPrefix(prefix)
		if err != nil {
			continue
		}
		for _, e := range entries {
			seen[e.ID] = true
		}
	}

	looseIDs, err := d.loose.IDs()
	if err == nil {
		for _, id := range looseIDs {
			if hasPrefix(id, prefix) {
				seen[id] = true
			}
		}
	}

	switch len(seen) {
	case 0:
		return gitstore.ZeroID, gitstore.ErrObjectNotFound
	case 1:
		for id := range seen {
			return id, nil
		}
	}
	return gitstore.ZeroID, fmt.Errorf("odb: ambiguous abbreviation %x matches %d objects", []byte(prefix), len(seen))
}

func hasPrefix(id gitstore.ObjectID, prefix gitstore.AbbrevID) bool {
	full := id.String()
	want := fmt.Sprintf("%x", []byte(prefix))
	return strings.HasPrefix(full, want)
}

// IsNotLargerThan reports whether id's object is known to be at most
// limit bytes. When the object sits in a pack carrying a size index
// and its idx-position is indexed, this answers straight from that
// index without inflating the object; otherwise it falls back to
// opening the object and checking Size() (spec.md §4.4).
func (d *Directory) IsNotLargerThan(ctx context.Context, id gitstore.ObjectID, limit int64) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, gitstore.ErrCancelled
	}

	if result, hit := d.sizeFromIndex(id, limit); hit {
		return result, nil
	}

	if d.needsRescan() {
		if err := d.rescanPacks(); err != nil {
			return false, err
		}
		if result, hit := d.sizeFromIndex(id, limit); hit {
			return result, nil
		}
	}

	obj, err := d.Open(ctx, id)
	if err != nil {
		return false, err
	}
	if obj == nil {
		return false, gitstore.ErrObjectNotFound
	}
	return obj.Size() <= limit, nil
}

// sizeFromIndex answers IsNotLargerThan straight from a pack's
// decoded .size file when id is indexed there. hit reports whether
// the fast path applied; when hit is false the caller must fall back
// to opening the object.
func (d *Directory) sizeFromIndex(id gitstore.ObjectID, limit int64) (result bool, hit bool) {
	for _, p := range d.openPackList() {
		if !p.desc.Has(gitstore.PackExtIndex) || !p.desc.Has(gitstore.PackExtObjectSizeIndex) {
			continue
		}
		if err := d.ensureOpen(p); err != nil {
			continue
		}
		p.mu.Lock()
		sizeIdx := p.size
		idx := p.idx
		p.mu.Unlock()
		if sizeIdx == nil || idx == nil {
			continue
		}
		pos, err := idx.FindPosition(id)
		if err != nil {
			continue // not in this pack's index, try the next one
		}
		size, ok := sizeIdx.SizeAtPosition(pos)
		if !ok {
			return false, false
		}
		return size <= limit, true
	}
	return false, false
}

// ShallowCommits parses the repository's shallow file (spec.md
// §4.7(e)): one 40-hex oid per line, '#' comments ignored, malformed
// non-comment lines rejected.
func (d *Directory) ShallowCommits() ([]gitstore.ObjectID, error) {
	path := d.fs.Join(d.gitDir, "shallow")
	snap := snapshot.Save(d.fs, path, snapshot.DefaultResolution)

	d.shallowMu.Lock()
	defer d.shallowMu.Unlock()
	if d.shallow != nil && d.shallowSnap.Equal(snap) {
		out := make([]gitstore.ObjectID, 0, len(d.shallow))
		for id := range d.shallow {
			out = append(out, id)
		}
		return out, nil
	}

	f, err := d.fs.Open(path)
	if err != nil {
		d.shallow = map[gitstore.ObjectID]bool{}
		d.shallowSnap = snap
		return nil, nil
	}
	defer f.Close()

	set := make(map[gitstore.ObjectID]bool)
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		id, err := gitstore.FromHex(line)
		if err != nil {
			return nil, gitstore.ErrCorruptShallowFile
		}
		set[id] = true
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}

	d.shallow = set
	d.shallowSnap = snap
	out := make([]gitstore.ObjectID, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out, nil
}

// CommitGraph returns the commit-graph index, or (nil, false) if
// absent or corrupt — a corrupt graph is treated as "not present",
// never as an error (spec.md §4.7(f)).
func (d *Directory) CommitGraph() (commitgraph.Index, bool) {
	if !d.cfg.CommitGraph {
		return nil, false
	}

	path := d.fs.Join(d.objDir, "info", "commit-graph")
	snap := snapshot.Save(d.fs, path, snapshot.DefaultResolution)

	d.graphMu.Lock()
	defer d.graphMu.Unlock()
	if d.graph != nil && d.graphSnap.Equal(snap) {
		return d.graph, true
	}

	f, err := d.fs.Open(path)
	if err != nil {
		d.graph = nil
		return nil, false
	}
	fi, err := d.fs.Stat(path)
	if err != nil {
		f.Close()
		return nil, false
	}

	idx, err := commitgraph.OpenFileIndex(f, fi.Size())
	if err != nil {
		f.Close()
		d.graph = nil
		return nil, false
	}

	if d.graph != nil {
		d.graph.Close()
	}
	d.graph = idx
	d.graphSnap = snap
	return idx, true
}

// Stats returns the block cache's observable counters for ext.
func (d *Directory) Stats(ext gitstore.PackExt) cache.Stats {
	return d.blocks.Stats(ext)
}

// Loose exposes the backing loose store, used by ObjectInserter.
func (d *Directory) Loose() *LooseStore { return d.loose }

// Close releases every open pack handle.
func (d *Directory) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	var firstErr error
	for _, p := range d.packs {
		p.mu.Lock()
		if p.file != nil {
			if err := p.file.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		p.mu.Unlock()
	}
	return firstErr
}
