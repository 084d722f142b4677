package odb

import (
	"io"

	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/gitstore"
	"github.com/go-git/gitstore/cache"
	"github.com/go-git/gitstore/internal/trace"
)

// cachedReaderAt is an io.ReaderAt over a pack file that routes every
// read through a cache.BlockCache, so random-access decode (header
// parsing, delta resolution, CRC verification) reuses whatever
// fixed-size blocks are already resident instead of re-reading the
// file (spec.md §4.6 "get_or_load" backing format/packfile.Pack).
type cachedReaderAt struct {
	file   billy.File
	blocks *cache.BlockCache
	ext    gitstore.PackExt
	stream cache.StreamKey
}

func (r *cachedReaderAt) ReadAt(p []byte, off int64) (int, error) {
	total := 0
	for total < len(p) {
		cur := off + int64(total)
		aligned := cache.AlignOffset(cur, r.blocks.BlockSize())

		block, err := r.blocks.GetOrLoad(r.ext, r.stream, cur, func(a int64) ([]byte, error) {
			return r.readRaw(a)
		})
		if err != nil {
			return total, err
		}

		within := cur - aligned
		if within >= int64(len(block)) {
			break // past EOF within this block
		}

		n := copy(p[total:], block[within:])
		total += n
		if n == 0 {
			break
		}
	}

	if total < len(p) {
		return total, io.EOF
	}
	return total, nil
}

func (r *cachedReaderAt) readRaw(alignedOffset int64) ([]byte, error) {
	trace.Cache.Printf("odb: cache miss %s@%d", r.stream, alignedOffset)
	buf := make([]byte, r.blocks.BlockSize())
	n, err := r.file.ReadAt(buf, alignedOffset)
	if err != nil && err != io.EOF {
		return nil, err
	}
	return buf[:n], nil
}
