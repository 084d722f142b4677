// Package hash provides the hash implementation used to name objects
// across gitstore. It mirrors the way go-git isolates the concrete
// hash.Hash constructor behind a small registry, so the algorithm can
// be swapped (or collision-detection enabled) without touching every
// call site.
package hash

import (
	"crypto"
	"errors"
	"fmt"
	"hash"

	"github.com/pjbgf/sha1cd"
)

// Size of a SHA-1 digest in bytes. gitstore only supports the SHA-1
// object format; SHA-256 repositories are out of scope (spec.md §3:
// "20-byte binary digest").
const Size = 20

// HexSize is the length of the hexadecimal representation of a digest.
const HexSize = Size * 2

// ErrUnsupportedHashFunction is returned by RegisterHash for any
// algorithm other than SHA-1.
var ErrUnsupportedHashFunction = errors.New("unsupported hash function")

var newHash = sha1cd.New

// Hash is an alias so callers don't need to import "hash" alongside
// this package.
type Hash interface {
	hash.Hash
}

// New returns a new Hash using the registered SHA-1 implementation.
func New() Hash {
	return newHash()
}

// RegisterHash overrides the SHA-1 implementation used by New. It
// exists so embedders can substitute a plain crypto/sha1 for speed
// when collision detection is not required.
func RegisterHash(h crypto.Hash, f func() hash.Hash) error {
	if h != crypto.SHA1 {
		return fmt.Errorf("%w: %v", ErrUnsupportedHashFunction, h)
	}
	if f == nil {
		return fmt.Errorf("cannot register hash: f is nil")
	}
	newHash = f
	return nil
}
