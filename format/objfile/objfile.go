// Package objfile implements the loose-object on-disk format:
// zlib("<kind> <len>\0" || body), grounded on the Writer/Reader API
// shape exercised by plumbing/format/objfile's test suite in the
// teacher (reader.go/writer.go themselves did not survive
// distillation into the retrieval pack; see DESIGN.md).
package objfile

import "errors"

// ErrOverflow is returned by Writer.Write when more bytes are
// written than WriteHeader declared.
var ErrOverflow = errors.New("objfile: declared size exceeded")

// ErrNegativeSize is returned by WriteHeader for a negative size.
var ErrNegativeSize = errors.New("objfile: negative size")

// ErrMalformedHeader is returned by Reader.Header for a header that
// is missing its separating space or NUL byte, or whose type or size
// text is invalid.
var ErrMalformedHeader = errors.New("objfile: malformed header")
