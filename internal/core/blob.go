package core

import "io"

// BlobStore holds one opaque blob per file-kind item, keyed by the item's
// code. Writes are atomic from the reader's point of view.
type BlobStore interface {
	// Put stores size bytes from r under code. Size mismatches are errors.
	Put(code string, r io.Reader, size int64) error

	// Get streams the blob for code into w, returning ErrNotFound when
	// the blob does not exist.
	Get(code string, w io.Writer) error

	// ReadAll returns the full blob for code.
	ReadAll(code string) ([]byte, error)

	// Remove deletes the blob for code, returning ErrNotFound when the
	// blob does not exist.
	Remove(code string) error

	// SweepOrphans removes blobs whose code is not in live and returns
	// how many were deleted. Recovers from crashes that left a blob
	// behind after its transaction rolled back.
	SweepOrphans(live []string) (int, error)
}
