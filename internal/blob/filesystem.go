package blob

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"filedepot/internal/core"
)

// FileSystemStore keeps one opaque file per file-kind item in a single
// flat directory, named exactly by the item's code, with no extension
// and no nesting.
type FileSystemStore struct {
	root string
}

// NewFileSystemStore creates a blob store rooted at the given directory,
// creating it if needed.
func NewFileSystemStore(root string) (*FileSystemStore, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create blob directory: %w", err)
	}
	return &FileSystemStore{root: root}, nil
}

// Root returns the blob directory path.
func (s *FileSystemStore) Root() string { return s.root }

// Put stores size bytes from r under code using an atomic write
// (temp file + rename). A size mismatch is an error.
func (s *FileSystemStore) Put(code string, r io.Reader, size int64) error {
	destPath := filepath.Join(s.root, code)

	tmpFile, err := os.CreateTemp(s.root, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	// Clean up temp file on failure
	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	written, err := io.Copy(tmpFile, r)
	if err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if written != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, written)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}

// Get streams the blob for code into w.
func (s *FileSystemStore) Get(code string, w io.Writer) error {
	f, err := os.Open(filepath.Join(s.root, code))
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("blob %s: %w", code, core.ErrNotFound)
		}
		return fmt.Errorf("failed to open blob: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("failed to read blob: %w", err)
	}
	return nil
}

// ReadAll returns the full blob for code.
func (s *FileSystemStore) ReadAll(code string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(s.root, code))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("blob %s: %w", code, core.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to read blob: %w", err)
	}
	return data, nil
}

// Remove deletes the blob for code.
func (s *FileSystemStore) Remove(code string) error {
	if err := os.Remove(filepath.Join(s.root, code)); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("blob %s: %w", code, core.ErrNotFound)
		}
		return fmt.Errorf("failed to remove blob: %w", err)
	}
	return nil
}

// SweepOrphans removes blobs whose code is not in live and returns how
// many were deleted. Leftover temp files are swept too.
func (s *FileSystemStore) SweepOrphans(live []string) (int, error) {
	keep := make(map[string]struct{}, len(live))
	for _, code := range live {
		keep[code] = struct{}{}
	}

	entries, err := os.ReadDir(s.root)
	if err != nil {
		return 0, fmt.Errorf("failed to list blob directory: %w", err)
	}

	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if _, ok := keep[name]; ok && !strings.HasPrefix(name, ".tmp-") {
			continue
		}
		if err := os.Remove(filepath.Join(s.root, name)); err != nil {
			return removed, fmt.Errorf("failed to remove orphan %s: %w", name, err)
		}
		removed++
	}
	return removed, nil
}

// ValidateSetup verifies that the blob directory is accessible.
func (s *FileSystemStore) ValidateSetup() error {
	info, err := os.Stat(s.root)
	if err != nil {
		return fmt.Errorf("blob root not accessible: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("blob root is not a directory: %s", s.root)
	}
	return nil
}

// Compile-time check that FileSystemStore implements core.BlobStore.
var _ core.BlobStore = (*FileSystemStore)(nil)
