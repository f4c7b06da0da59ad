package blob_test

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"filedepot/internal/blob"
	"filedepot/internal/core"
)

func TestMemoryStore(t *testing.T) {
	t.Run("round-trips content", func(t *testing.T) {
		s := blob.NewMemoryStore()

		if err := s.Put("code-1", strings.NewReader("hello"), 5); err != nil {
			t.Fatalf("Put() error = %v", err)
		}

		var buf bytes.Buffer
		if err := s.Get("code-1", &buf); err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if buf.String() != "hello" {
			t.Errorf("Get() = %q, want %q", buf.String(), "hello")
		}
	})

	t.Run("rejects size mismatch", func(t *testing.T) {
		s := blob.NewMemoryStore()

		if err := s.Put("code-1", strings.NewReader("hello"), 3); err == nil {
			t.Fatal("Put() accepted a size mismatch")
		}
		if s.Len() != 0 {
			t.Errorf("Len() = %d after failed put, want 0", s.Len())
		}
	})

	t.Run("missing blob", func(t *testing.T) {
		s := blob.NewMemoryStore()

		if _, err := s.ReadAll("missing"); !errors.Is(err, core.ErrNotFound) {
			t.Errorf("ReadAll() error = %v, want ErrNotFound", err)
		}
		if err := s.Remove("missing"); !errors.Is(err, core.ErrNotFound) {
			t.Errorf("Remove() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("sweep keeps only live codes", func(t *testing.T) {
		s := blob.NewMemoryStore()

		s.Put("live", strings.NewReader("x"), 1)
		s.Put("orphan-a", strings.NewReader("y"), 1)
		s.Put("orphan-b", strings.NewReader("z"), 1)

		removed, err := s.SweepOrphans([]string{"live"})
		if err != nil {
			t.Fatalf("SweepOrphans() error = %v", err)
		}
		if removed != 2 || s.Len() != 1 {
			t.Errorf("removed = %d, Len() = %d; want 2 removed, 1 left", removed, s.Len())
		}
	})
}
