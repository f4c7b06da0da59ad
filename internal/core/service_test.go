package core_test

import (
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"filedepot/internal/blob"
	"filedepot/internal/core"
	"filedepot/internal/database"
	"filedepot/internal/testutil"
)

type recordingAuditor struct {
	entries []string
}

func (a *recordingAuditor) Record(principal, message string) {
	a.entries = append(a.entries, principal+": "+message)
}

type serviceFixture struct {
	svc   *core.Service
	store *database.SQLiteStore
	blobs *blob.MemoryStore
	clock *testutil.StubClock
	audit *recordingAuditor
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	store := testutil.NewTestStore(t)
	blobs := blob.NewMemoryStore()
	clock := testutil.FixedClock()
	audit := &recordingAuditor{}
	svc := core.NewService(store, blobs, nil, audit, clock, testutil.NewStubIDGenerator())
	testutil.SeedUser(t, store, "alice", false)
	return &serviceFixture{svc: svc, store: store, blobs: blobs, clock: clock, audit: audit}
}

func TestService_CreateFile(t *testing.T) {
	t.Run("stores the row and the blob together", func(t *testing.T) {
		fx := newServiceFixture(t)

		if _, err := fx.svc.CreateFolder("alice", "Docs", ""); err != nil {
			t.Fatalf("CreateFolder() error = %v", err)
		}
		id, err := fx.svc.CreateFile("alice", "a.txt", strings.NewReader("hello"), 5, "Docs")
		if err != nil {
			t.Fatalf("CreateFile() error = %v", err)
		}
		if id == 0 {
			t.Error("CreateFile() returned id 0")
		}

		item, err := fx.store.FindItemByName("a.txt")
		if err != nil {
			t.Fatalf("FindItemByName() error = %v", err)
		}
		if item == nil {
			t.Fatal("file row not committed")
		}
		parent, _ := fx.store.FindItemByName("Docs")
		if item.ParentID != parent.ID {
			t.Errorf("ParentID = %d, want %d", item.ParentID, parent.ID)
		}

		data, err := fx.svc.ReadFileBytes("a.txt")
		if err != nil {
			t.Fatalf("ReadFileBytes() error = %v", err)
		}
		if string(data) != "hello" {
			t.Errorf("content = %q, want %q", data, "hello")
		}
	})

	t.Run("empty parent resolves to root", func(t *testing.T) {
		fx := newServiceFixture(t)

		if _, err := fx.svc.CreateFile("alice", "loose.txt", strings.NewReader("x"), 1, ""); err != nil {
			t.Fatalf("CreateFile() error = %v", err)
		}
		item, _ := fx.store.FindItemByName("loose.txt")
		if item.ParentID != core.RootID {
			t.Errorf("ParentID = %d, want root %d", item.ParentID, core.RootID)
		}
	})

	t.Run("unknown parent resolves to root", func(t *testing.T) {
		fx := newServiceFixture(t)

		if _, err := fx.svc.CreateFile("alice", "stray.txt", strings.NewReader("x"), 1, "NoSuchFolder"); err != nil {
			t.Fatalf("CreateFile() error = %v", err)
		}
		item, _ := fx.store.FindItemByName("stray.txt")
		if item.ParentID != core.RootID {
			t.Errorf("ParentID = %d, want root %d", item.ParentID, core.RootID)
		}
	})

	t.Run("file cannot be a parent", func(t *testing.T) {
		fx := newServiceFixture(t)

		if _, err := fx.svc.CreateFile("alice", "a.txt", strings.NewReader("x"), 1, ""); err != nil {
			t.Fatalf("CreateFile() error = %v", err)
		}
		_, err := fx.svc.CreateFile("alice", "b.txt", strings.NewReader("x"), 1, "a.txt")
		if !errors.Is(err, core.ErrInvalidParent) {
			t.Fatalf("CreateFile() error = %v, want ErrInvalidParent", err)
		}
	})

	t.Run("rejects invalid names", func(t *testing.T) {
		fx := newServiceFixture(t)

		for _, name := range []string{"", ".", "..", "a/b.txt", "a:b"} {
			_, err := fx.svc.CreateFile("alice", name, strings.NewReader("x"), 1, "")
			if !errors.Is(err, core.ErrInvalidName) {
				t.Errorf("CreateFile(%q) error = %v, want ErrInvalidName", name, err)
			}
		}
	})

	t.Run("name is unique across parents", func(t *testing.T) {
		fx := newServiceFixture(t)

		if _, err := fx.svc.CreateFolder("alice", "Docs", ""); err != nil {
			t.Fatalf("CreateFolder() error = %v", err)
		}
		if _, err := fx.svc.CreateFile("alice", "a.txt", strings.NewReader("x"), 1, "Docs"); err != nil {
			t.Fatalf("CreateFile() error = %v", err)
		}
		_, err := fx.svc.CreateFile("alice", "a.txt", strings.NewReader("x"), 1, "")
		if !errors.Is(err, core.ErrNameTaken) {
			t.Fatalf("CreateFile() error = %v, want ErrNameTaken", err)
		}
	})

	t.Run("unknown principal", func(t *testing.T) {
		fx := newServiceFixture(t)

		_, err := fx.svc.CreateFile("ghost", "a.txt", strings.NewReader("x"), 1, "")
		if !errors.Is(err, core.ErrNotFound) {
			t.Fatalf("CreateFile() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("blob failure rolls the row back", func(t *testing.T) {
		store := testutil.NewTestStore(t)
		testutil.SeedUser(t, store, "alice", false)
		svc := core.NewService(store, failingBlobs{}, nil, nil, testutil.FixedClock(), testutil.NewStubIDGenerator())

		_, err := svc.CreateFile("alice", "a.txt", strings.NewReader("x"), 1, "")
		if err == nil {
			t.Fatal("CreateFile() succeeded despite blob failure")
		}

		item, err := store.FindItemByName("a.txt")
		if err != nil {
			t.Fatalf("FindItemByName() error = %v", err)
		}
		if item != nil {
			t.Error("row committed despite blob failure")
		}
	})

	t.Run("records the mutation in the audit trail", func(t *testing.T) {
		fx := newServiceFixture(t)

		if _, err := fx.svc.CreateFile("alice", "a.txt", strings.NewReader("x"), 1, ""); err != nil {
			t.Fatalf("CreateFile() error = %v", err)
		}
		if len(fx.audit.entries) != 1 || !strings.HasPrefix(fx.audit.entries[0], "alice:") {
			t.Errorf("audit entries = %v, want one alice entry", fx.audit.entries)
		}
	})
}

// failingBlobs rejects every write.
type failingBlobs struct{}

func (failingBlobs) Put(string, io.Reader, int64) error  { return errors.New("disk full") }
func (failingBlobs) Get(string, io.Writer) error         { return errors.New("disk full") }
func (failingBlobs) ReadAll(string) ([]byte, error)      { return nil, errors.New("disk full") }
func (failingBlobs) Remove(string) error                 { return errors.New("disk full") }
func (failingBlobs) SweepOrphans([]string) (int, error)  { return 0, errors.New("disk full") }

func TestService_Rename(t *testing.T) {
	t.Run("renames and bumps updated_at", func(t *testing.T) {
		fx := newServiceFixture(t)

		if _, err := fx.svc.CreateFolder("alice", "Docs", ""); err != nil {
			t.Fatalf("CreateFolder() error = %v", err)
		}
		before, _ := fx.store.FindItemByName("Docs")

		fx.clock.Advance(time.Hour)
		if err := fx.svc.Rename("alice", "Docs", "Papers"); err != nil {
			t.Fatalf("Rename() error = %v", err)
		}

		if old, _ := fx.store.FindItemByName("Docs"); old != nil {
			t.Error("old name still resolves after rename")
		}
		after, _ := fx.store.FindItemByName("Papers")
		if after == nil {
			t.Fatal("new name does not resolve")
		}
		if !after.UpdatedAt.After(before.UpdatedAt) {
			t.Errorf("UpdatedAt = %v, want later than %v", after.UpdatedAt, before.UpdatedAt)
		}
	})

	t.Run("same-name rename is a no-op", func(t *testing.T) {
		fx := newServiceFixture(t)

		if _, err := fx.svc.CreateFolder("alice", "Docs", ""); err != nil {
			t.Fatalf("CreateFolder() error = %v", err)
		}
		before, _ := fx.store.FindItemByName("Docs")

		fx.clock.Advance(time.Hour)
		if err := fx.svc.Rename("alice", "Docs", "Docs"); err != nil {
			t.Fatalf("Rename() error = %v", err)
		}

		after, _ := fx.store.FindItemByName("Docs")
		if !after.UpdatedAt.Equal(before.UpdatedAt) {
			t.Errorf("UpdatedAt changed on a no-op rename: %v -> %v", before.UpdatedAt, after.UpdatedAt)
		}
	})

	t.Run("new name taken", func(t *testing.T) {
		fx := newServiceFixture(t)

		fx.svc.CreateFolder("alice", "Docs", "")
		fx.svc.CreateFolder("alice", "Papers", "")
		err := fx.svc.Rename("alice", "Docs", "Papers")
		if !errors.Is(err, core.ErrNameTaken) {
			t.Fatalf("Rename() error = %v, want ErrNameTaken", err)
		}
	})

	t.Run("unknown item", func(t *testing.T) {
		fx := newServiceFixture(t)

		err := fx.svc.Rename("alice", "Missing", "Other")
		if !errors.Is(err, core.ErrNotFound) {
			t.Fatalf("Rename() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("the sentinel root is not addressable by name", func(t *testing.T) {
		fx := newServiceFixture(t)

		if err := fx.svc.Rename("alice", "root", "other"); !errors.Is(err, core.ErrNotFound) {
			t.Errorf("Rename(root) error = %v, want ErrNotFound", err)
		}
		if err := fx.svc.DeleteFolder("alice", "root"); !errors.Is(err, core.ErrNotFound) {
			t.Errorf("DeleteFolder(root) error = %v, want ErrNotFound", err)
		}
	})

	t.Run("invalid new name", func(t *testing.T) {
		fx := newServiceFixture(t)

		fx.svc.CreateFolder("alice", "Docs", "")
		err := fx.svc.Rename("alice", "Docs", "a/b")
		if !errors.Is(err, core.ErrInvalidName) {
			t.Fatalf("Rename() error = %v, want ErrInvalidName", err)
		}
	})
}

func TestService_Delete(t *testing.T) {
	t.Run("deleting a file removes its blob", func(t *testing.T) {
		fx := newServiceFixture(t)

		if _, err := fx.svc.CreateFile("alice", "a.txt", strings.NewReader("x"), 1, ""); err != nil {
			t.Fatalf("CreateFile() error = %v", err)
		}
		if fx.blobs.Len() != 1 {
			t.Fatalf("blob count = %d, want 1", fx.blobs.Len())
		}

		if err := fx.svc.DeleteFile("alice", "a.txt"); err != nil {
			t.Fatalf("DeleteFile() error = %v", err)
		}
		if fx.blobs.Len() != 0 {
			t.Errorf("blob count = %d after delete, want 0", fx.blobs.Len())
		}
		if item, _ := fx.store.FindItemByName("a.txt"); item != nil {
			t.Error("row still present after delete")
		}
	})

	t.Run("delete file on a folder", func(t *testing.T) {
		fx := newServiceFixture(t)

		fx.svc.CreateFolder("alice", "Docs", "")
		err := fx.svc.DeleteFile("alice", "Docs")
		if !errors.Is(err, core.ErrWrongKind) {
			t.Fatalf("DeleteFile() error = %v, want ErrWrongKind", err)
		}
	})

	t.Run("delete folder on a file", func(t *testing.T) {
		fx := newServiceFixture(t)

		fx.svc.CreateFile("alice", "a.txt", strings.NewReader("x"), 1, "")
		err := fx.svc.DeleteFolder("alice", "a.txt")
		if !errors.Is(err, core.ErrWrongKind) {
			t.Fatalf("DeleteFolder() error = %v, want ErrWrongKind", err)
		}
	})

	t.Run("delete of unknown item", func(t *testing.T) {
		fx := newServiceFixture(t)

		err := fx.svc.DeleteFile("alice", "missing.txt")
		if !errors.Is(err, core.ErrNotFound) {
			t.Fatalf("DeleteFile() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("non-empty folder is protected", func(t *testing.T) {
		fx := newServiceFixture(t)

		fx.svc.CreateFolder("alice", "Docs", "")
		fx.svc.CreateFile("alice", "a.txt", strings.NewReader("x"), 1, "Docs")

		err := fx.svc.DeleteFolder("alice", "Docs")
		if !errors.Is(err, core.ErrNotEmpty) {
			t.Fatalf("DeleteFolder() error = %v, want ErrNotEmpty", err)
		}

		if err := fx.svc.DeleteFile("alice", "a.txt"); err != nil {
			t.Fatalf("DeleteFile() error = %v", err)
		}
		if err := fx.svc.DeleteFolder("alice", "Docs"); err != nil {
			t.Fatalf("DeleteFolder() after emptying error = %v", err)
		}
	})
}

func TestService_SweepOrphans(t *testing.T) {
	fx := newServiceFixture(t)

	if _, err := fx.svc.CreateFile("alice", "kept.txt", strings.NewReader("x"), 1, ""); err != nil {
		t.Fatalf("CreateFile() error = %v", err)
	}
	// Simulate a crash between blob write and commit.
	if err := fx.blobs.Put("orphan-code", strings.NewReader("zzz"), 3); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	removed, err := fx.svc.SweepOrphans()
	if err != nil {
		t.Fatalf("SweepOrphans() error = %v", err)
	}
	if removed != 1 {
		t.Errorf("SweepOrphans() removed %d, want 1", removed)
	}
	if _, err := fx.svc.ReadFileBytes("kept.txt"); err != nil {
		t.Errorf("live blob swept: %v", err)
	}
}

func TestService_Notify(t *testing.T) {
	fx := newServiceFixture(t)

	var changes int
	fx.svc.SetOnChange(func() { changes++ })

	fx.svc.CreateFolder("alice", "Docs", "")
	fx.svc.Rename("alice", "Docs", "Papers")
	fx.svc.DeleteFolder("alice", "Papers")

	if changes != 3 {
		t.Errorf("onChange fired %d times, want 3", changes)
	}

	// Failures never notify.
	fx.svc.DeleteFolder("alice", "Papers")
	if changes != 3 {
		t.Errorf("onChange fired on a failed mutation")
	}
}
