package core_test

import (
	"errors"
	"testing"
	"time"

	"filedepot/internal/core"
	"filedepot/internal/database"
	"filedepot/internal/testutil"
)

func seedItem(t *testing.T, store *database.SQLiteStore, it core.Item) int64 {
	t.Helper()
	if it.Code == "" {
		it.Code = "code-" + it.DisplayName
	}
	if it.CreatedAt.IsZero() {
		it.CreatedAt = time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
		it.UpdatedAt = it.CreatedAt
	}
	id, err := store.CreateItem(&it, nil)
	if err != nil {
		t.Fatalf("CreateItem(%q) error = %v", it.DisplayName, err)
	}
	return id
}

func TestEngine_Install(t *testing.T) {
	t.Run("unknown user", func(t *testing.T) {
		store := testutil.NewTestStore(t)
		engine := core.NewEngine(store, nil)

		_, err := engine.Install("ghost")
		if !errors.Is(err, core.ErrNotFound) {
			t.Fatalf("Install() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("caches grants at install time", func(t *testing.T) {
		store := testutil.NewTestStore(t)
		engine := core.NewEngine(store, nil)
		uid := testutil.SeedUser(t, store, "bob", false)

		sess, err := engine.Install("bob")
		if err != nil {
			t.Fatalf("Install() error = %v", err)
		}
		if sess.UserID != uid || sess.Username != "bob" || sess.Admin {
			t.Errorf("session = %+v, want bob non-admin id %d", sess, uid)
		}
		if engine.Has(sess, core.ScopeFileView) {
			t.Error("Has() = true with no grants issued")
		}

		// A grant after install is invisible until refresh.
		if err := engine.GrantGlobal("bob", core.ScopeFileView); err != nil {
			t.Fatalf("GrantGlobal() error = %v", err)
		}
		if engine.Has(sess, core.ScopeFileView) {
			t.Error("Has() = true on stale session")
		}

		sess, err = engine.Refresh(sess)
		if err != nil {
			t.Fatalf("Refresh() error = %v", err)
		}
		if !engine.Has(sess, core.ScopeFileView) {
			t.Error("Has() = false after refresh")
		}
	})
}

func TestEngine_AdminBypass(t *testing.T) {
	store := testutil.NewTestStore(t)
	engine := core.NewEngine(store, nil)
	testutil.SeedUser(t, store, "root-admin", true)

	sess, err := engine.Install("root-admin")
	if err != nil {
		t.Fatalf("Install() error = %v", err)
	}

	for _, scope := range core.AllScopes() {
		if !engine.Has(sess, scope) {
			t.Errorf("Has(%s) = false for admin, want true", scope)
		}
		if !engine.Allowed(sess, "anything", scope) {
			t.Errorf("Allowed(%s) = false for admin, want true", scope)
		}
	}
}

func TestEngine_GlobalGrants(t *testing.T) {
	setup := func(t *testing.T) (*core.Engine, *database.SQLiteStore) {
		t.Helper()
		store := testutil.NewTestStore(t)
		engine := core.NewEngine(store, nil)
		testutil.SeedUser(t, store, "bob", false)
		return engine, store
	}

	t.Run("grant then check", func(t *testing.T) {
		engine, _ := setup(t)

		if err := engine.GrantGlobal("bob", core.ScopeFileDownload); err != nil {
			t.Fatalf("GrantGlobal() error = %v", err)
		}

		sess, err := engine.Install("bob")
		if err != nil {
			t.Fatalf("Install() error = %v", err)
		}
		if !engine.Has(sess, core.ScopeFileDownload) {
			t.Error("Has(file:download) = false after grant")
		}
		if engine.Has(sess, core.ScopeFileDelete) {
			t.Error("Has(file:delete) = true without grant")
		}
	})

	t.Run("duplicate grant", func(t *testing.T) {
		engine, _ := setup(t)

		if err := engine.GrantGlobal("bob", core.ScopeFileView); err != nil {
			t.Fatalf("first GrantGlobal() error = %v", err)
		}
		err := engine.GrantGlobal("bob", core.ScopeFileView)
		if !errors.Is(err, core.ErrDuplicateGrant) {
			t.Fatalf("second GrantGlobal() error = %v, want ErrDuplicateGrant", err)
		}
	})

	t.Run("grant to unknown user", func(t *testing.T) {
		engine, _ := setup(t)

		err := engine.GrantGlobal("ghost", core.ScopeFileView)
		if !errors.Is(err, core.ErrNotFound) {
			t.Fatalf("GrantGlobal() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("grant of invalid scope", func(t *testing.T) {
		engine, _ := setup(t)

		err := engine.GrantGlobal("bob", core.Scope{Resource: "file", Action: "fly"})
		if !errors.Is(err, core.ErrNotFound) {
			t.Fatalf("GrantGlobal() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("revoke removes the grant", func(t *testing.T) {
		engine, _ := setup(t)

		if err := engine.GrantGlobal("bob", core.ScopeFileView); err != nil {
			t.Fatalf("GrantGlobal() error = %v", err)
		}
		if err := engine.RevokeGlobal("bob", core.ScopeFileView); err != nil {
			t.Fatalf("RevokeGlobal() error = %v", err)
		}

		sess, err := engine.Install("bob")
		if err != nil {
			t.Fatalf("Install() error = %v", err)
		}
		if engine.Has(sess, core.ScopeFileView) {
			t.Error("Has() = true after revoke")
		}
	})

	t.Run("revoke of a grant never issued", func(t *testing.T) {
		engine, _ := setup(t)

		err := engine.RevokeGlobal("bob", core.ScopeFileView)
		if !errors.Is(err, core.ErrNotFound) {
			t.Fatalf("RevokeGlobal() error = %v, want ErrNotFound", err)
		}
	})
}

func TestEngine_ItemGrants(t *testing.T) {
	setup := func(t *testing.T) (*core.Engine, *database.SQLiteStore) {
		t.Helper()
		store := testutil.NewTestStore(t)
		engine := core.NewEngine(store, nil)
		owner := testutil.SeedUser(t, store, "alice", false)
		testutil.SeedUser(t, store, "bob", false)
		seedItem(t, store, core.Item{
			ParentID: core.RootID, OwnerID: owner,
			Kind: core.KindFile, DisplayName: "secrets.txt",
		})
		return engine, store
	}

	t.Run("item grant allows only that item", func(t *testing.T) {
		engine, _ := setup(t)

		if err := engine.GrantItem("secrets.txt", "bob", core.ScopeFileDownload); err != nil {
			t.Fatalf("GrantItem() error = %v", err)
		}

		sess, err := engine.Install("bob")
		if err != nil {
			t.Fatalf("Install() error = %v", err)
		}
		if !engine.Allowed(sess, "secrets.txt", core.ScopeFileDownload) {
			t.Error("Allowed(secrets.txt) = false after item grant")
		}
		if engine.Allowed(sess, "other.txt", core.ScopeFileDownload) {
			t.Error("Allowed(other.txt) = true, item grant leaked")
		}
		if engine.Has(sess, core.ScopeFileDownload) {
			t.Error("Has() = true, item grant treated as global")
		}
	})

	t.Run("global grant covers every item", func(t *testing.T) {
		engine, _ := setup(t)

		if err := engine.GrantGlobal("bob", core.ScopeFileDownload); err != nil {
			t.Fatalf("GrantGlobal() error = %v", err)
		}

		sess, err := engine.Install("bob")
		if err != nil {
			t.Fatalf("Install() error = %v", err)
		}
		if !engine.Allowed(sess, "secrets.txt", core.ScopeFileDownload) {
			t.Error("Allowed() = false with global grant")
		}
	})

	t.Run("duplicate item grant", func(t *testing.T) {
		engine, _ := setup(t)

		if err := engine.GrantItem("secrets.txt", "bob", core.ScopeFileView); err != nil {
			t.Fatalf("first GrantItem() error = %v", err)
		}
		err := engine.GrantItem("secrets.txt", "bob", core.ScopeFileView)
		if !errors.Is(err, core.ErrDuplicateGrant) {
			t.Fatalf("second GrantItem() error = %v, want ErrDuplicateGrant", err)
		}
	})

	t.Run("grant on unknown item", func(t *testing.T) {
		engine, _ := setup(t)

		err := engine.GrantItem("missing.txt", "bob", core.ScopeFileView)
		if !errors.Is(err, core.ErrNotFound) {
			t.Fatalf("GrantItem() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("revoke item grant", func(t *testing.T) {
		engine, _ := setup(t)

		if err := engine.GrantItem("secrets.txt", "bob", core.ScopeFileView); err != nil {
			t.Fatalf("GrantItem() error = %v", err)
		}
		if err := engine.RevokeItem("secrets.txt", "bob", core.ScopeFileView); err != nil {
			t.Fatalf("RevokeItem() error = %v", err)
		}
		err := engine.RevokeItem("secrets.txt", "bob", core.ScopeFileView)
		if !errors.Is(err, core.ErrNotFound) {
			t.Fatalf("second RevokeItem() error = %v, want ErrNotFound", err)
		}
	})
}

func TestEngine_GlobalRevokeLeavesItemGrant(t *testing.T) {
	store := testutil.NewTestStore(t)
	engine := core.NewEngine(store, nil)
	owner := testutil.SeedUser(t, store, "alice", false)
	testutil.SeedUser(t, store, "bob", false)
	seedItem(t, store, core.Item{
		ParentID: core.RootID, OwnerID: owner,
		Kind: core.KindFile, DisplayName: "report.pdf",
	})

	if err := engine.GrantGlobal("bob", core.ScopeFileView); err != nil {
		t.Fatalf("GrantGlobal() error = %v", err)
	}
	if err := engine.GrantItem("report.pdf", "bob", core.ScopeFileView); err != nil {
		t.Fatalf("GrantItem() error = %v", err)
	}

	sess, err := engine.Install("bob")
	if err != nil {
		t.Fatalf("Install() error = %v", err)
	}
	if !engine.Has(sess, core.ScopeFileView) {
		t.Fatal("Has() = false with global grant")
	}

	if err := engine.RevokeGlobal("bob", core.ScopeFileView); err != nil {
		t.Fatalf("RevokeGlobal() error = %v", err)
	}
	sess, err = engine.Refresh(sess)
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	if engine.Has(sess, core.ScopeFileView) {
		t.Error("Has() = true after global revoke")
	}
	if !engine.HasItem(sess, "report.pdf", core.ScopeFileView) {
		t.Error("HasItem() = false, the item grant should survive a global revoke")
	}
}

func TestEngine_BulkGrants(t *testing.T) {
	store := testutil.NewTestStore(t)
	engine := core.NewEngine(store, nil)
	testutil.SeedUser(t, store, "bob", false)

	// Pre-issue one scope so the batch partially fails.
	if err := engine.GrantGlobal("bob", core.ScopeFileView); err != nil {
		t.Fatalf("GrantGlobal() error = %v", err)
	}

	report := engine.GrantGlobalAll("bob", []core.Scope{
		core.ScopeFileView, core.ScopeFileDownload, core.ScopeFolderView,
	})

	if report.OK() {
		t.Error("OK() = true, want partial failure")
	}
	if len(report.Applied) != 2 {
		t.Errorf("Applied = %v, want 2 scopes", report.Applied)
	}
	if err := report.Failed[core.ScopeFileView]; !errors.Is(err, core.ErrDuplicateGrant) {
		t.Errorf("Failed[file:view] = %v, want ErrDuplicateGrant", err)
	}
	if got := report.Summary(); got == "" {
		t.Error("Summary() = empty")
	}

	// The failed scope did not abort the rest.
	sess, err := engine.Install("bob")
	if err != nil {
		t.Fatalf("Install() error = %v", err)
	}
	if !engine.Has(sess, core.ScopeFileDownload) || !engine.Has(sess, core.ScopeFolderView) {
		t.Error("batch scopes after the failure were not applied")
	}
}

func TestEngine_Overview(t *testing.T) {
	store := testutil.NewTestStore(t)
	engine := core.NewEngine(store, nil)
	testutil.SeedUser(t, store, "alice", false)
	testutil.SeedUser(t, store, "bob", false)

	if err := engine.GrantGlobal("alice", core.ScopeFileView); err != nil {
		t.Fatalf("GrantGlobal() error = %v", err)
	}
	if err := engine.GrantGlobal("bob", core.ScopeFolderCreate); err != nil {
		t.Fatalf("GrantGlobal() error = %v", err)
	}

	grants, err := engine.Overview()
	if err != nil {
		t.Fatalf("Overview() error = %v", err)
	}
	if len(grants) != 2 {
		t.Fatalf("Overview() returned %d grants, want 2", len(grants))
	}
}

func TestVisibleTree(t *testing.T) {
	store := testutil.NewTestStore(t)
	engine := core.NewEngine(store, nil)
	owner := testutil.SeedUser(t, store, "alice", false)
	testutil.SeedUser(t, store, "bob", false)

	docsID := seedItem(t, store, core.Item{
		ParentID: core.RootID, OwnerID: owner,
		Kind: core.KindFolder, DisplayName: "Docs",
	})
	seedItem(t, store, core.Item{
		ParentID: docsID, OwnerID: owner,
		Kind: core.KindFile, DisplayName: "a.txt",
	})
	seedItem(t, store, core.Item{
		ParentID: docsID, OwnerID: owner,
		Kind: core.KindFile, DisplayName: "b.txt",
	})

	items, err := store.FetchAllItems()
	if err != nil {
		t.Fatalf("FetchAllItems() error = %v", err)
	}
	full, err := core.BuildTree(items)
	if err != nil {
		t.Fatalf("BuildTree() error = %v", err)
	}

	t.Run("no grants hides everything", func(t *testing.T) {
		sess, err := engine.Install("bob")
		if err != nil {
			t.Fatalf("Install() error = %v", err)
		}
		visible := core.VisibleTree(full, engine, sess)
		if visible.Len() != 0 {
			t.Errorf("visible tree has %d nodes, want 0", visible.Len())
		}
	})

	t.Run("hidden folder children surface at top level", func(t *testing.T) {
		if err := engine.GrantItem("a.txt", "bob", core.ScopeFileView); err != nil {
			t.Fatalf("GrantItem() error = %v", err)
		}
		sess, err := engine.Install("bob")
		if err != nil {
			t.Fatalf("Install() error = %v", err)
		}

		visible := core.VisibleTree(full, engine, sess)
		equalNames(t, names(visible), "a.txt")
		if len(visible.Roots()) != 1 {
			t.Errorf("Roots() = %v, want the surfaced file as a root", visible.Roots())
		}
	})

	t.Run("folder view keeps the hierarchy shape", func(t *testing.T) {
		if err := engine.GrantGlobal("bob", core.ScopeFolderView); err != nil {
			t.Fatalf("GrantGlobal() error = %v", err)
		}
		if err := engine.GrantGlobal("bob", core.ScopeFileView); err != nil {
			t.Fatalf("GrantGlobal() error = %v", err)
		}
		sess, err := engine.Install("bob")
		if err != nil {
			t.Fatalf("Install() error = %v", err)
		}

		visible := core.VisibleTree(full, engine, sess)
		equalNames(t, names(visible), "Docs", "a.txt", "b.txt")
	})
}
