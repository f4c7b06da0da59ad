package app

import (
	"fmt"
	"os"
	"time"

	"filedepot/internal/blob"
	"filedepot/internal/config"
	"filedepot/internal/core"
	"filedepot/internal/database"
)

// App is the application layer between the CLI and the core engine and
// service. It constructs all dependencies from config, enforces permission
// checks before every operation, and manages resource lifecycles on Close.
type App struct {
	cfg     *config.Config
	store   *database.SQLiteStore
	blobs   core.BlobStore
	engine  *core.Engine
	service *core.Service

	logFile   *os.File
	auditFile *os.File
}

// NewApp creates a fully wired App from the given config.
// operation identifies the CLI command being run (e.g. "AddFile", "Grant").
// The caller must call Close when done.
func NewApp(cfg *config.Config, operation string) (*App, error) {
	opID := time.Now().UTC().Format("20060102T150405Z") + "-" + operation
	logger, logFile, err := newLogger(cfg.LogDir, opID)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	auditor, auditFile, err := newAuditor(cfg.LogDir)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("creating auditor: %w", err)
	}

	store, err := database.NewStoreFromConfig(cfg.Database)
	if err != nil {
		logFile.Close()
		auditFile.Close()
		return nil, fmt.Errorf("creating database: %w", err)
	}

	if err := store.Migrate(); err != nil {
		store.Close()
		logFile.Close()
		auditFile.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}

	if err := store.EnsureScopes(core.AllScopes()); err != nil {
		store.Close()
		logFile.Close()
		auditFile.Close()
		return nil, fmt.Errorf("seeding scopes: %w", err)
	}

	blobs, err := blob.NewFileSystemStore(cfg.Blob.Root)
	if err != nil {
		store.Close()
		logFile.Close()
		auditFile.Close()
		return nil, fmt.Errorf("creating blob store: %w", err)
	}

	log := &slogAdapter{l: logger}
	engine := core.NewEngine(store, log)
	service := core.NewService(store, blobs, log, auditor, core.RealClock{}, core.UUIDGenerator{})

	return &App{
		cfg:       cfg,
		store:     store,
		blobs:     blobs,
		engine:    engine,
		service:   service,
		logFile:   logFile,
		auditFile: auditFile,
	}, nil
}

// Close releases the database connection and log files.
func (a *App) Close() error {
	var firstErr error
	if err := a.store.Close(); err != nil {
		firstErr = fmt.Errorf("closing database: %w", err)
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
	if a.auditFile != nil {
		a.auditFile.Close()
	}
	return firstErr
}

// Login resolves the acting user into a session with cached grants.
func (a *App) Login(username string) (*core.Session, error) {
	return a.engine.Install(username)
}

// AddUser registers a new user. Registration is open so the first
// administrator can be created on a fresh installation.
func (a *App) AddUser(username string, admin bool) (int64, error) {
	existing, err := a.store.FindUserByName(username)
	if err != nil {
		return 0, fmt.Errorf("checking username: %w", err)
	}
	if existing != nil {
		return 0, fmt.Errorf("user %q: %w", username, core.ErrNameTaken)
	}
	return a.store.CreateUser(username, admin)
}

// denied wraps ErrPermissionDenied with the action and scope that failed.
func denied(action string, scope core.Scope) error {
	return fmt.Errorf("%s requires %s: %w", action, scope, core.ErrPermissionDenied)
}

// Mkdir creates a folder under the named parent (root when empty).
func (a *App) Mkdir(sess *core.Session, name, parent string) (int64, error) {
	if !a.engine.Has(sess, core.ScopeFolderCreate) {
		return 0, denied("mkdir", core.ScopeFolderCreate)
	}
	return a.service.CreateFolder(sess.Username, name, parent)
}

// AddFile stores the local file at srcPath as a new file item named name
// under the named parent.
func (a *App) AddFile(sess *core.Session, name, srcPath, parent string) (int64, error) {
	if !a.engine.Has(sess, core.ScopeFileCreate) {
		return 0, denied("add", core.ScopeFileCreate)
	}

	f, err := os.Open(srcPath)
	if err != nil {
		return 0, fmt.Errorf("opening source file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat source file: %w", err)
	}

	return a.service.CreateFile(sess.Username, name, f, info.Size(), parent)
}

// Tree returns the item hierarchy filtered to what the session may view.
func (a *App) Tree(sess *core.Session) (*core.Tree, error) {
	items, err := a.service.FetchAll()
	if err != nil {
		return nil, err
	}
	full, err := core.BuildTree(items)
	if err != nil {
		return nil, err
	}
	return core.VisibleTree(full, a.engine, sess), nil
}

// Search returns the session's visible tree with every node whose name
// contains query highlighted.
func (a *App) Search(sess *core.Session, query string) (*core.Tree, []int, error) {
	tree, err := a.Tree(sess)
	if err != nil {
		return nil, nil, err
	}
	matches := tree.Search(query)
	return tree, matches, nil
}

// ReadFile returns the content of the named file item.
func (a *App) ReadFile(sess *core.Session, name string) ([]byte, error) {
	if !a.engine.Allowed(sess, name, core.ScopeFileDownload) {
		return nil, denied("download", core.ScopeFileDownload)
	}
	return a.service.ReadFileBytes(name)
}

// Download writes the content of the named file item to destPath.
func (a *App) Download(sess *core.Session, name, destPath string) error {
	data, err := a.ReadFile(sess, name)
	if err != nil {
		return err
	}
	if err := os.WriteFile(destPath, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", destPath, err)
	}
	return nil
}

// Rename changes an item's display name. The required scope depends on the
// item's kind, so the item is resolved first.
func (a *App) Rename(sess *core.Session, oldName, newName string) error {
	item, err := a.store.FindItemByName(oldName)
	if err != nil {
		return fmt.Errorf("resolving item: %w", err)
	}
	if item == nil {
		return fmt.Errorf("%q: %w", oldName, core.ErrNotFound)
	}

	scope := core.ScopeFileRename
	if item.Kind == core.KindFolder {
		scope = core.ScopeFolderRename
	}
	if !a.engine.Allowed(sess, oldName, scope) {
		return denied("rename", scope)
	}
	return a.service.Rename(sess.Username, oldName, newName)
}

// RemoveFile deletes the named file item and its blob.
func (a *App) RemoveFile(sess *core.Session, name string) error {
	if !a.engine.Allowed(sess, name, core.ScopeFileDelete) {
		return denied("rm", core.ScopeFileDelete)
	}
	return a.service.DeleteFile(sess.Username, name)
}

// RemoveFolder deletes the named empty folder item.
func (a *App) RemoveFolder(sess *core.Session, name string) error {
	if !a.engine.Allowed(sess, name, core.ScopeFolderDelete) {
		return denied("rmdir", core.ScopeFolderDelete)
	}
	return a.service.DeleteFolder(sess.Username, name)
}

// GrantGlobal issues global grants to username, one scope at a time.
func (a *App) GrantGlobal(sess *core.Session, username string, scopes []core.Scope) (*core.GrantReport, error) {
	if !a.engine.Has(sess, core.ScopePermissionGrant) {
		return nil, denied("grant", core.ScopePermissionGrant)
	}
	return a.engine.GrantGlobalAll(username, scopes), nil
}

// RevokeGlobal removes global grants from username, one scope at a time.
func (a *App) RevokeGlobal(sess *core.Session, username string, scopes []core.Scope) (*core.GrantReport, error) {
	if !a.engine.Has(sess, core.ScopePermissionUngrant) {
		return nil, denied("revoke", core.ScopePermissionUngrant)
	}
	return a.engine.RevokeGlobalAll(username, scopes), nil
}

// GrantItem issues item grants on itemName to username.
func (a *App) GrantItem(sess *core.Session, itemName, username string, scopes []core.Scope) (*core.GrantReport, error) {
	if !a.engine.Has(sess, core.ScopePermissionGrant) {
		return nil, denied("grant", core.ScopePermissionGrant)
	}
	return a.engine.GrantItemAll(itemName, username, scopes), nil
}

// RevokeItem removes item grants on itemName from username.
func (a *App) RevokeItem(sess *core.Session, itemName, username string, scopes []core.Scope) (*core.GrantReport, error) {
	if !a.engine.Has(sess, core.ScopePermissionUngrant) {
		return nil, denied("revoke", core.ScopePermissionUngrant)
	}
	return a.engine.RevokeItemAll(itemName, username, scopes), nil
}

// Perms lists every global (user, scope) grant pair.
func (a *App) Perms(sess *core.Session) ([]core.UserGrant, error) {
	if !a.engine.Has(sess, core.ScopePermissionView) {
		return nil, denied("perms", core.ScopePermissionView)
	}
	return a.engine.Overview()
}

// Sweep removes blobs no file item references. Restricted to
// administrators since it touches storage directly.
func (a *App) Sweep(sess *core.Session) (int, error) {
	if !sess.Admin {
		return 0, fmt.Errorf("sweep is restricted to administrators: %w", core.ErrPermissionDenied)
	}
	return a.service.SweepOrphans()
}

// Suggest returns item names containing text, for shell completion.
func (a *App) Suggest(text string) ([]string, error) {
	return a.service.SuggestNames(text)
}
