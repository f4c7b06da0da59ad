package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"filedepot/internal/core"
	"filedepot/internal/database/migrations"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteStore implements the core.Store interface using SQLite.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore creates a new SQLite store.
// path can be a file path or ":memory:" for an in-memory database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	return &SQLiteStore{db: db, path: path}, nil
}

// NewSQLiteStoreFromDB wraps an existing connection. The caller is
// responsible for ensuring the connection is properly configured.
func NewSQLiteStoreFromDB(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// OpenConnection opens and configures a SQLite connection with the
// appropriate PRAGMAs. Exported for tools and tests that need a properly
// configured connection.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable foreign key constraints (SQLite default is OFF for backward
	// compatibility). The items.parent_id column is deliberately outside
	// FK enforcement; see the initial migration.
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

const itemColumns = "id, code, kind, display_name, created_at, updated_at, parent_id, owner_id"

func scanItem(row interface{ Scan(...any) error }) (*core.Item, error) {
	var it core.Item
	var kind string
	err := row.Scan(&it.ID, &it.Code, &kind, &it.DisplayName, &it.CreatedAt, &it.UpdatedAt, &it.ParentID, &it.OwnerID)
	if err != nil {
		return nil, err
	}
	it.Kind = core.Kind(kind)
	return &it, nil
}

// User operations

func (s *SQLiteStore) FindUserByName(username string) (*core.User, error) {
	var u core.User
	err := s.db.QueryRow(
		"SELECT id, username, is_admin FROM users WHERE username = ?", username,
	).Scan(&u.ID, &u.Username, &u.Admin)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding user by name: %w", err)
	}
	return &u, nil
}

func (s *SQLiteStore) CreateUser(username string, admin bool) (int64, error) {
	id, err := s.execInsert("INSERT INTO users (username, is_admin) VALUES (?, ?)", username, admin)
	if err != nil {
		return 0, fmt.Errorf("creating user %q: %w", username, err)
	}
	return id, nil
}

// Item operations

func (s *SQLiteStore) FindItemByName(name string) (*core.Item, error) {
	it, err := scanItem(s.db.QueryRow(
		"SELECT "+itemColumns+" FROM items WHERE display_name = ?", name,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding item by name: %w", err)
	}
	return it, nil
}

func (s *SQLiteStore) FetchAllItems() ([]core.Item, error) {
	rows, err := s.db.Query("SELECT " + itemColumns + " FROM items")
	if err != nil {
		return nil, fmt.Errorf("fetching items: %w", err)
	}
	defer rows.Close()

	var items []core.Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning item: %w", err)
		}
		items = append(items, *it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating items: %w", err)
	}
	return items, nil
}

func (s *SQLiteStore) CountChildren(id int64) (int, error) {
	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM items WHERE parent_id = ?", id).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting children: %w", err)
	}
	return n, nil
}

// CreateItem inserts the item row and runs writeBlob before the insert
// commits. A blob failure rolls the insert back, so no committed row
// ever lacks its blob; a crash after the blob write but before commit
// leaves at worst an orphan blob, recoverable by a sweep.
func (s *SQLiteStore) CreateItem(item *core.Item, writeBlob func() error) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		"INSERT INTO items (code, kind, display_name, created_at, updated_at, parent_id, owner_id) VALUES (?, ?, ?, ?, ?, ?, ?)",
		item.Code, string(item.Kind), item.DisplayName, item.CreatedAt, item.UpdatedAt, item.ParentID, item.OwnerID,
	)
	if err != nil {
		return 0, fmt.Errorf("inserting item: %w", err)
	}
	if err := exactlyOne(res, "item insert"); err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading inserted id: %w", err)
	}

	if writeBlob != nil {
		if err := writeBlob(); err != nil {
			return 0, fmt.Errorf("writing blob: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing transaction: %w", err)
	}

	item.ID = id
	return id, nil
}

func (s *SQLiteStore) RenameItem(id int64, newName string, updatedAt time.Time) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		"UPDATE items SET display_name = ?, updated_at = ? WHERE id = ?",
		newName, updatedAt, id,
	)
	if err != nil {
		return fmt.Errorf("updating item name: %w", err)
	}
	if err := exactlyOne(res, "item rename"); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// DeleteItem removes the row and runs removeBlob before the delete
// commits, so a blob failure rolls the row delete back. Item grants
// referencing the row are removed by the FK cascade.
func (s *SQLiteStore) DeleteItem(id int64, removeBlob func() error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec("DELETE FROM items WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting item row: %w", err)
	}
	if err := exactlyOne(res, "item delete"); err != nil {
		return err
	}

	if removeBlob != nil {
		if err := removeBlob(); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (s *SQLiteStore) SuggestNames(text string) ([]string, error) {
	rows, err := s.db.Query(
		"SELECT display_name FROM items WHERE display_name LIKE ? AND parent_id != ? ORDER BY display_name",
		"%"+text+"%", core.SentinelParentID,
	)
	if err != nil {
		return nil, fmt.Errorf("suggesting names: %w", err)
	}
	defer rows.Close()
	return collectStrings(rows)
}

func (s *SQLiteStore) SuggestNamesFor(text, username string, scope core.Scope) ([]string, error) {
	rows, err := s.db.Query(`
		SELECT DISTINCT i.display_name
		FROM items i
		INNER JOIN user_item_permissions uip ON uip.item_id = i.id
		INNER JOIN users u ON u.id = uip.user_id
		INNER JOIN permissions p ON p.id = uip.permission_id
		WHERE i.display_name LIKE ? AND u.username = ? AND p.scope = ?
		ORDER BY i.display_name`,
		"%"+text+"%", username, scope.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("suggesting names for user: %w", err)
	}
	defer rows.Close()
	return collectStrings(rows)
}

// Permission operations

func (s *SQLiteStore) EnsureScopes(scopes []core.Scope) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	for _, scope := range scopes {
		if _, err := tx.Exec(
			"INSERT OR IGNORE INTO permissions (scope) VALUES (?)", scope.String(),
		); err != nil {
			return fmt.Errorf("seeding scope %s: %w", scope, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ScopeID(scope core.Scope) (int64, error) {
	var id int64
	err := s.db.QueryRow("SELECT id FROM permissions WHERE scope = ?", scope.String()).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("scope %s: %w", scope, core.ErrNotFound)
		}
		return 0, fmt.Errorf("resolving scope id: %w", err)
	}
	return id, nil
}

func (s *SQLiteStore) GlobalScopes(username string) ([]core.Scope, error) {
	rows, err := s.db.Query(`
		SELECT DISTINCT p.scope
		FROM users u
		INNER JOIN user_permissions up ON u.id = up.user_id
		INNER JOIN permissions p ON up.permission_id = p.id
		WHERE u.username = ?`,
		username,
	)
	if err != nil {
		return nil, fmt.Errorf("loading global scopes: %w", err)
	}
	defer rows.Close()

	var scopes []core.Scope
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scanning scope: %w", err)
		}
		scope, err := core.ParseScope(raw)
		if err != nil {
			// Unknown strings in storage are an integrity problem, not a
			// value to silently carry around.
			return nil, fmt.Errorf("%w: %v", core.ErrStorage, err)
		}
		scopes = append(scopes, scope)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating scopes: %w", err)
	}
	return scopes, nil
}

func (s *SQLiteStore) ItemScopes(username string) (map[string][]core.Scope, error) {
	rows, err := s.db.Query(`
		SELECT DISTINCT i.display_name, p.scope
		FROM users u
		INNER JOIN user_item_permissions uip ON u.id = uip.user_id
		INNER JOIN items i ON i.id = uip.item_id
		INNER JOIN permissions p ON uip.permission_id = p.id
		WHERE u.username = ?`,
		username,
	)
	if err != nil {
		return nil, fmt.Errorf("loading item scopes: %w", err)
	}
	defer rows.Close()

	scopes := make(map[string][]core.Scope)
	for rows.Next() {
		var name, raw string
		if err := rows.Scan(&name, &raw); err != nil {
			return nil, fmt.Errorf("scanning item scope: %w", err)
		}
		scope, err := core.ParseScope(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", core.ErrStorage, err)
		}
		scopes[name] = append(scopes[name], scope)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating item scopes: %w", err)
	}
	return scopes, nil
}

func (s *SQLiteStore) HasGlobalGrant(userID, permID int64) (bool, error) {
	return s.grantExists(
		"SELECT 1 FROM user_permissions WHERE user_id = ? AND permission_id = ?",
		userID, permID,
	)
}

func (s *SQLiteStore) InsertGlobalGrant(userID, permID int64) error {
	return s.execGrant(
		"INSERT INTO user_permissions (user_id, permission_id) VALUES (?, ?)",
		"global grant insert", false, userID, permID,
	)
}

func (s *SQLiteStore) DeleteGlobalGrant(userID, permID int64) error {
	return s.execGrant(
		"DELETE FROM user_permissions WHERE user_id = ? AND permission_id = ?",
		"global grant delete", true, userID, permID,
	)
}

func (s *SQLiteStore) HasItemGrant(userID, itemID, permID int64) (bool, error) {
	return s.grantExists(
		"SELECT 1 FROM user_item_permissions WHERE user_id = ? AND item_id = ? AND permission_id = ?",
		userID, itemID, permID,
	)
}

func (s *SQLiteStore) InsertItemGrant(userID, itemID, permID int64) error {
	return s.execGrant(
		"INSERT INTO user_item_permissions (user_id, item_id, permission_id) VALUES (?, ?, ?)",
		"item grant insert", false, userID, itemID, permID,
	)
}

func (s *SQLiteStore) DeleteItemGrant(userID, itemID, permID int64) error {
	return s.execGrant(
		"DELETE FROM user_item_permissions WHERE user_id = ? AND item_id = ? AND permission_id = ?",
		"item grant delete", true, userID, itemID, permID,
	)
}

func (s *SQLiteStore) UserGrantListing() ([]core.UserGrant, error) {
	rows, err := s.db.Query(`
		SELECT u.username, p.scope
		FROM users u
		INNER JOIN user_permissions up ON up.user_id = u.id
		INNER JOIN permissions p ON p.id = up.permission_id
		ORDER BY u.username, p.scope`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing grants: %w", err)
	}
	defer rows.Close()

	var grants []core.UserGrant
	for rows.Next() {
		var username, raw string
		if err := rows.Scan(&username, &raw); err != nil {
			return nil, fmt.Errorf("scanning grant: %w", err)
		}
		scope, err := core.ParseScope(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", core.ErrStorage, err)
		}
		grants = append(grants, core.UserGrant{Username: username, Scope: scope})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating grants: %w", err)
	}
	return grants, nil
}

// Path returns the database file path (or ":memory:").
func (s *SQLiteStore) Path() string { return s.path }

// CheckMigrations verifies the database schema is up-to-date.
func (s *SQLiteStore) CheckMigrations() error {
	return migrations.CheckStatus(s.db)
}

// Migrate applies all pending schema migrations.
func (s *SQLiteStore) Migrate() error {
	return migrations.MigrateUp(s.db)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// helpers

// execInsert runs a single-row insert inside a transaction, applying the
// exactly-one-row commit rule, and returns the inserted id.
func (s *SQLiteStore) execInsert(query string, args ...any) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(query, args...)
	if err != nil {
		return 0, err
	}
	if err := exactlyOne(res, "insert"); err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading inserted id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing transaction: %w", err)
	}
	return id, nil
}

func (s *SQLiteStore) grantExists(query string, args ...any) (bool, error) {
	var one int
	err := s.db.QueryRow(query, args...).Scan(&one)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("checking grant: %w", err)
	}
	return true, nil
}

// execGrant runs a grant mutation in a transaction. Zero affected rows on
// a delete means the grant was never issued; any count other than one
// rolls back.
func (s *SQLiteStore) execGrant(query, op string, missingIsNotFound bool, args ...any) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: reading affected rows: %w", op, err)
	}
	if n == 0 && missingIsNotFound {
		return core.ErrNotFound
	}
	if n != 1 {
		return fmt.Errorf("%w: %s affected %d rows", core.ErrStorage, op, n)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func exactlyOne(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: reading affected rows: %w", op, err)
	}
	if n != 1 {
		return fmt.Errorf("%w: %s affected %d rows", core.ErrStorage, op, n)
	}
	return nil
}

func collectStrings(rows *sql.Rows) ([]string, error) {
	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}
	return out, nil
}

// Compile-time check that SQLiteStore implements core.Store.
var _ core.Store = (*SQLiteStore)(nil)
