package core

import "time"

// Store provides the relational backing for items, users and grants.
// Find methods return nil (no error) when no row matches. Mutations are
// transactional: they commit only when exactly one row was affected.
type Store interface {
	// User operations

	// FindUserByName returns a user by username.
	FindUserByName(username string) (*User, error)

	// CreateUser inserts a principal record and returns its id.
	CreateUser(username string, admin bool) (int64, error)

	// Item operations

	// FindItemByName returns an item by display name.
	FindItemByName(name string) (*Item, error)

	// FetchAllItems returns every item row, including the sentinel root,
	// in arbitrary order. This is the sole input to BuildTree.
	FetchAllItems() ([]Item, error)

	// CountChildren returns the number of items whose parent is id.
	CountChildren(id int64) (int, error)

	// CreateItem inserts the item row and, while the transaction is
	// still open, runs writeBlob (nil for folders). A blob failure rolls
	// the insert back so no committed row ever lacks its blob.
	CreateItem(item *Item, writeBlob func() error) (int64, error)

	// RenameItem updates display_name and updated_at only.
	RenameItem(id int64, newName string, updatedAt time.Time) error

	// DeleteItem removes the row and, before the delete commits, runs
	// removeBlob (nil for folders). A blob failure rolls the delete back.
	DeleteItem(id int64, removeBlob func() error) error

	// SuggestNames returns display names containing text.
	SuggestNames(text string) ([]string, error)

	// SuggestNamesFor returns display names containing text for which
	// the user holds an item grant with the given scope.
	SuggestNamesFor(text, username string, scope Scope) ([]string, error)

	// Permission operations

	// EnsureScopes idempotently inserts the scope vocabulary.
	EnsureScopes(scopes []Scope) error

	// ScopeID resolves a scope string to its permission row id,
	// returning ErrNotFound when the scope was never stored.
	ScopeID(scope Scope) (int64, error)

	// GlobalScopes returns the user's global grants.
	GlobalScopes(username string) ([]Scope, error)

	// ItemScopes returns the user's per-item grants keyed by item
	// display name.
	ItemScopes(username string) (map[string][]Scope, error)

	// HasGlobalGrant reports whether the global grant row exists.
	HasGlobalGrant(userID, permID int64) (bool, error)

	// InsertGlobalGrant adds a global grant row.
	InsertGlobalGrant(userID, permID int64) error

	// DeleteGlobalGrant removes a global grant row, returning
	// ErrNotFound when no row matched.
	DeleteGlobalGrant(userID, permID int64) error

	// HasItemGrant reports whether the item grant row exists.
	HasItemGrant(userID, itemID, permID int64) (bool, error)

	// InsertItemGrant adds an item grant row.
	InsertItemGrant(userID, itemID, permID int64) error

	// DeleteItemGrant removes an item grant row, returning ErrNotFound
	// when no row matched.
	DeleteItemGrant(userID, itemID, permID int64) error

	// UserGrantListing returns every (username, scope) pair of global
	// grants, for the permission overview.
	UserGrantListing() ([]UserGrant, error)

	// Close closes the underlying connection.
	Close() error
}

// UserGrant is one row of the permission overview listing.
type UserGrant struct {
	Username string
	Scope    Scope
}
