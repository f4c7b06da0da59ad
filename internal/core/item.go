package core

import (
	"fmt"
	"strings"
	"time"
)

// Kind distinguishes files from folders.
type Kind string

const (
	KindFile   Kind = "file"
	KindFolder Kind = "folder"
)

const (
	// RootID is the id of the synthetic root item every top-level item
	// hangs off. It is seeded by migration and never displayed.
	RootID int64 = 0

	// SentinelParentID marks the root item itself, which has no parent.
	SentinelParentID int64 = -1
)

// Item is a file or folder row. Code is the opaque storage identifier
// (names the blob for file items, immutable after creation); DisplayName
// is the user-facing name and is unique across the whole store.
type Item struct {
	ID          int64
	Code        string
	ParentID    int64
	OwnerID     int64
	Kind        Kind
	DisplayName string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IsRoot reports whether the item is the sentinel root.
func (it *Item) IsRoot() bool {
	return it.ParentID == SentinelParentID
}

// User is a resolved principal. Credential handling lives outside the
// core; only the identity and the administrator flag matter here.
type User struct {
	ID       int64
	Username string
	Admin    bool
}

// reservedNameChars are rejected in display names: path separators plus
// the characters common filesystems refuse.
const reservedNameChars = `/\:*?"<>|`

// ValidateName checks a display name before insert or rename.
func ValidateName(name string) error {
	if name == "" || name == "." || name == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if strings.ContainsAny(name, reservedNameChars) || strings.ContainsRune(name, 0) {
		return fmt.Errorf("%w: %q contains reserved characters", ErrInvalidName, name)
	}
	return nil
}
