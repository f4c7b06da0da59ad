package core

import "errors"

// Sentinel errors for the item and permission engines. Callers match with
// errors.Is; layers add context with fmt.Errorf("...: %w", err).
var (
	// ErrNotFound means a user, item or grant could not be resolved.
	ErrNotFound = errors.New("not found")

	// ErrInvalidName means a display name failed filename validation.
	ErrInvalidName = errors.New("invalid name")

	// ErrNameTaken means another item already holds the display name.
	ErrNameTaken = errors.New("name already taken")

	// ErrWrongKind means a file operation hit a folder or vice versa.
	ErrWrongKind = errors.New("wrong item kind")

	// ErrNotEmpty means a folder still has children.
	ErrNotEmpty = errors.New("folder not empty")

	// ErrInvalidParent means the requested parent is not a folder.
	ErrInvalidParent = errors.New("parent is not a folder")

	// ErrDuplicateGrant means the grant is already held.
	ErrDuplicateGrant = errors.New("grant already exists")

	// ErrPermissionDenied means the principal lacks the required scope.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrStorage marks relational or blob failures, including integrity
	// violations detected while building the tree.
	ErrStorage = errors.New("storage failure")
)
