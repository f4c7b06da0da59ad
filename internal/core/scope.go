package core

import (
	"fmt"
	"strings"
)

// Resource is the namespace half of a permission scope.
type Resource string

// Action is the verb half of a permission scope.
type Action string

const (
	ResourceFile       Resource = "file"
	ResourceFolder     Resource = "folder"
	ResourcePermission Resource = "permission"
)

const (
	ActionView     Action = "view"
	ActionCreate   Action = "create"
	ActionRename   Action = "rename"
	ActionDelete   Action = "delete"
	ActionDownload Action = "download"
	ActionGrant    Action = "grant"
	ActionUngrant  Action = "ungrant"
)

// Scope is a typed resource:action permission. The set of valid scopes is
// closed; strings coming from storage or user input go through ParseScope,
// which rejects anything outside the vocabulary.
type Scope struct {
	Resource Resource
	Action   Action
}

var (
	ScopeFileView     = Scope{ResourceFile, ActionView}
	ScopeFileCreate   = Scope{ResourceFile, ActionCreate}
	ScopeFileRename   = Scope{ResourceFile, ActionRename}
	ScopeFileDelete   = Scope{ResourceFile, ActionDelete}
	ScopeFileDownload = Scope{ResourceFile, ActionDownload}

	ScopeFolderView   = Scope{ResourceFolder, ActionView}
	ScopeFolderCreate = Scope{ResourceFolder, ActionCreate}
	ScopeFolderRename = Scope{ResourceFolder, ActionRename}
	ScopeFolderDelete = Scope{ResourceFolder, ActionDelete}

	ScopePermissionView    = Scope{ResourcePermission, ActionView}
	ScopePermissionGrant   = Scope{ResourcePermission, ActionGrant}
	ScopePermissionUngrant = Scope{ResourcePermission, ActionUngrant}
)

// allScopes is the closed vocabulary, in a stable order used for seeding.
var allScopes = []Scope{
	ScopeFileView, ScopeFileCreate, ScopeFileRename, ScopeFileDelete, ScopeFileDownload,
	ScopeFolderView, ScopeFolderCreate, ScopeFolderRename, ScopeFolderDelete,
	ScopePermissionView, ScopePermissionGrant, ScopePermissionUngrant,
}

var validScopes = func() map[Scope]struct{} {
	m := make(map[Scope]struct{}, len(allScopes))
	for _, s := range allScopes {
		m[s] = struct{}{}
	}
	return m
}()

// AllScopes returns every valid scope in seeding order.
func AllScopes() []Scope {
	out := make([]Scope, len(allScopes))
	copy(out, allScopes)
	return out
}

// String renders the wire form, e.g. "file:view". It round-trips exactly
// through ParseScope and through storage.
func (s Scope) String() string {
	return string(s.Resource) + ":" + string(s.Action)
}

// Valid reports whether the scope is part of the closed vocabulary.
func (s Scope) Valid() bool {
	_, ok := validScopes[s]
	return ok
}

// ParseScope parses a "resource:action" string, rejecting unknown scopes.
func ParseScope(raw string) (Scope, error) {
	res, act, ok := strings.Cut(raw, ":")
	if !ok {
		return Scope{}, fmt.Errorf("malformed scope %q (want resource:action)", raw)
	}
	s := Scope{Resource: Resource(res), Action: Action(act)}
	if !s.Valid() {
		return Scope{}, fmt.Errorf("unknown scope %q", raw)
	}
	return s, nil
}

// ViewScopeFor returns the view scope matching an item kind, used when
// filtering the tree for display.
func ViewScopeFor(kind Kind) Scope {
	if kind == KindFolder {
		return ScopeFolderView
	}
	return ScopeFileView
}
