package core

import (
	"fmt"
	"strings"
)

// Engine resolves whether a principal may perform a scoped action and
// maintains the grant tables. Checks run against the session's caches;
// grant mutations go to the store and callers refresh affected sessions
// afterwards.
type Engine struct {
	store  Store
	logger Logger
}

// NewEngine creates a permission engine over the given store.
func NewEngine(store Store, logger Logger) *Engine {
	if logger == nil {
		logger = NewNopLogger()
	}
	return &Engine{store: store, logger: logger}
}

// Install resolves the principal and builds a fully populated session:
// identity, admin flag, cached global grants and cached per-item grants,
// all loaded before the session becomes visible to callers.
func (e *Engine) Install(username string) (*Session, error) {
	user, err := e.store.FindUserByName(username)
	if err != nil {
		return nil, fmt.Errorf("resolving user: %w", err)
	}
	if user == nil {
		return nil, fmt.Errorf("user %q: %w", username, ErrNotFound)
	}

	global, err := e.store.GlobalScopes(username)
	if err != nil {
		return nil, fmt.Errorf("loading global grants: %w", err)
	}
	items, err := e.store.ItemScopes(username)
	if err != nil {
		return nil, fmt.Errorf("loading item grants: %w", err)
	}

	e.logger.Debug("session installed", "user", username, "global", len(global), "items", len(items))
	return newSession(user, global, items), nil
}

// Refresh rebuilds the session's caches after grant mutations. The
// returned session replaces the old one wholesale.
func (e *Engine) Refresh(sess *Session) (*Session, error) {
	return e.Install(sess.Username)
}

// Has reports whether the session may perform scope on any item of its
// resource. Administrators bypass the check unconditionally; the bypass
// is an explicit branch so audits can tell it apart from a grant.
func (e *Engine) Has(sess *Session, scope Scope) bool {
	if sess.Admin {
		return true
	}
	return sess.holdsGlobal(scope)
}

// HasItem reports whether the session may perform scope on the named
// item specifically.
func (e *Engine) HasItem(sess *Session, itemName string, scope Scope) bool {
	if sess.Admin {
		return true
	}
	return sess.holdsItem(itemName, scope)
}

// Allowed is the effective check for an item-scoped action: a global
// grant OR an item grant suffices. The model is additive; an item-level
// absence never revokes a global grant.
func (e *Engine) Allowed(sess *Session, itemName string, scope Scope) bool {
	return e.Has(sess, scope) || e.HasItem(sess, itemName, scope)
}

// GrantGlobal issues a global grant. Fails with ErrNotFound when the
// user or scope is unknown and ErrDuplicateGrant when already held.
func (e *Engine) GrantGlobal(username string, scope Scope) error {
	userID, permID, err := e.resolve(username, scope)
	if err != nil {
		return err
	}

	held, err := e.store.HasGlobalGrant(userID, permID)
	if err != nil {
		return fmt.Errorf("checking existing grant: %w", err)
	}
	if held {
		return fmt.Errorf("%s for %q: %w", scope, username, ErrDuplicateGrant)
	}

	if err := e.store.InsertGlobalGrant(userID, permID); err != nil {
		return fmt.Errorf("granting %s to %q: %w", scope, username, err)
	}
	e.logger.Info("global grant issued", "user", username, "scope", scope.String())
	return nil
}

// RevokeGlobal removes a global grant, failing with ErrNotFound when the
// grant was never issued.
func (e *Engine) RevokeGlobal(username string, scope Scope) error {
	userID, permID, err := e.resolve(username, scope)
	if err != nil {
		return err
	}
	if err := e.store.DeleteGlobalGrant(userID, permID); err != nil {
		return fmt.Errorf("revoking %s from %q: %w", scope, username, err)
	}
	e.logger.Info("global grant revoked", "user", username, "scope", scope.String())
	return nil
}

// GrantItem issues a grant for one specific item.
func (e *Engine) GrantItem(itemName, username string, scope Scope) error {
	userID, permID, err := e.resolve(username, scope)
	if err != nil {
		return err
	}
	itemID, err := e.resolveItem(itemName)
	if err != nil {
		return err
	}

	held, err := e.store.HasItemGrant(userID, itemID, permID)
	if err != nil {
		return fmt.Errorf("checking existing grant: %w", err)
	}
	if held {
		return fmt.Errorf("%s on %q for %q: %w", scope, itemName, username, ErrDuplicateGrant)
	}

	if err := e.store.InsertItemGrant(userID, itemID, permID); err != nil {
		return fmt.Errorf("granting %s on %q to %q: %w", scope, itemName, username, err)
	}
	e.logger.Info("item grant issued", "user", username, "item", itemName, "scope", scope.String())
	return nil
}

// RevokeItem removes an item grant, failing with ErrNotFound when the
// grant was never issued.
func (e *Engine) RevokeItem(itemName, username string, scope Scope) error {
	userID, permID, err := e.resolve(username, scope)
	if err != nil {
		return err
	}
	itemID, err := e.resolveItem(itemName)
	if err != nil {
		return err
	}
	if err := e.store.DeleteItemGrant(userID, itemID, permID); err != nil {
		return fmt.Errorf("revoking %s on %q from %q: %w", scope, itemName, username, err)
	}
	e.logger.Info("item grant revoked", "user", username, "item", itemName, "scope", scope.String())
	return nil
}

// GrantReport is the outcome of a bulk grant or revoke: scopes that
// applied and the per-scope errors of those that did not. One failure
// never aborts the remainder of the batch.
type GrantReport struct {
	Applied []Scope
	Failed  map[Scope]error
}

// OK reports whether every scope applied.
func (r *GrantReport) OK() bool { return len(r.Failed) == 0 }

// Summary renders "N of M applied" with the failing scopes.
func (r *GrantReport) Summary() string {
	total := len(r.Applied) + len(r.Failed)
	if r.OK() {
		return fmt.Sprintf("%d of %d applied", len(r.Applied), total)
	}
	parts := make([]string, 0, len(r.Failed))
	for _, scope := range AllScopes() {
		if err, ok := r.Failed[scope]; ok {
			parts = append(parts, fmt.Sprintf("%s: %v", scope, err))
		}
	}
	return fmt.Sprintf("%d of %d applied (%s)", len(r.Applied), total, strings.Join(parts, "; "))
}

func (r *GrantReport) record(scope Scope, err error) {
	if err != nil {
		if r.Failed == nil {
			r.Failed = make(map[Scope]error)
		}
		r.Failed[scope] = err
		return
	}
	r.Applied = append(r.Applied, scope)
}

// GrantGlobalAll applies each scope independently, collecting failures.
func (e *Engine) GrantGlobalAll(username string, scopes []Scope) *GrantReport {
	report := &GrantReport{}
	for _, scope := range scopes {
		report.record(scope, e.GrantGlobal(username, scope))
	}
	return report
}

// RevokeGlobalAll removes each scope independently, collecting failures.
func (e *Engine) RevokeGlobalAll(username string, scopes []Scope) *GrantReport {
	report := &GrantReport{}
	for _, scope := range scopes {
		report.record(scope, e.RevokeGlobal(username, scope))
	}
	return report
}

// GrantItemAll applies each scope to one item independently.
func (e *Engine) GrantItemAll(itemName, username string, scopes []Scope) *GrantReport {
	report := &GrantReport{}
	for _, scope := range scopes {
		report.record(scope, e.GrantItem(itemName, username, scope))
	}
	return report
}

// RevokeItemAll removes each scope from one item independently.
func (e *Engine) RevokeItemAll(itemName, username string, scopes []Scope) *GrantReport {
	report := &GrantReport{}
	for _, scope := range scopes {
		report.record(scope, e.RevokeItem(itemName, username, scope))
	}
	return report
}

// Overview lists every (user, scope) global grant pair.
func (e *Engine) Overview() ([]UserGrant, error) {
	grants, err := e.store.UserGrantListing()
	if err != nil {
		return nil, fmt.Errorf("listing grants: %w", err)
	}
	return grants, nil
}

// resolve maps a username and scope to their relational identifiers.
func (e *Engine) resolve(username string, scope Scope) (userID, permID int64, err error) {
	if !scope.Valid() {
		return 0, 0, fmt.Errorf("scope %s: %w", scope, ErrNotFound)
	}
	user, err := e.store.FindUserByName(username)
	if err != nil {
		return 0, 0, fmt.Errorf("resolving user: %w", err)
	}
	if user == nil {
		return 0, 0, fmt.Errorf("user %q: %w", username, ErrNotFound)
	}
	permID, err = e.store.ScopeID(scope)
	if err != nil {
		return 0, 0, fmt.Errorf("resolving scope %s: %w", scope, err)
	}
	return user.ID, permID, nil
}

func (e *Engine) resolveItem(itemName string) (int64, error) {
	item, err := e.store.FindItemByName(itemName)
	if err != nil {
		return 0, fmt.Errorf("resolving item: %w", err)
	}
	if item == nil {
		return 0, fmt.Errorf("item %q: %w", itemName, ErrNotFound)
	}
	return item.ID, nil
}
