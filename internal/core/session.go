package core

// Session is the resolved state of one authenticated principal: identity,
// administrator flag and cached grant lookups. A Session is built in a
// single Install step and replaced wholesale on re-login; its caches are
// never patched field-by-field, so no reader ever observes a partially
// replaced principal.
type Session struct {
	UserID   int64
	Username string
	Admin    bool

	global map[Scope]struct{}
	items  map[string][]Scope
}

// newSession assembles a fully populated session in one step.
func newSession(user *User, global []Scope, items map[string][]Scope) *Session {
	s := &Session{
		UserID:   user.ID,
		Username: user.Username,
		Admin:    user.Admin,
		global:   make(map[Scope]struct{}, len(global)),
		items:    items,
	}
	for _, scope := range global {
		s.global[scope] = struct{}{}
	}
	if s.items == nil {
		s.items = map[string][]Scope{}
	}
	return s
}

// holdsGlobal reports membership in the cached global grant set. The
// admin bypass lives in the Engine, not here.
func (s *Session) holdsGlobal(scope Scope) bool {
	_, ok := s.global[scope]
	return ok
}

// holdsItem reports membership in the cached per-item grant list.
func (s *Session) holdsItem(itemName string, scope Scope) bool {
	for _, held := range s.items[itemName] {
		if held == scope {
			return true
		}
	}
	return false
}

// GlobalScopes returns the cached global grants, for display.
func (s *Session) GlobalScopes() []Scope {
	out := make([]Scope, 0, len(s.global))
	for _, scope := range AllScopes() {
		if _, ok := s.global[scope]; ok {
			out = append(out, scope)
		}
	}
	return out
}

// ItemScopes returns the cached per-item grants, for display.
func (s *Session) ItemScopes() map[string][]Scope {
	out := make(map[string][]Scope, len(s.items))
	for name, scopes := range s.items {
		out[name] = append([]Scope(nil), scopes...)
	}
	return out
}
