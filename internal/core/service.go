package core

import (
	"fmt"
	"io"
)

// Service is the item lifecycle manager: it coordinates the relational
// store and the blob store for create, rename and delete, and notifies
// the presentation layer after mutations. Permission checks are the
// caller's responsibility via the Engine; the service never re-checks.
type Service struct {
	store  Store
	blobs  BlobStore
	logger Logger
	audit  Auditor
	clock  Clock
	idgen  IDGenerator

	onChange func()
}

// NewService creates a Service with the provided dependencies.
func NewService(store Store, blobs BlobStore, logger Logger, audit Auditor, clock Clock, idgen IDGenerator) *Service {
	if logger == nil {
		logger = NewNopLogger()
	}
	if audit == nil {
		audit = NopAuditor{}
	}
	return &Service{
		store:  store,
		blobs:  blobs,
		logger: logger,
		audit:  audit,
		clock:  clock,
		idgen:  idgen,
	}
}

// SetOnChange registers the tree-change observer, invoked after every
// successful mutation so the presentation layer can re-render.
func (s *Service) SetOnChange(fn func()) { s.onChange = fn }

func (s *Service) notify() {
	if s.onChange != nil {
		s.onChange()
	}
}

// CreateFile validates the name, resolves the parent, inserts the item
// row and copies size bytes from content into blob storage under a fresh
// code. The row insert and the blob copy share one transaction window: a
// blob failure rolls the insert back, so no committed row ever lacks its
// blob.
func (s *Service) CreateFile(principal, name string, content io.Reader, size int64, parentName string) (int64, error) {
	id, err := s.createItem(principal, name, parentName, KindFile, func(code string) func() error {
		return func() error { return s.blobs.Put(code, content, size) }
	})
	if err != nil {
		s.audit.Record(principal, fmt.Sprintf("create file %q failed: %v", name, err))
		return 0, err
	}
	s.audit.Record(principal, fmt.Sprintf("file %q created under %q", name, displayParent(parentName)))
	s.logger.Info("file created", "name", name, "id", id)
	s.notify()
	return id, nil
}

// CreateFolder validates the name, resolves the parent and inserts the
// folder row. Folders have no blob.
func (s *Service) CreateFolder(principal, name, parentName string) (int64, error) {
	id, err := s.createItem(principal, name, parentName, KindFolder, nil)
	if err != nil {
		s.audit.Record(principal, fmt.Sprintf("create folder %q failed: %v", name, err))
		return 0, err
	}
	s.audit.Record(principal, fmt.Sprintf("folder %q created under %q", name, displayParent(parentName)))
	s.logger.Info("folder created", "name", name, "id", id)
	s.notify()
	return id, nil
}

func (s *Service) createItem(principal, name, parentName string, kind Kind, blobWrite func(code string) func() error) (int64, error) {
	if err := ValidateName(name); err != nil {
		return 0, err
	}

	existing, err := s.store.FindItemByName(name)
	if err != nil {
		return 0, fmt.Errorf("checking name: %w", err)
	}
	if existing != nil {
		return 0, fmt.Errorf("%q: %w", name, ErrNameTaken)
	}

	owner, err := s.store.FindUserByName(principal)
	if err != nil {
		return 0, fmt.Errorf("resolving owner: %w", err)
	}
	if owner == nil {
		return 0, fmt.Errorf("user %q: %w", principal, ErrNotFound)
	}

	parentID, err := s.resolveParent(parentName)
	if err != nil {
		return 0, err
	}

	now := s.clock.Now()
	item := &Item{
		Code:        s.idgen.New(),
		ParentID:    parentID,
		OwnerID:     owner.ID,
		Kind:        kind,
		DisplayName: name,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	var write func() error
	if blobWrite != nil {
		write = blobWrite(item.Code)
	}

	id, err := s.store.CreateItem(item, write)
	if err != nil {
		return 0, fmt.Errorf("creating %s %q: %w", kind, name, err)
	}
	return id, nil
}

// resolveParent maps a parent display name to an item id. An empty or
// unknown name resolves to the sentinel root; a file-kind parent is
// rejected.
func (s *Service) resolveParent(parentName string) (int64, error) {
	if parentName == "" {
		return RootID, nil
	}
	parent, err := s.store.FindItemByName(parentName)
	if err != nil {
		return 0, fmt.Errorf("resolving parent: %w", err)
	}
	if parent == nil {
		return RootID, nil
	}
	if parent.Kind == KindFile {
		return 0, fmt.Errorf("%q: %w", parentName, ErrInvalidParent)
	}
	return parent.ID, nil
}

// Rename changes an item's display name. Renaming to the same name is a
// no-op success that leaves the row untouched.
func (s *Service) Rename(principal, oldName, newName string) error {
	if oldName == newName {
		return nil
	}

	if err := ValidateName(newName); err != nil {
		s.audit.Record(principal, fmt.Sprintf("rename %q to %q failed: %v", oldName, newName, err))
		return err
	}

	taken, err := s.store.FindItemByName(newName)
	if err != nil {
		return fmt.Errorf("checking name: %w", err)
	}
	if taken != nil {
		s.audit.Record(principal, fmt.Sprintf("rename %q to %q failed: name taken", oldName, newName))
		return fmt.Errorf("%q: %w", newName, ErrNameTaken)
	}

	item, err := s.store.FindItemByName(oldName)
	if err != nil {
		return fmt.Errorf("resolving item: %w", err)
	}
	if item == nil || item.IsRoot() {
		s.audit.Record(principal, fmt.Sprintf("rename %q to %q failed: not found", oldName, newName))
		return fmt.Errorf("%q: %w", oldName, ErrNotFound)
	}

	if err := s.store.RenameItem(item.ID, newName, s.clock.Now()); err != nil {
		s.audit.Record(principal, fmt.Sprintf("rename %q to %q failed: %v", oldName, newName, err))
		return fmt.Errorf("renaming %q: %w", oldName, err)
	}

	s.audit.Record(principal, fmt.Sprintf("%q renamed to %q", oldName, newName))
	s.logger.Info("item renamed", "old", oldName, "new", newName)
	s.notify()
	return nil
}

// DeleteFile removes a file item. The blob is deleted before the row
// delete commits; a blob failure rolls the row delete back and the error
// names which step failed so the caller can reconcile.
func (s *Service) DeleteFile(principal, name string) error {
	item, err := s.resolveKind(name, KindFile)
	if err != nil {
		s.audit.Record(principal, fmt.Sprintf("delete file %q failed: %v", name, err))
		return err
	}

	err = s.store.DeleteItem(item.ID, func() error {
		if err := s.blobs.Remove(item.Code); err != nil {
			return fmt.Errorf("removing blob %s: %w", item.Code, err)
		}
		return nil
	})
	if err != nil {
		s.audit.Record(principal, fmt.Sprintf("delete file %q failed: %v", name, err))
		return fmt.Errorf("deleting file %q: %w", name, err)
	}

	s.audit.Record(principal, fmt.Sprintf("file %q deleted", name))
	s.logger.Info("file deleted", "name", name, "id", item.ID)
	s.notify()
	return nil
}

// DeleteFolder removes an empty folder item.
func (s *Service) DeleteFolder(principal, name string) error {
	item, err := s.resolveKind(name, KindFolder)
	if err != nil {
		s.audit.Record(principal, fmt.Sprintf("delete folder %q failed: %v", name, err))
		return err
	}

	children, err := s.store.CountChildren(item.ID)
	if err != nil {
		return fmt.Errorf("counting children: %w", err)
	}
	if children > 0 {
		s.audit.Record(principal, fmt.Sprintf("delete folder %q failed: not empty", name))
		return fmt.Errorf("%q has %d children: %w", name, children, ErrNotEmpty)
	}

	if err := s.store.DeleteItem(item.ID, nil); err != nil {
		s.audit.Record(principal, fmt.Sprintf("delete folder %q failed: %v", name, err))
		return fmt.Errorf("deleting folder %q: %w", name, err)
	}

	s.audit.Record(principal, fmt.Sprintf("folder %q deleted", name))
	s.logger.Info("folder deleted", "name", name, "id", item.ID)
	s.notify()
	return nil
}

// ReadFileBytes returns the blob content of a file item.
func (s *Service) ReadFileBytes(name string) ([]byte, error) {
	item, err := s.resolveKind(name, KindFile)
	if err != nil {
		return nil, err
	}
	data, err := s.blobs.ReadAll(item.Code)
	if err != nil {
		return nil, fmt.Errorf("reading blob for %q: %w", name, err)
	}
	return data, nil
}

// FetchAll returns every item row; the result feeds BuildTree.
func (s *Service) FetchAll() ([]Item, error) {
	items, err := s.store.FetchAllItems()
	if err != nil {
		return nil, fmt.Errorf("fetching items: %w", err)
	}
	return items, nil
}

// SuggestNames returns display names containing text, for completion.
func (s *Service) SuggestNames(text string) ([]string, error) {
	return s.store.SuggestNames(text)
}

// SuggestNamesFor returns display names containing text for which the
// user holds an item grant with the given scope.
func (s *Service) SuggestNamesFor(text, username string, scope Scope) ([]string, error) {
	return s.store.SuggestNamesFor(text, username, scope)
}

// SweepOrphans deletes blobs no file item references. A crash between a
// blob copy and its transaction commit can leave such orphans behind.
func (s *Service) SweepOrphans() (int, error) {
	items, err := s.store.FetchAllItems()
	if err != nil {
		return 0, fmt.Errorf("fetching items: %w", err)
	}
	live := make([]string, 0, len(items))
	for i := range items {
		if items[i].Kind == KindFile {
			live = append(live, items[i].Code)
		}
	}
	removed, err := s.blobs.SweepOrphans(live)
	if err != nil {
		return removed, fmt.Errorf("sweeping orphan blobs: %w", err)
	}
	if removed > 0 {
		s.logger.Info("orphan blobs removed", "count", removed)
	}
	return removed, nil
}

// resolveKind finds a non-sentinel item and checks its kind. The sentinel
// root is addressable only through parent resolution, never by name.
func (s *Service) resolveKind(name string, want Kind) (*Item, error) {
	item, err := s.store.FindItemByName(name)
	if err != nil {
		return nil, fmt.Errorf("resolving item: %w", err)
	}
	if item == nil || item.IsRoot() {
		return nil, fmt.Errorf("%q: %w", name, ErrNotFound)
	}
	if item.Kind != want {
		return nil, fmt.Errorf("%q is a %s: %w", name, item.Kind, ErrWrongKind)
	}
	return item, nil
}

func displayParent(parentName string) string {
	if parentName == "" {
		return "root"
	}
	return parentName
}
