package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/luggez/groupsystem/internal/app/domain/group"
	"github.com/luggez/groupsystem/internal/app/domain/membership"
	"github.com/luggez/groupsystem/internal/app/storage"
)

// Store is an in-memory implementation of the storage interfaces. It is safe
// for concurrent use and is primarily intended for tests and local
// development. It mirrors the relational semantics, including the membership
// cascade on group deletion.
type Store struct {
	mu          sync.Mutex
	nextID      int64
	groups      map[int64]group.Group
	groupsByKey map[string]int64
	perms       map[int64]map[string]struct{}
	memberships map[uuid.UUID]membership.Record

	// failNext, when set, makes the next store call fail with the given
	// error. Tests use it to exercise degraded-store paths.
	failNext error
}

var _ storage.GroupStore = (*Store)(nil)
var _ storage.MembershipStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		nextID:      1,
		groups:      make(map[int64]group.Group),
		groupsByKey: make(map[string]int64),
		perms:       make(map[int64]map[string]struct{}),
		memberships: make(map[uuid.UUID]membership.Record),
	}
}

// Seeded creates a store pre-populated with the default group, matching what
// EnsureSchema seeds in the relational store.
func Seeded() *Store {
	s := New()
	_, _ = s.CreateGroup(context.Background(), group.DefaultName, "&7[Member]")
	return s
}

// FailNext makes the next operation return the given error.
func (s *Store) FailNext(err error) {
	s.mu.Lock()
	s.failNext = err
	s.mu.Unlock()
}

func (s *Store) takeFailure() error {
	err := s.failNext
	s.failNext = nil
	return err
}

// --- GroupStore -------------------------------------------------------------

func (s *Store) ListGroups(_ context.Context) ([]group.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return nil, err
	}

	result := make([]group.Group, 0, len(s.groups))
	for id, g := range s.groups {
		g.Permissions = s.permissionsLocked(id)
		result = append(result, g)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (s *Store) CreateGroup(_ context.Context, name, prefix string) (group.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return group.Group{}, err
	}

	key := group.Key(name)
	if _, exists := s.groupsByKey[key]; exists {
		return group.Group{}, storage.ErrDuplicateName
	}

	g := group.Group{ID: s.nextID, Name: key, Prefix: prefix}
	s.nextID++
	s.groups[g.ID] = g
	s.groupsByKey[key] = g.ID
	return g, nil
}

func (s *Store) DeleteGroup(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return err
	}

	key := group.Key(name)
	id, exists := s.groupsByKey[key]
	if !exists {
		return storage.ErrNotFound
	}

	delete(s.groups, id)
	delete(s.groupsByKey, key)
	delete(s.perms, id)
	for userID, rec := range s.memberships {
		if rec.GroupID == id {
			delete(s.memberships, userID)
		}
	}
	return nil
}

func (s *Store) GrantPermission(_ context.Context, groupID int64, permission string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return err
	}
	if _, exists := s.groups[groupID]; !exists {
		return storage.ErrNotFound
	}
	if s.perms[groupID] == nil {
		s.perms[groupID] = make(map[string]struct{})
	}
	s.perms[groupID][permission] = struct{}{}
	return nil
}

func (s *Store) RevokePermission(_ context.Context, groupID int64, permission string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return err
	}
	set := s.perms[groupID]
	if _, exists := set[permission]; !exists {
		return storage.ErrNotFound
	}
	delete(set, permission)
	return nil
}

// --- MembershipStore --------------------------------------------------------

func (s *Store) GetMembership(_ context.Context, userID uuid.UUID) (membership.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return membership.Record{}, err
	}

	rec, exists := s.memberships[userID]
	if !exists {
		return membership.Record{}, storage.ErrNotFound
	}
	return s.withGroupNameLocked(rec), nil
}

func (s *Store) UpsertMembership(_ context.Context, rec membership.Record) (membership.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return membership.Record{}, err
	}

	if _, exists := s.groups[rec.GroupID]; !exists {
		return membership.Record{}, storage.ErrNotFound
	}
	if rec.AssignedAt.IsZero() {
		rec.AssignedAt = time.Now().UTC()
	}
	s.memberships[rec.UserID] = rec
	return s.withGroupNameLocked(rec), nil
}

func (s *Store) ListGroupMembers(_ context.Context, groupID int64) ([]membership.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return nil, err
	}

	var result []membership.Record
	for _, rec := range s.memberships {
		if rec.GroupID == groupID {
			result = append(result, s.withGroupNameLocked(rec))
		}
	}
	return result, nil
}

func (s *Store) ListExpired(_ context.Context, now time.Time) ([]membership.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure(); err != nil {
		return nil, err
	}

	var result []membership.Record
	for _, rec := range s.memberships {
		if rec.Expired(now) {
			result = append(result, s.withGroupNameLocked(rec))
		}
	}
	return result, nil
}

func (s *Store) permissionsLocked(groupID int64) []string {
	set := s.perms[groupID]
	if len(set) == 0 {
		return nil
	}
	result := make([]string, 0, len(set))
	for p := range set {
		result = append(result, p)
	}
	sort.Strings(result)
	return result
}

func (s *Store) withGroupNameLocked(rec membership.Record) membership.Record {
	if g, exists := s.groups[rec.GroupID]; exists {
		rec.GroupName = g.Name
	}
	return rec
}
