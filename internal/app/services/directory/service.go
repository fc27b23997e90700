// Package directory maintains the authoritative in-memory cache of group
// records.
package directory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/luggez/groupsystem/internal/app/domain/group"
	"github.com/luggez/groupsystem/internal/app/gateway"
	"github.com/luggez/groupsystem/internal/app/metrics"
	"github.com/luggez/groupsystem/internal/app/storage"
	"github.com/luggez/groupsystem/pkg/logger"
)

// ErrProtectedGroup is returned when a caller tries to delete the default
// group. No store round-trip happens in that case.
var ErrProtectedGroup = errors.New("directory: the default group cannot be deleted")

// ErrInvalidInput flags caller-supplied arguments rejected before any store
// round-trip.
var ErrInvalidInput = errors.New("directory: invalid input")

// Service is the group directory. Reads are cache-only and never block;
// mutations run through the persistence gateway.
type Service struct {
	store   storage.GroupStore
	members storage.MembershipStore
	gw      *gateway.Gateway
	log     *logger.Logger

	cache sync.Map // group key -> group.Group
	size  atomic.Int64
}

// New creates a directory service.
func New(store storage.GroupStore, members storage.MembershipStore, gw *gateway.Gateway, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("directory")
	}
	return &Service{store: store, members: members, gw: gw, log: log}
}

// LoadAll replaces the entire cache from a full store scan. Called once at
// bootstrap; a failure means the system is unusable.
func (s *Service) LoadAll(ctx context.Context) error {
	groups, err := s.store.ListGroups(ctx)
	if err != nil {
		return err
	}

	s.cache.Range(func(key, _ any) bool {
		s.cache.Delete(key)
		return true
	})
	for _, g := range groups {
		s.cache.Store(group.Key(g.Name), g)
	}
	s.size.Store(int64(len(groups)))
	metrics.SetDirectorySize(len(groups))

	s.log.Infof("loaded %d group(s) into cache", len(groups))
	return nil
}

// Exists reports whether a group with the given name is cached. Never
// touches the store.
func (s *Service) Exists(name string) bool {
	_, ok := s.cache.Load(group.Key(name))
	return ok
}

// Get returns the cached group record for the given name.
func (s *Service) Get(name string) (group.Group, bool) {
	v, ok := s.cache.Load(group.Key(name))
	if !ok {
		return group.Group{}, false
	}
	return v.(group.Group), true
}

// List returns every cached group ordered by identifier.
func (s *Service) List() []group.Group {
	var result []group.Group
	s.cache.Range(func(_, v any) bool {
		result = append(result, v.(group.Group))
		return true
	})
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// Names returns every cached group name.
func (s *Service) Names() []string {
	groups := s.List()
	names := make([]string, 0, len(groups))
	for _, g := range groups {
		names = append(names, g.Name)
	}
	return names
}

// Create inserts a new group. A cached duplicate fails fast; a race between
// two concurrent creates is resolved by the store's uniqueness constraint
// and surfaces as storage.ErrDuplicateName.
func (s *Service) Create(name, prefix string) *gateway.Future[group.Group] {
	key := group.Key(name)
	if key == "" {
		return gateway.Done(group.Group{}, fmt.Errorf("%w: group name is required", ErrInvalidInput))
	}
	if s.Exists(key) {
		return gateway.Done(group.Group{}, storage.ErrDuplicateName)
	}

	return gateway.Do(s.gw, "group.create", func(ctx context.Context) (group.Group, error) {
		g, err := s.store.CreateGroup(ctx, key, prefix)
		if err != nil {
			return group.Group{}, err
		}
		s.put(g)
		s.log.WithField("group", g.Name).Info("group created")
		return g, nil
	})
}

// Delete removes a group and returns the users that were assigned to it so
// the caller can reassign them. The cache entry is removed only after the
// store delete commits, so a reader never observes a group that is gone from
// the cache but still present in the store.
func (s *Service) Delete(name string) *gateway.Future[[]uuid.UUID] {
	key := group.Key(name)
	if group.IsDefault(key) {
		return gateway.Done[[]uuid.UUID](nil, ErrProtectedGroup)
	}
	g, ok := s.Get(key)
	if !ok {
		return gateway.Done[[]uuid.UUID](nil, storage.ErrNotFound)
	}

	return gateway.Do(s.gw, "group.delete", func(ctx context.Context) ([]uuid.UUID, error) {
		members, err := s.members.ListGroupMembers(ctx, g.ID)
		if err != nil {
			return nil, err
		}

		if err := s.store.DeleteGroup(ctx, key); err != nil {
			return nil, err
		}
		s.remove(key)

		affected := make([]uuid.UUID, 0, len(members))
		for _, m := range members {
			affected = append(affected, m.UserID)
		}
		s.log.WithField("group", key).
			Infof("group deleted (%d user(s) to reassign)", len(affected))
		return affected, nil
	})
}

// Grant adds a permission string to a group and refreshes the cached record.
func (s *Service) Grant(name, permission string) *gateway.Future[group.Group] {
	return s.mutatePermissions(name, permission, "group.grant", s.store.GrantPermission, func(perms []string) []string {
		for _, p := range perms {
			if p == permission {
				return perms
			}
		}
		return append(perms, permission)
	})
}

// Revoke removes a permission string from a group and refreshes the cached
// record.
func (s *Service) Revoke(name, permission string) *gateway.Future[group.Group] {
	return s.mutatePermissions(name, permission, "group.revoke", s.store.RevokePermission, func(perms []string) []string {
		result := perms[:0]
		for _, p := range perms {
			if p != permission {
				result = append(result, p)
			}
		}
		return result
	})
}

func (s *Service) mutatePermissions(name, permission, op string,
	write func(ctx context.Context, groupID int64, permission string) error,
	apply func([]string) []string,
) *gateway.Future[group.Group] {
	g, ok := s.Get(name)
	if !ok {
		return gateway.Done(group.Group{}, storage.ErrNotFound)
	}
	if permission == "" {
		return gateway.Done(group.Group{}, fmt.Errorf("%w: permission is required", ErrInvalidInput))
	}

	return gateway.Do(s.gw, op, func(ctx context.Context) (group.Group, error) {
		if err := write(ctx, g.ID, permission); err != nil {
			return group.Group{}, err
		}
		updated := g
		updated.Permissions = apply(append([]string(nil), g.Permissions...))
		s.put(updated)
		return updated, nil
	})
}

func (s *Service) put(g group.Group) {
	key := group.Key(g.Name)
	if _, loaded := s.cache.Swap(key, g); !loaded {
		metrics.SetDirectorySize(int(s.size.Add(1)))
	}
}

func (s *Service) remove(key string) {
	if _, loaded := s.cache.LoadAndDelete(key); loaded {
		metrics.SetDirectorySize(int(s.size.Add(-1)))
	}
}
