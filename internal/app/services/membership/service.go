// Package membership maintains the per-user group assignment cache and
// resolves assignments into display prefixes and permission sets.
package membership

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/luggez/groupsystem/internal/app/domain/group"
	domain "github.com/luggez/groupsystem/internal/app/domain/membership"
	"github.com/luggez/groupsystem/internal/app/gateway"
	"github.com/luggez/groupsystem/internal/app/metrics"
	"github.com/luggez/groupsystem/internal/app/presence"
	"github.com/luggez/groupsystem/internal/app/services/directory"
	"github.com/luggez/groupsystem/internal/app/services/perms"
	"github.com/luggez/groupsystem/internal/app/storage"
	"github.com/luggez/groupsystem/pkg/logger"
)

// ErrUnknownGroup is returned before any async work is scheduled when an
// assignment names a group the directory does not know.
var ErrUnknownGroup = errors.New("membership: unknown group")

// Service is the membership cache and resolver. Cache reads never block and
// never touch the store; every store interaction runs through the gateway.
type Service struct {
	store     storage.MembershipStore
	directory *directory.Service
	gw        *gateway.Gateway
	registry  *perms.Registry
	applier   presence.Applier
	log       *logger.Logger

	cache sync.Map // uuid.UUID -> group key
	size  atomic.Int64
}

// New creates a membership service.
func New(store storage.MembershipStore, dir *directory.Service, gw *gateway.Gateway,
	registry *perms.Registry, applier presence.Applier, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("membership")
	}
	if registry == nil {
		registry = perms.NewRegistry()
	}
	if applier == nil {
		applier = &presence.LogApplier{Log: log}
	}
	return &Service{
		store:     store,
		directory: dir,
		gw:        gw,
		registry:  registry,
		applier:   applier,
		log:       log,
	}
}

// LoadUser loads a user's assignment into the cache on connect. A missing
// row is materialized as an explicit permanent default assignment
// (write-through) so the store keeps one row per ever-connected user. A
// store failure is surfaced to the caller distinctly from "no assignment";
// nothing is persisted in that case and the caller decides the fallback.
func (s *Service) LoadUser(userID uuid.UUID) *gateway.Future[string] {
	return gateway.Do(s.gw, "membership.load", func(ctx context.Context) (string, error) {
		rec, err := s.store.GetMembership(ctx, userID)
		switch {
		case err == nil:
		case errors.Is(err, storage.ErrNotFound):
			rec, err = s.writeDefault(ctx, userID)
			if err != nil {
				return "", err
			}
		default:
			return "", err
		}

		key := group.Key(rec.GroupName)
		s.put(userID, key)
		s.applyPresence(ctx, userID)
		return key, nil
	})
}

// CurrentGroup returns the cached group for a user, or the default group
// name when the user is not cached. Safe on every action-resolution path.
func (s *Service) CurrentGroup(userID uuid.UUID) string {
	if v, ok := s.cache.Load(userID); ok {
		return v.(string)
	}
	return group.DefaultName
}

// Loaded reports whether the user currently has a cache entry.
func (s *Service) Loaded(userID uuid.UUID) bool {
	_, ok := s.cache.Load(userID)
	return ok
}

// Assign replaces the user's assignment. An unknown group fails before any
// async work is scheduled. After the upsert commits, the committed row is
// re-read into the cache so concurrent writers converge on whichever write
// the store accepted last, and the presence layer is notified.
func (s *Service) Assign(userID uuid.UUID, groupName string, expiresAt time.Time) *gateway.Future[domain.Record] {
	g, ok := s.directory.Get(groupName)
	if !ok {
		return gateway.Done(domain.Record{}, ErrUnknownGroup)
	}

	return gateway.Do(s.gw, "membership.assign", func(ctx context.Context) (domain.Record, error) {
		rec, err := s.commit(ctx, domain.Record{
			UserID:    userID,
			GroupID:   g.ID,
			ExpiresAt: expiresAt,
		})
		if err != nil {
			return domain.Record{}, err
		}

		if expiresAt.IsZero() {
			s.log.WithField("user", userID).WithField("group", rec.GroupName).
				Info("assigned group (permanent)")
		} else {
			s.log.WithField("user", userID).WithField("group", rec.GroupName).
				WithField("expires_at", expiresAt.UTC()).
				Info("assigned group (temporary)")
		}
		return rec, nil
	})
}

// ResetToDefault reassigns a user to the permanent default group. The cache
// is refreshed only when the user is currently loaded; offline users are
// re-defaulted in the store alone and pick the change up on next connect.
func (s *Service) ResetToDefault(userID uuid.UUID) *gateway.Future[domain.Record] {
	g, ok := s.directory.Get(group.DefaultName)
	if !ok {
		return gateway.Done(domain.Record{}, ErrUnknownGroup)
	}

	return gateway.Do(s.gw, "membership.reset", func(ctx context.Context) (domain.Record, error) {
		return s.reconcileDefault(ctx, userID, g.ID)
	})
}

func (s *Service) reconcileDefault(ctx context.Context, userID uuid.UUID, defaultID int64) (domain.Record, error) {
	rec, err := s.store.UpsertMembership(ctx, domain.Record{
		UserID:  userID,
		GroupID: defaultID,
	})
	if err != nil {
		return domain.Record{}, err
	}

	if s.Loaded(userID) {
		s.put(userID, group.Key(rec.GroupName))
		s.applyPresence(ctx, userID)
	}
	return rec, nil
}

// Unload drops the user's cache entry on disconnect. Idempotent.
func (s *Service) Unload(userID uuid.UUID) {
	if _, loaded := s.cache.LoadAndDelete(userID); loaded {
		metrics.SetMembershipCacheSize(int(s.size.Add(-1)))
	}
}

// ResolvePrefix returns the display prefix for the user's current group. The
// directory and the cache should never disagree, but a missing group record
// degrades to the neutral prefix rather than failing.
func (s *Service) ResolvePrefix(userID uuid.UUID) string {
	g, ok := s.directory.Get(s.CurrentGroup(userID))
	if !ok || g.Prefix == "" {
		return group.NeutralPrefix
	}
	return g.Prefix
}

// ResolvePermissions expands the user's group permissions against the host
// permission registry. Recomputed in full on every call.
func (s *Service) ResolvePermissions(userID uuid.UUID) []string {
	g, ok := s.directory.Get(s.CurrentGroup(userID))
	if !ok {
		return nil
	}
	return perms.Expand(g.Permissions, s.registry)
}

// Lookup reads the user's committed assignment from the store, for the
// administrative info surface.
func (s *Service) Lookup(userID uuid.UUID) *gateway.Future[domain.Record] {
	return gateway.Do(s.gw, "membership.lookup", func(ctx context.Context) (domain.Record, error) {
		return s.store.GetMembership(ctx, userID)
	})
}

// CachedUsers returns the users currently held in the cache.
func (s *Service) CachedUsers() []uuid.UUID {
	var users []uuid.UUID
	s.cache.Range(func(k, _ any) bool {
		users = append(users, k.(uuid.UUID))
		return true
	})
	return users
}

// CacheSize returns the number of cached assignments.
func (s *Service) CacheSize() int {
	return int(s.size.Load())
}

// commit upserts the record, then re-reads the committed row before caching
// it. Optimistically caching the intended value would let the cache drift
// from the store under a concurrent assign/sweep race on the same user.
func (s *Service) commit(ctx context.Context, rec domain.Record) (domain.Record, error) {
	if _, err := s.store.UpsertMembership(ctx, rec); err != nil {
		return domain.Record{}, err
	}
	committed, err := s.store.GetMembership(ctx, rec.UserID)
	if err != nil {
		return domain.Record{}, err
	}

	s.put(rec.UserID, group.Key(committed.GroupName))
	s.applyPresence(ctx, rec.UserID)
	return committed, nil
}

func (s *Service) writeDefault(ctx context.Context, userID uuid.UUID) (domain.Record, error) {
	g, ok := s.directory.Get(group.DefaultName)
	if !ok {
		return domain.Record{}, ErrUnknownGroup
	}
	return s.store.UpsertMembership(ctx, domain.Record{
		UserID:  userID,
		GroupID: g.ID,
	})
}

func (s *Service) put(userID uuid.UUID, key string) {
	if _, loaded := s.cache.Swap(userID, key); !loaded {
		metrics.SetMembershipCacheSize(int(s.size.Add(1)))
	}
}

// applyPresence pushes freshly resolved visible state to the host. Always a
// distinct second step after the cache write, never interleaved with it.
func (s *Service) applyPresence(ctx context.Context, userID uuid.UUID) {
	s.applier.Apply(ctx, userID, s.ResolvePrefix(userID), s.ResolvePermissions(userID))
}
