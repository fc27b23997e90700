package storage

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/luggez/groupsystem/internal/app/domain/group"
	"github.com/luggez/groupsystem/internal/app/domain/membership"
)

// GroupStore persists group records and their permission sets.
type GroupStore interface {
	// ListGroups returns every group with its permissions joined in.
	ListGroups(ctx context.Context) ([]group.Group, error)

	// CreateGroup inserts a new group and returns it with the
	// store-assigned identifier. Returns ErrDuplicateName when the name is
	// already taken.
	CreateGroup(ctx context.Context, name, prefix string) (group.Group, error)

	// DeleteGroup removes a group by name. Membership rows referencing it
	// cascade. Returns ErrNotFound when no such group exists.
	DeleteGroup(ctx context.Context, name string) error

	// GrantPermission adds a permission string to a group. Granting an
	// already-present permission is a no-op.
	GrantPermission(ctx context.Context, groupID int64, permission string) error

	// RevokePermission removes a permission string from a group.
	RevokePermission(ctx context.Context, groupID int64, permission string) error
}

// MembershipStore persists the one-row-per-user group assignments.
type MembershipStore interface {
	// GetMembership returns the assignment for a user, or ErrNotFound.
	GetMembership(ctx context.Context, userID uuid.UUID) (membership.Record, error)

	// UpsertMembership replaces the user's assignment by primary key and
	// returns the committed row with the group name joined in. A zero
	// ExpiresAt persists as a permanent assignment.
	UpsertMembership(ctx context.Context, rec membership.Record) (membership.Record, error)

	// ListGroupMembers returns every assignment referencing the group.
	ListGroupMembers(ctx context.Context, groupID int64) ([]membership.Record, error)

	// ListExpired returns every assignment whose expiry has elapsed at the
	// given instant.
	ListExpired(ctx context.Context, now time.Time) ([]membership.Record, error)
}
