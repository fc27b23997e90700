// Package presence is the boundary to the host's presentation and permission
// layer. The core only pushes resolved state through it; how prefixes and
// permission attachments are applied is the host's concern.
package presence

import (
	"context"

	"github.com/google/uuid"

	"github.com/luggez/groupsystem/pkg/logger"
)

// Applier receives resolved visible state for a connected user. Apply is
// called after the cache reflects a committed store write, never before.
type Applier interface {
	Apply(ctx context.Context, userID uuid.UUID, prefix string, permissions []string)
	Clear(userID uuid.UUID)
}

// LogApplier is the default Applier; it only records what would be pushed.
type LogApplier struct {
	Log *logger.Logger
}

var _ Applier = (*LogApplier)(nil)

func (a *LogApplier) Apply(_ context.Context, userID uuid.UUID, prefix string, permissions []string) {
	if a.Log == nil {
		return
	}
	a.Log.WithField("user", userID).
		WithField("prefix", prefix).
		Debugf("applied %d permission(s)", len(permissions))
}

func (a *LogApplier) Clear(userID uuid.UUID) {
	if a.Log == nil {
		return
	}
	a.Log.WithField("user", userID).Debug("cleared visible state")
}
