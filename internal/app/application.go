package app

import (
	"context"
	"fmt"
	"time"

	"github.com/luggez/groupsystem/internal/app/gateway"
	"github.com/luggez/groupsystem/internal/app/presence"
	"github.com/luggez/groupsystem/internal/app/services/directory"
	membershipsvc "github.com/luggez/groupsystem/internal/app/services/membership"
	"github.com/luggez/groupsystem/internal/app/services/perms"
	"github.com/luggez/groupsystem/internal/app/services/sweeper"
	"github.com/luggez/groupsystem/internal/app/storage"
	"github.com/luggez/groupsystem/internal/app/storage/memory"
	"github.com/luggez/groupsystem/internal/app/system"
	"github.com/luggez/groupsystem/internal/messages"
	"github.com/luggez/groupsystem/pkg/logger"
)

// Stores encapsulates persistence dependencies. Nil stores default to the
// seeded in-memory implementation.
type Stores struct {
	Groups      storage.GroupStore
	Memberships storage.MembershipStore
}

// Options tunes the application without requiring a config file.
type Options struct {
	Gateway       gateway.Config
	SweepInterval time.Duration

	// KnownPermissions pre-populates the wildcard expansion registry.
	KnownPermissions []string

	// Applier receives resolved prefix and permission sets after cache
	// writes. Nil falls back to the logging applier.
	Applier presence.Applier

	Messages *messages.Catalog
	MOTD     string
}

// Application ties the services together and manages their lifecycle.
type Application struct {
	manager *system.Manager
	log     *logger.Logger

	Gateway     *gateway.Gateway
	Directory   *directory.Service
	Memberships *membershipsvc.Service
	Sweeper     *sweeper.Sweeper
	Registry    *perms.Registry
	Applier     presence.Applier
	Messages    *messages.Catalog
	MOTD        string
}

// New builds a fully initialised application with the provided stores.
func New(stores Stores, opts Options, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}

	if stores.Groups == nil || stores.Memberships == nil {
		mem := memory.Seeded()
		if stores.Groups == nil {
			stores.Groups = mem
		}
		if stores.Memberships == nil {
			stores.Memberships = mem
		}
	}
	if opts.Messages == nil {
		opts.Messages = messages.Defaults()
	}

	gw := gateway.New(opts.Gateway, log.WithField("component", "gateway"))
	registry := perms.NewRegistry(opts.KnownPermissions...)

	applier := opts.Applier
	if applier == nil {
		applier = &presence.LogApplier{Log: log.WithField("component", "presence")}
	}

	dir := directory.New(stores.Groups, stores.Memberships, gw, log.WithField("component", "directory"))
	members := membershipsvc.New(stores.Memberships, dir, gw, registry, applier, log.WithField("component", "membership"))
	sweep := sweeper.New(stores.Memberships, members, opts.SweepInterval, log.WithField("component", "sweeper"))

	manager := system.NewManager()
	for _, svc := range []system.Service{gw, sweep} {
		if err := manager.Register(svc); err != nil {
			return nil, fmt.Errorf("register %s: %w", svc.Name(), err)
		}
	}

	return &Application{
		manager:     manager,
		log:         log,
		Gateway:     gw,
		Directory:   dir,
		Memberships: members,
		Sweeper:     sweep,
		Registry:    registry,
		Applier:     applier,
		Messages:    opts.Messages,
		MOTD:        opts.MOTD,
	}, nil
}

// Attach registers an additional lifecycle-managed service. Call before Start.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// Start warms the group directory from the store, then starts the managed
// services. A directory load failure aborts startup; the caches are the only
// read path and must not come up empty against a populated store.
func (a *Application) Start(ctx context.Context) error {
	if err := a.Directory.LoadAll(ctx); err != nil {
		return fmt.Errorf("load group directory: %w", err)
	}
	return a.manager.StartAll(ctx)
}

// Stop stops the managed services in reverse order.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.StopAll(ctx)
}
