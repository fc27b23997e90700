package directory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	domain "github.com/luggez/groupsystem/internal/app/domain/membership"
	"github.com/luggez/groupsystem/internal/app/gateway"
	"github.com/luggez/groupsystem/internal/app/storage"
	"github.com/luggez/groupsystem/internal/app/storage/memory"
)

func newService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()

	store := memory.Seeded()
	gw := gateway.New(gateway.Config{Workers: 2, QueueSize: 16}, nil)
	if err := gw.Start(context.Background()); err != nil {
		t.Fatalf("start gateway: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = gw.Stop(ctx)
	})

	svc := New(store, store, gw, nil)
	if err := svc.LoadAll(context.Background()); err != nil {
		t.Fatalf("load groups: %v", err)
	}
	return svc, store
}

func TestLoadAllSeedsCache(t *testing.T) {
	svc, _ := newService(t)

	if !svc.Exists("default") {
		t.Fatal("expected default group in cache")
	}
	if got := len(svc.List()); got != 1 {
		t.Fatalf("expected 1 group, got %d", got)
	}
}

func TestCreateGroup(t *testing.T) {
	svc, _ := newService(t)

	g, err := svc.Create("VIP", "&6[VIP]").Wait(context.Background())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if g.Name != "vip" {
		t.Fatalf("expected canonical name vip, got %q", g.Name)
	}
	if g.ID == 0 {
		t.Fatal("expected store-assigned id")
	}

	// Cache answers immediately, case-insensitively.
	if !svc.Exists("Vip") {
		t.Fatal("expected vip in cache")
	}
	cached, ok := svc.Get("VIP")
	if !ok || cached.Prefix != "&6[VIP]" {
		t.Fatalf("unexpected cached record %+v", cached)
	}
}

func TestCreateDuplicateFailsFast(t *testing.T) {
	svc, _ := newService(t)

	if _, err := svc.Create("vip", "&6").Wait(context.Background()); err != nil {
		t.Fatal(err)
	}
	_, err := svc.Create("VIP", "&6").Wait(context.Background())
	if !errors.Is(err, storage.ErrDuplicateName) {
		t.Fatalf("expected ErrDuplicateName, got %v", err)
	}
}

func TestCreateEmptyName(t *testing.T) {
	svc, _ := newService(t)

	if _, err := svc.Create("  ", "&6").Wait(context.Background()); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestDeleteGroupReturnsAffectedUsers(t *testing.T) {
	svc, store := newService(t)

	g, err := svc.Create("vip", "&6").Wait(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	userID := uuid.New()
	if _, err := store.UpsertMembership(context.Background(), domain.Record{UserID: userID, GroupID: g.ID}); err != nil {
		t.Fatal(err)
	}

	affected, err := svc.Delete("vip").Wait(context.Background())
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(affected) != 1 || affected[0] != userID {
		t.Fatalf("expected [%s], got %v", userID, affected)
	}
	if svc.Exists("vip") {
		t.Fatal("expected vip gone from cache")
	}
}

func TestDeleteDefaultGroupProtected(t *testing.T) {
	svc, _ := newService(t)

	_, err := svc.Delete("default").Wait(context.Background())
	if !errors.Is(err, ErrProtectedGroup) {
		t.Fatalf("expected ErrProtectedGroup, got %v", err)
	}
	if !svc.Exists("default") {
		t.Fatal("default group must survive")
	}
}

func TestDeleteUnknownGroup(t *testing.T) {
	svc, _ := newService(t)

	_, err := svc.Delete("ghost").Wait(context.Background())
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteKeepsCacheOnStoreFailure(t *testing.T) {
	svc, store := newService(t)

	if _, err := svc.Create("vip", "&6").Wait(context.Background()); err != nil {
		t.Fatal(err)
	}

	store.FailNext(storage.ErrUnavailable)
	if _, err := svc.Delete("vip").Wait(context.Background()); err == nil {
		t.Fatal("expected store failure")
	}
	if !svc.Exists("vip") {
		t.Fatal("cache entry must survive a failed delete")
	}
}

func TestGrantAndRevokePermissions(t *testing.T) {
	svc, _ := newService(t)

	if _, err := svc.Create("vip", "&6").Wait(context.Background()); err != nil {
		t.Fatal(err)
	}

	g, err := svc.Grant("vip", "essentials.fly").Wait(context.Background())
	if err != nil {
		t.Fatalf("grant: %v", err)
	}
	if len(g.Permissions) != 1 || g.Permissions[0] != "essentials.fly" {
		t.Fatalf("unexpected permissions %v", g.Permissions)
	}

	// Granting twice stays idempotent in the cached record.
	g, err = svc.Grant("vip", "essentials.fly").Wait(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(g.Permissions) != 1 {
		t.Fatalf("expected 1 permission, got %v", g.Permissions)
	}

	g, err = svc.Revoke("vip", "essentials.fly").Wait(context.Background())
	if err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if len(g.Permissions) != 0 {
		t.Fatalf("expected no permissions, got %v", g.Permissions)
	}
}

func TestGrantUnknownGroup(t *testing.T) {
	svc, _ := newService(t)

	_, err := svc.Grant("ghost", "essentials.fly").Wait(context.Background())
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestNames(t *testing.T) {
	svc, _ := newService(t)

	if _, err := svc.Create("vip", "&6").Wait(context.Background()); err != nil {
		t.Fatal(err)
	}
	names := svc.Names()
	if len(names) != 2 {
		t.Fatalf("expected 2 names, got %v", names)
	}
}
