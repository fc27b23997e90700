package sweeper

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/luggez/groupsystem/internal/app/gateway"
	"github.com/luggez/groupsystem/internal/app/services/directory"
	membershipsvc "github.com/luggez/groupsystem/internal/app/services/membership"
	"github.com/luggez/groupsystem/internal/app/storage"
	"github.com/luggez/groupsystem/internal/app/storage/memory"
)

type fixture struct {
	store   *memory.Store
	members *membershipsvc.Service
	sweeper *Sweeper
}

func newFixture(t *testing.T) *fixture {
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

	dir := directory.New(store, store, gw, nil)
	if err := dir.LoadAll(context.Background()); err != nil {
		t.Fatalf("load groups: %v", err)
	}
	if _, err := dir.Create("vip", "&6[VIP]").Wait(context.Background()); err != nil {
		t.Fatalf("create vip: %v", err)
	}

	members := membershipsvc.New(store, dir, gw, nil, nil, nil)
	return &fixture{
		store:   store,
		members: members,
		sweeper: New(store, members, 0, nil),
	}
}

func TestRunOnceResetsExpired(t *testing.T) {
	f := newFixture(t)
	expiredUser := uuid.New()
	activeUser := uuid.New()

	if _, err := f.members.Assign(expiredUser, "vip", time.Now().Add(-time.Minute)).Wait(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := f.members.Assign(activeUser, "vip", time.Now().Add(time.Hour)).Wait(context.Background()); err != nil {
		t.Fatal(err)
	}

	reconciled, err := f.sweeper.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if reconciled != 1 {
		t.Fatalf("expected 1 reconciled, got %d", reconciled)
	}

	rec, err := f.store.GetMembership(context.Background(), expiredUser)
	if err != nil {
		t.Fatal(err)
	}
	if rec.GroupName != "default" || rec.Temporary() {
		t.Fatalf("expected permanent default, got %+v", rec)
	}

	// The still-valid assignment is untouched.
	rec, err = f.store.GetMembership(context.Background(), activeUser)
	if err != nil {
		t.Fatal(err)
	}
	if rec.GroupName != "vip" {
		t.Fatalf("expected vip untouched, got %q", rec.GroupName)
	}
}

func TestRunOnceUpdatesLoadedUserCache(t *testing.T) {
	f := newFixture(t)
	userID := uuid.New()

	if _, err := f.members.Assign(userID, "vip", time.Now().Add(-time.Second)).Wait(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := f.members.CurrentGroup(userID); got != "vip" {
		t.Fatalf("precondition failed, cached group %q", got)
	}

	if _, err := f.sweeper.RunOnce(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := f.members.CurrentGroup(userID); got != "default" {
		t.Fatalf("expected cache reset to default, got %q", got)
	}
}

func TestRunOnceLeavesOfflineUsersUncached(t *testing.T) {
	f := newFixture(t)
	userID := uuid.New()

	if _, err := f.members.Assign(userID, "vip", time.Now().Add(-time.Second)).Wait(context.Background()); err != nil {
		t.Fatal(err)
	}
	f.members.Unload(userID)

	if _, err := f.sweeper.RunOnce(context.Background()); err != nil {
		t.Fatal(err)
	}
	if f.members.Loaded(userID) {
		t.Fatal("sweep must not cache offline users")
	}
}

func TestRunOnceEmptyStore(t *testing.T) {
	f := newFixture(t)

	reconciled, err := f.sweeper.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if reconciled != 0 {
		t.Fatalf("expected 0, got %d", reconciled)
	}
}

func TestRunOnceScanFailure(t *testing.T) {
	f := newFixture(t)

	f.store.FailNext(storage.ErrUnavailable)
	if _, err := f.sweeper.RunOnce(context.Background()); err == nil {
		t.Fatal("expected scan error")
	}
}

func TestRunOnceResetsEveryExpiredRow(t *testing.T) {
	f := newFixture(t)
	a, b := uuid.New(), uuid.New()

	for _, id := range []uuid.UUID{a, b} {
		if _, err := f.members.Assign(id, "vip", time.Now().Add(-time.Minute)).Wait(context.Background()); err != nil {
			t.Fatal(err)
		}
	}

	reconciled, err := f.sweeper.RunOnce(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if reconciled != 2 {
		t.Fatalf("expected both reconciled, got %d", reconciled)
	}
}

func TestStartStop(t *testing.T) {
	f := newFixture(t)

	if err := f.sweeper.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	// Starting twice is a no-op.
	if err := f.sweeper.Start(context.Background()); err != nil {
		t.Fatalf("second start: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := f.sweeper.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := f.sweeper.Stop(ctx); err != nil {
		t.Fatalf("second stop: %v", err)
	}
}
