package lockdown

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"sentinel-automod/internal/modules/audit"
	"sentinel-automod/internal/platform"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

type fakeTimer struct {
	at      time.Time
	fn      func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	wasActive := !t.stopped && !t.fired
	t.stopped = true
	return wasActive
}

// fakeClock fires due, unstopped timers in deadline order when advanced.
// With ignoreStop set, stopped timers fire anyway, which models a timer that
// had already started running when Stop was called.
type fakeClock struct {
	mu         sync.Mutex
	now        time.Time
	timers     []*fakeTimer
	ignoreStop bool
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) AfterFunc(d time.Duration, fn func()) Timer {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &fakeTimer{at: f.now.Add(d), fn: fn}
	f.timers = append(f.timers, t)
	return t
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	var due, pending []*fakeTimer
	for _, timer := range f.timers {
		switch {
		case timer.stopped && !f.ignoreStop:
		case !timer.at.After(f.now):
			due = append(due, timer)
		default:
			pending = append(pending, timer)
		}
	}
	f.timers = pending
	f.mu.Unlock()

	sort.SliceStable(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })
	for _, timer := range due {
		timer.fired = true
		timer.fn()
	}
}

type fakeRoles struct {
	mu       sync.Mutex
	perms    map[string]int64
	writes   int
	readErr  error
	writeErr error
}

func (f *fakeRoles) RolePermissions(_ context.Context, guildID, roleID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErr != nil {
		return 0, f.readErr
	}
	return f.perms[guildID+"/"+roleID], nil
}

func (f *fakeRoles) SetRolePermissions(_ context.Context, guildID, roleID string, permissions int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	f.writes++
	f.perms[guildID+"/"+roleID] = permissions
	return nil
}

func (f *fakeRoles) get(guildID string) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.perms[guildID+"/"+guildID]
}

func (f *fakeRoles) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writeErr = err
}

const basePerms int64 = discordgo.PermissionViewChannel |
	discordgo.PermissionSendMessages |
	discordgo.PermissionSendMessagesInThreads |
	discordgo.PermissionReadMessageHistory |
	discordgo.PermissionAddReactions

func newController(t *testing.T) (*Controller, *fakeRoles, *fakeClock) {
	t.Helper()
	roles := &fakeRoles{perms: map[string]int64{"g1/g1": basePerms, "g2/g2": basePerms}}
	logger := zap.NewNop()
	ctrl := New(roles, audit.NewLogger(nil, logger), logger, time.Second)
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	ctrl.WithClock(clock)
	return ctrl, roles, clock
}

func TestLockdownStripsAndRestores(t *testing.T) {
	ctrl, roles, _ := newController(t)
	ctx := context.Background()

	record, err := ctrl.Lockdown(ctx, "g1", 0, "manual")
	if err != nil {
		t.Fatalf("lockdown: %v", err)
	}
	if record.Snapshot != basePerms {
		t.Fatalf("snapshot mismatch: %d", record.Snapshot)
	}
	if record.PlannedEndAt != nil {
		t.Fatalf("zero duration must be indefinite")
	}

	locked := roles.get("g1")
	if locked&discordgo.PermissionSendMessages != 0 || locked&discordgo.PermissionSendMessagesInThreads != 0 {
		t.Fatalf("send permissions not stripped: %b", locked)
	}
	if locked&discordgo.PermissionViewChannel == 0 || locked&discordgo.PermissionAddReactions == 0 {
		t.Fatalf("unrelated permissions must survive: %b", locked)
	}

	if err := ctrl.Unlock(ctx, "g1"); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if got := roles.get("g1"); got != basePerms {
		t.Fatalf("expected exact restore %b, got %b", basePerms, got)
	}
	if _, ok := ctrl.Status("g1"); ok {
		t.Fatalf("record must be gone after unlock")
	}
}

func TestRestoreKeepsPreExistingRestrictions(t *testing.T) {
	ctrl, roles, _ := newController(t)
	ctx := context.Background()
	// a guild that already denied thread creation keeps that denial
	roles.perms["g1/g1"] = discordgo.PermissionViewChannel | discordgo.PermissionSendMessages

	if _, err := ctrl.Lockdown(ctx, "g1", 0, "manual"); err != nil {
		t.Fatalf("lockdown: %v", err)
	}
	if err := ctrl.Unlock(ctx, "g1"); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if got := roles.get("g1"); got != discordgo.PermissionViewChannel|discordgo.PermissionSendMessages {
		t.Fatalf("restore changed permissions: %b", got)
	}
}

func TestLockdownIsIdempotent(t *testing.T) {
	ctrl, roles, _ := newController(t)
	ctx := context.Background()

	first, err := ctrl.Lockdown(ctx, "g1", time.Hour, "raid")
	if err != nil {
		t.Fatalf("lockdown: %v", err)
	}
	if _, err := ctrl.Lockdown(ctx, "g1", time.Hour, "raid again"); !errors.Is(err, ErrAlreadyLocked) {
		t.Fatalf("expected ErrAlreadyLocked, got %v", err)
	}
	if roles.writes != 1 {
		t.Fatalf("second lockdown must not touch permissions, writes=%d", roles.writes)
	}
	current, ok := ctrl.Status("g1")
	if !ok || current.Generation != first.Generation || current.Snapshot != basePerms {
		t.Fatalf("original record must be kept: %+v", current)
	}
}

func TestConcurrentLockdownSingleWinner(t *testing.T) {
	ctrl, roles, _ := newController(t)

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := ctrl.Lockdown(context.Background(), "g1", time.Hour, "raid"); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Fatalf("expected exactly one lockdown, got %d", wins)
	}
	if record, _ := ctrl.Status("g1"); record.Snapshot != basePerms {
		t.Fatalf("snapshot must be the pre-lockdown permissions, got %b", record.Snapshot)
	}
	if roles.writes != 1 {
		t.Fatalf("expected one permission write, got %d", roles.writes)
	}
}

func TestUnlockWithoutLockdown(t *testing.T) {
	ctrl, roles, _ := newController(t)
	if err := ctrl.Unlock(context.Background(), "g1"); !errors.Is(err, ErrNotLocked) {
		t.Fatalf("expected ErrNotLocked, got %v", err)
	}
	if roles.writes != 0 {
		t.Fatalf("unlock without lockdown must not write permissions")
	}
}

func TestAutoUnlock(t *testing.T) {
	ctrl, roles, clock := newController(t)
	ctx := context.Background()

	record, err := ctrl.Lockdown(ctx, "g1", 30*time.Minute, "raid")
	if err != nil {
		t.Fatalf("lockdown: %v", err)
	}
	if record.PlannedEndAt == nil || !record.PlannedEndAt.Equal(record.StartedAt.Add(30*time.Minute)) {
		t.Fatalf("unexpected planned end: %v", record.PlannedEndAt)
	}

	clock.Advance(29 * time.Minute)
	if _, ok := ctrl.Status("g1"); !ok {
		t.Fatalf("lockdown ended early")
	}

	clock.Advance(time.Minute)
	if _, ok := ctrl.Status("g1"); ok {
		t.Fatalf("expected lockdown to expire")
	}
	if got := roles.get("g1"); got != basePerms {
		t.Fatalf("expected permissions restored, got %b", got)
	}
	if len(ctrl.Active()) != 0 {
		t.Fatalf("no lockdowns should remain")
	}
}

func TestStaleTimerDoesNotEndNewLockdown(t *testing.T) {
	ctrl, roles, clock := newController(t)
	clock.ignoreStop = true
	ctx := context.Background()

	if _, err := ctrl.Lockdown(ctx, "g1", 10*time.Minute, "first"); err != nil {
		t.Fatalf("lockdown: %v", err)
	}
	clock.Advance(time.Minute)
	if err := ctrl.Unlock(ctx, "g1"); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	clock.Advance(time.Minute)
	second, err := ctrl.Lockdown(ctx, "g1", 10*time.Minute, "second")
	if err != nil {
		t.Fatalf("second lockdown: %v", err)
	}

	// the first timer comes due now; it belongs to an older generation
	clock.Advance(8*time.Minute + time.Second)
	current, ok := ctrl.Status("g1")
	if !ok || current.Generation != second.Generation {
		t.Fatalf("stale timer ended the new lockdown")
	}
	if roles.get("g1")&discordgo.PermissionSendMessages != 0 {
		t.Fatalf("stale timer restored permissions")
	}

	clock.Advance(2 * time.Minute)
	if _, ok := ctrl.Status("g1"); ok {
		t.Fatalf("second lockdown should have expired")
	}
}

func TestFailedLockdownLeavesNoRecord(t *testing.T) {
	ctrl, roles, _ := newController(t)
	roles.fail(platform.ErrMissingPermission)

	_, err := ctrl.Lockdown(context.Background(), "g1", time.Hour, "raid")
	if !errors.Is(err, platform.ErrMissingPermission) {
		t.Fatalf("expected permission error, got %v", err)
	}
	if _, ok := ctrl.Status("g1"); ok {
		t.Fatalf("failed lockdown must not leave a record")
	}

	roles.fail(nil)
	if _, err := ctrl.Lockdown(context.Background(), "g1", time.Hour, "raid"); err != nil {
		t.Fatalf("retry after failure: %v", err)
	}
}

func TestFailedReadLeavesNoRecord(t *testing.T) {
	ctrl, roles, _ := newController(t)
	roles.readErr = platform.ErrUnavailable

	if _, err := ctrl.Lockdown(context.Background(), "g1", time.Hour, "raid"); !errors.Is(err, platform.ErrUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
	if roles.writes != 0 {
		t.Fatalf("no write expected when the snapshot cannot be read")
	}
}

func TestFailedUnlockKeepsRecord(t *testing.T) {
	ctrl, roles, _ := newController(t)
	ctx := context.Background()

	if _, err := ctrl.Lockdown(ctx, "g1", 0, "manual"); err != nil {
		t.Fatalf("lockdown: %v", err)
	}
	roles.fail(platform.ErrUnavailable)
	if err := ctrl.Unlock(ctx, "g1"); !errors.Is(err, platform.ErrUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
	if _, ok := ctrl.Status("g1"); !ok {
		t.Fatalf("failed unlock must keep the record")
	}

	roles.fail(nil)
	if err := ctrl.Unlock(ctx, "g1"); err != nil {
		t.Fatalf("retry unlock: %v", err)
	}
	if got := roles.get("g1"); got != basePerms {
		t.Fatalf("expected restore on retry, got %b", got)
	}
}

func TestFailedAutoUnlockKeepsRecord(t *testing.T) {
	ctrl, roles, clock := newController(t)
	ctx := context.Background()

	if _, err := ctrl.Lockdown(ctx, "g1", time.Minute, "raid"); err != nil {
		t.Fatalf("lockdown: %v", err)
	}
	roles.fail(platform.ErrUnavailable)
	clock.Advance(time.Minute)
	if _, ok := ctrl.Status("g1"); !ok {
		t.Fatalf("failed expiry must keep the record")
	}

	roles.fail(nil)
	if err := ctrl.Unlock(ctx, "g1"); err != nil {
		t.Fatalf("manual unlock after failed expiry: %v", err)
	}
}

func TestGuildsAreIndependent(t *testing.T) {
	ctrl, roles, _ := newController(t)
	ctx := context.Background()

	if _, err := ctrl.Lockdown(ctx, "g1", 0, "raid"); err != nil {
		t.Fatalf("lockdown g1: %v", err)
	}
	if _, err := ctrl.Lockdown(ctx, "g2", 0, "raid"); err != nil {
		t.Fatalf("lockdown g2: %v", err)
	}
	if err := ctrl.Unlock(ctx, "g1"); err != nil {
		t.Fatalf("unlock g1: %v", err)
	}
	if _, ok := ctrl.Status("g2"); !ok {
		t.Fatalf("unlocking g1 must not affect g2")
	}
	if roles.get("g2")&discordgo.PermissionSendMessages != 0 {
		t.Fatalf("g2 should still be locked")
	}
}

func TestShutdownLiftsEverything(t *testing.T) {
	ctrl, roles, _ := newController(t)
	ctx := context.Background()

	for _, guild := range []string{"g1", "g2"} {
		if _, err := ctrl.Lockdown(ctx, guild, time.Hour, "raid"); err != nil {
			t.Fatalf("lockdown %s: %v", guild, err)
		}
	}
	if len(ctrl.Active()) != 2 {
		t.Fatalf("expected two active lockdowns")
	}
	if err := ctrl.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if len(ctrl.Active()) != 0 {
		t.Fatalf("expected no active lockdowns after shutdown")
	}
	if roles.get("g1") != basePerms || roles.get("g2") != basePerms {
		t.Fatalf("expected permissions restored on shutdown")
	}
}
