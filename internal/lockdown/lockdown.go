package lockdown

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"sentinel-automod/internal/modules/audit"
	"sentinel-automod/internal/platform"

	"github.com/bwmarrin/discordgo"
	"github.com/puzpuzpuz/xsync/v4"
	"go.uber.org/zap"
)

var (
	ErrAlreadyLocked = errors.New("guild is already locked down")
	ErrNotLocked     = errors.New("guild is not locked down")
)

// StrippedPermissions are removed from the default role while a guild is
// locked down.
const StrippedPermissions int64 = discordgo.PermissionSendMessages |
	discordgo.PermissionSendMessagesInThreads |
	discordgo.PermissionCreatePublicThreads |
	discordgo.PermissionCreatePrivateThreads

type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type Timer interface {
	Stop() bool
}

type realClock struct{}

type realTimer struct{ t *time.Timer }

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return realTimer{t: time.AfterFunc(d, f)}
}

func (t realTimer) Stop() bool { return t.t.Stop() }

// Record describes an active lockdown. Snapshot holds the default role's
// permissions from before the lockdown and is restored verbatim.
type Record struct {
	GuildID      string
	Snapshot     int64
	StartedAt    time.Time
	PlannedEndAt *time.Time
	Reason       string
	Generation   uint64
}

type active struct {
	record Record
	timer  Timer
}

type Controller struct {
	roles       platform.RoleManager
	audit       *audit.Logger
	logger      *zap.Logger
	clock       Clock
	callTimeout time.Duration

	generation atomic.Uint64
	locks      *xsync.Map[string, *sync.Mutex]
	records    *xsync.Map[string, *active]
}

func New(roles platform.RoleManager, auditLogger *audit.Logger, logger *zap.Logger, callTimeout time.Duration) *Controller {
	return &Controller{
		roles:       roles,
		audit:       auditLogger,
		logger:      logger,
		clock:       realClock{},
		callTimeout: callTimeout,
		locks:       xsync.NewMap[string, *sync.Mutex](),
		records:     xsync.NewMap[string, *active](),
	}
}

func (c *Controller) WithClock(clock Clock) {
	c.clock = clock
}

// Lockdown strips messaging permissions from the guild's default role. A
// positive duration schedules an automatic Unlock; zero keeps the lockdown
// until it is lifted by hand.
func (c *Controller) Lockdown(ctx context.Context, guildID string, duration time.Duration, reason string) (Record, error) {
	unlock := c.lockGuild(guildID)
	defer unlock()

	if _, ok := c.records.Load(guildID); ok {
		return Record{}, ErrAlreadyLocked
	}

	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	// the @everyone role shares the guild's id
	snapshot, err := c.roles.RolePermissions(callCtx, guildID, guildID)
	if err != nil {
		lockdownTransitions.WithLabelValues("lock", "error").Inc()
		return Record{}, fmt.Errorf("read default role: %w", err)
	}
	if err := c.roles.SetRolePermissions(callCtx, guildID, guildID, snapshot&^StrippedPermissions); err != nil {
		lockdownTransitions.WithLabelValues("lock", "error").Inc()
		return Record{}, fmt.Errorf("restrict default role: %w", err)
	}

	now := c.clock.Now()
	record := Record{
		GuildID:    guildID,
		Snapshot:   snapshot,
		StartedAt:  now,
		Reason:     reason,
		Generation: c.generation.Add(1),
	}
	state := &active{}
	if duration > 0 {
		end := now.Add(duration)
		record.PlannedEndAt = &end
		generation := record.Generation
		state.timer = c.clock.AfterFunc(duration, func() { c.expire(guildID, generation) })
	}
	state.record = record
	c.records.Store(guildID, state)

	lockdownTransitions.WithLabelValues("lock", "ok").Inc()
	activeLockdowns.Inc()
	details := reason
	if record.PlannedEndAt != nil {
		details = fmt.Sprintf("%s (until %s)", reason, record.PlannedEndAt.UTC().Format(time.RFC3339))
	}
	c.audit.Log(ctx, audit.LevelCrit, guildID, "", "lockdown_on", details)
	return record, nil
}

// Unlock restores the default role exactly as it was before the lockdown.
// If the restore fails the lockdown stays in place and can be retried.
func (c *Controller) Unlock(ctx context.Context, guildID string) error {
	unlock := c.lockGuild(guildID)
	defer unlock()

	state, ok := c.records.Load(guildID)
	if !ok {
		return ErrNotLocked
	}
	if err := c.restoreLocked(ctx, state); err != nil {
		return err
	}
	c.audit.Log(ctx, audit.LevelInfo, guildID, "", "lockdown_off", "lifted manually")
	return nil
}

func (c *Controller) Status(guildID string) (Record, bool) {
	state, ok := c.records.Load(guildID)
	if !ok {
		return Record{}, false
	}
	return state.record, true
}

func (c *Controller) Active() []Record {
	var records []Record
	c.records.Range(func(_ string, state *active) bool {
		records = append(records, state.record)
		return true
	})
	sort.Slice(records, func(i, j int) bool { return records[i].GuildID < records[j].GuildID })
	return records
}

// Shutdown lifts every active lockdown. Lockdowns live only in memory, so one
// left in place across a restart could never expire.
func (c *Controller) Shutdown(ctx context.Context) error {
	var errs []error
	for _, record := range c.Active() {
		if err := c.Unlock(ctx, record.GuildID); err != nil && !errors.Is(err, ErrNotLocked) {
			errs = append(errs, fmt.Errorf("guild %s: %w", record.GuildID, err))
		}
	}
	return errors.Join(errs...)
}

func (c *Controller) expire(guildID string, generation uint64) {
	unlock := c.lockGuild(guildID)
	defer unlock()

	state, ok := c.records.Load(guildID)
	if !ok || state.record.Generation != generation {
		// lifted or replaced since this timer was armed
		return
	}
	ctx := context.Background()
	if err := c.restoreLocked(ctx, state); err != nil {
		c.logger.Error("automatic unlock failed", zap.String("guild_id", guildID), zap.Error(err))
		c.audit.Log(ctx, audit.LevelCrit, guildID, "", "lockdown_restore_failed", err.Error())
		return
	}
	c.audit.Log(ctx, audit.LevelInfo, guildID, "", "lockdown_off", "expired")
}

// restoreLocked must be called with the guild lock held.
func (c *Controller) restoreLocked(ctx context.Context, state *active) error {
	guildID := state.record.GuildID
	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	if err := c.roles.SetRolePermissions(callCtx, guildID, guildID, state.record.Snapshot); err != nil {
		lockdownTransitions.WithLabelValues("unlock", "error").Inc()
		return fmt.Errorf("restore default role: %w", err)
	}
	if state.timer != nil {
		state.timer.Stop()
	}
	c.records.Delete(guildID)
	lockdownTransitions.WithLabelValues("unlock", "ok").Inc()
	activeLockdowns.Dec()
	return nil
}

func (c *Controller) lockGuild(guildID string) func() {
	mu, _ := c.locks.LoadOrCompute(guildID, func() (*sync.Mutex, bool) {
		return &sync.Mutex{}, false
	})
	mu.Lock()
	return mu.Unlock
}

func (c *Controller) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.callTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.callTimeout)
}
