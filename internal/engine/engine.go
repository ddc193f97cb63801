// Package engine turns inbound message and join events into moderation
// decisions. Events are consumed in arrival order by Run and handled
// concurrently, so their effects may complete out of order.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"sentinel-automod/internal/dispatcher"
	"sentinel-automod/internal/lockdown"
	"sentinel-automod/internal/models"
	"sentinel-automod/internal/modules/antiraid"
	"sentinel-automod/internal/modules/antispam"
	"sentinel-automod/internal/modules/invites"
	"sentinel-automod/internal/modules/profanity"
	"sentinel-automod/internal/platform"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var ErrQueueClosed = errors.New("engine queue closed")

// Members holding any of these are never moderated.
const exemptPermissions int64 = discordgo.PermissionAdministrator | discordgo.PermissionManageMessages

type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

type SettingsSource interface {
	Get(ctx context.Context, guildID string) (*models.GuildModerationSettings, error)
}

type ActionDispatcher interface {
	Dispatch(ctx context.Context, req dispatcher.Request) dispatcher.Result
}

type LockdownController interface {
	Lockdown(ctx context.Context, guildID string, duration time.Duration, reason string) (lockdown.Record, error)
}

type Recorder interface {
	Record(ctx context.Context, event models.ViolationEvent)
}

type Deps struct {
	Settings   SettingsSource
	Dispatcher ActionDispatcher
	Lockdowns  LockdownController
	Notifier   platform.Notifier
	Recorder   Recorder
	Logger     *zap.Logger
}

type Options struct {
	// SelfID is the bot's own user id; its messages are ignored.
	SelfID        string
	QueueSize     int
	Workers       int
	DedupeSize    int
	SweepInterval time.Duration
}

func DefaultOptions() Options {
	return Options{
		QueueSize:     1024,
		Workers:       16,
		DedupeSize:    4096,
		SweepInterval: time.Minute,
	}
}

type Event interface {
	Guild() string
}

type MessageEvent struct {
	GuildID   string
	ChannelID string
	MessageID string
	AuthorID  string
	// AuthorPermissions are the author's effective permissions in the channel.
	AuthorPermissions int64
	Content           string
}

func (e MessageEvent) Guild() string { return e.GuildID }

type JoinEvent struct {
	GuildID string
	UserID  string
}

func (e JoinEvent) Guild() string { return e.GuildID }

type Skip string

const (
	SkipNone         Skip = ""
	SkipInvalid      Skip = "invalid"
	SkipSelf         Skip = "self"
	SkipExempt       Skip = "exempt"
	SkipDuplicate    Skip = "duplicate"
	SkipUnconfigured Skip = "unconfigured"
	SkipDisabled     Skip = "disabled"
	SkipError        Skip = "error"
)

// Verdict describes what the engine did with one event.
type Verdict struct {
	Skip       Skip
	Violations []models.ViolationType
	Result     *dispatcher.Result
	JoinCount  int
	Event      *models.ViolationEvent
}

func (v Verdict) Acted() bool {
	return v.Event != nil
}

type Engine struct {
	deps  Deps
	opts  Options
	clock Clock

	spam *antispam.Tracker
	raid *antiraid.Tracker
	seen *lru.Cache[string, struct{}]

	// longest spam window seen, bounds what the janitor may drop
	maxSpamWindow atomic.Int64

	queue    chan Event
	closeMu  sync.RWMutex
	isClosed bool
}

func New(deps Deps, opts Options) (*Engine, error) {
	defaults := DefaultOptions()
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaults.QueueSize
	}
	if opts.Workers <= 0 {
		opts.Workers = defaults.Workers
	}
	if opts.DedupeSize <= 0 {
		opts.DedupeSize = defaults.DedupeSize
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Settings == nil || deps.Dispatcher == nil || deps.Recorder == nil {
		return nil, errors.New("engine requires settings, dispatcher and recorder")
	}

	seen, err := lru.New[string, struct{}](opts.DedupeSize)
	if err != nil {
		return nil, fmt.Errorf("dedupe cache: %w", err)
	}
	return &Engine{
		deps:  deps,
		opts:  opts,
		clock: realClock{},
		spam:  antispam.NewTracker(),
		raid:  antiraid.NewTracker(),
		seen:  seen,
		queue: make(chan Event, opts.QueueSize),
	}, nil
}

func (e *Engine) WithClock(clock Clock) {
	e.clock = clock
}

// Submit enqueues an event for Run. It blocks while the queue is full.
func (e *Engine) Submit(ctx context.Context, ev Event) error {
	e.closeMu.RLock()
	defer e.closeMu.RUnlock()
	if e.isClosed {
		return ErrQueueClosed
	}
	select {
	case e.queue <- ev:
		queueDepth.Set(float64(len(e.queue)))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops intake. Run drains what is already queued, then returns
// ErrQueueClosed.
func (e *Engine) Close() {
	e.closeMu.Lock()
	defer e.closeMu.Unlock()
	if !e.isClosed {
		e.isClosed = true
		close(e.queue)
	}
}

// Run consumes the queue until ctx is cancelled or the queue is closed,
// waiting for in-flight handlers either way. At most Options.Workers events
// are handled at once.
func (e *Engine) Run(ctx context.Context) error {
	var g errgroup.Group
	g.SetLimit(e.opts.Workers)

	var sweep <-chan time.Time
	if e.opts.SweepInterval > 0 {
		ticker := time.NewTicker(e.opts.SweepInterval)
		defer ticker.Stop()
		sweep = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			_ = g.Wait()
			return nil
		case <-sweep:
			e.Sweep()
		case ev, ok := <-e.queue:
			if !ok {
				_ = g.Wait()
				return ErrQueueClosed
			}
			queueDepth.Set(float64(len(e.queue)))
			g.Go(func() error {
				e.handle(ctx, ev)
				return nil
			})
		}
	}
}

// Sweep drops spam windows that no longer hold any message.
func (e *Engine) Sweep() int {
	window := time.Duration(e.maxSpamWindow.Load())
	if window <= 0 {
		return 0
	}
	removed := e.spam.Sweep(e.clock.Now(), window)
	if removed > 0 {
		e.deps.Logger.Debug("swept spam windows", zap.Int("removed", removed), zap.Int("remaining", e.spam.Size()))
	}
	return removed
}

func (e *Engine) handle(ctx context.Context, ev Event) {
	kind := "unknown"
	defer func() {
		if r := recover(); r != nil {
			eventsHandled.WithLabelValues(kind, "panic").Inc()
			e.deps.Logger.Error("event handler panicked",
				zap.String("guild_id", ev.Guild()),
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
		}
	}()

	var verdict Verdict
	switch ev := ev.(type) {
	case MessageEvent:
		kind = "message"
		verdict = e.HandleMessage(ctx, ev)
	case JoinEvent:
		kind = "join"
		verdict = e.HandleJoin(ctx, ev)
	default:
		e.deps.Logger.Warn("unknown event type", zap.String("type", fmt.Sprintf("%T", ev)))
		return
	}
	eventsHandled.WithLabelValues(kind, outcome(verdict)).Inc()
}

func (e *Engine) HandleMessage(ctx context.Context, ev MessageEvent) Verdict {
	if ev.GuildID == "" || ev.AuthorID == "" {
		return Verdict{Skip: SkipInvalid}
	}
	if e.opts.SelfID != "" && ev.AuthorID == e.opts.SelfID {
		return Verdict{Skip: SkipSelf}
	}
	// exempt authors are not even counted toward spam windows
	if ev.AuthorPermissions&exemptPermissions != 0 {
		return Verdict{Skip: SkipExempt}
	}
	if ev.MessageID != "" {
		if seen, _ := e.seen.ContainsOrAdd(ev.MessageID, struct{}{}); seen {
			return Verdict{Skip: SkipDuplicate}
		}
	}

	settings, err := e.deps.Settings.Get(ctx, ev.GuildID)
	if err != nil {
		e.deps.Logger.Warn("settings unavailable", zap.String("guild_id", ev.GuildID), zap.Error(err))
		return Verdict{Skip: SkipError}
	}
	if settings == nil {
		return Verdict{Skip: SkipUnconfigured}
	}

	now := e.clock.Now()
	var violations []models.ViolationType
	if settings.ProfanityEnabled() && profanity.ContainsProfanity(ev.Content, settings.ProfanityThreshold) {
		violations = append(violations, models.ViolationProfanity)
	}
	if settings.InvitesEnabled() && invites.ContainsProhibitedLink(ev.Content) {
		violations = append(violations, models.ViolationInvite)
	}
	if settings.SpamEnabled() {
		e.noteSpamWindow(settings.SpamWindow)
		if e.spam.RecordAndCheck(ev.AuthorID, ev.GuildID, now, settings.SpamThreshold, settings.SpamWindow) {
			violations = append(violations, models.ViolationSpam)
		}
	}
	if len(violations) == 0 {
		return Verdict{}
	}
	for _, kind := range violations {
		violationsDetected.WithLabelValues(string(kind)).Inc()
	}

	action := settings.ContentAction()
	if containsType(violations, models.ViolationSpam) {
		action = settings.SpamAction
	}

	var ref *platform.MessageRef
	if ev.MessageID != "" {
		ref = &platform.MessageRef{GuildID: ev.GuildID, ChannelID: ev.ChannelID, MessageID: ev.MessageID}
	}
	res := e.deps.Dispatcher.Dispatch(ctx, dispatcher.Request{
		GuildID:      ev.GuildID,
		UserID:       ev.AuthorID,
		Message:      ref,
		Violations:   violations,
		Action:       action,
		Reason:       "automod: " + strings.ReplaceAll(models.JoinViolations(violations), ",", ", "),
		Notify:       settings.NotifyUsers,
		MuteDuration: settings.MuteDuration,
	})

	event := models.ViolationEvent{
		ID:           uuid.NewString(),
		GuildID:      ev.GuildID,
		UserID:       ev.AuthorID,
		ChannelID:    ev.ChannelID,
		MessageID:    ev.MessageID,
		Violations:   violations,
		ActionTaken:  string(action),
		WarningCount: res.WarningCount,
		Timestamp:    now,
		Content:      models.TruncateContent(ev.Content),
	}
	if res.Failed() {
		event.ActionTaken = models.ActionTakenFailed
		event.FailureReason = res.EnforceErr.Error()
	}
	e.deps.Recorder.Record(ctx, event)

	return Verdict{Violations: violations, Result: &res, Event: &event}
}

func (e *Engine) HandleJoin(ctx context.Context, ev JoinEvent) Verdict {
	if ev.GuildID == "" {
		return Verdict{Skip: SkipInvalid}
	}
	if e.opts.SelfID != "" && ev.UserID == e.opts.SelfID {
		return Verdict{Skip: SkipSelf}
	}

	settings, err := e.deps.Settings.Get(ctx, ev.GuildID)
	if err != nil {
		e.deps.Logger.Warn("settings unavailable", zap.String("guild_id", ev.GuildID), zap.Error(err))
		return Verdict{Skip: SkipError}
	}
	if settings == nil {
		return Verdict{Skip: SkipUnconfigured}
	}

	now := e.clock.Now()
	// joins are counted whenever a window is set so that enabling anti-raid
	// mid-burst sees the burst
	count := e.raid.RecordJoin(ev.GuildID, now, settings.RaidWindow)
	if !settings.RaidEnabled() {
		return Verdict{Skip: SkipDisabled, JoinCount: count}
	}
	if count < settings.RaidThreshold {
		return Verdict{JoinCount: count}
	}
	// one winner per burst; the window restarts from zero
	if !e.raid.ResetIfAtLeast(ev.GuildID, settings.RaidThreshold) {
		return Verdict{JoinCount: count}
	}
	violationsDetected.WithLabelValues(string(models.ViolationRaid)).Inc()

	reason := fmt.Sprintf("raid: %d joins within %s", count, settings.RaidWindow)
	event := models.ViolationEvent{
		ID:          uuid.NewString(),
		GuildID:     ev.GuildID,
		UserID:      ev.UserID,
		Violations:  []models.ViolationType{models.ViolationRaid},
		ActionTaken: models.ActionTakenAlert,
		Timestamp:   now,
	}

	var announcement string
	switch settings.RaidAction {
	case models.RaidActionLockdown:
		announcement = e.raidLockdown(ctx, settings, reason, &event)
	default:
		announcement = fmt.Sprintf(":warning: Possible raid detected: %d members joined within %s.", count, settings.RaidWindow)
	}
	raidTriggers.WithLabelValues(event.ActionTaken).Inc()
	e.announce(ctx, settings, announcement)
	e.deps.Recorder.Record(ctx, event)

	return Verdict{Violations: event.Violations, JoinCount: count, Event: &event}
}

// RaidJoinCount reports the joins currently in the guild's raid window.
func (e *Engine) RaidJoinCount(ctx context.Context, guildID string) int {
	settings, err := e.deps.Settings.Get(ctx, guildID)
	if err != nil || settings == nil || settings.RaidWindow <= 0 {
		return 0
	}
	return e.raid.Count(guildID, e.clock.Now(), settings.RaidWindow)
}

func (e *Engine) raidLockdown(ctx context.Context, settings *models.GuildModerationSettings, reason string, event *models.ViolationEvent) string {
	if e.deps.Lockdowns == nil {
		event.ActionTaken = models.ActionTakenFailed
		event.FailureReason = "lockdown controller not configured"
		return ":warning: Raid detected but lockdown is unavailable."
	}

	record, err := e.deps.Lockdowns.Lockdown(ctx, settings.GuildID, settings.RaidDuration, reason)
	switch {
	case err == nil:
		event.ActionTaken = models.ActionTakenLockdown
		if record.PlannedEndAt != nil {
			return fmt.Sprintf(":lock: Raid detected, server locked down until <t:%d:t> (%s).", record.PlannedEndAt.Unix(), reason)
		}
		return fmt.Sprintf(":lock: Raid detected, server locked down until lifted with /lockdown off (%s).", reason)
	case errors.Is(err, lockdown.ErrAlreadyLocked):
		event.ActionTaken = models.ActionTakenAlreadyLocked
		return fmt.Sprintf(":warning: Raid activity continues during an active lockdown (%s).", reason)
	default:
		event.ActionTaken = models.ActionTakenFailed
		event.FailureReason = err.Error()
		e.deps.Logger.Warn("raid lockdown failed",
			zap.String("guild_id", settings.GuildID),
			zap.String("action", string(models.RaidActionLockdown)),
			zap.Error(err),
		)
		return fmt.Sprintf(":warning: Raid detected but lockdown failed: %s", err)
	}
}

func (e *Engine) announce(ctx context.Context, settings *models.GuildModerationSettings, content string) {
	if settings.AlertChannelID == "" || e.deps.Notifier == nil {
		e.deps.Logger.Info("raid notice not posted, no alert channel", zap.String("guild_id", settings.GuildID))
		return
	}
	if err := e.deps.Notifier.PostAnnouncement(ctx, settings.AlertChannelID, content); err != nil {
		e.deps.Logger.Warn("raid notice failed", zap.String("guild_id", settings.GuildID), zap.Error(err))
	}
}

func (e *Engine) noteSpamWindow(window time.Duration) {
	for {
		current := e.maxSpamWindow.Load()
		if int64(window) <= current || e.maxSpamWindow.CompareAndSwap(current, int64(window)) {
			return
		}
	}
}

func containsType(kinds []models.ViolationType, want models.ViolationType) bool {
	for _, kind := range kinds {
		if kind == want {
			return true
		}
	}
	return false
}

func outcome(v Verdict) string {
	switch {
	case v.Skip != SkipNone:
		return string(v.Skip)
	case v.Event == nil:
		return "clean"
	default:
		return v.Event.ActionTaken
	}
}
