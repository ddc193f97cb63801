// Package dispatcher carries out one enforcement decision against the
// platform: delete the offending message, tell the user, then apply the
// configured action.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"sentinel-automod/internal/models"
	"sentinel-automod/internal/platform"
	"sentinel-automod/internal/storage"

	"go.uber.org/zap"
)

var (
	ErrUnknownAction   = errors.New("unknown enforcement action")
	ErrInvalidDuration = errors.New("mute duration must be positive")
)

// WarningStore keeps per-user warning tallies.
type WarningStore interface {
	AddWarning(ctx context.Context, guildID, userID, category, reason string, forgiveAfter time.Duration) (int, error)
}

type Options struct {
	CallTimeout        time.Duration
	BanDeleteWindow    time.Duration
	WarningForgiveness time.Duration
	MaxTimeout         time.Duration
}

func DefaultOptions() Options {
	return Options{
		CallTimeout:        10 * time.Second,
		BanDeleteWindow:    time.Hour,
		WarningForgiveness: 30 * 24 * time.Hour,
		MaxTimeout:         platform.MaxTimeout,
	}
}

type Request struct {
	GuildID    string
	UserID     string
	Message    *platform.MessageRef
	Violations []models.ViolationType
	Action     models.Action
	Reason     string
	Notify     bool
	// MuteDuration is only read for ActionMute.
	MuteDuration time.Duration
}

// Result reports each step separately. EnforceErr is the only error that
// makes the decision a failure.
type Result struct {
	Action       models.Action
	Deleted      bool
	DeleteErr    error
	Notified     bool
	EnforceErr   error
	WarningCount int
	Duration     time.Duration
}

func (r Result) Failed() bool {
	return r.EnforceErr != nil
}

type Dispatcher struct {
	enforcer platform.Enforcer
	notifier platform.Notifier
	warnings WarningStore
	logger   *zap.Logger
	opts     Options
}

func New(enforcer platform.Enforcer, notifier platform.Notifier, warnings WarningStore, logger *zap.Logger, opts Options) *Dispatcher {
	defaults := DefaultOptions()
	if opts.BanDeleteWindow < 0 {
		opts.BanDeleteWindow = 0
	}
	if opts.WarningForgiveness <= 0 {
		opts.WarningForgiveness = defaults.WarningForgiveness
	}
	if opts.MaxTimeout <= 0 || opts.MaxTimeout > platform.MaxTimeout {
		opts.MaxTimeout = platform.MaxTimeout
	}
	return &Dispatcher{
		enforcer: enforcer,
		notifier: notifier,
		warnings: warnings,
		logger:   logger,
		opts:     opts,
	}
}

func (d *Dispatcher) Dispatch(ctx context.Context, req Request) Result {
	start := time.Now()
	res := Result{Action: req.Action}
	defer func() {
		outcome := "ok"
		if res.EnforceErr != nil {
			outcome = "failed"
		}
		label := string(req.Action)
		if !req.Action.Valid() {
			label = "unknown"
		}
		actionsDispatched.WithLabelValues(label, outcome).Inc()
		dispatchDuration.WithLabelValues(label).Observe(time.Since(start).Seconds())
	}()

	if !req.Action.Valid() {
		res.EnforceErr = fmt.Errorf("%w: %q", ErrUnknownAction, req.Action)
		return res
	}
	if req.Action == models.ActionMute {
		res.Duration = req.MuteDuration
		if res.Duration > d.opts.MaxTimeout {
			res.Duration = d.opts.MaxTimeout
		}
	}

	if req.Message != nil {
		err := d.call(ctx, func(ctx context.Context) error {
			return d.enforcer.DeleteMessage(ctx, *req.Message)
		})
		switch {
		case err == nil:
			res.Deleted = true
		case errors.Is(err, platform.ErrNotFound):
			// already gone
		default:
			res.DeleteErr = err
			d.logger.Warn("message delete failed",
				zap.String("guild_id", req.GuildID),
				zap.String("user_id", req.UserID),
				zap.String("message_id", req.Message.MessageID),
				zap.Error(err),
			)
		}
	}

	if req.Notify && d.notifier != nil {
		err := d.call(ctx, func(ctx context.Context) error {
			return d.notifier.SendDirectMessage(ctx, req.UserID, notice(req, res.Duration))
		})
		if err == nil {
			res.Notified = true
		} else {
			d.logger.Debug("user notification failed", zap.String("user_id", req.UserID), zap.Error(err))
		}
	}

	res.EnforceErr = d.enforce(ctx, req, &res)
	if res.EnforceErr != nil {
		d.logger.Warn("enforcement failed",
			zap.String("guild_id", req.GuildID),
			zap.String("user_id", req.UserID),
			zap.String("action", string(req.Action)),
			zap.Error(res.EnforceErr),
		)
	}
	return res
}

func (d *Dispatcher) enforce(ctx context.Context, req Request, res *Result) error {
	switch req.Action {
	case models.ActionDelete:
		return res.DeleteErr
	case models.ActionWarn:
		if d.warnings == nil {
			return nil
		}
		count, err := d.warnings.AddWarning(ctx, req.GuildID, req.UserID, storage.WarningCategory, req.Reason, d.opts.WarningForgiveness)
		if err != nil {
			return fmt.Errorf("record warning: %w", err)
		}
		res.WarningCount = count
		return nil
	case models.ActionMute:
		if res.Duration <= 0 {
			return ErrInvalidDuration
		}
		return d.call(ctx, func(ctx context.Context) error {
			return d.enforcer.TimeoutMember(ctx, req.GuildID, req.UserID, res.Duration, req.Reason)
		})
	case models.ActionKick:
		return d.call(ctx, func(ctx context.Context) error {
			return d.enforcer.KickMember(ctx, req.GuildID, req.UserID, req.Reason)
		})
	case models.ActionBan:
		return d.call(ctx, func(ctx context.Context) error {
			return d.enforcer.BanMember(ctx, req.GuildID, req.UserID, req.Reason, d.opts.BanDeleteWindow)
		})
	}
	return fmt.Errorf("%w: %q", ErrUnknownAction, req.Action)
}

func (d *Dispatcher) call(ctx context.Context, fn func(context.Context) error) error {
	if d.opts.CallTimeout <= 0 {
		return fn(ctx)
	}
	callCtx, cancel := context.WithTimeout(ctx, d.opts.CallTimeout)
	defer cancel()
	return fn(callCtx)
}

func notice(req Request, duration time.Duration) string {
	kinds := make([]string, 0, len(req.Violations))
	for _, kind := range req.Violations {
		kinds = append(kinds, strings.ReplaceAll(string(kind), "_", " "))
	}
	reason := strings.Join(kinds, ", ")
	if reason == "" {
		reason = req.Reason
	}

	switch req.Action {
	case models.ActionWarn:
		return fmt.Sprintf("You received a warning from the server moderation (%s).", reason)
	case models.ActionMute:
		return fmt.Sprintf("You have been muted for %s (%s).", duration.Round(time.Second), reason)
	case models.ActionKick:
		return fmt.Sprintf("You have been kicked from the server (%s).", reason)
	case models.ActionBan:
		return fmt.Sprintf("You have been banned from the server (%s).", reason)
	default:
		return fmt.Sprintf("Your message was removed (%s).", reason)
	}
}
