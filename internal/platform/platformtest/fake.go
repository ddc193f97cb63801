// Package platformtest provides an in-memory platform for tests.
package platformtest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"sentinel-automod/internal/platform"
)

type Call struct {
	Op       string
	GuildID  string
	TargetID string
	Duration time.Duration
	Reason   string
	Content  string
}

// Platform implements platform.Enforcer, platform.RoleManager and
// platform.Notifier. Failures are injected per operation name.
type Platform struct {
	mu       sync.Mutex
	calls    []Call
	failures map[string]error
	perms    map[string]int64
}

func New() *Platform {
	return &Platform{
		failures: make(map[string]error),
		perms:    make(map[string]int64),
	}
}

// Fail makes every later call to op return err; a nil err clears it.
func (p *Platform) Fail(op string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err == nil {
		delete(p.failures, op)
		return
	}
	p.failures[op] = err
}

func (p *Platform) SetPermissions(guildID, roleID string, permissions int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.perms[guildID+"/"+roleID] = permissions
}

func (p *Platform) Permissions(guildID, roleID string) int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.perms[guildID+"/"+roleID]
}

func (p *Platform) Calls() []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Call(nil), p.calls...)
}

// CallsTo returns the recorded calls for one operation.
func (p *Platform) CallsTo(op string) []Call {
	var out []Call
	for _, call := range p.Calls() {
		if call.Op == op {
			out = append(out, call)
		}
	}
	return out
}

func (p *Platform) record(ctx context.Context, call Call) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", call.Op, platform.ErrUnavailable)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.failures[call.Op]; err != nil {
		return err
	}
	p.calls = append(p.calls, call)
	return nil
}

func (p *Platform) DeleteMessage(ctx context.Context, ref platform.MessageRef) error {
	return p.record(ctx, Call{Op: "delete", GuildID: ref.GuildID, TargetID: ref.MessageID})
}

func (p *Platform) TimeoutMember(ctx context.Context, guildID, userID string, duration time.Duration, reason string) error {
	return p.record(ctx, Call{Op: "timeout", GuildID: guildID, TargetID: userID, Duration: duration, Reason: reason})
}

func (p *Platform) KickMember(ctx context.Context, guildID, userID, reason string) error {
	return p.record(ctx, Call{Op: "kick", GuildID: guildID, TargetID: userID, Reason: reason})
}

func (p *Platform) BanMember(ctx context.Context, guildID, userID, reason string, deleteWindow time.Duration) error {
	return p.record(ctx, Call{Op: "ban", GuildID: guildID, TargetID: userID, Duration: deleteWindow, Reason: reason})
}

func (p *Platform) RolePermissions(ctx context.Context, guildID, roleID string) (int64, error) {
	if err := p.record(ctx, Call{Op: "role_read", GuildID: guildID, TargetID: roleID}); err != nil {
		return 0, err
	}
	return p.Permissions(guildID, roleID), nil
}

func (p *Platform) SetRolePermissions(ctx context.Context, guildID, roleID string, permissions int64) error {
	if err := p.record(ctx, Call{Op: "role_write", GuildID: guildID, TargetID: roleID}); err != nil {
		return err
	}
	p.SetPermissions(guildID, roleID, permissions)
	return nil
}

func (p *Platform) SendDirectMessage(ctx context.Context, userID, content string) error {
	return p.record(ctx, Call{Op: "dm", TargetID: userID, Content: content})
}

func (p *Platform) PostAnnouncement(ctx context.Context, channelID, content string) error {
	return p.record(ctx, Call{Op: "announce", TargetID: channelID, Content: content})
}

var (
	_ platform.Enforcer    = (*Platform)(nil)
	_ platform.RoleManager = (*Platform)(nil)
	_ platform.Notifier    = (*Platform)(nil)
)
