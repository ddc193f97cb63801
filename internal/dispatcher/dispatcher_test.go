package dispatcher

import (
	"context"
	"errors"
	"testing"
	"time"

	"sentinel-automod/internal/models"
	"sentinel-automod/internal/platform"
	"sentinel-automod/internal/platform/platformtest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type countingWarnings struct {
	counts map[string]int
	err    error
	window time.Duration
}

func (c *countingWarnings) AddWarning(_ context.Context, guildID, userID, _, _ string, forgiveAfter time.Duration) (int, error) {
	if c.err != nil {
		return 0, c.err
	}
	c.window = forgiveAfter
	c.counts[guildID+"/"+userID]++
	return c.counts[guildID+"/"+userID], nil
}

func newDispatcher(t *testing.T) (*Dispatcher, *platformtest.Platform, *countingWarnings) {
	t.Helper()
	fake := platformtest.New()
	warnings := &countingWarnings{counts: make(map[string]int)}
	return New(fake, fake, warnings, zap.NewNop(), DefaultOptions()), fake, warnings
}

func message() *platform.MessageRef {
	return &platform.MessageRef{GuildID: "g1", ChannelID: "c1", MessageID: "m1"}
}

func TestDispatchOrder(t *testing.T) {
	d, fake, _ := newDispatcher(t)

	res := d.Dispatch(context.Background(), Request{
		GuildID:      "g1",
		UserID:       "u1",
		Message:      message(),
		Violations:   []models.ViolationType{models.ViolationSpam},
		Action:       models.ActionMute,
		Reason:       "spam",
		Notify:       true,
		MuteDuration: 30 * time.Second,
	})

	require.False(t, res.Failed())
	assert.True(t, res.Deleted)
	assert.True(t, res.Notified)
	assert.Equal(t, 30*time.Second, res.Duration)

	calls := fake.Calls()
	require.Len(t, calls, 3)
	assert.Equal(t, "delete", calls[0].Op)
	assert.Equal(t, "dm", calls[1].Op)
	assert.Contains(t, calls[1].Content, "muted for 30s")
	assert.Equal(t, "timeout", calls[2].Op)
	assert.Equal(t, 30*time.Second, calls[2].Duration)
}

func TestDeleteActionOnlyDeletes(t *testing.T) {
	d, fake, _ := newDispatcher(t)

	res := d.Dispatch(context.Background(), Request{GuildID: "g1", UserID: "u1", Message: message(), Action: models.ActionDelete})
	assert.False(t, res.Failed())
	assert.Len(t, fake.Calls(), 1)
}

func TestDeleteNotFoundIsSilent(t *testing.T) {
	d, fake, _ := newDispatcher(t)
	fake.Fail("delete", platform.ErrNotFound)

	res := d.Dispatch(context.Background(), Request{GuildID: "g1", UserID: "u1", Message: message(), Action: models.ActionDelete})
	assert.False(t, res.Failed())
	assert.False(t, res.Deleted)
	assert.NoError(t, res.DeleteErr)
}

func TestDeleteFailureIsEnforcementFailureForDelete(t *testing.T) {
	d, fake, _ := newDispatcher(t)
	fake.Fail("delete", platform.ErrMissingPermission)

	res := d.Dispatch(context.Background(), Request{GuildID: "g1", UserID: "u1", Message: message(), Action: models.ActionDelete})
	require.True(t, res.Failed())
	assert.ErrorIs(t, res.EnforceErr, platform.ErrMissingPermission)
}

func TestDeleteFailureDoesNotStopEnforcement(t *testing.T) {
	d, fake, _ := newDispatcher(t)
	fake.Fail("delete", platform.ErrMissingPermission)

	res := d.Dispatch(context.Background(), Request{GuildID: "g1", UserID: "u1", Message: message(), Action: models.ActionKick, Reason: "invite"})
	assert.False(t, res.Failed())
	assert.ErrorIs(t, res.DeleteErr, platform.ErrMissingPermission)
	assert.Len(t, fake.CallsTo("kick"), 1)
}

func TestNotificationFailureIsSwallowed(t *testing.T) {
	d, fake, _ := newDispatcher(t)
	fake.Fail("dm", errors.New("cannot send messages to this user"))

	res := d.Dispatch(context.Background(), Request{GuildID: "g1", UserID: "u1", Message: message(), Action: models.ActionBan, Notify: true})
	assert.False(t, res.Failed())
	assert.False(t, res.Notified)
	require.Len(t, fake.CallsTo("ban"), 1)
	assert.Equal(t, time.Hour, fake.CallsTo("ban")[0].Duration)
}

func TestNotifyDisabled(t *testing.T) {
	d, fake, _ := newDispatcher(t)
	d.Dispatch(context.Background(), Request{GuildID: "g1", UserID: "u1", Message: message(), Action: models.ActionDelete, Notify: false})
	assert.Empty(t, fake.CallsTo("dm"))
}

func TestWarnCountsWarnings(t *testing.T) {
	d, fake, warnings := newDispatcher(t)
	ctx := context.Background()

	first := d.Dispatch(ctx, Request{GuildID: "g1", UserID: "u1", Action: models.ActionWarn})
	second := d.Dispatch(ctx, Request{GuildID: "g1", UserID: "u1", Action: models.ActionWarn})

	assert.Equal(t, 1, first.WarningCount)
	assert.Equal(t, 2, second.WarningCount)
	assert.Equal(t, DefaultOptions().WarningForgiveness, warnings.window)
	assert.Empty(t, fake.Calls(), "warn applies no platform restriction")
}

func TestWarnStoreFailure(t *testing.T) {
	d, _, warnings := newDispatcher(t)
	warnings.err = errors.New("database is locked")

	res := d.Dispatch(context.Background(), Request{GuildID: "g1", UserID: "u1", Action: models.ActionWarn})
	assert.True(t, res.Failed())
}

func TestMuteDurationClampedAndValidated(t *testing.T) {
	d, fake, _ := newDispatcher(t)
	ctx := context.Background()

	res := d.Dispatch(ctx, Request{GuildID: "g1", UserID: "u1", Action: models.ActionMute, MuteDuration: 60 * 24 * time.Hour})
	require.False(t, res.Failed())
	assert.Equal(t, platform.MaxTimeout, fake.CallsTo("timeout")[0].Duration)

	res = d.Dispatch(ctx, Request{GuildID: "g1", UserID: "u1", Action: models.ActionMute})
	assert.ErrorIs(t, res.EnforceErr, ErrInvalidDuration)
	assert.Len(t, fake.CallsTo("timeout"), 1)
}

func TestUnknownAction(t *testing.T) {
	d, fake, _ := newDispatcher(t)
	res := d.Dispatch(context.Background(), Request{GuildID: "g1", UserID: "u1", Message: message(), Action: "explode"})
	assert.ErrorIs(t, res.EnforceErr, ErrUnknownAction)
	assert.Empty(t, fake.Calls())
}

func TestEnforcementFailureReported(t *testing.T) {
	d, fake, _ := newDispatcher(t)
	fake.Fail("timeout", platform.ErrMissingPermission)

	res := d.Dispatch(context.Background(), Request{GuildID: "g1", UserID: "u1", Message: message(), Action: models.ActionMute, MuteDuration: time.Minute})
	assert.True(t, res.Deleted)
	assert.ErrorIs(t, res.EnforceErr, platform.ErrMissingPermission)
}

func TestCanceledContext(t *testing.T) {
	d, _, _ := newDispatcher(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := d.Dispatch(ctx, Request{GuildID: "g1", UserID: "u1", Action: models.ActionKick})
	assert.ErrorIs(t, res.EnforceErr, platform.ErrUnavailable)
}
