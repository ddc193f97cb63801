package analytics

import (
	"context"
	"errors"
	"testing"
	"time"

	"sentinel-automod/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLister struct {
	events []models.ViolationEvent
	err    error
}

func (f fakeLister) ListViolations(ctx context.Context, guildID string, since time.Time) ([]models.ViolationEvent, error) {
	return f.events, f.err
}

func TestReportCounts(t *testing.T) {
	events := []models.ViolationEvent{
		{UserID: "u1", Violations: []models.ViolationType{models.ViolationSpam}, ActionTaken: "mute"},
		{UserID: "u1", Violations: []models.ViolationType{models.ViolationProfanity, models.ViolationInvite}, ActionTaken: "delete"},
		{UserID: "u2", Violations: []models.ViolationType{models.ViolationProfanity}, ActionTaken: models.ActionTakenFailed},
		{Violations: []models.ViolationType{models.ViolationRaid}, ActionTaken: models.ActionTakenLockdown},
	}
	report, err := New(fakeLister{events: events}).Report(context.Background(), "g1", time.Now().Add(-time.Hour))
	require.NoError(t, err)

	assert.Equal(t, 4, report.Total)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 2, report.ByType[models.ViolationProfanity])
	assert.Equal(t, 1, report.ByType[models.ViolationRaid])
	assert.Equal(t, 1, report.ByAction["delete"])
	require.Len(t, report.TopUsers, 2)
	assert.Equal(t, UserCount{UserID: "u1", Count: 2}, report.TopUsers[0])
	assert.Equal(t,
		"Total: 4 | Failed: 1 | invite_link: 1 | profanity: 2 | raid: 1 | spam: 1 | delete: 1 | failed: 1 | lockdown: 1 | mute: 1",
		report.Summary())
}

func TestReportTopUsersCapped(t *testing.T) {
	var events []models.ViolationEvent
	for _, user := range []string{"a", "b", "c", "d", "e", "f", "g"} {
		events = append(events, models.ViolationEvent{UserID: user, ActionTaken: "warn"})
	}
	report, err := New(fakeLister{events: events}).Report(context.Background(), "g1", time.Time{})
	require.NoError(t, err)
	assert.Len(t, report.TopUsers, 5)
	assert.Equal(t, "a", report.TopUsers[0].UserID)
}

func TestReportError(t *testing.T) {
	boom := errors.New("boom")
	_, err := New(fakeLister{err: boom}).Report(context.Background(), "g1", time.Time{})
	assert.ErrorIs(t, err, boom)
}
