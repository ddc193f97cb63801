package bot

import (
	"errors"
	"testing"
	"time"

	"sentinel-automod/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplySetting(t *testing.T) {
	s := models.GuildModerationSettings{GuildID: "g1"}

	steps := []struct{ field, value string }{
		{"spam", "on"},
		{"spam_threshold", "5"},
		{"spam_window_seconds", "10"},
		{"spam_action", "MUTE"},
		{"mute_minutes", "15"},
		{"anti_raid", "true"},
		{"raid_action", "lockdown"},
		{"raid_lockdown_minutes", "0"},
		{"alert_channel", "<#123>"},
	}
	for _, step := range steps {
		require.NoError(t, applySetting(&s, step.field, step.value), step.field)
	}

	assert.True(t, s.SpamEnabled())
	assert.Equal(t, 10*time.Second, s.SpamWindow)
	assert.Equal(t, 15*time.Minute, s.MuteDuration)
	assert.Equal(t, models.RaidActionLockdown, s.RaidAction)
	assert.Equal(t, time.Duration(0), s.RaidDuration)
	assert.Equal(t, "123", s.AlertChannelID)
	// raid threshold and window are still zero
	assert.Error(t, s.Validate())

	require.NoError(t, applySetting(&s, "alert_channel", "none"))
	assert.Empty(t, s.AlertChannelID)
}

func TestApplySettingRejectsBadValues(t *testing.T) {
	s := models.Preset("g1", "medium")
	before := s

	assert.Error(t, applySetting(&s, "spam_threshold", "-1"))
	assert.Error(t, applySetting(&s, "spam_window_seconds", "soon"))
	assert.Error(t, applySetting(&s, "profanity_tier", "extreme"))
	assert.Error(t, applySetting(&s, "raid_action", "ban"))
	assert.Error(t, applySetting(&s, "invites", "maybe"))
	assert.Equal(t, before, s)

	err := applySetting(&s, "colour", "red")
	assert.True(t, errors.Is(err, errUnknownField))
}

func TestSettingFieldsAreAccepted(t *testing.T) {
	for _, field := range settingFields {
		s := models.GuildModerationSettings{GuildID: "g1"}
		err := applySetting(&s, field, "")
		assert.False(t, errors.Is(err, errUnknownField), field)
	}
}
