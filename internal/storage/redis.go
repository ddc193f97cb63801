package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"sentinel-automod/internal/models"

	"github.com/redis/go-redis/v9"
)

const settingsKeyPrefix = "automod:settings:"

// RedisSettingsStore keeps guild settings as JSON documents so several bot
// shards can share one configuration source.
type RedisSettingsStore struct {
	client *redis.Client
}

func NewRedisSettings(url string) (*RedisSettingsStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return &RedisSettingsStore{client: redis.NewClient(opts)}, nil
}

func NewRedisSettingsFromClient(client *redis.Client) *RedisSettingsStore {
	return &RedisSettingsStore{client: client}
}

func (s *RedisSettingsStore) Close() error {
	return s.client.Close()
}

func (s *RedisSettingsStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// LoadSettings returns nil, nil when the guild has no document.
func (s *RedisSettingsStore) LoadSettings(ctx context.Context, guildID string) (*models.GuildModerationSettings, error) {
	raw, err := s.client.Get(ctx, settingsKeyPrefix+guildID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var rec settingsRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode settings for %s: %w", guildID, err)
	}
	if rec.GuildID == "" {
		rec.GuildID = guildID
	}
	return rec.settings(), nil
}

func (s *RedisSettingsStore) SaveSettings(ctx context.Context, settings *models.GuildModerationSettings) error {
	if settings == nil || settings.GuildID == "" {
		return fmt.Errorf("%w: missing guild id", models.ErrInvalidSettings)
	}
	raw, err := json.Marshal(recordFromSettings(settings))
	if err != nil {
		return err
	}
	return s.client.Set(ctx, settingsKeyPrefix+settings.GuildID, raw, 0).Err()
}

func (s *RedisSettingsStore) DeleteSettings(ctx context.Context, guildID string) error {
	return s.client.Del(ctx, settingsKeyPrefix+guildID).Err()
}
