package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisLog stores each user's conversation as a Redis list of JSON turns
// and the voice preferences as a JSON blob. Appends trim the list to the
// retention bound and refresh the 24 hour expiry on both keys.
type RedisLog struct {
	client *redis.Client
}

var _ Log = (*RedisLog)(nil)

// NewRedisLog creates a RedisLog on client.
func NewRedisLog(client *redis.Client) (*RedisLog, error) {
	if client == nil {
		return nil, errors.New("session: redis client must not be nil")
	}
	return &RedisLog{client: client}, nil
}

func logKey(userID string) string   { return "aria:conversation:" + userID }
func prefsKey(userID string) string { return "aria:voiceprefs:" + userID }

// AppendTurn implements Log.
func (r *RedisLog) AppendTurn(ctx context.Context, userID string, t Turn) error {
	if err := validUser(userID); err != nil {
		return err
	}
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("session: encode turn: %w", err)
	}

	key := logKey(userID)
	pipe := r.client.TxPipeline()
	pipe.RPush(ctx, key, data)
	pipe.LTrim(ctx, key, -maxTurns, -1)
	pipe.Expire(ctx, key, logTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("session: append turn for %s: %w", userID, err)
	}
	return nil
}

// RecentTurns implements Log.
func (r *RedisLog) RecentTurns(ctx context.Context, userID string, n int) ([]Turn, error) {
	if err := validUser(userID); err != nil {
		return nil, err
	}
	if n <= 0 {
		n = DefaultRecent
	}

	raw, err := r.client.LRange(ctx, logKey(userID), int64(-n), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("session: read log for %s: %w", userID, err)
	}

	turns := make([]Turn, 0, len(raw))
	for _, item := range raw {
		var t Turn
		if err := json.Unmarshal([]byte(item), &t); err != nil {
			return nil, fmt.Errorf("session: decode turn: %w", err)
		}
		turns = append(turns, t)
	}
	return turns, nil
}

// SavePreferences implements Log.
func (r *RedisLog) SavePreferences(ctx context.Context, userID string, p Preferences) error {
	if err := validUser(userID); err != nil {
		return err
	}
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("session: encode preferences: %w", err)
	}
	if err := r.client.Set(ctx, prefsKey(userID), data, logTTL).Err(); err != nil {
		return fmt.Errorf("session: save preferences for %s: %w", userID, err)
	}
	return nil
}

// LoadPreferences implements Log.
func (r *RedisLog) LoadPreferences(ctx context.Context, userID string) (Preferences, bool, error) {
	if err := validUser(userID); err != nil {
		return Preferences{}, false, err
	}

	data, err := r.client.Get(ctx, prefsKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Preferences{}, false, nil
	}
	if err != nil {
		return Preferences{}, false, fmt.Errorf("session: load preferences for %s: %w", userID, err)
	}

	var p Preferences
	if err := json.Unmarshal(data, &p); err != nil {
		return Preferences{}, false, fmt.Errorf("session: decode preferences: %w", err)
	}
	return p, true, nil
}
