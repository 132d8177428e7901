package health

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/ariahome/aria/pkg/provider/tts"
)

// Pinger is satisfied by *pgxpool.Pool and anything else that can probe its
// backing connection.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Redis returns a checker that pings the Redis backend.
func Redis(client *redis.Client) Checker {
	return Checker{
		Name: "redis",
		Check: func(ctx context.Context) error {
			if client == nil {
				return errors.New("redis not configured")
			}
			return client.Ping(ctx).Err()
		},
	}
}

// Postgres returns a checker that pings the database pool.
func Postgres(pool Pinger) Checker {
	return Checker{
		Name: "postgres",
		Check: func(ctx context.Context) error {
			if pool == nil {
				return errors.New("postgres not configured")
			}
			return pool.Ping(ctx)
		},
	}
}

// Synthesis returns a checker that probes the TTS backend by listing its
// voice catalogue.
func Synthesis(p tts.Provider) Checker {
	return Checker{
		Name: "synthesis",
		Check: func(ctx context.Context) error {
			if p == nil {
				return errors.New("tts provider not configured")
			}
			_, err := p.ListVoices(ctx)
			return err
		},
	}
}
