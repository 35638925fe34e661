package sequence

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

var Module = fx.Module("sequence",
	fx.Provide(NewRedisGenerator),
)

// Generator hands out human-readable sequential codes. Codes are display
// identifiers only; snowflake IDs remain the primary keys.
type Generator interface {
	NextCampaignCode(ctx context.Context) (string, error)
}

type redisGenerator struct {
	rdb *redis.Client
}

func NewRedisGenerator(rdb *redis.Client) Generator {
	return &redisGenerator{rdb: rdb}
}

func (g *redisGenerator) NextCampaignCode(ctx context.Context) (string, error) {
	n, err := g.rdb.Incr(ctx, "seq:campaign").Result()
	if err != nil {
		return "", fmt.Errorf("next campaign code: %w", err)
	}
	return fmt.Sprintf("QST-%05d", n), nil
}
