package tracking

import (
	"context"
	"errors"
	"strconv"
	"time"

	"backend-routetrack/internal/shared/geo"

	"github.com/redis/go-redis/v9"
)

const positionsKey = "routes:last"

// PositionCache is a redis GEO set of last positions. A nil cache is a no-op.
type PositionCache struct {
	rdb          *redis.Client
	claimTTL     time.Duration
	heartbeatTTL time.Duration
}

func NewPositionCache(rdb *redis.Client) *PositionCache {
	if rdb == nil {
		return nil
	}
	return &PositionCache{rdb: rdb, claimTTL: time.Hour, heartbeatTTL: 48 * time.Hour}
}

func claimKey(routeID string, createdAt time.Time) string {
	return "ping:" + routeID + ":" + strconv.FormatInt(createdAt.UnixNano(), 10)
}

func (c *PositionCache) Claim(ctx context.Context, routeID string, createdAt time.Time) (bool, error) {
	if c == nil {
		return true, nil
	}
	return c.rdb.SetNX(ctx, claimKey(routeID, createdAt), 1, c.claimTTL).Result()
}

func (c *PositionCache) Release(ctx context.Context, routeID string, createdAt time.Time) error {
	if c == nil {
		return nil
	}
	return c.rdb.Del(ctx, claimKey(routeID, createdAt)).Err()
}

func (c *PositionCache) Update(ctx context.Context, routeID string, lat, lon float64) error {
	if c == nil {
		return nil
	}
	if err := c.rdb.GeoAdd(ctx, positionsKey, &redis.GeoLocation{
		Name:      routeID,
		Longitude: lon,
		Latitude:  lat,
	}).Err(); err != nil {
		return err
	}
	return c.rdb.Set(ctx, "routes:heartbeat:"+routeID, time.Now().UTC().Format(time.RFC3339), c.heartbeatTTL).Err()
}

func (c *PositionCache) Last(ctx context.Context, routeID string) (*geo.Point, error) {
	if c == nil {
		return nil, nil
	}
	res, err := c.rdb.GeoPos(ctx, positionsKey, routeID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	if len(res) == 0 || res[0] == nil {
		return nil, nil
	}
	return &geo.Point{Lat: res[0].Latitude, Lon: res[0].Longitude}, nil
}
