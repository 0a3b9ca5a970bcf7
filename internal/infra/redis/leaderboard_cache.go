package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"quiz-ranking-service/internal/app"
	"quiz-ranking-service/internal/domain"
)

// LeaderboardCache stores ranked quiz standings in Redis as one JSON value per quiz:
//
//	SET leaderboard:quiz:{quizID} <json> EX <ttl>
//
// Entries expire on their own; submissions delete them explicitly.
type LeaderboardCache struct {
	client *redis.Client
	ttl    time.Duration

	rndMu sync.Mutex
	rnd   *rand.Rand
}

var _ app.LeaderboardCache = (*LeaderboardCache)(nil)

func NewLeaderboardCache(client *redis.Client, ttl time.Duration) *LeaderboardCache {
	return &LeaderboardCache{
		client: client,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *LeaderboardCache) Get(ctx context.Context, quizID int64) ([]domain.QuizStanding, bool, error) {
	raw, err := c.client.Get(ctx, Key(quizID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get leaderboard: %w", err)
	}
	var standings []domain.QuizStanding
	if err := json.Unmarshal(raw, &standings); err != nil {
		// A corrupt entry is treated as a miss and overwritten on refill.
		return nil, false, fmt.Errorf("decode leaderboard: %w", err)
	}
	return standings, true, nil
}

func (c *LeaderboardCache) Set(ctx context.Context, quizID int64, standings []domain.QuizStanding) error {
	if c.ttl <= 0 {
		return nil
	}
	raw, err := json.Marshal(standings)
	if err != nil {
		return fmt.Errorf("encode leaderboard: %w", err)
	}
	if err := c.client.Set(ctx, Key(quizID), raw, c.ttlWithJitter()).Err(); err != nil {
		return fmt.Errorf("set leaderboard: %w", err)
	}
	return nil
}

func (c *LeaderboardCache) Invalidate(ctx context.Context, quizID int64) error {
	if err := c.client.Del(ctx, Key(quizID)).Err(); err != nil {
		return fmt.Errorf("invalidate leaderboard: %w", err)
	}
	return nil
}

// Key is the Redis key holding a quiz's standings.
func Key(quizID int64) string {
	return "leaderboard:quiz:" + strconv.FormatInt(quizID, 10)
}

func (c *LeaderboardCache) ttlWithJitter() time.Duration {
	jitterMax := int64(c.ttl) / 10
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
