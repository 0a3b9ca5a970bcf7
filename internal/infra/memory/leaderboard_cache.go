package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"quiz-ranking-service/internal/app"
	"quiz-ranking-service/internal/domain"
)

// LeaderboardCache keeps quiz standings in process with a TTL. Expired
// entries are dropped on read; there is no background sweeper.
type LeaderboardCache struct {
	ttl   time.Duration
	clock func() time.Time

	rndMu sync.Mutex
	rnd   *rand.Rand

	mu      sync.RWMutex
	entries map[int64]cachedStandings
}

type cachedStandings struct {
	standings []domain.QuizStanding
	expiresAt time.Time
}

var _ app.LeaderboardCache = (*LeaderboardCache)(nil)

func NewLeaderboardCache(ttl time.Duration) *LeaderboardCache {
	return NewLeaderboardCacheWithClock(ttl, time.Now)
}

// NewLeaderboardCacheWithClock allows deterministic expiry in tests.
func NewLeaderboardCacheWithClock(ttl time.Duration, clock func() time.Time) *LeaderboardCache {
	return &LeaderboardCache{
		ttl:     ttl,
		clock:   clock,
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
		entries: make(map[int64]cachedStandings),
	}
}

func (c *LeaderboardCache) Get(_ context.Context, quizID int64) ([]domain.QuizStanding, bool, error) {
	now := c.clock()

	c.mu.RLock()
	entry, ok := c.entries[quizID]
	c.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if !entry.expiresAt.After(now) {
		c.mu.Lock()
		if current, ok := c.entries[quizID]; ok && !current.expiresAt.After(now) {
			delete(c.entries, quizID)
		}
		c.mu.Unlock()
		return nil, false, nil
	}
	return cloneStandings(entry.standings), true, nil
}

func (c *LeaderboardCache) Set(_ context.Context, quizID int64, standings []domain.QuizStanding) error {
	if c.ttl <= 0 {
		return nil
	}
	expiresAt := c.clock().Add(c.ttlWithJitter())
	c.mu.Lock()
	c.entries[quizID] = cachedStandings{standings: cloneStandings(standings), expiresAt: expiresAt}
	c.mu.Unlock()
	return nil
}

func (c *LeaderboardCache) Invalidate(_ context.Context, quizID int64) error {
	c.mu.Lock()
	delete(c.entries, quizID)
	c.mu.Unlock()
	return nil
}

func (c *LeaderboardCache) ttlWithJitter() time.Duration {
	// add up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}

func cloneStandings(in []domain.QuizStanding) []domain.QuizStanding {
	out := make([]domain.QuizStanding, len(in))
	copy(out, in)
	return out
}
