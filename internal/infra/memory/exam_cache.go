package memory

import (
	"context"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"exam-portal-service/internal/domain"
)

// ExamContentLoader fetches assembled exam content from a backing store.
type ExamContentLoader interface {
	LoadExamContent(ctx context.Context, examID int64) (domain.ExamContent, error)
}

// ExamContentCache caches exam content with TTL to avoid re-reading the
// question/choice tables on every answer save.
type ExamContentCache struct {
	loader ExamContentLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand

	mu    sync.RWMutex
	cache map[int64]cachedContent
}

type cachedContent struct {
	content   domain.ExamContent
	expiresAt time.Time
}

func NewExamContentCache(loader ExamContentLoader, ttl time.Duration) *ExamContentCache {
	return &ExamContentCache{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[int64]cachedContent),
	}
}

func (c *ExamContentCache) GetContent(ctx context.Context, examID int64) (domain.ExamContent, error) {
	now := c.clock()

	c.mu.RLock()
	if entry, ok := c.cache[examID]; ok && entry.expiresAt.After(now) {
		c.mu.RUnlock()
		return entry.content, nil
	}
	c.mu.RUnlock()

	result, err, _ := c.sf.Do(cacheKey(examID), func() (interface{}, error) {
		now := c.clock()
		c.mu.RLock()
		if entry, ok := c.cache[examID]; ok && entry.expiresAt.After(now) {
			c.mu.RUnlock()
			return entry.content, nil
		}
		c.mu.RUnlock()

		content, err := c.loader.LoadExamContent(ctx, examID)
		if err != nil {
			return domain.ExamContent{}, err
		}

		c.mu.Lock()
		c.cache[examID] = cachedContent{
			content:   content,
			expiresAt: now.Add(c.ttlWithJitter()),
		}
		c.mu.Unlock()
		return content, nil
	})
	if err != nil {
		return domain.ExamContent{}, err
	}
	return result.(domain.ExamContent), nil
}

// Invalidate drops a cached exam, for use after content edits.
func (c *ExamContentCache) Invalidate(examID int64) {
	c.mu.Lock()
	delete(c.cache, examID)
	c.mu.Unlock()
}

func (c *ExamContentCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}

func cacheKey(examID int64) string {
	return "exam:" + strconv.FormatInt(examID, 10)
}
