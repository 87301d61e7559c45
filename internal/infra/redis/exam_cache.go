package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"exam-portal-service/internal/domain"
)

// ExamContentLoader fetches assembled exam content from a backing store.
type ExamContentLoader interface {
	LoadExamContent(ctx context.Context, examID int64) (domain.ExamContent, error)
}

// ExamContentCache caches exam content as a JSON blob per exam
// (SET exam:{id}:content) and falls back to the loader on cache miss.
type ExamContentCache struct {
	client *redis.Client
	loader ExamContentLoader
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
}

func NewExamContentCache(client *redis.Client, loader ExamContentLoader, ttl time.Duration) *ExamContentCache {
	return &ExamContentCache{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// contentEnvelope is the cached wire form. Choice.IsCorrect is excluded
// from API JSON, so the correct choice ids ride alongside the content and
// the flags are restored on read.
type contentEnvelope struct {
	Content domain.ExamContent `json:"content"`
	Correct map[int64][]int64  `json:"correct"`
}

func envelope(content domain.ExamContent) contentEnvelope {
	correct := make(map[int64][]int64, len(content.Questions))
	for _, q := range content.Questions {
		for _, ch := range q.Choices {
			if ch.IsCorrect {
				correct[q.ID] = append(correct[q.ID], ch.ID)
			}
		}
	}
	return contentEnvelope{Content: content, Correct: correct}
}

func (e contentEnvelope) restore() domain.ExamContent {
	for qi := range e.Content.Questions {
		q := &e.Content.Questions[qi]
		for ci := range q.Choices {
			ch := &q.Choices[ci]
			for _, id := range e.Correct[q.ID] {
				if ch.ID == id {
					ch.IsCorrect = true
				}
			}
		}
	}
	return e.Content
}

func (c *ExamContentCache) GetContent(ctx context.Context, examID int64) (domain.ExamContent, error) {
	key := c.contentKey(examID)

	if content, ok := c.fromCache(ctx, key); ok {
		return content, nil
	}

	result, err, _ := c.sf.Do(key, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if content, ok := c.fromCache(ctx, key); ok {
			return content, nil
		}

		content, err := c.loader.LoadExamContent(ctx, examID)
		if err != nil {
			return domain.ExamContent{}, err
		}

		if raw, err := json.Marshal(envelope(content)); err == nil {
			// best-effort write; the loader stays the source of truth
			_ = c.client.Set(ctx, key, raw, c.ttlWithJitter()).Err()
		}
		return content, nil
	})
	if err != nil {
		return domain.ExamContent{}, err
	}
	return result.(domain.ExamContent), nil
}

// Invalidate drops a cached exam, for use after content edits.
func (c *ExamContentCache) Invalidate(ctx context.Context, examID int64) {
	_ = c.client.Del(ctx, c.contentKey(examID)).Err()
}

func (c *ExamContentCache) fromCache(ctx context.Context, key string) (domain.ExamContent, bool) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil || len(raw) == 0 {
		return domain.ExamContent{}, false
	}
	var env contentEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return domain.ExamContent{}, false
	}
	return env.restore(), true
}

func (c *ExamContentCache) contentKey(examID int64) string {
	return "exam:" + strconv.FormatInt(examID, 10) + ":content"
}

func (c *ExamContentCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
