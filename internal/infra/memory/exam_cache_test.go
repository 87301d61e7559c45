package memory

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"exam-portal-service/internal/domain"
)

type countingLoader struct {
	store *ExamStore
	loads int64
}

func (l *countingLoader) LoadExamContent(ctx context.Context, examID int64) (domain.ExamContent, error) {
	atomic.AddInt64(&l.loads, 1)
	return l.store.LoadExamContent(ctx, examID)
}

func sampleContent() domain.ExamContent {
	return domain.ExamContent{
		Exam: domain.Exam{ID: 1, Title: "Final", DurationMinutes: 60, Published: true},
		Questions: []domain.Question{
			{ID: 1, ExamID: 1, Prompt: "2+2?", Choices: []domain.Choice{
				{ID: 10, QuestionID: 1, Text: "3"},
				{ID: 11, QuestionID: 1, Text: "4", IsCorrect: true},
			}},
		},
	}
}

func TestExamContentCacheHitsLoaderOnce(t *testing.T) {
	ctx := context.Background()
	store := NewExamStore()
	store.SeedExam(sampleContent())
	loader := &countingLoader{store: store}
	cache := NewExamContentCache(loader, 10*time.Minute)

	for i := 0; i < 3; i++ {
		content, err := cache.GetContent(ctx, 1)
		if err != nil {
			t.Fatalf("get %d: %v", i, err)
		}
		if content.Exam.Title != "Final" {
			t.Fatalf("unexpected content: %+v", content.Exam)
		}
	}
	if n := atomic.LoadInt64(&loader.loads); n != 1 {
		t.Fatalf("expected a single backing load, got %d", n)
	}
}

func TestExamContentCacheInvalidate(t *testing.T) {
	ctx := context.Background()
	store := NewExamStore()
	store.SeedExam(sampleContent())
	loader := &countingLoader{store: store}
	cache := NewExamContentCache(loader, 10*time.Minute)

	if _, err := cache.GetContent(ctx, 1); err != nil {
		t.Fatalf("get: %v", err)
	}
	cache.Invalidate(1)
	if _, err := cache.GetContent(ctx, 1); err != nil {
		t.Fatalf("get after invalidate: %v", err)
	}
	if n := atomic.LoadInt64(&loader.loads); n != 2 {
		t.Fatalf("expected a reload after invalidate, got %d loads", n)
	}
}

func TestExamContentCacheMissingExam(t *testing.T) {
	cache := NewExamContentCache(&countingLoader{store: NewExamStore()}, time.Minute)
	if _, err := cache.GetContent(context.Background(), 404); err != domain.ErrExamNotFound {
		t.Fatalf("expected exam not found, got %v", err)
	}
}
