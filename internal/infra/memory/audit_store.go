package memory

import (
	"context"
	"sync"
	"time"

	"exam-portal-service/internal/domain"
)

// AuditStore is an in-memory implementation of app.AuditRepository.
type AuditStore struct {
	mu       sync.Mutex
	attempts []domain.LoginAttempt
}

func NewAuditStore() *AuditStore {
	return &AuditStore{}
}

func (s *AuditStore) RecordLoginAttempt(_ context.Context, attempt *domain.LoginAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts = append(s.attempts, *attempt)
	return nil
}

func (s *AuditStore) ArchiveOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.attempts[:0]
	var archived int64
	for _, attempt := range s.attempts {
		if attempt.CreatedAt.Before(cutoff) {
			archived++
			continue
		}
		kept = append(kept, attempt)
	}
	s.attempts = kept
	return archived, nil
}

// Attempts returns a copy of the recorded trail; used by tests.
func (s *AuditStore) Attempts() []domain.LoginAttempt {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.LoginAttempt, len(s.attempts))
	copy(out, s.attempts)
	return out
}
