package memory

import (
	"context"
	"sync"
	"time"

	"exam-portal-service/internal/domain"
)

// ExamStore is an in-memory implementation of app.ExamRepository,
// app.ExamSessionRepository, and the content loader.
type ExamStore struct {
	mu       sync.RWMutex
	exams    map[int64]domain.ExamContent
	sessions map[string]*domain.ExamSession
}

func NewExamStore() *ExamStore {
	return &ExamStore{
		exams:    make(map[int64]domain.ExamContent),
		sessions: make(map[string]*domain.ExamSession),
	}
}

// SeedExam inserts exam content.
func (s *ExamStore) SeedExam(content domain.ExamContent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exams[content.Exam.ID] = content
}

func (s *ExamStore) GetExam(_ context.Context, examID int64) (*domain.Exam, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	content, ok := s.exams[examID]
	if !ok {
		return nil, nil
	}
	exam := content.Exam
	return &exam, nil
}

func (s *ExamStore) LoadExamContent(_ context.Context, examID int64) (domain.ExamContent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	content, ok := s.exams[examID]
	if !ok {
		return domain.ExamContent{}, domain.ErrExamNotFound
	}
	return content, nil
}

func (s *ExamStore) GetByID(_ context.Context, id string) (*domain.ExamSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	if !ok {
		return nil, nil
	}
	copied := *session
	return &copied, nil
}

func (s *ExamStore) ListActive(_ context.Context, now time.Time) ([]domain.ExamSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var active []domain.ExamSession
	for _, session := range s.sessions {
		if session.Active && !session.Expired(now) {
			active = append(active, *session)
		}
	}
	return active, nil
}

func (s *ExamStore) ActivateExclusive(_ context.Context, session *domain.ExamSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.sessions {
		if existing.ExamID == session.ExamID && existing.Active {
			existing.Active = false
		}
	}
	copied := *session
	s.sessions[session.ID] = &copied
	return nil
}

func (s *ExamStore) Deactivate(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if session, ok := s.sessions[id]; ok {
		session.Active = false
	}
	return nil
}
