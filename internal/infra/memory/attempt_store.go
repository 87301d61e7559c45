package memory

import (
	"context"
	"sync"
	"time"

	"exam-portal-service/internal/domain"
)

// AttemptStore is an in-memory implementation of app.AttemptRepository.
// The (identity, exam) and (attempt, question) uniqueness constraints the
// relational store enforces with indexes are enforced here under one mutex.
type AttemptStore struct {
	mu       sync.Mutex
	attempts map[int64]*domain.Attempt
	answers  map[int64]map[int64]*domain.Answer
	nextID   int64
}

func NewAttemptStore() *AttemptStore {
	return &AttemptStore{
		attempts: make(map[int64]*domain.Attempt),
		answers:  make(map[int64]map[int64]*domain.Answer),
		nextID:   1,
	}
}

func (s *AttemptStore) GetOrCreate(_ context.Context, identityID, examID int64, startedAt time.Time) (*domain.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, attempt := range s.attempts {
		if attempt.IdentityID == identityID && attempt.ExamID == examID {
			copied := *attempt
			return &copied, nil
		}
	}
	attempt := &domain.Attempt{
		ID:         s.nextID,
		IdentityID: identityID,
		ExamID:     examID,
		StartedAt:  startedAt,
	}
	s.nextID++
	s.attempts[attempt.ID] = attempt
	s.answers[attempt.ID] = make(map[int64]*domain.Answer)
	copied := *attempt
	return &copied, nil
}

func (s *AttemptStore) GetByID(_ context.Context, id int64) (*domain.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	attempt, ok := s.attempts[id]
	if !ok {
		return nil, nil
	}
	copied := *attempt
	return &copied, nil
}

func (s *AttemptStore) UpsertAnswer(_ context.Context, answer *domain.Answer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, ok := s.answers[answer.AttemptID]
	if !ok {
		rows = make(map[int64]*domain.Answer)
		s.answers[answer.AttemptID] = rows
	}
	if existing, ok := rows[answer.QuestionID]; ok {
		existing.ChoiceID = answer.ChoiceID
		existing.UpdatedAt = answer.UpdatedAt
		return nil
	}
	copied := *answer
	rows[answer.QuestionID] = &copied
	return nil
}

func (s *AttemptStore) SetFlag(_ context.Context, attemptID, questionID int64, flagged bool, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, ok := s.answers[attemptID]
	if !ok {
		rows = make(map[int64]*domain.Answer)
		s.answers[attemptID] = rows
	}
	if existing, ok := rows[questionID]; ok {
		existing.Flagged = flagged
		existing.UpdatedAt = at
		return nil
	}
	rows[questionID] = &domain.Answer{
		AttemptID:  attemptID,
		QuestionID: questionID,
		Flagged:    flagged,
		UpdatedAt:  at,
	}
	return nil
}

func (s *AttemptStore) ListAnswers(_ context.Context, attemptID int64) ([]domain.Answer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := s.answers[attemptID]
	out := make([]domain.Answer, 0, len(rows))
	for _, answer := range rows {
		out = append(out, *answer)
	}
	return out, nil
}

func (s *AttemptStore) ClaimSubmission(_ context.Context, attemptID int64, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	attempt, ok := s.attempts[attemptID]
	if !ok || attempt.Submitted {
		return false, nil
	}
	attempt.Submitted = true
	submitted := at
	attempt.SubmittedAt = &submitted
	return true, nil
}

func (s *AttemptStore) StoreGrade(_ context.Context, attemptID int64, result domain.GradingResult, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	attempt, ok := s.attempts[attemptID]
	if !ok {
		return nil
	}
	score := result.Correct
	pct := result.Percentage
	grade := result.Grade
	graded := at
	attempt.Score = &score
	attempt.Percentage = &pct
	attempt.Grade = &grade
	attempt.GradedAt = &graded
	return nil
}

// AnswerCount reports stored answer rows for an attempt; used by tests.
func (s *AttemptStore) AnswerCount(attemptID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.answers[attemptID])
}
