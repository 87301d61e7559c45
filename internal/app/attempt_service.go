package app

import (
	"context"
	"log"
	"time"

	"exam-portal-service/internal/domain"
)

// AttemptService drives the exam-taking lifecycle: every mutation re-checks
// expiry through the timer engine first, and submission funnels into exactly
// one automatic grading pass per attempt.
type AttemptService struct {
	attempts AttemptRepository
	content  ExamContentRepository
	timer    *TimerEngine
	clock    func() time.Time
}

func NewAttemptService(attempts AttemptRepository, content ExamContentRepository, timer *TimerEngine) *AttemptService {
	return &AttemptService{
		attempts: attempts,
		content:  content,
		timer:    timer,
		clock:    time.Now,
	}
}

// WithClock is test-only for deterministic time.
func (s *AttemptService) WithClock(now func() time.Time) *AttemptService {
	s.clock = now
	return s
}

// Start returns the unique attempt for (identity, exam), creating it on
// first access. The exam must be published.
func (s *AttemptService) Start(ctx context.Context, identityID, examID int64) (*domain.Attempt, error) {
	content, err := s.getContent(ctx, examID)
	if err != nil {
		return nil, err
	}
	if !content.Exam.Published {
		return nil, domain.ErrExamNotPublished
	}
	attempt, err := s.attempts.GetOrCreate(ctx, identityID, examID, s.clock())
	if err != nil {
		log.Printf("[attempt] get-or-create failed for identity %d exam %d: %v", identityID, examID, err)
		return nil, domain.ErrSystem
	}
	return attempt, nil
}

// Content returns the published exam for the take-exam screen. Correct
// flags never leave the server; Choice marshaling drops them.
func (s *AttemptService) Content(ctx context.Context, examID int64) (domain.ExamContent, error) {
	content, err := s.getContent(ctx, examID)
	if err != nil {
		return domain.ExamContent{}, err
	}
	if !content.Exam.Published {
		return domain.ExamContent{}, domain.ErrExamNotPublished
	}
	return content, nil
}

// RemainingTime is the state returned to exam screens on every poll.
type RemainingTime struct {
	TotalSeconds int64                  `json:"totalSeconds"`
	Formatted    string                 `json:"formatted"`
	Timestamp    domain.SecureTimestamp `json:"timestamp"`
	Submitted    bool                   `json:"submitted"`
}

// Remaining derives the time left on an attempt and issues a signed
// timestamp for the client.
func (s *AttemptService) Remaining(ctx context.Context, attemptID int64) (RemainingTime, error) {
	attempt, content, err := s.load(ctx, attemptID)
	if err != nil {
		return RemainingTime{}, err
	}
	remaining := s.timer.Remaining(*attempt, content.Exam)
	return RemainingTime{
		TotalSeconds: int64(remaining / time.Second),
		Formatted:    FormatRemaining(remaining),
		Timestamp:    s.timer.Issue(*attempt, content.Exam),
		Submitted:    attempt.Submitted,
	}, nil
}

// VerifyTimestamp revalidates a client-submitted SecureTimestamp. Returns
// ErrTimestampTampered when the signature does not recompute.
func (s *AttemptService) VerifyTimestamp(ctx context.Context, attemptID int64, ts domain.SecureTimestamp) error {
	if err := s.timer.Verify(ts, attemptID); err != nil {
		log.Printf("[attempt] tampered timestamp for attempt %d", attemptID)
		return err
	}
	return nil
}

// SaveAnswer upserts the single answer row for (attempt, question).
// Calling it twice with the same arguments leaves one row.
func (s *AttemptService) SaveAnswer(ctx context.Context, attemptID, questionID int64, choiceID *int64) error {
	attempt, content, err := s.guardMutable(ctx, attemptID)
	if err != nil {
		return err
	}
	question := content.QuestionByID(questionID)
	if question == nil {
		return domain.ErrQuestionNotFound
	}
	if choiceID != nil && question.ChoiceOf(*choiceID) == nil {
		return domain.ErrChoiceNotFound
	}
	answer := &domain.Answer{
		AttemptID:  attempt.ID,
		QuestionID: questionID,
		ChoiceID:   choiceID,
		UpdatedAt:  s.clock(),
	}
	if err := s.attempts.UpsertAnswer(ctx, answer); err != nil {
		log.Printf("[attempt] answer upsert failed for attempt %d question %d: %v", attemptID, questionID, err)
		return domain.ErrSystem
	}
	return nil
}

// ToggleFlag marks or unmarks a question for review.
func (s *AttemptService) ToggleFlag(ctx context.Context, attemptID, questionID int64, flagged bool) error {
	attempt, content, err := s.guardMutable(ctx, attemptID)
	if err != nil {
		return err
	}
	if content.QuestionByID(questionID) == nil {
		return domain.ErrQuestionNotFound
	}
	if err := s.attempts.SetFlag(ctx, attempt.ID, questionID, flagged, s.clock()); err != nil {
		log.Printf("[attempt] flag update failed for attempt %d question %d: %v", attemptID, questionID, err)
		return domain.ErrSystem
	}
	return nil
}

// Submit finalizes the attempt and grades it. A second call, or a manual
// submit racing the timer-triggered one, returns the stored result without
// grading again: only the caller that wins the submitted=false -> true
// transition runs the grading pass.
func (s *AttemptService) Submit(ctx context.Context, attemptID int64) (domain.GradingResult, error) {
	attempt, content, err := s.load(ctx, attemptID)
	if err != nil {
		return domain.GradingResult{}, err
	}
	return s.submit(ctx, attempt, content)
}

func (s *AttemptService) submit(ctx context.Context, attempt *domain.Attempt, content domain.ExamContent) (domain.GradingResult, error) {
	if attempt.Submitted {
		return s.storedResult(ctx, attempt)
	}
	claimed, err := s.attempts.ClaimSubmission(ctx, attempt.ID, s.clock())
	if err != nil {
		log.Printf("[attempt] submission claim failed for attempt %d: %v", attempt.ID, err)
		return domain.GradingResult{}, domain.ErrSystem
	}
	if !claimed {
		// Lost the race; the winner graded already (or is about to).
		fresh, err := s.attempts.GetByID(ctx, attempt.ID)
		if err != nil || fresh == nil {
			return domain.GradingResult{}, domain.ErrSystem
		}
		return s.storedResult(ctx, fresh)
	}

	answers, err := s.attempts.ListAnswers(ctx, attempt.ID)
	if err != nil {
		log.Printf("[attempt] answer listing failed for attempt %d: %v", attempt.ID, err)
		return domain.GradingResult{}, domain.ErrSystem
	}
	result := GradeAnswers(content, answers)
	if err := s.attempts.StoreGrade(ctx, attempt.ID, result, s.clock()); err != nil {
		log.Printf("[attempt] grade store failed for attempt %d: %v", attempt.ID, err)
		return domain.GradingResult{}, domain.ErrSystem
	}
	return result, nil
}

// Regrade recomputes and overwrites the grade of a submitted attempt. This
// is the coordinator-initiated path, kept separate from the automatic pass
// and logged as such.
func (s *AttemptService) Regrade(ctx context.Context, attemptID, coordinatorID int64) (domain.GradingResult, error) {
	attempt, content, err := s.load(ctx, attemptID)
	if err != nil {
		return domain.GradingResult{}, err
	}
	if !attempt.Submitted {
		return domain.GradingResult{}, domain.ErrAttemptNotFound
	}
	answers, err := s.attempts.ListAnswers(ctx, attempt.ID)
	if err != nil {
		return domain.GradingResult{}, domain.ErrSystem
	}
	result := GradeAnswers(content, answers)
	if err := s.attempts.StoreGrade(ctx, attempt.ID, result, s.clock()); err != nil {
		return domain.GradingResult{}, domain.ErrSystem
	}
	log.Printf("[attempt] regrade of attempt %d by coordinator %d: %d/%d", attemptID, coordinatorID, result.Correct, result.Total)
	return result, nil
}

// guardMutable loads the attempt and rejects mutations on submitted or
// expired attempts. Expiry triggers the auto-submit path before the
// SessionTimeout is returned.
func (s *AttemptService) guardMutable(ctx context.Context, attemptID int64) (*domain.Attempt, domain.ExamContent, error) {
	attempt, content, err := s.load(ctx, attemptID)
	if err != nil {
		return nil, domain.ExamContent{}, err
	}
	if s.timer.Expired(*attempt, content.Exam) {
		if !attempt.Submitted {
			if _, err := s.submit(ctx, attempt, content); err != nil {
				log.Printf("[attempt] auto-submit failed for attempt %d: %v", attempt.ID, err)
			}
		}
		return nil, domain.ExamContent{}, domain.ErrSessionTimeout
	}
	if attempt.Submitted {
		return nil, domain.ExamContent{}, domain.ErrAlreadySubmitted
	}
	return attempt, content, nil
}

// load resolves the attempt and its exam content. Attempts abandoned past
// duration plus grace are force-submitted here, so any access picks the
// check up.
func (s *AttemptService) load(ctx context.Context, attemptID int64) (*domain.Attempt, domain.ExamContent, error) {
	attempt, err := s.attempts.GetByID(ctx, attemptID)
	if err != nil {
		log.Printf("[attempt] lookup failed for %d: %v", attemptID, err)
		return nil, domain.ExamContent{}, domain.ErrSystem
	}
	if attempt == nil {
		return nil, domain.ExamContent{}, domain.ErrAttemptNotFound
	}
	content, err := s.getContent(ctx, attempt.ExamID)
	if err != nil {
		return nil, domain.ExamContent{}, err
	}
	if !attempt.Submitted {
		if err := s.timer.CheckIntegrity(*attempt, content.Exam); err != nil {
			log.Printf("[attempt] forcing submission of abandoned attempt %d", attempt.ID)
			if _, err := s.submit(ctx, attempt, content); err != nil {
				log.Printf("[attempt] forced submit failed for attempt %d: %v", attempt.ID, err)
			}
			if fresh, err := s.attempts.GetByID(ctx, attemptID); err == nil && fresh != nil {
				attempt = fresh
			}
		}
	}
	return attempt, content, nil
}

func (s *AttemptService) getContent(ctx context.Context, examID int64) (domain.ExamContent, error) {
	content, err := s.content.GetContent(ctx, examID)
	if err != nil {
		if err == domain.ErrExamNotFound {
			return domain.ExamContent{}, err
		}
		log.Printf("[attempt] content load failed for exam %d: %v", examID, err)
		return domain.ExamContent{}, domain.ErrSystem
	}
	return content, nil
}

func (s *AttemptService) storedResult(ctx context.Context, attempt *domain.Attempt) (domain.GradingResult, error) {
	// Grading fields may lag a submission that is still in flight; reload
	// once to pick them up.
	if attempt.GradedAt == nil {
		fresh, err := s.attempts.GetByID(ctx, attempt.ID)
		if err == nil && fresh != nil {
			attempt = fresh
		}
	}
	answers, err := s.attempts.ListAnswers(ctx, attempt.ID)
	if err != nil {
		return domain.GradingResult{}, domain.ErrSystem
	}
	content, err := s.getContent(ctx, attempt.ExamID)
	if err != nil {
		return domain.GradingResult{}, err
	}
	result := GradeAnswers(content, answers)
	if attempt.Score != nil && attempt.Percentage != nil && attempt.Grade != nil {
		// Prefer the persisted figures; recomputation is only the fallback
		// while the winner's grade write is in flight.
		result.Correct = *attempt.Score
		result.Percentage = *attempt.Percentage
		result.Grade = *attempt.Grade
	}
	return result, nil
}
