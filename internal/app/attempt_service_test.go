package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"exam-portal-service/internal/app"
	"exam-portal-service/internal/domain"
	"exam-portal-service/internal/infra/memory"
)

type attemptFixture struct {
	attempts *memory.AttemptStore
	exams    *memory.ExamStore
	service  *app.AttemptService
	now      time.Time
}

func newAttemptFixture(t *testing.T) *attemptFixture {
	t.Helper()
	f := &attemptFixture{
		attempts: memory.NewAttemptStore(),
		exams:    memory.NewExamStore(),
		now:      time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return f.now }
	f.exams.SeedExam(gradedContent())
	timer := app.NewTimerEngineWithClock([]byte("test-signing-key"), 30*time.Second, clock)
	content := memory.NewExamContentCache(f.exams, 10*time.Minute)
	f.service = app.NewAttemptService(f.attempts, content, timer).WithClock(clock)
	return f
}

func (f *attemptFixture) start(t *testing.T) *domain.Attempt {
	t.Helper()
	attempt, err := f.service.Start(context.Background(), 42, 1)
	if err != nil {
		t.Fatalf("start attempt: %v", err)
	}
	return attempt
}

func TestStartAttemptIsIdempotent(t *testing.T) {
	f := newAttemptFixture(t)
	first := f.start(t)
	second := f.start(t)
	if first.ID != second.ID {
		t.Fatalf("expected one attempt per (identity, exam), got %d and %d", first.ID, second.ID)
	}
	if !first.StartedAt.Equal(second.StartedAt) {
		t.Fatalf("second start must not reset the clock")
	}
}

func TestStartAttemptRequiresPublishedExam(t *testing.T) {
	f := newAttemptFixture(t)
	f.exams.SeedExam(domain.ExamContent{
		Exam: domain.Exam{ID: 2, Title: "Draft", DurationMinutes: 30},
	})
	if _, err := f.service.Start(context.Background(), 42, 2); !errors.Is(err, domain.ErrExamNotPublished) {
		t.Fatalf("expected not-published, got %v", err)
	}
	if _, err := f.service.Start(context.Background(), 42, 99); !errors.Is(err, domain.ErrExamNotFound) {
		t.Fatalf("expected exam not found, got %v", err)
	}
}

func TestSaveAnswerUpsertsOneRow(t *testing.T) {
	ctx := context.Background()
	f := newAttemptFixture(t)
	attempt := f.start(t)

	if err := f.service.SaveAnswer(ctx, attempt.ID, 1, choice(10)); err != nil {
		t.Fatalf("save: %v", err)
	}
	// Changing the pick overwrites, never duplicates.
	if err := f.service.SaveAnswer(ctx, attempt.ID, 1, choice(11)); err != nil {
		t.Fatalf("save again: %v", err)
	}
	if n := f.attempts.AnswerCount(attempt.ID); n != 1 {
		t.Fatalf("expected 1 answer row, got %d", n)
	}

	answers, err := f.attempts.ListAnswers(ctx, attempt.ID)
	if err != nil || len(answers) != 1 {
		t.Fatalf("list answers: %v (%d)", err, len(answers))
	}
	if answers[0].ChoiceID == nil || *answers[0].ChoiceID != 11 {
		t.Fatalf("expected the later pick to win, got %+v", answers[0])
	}
}

func TestSaveAnswerValidatesQuestionAndChoice(t *testing.T) {
	ctx := context.Background()
	f := newAttemptFixture(t)
	attempt := f.start(t)

	if err := f.service.SaveAnswer(ctx, attempt.ID, 99, choice(11)); !errors.Is(err, domain.ErrQuestionNotFound) {
		t.Fatalf("expected question not found, got %v", err)
	}
	// Choice 21 belongs to question 2, not question 1.
	if err := f.service.SaveAnswer(ctx, attempt.ID, 1, choice(21)); !errors.Is(err, domain.ErrChoiceNotFound) {
		t.Fatalf("expected choice not found, got %v", err)
	}
}

func TestToggleFlag(t *testing.T) {
	ctx := context.Background()
	f := newAttemptFixture(t)
	attempt := f.start(t)

	if err := f.service.ToggleFlag(ctx, attempt.ID, 1, true); err != nil {
		t.Fatalf("flag: %v", err)
	}
	answers, _ := f.attempts.ListAnswers(ctx, attempt.ID)
	if len(answers) != 1 || !answers[0].Flagged {
		t.Fatalf("expected flagged row, got %+v", answers)
	}
	if err := f.service.ToggleFlag(ctx, attempt.ID, 1, false); err != nil {
		t.Fatalf("unflag: %v", err)
	}
	answers, _ = f.attempts.ListAnswers(ctx, attempt.ID)
	if answers[0].Flagged {
		t.Fatalf("expected flag cleared")
	}
}

func TestRemainingCountsDownAndSignsTimestamp(t *testing.T) {
	ctx := context.Background()
	f := newAttemptFixture(t)
	attempt := f.start(t)

	f.now = f.now.Add(20 * time.Minute)
	remaining, err := f.service.Remaining(ctx, attempt.ID)
	if err != nil {
		t.Fatalf("remaining: %v", err)
	}
	if remaining.TotalSeconds != 40*60 {
		t.Fatalf("expected 2400s, got %d", remaining.TotalSeconds)
	}
	if remaining.Formatted != "0:40:00" {
		t.Fatalf("expected 0:40:00, got %s", remaining.Formatted)
	}
	if err := f.service.VerifyTimestamp(ctx, attempt.ID, remaining.Timestamp); err != nil {
		t.Fatalf("fresh timestamp must verify: %v", err)
	}

	forged := remaining.Timestamp
	forged.RemainingSeconds += 3600
	forged.ServerTime = forged.ServerTime.Add(time.Hour)
	if err := f.service.VerifyTimestamp(ctx, attempt.ID, forged); !errors.Is(err, domain.ErrTimestampTampered) {
		t.Fatalf("expected tamper error, got %v", err)
	}
}

func TestExpiryAutoSubmitsOnNextAccess(t *testing.T) {
	ctx := context.Background()
	f := newAttemptFixture(t)
	attempt := f.start(t)
	if err := f.service.SaveAnswer(ctx, attempt.ID, 1, choice(11)); err != nil {
		t.Fatalf("save: %v", err)
	}

	f.now = f.now.Add(61 * time.Minute)
	if err := f.service.SaveAnswer(ctx, attempt.ID, 2, choice(21)); !errors.Is(err, domain.ErrSessionTimeout) {
		t.Fatalf("expected session timeout, got %v", err)
	}

	// The expiry path graded what was already saved.
	fresh, _ := f.attempts.GetByID(ctx, attempt.ID)
	if fresh == nil || !fresh.Submitted {
		t.Fatalf("expected auto-submitted attempt, got %+v", fresh)
	}
	if fresh.Score == nil || *fresh.Score != 1 {
		t.Fatalf("expected graded score 1, got %+v", fresh.Score)
	}

	remaining, err := f.service.Remaining(ctx, attempt.ID)
	if err != nil {
		t.Fatalf("remaining after expiry: %v", err)
	}
	if remaining.TotalSeconds != 0 || !remaining.Submitted {
		t.Fatalf("expected finished state, got %+v", remaining)
	}
}

func TestAbandonedAttemptForceSubmitsOnRead(t *testing.T) {
	ctx := context.Background()
	f := newAttemptFixture(t)
	attempt := f.start(t)
	if err := f.service.SaveAnswer(ctx, attempt.ID, 1, choice(11)); err != nil {
		t.Fatalf("save: %v", err)
	}

	// Inside the grace window a read reports zero but does not finalize.
	f.now = f.now.Add(60*time.Minute + 10*time.Second)
	remaining, err := f.service.Remaining(ctx, attempt.ID)
	if err != nil {
		t.Fatalf("remaining in grace: %v", err)
	}
	if remaining.TotalSeconds != 0 || remaining.Submitted {
		t.Fatalf("expected zero but unsubmitted inside grace, got %+v", remaining)
	}

	// Past duration plus grace a pure read access must force the submit.
	f.now = f.now.Add(3 * time.Hour)
	remaining, err = f.service.Remaining(ctx, attempt.ID)
	if err != nil {
		t.Fatalf("remaining past grace: %v", err)
	}
	if !remaining.Submitted {
		t.Fatalf("expected the read to finalize the attempt, got %+v", remaining)
	}

	fresh, _ := f.attempts.GetByID(ctx, attempt.ID)
	if fresh == nil || !fresh.Submitted || fresh.GradedAt == nil {
		t.Fatalf("expected a graded attempt, got %+v", fresh)
	}
	if fresh.Score == nil || *fresh.Score != 1 {
		t.Fatalf("expected the saved answer graded, got %+v", fresh.Score)
	}
}

func TestSubmitGradesOnceAndRepeatsResult(t *testing.T) {
	ctx := context.Background()
	f := newAttemptFixture(t)
	attempt := f.start(t)

	for q := int64(1); q <= 4; q++ {
		if err := f.service.SaveAnswer(ctx, attempt.ID, q, choice(q*10+1)); err != nil {
			t.Fatalf("save q%d: %v", q, err)
		}
	}
	if err := f.service.SaveAnswer(ctx, attempt.ID, 5, choice(50)); err != nil {
		t.Fatalf("save q5: %v", err)
	}

	first, err := f.service.Submit(ctx, attempt.ID)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if first.Correct != 4 || first.Percentage != 80.00 || first.Grade != "B" {
		t.Fatalf("unexpected grade: %+v", first)
	}

	second, err := f.service.Submit(ctx, attempt.ID)
	if err != nil {
		t.Fatalf("second submit: %v", err)
	}
	if second != first {
		t.Fatalf("second submit must replay the stored result: %+v vs %+v", second, first)
	}

	// Mutations after submission are refused.
	if err := f.service.SaveAnswer(ctx, attempt.ID, 1, choice(10)); !errors.Is(err, domain.ErrAlreadySubmitted) {
		t.Fatalf("expected already-submitted, got %v", err)
	}
	if err := f.service.ToggleFlag(ctx, attempt.ID, 1, true); !errors.Is(err, domain.ErrAlreadySubmitted) {
		t.Fatalf("expected already-submitted, got %v", err)
	}
}

func TestRegradeRequiresSubmission(t *testing.T) {
	ctx := context.Background()
	f := newAttemptFixture(t)
	attempt := f.start(t)

	if _, err := f.service.Regrade(ctx, attempt.ID, 1); !errors.Is(err, domain.ErrAttemptNotFound) {
		t.Fatalf("expected refusal before submission, got %v", err)
	}

	if err := f.service.SaveAnswer(ctx, attempt.ID, 1, choice(11)); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := f.service.Submit(ctx, attempt.ID); err != nil {
		t.Fatalf("submit: %v", err)
	}
	result, err := f.service.Regrade(ctx, attempt.ID, 1)
	if err != nil {
		t.Fatalf("regrade: %v", err)
	}
	if result.Correct != 1 || result.Total != 5 {
		t.Fatalf("unexpected regrade result: %+v", result)
	}
}

func TestSubmitUnknownAttempt(t *testing.T) {
	f := newAttemptFixture(t)
	if _, err := f.service.Submit(context.Background(), 404); !errors.Is(err, domain.ErrAttemptNotFound) {
		t.Fatalf("expected attempt not found, got %v", err)
	}
}
