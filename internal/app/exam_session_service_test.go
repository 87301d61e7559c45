package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"exam-portal-service/internal/app"
	"exam-portal-service/internal/domain"
	"exam-portal-service/internal/infra/memory"
)

func newExamSessionFixture(t *testing.T) (*app.ExamSessionService, *memory.ExamStore) {
	t.Helper()
	store := memory.NewExamStore()
	store.SeedExam(domain.ExamContent{
		Exam: domain.Exam{ID: 1, Title: "Final", DurationMinutes: 60, Published: true},
	})
	store.SeedExam(domain.ExamContent{
		Exam: domain.Exam{ID: 2, Title: "Draft", DurationMinutes: 60},
	})
	return app.NewExamSessionService(store, store, 2*time.Hour), store
}

func TestIssueExamSession(t *testing.T) {
	ctx := context.Background()
	service, _ := newExamSessionFixture(t)

	session, err := service.Issue(ctx, 1, "ExamDay#1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if session.ID == "" || !session.Active {
		t.Fatalf("expected active session with id, got %+v", session)
	}
	if session.PasswordHash == "ExamDay#1" {
		t.Fatalf("session password must not be stored in the clear")
	}
	if bcrypt.CompareHashAndPassword([]byte(session.PasswordHash), []byte("ExamDay#1")) != nil {
		t.Fatalf("stored hash does not match the announced password")
	}
}

func TestIssueRefusesBadExams(t *testing.T) {
	ctx := context.Background()
	service, _ := newExamSessionFixture(t)

	if _, err := service.Issue(ctx, 99, "ExamDay#1"); !errors.Is(err, domain.ErrExamNotFound) {
		t.Fatalf("expected exam not found, got %v", err)
	}
	if _, err := service.Issue(ctx, 2, "ExamDay#1"); !errors.Is(err, domain.ErrExamNotPublished) {
		t.Fatalf("expected not published, got %v", err)
	}
	if _, err := service.Issue(ctx, 1, ""); !errors.Is(err, domain.ErrInvalidFormat) {
		t.Fatalf("expected invalid format for empty password, got %v", err)
	}
}

func TestIssueKeepsOneActiveSessionPerExam(t *testing.T) {
	ctx := context.Background()
	service, store := newExamSessionFixture(t)

	first, err := service.Issue(ctx, 1, "Morning#1")
	if err != nil {
		t.Fatalf("first issue: %v", err)
	}
	second, err := service.Issue(ctx, 1, "Afternoon#2")
	if err != nil {
		t.Fatalf("second issue: %v", err)
	}

	active, err := store.ListActive(ctx, time.Now())
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if len(active) != 1 || active[0].ID != second.ID {
		t.Fatalf("expected only the newest session active, got %+v", active)
	}

	stale, err := store.GetByID(ctx, first.ID)
	if err != nil || stale == nil {
		t.Fatalf("first session lookup: %v", err)
	}
	if stale.Active {
		t.Fatalf("issuing a new session must retire the old one")
	}
}

func TestDeactivateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	service, store := newExamSessionFixture(t)

	session, err := service.Issue(ctx, 1, "Morning#1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if err := service.Deactivate(ctx, session.ID); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if err := service.Deactivate(ctx, session.ID); err != nil {
		t.Fatalf("second deactivate must be a no-op, got %v", err)
	}
	active, _ := store.ListActive(ctx, time.Now())
	if len(active) != 0 {
		t.Fatalf("expected no active sessions, got %+v", active)
	}
}
