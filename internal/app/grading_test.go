package app_test

import (
	"testing"

	"exam-portal-service/internal/app"
	"exam-portal-service/internal/domain"
)

func gradedContent() domain.ExamContent {
	content := domain.ExamContent{
		Exam: domain.Exam{ID: 1, Title: "Final", DurationMinutes: 60, Published: true},
	}
	for q := int64(1); q <= 5; q++ {
		content.Questions = append(content.Questions, domain.Question{
			ID:     q,
			ExamID: 1,
			Choices: []domain.Choice{
				{ID: q * 10, QuestionID: q, Text: "wrong"},
				{ID: q*10 + 1, QuestionID: q, Text: "right", IsCorrect: true},
			},
		})
	}
	return content
}

func choice(id int64) *int64 { return &id }

func TestGradeAnswersFourOfFive(t *testing.T) {
	content := gradedContent()
	answers := []domain.Answer{
		{QuestionID: 1, ChoiceID: choice(11)},
		{QuestionID: 2, ChoiceID: choice(21)},
		{QuestionID: 3, ChoiceID: choice(31)},
		{QuestionID: 4, ChoiceID: choice(41)},
		{QuestionID: 5, ChoiceID: choice(50)}, // wrong
	}
	result := app.GradeAnswers(content, answers)
	if result.Correct != 4 || result.Incorrect != 1 || result.Unanswered != 0 {
		t.Fatalf("unexpected tally: %+v", result)
	}
	if result.Percentage != 80.00 {
		t.Fatalf("expected 80.00, got %v", result.Percentage)
	}
	if result.Grade != "B" {
		t.Fatalf("expected B, got %s", result.Grade)
	}
}

func TestGradeAnswersUnansweredAndForeignChoice(t *testing.T) {
	content := gradedContent()
	answers := []domain.Answer{
		{QuestionID: 1, ChoiceID: nil},         // answered row without a pick
		{QuestionID: 2, ChoiceID: choice(31)},  // choice of question 3
		{QuestionID: 99, ChoiceID: choice(11)}, // not in the exam
	}
	result := app.GradeAnswers(content, answers)
	if result.Correct != 0 {
		t.Fatalf("expected no correct answers, got %d", result.Correct)
	}
	if result.Unanswered != 4 || result.Incorrect != 1 {
		t.Fatalf("unexpected tally: %+v", result)
	}
	if result.Grade != "F" {
		t.Fatalf("expected F, got %s", result.Grade)
	}
}

func TestGradeAnswersEmptyExam(t *testing.T) {
	result := app.GradeAnswers(domain.ExamContent{}, nil)
	if result.Percentage != 0 || result.Grade != "F" {
		t.Fatalf("expected zero percent F, got %+v", result)
	}
}

func TestLetterGradeBands(t *testing.T) {
	cases := []struct {
		pct  float64
		want string
	}{
		{100, "A"}, {90, "A"}, {89.99, "B"}, {80, "B"},
		{79.99, "C"}, {70, "C"}, {69.99, "D"}, {60, "D"},
		{59.99, "F"}, {0, "F"},
	}
	for _, c := range cases {
		if got := app.LetterGrade(c.pct); got != c.want {
			t.Fatalf("LetterGrade(%v) = %s, want %s", c.pct, got, c.want)
		}
	}
}
