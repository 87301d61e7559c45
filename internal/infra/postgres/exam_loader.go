package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"exam-portal-service/internal/domain"
)

// ExamLoader reads exam definitions and their question/choice trees through
// a pgx pool. It serves the read-mostly content path behind the caches; the
// bun repositories own all writes.
type ExamLoader struct {
	pool *pgxpool.Pool
}

func NewExamLoader(pool *pgxpool.Pool) *ExamLoader {
	return &ExamLoader{pool: pool}
}

// GetExam loads an exam definition, nil when absent.
func (l *ExamLoader) GetExam(ctx context.Context, examID int64) (*domain.Exam, error) {
	exam := domain.Exam{}
	err := l.pool.QueryRow(ctx, `
		SELECT id, title, academic_year, starts_at, ends_at, duration_minutes, published
		FROM exams WHERE id = $1
	`, examID).Scan(&exam.ID, &exam.Title, &exam.AcademicYear, &exam.StartsAt, &exam.EndsAt, &exam.DurationMinutes, &exam.Published)
	if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load exam: %w", err)
	}
	return &exam, nil
}

// LoadExamContent assembles the full content tree for an exam.
func (l *ExamLoader) LoadExamContent(ctx context.Context, examID int64) (domain.ExamContent, error) {
	exam, err := l.GetExam(ctx, examID)
	if err != nil {
		return domain.ExamContent{}, err
	}
	if exam == nil {
		return domain.ExamContent{}, domain.ErrExamNotFound
	}

	rows, err := l.pool.Query(ctx, `
		SELECT id, exam_id, position, prompt
		FROM questions WHERE exam_id = $1 ORDER BY position
	`, examID)
	if err != nil {
		return domain.ExamContent{}, fmt.Errorf("load questions: %w", err)
	}
	defer rows.Close()

	var questions []domain.Question
	index := make(map[int64]int)
	for rows.Next() {
		var q domain.Question
		if err := rows.Scan(&q.ID, &q.ExamID, &q.Position, &q.Prompt); err != nil {
			return domain.ExamContent{}, fmt.Errorf("scan question: %w", err)
		}
		index[q.ID] = len(questions)
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return domain.ExamContent{}, fmt.Errorf("iterate questions: %w", err)
	}

	choiceRows, err := l.pool.Query(ctx, `
		SELECT c.id, c.question_id, c.position, c.text, c.is_correct
		FROM choices c
		JOIN questions q ON q.id = c.question_id
		WHERE q.exam_id = $1
		ORDER BY c.question_id, c.position
	`, examID)
	if err != nil {
		return domain.ExamContent{}, fmt.Errorf("load choices: %w", err)
	}
	defer choiceRows.Close()

	for choiceRows.Next() {
		var c domain.Choice
		if err := choiceRows.Scan(&c.ID, &c.QuestionID, &c.Position, &c.Text, &c.IsCorrect); err != nil {
			return domain.ExamContent{}, fmt.Errorf("scan choice: %w", err)
		}
		if i, ok := index[c.QuestionID]; ok {
			questions[i].Choices = append(questions[i].Choices, c)
		}
	}
	if err := choiceRows.Err(); err != nil {
		return domain.ExamContent{}, fmt.Errorf("iterate choices: %w", err)
	}

	return domain.ExamContent{Exam: *exam, Questions: questions}, nil
}
