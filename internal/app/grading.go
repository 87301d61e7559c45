package app

import (
	"math"

	"exam-portal-service/internal/domain"
)

// GradeAnswers scores a set of stored answers against exam content. A
// question counts as correct only when an answer row exists, a choice was
// selected, and that choice belongs to the same question with its correct
// flag set. Percentage is rounded to two decimals; an exam with no
// questions grades to zero percent.
func GradeAnswers(content domain.ExamContent, answers []domain.Answer) domain.GradingResult {
	byQuestion := make(map[int64]domain.Answer, len(answers))
	for _, a := range answers {
		byQuestion[a.QuestionID] = a
	}

	result := domain.GradingResult{Total: len(content.Questions)}
	for i := range content.Questions {
		q := &content.Questions[i]
		answer, ok := byQuestion[q.ID]
		if !ok || answer.ChoiceID == nil {
			result.Unanswered++
			continue
		}
		choice := q.ChoiceOf(*answer.ChoiceID)
		if choice != nil && choice.IsCorrect {
			result.Correct++
		} else {
			result.Incorrect++
		}
	}

	if result.Total > 0 {
		pct := float64(result.Correct) / float64(result.Total) * 100
		result.Percentage = math.Round(pct*100) / 100
	}
	result.Grade = LetterGrade(result.Percentage)
	return result
}

// LetterGrade maps a percentage to the grade band.
func LetterGrade(percentage float64) string {
	switch {
	case percentage >= 90:
		return "A"
	case percentage >= 80:
		return "B"
	case percentage >= 70:
		return "C"
	case percentage >= 60:
		return "D"
	default:
		return "F"
	}
}
