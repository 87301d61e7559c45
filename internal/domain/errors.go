package domain

import "errors"

// The closed failure taxonomy returned by the core. Callers branch on these
// values, never on message text.
var (
	// ErrInvalidFormat is returned for malformed or missing request fields.
	ErrInvalidFormat = errors.New("invalid format")
	// ErrUserNotFound indicates no account matches the identifier. Rendered
	// identically to ErrIncorrectPassword for end users.
	ErrUserNotFound = errors.New("user not found")
	// ErrIncorrectPassword indicates a failed credential comparison.
	ErrIncorrectPassword = errors.New("incorrect password")
	// ErrAccountLocked indicates the identifier is inside a lockout window.
	ErrAccountLocked = errors.New("account locked")
	// ErrPhase1AlreadyCompleted indicates a repeat Phase-1 login outside an
	// exam-availability window.
	ErrPhase1AlreadyCompleted = errors.New("phase 1 already completed")
	// ErrPhase1NotCompleted indicates a Phase-2 attempt before Phase 1.
	ErrPhase1NotCompleted = errors.New("phase 1 not completed")
	// ErrStudentRecordNotFound indicates a student account without a profile.
	ErrStudentRecordNotFound = errors.New("student record not found")
	// ErrExamSessionNotFound indicates no active, unexpired exam session.
	ErrExamSessionNotFound = errors.New("exam session not found")
	// ErrIncorrectExamPassword indicates no active session matched the secret.
	ErrIncorrectExamPassword = errors.New("incorrect exam password")
	// ErrConfirmationMismatch indicates new and confirm passwords differ.
	ErrConfirmationMismatch = errors.New("password confirmation mismatch")
	// ErrWeakPassword indicates one or more password-policy violations.
	ErrWeakPassword = errors.New("weak password")
	// ErrPasswordTooShort is the length-specific policy failure.
	ErrPasswordTooShort = errors.New("password too short")
	// ErrPasswordReuse indicates the new password matches recent history.
	ErrPasswordReuse = errors.New("password recently used")
	// ErrSessionTimeout indicates the attempt's exam time has run out.
	ErrSessionTimeout = errors.New("session timeout")
	// ErrAlreadySubmitted indicates a mutation against a submitted attempt.
	ErrAlreadySubmitted = errors.New("attempt already submitted")
	// ErrTimestampTampered indicates a client timestamp whose signature does
	// not match the server-side recomputation.
	ErrTimestampTampered = errors.New("suspicious timing activity")
	// ErrSystem is the only kind surfaced for infrastructure failures; the
	// underlying cause is logged, never returned.
	ErrSystem = errors.New("system error")
)

// Lookup failures outside the authentication taxonomy.
var (
	// ErrExamNotFound indicates the exam definition could not be loaded.
	ErrExamNotFound = errors.New("exam not found")
	// ErrExamNotPublished indicates an operation that requires a published exam.
	ErrExamNotPublished = errors.New("exam not published")
	// ErrAttemptNotFound indicates an unknown attempt id.
	ErrAttemptNotFound = errors.New("attempt not found")
	// ErrQuestionNotFound indicates a question id outside the attempt's exam.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrChoiceNotFound indicates a choice id that does not belong to the question.
	ErrChoiceNotFound = errors.New("choice not found")
	// ErrSessionInvalid indicates a missing, expired, or revoked login session token.
	ErrSessionInvalid = errors.New("login session invalid")
)

// kinds is ordered: the most specific sentinel wins when an error wraps
// more than one (a too-short password is also a weak one).
var kinds = []struct {
	err  error
	kind string
}{
	{ErrInvalidFormat, "InvalidFormat"},
	{ErrUserNotFound, "UserNotFound"},
	{ErrIncorrectPassword, "IncorrectPassword"},
	{ErrAccountLocked, "AccountLocked"},
	{ErrPhase1AlreadyCompleted, "Phase1AlreadyCompleted"},
	{ErrPhase1NotCompleted, "Phase1NotCompleted"},
	{ErrStudentRecordNotFound, "StudentRecordNotFound"},
	{ErrExamSessionNotFound, "ExamSessionNotFound"},
	{ErrIncorrectExamPassword, "IncorrectExamPassword"},
	{ErrConfirmationMismatch, "ConfirmationMismatch"},
	{ErrPasswordTooShort, "PasswordTooShort"},
	{ErrWeakPassword, "WeakPassword"},
	{ErrPasswordReuse, "PasswordReuse"},
	{ErrSessionTimeout, "SessionTimeout"},
	{ErrAlreadySubmitted, "AlreadySubmitted"},
	{ErrTimestampTampered, "SuspiciousTiming"},
	{ErrExamNotFound, "ExamNotFound"},
	{ErrExamNotPublished, "ExamNotPublished"},
	{ErrAttemptNotFound, "AttemptNotFound"},
	{ErrQuestionNotFound, "QuestionNotFound"},
	{ErrChoiceNotFound, "ChoiceNotFound"},
	{ErrSessionInvalid, "SessionInvalid"},
	{ErrSystem, "SystemError"},
}

// KindOf maps a core error to its stable string kind for audit rows and
// API payloads. Unknown errors collapse to SystemError.
func KindOf(err error) string {
	for _, entry := range kinds {
		if errors.Is(err, entry.err) {
			return entry.kind
		}
	}
	return "SystemError"
}

// UserMessage renders an error for end users. Enumeration-sensitive kinds
// share one generic message on purpose.
func UserMessage(err error) string {
	switch {
	case errors.Is(err, ErrUserNotFound), errors.Is(err, ErrIncorrectPassword):
		return "Invalid login name or password"
	case errors.Is(err, ErrIncorrectExamPassword):
		return "Invalid exam password"
	case errors.Is(err, ErrSystem):
		return "Something went wrong, please try again"
	default:
		return err.Error()
	}
}
