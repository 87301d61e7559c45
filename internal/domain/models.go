package domain

import (
	"time"

	"github.com/uptrace/bun"
)

// Role distinguishes the two account classes the portal knows about.
type Role string

const (
	RoleStudent     Role = "student"
	RoleCoordinator Role = "coordinator"
)

// LoginPhase tracks how far through the two-stage check a session has come.
type LoginPhase int

const (
	PhaseNone LoginPhase = iota
	PhaseOne
	PhaseTwo
)

// Identity is a user account. Lock state and the failed-attempt counter are
// mirrored here from the lockout store for coordinator visibility; the store
// is authoritative.
type Identity struct {
	bun.BaseModel `bun:"table:identities"`

	ID                 int64      `bun:"id,pk,autoincrement" json:"id"`
	LoginName          string     `bun:"login_name,unique,notnull" json:"loginName"`
	PasswordHash       string     `bun:"password_hash,notnull" json:"-"`
	DisplayName        string     `bun:"display_name" json:"displayName"`
	Role               Role       `bun:"role,notnull" json:"role"`
	Phase1Completed    bool       `bun:"phase1_completed,notnull,default:false" json:"phase1Completed"`
	MustChangePassword bool       `bun:"must_change_password,notnull,default:false" json:"mustChangePassword"`
	Locked             bool       `bun:"locked,notnull,default:false" json:"locked"`
	LockoutEndsAt      *time.Time `bun:"lockout_ends_at" json:"lockoutEndsAt,omitempty"`
	FailedAttempts     int        `bun:"failed_attempts,notnull,default:0" json:"-"`
	CreatedAt          time.Time  `bun:"created_at,notnull,default:current_timestamp" json:"createdAt"`
	UpdatedAt          time.Time  `bun:"updated_at,notnull,default:current_timestamp" json:"updatedAt"`
}

// StudentProfile carries the institutional identifiers used by both phases:
// the university email is the Phase-1 login name, the id-number seeds the
// derived Phase-1 password and is the Phase-2 lookup key.
type StudentProfile struct {
	bun.BaseModel `bun:"table:student_profiles"`

	ID         int64  `bun:"id,pk,autoincrement" json:"id"`
	IdentityID int64  `bun:"identity_id,unique,notnull" json:"identityId"`
	IDNumber   string `bun:"id_number,unique,notnull" json:"idNumber"`
	Email      string `bun:"email,unique,notnull" json:"email"`
	FullName   string `bun:"full_name" json:"fullName"`
}

// Exam is the published definition students take.
type Exam struct {
	bun.BaseModel `bun:"table:exams"`

	ID              int64     `bun:"id,pk,autoincrement" json:"id"`
	Title           string    `bun:"title,notnull" json:"title"`
	AcademicYear    string    `bun:"academic_year" json:"academicYear"`
	StartsAt        time.Time `bun:"starts_at" json:"startsAt"`
	EndsAt          time.Time `bun:"ends_at" json:"endsAt"`
	DurationMinutes int       `bun:"duration_minutes,notnull" json:"durationMinutes"`
	Published       bool      `bun:"published,notnull,default:false" json:"published"`
}

// Duration is the exam length as a time.Duration.
func (e Exam) Duration() time.Duration {
	return time.Duration(e.DurationMinutes) * time.Minute
}

// Question belongs to an exam and owns an ordered list of choices.
type Question struct {
	bun.BaseModel `bun:"table:questions"`

	ID       int64    `bun:"id,pk,autoincrement" json:"id"`
	ExamID   int64    `bun:"exam_id,notnull" json:"examId"`
	Position int      `bun:"position,notnull" json:"position"`
	Prompt   string   `bun:"prompt,notnull" json:"prompt"`
	Choices  []Choice `bun:"rel:has-many,join:id=question_id" json:"choices"`
}

// ChoiceOf returns the choice with the given id only if it belongs to this
// question; cross-question choice ids never resolve.
func (q *Question) ChoiceOf(choiceID int64) *Choice {
	for i := range q.Choices {
		if q.Choices[i].ID == choiceID {
			return &q.Choices[i]
		}
	}
	return nil
}

// Choice is one option of a question; exactly one per question is correct
// once the exam is published.
type Choice struct {
	bun.BaseModel `bun:"table:choices"`

	ID         int64  `bun:"id,pk,autoincrement" json:"id"`
	QuestionID int64  `bun:"question_id,notnull" json:"questionId"`
	Position   int    `bun:"position,notnull" json:"position"`
	Text       string `bun:"text,notnull" json:"text"`
	IsCorrect  bool   `bun:"is_correct,notnull,default:false" json:"-"`
}

// ExamContent is the fully assembled exam used by the timer and grading
// paths. It is what the content loader returns and what the cache stores.
type ExamContent struct {
	Exam      Exam       `json:"exam"`
	Questions []Question `json:"questions"`
}

// QuestionByID returns the question with the given id, or nil.
func (c ExamContent) QuestionByID(questionID int64) *Question {
	for i := range c.Questions {
		if c.Questions[i].ID == questionID {
			return &c.Questions[i]
		}
	}
	return nil
}

// ExamSession is a coordinator-issued, time-boxed secret gating Phase 2.
// At most one session is active per exam at any time.
type ExamSession struct {
	bun.BaseModel `bun:"table:exam_sessions"`

	ID           string    `bun:"id,pk" json:"id"`
	ExamID       int64     `bun:"exam_id,notnull" json:"examId"`
	PasswordHash string    `bun:"password_hash,notnull" json:"-"`
	Active       bool      `bun:"active,notnull,default:true" json:"active"`
	CreatedAt    time.Time `bun:"created_at,notnull" json:"createdAt"`
	ExpiresAt    time.Time `bun:"expires_at,notnull" json:"expiresAt"`
}

// Expired reports whether the session validity window has passed.
func (s ExamSession) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// Attempt is one student's instance of taking one exam. Unique per
// (student, exam); immutable after submission except the grading fields,
// which are written exactly once by the automatic grading pass.
type Attempt struct {
	bun.BaseModel `bun:"table:attempts"`

	ID          int64      `bun:"id,pk,autoincrement" json:"id"`
	IdentityID  int64      `bun:"identity_id,notnull" json:"identityId"`
	ExamID      int64      `bun:"exam_id,notnull" json:"examId"`
	StartedAt   time.Time  `bun:"started_at,notnull" json:"startedAt"`
	SubmittedAt *time.Time `bun:"submitted_at" json:"submittedAt,omitempty"`
	Submitted   bool       `bun:"submitted,notnull,default:false" json:"submitted"`
	Score       *int       `bun:"score" json:"score,omitempty"`
	Percentage  *float64   `bun:"percentage" json:"percentage,omitempty"`
	Grade       *string    `bun:"grade" json:"grade,omitempty"`
	GradedAt    *time.Time `bun:"graded_at" json:"gradedAt,omitempty"`
}

// Answer is the single row per (attempt, question); the selected choice is
// nullable, meaning unanswered.
type Answer struct {
	bun.BaseModel `bun:"table:answers"`

	ID         int64     `bun:"id,pk,autoincrement" json:"id"`
	AttemptID  int64     `bun:"attempt_id,notnull" json:"attemptId"`
	QuestionID int64     `bun:"question_id,notnull" json:"questionId"`
	ChoiceID   *int64    `bun:"choice_id" json:"choiceId,omitempty"`
	Flagged    bool      `bun:"flagged,notnull,default:false" json:"flagged"`
	UpdatedAt  time.Time `bun:"updated_at,notnull" json:"updatedAt"`
}

// LoginSession is the ephemeral server-side record behind an opaque token.
type LoginSession struct {
	bun.BaseModel `bun:"table:login_sessions"`

	ID            string     `bun:"id,pk" json:"id"`
	IdentityID    int64      `bun:"identity_id,notnull" json:"identityId"`
	Phase         LoginPhase `bun:"phase,notnull" json:"phase"`
	ExamSessionID *string    `bun:"exam_session_id" json:"examSessionId,omitempty"`
	TokenHash     string     `bun:"token_hash,unique,notnull" json:"-"`
	Active        bool       `bun:"active,notnull,default:true" json:"active"`
	CreatedAt     time.Time  `bun:"created_at,notnull" json:"createdAt"`
	ExpiresAt     time.Time  `bun:"expires_at,notnull" json:"expiresAt"`
	EndedAt       *time.Time `bun:"ended_at" json:"endedAt,omitempty"`
}

// LoginAttempt is an append-only audit row; one is written for every
// authentication call, success or failure, before the result is returned.
type LoginAttempt struct {
	bun.BaseModel `bun:"table:login_attempts"`

	ID         string    `bun:"id,pk" json:"id"`
	Identifier string    `bun:"identifier,notnull" json:"identifier"`
	Phase      int       `bun:"phase,notnull" json:"phase"`
	Success    bool      `bun:"success,notnull" json:"success"`
	ErrorKind  string    `bun:"error_kind" json:"errorKind,omitempty"`
	IPAddress  string    `bun:"ip_address" json:"ipAddress"`
	UserAgent  string    `bun:"user_agent" json:"userAgent"`
	CreatedAt  time.Time `bun:"created_at,notnull" json:"createdAt"`
}

// PasswordHistory keeps recent hashes per identity so changed passwords
// cannot be reused.
type PasswordHistory struct {
	bun.BaseModel `bun:"table:password_history"`

	ID         int64     `bun:"id,pk,autoincrement" json:"-"`
	IdentityID int64     `bun:"identity_id,notnull" json:"-"`
	Hash       string    `bun:"hash,notnull" json:"-"`
	CreatedAt  time.Time `bun:"created_at,notnull" json:"-"`
}

// SecureTimestamp is a server-computed, hash-authenticated time/remaining
// pair handed to exam clients. Any copy submitted back is revalidated by
// recomputing the signature server-side.
type SecureTimestamp struct {
	ServerTime       time.Time `json:"serverTime"`
	RemainingSeconds int64     `json:"remainingSeconds"`
	Signature        string    `json:"signature"`
}

// GradingResult is the outcome of one grading pass over an attempt.
type GradingResult struct {
	Total      int     `json:"total"`
	Correct    int     `json:"correct"`
	Incorrect  int     `json:"incorrect"`
	Unanswered int     `json:"unanswered"`
	Percentage float64 `json:"percentage"`
	Grade      string  `json:"grade"`
}
