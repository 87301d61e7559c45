package app

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"time"

	"exam-portal-service/internal/domain"
)

// TimerEngine derives attempt timing from the server clock. Remaining time
// is never trusted from the client; every value handed out is recomputed
// from the stored start time on demand, and client-submitted timestamps are
// revalidated against a keyed hash.
type TimerEngine struct {
	key   []byte
	grace time.Duration
	clock func() time.Time
}

// NewTimerEngine builds a timer signing with key; grace is the slack added
// on top of the exam duration before an attempt counts as abandoned.
func NewTimerEngine(key []byte, grace time.Duration) *TimerEngine {
	return &TimerEngine{key: key, grace: grace, clock: time.Now}
}

// NewTimerEngineWithClock is test-only for deterministic time.
func NewTimerEngineWithClock(key []byte, grace time.Duration, now func() time.Time) *TimerEngine {
	return &TimerEngine{key: key, grace: grace, clock: now}
}

// Remaining computes the time left on an attempt, floored at zero.
func (e *TimerEngine) Remaining(attempt domain.Attempt, exam domain.Exam) time.Duration {
	deadline := attempt.StartedAt.Add(exam.Duration())
	remaining := deadline.Sub(e.clock())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Elapsed is the wall-clock time since the attempt started.
func (e *TimerEngine) Elapsed(attempt domain.Attempt) time.Duration {
	return e.clock().Sub(attempt.StartedAt)
}

// Expired reports whether the attempt has no time left.
func (e *TimerEngine) Expired(attempt domain.Attempt, exam domain.Exam) bool {
	return e.Remaining(attempt, exam) <= 0
}

// Issue builds the SecureTimestamp shown to the client for an attempt.
func (e *TimerEngine) Issue(attempt domain.Attempt, exam domain.Exam) domain.SecureTimestamp {
	now := e.clock()
	remaining := e.Remaining(attempt, exam)
	return domain.SecureTimestamp{
		ServerTime:       now,
		RemainingSeconds: int64(remaining / time.Second),
		Signature:        e.sign(now, attempt.ID),
	}
}

// Verify recomputes the signature for a client-submitted timestamp. A
// mismatch means the value was altered client-side, regardless of the
// embedded remaining time.
func (e *TimerEngine) Verify(ts domain.SecureTimestamp, attemptID int64) error {
	expected := e.sign(ts.ServerTime, attemptID)
	if !hmac.Equal([]byte(expected), []byte(ts.Signature)) {
		return domain.ErrTimestampTampered
	}
	return nil
}

// CheckIntegrity compares elapsed wall-clock time against the exam duration
// plus grace. Past that point the attempt is treated as abandoned and must
// be force-submitted on next access.
func (e *TimerEngine) CheckIntegrity(attempt domain.Attempt, exam domain.Exam) error {
	if e.Elapsed(attempt) > exam.Duration()+e.grace {
		return domain.ErrSessionTimeout
	}
	return nil
}

func (e *TimerEngine) sign(serverTime time.Time, attemptID int64) string {
	mac := hmac.New(sha256.New, e.key)
	fmt.Fprintf(mac, "%d:%d", serverTime.Unix(), attemptID)
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// FormatRemaining renders a duration as H:MM:SS for exam screens.
func FormatRemaining(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d / time.Second)
	return fmt.Sprintf("%d:%02d:%02d", total/3600, (total%3600)/60, total%60)
}
