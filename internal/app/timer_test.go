package app_test

import (
	"testing"
	"time"

	"exam-portal-service/internal/app"
	"exam-portal-service/internal/domain"
)

var timerKey = []byte("test-signing-key")

func timedFixture(started time.Time) (domain.Attempt, domain.Exam) {
	attempt := domain.Attempt{ID: 7, ExamID: 1, StartedAt: started}
	exam := domain.Exam{ID: 1, DurationMinutes: 60, Published: true}
	return attempt, exam
}

func TestTimerRemainingCountsDown(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	attempt, exam := timedFixture(start)

	now := start.Add(15 * time.Minute)
	engine := app.NewTimerEngineWithClock(timerKey, 30*time.Second, func() time.Time { return now })

	if got := engine.Remaining(attempt, exam); got != 45*time.Minute {
		t.Fatalf("expected 45m remaining, got %v", got)
	}
	if engine.Expired(attempt, exam) {
		t.Fatalf("attempt should not be expired at 15 minutes")
	}
}

func TestTimerRemainingFloorsAtZero(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	attempt, exam := timedFixture(start)

	now := start.Add(61 * time.Minute)
	engine := app.NewTimerEngineWithClock(timerKey, 30*time.Second, func() time.Time { return now })

	if got := engine.Remaining(attempt, exam); got != 0 {
		t.Fatalf("expected 0 remaining past the deadline, got %v", got)
	}
	if !engine.Expired(attempt, exam) {
		t.Fatalf("attempt should be expired at 61 minutes")
	}
	if err := engine.CheckIntegrity(attempt, exam); err != domain.ErrSessionTimeout {
		t.Fatalf("expected SessionTimeout past duration+grace, got %v", err)
	}
}

func TestTimerGraceHoldsIntegrity(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	attempt, exam := timedFixture(start)

	now := start.Add(60*time.Minute + 10*time.Second)
	engine := app.NewTimerEngineWithClock(timerKey, 30*time.Second, func() time.Time { return now })

	if err := engine.CheckIntegrity(attempt, exam); err != nil {
		t.Fatalf("expected integrity to hold inside the grace window, got %v", err)
	}
}

func TestTimerIssueAndVerify(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	attempt, exam := timedFixture(start)
	engine := app.NewTimerEngineWithClock(timerKey, 30*time.Second, func() time.Time { return start.Add(time.Minute) })

	ts := engine.Issue(attempt, exam)
	if ts.RemainingSeconds != 59*60 {
		t.Fatalf("expected 3540 remaining seconds, got %d", ts.RemainingSeconds)
	}
	if err := engine.Verify(ts, attempt.ID); err != nil {
		t.Fatalf("verify of untouched timestamp failed: %v", err)
	}

	// Inflating the remaining time does not help: the signature covers the
	// server time, and recomputation ignores the client's figure entirely.
	forged := ts
	forged.ServerTime = forged.ServerTime.Add(-30 * time.Minute)
	if err := engine.Verify(forged, attempt.ID); err != domain.ErrTimestampTampered {
		t.Fatalf("expected tamper error for altered server time, got %v", err)
	}

	clipped := ts
	clipped.Signature = "AAAA" + clipped.Signature[4:]
	if err := engine.Verify(clipped, attempt.ID); err != domain.ErrTimestampTampered {
		t.Fatalf("expected tamper error for altered signature, got %v", err)
	}

	if err := engine.Verify(ts, attempt.ID+1); err != domain.ErrTimestampTampered {
		t.Fatalf("timestamp must not verify against another attempt, got %v", err)
	}
}

func TestTimerKeyIsolation(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	attempt, exam := timedFixture(start)
	clock := func() time.Time { return start.Add(time.Minute) }

	issued := app.NewTimerEngineWithClock([]byte("key-a"), 0, clock).Issue(attempt, exam)
	other := app.NewTimerEngineWithClock([]byte("key-b"), 0, clock)
	if err := other.Verify(issued, attempt.ID); err != domain.ErrTimestampTampered {
		t.Fatalf("expected cross-key verification to fail, got %v", err)
	}
}

func TestFormatRemaining(t *testing.T) {
	cases := []struct {
		d    time.Duration
		want string
	}{
		{90 * time.Minute, "1:30:00"},
		{59*time.Minute + 5*time.Second, "0:59:05"},
		{0, "0:00:00"},
		{-time.Minute, "0:00:00"},
	}
	for _, c := range cases {
		if got := app.FormatRemaining(c.d); got != c.want {
			t.Fatalf("FormatRemaining(%v) = %q, want %q", c.d, got, c.want)
		}
	}
}
