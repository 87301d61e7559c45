package app

import (
	"strings"
	"unicode"
)

// Violation identifies one failed password-policy rule.
type Violation string

const (
	ViolationTooShort      Violation = "too_short"
	ViolationTooLong       Violation = "too_long"
	ViolationNoUppercase   Violation = "missing_uppercase"
	ViolationNoLowercase   Violation = "missing_lowercase"
	ViolationNoDigit       Violation = "missing_digit"
	ViolationNoSpecial     Violation = "missing_special"
	ViolationWeakSubstring Violation = "weak_substring"
	ViolationSequentialRun Violation = "sequential_run"
	ViolationRepeatedRun   Violation = "repeated_run"
)

const (
	minPasswordLength = 8
	maxPasswordLength = 128
)

// weakSubstrings are rejected as case-insensitive substrings anywhere in
// the candidate password.
var weakSubstrings = []string{
	"password",
	"123456",
	"qwerty",
	"letmein",
	"admin",
	"welcome",
}

// ValidationOutcome reports every failed rule at once so callers can show
// the full list instead of one failure per round trip.
type ValidationOutcome struct {
	OK         bool
	Violations []Violation
}

// ValidatePassword runs the full rule set without short-circuiting.
func ValidatePassword(password string) ValidationOutcome {
	var violations []Violation

	if len(password) < minPasswordLength {
		violations = append(violations, ViolationTooShort)
	}
	if len(password) > maxPasswordLength {
		violations = append(violations, ViolationTooLong)
	}

	var upper, lower, digit, special bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		default:
			special = true
		}
	}
	if !upper {
		violations = append(violations, ViolationNoUppercase)
	}
	if !lower {
		violations = append(violations, ViolationNoLowercase)
	}
	if !digit {
		violations = append(violations, ViolationNoDigit)
	}
	if !special {
		violations = append(violations, ViolationNoSpecial)
	}

	lowered := strings.ToLower(password)
	for _, weak := range weakSubstrings {
		if strings.Contains(lowered, weak) {
			violations = append(violations, ViolationWeakSubstring)
			break
		}
	}

	if hasSequentialRun(lowered, 3) {
		violations = append(violations, ViolationSequentialRun)
	}
	if hasRepeatedRun(password, 3) {
		violations = append(violations, ViolationRepeatedRun)
	}

	return ValidationOutcome{OK: len(violations) == 0, Violations: violations}
}

// hasSequentialRun reports n or more consecutive ascending alphabetic or
// numeric characters ("abc", "456").
func hasSequentialRun(s string, n int) bool {
	runes := []rune(s)
	run := 1
	for i := 1; i < len(runes); i++ {
		prev, cur := runes[i-1], runes[i]
		sequential := cur == prev+1 &&
			((prev >= 'a' && cur <= 'z') || (prev >= '0' && cur <= '9'))
		if sequential {
			run++
			if run >= n {
				return true
			}
		} else {
			run = 1
		}
	}
	return false
}

// hasRepeatedRun reports n or more identical consecutive characters.
func hasRepeatedRun(s string, n int) bool {
	runes := []rune(s)
	run := 1
	for i := 1; i < len(runes); i++ {
		if runes[i] == runes[i-1] {
			run++
			if run >= n {
				return true
			}
		} else {
			run = 1
		}
	}
	return false
}
