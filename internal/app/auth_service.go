package app

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"exam-portal-service/internal/domain"
)

// AuthConfig carries the tunables of the authentication engine.
type AuthConfig struct {
	DerivationSuffix string
	SessionTTL       time.Duration
	JWTSecret        []byte
	// AllowLegacyPlaintext enables direct equality against the stored
	// credential when bcrypt verification fails. It exists for pre-seeded
	// test accounts and must stay off in production.
	AllowLegacyPlaintext bool
	PasswordHistoryDepth int
}

// AuthService orchestrates the two-phase credential checks, consults the
// lockout tracker and credential derivation, and issues login sessions.
type AuthService struct {
	identities   IdentityRepository
	sessions     LoginSessionRepository
	examSessions ExamSessionRepository
	audit        AuditRepository
	lockout      *LockoutTracker
	cfg          AuthConfig
	clock        func() time.Time
}

func NewAuthService(
	identities IdentityRepository,
	sessions LoginSessionRepository,
	examSessions ExamSessionRepository,
	audit AuditRepository,
	lockout *LockoutTracker,
	cfg AuthConfig,
) *AuthService {
	if cfg.DerivationSuffix == "" {
		cfg.DerivationSuffix = DefaultDerivationSuffix
	}
	if cfg.SessionTTL == 0 {
		cfg.SessionTTL = 12 * time.Hour
	}
	if cfg.PasswordHistoryDepth == 0 {
		cfg.PasswordHistoryDepth = 5
	}
	return &AuthService{
		identities:   identities,
		sessions:     sessions,
		examSessions: examSessions,
		audit:        audit,
		lockout:      lockout,
		cfg:          cfg,
		clock:        time.Now,
	}
}

// WithClock is test-only for deterministic time.
func (s *AuthService) WithClock(now func() time.Time) *AuthService {
	s.clock = now
	return s
}

// AuthResult is the successful outcome of a phase validation.
type AuthResult struct {
	Token              string        `json:"token"`
	ClaimsToken        string        `json:"claimsToken"`
	SessionID          string        `json:"sessionId"`
	ExamSessionID      string        `json:"examSessionId,omitempty"`
	MustChangePassword bool          `json:"mustChangePassword"`
	RetryAfter         time.Duration `json:"-"`
	Message            string        `json:"message,omitempty"`
}

// ValidatePhase1 runs the first-stage identity check. Students authenticate
// with the derived id-number password, coordinators against their stored
// hash. Every call, success or failure, leaves an audit row before
// returning.
func (s *AuthService) ValidatePhase1(ctx context.Context, loginName, password, ip, userAgent string) (AuthResult, error) {
	loginName = strings.TrimSpace(loginName)
	if loginName == "" || password == "" {
		return AuthResult{}, domain.ErrInvalidFormat
	}

	remaining, err := s.lockout.Remaining(ctx, loginName)
	if err != nil {
		log.Printf("[auth][phase1] lockout check failed for %q: %v", loginName, err)
		return AuthResult{}, domain.ErrSystem
	}
	if remaining > 0 {
		s.recordAttempt(ctx, loginName, 1, false, domain.ErrAccountLocked, ip, userAgent)
		return AuthResult{RetryAfter: remaining}, domain.ErrAccountLocked
	}

	identity, err := s.identities.GetByLoginName(ctx, loginName)
	if err != nil {
		log.Printf("[auth][phase1] identity lookup failed for %q: %v", loginName, err)
		return AuthResult{}, domain.ErrSystem
	}
	if identity == nil {
		// Distinct kind for the audit trail; the transport renders it the
		// same as a wrong password.
		s.recordAttempt(ctx, loginName, 1, false, domain.ErrUserNotFound, ip, userAgent)
		return AuthResult{}, domain.ErrUserNotFound
	}

	var result AuthResult
	if identity.Role == domain.RoleStudent {
		result, err = s.phase1Student(ctx, identity, password)
	} else {
		err = s.phase1Coordinator(ctx, identity, password)
	}
	if err != nil {
		if errors.Is(err, domain.ErrIncorrectPassword) {
			s.countFailure(ctx, loginName, identity)
		}
		s.recordAttempt(ctx, loginName, 1, false, err, ip, userAgent)
		return AuthResult{}, err
	}

	if err := s.lockout.Reset(ctx, loginName); err != nil {
		log.Printf("[auth][phase1] lockout reset failed for %q: %v", loginName, err)
	}
	issued, err := s.issueSession(ctx, identity, domain.PhaseOne, nil)
	if err != nil {
		log.Printf("[auth][phase1] session issue failed for %q: %v", loginName, err)
		return AuthResult{}, domain.ErrSystem
	}
	issued.Message = result.Message
	issued.MustChangePassword = identity.MustChangePassword
	s.recordAttempt(ctx, loginName, 1, true, nil, ip, userAgent)
	return issued, nil
}

func (s *AuthService) phase1Student(ctx context.Context, identity *domain.Identity, password string) (AuthResult, error) {
	profile, err := s.identities.GetProfileByIdentity(ctx, identity.ID)
	if err != nil {
		log.Printf("[auth][phase1] profile lookup failed for identity %d: %v", identity.ID, err)
		return AuthResult{}, domain.ErrSystem
	}
	if profile == nil {
		return AuthResult{}, domain.ErrStudentRecordNotFound
	}

	if identity.Phase1Completed {
		// Re-entry is only allowed while an exam window is open, in which
		// case the student is sent straight on to Phase 2.
		open, err := s.examWindowOpen(ctx)
		if err != nil {
			return AuthResult{}, domain.ErrSystem
		}
		if !open {
			return AuthResult{}, domain.ErrPhase1AlreadyCompleted
		}
		return AuthResult{Message: "identity already verified, proceed to exam login"}, nil
	}

	expected := DerivePhase1Password(profile.IDNumber, s.cfg.DerivationSuffix)
	if expected == "" || password != expected {
		return AuthResult{}, domain.ErrIncorrectPassword
	}
	if err := s.identities.MarkPhase1Completed(ctx, identity.ID); err != nil {
		log.Printf("[auth][phase1] mark completed failed for identity %d: %v", identity.ID, err)
		return AuthResult{}, domain.ErrSystem
	}
	return AuthResult{}, nil
}

func (s *AuthService) phase1Coordinator(ctx context.Context, identity *domain.Identity, password string) error {
	stored := strings.TrimSpace(identity.PasswordHash)
	if err := bcrypt.CompareHashAndPassword([]byte(stored), []byte(password)); err != nil {
		if s.cfg.AllowLegacyPlaintext && stored != "" && stored == password {
			log.Printf("[auth][phase1] legacy plaintext credential used for identity %d", identity.ID)
			return nil
		}
		return domain.ErrIncorrectPassword
	}
	return nil
}

// ValidatePhase2 runs the exam-day admission check: the student proves they
// hold the session secret the coordinator announced for the running exam.
func (s *AuthService) ValidatePhase2(ctx context.Context, idNumber, password, ip, userAgent string) (AuthResult, error) {
	idNumber = strings.TrimSpace(idNumber)
	if idNumber == "" || password == "" {
		return AuthResult{}, domain.ErrInvalidFormat
	}

	remaining, err := s.lockout.Remaining(ctx, idNumber)
	if err != nil {
		log.Printf("[auth][phase2] lockout check failed for %q: %v", idNumber, err)
		return AuthResult{}, domain.ErrSystem
	}
	if remaining > 0 {
		s.recordAttempt(ctx, idNumber, 2, false, domain.ErrAccountLocked, ip, userAgent)
		return AuthResult{RetryAfter: remaining}, domain.ErrAccountLocked
	}

	profile, err := s.identities.GetProfileByIDNumber(ctx, idNumber)
	if err != nil {
		log.Printf("[auth][phase2] profile lookup failed for %q: %v", idNumber, err)
		return AuthResult{}, domain.ErrSystem
	}
	if profile == nil {
		s.recordAttempt(ctx, idNumber, 2, false, domain.ErrUserNotFound, ip, userAgent)
		return AuthResult{}, domain.ErrUserNotFound
	}
	identity, err := s.identities.GetByID(ctx, profile.IdentityID)
	if err != nil || identity == nil {
		log.Printf("[auth][phase2] identity lookup failed for %q: %v", idNumber, err)
		return AuthResult{}, domain.ErrSystem
	}
	if !identity.Phase1Completed {
		s.recordAttempt(ctx, idNumber, 2, false, domain.ErrPhase1NotCompleted, ip, userAgent)
		return AuthResult{}, domain.ErrPhase1NotCompleted
	}

	candidates, err := s.examSessions.ListActive(ctx, s.clock())
	if err != nil {
		log.Printf("[auth][phase2] session listing failed: %v", err)
		return AuthResult{}, domain.ErrSystem
	}
	if len(candidates) == 0 {
		s.recordAttempt(ctx, idNumber, 2, false, domain.ErrExamSessionNotFound, ip, userAgent)
		return AuthResult{}, domain.ErrExamSessionNotFound
	}

	var matched *domain.ExamSession
	for i := range candidates {
		if bcrypt.CompareHashAndPassword([]byte(candidates[i].PasswordHash), []byte(password)) == nil {
			matched = &candidates[i]
			break
		}
	}
	if matched == nil {
		if _, err := s.lockout.RecordFailure(ctx, idNumber); err != nil {
			log.Printf("[auth][phase2] lockout record failed for %q: %v", idNumber, err)
		}
		s.recordAttempt(ctx, idNumber, 2, false, domain.ErrIncorrectExamPassword, ip, userAgent)
		return AuthResult{}, domain.ErrIncorrectExamPassword
	}

	if err := s.lockout.Reset(ctx, idNumber); err != nil {
		log.Printf("[auth][phase2] lockout reset failed for %q: %v", idNumber, err)
	}
	issued, err := s.issueSession(ctx, identity, domain.PhaseTwo, &matched.ID)
	if err != nil {
		log.Printf("[auth][phase2] session issue failed for %q: %v", idNumber, err)
		return AuthResult{}, domain.ErrSystem
	}
	issued.ExamSessionID = matched.ID
	issued.MustChangePassword = identity.MustChangePassword
	s.recordAttempt(ctx, idNumber, 2, true, nil, ip, userAgent)
	return issued, nil
}

// ChangePassword validates and stores a new credential, guarding against
// reuse of the recent history.
func (s *AuthService) ChangePassword(ctx context.Context, identityID int64, newPassword, confirmPassword string) error {
	if newPassword != confirmPassword {
		return domain.ErrConfirmationMismatch
	}
	outcome := ValidatePassword(newPassword)
	if !outcome.OK {
		for _, v := range outcome.Violations {
			if v == ViolationTooShort {
				return fmt.Errorf("%w: %w", domain.ErrWeakPassword, domain.ErrPasswordTooShort)
			}
		}
		return domain.ErrWeakPassword
	}

	history, err := s.identities.PasswordHistory(ctx, identityID, s.cfg.PasswordHistoryDepth)
	if err != nil {
		log.Printf("[auth][change] history lookup failed for identity %d: %v", identityID, err)
		return domain.ErrSystem
	}
	for _, entry := range history {
		if bcrypt.CompareHashAndPassword([]byte(entry.Hash), []byte(newPassword)) == nil {
			return domain.ErrPasswordReuse
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		log.Printf("[auth][change] hash failed for identity %d: %v", identityID, err)
		return domain.ErrSystem
	}
	if err := s.identities.UpdateCredential(ctx, identityID, string(hash)); err != nil {
		log.Printf("[auth][change] credential update failed for identity %d: %v", identityID, err)
		return domain.ErrSystem
	}
	entry := &domain.PasswordHistory{
		IdentityID: identityID,
		Hash:       string(hash),
		CreatedAt:  s.clock(),
	}
	if err := s.identities.AppendPasswordHistory(ctx, entry); err != nil {
		log.Printf("[auth][change] history append failed for identity %d: %v", identityID, err)
	}
	return nil
}

// InvalidateAllSessions marks every active login session for the identity
// inactive; used on logout and suspected compromise.
func (s *AuthService) InvalidateAllSessions(ctx context.Context, identityID int64) error {
	if err := s.sessions.InvalidateAll(ctx, identityID, s.clock()); err != nil {
		log.Printf("[auth][logout] invalidate failed for identity %d: %v", identityID, err)
		return domain.ErrSystem
	}
	return nil
}

// ResolveToken validates an opaque session token and returns the live
// login session behind it.
func (s *AuthService) ResolveToken(ctx context.Context, token string) (*domain.LoginSession, error) {
	if token == "" {
		return nil, domain.ErrSessionInvalid
	}
	session, err := s.sessions.GetByTokenHash(ctx, hashToken(token))
	if err != nil {
		log.Printf("[auth][resolve] session lookup failed: %v", err)
		return nil, domain.ErrSystem
	}
	if session == nil || !session.Active || s.clock().After(session.ExpiresAt) {
		return nil, domain.ErrSessionInvalid
	}
	return session, nil
}

// ResolveIdentity validates a token and loads the identity behind it.
func (s *AuthService) ResolveIdentity(ctx context.Context, token string) (*domain.Identity, *domain.LoginSession, error) {
	session, err := s.ResolveToken(ctx, token)
	if err != nil {
		return nil, nil, err
	}
	identity, err := s.identities.GetByID(ctx, session.IdentityID)
	if err != nil {
		log.Printf("[auth][resolve] identity lookup failed for %d: %v", session.IdentityID, err)
		return nil, nil, domain.ErrSystem
	}
	if identity == nil {
		return nil, nil, domain.ErrSessionInvalid
	}
	return identity, session, nil
}

func (s *AuthService) issueSession(ctx context.Context, identity *domain.Identity, phase domain.LoginPhase, examSessionID *string) (AuthResult, error) {
	token, err := newOpaqueToken()
	if err != nil {
		return AuthResult{}, err
	}
	now := s.clock()
	session := &domain.LoginSession{
		ID:            uuid.NewString(),
		IdentityID:    identity.ID,
		Phase:         phase,
		ExamSessionID: examSessionID,
		TokenHash:     hashToken(token),
		Active:        true,
		CreatedAt:     now,
		ExpiresAt:     now.Add(s.cfg.SessionTTL),
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return AuthResult{}, err
	}

	claims := jwt.MapClaims{
		"sub":   identity.ID,
		"name":  identity.DisplayName,
		"role":  string(identity.Role),
		"phase": int(phase),
		"exp":   session.ExpiresAt.Unix(),
	}
	claimsToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.cfg.JWTSecret)
	if err != nil {
		return AuthResult{}, err
	}
	return AuthResult{Token: token, ClaimsToken: claimsToken, SessionID: session.ID}, nil
}

// countFailure runs the lockout increment and mirrors the result onto the
// identity row.
func (s *AuthService) countFailure(ctx context.Context, key string, identity *domain.Identity) {
	locked, err := s.lockout.RecordFailure(ctx, key)
	if err != nil {
		log.Printf("[auth] lockout record failed for %q: %v", key, err)
		return
	}
	var until *time.Time
	if locked {
		t := s.clock().Add(s.lockout.Duration())
		until = &t
	}
	if err := s.identities.RecordLockState(ctx, identity.ID, identity.FailedAttempts+1, until); err != nil {
		log.Printf("[auth] lock state mirror failed for identity %d: %v", identity.ID, err)
	}
}

// examWindowOpen reports whether any active, unexpired exam session exists.
func (s *AuthService) examWindowOpen(ctx context.Context) (bool, error) {
	sessions, err := s.examSessions.ListActive(ctx, s.clock())
	if err != nil {
		log.Printf("[auth] exam window check failed: %v", err)
		return false, err
	}
	return len(sessions) > 0, nil
}

func (s *AuthService) recordAttempt(ctx context.Context, identifier string, phase int, success bool, cause error, ip, userAgent string) {
	kind := ""
	if cause != nil {
		kind = domain.KindOf(cause)
	}
	attempt := &domain.LoginAttempt{
		ID:         uuid.NewString(),
		Identifier: identifier,
		Phase:      phase,
		Success:    success,
		ErrorKind:  kind,
		IPAddress:  ip,
		UserAgent:  userAgent,
		CreatedAt:  s.clock(),
	}
	if err := s.audit.RecordLoginAttempt(ctx, attempt); err != nil {
		log.Printf("[auth] audit write failed for %q: %v", identifier, err)
	}
}

func newOpaqueToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
