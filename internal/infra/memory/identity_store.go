package memory

import (
	"context"
	"sync"
	"time"

	"exam-portal-service/internal/domain"
)

// IdentityStore is an in-memory implementation of app.IdentityRepository.
type IdentityStore struct {
	mu         sync.RWMutex
	identities map[int64]*domain.Identity
	profiles   map[int64]*domain.StudentProfile
	history    map[int64][]domain.PasswordHistory
	nextID     int64
}

func NewIdentityStore() *IdentityStore {
	return &IdentityStore{
		identities: make(map[int64]*domain.Identity),
		profiles:   make(map[int64]*domain.StudentProfile),
		history:    make(map[int64][]domain.PasswordHistory),
		nextID:     1,
	}
}

// Seed inserts an identity with an optional profile and returns its id.
func (s *IdentityStore) Seed(identity domain.Identity, profile *domain.StudentProfile) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if identity.ID == 0 {
		identity.ID = s.nextID
		s.nextID++
	}
	copied := identity
	s.identities[identity.ID] = &copied
	if profile != nil {
		p := *profile
		p.IdentityID = identity.ID
		s.profiles[identity.ID] = &p
	}
	return identity.ID
}

func (s *IdentityStore) GetByLoginName(_ context.Context, loginName string) (*domain.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, identity := range s.identities {
		if identity.LoginName == loginName {
			copied := *identity
			return &copied, nil
		}
	}
	return nil, nil
}

func (s *IdentityStore) GetByID(_ context.Context, id int64) (*domain.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	identity, ok := s.identities[id]
	if !ok {
		return nil, nil
	}
	copied := *identity
	return &copied, nil
}

func (s *IdentityStore) GetProfileByIdentity(_ context.Context, identityID int64) (*domain.StudentProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	profile, ok := s.profiles[identityID]
	if !ok {
		return nil, nil
	}
	copied := *profile
	return &copied, nil
}

func (s *IdentityStore) GetProfileByIDNumber(_ context.Context, idNumber string) (*domain.StudentProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, profile := range s.profiles {
		if profile.IDNumber == idNumber {
			copied := *profile
			return &copied, nil
		}
	}
	return nil, nil
}

func (s *IdentityStore) MarkPhase1Completed(_ context.Context, identityID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if identity, ok := s.identities[identityID]; ok {
		identity.Phase1Completed = true
	}
	return nil
}

func (s *IdentityStore) UpdateCredential(_ context.Context, identityID int64, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if identity, ok := s.identities[identityID]; ok {
		identity.PasswordHash = hash
		identity.MustChangePassword = false
	}
	return nil
}

func (s *IdentityStore) RecordLockState(_ context.Context, identityID int64, failedAttempts int, lockedUntil *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if identity, ok := s.identities[identityID]; ok {
		identity.FailedAttempts = failedAttempts
		identity.Locked = lockedUntil != nil
		identity.LockoutEndsAt = lockedUntil
	}
	return nil
}

func (s *IdentityStore) PasswordHistory(_ context.Context, identityID int64, limit int) ([]domain.PasswordHistory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := s.history[identityID]
	if len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	out := make([]domain.PasswordHistory, len(entries))
	copy(out, entries)
	return out, nil
}

func (s *IdentityStore) AppendPasswordHistory(_ context.Context, entry *domain.PasswordHistory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history[entry.IdentityID] = append(s.history[entry.IdentityID], *entry)
	return nil
}

// LoginSessionStore is an in-memory implementation of
// app.LoginSessionRepository.
type LoginSessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*domain.LoginSession
}

func NewLoginSessionStore() *LoginSessionStore {
	return &LoginSessionStore{sessions: make(map[string]*domain.LoginSession)}
}

func (s *LoginSessionStore) Create(_ context.Context, session *domain.LoginSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *session
	s.sessions[session.ID] = &copied
	return nil
}

func (s *LoginSessionStore) GetByTokenHash(_ context.Context, tokenHash string) (*domain.LoginSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, session := range s.sessions {
		if session.TokenHash == tokenHash {
			copied := *session
			return &copied, nil
		}
	}
	return nil, nil
}

func (s *LoginSessionStore) InvalidateAll(_ context.Context, identityID int64, endedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, session := range s.sessions {
		if session.IdentityID == identityID && session.Active {
			session.Active = false
			ended := endedAt
			session.EndedAt = &ended
		}
	}
	return nil
}

// ActiveCount reports live sessions for an identity; used by tests.
func (s *LoginSessionStore) ActiveCount(identityID int64) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, session := range s.sessions {
		if session.IdentityID == identityID && session.Active {
			count++
		}
	}
	return count
}
