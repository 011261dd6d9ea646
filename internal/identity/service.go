// Copyright 2026 The OpenTrusty Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/opentrusty/tenantguard/internal/audit"
	"github.com/opentrusty/tenantguard/internal/boundary"
	"github.com/opentrusty/tenantguard/internal/id"
	"github.com/opentrusty/tenantguard/internal/rbac"
	"github.com/opentrusty/tenantguard/internal/tenant"
)

// OrganizationLookup is the part of the tenant store the identity service reads.
type OrganizationLookup interface {
	GetByID(ctx context.Context, id string) (*tenant.Organization, error)
}

// CreateUserRequest describes a new user.
type CreateUserRequest struct {
	OrganizationID string
	Email          string
	Password       string
	RoleID         string
	Metadata       map[string]any
	// CreatedBy is the acting user, empty for system actions.
	CreatedBy string
}

// AuthResult is returned by a successful authentication.
type AuthResult struct {
	User      *User     `json:"user"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Service provides identity-related business logic
type Service struct {
	repo    UserRepository
	orgs    OrganizationLookup
	hasher  *PasswordHasher
	tokens  *TokenIssuer
	auditor audit.Recorder
	now     func() time.Time

	// onDeactivate runs after a user is deactivated, e.g. to evict caches.
	onDeactivate func(userID string)

	dummyOnce sync.Once
	dummyHash string
}

// NewService creates a new identity service
func NewService(
	repo UserRepository,
	orgs OrganizationLookup,
	hasher *PasswordHasher,
	tokens *TokenIssuer,
	auditor audit.Recorder,
) *Service {
	if auditor == nil {
		auditor = audit.NopRecorder{}
	}
	return &Service{
		repo:    repo,
		orgs:    orgs,
		hasher:  hasher,
		tokens:  tokens,
		auditor: auditor,
		now:     time.Now,
	}
}

// OnDeactivate registers fn to run after every successful deactivation,
// including one that finds the user already inactive.
func (s *Service) OnDeactivate(fn func(userID string)) {
	s.onDeactivate = fn
}

func (s *Service) notifyDeactivate(userID string) {
	if s.onDeactivate != nil {
		s.onDeactivate(userID)
	}
}

// CreateUser creates an active user in an organization together with its
// data boundary. A failed create leaves neither a user nor a boundary.
func (s *Service) CreateUser(ctx context.Context, req CreateUserRequest) (*User, error) {
	if req.OrganizationID == "" {
		return nil, ErrOrganizationRequired
	}
	email := NormalizeEmail(req.Email)
	if !isValidEmail(email) {
		return nil, ErrInvalidEmail
	}
	if !isStrongPassword(req.Password) {
		return nil, ErrWeakPassword
	}
	roleID := req.RoleID
	if roleID == "" {
		roleID = rbac.DefaultRoleID
	}
	if !rbac.IsSystemRole(roleID) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidRole, roleID)
	}

	org, err := s.orgs.GetByID(ctx, req.OrganizationID)
	if err != nil {
		return nil, err
	}
	if !org.Active {
		return nil, tenant.ErrOrganizationInactive
	}

	passwordHash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := s.now().UTC()
	user := &User{
		ID:             id.NewUUIDv7(),
		OrganizationID: org.ID,
		Email:          email,
		PasswordHash:   passwordHash,
		RoleID:         roleID,
		Active:         true,
		Metadata:       req.Metadata,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	b, err := boundary.New(org.ID, rbac.ResourceTypeUser, user.ID, boundary.AccessPrivate)
	if err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, user, b, org.MaxUsers); err != nil {
		switch {
		case errors.Is(err, ErrSeatLimitExceeded):
			return nil, &SeatLimitError{OrganizationID: org.ID, Limit: org.MaxUsers}
		case errors.Is(err, ErrDuplicateEmail):
			return nil, ErrDuplicateEmail
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.auditor.Record(ctx, audit.Entry{
		OrganizationID: org.ID,
		UserID:         optional(req.CreatedBy),
		Action:         audit.ActionCreate,
		Resource:       audit.ResourceUser,
		ResourceID:     user.ID,
		Metadata:       map[string]any{audit.AttrEmail: user.Email, audit.AttrRoleID: user.RoleID},
	})

	slog.InfoContext(ctx, "user created",
		slog.String("organization_id", org.ID),
		slog.String("user_id", user.ID),
		slog.String("role_id", roleID),
	)
	return user, nil
}

// Authenticate verifies email and password and returns a signed session.
// It returns nil on any failure without saying why. When organizationID is
// empty the email must identify exactly one active user.
func (s *Service) Authenticate(ctx context.Context, email, password, organizationID string) *AuthResult {
	email = NormalizeEmail(email)
	candidate := s.findCandidate(ctx, email, organizationID)

	// A hash is always verified so unknown emails cost the same as wrong passwords.
	encoded := s.dummy()
	if candidate != nil {
		encoded = candidate.PasswordHash
	}
	ok, err := s.hasher.Verify(password, encoded)
	if candidate == nil || err != nil || !ok {
		slog.DebugContext(ctx, "authentication failed", slog.String("organization_id", organizationID))
		return nil
	}

	org, err := s.orgs.GetByID(ctx, candidate.OrganizationID)
	if err != nil || !org.Active {
		slog.DebugContext(ctx, "authentication rejected for organization", slog.String("organization_id", candidate.OrganizationID))
		return nil
	}

	now := s.now().UTC()
	if err := s.repo.UpdateLastLogin(ctx, candidate.ID, now); err != nil {
		slog.WarnContext(ctx, "failed to record last login", slog.String("user_id", candidate.ID), slog.String("error", err.Error()))
	}
	candidate.LastLoginAt = &now

	token, expiresAt, err := s.tokens.Issue(candidate)
	if err != nil {
		slog.ErrorContext(ctx, "failed to issue token", slog.String("user_id", candidate.ID), slog.String("error", err.Error()))
		return nil
	}

	s.auditor.Record(ctx, audit.Entry{
		OrganizationID: candidate.OrganizationID,
		UserID:         &candidate.ID,
		Action:         audit.ActionLogin,
		Resource:       audit.ResourceUser,
		ResourceID:     candidate.ID,
	})

	return &AuthResult{User: candidate, Token: token, ExpiresAt: expiresAt}
}

func (s *Service) findCandidate(ctx context.Context, email, organizationID string) *User {
	if email == "" {
		return nil
	}
	if organizationID != "" {
		u, err := s.repo.GetByEmail(ctx, organizationID, email)
		if err != nil {
			return nil
		}
		return u
	}
	users, err := s.repo.FindByEmail(ctx, email)
	if err != nil || len(users) != 1 {
		return nil
	}
	return users[0]
}

func (s *Service) dummy() string {
	s.dummyOnce.Do(func() {
		h, err := s.hasher.Hash(id.NewUUIDv7())
		if err != nil {
			// Still a well-formed hash so Verify runs the full derivation.
			h = "$argon2id$v=19$m=65536,t=1,p=4$c2FsdHNhbHRzYWx0c2FsdA$ZGV2bnVsbGRldm51bGxkZXZudWxsZGV2bnVsbA"
		}
		s.dummyHash = h
	})
	return s.dummyHash
}

// VerifyToken parses a session token issued by Authenticate.
func (s *Service) VerifyToken(token string) (*Claims, error) {
	return s.tokens.Parse(token)
}

// GetUser retrieves a user by ID
func (s *Service) GetUser(ctx context.Context, userID string) (*User, error) {
	if userID == "" {
		return nil, ErrUserNotFound
	}
	return s.repo.GetByID(ctx, userID)
}

// ListUsers retrieves all users of an organization
func (s *Service) ListUsers(ctx context.Context, organizationID string) ([]*User, error) {
	if organizationID == "" {
		return nil, ErrOrganizationRequired
	}
	return s.repo.ListByOrganization(ctx, organizationID)
}

// DeactivateUser marks a user inactive. Deactivated users fail every check.
func (s *Service) DeactivateUser(ctx context.Context, userID, actorID string) error {
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if !user.Active {
		// Deactivated out of band; still drop any cached principal.
		s.notifyDeactivate(userID)
		return nil
	}
	if err := s.repo.Deactivate(ctx, userID); err != nil {
		return fmt.Errorf("failed to deactivate user: %w", err)
	}
	s.notifyDeactivate(userID)

	s.auditor.Record(ctx, audit.Entry{
		OrganizationID: user.OrganizationID,
		UserID:         optional(actorID),
		Action:         audit.ActionDeactivate,
		Resource:       audit.ResourceUser,
		ResourceID:     user.ID,
	})
	return nil
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func isValidEmail(email string) bool {
	if len(email) < 3 || len(email) > 254 || strings.ContainsAny(email, " \t\r\n") {
		return false
	}
	at := strings.LastIndex(email, "@")
	return at > 0 && at < len(email)-1 && strings.Count(email, "@") == 1
}
