package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"go.uber.org/zap"

	"payflow/internal/apperr"
	"payflow/internal/model"
	"payflow/internal/permission"
	"payflow/internal/repository"
	"payflow/pkg/jwtutil"
	"payflow/pkg/passhash"
)

const (
	adminRoleName = "Administrator"
	inviteTTL     = 7 * 24 * time.Hour
)

// AuthService orchestrates registration, login, token refresh, invites and
// current-user resolution.
type AuthService struct {
	store  repository.Store
	tokens *jwtutil.Issuer
	log    *zap.Logger
}

func NewAuthService(store repository.Store, tokens *jwtutil.Issuer, log *zap.Logger) *AuthService {
	return &AuthService{store: store, tokens: tokens, log: log}
}

type RegisterInput struct {
	CompanyName string `json:"companyName"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	Name        string `json:"name"`
}

type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type InviteInput struct {
	Email  string  `json:"email"`
	RoleID *string `json:"roleId,omitempty"`
}

type AcceptInviteInput struct {
	Password string `json:"password"`
	Name     string `json:"name"`
}

// AuthResult is the common outcome of register/login/refresh/accept-invite.
// The refresh token travels to the client only via cookie.
type AuthResult struct {
	User         *model.User
	Tenant       *model.Tenant
	Permissions  []string
	AccessToken  string
	RefreshToken string
}

type InviteResult struct {
	InviteID  string    `json:"inviteId"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Register creates a tenant, its Administrator role holding the full
// permission catalog, the first user and the role link, all in one
// transaction.
func (s *AuthService) Register(ctx context.Context, input RegisterInput) (*AuthResult, error) {
	if _, err := s.store.UserByEmail(ctx, input.Email); err == nil {
		return nil, apperr.Conflict("email already registered")
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.Internal("lookup user", err)
	}

	hashed, err := passhash.Hash(input.Password)
	if err != nil {
		return nil, apperr.Internal("hash password", err)
	}

	allPerms, err := permission.MarshalKeys(permission.All())
	if err != nil {
		return nil, apperr.Internal("encode permissions", err)
	}

	var user *model.User
	var tenant *model.Tenant
	err = s.store.WithTx(ctx, func(tx repository.Store) error {
		tenant = &model.Tenant{Name: input.CompanyName}
		if err := tx.CreateTenant(ctx, tenant); err != nil {
			return apperr.Internal("create tenant", err)
		}

		adminRole := &model.Role{
			Name:        adminRoleName,
			Permissions: allPerms,
			TenantID:    tenant.ID,
		}
		if err := tx.CreateRole(ctx, adminRole); err != nil {
			return apperr.Internal("create role", err)
		}

		user = &model.User{
			Email:    input.Email,
			Password: hashed,
			Name:     input.Name,
			TenantID: tenant.ID,
			IsActive: true,
		}
		if err := tx.CreateUser(ctx, user); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return apperr.Conflict("email already registered")
			}
			return apperr.Internal("create user", err)
		}

		link := &model.UserRole{UserID: user.ID, RoleID: adminRole.ID}
		if err := tx.CreateUserRole(ctx, link); err != nil {
			return apperr.Internal("link role", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	access, refresh, err := s.issueTokens(user.ID, tenant.ID)
	if err != nil {
		return nil, err
	}

	s.log.Info("tenant registered",
		zap.String("tenant_id", tenant.ID),
		zap.String("user_id", user.ID))

	return &AuthResult{
		User:         sanitize(user),
		Tenant:       tenant,
		Permissions:  permission.NewSet(permission.All()...).Strings(),
		AccessToken:  access,
		RefreshToken: refresh,
	}, nil
}

// Login verifies credentials and issues a fresh token pair. Unknown email,
// wrong password and inactive account all fail identically.
func (s *AuthService) Login(ctx context.Context, input LoginInput) (*AuthResult, error) {
	user, err := s.store.UserByEmail(ctx, input.Email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.Unauthorized("invalid email or password")
		}
		return nil, apperr.Internal("lookup user", err)
	}
	if !user.IsActive {
		return nil, apperr.Unauthorized("invalid email or password")
	}

	ok, err := passhash.Verify(user.Password, input.Password)
	if err != nil {
		s.log.Error("stored password hash is malformed", zap.String("user_id", user.ID), zap.Error(err))
		return nil, apperr.Corrupt("stored credential is malformed", err)
	}
	if !ok {
		return nil, apperr.Unauthorized("invalid email or password")
	}

	return s.authResultFor(ctx, user)
}

// Refresh validates a refresh token and rotates the pair. The subject must
// still exist and be active.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*AuthResult, error) {
	if refreshToken == "" {
		return nil, apperr.Unauthorized("refresh token missing")
	}

	claims, err := s.tokens.VerifyRefreshToken(refreshToken)
	if err != nil {
		return nil, apperr.Unauthorized("invalid refresh token")
	}

	user, err := s.store.UserByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.Unauthorized("invalid refresh token")
		}
		return nil, apperr.Internal("lookup user", err)
	}
	if !user.IsActive {
		return nil, apperr.Unauthorized("invalid refresh token")
	}

	return s.authResultFor(ctx, user)
}

// CreateInvite issues a single-use onboarding token for an email that has no
// account anywhere in the system.
func (s *AuthService) CreateInvite(ctx context.Context, caller Caller, input InviteInput) (*InviteResult, error) {
	if _, err := s.store.UserByEmail(ctx, input.Email); err == nil {
		return nil, apperr.Conflict("user with this email already exists")
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.Internal("lookup user", err)
	}

	if input.RoleID != nil {
		if _, err := s.store.RoleByID(ctx, *input.RoleID, caller.TenantID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, apperr.NotFound("role not found")
			}
			return nil, apperr.Internal("lookup role", err)
		}
	}

	token, err := generateInviteToken()
	if err != nil {
		return nil, apperr.Internal("generate invite token", err)
	}

	invite := &model.Invite{
		Email:     input.Email,
		Token:     token,
		TenantID:  caller.TenantID,
		RoleID:    input.RoleID,
		InvitedBy: caller.UserID,
		ExpiresAt: time.Now().Add(inviteTTL),
	}
	if err := s.store.CreateInvite(ctx, invite); err != nil {
		return nil, apperr.Internal("create invite", err)
	}

	s.log.Info("invite created",
		zap.String("invite_id", invite.ID),
		zap.String("tenant_id", caller.TenantID),
		zap.String("invited_by", caller.UserID))

	return &InviteResult{InviteID: invite.ID, Token: invite.Token, ExpiresAt: invite.ExpiresAt}, nil
}

// AcceptInvite redeems an invite token exactly once: the consuming write is
// conditioned on the invite being unused, so the loser of a concurrent
// double-redemption gets BadRequest.
func (s *AuthService) AcceptInvite(ctx context.Context, token string, input AcceptInviteInput) (*AuthResult, error) {
	invite, err := s.store.InviteByToken(ctx, token)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.BadRequest("invite not found")
		}
		return nil, apperr.Internal("lookup invite", err)
	}
	if invite.IsUsed() {
		return nil, apperr.BadRequest("invite already used")
	}
	if invite.IsExpired(time.Now()) {
		return nil, apperr.BadRequest("invite expired")
	}

	hashed, err := passhash.Hash(input.Password)
	if err != nil {
		return nil, apperr.Internal("hash password", err)
	}

	var user *model.User
	err = s.store.WithTx(ctx, func(tx repository.Store) error {
		if err := tx.ConsumeInvite(ctx, invite.ID, time.Now()); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return apperr.BadRequest("invite already used")
			}
			return apperr.Internal("consume invite", err)
		}

		user = &model.User{
			Email:    invite.Email,
			Password: hashed,
			Name:     input.Name,
			TenantID: invite.TenantID,
			IsActive: true,
		}
		if err := tx.CreateUser(ctx, user); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return apperr.Conflict("user with this email already exists")
			}
			return apperr.Internal("create user", err)
		}

		if invite.RoleID != nil {
			link := &model.UserRole{UserID: user.ID, RoleID: *invite.RoleID}
			if err := tx.CreateUserRole(ctx, link); err != nil {
				return apperr.Internal("link role", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	access, refresh, err := s.issueTokens(user.ID, user.TenantID)
	if err != nil {
		return nil, err
	}

	s.log.Info("invite accepted",
		zap.String("invite_id", invite.ID),
		zap.String("user_id", user.ID))

	return &AuthResult{
		User:         sanitize(user),
		AccessToken:  access,
		RefreshToken: refresh,
	}, nil
}

// GetMe resolves the caller's user, tenant and effective permissions.
func (s *AuthService) GetMe(ctx context.Context, userID string) (*AuthResult, error) {
	user, err := s.store.UserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.Unauthorized("user not found")
		}
		return nil, apperr.Internal("lookup user", err)
	}

	tenant, err := s.store.TenantByID(ctx, user.TenantID)
	if err != nil {
		return nil, apperr.Internal("lookup tenant", err)
	}

	perms, err := s.ResolvePermissions(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	return &AuthResult{User: sanitize(user), Tenant: tenant, Permissions: perms.Strings()}, nil
}

// ResolvePermissions computes the union of the user's role permission sets.
// It runs for every authenticated request so role changes apply immediately.
func (s *AuthService) ResolvePermissions(ctx context.Context, userID string) (permission.Set, error) {
	roles, err := s.store.RolesForUser(ctx, userID)
	if err != nil {
		return nil, apperr.Internal("load roles", err)
	}

	sets := make([]permission.Set, 0, len(roles))
	for _, role := range roles {
		sets = append(sets, role.PermissionSet())
	}
	return permission.Union(sets...), nil
}

func (s *AuthService) authResultFor(ctx context.Context, user *model.User) (*AuthResult, error) {
	tenant, err := s.store.TenantByID(ctx, user.TenantID)
	if err != nil {
		return nil, apperr.Internal("lookup tenant", err)
	}

	perms, err := s.ResolvePermissions(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	access, refresh, err := s.issueTokens(user.ID, user.TenantID)
	if err != nil {
		return nil, err
	}

	return &AuthResult{
		User:         sanitize(user),
		Tenant:       tenant,
		Permissions:  perms.Strings(),
		AccessToken:  access,
		RefreshToken: refresh,
	}, nil
}

func (s *AuthService) issueTokens(userID, tenantID string) (access, refresh string, err error) {
	access, err = s.tokens.GenerateAccessToken(userID, tenantID)
	if err != nil {
		return "", "", apperr.Internal("sign access token", err)
	}
	refresh, err = s.tokens.GenerateRefreshToken(userID, tenantID)
	if err != nil {
		return "", "", apperr.Internal("sign refresh token", err)
	}
	return access, refresh, nil
}

func sanitize(user *model.User) *model.User {
	clean := *user
	clean.Password = ""
	return &clean
}

// generateInviteToken returns a 256-bit random token in hex.
func generateInviteToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
