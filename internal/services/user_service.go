package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/baharkarakas/credits-backend/internal/auth"
	"github.com/baharkarakas/credits-backend/internal/models"
	"github.com/baharkarakas/credits-backend/internal/policy"
	repo "github.com/baharkarakas/credits-backend/internal/repository"
)

const minPasswordLen = 8

type UserParams struct {
	Users     repo.Users
	AuditLogs repo.AuditLogs
	Policy    *policy.Policy
	Tokens    *auth.TokenManager
	Log       *zap.Logger
}

type UserService struct {
	users  repo.Users
	audits repo.AuditLogs
	policy *policy.Policy
	tokens *auth.TokenManager
	log    *zap.Logger
}

func NewUserService(p UserParams) *UserService {
	s := &UserService{users: p.Users, audits: p.AuditLogs, policy: p.Policy, tokens: p.Tokens, log: p.Log}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	s.log = s.log.Named("user.service")
	if s.policy == nil {
		s.policy = policy.MustNew()
	}
	return s
}

type RegisterRequest struct {
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
	Password    string `json:"password"`
}

// Register creates a USER together with its zero-balance account.
func (s *UserService) Register(ctx context.Context, req RegisterRequest) (models.User, error) {
	return s.create(ctx, req, models.RoleUser)
}

func (s *UserService) create(ctx context.Context, req RegisterRequest, role models.Role) (models.User, error) {
	u := models.User{
		Username:    strings.TrimSpace(req.Username),
		DisplayName: strings.TrimSpace(req.DisplayName),
		Email:       strings.ToLower(strings.TrimSpace(req.Email)),
		Role:        role,
	}
	if err := u.Validate(); err != nil {
		return models.User{}, newErr(KindInvalidRequest, err.Error())
	}
	if len(req.Password) < minPasswordLen {
		return models.User{}, newErr(KindInvalidRequest, fmt.Sprintf("password must be at least %d characters", minPasswordLen))
	}
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return models.User{}, fmt.Errorf("hash password: %w", err)
	}
	u.PasswordHash = hash

	created, err := s.users.Create(ctx, u)
	if errors.Is(err, repo.ErrDuplicate) {
		return models.User{}, newErr(KindConflict, "username or email already registered")
	}
	if err != nil {
		return models.User{}, wrapErr(KindUnavailable, "user store unavailable", err)
	}
	s.log.Info("user registered", zap.String("user_id", created.ID), zap.String("role", string(created.Role)))
	return created, nil
}

// EnsureAdmin creates the bootstrap ADMIN unless a user with that email
// already exists.
func (s *UserService) EnsureAdmin(ctx context.Context, email, password string) (models.User, error) {
	if u, err := s.users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email))); err == nil {
		return u, nil
	} else if !errors.Is(err, repo.ErrNotFound) {
		return models.User{}, wrapErr(KindUnavailable, "user store unavailable", err)
	}
	name, _, _ := strings.Cut(email, "@")
	if len(name) < 3 {
		name = "admin"
	}
	return s.create(ctx, RegisterRequest{Username: name, DisplayName: "Administrator", Email: email, Password: password}, models.RoleAdmin)
}

func (s *UserService) Login(ctx context.Context, email, password string) (auth.Pair, models.User, error) {
	u, err := s.users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, repo.ErrNotFound) {
		return auth.Pair{}, models.User{}, newErr(KindInvalidCredentials, "invalid credentials")
	}
	if err != nil {
		return auth.Pair{}, models.User{}, wrapErr(KindUnavailable, "user store unavailable", err)
	}
	if err := auth.VerifyPassword(password, u.PasswordHash); err != nil {
		return auth.Pair{}, models.User{}, newErr(KindInvalidCredentials, "invalid credentials")
	}
	pair, err := s.tokens.GeneratePair(u.ID, string(u.Role))
	if err != nil {
		return auth.Pair{}, models.User{}, fmt.Errorf("issue tokens: %w", err)
	}
	return pair, u, nil
}

// Refresh exchanges a refresh token for a new pair carrying the user's
// current role.
func (s *UserService) Refresh(ctx context.Context, refreshToken string) (auth.Pair, error) {
	claims, err := s.tokens.ParseRefresh(refreshToken)
	if err != nil {
		return auth.Pair{}, newErr(KindInvalidCredentials, "invalid refresh token")
	}
	u, err := s.users.GetByID(ctx, claims.UserID)
	if errors.Is(err, repo.ErrNotFound) {
		return auth.Pair{}, newErr(KindInvalidCredentials, "invalid refresh token")
	}
	if err != nil {
		return auth.Pair{}, wrapErr(KindUnavailable, "user store unavailable", err)
	}
	return s.tokens.GeneratePair(u.ID, string(u.Role))
}

func (s *UserService) Get(ctx context.Context, id string) (models.User, error) {
	u, err := s.users.GetByID(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return models.User{}, newErr(KindUserNotFound, "user not found")
	}
	if err != nil {
		return models.User{}, wrapErr(KindUnavailable, "user store unavailable", err)
	}
	return u, nil
}

func (s *UserService) List(ctx context.Context, limit, offset int) ([]models.User, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	users, err := s.users.List(ctx, limit, offset)
	if err != nil {
		return nil, wrapErr(KindUnavailable, "user store unavailable", err)
	}
	return users, nil
}

// ChangeRole lets an ADMIN move a user between USER, SALES and ADMIN.
// Promoting to SALES opens an empty sales pool.
func (s *UserService) ChangeRole(ctx context.Context, actorID, targetID, role string) (models.User, error) {
	actor, err := s.users.GetByID(ctx, actorID)
	if errors.Is(err, repo.ErrNotFound) {
		return models.User{}, newErr(KindActorNotFound, "actor not found")
	}
	if err != nil {
		return models.User{}, wrapErr(KindUnavailable, "user store unavailable", err)
	}
	if !s.policy.CanChangeRole(actor.Role) {
		return models.User{}, newErr(KindUnauthorized, "only ADMIN can change roles")
	}
	newRole, ok := models.ParseRole(role)
	if !ok {
		return models.User{}, newErr(KindInvalidRequest, fmt.Sprintf("invalid role %q: must be USER, SALES or ADMIN", role))
	}

	target, err := s.users.GetByID(ctx, targetID)
	if errors.Is(err, repo.ErrNotFound) {
		return models.User{}, newErr(KindTargetNotFound, "target user not found")
	}
	if err != nil {
		return models.User{}, wrapErr(KindUnavailable, "user store unavailable", err)
	}
	if target.Role == newRole {
		return target, nil
	}

	updated, err := s.users.UpdateRole(ctx, targetID, newRole)
	if errors.Is(err, repo.ErrNotFound) {
		return models.User{}, newErr(KindTargetNotFound, "target user not found")
	}
	if err != nil {
		return models.User{}, wrapErr(KindUnavailable, "user store unavailable", err)
	}

	if err := s.audits.Create(ctx, models.AuditLog{
		EntityType: "user",
		EntityID:   &updated.ID,
		Action:     models.AuditRoleChanged,
		ActorID:    actor.ID,
		Details:    map[string]any{"old_role": string(target.Role), "new_role": string(newRole)},
	}); err != nil {
		s.log.Warn("audit role change", zap.String("user_id", updated.ID), zap.Error(err))
	}
	s.log.Info("role changed",
		zap.String("user_id", updated.ID),
		zap.String("actor_id", actor.ID),
		zap.String("old_role", string(target.Role)),
		zap.String("new_role", string(newRole)),
	)
	return updated, nil
}

// Deactivate soft-deletes a user. Their account and entries are kept.
func (s *UserService) Deactivate(ctx context.Context, actorID, targetID string) error {
	actor, err := s.users.GetByID(ctx, actorID)
	if errors.Is(err, repo.ErrNotFound) {
		return newErr(KindActorNotFound, "actor not found")
	}
	if err != nil {
		return wrapErr(KindUnavailable, "user store unavailable", err)
	}
	if !s.policy.CanDeactivateUser(actor.Role) {
		return newErr(KindUnauthorized, "only ADMIN can deactivate users")
	}
	if actorID == targetID {
		return newErr(KindInvalidRequest, "cannot deactivate yourself")
	}
	if err := s.users.Delete(ctx, targetID); errors.Is(err, repo.ErrNotFound) {
		return newErr(KindTargetNotFound, "target user not found")
	} else if err != nil {
		return wrapErr(KindUnavailable, "user store unavailable", err)
	}
	s.log.Info("user deactivated", zap.String("user_id", targetID), zap.String("actor_id", actorID))
	return nil
}
