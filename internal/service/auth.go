package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Skotchmaster/userauth/internal/events"
	pkg_hash "github.com/Skotchmaster/userauth/internal/hash"
	"github.com/Skotchmaster/userauth/internal/logging"
	"github.com/Skotchmaster/userauth/internal/models"
	"github.com/Skotchmaster/userauth/internal/repo"
	"github.com/Skotchmaster/userauth/internal/tokens"
)

const (
	maxUsernameLen = 80
	// bcrypt only accepts inputs up to 72 bytes
	maxPasswordBytes = 72
)

type UserStore interface {
	CreateUser(ctx context.Context, u *models.User) error
	UserByUsername(ctx context.Context, username string) (*models.User, error)
	UserByID(ctx context.Context, id uint) (*models.User, error)
	DeleteUser(ctx context.Context, id uint) error
}

type AuthService struct {
	Users  UserStore
	Tokens *TokenService
	Events events.Publisher
}

type LoginResult struct {
	AccessToken  string
	RefreshToken string
	AccessExp    time.Time
	RefreshExp   time.Time
}

type RefreshResult struct {
	AccessToken string
	AccessExp   time.Time
}

func validateCredentials(username, password string) error {
	if strings.TrimSpace(username) == "" || password == "" {
		return fmt.Errorf("%w: username and password are required", ErrValidation)
	}
	if utf8.RuneCountInString(username) > maxUsernameLen {
		return fmt.Errorf("%w: username is longer than %d characters", ErrValidation, maxUsernameLen)
	}
	if len(password) > maxPasswordBytes {
		return fmt.Errorf("%w: password is longer than %d bytes", ErrValidation, maxPasswordBytes)
	}
	return nil
}

func (s *AuthService) publish(ctx context.Context, ev events.Event) {
	if s.Events == nil {
		return
	}
	ev.At = time.Now().UTC()
	if err := s.Events.Publish(ctx, ev); err != nil {
		logging.FromContext(ctx).Error("event_publish_failed", "type", ev.Type, "error", err)
	}
}

func (s *AuthService) Register(ctx context.Context, username, password string) (*models.User, error) {
	l := logging.FromContext(ctx).With("svc", "auth.register")

	if err := validateCredentials(username, password); err != nil {
		return nil, err
	}

	pwHash, err := pkg_hash.HashPassword(password)
	if err != nil {
		l.Error("register_error", "status", 500, "reason", "cannot hash the password", "error", err)
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &models.User{Username: username, PasswordHash: pwHash}
	if err := s.Users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repo.ErrUserAlreadyExist) {
			l.Warn("register_error", "status", 409, "reason", "user already exist")
			return nil, ErrConflict
		}
		l.Error("register_error", "status", 500, "error", err)
		return nil, err
	}

	l.Info("user_registered", "user_id", user.ID)
	s.publish(ctx, events.Event{Type: events.TypeUserRegistered, UserID: user.ID, Username: user.Username})
	return user, nil
}

func (s *AuthService) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	l := logging.FromContext(ctx).With("svc", "auth.login", "username", username)

	if err := validateCredentials(username, password); err != nil {
		return nil, err
	}

	user, err := s.Users.UserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repo.ErrUserNotFound) {
			l.Warn("login_failed", "status", 401, "reason", "unknown user")
			return nil, ErrUnauthorized
		}
		l.Error("login_failed", "status", 500, "error", err)
		return nil, err
	}
	if !pkg_hash.CheckPassword(user.PasswordHash, password) {
		l.Warn("login_failed", "status", 401, "reason", "wrong password")
		return nil, ErrUnauthorized
	}

	accessToken, accessExp, err := s.Tokens.IssueAccessToken(user.ID, true)
	if err != nil {
		l.Error("login_failed", "status", 500, "error", err)
		return nil, err
	}
	refreshToken, refreshExp, err := s.Tokens.IssueRefreshToken(user.ID)
	if err != nil {
		l.Error("login_failed", "status", 500, "error", err)
		return nil, err
	}

	s.publish(ctx, events.Event{Type: events.TypeUserLoggedIn, UserID: user.ID, Username: user.Username})
	return &LoginResult{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		AccessExp:    accessExp,
		RefreshExp:   refreshExp,
	}, nil
}

// Refresh consumes a validated refresh token. The jti is revoked before the
// new access token is minted, so of two concurrent uses only one succeeds.
func (s *AuthService) Refresh(ctx context.Context, refresh *tokens.Claims) (*RefreshResult, error) {
	l := logging.FromContext(ctx).With("svc", "auth.refresh", "jti", refresh.ID)

	userID, err := refresh.UserID()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if err := s.Tokens.Revoke(ctx, refresh); err != nil {
		if errors.Is(err, repo.ErrAlreadyRevoked) {
			l.Warn("refresh_failed", "status", 401, "reason", "refresh token already used")
			return nil, fmt.Errorf("%w: token has been revoked", ErrInvalidToken)
		}
		l.Error("refresh_failed", "status", 500, "error", err)
		return nil, err
	}

	accessToken, accessExp, err := s.Tokens.IssueAccessToken(userID, false)
	if err != nil {
		l.Error("refresh_failed", "status", 500, "error", err)
		return nil, err
	}

	s.publish(ctx, events.Event{Type: events.TypeTokenRevoked, UserID: userID, JTI: refresh.ID})
	return &RefreshResult{AccessToken: accessToken, AccessExp: accessExp}, nil
}

// Logout revokes the access token and, when given, the caller's refresh
// token. A refresh token that is already consumed, expired or foreign has
// nothing left to revoke and is skipped. Losing a race against another
// logout of the same jti is success.
func (s *AuthService) Logout(ctx context.Context, access *tokens.Claims, rawRefresh string) error {
	l := logging.FromContext(ctx).With("svc", "auth.logout", "jti", access.ID)

	userID, err := access.UserID()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	toRevoke := []*tokens.Claims{access}
	if rawRefresh != "" {
		refresh, err := s.Tokens.Validate(ctx, rawRefresh, tokens.KindRefresh)
		switch {
		case errors.Is(err, ErrInvalidToken):
			l.Info("logout_refresh_skipped", "reason", "refresh token not active", "error", err)
		case err != nil:
			l.Error("logout_failed", "status", 500, "error", err)
			return err
		case refresh.Subject != access.Subject:
			l.Warn("logout_refresh_skipped", "reason", "refresh token belongs to another user")
		default:
			toRevoke = append(toRevoke, refresh)
		}
	}

	for _, c := range toRevoke {
		if err := s.Tokens.Revoke(ctx, c); err != nil {
			if errors.Is(err, repo.ErrAlreadyRevoked) {
				l.Info("logout_already_revoked", "revoked_jti", c.ID)
				continue
			}
			l.Error("logout_failed", "status", 500, "error", err)
			return err
		}
		s.publish(ctx, events.Event{Type: events.TypeTokenRevoked, UserID: userID, JTI: c.ID})
	}

	l.Info("successful_logout")
	return nil
}

func (s *AuthService) GetUser(ctx context.Context, id uint) (*models.User, error) {
	user, err := s.Users.UserByID(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrUserNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return user, nil
}

func (s *AuthService) DeleteUser(ctx context.Context, id uint) error {
	l := logging.FromContext(ctx).With("svc", "auth.delete_user", "user_id", id)

	if err := s.Users.DeleteUser(ctx, id); err != nil {
		if errors.Is(err, repo.ErrUserNotFound) {
			return ErrNotFound
		}
		l.Error("delete_user_failed", "status", 500, "error", err)
		return err
	}

	l.Info("user_deleted")
	s.publish(ctx, events.Event{Type: events.TypeUserDeleted, UserID: id})
	return nil
}
