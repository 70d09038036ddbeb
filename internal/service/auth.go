package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Skotchmaster/vending_machine/internal/domain"
	"github.com/Skotchmaster/vending_machine/internal/metrics"
	"github.com/Skotchmaster/vending_machine/internal/models"
	"github.com/Skotchmaster/vending_machine/internal/mykafka"
	"github.com/Skotchmaster/vending_machine/internal/repo"
	"github.com/Skotchmaster/vending_machine/internal/session"
	pkghash "github.com/Skotchmaster/vending_machine/pkg/hash"
	jwthelp "github.com/Skotchmaster/vending_machine/pkg/jwt"
	"github.com/Skotchmaster/vending_machine/pkg/logging"
	"github.com/Skotchmaster/vending_machine/pkg/tokens"
)

var ErrInvalidRefreshToken = fmt.Errorf("%w: invalid refresh token", domain.ErrInvalidCredentials)

var usernamePattern = regexp.MustCompile(`^[\w.@+-]{1,150}$`)

const minPasswordLen = 8

type AuthService struct {
	Users    repo.Users
	Sessions *session.Registry
	Events   mykafka.Publisher
	Metrics  *metrics.Metrics

	JWTSecret     []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration

	Now func() time.Time
}

type RegisterInput struct {
	Username        string
	Password        string
	PasswordConfirm string
	Role            string
}

type LoginResult struct {
	AccessToken  string
	RefreshToken string
	AccessExp    time.Time
	RefreshExp   time.Time
	SessionID    string
	User         *models.User
}

func (s *AuthService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *AuthService) CreateAccessToken(user *models.User, sessionID string, accessExp time.Time) (string, error) {
	return tokens.SignAccess(tokens.AccessClaims{
		Role:      string(user.Role),
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(user.ID), 10),
			IssuedAt:  jwt.NewNumericDate(s.now()),
			ExpiresAt: jwt.NewNumericDate(accessExp),
		},
	}, s.JWTSecret)
}

func (s *AuthService) CreateRefreshToken(user *models.User, sessionID string, refreshExp time.Time) (string, error) {
	return tokens.SignRefresh(tokens.RefreshClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(user.ID), 10),
			ID:        sessionID,
			IssuedAt:  jwt.NewNumericDate(s.now()),
			ExpiresAt: jwt.NewNumericDate(refreshExp),
		},
	}, s.RefreshSecret)
}

func validatePassword(password, confirm string) error {
	if password != confirm {
		return fmt.Errorf("%w: passwords do not match", domain.ErrValidation)
	}
	if len(password) < minPasswordLen {
		return fmt.Errorf("%w: password must be at least %d characters", domain.ErrValidation, minPasswordLen)
	}
	if strings.IndexFunc(password, func(r rune) bool { return !unicode.IsDigit(r) }) < 0 {
		return fmt.Errorf("%w: password cannot be entirely numeric", domain.ErrValidation)
	}
	return nil
}

func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	l := logging.FromContext(ctx).With("svc", "auth.register")

	username := strings.TrimSpace(in.Username)
	if !usernamePattern.MatchString(username) {
		return nil, fmt.Errorf("%w: username must be 1-150 letters, digits or @.+-_", domain.ErrValidation)
	}
	role, ok := domain.ParseRole(in.Role)
	if !ok {
		return nil, fmt.Errorf("%w: role must be buyer or seller", domain.ErrValidation)
	}
	if err := validatePassword(in.Password, in.PasswordConfirm); err != nil {
		return nil, err
	}

	pwHash, err := pkghash.HashPassword(in.Password)
	if err != nil {
		l.Error("register_error", "status", 500, "reason", "cannot hash the password", "error", err)
		return nil, err
	}

	user := &models.User{Username: username, PasswordHash: pwHash, Role: role}
	if err := s.Users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			l.Warn("register_error", "status", 409, "reason", "user already exist")
			return nil, fmt.Errorf("%w: username already taken", domain.ErrConflict)
		}
		l.Error("register_error", "status", 500, "reason", "cannot create user", "error", err)
		return nil, err
	}

	publish(ctx, s.Events, mykafka.TopicUsers, strconv.FormatUint(uint64(user.ID), 10), mykafka.UserEvent{
		Type:     "user_registered",
		UserID:   user.ID,
		Username: user.Username,
		Role:     string(user.Role),
		At:       s.now(),
	})
	return user, nil
}

// Login checks the password, opens a session bound to a fresh refresh
// credential and returns both credentials.
func (s *AuthService) Login(ctx context.Context, username, password, ip, userAgent string) (*LoginResult, error) {
	l := logging.FromContext(ctx).With("svc", "auth.login", "username", username)

	if username == "" || password == "" {
		return nil, fmt.Errorf("%w: username and password are required", domain.ErrValidation)
	}

	user, err := s.Users.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			l.Warn("login_failed", "status", 401, "reason", "unknown username")
			return nil, domain.ErrInvalidCredentials
		}
		return nil, err
	}
	if !pkghash.CheckPassword(user.PasswordHash, password) {
		l.Warn("login_failed", "status", 401, "reason", "wrong password")
		return nil, domain.ErrInvalidCredentials
	}

	now := s.now()
	sessionID := jwthelp.NewJTI()
	accessExp := now.Add(s.AccessTTL)
	refreshExp := now.Add(s.RefreshTTL)

	accessToken, err := s.CreateAccessToken(user, sessionID, accessExp)
	if err != nil {
		l.Error("login_failed", "status", 500, "reason", "cannot sign access token", "error", err)
		return nil, err
	}
	refreshToken, err := s.CreateRefreshToken(user, sessionID, refreshExp)
	if err != nil {
		l.Error("login_failed", "status", 500, "reason", "cannot sign refresh token", "error", err)
		return nil, err
	}

	if _, err := s.Sessions.Create(ctx, session.NewSession{
		AccountID: user.ID,
		SessionID: sessionID,
		ExpiresAt: refreshExp,
		IPAddress: ip,
		UserAgent: userAgent,
	}); err != nil {
		if errors.Is(err, domain.ErrTooManySessions) {
			s.Metrics.SessionRejected("too_many_sessions")
			l.Warn("login_failed", "status", 400, "reason", "too many active sessions")
		}
		return nil, err
	}
	s.Metrics.SessionCreated()

	publish(ctx, s.Events, mykafka.TopicUsers, strconv.FormatUint(uint64(user.ID), 10), mykafka.UserEvent{
		Type:      "user_logged_in",
		UserID:    user.ID,
		SessionID: sessionID,
		At:        now,
	})

	return &LoginResult{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		AccessExp:    accessExp,
		RefreshExp:   refreshExp,
		SessionID:    sessionID,
		User:         user,
	}, nil
}

// Refresh issues a new access credential for the session named by the
// refresh credential, provided that session is still active.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*LoginResult, error) {
	l := logging.FromContext(ctx).With("svc", "auth.refresh")

	claims, err := tokens.RefreshClaimsFromToken(refreshToken, s.RefreshSecret)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRefreshToken, err)
	}
	userID, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil || claims.ID == "" {
		return nil, ErrInvalidRefreshToken
	}

	if err := s.Sessions.Require(ctx, uint(userID), claims.ID); err != nil {
		if errors.Is(err, domain.ErrSessionNotActive) {
			s.Metrics.SessionRejected("refresh_inactive")
			l.Warn("refresh_failed", "status", 401, "reason", "session not active", "user_id", userID)
		}
		return nil, err
	}

	user, err := s.Users.GetUser(ctx, uint(userID))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, ErrInvalidRefreshToken
		}
		return nil, err
	}

	accessExp := s.now().Add(s.AccessTTL)
	accessToken, err := s.CreateAccessToken(user, claims.ID, accessExp)
	if err != nil {
		l.Error("refresh_failed", "status", 500, "reason", "cannot sign access token", "error", err)
		return nil, err
	}

	return &LoginResult{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		AccessExp:    accessExp,
		RefreshExp:   claims.ExpiresAt.Time,
		SessionID:    claims.ID,
		User:         user,
	}, nil
}

func (s *AuthService) Logout(ctx context.Context, userID uint, sessionID string) error {
	if err := s.Sessions.RevokeOne(ctx, userID, sessionID); err != nil {
		return err
	}
	publish(ctx, s.Events, mykafka.TopicUsers, strconv.FormatUint(uint64(userID), 10), mykafka.UserEvent{
		Type:      "user_logged_out",
		UserID:    userID,
		SessionID: sessionID,
		At:        s.now(),
	})
	return nil
}

func (s *AuthService) LogoutAll(ctx context.Context, userID uint) (int, error) {
	n, err := s.Sessions.RevokeAll(ctx, userID)
	if err != nil {
		return 0, err
	}
	publish(ctx, s.Events, mykafka.TopicUsers, strconv.FormatUint(uint64(userID), 10), mykafka.UserEvent{
		Type:   "user_logged_out_all",
		UserID: userID,
		At:     s.now(),
	})
	return n, nil
}

func (s *AuthService) Me(ctx context.Context, userID uint) (*models.User, error) {
	return s.Users.GetUser(ctx, userID)
}

func (s *AuthService) ActiveSessions(ctx context.Context, userID uint) ([]models.ActiveSession, error) {
	return s.Sessions.List(ctx, userID)
}
