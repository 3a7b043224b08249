// Package authsvc owns the authentication boundary: account creation, sign
// in/out, token rotation and the auth-state feed the session provider
// consumes. Backend failure codes are mapped into the apperr taxonomy here;
// nothing downstream sees a raw gorm or jwt error.
package authsvc

import (
	"context"
	"errors"
	"net/mail"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/shelftrack/shelftrack/internal/apperr"
	"github.com/shelftrack/shelftrack/internal/hash"
	"github.com/shelftrack/shelftrack/internal/logging"
	"github.com/shelftrack/shelftrack/internal/models"
)

const (
	accessTTL  = 15 * time.Minute
	refreshTTL = 7 * 24 * time.Hour

	maxFailedAttempts = 5
	failureWindow     = 15 * time.Minute

	minPasswordLen = 6
)

var (
	ErrInvalidEmail    = apperr.Auth("auth/invalid-email", "invalid email address")
	ErrWrongPassword   = apperr.Auth("auth/wrong-password", "incorrect password")
	ErrUserNotFound    = apperr.Auth("auth/user-not-found", "no account found with this email")
	ErrUserDisabled    = apperr.Auth("auth/user-disabled", "this account has been disabled")
	ErrEmailInUse      = apperr.Auth("auth/email-already-in-use", "an account already exists with this email")
	ErrWeakPassword    = apperr.Auth("auth/weak-password", "password must be at least 6 characters")
	ErrTooManyRequests = apperr.Auth("auth/too-many-requests", "too many attempts, try again later")
	ErrInvalidToken    = apperr.Auth("auth/invalid-token", "invalid or expired token")
)

type Tokens struct {
	Identity     string
	AccessToken  string
	RefreshToken string
	AccessExp    time.Time
	RefreshExp   time.Time
}

type failures struct {
	count int
	first time.Time
}

type Service struct {
	DB            *gorm.DB
	JWTSecret     []byte
	RefreshSecret []byte

	mu        sync.Mutex
	listeners map[int]func(identity string, signedIn bool)
	nextID    int
	current   string
	attempts  map[string]*failures

	now func() time.Time
}

func New(db *gorm.DB, jwtSecret, refreshSecret []byte) *Service {
	return &Service{
		DB:            db,
		JWTSecret:     jwtSecret,
		RefreshSecret: refreshSecret,
		listeners:     make(map[int]func(string, bool)),
		attempts:      make(map[string]*failures),
		now:           time.Now,
	}
}

// OnAuthStateChange registers cb and invokes it immediately with the current
// state, matching the behavior subscribers expect on attach. The returned
// function removes the listener.
func (s *Service) OnAuthStateChange(cb func(identity string, signedIn bool)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = cb
	current := s.current
	s.mu.Unlock()

	cb(current, current != "")

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func (s *Service) setCurrent(identity string) {
	s.mu.Lock()
	s.current = identity
	cbs := make([]func(string, bool), 0, len(s.listeners))
	for _, cb := range s.listeners {
		cbs = append(cbs, cb)
	}
	s.mu.Unlock()

	for _, cb := range cbs {
		cb(identity, identity != "")
	}
}

func (s *Service) SignUp(ctx context.Context, email, password string) (string, error) {
	l := logging.FromContext(ctx).With("svc", "auth.sign_up")

	if _, err := mail.ParseAddress(email); err != nil {
		return "", ErrInvalidEmail
	}
	if len(password) < minPasswordLen {
		return "", ErrWeakPassword
	}

	pwHash, err := hash.HashPassword(password)
	if err != nil {
		l.Error("sign_up_error", "reason", "cannot hash password", "error", err)
		return "", apperr.Network("auth/internal", "cannot hash password", err)
	}

	user := models.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: pwHash,
	}

	var existing models.User
	err = s.DB.WithContext(ctx).Where("email = ?", email).First(&existing).Error
	if err == nil {
		return "", ErrEmailInUse
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		l.Error("sign_up_error", "reason", "lookup failed", "error", err)
		return "", apperr.Network("auth/network-error", "cannot reach user store", err)
	}

	if err := s.DB.WithContext(ctx).Create(&user).Error; err != nil {
		l.Error("sign_up_error", "reason", "cannot create user", "error", err)
		return "", apperr.Network("auth/network-error", "cannot create user", err)
	}

	l.Info("sign_up_success", "user_id", user.ID)
	s.setCurrent(user.ID)
	return user.ID, nil
}

func (s *Service) SignIn(ctx context.Context, email, password string) (*Tokens, error) {
	l := logging.FromContext(ctx).With("svc", "auth.sign_in")

	if s.throttled(email) {
		l.Warn("sign_in_throttled", "email", email)
		return nil, ErrTooManyRequests
	}

	var user models.User
	if err := s.DB.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.recordFailure(email)
			return nil, ErrUserNotFound
		}
		l.Error("sign_in_error", "reason", "lookup failed", "error", err)
		return nil, apperr.Network("auth/network-error", "cannot reach user store", err)
	}

	if user.Disabled {
		return nil, ErrUserDisabled
	}

	if !hash.CheckPassword(user.PasswordHash, password) {
		s.recordFailure(email)
		return nil, ErrWrongPassword
	}
	s.clearFailures(email)

	tok, err := s.issueTokens(ctx, user.ID)
	if err != nil {
		l.Error("sign_in_error", "reason", "cannot issue tokens", "error", err)
		return nil, err
	}

	l.Info("sign_in_success", "user_id", user.ID)
	s.setCurrent(user.ID)
	return tok, nil
}

// SignOut revokes the refresh token and flips the auth state to signed out.
// Revoking an unknown token is not an error: the state still clears.
func (s *Service) SignOut(ctx context.Context, refreshToken string) error {
	l := logging.FromContext(ctx).With("svc", "auth.sign_out")

	if refreshToken != "" {
		res := s.DB.WithContext(ctx).Model(&models.RefreshToken{}).
			Where("token = ?", sha256Hex(refreshToken)).
			Update("revoked", true)
		if res.Error != nil {
			l.Error("sign_out_error", "error", res.Error)
			return apperr.Network("auth/network-error", "cannot revoke refresh token", res.Error)
		}
	}

	s.setCurrent("")
	return nil
}

// Refresh rotates a valid, unrevoked refresh token into a fresh token pair.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*Tokens, error) {
	claims, err := parseRefresh(refreshToken, s.RefreshSecret)
	if err != nil {
		return nil, ErrInvalidToken
	}

	var stored models.RefreshToken
	if err := s.DB.WithContext(ctx).Where("token = ?", sha256Hex(refreshToken)).First(&stored).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, apperr.Network("auth/network-error", "cannot reach token store", err)
	}
	if stored.Revoked || s.now().Unix() > stored.ExpiresAt {
		return nil, ErrInvalidToken
	}

	if err := s.DB.WithContext(ctx).Model(&models.RefreshToken{}).
		Where("id = ?", stored.ID).Update("revoked", true).Error; err != nil {
		return nil, apperr.Network("auth/network-error", "cannot rotate refresh token", err)
	}

	return s.issueTokens(ctx, claims.Subject)
}

func (s *Service) issueTokens(ctx context.Context, identity string) (*Tokens, error) {
	accessExp := s.now().Add(accessTTL)
	access, err := signAccessToken(identity, accessExp, s.JWTSecret)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindAuth, "auth/internal", "cannot sign access token", err)
	}

	refreshExp := s.now().Add(refreshTTL)
	refresh, err := signRefreshToken(identity, refreshExp, s.RefreshSecret)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindAuth, "auth/internal", "cannot sign refresh token", err)
	}

	stored := models.RefreshToken{
		Token:     sha256Hex(refresh),
		UserID:    identity,
		ExpiresAt: refreshExp.Unix(),
	}
	if err := s.DB.WithContext(ctx).Create(&stored).Error; err != nil {
		return nil, apperr.Network("auth/network-error", "cannot persist refresh token", err)
	}

	return &Tokens{
		Identity:     identity,
		AccessToken:  access,
		RefreshToken: refresh,
		AccessExp:    accessExp,
		RefreshExp:   refreshExp,
	}, nil
}

// ParseAccess validates an access token and returns the identity it carries.
func (s *Service) ParseAccess(token string) (string, error) {
	claims, err := parseAccess(token, s.JWTSecret)
	if err != nil {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

func (s *Service) throttled(email string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.attempts[email]
	if !ok {
		return false
	}
	if s.now().Sub(f.first) > failureWindow {
		delete(s.attempts, email)
		return false
	}
	return f.count >= maxFailedAttempts
}

func (s *Service) recordFailure(email string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.attempts[email]
	if !ok || s.now().Sub(f.first) > failureWindow {
		s.attempts[email] = &failures{count: 1, first: s.now()}
		return
	}
	f.count++
}

func (s *Service) clearFailures(email string) {
	s.mu.Lock()
	delete(s.attempts, email)
	s.mu.Unlock()
}
