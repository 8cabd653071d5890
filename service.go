package main

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// AuthService orchestrates registration, login, Google sign-in, refresh and
// logout over the credential store and token ledger. It speaks value structs
// only; the transport layer owns HTTP.
type AuthService struct {
	db         DB
	verifier   CredentialVerifier
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func NewAuthService(db DB, verifier CredentialVerifier, accessTTL, refreshTTL time.Duration) *AuthService {
	return &AuthService{db: db, verifier: verifier, accessTTL: accessTTL, refreshTTL: refreshTTL}
}

type RegisterInput struct {
	Name     string
	Email    string
	Password string
}

type LoginInput struct {
	Email    string
	Password string
}

type GoogleSignInInput struct {
	Credential string
	Name       string
	Email      string
	GoogleID   string
	Avatar     *string
}

var emailRx = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

const (
	maxNameLength     = 255
	minPasswordLength = 6

	// secret generation retries before giving up on a ledger collision
	maxSecretAttempts = 3
)

func validateEmail(ve *ValidationError, email string) {
	if email == "" {
		ve.add("email", "Email is required")
	} else if !emailRx.MatchString(email) {
		ve.add("email", "Please provide a valid email address")
	}
}

func validatePassword(ve *ValidationError, password string) {
	if password == "" {
		ve.add("password", "Password is required")
	} else if len(password) < minPasswordLength {
		ve.add("password", "Password must be at least 6 characters long")
	}
}

// Register creates a user with a salted password hash. A duplicate email is
// reported as a field validation error, same as malformed input.
func (s *AuthService) Register(in RegisterInput) (*User, error) {
	ve := newValidationError()
	if in.Name == "" {
		ve.add("name", "Name is required")
	} else if len(in.Name) > maxNameLength {
		ve.add("name", "Name must not exceed 255 characters")
	}
	validateEmail(ve, in.Email)
	validatePassword(ve, in.Password)
	if !ve.ok() {
		return nil, ve
	}

	hash, err := hashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}
	user, err := s.db.CreateUser(in.Name, normalizeEmail(in.Email), hash, "email", nil, nil)
	if errors.Is(err, ErrDuplicateEmail) {
		ve.add("email", "Email already exists")
		return nil, ve
	}
	if err != nil {
		return nil, fmt.Errorf("creating user: %w", err)
	}
	return user, nil
}

// Login checks the password and issues a fresh token pair. Failures are
// undifferentiated so callers cannot probe which emails exist.
func (s *AuthService) Login(in LoginInput) (*TokenPair, *User, error) {
	ve := newValidationError()
	validateEmail(ve, in.Email)
	validatePassword(ve, in.Password)
	if !ve.ok() {
		return nil, nil, ve
	}

	user, err := s.db.GetUserByEmail(normalizeEmail(in.Email))
	if err != nil {
		return nil, nil, fmt.Errorf("finding user: %w", err)
	}
	if user == nil || !comparePassword(user.Password, in.Password) {
		return nil, nil, ErrInvalidCredentials
	}

	pair, err := s.issuePair(user.ID)
	if err != nil {
		return nil, nil, err
	}
	return pair, user, nil
}

// GoogleSignIn verifies the Google ID token server-side, then finds, links or
// creates the matching user and issues a fresh token pair. The boolean result
// is true only when a new user was created, not when an existing
// email-registered account was linked.
func (s *AuthService) GoogleSignIn(ctx context.Context, in GoogleSignInInput) (*TokenPair, *User, bool, error) {
	ve := newValidationError()
	if in.Credential == "" {
		ve.add("credential", "Credential is required")
	}
	if in.Name == "" {
		ve.add("name", "Name is required")
	}
	validateEmail(ve, in.Email)
	if in.GoogleID == "" {
		ve.add("googleId", "Google ID is required")
	}
	if !ve.ok() {
		return nil, nil, false, ve
	}

	claims, err := s.verifier.Verify(ctx, in.Credential)
	if err != nil {
		return nil, nil, false, err
	}
	// The signed claims are authoritative; the body must agree with them.
	if claims.Subject != in.GoogleID {
		return nil, nil, false, fmt.Errorf("%w: subject mismatch", ErrInvalidGoogleCredential)
	}
	if claims.Email != "" && !strings.EqualFold(claims.Email, in.Email) {
		return nil, nil, false, fmt.Errorf("%w: email mismatch", ErrInvalidGoogleCredential)
	}

	avatar := in.Avatar
	if avatar == nil && claims.Picture != "" {
		pic := claims.Picture
		avatar = &pic
	}

	user, err := s.db.GetUserByGoogleID(in.GoogleID)
	if err != nil {
		return nil, nil, false, fmt.Errorf("finding user by google id: %w", err)
	}
	if user == nil {
		user, err = s.db.GetUserByEmail(normalizeEmail(in.Email))
		if err != nil {
			return nil, nil, false, fmt.Errorf("finding user by email: %w", err)
		}
	}

	isNew := false
	switch {
	case user == nil:
		// New account. The password is a random hash nobody knows, so the
		// account cannot be logged into with a password.
		placeholder, err := genSecret()
		if err != nil {
			return nil, nil, false, err
		}
		hash, err := hashPassword(placeholder)
		if err != nil {
			return nil, nil, false, err
		}
		googleID := in.GoogleID
		user, err = s.db.CreateUser(in.Name, normalizeEmail(in.Email), hash, "google", &googleID, avatar)
		if err != nil {
			return nil, nil, false, fmt.Errorf("creating user: %w", err)
		}
		isNew = true
	case user.GoogleID == nil:
		// Email-registered account signing in with Google for the first
		// time: link the identity.
		if err := s.db.AttachGoogleIdentity(user.ID, in.GoogleID, avatar); err != nil {
			return nil, nil, false, fmt.Errorf("linking google identity: %w", err)
		}
		googleID := in.GoogleID
		user.GoogleID = &googleID
		user.Provider = "google"
		if avatar != nil {
			user.Avatar = avatar
		}
	}

	pair, err := s.issuePair(user.ID)
	if err != nil {
		return nil, nil, false, err
	}
	return pair, user, isNew, nil
}

// Refresh rotates the access half of an active pair. The refresh secret and
// its expiry are deliberately left untouched: a pair lives at most one
// refresh window, and a new login supersedes it entirely.
func (s *AuthService) Refresh(refreshSecret string) (*TokenPair, error) {
	if refreshSecret == "" {
		ve := newValidationError()
		ve.add("refreshToken", "Refresh token is required")
		return nil, ve
	}

	pair, err := s.db.GetActiveTokenByRefresh(refreshSecret)
	if err != nil {
		return nil, fmt.Errorf("finding refresh token: %w", err)
	}
	if pair == nil || time.Now().After(pair.RefreshExpiresAt) {
		return nil, ErrInvalidOrExpiredToken
	}

	for attempt := 0; attempt < maxSecretAttempts; attempt++ {
		secret, err := genSecret()
		if err != nil {
			return nil, err
		}
		expiresAt := time.Now().UTC().Add(s.accessTTL)
		err = s.db.UpdateAccessToken(pair.ID, secret, expiresAt)
		if errors.Is(err, ErrDuplicateSecret) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("rotating access token: %w", err)
		}
		pair.AccessToken = secret
		pair.AccessExpiresAt = expiresAt
		return pair, nil
	}
	return nil, fmt.Errorf("rotating access token: %w", ErrDuplicateSecret)
}

// Logout revokes by whichever secrets are supplied. Missing rows and already
// revoked pairs are not errors; logout always succeeds.
func (s *AuthService) Logout(accessSecret, refreshSecret string) error {
	if accessSecret != "" {
		if err := s.db.RevokeByAccessToken(accessSecret); err != nil {
			return fmt.Errorf("revoking access token: %w", err)
		}
	}
	if refreshSecret != "" {
		if err := s.db.RevokeByRefreshToken(refreshSecret); err != nil {
			return fmt.Errorf("revoking refresh token: %w", err)
		}
	}
	return nil
}

// issuePair revokes every active pair for the user and persists a new one as
// a single transactional unit, retrying on the (vanishingly rare) secret
// collision.
func (s *AuthService) issuePair(userID int64) (*TokenPair, error) {
	for attempt := 0; attempt < maxSecretAttempts; attempt++ {
		access, err := genSecret()
		if err != nil {
			return nil, err
		}
		refresh, err := genSecret()
		if err != nil {
			return nil, err
		}
		now := time.Now().UTC()
		pair := &TokenPair{
			UserID:           userID,
			AccessToken:      access,
			AccessExpiresAt:  now.Add(s.accessTTL),
			RefreshToken:     refresh,
			RefreshExpiresAt: now.Add(s.refreshTTL),
		}
		err = s.db.ReplaceActiveTokens(userID, pair)
		if errors.Is(err, ErrDuplicateSecret) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("issuing token pair: %w", err)
		}
		return pair, nil
	}
	return nil, fmt.Errorf("issuing token pair: %w", ErrDuplicateSecret)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
