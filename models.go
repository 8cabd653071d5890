package main

import "time"

// User is an identity record. Password always holds a bcrypt hash, never a
// plaintext password; Google-created accounts get a random unusable one.
type User struct {
	ID        int64
	Name      string
	Email     string
	Password  string
	Provider  string // "email" or "google"
	GoogleID  *string
	Avatar    *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TokenPair is one authenticated session: a short-lived access secret paired
// with a long-lived refresh secret. Pairs are revoked, never deleted, and at
// most one non-revoked pair exists per user at any time.
type TokenPair struct {
	ID               int64
	UserID           int64
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
	Revoked          bool
	CreatedAt        time.Time
}
