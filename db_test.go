package main

import (
	"bytes"
	"log"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestSQLite(t *testing.T) *SQLiteDB {
	t.Helper()
	db, err := NewSQLiteDB(filepath.Join(t.TempDir(), "auth.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.close() })
	return db
}

func testPair(userID int64, access, refresh string) *TokenPair {
	now := time.Now().UTC()
	return &TokenPair{
		UserID:           userID,
		AccessToken:      access,
		AccessExpiresAt:  now.Add(15 * time.Minute),
		RefreshToken:     refresh,
		RefreshExpiresAt: now.Add(7 * 24 * time.Hour),
	}
}

func TestSQLiteCreateAndLookupUser(t *testing.T) {
	db := newTestSQLite(t)

	u, err := db.CreateUser("Alice", "a@x.com", "hash", "email", nil, nil)
	require.NoError(t, err)
	require.NotZero(t, u.ID)
	require.Nil(t, u.GoogleID)

	byEmail, err := db.GetUserByEmail("a@x.com")
	require.NoError(t, err)
	require.Equal(t, u.ID, byEmail.ID)
	require.Equal(t, "hash", byEmail.Password)
	require.WithinDuration(t, u.CreatedAt, byEmail.CreatedAt, time.Second)

	byID, err := db.GetUserByID(u.ID)
	require.NoError(t, err)
	require.Equal(t, "Alice", byID.Name)

	missing, err := db.GetUserByEmail("nobody@x.com")
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestSQLiteDuplicateEmail(t *testing.T) {
	db := newTestSQLite(t)

	_, err := db.CreateUser("Alice", "a@x.com", "hash", "email", nil, nil)
	require.NoError(t, err)
	_, err = db.CreateUser("Other", "a@x.com", "hash2", "email", nil, nil)
	require.ErrorIs(t, err, ErrDuplicateEmail)
}

func TestSQLiteGoogleIdentity(t *testing.T) {
	db := newTestSQLite(t)

	u, err := db.CreateUser("Alice", "a@x.com", "hash", "email", nil, nil)
	require.NoError(t, err)

	avatar := "https://example.com/pic.png"
	require.NoError(t, db.AttachGoogleIdentity(u.ID, "google-123", &avatar))

	linked, err := db.GetUserByGoogleID("google-123")
	require.NoError(t, err)
	require.Equal(t, u.ID, linked.ID)
	require.Equal(t, "google", linked.Provider)
	require.NotNil(t, linked.Avatar)
	require.Equal(t, avatar, *linked.Avatar)

	// avatar is preserved when the caller has none to set
	require.NoError(t, db.AttachGoogleIdentity(u.ID, "google-123", nil))
	linked, err = db.GetUserByGoogleID("google-123")
	require.NoError(t, err)
	require.Equal(t, avatar, *linked.Avatar)
}

func TestSQLiteReplaceActiveTokens(t *testing.T) {
	db := newTestSQLite(t)
	u, err := db.CreateUser("Alice", "a@x.com", "hash", "email", nil, nil)
	require.NoError(t, err)

	first := testPair(u.ID, "access-1", "refresh-1")
	require.NoError(t, db.ReplaceActiveTokens(u.ID, first))
	require.NotZero(t, first.ID)

	second := testPair(u.ID, "access-2", "refresh-2")
	require.NoError(t, db.ReplaceActiveTokens(u.ID, second))

	// first pair is revoked, second is the only live one
	gone, err := db.GetActiveTokenByAccess("access-1")
	require.NoError(t, err)
	require.Nil(t, gone)
	gone, err = db.GetActiveTokenByRefresh("refresh-1")
	require.NoError(t, err)
	require.Nil(t, gone)

	live, err := db.GetActiveTokenByAccess("access-2")
	require.NoError(t, err)
	require.Equal(t, second.ID, live.ID)
	require.Equal(t, u.ID, live.UserID)
}

func TestSQLiteSecretUniquenessSpansRevokedRows(t *testing.T) {
	db := newTestSQLite(t)
	u, err := db.CreateUser("Alice", "a@x.com", "hash", "email", nil, nil)
	require.NoError(t, err)

	require.NoError(t, db.ReplaceActiveTokens(u.ID, testPair(u.ID, "access-1", "refresh-1")))
	require.NoError(t, db.RevokeByAccessToken("access-1"))

	// reusing a revoked pair's secret still violates the ledger constraint
	err = db.ReplaceActiveTokens(u.ID, testPair(u.ID, "access-1", "refresh-9"))
	require.ErrorIs(t, err, ErrDuplicateSecret)
	err = db.ReplaceActiveTokens(u.ID, testPair(u.ID, "access-9", "refresh-1"))
	require.ErrorIs(t, err, ErrDuplicateSecret)
}

func TestSQLiteUpdateAccessToken(t *testing.T) {
	db := newTestSQLite(t)
	u, err := db.CreateUser("Alice", "a@x.com", "hash", "email", nil, nil)
	require.NoError(t, err)

	pair := testPair(u.ID, "access-1", "refresh-1")
	require.NoError(t, db.ReplaceActiveTokens(u.ID, pair))

	newExp := time.Now().UTC().Add(30 * time.Minute)
	require.NoError(t, db.UpdateAccessToken(pair.ID, "access-2", newExp))

	old, err := db.GetActiveTokenByAccess("access-1")
	require.NoError(t, err)
	require.Nil(t, old)

	rotated, err := db.GetActiveTokenByAccess("access-2")
	require.NoError(t, err)
	require.Equal(t, pair.ID, rotated.ID)
	require.Equal(t, "refresh-1", rotated.RefreshToken)
	require.WithinDuration(t, newExp, rotated.AccessExpiresAt, time.Second)

	// rotating onto another pair's live secret is a violation
	other, err := db.CreateUser("Bob", "b@x.com", "hash", "email", nil, nil)
	require.NoError(t, err)
	otherPair := testPair(other.ID, "access-3", "refresh-3")
	require.NoError(t, db.ReplaceActiveTokens(other.ID, otherPair))
	err = db.UpdateAccessToken(otherPair.ID, "access-2", newExp)
	require.ErrorIs(t, err, ErrDuplicateSecret)
}

func TestParseTimeLogsMalformedValues(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	t.Cleanup(func() { log.SetOutput(os.Stderr) })

	got := parseTime("not-a-timestamp")
	require.True(t, got.IsZero())
	require.Contains(t, buf.String(), "malformed stored timestamp")

	buf.Reset()
	want := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	require.Equal(t, want, parseTime(fmtTime(want)))
	require.Empty(t, buf.String())
}

func TestSQLiteRevokesAreIdempotent(t *testing.T) {
	db := newTestSQLite(t)
	u, err := db.CreateUser("Alice", "a@x.com", "hash", "email", nil, nil)
	require.NoError(t, err)

	require.NoError(t, db.ReplaceActiveTokens(u.ID, testPair(u.ID, "access-1", "refresh-1")))
	require.NoError(t, db.RevokeByRefreshToken("refresh-1"))
	require.NoError(t, db.RevokeByRefreshToken("refresh-1"))
	require.NoError(t, db.RevokeByAccessToken("access-1"))
	require.NoError(t, db.RevokeByAccessToken("no-such-secret"))

	live, err := db.GetActiveTokenByRefresh("refresh-1")
	require.NoError(t, err)
	require.Nil(t, live)
}
