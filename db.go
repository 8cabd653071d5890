package main

import (
	"database/sql"
	"log"
	"strings"
	"sync"
	"time"
)

// DB is the persistence port: credential store plus token ledger.
//
// Lookups return (nil, nil) on miss; callers decide whether a miss is an
// error. Both token secrets carry store-level uniqueness constraints, active
// or revoked, and violations surface as ErrDuplicateSecret so the service can
// regenerate.
type DB interface {
	Init() error

	// Credential store
	CreateUser(name, email, passwordHash, provider string, googleID, avatar *string) (*User, error)
	GetUserByEmail(email string) (*User, error)
	GetUserByGoogleID(googleID string) (*User, error)
	GetUserByID(id int64) (*User, error)
	AttachGoogleIdentity(userID int64, googleID string, avatar *string) error

	// Token ledger
	ReplaceActiveTokens(userID int64, pair *TokenPair) error
	UpdateAccessToken(pairID int64, secret string, expiresAt time.Time) error
	GetActiveTokenByAccess(secret string) (*TokenPair, error)
	GetActiveTokenByRefresh(secret string) (*TokenPair, error)
	RevokeByAccessToken(secret string) error
	RevokeByRefreshToken(secret string) error
}

// Memory DB, used for tests and local experiments.
type MemDB struct {
	mu         sync.Mutex
	users      map[int64]*User
	emailIdx   map[string]int64
	googleIdx  map[string]int64
	tokens     map[int64]*TokenPair
	accessIdx  map[string]int64
	refreshIdx map[string]int64
	userSeq    int64
	tokenSeq   int64
}

func NewMemoryDB() *MemDB {
	return &MemDB{
		users:      map[int64]*User{},
		emailIdx:   map[string]int64{},
		googleIdx:  map[string]int64{},
		tokens:     map[int64]*TokenPair{},
		accessIdx:  map[string]int64{},
		refreshIdx: map[string]int64{},
		userSeq:    1,
		tokenSeq:   1,
	}
}

func (m *MemDB) Init() error { return nil }

func (m *MemDB) CreateUser(name, email, passwordHash, provider string, googleID, avatar *string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.emailIdx[email]; ok {
		return nil, ErrDuplicateEmail
	}
	now := time.Now().UTC()
	u := &User{
		ID:        m.userSeq,
		Name:      name,
		Email:     email,
		Password:  passwordHash,
		Provider:  provider,
		GoogleID:  googleID,
		Avatar:    avatar,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.userSeq++
	m.users[u.ID] = u
	m.emailIdx[email] = u.ID
	if googleID != nil {
		m.googleIdx[*googleID] = u.ID
	}
	cp := *u
	return &cp, nil
}

func (m *MemDB) GetUserByEmail(email string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.emailIdx[email]; ok {
		cp := *m.users[id]
		return &cp, nil
	}
	return nil, nil
}

func (m *MemDB) GetUserByGoogleID(googleID string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.googleIdx[googleID]; ok {
		cp := *m.users[id]
		return &cp, nil
	}
	return nil, nil
}

func (m *MemDB) GetUserByID(id int64) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, nil
}

func (m *MemDB) AttachGoogleIdentity(userID int64, googleID string, avatar *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return nil
	}
	u.GoogleID = &googleID
	u.Provider = "google"
	if avatar != nil {
		u.Avatar = avatar
	}
	u.UpdatedAt = time.Now().UTC()
	m.googleIdx[googleID] = userID
	return nil
}

func (m *MemDB) ReplaceActiveTokens(userID int64, pair *TokenPair) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accessIdx[pair.AccessToken]; ok {
		return ErrDuplicateSecret
	}
	if _, ok := m.refreshIdx[pair.RefreshToken]; ok {
		return ErrDuplicateSecret
	}
	for _, t := range m.tokens {
		if t.UserID == userID {
			t.Revoked = true
		}
	}
	pair.ID = m.tokenSeq
	m.tokenSeq++
	pair.CreatedAt = time.Now().UTC()
	cp := *pair
	m.tokens[cp.ID] = &cp
	m.accessIdx[cp.AccessToken] = cp.ID
	m.refreshIdx[cp.RefreshToken] = cp.ID
	return nil
}

func (m *MemDB) UpdateAccessToken(pairID int64, secret string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.accessIdx[secret]; ok && id != pairID {
		return ErrDuplicateSecret
	}
	t, ok := m.tokens[pairID]
	if !ok {
		return nil
	}
	delete(m.accessIdx, t.AccessToken)
	t.AccessToken = secret
	t.AccessExpiresAt = expiresAt
	m.accessIdx[secret] = pairID
	return nil
}

func (m *MemDB) GetActiveTokenByAccess(secret string) (*TokenPair, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.accessIdx[secret]; ok {
		if t := m.tokens[id]; !t.Revoked {
			cp := *t
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *MemDB) GetActiveTokenByRefresh(secret string) (*TokenPair, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.refreshIdx[secret]; ok {
		if t := m.tokens[id]; !t.Revoked {
			cp := *t
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *MemDB) RevokeByAccessToken(secret string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.accessIdx[secret]; ok {
		m.tokens[id].Revoked = true
	}
	return nil
}

func (m *MemDB) RevokeByRefreshToken(secret string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.refreshIdx[secret]; ok {
		m.tokens[id].Revoked = true
	}
	return nil
}

// SQLite DB
type SQLiteDB struct {
	db   *sql.DB
	path string
}

func NewSQLiteDB(path string) (*SQLiteDB, error) {
	d, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	s := &SQLiteDB{db: d, path: path}
	if err := s.Init(); err != nil {
		d.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteDB) Init() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			email TEXT NOT NULL UNIQUE,
			password TEXT NOT NULL,
			provider TEXT NOT NULL DEFAULT 'email',
			google_id TEXT UNIQUE,
			avatar TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS auth_tokens (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			access_token TEXT NOT NULL UNIQUE,
			access_expires_at TEXT NOT NULL,
			refresh_token TEXT NOT NULL UNIQUE,
			refresh_expires_at TEXT NOT NULL,
			revoked INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_auth_tokens_user_revoked ON auth_tokens(user_id, revoked);`,
	}
	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return err
		}
	}
	return nil
}

// sqliteConstraintErr maps unique-violation messages onto the store error
// taxonomy; anything else passes through untouched.
func sqliteConstraintErr(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if !strings.Contains(msg, "UNIQUE constraint failed") {
		return err
	}
	switch {
	case strings.Contains(msg, "users.email"):
		return ErrDuplicateEmail
	case strings.Contains(msg, "auth_tokens.access_token"), strings.Contains(msg, "auth_tokens.refresh_token"):
		return ErrDuplicateSecret
	}
	return err
}

func fmtTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

// parseTime falls back to the zero time on a malformed value, which reads as
// expired downstream. That should never happen with rows we wrote, so log it;
// a silent zero would disguise store corruption as token expiry.
func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		log.Printf("malformed stored timestamp %q: %v", s, err)
		return time.Time{}
	}
	return t
}

func (s *SQLiteDB) CreateUser(name, email, passwordHash, provider string, googleID, avatar *string) (*User, error) {
	now := time.Now().UTC()
	res, err := s.db.Exec(
		`INSERT INTO users(name,email,password,provider,google_id,avatar,created_at,updated_at) VALUES(?,?,?,?,?,?,?,?)`,
		name, email, passwordHash, provider, googleID, avatar, fmtTime(now), fmtTime(now),
	)
	if err != nil {
		return nil, sqliteConstraintErr(err)
	}
	id, _ := res.LastInsertId()
	return &User{ID: id, Name: name, Email: email, Password: passwordHash, Provider: provider, GoogleID: googleID, Avatar: avatar, CreatedAt: now, UpdatedAt: now}, nil
}

const sqliteUserCols = `id,name,email,password,provider,google_id,avatar,created_at,updated_at`

func (s *SQLiteDB) scanUser(row *sql.Row) (*User, error) {
	var u User
	var googleID, avatar sql.NullString
	var created, updated string
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.Password, &u.Provider, &googleID, &avatar, &created, &updated); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	if googleID.Valid {
		u.GoogleID = &googleID.String
	}
	if avatar.Valid {
		u.Avatar = &avatar.String
	}
	u.CreatedAt = parseTime(created)
	u.UpdatedAt = parseTime(updated)
	return &u, nil
}

func (s *SQLiteDB) GetUserByEmail(email string) (*User, error) {
	return s.scanUser(s.db.QueryRow(`SELECT `+sqliteUserCols+` FROM users WHERE email = ?`, email))
}

func (s *SQLiteDB) GetUserByGoogleID(googleID string) (*User, error) {
	return s.scanUser(s.db.QueryRow(`SELECT `+sqliteUserCols+` FROM users WHERE google_id = ?`, googleID))
}

func (s *SQLiteDB) GetUserByID(id int64) (*User, error) {
	return s.scanUser(s.db.QueryRow(`SELECT `+sqliteUserCols+` FROM users WHERE id = ?`, id))
}

func (s *SQLiteDB) AttachGoogleIdentity(userID int64, googleID string, avatar *string) error {
	_, err := s.db.Exec(
		`UPDATE users SET google_id = ?, provider = 'google', avatar = COALESCE(?, avatar), updated_at = ? WHERE id = ?`,
		googleID, avatar, fmtTime(time.Now()), userID,
	)
	return sqliteConstraintErr(err)
}

func (s *SQLiteDB) ReplaceActiveTokens(userID int64, pair *TokenPair) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`UPDATE auth_tokens SET revoked = 1 WHERE user_id = ? AND revoked = 0`, userID); err != nil {
		return err
	}
	now := time.Now().UTC()
	res, err := tx.Exec(
		`INSERT INTO auth_tokens(user_id,access_token,access_expires_at,refresh_token,refresh_expires_at,revoked,created_at) VALUES(?,?,?,?,?,0,?)`,
		userID, pair.AccessToken, fmtTime(pair.AccessExpiresAt), pair.RefreshToken, fmtTime(pair.RefreshExpiresAt), fmtTime(now),
	)
	if err != nil {
		return sqliteConstraintErr(err)
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	pair.ID, _ = res.LastInsertId()
	pair.CreatedAt = now
	return nil
}

func (s *SQLiteDB) UpdateAccessToken(pairID int64, secret string, expiresAt time.Time) error {
	_, err := s.db.Exec(
		`UPDATE auth_tokens SET access_token = ?, access_expires_at = ? WHERE id = ?`,
		secret, fmtTime(expiresAt), pairID,
	)
	return sqliteConstraintErr(err)
}

const sqliteTokenCols = `id,user_id,access_token,access_expires_at,refresh_token,refresh_expires_at,revoked,created_at`

func (s *SQLiteDB) scanToken(row *sql.Row) (*TokenPair, error) {
	var t TokenPair
	var accessExp, refreshExp, created string
	var revoked int
	if err := row.Scan(&t.ID, &t.UserID, &t.AccessToken, &accessExp, &t.RefreshToken, &refreshExp, &revoked, &created); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	t.AccessExpiresAt = parseTime(accessExp)
	t.RefreshExpiresAt = parseTime(refreshExp)
	t.Revoked = revoked != 0
	t.CreatedAt = parseTime(created)
	return &t, nil
}

func (s *SQLiteDB) GetActiveTokenByAccess(secret string) (*TokenPair, error) {
	return s.scanToken(s.db.QueryRow(`SELECT `+sqliteTokenCols+` FROM auth_tokens WHERE access_token = ? AND revoked = 0`, secret))
}

func (s *SQLiteDB) GetActiveTokenByRefresh(secret string) (*TokenPair, error) {
	return s.scanToken(s.db.QueryRow(`SELECT `+sqliteTokenCols+` FROM auth_tokens WHERE refresh_token = ? AND revoked = 0`, secret))
}

func (s *SQLiteDB) RevokeByAccessToken(secret string) error {
	_, err := s.db.Exec(`UPDATE auth_tokens SET revoked = 1 WHERE access_token = ?`, secret)
	return err
}

func (s *SQLiteDB) RevokeByRefreshToken(secret string) error {
	_, err := s.db.Exec(`UPDATE auth_tokens SET revoked = 1 WHERE refresh_token = ?`, secret)
	return err
}

// lifecycle helpers
func (m *MemDB) close() error { return nil }
func (m *MemDB) ping() bool   { return true }

func (s *SQLiteDB) close() error { return s.db.Close() }
func (s *SQLiteDB) ping() bool   { return s.db.Ping() == nil }
