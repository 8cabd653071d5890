package main

import (
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"
)

type PostgresDB struct {
	db  *sql.DB
	dsn string
}

func NewPostgresDB(dsn string) (*PostgresDB, error) {
	d, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	p := &PostgresDB{db: d, dsn: dsn}
	if err := p.Init(); err != nil {
		d.Close()
		return nil, err
	}
	return p, nil
}

func (p *PostgresDB) Init() error {
	// tables come from migrations; just verify connectivity
	return p.db.Ping()
}

// pgConstraintErr maps unique violations (23505) onto the store error
// taxonomy using the constraint name.
func pgConstraintErr(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != "23505" {
		return err
	}
	switch pqErr.Constraint {
	case "users_email_key":
		return ErrDuplicateEmail
	case "auth_tokens_access_token_key", "auth_tokens_refresh_token_key":
		return ErrDuplicateSecret
	}
	return err
}

func (p *PostgresDB) CreateUser(name, email, passwordHash, provider string, googleID, avatar *string) (*User, error) {
	u := &User{Name: name, Email: email, Password: passwordHash, Provider: provider, GoogleID: googleID, Avatar: avatar}
	err := p.db.QueryRow(
		`INSERT INTO users(name,email,password,provider,google_id,avatar) VALUES($1,$2,$3,$4,$5,$6) RETURNING id, created_at, updated_at`,
		name, email, passwordHash, provider, googleID, avatar,
	).Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, pgConstraintErr(err)
	}
	return u, nil
}

const pgUserCols = `id,name,email,password,provider,google_id,avatar,created_at,updated_at`

func (p *PostgresDB) scanUser(row *sql.Row) (*User, error) {
	var u User
	var googleID, avatar sql.NullString
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.Password, &u.Provider, &googleID, &avatar, &u.CreatedAt, &u.UpdatedAt); err != nil {
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
	return &u, nil
}

func (p *PostgresDB) GetUserByEmail(email string) (*User, error) {
	return p.scanUser(p.db.QueryRow(`SELECT `+pgUserCols+` FROM users WHERE email = $1`, email))
}

func (p *PostgresDB) GetUserByGoogleID(googleID string) (*User, error) {
	return p.scanUser(p.db.QueryRow(`SELECT `+pgUserCols+` FROM users WHERE google_id = $1`, googleID))
}

func (p *PostgresDB) GetUserByID(id int64) (*User, error) {
	return p.scanUser(p.db.QueryRow(`SELECT `+pgUserCols+` FROM users WHERE id = $1`, id))
}

func (p *PostgresDB) AttachGoogleIdentity(userID int64, googleID string, avatar *string) error {
	_, err := p.db.Exec(
		`UPDATE users SET google_id = $1, provider = 'google', avatar = COALESCE($2, avatar), updated_at = now() WHERE id = $3`,
		googleID, avatar, userID,
	)
	return pgConstraintErr(err)
}

func (p *PostgresDB) ReplaceActiveTokens(userID int64, pair *TokenPair) error {
	tx, err := p.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`UPDATE auth_tokens SET revoked = true, updated_at = now() WHERE user_id = $1 AND revoked = false`, userID); err != nil {
		return err
	}
	err = tx.QueryRow(
		`INSERT INTO auth_tokens(user_id,access_token,access_expires_at,refresh_token,refresh_expires_at) VALUES($1,$2,$3,$4,$5) RETURNING id, created_at`,
		userID, pair.AccessToken, pair.AccessExpiresAt, pair.RefreshToken, pair.RefreshExpiresAt,
	).Scan(&pair.ID, &pair.CreatedAt)
	if err != nil {
		return pgConstraintErr(err)
	}
	return tx.Commit()
}

func (p *PostgresDB) UpdateAccessToken(pairID int64, secret string, expiresAt time.Time) error {
	_, err := p.db.Exec(
		`UPDATE auth_tokens SET access_token = $1, access_expires_at = $2, updated_at = now() WHERE id = $3`,
		secret, expiresAt, pairID,
	)
	return pgConstraintErr(err)
}

const pgTokenCols = `id,user_id,access_token,access_expires_at,refresh_token,refresh_expires_at,revoked,created_at`

func (p *PostgresDB) scanToken(row *sql.Row) (*TokenPair, error) {
	var t TokenPair
	if err := row.Scan(&t.ID, &t.UserID, &t.AccessToken, &t.AccessExpiresAt, &t.RefreshToken, &t.RefreshExpiresAt, &t.Revoked, &t.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

func (p *PostgresDB) GetActiveTokenByAccess(secret string) (*TokenPair, error) {
	return p.scanToken(p.db.QueryRow(`SELECT `+pgTokenCols+` FROM auth_tokens WHERE access_token = $1 AND revoked = false`, secret))
}

func (p *PostgresDB) GetActiveTokenByRefresh(secret string) (*TokenPair, error) {
	return p.scanToken(p.db.QueryRow(`SELECT `+pgTokenCols+` FROM auth_tokens WHERE refresh_token = $1 AND revoked = false`, secret))
}

func (p *PostgresDB) RevokeByAccessToken(secret string) error {
	_, err := p.db.Exec(`UPDATE auth_tokens SET revoked = true, updated_at = now() WHERE access_token = $1`, secret)
	return err
}

func (p *PostgresDB) RevokeByRefreshToken(secret string) error {
	_, err := p.db.Exec(`UPDATE auth_tokens SET revoked = true, updated_at = now() WHERE refresh_token = $1`, secret)
	return err
}

func (p *PostgresDB) close() error { return p.db.Close() }
func (p *PostgresDB) ping() bool   { return p.db.Ping() == nil }
