package database

import (
	"database/sql"
	"errors"
	"time"

	"isotope/internal/model"
)

func (db *DB) CreateSession(s *model.Session) error {
	sealed, err := seal(db.key, s.APIToken)
	if err != nil {
		return err
	}
	_, err = db.conn.Exec(
		`INSERT INTO sessions (id, csrf_token, username, display_name, role, api_token, token_hash, verified_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		s.ID, s.CSRFToken, s.Username, s.DisplayName, s.Role, sealed, tokenHash(s.APIToken), s.VerifiedAt, s.ExpiresAt,
	)
	return err
}

// GetSession returns nil when no session has the id.
func (db *DB) GetSession(id string) (*model.Session, error) {
	s := &model.Session{ID: id}
	var sealed []byte
	err := db.conn.QueryRow(
		`SELECT csrf_token, username, display_name, role, api_token, verified_at, created_at, expires_at
		 FROM sessions WHERE id = $1`, id,
	).Scan(&s.CSRFToken, &s.Username, &s.DisplayName, &s.Role, &sealed, &s.VerifiedAt, &s.CreatedAt, &s.ExpiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if s.APIToken, err = unseal(db.key, sealed); err != nil {
		return nil, err
	}
	return s, nil
}

// TouchSession records a successful who-am-i re-check.
func (db *DB) TouchSession(id string, verifiedAt time.Time) error {
	_, err := db.conn.Exec("UPDATE sessions SET verified_at = $1 WHERE id = $2", verifiedAt, id)
	return err
}

func (db *DB) DeleteSession(id string) error {
	_, err := db.conn.Exec("DELETE FROM sessions WHERE id = $1", id)
	return err
}

// DeleteSessionsByToken removes every session bound to the given API token
// and reports how many there were.
func (db *DB) DeleteSessionsByToken(apiToken string) (int, error) {
	res, err := db.conn.Exec("DELETE FROM sessions WHERE token_hash = $1", tokenHash(apiToken))
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (db *DB) PurgeExpiredSessions() error {
	_, err := db.conn.Exec("DELETE FROM sessions WHERE expires_at < NOW()")
	return err
}
