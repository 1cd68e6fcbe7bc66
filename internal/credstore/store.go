package credstore

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// ErrNotFound indicates no matching stored credential.
var ErrNotFound = errors.New("credential not found")

// Credential is one stored account.
type Credential struct {
	LibraryID string `json:"library_id"`
	Username  string `json:"username"`
	Password  string `json:"-"`
	Active    bool   `json:"active"`
	CreatedAt string `json:"created_at"`
	LastLogin string `json:"last_login_at,omitempty"`
}

// Store provides credential persistence backed by SQL.
type Store struct {
	DB  *sql.DB
	Now func() time.Time
}

func (s Store) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Load returns all stored credentials, active account first.
func (s Store) Load(ctx context.Context) ([]Credential, error) {
	rows, err := s.DB.QueryContext(ctx, `
SELECT library_id, username, password, active, created_at, COALESCE(last_login_at, '')
FROM accounts ORDER BY active DESC, library_id, username`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var creds []Credential
	for rows.Next() {
		var c Credential
		var active int
		if err := rows.Scan(&c.LibraryID, &c.Username, &c.Password, &active, &c.CreatedAt, &c.LastLogin); err != nil {
			return nil, err
		}
		c.Active = active != 0
		creds = append(creds, c)
	}
	return creds, rows.Err()
}

// Save upserts a credential and marks it as the active account for its
// library.
func (s Store) Save(ctx context.Context, cred Credential) error {
	now := s.now().UTC().Format(time.RFC3339)
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `UPDATE accounts SET active=0 WHERE library_id=?`, cred.LibraryID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
INSERT INTO accounts(library_id, username, password, active, created_at)
VALUES (?,?,?,1,?)
ON CONFLICT(library_id, username) DO UPDATE SET password=excluded.password, active=1`,
		cred.LibraryID, cred.Username, cred.Password, now); err != nil {
		return err
	}
	return tx.Commit()
}

// Active returns the active credential for a library.
func (s Store) Active(ctx context.Context, libraryID string) (Credential, error) {
	row := s.DB.QueryRowContext(ctx, `
SELECT library_id, username, password, active, created_at, COALESCE(last_login_at, '')
FROM accounts WHERE library_id=? AND active=1 LIMIT 1`, libraryID)
	var c Credential
	var active int
	err := row.Scan(&c.LibraryID, &c.Username, &c.Password, &active, &c.CreatedAt, &c.LastLogin)
	if err == sql.ErrNoRows {
		return Credential{}, ErrNotFound
	}
	if err != nil {
		return Credential{}, err
	}
	c.Active = active != 0
	return c, nil
}

// Find returns a specific stored credential.
func (s Store) Find(ctx context.Context, libraryID, username string) (Credential, error) {
	row := s.DB.QueryRowContext(ctx, `
SELECT library_id, username, password, active, created_at, COALESCE(last_login_at, '')
FROM accounts WHERE library_id=? AND username=? LIMIT 1`, libraryID, username)
	var c Credential
	var active int
	err := row.Scan(&c.LibraryID, &c.Username, &c.Password, &active, &c.CreatedAt, &c.LastLogin)
	if err == sql.ErrNoRows {
		return Credential{}, ErrNotFound
	}
	if err != nil {
		return Credential{}, err
	}
	c.Active = active != 0
	return c, nil
}

// SetActive switches the active account for a library.
func (s Store) SetActive(ctx context.Context, libraryID, username string) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `UPDATE accounts SET active=0 WHERE library_id=?`, libraryID); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `UPDATE accounts SET active=1 WHERE library_id=? AND username=?`, libraryID, username)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return tx.Commit()
}

// Deactivate clears the active marker for a library without touching
// the stored credentials.
func (s Store) Deactivate(ctx context.Context, libraryID string) error {
	_, err := s.DB.ExecContext(ctx, `UPDATE accounts SET active=0 WHERE library_id=?`, libraryID)
	return err
}

// TouchLogin records a successful login time.
func (s Store) TouchLogin(ctx context.Context, libraryID, username string) error {
	now := s.now().UTC().Format(time.RFC3339)
	_, err := s.DB.ExecContext(ctx, `UPDATE accounts SET last_login_at=? WHERE library_id=? AND username=?`,
		now, libraryID, username)
	return err
}

// Remove deletes one stored credential.
func (s Store) Remove(ctx context.Context, libraryID, username string) error {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM accounts WHERE library_id=? AND username=?`, libraryID, username)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Clear removes every stored credential.
func (s Store) Clear(ctx context.Context) error {
	_, err := s.DB.ExecContext(ctx, `DELETE FROM accounts`)
	return err
}
