// Package store is the durable address book: one row per known peer,
// ordered by recency of last interaction.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// ErrExists is returned by Insert when the id already has a row.
var ErrExists = errors.New("store: user already exists")

// User is one address-book row.
type User struct {
	ID         []byte
	Hostname   string
	Username   string // empty when the peer has no display name yet
	LastUpdate int64  // seconds since epoch
}

// Book wraps the single-file database. All operations are serialized by
// one lock; the session never needs more isolation than that.
type Book struct {
	mu  sync.Mutex
	db  *sql.DB
	now func() int64
}

const schema = `
CREATE TABLE IF NOT EXISTS users (
	lastupdate INTEGER NOT NULL,
	id         BLOB    NOT NULL,
	hostname   TEXT    NOT NULL,
	username   TEXT
);
CREATE INDEX IF NOT EXISTS users_lastupdate ON users (lastupdate, id);
`

// Open opens or creates the database at path.
func Open(path string) (*Book, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Book{db: db, now: func() int64 { return time.Now().Unix() }}, nil
}

func (b *Book) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.db.Close()
}

// List returns every row, most recently updated first.
func (b *Book) List() ([]*User, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	rows, err := b.db.Query(`SELECT lastupdate, id, hostname, username FROM users ORDER BY lastupdate DESC`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// Get returns the row for id, or nil when absent.
func (b *Book) Get(id []byte) (*User, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.get(id)
}

func (b *Book) get(id []byte) (*User, error) {
	rows, err := b.db.Query(`SELECT lastupdate, id, hostname, username FROM users WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	return scanUser(rows)
}

// Insert adds a new row with lastupdate set to now. The id and hostname
// are fixed from here on; message traffic only ever touches lastupdate.
func (b *Book) Insert(id []byte, hostname string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	existing, err := b.get(id)
	if err != nil {
		return err
	}
	if existing != nil {
		return ErrExists
	}
	_, err = b.db.Exec(`INSERT INTO users (lastupdate, id, hostname, username) VALUES (?, ?, ?, NULL)`,
		b.now(), id, hostname)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// Delete removes the row for id; deleting an absent id is not an error.
func (b *Book) Delete(id []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, err := b.db.Exec(`DELETE FROM users WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return nil
}

// Touch moves id to the top of the recency order. No-op when absent.
func (b *Book) Touch(id []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, err := b.db.Exec(`UPDATE users SET lastupdate = ? WHERE id = ?`, b.now(), id); err != nil {
		return fmt.Errorf("touch user: %w", err)
	}
	return nil
}

// SetUsername updates the display name for id. No-op when absent.
func (b *Book) SetUsername(id []byte, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, err := b.db.Exec(`UPDATE users SET username = ? WHERE id = ?`, toNull(name), id); err != nil {
		return fmt.Errorf("set username: %w", err)
	}
	return nil
}

func toNull(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func scanUser(rows *sql.Rows) (*User, error) {
	var u User
	var name sql.NullString
	if err := rows.Scan(&u.LastUpdate, &u.ID, &u.Hostname, &name); err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	u.Username = name.String
	return &u, nil
}
