package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Store is the sqlite-backed Provider.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id   INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS rooms (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	name       TEXT NOT NULL,
	secret     TEXT NOT NULL DEFAULT '',
	owner_id   INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	whiteboard BLOB
);
`

func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_fk=1&_busy_timeout=5000", path))
	if err != nil {
		return nil, err
	}
	if _, err = db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) RoomWithOwner(ctx context.Context, id int64) (*Room, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT r.id, r.name, r.secret, r.owner_id, r.whiteboard
		 FROM rooms r JOIN users u ON u.id = r.owner_id WHERE r.id = ?`, id)
	r := Room{}
	err := row.Scan(&r.ID, &r.Name, &r.Secret, &r.OwnerID, &r.Whiteboard)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoRecord
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *Store) UserByID(ctx context.Context, id int64) (*User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, name FROM users WHERE id = ?`, id)
	u := User{}
	err := row.Scan(&u.ID, &u.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoRecord
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) SaveWhiteboard(ctx context.Context, roomID int64, blob []byte) error {
	_, err := s.db.ExecContext(ctx, `UPDATE rooms SET whiteboard = ? WHERE id = ?`, blob, roomID)
	return err
}

// AddUser and AddRoom exist for seeding and tests; room/user CRUD
// proper is served by a separate application surface.
func (s *Store) AddUser(ctx context.Context, name string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `INSERT INTO users (name) VALUES (?)`, name)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *Store) AddRoom(ctx context.Context, name, secret string, ownerID int64) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO rooms (name, secret, owner_id) VALUES (?, ?, ?)`, name, secret, ownerID)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}
