// Package contacts provides the record store backing the rig's CRUD tools.
//
// The store is an embedded in-memory sqlite database seeded with a fixed set
// of contacts, plus a reset operation returning it to the seed state between
// test runs. It exists so that clients have stateful, mutation-capable tools
// to exercise; nothing here persists across restarts.
package contacts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Typewise/mcp-chaos-rig/pkg/logging"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when an operation references an unknown contact id.
var ErrNotFound = errors.New("contact not found")

// Contact is one record in the store.
type Contact struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

// seedContacts is the data set the store starts with and returns to on Reset.
var seedContacts = []Contact{
	{Name: "Ada Lovelace", Email: "ada@example.com", Phone: "+44 20 7946 0001"},
	{Name: "Grace Hopper", Email: "grace@example.com", Phone: "+1 212 555 0002"},
	{Name: "Alan Turing", Email: "alan@example.com", Phone: "+44 16 2586 0003"},
	{Name: "Katherine Johnson", Email: "katherine@example.com", Phone: "+1 757 555 0004"},
	{Name: "Edsger Dijkstra", Email: "edsger@example.com", Phone: "+31 40 247 0005"},
	{Name: "Barbara Liskov", Email: "barbara@example.com", Phone: "+1 617 555 0006"},
	{Name: "Donald Knuth", Email: "donald@example.com", Phone: "+1 650 555 0007"},
	{Name: "Margaret Hamilton", Email: "margaret@example.com", Phone: "+1 617 555 0008"},
}

// Store wraps the sqlite database.
type Store struct {
	db *sql.DB
}

// Open creates the in-memory database, applies the schema and seeds it.
func Open() (*Store, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}
	// A single connection keeps the in-memory database alive and serializes
	// access; the pool would otherwise hand out fresh empty databases.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.init(context.Background()); err != nil {
		db.Close()
		return nil, err
	}

	logging.Info("Contacts", "store opened with %d seed contacts", len(seedContacts))
	return s, nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) init(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS contacts (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	email TEXT NOT NULL,
	phone TEXT NOT NULL DEFAULT ''
);`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return s.seed(ctx)
}

func (s *Store) seed(ctx context.Context) error {
	for _, c := range seedContacts {
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO contacts (name, email, phone) VALUES (?, ?, ?)`,
			c.Name, c.Email, c.Phone); err != nil {
			return fmt.Errorf("seeding contacts: %w", err)
		}
	}
	return nil
}

// List returns all contacts ordered by id.
func (s *Store) List(ctx context.Context) ([]Contact, error) {
	return s.query(ctx, `SELECT id, name, email, phone FROM contacts ORDER BY id`)
}

// Search returns contacts whose name or email contains q, case-insensitive.
func (s *Store) Search(ctx context.Context, q string) ([]Contact, error) {
	pattern := "%" + q + "%"
	return s.query(ctx,
		`SELECT id, name, email, phone FROM contacts
		 WHERE name LIKE ? COLLATE NOCASE OR email LIKE ? COLLATE NOCASE
		 ORDER BY id`, pattern, pattern)
}

// Create inserts a contact and returns it with its assigned id.
func (s *Store) Create(ctx context.Context, name, email, phone string) (Contact, error) {
	if name == "" {
		return Contact{}, fmt.Errorf("contact name is required")
	}
	if email == "" {
		return Contact{}, fmt.Errorf("contact email is required")
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO contacts (name, email, phone) VALUES (?, ?, ?)`,
		name, email, phone)
	if err != nil {
		return Contact{}, fmt.Errorf("creating contact: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Contact{}, fmt.Errorf("reading new contact id: %w", err)
	}
	return Contact{ID: id, Name: name, Email: email, Phone: phone}, nil
}

// Update overwrites the named fields of an existing contact. Empty fields
// keep their current value.
func (s *Store) Update(ctx context.Context, id int64, name, email, phone string) (Contact, error) {
	current, err := s.get(ctx, id)
	if err != nil {
		return Contact{}, err
	}

	if name != "" {
		current.Name = name
	}
	if email != "" {
		current.Email = email
	}
	if phone != "" {
		current.Phone = phone
	}

	if _, err := s.db.ExecContext(ctx,
		`UPDATE contacts SET name = ?, email = ?, phone = ? WHERE id = ?`,
		current.Name, current.Email, current.Phone, id); err != nil {
		return Contact{}, fmt.Errorf("updating contact %d: %w", id, err)
	}
	return current, nil
}

// Delete removes a contact.
func (s *Store) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM contacts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting contact %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting contact %d: %w", id, err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Reset drops every record and reseeds the store, restarting id assignment.
func (s *Store) Reset(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM contacts`); err != nil {
		return fmt.Errorf("clearing contacts: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sqlite_sequence WHERE name = 'contacts'`); err != nil {
		return fmt.Errorf("resetting contact ids: %w", err)
	}
	if err := s.seed(ctx); err != nil {
		return err
	}
	logging.Info("Contacts", "store reset to seed data")
	return nil
}

func (s *Store) get(ctx context.Context, id int64) (Contact, error) {
	var c Contact
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, email, phone FROM contacts WHERE id = ?`, id).
		Scan(&c.ID, &c.Name, &c.Email, &c.Phone)
	if errors.Is(err, sql.ErrNoRows) {
		return Contact{}, ErrNotFound
	}
	if err != nil {
		return Contact{}, fmt.Errorf("loading contact %d: %w", id, err)
	}
	return c, nil
}

func (s *Store) query(ctx context.Context, q string, args ...any) ([]Contact, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying contacts: %w", err)
	}
	defer rows.Close()

	var out []Contact
	for rows.Next() {
		var c Contact
		if err := rows.Scan(&c.ID, &c.Name, &c.Email, &c.Phone); err != nil {
			return nil, fmt.Errorf("scanning contact: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
