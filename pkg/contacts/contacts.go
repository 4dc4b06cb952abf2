// Package contacts persists the emergency contact list and the user's
// display name.
package contacts

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/xid"
)

// ErrInvalidContact is returned when a contact is missing its name or phone.
var ErrInvalidContact = errors.New("contact requires a name and a phone number")

// Storage keys shared by the key-value backends.
const (
	ContactsKey = "ai_samarth_contacts"
	UserNameKey = "ai_samarth_username"
)

// Contact is one emergency contact. Phone numbers are stored as entered.
type Contact struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// Store persists contacts in insertion order and the display name.
// Missing data reads as empty, never as an error.
type Store interface {
	Contacts(ctx context.Context) ([]Contact, error)
	SaveContacts(ctx context.Context, list []Contact) error
	UserName(ctx context.Context) (string, error)
	SaveUserName(ctx context.Context, name string) error
	Close() error
}

// Add appends a new contact with a generated ID and saves the list.
func Add(ctx context.Context, s Store, name, phone string) (Contact, error) {
	name = strings.TrimSpace(name)
	phone = strings.TrimSpace(phone)
	if name == "" || phone == "" {
		return Contact{}, ErrInvalidContact
	}

	list, err := s.Contacts(ctx)
	if err != nil {
		return Contact{}, fmt.Errorf("load contacts: %w", err)
	}
	c := Contact{ID: xid.New().String(), Name: name, Phone: phone}
	if err := s.SaveContacts(ctx, append(list, c)); err != nil {
		return Contact{}, fmt.Errorf("save contacts: %w", err)
	}
	return c, nil
}

// Remove drops every contact with the given ID. Removing an unknown ID is
// not an error.
func Remove(ctx context.Context, s Store, id string) error {
	list, err := s.Contacts(ctx)
	if err != nil {
		return fmt.Errorf("load contacts: %w", err)
	}
	kept := make([]Contact, 0, len(list))
	for _, c := range list {
		if c.ID != id {
			kept = append(kept, c)
		}
	}
	if len(kept) == len(list) {
		return nil
	}
	if err := s.SaveContacts(ctx, kept); err != nil {
		return fmt.Errorf("save contacts: %w", err)
	}
	return nil
}

// Config selects and parameterizes a backend.
type Config struct {
	Backend string // memory, redis, sqlite, datastore

	RedisAddr     string
	RedisUsername string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string

	SQLitePath string

	// Pool backs the datastore backend.
	Pool DBPool
}

// New creates the configured store.
func New(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemoryStore(), nil
	case "redis":
		s, err := NewRedisStore(ctx, RedisConfig{
			Addr:     cfg.RedisAddr,
			Username: cfg.RedisUsername,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   cfg.RedisPrefix,
		})
		if err != nil {
			return nil, err
		}
		return s, nil
	case "sqlite":
		s, err := OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "datastore":
		if cfg.Pool == nil {
			return nil, fmt.Errorf("datastore contact store requires a database pool")
		}
		s, err := NewGormStore(ctx, cfg.Pool)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown contact store backend %q", cfg.Backend)
	}
}
