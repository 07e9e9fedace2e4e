package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"shopsync/internal/domain"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

var (
	usersBucket      = []byte("users")
	userEmailsBucket = []byte("user_emails")
)

// boltUserRepository stores users in the embedded bolt file, for
// deployments running without a relational database. Records are keyed by
// ID with a secondary email index.
type boltUserRepository struct {
	db *bolt.DB
}

// userRecord is the stored form. domain.User hides the password hash from
// JSON serialization, so the record spells its fields out explicitly.
type userRecord struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"password_hash"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func toRecord(u *domain.User) userRecord {
	return userRecord{
		ID:           u.ID,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		Role:         u.Role,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

func (r userRecord) toUser() *domain.User {
	return &domain.User{
		ID:           r.ID,
		Email:        r.Email,
		PasswordHash: r.PasswordHash,
		Role:         r.Role,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

// NewBoltUserRepository creates a bolt-backed UserRepository, ensuring its
// buckets exist.
func NewBoltUserRepository(db *bolt.DB) (UserRepository, error) {
	err := db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(usersBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(userEmailsBucket)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize user buckets: %w", err)
	}

	return &boltUserRepository{db: db}, nil
}

// Create inserts a new user; a taken email returns ErrUserAlreadyExists.
func (r *boltUserRepository) Create(ctx context.Context, user *domain.User) error {
	encoded, err := json.Marshal(toRecord(user))
	if err != nil {
		return fmt.Errorf("failed to encode user: %w", err)
	}

	err = r.db.Update(func(tx *bolt.Tx) error {
		emails := tx.Bucket(userEmailsBucket)
		if emails.Get([]byte(user.Email)) != nil {
			return ErrUserAlreadyExists
		}

		if err := emails.Put([]byte(user.Email), []byte(user.ID.String())); err != nil {
			return err
		}
		return tx.Bucket(usersBucket).Put([]byte(user.ID.String()), encoded)
	})
	if err != nil {
		if err == ErrUserAlreadyExists {
			return err
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

// FindByEmail looks the user up through the email index.
func (r *boltUserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	var user *domain.User

	err := r.db.View(func(tx *bolt.Tx) error {
		id := tx.Bucket(userEmailsBucket).Get([]byte(email))
		if id == nil {
			return ErrUserNotFound
		}

		raw := tx.Bucket(usersBucket).Get(id)
		if raw == nil {
			return ErrUserNotFound
		}

		var record userRecord
		if err := json.Unmarshal(raw, &record); err != nil {
			return err
		}
		user = record.toUser()
		return nil
	})
	if err != nil {
		if err == ErrUserNotFound {
			return nil, err
		}
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}

	return user, nil
}

// FindByID retrieves a user by ID.
func (r *boltUserRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	var user *domain.User

	err := r.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(usersBucket).Get([]byte(id.String()))
		if raw == nil {
			return ErrUserNotFound
		}

		var record userRecord
		if err := json.Unmarshal(raw, &record); err != nil {
			return err
		}
		user = record.toUser()
		return nil
	})
	if err != nil {
		if err == ErrUserNotFound {
			return nil, err
		}
		return nil, fmt.Errorf("failed to find user by ID: %w", err)
	}

	return user, nil
}
