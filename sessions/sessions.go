// Package sessions keeps short-lived pre-authentication state (pending
// registrations and login OTP challenges) in a bbolt file.
package sessions

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
)

// TTL bounds how long an unfinished registration or login challenge is kept.
const TTL = time.Hour

var ErrNotFound = errors.New("session not found")

var Buckets = map[string][]byte{
	"registrations": []byte("Registrations"),
	"challenges":    []byte("Challenges"),
}

// Registration is a sign-up waiting for its email OTP.
type Registration struct {
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	Phone        string    `json:"phone,omitempty"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	Role         string    `json:"role"`
	PasswordHash string    `json:"password_hash"`
	OTP          string    `json:"otp,omitempty"`
	SentAt       time.Time `json:"sent_at"`
	Attempts     int       `json:"attempts"`
	CreatedAt    time.Time `json:"created_at"`
}

// Challenge is a login that passed the password check and waits for the OTP.
type Challenge struct {
	UserID    int       `json:"user_id"`
	SentAt    time.Time `json:"sent_at"`
	Attempts  int       `json:"attempts"`
	CreatedAt time.Time `json:"created_at"`
}

type Store struct {
	db *bbolt.DB
}

// Open opens or creates the session file and its buckets.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		for _, bucket := range Buckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// NewID returns 32 random bytes hex encoded.
func NewID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func save[T any](s *Store, bucket []byte, key string, value T) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucket)
		if b == nil {
			return fmt.Errorf("bucket %s not found", bucket)
		}
		data, err := json.Marshal(value)
		if err != nil {
			return err
		}
		return b.Put([]byte(key), data)
	})
}

func get[T any](s *Store, bucket []byte, key string) (T, error) {
	var out T
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucket)
		if b == nil {
			return fmt.Errorf("bucket %s not found", bucket)
		}
		v := b.Get([]byte(key))
		if v == nil {
			return ErrNotFound
		}
		return json.Unmarshal(v, &out)
	})
	return out, err
}

func remove(s *Store, bucket []byte, key string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucket)
		if b == nil {
			return fmt.Errorf("bucket %s not found", bucket)
		}
		return b.Delete([]byte(key))
	})
}

func create[T any](s *Store, bucket []byte, value T) (string, error) {
	id, err := NewID()
	if err != nil {
		return "", err
	}
	if err := save(s, bucket, id, value); err != nil {
		return "", err
	}
	return id, nil
}

func expired(createdAt, now time.Time) bool {
	return now.Sub(createdAt) > TTL
}

func (s *Store) CreateRegistration(r Registration) (string, error) {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	return create(s, Buckets["registrations"], r)
}

// Registration returns the pending registration id, or ErrNotFound when it is
// unknown or older than TTL.
func (s *Store) Registration(id string, now time.Time) (Registration, error) {
	r, err := get[Registration](s, Buckets["registrations"], id)
	if err != nil {
		return r, err
	}
	if expired(r.CreatedAt, now) {
		remove(s, Buckets["registrations"], id)
		return Registration{}, ErrNotFound
	}
	return r, nil
}

func (s *Store) SaveRegistration(id string, r Registration) error {
	return save(s, Buckets["registrations"], id, r)
}

func (s *Store) DeleteRegistration(id string) error {
	return remove(s, Buckets["registrations"], id)
}

func (s *Store) CreateChallenge(c Challenge) (string, error) {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	return create(s, Buckets["challenges"], c)
}

func (s *Store) Challenge(id string, now time.Time) (Challenge, error) {
	c, err := get[Challenge](s, Buckets["challenges"], id)
	if err != nil {
		return c, err
	}
	if expired(c.CreatedAt, now) {
		remove(s, Buckets["challenges"], id)
		return Challenge{}, ErrNotFound
	}
	return c, nil
}

func (s *Store) SaveChallenge(id string, c Challenge) error {
	return save(s, Buckets["challenges"], id, c)
}

func (s *Store) DeleteChallenge(id string) error {
	return remove(s, Buckets["challenges"], id)
}

// Purge drops every record older than TTL and returns how many went.
func (s *Store) Purge(now time.Time) (int, error) {
	purged := 0
	err := s.db.Update(func(tx *bbolt.Tx) error {
		for _, bucket := range Buckets {
			b := tx.Bucket(bucket)
			if b == nil {
				continue
			}
			var stale [][]byte
			err := b.ForEach(func(k, v []byte) error {
				var rec struct {
					CreatedAt time.Time `json:"created_at"`
				}
				if json.Unmarshal(v, &rec) != nil || expired(rec.CreatedAt, now) {
					stale = append(stale, append([]byte(nil), k...))
				}
				return nil
			})
			if err != nil {
				return err
			}
			for _, k := range stale {
				if err := b.Delete(k); err != nil {
					return err
				}
			}
			purged += len(stale)
		}
		return nil
	})
	return purged, err
}
