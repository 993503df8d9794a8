package sessions

import (
	"path/filepath"
	"testing"
	"time"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "sessions.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRegistrationLifecycle(t *testing.T) {
	s := openStore(t)
	now := time.Now()

	id, err := s.CreateRegistration(Registration{Username: "amy", Role: "Student", OTP: "123456", SentAt: now, CreatedAt: now})
	if err != nil {
		t.Fatal(err)
	}
	if len(id) != 64 {
		t.Fatalf("id length = %d", len(id))
	}

	r, err := s.Registration(id, now)
	if err != nil || r.Username != "amy" || r.OTP != "123456" {
		t.Fatalf("get: %+v %v", r, err)
	}

	r.Attempts = 2
	if err := s.SaveRegistration(id, r); err != nil {
		t.Fatal(err)
	}
	r, _ = s.Registration(id, now)
	if r.Attempts != 2 {
		t.Fatalf("attempts = %d", r.Attempts)
	}

	if err := s.DeleteRegistration(id); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Registration(id, now); err != ErrNotFound {
		t.Fatalf("after delete err = %v", err)
	}
}

func TestChallengeExpires(t *testing.T) {
	s := openStore(t)
	created := time.Now().Add(-2 * TTL)
	id, err := s.CreateChallenge(Challenge{UserID: 7, CreatedAt: created})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Challenge(id, time.Now()); err != ErrNotFound {
		t.Fatalf("expired challenge err = %v", err)
	}
	if _, err := s.Challenge("unknown", time.Now()); err != ErrNotFound {
		t.Fatalf("unknown challenge err = %v", err)
	}
}

func TestPurge(t *testing.T) {
	s := openStore(t)
	now := time.Now()
	fresh, _ := s.CreateChallenge(Challenge{UserID: 1, CreatedAt: now})
	s.CreateChallenge(Challenge{UserID: 2, CreatedAt: now.Add(-2 * TTL)})
	s.CreateRegistration(Registration{Username: "old", CreatedAt: now.Add(-3 * TTL)})

	n, err := s.Purge(now)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("purged %d", n)
	}
	if _, err := s.Challenge(fresh, now); err != nil {
		t.Fatalf("fresh challenge purged: %v", err)
	}
}
