// Package otp issues and checks the numeric one-time codes used by the
// registration and login flows.
package otp

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"math/big"
	"strings"
	"time"
)

const (
	Length         = 6
	TTL            = 5 * time.Minute
	MaxAttempts    = 3
	ResendCooldown = 30 * time.Second
)

var ErrInvalidLength = errors.New("length must be positive")

// Generate returns a string of length random decimal digits.
func Generate(length int) (string, error) {
	if length <= 0 {
		return "", ErrInvalidLength
	}
	var b strings.Builder
	b.Grow(length)
	ten := big.NewInt(10)
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}
	return b.String(), nil
}

// Expired reports whether a code sent at sentAt is past its TTL.
// A zero sentAt counts as expired.
func Expired(sentAt, now time.Time) bool {
	if sentAt.IsZero() {
		return true
	}
	return now.After(sentAt.Add(TTL))
}

// Verify compares given against stored in constant time and checks freshness.
func Verify(stored string, sentAt time.Time, given string, now time.Time) bool {
	if stored == "" || given == "" {
		return false
	}
	if subtle.ConstantTimeCompare([]byte(stored), []byte(given)) != 1 {
		return false
	}
	return !Expired(sentAt, now)
}

// CanResend reports whether the cooldown since lastSent has elapsed.
func CanResend(lastSent, now time.Time) bool {
	return lastSent.IsZero() || now.Sub(lastSent) >= ResendCooldown
}
