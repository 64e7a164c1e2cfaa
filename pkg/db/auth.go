package db

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"meowstore/pkg/logger"
	"meowstore/pkg/store/engine"
)

// KeySize is the length of an access key.
const KeySize = 16

// Permission is a set of operation classes a key may perform.
type Permission uint8

const (
	PermRead Permission = 1 << iota
	PermWrite
	PermRemove
)

const permAll = PermRead | PermWrite | PermRemove

func (p Permission) String() string {
	if p == 0 {
		return "none"
	}
	var parts []string
	if p&PermRead != 0 {
		parts = append(parts, "read")
	}
	if p&PermWrite != 0 {
		parts = append(parts, "write")
	}
	if p&PermRemove != 0 {
		parts = append(parts, "remove")
	}
	return strings.Join(parts, "|")
}

// Has reports whether p grants every bit of want.
func (p Permission) Has(want Permission) bool { return p&want == want }

// RequireAuth declares which operation classes need a key.
type RequireAuth struct {
	Read   bool `yaml:"read"`
	Write  bool `yaml:"write"`
	Remove bool `yaml:"remove"`
}

func (r RequireAuth) required(p Permission) bool {
	switch p {
	case PermRead:
		return r.Read
	case PermWrite:
		return r.Write
	case PermRemove:
		return r.Remove
	}
	return true
}

// Key is an access key. Its bytes are printable ASCII so it can travel in
// a header.
type Key [KeySize]byte

// ErrMalformedKey is returned by ParseKey.
var ErrMalformedKey = errors.New("malformed access key")

// ParseKey validates s as a key.
func ParseKey(s string) (Key, error) {
	var k Key
	if len(s) != KeySize {
		return k, fmt.Errorf("%w: want %d bytes, got %d", ErrMalformedKey, KeySize, len(s))
	}
	for i := 0; i < len(s); i++ {
		if s[i] < 0x21 || s[i] > 0x7e {
			return k, fmt.Errorf("%w: byte %d is not printable", ErrMalformedKey, i)
		}
	}
	copy(k[:], s)
	return k, nil
}

func (k Key) String() string { return string(k[:]) }

const keyAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

func randomKey() (Key, error) {
	var k Key
	limit := big.NewInt(int64(len(keyAlphabet)))
	for i := range k {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return k, err
		}
		k[i] = keyAlphabet[n.Int64()]
	}
	return k, nil
}

// ensureAllowed checks key against the permission index. The caller holds
// the store lock.
func (s *Store) ensureAllowed(op Op, want Permission, key *Key) error {
	if !s.requireAuth.required(want) {
		return nil
	}
	if key == nil {
		return &AuthError{Reason: AuthRequired, Perm: want}
	}
	v, err := s.auth.Get(key[:])
	if err != nil {
		if engine.IsNotFound(err) {
			return &AuthError{Reason: AuthInvalid, Perm: want}
		}
		s.report(op, SubsystemAuth, err)
		return ErrInternal
	}
	if !Permission(v).Has(want) {
		return &AuthError{Reason: AuthNotAllowed, Perm: want}
	}
	return nil
}

// EnsureAllowed reports whether key may perform operations of class want.
func (s *Store) EnsureAllowed(want Permission, key *Key) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return s.ensureAllowed(OpEnsureAllowed, want, key)
}

// GenerateKey issues a fresh random key granting perm. A collision with an
// existing key fails with ErrInternal rather than retrying.
func (s *Store) GenerateKey(ctx context.Context, perm Permission) (Key, error) {
	if perm&^permAll != 0 {
		return Key{}, &BadInputError{Field: "permission", Err: fmt.Errorf("unknown bits %#x", uint8(perm))}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Key{}, ErrClosed
	}

	key, err := randomKey()
	if err != nil {
		s.report(OpGenerateKey, SubsystemAuth, err)
		return Key{}, ErrInternal
	}
	look, err := s.auth.Search(key[:])
	if err != nil {
		s.report(OpGenerateKey, SubsystemAuth, err)
		return Key{}, ErrInternal
	}
	if look.Found {
		s.report(OpGenerateKey, SubsystemAuth, errors.New("generated key collides with an issued key"))
		return Key{}, ErrInternal
	}
	if err := s.auth.InsertAt(look.Cursor, uint64(perm)); err != nil {
		s.report(OpGenerateKey, SubsystemAuth, err)
		return Key{}, ErrInternal
	}
	logger.Info("access_key_issued", "permissions", perm.String())
	return key, nil
}
