package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"io"
	"sync"

	"golang.org/x/crypto/nacl/secretbox"
	"golang.org/x/crypto/scrypt"
)

const (
	saltSize  = 16
	nonceSize = 24
)

var errUnseal = errors.New("cannot unseal token")

// sealer encrypts tokens at rest with a key derived from a passphrase.
// The layout is base64(salt | nonce | box).
type sealer struct {
	pass []byte

	mu      sync.Mutex
	lastKey *[32]byte
	lastFor [saltSize]byte
}

func newSealer(passphrase string) *sealer {
	if passphrase == "" {
		return nil
	}
	return &sealer{pass: []byte(passphrase)}
}

func (s *sealer) key(salt [saltSize]byte) (*[32]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastKey != nil && s.lastFor == salt {
		return s.lastKey, nil
	}
	raw, err := scrypt.Key(s.pass, salt[:], 1<<15, 8, 1, 32)
	if err != nil {
		return nil, err
	}
	var k [32]byte
	copy(k[:], raw)
	s.lastKey, s.lastFor = &k, salt
	return &k, nil
}

func (s *sealer) seal(plain string) (string, error) {
	var salt [saltSize]byte
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, salt[:]); err != nil {
		return "", err
	}
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", err
	}
	k, err := s.key(salt)
	if err != nil {
		return "", err
	}
	out := append(salt[:], nonce[:]...)
	out = secretbox.Seal(out, []byte(plain), &nonce, k)
	return base64.RawStdEncoding.EncodeToString(out), nil
}

func (s *sealer) open(sealed string) (string, error) {
	raw, err := base64.RawStdEncoding.DecodeString(sealed)
	if err != nil || len(raw) < saltSize+nonceSize+secretbox.Overhead {
		return "", errUnseal
	}
	var salt [saltSize]byte
	var nonce [nonceSize]byte
	copy(salt[:], raw[:saltSize])
	copy(nonce[:], raw[saltSize:saltSize+nonceSize])
	k, err := s.key(salt)
	if err != nil {
		return "", err
	}
	plain, ok := secretbox.Open(nil, raw[saltSize+nonceSize:], &nonce, k)
	if !ok {
		return "", errUnseal
	}
	return string(plain), nil
}
