// Package cryptoseal implements an AES-256-GCM sealed-envelope primitive:
// callers seal arbitrary payloads under a 256-bit key and get back an
// IV‖ciphertext‖tag envelope that only that key can open.
package cryptoseal

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
)

// KeySize is the length in bytes of an AES-256 key.
const KeySize = 32

// nonceSize is the length in bytes of the GCM standard nonce.
const nonceSize = 12

// ErrOpen is returned by Decrypt when the envelope fails authentication, either
// because it was tampered with or was sealed under a different key.
var ErrOpen = errors.New("cryptoseal: envelope authentication failed")

// ErrEnvelopeTooShort is returned by Decrypt when the envelope is shorter than
// a nonce plus the GCM tag, so it cannot possibly be valid.
var ErrEnvelopeTooShort = errors.New("cryptoseal: envelope shorter than nonce+tag")

// ErrEmptyPlaintext is returned by Encrypt when given a zero-length
// plaintext, which this primitive treats as a caller error rather than a
// valid (if useless) envelope.
var ErrEmptyPlaintext = errors.New("cryptoseal: plaintext must not be empty")

// Key is a 256-bit AES-GCM key. Zero returns it to the zero value so stale
// copies do not linger in memory after rotation.
type Key [KeySize]byte

// GenerateKey returns a fresh, cryptographically random Key.
func GenerateKey() (Key, error) {
	var k Key
	if _, err := rand.Read(k[:]); err != nil {
		return Key{}, fmt.Errorf("cryptoseal: generate key: %w", err)
	}
	return k, nil
}

// Zero overwrites the key material with zeros.
func (k *Key) Zero() {
	if k == nil {
		return
	}
	clear(k[:])
}

// Seal is a keyed AES-256-GCM sealer/opener. The zero value is not usable;
// construct one with NewSeal.
type Seal struct {
	key   Key
	block cipher.Block
	gcm   cipher.AEAD
}

// NewSeal constructs a Seal bound to key. The key is copied; callers remain
// responsible for zeroing their own copy once done with it.
func NewSeal(key Key) (*Seal, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("cryptoseal: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, nonceSize)
	if err != nil {
		return nil, fmt.Errorf("cryptoseal: new gcm: %w", err)
	}
	return &Seal{key: key, block: block, gcm: gcm}, nil
}

// Encrypt seals plaintext, returning nonce‖ciphertext‖tag. aad, when
// non-nil, is authenticated but not encrypted (AEAD associated data).
func (s *Seal) Encrypt(plaintext, aad []byte) ([]byte, error) {
	if len(plaintext) == 0 {
		return nil, ErrEmptyPlaintext
	}
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("cryptoseal: nonce: %w", err)
	}
	return s.gcm.Seal(nonce, nonce, plaintext, aad), nil
}

// Decrypt opens an envelope produced by Encrypt (or any nonce‖ciphertext‖tag
// triple sealed under the same key and aad).
func (s *Seal) Decrypt(envelope, aad []byte) ([]byte, error) {
	if len(envelope) < nonceSize+s.gcm.Overhead() {
		return nil, ErrEnvelopeTooShort
	}
	nonce, ciphertext := envelope[:nonceSize], envelope[nonceSize:]
	plaintext, err := s.gcm.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, ErrOpen
	}
	return plaintext, nil
}

// Destroy zeros the Seal's key material. The Seal must not be used
// afterward.
func (s *Seal) Destroy() {
	if s == nil {
		return
	}
	s.key.Zero()
}

// Rotator holds the live Seal and the previous one, so messages sealed just
// before a rotation can still be opened until the next rotation.
type Rotator struct {
	current  *Seal
	previous *Seal
}

// NewRotator constructs a Rotator seeded with an initial key.
func NewRotator(initial Key) (*Rotator, error) {
	seal, err := NewSeal(initial)
	if err != nil {
		return nil, err
	}
	return &Rotator{current: seal}, nil
}

// Rotate replaces the current key with a freshly generated one, retaining
// the outgoing key as "previous" for one rotation cycle. It returns the new
// key so callers can persist or distribute it.
func (r *Rotator) Rotate() (Key, error) {
	next, err := GenerateKey()
	if err != nil {
		return Key{}, err
	}
	return next, r.RotateTo(next)
}

// RotateTo installs next as the current key explicitly, useful when the key
// is supplied externally (e.g. read from a rotated key file) rather than
// generated in-process.
func (r *Rotator) RotateTo(next Key) error {
	seal, err := NewSeal(next)
	if err != nil {
		return err
	}
	if r.previous != nil {
		r.previous.Destroy()
	}
	r.previous = r.current
	r.current = seal
	return nil
}

// Encrypt seals plaintext under the current key.
func (r *Rotator) Encrypt(plaintext, aad []byte) ([]byte, error) {
	return r.current.Encrypt(plaintext, aad)
}

// Decrypt tries the current key first, falling back to the previous key
// so a rotation in flight does not break readers mid-handover.
func (r *Rotator) Decrypt(envelope, aad []byte) ([]byte, error) {
	plaintext, err := r.current.Decrypt(envelope, aad)
	if err == nil {
		return plaintext, nil
	}
	if r.previous != nil {
		if plaintext, prevErr := r.previous.Decrypt(envelope, aad); prevErr == nil {
			return plaintext, nil
		}
	}
	return nil, err
}

// Destroy zeros both the current and previous key material.
func (r *Rotator) Destroy() {
	if r == nil {
		return
	}
	r.current.Destroy()
	if r.previous != nil {
		r.previous.Destroy()
	}
}
