// Package cipher derives the snapshot key from the database password and
// seals snapshot bytes into authenticated Fernet tokens.
//
// Key derivation uses a fixed application salt, so the same password yields
// the same key on every machine and snapshots stay portable. The fixed salt
// is a known weakness: identical passwords across deployments share a key.
// Changing it requires a new token format version, otherwise snapshots
// written by earlier releases can no longer be opened.
package cipher

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/fernet/fernet-go"
	"golang.org/x/crypto/pbkdf2"
)

const (
	// Iterations is the PBKDF2 iteration count.
	Iterations = 1024

	// KeySize is the derived key length in bytes.
	KeySize = 32
)

// salt is embedded in the binary and shared by every installation.
var salt = []byte{0xfa, 0x7a, 0xb5, 0xf2, 0x7c, 0xa1, 0x7a, 0xa9, 0xfe, 0xd1, 0x46, 0x40, 0x31, 0xaa, 0x8a, 0xc2}

// ErrAuthentication is returned when a token fails verification: wrong
// password, tampered bytes or a truncated token. Decryption never returns
// unverified plaintext.
var ErrAuthentication = errors.New("authentication failed: wrong password or corrupted data")

// Key is a derived snapshot key.
type Key struct {
	k fernet.Key
}

// DeriveKey derives the snapshot key from password with PBKDF2-HMAC-SHA256.
func DeriveKey(password []byte) *Key {
	raw := pbkdf2.Key(password, salt, Iterations, KeySize, sha256.New)

	var key Key
	copy(key.k[:], raw)
	return &key
}

// Encrypt seals plaintext into a Fernet token (version, timestamp, random IV,
// ciphertext, HMAC), base64url encoded.
func Encrypt(key *Key, plaintext []byte) ([]byte, error) {
	tok, err := fernet.EncryptAndSign(plaintext, &key.k)
	if err != nil {
		return nil, fmt.Errorf("encrypt: %w", err)
	}
	return tok, nil
}

// Decrypt verifies token and returns its plaintext. Tokens do not expire.
func Decrypt(key *Key, token []byte) ([]byte, error) {
	msg := fernet.VerifyAndDecrypt(token, 0, []*fernet.Key{&key.k})
	if msg == nil {
		return nil, ErrAuthentication
	}
	return msg, nil
}
