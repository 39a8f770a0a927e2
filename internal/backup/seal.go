// Package backup seals database backups with a passphrase and recognizes
// SQLite store files.
//
// A sealed backup is laid out as
//
//	magic (8) | salt (16) | nonce (24) | XChaCha20-Poly1305 ciphertext
//
// with the key derived from the passphrase by scrypt.
package backup

import (
	"bytes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/scrypt"
)

const (
	saltSize = 16

	// scrypt cost parameters (interactive login strength)
	scryptN = 1 << 15
	scryptR = 8
	scryptP = 1
)

var (
	sealMagic   = []byte("SISMEDS1")
	sqliteMagic = []byte("SQLite format 3\x00")

	// ErrPassphraseRequired is returned when a sealed backup is opened
	// without a passphrase
	ErrPassphraseRequired = errors.New("backup is sealed: passphrase required")
	// ErrWrongPassphrase is returned when authentication of a sealed backup fails
	ErrWrongPassphrase = errors.New("backup could not be unsealed: wrong passphrase or corrupted file")
	// ErrNotDatabase is returned when restored content is not a SQLite file
	ErrNotDatabase = errors.New("file is not a SISMED database")
)

// IsSealed reports whether data starts with the sealed backup header
func IsSealed(data []byte) bool {
	return bytes.HasPrefix(data, sealMagic)
}

// IsDatabase reports whether data starts with the SQLite file header
func IsDatabase(data []byte) bool {
	return bytes.HasPrefix(data, sqliteMagic)
}

// Sealer encrypts backups. A Sealer with an empty passphrase passes data
// through unchanged.
type Sealer struct {
	passphrase []byte
}

// NewSealer creates a Sealer for passphrase
func NewSealer(passphrase string) *Sealer {
	return &Sealer{passphrase: []byte(passphrase)}
}

// Enabled reports whether backups are sealed
func (s *Sealer) Enabled() bool {
	return s != nil && len(s.passphrase) > 0
}

// Seal encrypts plain. Without a passphrase plain is returned as is.
func (s *Sealer) Seal(plain []byte) ([]byte, error) {
	if !s.Enabled() {
		return plain, nil
	}

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	aead, err := s.aead(salt)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	header := make([]byte, 0, len(sealMagic)+saltSize+len(nonce)+len(plain)+aead.Overhead())
	header = append(header, sealMagic...)
	header = append(header, salt...)
	header = append(header, nonce...)

	// the header is authenticated as associated data
	sealed := aead.Seal(nil, nonce, plain, header)
	return append(header, sealed...), nil
}

// Open decrypts sealed data. Unsealed data is returned unchanged.
func (s *Sealer) Open(data []byte) ([]byte, error) {
	if !IsSealed(data) {
		return data, nil
	}
	if !s.Enabled() {
		return nil, ErrPassphraseRequired
	}

	headerSize := len(sealMagic) + saltSize + chacha20poly1305.NonceSizeX
	if len(data) < headerSize+chacha20poly1305.Overhead {
		return nil, ErrWrongPassphrase
	}
	header := data[:headerSize]
	salt := header[len(sealMagic) : len(sealMagic)+saltSize]
	nonce := header[len(sealMagic)+saltSize:]

	aead, err := s.aead(salt)
	if err != nil {
		return nil, err
	}
	plain, err := aead.Open(nil, nonce, data[headerSize:], header)
	if err != nil {
		return nil, ErrWrongPassphrase
	}
	return plain, nil
}

func (s *Sealer) aead(salt []byte) (cipher.AEAD, error) {
	key, err := scrypt.Key(s.passphrase, salt, scryptN, scryptR, scryptP, chacha20poly1305.KeySize)
	if err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	return aead, nil
}
