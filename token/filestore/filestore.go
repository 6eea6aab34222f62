// Package filestore persists the credential pair in a single JSON file so a
// session survives process restarts.
//
// Every Set writes a complete document to a temporary file in the same
// directory and renames it over the previous one, so a concurrent or
// interrupted reader sees either the old pair or the new pair, never a
// mixture. With a passphrase the pair is sealed with XChaCha20-Poly1305
// under an Argon2id-derived key.
package filestore

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/jrsteele09/go-school-session/token"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	documentVersion = 1
	saltLength      = 16

	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
)

var additionalData = []byte("school-session/credentials/v1")

// ErrEncrypted is returned when the file is sealed and the store has no passphrase
var ErrEncrypted = errors.New("credentials file is encrypted")

var _ token.Store = (*Store)(nil)

type document struct {
	Version     int                `json:"version"`
	Credentials *token.Credentials `json:"credentials,omitempty"`
	Sealed      *sealed            `json:"sealed,omitempty"`
}

type sealed struct {
	Salt       []byte `json:"salt"`
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
}

type Store struct {
	path       string
	passphrase []byte

	lock sync.RWMutex

	keyLock  sync.Mutex
	keySalt  []byte
	keyCache []byte
}

type Option func(*Store)

// WithPassphrase seals the file contents. An empty passphrase leaves the file
// in plain JSON.
func WithPassphrase(passphrase string) Option {
	return func(s *Store) {
		if passphrase != "" {
			s.passphrase = []byte(passphrase)
		}
	}
}

func New(path string, opts ...Option) *Store {
	s := &Store{path: path}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the file the store reads and writes
func (s *Store) Path() string {
	return s.path
}

func (s *Store) Get(_ context.Context) (token.Credentials, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return token.Credentials{}, token.ErrNoCredentials
	}
	if err != nil {
		return token.Credentials{}, fmt.Errorf("[filestore Get] read %s: %w", s.path, err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return token.Credentials{}, fmt.Errorf("[filestore Get] decode %s: %w", s.path, err)
	}

	creds := doc.Credentials
	if doc.Sealed != nil {
		if creds, err = s.open(doc.Sealed); err != nil {
			return token.Credentials{}, err
		}
	}
	if creds == nil || !creds.Valid() {
		return token.Credentials{}, token.ErrNoCredentials
	}
	return *creds, nil
}

func (s *Store) Set(_ context.Context, creds token.Credentials) error {
	if !creds.Valid() {
		return token.ErrIncompleteCredentials
	}

	doc := document{Version: documentVersion}
	if s.passphrase == nil {
		doc.Credentials = &creds
	} else {
		box, err := s.seal(creds)
		if err != nil {
			return err
		}
		doc.Sealed = box
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("[filestore Set] encode: %w", err)
	}

	s.lock.Lock()
	defer s.lock.Unlock()
	return writeAtomic(s.path, data)
}

func (s *Store) Clear(_ context.Context) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("[filestore Clear] remove %s: %w", s.path, err)
	}
	return nil
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("[filestore Set] create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".credentials-*")
	if err != nil {
		return fmt.Errorf("[filestore Set] temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op once renamed

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("[filestore Set] write: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("[filestore Set] sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("[filestore Set] close: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return fmt.Errorf("[filestore Set] chmod: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("[filestore Set] rename: %w", err)
	}
	return nil
}

func (s *Store) seal(creds token.Credentials) (*sealed, error) {
	plaintext, err := json.Marshal(creds)
	if err != nil {
		return nil, fmt.Errorf("[filestore seal] encode: %w", err)
	}

	salt, key, err := s.writeKey()
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("[filestore seal] cipher: %w", err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("[filestore seal] nonce: %w", err)
	}

	return &sealed{
		Salt:       salt,
		Nonce:      nonce,
		Ciphertext: aead.Seal(nil, nonce, plaintext, additionalData),
	}, nil
}

func (s *Store) open(box *sealed) (*token.Credentials, error) {
	if s.passphrase == nil {
		return nil, ErrEncrypted
	}

	aead, err := chacha20poly1305.NewX(s.deriveKey(box.Salt))
	if err != nil {
		return nil, fmt.Errorf("[filestore open] cipher: %w", err)
	}
	if len(box.Nonce) != aead.NonceSize() {
		return nil, fmt.Errorf("[filestore open] invalid nonce length %d", len(box.Nonce))
	}

	plaintext, err := aead.Open(nil, box.Nonce, box.Ciphertext, additionalData)
	if err != nil {
		return nil, fmt.Errorf("[filestore open] wrong passphrase or corrupted file: %w", err)
	}

	var creds token.Credentials
	if err := json.Unmarshal(plaintext, &creds); err != nil {
		return nil, fmt.Errorf("[filestore open] decode: %w", err)
	}
	return &creds, nil
}

// writeKey returns the salt and key used for new writes, generating the salt
// on first use. The derived key is cached per salt.
func (s *Store) writeKey() ([]byte, []byte, error) {
	s.keyLock.Lock()
	defer s.keyLock.Unlock()

	if s.keySalt == nil {
		salt := make([]byte, saltLength)
		if _, err := rand.Read(salt); err != nil {
			return nil, nil, fmt.Errorf("[filestore seal] salt: %w", err)
		}
		s.keySalt = salt
		s.keyCache = argon2.IDKey(s.passphrase, salt, argonTime, argonMemory, argonThreads, chacha20poly1305.KeySize)
	}
	return s.keySalt, s.keyCache, nil
}

func (s *Store) deriveKey(salt []byte) []byte {
	s.keyLock.Lock()
	defer s.keyLock.Unlock()

	if s.keySalt != nil && string(s.keySalt) == string(salt) {
		return s.keyCache
	}
	key := argon2.IDKey(s.passphrase, salt, argonTime, argonMemory, argonThreads, chacha20poly1305.KeySize)
	s.keySalt = append([]byte(nil), salt...)
	s.keyCache = key
	return key
}
