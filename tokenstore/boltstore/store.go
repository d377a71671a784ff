// Package boltstore persists the current token pair in an embedded bbolt
// database so that credentials survive process restarts. The stored value is
// a credential, so the pair is sealed at rest with XChaCha20-Poly1305 using a
// key derived from an application secret.
package boltstore

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog/log"
	"go.etcd.io/bbolt"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"github.com/nxank4/go-llct-client/internal/errors"
	"github.com/nxank4/go-llct-client/tokenstore"
)

var (
	bucketName = []byte("tokens")
	currentKey = []byte("current")
	hkdfSalt   = []byte("llct-token-store-v1")
)

var _ tokenstore.Store = (*Store)(nil)

type Store struct {
	db   *bbolt.DB
	aead cipher.AEAD
}

// New opens (or creates) the database at path and derives the sealing key
// from secret. The secret is externally supplied configuration.
func New(path, secret string) (*Store, error) {
	if secret == "" {
		return nil, fmt.Errorf("[boltstore.New] token store secret is required")
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "[boltstore.New] failed to open store at %s", path)
	}

	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, errors.Wrapf(err, "[boltstore.New] failed to create bucket")
	}

	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), hkdfSalt, nil), key); err != nil {
		_ = db.Close()
		return nil, errors.Wrapf(err, "[boltstore.New] key derivation")
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		_ = db.Close()
		return nil, errors.Wrapf(err, "[boltstore.New] cipher init")
	}

	return &Store{db: db, aead: aead}, nil
}

// Get returns the stored pair. Any corruption, unreadable ciphertext (e.g.
// the secret changed) or missing value reads as absent.
func (s *Store) Get() (tokenstore.TokenPair, bool) {
	var sealed []byte
	if err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketName).Get(currentKey)
		if v != nil {
			sealed = make([]byte, len(v))
			copy(sealed, v)
		}
		return nil
	}); err != nil {
		log.Warn().Err(err).Msg("token store read failed")
		return tokenstore.TokenPair{}, false
	}
	if len(sealed) < s.aead.NonceSize() {
		return tokenstore.TokenPair{}, false
	}

	nonce, ciphertext := sealed[:s.aead.NonceSize()], sealed[s.aead.NonceSize():]
	plaintext, err := s.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		log.Warn().Err(err).Msg("token store unseal failed, treating pair as absent")
		return tokenstore.TokenPair{}, false
	}

	var pair tokenstore.TokenPair
	if err := json.Unmarshal(plaintext, &pair); err != nil {
		log.Warn().Err(err).Msg("token store decode failed, treating pair as absent")
		return tokenstore.TokenPair{}, false
	}
	return pair, true
}

// Set replaces the stored pair. Persistence failures are logged, never
// returned: the Store contract is that writes do not fail the caller.
func (s *Store) Set(pair tokenstore.TokenPair) {
	plaintext, err := json.Marshal(pair)
	if err != nil {
		log.Error().Err(err).Msg("token store encode failed, pair not persisted")
		return
	}

	nonce := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		log.Error().Err(err).Msg("token store nonce generation failed, pair not persisted")
		return
	}
	sealed := s.aead.Seal(nonce, nonce, plaintext, nil)

	if err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketName).Put(currentKey, sealed)
	}); err != nil {
		log.Error().Err(err).Msg("token store write failed, pair not persisted")
	}
}

func (s *Store) Clear() {
	if err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketName).Delete(currentKey)
	}); err != nil {
		log.Error().Err(err).Msg("token store clear failed")
	}
}

func (s *Store) Close() error {
	return s.db.Close()
}
