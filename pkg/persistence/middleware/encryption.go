package middleware

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/ports"
)

// encryptedKey marks the envelope field carrying the ciphertext.
const encryptedKey = "__encrypted__"

// EncryptionConfig holds the keys for encryption and decryption.
type EncryptionConfig struct {
	// ActiveKey is the key used for encrypting new data.
	// Must be 32 bytes for AES-256.
	ActiveKey []byte

	// FallbackKeys is a list of old keys to try when decryption fails.
	// This enables zero-downtime key rotation.
	FallbackKeys [][]byte
}

type encryptionMiddleware struct {
	next   ports.RunStore
	config EncryptionConfig
}

// NewEncryptionMiddleware creates a middleware that encrypts run records
// using AES-GCM. The stored envelope keeps only the fields needed for
// listing and lookup (run ID, session, status, timing); the command
// identity and everything the run emitted are hidden in the ciphertext.
func NewEncryptionMiddleware(config EncryptionConfig) Middleware {
	if len(config.ActiveKey) != 32 {
		panic("active key must be 32 bytes (AES-256)")
	}
	return func(next ports.RunStore) ports.RunStore {
		return &encryptionMiddleware{
			next:   next,
			config: config,
		}
	}
}

func (m *encryptionMiddleware) Save(ctx context.Context, rec domain.Record) error {
	plainText, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	ciphertext, err := encrypt(plainText, m.config.ActiveKey)
	if err != nil {
		return fmt.Errorf("failed to encrypt record: %w", err)
	}

	envelope := domain.Record{
		RunID:      rec.RunID,
		Session:    rec.Session,
		Command:    "encrypted",
		Status:     rec.Status,
		StartedAt:  rec.StartedAt,
		DurationMS: rec.DurationMS,
		Args: domain.Args{
			encryptedKey: base64.StdEncoding.EncodeToString(ciphertext),
		},
	}
	return m.next.Save(ctx, envelope)
}

func (m *encryptionMiddleware) Load(ctx context.Context, runID string) (domain.Record, error) {
	envelope, err := m.next.Load(ctx, runID)
	if err != nil {
		return domain.Record{}, err
	}
	return m.open(envelope)
}

func (m *encryptionMiddleware) List(ctx context.Context, session string) ([]domain.Record, error) {
	envelopes, err := m.next.List(ctx, session)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Record, 0, len(envelopes))
	for _, env := range envelopes {
		rec, err := m.open(env)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (m *encryptionMiddleware) Delete(ctx context.Context, runID string) error {
	return m.next.Delete(ctx, runID)
}

func (m *encryptionMiddleware) open(envelope domain.Record) (domain.Record, error) {
	encoded, ok := envelope.Args[encryptedKey].(string)
	if !ok {
		// Stored before encryption was enabled; pass through.
		return envelope, nil
	}
	ciphertext, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return domain.Record{}, fmt.Errorf("corrupt envelope: %w", err)
	}

	plainText, err := m.decryptWithRotation(ciphertext)
	if err != nil {
		return domain.Record{}, err
	}

	var rec domain.Record
	if err := json.Unmarshal(plainText, &rec); err != nil {
		return domain.Record{}, fmt.Errorf("failed to unmarshal record: %w", err)
	}
	return rec, nil
}

// decryptWithRotation tries the active key first, then each fallback.
func (m *encryptionMiddleware) decryptWithRotation(ciphertext []byte) ([]byte, error) {
	plain, err := decrypt(ciphertext, m.config.ActiveKey)
	if err == nil {
		return plain, nil
	}
	for _, key := range m.config.FallbackKeys {
		if plain, err := decrypt(ciphertext, key); err == nil {
			return plain, nil
		}
	}
	return nil, errors.New("failed to decrypt record with any known key")
}

func encrypt(plain, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plain, nil), nil
}

func decrypt(data, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	if len(data) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}
	nonce, ciphertext := data[:gcm.NonceSize()], data[gcm.NonceSize():]
	return gcm.Open(nil, nonce, ciphertext, nil)
}
