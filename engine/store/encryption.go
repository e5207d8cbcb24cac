package store

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/cloaked-ai/cloak/engine/core"
	"golang.org/x/crypto/hkdf"
)

// encPrefix versions the ciphertext placeholder format so the scheme can
// rotate without breaking stored conversations.
const encPrefix = "ENC1:"

const gcmNonceSize = 12

// EncryptionStore derives placeholders by encrypting the original text
// instead of storing a mapping. The per-thread key comes from HKDF over the
// thread id, and the GCM nonce is a deterministic MAC of the plaintext, so
// the same original always yields the same placeholder within a thread and
// GetPlaceholder never misses.
//
// Only the set of placeholders seen per thread is held in memory; the
// originals themselves never leave the ciphertext.
type EncryptionStore struct {
	secret []byte

	mu   sync.RWMutex
	seen map[string][]string // thread id -> placeholders in creation order
}

// NewEncryptionStore creates a store keyed by the given secret. The secret
// must be non-empty; thread keys are derived from it.
func NewEncryptionStore(secret []byte) (*EncryptionStore, error) {
	if len(secret) == 0 {
		return nil, core.NewError(
			fmt.Errorf("encryption secret must be non-empty"),
			core.ErrCodeInvalidConfig,
			nil,
		)
	}
	return &EncryptionStore{
		secret: secret,
		seen:   make(map[string][]string),
	}, nil
}

func (s *EncryptionStore) threadKey(thread core.ThreadID) ([]byte, error) {
	reader := hkdf.New(sha256.New, s.secret, thread.Bytes(), []byte("entity-encryption-v1"))
	key := make([]byte, 32)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, core.NewError(fmt.Errorf("deriving thread key: %w", err), core.ErrCodeIntegrity, nil)
	}
	return key, nil
}

func (s *EncryptionStore) encrypt(thread core.ThreadID, plaintext string) (string, error) {
	key, err := s.threadKey(thread)
	if err != nil {
		return "", err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", core.NewError(fmt.Errorf("building cipher: %w", err), core.ErrCodeIntegrity, nil)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", core.NewError(fmt.Errorf("building GCM: %w", err), core.ErrCodeIntegrity, nil)
	}
	// Deterministic SIV-style nonce: identical plaintext encrypts to an
	// identical placeholder, which is what keeps replacement stable.
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(plaintext))
	nonce := mac.Sum(nil)[:gcmNonceSize]
	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return encPrefix + base64.RawURLEncoding.EncodeToString(sealed), nil
}

func (s *EncryptionStore) decrypt(thread core.ThreadID, placeholder string) (string, error) {
	encoded, ok := strings.CutPrefix(placeholder, encPrefix)
	if !ok {
		return "", core.NewError(
			fmt.Errorf("placeholder is not an encrypted value"),
			core.ErrCodeIntegrity,
			map[string]any{"placeholder": placeholder},
		)
	}
	sealed, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return "", core.NewError(fmt.Errorf("decoding ciphertext: %w", err), core.ErrCodeIntegrity, nil)
	}
	if len(sealed) < gcmNonceSize {
		return "", core.NewError(fmt.Errorf("ciphertext too short"), core.ErrCodeIntegrity, nil)
	}
	key, err := s.threadKey(thread)
	if err != nil {
		return "", err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", core.NewError(fmt.Errorf("building cipher: %w", err), core.ErrCodeIntegrity, nil)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", core.NewError(fmt.Errorf("building GCM: %w", err), core.ErrCodeIntegrity, nil)
	}
	plaintext, err := gcm.Open(nil, sealed[:gcmNonceSize], sealed[gcmNonceSize:], nil)
	if err != nil {
		return "", core.NewError(fmt.Errorf("decrypting placeholder: %w", err), core.ErrCodeIntegrity, nil)
	}
	return string(plaintext), nil
}

// Put implements Store. Encrypted placeholders carry their own mapping, so
// there is nothing to record and calling Put indicates a miswired pipeline.
func (s *EncryptionStore) Put(context.Context, core.ThreadID, string, string, string) error {
	return core.NewError(
		fmt.Errorf("encryption store derives placeholders; Put is not supported"),
		core.ErrCodeUnsupportedOp,
		nil,
	)
}

// GetPlaceholder implements Store. It always reports found=true because the
// placeholder is computed, not looked up.
func (s *EncryptionStore) GetPlaceholder(_ context.Context, thread core.ThreadID, original string) (string, bool, error) {
	placeholder, err := s.encrypt(thread, original)
	if err != nil {
		return "", false, err
	}
	s.record(thread, placeholder)
	return placeholder, true, nil
}

// GetOriginal implements Store by decrypting the placeholder. The label is
// not recoverable from ciphertext.
func (s *EncryptionStore) GetOriginal(_ context.Context, thread core.ThreadID, placeholder string) (Mapping, bool, error) {
	if !strings.HasPrefix(placeholder, encPrefix) {
		return Mapping{}, false, nil
	}
	text, err := s.decrypt(thread, placeholder)
	if err != nil {
		return Mapping{}, false, err
	}
	return Mapping{Text: text, Label: "unknown"}, true, nil
}

// IncLabelCounter implements Store. Encrypted placeholders carry no counter.
func (s *EncryptionStore) IncLabelCounter(context.Context, core.ThreadID, string) (int64, error) {
	return 0, core.NewError(
		fmt.Errorf("encryption store has no label counters"),
		core.ErrCodeUnsupportedOp,
		nil,
	)
}

// ListPlaceholders implements Store.
func (s *EncryptionStore) ListPlaceholders(_ context.Context, thread core.ThreadID) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	recorded := s.seen[thread.String()]
	out := make([]string, len(recorded))
	copy(out, recorded)
	return out, nil
}

// Exists implements Store.
func (s *EncryptionStore) Exists(_ context.Context, thread core.ThreadID, placeholder string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.seen[thread.String()] {
		if p == placeholder {
			return true, nil
		}
	}
	return false, nil
}

// Delete implements Store.
func (s *EncryptionStore) Delete(_ context.Context, thread core.ThreadID, placeholder string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := thread.String()
	for i, p := range s.seen[id] {
		if p == placeholder {
			s.seen[id] = append(s.seen[id][:i], s.seen[id][i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

// Clear implements Store.
func (s *EncryptionStore) Clear(_ context.Context, thread core.ThreadID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.seen, thread.String())
	return nil
}

// Snapshot implements Store by decrypting every recorded placeholder.
func (s *EncryptionStore) Snapshot(ctx context.Context, thread core.ThreadID) (map[string]Mapping, error) {
	placeholders, err := s.ListPlaceholders(ctx, thread)
	if err != nil {
		return nil, err
	}
	snapshot := make(map[string]Mapping, len(placeholders))
	for _, placeholder := range placeholders {
		mapping, found, err := s.GetOriginal(ctx, thread, placeholder)
		if err != nil {
			return nil, err
		}
		if found {
			snapshot[placeholder] = mapping
		}
	}
	return snapshot, nil
}

func (s *EncryptionStore) record(thread core.ThreadID, placeholder string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := thread.String()
	for _, p := range s.seen[id] {
		if p == placeholder {
			return
		}
	}
	s.seen[id] = append(s.seen[id], placeholder)
}
