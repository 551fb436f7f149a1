// Package auth manages API keys. Raw keys are handed out once at creation;
// only the bcrypt hash is stored, and lookup goes through the key prefix.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/priyamshenoy/dataforge/internal/store"
	"github.com/priyamshenoy/dataforge/pkg/models"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrKeyNotFound = errors.New("api key not found")
	ErrValidation  = errors.New("invalid api key request")
)

const rawKeyPrefix = "df_"

// KeyService creates, lists, and revokes API keys in the document store.
type KeyService struct {
	store store.DocumentStore
	now   func() time.Time
}

// NewKeyService creates a KeyService.
func NewKeyService(s store.DocumentStore) *KeyService {
	return &KeyService{store: s, now: time.Now}
}

// CreatedKey pairs the stored record with the raw key, which is only
// available at creation time.
type CreatedKey struct {
	Key    models.APIKey
	RawKey string
}

// Create mints a new key for the customer. The raw key is returned exactly
// once; afterwards only its bcrypt hash exists.
func (k *KeyService) Create(ctx context.Context, customerID uuid.UUID, name string, scopes []string) (CreatedKey, error) {
	if customerID == uuid.Nil {
		return CreatedKey{}, fmt.Errorf("%w: customerId is required", ErrValidation)
	}
	if name == "" {
		return CreatedKey{}, fmt.Errorf("%w: name is required", ErrValidation)
	}

	rawKey, err := generateRawKey()
	if err != nil {
		return CreatedKey{}, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(rawKey), bcrypt.DefaultCost)
	if err != nil {
		return CreatedKey{}, fmt.Errorf("hash api key: %w", err)
	}

	now := k.now().UTC()
	key := models.APIKey{
		ID:         uuid.New(),
		CustomerID: customerID,
		Name:       name,
		KeyHash:    string(hash),
		KeyPrefix:  rawKey[:8],
		Scopes:     scopes,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	doc, err := store.Encode(key)
	if err != nil {
		return CreatedKey{}, err
	}
	if _, err := k.store.CreateDocument(ctx, store.APIKeyPath(key.ID), doc); err != nil {
		return CreatedKey{}, fmt.Errorf("persist api key: %w", err)
	}
	return CreatedKey{Key: key, RawKey: rawKey}, nil
}

// List returns the customer's keys. Hashes are cleared before return.
func (k *KeyService) List(ctx context.Context, customerID uuid.UUID) ([]models.APIKey, error) {
	docs, err := k.store.QueryDocuments(ctx, store.APIKeyCollection, []store.Condition{
		{Field: "customerId", Operator: store.OpEqual, Value: customerID},
	})
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}

	keys := make([]models.APIKey, 0, len(docs))
	for _, doc := range docs {
		var key models.APIKey
		if err := store.Decode(doc, &key); err != nil {
			return nil, err
		}
		key.KeyHash = ""
		keys = append(keys, key)
	}
	return keys, nil
}

// Revoke marks a key revoked. The caller must own it. Revoked keys fail
// authentication but remain listed.
func (k *KeyService) Revoke(ctx context.Context, id, customerID uuid.UUID) error {
	doc, err := k.store.GetDocument(ctx, store.APIKeyPath(id))
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrKeyNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("load api key: %w", err)
	}

	var key models.APIKey
	if err := store.Decode(doc, &key); err != nil {
		return err
	}
	if key.CustomerID != customerID {
		return fmt.Errorf("%w: %s", ErrKeyNotFound, id)
	}

	now := k.now().UTC().Format(time.RFC3339)
	if err := k.store.UpdateDocument(ctx, store.APIKeyPath(id), map[string]any{
		"revokedAt": now,
		"updatedAt": now,
	}); err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	return nil
}

func generateRawKey() (string, error) {
	buf := make([]byte, 20)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate api key: %w", err)
	}
	return rawKeyPrefix + hex.EncodeToString(buf), nil
}
