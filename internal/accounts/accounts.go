// Package accounts manages doctors and the API keys they authenticate with.
package accounts

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/mail"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/ayupilot/internal/clinic"
	"github.com/kiranshivaraju/ayupilot/internal/store"
	"github.com/kiranshivaraju/ayupilot/pkg/models"
	"golang.org/x/crypto/bcrypt"
)

const (
	keyPrefix    = "ayu_"
	keySecretLen = 24
	// PrefixLen matches the lookup prefix used by the auth middleware.
	PrefixLen = 8
)

// Scopes an API key may carry.
const (
	ScopeRead  = "read"
	ScopeWrite = "write"
	ScopeAdmin = "admin"
)

var knownScopes = []string{ScopeRead, ScopeWrite, ScopeAdmin}

// Service creates doctors and issues, lists and revokes their keys.
type Service struct {
	store store.Store
	cost  int
	now   func() time.Time
}

func New(st store.Store) *Service {
	return &Service{store: st, cost: bcrypt.DefaultCost, now: time.Now}
}

// IssuedKey is returned once, at creation. Key is the only copy of the secret.
type IssuedKey struct {
	Key    string         `json:"key"`
	APIKey *models.APIKey `json:"api_key"`
}

// CreateDoctor registers a practitioner account.
func (s *Service) CreateDoctor(ctx context.Context, email, name string) (*models.User, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(email))
	if err != nil {
		return nil, clinic.Invalid("email", "Enter a valid email address.")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, clinic.Invalid("name", "name is required.")
	}

	now := s.now().UTC()
	u := &models.User{
		ID:        uuid.New(),
		Email:     strings.ToLower(addr.Address),
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateUser(ctx, u); err != nil {
		if errors.Is(err, store.ErrDuplicateKey) {
			return nil, clinic.Invalid("email", "A user with this email already exists.")
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

// CreateKey issues a new key for userID. Scopes default to read and write.
func (s *Service) CreateKey(ctx context.Context, userID uuid.UUID, name string, scopes []string) (*IssuedKey, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, clinic.Invalid("name", "name is required.")
	}
	if len(scopes) == 0 {
		scopes = []string{ScopeRead, ScopeWrite}
	}
	for _, sc := range scopes {
		if !slices.Contains(knownScopes, sc) {
			return nil, clinic.Invalid("scopes", fmt.Sprintf("Unknown scope %q.", sc))
		}
	}
	if _, err := s.store.GetUser(ctx, userID); err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}

	raw, err := newSecret()
	if err != nil {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(raw), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash key: %w", err)
	}

	now := s.now().UTC()
	key := &models.APIKey{
		ID:        uuid.New(),
		UserID:    userID,
		Name:      name,
		KeyHash:   string(hash),
		KeyPrefix: raw[:PrefixLen],
		Scopes:    slices.Compact(slices.Sorted(slices.Values(scopes))),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateAPIKey(ctx, key); err != nil {
		return nil, fmt.Errorf("create api key: %w", err)
	}
	return &IssuedKey{Key: raw, APIKey: key}, nil
}

func (s *Service) ListKeys(ctx context.Context, userID uuid.UUID) ([]*models.APIKey, error) {
	return s.store.ListAPIKeys(ctx, userID)
}

// RevokeKey soft-deletes one of userID's keys.
func (s *Service) RevokeKey(ctx context.Context, userID, keyID uuid.UUID) error {
	return s.store.RevokeAPIKey(ctx, keyID, userID)
}

func newSecret() (string, error) {
	buf := make([]byte, keySecretLen)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate key: %w", err)
	}
	return keyPrefix + hex.EncodeToString(buf), nil
}
