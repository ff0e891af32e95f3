package services

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/chronodat-admin/signal-streamer-sub001/internal/database"
	"github.com/chronodat-admin/signal-streamer-sub001/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AuthService resolves inbound credentials to an account, a target strategy
// and the credential-specific ingestion configuration. It never writes.
type AuthService struct {
	db *gorm.DB
}

// NewAuthService creates a new auth service
func NewAuthService() *AuthService {
	return &AuthService{
		db: database.GetDB(),
	}
}

// ResolvedCredential is the outcome of credential resolution
type ResolvedCredential struct {
	AccountID  uint
	StrategyID uint
	Strategy   *models.Strategy
	Key        *models.ApiKey // nil for the webhook flow
	Mapping    map[string]string
	Defaults   map[string]string
	RateLimit  int // signals/minute, 0 = plan default
}

// ResolveWebhook authenticates the webhook flow: the strategy must exist,
// must not be soft-deleted, and the supplied token must match its secret
func (s *AuthService) ResolveWebhook(strategyID uint, token string) (*ResolvedCredential, error) {
	var strategy models.Strategy
	if err := s.db.Unscoped().First(&strategy, strategyID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrStrategyNotFound
		}
		return nil, fmt.Errorf("failed to query strategy: %w", err)
	}
	if strategy.DeletedAt.Valid {
		return nil, ErrStrategyDeleted
	}
	if subtle.ConstantTimeCompare([]byte(strategy.WebhookToken), []byte(token)) != 1 {
		return nil, ErrInvalidToken
	}

	return &ResolvedCredential{
		AccountID:  strategy.AccountID,
		StrategyID: strategy.ID,
		Strategy:   &strategy,
	}, nil
}

// ResolveAPIKey authenticates the programmatic flow and resolves the target
// strategy, lazily for keys with no bound strategy (oldest active strategy of
// the owning account)
func (s *AuthService) ResolveAPIKey(key string) (*ResolvedCredential, error) {
	if strings.TrimSpace(key) == "" {
		return nil, ErrMissingCredential
	}

	var apiKey models.ApiKey
	if err := s.db.Where("key = ?", key).First(&apiKey).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidAPIKey
		}
		return nil, fmt.Errorf("failed to query api key: %w", err)
	}
	if !apiKey.IsActive {
		return nil, ErrKeyDisabled
	}

	strategy, err := s.resolveStrategy(&apiKey)
	if err != nil {
		return nil, err
	}

	cred := &ResolvedCredential{
		AccountID:  apiKey.AccountID,
		StrategyID: strategy.ID,
		Strategy:   strategy,
		Key:        &apiKey,
		RateLimit:  apiKey.RateLimit,
	}
	if cred.Mapping, err = decodeStringMap(apiKey.Mapping); err != nil {
		return nil, fmt.Errorf("malformed mapping on api key %d: %w", apiKey.ID, err)
	}
	if cred.Defaults, err = decodeStringMap(apiKey.Defaults); err != nil {
		return nil, fmt.Errorf("malformed defaults on api key %d: %w", apiKey.ID, err)
	}

	return cred, nil
}

// resolveStrategy returns the key's bound strategy or, for unbound keys, the
// account's oldest active strategy
func (s *AuthService) resolveStrategy(key *models.ApiKey) (*models.Strategy, error) {
	var strategy models.Strategy
	query := s.db.Where("account_id = ? AND is_active = ?", key.AccountID, true)
	if key.StrategyID != nil {
		query = query.Where("id = ?", *key.StrategyID)
	} else {
		query = query.Order("created_at ASC")
	}
	if err := query.First(&strategy).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNoActiveStrategy
		}
		return nil, fmt.Errorf("failed to resolve strategy: %w", err)
	}
	return &strategy, nil
}

func decodeStringMap(raw []byte) (map[string]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var out map[string]string
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// NewWebhookToken generates an opaque strategy secret
func NewWebhookToken() string {
	return uuid.NewString()
}

// NewAPIKeyValue generates a new programmatic key value
func NewAPIKeyValue() string {
	return "sk_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}
