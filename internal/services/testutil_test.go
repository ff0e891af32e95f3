package services

import (
	"fmt"
	"testing"

	"github.com/chronodat-admin/signal-streamer-sub001/internal/database"
	"github.com/chronodat-admin/signal-streamer-sub001/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// setupTestDB initializes a fresh in-memory database for one test
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	require.NoError(t, database.InitDatabase(dsn))
	return database.GetDB()
}

func seedAccount(t *testing.T, db *gorm.DB, plan string) *models.Account {
	t.Helper()
	account := &models.Account{
		Name:     "Test Account",
		Email:    uuid.NewString() + "@example.com",
		Plan:     plan,
		IsActive: true,
	}
	require.NoError(t, db.Create(account).Error)
	return account
}

func seedStrategy(t *testing.T, db *gorm.DB, accountID uint, name string) *models.Strategy {
	t.Helper()
	strategy := &models.Strategy{
		AccountID:    accountID,
		Name:         name,
		WebhookToken: NewWebhookToken(),
		IsActive:     true,
	}
	require.NoError(t, db.Create(strategy).Error)
	return strategy
}

func seedAPIKey(t *testing.T, db *gorm.DB, key *models.ApiKey) *models.ApiKey {
	t.Helper()
	if key.Key == "" {
		key.Key = NewAPIKeyValue()
	}
	require.NoError(t, db.Create(key).Error)
	return key
}

func seedIntegration(t *testing.T, db *gorm.DB, integration *models.Integration) *models.Integration {
	t.Helper()
	if integration.Status == "" {
		integration.Status = models.IntegrationStatusActive
	}
	require.NoError(t, db.Create(integration).Error)
	return integration
}

func testCredential(account *models.Account, strategy *models.Strategy) *ResolvedCredential {
	return &ResolvedCredential{
		AccountID:  account.ID,
		StrategyID: strategy.ID,
		Strategy:   strategy,
	}
}
