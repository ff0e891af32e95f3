package services

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/chronodat-admin/signal-streamer-sub001/internal/cache"
	"github.com/chronodat-admin/signal-streamer-sub001/internal/config"
	"github.com/chronodat-admin/signal-streamer-sub001/internal/database"
	"github.com/chronodat-admin/signal-streamer-sub001/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	dedupWindow     = 5 * time.Minute
	rateLimitWindow = time.Minute
)

// SignalService persists canonical signals. It applies duplicate suppression
// and per-account rate limiting before insert, keeps the insert idempotent on
// (strategy, external id), and hands accepted signals to the dispatcher
// without blocking the caller.
type SignalService struct {
	db         *gorm.DB
	dispatch   *DispatchService
	plans      config.PlansConfig
	planCache  *cache.TTLCache
	dispatchWG sync.WaitGroup
}

// NewSignalService creates a new signal service
func NewSignalService(dispatch *DispatchService) *SignalService {
	return &SignalService{
		db:        database.GetDB(),
		dispatch:  dispatch,
		planCache: cache.New(time.Minute),
	}
}

// SetConfig sets the plan-tier rate limits
func (s *SignalService) SetConfig(cfg *config.Config) {
	s.plans = cfg.Plans
}

// IngestResult is the outcome of one ingestion attempt
type IngestResult struct {
	Signal      *models.Signal
	Duplicate   bool
	DuplicateOf uint
}

// Ingest runs duplicate suppression, rate limiting and the idempotent insert
// for one resolved credential + canonical field set. Raw is the original
// request body, retained verbatim. Returns a duplicate result (not an error)
// when the signal repeats an existing one.
func (s *SignalService) Ingest(cred *ResolvedCredential, fields *SignalFields, raw []byte) (*IngestResult, error) {
	direction := strings.ToUpper(strings.TrimSpace(fields.Direction))
	symbol := strings.ToUpper(strings.TrimSpace(fields.Symbol))

	// repeated entry/exit alerts within the trailing window are suppressed,
	// not rejected: charting tools re-fire the same alert on every tick
	if dup, err := s.findRecentDuplicate(cred.StrategyID, symbol, direction); err != nil {
		return nil, err
	} else if dup != nil {
		return &IngestResult{Duplicate: true, DuplicateOf: dup.ID}, nil
	}

	if fields.ExternalID != "" {
		if existing, err := s.findByExternalID(cred.StrategyID, fields.ExternalID); err != nil {
			return nil, err
		} else if existing != nil {
			return &IngestResult{Duplicate: true, DuplicateOf: existing.ID}, nil
		}
	}

	if err := s.checkRateLimit(cred); err != nil {
		return nil, err
	}

	signal := &models.Signal{
		AccountID:  cred.AccountID,
		StrategyID: cred.StrategyID,
		Direction:  direction,
		Symbol:     symbol,
		Price:      fields.Price,
		SignalTime: fields.Time,
		Interval:   fields.Interval,
		RawPayload: datatypes.JSON(raw),
		ReceivedAt: time.Now(),
	}
	if fields.ExternalID != "" {
		externalID := fields.ExternalID
		signal.ExternalID = &externalID
	}

	if err := s.db.Create(signal).Error; err != nil {
		// a racing insert with the same external id is a no-op success
		if fields.ExternalID != "" && strings.Contains(err.Error(), "UNIQUE") {
			if existing, qerr := s.findByExternalID(cred.StrategyID, fields.ExternalID); qerr == nil && existing != nil {
				return &IngestResult{Duplicate: true, DuplicateOf: existing.ID}, nil
			}
		}
		return nil, fmt.Errorf("failed to save signal: %w", err)
	}

	s.recordKeyUsage(cred)
	s.submitDispatch(signal)

	return &IngestResult{Signal: signal}, nil
}

// findRecentDuplicate reports an existing signal of the same direction class
// (entry vs. exit) for the same strategy and symbol within the trailing
// window. CLOSE and unclassified directions are never suppressed.
func (s *SignalService) findRecentDuplicate(strategyID uint, symbol, direction string) (*models.Signal, error) {
	class := directionClass(direction)
	if class == "" {
		return nil, nil
	}

	var recent []models.Signal
	err := s.db.Where("strategy_id = ? AND symbol = ? AND received_at > ?",
		strategyID, symbol, time.Now().Add(-dedupWindow)).
		Order("received_at DESC").
		Find(&recent).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query recent signals: %w", err)
	}

	for i := range recent {
		if directionClass(recent[i].Direction) == class {
			return &recent[i], nil
		}
	}
	return nil, nil
}

func (s *SignalService) findByExternalID(strategyID uint, externalID string) (*models.Signal, error) {
	var existing models.Signal
	err := s.db.Where("strategy_id = ? AND external_id = ?", strategyID, externalID).First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query signal by external id: %w", err)
	}
	return &existing, nil
}

// checkRateLimit bounds accepted signals per account within the trailing
// minute. Best-effort over a short window, no locking.
func (s *SignalService) checkRateLimit(cred *ResolvedCredential) error {
	limit := s.limitFor(cred)
	if limit <= 0 {
		return nil
	}

	var count int64
	err := s.db.Model(&models.Signal{}).
		Where("account_id = ? AND received_at > ?", cred.AccountID, time.Now().Add(-rateLimitWindow)).
		Count(&count).Error
	if err != nil {
		return fmt.Errorf("failed to count recent signals: %w", err)
	}

	if count >= int64(limit) {
		return NewServiceError(http.StatusTooManyRequests, "rate_limited",
			fmt.Sprintf("rate limit of %d signals per minute exceeded", limit), ErrRateLimited).
			WithDetail(map[string]interface{}{"retry_after": 60})
	}
	return nil
}

// limitFor returns the credential's own limit or the account's plan default.
// Plan lookups are cached briefly to keep a DB read off the hot path.
func (s *SignalService) limitFor(cred *ResolvedCredential) int {
	if cred.RateLimit > 0 {
		return cred.RateLimit
	}

	cacheKey := fmt.Sprintf("plan-limit:%d", cred.AccountID)
	if v, ok := s.planCache.Get(cacheKey); ok {
		return v.(int)
	}

	var account models.Account
	if err := s.db.First(&account, cred.AccountID).Error; err != nil {
		log.Printf("Failed to load account %d for plan limit: %v", cred.AccountID, err)
		return s.plans.LimitFor(models.PlanFree)
	}
	limit := s.plans.LimitFor(account.Plan)
	s.planCache.Set(cacheKey, limit)
	return limit
}

func (s *SignalService) recordKeyUsage(cred *ResolvedCredential) {
	if cred.Key == nil {
		return
	}
	now := time.Now()
	err := s.db.Model(&models.ApiKey{}).Where("id = ?", cred.Key.ID).
		Updates(map[string]interface{}{
			"usage_count":  gorm.Expr("usage_count + 1"),
			"last_used_at": now,
		}).Error
	if err != nil {
		log.Printf("Failed to record api key usage: %v", err)
	}
}

// submitDispatch hands the stored signal to the dispatcher. The ingesting
// request does not wait for delivery; tests use WaitForDispatch.
func (s *SignalService) submitDispatch(signal *models.Signal) {
	if s.dispatch == nil {
		return
	}
	s.dispatchWG.Add(1)
	go func() {
		defer s.dispatchWG.Done()
		if _, err := s.dispatch.DispatchSignal(signal.ID, signal.StrategyID); err != nil {
			log.Printf("Failed to dispatch signal %d: %v", signal.ID, err)
		}
	}()
}

// WaitForDispatch blocks until all submitted dispatches have completed
func (s *SignalService) WaitForDispatch() {
	s.dispatchWG.Wait()
}

// GetSignal retrieves a signal by ID
func (s *SignalService) GetSignal(id uint) (*models.Signal, error) {
	var signal models.Signal
	if err := s.db.First(&signal, id).Error; err != nil {
		return nil, err
	}
	return &signal, nil
}

// GetStrategySignals retrieves signals for a strategy with pagination
func (s *SignalService) GetStrategySignals(strategyID uint, page, limit int) ([]models.Signal, int64, error) {
	var signals []models.Signal
	var total int64

	query := s.db.Model(&models.Signal{}).Where("strategy_id = ?", strategyID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	if err := query.Offset(offset).Limit(limit).Order("received_at DESC").Find(&signals).Error; err != nil {
		return nil, 0, err
	}

	return signals, total, nil
}

// GetSignalDeliveries retrieves the delivery log entries for a signal
func (s *SignalService) GetSignalDeliveries(signalID uint) ([]models.DeliveryLog, error) {
	var logs []models.DeliveryLog
	err := s.db.Where("signal_id = ?", signalID).Order("created_at ASC").Find(&logs).Error
	return logs, err
}

// directionClass groups directions into entry (BUY/LONG) and exit
// (SELL/SHORT) classes for duplicate suppression
func directionClass(direction string) string {
	switch direction {
	case models.DirectionBuy, models.DirectionLong:
		return "entry"
	case models.DirectionSell, models.DirectionShort:
		return "exit"
	default:
		return ""
	}
}
