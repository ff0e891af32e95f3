package models

import (
	"time"

	"gorm.io/datatypes"
)

// Signal directions after normalization
const (
	DirectionBuy   = "BUY"
	DirectionSell  = "SELL"
	DirectionLong  = "LONG"
	DirectionShort = "SHORT"
	DirectionClose = "CLOSE"
)

// Signal represents one accepted trading event. Direction and symbol are
// stored upper-cased; the raw payload is retained verbatim for audit.
// A signal is immutable once stored except for ProcessedAt, which is set
// after dispatch completes.
type Signal struct {
	ID          uint           `json:"id" gorm:"primaryKey"`
	AccountID   uint           `json:"account_id" gorm:"not null;index"`
	StrategyID  uint           `json:"strategy_id" gorm:"not null;index;uniqueIndex:idx_strategy_external,priority:1"`
	Direction   string         `json:"direction"` // BUY, SELL, LONG, SHORT, CLOSE
	Symbol      string         `json:"symbol" gorm:"index"`
	Price       float64        `json:"price"`
	SignalTime  time.Time      `json:"signal_time"`
	Interval    string         `json:"interval,omitempty"`
	ExternalID  *string        `json:"external_id,omitempty" gorm:"uniqueIndex:idx_strategy_external,priority:2"`
	RawPayload  datatypes.JSON `json:"raw_payload,omitempty"`
	ReceivedAt  time.Time      `json:"received_at" gorm:"index"`
	ProcessedAt *time.Time     `json:"processed_at,omitempty"`

	// Relations
	Strategy Strategy `json:"strategy,omitempty" gorm:"foreignKey:StrategyID"`
}

// Trade is a closed round-trip trade booked against a strategy. The core only
// reads trades, to build the win-rate snapshot attached to notifications;
// trade pairing itself is a collaborator concern.
type Trade struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	StrategyID uint      `json:"strategy_id" gorm:"not null;index"`
	Symbol     string    `json:"symbol"`
	Direction  string    `json:"direction"`
	EntryPrice float64   `json:"entry_price"`
	ExitPrice  float64   `json:"exit_price"`
	Profitable bool      `json:"profitable"`
	ClosedAt   time.Time `json:"closed_at"`
	CreatedAt  time.Time `json:"created_at"`
}
