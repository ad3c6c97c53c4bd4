// Package model defines the core domain types shared across the ledger
// service. All monetary values use shopspring/decimal — never float64 for
// money. Currency amounts are held at 2 decimal places.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade types.
const (
	TradeTypeBuy  = "buy"
	TradeTypeSell = "sell"
)

// CurrencyPlaces is the number of decimal places for currency amounts.
const CurrencyPlaces = 2

// User is a trading account. Balance is mutated by trade settlement and
// never goes negative after a buy (enforced by the trade processor).
type User struct {
	ID       string          `json:"id" db:"id"`
	Username string          `json:"username" db:"username"`
	Password string          `json:"-" db:"password"` // bcrypt hash, never serialized
	Balance  decimal.Decimal `json:"balance" db:"balance"`
}

// Position is a user's aggregated holding of credits from one carbon
// project, tracked by quantity and weighted-average cost. There is exactly
// one position per (UserID, ProjectID) pair. Credits may reach 0 on a sell;
// emptied positions are kept, not deleted.
type Position struct {
	ID           string          `json:"id" db:"id"`
	UserID       string          `json:"userId" db:"user_id"`
	ProjectID    int             `json:"projectId" db:"project_id"`
	ProjectName  string          `json:"projectName" db:"project_name"`
	Credits      int64           `json:"credits" db:"credits"`
	AveragePrice decimal.Decimal `json:"averagePrice" db:"average_price"`
}

// Trade is an immutable record of a buy or sell execution. Once created,
// trades are never modified or deleted; together they form an append-only
// audit log ordered by CreatedAt.
// Invariant: TotalAmount == Credits * PricePerCredit rounded to 2 places.
type Trade struct {
	ID             string          `json:"id" db:"id"`
	UserID         string          `json:"userId" db:"user_id"`
	ProjectID      int             `json:"projectId" db:"project_id"`
	ProjectName    string          `json:"projectName" db:"project_name"`
	Type           string          `json:"type" db:"type"` // "buy" or "sell"
	Credits        int64           `json:"credits" db:"credits"`
	PricePerCredit decimal.Decimal `json:"pricePerCredit" db:"price_per_credit"`
	TotalAmount    decimal.Decimal `json:"totalAmount" db:"total_amount"`
	CreatedAt      time.Time       `json:"createdAt" db:"created_at"`
}
