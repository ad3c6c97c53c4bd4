// Package store defines the persistence interface for the ledger service.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (for testing).
package store

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/OmChaurasia4399/carbonlink-hackathon/internal/model"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("store: not found")

// DefaultTradeLimit bounds ListTrades when the caller passes limit <= 0.
const DefaultTradeLimit = 10

// Store is the persistence interface. PostgreSQL is the source of truth;
// Redis provides a read-through cache layer. The store offers no
// transactional guarantee across calls — the trade processor serializes
// the multi-step settlement sequence per user.
type Store interface {
	// --- User operations ---

	// CreateUser persists a new user, assigning an ID if unset.
	CreateUser(ctx context.Context, u *model.User) error

	// GetUser retrieves a user by ID.
	GetUser(ctx context.Context, id string) (*model.User, error)

	// GetUserByUsername retrieves a user by username.
	GetUserByUsername(ctx context.Context, username string) (*model.User, error)

	// UpdateUserBalance overwrites a user's balance.
	UpdateUserBalance(ctx context.Context, userID string, balance decimal.Decimal) error

	// --- Position operations ---

	// GetPosition retrieves the position for one (user, project) pair.
	GetPosition(ctx context.Context, userID string, projectID int) (*model.Position, error)

	// CreatePosition persists a new position, assigning an ID if unset.
	// At most one position exists per (user, project) pair.
	CreatePosition(ctx context.Context, p *model.Position) error

	// UpdatePosition overwrites a position's credits and average price
	// together.
	UpdatePosition(ctx context.Context, positionID string, credits int64, averagePrice decimal.Decimal) error

	// ListPositions returns all positions held by a user, in no
	// particular order.
	ListPositions(ctx context.Context, userID string) ([]model.Position, error)

	// --- Immutable trade log ---

	// CreateTrade appends an immutable trade record, assigning an ID and
	// creation timestamp if unset.
	CreateTrade(ctx context.Context, t *model.Trade) error

	// ListTrades returns a user's trades newest-first, bounded by limit
	// (DefaultTradeLimit when limit <= 0).
	ListTrades(ctx context.Context, userID string, limit int) ([]model.Trade, error)
}
