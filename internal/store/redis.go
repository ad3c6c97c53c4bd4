package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/OmChaurasia4399/carbonlink-hackathon/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache for the hot dashboard reads: user balance and portfolio listing.
// Settlement writes go to the primary store and invalidate the cache; reads
// check Redis first then fall back to the primary.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) CreateUser(ctx context.Context, u *model.User) error {
	if err := s.primary.CreateUser(ctx, u); err != nil {
		return err
	}
	s.cacheUser(ctx, u)
	return nil
}

func (s *CachedStore) UpdateUserBalance(ctx context.Context, userID string, balance decimal.Decimal) error {
	if err := s.primary.UpdateUserBalance(ctx, userID, balance); err != nil {
		return err
	}
	// Invalidate; next read re-populates.
	s.rdb.Del(ctx, userKey(userID))
	return nil
}

func (s *CachedStore) CreatePosition(ctx context.Context, p *model.Position) error {
	if err := s.primary.CreatePosition(ctx, p); err != nil {
		return err
	}
	s.rdb.Del(ctx, portfolioKey(p.UserID))
	return nil
}

func (s *CachedStore) UpdatePosition(ctx context.Context, positionID string, credits int64, averagePrice decimal.Decimal) error {
	if err := s.primary.UpdatePosition(ctx, positionID, credits, averagePrice); err != nil {
		return err
	}
	// The position ID does not carry the owner, so drop the whole
	// portfolio namespace rather than guessing.
	s.invalidatePortfolios(ctx)
	return nil
}

func (s *CachedStore) CreateTrade(ctx context.Context, t *model.Trade) error {
	return s.primary.CreateTrade(ctx, t)
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetUser(ctx context.Context, id string) (*model.User, error) {
	data, err := s.rdb.Get(ctx, userKey(id)).Bytes()
	if err == nil {
		var u cachedUser
		if json.Unmarshal(data, &u) == nil {
			return u.toModel(), nil
		}
	}

	// Cache miss: read from primary.
	u, err := s.primary.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}

	s.cacheUser(ctx, u)
	return u, nil
}

func (s *CachedStore) ListPositions(ctx context.Context, userID string) ([]model.Position, error) {
	data, err := s.rdb.Get(ctx, portfolioKey(userID)).Bytes()
	if err == nil {
		var positions []model.Position
		if json.Unmarshal(data, &positions) == nil {
			return positions, nil
		}
	}

	// Cache miss.
	positions, err := s.primary.ListPositions(ctx, userID)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(positions); err == nil {
		s.rdb.Set(ctx, portfolioKey(userID), data, s.ttl)
	}
	return positions, nil
}

// --- Passthrough (not cached) ---

// GetUserByUsername is a provisioning-time lookup; not worth caching.
func (s *CachedStore) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	return s.primary.GetUserByUsername(ctx, username)
}

// GetPosition sits on the settlement write path and must see fresh rows.
func (s *CachedStore) GetPosition(ctx context.Context, userID string, projectID int) (*model.Position, error) {
	return s.primary.GetPosition(ctx, userID, projectID)
}

func (s *CachedStore) ListTrades(ctx context.Context, userID string, limit int) ([]model.Trade, error) {
	return s.primary.ListTrades(ctx, userID, limit)
}

// --- Cache helpers ---

// cachedUser carries the password hash through the cache; model.User
// excludes it from JSON so a round-trip would drop it.
type cachedUser struct {
	ID       string          `json:"id"`
	Username string          `json:"username"`
	Password string          `json:"password"`
	Balance  decimal.Decimal `json:"balance"`
}

func (c cachedUser) toModel() *model.User {
	return &model.User{ID: c.ID, Username: c.Username, Password: c.Password, Balance: c.Balance}
}

func (s *CachedStore) cacheUser(ctx context.Context, u *model.User) {
	c := cachedUser{ID: u.ID, Username: u.Username, Password: u.Password, Balance: u.Balance}
	if data, err := json.Marshal(c); err == nil {
		s.rdb.Set(ctx, userKey(u.ID), data, s.ttl)
	}
}

func (s *CachedStore) invalidatePortfolios(ctx context.Context) {
	iter := s.rdb.Scan(ctx, 0, "portfolio:*", 0).Iterator()
	for iter.Next(ctx) {
		s.rdb.Del(ctx, iter.Val())
	}
}

func userKey(id string) string       { return fmt.Sprintf("user:%s", id) }
func portfolioKey(uid string) string { return fmt.Sprintf("portfolio:%s", uid) }
