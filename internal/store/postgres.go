package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/OmChaurasia4399/carbonlink-hackathon/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Migrate creates the ledger schema if it does not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS users (
			id       UUID PRIMARY KEY,
			username TEXT NOT NULL UNIQUE,
			password TEXT NOT NULL,
			balance  NUMERIC(10,2) NOT NULL DEFAULT 5000.00
		);
		CREATE TABLE IF NOT EXISTS portfolios (
			id            UUID PRIMARY KEY,
			user_id       UUID NOT NULL REFERENCES users(id),
			project_id    INTEGER NOT NULL,
			project_name  TEXT NOT NULL,
			credits       BIGINT NOT NULL DEFAULT 0,
			average_price NUMERIC(10,2) NOT NULL,
			UNIQUE (user_id, project_id)
		);
		CREATE TABLE IF NOT EXISTS trades (
			id               UUID PRIMARY KEY,
			user_id          UUID NOT NULL REFERENCES users(id),
			project_id       INTEGER NOT NULL,
			project_name     TEXT NOT NULL,
			type             TEXT NOT NULL,
			credits          BIGINT NOT NULL,
			price_per_credit NUMERIC(10,2) NOT NULL,
			total_amount     NUMERIC(10,2) NOT NULL,
			created_at       TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_trades_user_created
			ON trades (user_id, created_at DESC);
	`)
	if err != nil {
		return fmt.Errorf("migrate ledger schema: %w", err)
	}
	return nil
}

// --- User operations ---

func (s *PostgresStore) CreateUser(ctx context.Context, u *model.User) error {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (id, username, password, balance)
		 VALUES ($1, $2, $3, $4::NUMERIC)`,
		u.ID, u.Username, u.Password, u.Balance.String(),
	)
	return err
}

func (s *PostgresStore) GetUser(ctx context.Context, id string) (*model.User, error) {
	return s.scanUser(s.pool.QueryRow(ctx,
		`SELECT id, username, password, balance::TEXT FROM users WHERE id = $1`, id))
}

func (s *PostgresStore) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	return s.scanUser(s.pool.QueryRow(ctx,
		`SELECT id, username, password, balance::TEXT FROM users WHERE username = $1`, username))
}

func (s *PostgresStore) scanUser(row pgx.Row) (*model.User, error) {
	var u model.User
	var balance string

	err := row.Scan(&u.ID, &u.Username, &u.Password, &balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	u.Balance, _ = decimal.NewFromString(balance)
	return &u, nil
}

func (s *PostgresStore) UpdateUserBalance(ctx context.Context, userID string, balance decimal.Decimal) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE users SET balance = $2::NUMERIC WHERE id = $1`,
		userID, balance.String(),
	)
	if err != nil {
		return fmt.Errorf("update balance for user %s: %w", userID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Position operations ---

func (s *PostgresStore) GetPosition(ctx context.Context, userID string, projectID int) (*model.Position, error) {
	var p model.Position
	var avgPrice string

	err := s.pool.QueryRow(ctx,
		`SELECT id, user_id, project_id, project_name, credits, average_price::TEXT
		 FROM portfolios WHERE user_id = $1 AND project_id = $2`, userID, projectID).
		Scan(&p.ID, &p.UserID, &p.ProjectID, &p.ProjectName, &p.Credits, &avgPrice)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get position user=%s project=%d: %w", userID, projectID, err)
	}

	p.AveragePrice, _ = decimal.NewFromString(avgPrice)
	return &p, nil
}

func (s *PostgresStore) CreatePosition(ctx context.Context, p *model.Position) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO portfolios (id, user_id, project_id, project_name, credits, average_price)
		 VALUES ($1, $2, $3, $4, $5, $6::NUMERIC)`,
		p.ID, p.UserID, p.ProjectID, p.ProjectName, p.Credits, p.AveragePrice.String(),
	)
	return err
}

func (s *PostgresStore) UpdatePosition(ctx context.Context, positionID string, credits int64, averagePrice decimal.Decimal) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE portfolios SET credits = $2, average_price = $3::NUMERIC WHERE id = $1`,
		positionID, credits, averagePrice.String(),
	)
	if err != nil {
		return fmt.Errorf("update position %s: %w", positionID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListPositions(ctx context.Context, userID string) ([]model.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, project_id, project_name, credits, average_price::TEXT
		 FROM portfolios WHERE user_id = $1`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var positions []model.Position
	for rows.Next() {
		var p model.Position
		var avgPrice string
		if err := rows.Scan(&p.ID, &p.UserID, &p.ProjectID, &p.ProjectName, &p.Credits, &avgPrice); err != nil {
			return nil, err
		}
		p.AveragePrice, _ = decimal.NewFromString(avgPrice)
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// --- Immutable trade log ---

func (s *PostgresStore) CreateTrade(ctx context.Context, t *model.Trade) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO trades (id, user_id, project_id, project_name, type, credits, price_per_credit, total_amount, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7::NUMERIC, $8::NUMERIC, $9)`,
		t.ID, t.UserID, t.ProjectID, t.ProjectName, t.Type, t.Credits,
		t.PricePerCredit.String(), t.TotalAmount.String(), t.CreatedAt,
	)
	return err
}

func (s *PostgresStore) ListTrades(ctx context.Context, userID string, limit int) ([]model.Trade, error) {
	if limit <= 0 {
		limit = DefaultTradeLimit
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, project_id, project_name, type, credits,
		        price_per_credit::TEXT, total_amount::TEXT, created_at
		 FROM trades WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`,
		userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []model.Trade
	for rows.Next() {
		var t model.Trade
		var priceS, totalS string
		if err := rows.Scan(&t.ID, &t.UserID, &t.ProjectID, &t.ProjectName, &t.Type,
			&t.Credits, &priceS, &totalS, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.PricePerCredit, _ = decimal.NewFromString(priceS)
		t.TotalAmount, _ = decimal.NewFromString(totalS)
		trades = append(trades, t)
	}
	return trades, rows.Err()
}
