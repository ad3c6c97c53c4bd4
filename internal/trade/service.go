// Package trade provides the HTTP handlers and settlement logic for buying
// and selling carbon credits: balance checks, weighted-average cost
// recomputation, and the append-only trade log.
//
// All monetary values use shopspring/decimal — never float64 for money.
package trade

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/OmChaurasia4399/carbonlink-hackathon/internal/metrics"
	"github.com/OmChaurasia4399/carbonlink-hackathon/internal/model"
	"github.com/OmChaurasia4399/carbonlink-hackathon/internal/store"
)

// Service executes trades against the ledger store. Settlement is a
// multi-step read-modify-write sequence with no store-level transaction,
// so the service serializes it with a mutex per user: two concurrent
// trades for the same account cannot clobber each other's position or
// balance writes. For horizontal scaling, replace with database-level
// transactions or distributed locking.
type Service struct {
	store      store.Store
	demoUserID string
	hub        *Hub // optional WebSocket hub for trade-feed broadcasts

	mu    sync.Mutex
	locks map[string]*sync.Mutex // per-user settlement locks
}

// NewService creates a trade service bound to a store. demoUserID is the
// account every HTTP request is scoped to (the API has no auth surface);
// the settlement methods themselves take an explicit userID so real
// multi-user auth can be layered on without touching ledger logic.
// Pass nil for hub if WebSocket broadcasting is not needed.
func NewService(st store.Store, demoUserID string, hub *Hub) *Service {
	return &Service{
		store:      st,
		demoUserID: demoUserID,
		hub:        hub,
		locks:      make(map[string]*sync.Mutex),
	}
}

// userLock returns the settlement mutex for one user, creating it on
// first use. Lock instances are never removed; the user population here
// is a single demo account.
func (s *Service) userLock(userID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[userID] = l
	}
	return l
}

// --- Request/Response types ---

// Request is the JSON body for POST /api/trade/buy and /api/trade/sell.
// PricePerCredit accepts a quoted decimal string (the canonical client
// encoding) or a bare JSON number.
type Request struct {
	ProjectID      int             `json:"projectId"`
	ProjectName    string          `json:"projectName"`
	Credits        int64           `json:"credits"`
	PricePerCredit decimal.Decimal `json:"pricePerCredit"`
}

func (r Request) validate() error {
	if r.ProjectID <= 0 {
		return fmt.Errorf("%w: projectId must be a positive integer", ErrInvalidTrade)
	}
	if r.ProjectName == "" {
		return fmt.Errorf("%w: projectName is required", ErrInvalidTrade)
	}
	if r.Credits <= 0 {
		return fmt.Errorf("%w: credits must be a positive integer", ErrInvalidTrade)
	}
	if r.PricePerCredit.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("%w: pricePerCredit must be a positive number", ErrInvalidTrade)
	}
	return nil
}

// total is the settlement amount, rounded to currency precision.
func (r Request) total() decimal.Decimal {
	return r.PricePerCredit.Mul(decimal.NewFromInt(r.Credits)).Round(model.CurrencyPlaces)
}

// --- Settlement ---

// Buy validates and settles a purchase for one user: appends the trade
// record, creates or re-averages the position, and deducts the total from
// the cash balance.
func (s *Service) Buy(ctx context.Context, userID string, req Request) (*model.Trade, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	l := s.userLock(userID)
	l.Lock()
	defer l.Unlock()

	totalAmount := req.total()

	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("load user %s: %w", userID, err)
	}

	if user.Balance.LessThan(totalAmount) {
		return nil, ErrInsufficientBalance
	}

	t := &model.Trade{
		UserID:         userID,
		ProjectID:      req.ProjectID,
		ProjectName:    req.ProjectName,
		Type:           model.TradeTypeBuy,
		Credits:        req.Credits,
		PricePerCredit: req.PricePerCredit,
		TotalAmount:    totalAmount,
	}
	if err := s.store.CreateTrade(ctx, t); err != nil {
		return nil, fmt.Errorf("record buy trade: %w", err)
	}

	pos, err := s.store.GetPosition(ctx, userID, req.ProjectID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		// First buy for this project: the position starts at the
		// trade price.
		pos = &model.Position{
			UserID:       userID,
			ProjectID:    req.ProjectID,
			ProjectName:  req.ProjectName,
			Credits:      req.Credits,
			AveragePrice: req.PricePerCredit,
		}
		if err := s.store.CreatePosition(ctx, pos); err != nil {
			return nil, s.partialFailure(t, fmt.Errorf("create position: %w", err))
		}
	case err != nil:
		return nil, s.partialFailure(t, fmt.Errorf("load position: %w", err))
	default:
		newCredits := pos.Credits + req.Credits
		if newCredits <= 0 {
			// Unreachable for a buy; guards future arithmetic changes.
			return nil, s.partialFailure(t, fmt.Errorf("%w: invalid credit total", ErrInvalidTrade))
		}
		newAverage := averageCost(pos.AveragePrice, pos.Credits, totalAmount, newCredits)
		if err := s.store.UpdatePosition(ctx, pos.ID, newCredits, newAverage); err != nil {
			return nil, s.partialFailure(t, fmt.Errorf("update position: %w", err))
		}
	}

	newBalance := user.Balance.Sub(totalAmount)
	if err := s.store.UpdateUserBalance(ctx, userID, newBalance); err != nil {
		return nil, s.partialFailure(t, fmt.Errorf("deduct balance: %w", err))
	}

	s.settled(t, newBalance)
	return t, nil
}

// Sell validates and settles a disposal: the position's credits shrink by
// the sold quantity, its average price stays unchanged (weighted-average
// accounting recomputes cost basis only on acquisition), and the proceeds
// are credited to the cash balance. Emptied positions are kept at zero
// credits, not deleted.
func (s *Service) Sell(ctx context.Context, userID string, req Request) (*model.Trade, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	l := s.userLock(userID)
	l.Lock()
	defer l.Unlock()

	// Load the user up front: a sell against a missing account fails the
	// whole request rather than recording a trade whose proceeds would
	// have nowhere to land.
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("load user %s: %w", userID, err)
	}

	pos, err := s.store.GetPosition(ctx, userID, req.ProjectID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInsufficientCredits
		}
		return nil, fmt.Errorf("load position: %w", err)
	}
	if pos.Credits < req.Credits {
		return nil, ErrInsufficientCredits
	}

	totalAmount := req.total()

	t := &model.Trade{
		UserID:         userID,
		ProjectID:      req.ProjectID,
		ProjectName:    req.ProjectName,
		Type:           model.TradeTypeSell,
		Credits:        req.Credits,
		PricePerCredit: req.PricePerCredit,
		TotalAmount:    totalAmount,
	}
	if err := s.store.CreateTrade(ctx, t); err != nil {
		return nil, fmt.Errorf("record sell trade: %w", err)
	}

	remaining := pos.Credits - req.Credits
	if err := s.store.UpdatePosition(ctx, pos.ID, remaining, pos.AveragePrice); err != nil {
		return nil, s.partialFailure(t, fmt.Errorf("update position: %w", err))
	}

	newBalance := user.Balance.Add(totalAmount)
	if err := s.store.UpdateUserBalance(ctx, userID, newBalance); err != nil {
		return nil, s.partialFailure(t, fmt.Errorf("credit balance: %w", err))
	}

	s.settled(t, newBalance)
	return t, nil
}

// averageCost recomputes the weighted-average cost basis after a buy,
// rounded to currency precision.
func averageCost(prevAverage decimal.Decimal, prevCredits int64, addedCost decimal.Decimal, newCredits int64) decimal.Decimal {
	prevValue := prevAverage.Mul(decimal.NewFromInt(prevCredits))
	return prevValue.Add(addedCost).
		Div(decimal.NewFromInt(newCredits)).
		Round(model.CurrencyPlaces)
}

// partialFailure logs a settlement that aborted after the trade record
// was already appended. The log is append-only, so the record stays; the
// ledger is inconsistent until the position/balance writes are repaired.
func (s *Service) partialFailure(t *model.Trade, err error) error {
	slog.Error("settlement aborted after trade recorded; ledger inconsistent",
		"trade_id", t.ID,
		"user", t.UserID,
		"project_id", t.ProjectID,
		"type", t.Type,
		"err", err,
	)
	return err
}

// settled records metrics, logs, and broadcasts one completed trade.
func (s *Service) settled(t *model.Trade, newBalance decimal.Decimal) {
	metrics.TradesTotal.WithLabelValues(t.Type).Inc()

	slog.Info("trade settled",
		"trade_id", t.ID,
		"user", t.UserID,
		"project_id", t.ProjectID,
		"type", t.Type,
		"credits", t.Credits,
		"price_per_credit", t.PricePerCredit.String(),
		"total_amount", t.TotalAmount.String(),
		"balance", newBalance.String(),
	)

	if s.hub != nil {
		s.hub.Broadcast(Event{
			Type:           "trade_executed",
			TradeID:        t.ID,
			ProjectID:      t.ProjectID,
			ProjectName:    t.ProjectName,
			TradeType:      t.Type,
			Credits:        t.Credits,
			PricePerCredit: t.PricePerCredit.String(),
			TotalAmount:    t.TotalAmount.String(),
		})
	}
}

// --- HTTP Handlers ---

// tradeResponse is the JSON body returned from the buy/sell endpoints.
type tradeResponse struct {
	Success bool         `json:"success"`
	Trade   *model.Trade `json:"trade"`
}

// BuyCredits handles POST /api/trade/buy.
func (s *Service) BuyCredits(w http.ResponseWriter, r *http.Request) {
	s.handleTrade(w, r, model.TradeTypeBuy)
}

// SellCredits handles POST /api/trade/sell.
func (s *Service) SellCredits(w http.ResponseWriter, r *http.Request) {
	s.handleTrade(w, r, model.TradeTypeSell)
}

func (s *Service) handleTrade(w http.ResponseWriter, r *http.Request, tradeType string) {
	start := time.Now()

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		metrics.TradeRejections.WithLabelValues("malformed_body").Inc()
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	var (
		t   *model.Trade
		err error
	)
	if tradeType == model.TradeTypeBuy {
		t, err = s.Buy(r.Context(), s.demoUserID, req)
	} else {
		t, err = s.Sell(r.Context(), s.demoUserID, req)
	}
	if err != nil {
		s.writeTradeError(w, err)
		return
	}

	metrics.TradeLatency.WithLabelValues(tradeType).Observe(time.Since(start).Seconds())

	writeJSON(w, http.StatusOK, tradeResponse{Success: true, Trade: t})
}

// writeTradeError maps processor errors to HTTP status codes. Unexpected
// failures are logged server-side and surfaced without detail.
func (s *Service) writeTradeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidTrade):
		metrics.TradeRejections.WithLabelValues("validation").Inc()
		writeError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, ErrInsufficientBalance):
		metrics.TradeRejections.WithLabelValues("insufficient_balance").Inc()
		writeError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, ErrInsufficientCredits):
		metrics.TradeRejections.WithLabelValues("insufficient_credits").Inc()
		writeError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, ErrUserNotFound):
		writeError(w, err.Error(), http.StatusNotFound)
	default:
		slog.Error("trade failed", "err", err)
		writeError(w, "failed to process trade", http.StatusInternalServerError)
	}
}

// GetPortfolio handles GET /api/portfolio.
func (s *Service) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	positions, err := s.store.ListPositions(r.Context(), s.demoUserID)
	if err != nil {
		slog.Error("failed to list positions", "err", err)
		writeError(w, "failed to fetch portfolio", http.StatusInternalServerError)
		return
	}
	if positions == nil {
		positions = []model.Position{}
	}

	writeJSON(w, http.StatusOK, positions)
}

// GetTrades handles GET /api/trades?limit=N.
func (s *Service) GetTrades(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, _ = strconv.Atoi(v)
	}

	trades, err := s.store.ListTrades(r.Context(), s.demoUserID, limit)
	if err != nil {
		slog.Error("failed to list trades", "err", err)
		writeError(w, "failed to fetch trades", http.StatusInternalServerError)
		return
	}
	if trades == nil {
		trades = []model.Trade{}
	}

	writeJSON(w, http.StatusOK, trades)
}

// GetBalance handles GET /api/balance.
func (s *Service) GetBalance(w http.ResponseWriter, r *http.Request) {
	user, err := s.store.GetUser(r.Context(), s.demoUserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, ErrUserNotFound.Error(), http.StatusNotFound)
			return
		}
		slog.Error("failed to load user", "err", err)
		writeError(w, "failed to fetch balance", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"balance": user.Balance.StringFixed(model.CurrencyPlaces),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}
