package trade_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/OmChaurasia4399/carbonlink-hackathon/internal/model"
	"github.com/OmChaurasia4399/carbonlink-hackathon/internal/store"
	"github.com/OmChaurasia4399/carbonlink-hackathon/internal/trade"
)

const testUserID = "11111111-1111-1111-1111-111111111111"

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// newTestEnv creates a Service over an in-memory store seeded with one
// user, wired into a chi router.
func newTestEnv(t *testing.T, balance string) (*store.MemoryStore, chi.Router) {
	t.Helper()
	ms := store.NewMemoryStore()

	user := &model.User{
		ID:       testUserID,
		Username: "demo",
		Password: "x",
		Balance:  d(balance),
	}
	if err := ms.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("failed to seed user: %v", err)
	}

	svc := trade.NewService(ms, testUserID, nil)

	r := chi.NewRouter()
	r.Get("/api/portfolio", svc.GetPortfolio)
	r.Get("/api/trades", svc.GetTrades)
	r.Get("/api/balance", svc.GetBalance)
	r.Post("/api/trade/buy", svc.BuyCredits)
	r.Post("/api/trade/sell", svc.SellCredits)

	return ms, r
}

func doTrade(t *testing.T, router chi.Router, path string, req trade.Request) *httptest.ResponseRecorder {
	t.Helper()
	body, _ := json.Marshal(req)
	httpReq := httptest.NewRequest("POST", path, bytes.NewReader(body))
	httpReq.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httpReq)
	return w
}

func buy(t *testing.T, router chi.Router, req trade.Request) *httptest.ResponseRecorder {
	t.Helper()
	return doTrade(t, router, "/api/trade/buy", req)
}

func sell(t *testing.T, router chi.Router, req trade.Request) *httptest.ResponseRecorder {
	t.Helper()
	return doTrade(t, router, "/api/trade/sell", req)
}

func getPosition(t *testing.T, ms *store.MemoryStore, projectID int) *model.Position {
	t.Helper()
	pos, err := ms.GetPosition(context.Background(), testUserID, projectID)
	if err != nil {
		t.Fatalf("failed to get position: %v", err)
	}
	return pos
}

func getBalance(t *testing.T, ms *store.MemoryStore) decimal.Decimal {
	t.Helper()
	user, err := ms.GetUser(context.Background(), testUserID)
	if err != nil {
		t.Fatalf("failed to get user: %v", err)
	}
	return user.Balance
}

// --- Buy ---

func TestBuy_OpensPosition(t *testing.T) {
	ms, router := newTestEnv(t, "5000.00")

	w := buy(t, router, trade.Request{
		ProjectID: 1, ProjectName: "Amazon Rainforest Protection",
		Credits: 100, PricePerCredit: d("20.00"),
	})

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Success bool        `json:"success"`
		Trade   model.Trade `json:"trade"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)

	if !resp.Success {
		t.Error("expected success=true")
	}
	if resp.Trade.ID == "" {
		t.Error("expected non-empty trade id")
	}
	if resp.Trade.Type != model.TradeTypeBuy {
		t.Errorf("expected type=buy, got %s", resp.Trade.Type)
	}
	if !resp.Trade.TotalAmount.Equal(d("2000.00")) {
		t.Errorf("expected totalAmount=2000.00, got %s", resp.Trade.TotalAmount)
	}

	pos := getPosition(t, ms, 1)
	if pos.Credits != 100 {
		t.Errorf("expected 100 credits, got %d", pos.Credits)
	}
	if !pos.AveragePrice.Equal(d("20.00")) {
		t.Errorf("expected averagePrice=20.00, got %s", pos.AveragePrice)
	}

	if bal := getBalance(t, ms); !bal.Equal(d("3000.00")) {
		t.Errorf("expected balance=3000.00, got %s", bal)
	}
}

func TestBuy_RecomputesWeightedAverage(t *testing.T) {
	ms, router := newTestEnv(t, "5000.00")

	buy(t, router, trade.Request{
		ProjectID: 1, ProjectName: "Amazon Rainforest Protection",
		Credits: 100, PricePerCredit: d("20.00"),
	})
	w := buy(t, router, trade.Request{
		ProjectID: 1, ProjectName: "Amazon Rainforest Protection",
		Credits: 50, PricePerCredit: d("30.00"),
	})

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	// (100*20 + 50*30) / 150 = 23.33
	pos := getPosition(t, ms, 1)
	if pos.Credits != 150 {
		t.Errorf("expected 150 credits, got %d", pos.Credits)
	}
	if !pos.AveragePrice.Equal(d("23.33")) {
		t.Errorf("expected averagePrice=23.33, got %s", pos.AveragePrice)
	}

	if bal := getBalance(t, ms); !bal.Equal(d("1500.00")) {
		t.Errorf("expected balance=1500.00, got %s", bal)
	}
}

func TestBuy_RoundsTotalToCurrencyPrecision(t *testing.T) {
	ms, router := newTestEnv(t, "5000.00")

	w := buy(t, router, trade.Request{
		ProjectID: 2, ProjectName: "Solar Farm Initiative Kenya",
		Credits: 7, PricePerCredit: d("1.115"),
	})

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	// 7 * 1.115 = 7.805 → 7.81
	var resp struct {
		Trade model.Trade `json:"trade"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if !resp.Trade.TotalAmount.Equal(d("7.81")) {
		t.Errorf("expected totalAmount=7.81, got %s", resp.Trade.TotalAmount)
	}
	if bal := getBalance(t, ms); !bal.Equal(d("4992.19")) {
		t.Errorf("expected balance=4992.19, got %s", bal)
	}
}

func TestBuy_InsufficientBalance(t *testing.T) {
	ms, router := newTestEnv(t, "100.00")

	w := buy(t, router, trade.Request{
		ProjectID: 1, ProjectName: "Amazon Rainforest Protection",
		Credits: 100, PricePerCredit: d("20.00"),
	})

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}

	// Nothing mutated.
	if bal := getBalance(t, ms); !bal.Equal(d("100.00")) {
		t.Errorf("balance changed on rejected buy: %s", bal)
	}
	trades, _ := ms.ListTrades(context.Background(), testUserID, 0)
	if len(trades) != 0 {
		t.Errorf("expected no trades recorded, got %d", len(trades))
	}
}

func TestBuy_ExactBalanceAllowed(t *testing.T) {
	ms, router := newTestEnv(t, "2000.00")

	w := buy(t, router, trade.Request{
		ProjectID: 1, ProjectName: "Amazon Rainforest Protection",
		Credits: 100, PricePerCredit: d("20.00"),
	})

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 when balance exactly covers total, got %d: %s", w.Code, w.Body.String())
	}
	if bal := getBalance(t, ms); !bal.Equal(d("0.00")) {
		t.Errorf("expected balance=0.00, got %s", bal)
	}
}

func TestBuy_NegativeCredits(t *testing.T) {
	ms, router := newTestEnv(t, "5000.00")

	w := buy(t, router, trade.Request{
		ProjectID: 1, ProjectName: "Amazon Rainforest Protection",
		Credits: -5, PricePerCredit: d("20.00"),
	})

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for negative credits, got %d", w.Code)
	}
	trades, _ := ms.ListTrades(context.Background(), testUserID, 0)
	if len(trades) != 0 {
		t.Errorf("expected no trades recorded, got %d", len(trades))
	}
}

func TestBuy_MalformedInput(t *testing.T) {
	_, router := newTestEnv(t, "5000.00")

	cases := []struct {
		name string
		req  trade.Request
	}{
		{"zero credits", trade.Request{ProjectID: 1, ProjectName: "P", Credits: 0, PricePerCredit: d("20.00")}},
		{"zero price", trade.Request{ProjectID: 1, ProjectName: "P", Credits: 10, PricePerCredit: decimal.Zero}},
		{"negative price", trade.Request{ProjectID: 1, ProjectName: "P", Credits: 10, PricePerCredit: d("-1.00")}},
		{"missing project name", trade.Request{ProjectID: 1, Credits: 10, PricePerCredit: d("20.00")}},
		{"zero project id", trade.Request{ProjectName: "P", Credits: 10, PricePerCredit: d("20.00")}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if w := buy(t, router, tc.req); w.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d: %s", w.Code, w.Body.String())
			}
		})
	}
}

func TestBuy_UserMissing(t *testing.T) {
	ms := store.NewMemoryStore()
	svc := trade.NewService(ms, "no-such-user", nil)

	r := chi.NewRouter()
	r.Post("/api/trade/buy", svc.BuyCredits)

	w := doTrade(t, r, "/api/trade/buy", trade.Request{
		ProjectID: 1, ProjectName: "P", Credits: 1, PricePerCredit: d("1.00"),
	})
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for missing user, got %d", w.Code)
	}
}

// --- Sell ---

func TestSell_ReducesCreditsKeepsAverage(t *testing.T) {
	ms, router := newTestEnv(t, "5000.00")

	buy(t, router, trade.Request{
		ProjectID: 1, ProjectName: "Amazon Rainforest Protection",
		Credits: 100, PricePerCredit: d("20.00"),
	})
	buy(t, router, trade.Request{
		ProjectID: 1, ProjectName: "Amazon Rainforest Protection",
		Credits: 50, PricePerCredit: d("30.00"),
	})

	w := sell(t, router, trade.Request{
		ProjectID: 1, ProjectName: "Amazon Rainforest Protection",
		Credits: 60, PricePerCredit: d("25.00"),
	})

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	pos := getPosition(t, ms, 1)
	if pos.Credits != 90 {
		t.Errorf("expected 90 credits, got %d", pos.Credits)
	}
	// Average cost basis is not recomputed on disposal.
	if !pos.AveragePrice.Equal(d("23.33")) {
		t.Errorf("expected averagePrice unchanged at 23.33, got %s", pos.AveragePrice)
	}

	// 1500.00 + 60*25.00 = 3000.00
	if bal := getBalance(t, ms); !bal.Equal(d("3000.00")) {
		t.Errorf("expected balance=3000.00, got %s", bal)
	}
}

func TestSell_InsufficientCredits(t *testing.T) {
	ms, router := newTestEnv(t, "5000.00")

	buy(t, router, trade.Request{
		ProjectID: 1, ProjectName: "Amazon Rainforest Protection",
		Credits: 90, PricePerCredit: d("20.00"),
	})

	w := sell(t, router, trade.Request{
		ProjectID: 1, ProjectName: "Amazon Rainforest Protection",
		Credits: 200, PricePerCredit: d("25.00"),
	})

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}

	// No state mutated by the rejected sell.
	pos := getPosition(t, ms, 1)
	if pos.Credits != 90 {
		t.Errorf("position mutated on rejected sell: %d credits", pos.Credits)
	}
	if bal := getBalance(t, ms); !bal.Equal(d("3200.00")) {
		t.Errorf("balance mutated on rejected sell: %s", bal)
	}
	trades, _ := ms.ListTrades(context.Background(), testUserID, 0)
	if len(trades) != 1 {
		t.Errorf("expected only the buy in the log, got %d trades", len(trades))
	}
}

func TestSell_NoPosition(t *testing.T) {
	_, router := newTestEnv(t, "5000.00")

	w := sell(t, router, trade.Request{
		ProjectID: 3, ProjectName: "Wind Energy Expansion India",
		Credits: 10, PricePerCredit: d("24.20"),
	})

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for sell without position, got %d", w.Code)
	}
}

func TestSell_EmptiesPositionButKeepsIt(t *testing.T) {
	ms, router := newTestEnv(t, "5000.00")

	buy(t, router, trade.Request{
		ProjectID: 1, ProjectName: "Amazon Rainforest Protection",
		Credits: 10, PricePerCredit: d("20.00"),
	})
	w := sell(t, router, trade.Request{
		ProjectID: 1, ProjectName: "Amazon Rainforest Protection",
		Credits: 10, PricePerCredit: d("22.00"),
	})

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	// The emptied position row survives with zero credits.
	pos := getPosition(t, ms, 1)
	if pos.Credits != 0 {
		t.Errorf("expected 0 credits, got %d", pos.Credits)
	}
	if !pos.AveragePrice.Equal(d("20.00")) {
		t.Errorf("expected averagePrice=20.00, got %s", pos.AveragePrice)
	}
}

func TestSell_UserMissing(t *testing.T) {
	ms := store.NewMemoryStore()
	svc := trade.NewService(ms, "no-such-user", nil)

	r := chi.NewRouter()
	r.Post("/api/trade/sell", svc.SellCredits)

	w := doTrade(t, r, "/api/trade/sell", trade.Request{
		ProjectID: 1, ProjectName: "P", Credits: 1, PricePerCredit: d("1.00"),
	})
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for missing user, got %d", w.Code)
	}
	trades, _ := ms.ListTrades(context.Background(), "no-such-user", 0)
	if len(trades) != 0 {
		t.Errorf("expected no trades recorded, got %d", len(trades))
	}
}

// --- Trade log ---

func TestTrade_AppendsImmutableRecord(t *testing.T) {
	ms, router := newTestEnv(t, "5000.00")

	buy(t, router, trade.Request{
		ProjectID: 1, ProjectName: "Amazon Rainforest Protection",
		Credits: 100, PricePerCredit: d("20.00"),
	})

	trades, err := ms.ListTrades(context.Background(), testUserID, 0)
	if err != nil {
		t.Fatalf("failed to list trades: %v", err)
	}
	if len(trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(trades))
	}

	tr := trades[0]
	if tr.UserID != testUserID {
		t.Errorf("expected userId=%s, got %s", testUserID, tr.UserID)
	}
	if tr.Type != model.TradeTypeBuy {
		t.Errorf("expected type=buy, got %s", tr.Type)
	}
	want := tr.PricePerCredit.Mul(decimal.NewFromInt(tr.Credits)).Round(2)
	if !tr.TotalAmount.Equal(want) {
		t.Errorf("totalAmount %s != credits*price %s", tr.TotalAmount, want)
	}
	if tr.CreatedAt.IsZero() {
		t.Error("expected non-zero createdAt")
	}
}

func TestGetTrades_NewestFirstWithLimit(t *testing.T) {
	_, router := newTestEnv(t, "5000.00")

	for i := 1; i <= 3; i++ {
		w := buy(t, router, trade.Request{
			ProjectID: i, ProjectName: "Project",
			Credits: int64(i), PricePerCredit: d("10.00"),
		})
		if w.Code != http.StatusOK {
			t.Fatalf("buy %d failed: %d %s", i, w.Code, w.Body.String())
		}
	}

	req := httptest.NewRequest("GET", "/api/trades?limit=2", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var trades []model.Trade
	json.Unmarshal(w.Body.Bytes(), &trades)

	if len(trades) != 2 {
		t.Fatalf("expected 2 trades with limit=2, got %d", len(trades))
	}
	if trades[0].ProjectID != 3 || trades[1].ProjectID != 2 {
		t.Errorf("expected newest-first order, got projects %d, %d",
			trades[0].ProjectID, trades[1].ProjectID)
	}
}

// --- Queries ---

func TestGetPortfolio(t *testing.T) {
	_, router := newTestEnv(t, "5000.00")

	buy(t, router, trade.Request{
		ProjectID: 1, ProjectName: "Amazon Rainforest Protection",
		Credits: 100, PricePerCredit: d("20.00"),
	})
	buy(t, router, trade.Request{
		ProjectID: 2, ProjectName: "Solar Farm Initiative Kenya",
		Credits: 40, PricePerCredit: d("23.80"),
	})

	req := httptest.NewRequest("GET", "/api/portfolio", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var positions []model.Position
	json.Unmarshal(w.Body.Bytes(), &positions)
	if len(positions) != 2 {
		t.Errorf("expected 2 positions, got %d", len(positions))
	}
}

func TestGetPortfolio_Empty(t *testing.T) {
	_, router := newTestEnv(t, "5000.00")

	req := httptest.NewRequest("GET", "/api/portfolio", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if body := w.Body.String(); body != "[]\n" {
		t.Errorf("expected empty JSON array, got %q", body)
	}
}

func TestGetBalance(t *testing.T) {
	_, router := newTestEnv(t, "5000.00")

	req := httptest.NewRequest("GET", "/api/balance", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var resp map[string]string
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["balance"] != "5000.00" {
		t.Errorf("expected balance=5000.00, got %q", resp["balance"])
	}
}

func TestGetBalance_UserMissing(t *testing.T) {
	ms := store.NewMemoryStore()
	svc := trade.NewService(ms, "no-such-user", nil)

	r := chi.NewRouter()
	r.Get("/api/balance", svc.GetBalance)

	req := httptest.NewRequest("GET", "/api/balance", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}
