// Package catalog serves the static market content backing the trading
// dashboard: the carbon project listing, tracked corporate buyers, and the
// recent price history. The data is a fixed in-process lookup table; a
// live market-data feed would replace this package wholesale.
package catalog

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/shopspring/decimal"
)

// ErrProjectNotFound is returned when no project has the given ID.
var ErrProjectNotFound = errors.New("catalog: project not found")

// Project is a carbon offset project whose credits can be traded.
type Project struct {
	ID               int             `json:"id"`
	Name             string          `json:"name"`
	Region           string          `json:"region"`
	AvailableCredits int64           `json:"availableCredits"`
	Price            decimal.Decimal `json:"price"` // current $ per credit
	Trend            string          `json:"trend"` // "up" or "down"
}

// Company is a corporate participant whose activity moves the market.
type Company struct {
	ID          int     `json:"id"`
	Name        string  `json:"name"`
	Ticker      string  `json:"ticker"`
	ESGScore    int     `json:"esgScore"`
	Sentiment   string  `json:"sentiment"` // "positive", "neutral", "negative"
	PriceImpact float64 `json:"priceImpact"`
	Emissions   int     `json:"emissions"`   // YoY change, percent
	Investments string  `json:"investments"` // green investment volume
}

// PricePoint is one day of the market price series.
type PricePoint struct {
	Date  string          `json:"date"`
	Price decimal.Decimal `json:"price"`
}

// Catalog is a read-only view over the static market content.
type Catalog struct {
	projects  []Project
	companies []Company
	history   []PricePoint
}

// New returns a catalog seeded with the demo market content.
func New() *Catalog {
	return &Catalog{
		projects: []Project{
			{ID: 1, Name: "Amazon Rainforest Protection", Region: "South America",
				AvailableCredits: 125000, Price: decimal.RequireFromString("24.50"), Trend: "up"},
			{ID: 2, Name: "Solar Farm Initiative Kenya", Region: "East Africa",
				AvailableCredits: 85000, Price: decimal.RequireFromString("23.80"), Trend: "up"},
			{ID: 3, Name: "Wind Energy Expansion India", Region: "South Asia",
				AvailableCredits: 95000, Price: decimal.RequireFromString("24.20"), Trend: "down"},
		},
		companies: []Company{
			{ID: 1, Name: "GreenTech Industries", Ticker: "GRNT", ESGScore: 87,
				Sentiment: "positive", PriceImpact: 5.2, Emissions: -12, Investments: "$45M"},
			{ID: 2, Name: "EcoSolutions Corp", Ticker: "ECOS", ESGScore: 72,
				Sentiment: "neutral", PriceImpact: 0.5, Emissions: -8, Investments: "$28M"},
			{ID: 3, Name: "Carbon Neutral Ltd", Ticker: "CARB", ESGScore: 91,
				Sentiment: "positive", PriceImpact: 7.8, Emissions: -18, Investments: "$62M"},
		},
		history: []PricePoint{
			{Date: "Jan 15", Price: decimal.RequireFromString("22.10")},
			{Date: "Jan 16", Price: decimal.RequireFromString("23.00")},
			{Date: "Jan 17", Price: decimal.RequireFromString("22.80")},
			{Date: "Jan 18", Price: decimal.RequireFromString("23.50")},
			{Date: "Jan 19", Price: decimal.RequireFromString("24.20")},
			{Date: "Jan 20", Price: decimal.RequireFromString("24.00")},
			{Date: "Jan 21", Price: decimal.RequireFromString("24.50")},
		},
	}
}

// Projects returns all listed projects.
func (c *Catalog) Projects() []Project {
	out := make([]Project, len(c.projects))
	copy(out, c.projects)
	return out
}

// Project looks up one project by ID.
func (c *Catalog) Project(id int) (Project, error) {
	for _, p := range c.projects {
		if p.ID == id {
			return p, nil
		}
	}
	return Project{}, ErrProjectNotFound
}

// Companies returns the tracked corporate participants.
func (c *Catalog) Companies() []Company {
	out := make([]Company, len(c.companies))
	copy(out, c.companies)
	return out
}

// History returns the recent market price series, oldest first.
func (c *Catalog) History() []PricePoint {
	out := make([]PricePoint, len(c.history))
	copy(out, c.history)
	return out
}

// --- HTTP Handlers ---

// ListProjects handles GET /api/projects.
func (c *Catalog) ListProjects(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, c.Projects())
}

// ListCompanies handles GET /api/companies.
func (c *Catalog) ListCompanies(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, c.Companies())
}

// GetHistory handles GET /api/market/history.
func (c *Catalog) GetHistory(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, c.History())
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
