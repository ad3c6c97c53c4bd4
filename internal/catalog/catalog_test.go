package catalog_test

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OmChaurasia4399/carbonlink-hackathon/internal/catalog"
)

func TestCatalog_ProjectLookup(t *testing.T) {
	c := catalog.New()

	p, err := c.Project(1)
	require.NoError(t, err)
	assert.Equal(t, "Amazon Rainforest Protection", p.Name)
	assert.True(t, p.Price.Equal(decimal.RequireFromString("24.50")))

	_, err = c.Project(99)
	assert.ErrorIs(t, err, catalog.ErrProjectNotFound)
}

func TestCatalog_Listings(t *testing.T) {
	c := catalog.New()

	assert.Len(t, c.Projects(), 3)
	assert.Len(t, c.Companies(), 3)
	assert.Len(t, c.History(), 7)
}

func TestCatalog_ReturnsCopies(t *testing.T) {
	c := catalog.New()

	projects := c.Projects()
	projects[0].Name = "mutated"

	assert.Equal(t, "Amazon Rainforest Protection", c.Projects()[0].Name)
}

func TestCatalog_HTTPHandlers(t *testing.T) {
	c := catalog.New()

	w := httptest.NewRecorder()
	c.ListProjects(w, httptest.NewRequest("GET", "/api/projects", nil))
	require.Equal(t, 200, w.Code)

	var projects []catalog.Project
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &projects))
	require.Len(t, projects, 3)
	assert.Equal(t, "Solar Farm Initiative Kenya", projects[1].Name)

	w = httptest.NewRecorder()
	c.ListCompanies(w, httptest.NewRequest("GET", "/api/companies", nil))
	require.Equal(t, 200, w.Code)

	var companies []catalog.Company
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &companies))
	require.Len(t, companies, 3)
	assert.Equal(t, "GRNT", companies[0].Ticker)

	w = httptest.NewRecorder()
	c.GetHistory(w, httptest.NewRequest("GET", "/api/market/history", nil))
	require.Equal(t, 200, w.Code)

	var history []catalog.PricePoint
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &history))
	require.Len(t, history, 7)
	assert.Equal(t, "Jan 15", history[0].Date)
}
