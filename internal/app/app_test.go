package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookledger/internal/catalog"
	"bookledger/internal/config"
	"bookledger/internal/domain"
	"bookledger/internal/store/faultstore"
)

func testConfig() config.Config {
	return config.Config{
		BlockedPersonIDs:          []int64{2},
		LoanPeriodMonths:          1,
		RegistrationRatePerMinute: 60,
		RegistrationBurst:         10,
		NationalIDPepper:          "test",
		CORSAllowedOrigins:        []string{"*"},
	}
}

func TestSeededRouter(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, testConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	require.NoError(t, a.Seed(ctx))

	srv := httptest.NewServer(a.Router([]string{"*"}))
	t.Cleanup(srv.Close)
	do := func(method, path, body string) *http.Response {
		req, err := http.NewRequest(method, srv.URL+path, strings.NewReader(body))
		require.NoError(t, err)
		res, err := srv.Client().Do(req)
		require.NoError(t, err)
		t.Cleanup(func() { res.Body.Close() })
		return res
	}

	res := do(http.MethodGet, "/ping", "")
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.NotEmpty(t, res.Header.Get("Content-Type"))

	res = do(http.MethodPost, "/loans", `{"person_id":2,"book_id":1,"quantity":1}`)
	assert.Equal(t, http.StatusForbidden, res.StatusCode)

	res = do(http.MethodPost, "/loans", `{"person_id":1,"book_id":1,"quantity":2}`)
	require.Equal(t, http.StatusCreated, res.StatusCode)

	res = do(http.MethodGet, "/stock", "")
	require.Equal(t, http.StatusOK, res.StatusCode)
	var report catalog.StockReport
	require.NoError(t, json.NewDecoder(res.Body).Decode(&report))
	assert.Equal(t, 6, report.Stock.Total)
	assert.True(t, report.Audit.Consistent())

	res = do(http.MethodGet, "/nowhere", "")
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestCORSPreflight(t *testing.T) {
	a, err := New(context.Background(), testConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	req := httptest.NewRequest(http.MethodOptions, "/books", nil)
	req.Header.Set("Origin", "https://library.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	a.Router([]string{"https://library.example"}).ServeHTTP(rec, req)

	assert.Equal(t, "https://library.example", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCloseIsIdempotent(t *testing.T) {
	a, err := New(context.Background(), testConfig())
	require.NoError(t, err)
	require.NoError(t, a.Close())
	require.NoError(t, a.Close())
}

func TestFaultInjectionFromConfig(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.FaultBlastRadius = 1
	cfg.FaultSeed = 7
	a, err := New(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	_, err = a.Catalog.AddPublisher(ctx, catalog.NewPublisher{Name: "Chilton"})
	require.ErrorIs(t, err, faultstore.ErrInjected)
	assert.Equal(t, domain.KindStorage, domain.KindOf(err))

	books, err := a.Catalog.ListBooks(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, books)

	res := httptest.NewRecorder()
	a.Router([]string{"*"}).ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/publishers", strings.NewReader(`{"name":"Ace"}`)))
	assert.Equal(t, http.StatusInternalServerError, res.Code)
}
