package catalog_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-streamshop/internal/catalog"
)

type productsResponse struct {
	Data       []catalog.Product `json:"data"`
	Pagination struct {
		Page       int `json:"page"`
		PerPage    int `json:"per_page"`
		TotalItems int `json:"total_items"`
	} `json:"pagination"`
}

type productDetailResponse struct {
	Data catalog.Product `json:"data"`
}

type quoteResponse struct {
	Data catalog.ProductQuote `json:"data"`
}

type plansResponse struct {
	Data []catalog.Plan `json:"data"`
}

type planQuoteResponse struct {
	Data catalog.PlanQuote `json:"data"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type fakeCatalogQueries struct {
	products []catalog.ProductRow
	plans    []catalog.PlanRow
}

func matchesFilter(p catalog.ProductRow, f catalog.ListFilter) bool {
	if f.Category != "" && p.Category != f.Category {
		return false
	}
	if f.Query != "" && !strings.Contains(strings.ToLower(p.Name), strings.ToLower(f.Query)) {
		return false
	}
	if f.MinPrice >= 0 && p.BasePrice < f.MinPrice {
		return false
	}
	if f.MaxPrice >= 0 && p.BasePrice > f.MaxPrice {
		return false
	}
	return true
}

func (f *fakeCatalogQueries) ListProducts(_ context.Context, filter catalog.ListFilter) ([]catalog.ProductRow, error) {
	out := []catalog.ProductRow{}
	for _, p := range f.products {
		if matchesFilter(p, filter) {
			out = append(out, p)
		}
	}
	switch filter.Sort {
	case "price_asc":
		sort.Slice(out, func(i, j int) bool { return out[i].BasePrice < out[j].BasePrice })
	case "price_desc":
		sort.Slice(out, func(i, j int) bool { return out[i].BasePrice > out[j].BasePrice })
	}
	if filter.Offset >= len(out) {
		return []catalog.ProductRow{}, nil
	}
	out = out[filter.Offset:]
	if filter.Limit < len(out) {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (f *fakeCatalogQueries) CountProducts(_ context.Context, filter catalog.ListFilter) (int64, error) {
	var total int64
	for _, p := range f.products {
		if matchesFilter(p, filter) {
			total++
		}
	}
	return total, nil
}

func (f *fakeCatalogQueries) GetProductBySlug(_ context.Context, slug string) (catalog.ProductRow, error) {
	for _, p := range f.products {
		if p.Slug == slug {
			return p, nil
		}
	}
	return catalog.ProductRow{}, pgx.ErrNoRows
}

func (f *fakeCatalogQueries) ListPlans(_ context.Context) ([]catalog.PlanRow, error) {
	return f.plans, nil
}

func newFakeCatalogQueries() *fakeCatalogQueries {
	return &fakeCatalogQueries{
		products: []catalog.ProductRow{
			{ID: "11111111-1111-1111-1111-111111111111", Slug: "fire-stick-4k", Name: "Fire Stick 4K", BasePrice: 10000, Currency: "USD", Category: "devices", Active: true},
			{ID: "22222222-2222-2222-2222-222222222222", Slug: "hd-antenna", Name: "HD Antenna", BasePrice: 2599, Currency: "USD", Category: "accessories", Active: true},
		},
		plans: []catalog.PlanRow{
			{
				ID: "33333333-3333-3333-3333-333333333333", Slug: "1-month", Name: "1 Month", DurationMonths: 1,
				DevicePrices: []catalog.PlanPriceRow{
					{Devices: 1, Price: 1500, ProductCode: "iptv-1m-1d"},
					{Devices: 2, Price: 2500, ProductCode: "iptv-1m-2d"},
					{Devices: 3, Price: 3500, ProductCode: "iptv-1m-3d"},
					{Devices: 4, Price: 4500, ProductCode: "iptv-1m-4d"},
					{Devices: 5, Price: 5500, ProductCode: "iptv-1m-5d"},
				},
			},
		},
	}
}

func newTestHandler(t *testing.T) *catalog.Handler {
	t.Helper()
	svc, err := catalog.NewService(catalog.ServiceConfig{
		Queries:      newFakeCatalogQueries(),
		DefaultPage:  1,
		DefaultLimit: 20,
		MaxLimit:     100,
	})
	require.NoError(t, err)
	return catalog.NewHandler(catalog.HandlerConfig{Service: svc})
}

func testRouter(h *catalog.Handler) http.Handler {
	r := chi.NewRouter()
	r.Get("/api/v1/products", h.Products)
	r.Get("/api/v1/products/{slug}", h.ProductDetail)
	r.Get("/api/v1/products/{slug}/quote", h.ProductQuote)
	r.Get("/api/v1/plans", h.Plans)
	r.Get("/api/v1/plans/{slug}/price", h.PlanPrice)
	return r
}

func TestProductsList(t *testing.T) {
	router := testRouter(newTestHandler(t))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/products", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp productsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 2)
	require.Equal(t, 1, resp.Pagination.Page)
	require.Equal(t, 20, resp.Pagination.PerPage)
	require.Equal(t, 2, resp.Pagination.TotalItems)
	require.Equal(t, "25.99", catalogDisplay(t, resp.Data, "hd-antenna"))
}

func catalogDisplay(t *testing.T, items []catalog.Product, slug string) string {
	t.Helper()
	for _, it := range items {
		if it.Slug == slug {
			return it.DisplayPrice
		}
	}
	t.Fatalf("product %s not found", slug)
	return ""
}

func TestProductsListCategoryFilter(t *testing.T) {
	router := testRouter(newTestHandler(t))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/products?category=devices", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp productsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 1)
	require.Equal(t, "fire-stick-4k", resp.Data[0].Slug)
}

func TestProductsListSearchAndPriceFilters(t *testing.T) {
	router := testRouter(newTestHandler(t))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/products?q=antenna", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp productsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 1)
	require.Equal(t, "hd-antenna", resp.Data[0].Slug)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/products?min_price=50.00", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	resp = productsResponse{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 1)
	require.Equal(t, "fire-stick-4k", resp.Data[0].Slug)
}

func TestProductsListSortByPrice(t *testing.T) {
	router := testRouter(newTestHandler(t))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/products?sort=price_desc", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp productsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 2)
	require.Equal(t, "fire-stick-4k", resp.Data[0].Slug)
}

func TestProductsListRejectsBadFilters(t *testing.T) {
	router := testRouter(newTestHandler(t))

	for _, query := range []string{"sort=cheapest", "min_price=abc", "min_price=20.00&max_price=10.00"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/products?"+query, nil))
		require.Equal(t, http.StatusBadRequest, rec.Code, "query=%s", query)
	}
}

func TestProductDetail(t *testing.T) {
	router := testRouter(newTestHandler(t))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/products/fire-stick-4k", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp productDetailResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, int64(10000), resp.Data.Price)
	require.Equal(t, "100.00", resp.Data.DisplayPrice)
}

func TestProductDetailNotFound(t *testing.T) {
	router := testRouter(newTestHandler(t))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/products/nope", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "NOT_FOUND", resp.Error.Code)
}

func TestProductQuote(t *testing.T) {
	router := testRouter(newTestHandler(t))

	cases := []struct {
		qty       string
		wantUnit  int64
		wantTotal int64
		wantSave  int64
		wantLabel string
	}{
		{"1", 10000, 10000, 0, ""},
		{"2", 9000, 18000, 2000, "10% OFF"},
		{"3", 8500, 25500, 4500, "15% OFF"},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/products/fire-stick-4k/quote?qty="+tc.qty, nil))
		require.Equal(t, http.StatusOK, rec.Code)

		var resp quoteResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Equal(t, tc.wantUnit, resp.Data.UnitPrice, "qty=%s", tc.qty)
		require.Equal(t, tc.wantTotal, resp.Data.TotalPrice, "qty=%s", tc.qty)
		require.Equal(t, tc.wantSave, resp.Data.Savings, "qty=%s", tc.qty)
		require.Equal(t, tc.wantLabel, resp.Data.TierLabel, "qty=%s", tc.qty)
	}
}

func TestProductQuoteInvalidQty(t *testing.T) {
	router := testRouter(newTestHandler(t))

	for _, qty := range []string{"0", "-2", "abc", ""} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/products/fire-stick-4k/quote?qty="+qty, nil))
		require.Equal(t, http.StatusBadRequest, rec.Code, "qty=%q", qty)

		var resp errorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Equal(t, "INVALID_QUANTITY", resp.Error.Code)
	}
}

func TestPlansList(t *testing.T) {
	router := testRouter(newTestHandler(t))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/plans", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp plansResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 1)
	require.Len(t, resp.Data[0].DevicePrices, 5)
}

func TestPlanPrice(t *testing.T) {
	router := testRouter(newTestHandler(t))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/plans/1-month/price?devices=3", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp planQuoteResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, int64(3500), resp.Data.Price)
	require.Equal(t, "iptv-1m-3d", resp.Data.ProductCode)
}

func TestPlanPriceUnknownDeviceTier(t *testing.T) {
	router := testRouter(newTestHandler(t))

	for _, devices := range []string{"6", "0"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/plans/1-month/price?devices="+devices, nil))
		require.Equal(t, http.StatusBadRequest, rec.Code, "devices=%s", devices)

		var resp errorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Equal(t, "UNKNOWN_DEVICE_TIER", resp.Error.Code)
	}
}

func TestPlanPriceUnknownPlan(t *testing.T) {
	router := testRouter(newTestHandler(t))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/plans/12-months/price?devices=1", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "UNKNOWN_PLAN", resp.Error.Code)
}

func TestPlanMatrixIncompleteSurfacesConfigError(t *testing.T) {
	queries := newFakeCatalogQueries()
	queries.plans[0].DevicePrices = queries.plans[0].DevicePrices[:4]
	svc, err := catalog.NewService(catalog.ServiceConfig{Queries: queries})
	require.NoError(t, err)
	router := testRouter(catalog.NewHandler(catalog.HandlerConfig{Service: svc}))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/plans/1-month/price?devices=2", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "PLAN_MATRIX_INVALID", resp.Error.Code)
}
