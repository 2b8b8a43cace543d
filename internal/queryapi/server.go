// Package queryapi exposes a query.Store as a small JSON HTTP API.
//
// Routes:
//
//	GET   /healthz                              → liveness
//	GET   /api/product-sales?start=&end=        → orders containing matching products
//	GET   /api/customers/{id}/orders            → purchase history of a customer
//	GET   /api/categories/{id}/top-products     → best sellers of a category
//	GET   /api/sales-trends?start=&end=&interval=day|week|month
//	PATCH /api/products/{id}                    → {"name": "...", "price": "12.50"}
//
// Listing routes accept limit, offset, sort_by and sort_order. Dates are
// YYYY-MM-DD or RFC 3339.
package queryapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"shopetl/internal/query"
)

// Config controls server startup.
type Config struct {
	Addr string
}

// Server routes HTTP requests to a query.Store.
type Server struct {
	cfg   Config
	mux   *http.ServeMux
	store query.Store
}

// NewServer constructs a Server with its routes registered.
func NewServer(cfg Config, store query.Store) *Server {
	s := &Server{cfg: cfg, mux: http.NewServeMux(), store: store}
	s.routes()
	return s
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.mux }

// ListenAndServe serves until ctx is canceled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	log.Printf("queryapi: listening addr=%s", s.cfg.Addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	}
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	s.mux.HandleFunc("GET /api/product-sales", s.handleProductSales)
	s.mux.HandleFunc("GET /api/customers/{id}/orders", s.handleHistory)
	s.mux.HandleFunc("GET /api/categories/{id}/top-products", s.handleTopProducts)
	s.mux.HandleFunc("GET /api/sales-trends", s.handleTrends)
	s.mux.HandleFunc("PATCH /api/products/{id}", s.handleUpdateProduct)
}

func (s *Server) handleProductSales(w http.ResponseWriter, r *http.Request) {
	q := params{v: r.URL.Query()}
	p := query.ProductSalesParams{
		Start:      q.date("start"),
		End:        q.date("end"),
		ProductID:  q.i64("product_id"),
		CategoryID: q.i64("category_id"),
		Page:       q.page(),
		Sort:       q.sort(),
	}
	if q.err != nil {
		writeError(w, q.err)
		return
	}
	out, err := s.store.ProductSales(r.Context(), p)
	respond(w, out, err)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	q := params{v: r.URL.Query()}
	p := query.HistoryParams{
		CustomerID: q.pathID(r),
		Start:      q.date("start"),
		End:        q.date("end"),
		Page:       q.page(),
		Sort:       q.sort(),
	}
	if q.err != nil {
		writeError(w, q.err)
		return
	}
	out, err := s.store.CustomerPurchaseHistory(r.Context(), p)
	respond(w, out, err)
}

func (s *Server) handleTopProducts(w http.ResponseWriter, r *http.Request) {
	q := params{v: r.URL.Query()}
	p := query.TopProductsParams{
		CategoryID: q.pathID(r),
		Start:      q.date("start"),
		End:        q.date("end"),
		Limit:      q.i("limit"),
		Sort:       q.sort(),
	}
	if q.err != nil {
		writeError(w, q.err)
		return
	}
	out, err := s.store.TopSellingProductsByCategory(r.Context(), p)
	respond(w, out, err)
}

func (s *Server) handleTrends(w http.ResponseWriter, r *http.Request) {
	q := params{v: r.URL.Query()}
	p := query.TrendParams{
		Start:    q.date("start"),
		End:      q.date("end"),
		Interval: query.ParseInterval(q.get("interval")),
	}
	if q.err != nil {
		writeError(w, q.err)
		return
	}
	out, err := s.store.SalesTrends(r.Context(), p)
	respond(w, out, err)
}

// productPatch is the body of PATCH /api/products/{id}. Price accepts a JSON
// number or string.
type productPatch struct {
	Name  string           `json:"name"`
	Price *decimal.Decimal `json:"price"`
}

func (s *Server) handleUpdateProduct(w http.ResponseWriter, r *http.Request) {
	q := params{}
	id := q.pathID(r)
	if q.err != nil {
		writeError(w, q.err)
		return
	}
	var body productPatch
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		writeError(w, fmt.Errorf("%w: body: %v", query.ErrInvalidArgument, err))
		return
	}
	out, err := s.store.UpdateProduct(r.Context(), query.ProductUpdate{
		ProductID: id,
		Name:      strings.TrimSpace(body.Name),
		Price:     body.Price,
	})
	respond(w, out, err)
}

func respond(w http.ResponseWriter, v any, err error) {
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, query.ErrInvalidArgument):
		code = http.StatusBadRequest
	case errors.Is(err, query.ErrNotFound):
		code = http.StatusNotFound
	default:
		log.Printf("queryapi: %v", err)
	}
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("queryapi: encode response: %v", err)
	}
}

// params parses query values and keeps the first error.
type params struct {
	v   url.Values
	err error
}

func (p *params) get(key string) string {
	if vs := p.v[key]; len(vs) > 0 {
		return strings.TrimSpace(vs[0])
	}
	return ""
}

func (p *params) fail(key, val string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("%w: %s=%q: %v", query.ErrInvalidArgument, key, val, err)
	}
}

func (p *params) i64(key string) int64 {
	s := p.get(key)
	if s == "" {
		return 0
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		p.fail(key, s, err)
	}
	return n
}

func (p *params) i(key string) int {
	return int(p.i64(key))
}

func (p *params) date(key string) time.Time {
	s := p.get(key)
	if s == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		p.fail(key, s, errors.New("want YYYY-MM-DD or RFC 3339"))
	}
	return t
}

func (p *params) page() query.Page {
	return query.Page{Limit: p.i("limit"), Offset: p.i("offset")}
}

func (p *params) sort() query.Sort {
	return query.Sort{By: p.get("sort_by"), Order: p.get("sort_order")}
}

func (p *params) pathID(r *http.Request) int64 {
	s := r.PathValue("id")
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		p.fail("id", s, errors.New("want a positive integer"))
	}
	return n
}
