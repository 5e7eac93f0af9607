package e2e

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"

	"memberships/internal/ticketing/pretix"
)

// fakePretix serves the slice of the pretix REST API the service calls.
type fakePretix struct {
	mu       sync.Mutex
	nextID   int64
	vouchers map[int64]pretix.Voucher
	byCode   map[string]int64
	orders   map[string]pretix.Order
	server   *httptest.Server
}

func newFakePretix() *fakePretix {
	f := &fakePretix{
		vouchers: make(map[int64]pretix.Voucher),
		byCode:   make(map[string]int64),
		orders:   make(map[string]pretix.Order),
	}
	r := chi.NewRouter()
	r.Route("/api/v1/organizers/{organizer}/events/{event}", func(r chi.Router) {
		r.Post("/vouchers/batch_create/", f.batchCreate)
		r.Get("/vouchers/{id}/", f.voucher)
		r.Get("/orders/{code}/", f.order)
	})
	f.server = httptest.NewServer(r)
	return f
}

func (f *fakePretix) URL() string { return f.server.URL }

func (f *fakePretix) Close() { f.server.Close() }

func (f *fakePretix) batchCreate(w http.ResponseWriter, r *http.Request) {
	var reqs []pretix.VoucherRequest
	if err := json.NewDecoder(r.Body).Decode(&reqs); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	out := make([]pretix.Voucher, 0, len(reqs))
	for _, req := range reqs {
		f.nextID++
		item := req.Item
		validUntil := req.ValidUntil
		v := pretix.Voucher{
			ID:         f.nextID,
			Code:       req.Code,
			MaxUsages:  req.MaxUsages,
			ValidUntil: &validUntil,
			Item:       &item,
			Tag:        req.Tag,
		}
		f.vouchers[v.ID] = v
		f.byCode[v.Code] = v.ID
		out = append(out, v)
	}
	f.mu.Unlock()

	writeJSON(w, http.StatusCreated, out)
}

func (f *fakePretix) voucher(w http.ResponseWriter, r *http.Request) {
	voucherID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	f.mu.Lock()
	v, ok := f.vouchers[voucherID]
	f.mu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (f *fakePretix) order(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	o, ok := f.orders[chi.URLParam(r, "code")]
	f.mu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// pay records a paid order that redeemed code and returns its order code.
func (f *fakePretix) pay(code, email string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	voucherID, ok := f.byCode[code]
	if !ok {
		return "", fmt.Errorf("pretix has no voucher %q", code)
	}
	v := f.vouchers[voucherID]
	v.Redeemed++
	f.vouchers[voucherID] = v

	orderCode := fmt.Sprintf("ORD%03d", len(f.orders)+1)
	f.orders[orderCode] = pretix.Order{
		Code:   orderCode,
		Status: "p",
		Secret: "secret-" + orderCode,
		Email:  email,
		Positions: []pretix.OrderPosition{
			{ID: int64(len(f.orders) + 1), Item: *v.Item, Voucher: &voucherID},
		},
	}
	return orderCode, nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
