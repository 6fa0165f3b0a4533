package desk_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"checkindesk/internal/catalog"
	"checkindesk/internal/circulation"
	"checkindesk/internal/clients"
	"checkindesk/internal/desk"
	"checkindesk/internal/logging"
	"checkindesk/internal/modal"
	"checkindesk/internal/slips"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// okapi is an in-memory stand-in for the backend modules behind the
// gateway.
type okapi struct {
	mu          sync.Mutex
	item        catalog.Item
	afterStatus string
	userID      string
	accounts    []map[string]any
	updated     []map[string]any
	actions     []map[string]any
	endSessions []map[string]string
	checkins    int
	block       chan struct{}
}

func (o *okapi) router(t *testing.T) http.Handler {
	r := chi.NewRouter()
	r.Get("/inventory/items", func(w http.ResponseWriter, req *http.Request) {
		o.mu.Lock()
		defer o.mu.Unlock()
		items := []catalog.Item{}
		if req.URL.Query().Get("query") == catalog.BarcodeQuery(o.item.Barcode, false) {
			items = append(items, o.item)
		}
		writeJSON(w, map[string]any{"items": items, "totalRecords": len(items)})
	})
	r.Post("/circulation/check-in-by-barcode", func(w http.ResponseWriter, req *http.Request) {
		var body circulation.CheckinRequest
		require.NoError(t, json.NewDecoder(req.Body).Decode(&body))

		o.mu.Lock()
		o.checkins++
		block := o.block
		o.mu.Unlock()
		if block != nil {
			<-block
		}

		o.mu.Lock()
		defer o.mu.Unlock()
		item := o.item
		item.Status = catalog.Status{Name: o.afterStatus}
		resp := map[string]any{
			"item":             item,
			"staffSlipContext": map[string]any{"item": map[string]string{"title": item.Title}},
		}
		if o.userID != "" {
			resp["loan"] = map[string]string{"id": "loan-1", "userId": o.userID, "itemId": item.ID}
		}
		writeJSON(w, resp)
	})
	r.Get("/circulation/requests", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, map[string]any{"requests": []any{}})
	})
	r.Get("/accounts", func(w http.ResponseWriter, req *http.Request) {
		o.mu.Lock()
		defer o.mu.Unlock()
		writeJSON(w, map[string]any{"accounts": o.accounts})
	})
	r.Put("/accounts/{id}", func(w http.ResponseWriter, req *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(req.Body).Decode(&body))
		o.mu.Lock()
		o.updated = append(o.updated, body)
		o.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})
	r.Post("/feefineactions", func(w http.ResponseWriter, req *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(req.Body).Decode(&body))
		o.mu.Lock()
		o.actions = append(o.actions, body)
		o.mu.Unlock()
		w.WriteHeader(http.StatusCreated)
	})
	r.Post("/circulation/end-patron-action-session", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			EndSessions []map[string]string `json:"endSessions"`
		}
		require.NoError(t, json.NewDecoder(req.Body).Decode(&body))
		o.mu.Lock()
		o.endSessions = append(o.endSessions, body.EndSessions...)
		o.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})
	return r
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

type testServer struct {
	okapi *okapi
	url   string
}

func setupServer(t *testing.T, o *okapi, cfg desk.Config) *testServer {
	t.Helper()
	backend := httptest.NewServer(o.router(t))
	t.Cleanup(backend.Close)

	logger := logging.Discard()
	base := clients.New(backend.URL, "diku", "token", clients.WithRateLimit(1000, 100))
	circ := clients.NewCirculationClient(base)
	executor := circulation.NewService(circ, circ, clients.NewFeeFineClient(base), logger)
	d := desk.New(cfg, catalog.NewResolver(clients.NewCatalogClient(base)), executor, circ, logger)

	router := chi.NewRouter()
	desk.NewHandler(d, logger).Routes(router)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &testServer{okapi: o, url: server.URL}
}

func (s *testServer) post(t *testing.T, path string, body any) (int, map[string]any) {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(s.url+path, "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	return resp.StatusCode, out
}

func TestCheckinFlow(t *testing.T) {
	o := &okapi{
		item: catalog.Item{
			ID:           "item-1",
			Barcode:      "9676761472500",
			Title:        "Best Book Ever",
			MaterialType: catalog.Named{Name: "book"},
			Status:       catalog.Status{Name: catalog.StatusClaimedReturned},
		},
		afterStatus: catalog.StatusInTransit,
		userID:      "u1",
		accounts: []map[string]any{{
			"id":            "acc-1",
			"userId":        "u1",
			"feeFineType":   circulation.FeeFineLostItem,
			"amount":        25.5,
			"remaining":     25.5,
			"status":        map[string]string{"name": circulation.AccountStatusOpen},
			"paymentStatus": map[string]string{"name": circulation.PaymentSuspendedClaim},
		}},
	}
	s := setupServer(t, o, desk.Config{
		ServicePointID: "sp-1",
		Operator:       circulation.Operator{ID: "op-1", Name: "Desk, Staff"},
		StaffSlips:     []slips.StaffSlip{{ID: "s1", Name: modal.SlipTransit, Template: "Transit: {{item.title}}"}},
	})

	status, view := s.post(t, "/desk/scan", map[string]string{"itemBarcode": "9676761472500"})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, string(modal.ClaimedReturned), view["activeModal"])

	status, view = s.post(t, "/desk/confirm", map[string]string{"claimedReturnedResolution": circulation.ResolutionFoundByLibrary})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, string(modal.TransitStatus), view["activeModal"])

	items := view["scannedItems"].([]any)
	require.Len(t, items, 1)
	record := items[0].(map[string]any)
	assert.Equal(t, "Best Book Ever (book)", record["title"])
	assert.Equal(t, []any{"acc-1"}, record["cancelledFees"])

	o.mu.Lock()
	updated, actions := o.updated, o.actions
	o.mu.Unlock()
	require.Len(t, updated, 1)
	assert.Equal(t, circulation.PaymentCancelledReturned, updated[0]["paymentStatus"].(map[string]any)["name"])
	require.Len(t, actions, 1)
	assert.Equal(t, "Desk, Staff", actions[0]["source"])
	assert.Equal(t, "sp-1", actions[0]["createdAt"])
	assert.Equal(t, 25.5, actions[0]["amountAction"])

	status, view = s.post(t, "/desk/acknowledge", map[string]bool{"print": true})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Transit: Best Book Ever", view["printed"].(map[string]any)["content"])
	assert.Equal(t, "", view["activeModal"])

	status, view = s.post(t, "/desk/end-session", struct{}{})
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, view["scannedItems"])
	o.mu.Lock()
	defer o.mu.Unlock()
	assert.Equal(t, []map[string]string{{"actionType": "Check-in", "patronId": "u1"}}, o.endSessions)
}

func TestConcurrentScansAreSerialised(t *testing.T) {
	o := &okapi{
		item: catalog.Item{
			ID:           "item-1",
			Barcode:      "1",
			Title:        "The Great Gatsby",
			MaterialType: catalog.Named{Name: "book"},
			Status:       catalog.Status{Name: catalog.StatusAvailable},
		},
		afterStatus: catalog.StatusAvailable,
		block:       make(chan struct{}),
	}
	s := setupServer(t, o, desk.Config{ServicePointID: "sp-1"})

	const scanners = 10
	statuses := make(chan int, scanners)
	var wg sync.WaitGroup
	for i := 0; i < scanners; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			payload, _ := json.Marshal(map[string]string{"itemBarcode": "1"})
			resp, err := http.Post(s.url+"/desk/scan", "application/json", bytes.NewReader(payload))
			if err != nil {
				statuses <- 0
				return
			}
			resp.Body.Close()
			statuses <- resp.StatusCode
		}()
	}

	conflicts := 0
	for i := 0; i < scanners-1; i++ {
		if <-statuses == http.StatusConflict {
			conflicts++
		}
	}
	close(o.block)
	wg.Wait()
	last := <-statuses

	assert.Equal(t, scanners-1, conflicts, "Only one scan should be processed at a time")
	assert.Equal(t, http.StatusOK, last)
	o.mu.Lock()
	assert.Equal(t, 1, o.checkins)
	o.mu.Unlock()

	resp, err := http.Get(s.url + "/desk")
	require.NoError(t, err)
	defer resp.Body.Close()
	var view desk.View
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&view))
	assert.Len(t, view.Records, 1)
}

func TestScanUnknownBarcode(t *testing.T) {
	o := &okapi{item: catalog.Item{Barcode: "1"}}
	s := setupServer(t, o, desk.Config{ServicePointID: "sp-1"})

	status, view := s.post(t, "/desk/scan", map[string]string{"itemBarcode": "0000000"})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, string(modal.Error), view["activeModal"])
	assert.Equal(t, catalog.ErrNotFound.Error(), view["pending"].(map[string]any)["error"])

	status, view = s.post(t, "/desk/dismiss", struct{}{})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "", view["form"].(map[string]any)["itemBarcode"])
	o.mu.Lock()
	defer o.mu.Unlock()
	assert.Zero(t, o.checkins)
}
