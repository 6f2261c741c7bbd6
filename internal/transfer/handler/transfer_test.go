package handler_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jmerrifield20/TreasuryPostingEngine/internal/audit"
	"github.com/jmerrifield20/TreasuryPostingEngine/internal/feed"
	"github.com/jmerrifield20/TreasuryPostingEngine/internal/identity"
	"github.com/jmerrifield20/TreasuryPostingEngine/internal/ledger"
	"github.com/jmerrifield20/TreasuryPostingEngine/internal/reconcile"
	"github.com/jmerrifield20/TreasuryPostingEngine/internal/transfer/handler"
	"github.com/jmerrifield20/TreasuryPostingEngine/internal/transfer/repository"
	"github.com/jmerrifield20/TreasuryPostingEngine/internal/transfer/service"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type testServer struct {
	router  *gin.Engine
	ledger  *ledger.MemoryStore
	broker  *feed.Broker
	tokens  *identity.OperatorTokenIssuer
	account uuid.UUID
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := zap.NewNop()
	repo := repository.NewMemoryTransferRepository()
	store := ledger.NewMemoryStore()
	recorder := audit.NewMemoryRecorder()
	broker := feed.NewBroker(16, logger)

	engine := service.NewEngine(repo, store, recorder, logger)
	engine.SetPublisher(broker)

	acct := &ledger.Account{Currency: "ZAR", Balance: decimal.NewFromInt(100)}
	if err := store.CreateAccount(context.Background(), acct); err != nil {
		t.Fatal(err)
	}

	tokens, err := identity.NewOperatorTokenIssuer("test-secret", "postingd", time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	router := handler.NewRouter(ctx, handler.RouterOptions{
		Transfers: handler.NewTransferHandler(engine, logger),
		Stream:    handler.NewStreamHandler(broker, time.Second, logger),
		Reconcile: handler.NewReconcileHandler(reconcile.New(repo, store, recorder, reconcile.Config{}, logger), logger),
		Operators: tokens,
		Logger:    logger,
	})
	return &testServer{router: router, ledger: store, broker: broker, tokens: tokens, account: acct.ID}
}

func (s *testServer) do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) submit(t *testing.T, amount string) string {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/v1/transfers", map[string]any{
		"source_type":            "external",
		"destination_type":       "main_bank",
		"source_currency":        "ZAR",
		"amount":                 amount,
		"transfer_type":          "capital_injection",
		"destination_account_id": s.account,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("submit: status %d, body %s", w.Code, w.Body.String())
	}
	var resp struct {
		ID            string `json:"id"`
		PostingStatus string `json:"posting_status"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp) //nolint:errcheck
	if resp.PostingStatus != "queued" {
		t.Errorf("posting_status: got %q, want queued", resp.PostingStatus)
	}
	return resp.ID
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &m); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return m
}

func TestTransferLifecycle(t *testing.T) {
	s := newTestServer(t)
	id := s.submit(t, "10000")

	w := s.do(t, http.MethodPost, "/api/v1/transfers/"+id+"/validate", map[string]string{"actor": "checker", "notes": "ok"})
	if w.Code != http.StatusOK {
		t.Fatalf("validate: status %d, body %s", w.Code, w.Body.String())
	}
	if got := decode(t, w)["status"]; got != "approved" {
		t.Errorf("status: got %v, want approved", got)
	}

	w = s.do(t, http.MethodPost, "/api/v1/transfers/"+id+"/post", map[string]string{"actor": "poster"})
	if w.Code != http.StatusOK {
		t.Fatalf("post: status %d, body %s", w.Code, w.Body.String())
	}

	acct, _ := s.ledger.GetAccount(context.Background(), s.account)
	if !acct.Balance.Equal(decimal.NewFromInt(10100)) {
		t.Errorf("balance: got %s, want 10100", acct.Balance)
	}

	w = s.do(t, http.MethodPost, "/api/v1/transfers/"+id+"/post", map[string]string{"actor": "late"})
	if w.Code != http.StatusConflict {
		t.Fatalf("second post: status %d, want 409", w.Code)
	}
	body := decode(t, w)
	if !strings.Contains(body["error"].(string), "already posted by poster") {
		t.Errorf("error: got %q", body["error"])
	}

	w = s.do(t, http.MethodGet, "/api/v1/transfers/"+id+"/audit", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("audit: status %d", w.Code)
	}
	hist := decode(t, w)
	if hist["chain_intact"] != true || hist["replayed_status"] != "posted" {
		t.Errorf("audit history: %v", hist)
	}
	if n := len(hist["records"].([]any)); n != 2 {
		t.Errorf("records: got %d, want 2", n)
	}
}

func TestSubmit_InvalidPayload(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodPost, "/api/v1/transfers", map[string]any{
		"source_type":      "external",
		"destination_type": "main_bank",
		"source_currency":  "ZAR",
		"amount":           "-5",
		"transfer_type":    "capital_injection",
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", w.Code)
	}
}

func TestGet_NotFoundAndBadID(t *testing.T) {
	s := newTestServer(t)
	if w := s.do(t, http.MethodGet, "/api/v1/transfers/"+uuid.NewString(), nil); w.Code != http.StatusNotFound {
		t.Errorf("unknown id: got %d, want 404", w.Code)
	}
	if w := s.do(t, http.MethodGet, "/api/v1/transfers/not-a-uuid", nil); w.Code != http.StatusBadRequest {
		t.Errorf("bad id: got %d, want 400", w.Code)
	}
}

func TestReject_ThenValidateIsConflict(t *testing.T) {
	s := newTestServer(t)
	id := s.submit(t, "50")

	w := s.do(t, http.MethodPost, "/api/v1/transfers/"+id+"/reject", map[string]string{"actor": "ops", "reason": "invalid beneficiary"})
	if w.Code != http.StatusOK {
		t.Fatalf("reject: status %d, body %s", w.Code, w.Body.String())
	}
	body := decode(t, w)
	if body["posting_status"] != "failed" || body["status"] != "rejected" {
		t.Errorf("after reject: %v", body)
	}

	w = s.do(t, http.MethodPost, "/api/v1/transfers/"+id+"/validate", map[string]string{"actor": "checker"})
	if w.Code != http.StatusConflict {
		t.Fatalf("validate after reject: status %d, want 409", w.Code)
	}
	if !strings.Contains(decode(t, w)["error"].(string), "already processed by ops") {
		t.Errorf("error should name the acting operator: %s", w.Body.String())
	}
}

func TestReject_RequiresReason(t *testing.T) {
	s := newTestServer(t)
	id := s.submit(t, "50")
	w := s.do(t, http.MethodPost, "/api/v1/transfers/"+id+"/reject", map[string]string{"actor": "ops"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", w.Code)
	}
}

func TestValidate_RequiresActor(t *testing.T) {
	s := newTestServer(t)
	id := s.submit(t, "50")
	w := s.do(t, http.MethodPost, "/api/v1/transfers/"+id+"/validate", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", w.Code)
	}
}

func TestValidate_OperatorTokenSetsActor(t *testing.T) {
	s := newTestServer(t)
	id := s.submit(t, "50")
	tok, _ := s.tokens.Issue("alice", "Alice")

	w := s.do(t, http.MethodPost, "/api/v1/transfers/"+id+"/validate",
		map[string]string{"actor": "spoofed"}, "Authorization", "Bearer "+tok)
	if w.Code != http.StatusOK {
		t.Fatalf("validate: status %d, body %s", w.Code, w.Body.String())
	}

	w = s.do(t, http.MethodGet, "/api/v1/transfers/"+id+"/audit", nil)
	rec := decode(t, w)["records"].([]any)[0].(map[string]any)
	if rec["performed_by"] != "alice" {
		t.Errorf("performed_by: got %v, want alice", rec["performed_by"])
	}
}

func TestPost_BeforeValidateIsConflict(t *testing.T) {
	s := newTestServer(t)
	id := s.submit(t, "50")
	w := s.do(t, http.MethodPost, "/api/v1/transfers/"+id+"/post", nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("status: got %d, want 409", w.Code)
	}
	if got := decode(t, w)["current_status"]; got != "queued" {
		t.Errorf("current_status: got %v, want queued", got)
	}
}

func TestValidate_MissingRateIsUnprocessable(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodPost, "/api/v1/transfers", map[string]any{
		"source_type":            "external",
		"destination_type":       "main_bank",
		"source_currency":        "USD",
		"destination_currency":   "ZAR",
		"amount":                 "1000",
		"transfer_type":          "fx_spot",
		"destination_account_id": s.account,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("submit: %d %s", w.Code, w.Body.String())
	}
	id := decode(t, w)["id"].(string)

	w = s.do(t, http.MethodPost, "/api/v1/transfers/"+id+"/validate", map[string]string{"actor": "checker"})
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("validate: status %d, want 422", w.Code)
	}

	w = s.do(t, http.MethodGet, "/api/v1/transfers/"+id, nil)
	if got := decode(t, w)["posting_status"]; got != "failed" {
		t.Errorf("posting_status: got %v, want failed", got)
	}
}

func TestListPending(t *testing.T) {
	s := newTestServer(t)
	a := s.submit(t, "1")
	b := s.submit(t, "2")
	s.do(t, http.MethodPost, "/api/v1/transfers/"+b+"/reject", map[string]string{"actor": "ops", "reason": "dup"})

	w := s.do(t, http.MethodGet, "/api/v1/transfers/pending", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	body := decode(t, w)
	list := body["transfers"].([]any)
	if len(list) != 1 || list[0].(map[string]any)["id"] != a {
		t.Errorf("pending: got %v, want only %s", list, a)
	}

	if w := s.do(t, http.MethodGet, "/api/v1/transfers/pending?limit=0", nil); w.Code != http.StatusBadRequest {
		t.Errorf("limit=0: got %d, want 400", w.Code)
	}
}

func TestReconciliation(t *testing.T) {
	s := newTestServer(t)
	s.submit(t, "1")
	w := s.do(t, http.MethodGet, "/api/v1/reconciliation", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	if body := decode(t, w); body["consistent"] != true {
		t.Errorf("expected consistent report, got %v", body)
	}
}

func TestStream_DeliversEvents(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/transfers/stream", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Fatalf("content type: got %q", ct)
	}

	reader := bufio.NewReader(resp.Body)
	readEvent := func() string {
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				t.Fatalf("read stream: %v", err)
			}
			if strings.HasPrefix(line, "event:") {
				return strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			}
		}
	}

	if got := readEvent(); got != "ready" {
		t.Fatalf("first event: got %q, want ready", got)
	}
	s.submit(t, "5")
	for {
		ev := readEvent()
		if ev == "heartbeat" {
			continue
		}
		if ev != feed.EventSubmitted {
			t.Errorf("event: got %q, want %q", ev, feed.EventSubmitted)
		}
		break
	}
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t)
	if w := s.do(t, http.MethodGet, "/healthz", nil); w.Code != http.StatusOK {
		t.Errorf("healthz: got %d", w.Code)
	}
}
