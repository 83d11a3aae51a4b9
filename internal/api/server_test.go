package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nordvolt/wallbox-core/internal/auth"
	"github.com/nordvolt/wallbox-core/internal/executor"
	"github.com/nordvolt/wallbox-core/internal/history"
	"github.com/nordvolt/wallbox-core/internal/infrastructure/config"
	"github.com/nordvolt/wallbox-core/internal/infrastructure/logging"
	"github.com/nordvolt/wallbox-core/internal/supervisor"
	"github.com/nordvolt/wallbox-core/internal/wallbox"
)

const testJWTSecret = "test-secret-key-at-least-32-chars!"

// fakeCharger is a scriptable Charger for handler tests.
type fakeCharger struct {
	status     map[string]any
	available  bool
	refreshed  int
	startErr   error
	stopErr    error
	currentErr error
	restartErr error
	tags       []wallbox.RFIDTag
	tagsErr    error
	scanned    []int
	setCurrent int
	deleted    []int
	added      []int
	addedName  string
}

func (f *fakeCharger) Status() (map[string]any, bool) { return f.status, f.available }
func (f *fakeCharger) RequestRefresh()                { f.refreshed++ }
func (f *fakeCharger) StartCharging(context.Context) error {
	return f.startErr
}
func (f *fakeCharger) StopCharging(context.Context) error {
	return f.stopErr
}
func (f *fakeCharger) SetMaxCurrent(_ context.Context, amperes int) error {
	f.setCurrent = amperes
	return f.currentErr
}
func (f *fakeCharger) Restart(context.Context) error {
	return f.restartErr
}
func (f *fakeCharger) ListTags(context.Context) ([]wallbox.RFIDTag, error) {
	return f.tags, f.tagsErr
}
func (f *fakeCharger) ScanTag(context.Context) ([]int, error) {
	return f.scanned, f.tagsErr
}
func (f *fakeCharger) AddTag(_ context.Context, tagID []int, name string) error {
	f.added = tagID
	f.addedName = name
	return f.tagsErr
}
func (f *fakeCharger) DeleteTag(_ context.Context, tagID []int) error {
	f.deleted = tagID
	return f.tagsErr
}

// fakeHistory returns canned transaction entries.
type fakeHistory struct {
	entries []history.Entry
	limit   int
}

func (f *fakeHistory) Recent(_ context.Context, limit int) ([]history.Entry, error) {
	f.limit = limit
	return f.entries, nil
}

func testLogger(t *testing.T) *logging.Logger {
	t.Helper()
	return logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stderr"}, "test")
}

func newTestServer(t *testing.T, charger *fakeCharger, hist TransactionStore) (*Server, http.Handler) {
	t.Helper()

	s, err := New(Deps{
		Config: config.APIConfig{
			Auth: config.APIAuthConfig{
				Username: "operator",
				// Not used by most tests; login tests hash their own.
			},
		},
		WS: config.WebSocketConfig{
			MaxMessageSize: 4096,
			PingInterval:   30,
			PongTimeout:    60,
		},
		Security: config.SecurityConfig{
			JWT: config.JWTConfig{Secret: testJWTSecret, AccessTokenTTL: 60},
		},
		Logger:  testLogger(t),
		Charger: charger,
		History: hist,
		Version: "test",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	s.hub = NewHub(s.wsCfg, s.logger)
	return s, s.buildRouter()
}

func bearerToken(t *testing.T) string {
	t.Helper()
	token, err := auth.GenerateAccessToken("operator", testJWTSecret, 60)
	if err != nil {
		t.Fatalf("GenerateAccessToken() error = %v", err)
	}
	return "Bearer " + token
}

func doRequest(t *testing.T, handler http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encoding request body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHandleHealth_NoAuthRequired(t *testing.T) {
	_, handler := newTestServer(t, &fakeCharger{available: true}, nil)

	rec := doRequest(t, handler, http.MethodGet, "/api/v1/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("health status = %d, want 200", rec.Code)
	}

	var resp map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp["status"] != "ok" {
		t.Errorf("status = %v, want ok", resp["status"])
	}
	if resp["version"] != "test" {
		t.Errorf("version = %v, want test", resp["version"])
	}
}

func TestProtectedRoutes_RejectMissingToken(t *testing.T) {
	_, handler := newTestServer(t, &fakeCharger{}, nil)

	paths := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/v1/status"},
		{http.MethodPost, "/api/v1/charging/start"},
		{http.MethodPost, "/api/v1/charging/stop"},
		{http.MethodPut, "/api/v1/max-current"},
		{http.MethodPost, "/api/v1/restart"},
		{http.MethodGet, "/api/v1/rfid/"},
		{http.MethodGet, "/api/v1/transactions"},
	}

	for _, p := range paths {
		rec := doRequest(t, handler, p.method, p.path, "", nil)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s %s without token = %d, want 401", p.method, p.path, rec.Code)
		}
	}
}

func TestProtectedRoutes_RejectInvalidToken(t *testing.T) {
	_, handler := newTestServer(t, &fakeCharger{}, nil)

	rec := doRequest(t, handler, http.MethodGet, "/api/v1/status", "Bearer not-a-jwt", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status with bad token = %d, want 401", rec.Code)
	}
}

func TestHandleLogin(t *testing.T) {
	hash, err := auth.HashPassword("operator-pass")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}

	charger := &fakeCharger{}
	s, _ := newTestServer(t, charger, nil)
	s.cfg.Auth = config.APIAuthConfig{Username: "operator", PasswordHash: hash}
	handler := s.buildRouter()

	rec := doRequest(t, handler, http.MethodPost, "/api/v1/auth/login", "",
		map[string]string{"username": "operator", "password": "operator-pass"})
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d, want 200; body %s", rec.Code, rec.Body.String())
	}

	var resp loginResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.AccessToken == "" {
		t.Error("expected an access token")
	}
	if resp.TokenType != "Bearer" {
		t.Errorf("token_type = %q, want Bearer", resp.TokenType)
	}

	// The issued token must pass the auth middleware.
	statusRec := doRequest(t, handler, http.MethodGet, "/api/v1/status", "Bearer "+resp.AccessToken, nil)
	if statusRec.Code != http.StatusOK {
		t.Errorf("status with issued token = %d, want 200", statusRec.Code)
	}
}

func TestHandleLogin_BadCredentials(t *testing.T) {
	hash, err := auth.HashPassword("operator-pass")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}

	s, _ := newTestServer(t, &fakeCharger{}, nil)
	s.cfg.Auth = config.APIAuthConfig{Username: "operator", PasswordHash: hash}
	handler := s.buildRouter()

	rec := doRequest(t, handler, http.MethodPost, "/api/v1/auth/login", "",
		map[string]string{"username": "operator", "password": "wrong"})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("login with bad password = %d, want 401", rec.Code)
	}
}

func TestHandleStatus(t *testing.T) {
	charger := &fakeCharger{
		status: map[string]any{
			"serial_number": "WB-1234",
			"is_charging":   true,
		},
		available: true,
	}
	_, handler := newTestServer(t, charger, nil)

	rec := doRequest(t, handler, http.MethodGet, "/api/v1/status", bearerToken(t), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp statusResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if !resp.LastUpdateSuccess {
		t.Error("last_update_success = false, want true")
	}
	if resp.Data["serial_number"] != "WB-1234" {
		t.Errorf("serial_number = %v, want WB-1234", resp.Data["serial_number"])
	}
}

func TestHandleRefresh(t *testing.T) {
	charger := &fakeCharger{}
	_, handler := newTestServer(t, charger, nil)

	rec := doRequest(t, handler, http.MethodPost, "/api/v1/refresh", bearerToken(t), nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("refresh = %d, want 202", rec.Code)
	}
	if charger.refreshed != 1 {
		t.Errorf("RequestRefresh called %d times, want 1", charger.refreshed)
	}
}

func TestHandleStartCharging_NoTagsIsConflict(t *testing.T) {
	charger := &fakeCharger{startErr: supervisor.ErrNoRFIDTags}
	_, handler := newTestServer(t, charger, nil)

	rec := doRequest(t, handler, http.MethodPost, "/api/v1/charging/start", bearerToken(t), nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("start with no tags = %d, want 409", rec.Code)
	}
}

func TestHandleStartCharging_UnreachableIs503(t *testing.T) {
	charger := &fakeCharger{
		startErr: &wallbox.ConnectivityError{Op: "transaction_start", Err: context.DeadlineExceeded},
	}
	_, handler := newTestServer(t, charger, nil)

	rec := doRequest(t, handler, http.MethodPost, "/api/v1/charging/start", bearerToken(t), nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("start while unreachable = %d, want 503", rec.Code)
	}
}

func TestHandleStopCharging_QueueTimeoutIs503(t *testing.T) {
	charger := &fakeCharger{stopErr: executor.ErrCallTimeout}
	_, handler := newTestServer(t, charger, nil)

	rec := doRequest(t, handler, http.MethodPost, "/api/v1/charging/stop", bearerToken(t), nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("stop on queue timeout = %d, want 503", rec.Code)
	}
}

func TestHandleStopCharging_DeviceErrorIs502(t *testing.T) {
	charger := &fakeCharger{
		stopErr: &wallbox.DeviceError{Kind: "Unauthorized", Message: "bad credentials"},
	}
	_, handler := newTestServer(t, charger, nil)

	rec := doRequest(t, handler, http.MethodPost, "/api/v1/charging/stop", bearerToken(t), nil)
	if rec.Code != http.StatusBadGateway {
		t.Errorf("stop with device error = %d, want 502", rec.Code)
	}

	var resp Error
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Code != ErrCodeDeviceError {
		t.Errorf("code = %q, want %q", resp.Code, ErrCodeDeviceError)
	}
}

func TestHandleSetMaxCurrent(t *testing.T) {
	charger := &fakeCharger{}
	_, handler := newTestServer(t, charger, nil)

	rec := doRequest(t, handler, http.MethodPut, "/api/v1/max-current", bearerToken(t),
		map[string]int{"amperes": 16})
	if rec.Code != http.StatusOK {
		t.Fatalf("set max current = %d, want 200", rec.Code)
	}
	if charger.setCurrent != 16 {
		t.Errorf("SetMaxCurrent amperes = %d, want 16", charger.setCurrent)
	}
}

func TestHandleSetMaxCurrent_Validation(t *testing.T) {
	charger := &fakeCharger{}
	_, handler := newTestServer(t, charger, nil)

	tests := []struct {
		name string
		body any
	}{
		{"zero amperes", map[string]int{"amperes": 0}},
		{"negative amperes", map[string]int{"amperes": -6}},
		{"not JSON", "amperes=16"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, handler, http.MethodPut, "/api/v1/max-current", bearerToken(t), tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("set max current = %d, want 400", rec.Code)
			}
		})
	}
}

func TestHandleListTags(t *testing.T) {
	charger := &fakeCharger{
		tags: []wallbox.RFIDTag{
			{TagID: []int{4, 138, 252, 1}, Name: "keyfob"},
		},
	}
	_, handler := newTestServer(t, charger, nil)

	rec := doRequest(t, handler, http.MethodGet, "/api/v1/rfid/", bearerToken(t), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list tags = %d, want 200", rec.Code)
	}

	var resp struct {
		Tags []rfidTagResponse `json:"tags"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(resp.Tags) != 1 {
		t.Fatalf("got %d tags, want 1", len(resp.Tags))
	}
	if resp.Tags[0].Hex != "048AFC01" {
		t.Errorf("hex = %q, want 048AFC01", resp.Tags[0].Hex)
	}
	if resp.Tags[0].Name != "keyfob" {
		t.Errorf("name = %q, want keyfob", resp.Tags[0].Name)
	}
}

func TestHandleAddTag(t *testing.T) {
	charger := &fakeCharger{}
	_, handler := newTestServer(t, charger, nil)

	rec := doRequest(t, handler, http.MethodPost, "/api/v1/rfid/", bearerToken(t),
		map[string]any{"tag_id": []int{4, 138, 252, 1}, "name": "spare"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("add tag = %d, want 201", rec.Code)
	}
	if charger.addedName != "spare" {
		t.Errorf("added name = %q, want spare", charger.addedName)
	}
	if len(charger.added) != 4 {
		t.Errorf("added tag length = %d, want 4", len(charger.added))
	}
}

func TestHandleDeleteTag_RequiresTagID(t *testing.T) {
	charger := &fakeCharger{}
	_, handler := newTestServer(t, charger, nil)

	rec := doRequest(t, handler, http.MethodDelete, "/api/v1/rfid/", bearerToken(t),
		map[string]any{"tag_id": []int{}})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("delete without tag_id = %d, want 400", rec.Code)
	}
	if charger.deleted != nil {
		t.Error("DeleteTag should not be called")
	}
}

func TestHandleScanTag(t *testing.T) {
	charger := &fakeCharger{scanned: []int{18, 52, 86, 120}}
	_, handler := newTestServer(t, charger, nil)

	rec := doRequest(t, handler, http.MethodPost, "/api/v1/rfid/scan", bearerToken(t), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("scan = %d, want 200", rec.Code)
	}

	var resp rfidTagResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Hex != "12345678" {
		t.Errorf("hex = %q, want 12345678", resp.Hex)
	}
}

func TestHandleTransactions(t *testing.T) {
	hist := &fakeHistory{
		entries: []history.Entry{
			{
				ID:        1,
				StartTime: time.Date(2025, 3, 14, 16, 2, 11, 0, time.UTC),
				EndTime:   time.Date(2025, 3, 14, 18, 2, 11, 0, time.UTC),
				EnergyKWh: 7.65,
			},
		},
	}
	_, handler := newTestServer(t, &fakeCharger{}, hist)

	rec := doRequest(t, handler, http.MethodGet, "/api/v1/transactions?limit=10", bearerToken(t), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("transactions = %d, want 200", rec.Code)
	}
	if hist.limit != 10 {
		t.Errorf("limit passed = %d, want 10", hist.limit)
	}

	var resp struct {
		Transactions []transactionResponse `json:"transactions"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(resp.Transactions) != 1 {
		t.Fatalf("got %d transactions, want 1", len(resp.Transactions))
	}
	if resp.Transactions[0].EnergyKWh != 7.65 {
		t.Errorf("energy = %v, want 7.65", resp.Transactions[0].EnergyKWh)
	}
	if resp.Transactions[0].EndTime != "2025-03-14T18:02:11Z" {
		t.Errorf("end_time = %q, want 2025-03-14T18:02:11Z", resp.Transactions[0].EndTime)
	}
}

func TestHandleTransactions_InvalidLimit(t *testing.T) {
	_, handler := newTestServer(t, &fakeCharger{}, &fakeHistory{})

	rec := doRequest(t, handler, http.MethodGet, "/api/v1/transactions?limit=-1", bearerToken(t), nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("transactions with bad limit = %d, want 400", rec.Code)
	}
}

func TestHandleTransactions_HistoryDisabled(t *testing.T) {
	_, handler := newTestServer(t, &fakeCharger{}, nil)

	rec := doRequest(t, handler, http.MethodGet, "/api/v1/transactions", bearerToken(t), nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("transactions without history = %d, want 404", rec.Code)
	}
}

func TestTicketStore_SingleUse(t *testing.T) {
	store := newTicketStore()

	ticket := store.issue()
	if ticket == "" {
		t.Fatal("expected a ticket")
	}

	if !store.consume(ticket) {
		t.Error("first consume should succeed")
	}
	if store.consume(ticket) {
		t.Error("second consume should fail (single use)")
	}
	if store.consume("unknown-ticket") {
		t.Error("unknown ticket should fail")
	}
}

func TestNew_RequiresDependencies(t *testing.T) {
	if _, err := New(Deps{Charger: &fakeCharger{}}); err == nil {
		t.Error("New() without logger should fail")
	}
	if _, err := New(Deps{Logger: testLogger(t)}); err == nil {
		t.Error("New() without charger should fail")
	}
}
