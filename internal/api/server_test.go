package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ashgrove-media/mediafleet/internal/client"
	"github.com/ashgrove-media/mediafleet/internal/infrastructure/config"
	"github.com/ashgrove-media/mediafleet/internal/infrastructure/logging"
	"github.com/ashgrove-media/mediafleet/internal/modulestore"
)

// stubFleet implements Fleet with canned responses.
type stubFleet struct {
	infos    []client.ClientInfo
	channels []client.Channel
	status   client.Status
	failed   []int

	restarts []string
	refresh  int

	epgPast   []int
	epgFuture []int

	systemEvents []string
}

func (f *stubFleet) ClientInfos(context.Context) ([]client.ClientInfo, error) {
	return f.infos, nil
}
func (f *stubFleet) CreatedClientCount() int { return len(f.infos) }
func (f *stubFleet) HasIgnoredClients() bool { return false }

func (f *stubFleet) UpdateClients(context.Context) error {
	f.refresh++
	return nil
}

func (f *stubFleet) RequestRestart(moduleID string, instanceID modulestore.InstanceID) error {
	f.restarts = append(f.restarts, moduleID)
	return nil
}

func (f *stubFleet) GetChannels(context.Context, bool) ([]client.Channel, client.Status, []int) {
	return f.channels, f.status, f.failed
}

func (f *stubFleet) GetChannelGroups(context.Context, bool) ([]client.ChannelGroup, client.Status, []int) {
	return nil, f.status, f.failed
}

func (f *stubFleet) GetTimers(context.Context) ([]client.Timer, client.Status, []int) {
	return nil, f.status, f.failed
}

func (f *stubFleet) GetRecordings(context.Context, bool) ([]client.Recording, client.Status, []int) {
	return nil, f.status, f.failed
}

func (f *stubFleet) DeleteAllRecordingsFromTrash(context.Context) (client.Status, []int) {
	return f.status, f.failed
}

func (f *stubFleet) GetProviders(context.Context) ([]client.Provider, client.Status, []int) {
	return nil, f.status, f.failed
}

func (f *stubFleet) GetBackendProperties(context.Context) ([]client.BackendProperties, client.Status, []int) {
	return nil, f.status, f.failed
}

func (f *stubFleet) SetEPGMaxPastDays(_ context.Context, days int) (client.Status, []int) {
	f.epgPast = append(f.epgPast, days)
	return f.status, f.failed
}

func (f *stubFleet) SetEPGMaxFutureDays(_ context.Context, days int) (client.Status, []int) {
	f.epgFuture = append(f.epgFuture, days)
	return f.status, f.failed
}

func (f *stubFleet) OnSystemSleep(context.Context) {
	f.systemEvents = append(f.systemEvents, "sleep")
}

func (f *stubFleet) OnSystemWake(context.Context) {
	f.systemEvents = append(f.systemEvents, "wake")
}

func (f *stubFleet) OnPowerSavingActivated(context.Context) {
	f.systemEvents = append(f.systemEvents, "power-saving-on")
}

func (f *stubFleet) OnPowerSavingDeactivated(context.Context) {
	f.systemEvents = append(f.systemEvents, "power-saving-off")
}

func (f *stubFleet) StopAll(context.Context) {
	f.systemEvents = append(f.systemEvents, "stop-all")
}

func (f *stubFleet) ContinueAll(context.Context) {
	f.systemEvents = append(f.systemEvents, "continue-all")
}

func (f *stubFleet) AnyClientSupportingEPG() bool              { return true }
func (f *stubFleet) AnyClientSupportingRecordings() bool       { return true }
func (f *stubFleet) AnyClientSupportingRecordingsDelete() bool { return false }

// newTestServer builds a server and router around a stub fleet.
func newTestServer(t *testing.T, fleet *stubFleet, secret string) http.Handler {
	t.Helper()

	srv, err := New(Deps{
		Config:   config.APIConfig{},
		WS:       config.WebSocketConfig{MaxMessageSize: 4096, PingInterval: 30, PongTimeout: 60},
		Security: config.SecurityConfig{JWT: config.JWTConfig{Secret: secret}},
		Logger:   logging.Default(),
		Fleet:    fleet,
		Version:  "test",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	srv.hub = NewHub(srv.wsCfg, srv.logger)
	return srv.buildRouter()
}

func TestNewRequiresFleet(t *testing.T) {
	_, err := New(Deps{Logger: logging.Default()})
	if err == nil {
		t.Error("New should reject deps without a fleet")
	}
}

func TestHealthEndpoint(t *testing.T) {
	router := newTestServer(t, &stubFleet{}, "")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if body["status"] != "ok" || body["version"] != "test" {
		t.Errorf("body = %v, want status ok and version test", body)
	}
}

func TestListClients(t *testing.T) {
	fleet := &stubFleet{infos: []client.ClientInfo{
		{ClientID: 101, ModuleID: "pvr.hts", InstanceID: 1, Enabled: true, Name: "Tvheadend"},
	}}
	router := newTestServer(t, fleet, "")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/clients", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body struct {
		Clients []client.ClientInfo `json:"clients"`
		Created int                 `json:"created"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if len(body.Clients) != 1 || body.Clients[0].ModuleID != "pvr.hts" {
		t.Errorf("clients = %v, want one pvr.hts entry", body.Clients)
	}
}

func TestRestartClient(t *testing.T) {
	fleet := &stubFleet{}
	router := newTestServer(t, fleet, "")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/clients/pvr.hts/1/restart", nil))

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}
	if len(fleet.restarts) != 1 || fleet.restarts[0] != "pvr.hts" {
		t.Errorf("restarts = %v, want [pvr.hts]", fleet.restarts)
	}
}

func TestRestartClientRejectsBadInstance(t *testing.T) {
	router := newTestServer(t, &stubFleet{}, "")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/clients/pvr.hts/banana/restart", nil))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestGetChannelsReportsFanoutOutcome(t *testing.T) {
	fleet := &stubFleet{
		channels: []client.Channel{{ClientID: 101, Name: "BBC One"}},
		status:   client.StatusRecoverable,
		failed:   []int{202},
	}
	router := newTestServer(t, fleet, "")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/channels", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body struct {
		Items         []client.Channel `json:"items"`
		Status        string           `json:"status"`
		FailedClients []int            `json:"failed_clients"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if len(body.Items) != 1 || body.Status != client.StatusRecoverable.String() {
		t.Errorf("body = %+v, want one channel with recoverable status", body)
	}
	if len(body.FailedClients) != 1 || body.FailedClients[0] != 202 {
		t.Errorf("failed_clients = %v, want [202]", body.FailedClients)
	}
}

func TestSetEPGWindow(t *testing.T) {
	fleet := &stubFleet{}
	router := newTestServer(t, fleet, "")

	payload := bytes.NewBufferString(`{"past_days": 7, "future_days": 14}`)
	req := httptest.NewRequest(http.MethodPut, "/api/v1/epg/window", payload)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if len(fleet.epgPast) != 1 || fleet.epgPast[0] != 7 {
		t.Errorf("past days pushed = %v, want [7]", fleet.epgPast)
	}
	if len(fleet.epgFuture) != 1 || fleet.epgFuture[0] != 14 {
		t.Errorf("future days pushed = %v, want [14]", fleet.epgFuture)
	}
}

func TestSetEPGWindowRejectsEmptyBody(t *testing.T) {
	router := newTestServer(t, &stubFleet{}, "")

	req := httptest.NewRequest(http.MethodPut, "/api/v1/epg/window", bytes.NewBufferString(`{}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestSystemEvents(t *testing.T) {
	fleet := &stubFleet{}
	router := newTestServer(t, fleet, "")

	for _, event := range []string{"sleep", "wake", "power-saving-on", "power-saving-off"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/system/"+event, nil))
		if rec.Code != http.StatusAccepted {
			t.Errorf("POST /system/%s = %d, want 202", event, rec.Code)
		}
	}

	// Sleep notifies first then suspends; wake resumes first then notifies.
	want := []string{"sleep", "stop-all", "continue-all", "wake", "power-saving-on", "power-saving-off"}
	if len(fleet.systemEvents) != len(want) {
		t.Fatalf("system events relayed = %v, want %v", fleet.systemEvents, want)
	}
	for i, event := range want {
		if fleet.systemEvents[i] != event {
			t.Errorf("systemEvents[%d] = %q, want %q", i, fleet.systemEvents[i], event)
		}
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/system/hibernate", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown system event = %d, want 404", rec.Code)
	}
}

func TestAuthMiddlewareRejectsMissingToken(t *testing.T) {
	router := newTestServer(t, &stubFleet{}, "test-secret")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/clients", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status without token = %d, want 401", rec.Code)
	}
}

func TestAuthMiddlewareAcceptsValidToken(t *testing.T) {
	const secret = "test-secret"
	router := newTestServer(t, &stubFleet{}, secret)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "tester",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/clients", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status with valid token = %d, want 200", rec.Code)
	}
}

func TestAuthMiddlewareRejectsWrongSecret(t *testing.T) {
	router := newTestServer(t, &stubFleet{}, "right-secret")

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "tester",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte("wrong-secret"))
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/clients", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status with wrong secret = %d, want 401", rec.Code)
	}
}
