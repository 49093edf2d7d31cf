package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	accountdomain "relaydesk-backend/internal/account/domain"
	"relaydesk-backend/internal/channel/domain"
	"relaydesk-backend/internal/channel/usecase"
	inboxdomain "relaydesk-backend/internal/inbox/domain"
	"relaydesk-backend/internal/responder"
	"relaydesk-backend/pkg/types"
	"relaydesk-backend/pkg/whatsapp"

	"github.com/gin-gonic/gin"
)

type stubAccounts struct{}

func (stubAccounts) Get(_ context.Context, id string) (*accountdomain.Account, error) {
	if id != "acc-1" {
		return nil, accountdomain.ErrAccountNotFound
	}
	return &accountdomain.Account{ID: id}, nil
}

type stubChannel struct {
	mu       sync.Mutex
	events   []domain.InboundEvent
	channels []types.Channel
	statuses []domain.StatusUpdate
	result   *usecase.Result
}

func (s *stubChannel) HandleMessage(_ context.Context, ownerID string, channel types.Channel, ev domain.InboundEvent) (*usecase.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	s.channels = append(s.channels, channel)
	if s.result != nil {
		return s.result, nil
	}
	return &usecase.Result{
		Decision: inboxdomain.Decision{Accepted: true},
		Reply:    &responder.Reply{Text: "Hi! How can I help?", ProfileID: "p-1"},
	}, nil
}

func (s *stubChannel) HandleStatus(_ context.Context, update domain.StatusUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses = append(s.statuses, update)
	return nil
}

func newRouter(h *ChannelHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h.dispatch = func(fn func()) { fn() }
	r := gin.New()
	r.GET("/api/webhooks/whatsapp/:ownerId", h.VerifyWhatsApp)
	r.POST("/api/webhooks/whatsapp/:ownerId", h.ReceiveWhatsApp)
	r.POST("/api/webhooks/voice/:ownerId", h.ReceiveVoice)
	r.POST("/api/chat/:ownerId/messages", h.SendChatMessage)
	return r
}

func TestVerifyWhatsApp(t *testing.T) {
	r := newRouter(NewChannelHandler(&stubChannel{}, stubAccounts{}, WebhookConfig{VerifyToken: "tok"}))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/webhooks/whatsapp/acc-1?hub.mode=subscribe&hub.verify_token=tok&hub.challenge=42", nil))
	if w.Code != http.StatusOK || w.Body.String() != "42" {
		t.Errorf("expected challenge echo, got %d %q", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/webhooks/whatsapp/acc-1?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=42", nil))
	if w.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", w.Code)
	}
}

func TestReceiveWhatsApp_Signature(t *testing.T) {
	stub := &stubChannel{}
	r := newRouter(NewChannelHandler(stub, stubAccounts{}, WebhookConfig{AppSecret: "s3cret"}))
	body := []byte(`{"entry":[{"changes":[{"value":{
		"messages":[{"from":"5511999990000","id":"wamid.A","type":"text","text":{"body":"hello"}}],
		"statuses":[{"id":"wamid.OUT","status":"read"}]}}]}]}`)

	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/whatsapp/acc-1", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Hub-Signature-256", "sha256=00ff")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad signature, got %d", w.Code)
	}
	if len(stub.events) != 0 {
		t.Fatal("unsigned payload must not be processed")
	}

	req = httptest.NewRequest(http.MethodPost, "/api/webhooks/whatsapp/acc-1", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Hub-Signature-256", whatsapp.Sign("s3cret", body))
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if len(stub.events) != 1 || stub.events[0].Sender != "+5511999990000" || stub.channels[0] != types.ChannelWhatsApp {
		t.Errorf("unexpected events %+v", stub.events)
	}
	if len(stub.statuses) != 1 || stub.statuses[0].Status != "read" {
		t.Errorf("unexpected statuses %+v", stub.statuses)
	}
}

func TestReceiveWhatsApp_UnknownOwner(t *testing.T) {
	r := newRouter(NewChannelHandler(&stubChannel{}, stubAccounts{}, WebhookConfig{}))
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/whatsapp/nobody", strings.NewReader(`{"from":"1","body":"x"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestSendChatMessage(t *testing.T) {
	stub := &stubChannel{}
	r := newRouter(NewChannelHandler(stub, stubAccounts{}, WebhookConfig{}))

	req := httptest.NewRequest(http.MethodPost, "/api/chat/acc-1/messages",
		strings.NewReader(`{"session_id":"sess-9","message":"hi, I'm ana@example.com"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Reply     string `json:"reply"`
		ProfileID string `json:"profile_id"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Reply != "Hi! How can I help?" || resp.ProfileID != "p-1" {
		t.Errorf("unexpected response %+v", resp)
	}
	if stub.channels[0] != types.ChannelChat || stub.events[0].Sender != "sess-9" {
		t.Errorf("unexpected event %+v", stub.events[0])
	}
}

func TestReceiveVoice_Duplicate(t *testing.T) {
	stub := &stubChannel{result: &usecase.Result{Decision: inboxdomain.Decision{Duplicate: true, Reason: inboxdomain.ReasonDuplicateID}}}
	r := newRouter(NewChannelHandler(stub, stubAccounts{}, WebhookConfig{}))

	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/voice/acc-1",
		strings.NewReader(`{"caller":"+1 555 0100","transcript":"call me back","call_id":"call-1"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"duplicate":true`) {
		t.Errorf("unexpected response %d %s", w.Code, w.Body.String())
	}
	if stub.events[0].Sender != "+15550100" || stub.channels[0] != types.ChannelVoice {
		t.Errorf("unexpected event %+v", stub.events[0])
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/webhooks/voice/acc-1", strings.NewReader(`{}`)))
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for missing fields, got %d", w.Code)
	}
}
