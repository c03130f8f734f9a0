package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestHTTPSMSProviderSuccess(t *testing.T) {
	var received smsRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != smsSendPath {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("api-key") != "key" {
			t.Errorf("api-key header missing")
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"code": "ok", "message": "Successfully Sent"})
	}))
	defer srv.Close()

	p := NewHTTPSMSProvider(HTTPSMSOptions{BaseURL: srv.URL, APIKey: "key", Sender: "GoldAssay", Timeout: time.Second}, zerolog.Nop())
	if err := p.SendSMS(context.Background(), []string{"233244123456"}, "hello"); err != nil {
		t.Fatalf("SendSMS: %v", err)
	}
	if received.Sender != "GoldAssay" || received.Message != "hello" || len(received.Recipients) != 1 {
		t.Fatalf("unexpected payload %+v", received)
	}
}

func TestHTTPSMSProviderRejectsNonOKCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"code": "102", "message": "Insufficient balance"})
	}))
	defer srv.Close()

	p := NewHTTPSMSProvider(HTTPSMSOptions{BaseURL: srv.URL, APIKey: "key", Sender: "X"}, zerolog.Nop())
	err := p.SendSMS(context.Background(), []string{"233244123456"}, "hello")
	if err == nil || !strings.Contains(err.Error(), "Insufficient balance") {
		t.Fatalf("expected provider rejection, got %v", err)
	}
}

func TestHTTPSMSProviderHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"code":"invalid_key","message":"Invalid API key"}`))
	}))
	defer srv.Close()

	p := NewHTTPSMSProvider(HTTPSMSOptions{BaseURL: srv.URL, APIKey: "bad", Sender: "X"}, zerolog.Nop())
	if err := p.SendSMS(context.Background(), []string{"233244123456"}, "hello"); err == nil {
		t.Fatal("401 must fail")
	}
	if err := p.SendSMS(context.Background(), nil, "hello"); err == nil {
		t.Fatal("no recipients must fail")
	}
}

func TestServiceReportsGatewayFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"code": "error"})
	}))
	defer srv.Close()

	p := NewHTTPSMSProvider(HTTPSMSOptions{BaseURL: srv.URL, APIKey: "key", Sender: "X"}, zerolog.Nop())
	svc := NewService(seededUsers(), p, nil, zerolog.Nop())
	if svc.SendSMS(context.Background(), "0244123456", "hello") {
		t.Fatal("non-ok gateway code must be reported as failure")
	}
}

func TestSendgridProvider(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != sendgridEndpoint {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
			t.Errorf("missing bearer auth")
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	p := NewSendgridProvider(SendgridOptions{APIKey: "sg", FromAddress: "noreply@x.io", SubjectPrefix: "[T] ", Host: srv.URL}, zerolog.Nop())
	if err := p.SendEmail(context.Background(), "ceo@x.io", "Rate approved", "body"); err != nil {
		t.Fatalf("SendEmail: %v", err)
	}
	if body["subject"] != "[T] Rate approved" {
		t.Fatalf("unexpected subject in payload %v", body["subject"])
	}
}

func TestSendgridProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"errors":[{"message":"forbidden"}]}`))
	}))
	defer srv.Close()

	p := NewSendgridProvider(SendgridOptions{APIKey: "sg", FromAddress: "noreply@x.io", Host: srv.URL}, zerolog.Nop())
	if err := p.SendEmail(context.Background(), "ceo@x.io", "s", "b"); err == nil {
		t.Fatal("403 must fail")
	}
}
