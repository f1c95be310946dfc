package server

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/novamind/engram/memory/embedder/mock"
	"github.com/novamind/engram/memory/store/memstore"
)

func TestNew_RequiresKeyAndStore(t *testing.T) {
	if _, err := New(Config{Store: memstore.New(mock.New(8))}); err == nil {
		t.Error("expected error without AnthropicKey")
	}
	if _, err := New(Config{AnthropicKey: "sk-test"}); err == nil {
		t.Error("expected error without Store")
	}
	if _, err := New(Config{AnthropicKey: "sk-test", Store: memstore.New(mock.New(8))}); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv, err := New(Config{AnthropicKey: "sk-test", Store: memstore.New(mock.New(8))})
	if err != nil {
		t.Fatal(err)
	}

	rec := httptest.NewRecorder()
	srv.handleHealth(rec, httptest.NewRequest("GET", "/health", nil))

	if rec.Code != 200 {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "ok" {
		t.Errorf("status = %q, want ok", body["status"])
	}
}
