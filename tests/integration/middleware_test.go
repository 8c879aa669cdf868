//go:build integration

package integration

import (
	"context"
	"net/http"
	"strings"
	"testing"
)

func TestRequestID_Generated(t *testing.T) {
	resp := doGet(t, "/livez")
	defer resp.Body.Close()

	if resp.Header.Get("X-Request-ID") == "" {
		t.Fatal("X-Request-ID header not present")
	}
}

func TestRequestID_Echoed(t *testing.T) {
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, baseURL+"/api/menu", nil)
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	req.Header.Set("X-Request-ID", "ledger-request-42")

	resp, err := httpClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()

	if got := resp.Header.Get("X-Request-ID"); got != "ledger-request-42" {
		t.Errorf("X-Request-ID: got %q, want %q", got, "ledger-request-42")
	}
}

func TestCORS_PreflightForStatusChange(t *testing.T) {
	req, err := http.NewRequestWithContext(context.Background(), http.MethodOptions, baseURL+"/api/order/0/status", nil)
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	req.Header.Set("Origin", "http://example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPut)
	req.Header.Set("Access-Control-Request-Headers", "api_key")

	resp, err := httpClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}
	if acao := resp.Header.Get("Access-Control-Allow-Origin"); acao == "" {
		t.Error("Access-Control-Allow-Origin header not present")
	}
	if acam := resp.Header.Get("Access-Control-Allow-Methods"); !strings.Contains(acam, http.MethodPut) {
		t.Errorf("Access-Control-Allow-Methods: got %q, want PUT allowed", acam)
	}
	if acah := resp.Header.Get("Access-Control-Allow-Headers"); !strings.Contains(acah, "api_key") {
		t.Errorf("Access-Control-Allow-Headers: got %q, want api_key allowed", acah)
	}
}

func TestCORS_SimpleRequestExposesHeaders(t *testing.T) {
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, baseURL+"/api/menu", nil)
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	req.Header.Set("Origin", "http://example.com")

	resp, err := httpClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()

	if acao := resp.Header.Get("Access-Control-Allow-Origin"); acao == "" {
		t.Error("Access-Control-Allow-Origin header not present")
	}
	if expose := resp.Header.Get("Access-Control-Expose-Headers"); !strings.Contains(expose, "X-Request-ID") {
		t.Errorf("Access-Control-Expose-Headers: got %q", expose)
	}
}

func TestRateLimit_Headers(t *testing.T) {
	for _, key := range []string{"", aliceKey} {
		resp := do(t, http.MethodGet, "/api/menu", key, nil)
		resp.Body.Close()

		if limit := resp.Header.Get("X-RateLimit-Limit"); limit == "" {
			t.Error("X-RateLimit-Limit header not present")
		}
		if remaining := resp.Header.Get("X-RateLimit-Remaining"); remaining == "" {
			t.Error("X-RateLimit-Remaining header not present")
		}
	}
}
