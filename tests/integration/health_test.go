//go:build integration

package integration

import (
	"net/http"
	"testing"
)

func getHealth(t *testing.T, path string) healthResponse {
	t.Helper()
	resp := doGet(t, path)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("%s: expected 200, got %d", path, resp.StatusCode)
	}
	return decodeJSON[healthResponse](t, resp)
}

func TestHealthProbes(t *testing.T) {
	tests := []struct {
		path   string
		checks []string
	}{
		{path: "/livez", checks: []string{"goroutines"}},
		{path: "/readyz", checks: []string{"postgres", "redis"}},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			body := getHealth(t, tt.path)
			if body.Status != "ok" {
				t.Fatalf("expected status ok, got %q (checks: %v)", body.Status, body.Checks)
			}
			for _, name := range tt.checks {
				got, ok := body.Checks[name]
				if !ok {
					t.Errorf("check %q not reported (checks: %v)", name, body.Checks)
					continue
				}
				if got != "ok" {
					t.Errorf("check %q: got %q, want ok", name, got)
				}
			}
		})
	}
}

func TestReadyz_ProbesOnlyReadiness(t *testing.T) {
	body := getHealth(t, "/readyz")
	if _, ok := body.Checks["goroutines"]; ok {
		t.Errorf("liveness check listed on readiness probe: %v", body.Checks)
	}
}
