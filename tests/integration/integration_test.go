//go:build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/xenking/burger-ledger/internal/app"
	"github.com/xenking/burger-ledger/internal/domain/account"
	"github.com/xenking/burger-ledger/internal/domain/auth"
	"github.com/xenking/burger-ledger/internal/handler"
	"github.com/xenking/burger-ledger/internal/storage/postgres"
)

const (
	testPepper  = "test-pepper-for-integration"
	merchant    = "shop"
	merchantKey = "merchant-key"
	aliceKey    = "alice-key"
	bobKey      = "bob-key"
)

var (
	baseURL    string
	httpClient *http.Client
)

// Response types are defined locally to keep tests black-box.

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

type errorResponse struct {
	Code    int    `json:"code"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

type orderItem struct {
	Item     string `json:"item"`
	Quantity int    `json:"quantity"`
}

type orderRequest struct {
	Items []orderItem `json:"items"`
}

type orderResponse struct {
	ID         uint64      `json:"id"`
	Customer   string      `json:"customer"`
	Items      []orderItem `json:"items"`
	TotalPrice string      `json:"total_price"`
	Paid       bool        `json:"paid"`
	Status     string      `json:"status"`
	Completed  bool        `json:"completed"`
}

type noopTelemetry struct{}

func (noopTelemetry) TextMapPropagator() propagation.TextMapPropagator {
	return propagation.TraceContext{}
}
func (noopTelemetry) TracerProvider() trace.TracerProvider { return tracenoop.NewTracerProvider() }
func (noopTelemetry) MeterProvider() metric.MeterProvider  { return metricnoop.NewMeterProvider() }

func TestMain(m *testing.M) {
	os.Exit(testMain(m))
}

func testMain(m *testing.M) int {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	pgAddr, stopPostgres, err := startContainer(ctx, testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "ledger",
			"POSTGRES_PASSWORD": "ledger",
			"POSTGRES_DB":       "ledger",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(time.Minute),
	})
	if err != nil {
		log.Printf("start postgres: %v", err)
		return 1
	}
	defer stopPostgres()
	databaseURL := fmt.Sprintf("postgres://ledger:ledger@%s/ledger?sslmode=disable", pgAddr)

	// Redis backs the order locks and rate limit counters, as in a
	// multi-replica deployment.
	redisAddr, stopRedis, err := startContainer(ctx, testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(time.Minute),
	})
	if err != nil {
		log.Printf("start redis: %v", err)
		return 1
	}
	defer stopRedis()

	addr, err := freeAddr()
	if err != nil {
		log.Printf("pick listen address: %v", err)
		return 1
	}
	cfg := &app.Config{
		Addr:            addr,
		DatabaseURL:     databaseURL,
		APIKeyPepper:    testPepper,
		MerchantAccount: merchant,
		Lock:            app.LockConfig{RedisAddr: redisAddr, TTL: 5 * time.Second},
		RateLimit:       app.RateLimitConfig{Max: 10_000, Window: time.Minute},
		CORS:            app.CORSConfig{Origins: []string{"*"}},
		Graceful:        app.GracefulConfig{ShutdownTimeout: 5 * time.Second},
	}

	serverCtx, stopServer := context.WithCancel(context.Background())
	serverDone := make(chan error, 1)
	go func() {
		serverDone <- app.Run(serverCtx, zap.NewNop(), noopTelemetry{}, cfg)
	}()
	defer func() {
		stopServer()
		if err := <-serverDone; err != nil {
			log.Printf("server: %v", err)
		}
	}()

	baseURL = "http://" + addr
	httpClient = &http.Client{Timeout: 10 * time.Second}

	if err := waitForReady(ctx, serverDone); err != nil {
		log.Printf("wait for server: %v", err)
		return 1
	}
	if err := seed(ctx, databaseURL); err != nil {
		log.Printf("seed: %v", err)
		return 1
	}
	log.Printf("API available at %s", baseURL)

	return m.Run()
}

// startContainer runs req and returns the host:port of its lowest exposed
// port.
func startContainer(ctx context.Context, req testcontainers.ContainerRequest) (string, func(), error) {
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return "", nil, err
	}
	stop := func() {
		if err := c.Terminate(context.Background()); err != nil {
			log.Printf("terminate %s: %v", req.Image, err)
		}
	}

	endpoint, err := c.Endpoint(ctx, "")
	if err != nil {
		stop()
		return "", nil, fmt.Errorf("container endpoint: %w", err)
	}
	return endpoint, stop, nil
}

func freeAddr() (string, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", err
	}
	defer func() { _ = l.Close() }()
	return l.Addr().String(), nil
}

// waitForReady polls /readyz until the server, and so its migrations, is up.
func waitForReady(ctx context.Context, serverDone <-chan error) error {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	var lastErr string
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timed out waiting for readiness (last: %s): %w", lastErr, ctx.Err())
		case err := <-serverDone:
			return fmt.Errorf("server exited early: %w", err)
		case <-ticker.C:
			resp, err := httpClient.Get(baseURL + "/readyz")
			if err != nil {
				lastErr = err.Error()
				continue
			}
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
			lastErr = fmt.Sprintf("status %d", resp.StatusCode)
		}
	}
}

func seed(ctx context.Context, databaseURL string) error {
	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	accounts := postgres.NewAccountRepository(pool)
	keys := postgres.NewAPIKeyRepository(pool)
	for acct, balance := range map[account.ID]int64{merchant: 0, "alice": 10_000, "bob": 100} {
		if err := accounts.Upsert(ctx, acct, decimal.NewFromInt(balance)); err != nil {
			return err
		}
	}
	for key, acct := range map[string]account.ID{merchantKey: merchant, aliceKey: "alice", bobKey: "bob"} {
		if err := keys.Upsert(ctx, auth.APIKeyInfo{
			ID:      "it-" + string(acct),
			KeyHash: handler.HashKey([]byte(testPepper), key),
			Name:    string(acct),
			Account: acct,
		}); err != nil {
			return err
		}
	}
	return nil
}

// HTTP helpers.

func do(t *testing.T, method, path, apiKey string, body any) *http.Response {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(context.Background(), method, baseURL+path, reader)
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if apiKey != "" {
		req.Header.Set("api_key", apiKey)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}

	return resp
}

func doGet(t *testing.T, path string) *http.Response {
	t.Helper()
	return do(t, http.MethodGet, path, "", nil)
}

func decodeJSON[T any](t *testing.T, resp *http.Response) T {
	t.Helper()

	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	return v
}
