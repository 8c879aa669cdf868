package httpmiddleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/sdk/zctx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestWrap_Order(t *testing.T) {
	var calls []string
	mark := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls = append(calls, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := Wrap(okHandler(), mark("outer"), mark("inner"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, []string{"outer", "inner"}, calls)
}

func TestMakeRouteFinder(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/api/order/{id}", func(http.ResponseWriter, *http.Request) {})
	find := MakeRouteFinder(r)

	pattern, ok := find(httptest.NewRequest(http.MethodGet, "/api/order/12", nil))
	require.True(t, ok)
	assert.Equal(t, "/api/order/{id}", pattern)

	_, ok = find(httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.False(t, ok)
}

func TestInjectLoggerAndLogRequests(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)

	r := chi.NewRouter()
	r.Get("/api/menu", func(w http.ResponseWriter, r *http.Request) {
		zctx.From(r.Context()).Info("Handler ran")
		w.WriteHeader(http.StatusTeapot)
	})

	h := Wrap(r,
		RequestID(),
		InjectLogger(zap.New(core)),
		LogRequests(MakeRouteFinder(r)),
	)
	req := httptest.NewRequest(http.MethodGet, "/api/menu", nil)
	req.Header.Set("X-Request-ID", "req-1")
	h.ServeHTTP(httptest.NewRecorder(), req)

	handlerLogs := logs.FilterMessage("Handler ran").All()
	require.Len(t, handlerLogs, 1)
	assert.Equal(t, "req-1", handlerLogs[0].ContextMap()["request_id"])

	reqLogs := logs.FilterMessage("Request").All()
	require.Len(t, reqLogs, 1)
	fields := reqLogs[0].ContextMap()
	assert.Equal(t, int64(http.StatusTeapot), fields["status"])
	assert.Equal(t, "/api/menu", fields["route"])
}

func TestLogRequests_ServerErrorIsWarning(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)

	fail := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	noRoute := func(*http.Request) (string, bool) { return "", false }

	h := Wrap(fail, InjectLogger(zap.New(core)), LogRequests(noRoute))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/x", nil))

	entries := logs.FilterMessage("Request failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zap.WarnLevel, entries[0].Level)
}
