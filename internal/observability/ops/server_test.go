package ops

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"castbot/pkg/logx"
)

func get(t *testing.T, h http.Handler, target string, header ...string) (int, string) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if len(header) == 2 {
		req.Header.Set(header[0], header[1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	body, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)
	return rec.Code, string(body)
}

func TestHealthz(t *testing.T) {
	t.Parallel()
	healthy := true
	s := New(Config{}, Deps{Healthy: func(context.Context) error {
		if healthy {
			return nil
		}
		return errors.New("scheduler not running")
	}}, logx.Nop())
	h := s.Router()

	code, body := get(t, h, "/healthz")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body)

	healthy = false
	code, body = get(t, h, "/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Contains(t, body, "scheduler not running")
}

func TestStatsAndMetricsRoutes(t *testing.T) {
	t.Parallel()
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("castbot_ticks_total 1")) })
	deps := Deps{
		Metrics: metrics,
		Stats:   func(context.Context) (any, error) { return map[string]int{"pending": 2}, nil },
	}

	h := New(Config{MetricsEnabled: true}, deps, logx.Nop()).Router()
	code, body := get(t, h, "/stats")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"pending":2}`, body)
	code, body = get(t, h, "/metrics")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "castbot_ticks_total")

	h = New(Config{MetricsEnabled: false}, deps, logx.Nop()).Router()
	code, _ = get(t, h, "/metrics")
	assert.Equal(t, http.StatusNotFound, code)
	code, _ = get(t, h, "/debug/pprof/")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestTokenGuardsEverythingButHealthz(t *testing.T) {
	t.Parallel()
	deps := Deps{Stats: func(context.Context) (any, error) { return "x", nil }}
	h := New(Config{Token: "s3cret", PprofEnabled: true}, deps, logx.Nop()).Router()

	code, _ := get(t, h, "/healthz")
	assert.Equal(t, http.StatusOK, code)
	code, _ = get(t, h, "/stats")
	assert.Equal(t, http.StatusUnauthorized, code)
	code, _ = get(t, h, "/stats?token=nope")
	assert.Equal(t, http.StatusUnauthorized, code)
	code, _ = get(t, h, "/stats?token=s3cret")
	assert.Equal(t, http.StatusOK, code)
	code, _ = get(t, h, "/stats", "Authorization", "Bearer s3cret")
	assert.Equal(t, http.StatusOK, code)
	code, _ = get(t, h, "/debug/pprof/", "Authorization", "Bearer s3cret")
	assert.Equal(t, http.StatusOK, code)
}

func TestStartStop(t *testing.T) {
	t.Parallel()
	s := New(Config{Addr: "127.0.0.1:0"}, Deps{}, logx.Nop())
	require.NoError(t, s.Start(context.Background()))
	addr := s.Addr()
	require.NotEmpty(t, addr)

	resp, err := http.Get("http://" + addr + "/healthz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	s.Stop(context.Background())
	assert.Empty(t, s.Addr())
}

func TestRefusesPublicPprofWithoutToken(t *testing.T) {
	t.Parallel()
	s := New(Config{Addr: "0.0.0.0:0", PprofEnabled: true}, Deps{}, logx.Nop())
	require.ErrorIs(t, s.Start(context.Background()), ErrInsecureBind)
	assert.True(t, isLoopbackAddr("127.0.0.1:1"))
	assert.True(t, isLoopbackAddr("localhost:1"))
	assert.False(t, isLoopbackAddr(":9465"))
}
