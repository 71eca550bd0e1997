package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Fawaz-003/Restaurant-Frontend-sub001/internal/platform/requestctx"
)

func TestRequestLoggerMiddlewareLogsStatus(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	logger := zap.New(core)

	handler := InjectLoggerMiddleware(logger)(RequestLoggerMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("missing"))
	})))

	req := httptest.NewRequest(http.MethodGet, "/cart", nil)
	req = req.WithContext(requestctx.WithDeviceID(req.Context(), "dev-1"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	completed := logs.FilterMessage("request completed").All()
	require.Len(t, completed, 1)
	require.Equal(t, zap.WarnLevel, completed[0].Level)
	fields := completed[0].ContextMap()
	require.EqualValues(t, http.StatusNotFound, fields["status"])
	require.Equal(t, "dev-1", fields["device_id"])
	require.EqualValues(t, 7, fields["bytes"])
}

func TestRecoveryMiddlewareWritesJSONError(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	handler := RecoveryMiddleware(zap.New(core))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Contains(t, rec.Body.String(), `"error":"internal_server_error"`)
	require.Equal(t, 1, logs.FilterMessage("panic recovered").Len())
}

func TestEventLoggerPrefersContextLogger(t *testing.T) {
	fallbackCore, fallbackLogs := observer.New(zap.DebugLevel)
	ctxCore, ctxLogs := observer.New(zap.DebugLevel)

	log := EventLogger(zap.New(fallbackCore))
	log(requestctx.WithLogger(context.Background(), zap.New(ctxCore)), "cart.sync", map[string]any{"lines": 2})
	log(context.Background(), "cart.sync", map[string]any{"error": "boom"})

	require.Equal(t, 1, ctxLogs.Len())
	require.Equal(t, zap.InfoLevel, ctxLogs.All()[0].Level)
	require.Equal(t, 1, fallbackLogs.Len())
	require.Equal(t, zap.WarnLevel, fallbackLogs.All()[0].Level)
}

func TestRequestAttributesCannotForgeLogLines(t *testing.T) {
	require.Equal(t, "abc", clean("a\nb\x00c", maxIDLen))
	require.Equal(t, "ab", clean("a\r\nbcdef", 2))
	require.Equal(t, "/", pathAttr("\n"))
	require.Equal(t, "/cart/items", pathAttr("/cart/items"))
	require.Equal(t, "GET", methodAttr("get\r\n"))
	require.Equal(t, "01HZX", idAttr("  01HZX\t"))
}
