package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/lensmarket/api/internal/platform/requestctx"
)

func TestServiceLoggerPrefersRequestLogger(t *testing.T) {
	baseCore, baseLogs := observer.New(zapcore.DebugLevel)
	reqCore, reqLogs := observer.New(zapcore.DebugLevel)
	log := ServiceLogger(zap.New(baseCore))

	log(context.Background(), "asset.photo.uploaded", map[string]any{"photo": "pho_1", "size": 3})
	ctx := requestctx.WithLogger(context.Background(), zap.New(reqCore))
	log(ctx, "notification.publish.failed", map[string]any{"error": "boom\x00"})

	if baseLogs.Len() != 1 || reqLogs.Len() != 1 {
		t.Fatalf("expected one entry per logger, got base=%d request=%d", baseLogs.Len(), reqLogs.Len())
	}
	entry := baseLogs.All()[0]
	if entry.Message != "asset.photo.uploaded" || entry.Level != zapcore.InfoLevel {
		t.Fatalf("unexpected entry: %+v", entry)
	}
	if entry.ContextMap()["photo"] != "pho_1" {
		t.Fatalf("missing field: %v", entry.ContextMap())
	}
	failed := reqLogs.All()[0]
	if failed.Level != zapcore.ErrorLevel {
		t.Fatalf("expected error level for failure event, got %v", failed.Level)
	}
	if failed.ContextMap()["error"] != "boom" {
		t.Fatalf("expected control characters stripped, got %q", failed.ContextMap()["error"])
	}
}

func TestEventLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		"retouch.completed":           zapcore.InfoLevel,
		"retouch.completion.conflict": zapcore.WarnLevel,
		"coordinator.retry":           zapcore.WarnLevel,
		"asset.object.remove.failed":  zapcore.ErrorLevel,
	}
	for event, want := range cases {
		if got := eventLevel(event); got != want {
			t.Fatalf("%s: expected %v, got %v", event, want, got)
		}
	}
}

func TestCloudTraceHeaderRoundTrip(t *testing.T) {
	sc, ok := parseCloudTraceContext("105445aa7843bc8bf206b12000100000/1;o=1")
	if !ok {
		t.Fatalf("expected header to parse")
	}
	if !sc.IsSampled() || !sc.IsRemote() {
		t.Fatalf("unexpected span context: %+v", sc)
	}
	info := requestctx.TraceInfo{TraceID: sc.TraceID().String(), SpanID: sc.SpanID().String(), Sampled: true}
	if got := formatCloudTraceHeader(info); got != "105445aa7843bc8bf206b12000100000/1;o=1" {
		t.Fatalf("unexpected formatted header: %s", got)
	}

	for _, bad := range []string{"", "nope", "zz/1", "105445aa7843bc8bf206b12000100000/abc"} {
		if _, ok := parseCloudTraceContext(bad); ok {
			t.Fatalf("expected %q to be rejected", bad)
		}
	}
}

func TestTraceMiddlewareUsesCloudTraceParent(t *testing.T) {
	var got trace.SpanContext
	var info requestctx.TraceInfo
	handler := TraceMiddleware("lensmarket")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = trace.SpanContextFromContext(r.Context())
		info, _ = requestctx.Trace(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(cloudTraceHeader, "105445aa7843bc8bf206b12000100000/1;o=1")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	// Without an SDK the span is non-recording and carries the remote parent.
	if got.TraceID().String() != "105445aa7843bc8bf206b12000100000" {
		t.Fatalf("expected remote trace id, got %s", got.TraceID())
	}
	if info.TraceID != got.TraceID().String() || info.ProjectID != "lensmarket" {
		t.Fatalf("unexpected trace info: %+v", info)
	}
}

func TestRecoveryMiddlewareWritesEnvelope(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	handler := InjectLoggerMiddleware(zap.New(core))(RecoveryMiddleware()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "internal_server_error") {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
	if logs.FilterMessage("panic recovered").Len() != 1 {
		t.Fatalf("expected panic to be logged")
	}
}

func TestRequestLoggerMiddlewareLevels(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	handler := InjectLoggerMiddleware(zap.New(core))(RequestLoggerMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusConflict)
	})))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/payments", nil))

	entries := logs.FilterMessage("request completed").All()
	if len(entries) != 1 || entries[0].Level != zapcore.WarnLevel {
		t.Fatalf("expected one warn entry, got %+v", entries)
	}
	if status, _ := entries[0].ContextMap()["status"].(int64); status != http.StatusConflict {
		t.Fatalf("expected status 409, got %v", entries[0].ContextMap()["status"])
	}
}
