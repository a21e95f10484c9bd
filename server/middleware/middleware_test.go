package middleware_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kbukum/tsengine/logger"
	"github.com/kbukum/tsengine/server/middleware"
)

func ok(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func errorCode(t *testing.T, body []byte) string {
	t.Helper()
	var resp struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("body is not an error response: %v (%s)", err, body)
	}
	return resp.Error.Code
}

func TestRecovery(t *testing.T) {
	tests := []struct {
		name     string
		handler  http.HandlerFunc
		wantCode int
		wantLog  bool
	}{
		{"no panic", ok, http.StatusOK, false},
		{"panic", func(http.ResponseWriter, *http.Request) { panic("boom") }, http.StatusInternalServerError, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			h := middleware.Recovery(logger.NewWriter(&buf, "test"))(tt.handler)

			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/status", http.NoBody))

			if rr.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", rr.Code, tt.wantCode)
			}
			logged := strings.Contains(buf.String(), "handler panicked")
			if logged != tt.wantLog {
				t.Errorf("panic logged = %v, want %v (%s)", logged, tt.wantLog, buf.String())
			}
			if tt.wantLog {
				if code := errorCode(t, rr.Body.Bytes()); code != "INTERNAL_ERROR" {
					t.Errorf("error code = %q", code)
				}
				if !strings.Contains(buf.String(), `"error":"boom"`) {
					t.Errorf("log misses the panic value: %s", buf.String())
				}
			}
		})
	}
}

func TestRecoveryRepanicsAbort(t *testing.T) {
	h := middleware.Recovery(logger.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(http.ErrAbortHandler)
	}))
	defer func() {
		if v := recover(); v != http.ErrAbortHandler {
			t.Errorf("recovered %v, want ErrAbortHandler", v)
		}
	}()
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", http.NoBody))
}

func TestRequestID(t *testing.T) {
	tests := []struct {
		name     string
		incoming string
	}{
		{"generated", ""},
		{"preserved", "custom-id-123"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen string
			h := middleware.RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = middleware.RequestIDFromContext(r.Context())
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
			if tt.incoming != "" {
				req.Header.Set(middleware.HeaderRequestID, tt.incoming)
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)

			echoed := rr.Header().Get(middleware.HeaderRequestID)
			if echoed == "" || echoed != seen {
				t.Fatalf("echoed %q, context %q", echoed, seen)
			}
			if tt.incoming != "" && echoed != tt.incoming {
				t.Errorf("ID = %q, want %q", echoed, tt.incoming)
			}
		})
	}
}

func TestCORS(t *testing.T) {
	cfg := &middleware.CORSConfig{
		AllowedOrigins:   []string{"https://dash.example.com"},
		AllowedMethods:   []string{"GET", "POST"},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: true,
	}
	tests := []struct {
		name        string
		method      string
		origin      string
		wantCode    int
		wantOrigin  string
		wantMethods string
		wantCreds   string
	}{
		{"allowed origin", http.MethodGet, "https://dash.example.com", http.StatusOK, "https://dash.example.com", "GET, POST", "true"},
		{"preflight", http.MethodOptions, "https://dash.example.com", http.StatusNoContent, "https://dash.example.com", "GET, POST", "true"},
		{"other origin", http.MethodGet, "https://evil.example.com", http.StatusOK, "", "", ""},
		{"no origin", http.MethodGet, "", http.StatusOK, "", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := middleware.CORS(cfg)(http.HandlerFunc(ok))
			req := httptest.NewRequest(tt.method, "/status", http.NoBody)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)

			if rr.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", rr.Code, tt.wantCode)
			}
			if got := rr.Header().Get("Access-Control-Allow-Origin"); got != tt.wantOrigin {
				t.Errorf("Allow-Origin = %q, want %q", got, tt.wantOrigin)
			}
			if got := rr.Header().Get("Access-Control-Allow-Methods"); got != tt.wantMethods {
				t.Errorf("Allow-Methods = %q, want %q", got, tt.wantMethods)
			}
			if got := rr.Header().Get("Access-Control-Allow-Credentials"); got != tt.wantCreds {
				t.Errorf("Allow-Credentials = %q, want %q", got, tt.wantCreds)
			}
		})
	}
}

func TestCORSWildcard(t *testing.T) {
	h := middleware.CORS(&middleware.CORSConfig{AllowedOrigins: []string{"*"}})(http.HandlerFunc(ok))
	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	req.Header.Set("Origin", "http://localhost:3000")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("Allow-Origin = %q", got)
	}
}

func TestRequestLogger(t *testing.T) {
	tests := []struct {
		name      string
		path      string
		code      int
		wantLevel string
	}{
		{"success", "/status", http.StatusOK, "debug"},
		{"not found", "/pipelines/ZZZ", http.StatusNotFound, "warn"},
		{"server error", "/cancel", http.StatusInternalServerError, "error"},
		{"health skipped", "/health", http.StatusOK, ""},
		{"custom skip", "/events", http.StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			called := false
			h := middleware.RequestLogger(logger.NewWriter(&buf, "test"), "/events")(
				http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
					called = true
					w.WriteHeader(tt.code)
				}))

			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, tt.path, http.NoBody))

			if !called || rr.Code != tt.code {
				t.Fatalf("called=%v status=%d", called, rr.Code)
			}
			if tt.wantLevel == "" {
				if buf.Len() != 0 {
					t.Errorf("expected no log, got %s", buf.String())
				}
				return
			}
			var rec map[string]any
			if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
				t.Fatalf("log is not JSON: %v (%s)", err, buf.String())
			}
			if rec["level"] != tt.wantLevel {
				t.Errorf("level = %v, want %s", rec["level"], tt.wantLevel)
			}
			if rec["path"] != tt.path || rec["status"] != float64(tt.code) {
				t.Errorf("record = %v", rec)
			}
		})
	}
}

func TestRequestLoggerIncludesRequestID(t *testing.T) {
	var buf bytes.Buffer
	h := middleware.Chain(
		middleware.RequestID(),
		middleware.RequestLogger(logger.NewWriter(&buf, "test")),
	)(http.HandlerFunc(ok))

	req := httptest.NewRequest(http.MethodGet, "/status", http.NoBody)
	req.Header.Set(middleware.HeaderRequestID, "req-42")
	h.ServeHTTP(httptest.NewRecorder(), req)

	if !strings.Contains(buf.String(), `"request_id":"req-42"`) {
		t.Errorf("log misses request_id: %s", buf.String())
	}
}

func TestChainOrder(t *testing.T) {
	var order []string
	trace := func(name string) middleware.Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name+">")
				next.ServeHTTP(w, r)
				order = append(order, "<"+name)
			})
		}
	}
	h := middleware.Chain(trace("a"), trace("b"))(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		order = append(order, "handler")
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", http.NoBody))

	if got := strings.Join(order, " "); got != "a> b> handler <b <a" {
		t.Errorf("order = %q", got)
	}
}

type flushRecorder struct {
	*httptest.ResponseRecorder
	flushed bool
}

func (f *flushRecorder) Flush() { f.flushed = true }

func TestRequestLoggerKeepsFlusher(t *testing.T) {
	fr := &flushRecorder{ResponseRecorder: httptest.NewRecorder()}
	h := middleware.RequestLogger(logger.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.(http.Flusher).Flush()
	}))
	h.ServeHTTP(fr, httptest.NewRequest(http.MethodGet, "/events", http.NoBody))

	if !fr.flushed {
		t.Error("Flush was not passed to the underlying writer")
	}
}

func TestRateLimit(t *testing.T) {
	h := middleware.RateLimit(middleware.RateLimitConfig{RequestsPerSecond: 0.001, Burst: 2})(http.HandlerFunc(ok))
	send := func(addr string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/cancel", http.NoBody)
		req.RemoteAddr = addr
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		return rr
	}

	var codes []int
	for range 3 {
		codes = append(codes, send("10.0.0.1:5000").Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("codes = %v, want [200 200 429]", codes)
	}
	rejected := send("10.0.0.1:5001")
	if code := errorCode(t, rejected.Body.Bytes()); code != "RATE_LIMITED" {
		t.Errorf("error code = %q", code)
	}
	if rr := send("10.0.0.2:5000"); rr.Code != http.StatusOK {
		t.Errorf("another client got %d", rr.Code)
	}
}

func TestRateLimitDisabled(t *testing.T) {
	calls := 0
	h := middleware.RateLimit(middleware.RateLimitConfig{})(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
	}))
	for range 10 {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", http.NoBody))
	}
	if calls != 10 {
		t.Errorf("calls = %d, want 10", calls)
	}
}

func TestIPBasedKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	req.RemoteAddr = "192.168.1.7:4242"
	if got := middleware.IPBasedKey(req); got != "192.168.1.7" {
		t.Errorf("key = %q", got)
	}
	req.RemoteAddr = "pipe"
	if got := middleware.IPBasedKey(req); got != "pipe" {
		t.Errorf("fallback key = %q", got)
	}
}
