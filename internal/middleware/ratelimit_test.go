package middleware

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/hitoshi/blogman/internal/model"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func requestFrom(method, remoteAddr string, user *model.User) *http.Request {
	req := httptest.NewRequest(method, "/login", nil)
	req.RemoteAddr = remoteAddr
	if user != nil {
		req = req.WithContext(ContextWithUser(req.Context(), user))
	}
	return req
}

func testConfig(generalBurst, authBurst int) RateLimiterConfig {
	return RateLimiterConfig{
		GeneralRate:     0.001,
		GeneralBurst:    generalBurst,
		AuthRate:        0.001,
		AuthBurst:       authBurst,
		CleanupInterval: time.Minute,
	}
}

func TestRateLimitMiddleware_AllowsRequestsWithinLimit(t *testing.T) {
	rl := NewRateLimiter(testConfig(5, 1))
	defer rl.Stop()
	handler := rl.GeneralMiddleware()(okHandler())

	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, requestFrom(http.MethodGet, "10.0.0.1:1234", nil))
		if w.Code != http.StatusOK {
			t.Errorf("request %d: status = %d, want %d", i, w.Code, http.StatusOK)
		}
	}
}

func TestRateLimitMiddleware_Returns429WithRetryAfter(t *testing.T) {
	cfg := testConfig(2, 1)
	cfg.GeneralRate = 0.5 // 2秒に1トークン
	rl := NewRateLimiter(cfg)
	defer rl.Stop()
	handler := rl.GeneralMiddleware()(okHandler())

	for i := 0; i < 2; i++ {
		handler.ServeHTTP(httptest.NewRecorder(), requestFrom(http.MethodGet, "10.0.0.1:1234", nil))
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, requestFrom(http.MethodGet, "10.0.0.1:1234", nil))

	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}
	retryAfter, err := strconv.Atoi(w.Header().Get("Retry-After"))
	if err != nil || retryAfter != 2 {
		t.Errorf("Retry-After = %q, want 2", w.Header().Get("Retry-After"))
	}
}

func TestRateLimitMiddleware_IsolatesClients(t *testing.T) {
	rl := NewRateLimiter(testConfig(1, 1))
	defer rl.Stop()
	handler := rl.GeneralMiddleware()(okHandler())

	alice := &model.User{ID: "user-alice"}
	bob := &model.User{ID: "user-bob"}

	// 同じIPでもログインユーザーごとに独立して制限される
	for _, u := range []*model.User{alice, bob} {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, requestFrom(http.MethodGet, "10.0.0.1:1234", u))
		if w.Code != http.StatusOK {
			t.Errorf("%s: status = %d, want %d", u.ID, w.Code, http.StatusOK)
		}
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, requestFrom(http.MethodGet, "10.0.0.2:5678", nil))
	if w.Code != http.StatusOK {
		t.Errorf("anonymous: status = %d, want %d", w.Code, http.StatusOK)
	}

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, requestFrom(http.MethodGet, "10.0.0.1:9999", alice))
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("alice 2nd: status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}
	if got := rl.GeneralLimiterCount(); got != 3 {
		t.Errorf("GeneralLimiterCount = %d, want 3", got)
	}
}

func TestAuthRateLimit_OnlySubmissionsAreLimited(t *testing.T) {
	rl := NewRateLimiter(testConfig(100, 1))
	defer rl.Stop()
	handler := rl.AuthMiddleware()(okHandler())

	// フォーム表示は制限しない
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, requestFrom(http.MethodGet, "10.0.0.1:1234", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("GET %d: status = %d", i, w.Code)
		}
	}

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, requestFrom(http.MethodPost, "10.0.0.1:1234", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("POST 1: status = %d", w.Code)
	}
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, requestFrom(http.MethodPost, "10.0.0.1:1234", nil))
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("POST 2: status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}
	if rl.AuthLimiterCount() != 1 {
		t.Errorf("AuthLimiterCount = %d, want 1", rl.AuthLimiterCount())
	}
}

func TestAuthRateLimit_IndependentFromGeneralLimit(t *testing.T) {
	rl := NewRateLimiter(testConfig(1, 5))
	defer rl.Stop()
	general := rl.GeneralMiddleware()(okHandler())
	auth := rl.AuthMiddleware()(okHandler())

	general.ServeHTTP(httptest.NewRecorder(), requestFrom(http.MethodPost, "10.0.0.1:1", nil))

	w := httptest.NewRecorder()
	auth.ServeHTTP(w, requestFrom(http.MethodPost, "10.0.0.1:1", nil))
	if w.Code != http.StatusOK {
		t.Errorf("auth limiter affected by general limiter: status = %d", w.Code)
	}
}

func TestRateLimiter_CleanupRemovesExpiredEntries(t *testing.T) {
	cfg := testConfig(5, 5)
	cfg.CleanupInterval = 50 * time.Millisecond
	rl := NewRateLimiter(cfg)
	defer rl.Stop()

	rl.GeneralMiddleware()(okHandler()).ServeHTTP(httptest.NewRecorder(), requestFrom(http.MethodGet, "10.0.0.1:1", nil))
	if rl.GeneralLimiterCount() == 0 {
		t.Fatal("expected at least one limiter entry")
	}

	// TTLはCleanupIntervalの2倍（100ms）
	time.Sleep(300 * time.Millisecond)

	if count := rl.GeneralLimiterCount(); count != 0 {
		t.Errorf("expected 0 limiter entries after cleanup, got %d", count)
	}
}

func TestRateLimiter_StopIsIdempotent(t *testing.T) {
	rl := NewRateLimiter(DefaultRateLimiterConfig())
	rl.Stop()
	rl.Stop()
}

func TestDefaultRateLimiterConfig(t *testing.T) {
	cfg := DefaultRateLimiterConfig()

	if cfg.GeneralRate != 2.0 { // 120/60
		t.Errorf("GeneralRate = %f, want 2.0", cfg.GeneralRate)
	}
	if cfg.GeneralBurst != 120 {
		t.Errorf("GeneralBurst = %d, want 120", cfg.GeneralBurst)
	}
	if cfg.AuthBurst != 10 {
		t.Errorf("AuthBurst = %d, want 10", cfg.AuthBurst)
	}
	if cfg.AuthRate == 0 {
		t.Error("AuthRate should not be 0")
	}
}
