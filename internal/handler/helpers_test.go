package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/blogman/internal/middleware"
	"github.com/hitoshi/blogman/internal/model"
	"github.com/hitoshi/blogman/internal/view"
)

// --- 共通モック ---

type mockMetrics struct {
	mu         sync.Mutex
	signups    int
	logins     map[string]int
	created    int
	updated    int
	deleted    int
	comments   int
	resetMails map[string]int
	violations map[string]int
	requests   int
}

func newMockMetrics() *mockMetrics {
	return &mockMetrics{
		logins:     map[string]int{},
		resetMails: map[string]int{},
		violations: map[string]int{},
	}
}

func (m *mockMetrics) RecordSignup() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signups++
}

func (m *mockMetrics) RecordLogin(result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logins[result]++
}

func (m *mockMetrics) RecordPostCreated() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created++
}

func (m *mockMetrics) RecordPostUpdated() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updated++
}

func (m *mockMetrics) RecordPostDeleted() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted++
}

func (m *mockMetrics) RecordComment() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.comments++
}

func (m *mockMetrics) RecordResetMail(result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetMails[result]++
}

func (m *mockMetrics) RecordIntegrityViolation(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.violations[kind]++
}

func (m *mockMetrics) RecordHTTPRequest(method, route string, statusCode int, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests++
}

// --- ヘルパー ---

const testFlashSecret = "handler-test-secret-handler-test"

func testPictureURL(category, name string) string {
	return "/" + category + "/" + name
}

// newTestUI は実テンプレートを使うUIを生成する。
func newTestUI(t *testing.T) (UI, *mockMetrics) {
	t.Helper()
	renderer, err := view.NewRenderer(testPictureURL)
	if err != nil {
		t.Fatalf("NewRenderer error: %v", err)
	}
	m := newMockMetrics()
	return UI{
		Renderer: renderer,
		Flashes:  middleware.NewFlashes(middleware.FlashConfig{Secret: []byte(testFlashSecret)}),
		Metrics:  m,
	}, m
}

func testUser() *model.User {
	return &model.User{
		ID:         "user-1",
		Username:   "alice",
		Email:      "alice@example.com",
		Avatar:     model.DefaultAvatar,
		ImageCover: model.DefaultImageCover,
	}
}

// asUser はリクエストにログインユーザーを設定する。
func asUser(r *http.Request, user *model.User) *http.Request {
	return r.WithContext(middleware.ContextWithUser(r.Context(), user))
}

// postForm はフォーム送信リクエストを生成する。
func postForm(target string, form url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

// popFlashes はレスポンスに設定されたフラッシュCookieを次のリクエストで読み出す。
func popFlashes(t *testing.T, ui UI, w *httptest.ResponseRecorder) []middleware.Flash {
	t.Helper()
	next := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range w.Result().Cookies() {
		next.AddCookie(c)
	}
	return ui.Flashes.Pop(httptest.NewRecorder(), next)
}

func assertStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	if w.Code != want {
		t.Fatalf("status = %d, want %d (body=%s)", w.Code, want, w.Body.String())
	}
}

func assertRedirect(t *testing.T, w *httptest.ResponseRecorder, want string) {
	t.Helper()
	assertStatus(t, w, http.StatusSeeOther)
	if got := w.Header().Get("Location"); got != want {
		t.Errorf("Location = %q, want %q", got, want)
	}
}

func assertFlash(t *testing.T, ui UI, w *httptest.ResponseRecorder, category, message string) {
	t.Helper()
	for _, f := range popFlashes(t, ui, w) {
		if f.Category == category && f.Message == message {
			return
		}
	}
	t.Errorf("flash %s %q not found", category, message)
}

func assertBodyContains(t *testing.T, w *httptest.ResponseRecorder, substrs ...string) {
	t.Helper()
	body := w.Body.String()
	for _, s := range substrs {
		if !strings.Contains(body, s) {
			t.Errorf("body does not contain %q", s)
		}
	}
}

// withURLParams はchiのURLパラメータを設定する。
func withURLParams(r *http.Request, kv ...string) *http.Request {
	rctx := chi.NewRouteContext()
	for i := 0; i+1 < len(kv); i += 2 {
		rctx.URLParams.Add(kv[i], kv[i+1])
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}
