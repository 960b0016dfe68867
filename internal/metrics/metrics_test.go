package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// findMetric は名前とラベルに一致するメトリクスを探す。
func findMetric(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) *dto.Metric {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if hasLabels(m, labels) {
				return m
			}
		}
	}
	t.Fatalf("metric %s%v not found", name, labels)
	return nil
}

func hasLabels(m *dto.Metric, labels map[string]string) bool {
	matched := 0
	for _, lp := range m.GetLabel() {
		if v, ok := labels[lp.GetName()]; ok && v == lp.GetValue() {
			matched++
		}
	}
	return matched == len(labels)
}

func TestNewCollector_ReturnsNonNil(t *testing.T) {
	reg := prometheus.NewRegistry()
	if c := NewCollector(reg); c == nil {
		t.Fatal("expected non-nil Collector")
	}
}

func TestCollector_BlogCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordSignup()
	c.RecordSignup()
	c.RecordPostCreated()
	c.RecordPostUpdated()
	c.RecordPostUpdated()
	c.RecordPostDeleted()
	c.RecordComment()
	c.RecordComment()
	c.RecordComment()

	tests := []struct {
		name string
		want float64
	}{
		{"blogman_signups_total", 2},
		{"blogman_posts_created_total", 1},
		{"blogman_posts_updated_total", 2},
		{"blogman_posts_deleted_total", 1},
		{"blogman_comments_total", 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := findMetric(t, reg, tt.name, nil).GetCounter().GetValue()
			if got != tt.want {
				t.Errorf("%s = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

func TestCollector_LabeledCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordLogin(ResultSuccess)
	c.RecordLogin(ResultFailure)
	c.RecordLogin(ResultFailure)
	c.RecordResetMail(ResultFailure)
	c.RecordIntegrityViolation(ViolationDuplicatedAuthor)

	if got := findMetric(t, reg, "blogman_logins_total", map[string]string{"result": "failure"}).GetCounter().GetValue(); got != 2 {
		t.Errorf("logins{failure} = %v, want 2", got)
	}
	if got := findMetric(t, reg, "blogman_logins_total", map[string]string{"result": "success"}).GetCounter().GetValue(); got != 1 {
		t.Errorf("logins{success} = %v, want 1", got)
	}
	if got := findMetric(t, reg, "blogman_reset_mails_total", map[string]string{"result": "failure"}).GetCounter().GetValue(); got != 1 {
		t.Errorf("reset_mails{failure} = %v, want 1", got)
	}
	if got := findMetric(t, reg, "blogman_integrity_violations_total", map[string]string{"kind": "duplicated_author"}).GetCounter().GetValue(); got != 1 {
		t.Errorf("violations{duplicated_author} = %v, want 1", got)
	}
}

func TestNewHTTPMiddleware_RecordsRoutePattern(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	r := chi.NewRouter()
	r.Use(NewHTTPMiddleware(c))
	r.Get("/post/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	req := httptest.NewRequest(http.MethodGet, "/post/abc", nil)
	r.ServeHTTP(httptest.NewRecorder(), req)

	m := findMetric(t, reg, "blogman_http_requests_total", map[string]string{
		"method": "GET", "route": "/post/{id}", "status_code": "404",
	})
	if got := m.GetCounter().GetValue(); got != 1 {
		t.Errorf("http_requests_total = %v, want 1", got)
	}
	h := findMetric(t, reg, "blogman_http_request_duration_seconds", map[string]string{"route": "/post/{id}"})
	if h.GetHistogram().GetSampleCount() != 1 {
		t.Errorf("sample count = %d, want 1", h.GetHistogram().GetSampleCount())
	}
}

func TestRecordHTTPRequest_Direct(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordHTTPRequest(http.MethodPost, "/login", http.StatusSeeOther, 5*time.Millisecond)

	m := findMetric(t, reg, "blogman_http_requests_total", map[string]string{"route": "/login", "status_code": "303"})
	if m.GetCounter().GetValue() != 1 {
		t.Errorf("counter = %v, want 1", m.GetCounter().GetValue())
	}
}

func TestHandler_ServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordSignup()

	w := httptest.NewRecorder()
	Handler(reg).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "blogman_signups_total 1") {
		t.Errorf("response should contain blogman_signups_total, got:\n%s", body)
	}
}
