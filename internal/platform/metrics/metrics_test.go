package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRegistry_RendersSortedCollectors(t *testing.T) {
	reg := NewRegistry()
	vec := NewCounterVec(Opts{Name: "b_total", Help: "B."}, []string{"op"})
	gauge := NewGauge(Opts{Name: "a_value", Help: "A."})
	reg.MustRegister(vec, gauge)

	vec.WithLabelValues("create").Inc()
	vec.WithLabelValues("create").Add(2)
	vec.WithLabelValues("too", "many").Inc()
	gauge.SetMax(5)
	gauge.SetMax(3)

	out := reg.Render()
	if !strings.Contains(out, `b_total{op="create"} 3`) {
		t.Fatalf("missing counter line in:\n%s", out)
	}
	if !strings.Contains(out, "a_value 5\n") {
		t.Fatalf("missing gauge line in:\n%s", out)
	}
	if strings.Index(out, "a_value") > strings.Index(out, "b_total") {
		t.Fatalf("collectors not sorted:\n%s", out)
	}
	if vec.Value("create") != 3 {
		t.Fatalf("unexpected counter value %v", vec.Value("create"))
	}
}

func TestRegistry_DuplicateNamePanics(t *testing.T) {
	reg := NewRegistry()
	reg.MustRegister(NewGauge(Opts{Name: "x"}))
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on duplicate registration")
		}
	}()
	reg.MustRegister(NewGauge(Opts{Name: "x"}))
}

func TestRegistry_Handler(t *testing.T) {
	reg := NewRegistry()
	RegisterRuntime(reg)
	rr := httptest.NewRecorder()
	reg.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "go_goroutines") {
		t.Fatalf("unexpected response %d: %s", rr.Code, rr.Body.String())
	}
	if !strings.HasPrefix(rr.Header().Get("Content-Type"), "text/plain") {
		t.Fatalf("unexpected content type %q", rr.Header().Get("Content-Type"))
	}
}
