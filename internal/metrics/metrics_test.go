package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRecorder(reg)

	r.ObserveProtect("ok")
	r.ObserveProtect("ok")
	r.ObserveProtect("service_error")
	r.ObserveAccess("fingerprint_mismatch")
	r.ObserveKeyRequest("request_encrypt", "ok", 30*time.Millisecond)
	r.ObserveCertificateFallback("capacity")

	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"protect ok", testutil.ToFloat64(r.protect.WithLabelValues("ok")), 2},
		{"protect error", testutil.ToFloat64(r.protect.WithLabelValues("service_error")), 1},
		{"access", testutil.ToFloat64(r.access.WithLabelValues("fingerprint_mismatch")), 1},
		{"key requests", testutil.ToFloat64(r.keyRequests.WithLabelValues("request_encrypt", "ok")), 1},
		{"fallback", testutil.ToFloat64(r.certFallback.WithLabelValues("capacity")), 1},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}

	if n := testutil.CollectAndCount(r.keyDuration); n != 1 {
		t.Errorf("duration series = %d, want 1", n)
	}

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "pdo_protect_total") {
		t.Errorf("metrics output lacks pdo_protect_total:\n%s", body)
	}
}

func TestRecorder_Nil(t *testing.T) {
	var r *Recorder
	r.ObserveProtect("ok")
	r.ObserveAccess("ok")
	r.ObserveKeyRequest("request_decrypt", "ok", time.Second)
	r.ObserveCertificateFallback("none")

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 404 {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}
