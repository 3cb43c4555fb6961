package pdo

import (
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
)

func TestWithLogger(t *testing.T) {
	cfg := &engineConfig{}
	logger := zap.NewExample()
	WithLogger(logger)(cfg)
	if cfg.logger != logger {
		t.Error("logger was not set")
	}
}

func TestWithMetrics(t *testing.T) {
	cfg := &engineConfig{}
	reg := prometheus.NewRegistry()
	WithMetrics(reg)(cfg)
	if cfg.registerer != reg {
		t.Error("registerer was not set")
	}
}

func TestWithTracerProvider(t *testing.T) {
	cfg := &engineConfig{}
	tp := noop.NewTracerProvider()
	WithTracerProvider(tp)(cfg)
	if cfg.tracerProvider != tp {
		t.Error("tracer provider was not set")
	}
}

func TestWithHTTPClient(t *testing.T) {
	cfg := &engineConfig{}
	customClient := &http.Client{Timeout: 99 * time.Second}
	WithHTTPClient(customClient)(cfg)
	if cfg.httpClient != customClient {
		t.Error("httpClient was not set")
	}
}

func TestWithTimeout(t *testing.T) {
	cfg := &engineConfig{}
	WithTimeout(2 * time.Second)(cfg)
	if cfg.timeout != 2*time.Second {
		t.Errorf("timeout = %v, want 2s", cfg.timeout)
	}
}

func TestWithChecksum(t *testing.T) {
	cfg := &engineConfig{}
	WithChecksum(true)(cfg)
	if !cfg.checksum {
		t.Error("checksum was not required")
	}
}

func TestWithSealedKeys(t *testing.T) {
	cfg := &engineConfig{}
	WithSealedKeys()(cfg)
	if !cfg.sealedKeys {
		t.Error("sealedKeys was not set")
	}
}

func TestWithPinnedServerKey_Copies(t *testing.T) {
	cfg := &engineConfig{}
	pk := []byte{1, 2, 3}
	WithPinnedServerKey(pk)(cfg)
	pk[0] = 9
	if cfg.pinnedKey[0] != 1 {
		t.Error("pinned key aliases the caller's slice")
	}
}

func TestWithCertificateIssuer(t *testing.T) {
	cfg := &engineConfig{}
	WithCertificateIssuer(CertificateIssuer{Name: "Local CA"})(cfg)
	if cfg.issuer == nil || cfg.issuer.Name != "Local CA" {
		t.Errorf("issuer = %+v", cfg.issuer)
	}
}

func TestWithClock(t *testing.T) {
	cfg := &engineConfig{}
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	WithClock(func() time.Time { return fixed })(cfg)
	if !cfg.now().Equal(fixed) {
		t.Errorf("now() = %v, want %v", cfg.now(), fixed)
	}
}

func TestWithTempDir(t *testing.T) {
	cfg := &engineConfig{}
	WithTempDir("/var/tmp/pdo")(cfg)
	if cfg.tempDir != "/var/tmp/pdo" {
		t.Errorf("tempDir = %s", cfg.tempDir)
	}
}

func TestNew_Defaults(t *testing.T) {
	e, err := New(Config{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if e.product != DefaultProduct {
		t.Errorf("product = %+v, want DefaultProduct", e.product)
	}
	if e.crypto != DefaultCrypto {
		t.Errorf("crypto = %+v, want DefaultCrypto", e.crypto)
	}
	if e.settings.DefaultPolicy != NoPolicy {
		t.Errorf("default policy = %s, want %s", e.settings.DefaultPolicy, NoPolicy)
	}
	if e.tempDir == "" || e.logger == nil || e.metrics != nil {
		t.Errorf("engine defaults: tempDir=%q logger=%v metrics=%v", e.tempDir, e.logger, e.metrics)
	}
}

func TestProductInfo_Banner(t *testing.T) {
	p := ProductInfo{Name: "RedaQt", Service: "PDO", Version: "2.1.0"}
	if got := p.Banner(); got != "Protected by RedaQt PDO 2.1.0" {
		t.Errorf("Banner() = %q", got)
	}
}
