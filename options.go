package pdo

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// engineConfig holds configuration for the engine.
type engineConfig struct {
	logger         *zap.Logger
	registerer     prometheus.Registerer
	tracerProvider trace.TracerProvider
	httpClient     *http.Client
	timeout        time.Duration
	checksum       bool
	sealedKeys     bool
	pinnedKey      []byte
	issuer         *CertificateIssuer
	now            func() time.Time
	tempDir        string
}

// Option configures the engine.
type Option func(*engineConfig)

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(c *engineConfig) {
		c.logger = logger
	}
}

// WithMetrics registers the engine's prometheus collectors with reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(c *engineConfig) {
		c.registerer = reg
	}
}

// WithTracerProvider sets the tracer provider. The global provider is used
// otherwise.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *engineConfig) {
		c.tracerProvider = tp
	}
}

// WithHTTPClient sets a custom HTTP client for key requests.
func WithHTTPClient(client *http.Client) Option {
	return func(c *engineConfig) {
		c.httpClient = client
	}
}

// WithTimeout sets the key request timeout.
// Default: 5 seconds
func WithTimeout(timeout time.Duration) Option {
	return func(c *engineConfig) {
		c.timeout = timeout
	}
}

// WithChecksum makes a valid response checksum mandatory.
func WithChecksum(required bool) Option {
	return func(c *engineConfig) {
		c.checksum = required
	}
}

// WithSealedKeys asks the key service to seal every key to a per-request
// ML-KEM-768 public key.
func WithSealedKeys() Option {
	return func(c *engineConfig) {
		c.sealedKeys = true
	}
}

// WithPinnedServerKey pins the key service's ML-DSA-65 public key. Sealed
// keys become mandatory and keys signed by any other server are refused.
func WithPinnedServerKey(pk []byte) Option {
	return func(c *engineConfig) {
		c.pinnedKey = append([]byte(nil), pk...)
	}
}

// WithCertificateIssuer issues certificates locally when one is requested
// but the key service returns none.
func WithCertificateIssuer(issuer CertificateIssuer) Option {
	return func(c *engineConfig) {
		c.issuer = &issuer
	}
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(c *engineConfig) {
		c.now = now
	}
}

// WithTempDir sets where attachments are extracted during access.
// Default: os.TempDir()
func WithTempDir(dir string) Option {
	return func(c *engineConfig) {
		c.tempDir = dir
	}
}
