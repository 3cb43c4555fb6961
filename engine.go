package pdo

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/redaqt/pdo-go/internal/keyexchange"
	"github.com/redaqt/pdo-go/internal/metrics"
)

const tracerName = "github.com/redaqt/pdo-go"

// Engine runs protect and access operations. It keeps no key material
// between calls and is safe for concurrent use on different files.
type Engine struct {
	keys     *keyexchange.Client
	product  ProductInfo
	crypto   CryptoConfig
	settings Settings
	issuer   *CertificateIssuer
	logger   *zap.Logger
	metrics  *metrics.Recorder
	tracer   trace.Tracer
	now      func() time.Time
	tempDir  string
}

// New creates an engine from cfg. Zero Product and Crypto values are
// replaced by DefaultProduct and DefaultCrypto.
func New(cfg Config, opts ...Option) (*Engine, error) {
	ec := &engineConfig{
		now:     time.Now,
		timeout: keyexchange.DefaultTimeout,
	}
	for _, opt := range opts {
		opt(ec)
	}
	if ec.logger == nil {
		ec.logger = zap.NewNop()
	}
	if ec.tempDir == "" {
		ec.tempDir = os.TempDir()
	}
	if ec.tracerProvider == nil {
		ec.tracerProvider = otel.GetTracerProvider()
	}

	if cfg.Product == (ProductInfo{}) {
		cfg.Product = DefaultProduct
	}
	if cfg.Product.Extension == "" {
		cfg.Product.Extension = DefaultProduct.Extension
	}
	if cfg.Crypto == (CryptoConfig{}) {
		cfg.Crypto = DefaultCrypto
	}
	if err := cfg.Crypto.validate(); err != nil {
		return nil, fmt.Errorf("crypto config: %w", err)
	}
	if cfg.Settings.DefaultPolicy == "" {
		cfg.Settings.DefaultPolicy = NoPolicy
	}

	var recorder *metrics.Recorder
	if ec.registerer != nil {
		recorder = metrics.NewRecorder(ec.registerer)
	}

	checksum := keyexchange.ChecksumIgnore
	if ec.checksum {
		checksum = keyexchange.ChecksumRequire
	}
	kcfg := keyexchange.Config{
		EncryptURL:      cfg.EncryptURL,
		DecryptURL:      cfg.DecryptURL,
		HTTPClient:      ec.httpClient,
		Timeout:         ec.timeout,
		Checksum:        checksum,
		SealedKeys:      ec.sealedKeys,
		PinnedServerKey: ec.pinnedKey,
		Logger:          ec.logger.With(zap.String("mod", "keyexchange")),
		TracerProvider:  ec.tracerProvider,
		Now:             ec.now,
	}
	if recorder != nil {
		kcfg.Observer = recorder
	}
	keys, err := keyexchange.NewClient(kcfg)
	if err != nil {
		return nil, err
	}

	return &Engine{
		keys:     keys,
		product:  cfg.Product,
		crypto:   cfg.Crypto,
		settings: cfg.Settings,
		issuer:   ec.issuer,
		logger:   ec.logger,
		metrics:  recorder,
		tracer:   ec.tracerProvider.Tracer(tracerName),
		now:      ec.now,
		tempDir:  ec.tempDir,
	}, nil
}

// span starts an operation span and returns a func that ends it with err.
func (e *Engine) span(ctx context.Context, name, path string) (context.Context, func(error)) {
	ctx, span := e.tracer.Start(ctx, name, trace.WithAttributes(attribute.String("pdo.path", path)))
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, outcome(err))
		}
		span.End()
	}
}
