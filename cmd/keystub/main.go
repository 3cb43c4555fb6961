// Command keystub serves the stub key service on a local port, for trying
// the redaqt CLI without an account.
//
//	keystub --addr 127.0.0.1:8787 --api-key dev-key
//
// Point the CLI at it with REDAQT_SERVICE_ENCRYPT_URL=http://<addr>/encrypt
// and REDAQT_SERVICE_DECRYPT_URL=http://<addr>/decrypt. The server's ML-DSA-65
// public key is printed at startup for service.pinned_server_key.
package main

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/redaqt/pdo-go/internal/crypto"
	"github.com/redaqt/pdo-go/internal/keyexchange/kxtest"
	"github.com/redaqt/pdo-go/internal/logging"
)

const shutdownTimeout = 5 * time.Second

type options struct {
	addr        string
	apiKey      string
	key         string
	seal        bool
	certificate bool
	checksum    bool
	logLevel    string
	logFormat   string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout)
	stop()
	if err != nil && !errors.Is(err, pflag.ErrHelp) {
		fmt.Fprintf(os.Stderr, "keystub: %v\n", err)
		os.Exit(1)
	}
}

func parseOptions(args []string, stderr io.Writer) (options, error) {
	var o options
	fs := pflag.NewFlagSet("keystub", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.addr, "addr", "127.0.0.1:8787", "listen address")
	fs.StringVar(&o.apiKey, "api-key", envOr("REDAQT_ACCOUNT_API_KEY", "dev-key"), "API key the stub accepts")
	fs.StringVar(&o.key, "key", "", "key handed out (default: random)")
	fs.BoolVar(&o.seal, "seal", true, "answer sealed key requests with a sealed key")
	fs.BoolVar(&o.certificate, "certificate", true, "return a certificate when one is requested")
	fs.BoolVar(&o.checksum, "checksum", true, "add a response checksum")
	fs.StringVar(&o.logLevel, "log-level", "info", "log level")
	fs.StringVar(&o.logFormat, "log-format", "console", "log format: console or json")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	return o, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	o, err := parseOptions(args, os.Stderr)
	if err != nil {
		return err
	}
	logger, err := logging.New(logging.Config{Level: o.logLevel, Format: o.logFormat})
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	stub, err := newStub(o)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	srv := &http.Server{
		Addr:              o.addr,
		Handler:           newRouter(stub, reg, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}
	fmt.Fprintf(stdout, "server key: %s\n", base64.StdEncoding.EncodeToString(stub.ServerKey()))

	errCh := make(chan error, 1)
	go func() {
		logger.Info("key stub listening", zap.String("addr", o.addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	logger.Info("shutting down")
	return srv.Shutdown(shutdownCtx)
}

func newStub(o options) (*kxtest.Stub, error) {
	key := o.key
	if key == "" {
		var err error
		if key, err = crypto.RandomString(32); err != nil {
			return nil, err
		}
	}
	stub, err := kxtest.New(o.apiKey, key)
	if err != nil {
		return nil, err
	}
	stub.SetBehavior(kxtest.Behavior{
		Seal:        o.seal,
		Certificate: o.certificate,
		Checksum:    o.checksum,
	})
	return stub, nil
}

// newRouter serves the stub beside /metrics, logging and counting requests.
func newRouter(stub http.Handler, reg *prometheus.Registry, logger *zap.Logger) http.Handler {
	requests := promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
		Name: "keystub_requests_total",
		Help: "Requests served by the key stub, by path and status code",
	}, []string{"path", "code"})

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, req.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, req)
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			requests.WithLabelValues(req.URL.Path, strconv.Itoa(status)).Inc()
			logger.Info("request",
				zap.String("method", req.Method),
				zap.String("path", req.URL.Path),
				zap.Int("status", status),
				zap.Duration("elapsed", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(req.Context())),
			)
		})
	})
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	r.Mount("/", stub)
	return r
}
