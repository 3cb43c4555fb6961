package keyexchange

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/redaqt/pdo-go/internal/apierrors"
	"github.com/redaqt/pdo-go/internal/crypto"
)

const (
	// DefaultTimeout bounds one key exchange, connection to last byte.
	DefaultTimeout = 5 * time.Second
	// DefaultEncryptURL is the production request_encrypt endpoint.
	DefaultEncryptURL = "https://api.redaqt.co/encrypt"
	// DefaultDecryptURL is the production request_decrypt endpoint.
	DefaultDecryptURL = "https://api.redaqt.co/decrypt"

	maxResponseSize = 1 << 20
	tracerName      = "github.com/redaqt/pdo-go/internal/keyexchange"
)

// Credentials identify the account a key is requested for.
type Credentials struct {
	APIKey          string
	GrantToken      string
	GrantExpiration string // YYYY-MM-DD
}

// Observer receives one observation per key request.
type Observer interface {
	ObserveKeyRequest(messageType, result string, elapsed time.Duration)
}

// Config holds key exchange client configuration.
type Config struct {
	EncryptURL string
	DecryptURL string

	// HTTPClient is optional. The Timeout is enforced through the request
	// context whether or not a client is supplied.
	HTTPClient *http.Client
	Timeout    time.Duration

	Checksum ChecksumPolicy

	// SealedKeys asks the service to seal the key to a per-request ML-KEM-768
	// public key. PinnedServerKey, if set, must match the service's ML-DSA-65
	// key and makes sealed keys mandatory.
	SealedKeys      bool
	PinnedServerKey []byte

	Logger         *zap.Logger
	TracerProvider trace.TracerProvider
	Observer       Observer
	Now            func() time.Time
}

// Client requests crypto keys from the key service.
type Client struct {
	encryptURL string
	decryptURL string
	httpClient *http.Client
	timeout    time.Duration
	checksum   ChecksumPolicy
	sealed     bool
	pinnedKey  []byte
	logger     *zap.Logger
	tracer     trace.Tracer
	observer   Observer
	now        func() time.Time
}

// NewClient creates a client from cfg, filling defaults.
func NewClient(cfg Config) (*Client, error) {
	c := &Client{
		encryptURL: cfg.EncryptURL,
		decryptURL: cfg.DecryptURL,
		httpClient: cfg.HTTPClient,
		timeout:    cfg.Timeout,
		checksum:   cfg.Checksum,
		sealed:     cfg.SealedKeys || len(cfg.PinnedServerKey) > 0,
		pinnedKey:  cfg.PinnedServerKey,
		logger:     cfg.Logger,
		observer:   cfg.Observer,
		now:        cfg.Now,
	}

	if c.encryptURL == "" {
		c.encryptURL = DefaultEncryptURL
	}
	if c.decryptURL == "" {
		c.decryptURL = DefaultDecryptURL
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: c.timeout}
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	if c.now == nil {
		c.now = time.Now
	}
	if len(c.pinnedKey) > 0 && len(c.pinnedKey) != crypto.MLDSAPublicKeySize {
		return nil, fmt.Errorf("pinned server key: %w", crypto.ErrInvalidPublicKeySize)
	}

	tp := cfg.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	c.tracer = tp.Tracer(tracerName)

	return c, nil
}

// exchange performs one request and validates the response envelope. It
// returns the raw body once status, JSON validity, the error flag, request
// id correlation and the checksum (when required) have all passed.
func (c *Client) exchange(ctx context.Context, url, messageType string, creds Credentials, data RequestData) (body []byte, requestID string, err error) {
	if creds.APIKey == "" {
		return nil, "", apierrors.ErrMissingAPIKey
	}

	token, err := NewToken(creds.APIKey, creds.GrantToken, creds.GrantExpiration, c.now())
	if err != nil {
		return nil, "", err
	}

	requestID = uuid.New().String()
	payload, err := json.Marshal(Request{
		MessageType: messageType,
		Auth:        token,
		Management:  Management{RequestID: requestID},
		Data:        data,
	})
	if err != nil {
		return nil, "", fmt.Errorf("failed to marshal request body: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+creds.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	c.logger.Debug("key request",
		zap.String("message_type", messageType),
		zap.String("request_id", requestID),
		zap.String("url", url))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, requestID, classifyTransportError(err, url)
	}
	defer resp.Body.Close()

	body, err = io.ReadAll(io.LimitReader(resp.Body, maxResponseSize+1))
	if err != nil {
		return nil, requestID, classifyTransportError(err, url)
	}
	if len(body) > maxResponseSize {
		return nil, requestID, &apierrors.ResponseError{Reason: "response too large"}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, requestID, parseErrorResponse(resp.StatusCode, body)
	}

	if !gjson.ValidBytes(body) {
		return nil, requestID, &apierrors.ResponseError{Reason: "body is not valid JSON"}
	}
	if !gjson.ParseBytes(body).IsObject() {
		return nil, requestID, &apierrors.ResponseError{Reason: "body is not a JSON object"}
	}

	if gjson.GetBytes(body, "error").Bool() {
		return nil, requestID, &apierrors.ServiceError{
			StatusType: gjson.GetBytes(body, "status_type").String(),
			StatusCode: int(gjson.GetBytes(body, "status_code").Int()),
			Message:    gjson.GetBytes(body, "status_message").String(),
			RequestID:  gjson.GetBytes(body, "management.request_id").String(),
		}
	}

	actual := gjson.GetBytes(body, "management.request_id")
	if actual.Type != gjson.String || actual.String() != requestID {
		return nil, requestID, &apierrors.MismatchError{Expected: requestID, Actual: actual.String()}
	}

	if c.checksum == ChecksumRequire {
		if err := VerifyChecksum(body, gjson.GetBytes(body, "checksum").String()); err != nil {
			return nil, requestID, err
		}
	}

	return body, requestID, nil
}

func parseErrorResponse(status int, body []byte) error {
	apiErr := &apierrors.APIError{StatusCode: status}
	if gjson.ValidBytes(body) {
		apiErr.Message = gjson.GetBytes(body, "status_message").String()
		if apiErr.Message == "" {
			apiErr.Message = gjson.GetBytes(body, "error").String()
		}
		apiErr.RequestID = gjson.GetBytes(body, "management.request_id").String()
		return apiErr
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	apiErr.Message = msg
	return apiErr
}

// track wraps one key request in a span, a log line on failure and an
// observer call.
func (c *Client) track(ctx context.Context, messageType string, fn func(context.Context) error) error {
	ctx, span := c.tracer.Start(ctx, "keyexchange.request",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("pdo.message_type", messageType)))
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start)

	result := resultLabel(err)
	span.SetAttributes(attribute.String("pdo.result", result))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, result)
		c.logger.Warn("key request failed",
			zap.String("message_type", messageType),
			zap.String("result", result),
			zap.Duration("elapsed", elapsed),
			zap.Error(err))
	}
	if c.observer != nil {
		c.observer.ObserveKeyRequest(messageType, result, elapsed)
	}
	return err
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, apierrors.ErrTLSFailure):
		return "tls"
	case errors.Is(err, apierrors.ErrNetworkUnavailable):
		if isTimeout(err) {
			return "timeout"
		}
		return "network"
	case errors.Is(err, apierrors.ErrHTTPStatus):
		return "http_status"
	case errors.Is(err, apierrors.ErrServiceError):
		return "service_error"
	case errors.Is(err, apierrors.ErrRequestIDMismatch):
		return "request_id_mismatch"
	case errors.Is(err, apierrors.ErrChecksumMismatch):
		return "checksum"
	case errors.Is(err, apierrors.ErrMalformedResponse):
		return "malformed"
	case errors.Is(err, apierrors.ErrKeyMissing):
		return "key_missing"
	}
	return "error"
}
