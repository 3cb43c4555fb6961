// Package kxtest provides an in-process key service for tests and local
// development. It speaks the same request/response protocol as the real
// service and can be switched into failure modes.
package kxtest

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"

	"github.com/redaqt/pdo-go/internal/crypto"
	"github.com/redaqt/pdo-go/internal/keyexchange"
)

// Fixed response values.
const (
	MOSVersion      = "1.0.0"
	Protocol        = "pdo"
	ProtocolVersion = "2.1.0"
)

// FixedPQC is the PQC block returned with every encrypt key.
var FixedPQC = keyexchange.PQC{
	MID:    "m-0001",
	FID:    "f-0001",
	PQType: "sphere",
	Point:  keyexchange.Point{I: 1.5, J: -2.25, K: 3, Radius: 0.75},
}

// Behavior switches the stub between normal and failure responses. The zero
// value answers every valid request with the configured key.
type Behavior struct {
	// ServiceError answers with error=true and this status message.
	ServiceError string
	// Status answers with this HTTP status and a short JSON error body.
	Status int
	// MismatchRequestID echoes a different request id.
	MismatchRequestID bool
	// Malformed answers with a body that is not JSON.
	Malformed bool
	// OmitKey answers without a crypto key.
	OmitKey bool
	// Delay holds the answer back, or until the client gives up.
	Delay time.Duration
	// Seal answers with a sealed key when the request carries a public key.
	Seal bool
	// Checksum adds a valid checksum member. CorruptChecksum adds a wrong one.
	Checksum        bool
	CorruptChecksum bool
	// Certificate returns a certificate when one is requested.
	Certificate bool
}

// Stub is an http.Handler implementing the key service.
type Stub struct {
	apiKey string
	key    string
	signer *crypto.SigningKey
	router chi.Router

	mu       sync.Mutex
	behavior Behavior
	requests []keyexchange.Request
}

// New creates a stub that accepts apiKey and hands out key. A fresh ML-DSA-65
// signing key is generated for sealed answers.
func New(apiKey, key string) (*Stub, error) {
	signer, err := crypto.GenerateSigningKey()
	if err != nil {
		return nil, err
	}
	s := &Stub{apiKey: apiKey, key: key, signer: signer}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Post("/encrypt", s.handle(keyexchange.MessageRequestEncrypt))
	r.Post("/decrypt", s.handle(keyexchange.MessageRequestDecrypt))
	s.router = r
	return s, nil
}

// ServeHTTP implements http.Handler.
func (s *Stub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Start serves the stub on a loopback port. Callers Close the server.
func (s *Stub) Start() *httptest.Server {
	return httptest.NewServer(s)
}

// ServerKey returns the stub's ML-DSA-65 public key, for pinning.
func (s *Stub) ServerKey() []byte {
	return s.signer.PublicKey
}

// SetBehavior replaces the current behavior.
func (s *Stub) SetBehavior(b Behavior) {
	s.mu.Lock()
	s.behavior = b
	s.mu.Unlock()
}

// Requests returns the requests received so far.
func (s *Stub) Requests() []keyexchange.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]keyexchange.Request, len(s.requests))
	copy(out, s.requests)
	return out
}

func (s *Stub) handle(messageType string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		b := s.behavior
		s.mu.Unlock()

		if b.Delay > 0 {
			select {
			case <-time.After(b.Delay):
			case <-r.Context().Done():
				return
			}
		}

		if strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ") != s.apiKey {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"status_message": "invalid API key"})
			return
		}

		var req keyexchange.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"status_message": "invalid request body"})
			return
		}
		s.mu.Lock()
		s.requests = append(s.requests, req)
		s.mu.Unlock()

		if b.Status != 0 {
			writeJSON(w, b.Status, map[string]any{
				"status_message": http.StatusText(b.Status),
				"management":     map[string]any{"request_id": req.Management.RequestID},
			})
			return
		}
		if b.Malformed {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"management": {"request_id": `))
			return
		}

		requestID := req.Management.RequestID
		if b.MismatchRequestID {
			requestID = "00000000-0000-4000-8000-000000000000"
		}

		resp := map[string]any{
			"management":     map[string]any{"request_id": requestID},
			"error":          false,
			"status_type":    "success",
			"status_code":    200,
			"status_message": "ok",
		}

		switch {
		case req.MessageType != messageType:
			resp["error"] = true
			resp["status_type"] = "error"
			resp["status_code"] = 400
			resp["status_message"] = "unexpected message type"
		case b.ServiceError != "":
			resp["error"] = true
			resp["status_type"] = "error"
			resp["status_code"] = 403
			resp["status_message"] = b.ServiceError
		default:
			if msg := s.checkToken(req.Auth); msg != "" {
				resp["error"] = true
				resp["status_type"] = "error"
				resp["status_code"] = 401
				resp["status_message"] = msg
				break
			}
			data, err := s.data(messageType, req, b)
			if err != nil {
				writeJSON(w, http.StatusInternalServerError, map[string]any{"status_message": err.Error()})
				return
			}
			resp["data"] = data
		}

		if b.Checksum || b.CorruptChecksum {
			body, err := json.Marshal(resp)
			if err != nil {
				writeJSON(w, http.StatusInternalServerError, map[string]any{"status_message": err.Error()})
				return
			}
			sum, err := keyexchange.ComputeChecksum(body)
			if err != nil {
				writeJSON(w, http.StatusInternalServerError, map[string]any{"status_message": err.Error()})
				return
			}
			if b.CorruptChecksum {
				sum = strings.Repeat("0", len(sum))
			}
			resp["checksum"] = sum
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func (s *Stub) checkToken(token string) string {
	_, err := keyexchange.ParseToken(s.apiKey, token)
	switch {
	case err == nil:
		return ""
	case errors.Is(err, jwt.ErrTokenExpired):
		return "expired"
	default:
		return "invalid token"
	}
}

func (s *Stub) data(messageType string, req keyexchange.Request, b Behavior) (map[string]any, error) {
	data := map[string]any{}
	if messageType == keyexchange.MessageRequestEncrypt {
		data["mos_version"] = MOSVersion
		data["protocol"] = Protocol
		data["protocol_version"] = ProtocolVersion
		data["pqc"] = FixedPQC
		data["certificate"] = nil
		if b.Certificate && req.Data.Certificate.Request {
			data["certificate"] = FixedCertificate()
		}
	}

	if b.OmitKey {
		data["crypto_key"] = nil
		return data, nil
	}

	if b.Seal && req.Data.KeyEncapsulation != nil {
		pk, err := crypto.FromBase64URL(req.Data.KeyEncapsulation.PublicKey)
		if err != nil {
			return nil, err
		}
		sealed, err := crypto.SealKey(s.signer, pk, []byte(s.key), []byte(req.Management.RequestID))
		if err != nil {
			return nil, err
		}
		data["crypto_key"] = nil
		data["sealed_key"] = sealed
		return data, nil
	}

	data["crypto_key"] = s.key
	return data, nil
}

// FixedCertificate returns the certificate handed out when one is requested.
func FixedCertificate() keyexchange.Certificate {
	return keyexchange.Certificate{
		ChildCertificateID: "c-7f3a9e",
		CertificateType:    "document",
		Trace:              crypto.SHA512Hex([]byte("c-7f3a9e")),
		Issuer: keyexchange.Issuer{
			ParentCertificateID: "p-0001",
			Name:                "Stub Issuer",
			Organization:        "RedaQt",
			SigningTime:         "2026-01-01T00:00:00Z",
			ExpiresAfter:        "2036-01-01T00:00:00Z",
		},
		Authority: keyexchange.Authority{
			IssuerName:  "RedaQt CA",
			IssuerEmail: "ca@redaqt.co",
			IssuerURI:   "https://redaqt.co/ca",
		},
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
