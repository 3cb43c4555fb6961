package keyexchange

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net"
	"strings"

	"github.com/redaqt/pdo-go/internal/apierrors"
)

// classifyTransportError maps an http.Client error to the engine taxonomy.
// Timeouts, refused connections and redirect loops are network errors;
// certificate and handshake failures are TLS errors.
func classifyTransportError(err error, url string) error {
	if isTLSError(err) {
		return &apierrors.TLSError{Err: err, URL: url}
	}
	return &apierrors.NetworkError{Err: err, URL: url}
}

func isTLSError(err error) bool {
	var (
		verifyErr     *tls.CertificateVerificationError
		recordErr     tls.RecordHeaderError
		alertErr      tls.AlertError
		unknownAuth   x509.UnknownAuthorityError
		hostnameErr   x509.HostnameError
		invalidCert   x509.CertificateInvalidError
		systemRoots   x509.SystemRootsError
		constraintErr x509.ConstraintViolationError
	)
	switch {
	case errors.As(err, &verifyErr),
		errors.As(err, &recordErr),
		errors.As(err, &alertErr),
		errors.As(err, &unknownAuth),
		errors.As(err, &hostnameErr),
		errors.As(err, &invalidCert),
		errors.As(err, &systemRoots),
		errors.As(err, &constraintErr):
		return true
	}
	return strings.Contains(err.Error(), "tls: ")
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
