package availability

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"io/fs"
	"net"
	"syscall"

	"github.com/randomizedcoder/go-hls-analyzer/internal/source"
)

// Classify maps an error from loading a playlist to a failure category and
// the HTTP status code, if the server answered.
func Classify(err error) (Category, int) {
	var statusErr *source.StatusError
	if errors.As(err, &statusErr) {
		return CategoryHTTPStatus, statusErr.StatusCode
	}
	return classifyError(err), 0
}

// classifyError maps a request error to a failure category.
func classifyError(err error) Category {
	if err == nil {
		return CategoryNone
	}

	switch {
	case errors.Is(err, context.Canceled):
		return CategoryCanceled
	case errors.Is(err, context.DeadlineExceeded):
		return CategoryTimeout
	case errors.Is(err, fs.ErrNotExist):
		return CategoryNotFound
	case errors.Is(err, syscall.ECONNREFUSED):
		return CategoryConnectionRefused
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsTimeout {
			return CategoryTimeout
		}
		return CategoryDNS
	}

	if isTLSError(err) {
		return CategoryTLS
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return CategoryTimeout
	}

	return CategoryTransport
}

func isTLSError(err error) bool {
	var (
		verifyErr   *tls.CertificateVerificationError
		recordErr   tls.RecordHeaderError
		alertErr    tls.AlertError
		unknownAuth x509.UnknownAuthorityError
		hostErr     x509.HostnameError
		invalidErr  x509.CertificateInvalidError
	)
	return errors.As(err, &verifyErr) ||
		errors.As(err, &recordErr) ||
		errors.As(err, &alertErr) ||
		errors.As(err, &unknownAuth) ||
		errors.As(err, &hostErr) ||
		errors.As(err, &invalidErr)
}

// contextCategory classifies a check that never started because ctx is done.
func contextCategory(ctx context.Context) Category {
	if errors.Is(ctx.Err(), context.Canceled) {
		return CategoryCanceled
	}
	return CategoryTimeout
}
