package fetch

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"syscall"

	"github.com/ccollins476ad/imgfetch/content"
	"github.com/ccollins476ad/imgfetch/download"
)

// Status is the terminal state of a single fetch.
type Status int

const (
	StatusSaved     Status = iota // Image written to disk.
	StatusDuplicate               // Content already present; nothing written.
	StatusRejected                // Failed a safety check.
	StatusFailed                  // Transport, filesystem, or unexpected error.
)

func (s Status) String() string {
	switch s {
	case StatusSaved:
		return "saved"
	case StatusDuplicate:
		return "duplicate"
	case StatusRejected:
		return "rejected"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// ErrorKind says why a fetch did not save anything.
type ErrorKind int

const (
	KindNone ErrorKind = iota
	KindTimeout
	KindUnreachable
	KindHTTPStatus
	KindUnsafeContentType
	KindContentTooLarge
	KindDuplicateContent
	KindPermissionDenied
	KindUnexpected
)

func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindTimeout:
		return "timeout"
	case KindUnreachable:
		return "unreachable"
	case KindHTTPStatus:
		return "http_status"
	case KindUnsafeContentType:
		return "unsafe_content_type"
	case KindContentTooLarge:
		return "content_too_large"
	case KindDuplicateContent:
		return "duplicate_content"
	case KindPermissionDenied:
		return "permission_denied"
	case KindUnexpected:
		return "unexpected"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// Outcome is the result of fetching one url.
type Outcome struct {
	URL    string
	Status Status

	// Set when Status is StatusSaved.
	Path string
	Size int64

	// Set for every other status.
	Kind ErrorKind
	Err  error

	// ProbeErr is the reason the HEAD probe failed, if it did. It never
	// affects Status.
	ProbeErr error
}

// OK returns true if the image was saved.
func (o Outcome) OK() bool {
	return o.Status == StatusSaved
}

// Message returns a short human-readable description of the outcome.
func (o Outcome) Message() string {
	switch o.Kind {
	case KindNone:
		return o.Path
	case KindTimeout:
		return "Connection timeout - the server took too long to respond"
	case KindUnreachable:
		return "Connection error - could not reach the server"
	case KindHTTPStatus:
		return fmt.Sprintf("HTTP error: %v", o.Err)
	case KindUnsafeContentType, KindContentTooLarge:
		return fmt.Sprintf("Safety check failed: %v", o.Err)
	case KindDuplicateContent:
		return "Duplicate image"
	case KindPermissionDenied:
		return "Permission denied - cannot write to directory"
	default:
		return fmt.Sprintf("An unexpected error occurred: %v", o.Err)
	}
}

func saved(u string, path string, size int64) Outcome {
	return Outcome{
		URL:    u,
		Status: StatusSaved,
		Path:   path,
		Size:   size,
	}
}

func duplicate(u string) Outcome {
	return Outcome{
		URL:    u,
		Status: StatusDuplicate,
		Kind:   KindDuplicateContent,
	}
}

// failure converts err into a rejected or failed outcome.
func failure(u string, err error) Outcome {
	kind := Classify(err)

	status := StatusFailed
	if kind == KindUnsafeContentType || kind == KindContentTooLarge {
		status = StatusRejected
	}

	return Outcome{
		URL:    u,
		Status: status,
		Kind:   kind,
		Err:    err,
	}
}

// Classify maps an error from the fetch pipeline to an ErrorKind.
func Classify(err error) ErrorKind {
	if err == nil {
		return KindNone
	}

	var se *download.StatusError
	if errors.As(err, &se) {
		return KindHTTPStatus
	}

	if errors.Is(err, content.ErrUnsafeType) {
		return KindUnsafeContentType
	}
	if errors.Is(err, content.ErrTooLarge) || errors.Is(err, download.ErrBodyTooLarge) {
		return KindContentTooLarge
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return KindTimeout
	}

	if errors.Is(err, fs.ErrPermission) {
		return KindPermissionDenied
	}

	if isTLSError(err) {
		return KindUnreachable
	}

	var opErr *net.OpError
	var dnsErr *net.DNSError
	if errors.As(err, &opErr) || errors.As(err, &dnsErr) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ENETUNREACH) ||
		errors.Is(err, syscall.EHOSTUNREACH) {
		return KindUnreachable
	}

	return KindUnexpected
}

// isTLSError returns true if err comes from a failed tls handshake or an
// untrusted certificate.
func isTLSError(err error) bool {
	var certErr *tls.CertificateVerificationError
	var authErr x509.UnknownAuthorityError
	var hostErr x509.HostnameError
	var invalidErr x509.CertificateInvalidError
	var recordErr tls.RecordHeaderError
	var alertErr tls.AlertError

	return errors.As(err, &certErr) ||
		errors.As(err, &authErr) ||
		errors.As(err, &hostErr) ||
		errors.As(err, &invalidErr) ||
		errors.As(err, &recordErr) ||
		errors.As(err, &alertErr)
}
