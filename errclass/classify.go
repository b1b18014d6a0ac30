// SPDX-License-Identifier: GPL-3.0-or-later

// Package errclass classifies network and TLS errors into short, stable
// labels for structured logging (spec.md §7 "every dropped, rejected, or
// retried message is logged with its ... reason").
//
// This is a from-scratch sibling of the never-wired errclass/unix.go and
// errclass/windows.go pair found (but never imported) in the teacher
// repository: same per-OS errno constant tables, now backed by an actual
// New function and extended with the TLS certificate-verification
// labels this core needs that a generic DNS/HTTP measurement library has
// no reason to know about. It has no labels for SCTP notification
// reasons.
package errclass

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"io"
	"net"
	"syscall"
)

// New classifies err into a short label, or "" for a nil error.
func New(err error) string {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, io.EOF):
		return "EOF"
	case errors.Is(err, context.DeadlineExceeded):
		return "ETIMEDOUT"
	case errors.Is(err, context.Canceled):
		return "ECANCELED"
	case errors.Is(err, net.ErrClosed):
		return "ECONNABORTED"
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "ETIMEDOUT"
	}

	if label, ok := classifyTLS(err); ok {
		return label
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		return classifyErrno(errno)
	}

	return "unknown"
}

// classifyTLS recognizes the certificate-verification failures
// spec.md §4.E "Credential verification" enumerates.
func classifyTLS(err error) (string, bool) {
	var hostnameErr x509.HostnameError
	if errors.As(err, &hostnameErr) {
		return "TLS_HOSTNAME_MISMATCH", true
	}
	var unknownAuthority x509.UnknownAuthorityError
	if errors.As(err, &unknownAuthority) {
		return "TLS_UNKNOWN_SIGNER", true
	}
	var invalidCert x509.CertificateInvalidError
	if errors.As(err, &invalidCert) {
		switch invalidCert.Reason {
		case x509.Expired:
			return "TLS_CERT_EXPIRED", true
		case x509.NotAuthorizedToSign:
			return "TLS_CERT_NOT_CA", true
		default:
			return "TLS_CERT_INVALID", true
		}
	}
	var recordErr tls.RecordHeaderError
	if errors.As(err, &recordErr) {
		return "TLS_RECORD_INVALID", true
	}
	return "", false
}

func classifyErrno(errno syscall.Errno) string {
	switch errno {
	case errEADDRNOTAVAIL:
		return "EADDRNOTAVAIL"
	case errEADDRINUSE:
		return "EADDRINUSE"
	case errECONNABORTED:
		return "ECONNABORTED"
	case errECONNREFUSED:
		return "ECONNREFUSED"
	case errECONNRESET:
		return "ECONNRESET"
	case errEHOSTUNREACH:
		return "EHOSTUNREACH"
	case errEINVAL:
		return "EINVAL"
	case errEINTR:
		return "EINTR"
	case errENETDOWN:
		return "ENETDOWN"
	case errENETUNREACH:
		return "ENETUNREACH"
	case errENOBUFS:
		return "ENOBUFS"
	case errENOTCONN:
		return "ENOTCONN"
	case errEPROTONOSUPPORT:
		return "EPROTONOSUPPORT"
	case errETIMEDOUT:
		return "ETIMEDOUT"
	case errEAGAIN:
		return "EAGAIN"
	case errEPIPE:
		return "EPIPE"
	case errEPROTO:
		return "EPROTO"
	default:
		return "unknown"
	}
}

// IsRetryable reports whether errno represents the transport-transient
// condition spec.md §7 calls TransportTransient: resume if the connection
// isn't closing, otherwise allow exactly one more retry.
func IsRetryable(err error) bool {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == errEAGAIN || errno == errEINTR
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}
