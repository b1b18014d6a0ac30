// SPDX-License-Identifier: GPL-3.0-or-later

package dmtcore

import "github.com/freediameter-go/dmtcore/errclass"

// ErrClassifier classifies errors into categorical strings for analysis.
//
// Implementations map errors to short, descriptive labels (e.g., "ETIMEDOUT",
// "ECONNRESET") so every logged send/receive/handshake failure carries a
// stable, greppable reason alongside the raw error.
type ErrClassifier interface {
	Classify(err error) string
}

// ErrClassifierFunc adapts a function to the [ErrClassifier] interface.
//
// This allows using simple functions as classifiers:
//
//	op.ErrClassifier = ErrClassifierFunc(errclass.New)
type ErrClassifierFunc func(error) string

var _ ErrClassifier = ErrClassifierFunc(nil)

// Classify implements [ErrClassifier].
func (f ErrClassifierFunc) Classify(err error) string {
	return f(err)
}

// DefaultErrClassifier classifies errors using the bundled [errclass]
// package: POSIX errno labels, EOF/timeout/cancellation labels, and TLS
// certificate-verification labels. It has no labels for SCTP
// notification reasons; errors it does not recognize are "unknown".
var DefaultErrClassifier = ErrClassifierFunc(errclass.New)
