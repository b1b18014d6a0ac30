// SPDX-License-Identifier: GPL-3.0-or-later

package dmtcore

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"net"
	"os"
	"time"
)

// TLSMaterial holds the on-disk TLS material this node uses for both the
// inline single-session and the multi-stream wrapper handshakes.
//
// [NewConfig] sets only DHBits (1024). [Config.Validate] does not require
// CertFile/KeyFile/CAFile (it checks the certificate's hostname only when
// CertFile is set); [Config.TLSConfig] fails unless all three are filled in.
type TLSMaterial struct {
	// CertFile is the PEM-encoded local certificate chain.
	CertFile string

	// KeyFile is the PEM-encoded private key matching CertFile.
	KeyFile string

	// CAFile is the PEM-encoded trust store used to verify peer chains.
	CAFile string

	// CRLFile is an optional PEM-encoded certificate revocation list.
	CRLFile string

	// PriorityString holds a cipher/version preference string. Nothing
	// in this core reads it: [Config.TLSConfig] always uses Go's default
	// cipher suite selection with a TLS 1.2 minimum.
	PriorityString string

	// DHFile holds a path to Diffie-Hellman parameters. Nothing in this
	// core reads it; no DH parameters are loaded or generated.
	DHFile string

	// DHBits holds a DH parameter size (1024 from [NewConfig]). Nothing
	// in this core reads it.
	DHBits int
}

// Config holds every configuration input the core consumes (spec.md §6).
//
// Pass this to constructor functions to pre-wire dependencies. All fields
// have sensible defaults set by [NewConfig]; a daemon entrypoint overrides
// them from its own config file parser, which is out of scope for this core.
type Config struct {
	// LocalID is this node's Diameter identity (FQDN).
	LocalID string

	// Realm is this node's Diameter realm.
	Realm string

	// Endpoints lists local bind endpoints. Empty means "bind wildcard".
	Endpoints *EndpointSet

	// PortClear is the clear-text (TLS-off-connect) bind port. Default 3868.
	PortClear uint16

	// PortTLS is the TLS-on-connect bind port. Default 3869. Unused when
	// TLSInband is true, since TLS then shares PortClear.
	PortTLS uint16

	// SCTPStreams is the number of outbound SCTP streams requested at INIT.
	// Default 30.
	SCTPStreams uint16

	// DisableIPv4 excludes IPv4 bind/connect candidates.
	DisableIPv4 bool

	// DisableIPv6 excludes IPv6 bind/connect candidates.
	DisableIPv6 bool

	// DisableTCP excludes the TCP transport.
	DisableTCP bool

	// DisableSCTP excludes the SCTP transport.
	DisableSCTP bool

	// PreferTCP, when both transports are enabled, tries TCP before SCTP
	// on client connect.
	PreferTCP bool

	// TLSInband runs TLS over the clear-text port via in-protocol
	// capabilities negotiation rather than a dedicated TLS port.
	TLSInband bool

	// Tw is the watchdog timer (external to this core, but fed into SCTP
	// retransmit tuning per spec.md §4.C). Default 30s.
	Tw time.Duration

	// Tc is the connection-establishment timeout, fed into SCTP INIT.
	// Default 30s.
	Tc time.Duration

	// SocketTimeout is the fixed per-syscall send/receive timeout
	// (spec.md §5 "Timeouts"). Default 3s; spec.md fixes this at 3s, but
	// the field stays configurable for tests that need tighter bounds.
	SocketTimeout time.Duration

	// IncomingHandshakeTimeout bounds how long a per-client handshake
	// thread (component G) waits before dropping an unauthenticated
	// client. Default 20s.
	IncomingHandshakeTimeout time.Duration

	// TLS holds on-disk certificate/key/trust-store material.
	TLS TLSMaterial

	// Dialer is used by [*ConnectFunc]. The default [*net.Dialer] serves
	// the "tcp" network; for SCTP client connects set it to an
	// [*SCTPDialer] (see sctp_transport.go).
	Dialer Dialer

	// ErrClassifier classifies errors for structured logging.
	ErrClassifier ErrClassifier

	// Logger receives structured logs for every component in this core.
	Logger SLogger

	// TimeNow returns the current time (configurable for tests).
	TimeNow func() time.Time
}

// NewConfig creates a [*Config] with sensible defaults (spec.md §6, §4.C, §5).
func NewConfig() *Config {
	return &Config{
		Endpoints:                NewEndpointSet(),
		PortClear:                3868,
		PortTLS:                  3869,
		SCTPStreams:              30,
		Tw:                       30 * time.Second,
		Tc:                       30 * time.Second,
		SocketTimeout:            3 * time.Second,
		IncomingHandshakeTimeout: 20 * time.Second,
		TLS:                      TLSMaterial{DHBits: 1024},
		Dialer:                   &net.Dialer{},
		ErrClassifier:            DefaultErrClassifier,
		Logger:                   DefaultSLogger(),
		TimeNow:                  time.Now,
	}
}

// Validate enforces spec.md §6's validation rules, returning a
// [ErrConfigInvalid]-kind error on the first rule violated.
func (c *Config) Validate() error {
	if c.DisableIPv4 && c.DisableIPv6 {
		return fmt.Errorf("%w: cannot disable both address families", ErrConfigInvalid)
	}
	if c.DisableTCP && c.DisableSCTP {
		return fmt.Errorf("%w: cannot disable both transports", ErrConfigInvalid)
	}
	if c.LocalID == "" {
		return fmt.Errorf("%w: local identity (FQDN) is required", ErrConfigInvalid)
	}
	if c.TLS.CertFile != "" {
		if err := c.validateCertHostname(); err != nil {
			return err
		}
	}
	return nil
}

// validateCertHostname enforces that the local certificate's hostname
// matches the configured local identity, per spec.md §6.
func (c *Config) validateCertHostname() error {
	pemBytes, err := os.ReadFile(c.TLS.CertFile)
	if err != nil {
		return fmt.Errorf("%w: reading local certificate: %s", ErrConfigInvalid, err)
	}
	cert, err := parseLeafCertificate(pemBytes)
	if err != nil {
		return fmt.Errorf("%w: parsing local certificate: %s", ErrConfigInvalid, err)
	}
	if err := cert.VerifyHostname(c.LocalID); err != nil {
		return fmt.Errorf("%w: local certificate hostname mismatch: %s", ErrConfigInvalid, err)
	}
	return nil
}

// parseLeafCertificate extracts the leaf [*x509.Certificate] from a
// PEM-encoded chain, tolerating a PEM bundle with intermediates.
func parseLeafCertificate(pemBytes []byte) (*x509.Certificate, error) {
	for {
		var block *pem.Block
		block, pemBytes = pem.Decode(pemBytes)
		if block == nil {
			return nil, fmt.Errorf("no CERTIFICATE block found")
		}
		if block.Type == "CERTIFICATE" {
			return x509.ParseCertificate(block.Bytes)
		}
	}
}

// TLSConfig loads c.TLS's on-disk material into a [*tls.Config] suitable
// for [Cnx.Handshake]. CRLFile, when set, is consulted by a
// VerifyPeerCertificate callback since the standard library has no
// built-in CRL check on the client or server verification path.
//
// Every handshake in this core clones the returned config (see
// [Cnx.Handshake]), so a single [*tls.Config] built once at startup is
// safe to share across every accepted client and outgoing connection.
func (c *Config) TLSConfig() (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(c.TLS.CertFile, c.TLS.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("%w: loading key pair: %s", ErrConfigInvalid, err)
	}

	roots := x509.NewCertPool()
	caBytes, err := os.ReadFile(c.TLS.CAFile)
	if err != nil {
		return nil, fmt.Errorf("%w: reading CA file: %s", ErrConfigInvalid, err)
	}
	if !roots.AppendCertsFromPEM(caBytes) {
		return nil, fmt.Errorf("%w: no certificates found in CA file", ErrConfigInvalid)
	}

	config := &tls.Config{
		Certificates: []tls.Certificate{cert},
		RootCAs:      roots,
		ClientCAs:    roots,
		MinVersion:   tls.VersionTLS12,
		ServerName:   c.LocalID,
	}

	if c.TLS.CRLFile != "" {
		crl, err := loadCRL(c.TLS.CRLFile)
		if err != nil {
			return nil, err
		}
		config.VerifyPeerCertificate = newCRLVerifier(crl)
	}

	return config, nil
}

// loadCRL parses a PEM or DER-encoded certificate revocation list.
func loadCRL(path string) (*x509.RevocationList, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading CRL file: %s", ErrConfigInvalid, err)
	}
	if block, _ := pem.Decode(data); block != nil {
		data = block.Bytes
	}
	crl, err := x509.ParseRevocationList(data)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing CRL: %s", ErrConfigInvalid, err)
	}
	return crl, nil
}

// newCRLVerifier builds a VerifyPeerCertificate callback that rejects any
// presented chain in which some certificate's serial number appears on crl.
func newCRLVerifier(crl *x509.RevocationList) func([][]byte, [][]*x509.Certificate) error {
	revoked := make(map[string]struct{}, len(crl.RevokedCertificateEntries))
	for _, entry := range crl.RevokedCertificateEntries {
		revoked[entry.SerialNumber.String()] = struct{}{}
	}
	return func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
		for _, raw := range rawCerts {
			cert, err := x509.ParseCertificate(raw)
			if err != nil {
				continue
			}
			if _, ok := revoked[cert.SerialNumber.String()]; ok {
				return fmt.Errorf("%w: certificate %s is revoked", ErrTLSFatal, cert.SerialNumber)
			}
		}
		return nil
	}
}
