// Package authcert resolves the certificate used to verify an invoker's
// challenge signature, and verifies that signature. The signature
// primitive itself is treated as opaque per the broker's design: it is a
// thin wrapper over crypto/x509 and the standard public-key verify calls,
// not a broker-specific concern.
package authcert

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Cert wraps a parsed invoker certificate.
type Cert struct {
	PublicKey any // *rsa.PublicKey | *ecdsa.PublicKey | ed25519.PublicKey
	Raw       []byte
}

// ParsePEM parses a PEM-encoded X.509 certificate into a Cert.
func ParsePEM(data []byte) (Cert, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return Cert{}, errors.New("authcert: no PEM block found")
	}
	c, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return Cert{}, fmt.Errorf("authcert: parse certificate: %w", err)
	}
	return Cert{PublicKey: c.PublicKey, Raw: data}, nil
}

// Verify reports whether signature is a valid signature over challenge
// under cert's public key. Supports RSA (PKCS#1 v1.5 over SHA-256),
// ECDSA (over SHA-256) and Ed25519 keys.
func Verify(cert Cert, challenge, signature []byte) bool {
	switch key := cert.PublicKey.(type) {
	case ed25519.PublicKey:
		return ed25519.Verify(key, challenge, signature)
	case *rsa.PublicKey:
		digest := sha256.Sum256(challenge)
		return rsa.VerifyPKCS1v15(key, crypto.SHA256, digest[:], signature) == nil
	case *ecdsa.PublicKey:
		digest := sha256.Sum256(challenge)
		return ecdsa.VerifyASN1(key, digest[:], signature)
	default:
		return false
	}
}

// Strategy is how the broker obtains the certificate used to verify an
// invoker's challenge response.
type Strategy int

const (
	// API fetches the certificate from the testing system through
	// Config.UpstreamCert. Resolve fails with ErrAuthUnavailable only when
	// UpstreamCert is nil; it does not check whether the upstream
	// WebSocket link is connected.
	API Strategy = iota
	// FromFile reads a single fixed-name certificate file for every invoker.
	FromFile
	// FromFileByName reads a certificate file keyed by the invoker's presented key.
	FromFileByName
)

// CertSource resolves a certificate for an invoker-presented key. The API
// strategy is satisfied by certapi.Client, an HTTP client for the
// testing system, rather than by the whole broker (see internal/certapi).
type CertSource interface {
	GetCertificateByKey(key string) (Cert, error)
}

// Config is the resolved authentication configuration: a strategy plus
// whatever filesystem location it needs.
type Config struct {
	Strategy     Strategy
	CertFile     string // used by FromFile
	CertDir      string // used by FromFileByName
	UpstreamCert CertSource
}

// ErrAuthUnavailable is returned by Resolve when Strategy is API but no
// upstream CertSource has been wired in yet (spec's AuthUnavailable error kind).
var ErrAuthUnavailable = errors.New("authcert: upstream certificate source unavailable")

// Resolve obtains the certificate to verify key's challenge signature against.
func (c Config) Resolve(key string) (Cert, error) {
	switch c.Strategy {
	case API:
		if c.UpstreamCert == nil {
			return Cert{}, ErrAuthUnavailable
		}
		return c.UpstreamCert.GetCertificateByKey(key)
	case FromFile:
		data, err := os.ReadFile(c.CertFile)
		if err != nil {
			return Cert{}, fmt.Errorf("authcert: read %s: %w", c.CertFile, err)
		}
		return ParsePEM(data)
	case FromFileByName:
		path := filepath.Join(c.CertDir, key+".pub")
		data, err := os.ReadFile(path)
		if err != nil {
			return Cert{}, fmt.Errorf("authcert: read %s: %w", path, err)
		}
		return ParsePEM(data)
	default:
		return Cert{}, fmt.Errorf("authcert: unknown strategy %d", c.Strategy)
	}
}

// ParseStrategy parses an AUTH_STRATEGY environment value, defaulting to
// API for anything unrecognised.
func ParseStrategy(s string) Strategy {
	switch s {
	case "file", "File", "FromFile", "FROMFILE":
		return FromFile
	case "file-by-name", "FromFileByName", "byname", "ByName", "BYNAME":
		return FromFileByName
	default:
		return API
	}
}
