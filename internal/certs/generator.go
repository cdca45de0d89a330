package certs

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net"
	"time"
)

const (
	CommonName   = "localhost"
	KeyBits      = 2048
	SerialNumber = 1000
	Validity     = 10 * 365 * 24 * time.Hour
)

// ErrCryptoUnavailable means this process cannot produce key material.
var ErrCryptoUnavailable = errors.New("certificate generation unavailable")

// SANs every generated certificate carries.
var (
	DNSNames    = []string{"localhost"}
	IPAddresses = []net.IP{net.ParseIP("127.0.0.1"), net.ParseIP("::1")}
)

// Generator produces a PEM-encoded certificate and private key.
type Generator interface {
	Generate() (certPEM, keyPEM []byte, err error)
}

// ProbeGenerator checks that a randomness source is usable and picks the x509
// generator, or one that always reports ErrCryptoUnavailable.
func ProbeGenerator(random io.Reader) Generator {
	if random == nil {
		return unavailableGenerator{cause: errors.New("no randomness source")}
	}

	buf := make([]byte, 32)
	if _, err := io.ReadFull(random, buf); err != nil {
		return unavailableGenerator{cause: err}
	}

	return &X509Generator{Rand: random, Now: time.Now}
}

// DefaultGenerator probes crypto/rand.
func DefaultGenerator() Generator {
	return ProbeGenerator(rand.Reader)
}

// X509Generator issues a self-signed RSA server certificate for loopback use.
type X509Generator struct {
	Rand io.Reader
	Now  func() time.Time
}

// Generate creates the key pair and signs the certificate with SHA-256.
func (g *X509Generator) Generate() ([]byte, []byte, error) {
	key, err := rsa.GenerateKey(g.Rand, KeyBits)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate key: %w", err)
	}

	notBefore := g.Now().UTC()
	template := &x509.Certificate{
		SerialNumber:          big.NewInt(SerialNumber),
		Subject:               pkix.Name{CommonName: CommonName},
		NotBefore:             notBefore,
		NotAfter:              notBefore.Add(Validity),
		SignatureAlgorithm:    x509.SHA256WithRSA,
		BasicConstraintsValid: true,
		IsCA:                  false,
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		DNSNames:              DNSNames,
		IPAddresses:           IPAddresses,
	}

	der, err := x509.CreateCertificate(g.Rand, template, template, &key.PublicKey, key)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to sign certificate: %w", err)
	}

	keyDER, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode key: %w", err)
	}

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: keyDER})

	return certPEM, keyPEM, nil
}

type unavailableGenerator struct {
	cause error
}

func (g unavailableGenerator) Generate() ([]byte, []byte, error) {
	return nil, nil, fmt.Errorf("%w: %v", ErrCryptoUnavailable, g.cause)
}
