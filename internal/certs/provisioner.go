// Package certs makes sure the server has a TLS key pair before it listens,
// generating a self-signed loopback certificate when none is configured.
package certs

import (
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

const (
	CertFileName = "localhost-cert.pem"
	KeyFileName  = "localhost-key.pem"
)

// ErrCertificate wraps any failure that forces plain HTTP.
var ErrCertificate = errors.New("tls bootstrap failed")

// Mode is the serving decision reached at startup.
type Mode string

const (
	ModeExplicit     Mode = "explicit"
	ModeReused       Mode = "reused"
	ModeGenerated    Mode = "generated"
	ModeHTTPOnly     Mode = "http-only"
	ModeHTTPFallback Mode = "http-fallback"
)

// Result describes how the server will listen.
type Result struct {
	Mode     Mode
	CertPath string
	KeyPath  string
	// TLS is nil for the two plain HTTP modes.
	TLS *tls.Config
	// Err is the cause of ModeHTTPFallback.
	Err error
}

// Secure reports whether the result carries TLS material.
func (r Result) Secure() bool {
	return r.TLS != nil
}

// Options configure the provisioner.
type Options struct {
	HTTPOnly bool
	CertFile string
	KeyFile  string
	Dir      string
}

// Provisioner resolves TLS material once at startup.
type Provisioner struct {
	opts      Options
	generator Generator
	logger    *zap.Logger
}

// NewProvisioner creates a provisioner. generator may be nil to use the
// probed default.
func NewProvisioner(opts Options, generator Generator, logger *zap.Logger) *Provisioner {
	if generator == nil {
		generator = DefaultGenerator()
	}
	return &Provisioner{
		opts:      opts,
		generator: generator,
		logger:    logger,
	}
}

// Paths returns the certificate and key locations inside the bundle directory.
func (p *Provisioner) Paths() (certPath, keyPath string) {
	return filepath.Join(p.opts.Dir, CertFileName), filepath.Join(p.opts.Dir, KeyFileName)
}

// Provision walks the startup decision: forced HTTP, an explicit pair, a
// previously generated pair, or a new one. Any failure on the TLS path falls
// back to plain HTTP.
func (p *Provisioner) Provision() Result {
	if p.opts.HTTPOnly {
		p.logger.Warn("HTTP only mode requested, serving plain HTTP")
		return Result{Mode: ModeHTTPOnly}
	}

	result, err := p.resolve()
	if err != nil {
		p.logger.Error("TLS unavailable, falling back to plain HTTP. Clients on HTTPS pages will not reach this server.",
			zap.Error(err))
		return Result{Mode: ModeHTTPFallback, Err: err}
	}

	p.logger.Info("TLS certificate ready",
		zap.String("mode", string(result.Mode)),
		zap.String("cert", result.CertPath),
		zap.String("key", result.KeyPath))

	return result
}

func (p *Provisioner) resolve() (Result, error) {
	if p.opts.CertFile != "" && p.opts.KeyFile != "" &&
		fileExists(p.opts.CertFile) && fileExists(p.opts.KeyFile) {
		return p.load(ModeExplicit, p.opts.CertFile, p.opts.KeyFile)
	}
	if p.opts.CertFile != "" || p.opts.KeyFile != "" {
		p.logger.Warn("Explicit certificate pair incomplete or missing, ignoring",
			zap.String("cert", p.opts.CertFile),
			zap.String("key", p.opts.KeyFile))
	}

	certPath, keyPath := p.Paths()
	if fileExists(certPath) && fileExists(keyPath) {
		return p.load(ModeReused, certPath, keyPath)
	}

	if err := p.generate(certPath, keyPath); err != nil {
		return Result{}, err
	}

	return p.load(ModeGenerated, certPath, keyPath)
}

func (p *Provisioner) generate(certPath, keyPath string) error {
	certPEM, keyPEM, err := p.generator.Generate()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCertificate, err)
	}

	if err := os.MkdirAll(p.opts.Dir, 0o700); err != nil {
		return fmt.Errorf("%w: failed to create certificate directory: %w", ErrCertificate, err)
	}

	if err := writeFileAtomic(keyPath, keyPEM, 0o600); err != nil {
		return fmt.Errorf("%w: %w", ErrCertificate, err)
	}
	if err := writeFileAtomic(certPath, certPEM, 0o644); err != nil {
		return fmt.Errorf("%w: %w", ErrCertificate, err)
	}

	p.logger.Info("Generated new TLS certificate", zap.String("dir", p.opts.Dir))
	return nil
}

func (p *Provisioner) load(mode Mode, certPath, keyPath string) (Result, error) {
	pair, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return Result{}, fmt.Errorf("%w: failed to load key pair: %w", ErrCertificate, err)
	}

	return Result{
		Mode:     mode,
		CertPath: certPath,
		KeyPath:  keyPath,
		TLS: &tls.Config{
			MinVersion:   tls.VersionTLS12,
			Certificates: []tls.Certificate{pair},
		},
	}, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to chmod %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}

	return os.Rename(tmp.Name(), path)
}
