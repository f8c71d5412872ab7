// Package tlsutil provides the TLS settings for outbound HTTP clients.
// 安全加固：TLS 1.2+，仅 AEAD 密码套件。
package tlsutil

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"
)

// ClientOptions customizes the client TLS configuration.
type ClientOptions struct {
	// CAFile is a PEM bundle trusted in addition to the system roots.
	CAFile     string `yaml:"ca_file" json:"ca_file"`
	ServerName string `yaml:"server_name" json:"server_name"`
	// InsecureSkipVerify disables certificate checks. Local development only.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify" json:"insecure_skip_verify"`
}

// DefaultTLSConfig returns a hardened TLS configuration.
// MinVersion TLS 1.2, AEAD-only cipher suites.
func DefaultTLSConfig() *tls.Config {
	return &tls.Config{
		MinVersion: tls.VersionTLS12,
		CipherSuites: []uint16{
			tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305,
			tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305,
		},
	}
}

// ClientTLSConfig builds the hardened config with the given options applied.
func ClientTLSConfig(opts ClientOptions) (*tls.Config, error) {
	cfg := DefaultTLSConfig()
	cfg.ServerName = opts.ServerName
	cfg.InsecureSkipVerify = opts.InsecureSkipVerify //nolint:gosec // opt-in for local backends

	if opts.CAFile != "" {
		pem, err := os.ReadFile(opts.CAFile)
		if err != nil {
			return nil, fmt.Errorf("read CA file: %w", err)
		}
		pool, err := x509.SystemCertPool()
		if err != nil || pool == nil {
			pool = x509.NewCertPool()
		}
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in %s", opts.CAFile)
		}
		cfg.RootCAs = pool
	}
	return cfg, nil
}

// SecureTransport returns an http.Transport using cfg, or the default
// hardened config when cfg is nil.
func SecureTransport(cfg *tls.Config) *http.Transport {
	if cfg == nil {
		cfg = DefaultTLSConfig()
	}
	return &http.Transport{
		TLSClientConfig: cfg,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

// SecureHTTPClient returns an http.Client with TLS hardening.
func SecureHTTPClient(timeout time.Duration, cfg *tls.Config) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: SecureTransport(cfg),
	}
}
