package httpclient

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log/slog"
	"net/http"
	"os"
)

// TLSConfig configures transport security for self-hosted endpoints.
type TLSConfig struct {
	// InsecureSkipVerify disables certificate verification. Dev only.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify,omitempty"`
	// CACertificate is a path to a PEM CA bundle for private gateways.
	CACertificate string `yaml:"ca_certificate,omitempty"`
}

// Transport builds an http.Transport from the TLS settings.
func (c *TLSConfig) Transport() (*http.Transport, error) {
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: c.InsecureSkipVerify,
		},
	}

	if c.CACertificate != "" {
		pem, err := os.ReadFile(c.CACertificate)
		if err != nil {
			return nil, fmt.Errorf("httpclient: read CA certificate %s: %w", c.CACertificate, err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("httpclient: parse CA certificate %s: no PEM blocks", c.CACertificate)
		}
		transport.TLSClientConfig.RootCAs = pool
	}

	return transport, nil
}

// WithTLS applies TLS settings to the client transport. A nil config is a
// no-op; configuration errors are logged and leave the default transport.
func WithTLS(cfg *TLSConfig) Option {
	return func(c *Client) {
		if cfg == nil {
			return
		}
		transport, err := cfg.Transport()
		if err != nil {
			slog.Warn("Falling back to default transport", "error", err)
			return
		}
		c.client.Transport = transport
	}
}
