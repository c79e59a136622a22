// File: internal/legacy/transport.go
package legacy

import (
	"crypto/tls"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/http2"

	"github.com/xkilldash9x/formgate/internal/config"
)

// Transport defaults used when the configuration leaves a value at zero.
const (
	DefaultDialTimeout           = 5 * time.Second
	DefaultKeepAliveInterval     = 15 * time.Second
	DefaultTLSHandshakeTimeout   = 5 * time.Second
	DefaultResponseHeaderTimeout = 10 * time.Second
	DefaultRequestTimeout        = 30 * time.Second

	DefaultMaxIdleConns        = 100
	DefaultMaxIdleConnsPerHost = 20
	DefaultMaxConnsPerHost     = 50
	DefaultIdleConnTimeout     = 30 * time.Second
)

// newTransport builds the base transport for a legacy client.
//
// An unpooled transport opens a connection per request. A pooled one keeps idle
// connections per host and negotiates HTTP/2 when ForceHTTP2 is set, except under
// NTLM, which authenticates the TCP connection itself and needs HTTP/1.1.
func newTransport(cfg config.LegacyConfig, pooled bool, logger *zap.Logger) *http.Transport {
	if logger == nil {
		logger = zap.NewNop()
	}

	dialer := &net.Dialer{
		Timeout:   DefaultDialTimeout,
		KeepAlive: DefaultKeepAliveInterval,
	}
	tlsConfig := secureTLSConfig(cfg.IgnoreTLSErrors)

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		TLSClientConfig:       tlsConfig,
		TLSHandshakeTimeout:   DefaultTLSHandshakeTimeout,
		ResponseHeaderTimeout: DefaultResponseHeaderTimeout,
		// Decoding is done by decompressingTransport.
		DisableCompression: true,
	}

	if !pooled {
		transport.DisableKeepAlives = true
		tlsConfig.NextProtos = []string{"http/1.1"}
		return transport
	}

	transport.MaxIdleConns = orDefault(cfg.MaxIdleConns, DefaultMaxIdleConns)
	transport.MaxIdleConnsPerHost = orDefault(cfg.MaxIdleConnsPerHost, DefaultMaxIdleConnsPerHost)
	transport.MaxConnsPerHost = orDefault(cfg.MaxConnsPerHost, DefaultMaxConnsPerHost)
	transport.IdleConnTimeout = DefaultIdleConnTimeout
	if cfg.IdleConnTimeout > 0 {
		transport.IdleConnTimeout = cfg.IdleConnTimeout
	}

	useHTTP2 := cfg.ForceHTTP2 && !strings.EqualFold(cfg.AuthScheme, config.AuthSchemeNTLM)
	if useHTTP2 {
		transport.ForceAttemptHTTP2 = true
		if err := http2.ConfigureTransport(transport); err != nil {
			logger.Warn("Failed to configure HTTP/2 transport, falling back to HTTP/1.1", zap.Error(err))
		}
	} else {
		tlsConfig.NextProtos = []string{"http/1.1"}
	}
	return transport
}

// secureTLSConfig enforces TLS 1.2+ with forward-secret AEAD suites and a session cache.
func secureTLSConfig(ignoreTLSErrors bool) *tls.Config {
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
		ClientSessionCache: tls.NewLRUClientSessionCache(64),
		InsecureSkipVerify: ignoreTLSErrors, //nolint:gosec // opt-in for lab deployments with self-signed certs
	}
}

func orDefault(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}
