package network

import (
	"crypto/tls"
	"crypto/x509"
	"log/slog"
	"time"
)

type settings struct {
	timeout       time.Duration
	retryInterval time.Duration
	buffer        int
	tlsConfig     *tls.Config
	log           *slog.Logger
}

func defaultSettings() settings {
	return settings{
		timeout:       30 * time.Second,
		retryInterval: 100 * time.Millisecond,
		buffer:        64,
		log:           slog.New(slog.DiscardHandler),
	}
}

// Option configures a Server or a Client. Settings that make no sense for
// one of the two are ignored by it.
type Option func(*settings)

// WithTimeout bounds the total time the client spends retrying a payload.
// A zero timeout retries until the context is cancelled.
func WithTimeout(timeout time.Duration) Option {
	return func(s *settings) {
		s.timeout = timeout
	}
}

func WithRetryInterval(interval time.Duration) Option {
	return func(s *settings) {
		s.retryInterval = interval
	}
}

// WithBuffer sets how many payloads the server queues before answering 503.
func WithBuffer(n int) Option {
	return func(s *settings) {
		s.buffer = n
	}
}

func WithLogger(log *slog.Logger) Option {
	return func(s *settings) {
		s.log = log
	}
}

// WithCertificate serves over TLS using cert, and presents it as client
// certificate when dialing.
func WithCertificate(cert tls.Certificate) Option {
	return func(s *settings) {
		if s.tlsConfig == nil {
			s.tlsConfig = &tls.Config{}
		}
		s.tlsConfig.Certificates = append(s.tlsConfig.Certificates, cert)
	}
}

// WithLimitedCAs trusts only certPool. On the server side it also requires
// clients to present a certificate signed by one of those CAs.
func WithLimitedCAs(certPool *x509.CertPool) Option {
	return func(s *settings) {
		if s.tlsConfig == nil {
			s.tlsConfig = &tls.Config{}
		}
		s.tlsConfig.RootCAs = certPool
		s.tlsConfig.ClientAuth = tls.RequireAndVerifyClientCert
		s.tlsConfig.ClientCAs = certPool
	}
}

func applyOptions(opts []Option) settings {
	s := defaultSettings()
	for _, opt := range opts {
		opt(&s)
	}
	return s
}
