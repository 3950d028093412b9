package apns

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sideshow/apns2/certificate"
)

const (
	// DefaultHost is the sandbox gateway.
	DefaultHost = "gateway.sandbox.push.apple.com"
	// DefaultPort is the gateway port.
	DefaultPort = 2195
	// DefaultFeedbackPort is the fixed port of the feedback service.
	DefaultFeedbackPort = 2196
)

// Settings are the raw, unresolved gateway options as they arrive from
// flags, YAML or the environment.
type Settings struct {
	Host         string
	Port         int
	FeedbackPort int
	// PemPath points to a PEM file holding both certificate and private key,
	// or to a PKCS#12 bundle when it ends in .p12.
	PemPath    string
	Passphrase string
	Persistent bool
}

// Config is the resolved, immutable configuration of one Gateway.
type Config struct {
	Host         string
	Port         int
	FeedbackPort int
	Persistent   bool
	Certificate  tls.Certificate
	// RootCAs verifies the gateway. Nil uses the host's root set.
	RootCAs *x509.CertPool
}

// ResolveConfig applies defaults and loads the client certificate. It fails
// with an ErrConfiguration error before any network activity.
func ResolveConfig(s Settings) (Config, error) {
	cert, err := LoadCertificate(s.PemPath, s.Passphrase)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Host:         s.Host,
		Port:         s.Port,
		FeedbackPort: s.FeedbackPort,
		Persistent:   s.Persistent,
		Certificate:  cert,
	}
	return cfg.withDefaults(), nil
}

// LoadCertificate reads the client identity, decrypting the key with
// passphrase when it is protected.
func LoadCertificate(path, passphrase string) (tls.Certificate, error) {
	if path == "" {
		return tls.Certificate{}, ErrCertificateNotSet
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return tls.Certificate{}, fmt.Errorf("%w: %s", ErrCertificateNotFound, path)
		}
		return tls.Certificate{}, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	var (
		cert tls.Certificate
		err  error
	)
	if strings.EqualFold(filepath.Ext(path), ".p12") {
		cert, err = certificate.FromP12File(path, passphrase)
	} else {
		cert, err = certificate.FromPemFile(path, passphrase)
	}
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("%w: load %s: %v", ErrConfiguration, path, err)
	}
	return cert, nil
}

func (c Config) withDefaults() Config {
	if c.Host == "" {
		c.Host = DefaultHost
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.FeedbackPort == 0 {
		c.FeedbackPort = DefaultFeedbackPort
	}
	return c
}

func (c Config) validate() error {
	if len(c.Certificate.Certificate) == 0 {
		return ErrCertificateNotSet
	}
	return nil
}

// Addr is the gateway host:port.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// FeedbackAddr is the feedback service host:port derived from the gateway.
func (c Config) FeedbackAddr() string {
	return net.JoinHostPort(FeedbackHost(c.Host), strconv.Itoa(c.FeedbackPort))
}

func (c Config) tlsConfig(serverName string) *tls.Config {
	return &tls.Config{
		Certificates: []tls.Certificate{c.Certificate},
		RootCAs:      c.RootCAs,
		ServerName:   serverName,
		MinVersion:   tls.VersionTLS12,
	}
}

// FeedbackHost maps a gateway host onto its feedback counterpart, e.g.
// gateway.push.apple.com -> feedback.push.apple.com.
func FeedbackHost(host string) string {
	return strings.ReplaceAll(host, "gateway", "feedback")
}
