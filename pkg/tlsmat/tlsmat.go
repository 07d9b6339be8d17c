// Package tlsmat loads the TLS certificate material the connection
// pipeline needs and exposes named version/cipher-suite profiles for
// building a listener-side *tls.Config.
package tlsmat

import "crypto/tls"

// MinAcceptableVersion is the floor the connection pipeline's TLS gate
// checks against: "TLS minor-version gating rejects anything below TLS
// 1.0."
const MinAcceptableVersion = tls.VersionTLS10

// Profile names a Min/Max TLS version range plus the cipher suites to
// offer within it.
type Profile struct {
	Name         string
	MinVersion   uint16
	MaxVersion   uint16
	CipherSuites []uint16
	Description  string
}

var (
	// Modern offers TLS 1.3 only.
	Modern = Profile{
		Name:        "modern",
		MinVersion:  tls.VersionTLS13,
		MaxVersion:  tls.VersionTLS13,
		Description: "TLS 1.3 only - maximum security, modern clients only",
	}

	// Secure offers TLS 1.2 and 1.3 with AEAD cipher suites only.
	Secure = Profile{
		Name:       "secure",
		MinVersion: tls.VersionTLS12,
		MaxVersion: tls.VersionTLS13,
		CipherSuites: []uint16{
			tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305_SHA256,
			tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305_SHA256,
		},
		Description: "TLS 1.2+ - secure and widely compatible",
	}

	// Compatible offers TLS 1.0 through 1.3, for clients the operator
	// can't yet drop. The connection pipeline negotiates with this
	// profile and applies its own MinAcceptableVersion gate afterward.
	Compatible = Profile{
		Name:        "compatible",
		MinVersion:  MinAcceptableVersion,
		MaxVersion:  tls.VersionTLS13,
		Description: "TLS 1.0+ - maximum compatibility, includes deprecated versions",
	}
)

// LoadCertificate loads a TLS certificate/key PEM pair from disk, the
// fullchain.pem/privatekey.pem layout the launcher expects.
func LoadCertificate(certPath, keyPath string) (tls.Certificate, error) {
	return tls.LoadX509KeyPair(certPath, keyPath)
}

// Config builds a *tls.Config applying profile's version range and
// cipher suites to the given certificate, for use as a listener's server
// config.
func Config(cert tls.Certificate, profile Profile) *tls.Config {
	cfg := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   profile.MinVersion,
		MaxVersion:   profile.MaxVersion,
	}
	if len(profile.CipherSuites) > 0 {
		cfg.CipherSuites = profile.CipherSuites
	}
	return cfg
}

// VersionName returns a human-readable label for a TLS version constant,
// or "unknown" for a value it does not recognize.
func VersionName(version uint16) string {
	switch version {
	case tls.VersionTLS10:
		return "TLS 1.0"
	case tls.VersionTLS11:
		return "TLS 1.1"
	case tls.VersionTLS12:
		return "TLS 1.2"
	case tls.VersionTLS13:
		return "TLS 1.3"
	default:
		return "unknown"
	}
}
