package storekit

import (
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"time"
)

// CertificateInfo is the display descriptor of a certificate: distinguished
// names, SHA-256 fingerprint, and validity window. It is computed fresh on
// every request and never stored.
type CertificateInfo struct {
	IssuerDN          string    `json:"issuerDn"`
	SubjectDN         string    `json:"subjectDn"`
	SHA256Fingerprint string    `json:"sha256Fingerprint"`
	ValidFrom         time.Time `json:"validFrom"`
	ValidTo           time.Time `json:"validTo"`
}

// NewCertificateInfo projects a certificate into its display descriptor.
func NewCertificateInfo(cert *x509.Certificate) CertificateInfo {
	return CertificateInfo{
		IssuerDN:          cert.Issuer.String(),
		SubjectDN:         cert.Subject.String(),
		SHA256Fingerprint: Fingerprint(cert),
		ValidFrom:         cert.NotBefore,
		ValidTo:           cert.NotAfter,
	}
}

// Fingerprint returns the SHA-256 fingerprint of a certificate as a
// lowercase hex string.
func Fingerprint(cert *x509.Certificate) string {
	hash := sha256.Sum256(cert.Raw)
	return hex.EncodeToString(hash[:])
}
