package storekit

import (
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"

	"github.com/smallstep/pkcs7"
)

// ParseCertificateAny parses a single certificate from raw bytes, trying DER
// first (most common for exported .cer files), then PEM, then PKCS#7/P7B
// bundles. For multi-certificate inputs the first certificate is returned.
func ParseCertificateAny(data []byte) (*x509.Certificate, error) {
	cert, derErr := x509.ParseCertificate(data)
	if derErr == nil {
		return cert, nil
	}
	certs, pemErr := parsePEMCertificates(data)
	if pemErr == nil {
		return certs[0], nil
	}
	certs, p7Err := decodePKCS7(data)
	if p7Err == nil {
		return certs[0], nil
	}
	return nil, fmt.Errorf("not DER (%v) or PEM (%v) or PKCS#7 (%v)", derErr, pemErr, p7Err)
}

// parsePEMCertificates parses all certificates from a PEM bundle.
func parsePEMCertificates(pemData []byte) ([]*x509.Certificate, error) {
	var certs []*x509.Certificate
	rest := pemData
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parsing certificate: %w", err)
		}
		certs = append(certs, cert)
	}
	if len(certs) == 0 {
		return nil, errors.New("no certificates found in PEM data")
	}
	return certs, nil
}

// decodePKCS7 decodes a DER-encoded PKCS#7 bundle and returns the
// certificates it contains.
func decodePKCS7(derData []byte) ([]*x509.Certificate, error) {
	p7, err := pkcs7.Parse(derData)
	if err != nil {
		return nil, fmt.Errorf("parsing PKCS#7: %w", err)
	}
	if len(p7.Certificates) == 0 {
		return nil, errors.New("PKCS#7 bundle contains no certificates")
	}
	return p7.Certificates, nil
}
