package storekit

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"testing"
	"time"

	"github.com/pavlo-v-chernykh/keystore-go/v4"
)

var testSerial int64 = 1000

// newTestCert creates a self-signed certificate with the given CN and returns
// it with its private key.
func newTestCert(t *testing.T, cn string) (*x509.Certificate, *ecdsa.PrivateKey) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	testSerial++
	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(testSerial),
		Subject:               pkix.Name{CommonName: cn},
		NotBefore:             time.Now().Add(-1 * time.Hour),
		NotAfter:              time.Now().Add(365 * 24 * time.Hour),
		BasicConstraintsValid: true,
		IsCA:                  true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("create cert: %v", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("parse cert: %v", err)
	}
	return cert, key
}

// pkcs8DER marshals a private key to PKCS#8 DER.
func pkcs8DER(t *testing.T, key *ecdsa.PrivateKey) []byte {
	t.Helper()
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatalf("marshal PKCS8: %v", err)
	}
	return der
}

// buildJKSTrusted builds a JKS store of trusted-certificate entries, one per
// alias, each with its own self-signed certificate.
func buildJKSTrusted(t *testing.T, password string, aliases ...string) []byte {
	t.Helper()

	ks := newJKS()
	for _, alias := range aliases {
		cert, _ := newTestCert(t, alias+".example.com")
		err := ks.SetTrustedCertificateEntry(alias, keystore.TrustedCertificateEntry{
			CreationTime: time.Now(),
			Certificate:  keystore.Certificate{Type: "X.509", Content: cert.Raw},
		})
		if err != nil {
			t.Fatalf("set trusted entry %q: %v", alias, err)
		}
	}

	var buf bytes.Buffer
	if err := ks.Store(&buf, []byte(password)); err != nil {
		t.Fatalf("store JKS: %v", err)
	}
	return buf.Bytes()
}

// buildJKSWithKey builds a JKS store with one private-key entry under alias.
// The key entry is encrypted with keyPassword, which may differ from the
// store password. The entry's certificate is returned for identity checks.
func buildJKSWithKey(t *testing.T, alias, storePassword, keyPassword string) ([]byte, *x509.Certificate) {
	t.Helper()

	cert, key := newTestCert(t, alias+".example.com")
	ks := newJKS()
	err := ks.SetPrivateKeyEntry(alias, keystore.PrivateKeyEntry{
		CreationTime: time.Now(),
		PrivateKey:   pkcs8DER(t, key),
		CertificateChain: []keystore.Certificate{
			{Type: "X.509", Content: cert.Raw},
		},
	}, []byte(keyPassword))
	if err != nil {
		t.Fatalf("set private key entry: %v", err)
	}

	var buf bytes.Buffer
	if err := ks.Store(&buf, []byte(storePassword)); err != nil {
		t.Fatalf("store JKS: %v", err)
	}
	return buf.Bytes(), cert
}

// pemEncodeCert returns the PEM encoding of a certificate.
func pemEncodeCert(cert *x509.Certificate) []byte {
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw})
}

// pemEncodeKey returns the unencrypted PKCS#8 PEM encoding of a private key.
func pemEncodeKey(t *testing.T, key *ecdsa.PrivateKey) []byte {
	t.Helper()
	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: pkcs8DER(t, key)})
}
