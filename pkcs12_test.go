package storekit

import (
	"crypto/x509"
	"strings"
	"testing"

	gopkcs12 "software.sslmate.com/src/go-pkcs12"
)

func buildPKCS12Key(t *testing.T, cn, password string) ([]byte, *x509.Certificate) {
	t.Helper()
	cert, key := newTestCert(t, cn)
	data, err := gopkcs12.Modern.Encode(key, cert, nil, password)
	if err != nil {
		t.Fatalf("encode PKCS#12: %v", err)
	}
	return data, cert
}

func buildPKCS12TrustStore(t *testing.T, password string, names ...string) []byte {
	t.Helper()
	var entries []gopkcs12.TrustStoreEntry
	for _, name := range names {
		cert, _ := newTestCert(t, name)
		entries = append(entries, gopkcs12.TrustStoreEntry{Cert: cert, FriendlyName: name})
	}
	data, err := gopkcs12.Modern.EncodeTrustStoreEntries(entries, password)
	if err != nil {
		t.Fatalf("encode PKCS#12 trust store: %v", err)
	}
	return data
}

func TestDecodePKCS12_KeyEntry(t *testing.T) {
	data, cert := buildPKCS12Key(t, "p12.example.com", "secret")

	c, err := Decode(data, FormatPKCS12, "secret")
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if c.Len() != 1 {
		t.Fatalf("expected 1 entry, got %d", c.Len())
	}
	e := c.Entry("1")
	if e == nil {
		t.Fatal("key entry should be aliased \"1\"")
	}
	if !e.IsKeyEntry() || e.KeyDER == nil {
		t.Error("entry should carry a recovered key")
	}
	if Fingerprint(e.Certificate) != Fingerprint(cert) {
		t.Error("decoded certificate differs from the one stored")
	}
}

func TestDecodePKCS12_TrustStore(t *testing.T) {
	data := buildPKCS12TrustStore(t, "secret", "first", "second")

	c, err := Decode(data, FormatPKCS12, "secret")
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if c.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", c.Len())
	}
	// Trusted entries are aliased by position.
	for _, alias := range []string{"1", "2"} {
		e := c.Entry(alias)
		if e == nil {
			t.Fatalf("missing entry %q", alias)
		}
		if e.IsKeyEntry() {
			t.Errorf("entry %q should be a trusted entry", alias)
		}
	}
}

func TestDecodePKCS12_WrongPassword(t *testing.T) {
	data, _ := buildPKCS12Key(t, "p12.example.com", "secret")

	_, err := Decode(data, FormatPKCS12, "wrong")
	if err == nil {
		t.Fatal("expected error with wrong password")
	}
	if !strings.Contains(err.Error(), "PKCS#12") {
		t.Errorf("error should mention PKCS#12, got: %v", err)
	}
}

func TestRecoverEntry_PKCS12PasswordMustMatch(t *testing.T) {
	data, _ := buildPKCS12Key(t, "p12.example.com", "secret")

	c, err := Decode(data, FormatPKCS12, "secret")
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if _, err := c.RecoverEntry("1", "other"); err == nil {
		t.Error("key password differing from the store password should fail")
	}
	e, err := c.RecoverEntry("1", "secret")
	if err != nil {
		t.Fatalf("RecoverEntry: %v", err)
	}
	if e.KeyDER == nil {
		t.Error("recovered entry should carry the key")
	}
}

func TestEncodePKCS12_RoundTrip(t *testing.T) {
	cert, key := newTestCert(t, "p12-encode.example.com")
	c := NewKeyContainer(FormatPKCS12, "secret")
	c.SetEntry(&Entry{Alias: "1", Certificate: cert, KeyDER: pkcs8DER(t, key), isKey: true})

	data, err := c.Encode("secret")
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decoded, err := Decode(data, FormatPKCS12, "secret")
	if err != nil {
		t.Fatalf("Decode round-trip: %v", err)
	}
	e := decoded.Entry("1")
	if e == nil || e.KeyDER == nil {
		t.Fatal("key entry did not survive the round trip")
	}
	if Fingerprint(e.Certificate) != Fingerprint(cert) {
		t.Error("certificate did not survive the round trip")
	}
}

func TestEncodePKCS12_TrustStoreRoundTrip(t *testing.T) {
	first, _ := newTestCert(t, "first-ca")
	second, _ := newTestCert(t, "second-ca")
	c := NewKeyContainer(FormatPKCS12, "secret")
	c.SetEntry(&Entry{Alias: "first", Certificate: first})
	c.SetEntry(&Entry{Alias: "second", Certificate: second})

	data, err := c.Encode("secret")
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decoded, err := Decode(data, FormatPKCS12, "secret")
	if err != nil {
		t.Fatalf("Decode round-trip: %v", err)
	}
	if decoded.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", decoded.Len())
	}
}

func TestEncodePKCS12_MultipleKeysRejected(t *testing.T) {
	certA, keyA := newTestCert(t, "a.example.com")
	certB, keyB := newTestCert(t, "b.example.com")
	c := NewKeyContainer(FormatPKCS12, "secret")
	c.SetEntry(&Entry{Alias: "a", Certificate: certA, KeyDER: pkcs8DER(t, keyA), isKey: true})
	c.SetEntry(&Entry{Alias: "b", Certificate: certB, KeyDER: pkcs8DER(t, keyB), isKey: true})

	if _, err := c.Encode("secret"); err == nil {
		t.Error("encoding two key entries into PKCS#12 should fail")
	}
}
