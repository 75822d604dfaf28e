package storekit

import (
	"bytes"
	"crypto/x509"
	"fmt"
	"time"

	"github.com/pavlo-v-chernykh/keystore-go/v4"
)

// newJKS creates a KeyStore that preserves alias case and returns aliases in
// a deterministic order.
func newJKS() keystore.KeyStore {
	return keystore.New(keystore.WithCaseExactAliases(), keystore.WithOrderedAliases())
}

// decodeJKS decodes a Java KeyStore into a KeyContainer. The store password
// is also tried as the key password for every private-key entry (the Java
// convention); entries whose key password differs are recorded without key
// material and can be unlocked later via RecoverEntry.
func decodeJKS(data []byte, password string) (*KeyContainer, error) {
	ks := newJKS()
	if err := ks.Load(bytes.NewReader(data), []byte(password)); err != nil {
		return nil, fmt.Errorf("loading JKS store: %w", err)
	}

	c := NewKeyContainer(FormatJKS, password)
	for _, alias := range ks.Aliases() {
		switch {
		case ks.IsTrustedCertificateEntry(alias):
			tce, err := ks.GetTrustedCertificateEntry(alias)
			if err != nil {
				return nil, fmt.Errorf("reading trusted entry %q: %w", alias, err)
			}
			cert, err := x509.ParseCertificate(tce.Certificate.Content)
			if err != nil {
				return nil, fmt.Errorf("parsing certificate for %q: %w", alias, err)
			}
			c.entries = append(c.entries, &Entry{Alias: alias, Certificate: cert})

		case ks.IsPrivateKeyEntry(alias):
			pke, err := ks.GetPrivateKeyEntry(alias, []byte(password))
			if err != nil {
				// Key password differs from the store password. Keep the
				// alias visible; the key stays locked until RecoverEntry.
				c.entries = append(c.entries, &Entry{Alias: alias, isKey: true})
				continue
			}
			entry, err := entryFromJKS(alias, pke)
			if err != nil {
				return nil, err
			}
			c.entries = append(c.entries, entry)
		}
	}
	return c, nil
}

func entryFromJKS(alias string, pke keystore.PrivateKeyEntry) (*Entry, error) {
	chain := make([]*x509.Certificate, 0, len(pke.CertificateChain))
	for _, kc := range pke.CertificateChain {
		cert, err := x509.ParseCertificate(kc.Content)
		if err != nil {
			return nil, fmt.Errorf("parsing chain certificate for %q: %w", alias, err)
		}
		chain = append(chain, cert)
	}
	entry := &Entry{Alias: alias, KeyDER: pke.PrivateKey, isKey: true}
	if len(chain) > 0 {
		entry.Certificate = chain[0]
		entry.Chain = chain[1:]
	}
	return entry, nil
}

// recoverJKSEntry unlocks the private key under alias with the given key
// password by re-reading the raw store bytes.
func recoverJKSEntry(c *KeyContainer, alias, password string) (*Entry, error) {
	if c.raw == nil {
		// In-memory container: entries were never individually encrypted.
		e := c.Entry(alias)
		if e != nil && e.KeyDER != nil && password == c.Password {
			return e, nil
		}
		return nil, fmt.Errorf("recovering key %q: invalid key password", alias)
	}

	ks := newJKS()
	if err := ks.Load(bytes.NewReader(c.raw), []byte(c.Password)); err != nil {
		return nil, fmt.Errorf("loading JKS store: %w", err)
	}
	pke, err := ks.GetPrivateKeyEntry(alias, []byte(password))
	if err != nil {
		return nil, fmt.Errorf("recovering key %q: %w", alias, err)
	}
	return entryFromJKS(alias, pke)
}

// encodeJKS serializes the container as a Java KeyStore. The given password
// protects the store and every private-key entry.
func encodeJKS(c *KeyContainer, password string) ([]byte, error) {
	ks := newJKS()
	for _, e := range c.entries {
		if e.IsKeyEntry() {
			if e.KeyDER == nil {
				return nil, fmt.Errorf("encoding JKS store: key for alias %q is locked", e.Alias)
			}
			chain := make([]keystore.Certificate, 0, 1+len(e.Chain))
			chain = append(chain, keystore.Certificate{Type: "X.509", Content: e.Certificate.Raw})
			for _, cert := range e.Chain {
				chain = append(chain, keystore.Certificate{Type: "X.509", Content: cert.Raw})
			}
			err := ks.SetPrivateKeyEntry(e.Alias, keystore.PrivateKeyEntry{
				CreationTime:     time.Now(),
				PrivateKey:       e.KeyDER,
				CertificateChain: chain,
			}, []byte(password))
			if err != nil {
				return nil, fmt.Errorf("setting JKS key entry %q: %w", e.Alias, err)
			}
			continue
		}
		err := ks.SetTrustedCertificateEntry(e.Alias, keystore.TrustedCertificateEntry{
			CreationTime: time.Now(),
			Certificate:  keystore.Certificate{Type: "X.509", Content: e.Certificate.Raw},
		})
		if err != nil {
			return nil, fmt.Errorf("setting JKS trusted entry %q: %w", e.Alias, err)
		}
	}

	var buf bytes.Buffer
	if err := ks.Store(&buf, []byte(password)); err != nil {
		return nil, fmt.Errorf("storing JKS store: %w", err)
	}
	return buf.Bytes(), nil
}
