package storekit

import (
	"crypto/x509"
	"fmt"
	"strconv"

	gopkcs12 "software.sslmate.com/src/go-pkcs12"
)

// decodePKCS12 decodes a PKCS#12/PFX container. A container with a private
// key yields a single key entry aliased "1" (the keytool convention for
// stores without friendly names); a certs-only container yields trusted
// entries aliased by position. PKCS#12 binds every key to the store
// password, so a wrong password fails the whole decode; the error chain
// preserves the underlying MAC and unwrap causes.
func decodePKCS12(data []byte, password string) (*KeyContainer, error) {
	c := NewKeyContainer(FormatPKCS12, password)

	key, leaf, caCerts, err := gopkcs12.DecodeChain(data, password)
	if err == nil {
		keyDER, merr := x509.MarshalPKCS8PrivateKey(key)
		if merr != nil {
			return nil, fmt.Errorf("marshaling PKCS#12 key to PKCS#8: %w", merr)
		}
		c.entries = append(c.entries, &Entry{
			Alias:       "1",
			Certificate: leaf,
			Chain:       caCerts,
			KeyDER:      keyDER,
			isKey:       true,
		})
		return c, nil
	}

	certs, tsErr := gopkcs12.DecodeTrustStore(data, password)
	if tsErr == nil {
		for i, cert := range certs {
			c.entries = append(c.entries, &Entry{
				Alias:       strconv.Itoa(i + 1),
				Certificate: cert,
			})
		}
		return c, nil
	}

	return nil, fmt.Errorf("decoding PKCS#12 store: %w", err)
}

// encodePKCS12 serializes the container as PKCS#12. The format holds at most
// one private-key entry; certs-only containers are encoded as a trust store
// with the aliases preserved as friendly names.
func encodePKCS12(c *KeyContainer, password string) ([]byte, error) {
	var keyEntry *Entry
	var trusted []gopkcs12.TrustStoreEntry
	for _, e := range c.entries {
		if e.IsKeyEntry() {
			if keyEntry != nil {
				return nil, fmt.Errorf("encoding PKCS#12 store: more than one private-key entry (%q and %q)", keyEntry.Alias, e.Alias)
			}
			keyEntry = e
			continue
		}
		trusted = append(trusted, gopkcs12.TrustStoreEntry{Cert: e.Certificate, FriendlyName: e.Alias})
	}

	if keyEntry == nil {
		out, err := gopkcs12.Modern.EncodeTrustStoreEntries(trusted, password)
		if err != nil {
			return nil, fmt.Errorf("encoding PKCS#12 trust store: %w", err)
		}
		return out, nil
	}
	if len(trusted) > 0 {
		return nil, fmt.Errorf("encoding PKCS#12 store: cannot mix a private-key entry with trusted entries")
	}
	if keyEntry.KeyDER == nil {
		return nil, fmt.Errorf("encoding PKCS#12 store: key for alias %q is locked", keyEntry.Alias)
	}
	key, err := x509.ParsePKCS8PrivateKey(keyEntry.KeyDER)
	if err != nil {
		return nil, fmt.Errorf("parsing PKCS#8 key for %q: %w", keyEntry.Alias, err)
	}
	out, err := gopkcs12.Modern.Encode(key, keyEntry.Certificate, keyEntry.Chain, password)
	if err != nil {
		return nil, fmt.Errorf("encoding PKCS#12 store: %w", err)
	}
	return out, nil
}
