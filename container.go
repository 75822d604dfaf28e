package storekit

import (
	"bytes"
	"crypto/x509"
	"fmt"
)

// Entry is one aliased slot inside a KeyContainer: a certificate, its
// optional intermediate chain, and an optional private key (PKCS#8 DER).
// Trusted-certificate entries carry no key.
type Entry struct {
	Alias       string
	Certificate *x509.Certificate
	Chain       []*x509.Certificate
	KeyDER      []byte

	// keyPEM holds the original (possibly encrypted) PEM key block for
	// entries decoded from PEM data, so the key can be recovered later with
	// a different password.
	keyPEM []byte
	// isKey marks private-key entries whose key could not be recovered with
	// the container password at decode time (JKS allows a per-entry password
	// that differs from the store password).
	isKey bool
}

// IsKeyEntry reports whether the entry holds (or is known to hold) a private
// key, recovered or not.
func (e *Entry) IsKeyEntry() bool {
	return e.isKey || len(e.KeyDER) > 0 || len(e.keyPEM) > 0
}

// KeyContainer is the decoded view of a keystore or truststore: an ordered
// set of aliased entries plus the raw bytes, format tag, and unlock password
// they were decoded from. The raw bytes remain the source of truth; the
// decoded view is reconstructed on demand.
type KeyContainer struct {
	Format   StoreFormat
	Password string

	raw     []byte
	entries []*Entry
}

// NewKeyContainer creates an empty container with the given format and
// password, ready to receive entries.
func NewKeyContainer(format StoreFormat, password string) *KeyContainer {
	return &KeyContainer{Format: format, Password: password}
}

// Decode decodes raw container bytes in the given format using the unlock
// password. The error chain of a failed decode preserves every underlying
// cause (MAC check failures, per-key unwrap failures) for field-level
// reporting via CauseMessages.
func Decode(data []byte, format StoreFormat, password string) (*KeyContainer, error) {
	var (
		c   *KeyContainer
		err error
	)
	switch format {
	case FormatJKS:
		c, err = decodeJKS(data, password)
	case FormatPKCS12:
		c, err = decodePKCS12(data, password)
	case FormatPEM:
		c, err = decodePEM(data, password)
	default:
		return nil, fmt.Errorf("unknown store format %q", format)
	}
	if err != nil {
		return nil, err
	}
	c.raw = data
	return c, nil
}

// Encode serializes the container to its format using the given password.
// For JKS, the same password protects the store and every key entry. For
// PKCS#12 the container may hold at most one private-key entry.
func (c *KeyContainer) Encode(password string) ([]byte, error) {
	switch c.Format {
	case FormatJKS:
		return encodeJKS(c, password)
	case FormatPKCS12:
		return encodePKCS12(c, password)
	case FormatPEM:
		return encodePEM(c)
	default:
		return nil, fmt.Errorf("unknown store format %q", c.Format)
	}
}

// Aliases returns the entry aliases in container order.
func (c *KeyContainer) Aliases() []string {
	aliases := make([]string, len(c.entries))
	for i, e := range c.entries {
		aliases[i] = e.Alias
	}
	return aliases
}

// Entries returns the entries in container order. The slice is a copy; the
// entries are shared.
func (c *KeyContainer) Entries() []*Entry {
	return append([]*Entry(nil), c.entries...)
}

// Entry returns the entry with the given alias, or nil.
func (c *KeyContainer) Entry(alias string) *Entry {
	for _, e := range c.entries {
		if e.Alias == alias {
			return e
		}
	}
	return nil
}

// SetEntry inserts the entry, replacing any existing entry with the same
// alias while preserving its position.
func (c *KeyContainer) SetEntry(entry *Entry) {
	for i, e := range c.entries {
		if e.Alias == entry.Alias {
			c.entries[i] = entry
			return
		}
	}
	c.entries = append(c.entries, entry)
}

// DeleteEntry removes the entry with the given alias, reporting whether it
// was present.
func (c *KeyContainer) DeleteEntry(alias string) bool {
	for i, e := range c.entries {
		if e.Alias == alias {
			c.entries = append(c.entries[:i], c.entries[i+1:]...)
			return true
		}
	}
	return false
}

// Len returns the number of entries.
func (c *KeyContainer) Len() int {
	return len(c.entries)
}

// FindCertificate returns the alias of the first entry whose certificate is
// byte-identical (DER) to cert, and whether one was found.
func (c *KeyContainer) FindCertificate(cert *x509.Certificate) (string, bool) {
	if cert == nil {
		return "", false
	}
	for _, e := range c.entries {
		if e.Certificate != nil && bytes.Equal(e.Certificate.Raw, cert.Raw) {
			return e.Alias, true
		}
	}
	return "", false
}

// RecoverEntry recovers the private-key entry under alias using the given
// key password, returning a fully populated Entry (key, certificate, chain).
// It fails when the alias is absent, is not a private-key entry, or the
// password does not unlock the key. The returned error chain preserves the
// underlying codec causes.
func (c *KeyContainer) RecoverEntry(alias, password string) (*Entry, error) {
	e := c.Entry(alias)
	if e == nil || !e.IsKeyEntry() {
		return nil, fmt.Errorf("no private key entry under alias %q", alias)
	}
	switch c.Format {
	case FormatJKS:
		return recoverJKSEntry(c, alias, password)
	case FormatPKCS12:
		// PKCS#12 requires every key password to equal the store password.
		if password != c.Password {
			return nil, fmt.Errorf("recovering PKCS#12 key %q: key password must match the keystore password", alias)
		}
		return e, nil
	case FormatPEM:
		return recoverPEMEntry(c, e, password)
	default:
		return nil, fmt.Errorf("unknown store format %q", c.Format)
	}
}
