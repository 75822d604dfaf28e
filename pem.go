package storekit

import (
	"crypto"
	"crypto/ed25519"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/ssh"
)

// decodePEM decodes a concatenation of PEM blocks. Certificates become
// entries aliased by 1-based position. A single private-key block is paired
// with the first certificate into one key entry; extra certificates become
// the chain. Encrypted key blocks are tried with the container password and
// kept locked when it does not fit.
func decodePEM(data []byte, password string) (*KeyContainer, error) {
	if !isPEM(data) {
		return nil, errors.New("decoding PEM store: no PEM blocks found")
	}

	var certs []*x509.Certificate
	var keyBlocks [][]byte
	rest := data
	for len(rest) > 0 {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		switch {
		case block.Type == "CERTIFICATE":
			cert, err := x509.ParseCertificate(block.Bytes)
			if err != nil {
				return nil, fmt.Errorf("parsing PEM certificate: %w", err)
			}
			certs = append(certs, cert)
		case strings.Contains(block.Type, "PRIVATE KEY"):
			keyBlocks = append(keyBlocks, pem.EncodeToMemory(block))
		}
	}
	if len(certs) == 0 && len(keyBlocks) == 0 {
		return nil, errors.New("decoding PEM store: no certificates or private keys found")
	}
	if len(keyBlocks) > 1 {
		return nil, fmt.Errorf("decoding PEM store: %d private keys found, at most one is supported", len(keyBlocks))
	}

	c := NewKeyContainer(FormatPEM, password)
	if len(keyBlocks) == 1 {
		entry := &Entry{Alias: "1", keyPEM: keyBlocks[0], isKey: true}
		if len(certs) > 0 {
			entry.Certificate = certs[0]
			entry.Chain = certs[1:]
		}
		if keyDER, err := parsePEMKeyDER(keyBlocks[0], password); err == nil {
			entry.KeyDER = keyDER
		}
		c.entries = append(c.entries, entry)
		return c, nil
	}
	for i, cert := range certs {
		c.entries = append(c.entries, &Entry{Alias: strconv.Itoa(i + 1), Certificate: cert})
	}
	return c, nil
}

// recoverPEMEntry unlocks a PEM key entry with the given password.
func recoverPEMEntry(c *KeyContainer, e *Entry, password string) (*Entry, error) {
	if e.KeyDER != nil && (password == c.Password || e.keyPEM == nil) {
		return e, nil
	}
	keyDER, err := parsePEMKeyDER(e.keyPEM, password)
	if err != nil {
		return nil, fmt.Errorf("recovering key %q: %w", e.Alias, err)
	}
	recovered := *e
	recovered.KeyDER = keyDER
	return &recovered, nil
}

// encodePEM serializes the container as concatenated PEM blocks. Private
// keys are written unencrypted in PKCS#8 form; PEM output is meant for
// export, not for password-protected storage.
func encodePEM(c *KeyContainer) ([]byte, error) {
	var out []byte
	for _, e := range c.entries {
		if e.IsKeyEntry() {
			if e.KeyDER == nil {
				return nil, fmt.Errorf("encoding PEM store: key for alias %q is locked", e.Alias)
			}
			out = append(out, pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: e.KeyDER})...)
		}
		if e.Certificate != nil {
			out = append(out, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: e.Certificate.Raw})...)
		}
		for _, cert := range e.Chain {
			out = append(out, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw})...)
		}
	}
	return out, nil
}

// parsePEMKeyDER parses a single PEM private-key block into PKCS#8 DER,
// decrypting with the given password when the block is encrypted.
func parsePEMKeyDER(keyPEM []byte, password string) ([]byte, error) {
	key, err := parsePEMPrivateKey(keyPEM, password)
	if err != nil {
		return nil, err
	}
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("marshaling key to PKCS#8: %w", err)
	}
	return der, nil
}

// parsePEMPrivateKey parses a PEM-encoded private key (PKCS#1, PKCS#8, EC,
// or OpenSSH). For "PRIVATE KEY" blocks it tries PKCS#8 first, then falls
// back to PKCS#1 and EC parsers to handle mislabeled keys. Encrypted blocks
// (legacy RFC 1423 and OpenSSH) are decrypted with the given password.
func parsePEMPrivateKey(pemData []byte, password string) (crypto.PrivateKey, error) {
	block, _ := pem.Decode(pemData)
	if block == nil {
		return nil, errors.New("no PEM block found in private key data")
	}

	if block.Type == "OPENSSH PRIVATE KEY" {
		// OpenSSH uses a proprietary encoding; delegate to x/crypto/ssh.
		key, err := ssh.ParseRawPrivateKey(pemData)
		if err == nil {
			return normalizeKey(key), nil
		}
		if password != "" {
			key, perr := ssh.ParseRawPrivateKeyWithPassphrase(pemData, []byte(password))
			if perr == nil {
				return normalizeKey(key), nil
			}
			return nil, fmt.Errorf("parsing OpenSSH private key: %w", perr)
		}
		return nil, fmt.Errorf("parsing OpenSSH private key: %w", err)
	}

	//nolint:staticcheck // x509.IsEncryptedPEMBlock is deprecated but needed for legacy encrypted PEM support
	if x509.IsEncryptedPEMBlock(block) {
		//nolint:staticcheck // x509.DecryptPEMBlock is deprecated but needed for legacy encrypted PEM support
		decrypted, err := x509.DecryptPEMBlock(block, []byte(password))
		if err != nil {
			return nil, fmt.Errorf("decrypting private key: %w", err)
		}
		block = &pem.Block{Type: block.Type, Bytes: decrypted}
	}

	switch block.Type {
	case "RSA PRIVATE KEY":
		return x509.ParsePKCS1PrivateKey(block.Bytes)
	case "EC PRIVATE KEY":
		return x509.ParseECPrivateKey(block.Bytes)
	case "PRIVATE KEY", "ENCRYPTED PRIVATE KEY":
		if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
			return key, nil
		}
		// Fall back: some tools label PKCS#1 keys as "PRIVATE KEY".
		if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
			return key, nil
		}
		if key, err := x509.ParseECPrivateKey(block.Bytes); err == nil {
			return key, nil
		}
		return nil, errors.New("parsing PRIVATE KEY block with any known format")
	default:
		return nil, fmt.Errorf("unsupported PEM block type %q", block.Type)
	}
}

// normalizeKey dereferences *ed25519.PrivateKey (returned by
// ssh.ParseRawPrivateKey) to the value type so downstream type switches only
// need one case.
func normalizeKey(key crypto.PrivateKey) crypto.PrivateKey {
	if ptr, ok := key.(*ed25519.PrivateKey); ok {
		return *ptr
	}
	return key
}

// isPEM reports whether the data appears to contain PEM-encoded content.
func isPEM(data []byte) bool {
	return strings.Contains(string(data), "-----BEGIN")
}
