// Package storekit decodes, encodes, and merges keystore and truststore
// containers in JKS, PKCS#12, and PEM formats. It provides the alias-level
// container view used by the admin backend to catalog key material.
package storekit

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// StoreFormat identifies the on-disk encoding of a key-material container.
type StoreFormat string

const (
	// FormatJKS is the Java KeyStore format.
	FormatJKS StoreFormat = "jks"
	// FormatPKCS12 is the PKCS#12/PFX format.
	FormatPKCS12 StoreFormat = "pkcs12"
	// FormatPEM is a concatenation of PEM blocks (certificates and keys).
	FormatPEM StoreFormat = "pem"
)

// DefaultFormat is used when neither an explicit hint nor the filename
// extension resolves to a known format.
const DefaultFormat = FormatJKS

// ParseFormat resolves an explicit format hint. The empty string resolves to
// DefaultFormat.
func ParseFormat(s string) (StoreFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return DefaultFormat, nil
	case "jks":
		return FormatJKS, nil
	case "pkcs12", "p12", "pfx":
		return FormatPKCS12, nil
	case "pem":
		return FormatPEM, nil
	default:
		return "", fmt.Errorf("unknown store format %q (use jks, pkcs12, or pem)", s)
	}
}

// FormatFromFilename sniffs the container format from a filename extension,
// falling back to DefaultFormat when the extension is unknown.
func FormatFromFilename(name string) StoreFormat {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jks", ".ks":
		return FormatJKS
	case ".p12", ".pfx", ".pkcs12":
		return FormatPKCS12
	case ".pem", ".crt", ".cer", ".cert", ".key":
		return FormatPEM
	default:
		return DefaultFormat
	}
}

// aliasPattern is the charset safe for use as a URL path segment.
var aliasPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ValidAlias reports whether the alias is non-empty and contains only
// path-segment-safe characters (A-Z, a-z, 0-9, underscore, hyphen).
func ValidAlias(alias string) bool {
	return aliasPattern.MatchString(alias)
}

// AliasSyntaxMessage is the user-facing message for an alias that violates
// the path-segment-safe charset.
func AliasSyntaxMessage(alias string) string {
	return fmt.Sprintf("alias %q may only contain the characters A-Z, a-z, 0-9, '_' and '-'", alias)
}
