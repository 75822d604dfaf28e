// Package truststore implements bulk and single-certificate merges into the
// application-wide trust store. A whole-store upload is classified alias by
// alias into added, duplicate-alias, and duplicate-certificate buckets; the
// merge is all-or-nothing on alias validation and idempotent on re-run.
package truststore

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	validation "github.com/jellydator/validation"

	"github.com/sensiblebit/storekit"
	"github.com/sensiblebit/storekit/internal"
	"github.com/sensiblebit/storekit/internal/storedb"
)

const (
	fieldFile   = "file"
	fieldFormat = "format"
	fieldAlias  = "alias"
)

// ErrAliasNotFound is returned when a lookup or delete names an alias that
// is not in the application trust store.
var ErrAliasNotFound = errors.New("unknown alias")

// errAbort signals accumulated validation errors; the store must not be
// written.
var errAbort = errors.New("validation failed")

// Repository is the persistence contract for the singleton truststore row.
// UpdateTruststore must run the closure under mutual exclusion for the full
// read-modify-write sequence.
type Repository interface {
	Truststore() (*storedb.StoreRecord, error)
	UpdateTruststore(fn func(rec *storedb.StoreRecord) error) error
}

// Service orchestrates trust store merges.
type Service struct {
	repo            Repository
	defaultPassword string
}

// NewService creates a truststore service. defaultPassword protects the
// singleton store on first write.
func NewService(repo Repository, defaultPassword string) *Service {
	return &Service{repo: repo, defaultPassword: defaultPassword}
}

// MergeReport classifies every alias of a bulk merge. Re-running an
// identical merge yields an empty Added list and every alias reclassified
// as a duplicate alias.
type MergeReport struct {
	Added                       []string `json:"added"`
	DuplicateAliases            []string `json:"duplicateAliases"`
	DuplicateCertificateAliases []string `json:"duplicateCertificateAliases"`
}

// Upload merges an entire uploaded trust store into the singleton store.
// Every alias in the upload is validated before the target is touched: a
// single invalid alias aborts the whole merge with one summary error plus
// one error per offender. Valid uploads are classified in upload order:
// aliases already present in the target are skipped as duplicate aliases
// (certificate contents are irrelevant to that bucket); new aliases whose
// certificate already exists under a different target alias are skipped as
// duplicate certificates; the rest are inserted.
func (s *Service) Upload(data []byte, filename, formatHint, password string) (*MergeReport, error) {
	format, errs := resolveFormat(formatHint, filename)
	if len(errs) > 0 {
		return nil, errs
	}
	upload, err := storekit.Decode(data, format, password)
	if err != nil {
		errs := validation.Errors{}
		internal.AddFieldError(errs, fieldFile, "validation_store_decode", storekit.CauseSummary(err))
		return nil, errs
	}

	errs = validation.Errors{}
	offending := 0
	for _, alias := range upload.Aliases() {
		if !storekit.ValidAlias(alias) {
			internal.AddFieldError(errs, "aliases."+alias, "validation_alias_syntax",
				storekit.AliasSyntaxMessage(alias))
			offending++
		}
	}
	if offending > 0 {
		internal.AddFieldError(errs, fieldFile, "validation_alias_syntax",
			fmt.Sprintf("%d aliases in the uploaded trust store are not usable as entry names; nothing was merged", offending))
		return nil, errs
	}

	report := &MergeReport{
		Added:                       []string{},
		DuplicateAliases:            []string{},
		DuplicateCertificateAliases: []string{},
	}
	err = s.repo.UpdateTruststore(func(rec *storedb.StoreRecord) error {
		initRecord(rec, s.defaultPassword)
		target, derr := decodeRecord(rec)
		if derr != nil {
			return derr
		}

		for _, e := range upload.Entries() {
			switch {
			case e.Certificate == nil:
				// A locked key entry without an accessible certificate
				// contributes nothing to a trust store.
				continue
			case target.Entry(e.Alias) != nil:
				report.DuplicateAliases = append(report.DuplicateAliases, e.Alias)
			default:
				if _, found := target.FindCertificate(e.Certificate); found {
					report.DuplicateCertificateAliases = append(report.DuplicateCertificateAliases, e.Alias)
					continue
				}
				target.SetEntry(&storekit.Entry{Alias: e.Alias, Certificate: e.Certificate})
				report.Added = append(report.Added, e.Alias)
			}
		}

		encoded, eerr := target.Encode(rec.Password)
		if eerr != nil {
			return fmt.Errorf("encoding application trust store: %w", eerr)
		}
		rec.Data = encoded
		return nil
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

// AddCertificate inserts a single certificate under an explicit alias. The
// certificate may be DER, PEM, or a PKCS#7 bundle. Re-adding the identical
// certificate under its existing alias is a no-op success.
func (s *Service) AddCertificate(data []byte, alias string) (string, error) {
	errs := validation.Errors{}
	trimmed := strings.TrimSpace(alias)
	if trimmed == "" {
		internal.AddFieldError(errs, fieldAlias, "validation_required", "an alias must be provided")
	} else if !storekit.ValidAlias(trimmed) {
		internal.AddFieldError(errs, fieldAlias, "validation_alias_syntax", storekit.AliasSyntaxMessage(trimmed))
	}

	cert, perr := storekit.ParseCertificateAny(data)
	if perr != nil {
		internal.AddFieldError(errs, fieldFile, "validation_certificate_decode", storekit.CauseSummary(perr))
	}
	if len(errs) > 0 {
		return "", errs
	}

	err := s.repo.UpdateTruststore(func(rec *storedb.StoreRecord) error {
		initRecord(rec, s.defaultPassword)
		target, derr := decodeRecord(rec)
		if derr != nil {
			return derr
		}

		if existing := target.Entry(trimmed); existing != nil {
			if existing.Certificate != nil && bytes.Equal(existing.Certificate.Raw, cert.Raw) {
				return nil // identical entry already present
			}
			internal.AddFieldError(errs, fieldAlias, "validation_duplicate_alias",
				fmt.Sprintf("the alias %q is already taken by a different certificate", trimmed))
			return errAbort
		}
		if existing, found := target.FindCertificate(cert); found {
			internal.AddFieldError(errs, fieldAlias, "validation_duplicate_certificate",
				fmt.Sprintf("the certificate is already present under the alias %q", existing))
			return errAbort
		}

		target.SetEntry(&storekit.Entry{Alias: trimmed, Certificate: cert})
		encoded, eerr := target.Encode(rec.Password)
		if eerr != nil {
			return fmt.Errorf("encoding application trust store: %w", eerr)
		}
		rec.Data = encoded
		return nil
	})
	if err != nil {
		if errors.Is(err, errAbort) {
			return "", errs
		}
		return "", err
	}
	return trimmed, nil
}

// Aliases returns the trust store aliases in store order.
func (s *Service) Aliases() ([]string, error) {
	target, err := s.currentContainer()
	if err != nil {
		return nil, err
	}
	aliases := target.Aliases()
	if aliases == nil {
		aliases = []string{}
	}
	return aliases, nil
}

// Certificate returns the display descriptor of the certificate under the
// given alias.
func (s *Service) Certificate(alias string) (*storekit.CertificateInfo, error) {
	target, err := s.currentContainer()
	if err != nil {
		return nil, err
	}
	e := target.Entry(alias)
	if e == nil || e.Certificate == nil {
		return nil, ErrAliasNotFound
	}
	info := storekit.NewCertificateInfo(e.Certificate)
	return &info, nil
}

// Delete removes one certificate from the trust store. Unknown aliases
// yield ErrAliasNotFound and leave the store untouched.
func (s *Service) Delete(alias string) error {
	return s.repo.UpdateTruststore(func(rec *storedb.StoreRecord) error {
		initRecord(rec, s.defaultPassword)
		target, derr := decodeRecord(rec)
		if derr != nil {
			return derr
		}
		if !target.DeleteEntry(alias) {
			return ErrAliasNotFound
		}
		encoded, eerr := target.Encode(rec.Password)
		if eerr != nil {
			return fmt.Errorf("encoding application trust store: %w", eerr)
		}
		rec.Data = encoded
		return nil
	})
}

func (s *Service) currentContainer() (*storekit.KeyContainer, error) {
	rec, err := s.repo.Truststore()
	if err != nil {
		return nil, err
	}
	if !rec.Initialized() {
		return storekit.NewKeyContainer(storekit.DefaultFormat, s.defaultPassword), nil
	}
	return decodeRecord(rec)
}

func resolveFormat(formatHint, filename string) (storekit.StoreFormat, validation.Errors) {
	if strings.TrimSpace(formatHint) == "" {
		return storekit.FormatFromFilename(filename), nil
	}
	format, err := storekit.ParseFormat(formatHint)
	if err != nil {
		errs := validation.Errors{}
		internal.AddFieldError(errs, fieldFormat, "validation_store_format", err.Error())
		return "", errs
	}
	return format, nil
}

func initRecord(rec *storedb.StoreRecord, defaultPassword string) {
	if !rec.Initialized() {
		rec.Password = defaultPassword
		rec.Format = string(storekit.DefaultFormat)
	}
}

func decodeRecord(rec *storedb.StoreRecord) (*storekit.KeyContainer, error) {
	if len(rec.Data) == 0 {
		return storekit.NewKeyContainer(storekit.StoreFormat(rec.Format), rec.Password), nil
	}
	c, err := storekit.Decode(rec.Data, storekit.StoreFormat(rec.Format), rec.Password)
	if err != nil {
		return nil, fmt.Errorf("decoding application store: %w", err)
	}
	return c, nil
}
