// Package keystore implements the two-phase upload/select workflow that
// merges a single private-key entry into the application-wide keystore.
// Phase 1 decodes an uploaded container and parks it in the upload cache;
// phase 2 validates one selected alias, recovers its key, detects alias and
// certificate collisions, and folds the entry into the singleton store.
package keystore

import (
	"errors"
	"fmt"
	"strings"

	validation "github.com/jellydator/validation"

	"github.com/sensiblebit/storekit"
	"github.com/sensiblebit/storekit/internal"
	"github.com/sensiblebit/storekit/internal/storedb"
	"github.com/sensiblebit/storekit/internal/uploads"
)

// Field names used for validation error placement.
const (
	fieldFile     = "file"
	fieldFormat   = "format"
	fieldAliases  = "aliases"
	fieldOverride = "aliasOverride"
	fieldPassword = "privateKeyPassword"
)

// ErrEntryNotFound is returned when a delete names an alias that is not in
// the application keystore.
var ErrEntryNotFound = errors.New("unknown alias")

// errAbort signals that accumulated validation errors prevent the merge; the
// store must not be written.
var errAbort = errors.New("validation failed")

// Repository is the persistence contract for the singleton keystore row.
// UpdateKeystore must run the closure under mutual exclusion for the full
// read-modify-write sequence.
type Repository interface {
	Keystore() (*storedb.KeystoreRecord, error)
	UpdateKeystore(fn func(rec *storedb.KeystoreRecord) error) error
}

// Service orchestrates keystore uploads and merges.
type Service struct {
	repo            Repository
	cache           *uploads.Cache
	defaultPassword string
}

// NewService creates a keystore service. defaultPassword protects the
// singleton store on first write.
func NewService(repo Repository, cache *uploads.Cache, defaultPassword string) *Service {
	return &Service{repo: repo, cache: cache, defaultPassword: defaultPassword}
}

// UploadResult is the phase-1 response: the opaque state token and the
// aliases found in the uploaded container.
type UploadResult struct {
	StateID string   `json:"stateId"`
	Aliases []string `json:"aliases"`
}

// Upload decodes an uploaded keystore and caches it for alias selection.
// The format comes from the explicit hint, falling back to the filename
// extension. Decode failures surface the full causal chain on the file
// field.
func (s *Service) Upload(data []byte, filename, formatHint, password string) (*UploadResult, error) {
	format, errs := resolveFormat(formatHint, filename)
	if len(errs) > 0 {
		return nil, errs
	}
	container, err := storekit.Decode(data, format, password)
	if err != nil {
		errs := validation.Errors{}
		internal.AddFieldError(errs, fieldFile, "validation_store_decode", storekit.CauseSummary(err))
		return nil, errs
	}
	return &UploadResult{StateID: s.cache.Put(container), Aliases: container.Aliases()}, nil
}

// SelectAliasInput is the phase-2 request. Aliases must contain exactly one
// element; AliasOverride renames the entry on merge; PrivateKeyPassword
// overrides the password fallback chain.
type SelectAliasInput struct {
	StateID            string   `json:"stateId"`
	Aliases            []string `json:"aliases"`
	AliasOverride      string   `json:"aliasOverride"`
	PrivateKeyPassword string   `json:"privateKeyPassword"`
}

// MergeResult describes the merged entry.
type MergeResult struct {
	Alias       string                   `json:"alias"`
	Certificate storekit.CertificateInfo `json:"certificate"`
}

// SelectAlias validates the selection against the cached upload, recovers
// the private key, checks alias and certificate collisions against the
// singleton keystore, and merges the entry. Validation failures are
// accumulated and reported together; only an unresolvable token or a wrong
// selection cardinality aborts immediately, since the remaining checks are
// meaningless without a valid single alias.
func (s *Service) SelectAlias(in SelectAliasInput) (*MergeResult, error) {
	container, err := s.cache.Get(in.StateID)
	if err != nil {
		return nil, err
	}

	if len(in.Aliases) != 1 {
		return nil, validation.Errors{fieldAliases: validation.NewError(
			"validation_alias_cardinality",
			fmt.Sprintf("exactly one alias must be selected, got %d", len(in.Aliases)),
		)}
	}
	selected := in.Aliases[0]

	errs := validation.Errors{}
	if container.Entry(selected) == nil {
		internal.AddFieldError(errs, fieldAliases, "validation_unknown_alias",
			fmt.Sprintf("the uploaded keystore has no entry %q", selected))
	}

	// Password fallback chain: explicit non-blank password, then the
	// uploaded container's own password. Blankness is judged on a trimmed
	// copy, but the password itself is used verbatim; spaces are legal.
	keyPassword := in.PrivateKeyPassword
	if strings.TrimSpace(keyPassword) == "" {
		keyPassword = container.Password
	}
	// Attempted even when the alias is unknown, so the operator sees the
	// key-access failure alongside the unknown-alias error.
	entry, rerr := container.RecoverEntry(selected, keyPassword)
	if rerr != nil {
		const short = "could not access the private key"
		internal.AddFieldError(errs, fieldAliases, "validation_key_access", short)
		internal.AddFieldError(errs, fieldPassword, "validation_key_access",
			short+": "+storekit.CauseSummary(rerr))
	} else if entry.Certificate == nil {
		// A bare key (a PEM file with no certificate blocks, or a JKS
		// entry with an empty chain) cannot be cataloged or re-encoded.
		internal.AddFieldError(errs, fieldAliases, "validation_missing_certificate",
			fmt.Sprintf("the entry %q has no certificate to merge", selected))
	}

	effective := strings.TrimSpace(in.AliasOverride)
	overrideUsed := effective != ""
	if !overrideUsed {
		effective = selected
	}
	if !storekit.ValidAlias(effective) {
		msg := storekit.AliasSyntaxMessage(effective)
		internal.AddFieldError(errs, fieldAliases, "validation_alias_syntax", msg)
		if overrideUsed {
			internal.AddFieldError(errs, fieldOverride, "validation_alias_syntax", msg)
		}
	}

	var result *MergeResult
	uerr := s.repo.UpdateKeystore(func(rec *storedb.KeystoreRecord) error {
		initRecord(&rec.StoreRecord, s.defaultPassword)
		target, derr := decodeRecord(&rec.StoreRecord)
		if derr != nil {
			return derr
		}

		if rec.HasAlias(effective) {
			field := fieldAliases
			if overrideUsed {
				field = fieldOverride
			}
			internal.AddFieldError(errs, field, "validation_duplicate_alias",
				fmt.Sprintf("the alias %q is already used in the application keystore", effective))
		}
		// The same key under two aliases is never useful, so this holds
		// even when a fresh override name was chosen.
		if entry != nil && entry.Certificate != nil {
			if existing, found := target.FindCertificate(entry.Certificate); found {
				internal.AddFieldError(errs, fieldAliases, "validation_duplicate_certificate",
					fmt.Sprintf("the selected key is already present under the alias %q", existing))
			}
		}
		if len(errs) > 0 {
			return errAbort
		}

		merged := *entry
		merged.Alias = effective
		target.SetEntry(&merged)
		// The singleton store keeps its own password; the upload's password
		// never leaks into the persisted bytes.
		data, eerr := target.Encode(rec.Password)
		if eerr != nil {
			return fmt.Errorf("encoding application keystore: %w", eerr)
		}
		rec.Data = data
		rec.Entries = append(rec.Entries, storedb.KeyEntry{Alias: effective, Password: rec.Password})
		result = &MergeResult{Alias: effective, Certificate: storekit.NewCertificateInfo(merged.Certificate)}
		return nil
	})
	if uerr != nil {
		if errors.Is(uerr, errAbort) {
			return nil, errs
		}
		return nil, uerr
	}
	return result, nil
}

// EntryInfo is one cataloged keystore entry with its certificate descriptor.
type EntryInfo struct {
	Alias       string                   `json:"alias"`
	Certificate storekit.CertificateInfo `json:"certificate"`
}

// List returns the cataloged entries in catalog order with freshly computed
// certificate descriptors.
func (s *Service) List() ([]EntryInfo, error) {
	rec, err := s.repo.Keystore()
	if err != nil {
		return nil, err
	}
	if !rec.Initialized() {
		return []EntryInfo{}, nil
	}
	container, err := decodeRecord(&rec.StoreRecord)
	if err != nil {
		return nil, err
	}

	out := make([]EntryInfo, 0, len(rec.Entries))
	for _, ke := range rec.Entries {
		e := container.Entry(ke.Alias)
		if e == nil || e.Certificate == nil {
			// Catalog and bytes are mutated in lockstep; divergence means
			// the row was corrupted outside this service.
			return nil, fmt.Errorf("application keystore out of sync: catalog entry %q missing from store bytes", ke.Alias)
		}
		out = append(out, EntryInfo{Alias: ke.Alias, Certificate: storekit.NewCertificateInfo(e.Certificate)})
	}
	return out, nil
}

// Delete removes one entry from the singleton keystore, keeping the bytes
// and the catalog in lockstep. Unknown aliases yield ErrEntryNotFound and
// leave the store untouched.
func (s *Service) Delete(alias string) error {
	return s.repo.UpdateKeystore(func(rec *storedb.KeystoreRecord) error {
		if !rec.HasAlias(alias) {
			return ErrEntryNotFound
		}
		container, err := decodeRecord(&rec.StoreRecord)
		if err != nil {
			return err
		}
		container.DeleteEntry(alias)
		data, err := container.Encode(rec.Password)
		if err != nil {
			return fmt.Errorf("encoding application keystore: %w", err)
		}
		rec.Data = data
		entries := rec.Entries[:0]
		for _, e := range rec.Entries {
			if e.Alias != alias {
				entries = append(entries, e)
			}
		}
		rec.Entries = entries
		return nil
	})
}

// resolveFormat applies the hint-then-extension resolution chain.
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

// initRecord seeds a never-written store record with its defaults.
func initRecord(rec *storedb.StoreRecord, defaultPassword string) {
	if !rec.Initialized() {
		rec.Password = defaultPassword
		rec.Format = string(storekit.DefaultFormat)
	}
}

// decodeRecord rehydrates the persisted store bytes into a container. A
// record that was never written decodes to an empty container.
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
