// Package snapshot saves the account database to a zstd-compressed tar
// archive and restores it. A ledger started from a snapshot resumes at the
// recorded slot with identical account state.
package snapshot

import (
	"archive/tar"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/fortiblox/x1-agentmarket/pkg/types"
)

// FormatVersion is written into every manifest.
const FormatVersion uint32 = 1

// Archive entry names, in the order they are written.
const (
	manifestEntry = "manifest.json"
	accountsEntry = "accounts.bin"
)

var (
	// ErrInvalidManifest is returned when the manifest is malformed.
	ErrInvalidManifest = errors.New("invalid manifest")
	// ErrInvalidArchive is returned when the archive is malformed.
	ErrInvalidArchive = errors.New("invalid archive")
	// ErrHashMismatch is returned when restored state does not match the manifest.
	ErrHashMismatch = errors.New("hash mismatch")
	// ErrUnsupportedVersion is returned for archives written by a newer format.
	ErrUnsupportedVersion = errors.New("unsupported snapshot version")
	// ErrDatabaseNotEmpty is returned when restoring over existing accounts.
	ErrDatabaseNotEmpty = errors.New("account database is not empty")
)

// Manifest describes the state captured by a snapshot.
type Manifest struct {
	Version       uint32     `json:"version"`
	Slot          types.Slot `json:"slot"`
	Blockhash     types.Hash `json:"-"`
	AccountsHash  types.Hash `json:"-"`
	AccountsCount uint64     `json:"accounts_count"`
	LamportsTotal uint64     `json:"lamports_total"`
	CreatedAt     time.Time  `json:"created_at"`
}

// MarshalJSON writes hashes in base58.
func (m *Manifest) MarshalJSON() ([]byte, error) {
	type Alias Manifest
	return json.Marshal(&struct {
		Blockhash    string `json:"blockhash"`
		AccountsHash string `json:"accounts_hash"`
		*Alias
	}{
		Blockhash:    m.Blockhash.String(),
		AccountsHash: m.AccountsHash.String(),
		Alias:        (*Alias)(m),
	})
}

// UnmarshalJSON reads hashes in base58.
func (m *Manifest) UnmarshalJSON(data []byte) error {
	type Alias Manifest
	aux := &struct {
		Blockhash    string `json:"blockhash"`
		AccountsHash string `json:"accounts_hash"`
		*Alias
	}{
		Alias: (*Alias)(m),
	}
	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}
	var err error
	if aux.Blockhash != "" {
		if m.Blockhash, err = types.HashFromBase58(aux.Blockhash); err != nil {
			return fmt.Errorf("invalid blockhash: %w", err)
		}
	}
	if aux.AccountsHash != "" {
		if m.AccountsHash, err = types.HashFromBase58(aux.AccountsHash); err != nil {
			return fmt.Errorf("invalid accounts hash: %w", err)
		}
	}
	return nil
}

// archiveReader walks the entries of a snapshot archive.
type archiveReader struct {
	file    *os.File
	decoder *zstd.Decoder
	tar     *tar.Reader
}

func openArchive(path string) (*archiveReader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot: %w", err)
	}
	decoder, err := zstd.NewReader(file)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	return &archiveReader{file: file, decoder: decoder, tar: tar.NewReader(decoder)}, nil
}

// expect advances to the next entry and checks its name.
func (a *archiveReader) expect(name string) (*tar.Header, error) {
	header, err := a.tar.Next()
	if err == io.EOF {
		return nil, fmt.Errorf("%w: missing %s", ErrInvalidArchive, name)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArchive, err)
	}
	if header.Name != name {
		return nil, fmt.Errorf("%w: expected %s, found %s", ErrInvalidArchive, name, header.Name)
	}
	return header, nil
}

func (a *archiveReader) manifest() (*Manifest, error) {
	if _, err := a.expect(manifestEntry); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(a.tar)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	m := &Manifest{}
	if err := json.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}
	if m.Version == 0 || m.Version > FormatVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, m.Version)
	}
	return m, nil
}

func (a *archiveReader) Close() error {
	a.decoder.Close()
	return a.file.Close()
}

// ReadManifest returns the manifest of the snapshot at path without reading
// any accounts.
func ReadManifest(path string) (*Manifest, error) {
	a, err := openArchive(path)
	if err != nil {
		return nil, err
	}
	defer a.Close()
	return a.manifest()
}

// Exists reports whether a regular file is present at path.
func Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// writeAtomic writes through fn into a temporary file next to path and
// renames it into place once fn and the sync succeed.
func writeAtomic(path string, fn func(w io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".snapshot-*")
	if err != nil {
		return fmt.Errorf("failed to create snapshot file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := fn(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close snapshot: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}
