package snapshot

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/fortiblox/x1-agentmarket/pkg/accounts"
	"github.com/fortiblox/x1-agentmarket/pkg/types"
)

// commitBatchSize bounds the accounts written per database transaction.
const commitBatchSize = 1000

// maxEntrySize bounds one serialized account in the archive.
const maxEntrySize = 16 << 20

// Load restores the snapshot at path into db, which must be empty. The
// archive is fully read and checked against its manifest before anything is
// written.
func Load(path string, db accounts.AccountsDB, log zerolog.Logger) (*Manifest, error) {
	start := time.Now()
	if n := db.GetAccountsCount(); n != 0 {
		return nil, fmt.Errorf("%w: %d accounts", ErrDatabaseNotEmpty, n)
	}

	a, err := openArchive(path)
	if err != nil {
		return nil, err
	}
	defer a.Close()

	manifest, err := a.manifest()
	if err != nil {
		return nil, err
	}
	if _, err := a.expect(accountsEntry); err != nil {
		return nil, err
	}
	refs, err := readAccounts(bufio.NewReader(a.tar))
	if err != nil {
		return nil, err
	}
	if err := verify(manifest, refs); err != nil {
		return nil, err
	}

	for i := 0; i < len(refs); i += commitBatchSize {
		end := i + commitBatchSize
		if end > len(refs) {
			end = len(refs)
		}
		if err := db.Commit(refs[i:end]); err != nil {
			return nil, fmt.Errorf("failed to restore accounts: %w", err)
		}
	}

	log.Info().
		Str("path", path).
		Uint64("slot", uint64(manifest.Slot)).
		Uint64("accounts", manifest.AccountsCount).
		Dur("elapsed", time.Since(start)).
		Msg("snapshot loaded")
	return manifest, nil
}

// Verify reads the snapshot at path and checks it against its manifest
// without touching any database.
func Verify(path string) (*Manifest, error) {
	a, err := openArchive(path)
	if err != nil {
		return nil, err
	}
	defer a.Close()

	manifest, err := a.manifest()
	if err != nil {
		return nil, err
	}
	if _, err := a.expect(accountsEntry); err != nil {
		return nil, err
	}
	refs, err := readAccounts(bufio.NewReader(a.tar))
	if err != nil {
		return nil, err
	}
	return manifest, verify(manifest, refs)
}

func readAccounts(r io.Reader) ([]types.AccountRef, error) {
	var (
		refs   []types.AccountRef
		header [36]byte
		seen   = make(map[types.Pubkey]struct{})
	)
	for {
		_, err := io.ReadFull(r, header[:])
		if errors.Is(err, io.EOF) {
			return refs, nil
		}
		if err != nil {
			return nil, fmt.Errorf("%w: truncated account header", ErrInvalidArchive)
		}

		var pubkey types.Pubkey
		copy(pubkey[:], header[:32])
		size := binary.LittleEndian.Uint32(header[32:])
		if size > maxEntrySize {
			return nil, fmt.Errorf("%w: account %s is %d bytes", ErrInvalidArchive, pubkey, size)
		}
		if _, dup := seen[pubkey]; dup {
			return nil, fmt.Errorf("%w: duplicate account %s", ErrInvalidArchive, pubkey)
		}
		seen[pubkey] = struct{}{}

		data := make([]byte, size)
		if _, err := io.ReadFull(r, data); err != nil {
			return nil, fmt.Errorf("%w: truncated account %s", ErrInvalidArchive, pubkey)
		}
		account, err := accounts.DeserializeAccount(data)
		if err != nil {
			return nil, fmt.Errorf("%w: account %s: %v", ErrInvalidArchive, pubkey, err)
		}
		refs = append(refs, types.AccountRef{Pubkey: pubkey, Account: account})
	}
}

func verify(m *Manifest, refs []types.AccountRef) error {
	if uint64(len(refs)) != m.AccountsCount {
		return fmt.Errorf("%w: manifest lists %d accounts, archive holds %d", ErrHashMismatch, m.AccountsCount, len(refs))
	}
	var total uint64
	for _, ref := range refs {
		total += uint64(ref.Account.Lamports)
	}
	if total != m.LamportsTotal {
		return fmt.Errorf("%w: manifest lists %d lamports, archive holds %d", ErrHashMismatch, m.LamportsTotal, total)
	}
	if got := accounts.ComputeAccountsHash(refs); got != m.AccountsHash {
		return fmt.Errorf("%w: accounts hash %s, manifest %s", ErrHashMismatch, got, m.AccountsHash)
	}
	return nil
}
