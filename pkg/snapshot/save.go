package snapshot

import (
	"archive/tar"
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog"

	"github.com/fortiblox/x1-agentmarket/pkg/accounts"
	"github.com/fortiblox/x1-agentmarket/pkg/types"
)

// State is the ledger position recorded alongside the accounts.
type State struct {
	Slot      types.Slot
	Blockhash types.Hash
}

// Save writes every account in db to a snapshot at path, replacing any
// existing file only once the new one is complete. The caller must keep db
// quiescent for the duration.
func Save(path string, db accounts.AccountsDB, state State, log zerolog.Logger) (*Manifest, error) {
	start := time.Now()

	var (
		refs   []types.AccountRef
		body   bytes.Buffer
		total  uint64
		header [36]byte
	)
	err := db.ForEachAccount(func(pubkey types.Pubkey, account *types.Account) error {
		data, err := accounts.SerializeAccount(account)
		if err != nil {
			return fmt.Errorf("failed to serialize %s: %w", pubkey, err)
		}
		copy(header[:32], pubkey[:])
		binary.LittleEndian.PutUint32(header[32:], uint32(len(data)))
		body.Write(header[:])
		body.Write(data)

		refs = append(refs, types.AccountRef{Pubkey: pubkey, Account: account.Clone()})
		total += uint64(account.Lamports)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read accounts: %w", err)
	}

	manifest := &Manifest{
		Version:       FormatVersion,
		Slot:          state.Slot,
		Blockhash:     state.Blockhash,
		AccountsHash:  accounts.ComputeAccountsHash(refs),
		AccountsCount: uint64(len(refs)),
		LamportsTotal: total,
		CreatedAt:     time.Now().UTC().Truncate(time.Second),
	}
	manifestJSON, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode manifest: %w", err)
	}

	err = writeAtomic(path, func(w io.Writer) error {
		enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return fmt.Errorf("failed to create zstd encoder: %w", err)
		}
		tw := tar.NewWriter(enc)
		if err := writeEntry(tw, manifestEntry, manifestJSON, manifest.CreatedAt); err != nil {
			enc.Close()
			return err
		}
		if err := writeEntry(tw, accountsEntry, body.Bytes(), manifest.CreatedAt); err != nil {
			enc.Close()
			return err
		}
		if err := tw.Close(); err != nil {
			enc.Close()
			return fmt.Errorf("failed to finish archive: %w", err)
		}
		return enc.Close()
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("path", path).
		Uint64("slot", uint64(manifest.Slot)).
		Uint64("accounts", manifest.AccountsCount).
		Str("accounts_hash", manifest.AccountsHash.String()).
		Dur("elapsed", time.Since(start)).
		Msg("snapshot saved")
	return manifest, nil
}

func writeEntry(tw *tar.Writer, name string, data []byte, modTime time.Time) error {
	err := tw.WriteHeader(&tar.Header{
		Name:     name,
		Mode:     0o644,
		Size:     int64(len(data)),
		ModTime:  modTime,
		Typeflag: tar.TypeReg,
	})
	if err != nil {
		return fmt.Errorf("failed to write %s header: %w", name, err)
	}
	if _, err := tw.Write(data); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}
