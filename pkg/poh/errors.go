package poh

import "errors"

var (
	// ErrHashMismatch means replaying an entry from the previous hash did not
	// reproduce the hash the entry claims.
	ErrHashMismatch = errors.New("poh: entry does not extend the hash chain")

	// ErrInvalidNumHashes is returned for entries that claim zero hashes.
	ErrInvalidNumHashes = errors.New("poh: entry must advance the chain by at least one hash")

	ErrInvalidEntry = errors.New("poh: nil entry")
)
