package types

import "encoding/binary"

// Account is the state stored at one address. Only the owning program may
// change Data or debit Lamports.
type Account struct {
	Lamports   Lamports
	Data       []byte
	Owner      Pubkey
	Executable bool

	// RentEpoch is carried for wire compatibility; rent is never collected.
	RentEpoch Epoch
}

// NewAccount creates a data-less account.
func NewAccount(lamports Lamports, owner Pubkey) *Account {
	return &Account{Lamports: lamports, Owner: owner}
}

// NewAccountWithData creates an account holding data. The slice is not copied.
func NewAccountWithData(lamports Lamports, data []byte, owner Pubkey) *Account {
	return &Account{Lamports: lamports, Data: data, Owner: owner}
}

// Clone creates a deep copy of the account.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	clone := &Account{
		Lamports:   a.Lamports,
		Owner:      a.Owner,
		Executable: a.Executable,
		RentEpoch:  a.RentEpoch,
	}
	if a.Data != nil {
		clone.Data = make([]byte, len(a.Data))
		copy(clone.Data, a.Data)
	}
	return clone
}

// IsEmpty returns true if the account has zero lamports and no data.
func (a *Account) IsEmpty() bool {
	return a.Lamports == 0 && len(a.Data) == 0
}

// Hash commits to every field of the account and its address:
// SHA256(lamports || rent_epoch || data || executable || owner || pubkey).
func (a *Account) Hash(pubkey Pubkey) Hash {
	var fixed [17]byte
	binary.LittleEndian.PutUint64(fixed[0:8], uint64(a.Lamports))
	binary.LittleEndian.PutUint64(fixed[8:16], uint64(a.RentEpoch))
	if a.Executable {
		fixed[16] = 1
	}
	return SHA256Multi(fixed[:16], a.Data, fixed[16:], a.Owner[:], pubkey[:])
}

// Rent holds the parameters that decide how many lamports an account must
// hold to stay alive.
type Rent struct {
	LamportsPerByteYear    uint64 `yaml:"lamports_per_byte_year"`
	ExemptionThresholdYear uint64 `yaml:"exemption_threshold_years"`
	AccountStorageOverhead uint64 `yaml:"account_storage_overhead"`
}

// DefaultRent returns the mainnet rent parameters.
func DefaultRent() Rent {
	return Rent{
		LamportsPerByteYear:    3480,
		ExemptionThresholdYear: 2,
		AccountStorageOverhead: 128,
	}
}

// MinimumBalance returns the lamports an account with dataLen bytes of data
// must hold to be rent exempt.
func (r Rent) MinimumBalance(dataLen uint64) Lamports {
	return Lamports((dataLen + r.AccountStorageOverhead) * r.LamportsPerByteYear * r.ExemptionThresholdYear)
}

// RentExemptMinimum calculates the minimum lamports for rent exemption using
// the default parameters.
func RentExemptMinimum(dataSize uint64) Lamports {
	return DefaultRent().MinimumBalance(dataSize)
}

// AccountMeta describes an account in an instruction.
type AccountMeta struct {
	Pubkey     Pubkey
	IsSigner   bool
	IsWritable bool
}

// AccountRef is a reference to an account with its pubkey.
type AccountRef struct {
	Pubkey  Pubkey
	Account *Account
}

// AccountDelta records one account written by a transaction. OldAccount is
// nil when the transaction created it.
type AccountDelta struct {
	Pubkey     Pubkey
	OldAccount *Account
	NewAccount *Account
}
