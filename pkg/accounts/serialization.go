package accounts

import (
	"bytes"
	"errors"
	"fmt"

	bin "github.com/gagliardetto/binary"

	"github.com/fortiblox/x1-agentmarket/pkg/types"
)

// Stored account layout, shared by BadgerDB values and snapshot archives:
//
//	version    u8   (accountFormatV1)
//	owner      [32]byte
//	lamports   u64 LE
//	executable bool
//	rent_epoch u64 LE
//	data       u32 LE length + bytes
const (
	accountFormatV1   byte = 1
	accountHeaderSize      = 1 + 32 + 8 + 1 + 8 + 4
)

// ErrInvalidAccountData is returned when a stored account is malformed.
var ErrInvalidAccountData = errors.New("invalid account data")

// SerializeAccount encodes account in the stored layout.
func SerializeAccount(account *types.Account) ([]byte, error) {
	if account == nil {
		return nil, errors.New("cannot serialize nil account")
	}
	buf := bytes.NewBuffer(make([]byte, 0, accountHeaderSize+len(account.Data)))
	enc := bin.NewBinEncoder(buf)

	steps := []func() error{
		func() error { return enc.WriteByte(accountFormatV1) },
		func() error { return enc.WriteBytes(account.Owner[:], false) },
		func() error { return enc.WriteUint64(uint64(account.Lamports), bin.LE) },
		func() error { return enc.WriteBool(account.Executable) },
		func() error { return enc.WriteUint64(uint64(account.RentEpoch), bin.LE) },
		func() error { return enc.WriteUint32(uint32(len(account.Data)), bin.LE) },
		func() error { return enc.WriteBytes(account.Data, false) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// DeserializeAccount decodes a stored account. The input must hold exactly
// one account.
func DeserializeAccount(data []byte) (*types.Account, error) {
	if len(data) < accountHeaderSize {
		return nil, fmt.Errorf("%w: need at least %d bytes, got %d", ErrInvalidAccountData, accountHeaderSize, len(data))
	}
	if data[0] != accountFormatV1 {
		return nil, fmt.Errorf("%w: unknown format version %d", ErrInvalidAccountData, data[0])
	}
	dec := bin.NewBinDecoder(data[1:])

	acc := &types.Account{}
	owner, err := dec.ReadNBytes(32)
	if err != nil {
		return nil, fmt.Errorf("%w: owner: %v", ErrInvalidAccountData, err)
	}
	copy(acc.Owner[:], owner)

	lamports, err := dec.ReadUint64(bin.LE)
	if err != nil {
		return nil, fmt.Errorf("%w: lamports: %v", ErrInvalidAccountData, err)
	}
	acc.Lamports = types.Lamports(lamports)

	if acc.Executable, err = dec.ReadBool(); err != nil {
		return nil, fmt.Errorf("%w: executable: %v", ErrInvalidAccountData, err)
	}
	rentEpoch, err := dec.ReadUint64(bin.LE)
	if err != nil {
		return nil, fmt.Errorf("%w: rent epoch: %v", ErrInvalidAccountData, err)
	}
	acc.RentEpoch = types.Epoch(rentEpoch)

	dataLen, err := dec.ReadUint32(bin.LE)
	if err != nil {
		return nil, fmt.Errorf("%w: data length: %v", ErrInvalidAccountData, err)
	}
	if int64(dataLen) != int64(dec.Remaining()) {
		return nil, fmt.Errorf("%w: data length %d, %d bytes follow", ErrInvalidAccountData, dataLen, dec.Remaining())
	}
	if dataLen > 0 {
		raw, err := dec.ReadNBytes(int(dataLen))
		if err != nil {
			return nil, fmt.Errorf("%w: data: %v", ErrInvalidAccountData, err)
		}
		acc.Data = append([]byte(nil), raw...)
	}
	return acc, nil
}
