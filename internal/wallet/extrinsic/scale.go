// Package extrinsic builds signed substrate extrinsics (format v4) and the SCALE encoded calls the
// broker submits.
package extrinsic

import (
	"bytes"
	"math/big"

	"github.com/centrifuge/go-substrate-rpc-client/v4/scale"
	"github.com/centrifuge/go-substrate-rpc-client/v4/types"
	"github/chapool/wallet-broker/internal/wallet/errs"
)

const u128Bits = 128

// CheckU128 fails for values a u128 balance cannot hold.
func CheckU128(v *big.Int) error {
	if v == nil || v.Sign() < 0 || v.BitLen() > u128Bits {
		return errs.InvalidPayload("value %v is outside the u128 range", v)
	}

	return nil
}

// encoder writes SCALE values into a buffer and keeps the first error.
type encoder struct {
	buf bytes.Buffer
	enc *scale.Encoder
	err error
}

func newEncoder() *encoder {
	e := &encoder{}
	e.enc = scale.NewEncoder(&e.buf)

	return e
}

func (e *encoder) raw(b []byte) *encoder {
	if e.err == nil {
		e.err = e.enc.Write(b)
	}

	return e
}

func (e *encoder) push(b byte) *encoder {
	if e.err == nil {
		e.err = e.enc.PushByte(b)
	}

	return e
}

func (e *encoder) value(v any) *encoder {
	if e.err == nil {
		e.err = e.enc.Encode(v)
	}

	return e
}

// compact writes a Compact<u128>.
func (e *encoder) compact(v *big.Int) *encoder {
	if e.err == nil {
		e.err = CheckU128(v)
	}
	if e.err != nil {
		return e
	}

	return e.value(types.NewUCompact(v))
}

func (e *encoder) u128(v *big.Int) *encoder {
	if e.err == nil {
		e.err = CheckU128(v)
	}
	if e.err != nil {
		return e
	}

	return e.value(types.NewU128(*v))
}

func (e *encoder) multiAddress(accountID []byte) *encoder {
	return e.push(multiAddressID).raw(accountID)
}

func (e *encoder) result() ([]byte, error) {
	if e.err != nil {
		return nil, e.err
	}

	return e.buf.Bytes(), nil
}

// infallible is the output of encoders whose inputs are fixed width.
func (e *encoder) infallible() []byte {
	b, err := e.result()
	if err != nil {
		panic(err)
	}

	return b
}

// Compact SCALE encodes an unsigned integer up to u128.
func Compact(v *big.Int) ([]byte, error) {
	return newEncoder().compact(v).result()
}

func CompactUint(n uint64) []byte {
	return newEncoder().value(types.NewUCompactFromUInt(n)).infallible()
}

// U128 encodes a fixed width little endian u128.
func U128(v *big.Int) ([]byte, error) {
	return newEncoder().u128(v).result()
}

func U64(n uint64) []byte {
	return newEncoder().value(types.NewU64(n)).infallible()
}

func U32(n uint32) []byte {
	return newEncoder().value(types.NewU32(n)).infallible()
}

// Bytes encodes a Vec<u8>.
func Bytes(b []byte) []byte {
	return newEncoder().value(types.NewBytes(b)).infallible()
}
