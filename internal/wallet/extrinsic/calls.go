package extrinsic

import (
	"math/big"

	"github.com/centrifuge/go-substrate-rpc-client/v4/types"
)

// psp22TransferSelector is the ink! selector of PSP22::transfer.
var psp22TransferSelector = []byte{0xdb, 0x20, 0xf9, 0xf5}

// BalancesTransfer encodes balances.transferKeepAlive and balances.transferAllowDeath.
func BalancesTransfer(index [2]byte, dest []byte, amount *big.Int) ([]byte, error) {
	return newEncoder().raw(index[:]).multiAddress(dest).compact(amount).result()
}

// CurrencyTransfer encodes orml currencies.transfer and tokens.transfer. currencyID is the SCALE
// encoded CurrencyId of the chain.
func CurrencyTransfer(index [2]byte, dest []byte, currencyID []byte, amount *big.Int) ([]byte, error) {
	return newEncoder().raw(index[:]).multiAddress(dest).raw(currencyID).compact(amount).result()
}

// AssetsTransfer encodes assets.transferKeepAlive.
func AssetsTransfer(index [2]byte, assetID *big.Int, dest []byte, amount *big.Int) ([]byte, error) {
	return newEncoder().raw(index[:]).compact(assetID).multiAddress(dest).compact(amount).result()
}

// ContractsCall encodes contracts.call with no storage deposit limit.
func ContractsCall(index [2]byte, contract []byte, refTime uint64, proofSize uint64, data []byte) ([]byte, error) {
	return newEncoder().
		raw(index[:]).
		multiAddress(contract).
		value(types.NewUCompactFromUInt(0)).
		value(types.NewUCompactFromUInt(refTime)).
		value(types.NewUCompactFromUInt(proofSize)).
		push(0x00).
		value(types.NewBytes(data)).
		result()
}

// PSP22Transfer is the message data of PSP22::transfer(to, value, data).
func PSP22Transfer(to []byte, amount *big.Int) ([]byte, error) {
	return newEncoder().raw(psp22TransferSelector).raw(to).u128(amount).value(types.NewBytes(nil)).result()
}

// EquilibriumTransfer encodes eqBalances.transfer(asset, to, value).
func EquilibriumTransfer(index [2]byte, asset uint64, to []byte, amount *big.Int) ([]byte, error) {
	return newEncoder().raw(index[:]).value(types.NewU64(asset)).raw(to).u128(amount).result()
}
