package signer

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// Signer is an unlocked secp256k1 key scoped to a single operation. Callers must Wipe it when done.
type Signer interface {
	// PublicKey returns the 33 byte compressed public key.
	PublicKey() []byte

	EVMAddress() common.Address

	// SubstrateAccountID is the blake2b-256 hash of the compressed public key.
	SubstrateAccountID() []byte

	// SignEVMTransaction signs a legacy or EIP-1559 transaction for chainID.
	SignEVMTransaction(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error)

	// SignSubstrate returns the 65 byte recoverable signature over blake2b-256(message).
	SignSubstrate(message []byte) ([]byte, error)

	// SignPersonal signs an EIP-191 personal message, V is 27 or 28.
	SignPersonal(message []byte) ([]byte, error)

	// SignTypedData signs EIP-712 typed data, V is 27 or 28.
	SignTypedData(data apitypes.TypedData) ([]byte, error)

	Wipe()
}
