package dispatch

import (
	"context"
	"math/big"

	"github/chapool/wallet-broker/internal/wallet/account"
	"github/chapool/wallet-broker/internal/wallet/fee"
	"github/chapool/wallet-broker/internal/wallet/keyring"
	"github/chapool/wallet-broker/internal/wallet/provider"
	"github/chapool/wallet-broker/internal/wallet/request"
	"github/chapool/wallet-broker/internal/wallet/signer"
	"github/chapool/wallet-broker/internal/wallet/watcher"
)

// Accounts looks up stored accounts.
type Accounts interface {
	GetAccountByAddress(ctx context.Context, addr string) (*account.Account, error)
}

// Signers hands out signers unlocked by an explicit credential.
type Signers interface {
	GetUnlockedSigner(ctx context.Context, addr string, cred keyring.Credential) (signer.Signer, error)
}

// Tracker receives broadcast transactions.
type Tracker interface {
	Watch(ctx context.Context, rec *watcher.Record, mode watcher.Mode) error
}

// Result is returned by every broadcasting operation.
type Result struct {
	Hash string `json:"hash"`
}

// FeeQuote is the pre-flight cost of a transfer in the smallest unit of the fee token.
type FeeQuote struct {
	Family    provider.Family `json:"family"`
	Suggested *big.Int        `json:"suggested"`
	Maximum   *big.Int        `json:"maximum"`
	// Gas and Estimate are set for EVM transfers.
	Gas      uint64        `json:"gas,omitempty"`
	Estimate *fee.Estimate `json:"estimate,omitempty"`
	Nonce    uint64        `json:"nonce"`
	Symbol   string        `json:"symbol,omitempty"`
}

// Dispatcher turns approved requests into broadcast transactions and signatures.
// Every call carries its own credential; nothing stays unlocked between calls.
type Dispatcher interface {
	// Transfer sends a token transfer on the token's network family.
	Transfer(ctx context.Context, p *request.AssetTransferPayload, cred keyring.Credential) (*Result, error)

	// CheckFees quotes a transfer without signing, broadcasting or allocating a nonce.
	CheckFees(ctx context.Context, p *request.AssetTransferPayload) (*FeeQuote, error)

	// TransferEth sends an EVM token transfer signed with a local key.
	TransferEth(ctx context.Context, p *request.AssetTransferPayload, cred keyring.Credential) (*Result, error)

	// TransferEthHardware broadcasts a transfer signed by an external device.
	TransferEthHardware(ctx context.Context, p *request.AssetTransferHardwarePayload, signedTx string) (*Result, error)

	// ApproveSign assembles and broadcasts an extrinsic from an unsigned payload and an external signature.
	ApproveSign(ctx context.Context, p *request.AssetTransferApproveSignPayload, signature string) (*Result, error)

	// SendEth sends a page supplied transaction. settings, when set, overrides the fee fields of the page.
	SendEth(ctx context.Context, p *request.EthSendPayload, settings *fee.GasSettings, cred keyring.Credential) (*Result, error)

	// SignEth signs a personal message or typed data and returns the 0x signature.
	SignEth(ctx context.Context, p *request.EthSignPayload, cred keyring.Credential) (string, error)

	// SignSubstrate signs an extrinsic payload or raw data and returns the 0x MultiSignature.
	SignSubstrate(ctx context.Context, p *request.SubstrateSignPayload, cred keyring.Credential) (string, error)
}
