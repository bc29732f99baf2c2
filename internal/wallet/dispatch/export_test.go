package dispatch

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github/chapool/wallet-broker/internal/chaindata"
	"github/chapool/wallet-broker/internal/wallet/request"
)

var (
	BuildSubstrateCall = buildSubstrateCall
	Encodable          = encodable
)

// ReportEndpoint reports whether an ambiguous broadcast failure blames the endpoint.
func ReportEndpoint(ctx context.Context, sendErr error) bool {
	reported := false
	reportEndpoint(ctx, func(error) { reported = true }, sendErr)

	return reported
}

// BuildEVMCall returns the destination, value and data of an EVM token transfer.
func BuildEVMCall(token *chaindata.Token, dest common.Address, amount *big.Int) (common.Address, *big.Int, []byte, error) {
	call, err := buildEVMCall(token, dest, amount)
	if err != nil {
		return common.Address{}, nil, nil, err
	}

	return call.to, call.value, call.data, nil
}

func HandlerFor(kind request.Kind) error {
	_, err := handlerFor(kind)

	return err
}
