package provider

import (
	"context"
	"encoding/json"
	"math/big"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Substrate wraps the JSON-RPC methods used against substrate nodes.
type Substrate struct {
	rpc RPCCaller
}

func NewSubstrate(c RPCCaller) *Substrate {
	return &Substrate{rpc: c}
}

type RuntimeVersion struct {
	SpecVersion        uint32 `json:"specVersion"`
	TransactionVersion uint32 `json:"transactionVersion"`
}

type Header struct {
	ParentHash string `json:"parentHash"`
	Number     string `json:"number"`
}

// BlockNumber decodes the hex block number of the header.
func (h *Header) BlockNumber() (uint64, error) {
	return strconv.ParseUint(strings.TrimPrefix(h.Number, "0x"), 16, 64)
}

type Block struct {
	Header     Header   `json:"header"`
	Extrinsics []string `json:"extrinsics"`
}

type SignedBlock struct {
	Block Block `json:"block"`
}

// FeeInfo is the result of payment_queryInfo.
type FeeInfo struct {
	Class      string          `json:"class"`
	PartialFee json.RawMessage `json:"partialFee"`
}

// Fee decodes partialFee, which nodes serialise as a decimal string, a hex string or a number.
func (f *FeeInfo) Fee() (*big.Int, error) {
	raw := strings.Trim(string(f.PartialFee), `"`)
	if raw == "" {
		return nil, errors.New("empty partialFee")
	}

	base := 10
	if strings.HasPrefix(raw, "0x") {
		raw, base = raw[2:], 16
	}

	fee, ok := new(big.Int).SetString(raw, base)
	if !ok {
		return nil, errors.Errorf("invalid partialFee %s", string(f.PartialFee))
	}

	return fee, nil
}

func (s *Substrate) AccountNextIndex(ctx context.Context, address string) (uint64, error) {
	var index uint64
	if err := s.rpc.CallContext(ctx, &index, "system_accountNextIndex", address); err != nil {
		return 0, errors.Wrap(err, "failed to get account next index")
	}

	return index, nil
}

func (s *Substrate) RuntimeVersion(ctx context.Context) (*RuntimeVersion, error) {
	var v RuntimeVersion
	if err := s.rpc.CallContext(ctx, &v, "state_getRuntimeVersion"); err != nil {
		return nil, errors.Wrap(err, "failed to get runtime version")
	}

	return &v, nil
}

// BlockHash returns the hash of block number n.
func (s *Substrate) BlockHash(ctx context.Context, n uint64) (string, error) {
	var hash string
	if err := s.rpc.CallContext(ctx, &hash, "chain_getBlockHash", n); err != nil {
		return "", errors.Wrapf(err, "failed to get block hash %d", n)
	}
	if hash == "" {
		return "", errors.Errorf("block %d not found", n)
	}

	return hash, nil
}

func (s *Substrate) GenesisHash(ctx context.Context) (string, error) {
	return s.BlockHash(ctx, 0)
}

// Header returns the latest header.
func (s *Substrate) Header(ctx context.Context) (*Header, error) {
	var h Header
	if err := s.rpc.CallContext(ctx, &h, "chain_getHeader"); err != nil {
		return nil, errors.Wrap(err, "failed to get header")
	}

	return &h, nil
}

func (s *Substrate) Block(ctx context.Context, hash string) (*Block, error) {
	var b *SignedBlock
	if err := s.rpc.CallContext(ctx, &b, "chain_getBlock", hash); err != nil {
		return nil, errors.Wrapf(err, "failed to get block %s", hash)
	}
	if b == nil {
		return nil, errors.Errorf("block %s not found", hash)
	}

	return &b.Block, nil
}

func (s *Substrate) QueryInfo(ctx context.Context, extrinsic string) (*FeeInfo, error) {
	var info FeeInfo
	if err := s.rpc.CallContext(ctx, &info, "payment_queryInfo", extrinsic); err != nil {
		return nil, errors.Wrap(err, "failed to query fee info")
	}

	return &info, nil
}

// SubmitExtrinsic returns the extrinsic hash reported by the node. Errors are returned
// unwrapped so callers can inspect rpc.Error and rpc.DataError.
func (s *Substrate) SubmitExtrinsic(ctx context.Context, extrinsic string) (string, error) {
	var hash string
	if err := s.rpc.CallContext(ctx, &hash, "author_submitExtrinsic", extrinsic); err != nil {
		return "", err
	}

	return hash, nil
}

func (s *Substrate) PendingExtrinsics(ctx context.Context) ([]string, error) {
	var pending []string
	if err := s.rpc.CallContext(ctx, &pending, "author_pendingExtrinsics"); err != nil {
		return nil, errors.Wrap(err, "failed to get pending extrinsics")
	}

	return pending, nil
}
