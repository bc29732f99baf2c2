package test

import (
	"encoding/hex"
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/rpc"
	"golang.org/x/crypto/blake2b"
)

// NodeError is a JSON-RPC error with data, as returned by substrate nodes rejecting an extrinsic.
type NodeError struct {
	Code    int
	Message string
	Data    string
}

func (e *NodeError) Error() string          { return e.Message }
func (e *NodeError) ErrorCode() int         { return e.Code }
func (e *NodeError) ErrorData() interface{} { return e.Data }

type nodeHeader struct {
	ParentHash string `json:"parentHash"`
	Number     string `json:"number"`
}

type nodeBlock struct {
	Header     nodeHeader `json:"header"`
	Extrinsics []string   `json:"extrinsics"`
}

type nodeSignedBlock struct {
	Block nodeBlock `json:"block"`
}

// SubstrateNode is an in-process fake of the substrate JSON-RPC surface used by the broker.
type SubstrateNode struct {
	mu sync.Mutex

	Genesis            string
	SpecVersion        uint32
	TransactionVersion uint32
	PartialFee         string
	// AutoSeal includes every accepted extrinsic in a new block immediately.
	AutoSeal bool
	// SubmitErr, when set, is returned by author_submitExtrinsic.
	SubmitErr error

	nonces    map[string]uint64
	hashes    []string
	blocks    map[string]*nodeBlock
	pending   []string
	submitted []string

	server *rpc.Server
}

func NewSubstrateNode(genesis string) *SubstrateNode {
	n := &SubstrateNode{
		Genesis:            genesis,
		SpecVersion:        1_002_000,
		TransactionVersion: 26,
		PartialFee:         "15000000",
		nonces:             make(map[string]uint64),
		blocks:             make(map[string]*nodeBlock),
	}

	n.hashes = append(n.hashes, genesis)
	n.blocks[genesis] = &nodeBlock{Header: nodeHeader{Number: "0x0"}}

	n.server = rpc.NewServer()
	for name, svc := range map[string]any{
		"system":  &systemAPI{n},
		"state":   &stateAPI{n},
		"chain":   &chainAPI{n},
		"payment": &paymentAPI{n},
		"author":  &authorAPI{n},
	} {
		if err := n.server.RegisterName(name, svc); err != nil {
			panic(err)
		}
	}

	return n
}

// Client returns a new in-process RPC client connected to the node.
func (n *SubstrateNode) Client() *rpc.Client {
	return rpc.DialInProc(n.server)
}

func (n *SubstrateNode) SetNonce(address string, nonce uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.nonces[address] = nonce
}

func (n *SubstrateNode) Submitted() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.submitted...)
}

// Seal moves pending extrinsics into a new block.
func (n *SubstrateNode) Seal() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sealLocked()
}

// Drop discards pending extrinsics without including them.
func (n *SubstrateNode) Drop() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.pending = nil
}

func (n *SubstrateNode) sealLocked() {
	number := len(n.hashes)
	hash := fmt.Sprintf("0x%064x", number)
	n.blocks[hash] = &nodeBlock{
		Header: nodeHeader{
			ParentHash: n.hashes[number-1],
			Number:     fmt.Sprintf("0x%x", number),
		},
		Extrinsics: n.pending,
	}
	n.hashes = append(n.hashes, hash)
	n.pending = nil
}

// ExtrinsicHash is the blake2b-256 hash of a hex encoded extrinsic.
func ExtrinsicHash(extrinsic string) string {
	raw, _ := hex.DecodeString(strings.TrimPrefix(extrinsic, "0x"))
	sum := blake2b.Sum256(raw)
	return "0x" + hex.EncodeToString(sum[:])
}

type systemAPI struct{ n *SubstrateNode }

func (s *systemAPI) AccountNextIndex(address string) uint64 {
	s.n.mu.Lock()
	defer s.n.mu.Unlock()
	return s.n.nonces[address]
}

type stateAPI struct{ n *SubstrateNode }

func (s *stateAPI) GetRuntimeVersion() map[string]any {
	return map[string]any{
		"specName":           "polkadot",
		"specVersion":        s.n.SpecVersion,
		"transactionVersion": s.n.TransactionVersion,
	}
}

type chainAPI struct{ n *SubstrateNode }

func (c *chainAPI) GetBlockHash(number uint64) (string, error) {
	c.n.mu.Lock()
	defer c.n.mu.Unlock()
	if number >= uint64(len(c.n.hashes)) {
		return "", nil
	}
	return c.n.hashes[number], nil
}

func (c *chainAPI) GetHeader() nodeHeader {
	c.n.mu.Lock()
	defer c.n.mu.Unlock()
	return c.n.blocks[c.n.hashes[len(c.n.hashes)-1]].Header
}

func (c *chainAPI) GetBlock(hash string) *nodeSignedBlock {
	c.n.mu.Lock()
	defer c.n.mu.Unlock()
	b, ok := c.n.blocks[hash]
	if !ok {
		return nil
	}
	return &nodeSignedBlock{Block: *b}
}

type paymentAPI struct{ n *SubstrateNode }

func (p *paymentAPI) QueryInfo(extrinsic string) map[string]any {
	return map[string]any{
		"weight":     map[string]any{"refTime": 150_000_000, "proofSize": 3_593},
		"class":      "normal",
		"partialFee": p.n.PartialFee,
	}
}

type authorAPI struct{ n *SubstrateNode }

func (a *authorAPI) SubmitExtrinsic(extrinsic string) (string, error) {
	a.n.mu.Lock()
	defer a.n.mu.Unlock()

	if a.n.SubmitErr != nil {
		return "", a.n.SubmitErr
	}

	a.n.submitted = append(a.n.submitted, extrinsic)
	a.n.pending = append(a.n.pending, extrinsic)
	if a.n.AutoSeal {
		a.n.sealLocked()
	}

	return ExtrinsicHash(extrinsic), nil
}

func (a *authorAPI) PendingExtrinsics() []string {
	a.n.mu.Lock()
	defer a.n.mu.Unlock()
	return append([]string{}, a.n.pending...)
}
