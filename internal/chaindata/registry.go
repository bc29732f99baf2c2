package chaindata

import (
	"encoding/hex"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
	"github/chapool/wallet-broker/internal/wallet/errs"
)

type file struct {
	Chains      []*Chain      `toml:"chains"`
	EVMNetworks []*EVMNetwork `toml:"evmNetworks"`
	Tokens      []*Token      `toml:"tokens"`
}

// Registry is the read-only chain, network and token metadata store.
type Registry struct {
	chains      []*Chain
	evmNetworks map[string]*EVMNetwork
	tokens      map[string]*Token
	evmOrder    []string
}

// Load reads a chaindata TOML file.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read chaindata file %s", path)
	}

	return Parse(data)
}

// Parse decodes chaindata TOML.
func Parse(data []byte) (*Registry, error) {
	var f file
	meta, err := toml.Decode(string(data), &f)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode chaindata")
	}

	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, errors.Errorf("unknown chaindata keys: %v", undecoded)
	}

	return New(f.Chains, f.EVMNetworks, f.Tokens)
}

// New validates and indexes chaindata.
func New(chains []*Chain, evmNetworks []*EVMNetwork, tokens []*Token) (*Registry, error) {
	r := &Registry{
		evmNetworks: make(map[string]*EVMNetwork, len(evmNetworks)),
		tokens:      make(map[string]*Token, len(tokens)),
	}

	seen := make(map[string]bool)
	for _, c := range chains {
		if c.ID == "" || seen[c.ID] {
			return nil, errors.Errorf("invalid or duplicate chain id %q", c.ID)
		}
		seen[c.ID] = true

		for name, idx := range c.Calls {
			if _, err := decodeCallIndex(idx); err != nil {
				return nil, errors.Wrapf(err, "chain %s call %s", c.ID, name)
			}
		}
		r.chains = append(r.chains, c)
	}

	for _, n := range evmNetworks {
		if _, err := strconv.ParseUint(n.ID, 10, 64); err != nil {
			return nil, errors.Errorf("evm network id %q is not numeric", n.ID)
		}
		if _, dup := r.evmNetworks[n.ID]; dup {
			return nil, errors.Errorf("duplicate evm network id %q", n.ID)
		}
		r.evmNetworks[n.ID] = n
		r.evmOrder = append(r.evmOrder, n.ID)
	}

	for _, t := range tokens {
		if !t.Type.Valid() {
			return nil, errors.Errorf("token %s has unknown type %q", t.ID, t.Type)
		}
		if _, dup := r.tokens[t.ID]; dup {
			return nil, errors.Errorf("duplicate token id %q", t.ID)
		}
		if t.Type.IsEVM() && t.EVMNetworkID == "" {
			return nil, errors.Errorf("token %s requires evmNetworkId", t.ID)
		}
		if !t.Type.IsEVM() && t.ChainID == "" {
			return nil, errors.Errorf("token %s requires chainId", t.ID)
		}
		r.tokens[t.ID] = t
	}

	return r, nil
}

func (r *Registry) GetToken(id string) (*Token, error) {
	t, ok := r.tokens[id]
	if !ok {
		return nil, errs.NotFound("token", id)
	}

	return t, nil
}

func (r *Registry) GetChain(sel ChainSelector) (*Chain, error) {
	for _, c := range r.chains {
		if sel.matches(c) {
			return c, nil
		}
	}

	return nil, errs.NotFound("chain", sel.String())
}

func (r *Registry) GetEVMNetwork(id string) (*EVMNetwork, error) {
	n, ok := r.evmNetworks[id]
	if !ok {
		return nil, errs.NotFound("evm network", id)
	}

	return n, nil
}

func (r *Registry) Chains() []*Chain {
	return r.chains
}

func (r *Registry) EVMNetworks() []*EVMNetwork {
	out := make([]*EVMNetwork, 0, len(r.evmOrder))
	for _, id := range r.evmOrder {
		out = append(out, r.evmNetworks[id])
	}

	return out
}

// CallIndex returns the [pallet, call] index of a "pallet.call" on the chain.
func (c *Chain) CallIndex(name string) ([2]byte, error) {
	raw, ok := c.Calls[name]
	if !ok {
		return [2]byte{}, errs.NotFound("call", c.ID+"/"+name)
	}

	return decodeCallIndex(raw)
}

// ChainIDInt returns the numeric EIP-155 chain id.
func (n *EVMNetwork) ChainIDInt() int64 {
	id, _ := strconv.ParseInt(n.ID, 10, 64)
	return id
}

func decodeCallIndex(raw string) ([2]byte, error) {
	var out [2]byte

	b, err := hex.DecodeString(strings.TrimPrefix(raw, "0x"))
	if err != nil {
		return out, errors.Wrapf(err, "invalid call index %q", raw)
	}
	if len(b) != len(out) {
		return out, errors.Errorf("call index %q must be 2 bytes", raw)
	}
	copy(out[:], b)

	return out, nil
}
