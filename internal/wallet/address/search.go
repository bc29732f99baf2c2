package address

import (
	"context"
	"strconv"

	"github/chapool/wallet-broker/internal/util"
	"github/chapool/wallet-broker/internal/wallet/errs"
)

func (s *service) NextDerivationPath(ctx context.Context, mnemonic string, family Family, known []string) (string, error) {
	log := util.LogFromContext(ctx)

	used := make(map[string]struct{}, len(known))
	for _, addr := range known {
		normalized, err := Normalize(addr)
		if err != nil {
			log.Debug().Err(err).Msg("Skipping unparsable known address")
			continue
		}
		used[normalized] = struct{}{}
	}

	isFree := func(addr string) bool {
		normalized, err := Normalize(addr)
		if err != nil {
			return false
		}
		_, taken := used[normalized]

		return !taken
	}

	switch family {
	case FamilyEthereum:
		return s.nextEthereumPath(mnemonic, isFree)
	case FamilyECDSA:
		return nextECDSAPath(mnemonic, isFree)
	default:
		return "", errs.InvalidPayload("unsupported account family %q", family)
	}
}

func (s *service) nextEthereumPath(mnemonic string, isFree func(string) bool) (string, error) {
	master, err := masterKey(mnemonic)
	if err != nil {
		return "", err
	}

	// the account level key is shared by every candidate
	parent, err := deriveKeyFromPath(master, bip44Parent)
	if err != nil {
		return "", err
	}

	for i := 0; i < MaxDerivationIndex; i++ {
		child, err := deriveChildren(parent, []uint32{uint32(i)})
		if err != nil {
			return "", err
		}

		addr, err := ethereumAddress(child.Key)
		wipe(child.Key)
		if err != nil {
			return "", err
		}

		if isFree(addr) {
			return s.GetBIP44Path(i), nil
		}
	}

	return "", errs.ErrDerivationLimitReached
}

func nextECDSAPath(mnemonic string, isFree func(string) bool) (string, error) {
	secret, err := miniSecret(mnemonic)
	if err != nil {
		return "", err
	}
	defer wipe(secret)

	candidate := func(key []byte) (bool, error) {
		id, err := ecdsaAccountID(key)
		if err != nil {
			return false, err
		}

		return isFree(EncodeSS58(id, GenericSS58Prefix)), nil
	}

	free, err := candidate(secret)
	if err != nil {
		return "", err
	}
	if free {
		return "", nil
	}

	for i := 0; i < MaxDerivationIndex; i++ {
		key := hardDerive(secret, chainCode(strconv.Itoa(i)))
		free, err := candidate(key)
		wipe(key)
		if err != nil {
			return "", err
		}
		if free {
			return "//" + strconv.Itoa(i), nil
		}
	}

	return "", errs.ErrDerivationLimitReached
}
