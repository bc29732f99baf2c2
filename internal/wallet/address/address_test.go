package address_test

import (
	"context"
	"encoding/hex"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github/chapool/wallet-broker/internal/test"
	"github/chapool/wallet-broker/internal/wallet/address"
	"github/chapool/wallet-broker/internal/wallet/errs"
)

const (
	aliceSS58      = "5GrwvaEF5zXb26Fz9rcQpDWS57CtERHpNehXCPcNoHGKutQY"
	aliceAccountID = "d43593c715fdd31c61141abd04a99fd6822c8558854ccde39a5684e7a56da27d"
)

func TestDeriveEthereumAddress(t *testing.T) {
	svc := address.NewService()

	for i, want := range []string{
		"0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266",
		"0x70997970C51812dc3A010C7d01b50e0d17dc79C8",
		"0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC",
	} {
		addr, err := svc.DeriveAddress(context.Background(), test.TestMnemonic, svc.GetBIP44Path(i), address.FamilyEthereum)
		require.NoError(t, err)
		assert.Equal(t, want, addr)
	}
}

func TestDeriveRejectsInvalidInput(t *testing.T) {
	svc := address.NewService()

	_, err := svc.DeriveAddress(context.Background(), "not a mnemonic", "m/44'/60'/0'/0/0", address.FamilyEthereum)
	assert.ErrorIs(t, err, errs.ErrInvalidPayload)

	_, err = svc.DeriveAddress(context.Background(), test.TestMnemonic, "44/60", address.FamilyEthereum)
	assert.ErrorIs(t, err, errs.ErrInvalidPayload)

	_, err = svc.DeriveAddress(context.Background(), test.TestMnemonic, "/0", address.FamilyECDSA)
	assert.ErrorIs(t, err, errs.ErrInvalidPayload)

	_, err = svc.DeriveAddress(context.Background(), test.TestMnemonic, "", address.Family("sr25519"))
	assert.ErrorIs(t, err, errs.ErrInvalidPayload)
}

func TestDeriveECDSAAddress(t *testing.T) {
	svc := address.NewService()
	ctx := context.Background()

	root, err := svc.DeriveAddress(ctx, test.TestMnemonicAlt, "", address.FamilyECDSA)
	require.NoError(t, err)
	first, err := svc.DeriveAddress(ctx, test.TestMnemonicAlt, "//0", address.FamilyECDSA)
	require.NoError(t, err)
	again, err := svc.DeriveAddress(ctx, test.TestMnemonicAlt, "//0", address.FamilyECDSA)
	require.NoError(t, err)

	assert.NotEqual(t, root, first)
	assert.Equal(t, first, again)

	_, prefix, err := address.DecodeSS58(first)
	require.NoError(t, err)
	assert.Equal(t, address.GenericSS58Prefix, prefix)
}

func TestSS58(t *testing.T) {
	id, prefix, err := address.DecodeSS58(aliceSS58)
	require.NoError(t, err)
	assert.Equal(t, uint16(42), prefix)
	assert.Equal(t, aliceAccountID, hex.EncodeToString(id))
	assert.Equal(t, aliceSS58, address.EncodeSS58(id, 42))

	for _, p := range []uint16{0, 2, 63, 64, 1284, 16383} {
		encoded := address.EncodeSS58(id, p)
		decoded, gotPrefix, err := address.DecodeSS58(encoded)
		require.NoError(t, err, p)
		assert.Equal(t, p, gotPrefix)
		assert.Equal(t, id, decoded)
	}

	_, _, err = address.DecodeSS58("5GrwvaEF5zXb26Fz9rcQpDWS57CtERHpNehXCPcNoHGKutQZ")
	assert.ErrorIs(t, err, errs.ErrInvalidPayload)
}

func TestNormalize(t *testing.T) {
	a, err := address.Normalize("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	require.NoError(t, err)
	b, err := address.Normalize("0xf39fd6e51aad88f6f4ce6ab8827279cfffb92266")
	require.NoError(t, err)
	assert.Equal(t, a, b)

	id, _, err := address.DecodeSS58(aliceSS58)
	require.NoError(t, err)

	generic, err := address.Normalize(aliceSS58)
	require.NoError(t, err)
	polkadot, err := address.Normalize(address.EncodeSS58(id, 0))
	require.NoError(t, err)
	assert.Equal(t, generic, polkadot)
	assert.Equal(t, "0x"+aliceAccountID, generic)

	_, err = address.Normalize("hello")
	assert.ErrorIs(t, err, errs.ErrInvalidPayload)
}

func TestNextDerivationPathEthereum(t *testing.T) {
	svc := address.NewService()
	ctx := context.Background()

	path, err := svc.NextDerivationPath(ctx, test.TestMnemonic, address.FamilyEthereum, nil)
	require.NoError(t, err)
	assert.Equal(t, "m/44'/60'/0'/0/0", path)

	known := []string{
		"0xf39fd6e51aad88f6f4ce6ab8827279cfffb92266",
		"0x70997970C51812dc3A010C7d01b50e0d17dc79C8",
		"0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC",
		aliceSS58,
	}
	path, err = svc.NextDerivationPath(ctx, test.TestMnemonic, address.FamilyEthereum, known)
	require.NoError(t, err)
	assert.Equal(t, "m/44'/60'/0'/0/3", path)
}

func TestNextDerivationPathECDSA(t *testing.T) {
	svc := address.NewService()
	ctx := context.Background()

	path, err := svc.NextDerivationPath(ctx, test.TestMnemonicAlt, address.FamilyECDSA, nil)
	require.NoError(t, err)
	assert.Empty(t, path, "the bare mini-secret is checked first")

	root, err := svc.DeriveAddress(ctx, test.TestMnemonicAlt, "", address.FamilyECDSA)
	require.NoError(t, err)

	path, err = svc.NextDerivationPath(ctx, test.TestMnemonicAlt, address.FamilyECDSA, []string{root})
	require.NoError(t, err)
	assert.Equal(t, "//0", path)
}

func TestNextDerivationPathLimit(t *testing.T) {
	svc := address.NewService()
	ctx := context.Background()

	root, err := svc.DeriveAddress(ctx, test.TestMnemonicAlt, "", address.FamilyECDSA)
	require.NoError(t, err)
	known := []string{root}

	for i := 0; i < address.MaxDerivationIndex; i++ {
		addr, err := svc.DeriveAddress(ctx, test.TestMnemonicAlt, "//"+strconv.Itoa(i), address.FamilyECDSA)
		require.NoError(t, err)
		known = append(known, addr)
	}

	path, err := svc.NextDerivationPath(ctx, test.TestMnemonicAlt, address.FamilyECDSA, known[:len(known)-1])
	require.NoError(t, err)
	assert.Equal(t, "//999", path)

	_, err = svc.NextDerivationPath(ctx, test.TestMnemonicAlt, address.FamilyECDSA, known)
	assert.ErrorIs(t, err, errs.ErrDerivationLimitReached)
}
