package account_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github/chapool/wallet-broker/internal/storage"
	"github/chapool/wallet-broker/internal/wallet/account"
	"github/chapool/wallet-broker/internal/wallet/address"
	"github/chapool/wallet-broker/internal/wallet/errs"
)

func TestAccountLookupIsNormalised(t *testing.T) {
	svc := account.NewService(storage.NewMemory())
	ctx := context.Background()

	require.NoError(t, svc.Add(ctx, &account.Account{
		Address: "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266",
		Family:  address.FamilyEthereum,
		Name:    "dev",
	}))
	require.NoError(t, svc.Add(ctx, &account.Account{
		Address: "5GrwvaEF5zXb26Fz9rcQpDWS57CtERHpNehXCPcNoHGKutQY",
		Family:  address.FamilyECDSA,
		Name:    "alice",
	}))

	acc, err := svc.GetAccountByAddress(ctx, "0xf39fd6e51aad88f6f4ce6ab8827279cfffb92266")
	require.NoError(t, err)
	assert.Equal(t, "dev", acc.Name)

	id, _, err := address.DecodeSS58("5GrwvaEF5zXb26Fz9rcQpDWS57CtERHpNehXCPcNoHGKutQY")
	require.NoError(t, err)

	// same account id, polkadot prefix
	acc, err = svc.GetAccountByAddress(ctx, address.EncodeSS58(id, 0))
	require.NoError(t, err)
	assert.Equal(t, "alice", acc.Name)

	list, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestAccountErrors(t *testing.T) {
	svc := account.NewService(storage.NewMemory())
	ctx := context.Background()

	_, err := svc.GetAccountByAddress(ctx, "0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	assert.ErrorIs(t, err, errs.ErrNotFound)

	_, err = svc.GetAccountByAddress(ctx, "garbage")
	assert.ErrorIs(t, err, errs.ErrNotFound)

	acc := &account.Account{Address: "0x70997970C51812dc3A010C7d01b50e0d17dc79C8", Family: address.FamilyEthereum}
	require.NoError(t, svc.Add(ctx, acc))
	assert.False(t, acc.CreatedAt.IsZero())
	assert.ErrorIs(t, svc.Add(ctx, acc), errs.ErrInvalidPayload)
}
