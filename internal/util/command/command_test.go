package command_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github/chapool/wallet-broker/internal/api"
	"github/chapool/wallet-broker/internal/test"
	"github/chapool/wallet-broker/internal/util/command"
)

func TestWithServer(t *testing.T) {
	cfg := test.DefaultTestConfig()
	cfg.Chaindata.File = test.ChaindataFile()
	cfg.Logger.PrettyPrintConsole = false

	var testError = errors.New("test error")

	resultErr := command.WithServer(t.Context(), cfg, func(ctx context.Context, s *api.Server) error {
		require.True(t, s.Ready())

		require.NoError(t, s.Storage.Put([]byte("k"), []byte("v")))
		ok, err := s.Storage.Has([]byte("k"))
		require.NoError(t, err)
		assert.True(t, ok)

		_, err = s.Chaindata.GetToken("polkadot-substrate-native")
		assert.NoError(t, err)

		return testError
	})

	assert.Equal(t, testError, resultErr)
}

func TestWithServerInvalidConfig(t *testing.T) {
	cfg := test.DefaultTestConfig()
	cfg.Chaindata.File = ""

	err := command.WithServer(t.Context(), cfg, func(context.Context, *api.Server) error {
		t.Fatal("must not run with an invalid config")
		return nil
	})
	require.Error(t, err)
}

func TestNewSubcommandGroup(t *testing.T) {
	group := command.NewSubcommandGroup("db", command.NewSubcommandGroup("nested"))
	assert.Equal(t, "db", group.Use)
	require.Len(t, group.Commands(), 1)
	assert.Equal(t, "nested", group.Commands()[0].Use)
}
