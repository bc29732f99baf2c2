//go:build wireinject

package api

import (
	"testing"

	"github.com/google/wire"
	"github/chapool/wallet-broker/internal/chaindata"
	"github/chapool/wallet-broker/internal/config"
	"github/chapool/wallet-broker/internal/metrics"
	"github/chapool/wallet-broker/internal/storage"
	"github/chapool/wallet-broker/internal/wallet/address"
	"github/chapool/wallet-broker/internal/wallet/diag"
)

// INJECTORS - https://github.com/google/wire/blob/main/docs/guide.md#injectors

// serviceSet groups the default set of providers that are required for initing a server
var serviceSet = wire.NewSet(
	newServerWithComponents,
	NewClock,
	metrics.New,
	NewPool,
	NewNonces,
	NewFees,
	address.NewService,
	NewAccounts,
	NewKeyring,
	NewNotifier,
	diag.NewReporter,
	NewWatcher,
	NewDispatcher,
	NewBroker,
	NewSessions,
	NewMessageRouter,
)

// InitNewServer returns a new Server instance.
func InitNewServer(
	_ config.Server,
) (*Server, error) {
	wire.Build(serviceSet, NewStorage, NewChaindata, NoTest)
	return new(Server), nil
}

// InitNewServerWithStorage returns a new Server instance with the given storage and chaindata.
// All the other components are initialized via go wire according to the configuration.
func InitNewServerWithStorage(
	_ config.Server,
	_ storage.DB,
	_ *chaindata.Registry,
	t ...*testing.T,
) (*Server, error) {
	wire.Build(serviceSet)
	return new(Server), nil
}
