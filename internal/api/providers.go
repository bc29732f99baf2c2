package api

import (
	"math/big"
	"testing"
	"time"

	"github.com/dropbox/godropbox/time2"
	"github/chapool/wallet-broker/internal/chaindata"
	"github/chapool/wallet-broker/internal/config"
	"github/chapool/wallet-broker/internal/metrics"
	"github/chapool/wallet-broker/internal/storage"
	"github/chapool/wallet-broker/internal/wallet/account"
	"github/chapool/wallet-broker/internal/wallet/address"
	"github/chapool/wallet-broker/internal/wallet/diag"
	"github/chapool/wallet-broker/internal/wallet/dispatch"
	"github/chapool/wallet-broker/internal/wallet/fee"
	"github/chapool/wallet-broker/internal/wallet/keyring"
	"github/chapool/wallet-broker/internal/wallet/keystore"
	"github/chapool/wallet-broker/internal/wallet/nonce"
	"github/chapool/wallet-broker/internal/wallet/notify"
	"github/chapool/wallet-broker/internal/wallet/provider"
	"github/chapool/wallet-broker/internal/wallet/request"
	"github/chapool/wallet-broker/internal/wallet/router"
	"github/chapool/wallet-broker/internal/wallet/session"
	"github/chapool/wallet-broker/internal/wallet/watcher"
)

// Keyspaces of the shared storage.
const (
	prefixAccounts     = "acct/"
	prefixKeyring      = "keyring/"
	prefixTransactions = "tx/"
	prefixRequests     = "req/"
)

// PROVIDERS - https://github.com/google/wire/blob/main/docs/guide.md#defining-providers

// NoTest is used by wire for the non test injectors.
func NoTest() []*testing.T {
	return nil
}

// NewClock returns the real clock, or a mock clock pinned to a fixed date when running a test.
//
//nolint:ireturn
func NewClock(t ...*testing.T) time2.Clock {
	if len(t) > 0 && t[0] != nil {
		return time2.NewMockClock(time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC))
	}

	return time2.DefaultClock
}

// NewStorage opens the configured storage. Connection pool stats of the postgres driver are
// exported with the broker metrics.
//
//nolint:ireturn
func NewStorage(cfg config.Server, m *metrics.Service) (storage.DB, error) {
	db, err := storage.Open(storage.Options{
		Driver: cfg.Storage.Driver,
		Path:   cfg.Storage.Path,
		DSN:    cfg.Storage.DSN,
	})
	if err != nil {
		return nil, err
	}

	if pg, ok := db.(*storage.PostgresDB); ok {
		if err := m.Registry.Register(pg.StatsCollector()); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	return db, nil
}

func NewChaindata(cfg config.Server) (*chaindata.Registry, error) {
	return chaindata.Load(cfg.Chaindata.File)
}

// NewNotifier returns the notifier approver sessions subscribe to, mailing transfer outcomes
// when a mailer is configured.
func NewNotifier(cfg config.Server) *notify.Notifier {
	n := notify.New()

	if cfg.Mailer.Enabled() {
		n.AddSink(notify.NewEmailSink(notify.EmailConfig{
			From:     cfg.Mailer.From,
			To:       cfg.Mailer.To,
			Host:     cfg.Mailer.Host,
			Port:     cfg.Mailer.Port,
			Username: cfg.Mailer.Username,
			Password: cfg.Mailer.Password,
		}))
	}

	return n
}

//nolint:ireturn
func NewPool(cfg config.Server, reg *chaindata.Registry, clock time2.Clock, m *metrics.Service) provider.Pool {
	return provider.NewPool(reg,
		provider.WithHealthTTL(cfg.Provider.HealthTTL),
		provider.WithQuarantine(cfg.Provider.Quarantine),
		provider.WithDialTimeout(cfg.Provider.DialTimeout),
		provider.WithClock(clock),
		provider.WithMetrics(m),
	)
}

//nolint:ireturn
func NewNonces(m *metrics.Service) nonce.Registry {
	return nonce.NewRegistry(m)
}

//nolint:ireturn
func NewFees(cfg config.Server, reg *chaindata.Registry, pool provider.Pool, m *metrics.Service) fee.Estimator {
	return fee.NewEstimator(reg, pool,
		fee.WithTimeout(cfg.Fee.Timeout),
		fee.WithSafetyMargin(cfg.Fee.SafetyMarginPercent),
		fee.WithMinTip(big.NewInt(cfg.Fee.MinTipWei)),
		fee.WithHistoryBlocks(cfg.Fee.HistoryBlocks),
		fee.WithMetrics(m),
	)
}

//nolint:ireturn
func NewAccounts(db storage.DB) account.Service {
	return account.NewService(storage.NewPrefixDB(db, prefixAccounts))
}

//nolint:ireturn
func NewKeyring(cfg config.Server, db storage.DB, accounts account.Service, addresses address.Service) keyring.Service {
	params := keystore.DefaultScryptParams()
	params.N = cfg.Keystore.ScryptN
	params.P = cfg.Keystore.ScryptP

	return keyring.NewService(storage.NewPrefixDB(db, prefixKeyring), accounts, addresses, params)
}

//nolint:ireturn
func NewWatcher(
	cfg config.Server,
	db storage.DB,
	pool provider.Pool,
	notifier *notify.Notifier,
	nonces nonce.Registry,
	clock time2.Clock,
	m *metrics.Service,
) watcher.Watcher {
	return watcher.NewWatcher(storage.NewPrefixDB(db, prefixTransactions), pool,
		watcher.WithPollInterval(cfg.Watcher.PollInterval),
		watcher.WithMaxAttempts(cfg.Watcher.MaxAttempts),
		watcher.WithMaxBackoff(cfg.Watcher.MaxBackoff),
		watcher.WithBlockWindow(cfg.Watcher.SubstrateBlockWindow),
		watcher.WithNotifier(notifier),
		watcher.WithNonces(nonces),
		watcher.WithClock(clock),
		watcher.WithMetrics(m),
	)
}

//nolint:ireturn
func NewDispatcher(
	reg *chaindata.Registry,
	pool provider.Pool,
	nonces nonce.Registry,
	fees fee.Estimator,
	accounts account.Service,
	keys keyring.Service,
	txWatcher watcher.Watcher,
	reporter diag.Reporter,
	m *metrics.Service,
) dispatch.Dispatcher {
	return dispatch.NewDispatcher(dispatch.Deps{
		Chaindata: reg,
		Pool:      pool,
		Nonces:    nonces,
		Fees:      fees,
		Accounts:  accounts,
		Signers:   keys,
		Tracker:   txWatcher,
		Reporter:  reporter,
		Metrics:   m,
	})
}

//nolint:ireturn
func NewBroker(
	cfg config.Server,
	db storage.DB,
	dispatcher dispatch.Dispatcher,
	notifier *notify.Notifier,
	reporter diag.Reporter,
	clock time2.Clock,
	m *metrics.Service,
) request.Broker {
	return request.NewBroker(storage.NewPrefixDB(db, prefixRequests), dispatch.NewExecutor(dispatcher),
		request.WithTTL(cfg.Broker.RequestTTL),
		request.WithSweepInterval(cfg.Broker.SweepInterval),
		request.WithNotifier(notifier),
		request.WithReporter(reporter),
		request.WithClock(clock),
		request.WithMetrics(m),
	)
}

//nolint:ireturn
func NewSessions(broker request.Broker, clock time2.Clock, m *metrics.Service) session.Manager {
	return session.NewManager(broker, session.WithClock(clock), session.WithMetrics(m))
}

func NewMessageRouter(
	reg *chaindata.Registry,
	sessions session.Manager,
	broker request.Broker,
	dispatcher dispatch.Dispatcher,
	keys keyring.Service,
	reporter diag.Reporter,
) *router.Router {
	return router.New(router.Deps{
		Chaindata:  reg,
		Sessions:   sessions,
		Broker:     broker,
		Dispatcher: dispatcher,
		Keyring:    keys,
		Reporter:   reporter,
	})
}
