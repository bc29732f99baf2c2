package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/dropbox/godropbox/time2"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
	"github/chapool/wallet-broker/internal/chaindata"
	"github/chapool/wallet-broker/internal/config"
	"github/chapool/wallet-broker/internal/metrics"
	"github/chapool/wallet-broker/internal/storage"
	"github/chapool/wallet-broker/internal/util"
	"github/chapool/wallet-broker/internal/wallet/account"
	"github/chapool/wallet-broker/internal/wallet/address"
	"github/chapool/wallet-broker/internal/wallet/diag"
	"github/chapool/wallet-broker/internal/wallet/dispatch"
	"github/chapool/wallet-broker/internal/wallet/fee"
	"github/chapool/wallet-broker/internal/wallet/keyring"
	"github/chapool/wallet-broker/internal/wallet/nonce"
	"github/chapool/wallet-broker/internal/wallet/notify"
	"github/chapool/wallet-broker/internal/wallet/provider"
	"github/chapool/wallet-broker/internal/wallet/request"
	"github/chapool/wallet-broker/internal/wallet/router"
	"github/chapool/wallet-broker/internal/wallet/session"
	"github/chapool/wallet-broker/internal/wallet/watcher"
)

type Router struct {
	Routes            []*echo.Route
	Root              *echo.Group
	Management        *echo.Group
	APIV1Requests     *echo.Group
	APIV1Transactions *echo.Group
}

// Server is a central struct keeping all the dependencies.
// It is initialized with wire, which handles making the new instances of the components
// in the right order. To add a new component, 3 steps are required:
// - declaring it in this struct
// - adding a provider function in providers.go
// - adding the provider's function name to the arguments of wire.Build() in wire.go
//
// Components labeled as `wire:"-"` will be skipped and have to be initialized after the InitNewServer* call.
// For more information about wire refer to https://pkg.go.dev/github.com/google/wire
type Server struct {
	// skip wire:
	// -> initialized with router.Init(s) function
	Echo   *echo.Echo `wire:"-"`
	Router *Router    `wire:"-"`

	Config     config.Server
	Clock      time2.Clock
	Metrics    *metrics.Service
	Storage    storage.DB
	Chaindata  *chaindata.Registry
	Pool       provider.Pool
	Nonces     nonce.Registry
	Fees       fee.Estimator
	Addresses  address.Service
	Accounts   account.Service
	Keyring    keyring.Service
	Notifier   *notify.Notifier
	Reporter   diag.Reporter
	Watcher    watcher.Watcher
	Dispatcher dispatch.Dispatcher
	Broker     request.Broker
	Sessions   session.Manager
	// Messages answers port session envelopes.
	Messages *router.Router
}

// newServerWithComponents is used by wire to initialize the server components.
// Components not listed here won't be handled by wire and should be initialized separately.
// Components which shouldn't be handled must be labeled `wire:"-"` in Server struct.
func newServerWithComponents(
	cfg config.Server,
	clock time2.Clock,
	metrics *metrics.Service,
	db storage.DB,
	reg *chaindata.Registry,
	pool provider.Pool,
	nonces nonce.Registry,
	fees fee.Estimator,
	addresses address.Service,
	accounts account.Service,
	keys keyring.Service,
	notifier *notify.Notifier,
	reporter diag.Reporter,
	txWatcher watcher.Watcher,
	dispatcher dispatch.Dispatcher,
	broker request.Broker,
	sessions session.Manager,
	messages *router.Router,
) *Server {
	return &Server{
		Config:     cfg,
		Clock:      clock,
		Metrics:    metrics,
		Storage:    db,
		Chaindata:  reg,
		Pool:       pool,
		Nonces:     nonces,
		Fees:       fees,
		Addresses:  addresses,
		Accounts:   accounts,
		Keyring:    keys,
		Notifier:   notifier,
		Reporter:   reporter,
		Watcher:    txWatcher,
		Dispatcher: dispatcher,
		Broker:     broker,
		Sessions:   sessions,
		Messages:   messages,
	}
}

func NewServer(config config.Server) *Server {
	s := &Server{
		Config: config,
	}

	return s
}

func (s *Server) Ready() bool {
	if err := util.IsStructInitialized(s); err != nil {
		log.Debug().Err(err).Msg("Server is not fully initialized")
		return false
	}

	return true
}

// StartWorkers recovers state left by a previous process and starts background work bound to ctx.
func (s *Server) StartWorkers(ctx context.Context) error {
	if !s.Ready() {
		return errors.New("server is not ready")
	}

	if err := s.Broker.Recover(ctx); err != nil {
		return fmt.Errorf("failed to recover pending requests: %w", err)
	}

	if err := s.Watcher.Resume(ctx); err != nil {
		return fmt.Errorf("failed to resume transaction watching: %w", err)
	}

	go s.Broker.Run(ctx)

	return nil
}

func (s *Server) Start() error {
	if !s.Ready() {
		return errors.New("server is not ready")
	}

	if err := s.Echo.Start(s.Config.Echo.ListenAddress); err != nil {
		return fmt.Errorf("failed to start echo server: %w", err)
	}

	return nil
}

func (s *Server) Shutdown(ctx context.Context) []error {
	log.Warn().Msg("Shutting down server")

	var errs []error

	if s.Echo != nil {
		log.Debug().Msg("Shutting down echo server")

		if err := s.Echo.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Failed to shutdown echo server")
			errs = append(errs, err)
		}
	}

	// Websocket connections are hijacked and outlive the echo shutdown; closing their sessions
	// disconnects them and rejects what they left pending.
	if s.Sessions != nil {
		log.Debug().Msg("Closing port sessions")
		s.Sessions.CloseAll(ctx)
	}

	if s.Watcher != nil {
		log.Debug().Msg("Stopping transaction watcher")
		s.Watcher.Close()
	}

	if s.Pool != nil {
		log.Debug().Msg("Closing provider connections")
		s.Pool.Close()
	}

	if s.Storage != nil {
		log.Debug().Msg("Closing storage")

		if err := s.Storage.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close storage")
			errs = append(errs, err)
		}
	}

	return errs
}
