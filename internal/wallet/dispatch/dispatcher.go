package dispatch

import (
	"github.com/rs/zerolog"
	"github/chapool/wallet-broker/internal/chaindata"
	"github/chapool/wallet-broker/internal/metrics"
	"github/chapool/wallet-broker/internal/util"
	"github/chapool/wallet-broker/internal/wallet/diag"
	"github/chapool/wallet-broker/internal/wallet/fee"
	"github/chapool/wallet-broker/internal/wallet/nonce"
	"github/chapool/wallet-broker/internal/wallet/provider"
	"github/chapool/wallet-broker/internal/wallet/watcher"
)

// Deps are the collaborators of the dispatcher.
type Deps struct {
	Chaindata *chaindata.Registry
	Pool      provider.Pool
	Nonces    nonce.Registry
	Fees      fee.Estimator
	Accounts  Accounts
	Signers   Signers
	Tracker   Tracker
	Reporter  diag.Reporter
	Metrics   *metrics.Service
	// WatchMode is how broadcast EVM transactions are tracked.
	WatchMode watcher.Mode
}

type dispatcher struct {
	reg      *chaindata.Registry
	pool     provider.Pool
	nonces   nonce.Registry
	fees     fee.Estimator
	accounts Accounts
	signers  Signers
	tracker  Tracker
	reporter diag.Reporter
	metrics  *metrics.Service
	mode     watcher.Mode
	log      zerolog.Logger
}

//nolint:ireturn // Returning interface is intentional for dependency injection
func NewDispatcher(deps Deps) Dispatcher {
	d := &dispatcher{
		reg:      deps.Chaindata,
		pool:     deps.Pool,
		nonces:   deps.Nonces,
		fees:     deps.Fees,
		accounts: deps.Accounts,
		signers:  deps.Signers,
		tracker:  deps.Tracker,
		reporter: deps.Reporter,
		metrics:  deps.Metrics,
		mode:     deps.WatchMode,
		log:      util.ComponentLogger("dispatch"),
	}

	if d.reporter == nil {
		d.reporter = diag.NewReporter(deps.Metrics)
	}
	if d.mode == "" {
		d.mode = watcher.ModePoll
	}

	return d
}
