package fee

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github/chapool/wallet-broker/internal/chaindata"
	"github/chapool/wallet-broker/internal/metrics"
	"github/chapool/wallet-broker/internal/util"
	"github/chapool/wallet-broker/internal/wallet/errs"
	"github/chapool/wallet-broker/internal/wallet/provider"
	"golang.org/x/sync/singleflight"
)

const (
	defaultTimeout       = 5 * time.Second
	defaultSafetyMargin  = 20
	defaultHistoryBlocks = 10
	// maxFee = baseFee * 2 + tip
	eip1559FeeMultiplier = 2
	percent              = 100
)

var (
	rewardPercentiles = []float64{10, 20, 30}
	legacyScale       = map[Priority]int64{PriorityLow: 100, PriorityMedium: 110, PriorityHigh: 125}
)

type estimator struct {
	registry *chaindata.Registry
	pool     provider.Pool
	metrics  *metrics.Service

	timeout       time.Duration
	safetyMargin  int64
	minTip        *big.Int
	historyBlocks uint64

	group singleflight.Group

	mu       sync.Mutex
	lastGood map[string]*Estimate
}

type Option func(*estimator)

func WithTimeout(d time.Duration) Option {
	return func(e *estimator) { e.timeout = d }
}

// WithSafetyMargin sets the percentage added to the maximum of degraded estimates.
func WithSafetyMargin(pct int64) Option {
	return func(e *estimator) { e.safetyMargin = pct }
}

func WithMinTip(wei *big.Int) Option {
	return func(e *estimator) { e.minTip = wei }
}

func WithHistoryBlocks(n uint64) Option {
	return func(e *estimator) { e.historyBlocks = n }
}

func WithMetrics(m *metrics.Service) Option {
	return func(e *estimator) { e.metrics = m }
}

// NewEstimator creates a FeeEstimator backed by the provider pool.
//
//nolint:ireturn // Returning interface is intentional for dependency injection
func NewEstimator(reg *chaindata.Registry, pool provider.Pool, opts ...Option) Estimator {
	e := &estimator{
		registry:      reg,
		pool:          pool,
		timeout:       defaultTimeout,
		safetyMargin:  defaultSafetyMargin,
		minTip:        big.NewInt(0),
		historyBlocks: defaultHistoryBlocks,
		lastGood:      make(map[string]*Estimate),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

func (e *estimator) Estimate(ctx context.Context, networkID string, priority Priority, custom *GasSettings) (*Estimate, error) {
	switch priority {
	case PriorityCustom:
		return fromSettings(custom)
	case PriorityLow, PriorityMedium, PriorityHigh:
	default:
		return nil, errs.InvalidPayload("unknown fee priority %q", priority)
	}

	network, err := e.registry.GetEVMNetwork(networkID)
	if err != nil {
		return nil, err
	}

	key := networkID + "/" + string(priority)
	v, err, _ := e.group.Do(key, func() (any, error) {
		// a coalesced caller must not be cut short by the first caller's cancellation
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.timeout)
		defer cancel()

		return e.fetch(fetchCtx, network, priority)
	})
	if err == nil {
		est := v.(*Estimate) //nolint:forcetypeassert
		e.mu.Lock()
		e.lastGood[key] = est
		e.mu.Unlock()

		return est.clone(), nil
	}

	return e.degraded(ctx, key, networkID, err)
}

func (e *estimator) degraded(ctx context.Context, key string, networkID string, cause error) (*Estimate, error) {
	log := util.LogFromContext(ctx)

	e.mu.Lock()
	last, ok := e.lastGood[key]
	e.mu.Unlock()

	if !ok {
		log.Warn().Err(cause).Str("network", networkID).Msg("Fee estimation failed without a previous estimate")
		return nil, errs.Wrap(cause, errs.CodeFeeUnavailable, "Unable to estimate fees")
	}

	log.Warn().Err(cause).Str("network", networkID).Msg("Fee estimation failed, using previous estimate")
	e.metrics.FeeDegraded(networkID)

	est := last.clone()
	est.Degraded = true
	est.Maximum = e.withMargin(est.Maximum)
	if est.Type == TypeLegacy {
		est.GasPrice = e.withMargin(est.GasPrice)
	} else {
		est.MaxFeePerGas = e.withMargin(est.MaxFeePerGas)
	}

	return est, nil
}

func (e *estimator) withMargin(v *big.Int) *big.Int {
	margin := new(big.Int).Mul(v, big.NewInt(e.safetyMargin))
	margin.Quo(margin, big.NewInt(percent))

	return margin.Add(margin, v)
}

func (e *estimator) fetch(ctx context.Context, network *chaindata.EVMNetwork, priority Priority) (*Estimate, error) {
	client, err := e.pool.EVM(ctx, network.ID)
	if err != nil {
		return nil, err
	}

	if network.Legacy {
		return e.fetchLegacy(ctx, client, priority)
	}

	return e.fetchEIP1559(ctx, client, priority)
}

func (e *estimator) fetchLegacy(ctx context.Context, client provider.EVMClient, priority Priority) (*Estimate, error) {
	gasPrice, err := client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get gas price")
	}

	gasPrice.Mul(gasPrice, big.NewInt(legacyScale[priority]))
	gasPrice.Quo(gasPrice, big.NewInt(percent))

	return &Estimate{
		Type:      TypeLegacy,
		GasPrice:  gasPrice,
		Suggested: new(big.Int).Set(gasPrice),
		Maximum:   new(big.Int).Set(gasPrice),
	}, nil
}

func (e *estimator) fetchEIP1559(ctx context.Context, client provider.EVMClient, priority Priority) (*Estimate, error) {
	history, err := client.FeeHistory(ctx, e.historyBlocks, nil, rewardPercentiles)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get fee history")
	}

	if len(history.BaseFee) == 0 {
		return nil, errors.New("network does not report base fees")
	}

	// the last entry is the base fee of the next block
	baseFee := new(big.Int).Set(history.BaseFee[len(history.BaseFee)-1])
	tip := averageReward(history.Reward, priorityColumn(priority))
	if tip.Cmp(e.minTip) < 0 {
		tip.Set(e.minTip)
	}

	maxFee := new(big.Int).Mul(baseFee, big.NewInt(eip1559FeeMultiplier))
	maxFee.Add(maxFee, tip)

	return &Estimate{
		Type:                 TypeEIP1559,
		BaseFee:              baseFee,
		MaxPriorityFeePerGas: tip,
		MaxFeePerGas:         maxFee,
		Suggested:            new(big.Int).Add(baseFee, tip),
		Maximum:              new(big.Int).Set(maxFee),
		BaseFeeTrend:         trend(history.GasUsedRatio),
	}, nil
}

func priorityColumn(p Priority) int {
	switch p {
	case PriorityLow:
		return 0
	case PriorityHigh:
		return 2 //nolint:mnd
	case PriorityMedium, PriorityCustom:
	}

	return 1
}

func averageReward(rewards [][]*big.Int, column int) *big.Int {
	sum := new(big.Int)
	count := int64(0)
	for _, row := range rewards {
		if column < len(row) && row[column] != nil {
			sum.Add(sum, row[column])
			count++
		}
	}

	if count == 0 {
		return sum
	}

	return sum.Quo(sum, big.NewInt(count))
}

func trend(ratios []float64) Trend {
	if len(ratios) == 0 {
		return TrendIdle
	}

	var total float64
	for _, r := range ratios {
		total += r
	}

	avg := total / float64(len(ratios))
	switch {
	case total == 0:
		return TrendIdle
	case avg >= 0.9: //nolint:mnd
		return TrendToTheMoon
	case avg > 0.5: //nolint:mnd
		return TrendIncreasing
	default:
		return TrendDecreasing
	}
}

func fromSettings(custom *GasSettings) (*Estimate, error) {
	if err := custom.Validate(); err != nil {
		return nil, err
	}

	if custom.Type == TypeLegacy {
		return &Estimate{
			Type:      TypeLegacy,
			GasPrice:  new(big.Int).Set(custom.GasPrice),
			Suggested: new(big.Int).Set(custom.GasPrice),
			Maximum:   new(big.Int).Set(custom.GasPrice),
		}, nil
	}

	return &Estimate{
		Type:                 TypeEIP1559,
		MaxPriorityFeePerGas: new(big.Int).Set(custom.MaxPriorityFeePerGas),
		MaxFeePerGas:         new(big.Int).Set(custom.MaxFeePerGas),
		Suggested:            new(big.Int).Set(custom.MaxFeePerGas),
		Maximum:              new(big.Int).Set(custom.MaxFeePerGas),
	}, nil
}
