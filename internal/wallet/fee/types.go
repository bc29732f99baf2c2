package fee

import (
	"context"
	"math/big"

	"github/chapool/wallet-broker/internal/wallet/errs"
)

// Priority selects how aggressively a transaction should bid for inclusion.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	// PriorityCustom bypasses estimation and uses caller supplied fee fields.
	PriorityCustom Priority = "custom"
)

type Type string

const (
	TypeEIP1559 Type = "eip1559"
	TypeLegacy  Type = "legacy"
)

// Trend summarises gas usage over the sampled blocks.
type Trend string

const (
	TrendIdle       Trend = "idle"
	TrendDecreasing Trend = "decreasing"
	TrendIncreasing Trend = "increasing"
	TrendToTheMoon  Trend = "toTheMoon"
)

// Estimator computes fee settings for EVM networks.
type Estimator interface {
	Estimate(ctx context.Context, networkID string, priority Priority, custom *GasSettings) (*Estimate, error)
}

// Estimate holds per gas unit fees. Suggested is the expected price, Maximum the highest price the
// transaction may pay.
type Estimate struct {
	Type                 Type     `json:"type"`
	BaseFee              *big.Int `json:"baseFee,omitempty"`
	MaxPriorityFeePerGas *big.Int `json:"maxPriorityFeePerGas,omitempty"`
	MaxFeePerGas         *big.Int `json:"maxFeePerGas,omitempty"`
	GasPrice             *big.Int `json:"gasPrice,omitempty"`
	Suggested            *big.Int `json:"suggested"`
	Maximum              *big.Int `json:"maximum"`
	BaseFeeTrend         Trend    `json:"baseFeeTrend,omitempty"`
	Degraded             bool     `json:"degraded,omitempty"`
}

// GasSettings is the fee part of an EVM transaction as exchanged with callers.
type GasSettings struct {
	Type                 Type     `json:"type"`
	Gas                  uint64   `json:"gas,omitempty"`
	GasPrice             *big.Int `json:"gasPrice,omitempty"`
	MaxFeePerGas         *big.Int `json:"maxFeePerGas,omitempty"`
	MaxPriorityFeePerGas *big.Int `json:"maxPriorityFeePerGas,omitempty"`
}

func (g *GasSettings) Validate() error {
	if g == nil {
		return errs.InvalidPayload("custom priority requires gas settings")
	}

	switch g.Type {
	case TypeLegacy:
		if g.GasPrice == nil || g.GasPrice.Sign() <= 0 {
			return errs.InvalidPayload("legacy gas settings require a positive gasPrice")
		}
	case TypeEIP1559:
		if g.MaxFeePerGas == nil || g.MaxPriorityFeePerGas == nil {
			return errs.InvalidPayload("eip1559 gas settings require maxFeePerGas and maxPriorityFeePerGas")
		}
		if g.MaxFeePerGas.Sign() <= 0 || g.MaxPriorityFeePerGas.Sign() <= 0 {
			return errs.InvalidPayload("eip1559 gas settings must be positive")
		}
		if g.MaxPriorityFeePerGas.Cmp(g.MaxFeePerGas) > 0 {
			return errs.InvalidPayload("maxPriorityFeePerGas exceeds maxFeePerGas")
		}
	default:
		return errs.InvalidPayload("unknown gas settings type %q", g.Type)
	}

	return nil
}

// Settings turns the estimate into transaction fee fields for gas units of gas.
func (e *Estimate) Settings(gas uint64) *GasSettings {
	s := &GasSettings{Type: e.Type, Gas: gas}
	if e.Type == TypeLegacy {
		s.GasPrice = new(big.Int).Set(e.GasPrice)
	} else {
		s.MaxFeePerGas = new(big.Int).Set(e.MaxFeePerGas)
		s.MaxPriorityFeePerGas = new(big.Int).Set(e.MaxPriorityFeePerGas)
	}

	return s
}

// Total returns the suggested and maximum cost of gas units.
func (e *Estimate) Total(gas uint64) (*big.Int, *big.Int) {
	g := new(big.Int).SetUint64(gas)

	return new(big.Int).Mul(e.Suggested, g), new(big.Int).Mul(e.Maximum, g)
}

func (e *Estimate) clone() *Estimate {
	c := *e
	for _, f := range []**big.Int{&c.BaseFee, &c.MaxPriorityFeePerGas, &c.MaxFeePerGas, &c.GasPrice, &c.Suggested, &c.Maximum} {
		if *f != nil {
			*f = new(big.Int).Set(*f)
		}
	}

	return &c
}
