package domain

import (
	"fmt"
	"sort"
)

// Kind names one of the supported indicator computations.
type Kind string

// Supported indicator kinds.
const (
	KindSMA    Kind = "sma"
	KindEMA    Kind = "ema"
	KindRSI    Kind = "rsi"
	KindMACD   Kind = "macd"
	KindBBands Kind = "bbands"
	KindATR    Kind = "atr"
	KindStoch  Kind = "stoch"
	KindADX    Kind = "adx"
	KindCCI    Kind = "cci"
	KindWillR  Kind = "willr"
	KindMom    Kind = "mom"
	KindOBV    Kind = "obv"
	KindMFI    Kind = "mfi"
)

// Params holds the numeric parameters of one indicator configuration
// (periods, multipliers). Missing keys fall back to the kind's defaults.
type Params map[string]float64

// IntOr returns the parameter as an int, or def when absent.
func (p Params) IntOr(key string, def int) int {
	if v, ok := p[key]; ok {
		return int(v)
	}
	return def
}

// FloatOr returns the parameter as a float, or def when absent.
func (p Params) FloatOr(key string, def float64) float64 {
	if v, ok := p[key]; ok {
		return v
	}
	return def
}

// Merged returns a copy of the defaults overlaid with p.
func (p Params) Merged(defaults Params) Params {
	out := make(Params, len(defaults)+len(p))
	for k, v := range defaults {
		out[k] = v
	}
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Dataset carries the input price series for a computation. Close is always
// required; High/Low and Volume are required only by some kinds.
type Dataset struct {
	High   []float64 `json:"high,omitempty"`
	Low    []float64 `json:"low,omitempty"`
	Close  []float64 `json:"close"`
	Volume []float64 `json:"volume,omitempty"`
}

// Len returns the number of data points in the dataset.
func (d Dataset) Len() int {
	return len(d.Close)
}

// Result is the outcome of one indicator computation. Values is trimmed of
// the engine's warm-up prefix; Latest equals the last element of Values.
// Aux carries secondary output lines (signal, histogram, bands) keyed by name.
type Result struct {
	Kind   Kind                 `json:"kind"`
	Values []float64            `json:"values"`
	Latest float64              `json:"latest"`
	Aux    map[string][]float64 `json:"aux,omitempty"`
}

// Definition describes the static shape of one indicator kind: its default
// parameters, required input series, and minimum data requirement.
type Definition struct {
	Kind         Kind
	Description  string
	Defaults     Params
	PrimaryParam string
	NeedsHighLow bool
	NeedsVolume  bool
	MinPoints    func(p Params) int
}

var definitions = map[Kind]Definition{
	KindSMA: {
		Kind:         KindSMA,
		Description:  "Simple moving average over close prices",
		Defaults:     Params{"period": 20},
		PrimaryParam: "period",
		MinPoints:    func(p Params) int { return p.IntOr("period", 20) },
	},
	KindEMA: {
		Kind:         KindEMA,
		Description:  "Exponential moving average over close prices",
		Defaults:     Params{"period": 20},
		PrimaryParam: "period",
		MinPoints:    func(p Params) int { return p.IntOr("period", 20) },
	},
	KindRSI: {
		Kind:         KindRSI,
		Description:  "Relative strength index",
		Defaults:     Params{"period": 14},
		PrimaryParam: "period",
		MinPoints:    func(p Params) int { return p.IntOr("period", 14) + 1 },
	},
	KindMACD: {
		Kind:         KindMACD,
		Description:  "Moving average convergence/divergence",
		Defaults:     Params{"fastPeriod": 12, "slowPeriod": 26, "signalPeriod": 9},
		PrimaryParam: "fastPeriod",
		MinPoints: func(p Params) int {
			return p.IntOr("slowPeriod", 26) + p.IntOr("signalPeriod", 9)
		},
	},
	KindBBands: {
		Kind:         KindBBands,
		Description:  "Bollinger bands",
		Defaults:     Params{"period": 20, "stdDev": 2},
		PrimaryParam: "period",
		MinPoints:    func(p Params) int { return p.IntOr("period", 20) },
	},
	KindATR: {
		Kind:         KindATR,
		Description:  "Average true range",
		Defaults:     Params{"period": 14},
		PrimaryParam: "period",
		NeedsHighLow: true,
		MinPoints:    func(p Params) int { return p.IntOr("period", 14) + 1 },
	},
	KindStoch: {
		Kind:         KindStoch,
		Description:  "Stochastic oscillator",
		Defaults:     Params{"fastKPeriod": 14, "slowKPeriod": 3, "slowDPeriod": 3},
		PrimaryParam: "fastKPeriod",
		NeedsHighLow: true,
		MinPoints: func(p Params) int {
			return p.IntOr("fastKPeriod", 14) + p.IntOr("slowKPeriod", 3) + p.IntOr("slowDPeriod", 3)
		},
	},
	KindADX: {
		Kind:         KindADX,
		Description:  "Average directional index",
		Defaults:     Params{"period": 14},
		PrimaryParam: "period",
		NeedsHighLow: true,
		MinPoints:    func(p Params) int { return 2 * p.IntOr("period", 14) },
	},
	KindCCI: {
		Kind:         KindCCI,
		Description:  "Commodity channel index",
		Defaults:     Params{"period": 20},
		PrimaryParam: "period",
		NeedsHighLow: true,
		MinPoints:    func(p Params) int { return p.IntOr("period", 20) },
	},
	KindWillR: {
		Kind:         KindWillR,
		Description:  "Williams %R",
		Defaults:     Params{"period": 14},
		PrimaryParam: "period",
		NeedsHighLow: true,
		MinPoints:    func(p Params) int { return p.IntOr("period", 14) },
	},
	KindMom: {
		Kind:         KindMom,
		Description:  "Momentum",
		Defaults:     Params{"period": 10},
		PrimaryParam: "period",
		MinPoints:    func(p Params) int { return p.IntOr("period", 10) + 1 },
	},
	KindOBV: {
		Kind:        KindOBV,
		Description: "On-balance volume",
		Defaults:    Params{},
		NeedsVolume: true,
		MinPoints:   func(Params) int { return 2 },
	},
	KindMFI: {
		Kind:         KindMFI,
		Description:  "Money flow index",
		Defaults:     Params{"period": 14},
		PrimaryParam: "period",
		NeedsHighLow: true,
		NeedsVolume:  true,
		MinPoints:    func(p Params) int { return p.IntOr("period", 14) + 1 },
	},
}

// Lookup returns the definition for a kind.
func Lookup(kind Kind) (Definition, bool) {
	def, ok := definitions[kind]
	return def, ok
}

// Kinds returns all supported kinds in stable (sorted) order.
func Kinds() []Kind {
	kinds := make([]Kind, 0, len(definitions))
	for k := range definitions {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// DeriveName builds the deterministic result key for a configuration:
// the kind plus its primary period, e.g. "rsi_14". Kinds without a primary
// parameter (obv) use the bare kind name.
func DeriveName(kind Kind, params Params) string {
	def, ok := definitions[kind]
	if !ok || def.PrimaryParam == "" {
		return string(kind)
	}
	merged := params.Merged(def.Defaults)
	return fmt.Sprintf("%s_%d", kind, merged.IntOr(def.PrimaryParam, 0))
}
