// Package engine adapts the go-talib numeric library to the domain.Engine
// contract.
package engine

import (
	"context"
	"fmt"

	talib "github.com/markcheno/go-talib"
	"github.com/pkg/errors"

	"github.com/FreePeak/ta-mcp-server/internal/domain"
)

// TalibEngine computes indicators with github.com/markcheno/go-talib.
// talib returns arrays of input length with a zeroed warm-up prefix; the
// adapter trims that prefix so Values starts at the first meaningful point.
type TalibEngine struct{}

// NewTalibEngine creates a TalibEngine.
func NewTalibEngine() *TalibEngine {
	return &TalibEngine{}
}

// Compute runs one indicator computation. The call is synchronous and does
// not observe ctx; callers bound it through the computation gateway.
func (e *TalibEngine) Compute(_ context.Context, kind domain.Kind, data domain.Dataset, params domain.Params) (result *domain.Result, err error) {
	def, ok := domain.Lookup(kind)
	if !ok {
		return nil, domain.NewValidationError("kind", fmt.Sprintf("unknown indicator %q", kind))
	}
	merged := params.Merged(def.Defaults)

	if err := checkInput(def, data, merged); err != nil {
		return nil, err
	}

	// talib panics on degenerate parameter combinations instead of
	// returning errors. Surface those as values.
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = domain.NewComputationError(kind, errors.Errorf("engine fault: %v", r))
		}
	}()

	switch kind {
	case domain.KindSMA:
		period := merged.IntOr("period", 20)
		return newResult(kind, trim(talib.Sma(data.Close, period), period-1)), nil

	case domain.KindEMA:
		period := merged.IntOr("period", 20)
		return newResult(kind, trim(talib.Ema(data.Close, period), period-1)), nil

	case domain.KindRSI:
		period := merged.IntOr("period", 14)
		return newResult(kind, trim(talib.Rsi(data.Close, period), period)), nil

	case domain.KindMACD:
		fast := merged.IntOr("fastPeriod", 12)
		slow := merged.IntOr("slowPeriod", 26)
		signal := merged.IntOr("signalPeriod", 9)
		macd, sig, hist := talib.Macd(data.Close, fast, slow, signal)
		lookback := slow + signal - 2
		res := newResult(kind, trim(macd, lookback))
		res.Aux = map[string][]float64{
			"signal":    trim(sig, lookback),
			"histogram": trim(hist, lookback),
		}
		return res, nil

	case domain.KindBBands:
		period := merged.IntOr("period", 20)
		dev := merged.FloatOr("stdDev", 2)
		upper, middle, lower := talib.BBands(data.Close, period, dev, dev, talib.SMA)
		res := newResult(kind, trim(middle, period-1))
		res.Aux = map[string][]float64{
			"upper": trim(upper, period-1),
			"lower": trim(lower, period-1),
		}
		return res, nil

	case domain.KindATR:
		period := merged.IntOr("period", 14)
		return newResult(kind, trim(talib.Atr(data.High, data.Low, data.Close, period), period)), nil

	case domain.KindStoch:
		fastK := merged.IntOr("fastKPeriod", 14)
		slowK := merged.IntOr("slowKPeriod", 3)
		slowD := merged.IntOr("slowDPeriod", 3)
		k, d := talib.Stoch(data.High, data.Low, data.Close, fastK, slowK, talib.SMA, slowD, talib.SMA)
		lookback := fastK + slowK + slowD - 3
		res := newResult(kind, trim(k, lookback))
		res.Aux = map[string][]float64{"d": trim(d, lookback)}
		return res, nil

	case domain.KindADX:
		period := merged.IntOr("period", 14)
		return newResult(kind, trim(talib.Adx(data.High, data.Low, data.Close, period), 2*period-1)), nil

	case domain.KindCCI:
		period := merged.IntOr("period", 20)
		return newResult(kind, trim(talib.Cci(data.High, data.Low, data.Close, period), period-1)), nil

	case domain.KindWillR:
		period := merged.IntOr("period", 14)
		return newResult(kind, trim(talib.WillR(data.High, data.Low, data.Close, period), period-1)), nil

	case domain.KindMom:
		period := merged.IntOr("period", 10)
		return newResult(kind, trim(talib.Mom(data.Close, period), period)), nil

	case domain.KindOBV:
		return newResult(kind, trim(talib.Obv(data.Close, data.Volume), 0)), nil

	case domain.KindMFI:
		period := merged.IntOr("period", 14)
		return newResult(kind, trim(talib.Mfi(data.High, data.Low, data.Close, data.Volume, period), period)), nil

	default:
		return nil, domain.NewValidationError("kind", fmt.Sprintf("unknown indicator %q", kind))
	}
}

func checkInput(def domain.Definition, data domain.Dataset, params domain.Params) error {
	n := data.Len()
	if n == 0 {
		return domain.NewValidationError("close", "required series missing")
	}
	if def.NeedsHighLow {
		if len(data.High) != n || len(data.Low) != n {
			return domain.NewValidationError("high/low", "required series missing or length mismatch")
		}
	}
	if def.NeedsVolume && len(data.Volume) != n {
		return domain.NewValidationError("volume", "required series missing or length mismatch")
	}
	if min := def.MinPoints(params); n < min {
		return domain.NewValidationError("close",
			fmt.Sprintf("%s needs at least %d points, got %d", def.Kind, min, n))
	}
	return nil
}

// newResult copies nothing further; trim already allocated fresh slices, so
// results returned to callers are never aliased by later engine work.
func newResult(kind domain.Kind, values []float64) *domain.Result {
	res := &domain.Result{Kind: kind, Values: values}
	if len(values) > 0 {
		res.Latest = values[len(values)-1]
	}
	return res
}

func trim(values []float64, lookback int) []float64 {
	if lookback < 0 {
		lookback = 0
	}
	if lookback > len(values) {
		lookback = len(values)
	}
	out := make([]float64, len(values)-lookback)
	copy(out, values[lookback:])
	return out
}
