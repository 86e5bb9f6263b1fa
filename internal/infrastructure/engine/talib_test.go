package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FreePeak/ta-mcp-server/internal/domain"
)

func sequence(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = float64(i + 1)
	}
	return out
}

func TestComputeSMA(t *testing.T) {
	eng := NewTalibEngine()

	result, err := eng.Compute(context.Background(), domain.KindSMA,
		domain.Dataset{Close: sequence(25)}, domain.Params{"period": 5})
	require.NoError(t, err)

	// 25 points, period 5: warm-up trimmed, 21 values remain.
	require.Len(t, result.Values, 21)
	assert.InDelta(t, 3.0, result.Values[0], 1e-9)
	assert.InDelta(t, 23.0, result.Values[20], 1e-9)
	assert.InDelta(t, 23.0, result.Latest, 1e-9)
	assert.Equal(t, domain.KindSMA, result.Kind)
}

func TestComputeEMALength(t *testing.T) {
	eng := NewTalibEngine()

	result, err := eng.Compute(context.Background(), domain.KindEMA,
		domain.Dataset{Close: sequence(30)}, domain.Params{"period": 10})
	require.NoError(t, err)
	assert.Len(t, result.Values, 21)
	assert.Equal(t, result.Values[len(result.Values)-1], result.Latest)
}

func TestComputeBBandsAux(t *testing.T) {
	eng := NewTalibEngine()

	result, err := eng.Compute(context.Background(), domain.KindBBands,
		domain.Dataset{Close: sequence(40)}, domain.Params{"period": 20})
	require.NoError(t, err)

	require.Len(t, result.Values, 21)
	require.Contains(t, result.Aux, "upper")
	require.Contains(t, result.Aux, "lower")
	assert.Len(t, result.Aux["upper"], 21)
	assert.Len(t, result.Aux["lower"], 21)
}

func TestComputeDefaultsApplied(t *testing.T) {
	eng := NewTalibEngine()

	// Default SMA period is 20; 25 points leave 6 values.
	result, err := eng.Compute(context.Background(), domain.KindSMA,
		domain.Dataset{Close: sequence(25)}, nil)
	require.NoError(t, err)
	assert.Len(t, result.Values, 6)
}

func TestComputeInsufficientData(t *testing.T) {
	eng := NewTalibEngine()

	_, err := eng.Compute(context.Background(), domain.KindSMA,
		domain.Dataset{Close: sequence(4)}, domain.Params{"period": 5})
	require.Error(t, err)

	var vErr *domain.ValidationError
	assert.ErrorAs(t, err, &vErr)
}

func TestComputeMissingSeries(t *testing.T) {
	eng := NewTalibEngine()

	// ATR needs high/low.
	_, err := eng.Compute(context.Background(), domain.KindATR,
		domain.Dataset{Close: sequence(30)}, nil)
	require.Error(t, err)

	var vErr *domain.ValidationError
	assert.ErrorAs(t, err, &vErr)

	// MFI needs volume on top of high/low.
	_, err = eng.Compute(context.Background(), domain.KindMFI, domain.Dataset{
		High:  sequence(30),
		Low:   sequence(30),
		Close: sequence(30),
	}, nil)
	assert.Error(t, err)
}

func TestComputeUnknownKind(t *testing.T) {
	eng := NewTalibEngine()

	_, err := eng.Compute(context.Background(), "vwap",
		domain.Dataset{Close: sequence(30)}, nil)
	assert.Error(t, err)
}

func TestComputeResultsAreFresh(t *testing.T) {
	eng := NewTalibEngine()
	data := domain.Dataset{Close: sequence(25)}

	first, err := eng.Compute(context.Background(), domain.KindSMA, data, domain.Params{"period": 5})
	require.NoError(t, err)
	second, err := eng.Compute(context.Background(), domain.KindSMA, data, domain.Params{"period": 5})
	require.NoError(t, err)

	first.Values[0] = -1
	assert.InDelta(t, 3.0, second.Values[0], 1e-9)
}
