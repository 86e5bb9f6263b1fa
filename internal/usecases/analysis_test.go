package usecases

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FreePeak/ta-mcp-server/internal/domain"
	"github.com/FreePeak/ta-mcp-server/internal/infrastructure/logging"
)

func newService(eng domain.Engine) *AnalysisService {
	gw := NewGateway(eng, time.Second, logging.NewNop())
	return NewAnalysisService(gw, NewOrchestrator(gw, 5*time.Second, logging.NewNop()))
}

func TestCalculateDelegatesToGateway(t *testing.T) {
	svc := newService(instantEngine(3.5))

	result, err := svc.Calculate(context.Background(), domain.KindSMA,
		domain.Dataset{Close: batchDataset(25).Close}, domain.Params{"period": 5})
	require.NoError(t, err)
	assert.Equal(t, 3.5, result.Latest)
}

func TestCalculateRejectsUnknownKind(t *testing.T) {
	svc := newService(instantEngine(1))

	_, err := svc.Calculate(context.Background(), "vwap", domain.Dataset{Close: []float64{1, 2, 3}}, nil)
	var vErr *domain.ValidationError
	assert.ErrorAs(t, err, &vErr)
}

func TestCalculateRejectsShortData(t *testing.T) {
	svc := newService(instantEngine(1))

	// Single calls error on short data instead of skipping.
	_, err := svc.Calculate(context.Background(), domain.KindSMA,
		domain.Dataset{Close: []float64{1, 2, 3}}, domain.Params{"period": 5})
	var vErr *domain.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Contains(t, err.Error(), "at least 5 points")
}

func TestCalculateRejectsMissingSeries(t *testing.T) {
	svc := newService(instantEngine(1))
	closes := batchDataset(30).Close

	_, err := svc.Calculate(context.Background(), domain.KindStoch, domain.Dataset{Close: closes}, nil)
	assert.Error(t, err)

	_, err = svc.Calculate(context.Background(), domain.KindOBV, domain.Dataset{Close: closes}, nil)
	assert.Error(t, err)
}

func TestCalculateRejectsUnequalLengths(t *testing.T) {
	svc := newService(instantEngine(1))

	_, err := svc.Calculate(context.Background(), domain.KindSMA, domain.Dataset{
		Close: []float64{1, 2, 3, 4, 5, 6},
		High:  []float64{1, 2},
	}, domain.Params{"period": 5})
	var vErr *domain.ValidationError
	assert.ErrorAs(t, err, &vErr)
}
