package usecases

import (
	"context"
	"fmt"

	"github.com/FreePeak/ta-mcp-server/internal/domain"
)

// AnalysisService is the handler-facing surface for indicator computations:
// it validates inputs, then delegates to the gateway or the orchestrator.
// Validation failures are always returned as values; nothing escapes to the
// transport.
type AnalysisService struct {
	gateway      *Gateway
	orchestrator *Orchestrator
}

// NewAnalysisService creates an AnalysisService.
func NewAnalysisService(gateway *Gateway, orchestrator *Orchestrator) *AnalysisService {
	return &AnalysisService{gateway: gateway, orchestrator: orchestrator}
}

// Calculate runs one indicator computation. Unlike batch planning, a
// too-short dataset here is an error, not a skip: the caller asked for
// exactly this configuration.
func (s *AnalysisService) Calculate(ctx context.Context, kind domain.Kind, data domain.Dataset, params domain.Params) (*domain.Result, error) {
	def, ok := domain.Lookup(kind)
	if !ok {
		return nil, domain.NewValidationError("kind", fmt.Sprintf("unknown indicator %q", kind))
	}
	if err := validateSeries(def, data); err != nil {
		return nil, err
	}
	merged := params.Merged(def.Defaults)
	if min := def.MinPoints(merged); data.Len() < min {
		return nil, domain.NewValidationError("data",
			fmt.Sprintf("%s needs at least %d points, got %d", kind, min, data.Len()))
	}
	return s.gateway.Compute(ctx, kind, data, params)
}

// CalculateBatch runs a batch of configurations over one dataset.
func (s *AnalysisService) CalculateBatch(ctx context.Context, req BatchRequest) (*BatchResult, error) {
	return s.orchestrator.Run(ctx, req)
}

func validateSeries(def domain.Definition, data domain.Dataset) error {
	n := data.Len()
	if n == 0 {
		return domain.NewValidationError("close", "required series missing")
	}
	for _, series := range []struct {
		name   string
		values []float64
	}{
		{"high", data.High},
		{"low", data.Low},
		{"volume", data.Volume},
	} {
		if series.values != nil && len(series.values) != n {
			return domain.NewValidationError(series.name, "length differs from close")
		}
	}
	if def.NeedsHighLow && (data.High == nil || data.Low == nil) {
		return domain.NewValidationError("data", fmt.Sprintf("%s requires high and low series", def.Kind))
	}
	if def.NeedsVolume && data.Volume == nil {
		return domain.NewValidationError("volume", fmt.Sprintf("%s requires a volume series", def.Kind))
	}
	return nil
}
