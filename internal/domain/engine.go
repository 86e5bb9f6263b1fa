package domain

import "context"

// Engine is the external numeric library computing indicator values.
// Implementations are treated as black boxes: they may block, they may be
// slow, and they are never trusted to honor ctx themselves. Callers bound
// them with the computation gateway.
type Engine interface {
	Compute(ctx context.Context, kind Kind, data Dataset, params Params) (*Result, error)
}
