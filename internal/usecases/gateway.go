// Package usecases implements the application business logic for the
// technical-analysis server: timeout-isolated computation, batch
// orchestration, and the tool layer.
package usecases

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/FreePeak/ta-mcp-server/internal/domain"
	"github.com/FreePeak/ta-mcp-server/internal/infrastructure/logging"
)

// DefaultComputeTimeout bounds a single engine call. It is deliberately
// shorter than the batch and tool budgets so one slow computation never
// starves request serving.
const DefaultComputeTimeout = 1 * time.Second

// Gateway executes one indicator computation against the engine, bounded by
// a hard timeout. Failures and deadline hits come back as values; the engine
// call itself runs on its own goroutine so it can never block the caller.
type Gateway struct {
	engine  domain.Engine
	timeout time.Duration
	logger  *logging.Logger
}

// NewGateway creates a Gateway. A non-positive timeout falls back to
// DefaultComputeTimeout.
func NewGateway(engine domain.Engine, timeout time.Duration, logger *logging.Logger) *Gateway {
	if timeout <= 0 {
		timeout = DefaultComputeTimeout
	}
	return &Gateway{engine: engine, timeout: timeout, logger: logger}
}

type settled struct {
	result *domain.Result
	err    error
}

// Compute runs the computation. On timeout the in-flight engine call is
// abandoned, not cancelled: it may still run to completion internally, but
// its result is discarded. The settle channel is buffered so an abandoned
// call settles without a receiver and cannot touch anything already
// returned.
func (g *Gateway) Compute(ctx context.Context, kind domain.Kind, data domain.Dataset, params domain.Params) (*domain.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	ch := make(chan settled, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- settled{err: domain.NewComputationError(kind, errors.Errorf("engine panic: %v", r))}
			}
		}()
		result, err := g.engine.Compute(ctx, kind, data, params)
		ch <- settled{result: result, err: err}
	}()

	select {
	case s := <-ch:
		return s.result, s.err
	case <-ctx.Done():
		g.logger.Warn("computation abandoned", logging.Fields{
			"kind":    string(kind),
			"timeout": g.timeout.String(),
		})
		return nil, domain.NewComputationError(kind, errors.Wrap(ctx.Err(), "computation timed out"))
	}
}
