package usecases

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/FreePeak/ta-mcp-server/internal/domain"
	"github.com/FreePeak/ta-mcp-server/internal/infrastructure/logging"
)

// DefaultBatchTimeout bounds a whole aggregate calculation. Always strictly
// larger than the per-call gateway timeout.
const DefaultBatchTimeout = 10 * time.Second

// IndicatorConfig is one parameter set for one indicator kind within a
// batch. The JSON shape is flat: numeric keys are parameters, plus the
// optional "name" and "enabled" fields.
type IndicatorConfig struct {
	Name    string
	Enabled bool
	Params  domain.Params
}

// UnmarshalJSON decodes the flat config object.
func (c *IndicatorConfig) UnmarshalJSON(b []byte) error {
	var raw map[string]interface{}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	c.Enabled = true
	c.Params = make(domain.Params)
	for k, v := range raw {
		switch k {
		case "name":
			if s, ok := v.(string); ok {
				c.Name = s
			}
		case "enabled":
			if on, ok := v.(bool); ok {
				c.Enabled = on
			}
		default:
			if f, ok := v.(float64); ok {
				c.Params[k] = f
			}
		}
	}
	return nil
}

// ConfigList accepts either a single configuration object or an array of
// them, normalized to a list at the JSON boundary.
type ConfigList []IndicatorConfig

// UnmarshalJSON probes for the array form first, then the single-object
// form.
func (c *ConfigList) UnmarshalJSON(b []byte) error {
	var many []IndicatorConfig
	if err := json.Unmarshal(b, &many); err == nil {
		*c = many
		return nil
	}
	var one IndicatorConfig
	if err := json.Unmarshal(b, &one); err != nil {
		return err
	}
	*c = ConfigList{one}
	return nil
}

// BatchRequest asks for several indicator configurations over one dataset.
type BatchRequest struct {
	Data       domain.Dataset
	Indicators map[domain.Kind]ConfigList
}

// BatchEntry is one item of a batch result: a computed result or an error
// descriptor, never both.
type BatchEntry struct {
	Result *domain.Result `json:"result,omitempty"`
	Error  string         `json:"error,omitempty"`
}

// BatchResult is the merged outcome of one batch. When Truncated is set the
// global timeout elapsed and Indicators holds only the entries settled by
// then.
type BatchResult struct {
	Indicators map[string]BatchEntry `json:"indicators"`
	ElapsedMs  int64                 `json:"elapsed_ms"`
	Truncated  bool                  `json:"truncated,omitempty"`
}

// Orchestrator fans a batch out over the computation gateway, runs all
// submissions concurrently, and merges results under one global timeout
// with per-item error isolation.
type Orchestrator struct {
	gateway *Gateway
	timeout time.Duration
	logger  *logging.Logger
}

// NewOrchestrator creates an Orchestrator. A non-positive timeout falls
// back to DefaultBatchTimeout.
func NewOrchestrator(gateway *Gateway, timeout time.Duration, logger *logging.Logger) *Orchestrator {
	if timeout <= 0 {
		timeout = DefaultBatchTimeout
	}
	return &Orchestrator{gateway: gateway, timeout: timeout, logger: logger}
}

type submission struct {
	name   string
	kind   domain.Kind
	params domain.Params
}

// Run executes the batch. Dataset validation failures fail the whole batch;
// individual computation failures become {error} entries next to their
// successful siblings. Configurations whose dataset is too short are
// skipped, not errored (partial-batch tolerance; callers rely on it).
func (o *Orchestrator) Run(ctx context.Context, req BatchRequest) (*BatchResult, error) {
	start := time.Now()

	if err := validateBatchData(req.Data); err != nil {
		return nil, err
	}

	subs, entries := o.plan(req)

	var mu sync.Mutex
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	for _, sub := range subs {
		sub := sub
		g.Go(func() error {
			result, err := o.gateway.Compute(gctx, sub.kind, req.Data, sub.params)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				entries[sub.name] = BatchEntry{Error: err.Error()}
			} else {
				entries[sub.name] = BatchEntry{Result: result}
			}
			// Item failures never abort siblings.
			return nil
		})
	}

	done := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(done)
	}()

	truncated := false
	select {
	case <-done:
	case <-ctx.Done():
		truncated = true
		o.logger.Warn("batch truncated by global timeout", logging.Fields{
			"timeout":   o.timeout.String(),
			"submitted": len(subs),
		})
	}

	mu.Lock()
	merged := make(map[string]BatchEntry, len(entries))
	for name, entry := range entries {
		merged[name] = entry
	}
	mu.Unlock()

	return &BatchResult{
		Indicators: merged,
		ElapsedMs:  time.Since(start).Milliseconds(),
		Truncated:  truncated,
	}, nil
}

// plan expands the configuration map into concrete submissions. Unknown
// kinds become immediate error entries; disabled configurations and
// configurations with insufficient data produce no entry at all.
func (o *Orchestrator) plan(req BatchRequest) ([]submission, map[string]BatchEntry) {
	kinds := make([]domain.Kind, 0, len(req.Indicators))
	for kind := range req.Indicators {
		kinds = append(kinds, kind)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })

	entries := make(map[string]BatchEntry)
	var subs []submission
	used := make(map[string]int)

	uniqueName := func(name string) string {
		used[name]++
		if used[name] > 1 {
			return fmt.Sprintf("%s_%d", name, used[name])
		}
		return name
	}

	for _, kind := range kinds {
		def, known := domain.Lookup(kind)
		for _, cfg := range req.Indicators[kind] {
			if !cfg.Enabled {
				continue
			}
			name := cfg.Name
			if name == "" {
				name = domain.DeriveName(kind, cfg.Params)
			}
			name = uniqueName(name)

			if !known {
				entries[name] = BatchEntry{Error: fmt.Sprintf("unknown indicator %q", kind)}
				continue
			}

			merged := cfg.Params.Merged(def.Defaults)
			if req.Data.Len() < def.MinPoints(merged) {
				// Too little data for this configuration: skip silently.
				continue
			}
			subs = append(subs, submission{name: name, kind: kind, params: cfg.Params})
		}
	}
	return subs, entries
}

func validateBatchData(data domain.Dataset) error {
	n := data.Len()
	if n < 2 {
		return domain.NewValidationError("data", "at least 2 close points required")
	}
	if len(data.High) != n || len(data.Low) != n {
		return domain.NewValidationError("data", "high, low and close must have equal length")
	}
	if data.Volume != nil && len(data.Volume) != n {
		return domain.NewValidationError("volume", "must match close length when supplied")
	}
	return nil
}
