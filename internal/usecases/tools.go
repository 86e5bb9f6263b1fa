package usecases

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/FreePeak/ta-mcp-server/internal/domain"
	"github.com/FreePeak/ta-mcp-server/internal/domain/shared"
	"github.com/FreePeak/ta-mcp-server/internal/infrastructure/logging"
)

// DefaultToolTimeout bounds one tool execution end to end, batch fan-out
// included.
const DefaultToolTimeout = 30 * time.Second

// BatchToolName is the tool computing several indicators in one call.
const BatchToolName = "calculate_batch"

// ListToolName enumerates the supported indicator kinds.
const ListToolName = "list_indicators"

// ToolResult is the structured payload a tool returns. IsError marks a
// handled failure (validation, computation, unknown tool); it is a valid
// protocol response, never a transport fault.
type ToolResult struct {
	Content interface{} `json:"content"`
	IsError bool        `json:"isError,omitempty"`
}

// ToolHandler executes one tool against a plain argument bag. Returned
// errors become structured error results at the registry boundary.
type ToolHandler func(ctx context.Context, args map[string]interface{}) (*ToolResult, error)

type registeredTool struct {
	def     shared.Tool
	handler ToolHandler
}

// ToolRegistry maps tool names to handlers and guards the dispatch
// boundary: unknown tools, handler errors, and handler panics all come back
// as structured error results so the session stays usable.
type ToolRegistry struct {
	service *AnalysisService
	logger  *logging.Logger
	timeout time.Duration
	tools   map[string]registeredTool
	order   []string
}

// NewToolRegistry builds the registry with one calculate_<kind> tool per
// supported indicator, the batch tool, and the listing tool.
func NewToolRegistry(service *AnalysisService, timeout time.Duration, logger *logging.Logger) *ToolRegistry {
	if timeout <= 0 {
		timeout = DefaultToolTimeout
	}
	r := &ToolRegistry{
		service: service,
		logger:  logger,
		timeout: timeout,
		tools:   make(map[string]registeredTool),
	}

	for _, kind := range domain.Kinds() {
		def, _ := domain.Lookup(kind)
		r.Register(shared.Tool{
			Name:        ToolName(kind),
			Description: def.Description,
			InputSchema: indicatorSchema(def),
		}, r.calculateHandler(kind))
	}

	r.Register(shared.Tool{
		Name:        BatchToolName,
		Description: "Compute several indicator configurations over one dataset",
		InputSchema: batchSchema(),
	}, r.batchHandler)

	r.Register(shared.Tool{
		Name:        ListToolName,
		Description: "List the supported indicator kinds and their defaults",
	}, r.listHandler)

	return r
}

// ToolName returns the tool name for an indicator kind.
func ToolName(kind domain.Kind) string {
	return "calculate_" + string(kind)
}

// List returns the tool definitions in registration order.
func (r *ToolRegistry) List() []shared.Tool {
	out := make([]shared.Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name].def)
	}
	return out
}

// Call dispatches one tool invocation. It never returns nil and never
// panics: faults inside handlers are converted to error results here so the
// transport and session stay usable.
func (r *ToolRegistry) Call(ctx context.Context, name string, args map[string]interface{}) (result *ToolResult) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("tool handler panic", logging.Fields{
				"tool":  name,
				"panic": fmt.Sprintf("%v", rec),
			})
			result = errorResult(fmt.Sprintf("internal error executing %s", name))
		}
	}()

	tool, ok := r.tools[name]
	if !ok {
		return errorResult(domain.NewToolNotFoundError(name).Error())
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	res, err := tool.handler(ctx, args)
	if err != nil {
		return errorResult(err.Error())
	}
	return res
}

// Register adds a tool to the registry. Later registrations under the same
// name replace earlier ones.
func (r *ToolRegistry) Register(def shared.Tool, handler ToolHandler) {
	if _, exists := r.tools[def.Name]; !exists {
		r.order = append(r.order, def.Name)
	}
	r.tools[def.Name] = registeredTool{def: def, handler: handler}
}

func (r *ToolRegistry) calculateHandler(kind domain.Kind) ToolHandler {
	return func(ctx context.Context, args map[string]interface{}) (*ToolResult, error) {
		data, params, err := decodeArgs(args)
		if err != nil {
			return nil, err
		}
		result, err := r.service.Calculate(ctx, kind, data, params)
		if err != nil {
			return nil, err
		}
		return &ToolResult{Content: result}, nil
	}
}

func (r *ToolRegistry) batchHandler(ctx context.Context, args map[string]interface{}) (*ToolResult, error) {
	data, _, err := decodeArgs(args)
	if err != nil {
		return nil, err
	}

	rawIndicators, ok := args["indicators"]
	if !ok {
		return nil, domain.NewValidationError("indicators", "required")
	}
	encoded, err := json.Marshal(rawIndicators)
	if err != nil {
		return nil, domain.NewValidationError("indicators", "not an object")
	}
	var indicators map[domain.Kind]ConfigList
	if err := json.Unmarshal(encoded, &indicators); err != nil {
		return nil, domain.NewValidationError("indicators", err.Error())
	}

	result, err := r.service.CalculateBatch(ctx, BatchRequest{Data: data, Indicators: indicators})
	if err != nil {
		return nil, err
	}
	return &ToolResult{Content: result}, nil
}

func (r *ToolRegistry) listHandler(_ context.Context, _ map[string]interface{}) (*ToolResult, error) {
	type entry struct {
		Kind        domain.Kind   `json:"kind"`
		Description string        `json:"description"`
		Defaults    domain.Params `json:"defaults"`
	}
	out := make([]entry, 0)
	for _, kind := range domain.Kinds() {
		def, _ := domain.Lookup(kind)
		out = append(out, entry{Kind: kind, Description: def.Description, Defaults: def.Defaults})
	}
	return &ToolResult{Content: out}, nil
}

func errorResult(message string) *ToolResult {
	return &ToolResult{
		Content: map[string]string{"error": message},
		IsError: true,
	}
}

// decodeArgs splits a flat argument bag into the price series and the
// numeric parameters. Series elements must all be numeric.
func decodeArgs(args map[string]interface{}) (domain.Dataset, domain.Params, error) {
	var data domain.Dataset
	params := make(domain.Params)

	for key, value := range args {
		switch key {
		case "high", "low", "close", "volume":
			series, err := toSeries(key, value)
			if err != nil {
				return data, nil, err
			}
			switch key {
			case "high":
				data.High = series
			case "low":
				data.Low = series
			case "close":
				data.Close = series
			case "volume":
				data.Volume = series
			}
		case "indicators", "name":
			// Consumed elsewhere.
		default:
			if f, ok := value.(float64); ok {
				params[key] = f
			}
		}
	}
	return data, params, nil
}

func toSeries(name string, value interface{}) ([]float64, error) {
	raw, ok := value.([]interface{})
	if !ok {
		return nil, domain.NewValidationError(name, "must be an array of numbers")
	}
	out := make([]float64, len(raw))
	for i, v := range raw {
		f, ok := v.(float64)
		if !ok {
			return nil, domain.NewValidationError(name, fmt.Sprintf("non-numeric value at index %d", i))
		}
		out[i] = f
	}
	return out, nil
}

func indicatorSchema(def domain.Definition) map[string]interface{} {
	properties := map[string]interface{}{
		"close": map[string]interface{}{"type": "array", "items": map[string]string{"type": "number"}},
	}
	required := []string{"close"}
	if def.NeedsHighLow {
		properties["high"] = map[string]interface{}{"type": "array", "items": map[string]string{"type": "number"}}
		properties["low"] = map[string]interface{}{"type": "array", "items": map[string]string{"type": "number"}}
		required = append(required, "high", "low")
	}
	if def.NeedsVolume {
		properties["volume"] = map[string]interface{}{"type": "array", "items": map[string]string{"type": "number"}}
		required = append(required, "volume")
	}
	for param := range def.Defaults {
		properties[param] = map[string]interface{}{"type": "number"}
	}
	return map[string]interface{}{
		"type":       "object",
		"properties": properties,
		"required":   required,
	}
}

func batchSchema() map[string]interface{} {
	series := map[string]interface{}{"type": "array", "items": map[string]string{"type": "number"}}
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"high":       series,
			"low":        series,
			"close":      series,
			"volume":     series,
			"indicators": map[string]interface{}{"type": "object"},
		},
		"required": []string{"high", "low", "close", "indicators"},
	}
}
