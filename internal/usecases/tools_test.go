package usecases

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FreePeak/ta-mcp-server/internal/domain"
	"github.com/FreePeak/ta-mcp-server/internal/domain/shared"
	"github.com/FreePeak/ta-mcp-server/internal/infrastructure/logging"
)

func newRegistry(eng domain.Engine) *ToolRegistry {
	return NewToolRegistry(newService(eng), 5*time.Second, logging.NewNop())
}

func seriesArg(values ...float64) []interface{} {
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

func closeArg(n int) []interface{} {
	out := make([]interface{}, n)
	for i := range out {
		out[i] = float64(i + 1)
	}
	return out
}

func TestToolRegistryList(t *testing.T) {
	reg := newRegistry(instantEngine(1))
	tools := reg.List()

	// One tool per indicator kind plus batch and listing.
	require.Len(t, tools, len(domain.Kinds())+2)

	names := make(map[string]bool, len(tools))
	for _, tool := range tools {
		names[tool.Name] = true
	}
	assert.True(t, names["calculate_sma"])
	assert.True(t, names["calculate_rsi"])
	assert.True(t, names[BatchToolName])
	assert.True(t, names[ListToolName])
}

func TestCallUnknownTool(t *testing.T) {
	reg := newRegistry(instantEngine(1))

	result := reg.Call(context.Background(), "calculate_vwap", nil)
	require.NotNil(t, result)
	assert.True(t, result.IsError)
	assert.Contains(t, result.Content.(map[string]string)["error"], "tool not found")
}

func TestCallCalculateTool(t *testing.T) {
	reg := newRegistry(instantEngine(9.5))

	result := reg.Call(context.Background(), "calculate_sma", map[string]interface{}{
		"close":  closeArg(25),
		"period": float64(5),
	})
	require.NotNil(t, result)
	require.False(t, result.IsError)

	computed, ok := result.Content.(*domain.Result)
	require.True(t, ok)
	assert.Equal(t, 9.5, computed.Latest)
}

func TestCallValidationBecomesErrorResult(t *testing.T) {
	reg := newRegistry(instantEngine(1))

	// Non-numeric series element.
	result := reg.Call(context.Background(), "calculate_sma", map[string]interface{}{
		"close": []interface{}{1.0, "two", 3.0},
	})
	require.True(t, result.IsError)
	assert.Contains(t, result.Content.(map[string]string)["error"], "non-numeric")

	// Too little data.
	result = reg.Call(context.Background(), "calculate_sma", map[string]interface{}{
		"close":  closeArg(3),
		"period": float64(5),
	})
	assert.True(t, result.IsError)
}

func TestCallBatchTool(t *testing.T) {
	reg := newRegistry(instantEngine(2))
	data := batchDataset(50)

	result := reg.Call(context.Background(), BatchToolName, map[string]interface{}{
		"high":  seriesArg(data.High...),
		"low":   seriesArg(data.Low...),
		"close": seriesArg(data.Close...),
		"indicators": map[string]interface{}{
			"rsi": []interface{}{
				map[string]interface{}{"period": float64(14)},
				map[string]interface{}{"period": float64(21)},
			},
			"sma": map[string]interface{}{"period": float64(20)},
		},
	})
	require.NotNil(t, result)
	require.False(t, result.IsError)

	batch, ok := result.Content.(*BatchResult)
	require.True(t, ok)
	assert.Len(t, batch.Indicators, 3)
}

func TestCallBatchToolMismatchedLengths(t *testing.T) {
	reg := newRegistry(instantEngine(1))

	result := reg.Call(context.Background(), BatchToolName, map[string]interface{}{
		"high":  closeArg(10),
		"low":   closeArg(9),
		"close": closeArg(10),
		"indicators": map[string]interface{}{
			"sma": map[string]interface{}{"period": float64(5)},
		},
	})
	require.True(t, result.IsError)
	assert.Contains(t, result.Content.(map[string]string)["error"], "equal length")
}

func TestCallBatchToolRequiresIndicators(t *testing.T) {
	reg := newRegistry(instantEngine(1))

	result := reg.Call(context.Background(), BatchToolName, map[string]interface{}{
		"high":  closeArg(10),
		"low":   closeArg(10),
		"close": closeArg(10),
	})
	assert.True(t, result.IsError)
}

func TestCallRecoversHandlerPanic(t *testing.T) {
	reg := newRegistry(instantEngine(1))
	reg.Register(shared.Tool{Name: "explode"}, func(context.Context, map[string]interface{}) (*ToolResult, error) {
		panic("handler bug")
	})

	result := reg.Call(context.Background(), "explode", nil)
	require.NotNil(t, result)
	assert.True(t, result.IsError)

	// The registry is still usable afterwards.
	ok := reg.Call(context.Background(), ListToolName, nil)
	assert.False(t, ok.IsError)
}

func TestListIndicatorsTool(t *testing.T) {
	reg := newRegistry(instantEngine(1))

	result := reg.Call(context.Background(), ListToolName, nil)
	require.False(t, result.IsError)
}

func TestDecodeArgsSplitsSeriesAndParams(t *testing.T) {
	data, params, err := decodeArgs(map[string]interface{}{
		"close":  seriesArg(1, 2, 3),
		"high":   seriesArg(2, 3, 4),
		"period": float64(14),
		"stdDev": float64(2),
		"name":   "ignored",
	})
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3}, data.Close)
	assert.Equal(t, []float64{2, 3, 4}, data.High)
	assert.Equal(t, 14, params.IntOr("period", 0))
	assert.Equal(t, 2.0, params.FloatOr("stdDev", 0))
	assert.NotContains(t, params, "name")
}
