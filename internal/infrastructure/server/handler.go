package server

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/FreePeak/ta-mcp-server/internal/domain"
	"github.com/FreePeak/ta-mcp-server/internal/domain/shared"
	"github.com/FreePeak/ta-mcp-server/internal/infrastructure/logging"
	"github.com/FreePeak/ta-mcp-server/internal/usecases"
)

// ProtocolVersion is the protocol revision this server speaks.
const ProtocolVersion = "2024-11-05"

// sessionHandler is the transport bound to one session. It processes that
// session's JSON-RPC requests in arrival order and owns its per-session
// state (initialization, client label).
type sessionHandler struct {
	mu sync.Mutex

	info   shared.ServerInfo
	tools  *usecases.ToolRegistry
	logger *logging.Logger

	initialized bool
	clientLabel string

	// onClose is invoked when the session ends from inside the protocol
	// (shutdown request). The gate wires it to registry removal.
	onClose func()
}

func newSessionHandler(info shared.ServerInfo, tools *usecases.ToolRegistry, logger *logging.Logger) *sessionHandler {
	return &sessionHandler{info: info, tools: tools, logger: logger}
}

var _ domain.SessionTransport = (*sessionHandler)(nil)

// HandleMessage processes one request. Requests within a session are
// serialized; independent sessions interleave freely. Returns nil for
// notifications.
func (h *sessionHandler) HandleMessage(ctx context.Context, req shared.JSONRPCRequest) *shared.JSONRPCResponse {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch req.Method {
	case shared.MethodInitialize:
		return h.handleInitialize(req)

	case shared.MethodInitialized:
		// Client acknowledgement, nothing to answer.
		return nil

	case shared.MethodPing:
		return respond(shared.NewResponse(req.ID, struct{}{}))

	case shared.MethodListTools:
		return respond(shared.NewResponse(req.ID, shared.ListToolsResult{Tools: h.tools.List()}))

	case shared.MethodCallTool:
		return h.handleCallTool(ctx, req)

	case shared.MethodShutdown:
		return h.handleShutdown(req)

	default:
		if req.IsNotification() {
			return nil
		}
		return respond(shared.NewErrorResponse(req.ID, shared.MethodNotFound, shared.ErrorMessage(shared.MethodNotFound)))
	}
}

// Close releases the handler. Nothing beyond session state is held, so it
// never fails; it exists to satisfy the transport contract the registry
// closes through. Deliberately lock-free: registry removal can run from
// inside a shutdown request that already holds the handler mutex.
func (h *sessionHandler) Close() error {
	return nil
}

func (h *sessionHandler) handleInitialize(req shared.JSONRPCRequest) *shared.JSONRPCResponse {
	var params shared.InitializeParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return respond(shared.NewErrorResponse(req.ID, shared.InvalidParams, shared.ErrorMessage(shared.InvalidParams)))
		}
	}
	h.initialized = true
	h.clientLabel = params.ClientInfo.Name

	result := shared.InitializeResult{
		ProtocolVersion: ProtocolVersion,
		ServerInfo:      h.info,
		Capabilities:    shared.Capabilities{Tools: &shared.ToolsCapability{}},
	}
	return respond(shared.NewResponse(req.ID, result))
}

func (h *sessionHandler) handleCallTool(ctx context.Context, req shared.JSONRPCRequest) *shared.JSONRPCResponse {
	var params shared.CallToolParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return respond(shared.NewErrorResponse(req.ID, shared.InvalidParams, shared.ErrorMessage(shared.InvalidParams)))
	}

	// The registry absorbs unknown tools, handler errors, and panics into
	// structured results; the session stays valid regardless of outcome.
	result := h.tools.Call(ctx, params.Name, params.Arguments)
	return respond(shared.NewResponse(req.ID, result))
}

func (h *sessionHandler) handleShutdown(req shared.JSONRPCRequest) *shared.JSONRPCResponse {
	resp := respond(shared.NewResponse(req.ID, nil))
	if h.onClose != nil {
		h.onClose()
	}
	return resp
}

func respond(resp shared.JSONRPCResponse) *shared.JSONRPCResponse {
	return &resp
}
