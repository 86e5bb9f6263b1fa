package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/FreePeak/ta-mcp-server/internal/domain"
	"github.com/FreePeak/ta-mcp-server/internal/infrastructure/logging"
	"github.com/FreePeak/ta-mcp-server/internal/usecases"
)

// RESTHandler exposes the direct invocation API: one route per indicator
// kind plus one for the batch, stateless pass-throughs into the tool layer
// with no session semantics.
type RESTHandler struct {
	tools  *usecases.ToolRegistry
	logger *logging.Logger
}

// NewRESTHandler creates a RESTHandler.
func NewRESTHandler(tools *usecases.ToolRegistry, logger *logging.Logger) *RESTHandler {
	return &RESTHandler{tools: tools, logger: logger}
}

// Register mounts the direct API routes on the mux.
func (h *RESTHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/indicators/{kind}", h.handleIndicator)
	mux.HandleFunc("POST /api/v1/batch", h.handleBatch)
}

func (h *RESTHandler) handleIndicator(w http.ResponseWriter, r *http.Request) {
	kind := domain.Kind(r.PathValue("kind"))
	if _, ok := domain.Lookup(kind); !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": fmt.Sprintf("unknown indicator %q", kind),
		})
		return
	}
	h.dispatch(w, r, usecases.ToolName(kind))
}

func (h *RESTHandler) handleBatch(w http.ResponseWriter, r *http.Request) {
	h.dispatch(w, r, usecases.BatchToolName)
}

// dispatch decodes the argument bag and hands it to the same handler layer
// the session path uses. Tool-level failures come back as structured
// payloads with isError set, not transport errors.
func (h *RESTHandler) dispatch(w http.ResponseWriter, r *http.Request, tool string) {
	var args map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&args); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	result := h.tools.Call(r.Context(), tool, args)
	writeJSON(w, http.StatusOK, result)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
