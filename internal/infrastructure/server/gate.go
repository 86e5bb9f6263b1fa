package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/pkg/errors"

	"github.com/FreePeak/ta-mcp-server/internal/domain"
	"github.com/FreePeak/ta-mcp-server/internal/domain/shared"
	"github.com/FreePeak/ta-mcp-server/internal/infrastructure/logging"
	"github.com/FreePeak/ta-mcp-server/internal/usecases"
)

// SessionHeader carries the opaque session identifier. Absent on the
// initializing request, required afterwards, echoed back on creation.
const SessionHeader = "Mcp-Session-Id"

// ProtocolGate is the single entry point for session-bound traffic. It
// classifies each request against the session registry, then either
// dispatches into the session's transport or answers with the fixed
// protocol-error/transport-status pair. No dispatch happens after an
// admission error.
type ProtocolGate struct {
	info     shared.ServerInfo
	registry *SessionRegistry
	tools    *usecases.ToolRegistry
	logger   *logging.Logger
}

// NewProtocolGate creates a ProtocolGate.
func NewProtocolGate(info shared.ServerInfo, registry *SessionRegistry, tools *usecases.ToolRegistry, logger *logging.Logger) *ProtocolGate {
	return &ProtocolGate{info: info, registry: registry, tools: tools, logger: logger}
}

// ServeHTTP routes the session endpoint.
func (g *ProtocolGate) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		g.handlePost(w, r)
	case http.MethodDelete:
		g.handleDelete(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (g *ProtocolGate) handlePost(w http.ResponseWriter, r *http.Request) {
	// Outermost fault boundary: a bad request must never take the process
	// down.
	defer func() {
		if rec := recover(); rec != nil {
			g.logger.Error("unhandled fault in request path", logging.Fields{
				"panic": fmt.Sprintf("%v", rec),
			})
			writeResponse(w, http.StatusInternalServerError,
				shared.NewErrorResponse(nil, shared.InternalError, shared.ErrorMessage(shared.InternalError)))
		}
	}()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeResponse(w, http.StatusBadRequest,
			shared.NewErrorResponse(nil, shared.ParseError, "error reading request body"))
		return
	}

	var req shared.JSONRPCRequest
	if err := json.Unmarshal(body, &req); err != nil || req.Method == "" {
		writeResponse(w, http.StatusBadRequest,
			shared.NewErrorResponse(nil, shared.ParseError, shared.ErrorMessage(shared.ParseError)))
		return
	}

	sessionID := r.Header.Get(SessionHeader)
	decision, admitErr := g.registry.Validate(sessionID, shared.IsInitialize(req.Method))
	if admitErr != nil {
		code := protocolCode(admitErr)
		writeResponse(w, shared.HTTPStatus(code), shared.NewErrorResponse(req.ID, code, admitErr.Error()))
		return
	}

	var session *domain.Session
	switch decision {
	case DecisionCreateNew:
		session = g.createSession(r)
		w.Header().Set(SessionHeader, session.ID)

	case DecisionUseExisting:
		var ok bool
		session, ok = g.registry.Get(sessionID)
		if !ok {
			// Evicted between validation and lookup.
			writeResponse(w, shared.HTTPStatus(shared.SessionNotFound),
				shared.NewErrorResponse(req.ID, shared.SessionNotFound, shared.ErrorMessage(shared.SessionNotFound)))
			return
		}
		g.registry.Touch(sessionID)
	}

	resp := session.Transport.HandleMessage(r.Context(), req)
	if resp == nil {
		// Notification: acknowledged, nothing to answer.
		w.WriteHeader(http.StatusAccepted)
		return
	}
	writeResponse(w, http.StatusOK, *resp)
}

func (g *ProtocolGate) handleDelete(w http.ResponseWriter, r *http.Request) {
	sessionID := r.Header.Get(SessionHeader)
	if sessionID == "" {
		writeResponse(w, http.StatusBadRequest,
			shared.NewErrorResponse(nil, shared.InvalidParams, domain.NewMissingSessionError().Error()))
		return
	}
	if !g.registry.Has(sessionID) {
		writeResponse(w, http.StatusNotFound,
			shared.NewErrorResponse(nil, shared.SessionNotFound, domain.NewSessionNotFoundError(sessionID).Error()))
		return
	}
	g.registry.Remove(sessionID)
	w.WriteHeader(http.StatusNoContent)
}

// createSession allocates a transport+handler pair, binds it to the
// registry, and hooks transport-initiated closure back to removal.
func (g *ProtocolGate) createSession(r *http.Request) *domain.Session {
	handler := newSessionHandler(g.info, g.tools, g.logger)
	session := g.registry.Register(handler, r.RemoteAddr, r.UserAgent())
	handler.onClose = func() {
		g.registry.Remove(session.ID)
	}
	return session
}

// protocolCode maps admission errors to their fixed protocol codes. The
// pairs are a stable contract (see shared.HTTPStatus for the transport
// side).
func protocolCode(err error) shared.ErrorCode {
	var missing *domain.MissingSessionError
	var exists *domain.SessionExistsError
	var notFound *domain.SessionNotFoundError

	switch {
	case errors.As(err, &missing), errors.As(err, &exists):
		return shared.InvalidParams
	case errors.As(err, &notFound):
		return shared.SessionNotFound
	default:
		return shared.InternalError
	}
}

func writeResponse(w http.ResponseWriter, status int, resp shared.JSONRPCResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
