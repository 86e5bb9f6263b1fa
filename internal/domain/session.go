package domain

import (
	"context"
	"time"

	"github.com/FreePeak/ta-mcp-server/internal/domain/shared"
)

// SessionTransport handles the JSON-RPC traffic bound to one session. A
// transport is exclusively owned by its session; the registry closes it when
// the session ends. HandleMessage returns nil for notifications.
type SessionTransport interface {
	HandleMessage(ctx context.Context, req shared.JSONRPCRequest) *shared.JSONRPCResponse
	Close() error
}

// Session binds a client identifier to its transport and activity state.
type Session struct {
	ID           string
	CreatedAt    time.Time
	LastActivity time.Time
	Transport    SessionTransport

	// Optional metadata, for logging only.
	Origin      string
	ClientLabel string
}
