// Package server implements the HTTP protocol gate, the session registry,
// and the per-session message handlers.
package server

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/FreePeak/ta-mcp-server/internal/domain"
	"github.com/FreePeak/ta-mcp-server/internal/infrastructure/logging"
)

// Decision classifies an admitted request.
type Decision int

// Admission outcomes.
const (
	DecisionUseExisting Decision = iota
	DecisionCreateNew
)

// RegistryConfig configures the session registry.
type RegistryConfig struct {
	// InactivityTimeout is how long a session may sit idle before the
	// sweep evicts it.
	InactivityTimeout time.Duration

	// SweepInterval is how often the eviction sweep runs. Must be shorter
	// than InactivityTimeout.
	SweepInterval time.Duration

	// AutoRecreate degrades unknown-session errors on non-initialize
	// requests to fresh sessions. Non-standard compatibility mode.
	AutoRecreate bool
}

// SessionRegistry is the authoritative store of live sessions. It owns
// admission classification, activity tracking, and time-based eviction.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*domain.Session

	config RegistryConfig
	logger *logging.Logger

	stopCh   chan struct{}
	stopOnce sync.Once
	sweepWG  sync.WaitGroup
}

// NewSessionRegistry creates a registry. Call Start to begin the eviction
// sweep and Shutdown to tear everything down.
func NewSessionRegistry(config RegistryConfig, logger *logging.Logger) *SessionRegistry {
	return &SessionRegistry{
		sessions: make(map[string]*domain.Session),
		config:   config,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

// Start launches the background eviction sweep.
func (r *SessionRegistry) Start() {
	r.sweepWG.Add(1)
	go func() {
		defer r.sweepWG.Done()
		ticker := time.NewTicker(r.config.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				r.evictStale()
			case <-r.stopCh:
				return
			}
		}
	}()
}

// Validate classifies a request into exactly one admission outcome based on
// identifier presence, identifier liveness, and whether the request opens a
// session. It mutates nothing.
func (r *SessionRegistry) Validate(id string, isInitialize bool) (Decision, error) {
	if isInitialize {
		if id == "" {
			return DecisionCreateNew, nil
		}
		if r.Has(id) {
			// A fresh initialization must not carry a live identifier.
			return 0, domain.NewSessionExistsError(id)
		}
		return DecisionCreateNew, nil
	}

	if id == "" {
		return 0, domain.NewMissingSessionError()
	}
	if r.Has(id) {
		return DecisionUseExisting, nil
	}
	if r.config.AutoRecreate {
		return DecisionCreateNew, nil
	}
	return 0, domain.NewSessionNotFoundError(id)
}

// Register stores a new session around the given transport and returns it.
// The transport is exclusively owned by the session from here on.
func (r *SessionRegistry) Register(transport domain.SessionTransport, origin, clientLabel string) *domain.Session {
	now := time.Now()
	session := &domain.Session{
		ID:           uuid.New().String(),
		CreatedAt:    now,
		LastActivity: now,
		Transport:    transport,
		Origin:       origin,
		ClientLabel:  clientLabel,
	}

	r.mu.Lock()
	r.sessions[session.ID] = session
	r.mu.Unlock()

	r.logger.Info("session created", logging.Fields{
		"session_id": session.ID,
		"origin":     origin,
	})
	return session
}

// Get retrieves a session by its ID.
func (r *SessionRegistry) Get(id string) (*domain.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	session, ok := r.sessions[id]
	return session, ok
}

// Has reports whether the session is live.
func (r *SessionRegistry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sessions[id]
	return ok
}

// Touch refreshes the session's activity timestamp. No-op when the session
// no longer exists (race with eviction).
func (r *SessionRegistry) Touch(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if session, ok := r.sessions[id]; ok {
		session.LastActivity = time.Now()
	}
}

// Count returns the number of live sessions.
func (r *SessionRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Remove deletes the session and closes its transport. Close failures are
// logged, never propagated. Idempotent.
func (r *SessionRegistry) Remove(id string) {
	r.mu.Lock()
	session, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	if !ok {
		return
	}
	if err := session.Transport.Close(); err != nil {
		r.logger.Warn("transport close failed", logging.Fields{
			"session_id": id,
			"error":      err.Error(),
		})
	}
	r.logger.Info("session removed", logging.Fields{"session_id": id})
}

// Shutdown stops the eviction sweep and forcibly removes every live
// session, exactly once. Transport close errors are aggregated.
func (r *SessionRegistry) Shutdown() error {
	var errs error
	r.stopOnce.Do(func() {
		close(r.stopCh)
		r.sweepWG.Wait()

		r.mu.Lock()
		sessions := r.sessions
		r.sessions = make(map[string]*domain.Session)
		r.mu.Unlock()

		for id, session := range sessions {
			if err := session.Transport.Close(); err != nil {
				errs = multierr.Append(errs, err)
			}
			r.logger.Info("session removed", logging.Fields{"session_id": id})
		}
	})
	return errs
}

// evictStale removes every session idle beyond the inactivity timeout. The
// staleness check and the delete happen under one lock so a concurrent
// Touch cannot lose to the sweep.
func (r *SessionRegistry) evictStale() {
	now := time.Now()

	r.mu.Lock()
	var victims []*domain.Session
	for id, session := range r.sessions {
		if now.Sub(session.LastActivity) > r.config.InactivityTimeout {
			delete(r.sessions, id)
			victims = append(victims, session)
		}
	}
	r.mu.Unlock()

	for _, session := range victims {
		if err := session.Transport.Close(); err != nil {
			r.logger.Warn("transport close failed", logging.Fields{
				"session_id": session.ID,
				"error":      err.Error(),
			})
		}
		r.logger.Info("session evicted", logging.Fields{
			"session_id": session.ID,
			"idle":       now.Sub(session.LastActivity).String(),
		})
	}
}
