// Package transport connects a browser to an interview over WebSocket.
//
// One connection drives one [interview.Machine]. Client messages become
// machine events; machine state, notices and audio flow back as JSON
// messages. The connection doubles as the audio boundary: Play and
// SpeakLocal send a playback request and block until the client reports that
// playback ended or failed.
package transport

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"

	"github.com/MrWong99/rehearse/internal/capability"
	"github.com/MrWong99/rehearse/internal/interview"
	"github.com/MrWong99/rehearse/internal/store"
)

// readLimit fits a base64 recording of the largest accepted size plus the
// JSON envelope.
const readLimit = capability.MaxAudioBytes/3*4 + 64<<10

// SessionGetter loads persisted sessions.
type SessionGetter interface {
	GetSession(ctx context.Context, id string) (*store.Session, error)
}

// NewMachineFunc builds the machine for a persisted session, wired to the
// connection's player and observer.
type NewMachineFunc func(sess *store.Session, player interview.Player, obs interview.Observer) *interview.Machine

// Handler serves GET /v1/interviews/{id}/ws.
type Handler struct {
	sessions       SessionGetter
	newMachine     NewMachineFunc
	originPatterns []string
	log            *slog.Logger

	mu     sync.Mutex
	active map[string]context.CancelFunc
}

// Option configures a [Handler].
type Option func(*Handler)

// WithOriginPatterns sets the accepted Origin host patterns. Without it only
// same-origin connections are accepted.
func WithOriginPatterns(patterns ...string) Option {
	return func(h *Handler) { h.originPatterns = patterns }
}

// WithLogger sets the logger. Default: [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) { h.log = l }
}

// NewHandler returns a Handler.
func NewHandler(sessions SessionGetter, newMachine NewMachineFunc, opts ...Option) *Handler {
	h := &Handler{
		sessions:   sessions,
		newMachine: newMachine,
		log:        slog.Default(),
		active:     make(map[string]context.CancelFunc),
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Active returns the number of connected interviews.
func (h *Handler) Active() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.active)
}

// ServeHTTP implements [http.Handler].
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	log := h.log.With("session_id", id)

	sess, err := h.sessions.GetSession(r.Context(), id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		http.Error(w, "interview not found", http.StatusNotFound)
		return
	case err != nil:
		log.Error("load session failed", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	case sess.Status != store.StatusActive:
		http.Error(w, "interview already "+string(sess.Status), http.StatusConflict)
		return
	}

	// Hijacked connections outlive the request context; CloseAll ends them.
	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()

	if !h.claim(id, cancel) {
		http.Error(w, "interview already connected", http.StatusConflict)
		return
	}
	defer h.release(id)

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.originPatterns})
	if err != nil {
		log.Warn("websocket accept failed", "err", err)
		return
	}
	ws.SetReadLimit(readLimit)

	conn := newConn(ctx, ws, log)
	m := h.newMachine(sess, conn, conn)
	log.Info("interview connected")

	runErr := make(chan error, 1)
	go func() { runErr <- m.Run(ctx) }()
	go func() {
		conn.readLoop(m)
		cancel()
	}()

	err = <-runErr
	if err == nil {
		log.Info("interview finished", "phase", m.State().Phase)
		_ = ws.Close(websocket.StatusNormalClosure, "interview ended")
		return
	}
	log.Info("interview disconnected", "phase", m.State().Phase)
	_ = ws.CloseNow()
}

// CloseAll disconnects every interview. The interviews keep their snapshots
// and can be resumed. Suitable for [http.Server.RegisterOnShutdown].
func (h *Handler) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, cancel := range h.active {
		cancel()
	}
}

func (h *Handler) claim(id string, cancel context.CancelFunc) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.active[id]; ok {
		return false
	}
	h.active[id] = cancel
	return true
}

func (h *Handler) release(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.active, id)
}
