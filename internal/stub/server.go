package stub

import (
	"context"
	"encoding/json"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"pubkey-quest/engine/internal/wire"
)

const shutdownTimeout = 5 * time.Second

// ServerConfig configures the stub's listener.
type ServerConfig struct {
	Addr string
}

// Server exposes a World over the quest-server wire contract. It backs
// the -stub flag and live-fire tests: point the engine at its address
// and every endpoint behaves like the real backend.
type Server struct {
	world  *World
	logger *log.Logger
	cfg    ServerConfig

	listenerMu sync.Mutex
	listener   net.Listener
}

// NewServer wraps a world in the HTTP contract.
func NewServer(world *World, cfg ServerConfig, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	return &Server{world: world, logger: logger, cfg: cfg}
}

// Handler builds the route table. Tick and the resume query identify
// the session through query parameters; the combat verbs carry
// identity in their bodies.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Post(wire.PathTick, s.handleTick)
	r.Post(wire.PathCombatStart, s.handleCombatStart)
	r.Post(wire.PathCombatAction, s.handleCombatAction)
	r.Post(wire.PathCombatMove, s.handleCombatMove)
	r.Post(wire.PathCombatPass, s.handleCombatPass)
	r.Post(wire.PathCombatDeathSave, s.handleCombatDeathSave)
	r.Post(wire.PathCombatEnd, s.handleCombatEnd)
	r.Get(wire.PathCombatActive, s.handleCombatActive)
	return r
}

// Run serves until ctx is canceled. The listener is bound before Run
// returns control to the goroutine so Addr is valid immediately after
// a successful bind.
func (s *Server) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	s.listenerMu.Lock()
	s.listener = listener
	s.listenerMu.Unlock()

	srv := &http.Server{Handler: s.Handler()}
	errs := make(chan error, 1)
	go func() { errs <- srv.Serve(listener) }()

	s.logger.Printf("[stub] quest server listening on %s", listener.Addr())

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errs:
		return err
	}
}

// Addr returns the bound address, or empty before Run binds.
func (s *Server) Addr() string {
	s.listenerMu.Lock()
	defer s.listenerMu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func identity(r *http.Request) (npub, saveID string) {
	q := r.URL.Query()
	return q.Get("npub"), q.Get("save_id")
}

func (s *Server) writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Printf("[stub] encode response: %v", err)
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return false
	}
	return true
}

func (s *Server) handleTick(w http.ResponseWriter, r *http.Request) {
	var req wire.TickRequestV1
	if !decodeBody(w, r, &req) {
		return
	}
	npub, saveID := identity(r)
	s.writeJSON(w, s.world.Tick(npub, saveID, req))
}

func (s *Server) handleCombatStart(w http.ResponseWriter, r *http.Request) {
	var req wire.CombatRequestV1
	if !decodeBody(w, r, &req) {
		return
	}
	s.writeJSON(w, s.world.StartCombat(req.Npub, req.SaveID))
}

func (s *Server) handleCombatAction(w http.ResponseWriter, r *http.Request) {
	var req wire.CombatActionRequestV1
	if !decodeBody(w, r, &req) {
		return
	}
	s.writeJSON(w, s.world.CombatAction(req.Npub, req.SaveID, req.Action))
}

func (s *Server) handleCombatMove(w http.ResponseWriter, r *http.Request) {
	var req wire.CombatMoveRequestV1
	if !decodeBody(w, r, &req) {
		return
	}
	s.writeJSON(w, s.world.CombatMove(req.Npub, req.SaveID, req.MoveDir))
}

func (s *Server) handleCombatPass(w http.ResponseWriter, r *http.Request) {
	var req wire.CombatRequestV1
	if !decodeBody(w, r, &req) {
		return
	}
	s.writeJSON(w, s.world.CombatPass(req.Npub, req.SaveID))
}

func (s *Server) handleCombatDeathSave(w http.ResponseWriter, r *http.Request) {
	var req wire.CombatRequestV1
	if !decodeBody(w, r, &req) {
		return
	}
	s.writeJSON(w, s.world.CombatDeathSave(req.Npub, req.SaveID))
}

func (s *Server) handleCombatEnd(w http.ResponseWriter, r *http.Request) {
	var req wire.CombatRequestV1
	if !decodeBody(w, r, &req) {
		return
	}
	s.writeJSON(w, s.world.CombatEnd(req.Npub, req.SaveID))
}

func (s *Server) handleCombatActive(w http.ResponseWriter, r *http.Request) {
	npub, saveID := identity(r)
	s.writeJSON(w, s.world.ActiveCombat(npub, saveID))
}
