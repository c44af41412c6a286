package observer

import (
	"context"
	"encoding/json"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"pubkey-quest/engine/internal/clock"
	"pubkey-quest/engine/internal/patch"
	"pubkey-quest/engine/internal/telemetry"
	"pubkey-quest/engine/logging"
)

const (
	writeWait       = 10 * time.Second
	shutdownTimeout = 5 * time.Second
)

// Stream message types pushed over /ws.
const (
	MessageHello     = "hello"
	MessageClock     = "clock"
	MessageTick      = "tick"
	MessageCombat    = "combat"
	MessageCombatEnd = "combat_end"
	MessageNotice    = "notice"
	MessageLogLine   = "log_line"
)

// Message is the envelope every stream subscriber receives.
type Message struct {
	Ver     int    `json:"ver"`
	Type    string `json:"type"`
	Tick    uint64 `json:"tick,omitempty"`
	Payload any    `json:"payload,omitempty"`
}

// Source is the engine surface the observer reads for the hello
// message and the diagnostics endpoint.
type Source interface {
	ClockSnapshot() clock.Snapshot
	Ticks() uint64
}

// Deps carries the diagnostics providers. Router is optional; the
// others may be nil and their sections are omitted.
type Deps struct {
	Source   Source
	Counters *telemetry.Counters
	Journal  *patch.Journal
	Router   *logging.Router
	Logger   *log.Logger
}

// Config tunes the listener.
type Config struct {
	Addr string
	// EnablePprof mounts net/http/pprof under /debug/pprof/.
	EnablePprof bool
}

type subscriber struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *subscriber) write(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

// Server is the development observer: a health endpoint, a
// diagnostics snapshot, and a websocket stream of engine view-models.
// It never feeds anything back into the engine.
type Server struct {
	cfg      Config
	source   Source
	counters *telemetry.Counters
	journal  *patch.Journal
	router   *logging.Router
	logger   *log.Logger
	upgrader websocket.Upgrader

	mu   sync.Mutex
	subs map[*subscriber]struct{}

	listenerMu sync.Mutex
	listener   net.Listener
}

// New constructs the observer server.
func New(deps Deps, cfg Config) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Server{
		cfg:      cfg,
		source:   deps.Source,
		counters: deps.Counters,
		journal:  deps.Journal,
		router:   deps.Router,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		subs: make(map[*subscriber]struct{}),
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/health", s.handleHealth)
	r.Get("/diagnostics", s.handleDiagnostics)
	r.Get("/ws", s.handleWS)
	if s.cfg.EnablePprof {
		r.HandleFunc("/debug/pprof/", pprof.Index)
		r.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		r.HandleFunc("/debug/pprof/profile", pprof.Profile)
		r.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		r.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
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

	s.logger.Printf("[observer] listening on %s", listener.Addr())

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		s.closeSubscribers()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
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

// Broadcast pushes one message to every stream subscriber. Failed
// connections are pruned.
func (s *Server) Broadcast(msg Message) {
	if s == nil {
		return
	}
	msg.Ver = 1
	if msg.Tick == 0 && s.source != nil {
		msg.Tick = s.source.Ticks()
	}
	data, err := json.Marshal(msg)
	if err != nil {
		s.logger.Printf("[observer] marshal %s failed: %v", msg.Type, err)
		return
	}

	s.mu.Lock()
	subs := make([]*subscriber, 0, len(s.subs))
	for sub := range s.subs {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		if err := sub.write(data); err != nil {
			s.drop(sub)
		}
	}
}

// Subscribers reports how many stream connections are live.
func (s *Server) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte("ok"))
}

func (s *Server) handleDiagnostics(w http.ResponseWriter, r *http.Request) {
	payload := struct {
		Status     string         `json:"status"`
		ServerTime int64          `json:"serverTime"`
		Tick       uint64         `json:"tick"`
		Clock      any            `json:"clock,omitempty"`
		Telemetry  any            `json:"telemetry,omitempty"`
		Logging    any            `json:"logging,omitempty"`
		Journal    []patch.Entry  `json:"journal,omitempty"`
		Streams    map[string]int `json:"streams"`
	}{
		Status:     "ok",
		ServerTime: time.Now().UnixMilli(),
		Streams:    map[string]int{"ws": s.Subscribers()},
	}
	if s.source != nil {
		payload.Tick = s.source.Ticks()
		payload.Clock = s.source.ClockSnapshot()
	}
	if s.counters != nil {
		payload.Telemetry = s.counters.Snapshot()
	}
	if s.router != nil {
		payload.Logging = s.router.Stats()
	}
	if s.journal != nil {
		payload.Journal = s.journal.Snapshot()
	}

	data, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, "failed to encode", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Printf("[observer] upgrade failed: %v", err)
		return
	}
	sub := &subscriber{conn: conn}

	hello := Message{Ver: 1, Type: MessageHello}
	if s.source != nil {
		hello.Tick = s.source.Ticks()
		hello.Payload = s.source.ClockSnapshot()
	}
	data, err := json.Marshal(hello)
	if err != nil {
		conn.Close()
		return
	}
	if err := sub.write(data); err != nil {
		conn.Close()
		return
	}

	s.mu.Lock()
	s.subs[sub] = struct{}{}
	s.mu.Unlock()

	// The stream is one-way; reads only detect the close.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			s.drop(sub)
			return
		}
	}
}

func (s *Server) drop(sub *subscriber) {
	s.mu.Lock()
	_, present := s.subs[sub]
	delete(s.subs, sub)
	s.mu.Unlock()
	if present {
		sub.conn.Close()
	}
}

func (s *Server) closeSubscribers() {
	s.mu.Lock()
	subs := make([]*subscriber, 0, len(s.subs))
	for sub := range s.subs {
		subs = append(subs, sub)
	}
	s.subs = make(map[*subscriber]struct{})
	s.mu.Unlock()
	for _, sub := range subs {
		message := websocket.FormatCloseMessage(websocket.CloseGoingAway, "observer shutting down")
		sub.mu.Lock()
		sub.conn.SetWriteDeadline(time.Now().Add(writeWait))
		sub.conn.WriteMessage(websocket.CloseMessage, message)
		sub.mu.Unlock()
		sub.conn.Close()
	}
}
