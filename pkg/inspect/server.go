package inspect

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/quiver-dev/quiver/pkg/quiver"
)

// ServerConfig configures the inspect server.
type ServerConfig struct {
	// Addr is the listen address for ListenAndServe (default: ":9321").
	Addr string

	// MaxClients bounds concurrent WebSocket clients (default: 32).
	MaxClients int

	// CheckOrigin overrides the WebSocket origin check. The default
	// accepts requests without an Origin header and same-host origins.
	CheckOrigin func(*http.Request) bool

	// Logger is used for server diagnostics (default: the inspector's).
	Logger *zap.Logger
}

// defaultServerConfig returns the default server configuration.
func defaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:       ":9321",
		MaxClients: 32,
	}
}

// Server exposes an Inspector over HTTP:
//
//   - GET /            HTML shell with live stats and events
//   - GET /api/stats   runtime counters
//   - GET /api/graph   last captured dependency graph
//   - GET /api/events  recent events, oldest first
//   - GET /ws          WebSocket live event feed
//
// Handler returns a router for mounting under a parent mux; relative
// paths in the shell keep it working under any prefix.
//
// Example:
//
//	ins := inspect.New(rt)
//	r := chi.NewRouter()
//	r.Mount("/debug/quiver", inspect.NewServer(ins, nil).Handler())
type Server struct {
	ins      *Inspector
	config   ServerConfig
	logger   *zap.Logger
	upgrader websocket.Upgrader

	clientsMu sync.RWMutex
	clients   map[*websocket.Conn]bool

	hubOnce  sync.Once
	stop     chan struct{}
	stopOnce sync.Once
	server   *http.Server
}

// NewServer creates an inspect server for ins. A nil config uses the
// defaults.
func NewServer(ins *Inspector, config *ServerConfig) *Server {
	cfg := defaultServerConfig()
	if config != nil {
		if config.Addr != "" {
			cfg.Addr = config.Addr
		}
		if config.MaxClients > 0 {
			cfg.MaxClients = config.MaxClients
		}
		cfg.CheckOrigin = config.CheckOrigin
		cfg.Logger = config.Logger
	}
	if cfg.CheckOrigin == nil {
		cfg.CheckOrigin = defaultCheckOrigin
	}
	if cfg.Logger == nil {
		cfg.Logger = ins.logger
	}

	return &Server{
		ins:    ins,
		config: cfg,
		logger: cfg.Logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     cfg.CheckOrigin,
		},
		clients: make(map[*websocket.Conn]bool),
		stop:    make(chan struct{}),
	}
}

// defaultCheckOrigin accepts requests without an Origin header and
// same-host origins.
func defaultCheckOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	return err == nil && u.Host == r.Host
}

// Handler returns the inspect routes for mounting in an external router.
// It also starts the broadcast hub on first call.
func (s *Server) Handler() http.Handler {
	s.startHub()

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Get("/", s.handleIndex)
	r.Get("/api/stats", s.handleStats)
	r.Get("/api/graph", s.handleGraph)
	r.Get("/api/events", s.handleEvents)
	r.Get("/ws", s.handleWebSocket)
	return r
}

// ListenAndServe serves the inspector on the configured address, blocking
// until Shutdown.
func (s *Server) ListenAndServe() error {
	s.server = &http.Server{Addr: s.config.Addr, Handler: s.Handler()}
	s.logger.Info("inspect server listening", zap.String("addr", s.config.Addr))
	return s.server.ListenAndServe()
}

// Shutdown stops the broadcast hub and, when ListenAndServe was used, the
// HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.stop) })
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// startHub launches the broadcast goroutine once.
func (s *Server) startHub() {
	s.hubOnce.Do(func() { go s.broadcast() })
}

// message is the WebSocket envelope.
type message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// broadcast fans feed events out to connected clients. It is the only
// writer to registered connections.
func (s *Server) broadcast() {
	for {
		select {
		case e := <-s.ins.Feed():
			s.send(message{Type: "event", Data: e})
		case <-s.stop:
			return
		}
	}
}

func (s *Server) send(m message) {
	s.clientsMu.RLock()
	conns := make([]*websocket.Conn, 0, len(s.clients))
	for c := range s.clients {
		conns = append(conns, c)
	}
	s.clientsMu.RUnlock()

	for _, c := range conns {
		if err := c.WriteJSON(m); err != nil {
			s.removeClient(c)
		}
	}
}

func (s *Server) removeClient(c *websocket.Conn) {
	s.clientsMu.Lock()
	if s.clients[c] {
		delete(s.clients, c)
		c.Close()
	}
	s.clientsMu.Unlock()
}

// =============================================================================
// Handlers
// =============================================================================

// statsJSON mirrors quiver.Stats with wire-friendly names.
type statsJSON struct {
	Tracks             uint64 `json:"tracks"`
	Triggers           uint64 `json:"triggers"`
	EffectRuns         uint64 `json:"effect_runs"`
	ComputedRecomputes uint64 `json:"computed_recomputes"`
	WatchJobs          uint64 `json:"watch_jobs"`
	Errors             uint64 `json:"errors"`
	ActiveEffects      int64  `json:"active_effects"`
	TrackedTargets     int64  `json:"tracked_targets"`
	TrackedDeps        int64  `json:"tracked_deps"`
}

func toStatsJSON(s quiver.Stats) statsJSON {
	return statsJSON{
		Tracks:             s.Tracks,
		Triggers:           s.Triggers,
		EffectRuns:         s.EffectRuns,
		ComputedRecomputes: s.ComputedRecomputes,
		WatchJobs:          s.WatchJobs,
		Errors:             s.Errors,
		ActiveEffects:      s.ActiveEffects,
		TrackedTargets:     s.TrackedTargets,
		TrackedDeps:        s.TrackedDeps,
	}
}

// graphJSON is the graph API payload. TakenAt is zero when no snapshot
// has been captured yet.
type graphJSON struct {
	TakenAt time.Time          `json:"taken_at"`
	Nodes   []quiver.GraphNode `json:"nodes"`
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, toStatsJSON(s.ins.Stats()))
}

func (s *Server) handleGraph(w http.ResponseWriter, _ *http.Request) {
	nodes, taken := s.ins.GraphSnapshot()
	if nodes == nil {
		nodes = []quiver.GraphNode{}
	}
	writeJSON(w, graphJSON{TakenAt: taken, Nodes: nodes})
}

func (s *Server) handleEvents(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.ins.Events())
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	s.clientsMu.RLock()
	full := len(s.clients) >= s.config.MaxClients
	s.clientsMu.RUnlock()
	if full {
		http.Error(w, "too many clients", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	// Greet before registering: after registration the broadcast hub is
	// the only writer to this connection.
	if err := conn.WriteJSON(message{Type: "hello", Data: toStatsJSON(s.ins.Stats())}); err != nil {
		conn.Close()
		return
	}

	s.clientsMu.Lock()
	s.clients[conn] = true
	s.clientsMu.Unlock()

	// Reads only detect the peer going away.
	go func() {
		defer s.removeClient(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(indexHTML))
}

const indexHTML = `<!DOCTYPE html>
<html>
<head>
    <title>Quiver Inspector</title>
    <style>
        body { font-family: monospace; margin: 0; padding: 20px; background: #f5f5f5; }
        .header { background: #2c3e50; color: white; padding: 16px; border-radius: 4px; margin-bottom: 16px; }
        .grid { display: grid; grid-template-columns: 1fr 1fr; gap: 16px; }
        .card { background: white; padding: 16px; border-radius: 4px; box-shadow: 0 1px 3px rgba(0,0,0,0.1); }
        .stat { display: flex; justify-content: space-between; padding: 2px 0; }
        .stat b { color: #3498db; }
        .events { max-height: 420px; overflow-y: auto; }
        .event { padding: 4px 8px; margin: 2px 0; border-left: 3px solid #3498db; background: #ecf0f1; font-size: 0.85em; }
        .event.trigger { border-left-color: #e74c3c; }
        pre { background: #ecf0f1; padding: 8px; border-radius: 3px; overflow-x: auto; max-height: 420px; }
    </style>
</head>
<body>
    <div class="header">
        <h2>Quiver Inspector</h2>
        <p>Live dependency tracking</p>
    </div>
    <div class="grid">
        <div class="card">
            <h3>Stats</h3>
            <div id="stats">loading...</div>
        </div>
        <div class="card">
            <h3>Live Events</h3>
            <div class="events" id="events"></div>
        </div>
        <div class="card" style="grid-column: span 2;">
            <h3>Dependency Graph</h3>
            <pre id="graph">no snapshot yet</pre>
        </div>
    </div>
    <script>
        const base = location.pathname.endsWith('/') ? location.pathname : location.pathname + '/';

        function refreshStats() {
            fetch(base + 'api/stats').then(r => r.json()).then(s => {
                document.getElementById('stats').innerHTML = Object.entries(s)
                    .map(([k, v]) => '<div class="stat"><span>' + k + '</span><b>' + v + '</b></div>')
                    .join('');
            });
        }

        function refreshGraph() {
            fetch(base + 'api/graph').then(r => r.json()).then(g => {
                if (g.nodes && g.nodes.length) {
                    document.getElementById('graph').textContent = JSON.stringify(g.nodes, null, 2);
                }
            });
        }

        function addEvent(e) {
            const list = document.getElementById('events');
            const div = document.createElement('div');
            div.className = 'event ' + e.type;
            div.textContent = e.type + ' ' + e.op + ' ' + e.target + ' [' + e.key + ']' +
                (e.scheduled ? ' -> ' + e.scheduled : '');
            list.insertBefore(div, list.firstChild);
            while (list.children.length > 50) {
                list.removeChild(list.lastChild);
            }
        }

        const proto = location.protocol === 'https:' ? 'wss://' : 'ws://';
        const ws = new WebSocket(proto + location.host + base + 'ws');
        ws.onmessage = function(msg) {
            const m = JSON.parse(msg.data);
            if (m.type === 'event') {
                addEvent(m.data);
            }
        };

        refreshStats();
        refreshGraph();
        setInterval(refreshStats, 2000);
        setInterval(refreshGraph, 5000);
    </script>
</body>
</html>
`
