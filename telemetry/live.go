package telemetry

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// LiveSnapshot is the JSON payload pushed to live stats subscribers.
type LiveSnapshot struct {
	Frame      uint64  `json:"frame"`
	AvgFrameUS int64   `json:"avg_frame_us"`
	P99US      int64   `json:"p99_us"`
	FPS        float64 `json:"fps"`

	Entities    int `json:"entities"`
	ActiveTier  int `json:"active_tier"`
	Collisions  int `json:"collisions"`
	PathQueue   int `json:"path_queue"`
	CacheHits   int `json:"cache_hits"`
	CacheMisses int `json:"cache_misses"`
}

// LiveServer pushes perf snapshots to websocket subscribers. It is a debug
// surface: subscribers that fall behind are dropped, never waited on.
type LiveServer struct {
	addr   string
	logger *slog.Logger

	mu    sync.Mutex
	subs  map[*websocket.Conn]chan LiveSnapshot
	httpS *http.Server

	upgrader websocket.Upgrader
}

// NewLiveServer creates a live stats server on the given address.
func NewLiveServer(addr string, logger *slog.Logger) *LiveServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LiveServer{
		addr:   addr,
		logger: logger,
		subs:   make(map[*websocket.Conn]chan LiveSnapshot),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  512,
			WriteBufferSize: 4096,
		},
	}
}

// Start begins serving. Non-blocking; errors after startup only log.
func (s *LiveServer) Start() {
	mux := http.NewServeMux()
	mux.HandleFunc("/stats", s.handleStats)
	s.httpS = &http.Server{Addr: s.addr, Handler: mux}

	go func() {
		if err := s.httpS.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Warn("live stats server stopped", "err", err)
		}
	}()
	s.logger.Info("live stats serving", "addr", s.addr)
}

func (s *LiveServer) handleStats(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "err", err)
		return
	}

	ch := make(chan LiveSnapshot, 8)
	s.mu.Lock()
	s.subs[conn] = ch
	s.mu.Unlock()

	go func() {
		defer s.drop(conn)
		for snap := range ch {
			payload, err := json.Marshal(snap)
			if err != nil {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		}
	}()
}

func (s *LiveServer) drop(conn *websocket.Conn) {
	s.mu.Lock()
	if ch, ok := s.subs[conn]; ok {
		delete(s.subs, conn)
		close(ch)
	}
	s.mu.Unlock()
	conn.Close()
}

// Publish fans a snapshot out to every subscriber. Full subscriber buffers
// skip the frame rather than block the simulation.
func (s *LiveServer) Publish(snap LiveSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- snap:
		default:
		}
	}
}

// Close shuts the server and all subscriber connections down.
func (s *LiveServer) Close() {
	s.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(s.subs))
	for conn := range s.subs {
		conns = append(conns, conn)
	}
	s.mu.Unlock()
	for _, conn := range conns {
		s.drop(conn)
	}
	if s.httpS != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		s.httpS.Shutdown(ctx)
	}
}
