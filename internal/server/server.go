package server

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"minewatch-go/internal/config"
	"minewatch-go/internal/pipeline"
	"minewatch-go/internal/sampler"
	"minewatch-go/internal/store"
	"minewatch-go/internal/types"
)

//go:embed web/*
var webFS embed.FS

const (
	writeWait = 10 * time.Second
	pongWait  = 60 * time.Second
	pingEvery = (pongWait * 9) / 10

	maxUploadBytes = 256 << 20
)

// Deps are the callbacks the server renders; the wiring lives in main.
type Deps struct {
	StatusFn  func() map[string]any
	VerdictFn func() any
	AnalyzeFn func(ctx context.Context, stream sampler.Stream, source string, intervalSec, threshold float64) (*pipeline.RunResult, error)
	RunsFn    func(limit int) ([]store.Run, error)
	RunFn     func(id string) (*store.Run, error)
}

type Server struct {
	upgrader websocket.Upgrader
	clients  map[*websocket.Conn]*sync.Mutex
	mu       sync.Mutex
	cfg      config.AppConfig
	deps     Deps
}

func Run(ctx context.Context, cfg config.AppConfig, messages <-chan any, deps Deps) error {
	srv := &Server{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[*websocket.Conn]*sync.Mutex),
		cfg:     cfg,
		deps:    deps,
	}

	sub, err := fs.Sub(webFS, "web")
	if err != nil {
		return err
	}
	mux := http.NewServeMux()
	mux.Handle("/", http.FileServer(http.FS(sub)))
	mux.HandleFunc("/ws", srv.handleWS)
	mux.HandleFunc("/healthz", srv.handleHealth)
	mux.HandleFunc("/status", srv.handleStatus)
	mux.HandleFunc("/analyze", srv.handleAnalyze)
	mux.HandleFunc("/runs", srv.handleRuns)
	mux.HandleFunc("/runs/", srv.handleRun)

	httpServer := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	go srv.broadcast(ctx, messages)

	return httpServer.ListenAndServe()
}

// handleAnalyze accepts a multipart video upload, runs the batch
// pipeline on it, and returns the verdict. Pipeline failures come back
// as a structured error payload, never a bare 500.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.deps.AnalyzeFn == nil {
		writeError(w, types.Errf("server", "analyzer not configured"))
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, types.Errf("upload", "parse upload: %v", err))
		return
	}
	file, header, err := r.FormFile("video")
	if err != nil {
		writeError(w, types.Errf("upload", "missing video file: %v", err))
		return
	}
	defer file.Close()

	fps := formFloat(r, "fps", s.cfg.FPS)
	interval := formFloat(r, "interval", s.cfg.IntervalSec)
	threshold := formFloat(r, "threshold", s.cfg.Threshold)

	stream := sampler.NewMJPEGStream(file, fps)
	result, err := s.deps.AnalyzeFn(r.Context(), stream, header.Filename, interval, threshold)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, map[string]any{
		"success":     true,
		"analysis":    result.Analysis,
		"predictions": result.Predictions,
	})
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	runs := []store.Run{}
	if s.deps.RunsFn != nil {
		listed, err := s.deps.RunsFn(limit)
		if err != nil {
			writeError(w, types.Errf("store", "list runs: %v", err))
			return
		}
		if listed != nil {
			runs = listed
		}
	}
	writeJSON(w, map[string]any{"runs": runs})
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/runs/")
	if id == "" || s.deps.RunFn == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	run, err := s.deps.RunFn(id)
	if err != nil {
		writeError(w, types.Errf("store", "load run: %v", err))
		return
	}
	if run == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	writeJSON(w, run)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	payload := map[string]any{}
	if s.deps.StatusFn != nil {
		payload = s.deps.StatusFn()
	}
	if metrics, ok := payload["metrics"].(map[string]any); ok {
		metrics["ws_clients"] = s.clientCount()
	} else {
		payload["ws_clients"] = s.clientCount()
	}
	writeJSON(w, payload)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	s.mu.Lock()
	writeMu := &sync.Mutex{}
	s.clients[conn] = writeMu
	s.mu.Unlock()

	_ = s.writeJSONConn(conn, writeMu, map[string]any{
		"type":      "config",
		"interval":  s.cfg.IntervalSec,
		"threshold": s.cfg.Threshold,
		"workers":   s.cfg.Workers,
	})

	go func() {
		done := make(chan struct{})
		go func() {
			ticker := time.NewTicker(pingEvery)
			defer ticker.Stop()
			for {
				select {
				case <-done:
					return
				case <-ticker.C:
					if err := s.writeMessage(conn, writeMu, websocket.PingMessage, nil); err != nil {
						_ = conn.Close()
						return
					}
				}
			}
		}()
		defer close(done)
		defer s.removeClient(conn)
		for {
			messageType, payload, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if messageType != websocket.TextMessage {
				continue
			}
			var request map[string]any
			if err := json.Unmarshal(payload, &request); err != nil {
				continue
			}
			if request["type"] == "verdict_request" {
				if s.deps.VerdictFn == nil {
					continue
				}
				verdict := s.deps.VerdictFn()
				if verdict == nil {
					continue
				}
				_ = s.writeJSONConn(conn, writeMu, verdict)
			}
		}
	}()
}

func (s *Server) broadcast(ctx context.Context, messages <-chan any) {
	for {
		select {
		case <-ctx.Done():
			return
		case message, ok := <-messages:
			if !ok {
				return
			}
			payload, err := json.Marshal(message)
			if err != nil {
				continue
			}
			var stale []*websocket.Conn
			s.mu.Lock()
			for conn, writeMu := range s.clients {
				if err := s.writeMessage(conn, writeMu, websocket.TextMessage, payload); err != nil {
					stale = append(stale, conn)
				}
			}
			s.mu.Unlock()
			for _, conn := range stale {
				s.removeClient(conn)
			}
		}
	}
}

func (s *Server) removeClient(conn *websocket.Conn) {
	s.mu.Lock()
	delete(s.clients, conn)
	s.mu.Unlock()
	conn.Close()
}

func (s *Server) clientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

func (s *Server) writeJSONConn(conn *websocket.Conn, writeMu *sync.Mutex, payload any) error {
	writeMu.Lock()
	defer writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(payload)
}

func (s *Server) writeMessage(conn *websocket.Conn, writeMu *sync.Mutex, messageType int, payload []byte) error {
	writeMu.Lock()
	defer writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(messageType, payload)
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError renders the structured pipeline error shape. The response
// is 200 with success=false so browser consumers always get a body to
// display.
func writeError(w http.ResponseWriter, err error) {
	var pErr *types.PipelineError
	if !errors.As(err, &pErr) {
		pErr = types.Errf("pipeline", "%v", err)
	}
	writeJSON(w, map[string]any{
		"success": false,
		"error":   pErr,
	})
}

func formFloat(r *http.Request, key string, fallback float64) float64 {
	v := r.FormValue(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}
