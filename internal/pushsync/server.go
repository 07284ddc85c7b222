// Package pushsync exposes the profile collection to external clients over
// a local-only HTTP endpoint and pushes change events to subscribers over
// long-lived SSE streams. The expected peer is a browser extension, hence
// the permissive CORS and absent authentication: the listener binds to
// loopback only.
package pushsync

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/net/netutil"

	"github.com/stylist-dev/stylist/internal/profile"
)

// DefaultPort is the loopback port the push server binds by default.
const DefaultPort = 8765

// maxConns bounds concurrent connections; each open push stream holds one.
const maxConns = 64

const maxRequestBodySize = 1 << 20 // 1MB

// Event is the frame pushed to sync subscribers.
type Event struct {
	Type      string          `json:"type"`
	Profiles  *profile.Config `json:"profiles,omitempty"`
	Source    string          `json:"source,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// Server is the push sync endpoint plus its subscriber registry.
type Server struct {
	store   *profile.Manager
	addr    string
	version string
	logger  *slog.Logger

	mu      sync.Mutex
	running bool
	httpSrv *http.Server
	subs    map[int]chan []byte
	nextSub int
}

// NewServer creates a push sync server bound to 127.0.0.1:port.
func NewServer(store *profile.Manager, port int, version string) *Server {
	if port <= 0 {
		port = DefaultPort
	}
	return &Server{
		store:   store,
		addr:    fmt.Sprintf("127.0.0.1:%d", port),
		version: version,
		logger:  slog.Default(),
		subs:    make(map[int]chan []byte),
	}
}

// Handler returns the HTTP handler (exposed for tests).
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(corsMiddleware)

	r.Get("/health", s.handleHealth)
	r.Get("/profiles", s.handleGetProfiles)
	r.Post("/profiles", s.handlePostProfiles)
	r.Get("/sync", s.handleSync)

	return r
}

// Start binds the listener and begins serving. It is idempotent; a second
// call on a running server is a no-op. A bind failure (port already taken)
// is returned to the caller, which should degrade to "sync disabled"
// rather than exit.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("binding %s: %w", s.addr, err)
	}
	ln = netutil.LimitListener(ln, maxConns)

	s.httpSrv = &http.Server{
		Handler: s.Handler(),
		// No global write timeout: push streams are long-lived by design.
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.running = true

	go func() {
		if err := s.httpSrv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("push sync server error", "error", err)
		}
	}()

	s.logger.Info("push sync server listening", "addr", s.addr)
	return nil
}

// Stop shuts the server down: close all open push streams, stop accepting
// new connections, release the port. Idempotent.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	srv := s.httpSrv
	s.httpSrv = nil
	for id, ch := range s.subs {
		close(ch)
		delete(s.subs, id)
	}
	s.mu.Unlock()

	return srv.Shutdown(ctx)
}

// RunEvents forwards store change events to subscribers until ctx is
// cancelled. Changes that arrived over this server's own POST endpoint are
// skipped; the POST handler already broadcast them.
func (s *Server) RunEvents(ctx context.Context) {
	changes, unsubscribe := s.store.Subscribe()
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-changes:
			if !ok {
				return
			}
			if ev.Origin == profile.OriginNetwork {
				continue
			}
			cfg := ev.Config
			s.Broadcast(Event{
				Type:      "profiles_updated",
				Profiles:  &cfg,
				Source:    "local",
				Timestamp: time.Now().UTC(),
			})
		}
	}
}

// NotifyChanged reads the current collection and pushes it to all
// subscribers tagged as a local change.
func (s *Server) NotifyChanged() error {
	cfg, err := s.store.GetAll()
	if err != nil {
		return err
	}
	s.Broadcast(Event{
		Type:      "profiles_updated",
		Profiles:  &cfg,
		Source:    "local",
		Timestamp: time.Now().UTC(),
	})
	return nil
}

// Broadcast delivers the event to every open subscriber. A subscriber that
// cannot accept the event is skipped with a warning; one bad connection
// never aborts delivery to the rest.
func (s *Server) Broadcast(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		s.logger.Error("encoding push event", "error", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, ch := range s.subs {
		select {
		case ch <- data:
		default:
			s.logger.Warn("push subscriber not draining, skipping", "subscriber", id, "type", ev.Type)
		}
	}
}

// SubscriberCount reports the number of open push streams.
func (s *Server) SubscriberCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

func (s *Server) addSubscriber() (int, chan []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	ch := make(chan []byte, 16)
	s.subs[id] = ch
	return id, ch
}

func (s *Server) removeSubscriber(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ch, ok := s.subs[id]; ok {
		delete(s.subs, id)
		close(ch)
	}
}

// --- Handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "ok",
		"version": s.version,
		"service": "stylist",
	})
}

func (s *Server) handleGetProfiles(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.store.GetAll()
	if err != nil {
		httpError(w, http.StatusInternalServerError, "api_error", "failed to read profiles: %v", err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(cfg)
}

func (s *Server) handlePostProfiles(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()

	buf, err := io.ReadAll(r.Body)
	if err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "reading request body: %v", err)
		return
	}

	cfg, err := profile.ParseConfig(buf)
	if err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
		return
	}

	if err := s.store.Save(cfg, profile.OriginNetwork); err != nil {
		httpError(w, http.StatusInternalServerError, "api_error", "failed to save profiles: %v", err)
		return
	}

	s.Broadcast(Event{
		Type:      "profiles_updated",
		Profiles:  &cfg,
		Source:    "network",
		Timestamp: time.Now().UTC(),
	})

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":   "ok",
		"profiles": len(cfg.List),
	})
}

// handleSync opens a long-lived push stream: an immediate connected event,
// then one data frame per broadcast until the client goes away.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		httpError(w, http.StatusInternalServerError, "api_error", "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	id, ch := s.addSubscriber()
	defer s.removeSubscriber(id)

	hello, _ := json.Marshal(Event{Type: "connected", Timestamp: time.Now().UTC()})
	fmt.Fprintf(w, "data: %s\n\n", hello)
	flusher.Flush()

	s.logger.Debug("push subscriber connected", "subscriber", id)

	for {
		select {
		case <-r.Context().Done():
			s.logger.Debug("push subscriber disconnected", "subscriber", id)
			return
		case data, ok := <-ch:
			if !ok {
				return
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
				s.logger.Warn("push stream write failed", "subscriber", id, "error", err)
				return
			}
			flusher.Flush()
		}
	}
}

// --- Helpers ---

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
