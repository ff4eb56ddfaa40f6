// Package server exposes a browser session over local HTTP: the current tree
// snapshot, a toggle endpoint, a websocket event stream and Prometheus
// metrics.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/deployview/deployview/internal/browser"
	"github.com/deployview/deployview/internal/events"
	"github.com/deployview/deployview/internal/logging"
	"github.com/deployview/deployview/internal/metrics"
	"github.com/deployview/deployview/pkg/filetree"
)

const writeTimeout = 10 * time.Second

// Server serves one browser session.
type Server struct {
	session  *browser.Session
	events   *events.Broadcaster
	upgrader websocket.Upgrader
}

// New creates a server for session. bc must be the broadcaster the session
// publishes to.
func New(session *browser.Session, bc *events.Broadcaster) *Server {
	return &Server{
		session: session,
		events:  bc,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}
}

// TreeResponse is returned by GET /api/tree/{root}.
type TreeResponse struct {
	Deployment  string          `json:"deployment"`
	Root        string          `json:"root"`
	MatchPolicy string          `json:"matchPolicy"`
	Nodes       []filetree.Node `json:"nodes"`
}

// ToggleResponse is returned by POST /api/tree/{root}/toggle.
type ToggleResponse struct {
	Path    string `json:"path"`
	Outcome string `json:"outcome"`
	Error   string `json:"error,omitempty"`
}

// Handler returns the HTTP handler with all routes.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok\n"))
	}).Methods("GET")
	r.Handle("/metrics", metrics.Handler()).Methods("GET")
	r.HandleFunc("/api/tree/{root:src|out}", s.handleTree).Methods("GET")
	r.HandleFunc("/api/tree/{root:src|out}/toggle", s.handleToggle).Methods("POST")
	r.HandleFunc("/api/events", s.handleEvents).Methods("GET")
	return logging.Middleware(r)
}

// ListenAndServe serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info("observer server listening", logging.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleTree(w http.ResponseWriter, r *http.Request) {
	root := filetree.Root(mux.Vars(r)["root"])
	tree := s.session.Tree(root)
	writeJSON(w, http.StatusOK, TreeResponse{
		Deployment:  s.session.Deployment(),
		Root:        string(root),
		MatchPolicy: tree.Policy().String(),
		Nodes:       filetree.Export(tree.Snapshot()),
	})
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	root := filetree.Root(mux.Vars(r)["root"])
	path := r.URL.Query().Get("path")
	if path == "" {
		writeJSON(w, http.StatusBadRequest, ToggleResponse{Error: "path is required"})
		return
	}

	outcome, err := s.session.Tap(r.Context(), root, path)
	resp := ToggleResponse{Path: filetree.Clean(path), Outcome: outcome.String()}
	status := http.StatusOK
	switch {
	case errors.Is(err, browser.ErrBusy):
		status = http.StatusConflict
		resp.Outcome = "busy"
	case errors.Is(err, browser.ErrClosed):
		status = http.StatusGone
	case err != nil:
		status = http.StatusBadGateway
	}
	if err != nil {
		resp.Error = err.Error()
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	log := logging.WithContext(r.Context())

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer ws.Close()

	ch := s.events.Subscribe()
	defer s.events.Unsubscribe(ch)

	// Reader detects the client going away; incoming messages are ignored.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-gone:
			return
		case <-r.Context().Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := ws.WriteJSON(e); err != nil {
				log.Debug("websocket write failed", zap.Error(err))
				return
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
