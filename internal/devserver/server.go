// Package devserver serves the build output with live reload and reruns
// tasks when source files change.
package devserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/leapstack-labs/assetpipe/internal/notifier"
)

const (
	// EventsPath streams live-reload events.
	EventsPath = "/__assetpipe/events"
	// ClientPath serves the live-reload client.
	ClientPath = "/__assetpipe/livereload.js"
)

// ClientTag is injected into every served HTML page.
const ClientTag = `<script src="` + ClientPath + `"></script>`

// clientScript reloads the page, or swaps stylesheets in place on "css".
const clientScript = `(function() {
  var es = new EventSource('` + EventsPath + `');
  es.onmessage = function(e) {
    if (e.data === 'css') {
      var links = document.querySelectorAll('link[rel="stylesheet"]');
      for (var i = 0; i < links.length; i++) {
        var url = new URL(links[i].href);
        url.searchParams.set('_assetpipe', Date.now());
        links[i].href = url.toString();
      }
      return;
    }
    if (e.data === 'reload') {
      window.location.reload();
    }
  };
})();
`

// Config holds configuration for the dev server.
type Config struct {
	// Root is the build output directory.
	Root     string
	Host     string
	Port     int
	Notifier *notifier.Notifier
	Logger   *slog.Logger
}

// Server serves Root with live reload.
type Server struct {
	root     string
	addr     string
	notifier *notifier.Notifier
	logger   *slog.Logger
}

// NewServer creates a dev server.
func NewServer(cfg Config) *Server {
	if cfg.Notifier == nil {
		cfg.Notifier = notifier.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	return &Server{
		root:     cfg.Root,
		addr:     net.JoinHostPort(cfg.Host, fmt.Sprint(cfg.Port)),
		notifier: cfg.Notifier,
		logger:   cfg.Logger,
	}
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.addr
}

// Notifier returns the server's notifier for live-reload events.
func (s *Server) Notifier() *notifier.Notifier {
	return s.notifier
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewMux()
	r.Use(
		middleware.Recoverer,
		middleware.NoCache,
	)

	r.Get(EventsPath, s.handleEvents)
	r.Get(ClientPath, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/javascript; charset=utf-8")
		_, _ = w.Write([]byte(clientScript))
	})
	r.Handle("/*", http.HandlerFunc(s.handleStatic))
	return r
}

// Serve listens on the configured address and blocks until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	return s.ServeListener(ctx, ln)
}

// ServeListener serves on ln until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ServeListener(ctx context.Context, ln net.Listener) error {
	s.logger.Info("serving build output", slog.String("url", "http://"+ln.Addr().String()))

	eg, egctx := errgroup.WithContext(ctx)
	srv := &http.Server{
		Handler: s.Handler(),
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	eg.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.logger.Debug("shutting down dev server")
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}

func (s *Server) handleStatic(w http.ResponseWriter, r *http.Request) {
	urlPath := path.Clean("/" + r.URL.Path)
	file := filepath.Join(s.root, filepath.FromSlash(urlPath))

	info, err := os.Stat(file)
	if err == nil && info.IsDir() {
		file = filepath.Join(file, "index.html")
		info, err = os.Stat(file)
	}
	if err != nil || info.IsDir() {
		http.NotFound(w, r)
		return
	}

	if !strings.EqualFold(filepath.Ext(file), ".html") {
		http.ServeFile(w, r, file)
		return
	}

	data, err := os.ReadFile(file)
	if err != nil {
		http.Error(w, "failed to read page", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(InjectScript(data, ClientTag))
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Connection", "keep-alive")

	ch := s.notifier.Subscribe()
	defer s.notifier.Unsubscribe(ch)

	_, _ = fmt.Fprint(w, "retry: 1000\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			_, _ = fmt.Fprintf(w, "data: %s\n\n", ev)
			flusher.Flush()
		}
	}
}
