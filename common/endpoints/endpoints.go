// Package endpoints serves the admin HTTP endpoints of a running dispatcher.
package endpoints

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/glemaitre/ramp-board-1/common/stats"
)

const shutdownTimeout = 5 * time.Second

func NewAdminServer(addr string, stat stats.StatsReceiver, logsDir string) *AdminServer {
	return &AdminServer{Addr: addr, Stats: stat, LogsDir: logsDir}
}

type AdminServer struct {
	Addr  string
	Stats stats.StatsReceiver
	// Submission logs are served from <LogsDir>/<submission>/log when set.
	LogsDir string
}

func (s *AdminServer) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/", helpHandler)
	r.Get("/health", healthHandler)
	r.Get("/admin/metrics.json", s.statsHandler)
	if s.LogsDir != "" {
		r.Get("/submissions/{submission}/log", s.logHandler)
	}
	return r
}

// Serve blocks until ctx is done or the listener fails.
func (s *AdminServer) Serve(ctx context.Context) error {
	srv := &http.Server{Addr: s.Addr, Handler: s.Handler()}
	errCh := make(chan error, 1)
	go func() {
		log.Infof("Serving http & stats on %s", s.Addr)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func helpHandler(w http.ResponseWriter, r *http.Request) {
	http.Error(w, "Common paths: '/health', '/admin/metrics.json', '/submissions/{SUBMISSION}/log'", http.StatusNotImplemented)
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	fmt.Fprintf(w, "ok")
}

func (s *AdminServer) statsHandler(w http.ResponseWriter, r *http.Request) {
	const contentTypeHdr = "Content-Type"
	const contentTypeVal = "application/json; charset=utf-8"
	w.Header().Set(contentTypeHdr, contentTypeVal)

	pretty := r.URL.Query().Get("pretty") == "true"
	str := s.Stats.Render(pretty)
	if _, err := io.Copy(w, bytes.NewBuffer(str)); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
}

func (s *AdminServer) logHandler(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "submission")
	if name == "" || name != filepath.Base(name) || name == ".." {
		http.Error(w, "bad submission name", http.StatusBadRequest)
		return
	}
	f, err := os.Open(filepath.Join(s.LogsDir, name, "log"))
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer f.Close()
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.Copy(w, f)
}
