package web

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"homepanel/internal/cache"
	appLog "homepanel/internal/log"
	"homepanel/internal/present"
)

//go:embed templates/*.html
var templateFS embed.FS

// Panels is the delivery contract the server renders. *dashboard.Service
// satisfies it.
type Panels interface {
	Weather(ctx context.Context) present.Result[present.WeatherView]
	Events(ctx context.Context) present.Result[present.EventsView]
}

// Server provides the panel pages, their JSON variants, /health and
// /metrics.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	panels     Panels
	tmpl       *template.Template
	logger     appLog.Logger
}

// NewServer constructs a new Server bound to listen.
func NewServer(listen string, panels Panels, logger appLog.Logger) (*Server, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}

	s := &Server{
		mux:    http.NewServeMux(),
		panels: panels,
		tmpl:   tmpl,
		logger: logger,
	}
	s.httpServer = &http.Server{
		Addr:              listen,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
		// 캐시가 만료된 경우 요청 안에서 외부 API를 호출하므로 여유를 둔다.
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	s.registerRoutes()
	return s, nil
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "listen", "http://"+s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.Handle("GET /metrics", promhttp.Handler())

	s.mux.HandleFunc("GET /api/weather", s.handleWeatherJSON)
	s.mux.HandleFunc("GET /api/events", s.handleEventsJSON)

	s.mux.HandleFunc("GET /weather", s.handleWeatherPage)
	s.mux.HandleFunc("GET /events", s.handleEventsPage)
	s.mux.HandleFunc("GET /{$}", s.handleIndex)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// panel is the template data of one panel: either a view or an error
// message, or both for a stale view.
type panel[T any] struct {
	View    T
	HasView bool
	Stale   bool
	Error   string
}

func newPanel[T any](res present.Result[T]) panel[T] {
	p := panel[T]{View: res.View, HasView: res.HasView(), Stale: res.Stale}
	if res.Err != nil {
		p.Error = errorMessage(res.Err)
	}
	return p
}

// errorMessage maps an error to the text shown on the panel. Details stay
// in the log.
func errorMessage(err error) string {
	switch {
	case errors.Is(err, cache.ErrFetch):
		return "source unavailable"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "request timed out"
	default:
		return "something went wrong"
	}
}

type pageData struct {
	Title   string
	Weather *panel[present.WeatherView]
	Events  *panel[present.EventsView]
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	weather := newPanel(s.panels.Weather(r.Context()))
	events := newPanel(s.panels.Events(r.Context()))
	s.render(w, "index.html", pageData{Title: "Home Panel", Weather: &weather, Events: &events})
}

func (s *Server) handleWeatherPage(w http.ResponseWriter, r *http.Request) {
	weather := newPanel(s.panels.Weather(r.Context()))
	s.render(w, "index.html", pageData{Title: "Home Panel · Weather", Weather: &weather})
}

func (s *Server) handleEventsPage(w http.ResponseWriter, r *http.Request) {
	events := newPanel(s.panels.Events(r.Context()))
	s.render(w, "index.html", pageData{Title: "Home Panel · Events", Events: &events})
}

// render executes a template into w. Panel errors are part of the data, so
// a failure here is a template bug.
func (s *Server) render(w http.ResponseWriter, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.tmpl.ExecuteTemplate(w, name, data); err != nil {
		s.logger.Error("failed to render template", err, "template", name)
	}
}

// apiResponse is the JSON shape of /api/weather and /api/events. Data is
// omitted when there is nothing to show.
type apiResponse[T any] struct {
	Data  *T     `json:"data,omitempty"`
	Stale bool   `json:"stale"`
	Error string `json:"error,omitempty"`
}

func (s *Server) handleWeatherJSON(w http.ResponseWriter, r *http.Request) {
	writeResult(s, w, s.panels.Weather(r.Context()))
}

func (s *Server) handleEventsJSON(w http.ResponseWriter, r *http.Request) {
	writeResult(s, w, s.panels.Events(r.Context()))
}

func writeResult[T any](s *Server, w http.ResponseWriter, res present.Result[T]) {
	if !res.HasView() {
		s.writeError(w, http.StatusServiceUnavailable, errorMessage(res.Err))
		return
	}
	resp := apiResponse[T]{Data: &res.View, Stale: res.Stale}
	if res.Err != nil {
		resp.Error = errorMessage(res.Err)
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// 헤더는 이미 나갔으므로 로그만 남긴다.
		s.logger.Error("failed to write JSON response", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	s.writeJSON(w, status, errResp{Error: msg})
}
