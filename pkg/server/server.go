// Package server exposes the notebooklet registry over HTTP: browse,
// search and run notebooklets without an interactive session.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/opensoc/notebooklets/pkg/config"
	"github.com/opensoc/notebooklets/pkg/display"
	"github.com/opensoc/notebooklets/pkg/middleware"
	"github.com/opensoc/notebooklets/pkg/nberrors"
	"github.com/opensoc/notebooklets/pkg/notebooklet"
	"github.com/opensoc/notebooklets/pkg/observability"
	"github.com/opensoc/notebooklets/pkg/registry"
	"github.com/opensoc/notebooklets/pkg/timespan"
)

// Service is the HTTP API server for the notebooklet registry.
type Service struct {
	log     *logrus.Logger
	cfg     config.ServerConfig
	metrics bool
	reg     *registry.Registry
	env     *notebooklet.Environment
	rate    *middleware.RateLimiter

	httpServer *http.Server
}

// NewService creates a new API server around a ready registry and the
// environment notebooklets run against.
func NewService(
	log *logrus.Logger,
	cfg config.ServerConfig,
	metricsEnabled bool,
	reg *registry.Registry,
	env *notebooklet.Environment,
) *Service {
	return &Service{
		log:     log,
		cfg:     cfg,
		metrics: metricsEnabled,
		reg:     reg,
		env:     env,
		rate:    middleware.NewRateLimiter(log, cfg.RateLimit),
	}
}

// Start begins serving. It blocks until the listener fails or Stop is
// called.
func (s *Service) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.log.WithFields(logrus.Fields{
		"address":      addr,
		"auth_enabled": s.cfg.Auth.Enabled,
	}).Info("Notebooklet API server starting")

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}

	return nil
}

// Stop gracefully shuts the server down.
func (s *Service) Stop(ctx context.Context) error {
	defer func() { _ = s.rate.Close() }()

	if s.httpServer == nil {
		return nil
	}

	s.log.Info("Notebooklet API server stopping")

	return s.httpServer.Shutdown(ctx)
}

func (s *Service) router() http.Handler {
	r := chi.NewRouter()

	r.Use(observability.NewLoggingMiddleware(s.log).Middleware())

	r.Get("/healthz", s.handleHealth)

	if s.metrics {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		if s.cfg.Auth.Enabled {
			r.Use(s.authMiddleware)
		}

		r.With(s.rate.Middleware("browse")).Get("/notebooklets", s.handleList)
		r.With(s.rate.Middleware("browse")).Get("/notebooklets/search", s.handleSearch)
		r.With(s.rate.Middleware("browse")).Get("/notebooklets/{path}", s.handleDetail)
		r.With(s.rate.Middleware("run")).Post("/notebooklets/{path}/run", s.handleRun)
	})

	return r
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":            "ok",
		"registry_state":    s.reg.State().String(),
		"notebooklet_count": s.reg.Count(),
	})
}

// notebookletInfo is the JSON shape of one registry entry.
type notebookletInfo struct {
	Path           string   `json:"path"`
	Name           string   `json:"name"`
	Description    string   `json:"description"`
	EntityTypes    []string `json:"entity_types,omitempty"`
	Keywords       []string `json:"keywords,omitempty"`
	DefaultOptions []string `json:"default_options,omitempty"`
	AllOptions     []string `json:"all_options,omitempty"`
	ReqProviders   []string `json:"req_providers,omitempty"`
}

func entryInfo(entry *registry.Entry) notebookletInfo {
	return notebookletInfo{
		Path:           entry.Path,
		Name:           entry.Meta.Name,
		Description:    entry.Meta.Description,
		EntityTypes:    entry.Meta.EntityTypes,
		Keywords:       entry.Meta.Keywords,
		DefaultOptions: entry.Meta.DefaultOptionNames(),
		AllOptions:     entry.Meta.AllOptionNames(),
		ReqProviders:   entry.Meta.ReqProviders,
	}
}

func (s *Service) handleList(w http.ResponseWriter, r *http.Request) {
	entries := s.reg.All()
	infos := make([]notebookletInfo, 0, len(entries))

	for _, entry := range entries {
		infos = append(infos, entryInfo(entry))
	}

	writeJSON(w, http.StatusOK, map[string]any{"notebooklets": infos})
}

func (s *Service) handleSearch(w http.ResponseWriter, r *http.Request) {
	terms := r.URL.Query().Get("terms")
	if terms == "" {
		writeError(w, http.StatusBadRequest, "query parameter \"terms\" is required")

		return
	}

	fullMatch := r.URL.Query().Get("full") == "true"

	matches := s.reg.Find(terms, fullMatch)
	results := make([]map[string]any, 0, len(matches))

	for _, match := range matches {
		results = append(results, map[string]any{
			"path":        match.Entry.Path,
			"score":       match.Score,
			"description": match.Entry.Meta.Description,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"matches": results})
}

func (s *Service) handleDetail(w http.ResponseWriter, r *http.Request) {
	path := chi.URLParam(r, "path")

	entry, ok := s.reg.Get(path)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("notebooklet %q not found", path))

		return
	}

	info := entryInfo(entry)

	sections := make(map[string]string, len(entry.Meta.Sections))
	for key, section := range entry.Meta.Sections {
		sections[key] = section.Title
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"notebooklet": info,
		"options_doc": entry.Meta.OptionsDoc(),
		"sections":    sections,
	})
}

// runRequest is the body of a run call. Start and End accept any
// parseable datetime string.
type runRequest struct {
	Value   string   `json:"value"`
	Start   string   `json:"start"`
	End     string   `json:"end,omitempty"`
	Options []string `json:"options,omitempty"`
}

type runField struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Value       any    `json:"value"`
}

type runResponse struct {
	Path        string            `json:"path"`
	Description string            `json:"description"`
	Timespan    timespan.TimeSpan `json:"timespan"`
	Fields      []runField        `json:"fields"`
}

func (s *Service) handleRun(w http.ResponseWriter, r *http.Request) {
	path := chi.URLParam(r, "path")

	entry, ok := s.reg.Get(path)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("notebooklet %q not found", path))

		return
	}

	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("decoding request body: %v", err))

		return
	}

	ts, err := timespan.Parse(req.Start, req.End)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())

		return
	}

	// API runs never render; results are returned as JSON.
	env := &notebooklet.Environment{
		Providers: s.env.Providers,
		Display:   display.NewEmitter(observability.GetLogger(r.Context()), display.NewConsole(io.Discard)),
		Log:       observability.GetLogger(r.Context()),
		Silent:    true,
	}

	nb, err := entry.New(env)
	if err != nil {
		writeError(w, statusForError(err), err.Error())

		return
	}

	started := time.Now()

	result, err := nb.Run(r.Context(), notebooklet.RunParams{
		Value:    req.Value,
		Timespan: ts,
		Options:  req.Options,
	})

	observability.ObserveRun(path, started, err)

	if err != nil {
		writeError(w, statusForError(err), err.Error())

		return
	}

	fields := make([]runField, 0)

	for _, field := range result.Fields() {
		if !notebooklet.HasData(field.Value) {
			continue
		}

		fields = append(fields, runField{
			Name:        field.Name,
			Description: field.Description,
			Value:       field.Value,
		})
	}

	writeJSON(w, http.StatusOK, runResponse{
		Path:        path,
		Description: result.Description(),
		Timespan:    result.Timespan(),
		Fields:      fields,
	})
}

// statusForError maps the notebooklet error taxonomy to HTTP status
// codes.
func statusForError(err error) int {
	var (
		invalidOption *nberrors.InvalidOptionError
		missingParam  *nberrors.MissingParameterError
		missingProv   *nberrors.MissingProviderError
		configErr     *nberrors.ConfigurationError
	)

	switch {
	case errors.As(err, &invalidOption), errors.As(err, &missingParam):
		return http.StatusBadRequest
	case errors.As(err, &missingProv), errors.As(err, &configErr):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
