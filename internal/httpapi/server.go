package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/cartridge/experience/internal/middleware"
	"github.com/cartridge/experience/internal/service"
	"github.com/cartridge/experience/replay"
)

const maxBodyBytes = 8 << 20

// Server wires HTTP handlers to the replay service.
type Server struct {
	svc    *service.Service
	logger zerolog.Logger
}

// NewServer constructs a Server instance.
func NewServer(svc *service.Service, logger zerolog.Logger) *Server {
	return &Server{svc: svc, logger: logger}
}

// Routes builds the HTTP router for the replay service.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.CorrelationID)
	r.Use(middleware.RequestLogger(s.logger))
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/transitions", s.handleAppend)
		r.Post("/transitions/batch", s.handleAppendBatch)
		r.Post("/sample", s.handleSample)
		r.Get("/stats", s.handleStats)
		r.Post("/clear", s.handleClear)
	})
	return r
}

func (s *Server) handleAppend(w http.ResponseWriter, r *http.Request) {
	var payload service.TransitionJSON
	if !s.decode(w, r, &payload) {
		return
	}
	resp, err := s.svc.Append(r.Context(), payload)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleAppendBatch(w http.ResponseWriter, r *http.Request) {
	var payload []service.TransitionJSON
	if !s.decode(w, r, &payload) {
		return
	}
	resp, err := s.svc.AppendBatch(r.Context(), payload)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleSample(w http.ResponseWriter, r *http.Request) {
	var payload service.SampleRequest
	if !s.decode(w, r, &payload) {
		return
	}
	resp, err := s.svc.Sample(r.Context(), payload)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.svc.Stats(r.Context()))
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.svc.Clear(r.Context()))
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, into any) bool {
	defer r.Body.Close()
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(into); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return false
	}
	return true
}

func (s *Server) respondError(w http.ResponseWriter, err error) {
	var (
		schemaErr  *replay.SchemaError
		unknownErr *replay.UnknownStrategyError
		shapeErr   *replay.ShapeError
		decodeErr  *service.DecodeError
	)
	switch {
	case errors.As(err, &schemaErr), errors.As(err, &unknownErr),
		errors.As(err, &shapeErr), errors.As(err, &decodeErr):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, replay.ErrEmptySample):
		s.writeError(w, http.StatusConflict, err.Error())
	default:
		s.logger.Error().Err(err).Msg("request failed")
		s.writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error().Err(err).Msg("failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
