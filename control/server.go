package control

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"pokezero/encoder"
	"pokezero/gamemaster"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
)

// Server is the HTTP control surface of a running battle: it queues directed moves and serves
// the encoded turns.
type Server struct {
	manager    *gamemaster.Manager
	directives *gamemaster.Directives
	hub        *Hub
	startTime  time.Time
}

func NewServer(manager *gamemaster.Manager, directives *gamemaster.Directives, hub *Hub) *Server {
	return &Server{
		manager:    manager,
		directives: directives,
		hub:        hub,
		startTime:  time.Now(),
	}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Get("/health", s.handleHealth)
	r.Get("/schema", s.handleSchema)
	r.Get("/turns", s.handleTurns)
	r.Get("/turns/{turn}/vector", s.handleVector)
	r.Post("/players/{name}/move", s.handleMove)
	r.Handle("/feed", s.hub)

	return r
}

type MoveRequest struct {
	Move string `json:"move"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"manager":     s.manager.Name(),
		"battle":      s.manager.BattleID(),
		"turns":       s.manager.Turns().Len(),
		"subscribers": s.hub.Len(),
		"uptime":      time.Since(s.startTime).String(),
	})
}

func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	schema := s.manager.Schema()
	writeJSON(w, http.StatusOK, struct {
		Length int             `json:"length"`
		Fields []encoder.Field `json:"fields"`
	}{schema.Len(), schema.Fields()})
}

func (s *Server) handleTurns(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]int{"count": s.manager.Turns().Len()})
}

func (s *Server) handleVector(w http.ResponseWriter, r *http.Request) {
	i, err := strconv.Atoi(chi.URLParam(r, "turn"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "turn must be an integer")
		return
	}

	turns := s.manager.Turns()
	vec, err := turns.Vector(i)
	switch {
	case errors.Is(err, gamemaster.ErrTurnOutOfRange):
		writeError(w, http.StatusNotFound, err.Error())
		return
	case errors.Is(err, gamemaster.ErrUnencodable):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	turn, _ := turns.At(i)
	writeJSON(w, http.StatusOK, FeedMessage{Turn: i, ID: turn.StateID, Vector: vec})
}

func (s *Server) handleMove(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if _, ok := s.manager.Player(name); !ok {
		writeError(w, http.StatusNotFound, "unknown player "+name)
		return
	}

	var req MoveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.directives.Push(name, []byte(req.Move)); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	log.Info().Msgf("control: queued directed move for %s: %s", name, req.Move)
	writeJSON(w, http.StatusAccepted, map[string]int{"queued": s.directives.Len(name)})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("control: failed to write response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		log.Debug().
			Str("request_id", middleware.GetReqID(r.Context())).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(start)).
			Msgf("%s %s", r.Method, r.URL.Path)
	})
}
