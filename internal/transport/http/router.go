package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"os"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/auth"
	"live-quiz-service/internal/domain"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
)

// API exposes session commands and views over REST.
type API struct {
	service *app.SessionService
}

// NewRouter wires REST and websocket routes behind auth, CORS and access logging.
func NewRouter(service *app.SessionService, events app.EventSubscriber, verifier *auth.Verifier, accessLog io.Writer) http.Handler {
	api := &API{service: service}
	ws := NewWSHandler(service, events)

	r := mux.NewRouter()
	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}).Methods(http.MethodGet)

	r.HandleFunc("/sessions", api.createSession).Methods(http.MethodPost)
	r.HandleFunc("/join/{code}", api.lookupJoinCode).Methods(http.MethodGet)
	r.HandleFunc("/join/{code}", api.joinSession).Methods(http.MethodPost)

	s := r.PathPrefix("/sessions/{sessionID}").Subrouter()
	s.HandleFunc("/start", api.hostCommand(service.StartQuiz)).Methods(http.MethodPost)
	s.HandleFunc("/leaderboard", api.hostCommand(service.ShowLeaderboard)).Methods(http.MethodPost)
	s.HandleFunc("/next", api.hostCommand(service.NextQuestion)).Methods(http.MethodPost)
	s.HandleFunc("/end", api.hostCommand(service.EndQuiz)).Methods(http.MethodPost)
	s.HandleFunc("/reveal", api.setReveal).Methods(http.MethodPut)
	s.HandleFunc("/answers", api.submitAnswer).Methods(http.MethodPost)
	s.HandleFunc("/host", api.hostView).Methods(http.MethodGet)
	s.HandleFunc("/players/{participantID}", api.playerView).Methods(http.MethodGet)

	r.HandleFunc("/ws/sessions/{sessionID}/host", ws.ServeHost)
	r.HandleFunc("/ws/sessions/{sessionID}/players/{participantID}", ws.ServePlayer)

	var h http.Handler = verifier.Middleware(r)
	h = handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Authorization", "Content-Type"}),
	)(h)
	if accessLog == nil {
		accessLog = os.Stdout
	}
	return handlers.LoggingHandler(accessLog, h)
}

type createSessionRequest struct {
	QuizID string `json:"quizId"`
}

type createSessionResponse struct {
	SessionID string `json:"sessionId"`
	JoinCode  string `json:"joinCode"`
}

type joinRequest struct {
	Name string `json:"name"`
}

type revealRequest struct {
	Reveal bool `json:"reveal"`
}

type submitAnswerRequest struct {
	ParticipantID   string  `json:"participantId"`
	QuestionID      string  `json:"questionId"`
	Answer          string  `json:"answer"`
	TimeTaken       float64 `json:"timeTaken"`
	ClientTimestamp int64   `json:"clientTimestamp"`
}

func (a *API) createSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if !decode(w, r, &req) {
		return
	}
	session, err := a.service.CreateSession(r.Context(), req.QuizID, auth.HostID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, createSessionResponse{SessionID: session.ID, JoinCode: session.JoinCode})
}

func (a *API) lookupJoinCode(w http.ResponseWriter, r *http.Request) {
	lookup, err := a.service.LookupJoinCode(r.Context(), mux.Vars(r)["code"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lookup)
}

func (a *API) joinSession(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if !decode(w, r, &req) {
		return
	}
	joined, err := a.service.JoinSession(r.Context(), mux.Vars(r)["code"], req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, joined)
}

type hostOperation func(ctx context.Context, sessionID, hostID string) (domain.Session, error)

func (a *API) hostCommand(op hostOperation) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, err := op(r.Context(), mux.Vars(r)["sessionID"], auth.HostID(r.Context()))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, session)
	}
}

func (a *API) setReveal(w http.ResponseWriter, r *http.Request) {
	var req revealRequest
	if !decode(w, r, &req) {
		return
	}
	session, err := a.service.SetRevealAnswer(r.Context(), mux.Vars(r)["sessionID"], auth.HostID(r.Context()), req.Reveal)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (a *API) submitAnswer(w http.ResponseWriter, r *http.Request) {
	var req submitAnswerRequest
	if !decode(w, r, &req) {
		return
	}
	result, err := a.service.SubmitAnswer(r.Context(), domain.AnswerSubmission{
		ParticipantID:   req.ParticipantID,
		QuestionID:      req.QuestionID,
		SessionID:       mux.Vars(r)["sessionID"],
		Answer:          req.Answer,
		TimeTaken:       req.TimeTaken,
		ClientTimestamp: req.ClientTimestamp,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) hostView(w http.ResponseWriter, r *http.Request) {
	view, err := a.service.HostView(r.Context(), mux.Vars(r)["sessionID"], auth.HostID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *API) playerView(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	view, err := a.service.PlayerView(r.Context(), vars["sessionID"], vars["participantID"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorPayload{Message: "invalid request body"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError reports domain errors verbatim; anything else is logged and answered generically.
func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Printf("request failed: %v", err)
		writeJSON(w, status, errorPayload{Message: "internal error"})
		return
	}
	writeJSON(w, status, errorPayload{Message: err.Error()})
}

// statusFor maps the domain error classes onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidState), errors.Is(err, domain.ErrVersionConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrJoinCodeExhausted):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
