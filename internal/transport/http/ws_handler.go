package http

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/auth"
	"live-quiz-service/internal/domain"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

// WSHandler streams freshly computed views to hosts and players and accepts their commands.
type WSHandler struct {
	service  *app.SessionService
	events   app.EventSubscriber
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.SessionService, events app.EventSubscriber) *WSHandler {
	return &WSHandler{
		service: service,
		events:  events,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type revealPayload struct {
	Reveal bool `json:"reveal"`
}

type answerPayload struct {
	QuestionID      string  `json:"questionId"`
	Answer          string  `json:"answer"`
	TimeTaken       float64 `json:"timeTaken"`
	ClientTimestamp int64   `json:"clientTimestamp"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

func errorMessage(err error) outboundMessage[any] {
	msg := err.Error()
	if statusFor(err) == http.StatusInternalServerError {
		log.Printf("ws command failed: %v", err)
		msg = "internal error"
	}
	return outboundMessage[any]{Type: "error", Payload: errorPayload{Message: msg}}
}

// renderFunc computes the view pushed after every session change.
type renderFunc func(ctx context.Context) (any, error)

// commandFunc handles one inbound message; a nil reply sends nothing.
type commandFunc func(ctx context.Context, msg inboundMessage) *outboundMessage[any]

// ServeHost streams the host view and executes host commands.
func (h *WSHandler) ServeHost(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["sessionID"]
	hostID := auth.HostID(r.Context())

	render := func(ctx context.Context) (any, error) {
		return h.service.HostView(ctx, sessionID, hostID)
	}
	command := func(ctx context.Context, msg inboundMessage) *outboundMessage[any] {
		var err error
		switch msg.Type {
		case "start":
			_, err = h.service.StartQuiz(ctx, sessionID, hostID)
		case "leaderboard":
			_, err = h.service.ShowLeaderboard(ctx, sessionID, hostID)
		case "next":
			_, err = h.service.NextQuestion(ctx, sessionID, hostID)
		case "reveal":
			var payload revealPayload
			if jerr := json.Unmarshal(msg.Payload, &payload); jerr != nil {
				return &outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid reveal payload"}}
			}
			_, err = h.service.SetRevealAnswer(ctx, sessionID, hostID, payload.Reveal)
		case "end":
			_, err = h.service.EndQuiz(ctx, sessionID, hostID)
		default:
			return &outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "unsupported message type"}}
		}
		if err != nil {
			reply := errorMessage(err)
			return &reply
		}
		return nil
	}
	h.serve(w, r, sessionID, "hostView", render, command)
}

// ServePlayer streams the masked player view and accepts answers.
func (h *WSHandler) ServePlayer(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	sessionID, participantID := vars["sessionID"], vars["participantID"]

	render := func(ctx context.Context) (any, error) {
		return h.service.PlayerView(ctx, sessionID, participantID)
	}
	command := func(ctx context.Context, msg inboundMessage) *outboundMessage[any] {
		if msg.Type != "answer" {
			return &outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "unsupported message type"}}
		}
		var payload answerPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			return &outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid answer payload"}}
		}
		result, err := h.service.SubmitAnswer(ctx, domain.AnswerSubmission{
			ParticipantID:   participantID,
			QuestionID:      payload.QuestionID,
			SessionID:       sessionID,
			Answer:          payload.Answer,
			TimeTaken:       payload.TimeTaken,
			ClientTimestamp: payload.ClientTimestamp,
		})
		if err != nil {
			reply := errorMessage(err)
			return &reply
		}
		return &outboundMessage[any]{Type: "answerResult", Payload: result}
	}
	h.serve(w, r, sessionID, "playerView", render, command)
}

func (h *WSHandler) serve(w http.ResponseWriter, r *http.Request, sessionID, viewType string, render renderFunc, command commandFunc) {
	ctx := r.Context()

	// Subscribe before the first render so no change falls between them.
	updates, cancel, err := h.events.Subscribe(ctx, sessionID)
	if err != nil {
		writeError(w, err)
		return
	}
	defer cancel()

	// Reject unknown sessions and foreign callers before upgrading.
	initial, err := render(ctx)
	if err != nil {
		writeError(w, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		for {
			select {
			case _, ok := <-updates:
				if !ok {
					return
				}
				view, err := render(ctx)
				msg := outboundMessage[any]{Type: viewType, Payload: view}
				if err != nil {
					msg = errorMessage(err)
				}
				select {
				case send <- msg:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	send <- outboundMessage[any]{Type: viewType, Payload: initial}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		if reply := command(ctx, inbound); reply != nil {
			send <- *reply
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}
