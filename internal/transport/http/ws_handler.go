package http

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"exam-portal-service/internal/app"
	"exam-portal-service/internal/domain"
)

// WSHandler streams attempt timing to exam clients: the remaining time and
// a fresh SecureTimestamp on every tick, plus a terminal notice once the
// attempt expires or is submitted. Clients may send their last timestamp
// back for verification; a tampered copy closes the stream.
type WSHandler struct {
	auth     *app.AuthService
	attempts *app.AttemptService
	interval time.Duration
	upgrader websocket.Upgrader
}

func NewWSHandler(auth *app.AuthService, attempts *app.AttemptService, interval time.Duration) *WSHandler {
	if interval == 0 {
		interval = 5 * time.Second
	}
	return &WSHandler{
		auth:     auth,
		attempts: attempts,
		interval: interval,
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

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// ServeWS upgrades the request and wires it into the attempt timer.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	attemptID, err := strconv.ParseInt(chi.URLParam(r, "attemptID"), 10, 64)
	if err != nil {
		http.Error(w, "missing or invalid attemptID", http.StatusBadRequest)
		return
	}
	token := r.URL.Query().Get("token")
	if token == "" {
		token = bearerToken(r)
	}
	if _, _, err := h.auth.ResolveIdentity(r.Context(), token); err != nil {
		http.Error(w, "invalid session", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	send := make(chan outboundMessage[any], 16)
	done := make(chan struct{})
	flush := make(chan struct{})
	writerDone := make(chan struct{})

	// trySend never blocks past a dead writer.
	trySend := func(msg outboundMessage[any]) bool {
		select {
		case send <- msg:
			return true
		case <-writerDone:
			return false
		}
	}

	go func() {
		defer close(writerDone)
		for {
			select {
			case msg := <-send:
				if err := conn.WriteJSON(msg); err != nil {
					log.Printf("ws write error: %v", err)
					return
				}
			case <-flush:
				// Drain whatever is queued, then exit.
				for {
					select {
					case msg := <-send:
						if err := conn.WriteJSON(msg); err != nil {
							log.Printf("ws write error: %v", err)
							return
						}
					default:
						return
					}
				}
			}
		}
	}()

	// Reader: only timestamp-verification messages are expected.
	go func() {
		defer close(done)
		for {
			var inbound inboundMessage
			if err := conn.ReadJSON(&inbound); err != nil {
				return
			}
			switch inbound.Type {
			case "timestamp":
				var ts domain.SecureTimestamp
				if err := json.Unmarshal(inbound.Payload, &ts); err != nil {
					trySend(outboundMessage[any]{Type: "error", Payload: errorPayload{Kind: "InvalidFormat", Message: "invalid timestamp payload"}})
					continue
				}
				if err := h.attempts.VerifyTimestamp(r.Context(), attemptID, ts); err != nil {
					trySend(outboundMessage[any]{Type: "error", Payload: errorPayload{Kind: domain.KindOf(err), Message: domain.UserMessage(err)}})
					return
				}
				trySend(outboundMessage[any]{Type: "timestampOk", Payload: struct{}{}})
			default:
				trySend(outboundMessage[any]{Type: "error", Payload: errorPayload{Kind: "InvalidFormat", Message: "unsupported message type"}})
			}
		}
	}()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	finished := h.push(r, trySend, attemptID)
loop:
	for !finished {
		select {
		case <-ticker.C:
			if finished := h.push(r, trySend, attemptID); finished {
				break loop
			}
		case <-done:
			break loop
		case <-r.Context().Done():
			break loop
		}
	}

	// Flush queued frames before closing the connection; the terminal
	// error or finished notice must reach the client. The close then
	// unblocks the reader.
	close(flush)
	<-writerDone
	_ = conn.Close()
	<-done
}

// push sends the current remaining time; reports true when the stream
// should end.
func (h *WSHandler) push(r *http.Request, trySend func(outboundMessage[any]) bool, attemptID int64) bool {
	remaining, err := h.attempts.Remaining(r.Context(), attemptID)
	if err != nil {
		trySend(outboundMessage[any]{Type: "error", Payload: errorPayload{Kind: domain.KindOf(err), Message: domain.UserMessage(err)}})
		return true
	}
	if !trySend(outboundMessage[any]{Type: "remaining", Payload: remaining}) {
		return true
	}
	if remaining.Submitted || remaining.TotalSeconds <= 0 {
		trySend(outboundMessage[any]{Type: "finished", Payload: remaining})
		return true
	}
	return false
}
