package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"exam-portal-service/internal/domain"
)

func dialAttempt(t *testing.T, f *portalFixture, attemptID int64, token string) *websocket.Conn {
	t.Helper()
	u := "ws" + f.server.URL[len("http"):] + fmt.Sprintf("/ws/attempts/%d?token=%s", attemptID, token)
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readNext(t *testing.T, conn *websocket.Conn, expect string) (string, json.RawMessage) {
	t.Helper()
	var msg struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read json: %v", err)
	}
	if expect != "" && msg.Type != expect {
		t.Fatalf("expected type %s, got %s", expect, msg.Type)
	}
	return msg.Type, msg.Payload
}

func TestWebSocketStreamsRemainingTime(t *testing.T) {
	f := newPortalFixture(t)
	token := f.studentToken()

	var started struct {
		Attempt domain.Attempt `json:"attempt"`
	}
	if status := f.post("/exams/1/attempts", token, map[string]any{}, &started); status != http.StatusOK {
		t.Fatalf("start attempt: %d", status)
	}

	conn := dialAttempt(t, f, started.Attempt.ID, token)

	_, payload := readNext(t, conn, "remaining")
	var remaining struct {
		TotalSeconds int64                  `json:"totalSeconds"`
		Formatted    string                 `json:"formatted"`
		Timestamp    domain.SecureTimestamp `json:"timestamp"`
	}
	if err := json.Unmarshal(payload, &remaining); err != nil {
		t.Fatalf("unmarshal remaining: %v", err)
	}
	if remaining.TotalSeconds <= 0 || remaining.TotalSeconds > 3600 {
		t.Fatalf("expected remaining within the hour, got %d", remaining.TotalSeconds)
	}
	if remaining.Timestamp.Signature == "" {
		t.Fatalf("expected a signed timestamp")
	}

	// Echo the server's own timestamp back for verification.
	if err := conn.WriteJSON(map[string]any{"type": "timestamp", "payload": remaining.Timestamp}); err != nil {
		t.Fatalf("write timestamp: %v", err)
	}
	for {
		typ, _ := readNext(t, conn, "")
		if typ == "timestampOk" {
			break
		}
		if typ != "remaining" {
			t.Fatalf("expected timestampOk or remaining, got %s", typ)
		}
	}
}

func TestWebSocketRejectsTamperedTimestamp(t *testing.T) {
	f := newPortalFixture(t)
	token := f.studentToken()

	var started struct {
		Attempt domain.Attempt `json:"attempt"`
	}
	if status := f.post("/exams/1/attempts", token, map[string]any{}, &started); status != http.StatusOK {
		t.Fatalf("start attempt: %d", status)
	}

	conn := dialAttempt(t, f, started.Attempt.ID, token)
	readNext(t, conn, "remaining")

	forged := domain.SecureTimestamp{
		ServerTime:       time.Now().Add(time.Hour),
		RemainingSeconds: 999999,
		Signature:        "Zm9yZ2VkLXNpZ25hdHVyZQ",
	}
	if err := conn.WriteJSON(map[string]any{"type": "timestamp", "payload": forged}); err != nil {
		t.Fatalf("write forged timestamp: %v", err)
	}
	for {
		typ, payload := readNext(t, conn, "")
		if typ == "remaining" {
			continue
		}
		if typ != "error" {
			t.Fatalf("expected an error frame, got %s", typ)
		}
		var errPayload errorPayload
		if err := json.Unmarshal(payload, &errPayload); err != nil {
			t.Fatalf("unmarshal error payload: %v", err)
		}
		if errPayload.Kind != "SuspiciousTiming" {
			t.Fatalf("expected SuspiciousTiming, got %q", errPayload.Kind)
		}
		return
	}
}

func TestWebSocketDeliversFinishedNotice(t *testing.T) {
	f := newPortalFixture(t)
	token := f.studentToken()

	var started struct {
		Attempt domain.Attempt `json:"attempt"`
	}
	if status := f.post("/exams/1/attempts", token, map[string]any{}, &started); status != http.StatusOK {
		t.Fatalf("start attempt: %d", status)
	}
	base := fmt.Sprintf("/exams/attempts/%d", started.Attempt.ID)
	if status := f.post(base+"/submit", token, map[string]any{}, nil); status != http.StatusOK {
		t.Fatalf("submit: %d", status)
	}

	// The first push on a submitted attempt ends the stream; both frames
	// must still reach the client before the close.
	conn := dialAttempt(t, f, started.Attempt.ID, token)
	_, payload := readNext(t, conn, "remaining")
	var remaining struct {
		Submitted bool `json:"submitted"`
	}
	if err := json.Unmarshal(payload, &remaining); err != nil {
		t.Fatalf("unmarshal remaining: %v", err)
	}
	if !remaining.Submitted {
		t.Fatalf("expected a submitted attempt")
	}
	readNext(t, conn, "finished")
}

func TestWebSocketRequiresValidToken(t *testing.T) {
	f := newPortalFixture(t)
	u := "ws" + f.server.URL[len("http"):] + "/ws/attempts/1?token=bogus"
	_, resp, err := websocket.DefaultDialer.Dial(u, nil)
	if err == nil {
		t.Fatalf("expected dial to fail without a session")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %+v", resp)
	}
}
