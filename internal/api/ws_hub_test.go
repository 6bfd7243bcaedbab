package api_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/zionworld/futures-engine/internal/api"
)

func dialWS(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) api.WSMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg api.WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal %q: %v", data, err)
	}
	return msg
}

func TestWSHub_BroadcastSurvivesDeadClient(t *testing.T) {
	hub := api.NewWSHub()
	go hub.Run()

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	alive := dialWS(t, srv)
	defer alive.Close()
	doomed := dialWS(t, srv)

	// Broadcast continuously so reads below cannot race registration.
	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(5 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				hub.Broadcast(api.WSMessage{Type: "position_opened", ContractID: 7})
			}
		}
	}()

	if msg := readEvent(t, alive); msg.Type != "position_opened" || msg.ContractID != 7 {
		t.Fatalf("unexpected event: %+v", msg)
	}

	// Kill one client mid-stream. The fan-out must drop it and keep
	// delivering to the survivor.
	doomed.Close()
	for i := 0; i < 5; i++ {
		if msg := readEvent(t, alive); msg.Type != "position_opened" {
			t.Fatalf("unexpected event after client death: %+v", msg)
		}
	}
}
