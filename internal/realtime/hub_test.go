package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestPublishReachesConnectedClient(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub("*")
	go hub.Run(ctx)

	server := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("client never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	hub.Publish("sale_recorded", map[string]any{"saleId": "TRX-20240501-1"})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, message, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var event Event
	if err := json.Unmarshal(message, &event); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if event.Type != "sale_recorded" || event.ID == "" {
		t.Fatalf("unexpected event %+v", event)
	}
}

func TestPublishWithoutRunnerDoesNotBlock(t *testing.T) {
	hub := NewHub("*")
	finished := make(chan struct{})
	go func() {
		for i := 0; i < 200; i++ {
			hub.Publish("stock_low", i)
		}
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatalf("publish blocked with no dispatcher running")
	}
}
