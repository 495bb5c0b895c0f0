package upstream

import (
	"context"
	"encoding/binary"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/google/uuid"
	"github.com/summer-54/invoker-manager/internal/broker"
)

func TestLinkFeedsSubmissionIntoBroker(t *testing.T) {
	var upgrader = websocket.Upgrader{EnableCompression: true}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("server upgrade: %v", err)
			return
		}
		defer conn.Close()

		id := uuid.New()
		raw := make([]byte, 18)
		copy(raw[0:16], id[:])
		binary.BigEndian.PutUint16(raw[16:18], 2)
		raw = append(raw, []byte("payload")...)
		if err := conn.WriteMessage(websocket.BinaryMessage, raw); err != nil {
			t.Errorf("server write: %v", err)
			return
		}
		time.Sleep(500 * time.Millisecond)
	}))
	defer srv.Close()

	b := broker.New()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	link := New(wsURL, b)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	go link.Run(ctx)

	deadline := time.Now().Add(time.Second)
	var got bool
	for time.Now().Before(deadline) {
		if len(b.ResultsSnapshot()) == 1 {
			got = true
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if !got {
		t.Fatal("expected submission to be enqueued into broker results")
	}
}

func TestLinkConnectedReflectsState(t *testing.T) {
	b := broker.New()
	link := New("ws://127.0.0.1:1/nonexistent", b)
	if link.Connected() {
		t.Error("expected Connected() false before Run")
	}
}
