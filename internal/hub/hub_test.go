package hub

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/quantumnexus/journal-engine/internal/model"
)

func testHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()

	h := New()
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	t.Cleanup(cancel)

	ts := httptest.NewServer(http.HandlerFunc(h.HandleWS))
	t.Cleanup(ts.Close)
	return h, ts
}

func dial(t *testing.T, ts *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) map[string]json.RawMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg map[string]json.RawMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal %q: %v", data, err)
	}
	return msg
}

func msgType(t *testing.T, msg map[string]json.RawMessage) string {
	t.Helper()
	var typ string
	if err := json.Unmarshal(msg["type"], &typ); err != nil {
		t.Fatalf("message without type: %v", err)
	}
	return typ
}

func TestSubscriberReceivesSnapshotImmediately(t *testing.T) {
	h, ts := testHub(t)

	h.PublishData(DataUpdate{
		Stats: &model.AnalyticsPeriod{Period: "all", TradeCount: 42},
	}, 7, false)

	conn := dial(t, ts, "")

	// The cached snapshot arrives without waiting for the next sync tick.
	msg := readMessage(t, conn)
	if got := msgType(t, msg); got != "data_update" {
		t.Fatalf("type = %s, want data_update", got)
	}
	var stats model.AnalyticsPeriod
	if err := json.Unmarshal(msg["stats"], &stats); err != nil {
		t.Fatal(err)
	}
	if stats.TradeCount != 42 {
		t.Errorf("trade count = %d, want 42", stats.TradeCount)
	}
}

func TestUnchangedVersionNotResent(t *testing.T) {
	h, ts := testHub(t)

	h.PublishData(DataUpdate{Stats: &model.AnalyticsPeriod{TradeCount: 1}}, 1, false)
	conn := dial(t, ts, "")
	readMessage(t, conn) // initial snapshot at version 1

	// Same version again: the subscriber must not receive a duplicate.
	h.PublishData(DataUpdate{Stats: &model.AnalyticsPeriod{TradeCount: 1}}, 1, false)
	// A forced push at the same version does go through.
	h.PublishData(DataUpdate{Stats: &model.AnalyticsPeriod{TradeCount: 2}}, 1, true)

	var stats model.AnalyticsPeriod
	msg := readMessage(t, conn)
	if err := json.Unmarshal(msg["stats"], &stats); err != nil {
		t.Fatal(err)
	}
	if stats.TradeCount != 2 {
		t.Errorf("got the duplicate instead of the forced push: count = %d", stats.TradeCount)
	}
}

func TestNewVersionIsDelivered(t *testing.T) {
	h, ts := testHub(t)

	h.PublishData(DataUpdate{Stats: &model.AnalyticsPeriod{TradeCount: 1}}, 1, false)
	conn := dial(t, ts, "")
	readMessage(t, conn)

	h.PublishData(DataUpdate{Stats: &model.AnalyticsPeriod{TradeCount: 5}}, 2, false)

	var stats model.AnalyticsPeriod
	msg := readMessage(t, conn)
	if err := json.Unmarshal(msg["stats"], &stats); err != nil {
		t.Fatal(err)
	}
	if stats.TradeCount != 5 {
		t.Errorf("trade count = %d, want 5", stats.TradeCount)
	}
}

func TestLogChannelSubscription(t *testing.T) {
	h, ts := testHub(t)

	conn := dial(t, ts, "?channels=logs")

	// Give the hub loop time to register the subscriber.
	time.Sleep(50 * time.Millisecond)

	h.PublishLog(time.Now(), "INFO", "sync cycle completed")

	msg := readMessage(t, conn)
	if got := msgType(t, msg); got != "log_update" {
		t.Fatalf("type = %s, want log_update", got)
	}
	var text string
	if err := json.Unmarshal(msg["message"], &text); err != nil {
		t.Fatal(err)
	}
	if text != "sync cycle completed" {
		t.Errorf("message = %q", text)
	}
}

func TestDataOnlySubscriberSkipsLogs(t *testing.T) {
	h, ts := testHub(t)

	conn := dial(t, ts, "")
	time.Sleep(50 * time.Millisecond)

	h.PublishLog(time.Now(), "INFO", "not for you")
	h.PublishData(DataUpdate{Stats: &model.AnalyticsPeriod{TradeCount: 9}}, 1, false)

	// The first message received must be the data update, not the log line.
	msg := readMessage(t, conn)
	if got := msgType(t, msg); got != "data_update" {
		t.Fatalf("type = %s, want data_update", got)
	}
}
