package source

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/quantumnexus/journal-engine/internal/model"
)

func TestBridgeConnect(t *testing.T) {
	var gotAccount int64
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/connect" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var req struct {
			Account int64 `json:"account"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		gotAccount = req.Account
		json.NewEncoder(w).Encode(map[string]string{"token": "abc123"})
	}))
	defer ts.Close()

	b := NewBridge(ts.URL, time.Second)
	err := b.Connect(context.Background(), Credentials{Account: 12345, Password: "pw", Server: "Demo"})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if gotAccount != 12345 {
		t.Errorf("account = %d, want 12345", gotAccount)
	}
}

func TestBridgeConnectAuthRejected(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer ts.Close()

	b := NewBridge(ts.URL, time.Second)
	err := b.Connect(context.Background(), Credentials{})
	if !errors.Is(err, ErrAuthRejected) {
		t.Fatalf("err = %v, want ErrAuthRejected", err)
	}
}

func TestBridgeConnectServerDown(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer ts.Close()

	b := NewBridge(ts.URL, time.Second)
	if err := b.Connect(context.Background(), Credentials{}); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}

	// Unreachable host reads the same way.
	b = NewBridge("http://127.0.0.1:1", 100*time.Millisecond)
	if err := b.Connect(context.Background(), Credentials{}); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("network error: err = %v, want ErrUnavailable", err)
	}
}

func TestBridgeFetchSince(t *testing.T) {
	closeTime := time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/deals" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("window_days"); got != "90" {
			t.Errorf("window_days = %s", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("authorization = %q", got)
		}
		json.NewEncoder(w).Encode(dealsResponse{
			Events: []model.Trade{{ExternalID: "777", Symbol: "EURUSD", CloseTime: closeTime}},
			Cursor: Cursor{Time: closeTime, Seq: 4},
		})
	}))
	defer ts.Close()

	b := NewBridge(ts.URL, time.Second)
	b.token = "tok"

	events, cur, err := b.FetchSince(context.Background(), Cursor{Seq: 3}, 90)
	if err != nil {
		t.Fatalf("FetchSince: %v", err)
	}
	if len(events) != 1 || events[0].ExternalID != "777" {
		t.Fatalf("events = %+v", events)
	}
	if cur.Seq != 4 {
		t.Errorf("cursor seq = %d, want 4", cur.Seq)
	}
}

func TestBridgeFetchSincePartial(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusPartialContent)
		json.NewEncoder(w).Encode(dealsResponse{
			Events: []model.Trade{{ExternalID: "1"}, {ExternalID: "2"}},
			Cursor: Cursor{Seq: 9},
		})
	}))
	defer ts.Close()

	b := NewBridge(ts.URL, time.Second)
	events, cur, err := b.FetchSince(context.Background(), Cursor{Seq: 8}, 30)

	// A partial window still delivers the retrieved subset and the cursor
	// covering only that subset.
	if !errors.Is(err, ErrPartial) {
		t.Fatalf("err = %v, want ErrPartial", err)
	}
	if len(events) != 2 {
		t.Errorf("events = %d, want 2", len(events))
	}
	if cur.Seq != 9 {
		t.Errorf("cursor seq = %d, want 9", cur.Seq)
	}
}

func TestBridgeAccountInfo(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/account" {
			t.Errorf("path = %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"timestamp": time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC),
			"balance":   "10500.25",
			"equity":    "10620.10",
		})
	}))
	defer ts.Close()

	b := NewBridge(ts.URL, time.Second)
	snap, err := b.AccountInfo(context.Background())
	if err != nil {
		t.Fatalf("AccountInfo: %v", err)
	}
	if snap.Balance.String() != "10500.25" {
		t.Errorf("balance = %s", snap.Balance)
	}
}
