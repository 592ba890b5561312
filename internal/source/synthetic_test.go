package source

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quantumnexus/journal-engine/internal/model"
)

func fixedNow() time.Time {
	return time.Date(2025, 6, 15, 14, 30, 0, 0, time.UTC)
}

func TestSyntheticDeterministicWithinDay(t *testing.T) {
	ctx := context.Background()
	a := NewSynthetic(fixedNow)
	b := NewSynthetic(fixedNow)

	eventsA, curA, err := a.FetchSince(ctx, Cursor{}, 90)
	if err != nil {
		t.Fatal(err)
	}
	eventsB, curB, err := b.FetchSince(ctx, Cursor{}, 90)
	if err != nil {
		t.Fatal(err)
	}

	if len(eventsA) != len(eventsB) {
		t.Fatalf("lengths differ: %d vs %d", len(eventsA), len(eventsB))
	}
	for i := range eventsA {
		x, y := eventsA[i], eventsB[i]
		if x.ExternalID != y.ExternalID || !x.Profit.Equal(y.Profit) || !x.OpenTime.Equal(y.OpenTime) {
			t.Fatalf("event %d differs: %+v vs %+v", i, x, y)
		}
	}
	if curA.Seq != curB.Seq {
		t.Errorf("cursors differ: %d vs %d", curA.Seq, curB.Seq)
	}
}

func TestSyntheticShape(t *testing.T) {
	s := NewSynthetic(fixedNow)
	events, cur, err := s.FetchSince(context.Background(), Cursor{}, 90)
	if err != nil {
		t.Fatal(err)
	}
	if cur.Seq != 1 {
		t.Errorf("cursor seq = %d, want 1", cur.Seq)
	}

	var closed, open, wins int
	for _, ev := range events {
		switch ev.Status {
		case model.StatusClosed:
			closed++
			if ev.Profit.IsPositive() {
				wins++
			}
			if ev.CloseTime.IsZero() {
				t.Errorf("closed trade %s without close time", ev.ExternalID)
			}
		case model.StatusOpen:
			open++
			if ev.Revision != 1 {
				t.Errorf("open trade %s revision = %d, want fetch seq 1", ev.ExternalID, ev.Revision)
			}
		}
		if !ev.Volume.IsPositive() {
			t.Errorf("trade %s has non-positive volume", ev.ExternalID)
		}
	}

	if closed != 125 {
		t.Errorf("closed trades = %d, want 125", closed)
	}
	if open != 8 {
		t.Errorf("open positions = %d, want 8", open)
	}

	// Roughly two thirds winners.
	rate := float64(wins) / float64(closed)
	if rate < 0.6 || rate > 0.72 {
		t.Errorf("win rate = %v, want around 0.66", rate)
	}
}

func TestSyntheticWindowFilter(t *testing.T) {
	s := NewSynthetic(fixedNow)
	events, _, err := s.FetchSince(context.Background(), Cursor{}, 10)
	if err != nil {
		t.Fatal(err)
	}

	windowStart := fixedNow().AddDate(0, 0, -10)
	for _, ev := range events {
		if ev.Status != model.StatusClosed {
			continue
		}
		if ev.CloseTime.Before(windowStart) {
			t.Errorf("trade %s closed %s, before window start %s", ev.ExternalID, ev.CloseTime, windowStart)
		}
	}
}

func TestSyntheticOpenRevisionAdvances(t *testing.T) {
	s := NewSynthetic(fixedNow)
	ctx := context.Background()

	_, cur, err := s.FetchSince(ctx, Cursor{}, 90)
	if err != nil {
		t.Fatal(err)
	}
	events, cur2, err := s.FetchSince(ctx, cur, 90)
	if err != nil {
		t.Fatal(err)
	}
	if cur2.Seq != 2 {
		t.Fatalf("second cursor seq = %d, want 2", cur2.Seq)
	}

	for _, ev := range events {
		if ev.Status == model.StatusOpen && ev.Revision != 2 {
			t.Errorf("open trade %s revision = %d, want 2", ev.ExternalID, ev.Revision)
		}
	}
}

func TestSyntheticAccountConsistency(t *testing.T) {
	s := NewSynthetic(fixedNow)
	snap, err := s.AccountInfo(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	events, _, err := s.FetchSince(context.Background(), Cursor{}, 90)
	if err != nil {
		t.Fatal(err)
	}

	sum := decimal.NewFromInt(10000)
	for _, ev := range events {
		if ev.Status == model.StatusClosed {
			sum = sum.Add(ev.Profit)
		}
	}

	if !snap.Balance.Equal(sum.Round(2)) {
		t.Errorf("balance = %s, closed profits imply %s", snap.Balance, sum.Round(2))
	}
	if snap.MarginFree.Add(snap.MarginUsed).Cmp(snap.Equity) != 0 {
		t.Errorf("margin free %s + used %s != equity %s", snap.MarginFree, snap.MarginUsed, snap.Equity)
	}
}
