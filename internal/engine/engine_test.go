package engine

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quantumnexus/journal-engine/internal/config"
	"github.com/quantumnexus/journal-engine/internal/hub"
	"github.com/quantumnexus/journal-engine/internal/model"
	"github.com/quantumnexus/journal-engine/internal/source"
	"github.com/quantumnexus/journal-engine/internal/store"
)

func d(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

func testEngine(t *testing.T, live source.Source) (*Engine, *store.MemoryStore) {
	t.Helper()

	cfg := config.Default()
	cfg.Sync.Interval = time.Hour // keep the ticker out of the way
	st := store.NewMemoryStore()

	eng, err := New(cfg, st, live, hub.New(), nil)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go eng.Run(ctx)
	t.Cleanup(cancel)
	return eng, st
}

// downSource simulates an unreachable terminal.
type downSource struct{}

func (downSource) Connect(context.Context, source.Credentials) error { return source.ErrUnavailable }
func (downSource) FetchSince(context.Context, source.Cursor, int) ([]model.Trade, source.Cursor, error) {
	return nil, source.Cursor{}, source.ErrUnavailable
}
func (downSource) AccountInfo(context.Context) (*model.AccountSnapshot, error) {
	return nil, source.ErrUnavailable
}
func (downSource) Disconnect() error { return nil }
func (downSource) Mode() string      { return "live" }

// gatedSource blocks fetches until released, counting calls.
type gatedSource struct {
	calls atomic.Int32
	gate  chan struct{}
}

func (g *gatedSource) Connect(context.Context, source.Credentials) error { return nil }
func (g *gatedSource) FetchSince(_ context.Context, cur source.Cursor, _ int) ([]model.Trade, source.Cursor, error) {
	g.calls.Add(1)
	<-g.gate
	return nil, source.Cursor{Seq: cur.Seq + 1}, nil
}
func (g *gatedSource) AccountInfo(context.Context) (*model.AccountSnapshot, error) {
	return &model.AccountSnapshot{Timestamp: time.Now(), Balance: d(10000), Equity: d(10000)}, nil
}
func (g *gatedSource) Disconnect() error { return nil }
func (g *gatedSource) Mode() string      { return "live" }

func TestSyncFallsBackToSynthetic(t *testing.T) {
	eng, st := testEngine(t, downSource{})

	res := <-eng.TriggerSync(ReasonManual)
	if res.Err != nil {
		t.Fatalf("sync failed: %v", res.Err)
	}
	if res.Source != "synthetic" {
		t.Fatalf("source = %s, want synthetic", res.Source)
	}

	// The fallback cycle still produces a fully populated ledger.
	total, open, err := st.CountTrades(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if total == 0 || open == 0 {
		t.Fatalf("counts = %d/%d, want populated ledger", total, open)
	}

	status := eng.Status()
	if status.Source != "synthetic" || status.InFlight {
		t.Errorf("status = %+v", status)
	}
	if status.LastSync.IsZero() {
		t.Error("last sync not recorded")
	}

	stats, err := eng.Stats(context.Background(), PeriodAll)
	if err != nil {
		t.Fatal(err)
	}
	if stats.TradeCount == 0 {
		t.Error("stats empty after fallback sync")
	}
	if stats.WinRate <= 0 || stats.WinRate > 1 {
		t.Errorf("win rate = %v, want within (0,1]", stats.WinRate)
	}
}

func TestTriggerSyncCoalesces(t *testing.T) {
	cfg := config.Default()
	cfg.Sync.Interval = time.Hour
	src := &gatedSource{gate: make(chan struct{})}

	eng, err := New(cfg, store.NewMemoryStore(), src, hub.New(), nil)
	if err != nil {
		t.Fatal(err)
	}

	// Claim the in-flight slot before the worker starts, so the startup
	// cycle and both manual triggers all share one fetch.
	first := eng.TriggerSync(ReasonManual)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go eng.Run(ctx)

	// Wait for the worker to enter the gated fetch.
	deadline := time.After(5 * time.Second)
	for src.calls.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("worker never fetched")
		case <-time.After(time.Millisecond):
		}
	}

	second := eng.TriggerSync(ReasonManual)
	close(src.gate)

	resA := <-first
	resB := <-second
	if resA.Err != nil || resB.Err != nil {
		t.Fatalf("results: %v / %v", resA.Err, resB.Err)
	}

	if calls := src.calls.Load(); calls != 1 {
		t.Errorf("fetch calls = %d, want 1 (coalesced)", calls)
	}
}

func TestPeriodRange(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		period string
		days   int
	}{
		{PeriodDaily, 1},
		{PeriodWeekly, 7},
		{PeriodMonthly, 30},
		{PeriodThreeMonths, 90},
		{PeriodSixMonths, 180},
		{PeriodOneYear, 365},
	}
	for _, tc := range cases {
		from, to, err := PeriodRange(tc.period, now)
		if err != nil {
			t.Fatalf("%s: %v", tc.period, err)
		}
		if want := now.AddDate(0, 0, -tc.days); !from.Equal(want) {
			t.Errorf("%s: from = %s, want %s", tc.period, from, want)
		}
		if !to.After(now) {
			t.Errorf("%s: to = %s, want after now", tc.period, to)
		}
	}

	from, _, err := PeriodRange(PeriodAll, now)
	if err != nil {
		t.Fatal(err)
	}
	if !from.IsZero() {
		t.Errorf("all: from = %s, want zero time", from)
	}

	if _, _, err := PeriodRange("fortnight", now); err == nil {
		t.Error("unknown period accepted")
	}
}

func TestStatsUnknownPeriod(t *testing.T) {
	eng, _ := testEngine(t, nil)
	if _, err := eng.Stats(context.Background(), "bogus"); err == nil {
		t.Fatal("want error for unknown period")
	}
}

func TestEquityCurveFromTradesWhenNoSnapshots(t *testing.T) {
	cfg := config.Default()
	st := store.NewMemoryStore()
	eng, err := New(cfg, st, nil, hub.New(), nil)
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	base := time.Now().UTC().AddDate(0, 0, -5)
	for i, p := range []float64{100, -50, 80} {
		tr := model.Trade{
			ExternalID: string(rune('a' + i)),
			Symbol:     "EURUSD",
			Direction:  model.DirectionBuy,
			Volume:     d(0.1),
			OpenTime:   base.Add(time.Duration(i) * time.Hour),
			CloseTime:  base.Add(time.Duration(i+1) * time.Hour),
			Profit:     d(p),
			Status:     model.StatusClosed,
			Revision:   1,
		}
		if err := st.UpsertTrade(ctx, &tr); err != nil {
			t.Fatal(err)
		}
	}

	curve, err := eng.EquityCurve(ctx, 30)
	if err != nil {
		t.Fatal(err)
	}
	if len(curve) != 3 {
		t.Fatalf("curve points = %d, want 3", len(curve))
	}
	for i := 1; i < len(curve); i++ {
		if curve[i].Timestamp.Before(curve[i-1].Timestamp) {
			t.Error("curve not in chronological order")
		}
	}
	// Without a real snapshot the curve is relative: it ends at net profit.
	if !curve[2].Balance.Equal(d(130)) {
		t.Errorf("final balance = %s, want 130", curve[2].Balance)
	}
}

func TestTradesFilter(t *testing.T) {
	eng, st := testEngine(t, nil)
	ctx := context.Background()

	<-eng.TriggerSync(ReasonManual)

	all, err := eng.Trades(ctx, TradeFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) == 0 {
		t.Fatal("no trades after sync")
	}
	// Newest first.
	for i := 1; i < len(all); i++ {
		if all[i].CloseTime.After(all[i-1].CloseTime) {
			t.Fatal("trades not newest-first")
		}
	}

	open, err := eng.Trades(ctx, TradeFilter{Status: model.StatusOpen})
	if err != nil {
		t.Fatal(err)
	}
	_, wantOpen, _ := st.CountTrades(ctx)
	if len(open) != wantOpen {
		t.Errorf("open trades = %d, want %d", len(open), wantOpen)
	}

	sym, err := eng.Trades(ctx, TradeFilter{Symbol: "EURUSD"})
	if err != nil {
		t.Fatal(err)
	}
	for _, tr := range sym {
		if tr.Symbol != "EURUSD" {
			t.Fatalf("symbol filter leaked %s", tr.Symbol)
		}
	}
	if len(sym) == 0 || len(sym) == len(all) {
		t.Errorf("symbol filter matched %d of %d", len(sym), len(all))
	}

	if _, err := eng.Trades(ctx, TradeFilter{Period: "bogus"}); err == nil {
		t.Error("unknown period accepted")
	}
}
