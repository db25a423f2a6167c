package book

import (
	"errors"
	"testing"
	"time"

	"github.com/brabsmit/kalshi-arb/pkg/types"
)

const testTicker = "KXNBAGAME-25DEC25LALBOS-LAL"

func snap(yes, no [][]int) types.WSOrderbookSnapshot {
	return types.WSOrderbookSnapshot{Ticker: testTicker, Yes: yes, No: no}
}

func TestSnapshotBestBidAsk(t *testing.T) {
	t.Parallel()
	b := New()
	// yes=[(58,10),(57,5)], no=[(42,8)] → bid 58, ask 100−42 = 58.
	b.ApplySnapshot(snap([][]int{{58, 10}, {57, 5}}, [][]int{{42, 8}}), 1, time.Now())

	bid, ask := b.BestBidAsk(testTicker)
	if bid != 58 || ask != 58 {
		t.Errorf("BestBidAsk = (%d,%d), want (58,58)", bid, ask)
	}
}

func TestDeltaRemovesLevel(t *testing.T) {
	t.Parallel()
	b := New()
	now := time.Now()
	b.ApplySnapshot(snap([][]int{{58, 10}, {57, 5}}, [][]int{{42, 8}}), 1, now)

	if err := b.ApplyDelta(types.WSOrderbookDelta{Ticker: testTicker, Price: 58, Delta: -10, Side: "yes"}, 2, now); err != nil {
		t.Fatalf("ApplyDelta: %v", err)
	}
	bid, _ := b.BestBidAsk(testTicker)
	if bid != 57 {
		t.Errorf("bid after removing 58 level = %d, want 57", bid)
	}
}

func TestDeltaNeverGoesNegative(t *testing.T) {
	t.Parallel()
	b := New()
	now := time.Now()
	b.ApplySnapshot(snap([][]int{{50, 3}}, nil), 1, now)

	if err := b.ApplyDelta(types.WSOrderbookDelta{Ticker: testTicker, Price: 50, Delta: -9, Side: "yes"}, 2, now); err != nil {
		t.Fatalf("ApplyDelta: %v", err)
	}
	bid, _ := b.BestBidAsk(testTicker)
	if bid != 0 {
		t.Errorf("overdrawn level should be removed, bid = %d", bid)
	}
}

func TestSequenceGapDetected(t *testing.T) {
	t.Parallel()
	b := New()
	now := time.Now()
	b.ApplySnapshot(snap([][]int{{50, 3}}, nil), 5, now)

	err := b.ApplyDelta(types.WSOrderbookDelta{Ticker: testTicker, Price: 50, Delta: 1, Side: "yes"}, 7, now)
	if !errors.Is(err, ErrSeqGap) {
		t.Fatalf("err = %v, want ErrSeqGap", err)
	}
}

func TestSnapshotIdempotent(t *testing.T) {
	t.Parallel()
	b := New()
	now := time.Now()
	s := snap([][]int{{58, 10}, {57, 5}}, [][]int{{42, 8}, {40, 2}})

	b.ApplySnapshot(s, 1, now)
	bid1, ask1 := b.BestBidAsk(testTicker)
	d1a, d1b := b.NearTouchDepth(testTicker, 3)

	b.ApplySnapshot(s, 2, now)
	bid2, ask2 := b.BestBidAsk(testTicker)
	d2a, d2b := b.NearTouchDepth(testTicker, 3)

	if bid1 != bid2 || ask1 != ask2 || d1a != d2a || d1b != d2b {
		t.Error("re-applying the same snapshot changed book state")
	}
}

func TestBidNotAboveAsk(t *testing.T) {
	t.Parallel()
	b := New()
	now := time.Now()
	b.ApplySnapshot(snap([][]int{{55, 10}}, [][]int{{43, 5}}), 1, now)

	bid, ask := b.BestBidAsk(testTicker)
	if bid != 0 && ask != 0 && bid > ask {
		t.Errorf("crossed book: bid %d > ask %d", bid, ask)
	}
}

func TestNearTouchDepth(t *testing.T) {
	t.Parallel()
	b := New()
	now := time.Now()
	// Bid side 58(10), 57(5), 54(99): band 2 covers 56–58 only.
	b.ApplySnapshot(snap([][]int{{58, 10}, {57, 5}, {54, 99}}, [][]int{{42, 8}, {41, 4}, {30, 50}}), 1, now)

	bidDepth, askDepth := b.NearTouchDepth(testTicker, 2)
	if bidDepth != 15 {
		t.Errorf("bid depth = %d, want 15", bidDepth)
	}
	if askDepth != 12 {
		t.Errorf("ask depth = %d, want 12", askDepth)
	}
}

func TestUnknownTicker(t *testing.T) {
	t.Parallel()
	b := New()
	if bid, ask := b.BestBidAsk("NOPE"); bid != 0 || ask != 0 {
		t.Errorf("unknown ticker: got (%d,%d), want zeros", bid, ask)
	}
	if b.Has("NOPE") {
		t.Error("Has(NOPE) = true")
	}
}

func TestDeltaBeforeSnapshotIgnored(t *testing.T) {
	t.Parallel()
	b := New()
	// lastSeq 0 → first message is accepted without gap checking.
	if err := b.ApplyDelta(types.WSOrderbookDelta{Ticker: testTicker, Price: 50, Delta: 5, Side: "yes"}, 10, time.Now()); err != nil {
		t.Fatalf("ApplyDelta before snapshot: %v", err)
	}
	if b.Has(testTicker) {
		t.Error("delta before snapshot should not create a book")
	}
}

func TestReset(t *testing.T) {
	t.Parallel()
	b := New()
	b.ApplySnapshot(snap([][]int{{50, 3}}, nil), 9, time.Now())
	b.Reset()
	if b.Has(testTicker) || b.Seq() != 0 {
		t.Error("Reset did not clear state")
	}
}
