package risk

import (
	"errors"
	"testing"
)

func testLimits() Limits {
	return Limits{
		MaxContractsPerMarket: 50,
		MaxConcurrentMarkets:  3,
		MaxTotalExposureCents: 10_000,
	}
}

func TestCheckEntryAllows(t *testing.T) {
	t.Parallel()
	m := NewManager(testLimits())
	if err := m.CheckEntry("A", 10, 60); err != nil {
		t.Fatalf("CheckEntry: %v", err)
	}
}

func TestPerMarketCap(t *testing.T) {
	t.Parallel()
	m := NewManager(testLimits())
	m.OnFill("A", 45, 50)

	err := m.CheckEntry("A", 10, 50)
	if !errors.Is(err, ErrPerMarketCap) {
		t.Fatalf("err = %v, want ErrPerMarketCap", err)
	}
	if err := m.CheckEntry("A", 5, 50); err != nil {
		t.Fatalf("exactly at cap should pass: %v", err)
	}
}

func TestConcurrentMarketsCap(t *testing.T) {
	t.Parallel()
	m := NewManager(testLimits())
	m.OnFill("A", 1, 10)
	m.OnFill("B", 1, 10)
	m.OnFill("C", 1, 10)

	if err := m.CheckEntry("D", 1, 10); !errors.Is(err, ErrConcurrentCap) {
		t.Fatalf("err = %v, want ErrConcurrentCap", err)
	}
	// Adding to an existing market is still allowed.
	if err := m.CheckEntry("B", 1, 10); err != nil {
		t.Fatalf("existing market entry: %v", err)
	}
}

func TestExposureCap(t *testing.T) {
	t.Parallel()
	m := NewManager(testLimits())
	m.OnFill("A", 50, 150) // 7500 cents

	if err := m.CheckEntry("B", 50, 60); !errors.Is(err, ErrExposureCap) {
		t.Fatalf("err = %v, want ErrExposureCap", err)
	}
	if err := m.CheckEntry("B", 40, 60); err != nil {
		t.Fatalf("within exposure: %v", err)
	}
}

func TestExitReleasesExposure(t *testing.T) {
	t.Parallel()
	m := NewManager(testLimits())
	m.OnFill("A", 10, 60)
	m.OnExit("A", 10, 60)

	if m.ExposureCents() != 0 {
		t.Errorf("exposure = %d, want 0", m.ExposureCents())
	}
	if m.OpenMarkets() != 0 {
		t.Errorf("open markets = %d, want 0", m.OpenMarkets())
	}
	if m.Held("A") != 0 {
		t.Errorf("held = %d, want 0", m.Held("A"))
	}
}

func TestCycleLedger(t *testing.T) {
	t.Parallel()
	l := NewCycleLedger(1000)

	if !l.Reserve(600) {
		t.Fatal("first reserve should succeed")
	}
	if l.Available() != 400 {
		t.Errorf("available = %d, want 400", l.Available())
	}
	if l.Reserve(500) {
		t.Error("over-reserve should fail")
	}
	if l.Available() != 400 {
		t.Errorf("failed reserve must not debit, available = %d", l.Available())
	}
	if !l.Reserve(400) {
		t.Error("exact-remainder reserve should succeed")
	}
}

func TestCycleLedgerNegativeBalance(t *testing.T) {
	t.Parallel()
	l := NewCycleLedger(-50)
	if l.Available() != 0 {
		t.Errorf("available = %d, want 0", l.Available())
	}
	if l.Reserve(1) {
		t.Error("reserve on empty ledger should fail")
	}
}
