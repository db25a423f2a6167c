package venue

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"testing"
	"time"
)

func TestCents(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in   string
		want int
	}{
		{"0.5600", 56},
		{"0.56", 56},
		{"1.00", 100},
		{"0.01", 1},
		{"0.005", 1}, // rounds
		{"0", 0},
		{"", 0},
		{"garbage", 0},
	}
	for _, tc := range cases {
		if got := Cents(tc.in); got != tc.want {
			t.Errorf("Cents(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestRSASignerHeaders(t *testing.T) {
	t.Parallel()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	fixed := time.UnixMilli(1_700_000_000_000)
	s := &RSASigner{keyID: "key-1", key: key, now: func() time.Time { return fixed }}

	headers, err := s.Headers("GET", "/trade-api/v2/portfolio/balance")
	if err != nil {
		t.Fatal(err)
	}
	if headers[HeaderAccessKey] != "key-1" {
		t.Errorf("access key header = %q", headers[HeaderAccessKey])
	}
	if headers[HeaderAccessTimestamp] != "1700000000000" {
		t.Errorf("timestamp header = %q", headers[HeaderAccessTimestamp])
	}

	// The signature must verify as RSA-PSS over timestamp+method+path.
	sig, err := base64.StdEncoding.DecodeString(headers[HeaderAccessSignature])
	if err != nil {
		t.Fatal(err)
	}
	msg := "1700000000000GET/trade-api/v2/portfolio/balance"
	hash := sha256.Sum256([]byte(msg))
	if err := rsa.VerifyPSS(&key.PublicKey, crypto.SHA256, hash[:], sig, &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthEqualsHash,
	}); err != nil {
		t.Errorf("signature verification failed: %v", err)
	}
}

func TestParseRSAKeyFormats(t *testing.T) {
	t.Parallel()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}

	pkcs1 := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})
	if _, err := parseRSAKey(pkcs1); err != nil {
		t.Errorf("pkcs1 key: %v", err)
	}

	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatal(err)
	}
	pkcs8 := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})
	if _, err := parseRSAKey(pkcs8); err != nil {
		t.Errorf("pkcs8 key: %v", err)
	}

	// A leading certificate block is skipped, not fatal.
	mixed := append(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: []byte{0x30}}), pkcs1...)
	if _, err := parseRSAKey(mixed); err != nil {
		t.Errorf("key after certificate block: %v", err)
	}

	if _, err := parseRSAKey([]byte("not a key")); err == nil {
		t.Error("garbage input should fail")
	}
}

func TestPacerAdmitsBurstThenSpaces(t *testing.T) {
	t.Parallel()
	p := NewPacer(1000, 5) // 1ms interval keeps the test fast
	ctx := context.Background()

	// Burst credit admits the first requests without measurable delay.
	start := time.Now()
	for i := 0; i < 6; i++ {
		if err := p.Wait(ctx); err != nil {
			t.Fatal(err)
		}
	}
	if elapsed := time.Since(start); elapsed > 5*time.Millisecond {
		t.Errorf("burst took %v, want near-immediate", elapsed)
	}

	// Past the credit, requests are spaced at the sustained rate.
	start = time.Now()
	for i := 0; i < 10; i++ {
		if err := p.Wait(ctx); err != nil {
			t.Fatal(err)
		}
	}
	if elapsed := time.Since(start); elapsed < 5*time.Millisecond {
		t.Errorf("sustained phase took %v, want >= 5ms of pacing", elapsed)
	}
}

func TestPacerCancelledContext(t *testing.T) {
	t.Parallel()
	p := NewPacer(0.001, 0) // ~17 minute interval forces a real wait
	if err := p.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := p.Wait(ctx); err == nil {
		t.Error("cancelled wait should return the context error")
	}
}

func TestWSPathFromURL(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in, want string
	}{
		{"wss://api.example.com/trade-api/ws/v2", "/trade-api/ws/v2"},
		{"wss://api.example.com/", "/"},
		{"wss://api.example.com", "/"},
	}
	for _, tc := range cases {
		if got := wsPathFromURL(tc.in); got != tc.want {
			t.Errorf("wsPathFromURL(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestCancelRegistry(t *testing.T) {
	t.Parallel()
	r := NewCancelRegistry()
	r.Track("o1", "T1")
	r.Track("o2", "T2")
	r.Untrack("o1")

	out := r.Outstanding()
	if len(out) != 1 || out[0] != "o2" {
		t.Errorf("Outstanding = %v, want [o2]", out)
	}
}

func TestMarketExpirationParsed(t *testing.T) {
	t.Parallel()
	m := Market{
		CloseTime:              "2025-12-26T04:00:00Z",
		ExpectedExpirationTime: "2025-12-26T03:00:00Z",
	}
	got, err := m.ExpirationParsed()
	if err != nil {
		t.Fatal(err)
	}
	if got.Hour() != 3 {
		t.Errorf("expected expiration preferred, got %v", got)
	}

	m.ExpectedExpirationTime = ""
	got, err = m.ExpirationParsed()
	if err != nil {
		t.Fatal(err)
	}
	if got.Hour() != 4 {
		t.Errorf("close time fallback, got %v", got)
	}
}
