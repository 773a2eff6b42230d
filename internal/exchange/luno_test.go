package exchange

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"

	"momentum-arb-bot/internal/market"
)

func TestLunoImplementsAuthCandleFetcher(t *testing.T) {
	a := newLuno("http://example.invalid")
	if _, ok := a.(AuthCandleFetcher); !ok {
		t.Fatal("luno adapter must expose FetchCandlesAuth for authenticated candles")
	}
}

func TestLunoPublicCandlesRejected(t *testing.T) {
	a := newLuno("http://example.invalid")
	if _, err := a.FetchCandles(context.Background(), "BTCUSDT", "1h", 10); err == nil {
		t.Error("unauthenticated candle fetch must fail, Luno gates candles behind credentials")
	}
}

func TestLunoAuthCandles(t *testing.T) {
	creds := market.Credentials{APIKey: "key-id", APISecret: "key-secret"}
	wantAuth := "Basic " + base64.StdEncoding.EncodeToString([]byte("key-id:key-secret"))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/exchange/1/candles" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != wantAuth {
			t.Errorf("auth header = %q, want %q", got, wantAuth)
		}
		q := r.URL.Query()
		if q.Get("pair") != "XBTUSDT" {
			t.Errorf("wire pair = %s, want XBTUSDT", q.Get("pair"))
		}
		if q.Get("duration") != "3600" {
			t.Errorf("duration = %s, want 3600", q.Get("duration"))
		}
		w.Write([]byte(`{"candles":[
			{"timestamp":1700000000000,"open":"100.1","high":"110.2","low":"90.3","close":"105.4","volume":"12.5"},
			{"timestamp":1700003600000,"open":"105.4","high":"112.0","low":"101.0","close":"108.9","volume":"8.1"}
		]}`))
	}))
	defer srv.Close()

	a := newLuno(srv.URL).(AuthCandleFetcher)
	candles, err := a.FetchCandlesAuth(context.Background(), creds, "BTCUSDT", "1h", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(candles) != 2 {
		t.Fatalf("got %d candles, want 2", len(candles))
	}
	c := candles[0]
	if c.Timestamp != 1700000000000 {
		t.Errorf("timestamp = %d, want 1700000000000", c.Timestamp)
	}
	if c.Open.String() != "100.1" || c.Close.String() != "105.4" || c.Volume.String() != "12.5" {
		t.Errorf("candle fields wrong: %+v", c)
	}
}
