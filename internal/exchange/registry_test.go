package exchange

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"momentum-arb-bot/internal/market"
)

func TestRegistryKnowsAllVenues(t *testing.T) {
	for name := range defaultBaseURLs {
		if !Known(name) {
			t.Errorf("venue %s has a base URL but no constructor", name)
		}
	}
	for name := range constructors {
		if _, ok := defaultBaseURLs[name]; !ok {
			t.Errorf("venue %s has a constructor but no base URL", name)
		}
	}
	if Known("ftx") {
		t.Error("Known accepted an unsupported venue")
	}
	if !Known(" Binance ") {
		t.Error("Known should trim and fold case")
	}
}

func TestRegistryCachesAdapters(t *testing.T) {
	r := NewRegistry(nil)
	a, err := r.Get("binance")
	if err != nil {
		t.Fatal(err)
	}
	b, err := r.Get("BINANCE")
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Error("Get should return the cached instance regardless of case")
	}
}

func TestRegistryUnknownVenue(t *testing.T) {
	r := NewRegistry(nil)
	if _, err := r.Get("ftx"); err == nil {
		t.Error("unknown venue must fail")
	}
}

func TestSupportedMatchesConstructors(t *testing.T) {
	names := Supported()
	if len(names) != len(constructors) {
		t.Fatalf("Supported() has %d venues, want %d", len(names), len(constructors))
	}
	for _, n := range names {
		if !Known(n) {
			t.Errorf("Supported() lists unknown venue %s", n)
		}
	}
}

func TestRegistryBaseURLOverride(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v3/ticker/price" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{"symbol":"BTCUSDT","price":"50000.5"}`))
	}))
	defer srv.Close()

	r := NewRegistry(map[string]string{"binance": srv.URL})
	a, err := r.Get("binance")
	if err != nil {
		t.Fatal(err)
	}
	price, err := a.FetchCurrentPrice(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatal(err)
	}
	if price.String() != "50000.5" {
		t.Errorf("price = %s, want 50000.5", price)
	}
}

func TestBinanceCandleNormalisation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("symbol") != "BTCUSDT" || q.Get("interval") != "1h" || q.Get("limit") != "2" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		// Binance klines carry trailing fields the engine ignores.
		w.Write([]byte(`[
			[1700000000000,"100.1","110.2","90.3","105.4","1234.5",1700003599999,"0",10,"0","0","0"],
			[1700003600000,"105.4","112.0","101.0","108.9","2345.6",1700007199999,"0",12,"0","0","0"]
		]`))
	}))
	defer srv.Close()

	a := newBinance(srv.URL)
	candles, err := a.FetchCandles(context.Background(), "BTCUSDT", "1h", 2)
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
	if c.Open.String() != "100.1" || c.High.String() != "110.2" ||
		c.Low.String() != "90.3" || c.Close.String() != "105.4" || c.Volume.String() != "1234.5" {
		t.Errorf("candle fields wrong: %+v", c)
	}
}

func TestBinanceOrderBookNormalisation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"bids":[["99.5","1.2"],["99.0","3"]],"asks":[["100.5","0.8"]]}`))
	}))
	defer srv.Close()

	a := newBinance(srv.URL)
	book, err := a.FetchOrderBook(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatal(err)
	}
	bid, err := book.BestBid()
	if err != nil {
		t.Fatal(err)
	}
	ask, err := book.BestAsk()
	if err != nil {
		t.Fatal(err)
	}
	if bid.Price.String() != "99.5" || bid.Size.String() != "1.2" {
		t.Errorf("best bid = %s @ %s", bid.Size, bid.Price)
	}
	if ask.Price.String() != "100.5" || ask.Size.String() != "0.8" {
		t.Errorf("best ask = %s @ %s", ask.Size, ask.Price)
	}
	if len(book.Bids) != 2 {
		t.Errorf("bid depth = %d, want 2", len(book.Bids))
	}
}

func TestVenueErrorFromHTTPStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		w.Write([]byte(`{"code":-1121,"msg":"Invalid symbol."}`))
	}))
	defer srv.Close()

	a := newBinance(srv.URL)
	_, err := a.FetchCurrentPrice(context.Background(), "NOPEUSDT")
	var ve *market.VenueError
	if !errors.As(err, &ve) {
		t.Fatalf("error = %v, want *market.VenueError", err)
	}
	if ve.Venue != "binance" || ve.HTTPStatus != http.StatusTeapot {
		t.Errorf("venue error = %+v", ve)
	}
}

func TestKrakenEnvelopeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":["EQuery:Unknown asset pair"],"result":null}`))
	}))
	defer srv.Close()

	a := newKraken(srv.URL)
	_, err := a.FetchCurrentPrice(context.Background(), "NOPEUSDT")
	var ve *market.VenueError
	if !errors.As(err, &ve) {
		t.Fatalf("error = %v, want *market.VenueError", err)
	}
	if ve.VenueCode != "EQuery:Unknown asset pair" {
		t.Errorf("venue code = %q", ve.VenueCode)
	}
}

func TestKrakenSymbolTranslationOnWire(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("pair"); got != "XBTUSDT" {
			t.Errorf("wire pair = %s, want XBTUSDT", got)
		}
		w.Write([]byte(`{"error":[],"result":{"XXBTZUSDT":{"c":["50000.1","0.01"]}}}`))
	}))
	defer srv.Close()

	a := newKraken(srv.URL)
	price, err := a.FetchCurrentPrice(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatal(err)
	}
	if price.String() != "50000.1" {
		t.Errorf("price = %s, want 50000.1", price)
	}
}
