package triarb

import (
	"testing"

	"github.com/shopspring/decimal"

	"momentum-arb-bot/internal/market"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func book(bid, ask string) *market.OrderBook {
	return &market.OrderBook{
		Bids: []market.Level{{Price: dec(bid), Size: dec("1000000")}},
		Asks: []market.Level{{Price: dec(ask), Size: dec("1000000")}},
	}
}

func TestComputeProfitZARRoundTrip(t *testing.T) {
	path, err := PathByID("usdt-btc-zar")
	if err != nil {
		t.Fatal(err)
	}

	books := map[string]*market.OrderBook{
		"BTCUSDT": book("49990", "50000"),
		"BTCZAR":  book("900000", "901000"),
		"USDTZAR": book("17.99", "18"),
	}

	opp, err := ComputeProfit(path, "valr", books, dec("1000"), dec("0.001"))
	if err != nil {
		t.Fatal(err)
	}

	// leg 1: buy BTC: 1000 * 0.999 / 50000 = 0.01998
	if !opp.Steps[0].Output.Equal(dec("0.01998")) {
		t.Errorf("step1 output = %s, want 0.01998", opp.Steps[0].Output)
	}
	// leg 2: sell BTC for ZAR: 0.01998 * 900000 * 0.999 = 17964.018
	if !opp.Steps[1].Output.Equal(dec("17964.018")) {
		t.Errorf("step2 output = %s, want 17964.018", opp.Steps[1].Output)
	}
	// leg 3: buy USDT with ZAR: 17964.018 * 0.999 / 18 = 997.0029990
	if !opp.Steps[2].Output.Equal(dec("997.002999")) {
		t.Errorf("step3 output = %s, want 997.002999", opp.Steps[2].Output)
	}

	if !opp.EndAmount.Equal(dec("997.002999")) {
		t.Errorf("end amount = %s, want 997.002999", opp.EndAmount)
	}
	if !opp.Profit.Equal(dec("-2.997001")) {
		t.Errorf("profit = %s, want -2.997001", opp.Profit)
	}
	if !opp.ProfitPercent.Equal(dec("-0.2997001")) {
		t.Errorf("profit percent = %s, want -0.2997001", opp.ProfitPercent)
	}
}

func TestComputeProfitUsesPathSideNotPairSpelling(t *testing.T) {
	path, err := PathByID("usdt-btc-zar")
	if err != nil {
		t.Fatal(err)
	}
	// The final leg must price at the ask (a buy), not the bid.
	books := map[string]*market.OrderBook{
		"BTCUSDT": book("49990", "50000"),
		"BTCZAR":  book("900000", "901000"),
		"USDTZAR": book("10", "18"),
	}
	opp, err := ComputeProfit(path, "valr", books, dec("1000"), dec("0.001"))
	if err != nil {
		t.Fatal(err)
	}
	if !opp.Steps[2].Price.Equal(dec("18")) {
		t.Errorf("final leg priced at %s, want ask 18", opp.Steps[2].Price)
	}
}

func TestComputeProfitMissingBook(t *testing.T) {
	path, err := PathByID("usdt-btc-eth")
	if err != nil {
		t.Fatal(err)
	}
	books := map[string]*market.OrderBook{
		"BTCUSDT": book("49990", "50000"),
	}
	if _, err := ComputeProfit(path, "binance", books, dec("1000"), dec("0.001")); err == nil {
		t.Fatal("missing book must fail the path")
	}
}

func TestComputeProfitEmptySide(t *testing.T) {
	path, err := PathByID("usdt-btc-eth")
	if err != nil {
		t.Fatal(err)
	}
	books := map[string]*market.OrderBook{
		"BTCUSDT": {Bids: []market.Level{{Price: dec("49990"), Size: dec("1")}}},
		"ETHBTC":  book("0.05", "0.051"),
		"ETHUSDT": book("2500", "2501"),
	}
	if _, err := ComputeProfit(path, "binance", books, dec("1000"), dec("0.001")); err == nil {
		t.Fatal("empty ask side must fail a buy leg")
	}
}

func TestParseBookShapes(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"lowercase positional", `{"bids":[["100","2"]],"asks":[["101","3"]]}`},
		{"capitalised positional", `{"Bids":[[100,2]],"Asks":[[101,3]]}`},
		{"object price/size", `{"bids":[{"price":"100","size":"2"}],"asks":[{"price":"101","size":"3"}]}`},
		{"object capitalised", `{"Bids":[{"Price":100,"Size":2}],"Asks":[{"Price":101,"Size":3}]}`},
		{"object quantity alias", `{"bids":[{"price":"100","quantity":"2"}],"asks":[{"price":"101","amount":"3"}]}`},
		{"positional with extras", `{"bids":[["100","2","ignored"]],"asks":[["101","3","ignored"]]}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ob, err := ParseBook([]byte(tc.raw))
			if err != nil {
				t.Fatal(err)
			}
			bid, err := ob.BestBid()
			if err != nil {
				t.Fatal(err)
			}
			ask, err := ob.BestAsk()
			if err != nil {
				t.Fatal(err)
			}
			if !bid.Price.Equal(dec("100")) || !bid.Size.Equal(dec("2")) {
				t.Errorf("bid = %s @ %s, want 2 @ 100", bid.Size, bid.Price)
			}
			if !ask.Price.Equal(dec("101")) || !ask.Size.Equal(dec("3")) {
				t.Errorf("ask = %s @ %s, want 3 @ 101", ask.Size, ask.Price)
			}
		})
	}
}

func TestParseBookRejectsGarbage(t *testing.T) {
	for _, raw := range []string{
		`[]`,
		`{"bids":[["100"]],"asks":[]}`,
		`{"asks":[["101","3"]]}`,
		`{"bids":[{"size":"2"}],"asks":[["101","3"]]}`,
	} {
		if _, err := ParseBook([]byte(raw)); err == nil {
			t.Errorf("ParseBook(%s) accepted malformed input", raw)
		}
	}
}

func TestUnionPairs(t *testing.T) {
	paths, err := PathSet(Set1ETHFocus)
	if err != nil {
		t.Fatal(err)
	}
	pairs := UnionPairs(paths)
	seen := make(map[string]int)
	for _, p := range pairs {
		seen[p]++
	}
	for pair, n := range seen {
		if n != 1 {
			t.Errorf("pair %s appears %d times", pair, n)
		}
	}
	for _, want := range []string{"BTCUSDT", "ETHBTC", "ETHUSDT"} {
		if seen[want] == 0 {
			t.Errorf("union is missing %s", want)
		}
	}
}

func TestPathsForExchangeDefaults(t *testing.T) {
	for _, venue := range []string{"valr", "luno", "chainex"} {
		paths := PathsForExchange(venue)
		if len(paths) == 0 {
			t.Fatalf("%s has no default paths", venue)
		}
		for _, p := range paths {
			if p.Pairs[1][len(p.Pairs[1])-3:] != "ZAR" {
				t.Errorf("%s default path %s is not a ZAR route", venue, p.ID)
			}
		}
	}
	if len(PathsForExchange("binance")) == 0 {
		t.Fatal("binance has no default paths")
	}
}
