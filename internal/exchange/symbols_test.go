package exchange

import "testing"

func TestSplitPair(t *testing.T) {
	cases := []struct {
		pair  string
		base  string
		quote string
		ok    bool
	}{
		{"BTCUSDT", "BTC", "USDT", true},
		{"ETHBTC", "ETH", "BTC", true},
		{"BTCZAR", "BTC", "ZAR", true},
		{"USDTZAR", "USDT", "ZAR", true},
		{"SOLUSDC", "SOL", "USDC", true},
		{"DOGEUSD", "DOGE", "USD", true},
		{"USDT", "", "", false}, // a bare quote is not a pair
		{"ABCXYZ", "", "", false},
	}
	for _, tc := range cases {
		base, quote, ok := SplitPair(tc.pair)
		if ok != tc.ok || base != tc.base || quote != tc.quote {
			t.Errorf("SplitPair(%s) = %s/%s/%v, want %s/%s/%v",
				tc.pair, base, quote, ok, tc.base, tc.quote, tc.ok)
		}
	}
}

func TestSymbolMapperPlain(t *testing.T) {
	m := symbolMapper{}
	if got := m.toVenue("BTCUSDT"); got != "BTCUSDT" {
		t.Errorf("toVenue = %s, want BTCUSDT", got)
	}
	if got := m.fromVenue("BTCUSDT"); got != "BTCUSDT" {
		t.Errorf("fromVenue = %s, want BTCUSDT", got)
	}
}

func TestSymbolMapperSeparator(t *testing.T) {
	m := symbolMapper{sep: "-"}
	if got := m.toVenue("BTCUSDT"); got != "BTC-USDT" {
		t.Errorf("toVenue = %s, want BTC-USDT", got)
	}
	if got := m.fromVenue("BTC-USDT"); got != "BTCUSDT" {
		t.Errorf("fromVenue = %s, want BTCUSDT", got)
	}
}

func TestSymbolMapperSuffixAndCase(t *testing.T) {
	m := symbolMapper{sep: "_", suffix: "_SPBL", lowercase: true}
	if got := m.toVenue("ETHUSDT"); got != "eth_usdt_spbl" {
		t.Errorf("toVenue = %s, want eth_usdt_spbl", got)
	}
	if got := m.fromVenue("eth_usdt_spbl"); got != "ETHUSDT" {
		t.Errorf("fromVenue = %s, want ETHUSDT", got)
	}
}

func TestSymbolMapperRenames(t *testing.T) {
	m := symbolMapper{renames: map[string]string{"BTC": "XBT", "DOGE": "XDG"}}
	if got := m.toVenue("BTCUSDT"); got != "XBTUSDT" {
		t.Errorf("toVenue = %s, want XBTUSDT", got)
	}
	if got := m.fromVenue("XBTUSDT"); got != "BTCUSDT" {
		t.Errorf("fromVenue = %s, want BTCUSDT", got)
	}
	if got := m.toVenue("DOGEUSDT"); got != "XDGUSDT" {
		t.Errorf("toVenue = %s, want XDGUSDT", got)
	}
	// Unrenamed bases pass through.
	if got := m.toVenue("ETHUSDT"); got != "ETHUSDT" {
		t.Errorf("toVenue = %s, want ETHUSDT", got)
	}
}

func TestSymbolMapperUnknownQuotePassthrough(t *testing.T) {
	m := symbolMapper{sep: "-"}
	if got := m.toVenue("WEIRDPAIR"); got != "WEIRDPAIR" {
		t.Errorf("unknown quote should pass through, got %s", got)
	}
}

func TestSymbolMapperRoundTrip(t *testing.T) {
	mappers := map[string]symbolMapper{
		"plain":    {},
		"dash":     {sep: "-"},
		"lower":    {sep: "", lowercase: true},
		"kraken":   {renames: map[string]string{"BTC": "XBT"}},
		"luno":     {renames: map[string]string{"BTC": "XBT"}},
		"suffixed": {sep: "_", suffix: "_SPBL"},
	}
	pairs := []string{"BTCUSDT", "ETHUSDT", "ETHBTC", "BTCZAR", "USDTZAR", "XRPUSDT", "LTCBTC"}
	for name, m := range mappers {
		for _, pair := range pairs {
			if got := m.fromVenue(m.toVenue(pair)); got != pair {
				t.Errorf("%s: round trip of %s = %s", name, pair, got)
			}
		}
	}
}

func TestIntervalMapRoundTrip(t *testing.T) {
	m := intervalMap{
		hour: "60m",
		values: map[string]string{
			"1m": "1m", "5m": "5m", "15m": "15m", "30m": "30m",
			"1h": "60m", "4h": "4h", "1d": "1d",
		},
	}
	for canonical := range m.values {
		venue := m.toVenue(canonical)
		if back := m.fromVenue(venue); back != canonical {
			t.Errorf("interval round trip %s -> %s -> %s", canonical, venue, back)
		}
	}
}

func TestIntervalMapFallbacks(t *testing.T) {
	m := intervalMap{hour: "60", values: map[string]string{"1h": "60"}}
	if got := m.toVenue("7h"); got != "60" {
		t.Errorf("unknown interval should fall back to the hour value, got %s", got)
	}
	if got := m.fromVenue("999"); got != "1h" {
		t.Errorf("unknown venue interval should map to 1h, got %s", got)
	}
}
