package exchange

import "strings"

// Quote currencies recognised when splitting a canonical concatenated pair.
// Longest suffixes are tried first so BTCUSDT splits as BTC/USDT, not BTC/USD+T.
var knownQuotes = []string{
	"USDT", "USDC", "BUSD", "TUSD", "FDUSD",
	"BTC", "ETH", "BNB",
	"ZAR", "EUR", "GBP", "AUD", "USD",
}

// SplitPair splits a canonical pair (BASEQUOTE uppercase) into base and quote.
// Returns ok=false when no known quote suffix matches.
func SplitPair(pair string) (base, quote string, ok bool) {
	for _, q := range knownQuotes {
		if strings.HasSuffix(pair, q) && len(pair) > len(q) {
			return pair[:len(pair)-len(q)], q, true
		}
	}
	return "", "", false
}

// symbolMapper translates canonical pairs to and from one venue's spelling.
// Translation is pure data: a separator, an optional suffix, optional base
// renames (BTC -> XBT on Kraken and Luno) and an optional case fold.
type symbolMapper struct {
	sep       string
	suffix    string
	lowercase bool
	renames   map[string]string // canonical base -> venue base
}

func (m symbolMapper) toVenue(pair string) string {
	base, quote, ok := SplitPair(pair)
	if !ok {
		// Pass through unchanged; the venue will reject unknown symbols.
		return pair
	}
	if alias, found := m.renames[base]; found {
		base = alias
	}
	sym := base + m.sep + quote + m.suffix
	if m.lowercase {
		sym = strings.ToLower(sym)
	}
	return sym
}

func (m symbolMapper) fromVenue(sym string) string {
	s := strings.ToUpper(sym)
	s = strings.TrimSuffix(s, strings.ToUpper(m.suffix))
	if m.sep != "" {
		s = strings.ReplaceAll(s, m.sep, "")
	}
	for canonical, alias := range m.renames {
		if strings.HasPrefix(s, strings.ToUpper(alias)) {
			s = canonical + strings.TrimPrefix(s, strings.ToUpper(alias))
			break
		}
	}
	return s
}

// intervalMap translates canonical candle intervals to a venue's spelling.
// Unknown intervals fall back to the venue's one-hour value.
type intervalMap struct {
	values map[string]string
	hour   string
}

func (m intervalMap) toVenue(interval string) string {
	if v, ok := m.values[interval]; ok {
		return v
	}
	return m.hour
}

func (m intervalMap) fromVenue(v string) string {
	for canonical, venue := range m.values {
		if venue == v {
			return canonical
		}
	}
	return "1h"
}

// CanonicalIntervals is the full interval vocabulary of the engine.
var CanonicalIntervals = []string{
	"1m", "3m", "5m", "15m", "30m",
	"1h", "2h", "4h", "6h", "12h",
	"1d", "1w",
}
