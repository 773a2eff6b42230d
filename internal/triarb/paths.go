package triarb

import "fmt"

// Order sides for a path step
const (
	SideBuy  = "buy"
	SideSell = "sell"
)

// Step is one leg of a triangular path: the pair to trade and the direction.
// A buy consumes the pair's quote currency and yields base; a sell consumes
// base and yields quote.
type Step struct {
	Pair string `json:"pair"`
	Side string `json:"side"`
}

// Path is a compile-time triangular route. Sequence is display-only; the
// executable truth is Steps, and each step's side is authored to match the
// sequence direction. Consumers must follow the side literally and never
// re-derive it from the pair spelling.
type Path struct {
	ID       string    `json:"id"`
	Pairs    [3]string `json:"pairs"`
	Sequence string    `json:"sequence"`
	Steps    [3]Step   `json:"steps"`
}

// Named path sets
const (
	Set1ETHFocus = "SET_1_ETH_FOCUS"
	Set2BTCFocus = "SET_2_BTC_FOCUS"
	Set3ZARFocus = "SET_3_ZAR_FOCUS"
)

var pathSets = map[string][]Path{
	Set1ETHFocus: {
		{
			ID:       "usdt-btc-eth",
			Pairs:    [3]string{"BTCUSDT", "ETHBTC", "ETHUSDT"},
			Sequence: "USDT→BTC→ETH→USDT",
			Steps: [3]Step{
				{Pair: "BTCUSDT", Side: SideBuy},
				{Pair: "ETHBTC", Side: SideBuy},
				{Pair: "ETHUSDT", Side: SideSell},
			},
		},
		{
			ID:       "usdt-eth-btc",
			Pairs:    [3]string{"ETHUSDT", "ETHBTC", "BTCUSDT"},
			Sequence: "USDT→ETH→BTC→USDT",
			Steps: [3]Step{
				{Pair: "ETHUSDT", Side: SideBuy},
				{Pair: "ETHBTC", Side: SideSell},
				{Pair: "BTCUSDT", Side: SideSell},
			},
		},
		{
			ID:       "usdt-eth-bnb",
			Pairs:    [3]string{"ETHUSDT", "BNBETH", "BNBUSDT"},
			Sequence: "USDT→ETH→BNB→USDT",
			Steps: [3]Step{
				{Pair: "ETHUSDT", Side: SideBuy},
				{Pair: "BNBETH", Side: SideBuy},
				{Pair: "BNBUSDT", Side: SideSell},
			},
		},
	},
	Set2BTCFocus: {
		{
			ID:       "usdt-btc-ltc",
			Pairs:    [3]string{"BTCUSDT", "LTCBTC", "LTCUSDT"},
			Sequence: "USDT→BTC→LTC→USDT",
			Steps: [3]Step{
				{Pair: "BTCUSDT", Side: SideBuy},
				{Pair: "LTCBTC", Side: SideBuy},
				{Pair: "LTCUSDT", Side: SideSell},
			},
		},
		{
			ID:       "usdt-btc-xrp",
			Pairs:    [3]string{"BTCUSDT", "XRPBTC", "XRPUSDT"},
			Sequence: "USDT→BTC→XRP→USDT",
			Steps: [3]Step{
				{Pair: "BTCUSDT", Side: SideBuy},
				{Pair: "XRPBTC", Side: SideBuy},
				{Pair: "XRPUSDT", Side: SideSell},
			},
		},
	},
	// ZAR routes for the South African venues. The last leg converts ZAR
	// back to USDT through USDTZAR, where USDT is the base: that is a buy.
	Set3ZARFocus: {
		{
			ID:       "usdt-btc-zar",
			Pairs:    [3]string{"BTCUSDT", "BTCZAR", "USDTZAR"},
			Sequence: "USDT→BTC→ZAR→USDT",
			Steps: [3]Step{
				{Pair: "BTCUSDT", Side: SideBuy},
				{Pair: "BTCZAR", Side: SideSell},
				{Pair: "USDTZAR", Side: SideBuy},
			},
		},
		{
			ID:       "usdt-eth-zar",
			Pairs:    [3]string{"ETHUSDT", "ETHZAR", "USDTZAR"},
			Sequence: "USDT→ETH→ZAR→USDT",
			Steps: [3]Step{
				{Pair: "ETHUSDT", Side: SideBuy},
				{Pair: "ETHZAR", Side: SideSell},
				{Pair: "USDTZAR", Side: SideBuy},
			},
		},
	},
}

// exchangePathSets maps each venue to its default set
var exchangePathSets = map[string]string{
	"valr":    Set3ZARFocus,
	"luno":    Set3ZARFocus,
	"chainex": Set3ZARFocus,
}

// PathSet returns the paths of a named set
func PathSet(name string) ([]Path, error) {
	paths, ok := pathSets[name]
	if !ok {
		return nil, fmt.Errorf("unknown path set %q", name)
	}
	return paths, nil
}

// PathsForExchange returns a venue's default path set
func PathsForExchange(exchange string) []Path {
	if name, ok := exchangePathSets[exchange]; ok {
		return pathSets[name]
	}
	return pathSets[Set1ETHFocus]
}

// PathByID finds one path across all sets
func PathByID(id string) (Path, error) {
	for _, set := range pathSets {
		for _, p := range set {
			if p.ID == id {
				return p, nil
			}
		}
	}
	return Path{}, fmt.Errorf("unknown path %q", id)
}

// UnionPairs collects the distinct pairs used by a set of paths, in first-
// seen order
func UnionPairs(paths []Path) []string {
	seen := make(map[string]bool)
	var out []string
	for _, p := range paths {
		for _, pair := range p.Pairs {
			if !seen[pair] {
				seen[pair] = true
				out = append(out, pair)
			}
		}
	}
	return out
}
