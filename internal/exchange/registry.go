package exchange

import (
	"fmt"
	"strings"
	"sync"
)

// defaultBaseURLs holds the production endpoint for every supported venue.
// Any of these can be overridden via configuration (testnets, mirrors).
var defaultBaseURLs = map[string]string{
	"binance":   "https://api.binance.com",
	"binanceus": "https://api.binance.us",
	"mexc":      "https://api.mexc.com",
	"xt":        "https://sapi.xt.com",
	"chainex":   "https://api.chainex.io",
	"bybit":     "https://api.bybit.com",
	"okx":       "https://www.okx.com",
	"bitget":    "https://api.bitget.com",
	"kucoin":    "https://api.kucoin.com",
	"coinbase":  "https://api.exchange.coinbase.com",
	"htx":       "https://api.huobi.pro",
	"gateio":    "https://api.gateio.ws",
	"valr":      "https://api.valr.com",
	"gemini":    "https://api.gemini.com",
	"bitfinex":  "https://api.bitfinex.com",
	"kraken":    "https://api.kraken.com",
	"luno":      "https://api.luno.com",
	"ascendex":  "https://ascendex.com",
	"bitmart":   "https://api-cloud.bitmart.com",
	"cryptocom": "https://api.crypto.com",
}

type constructor func(baseURL string) Adapter

var constructors = map[string]constructor{
	"binance":   newBinance,
	"binanceus": newBinanceUS,
	"mexc":      newMEXC,
	"xt":        newXT,
	"chainex":   newChainEX,
	"bybit":     newBybit,
	"okx":       newOKX,
	"bitget":    newBitget,
	"kucoin":    newKuCoin,
	"coinbase":  newCoinbase,
	"htx":       newHTX,
	"gateio":    newGate,
	"valr":      newVALR,
	"gemini":    newGemini,
	"bitfinex":  newBitfinex,
	"kraken":    newKraken,
	"luno":      newLuno,
	"ascendex":  newAscendEX,
	"bitmart":   newBitMart,
	"cryptocom": newCryptoCom,
}

// Registry constructs and caches one adapter per venue. Instances are cached
// because each adapter owns its rate-limit pacing state; credentials are
// never part of that state.
type Registry struct {
	mu        sync.Mutex
	overrides map[string]string // venue -> base URL
	adapters  map[string]Adapter
}

// NewRegistry creates a registry. overrides may be nil.
func NewRegistry(overrides map[string]string) *Registry {
	return &Registry{
		overrides: overrides,
		adapters:  make(map[string]Adapter),
	}
}

// Get returns the adapter for an exchange name, constructing it on first use.
func (r *Registry) Get(exchange string) (Adapter, error) {
	name := strings.ToLower(strings.TrimSpace(exchange))

	r.mu.Lock()
	defer r.mu.Unlock()

	if a, ok := r.adapters[name]; ok {
		return a, nil
	}

	build, ok := constructors[name]
	if !ok {
		return nil, fmt.Errorf("unsupported exchange: %s", exchange)
	}

	baseURL := defaultBaseURLs[name]
	if override, ok := r.overrides[name]; ok && override != "" {
		baseURL = override
	}

	a := build(baseURL)
	r.adapters[name] = a
	return a, nil
}

// Known reports whether name is a supported venue.
func Known(name string) bool {
	_, ok := constructors[strings.ToLower(strings.TrimSpace(name))]
	return ok
}

// Supported returns the sorted-insensitive list of venue names.
func Supported() []string {
	names := make([]string, 0, len(constructors))
	for name := range constructors {
		names = append(names, name)
	}
	return names
}
