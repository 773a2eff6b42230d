package triarb

import (
	"encoding/json"
	"fmt"

	"momentum-arb-bot/internal/market"
)

// ParseBook decodes an order book supplied by a client or cached upstream.
// Sources disagree on casing ("bids" vs "Bids") and on level shape
// (positional [price, size] arrays vs {price, size} objects, with
// quantity/amount/volume as size aliases), so every combination is accepted.
func ParseBook(raw []byte) (*market.OrderBook, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("order book is not a JSON object: %w", err)
	}

	bidsRaw, ok := pick(doc, "bids", "Bids")
	if !ok {
		return nil, fmt.Errorf("order book has no bids field")
	}
	asksRaw, ok := pick(doc, "asks", "Asks")
	if !ok {
		return nil, fmt.Errorf("order book has no asks field")
	}

	bids, err := parseSide(bidsRaw)
	if err != nil {
		return nil, fmt.Errorf("bids: %w", err)
	}
	asks, err := parseSide(asksRaw)
	if err != nil {
		return nil, fmt.Errorf("asks: %w", err)
	}
	return &market.OrderBook{Bids: bids, Asks: asks}, nil
}

func pick(doc map[string]json.RawMessage, keys ...string) (json.RawMessage, bool) {
	for _, k := range keys {
		if v, ok := doc[k]; ok {
			return v, true
		}
	}
	return nil, false
}

func parseSide(raw json.RawMessage) ([]market.Level, error) {
	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("side is not an array: %w", err)
	}

	levels := make([]market.Level, 0, len(entries))
	for i, entry := range entries {
		level, err := parseLevel(entry)
		if err != nil {
			return nil, fmt.Errorf("level %d: %w", i, err)
		}
		levels = append(levels, level)
	}
	return levels, nil
}

func parseLevel(raw json.RawMessage) (market.Level, error) {
	// Positional shape first: [price, size, ...extras ignored]
	var arr []interface{}
	if err := json.Unmarshal(raw, &arr); err == nil {
		if len(arr) < 2 {
			return market.Level{}, fmt.Errorf("positional level needs price and size")
		}
		price, err := market.ParseDecimal(arr[0])
		if err != nil {
			return market.Level{}, fmt.Errorf("price: %w", err)
		}
		size, err := market.ParseDecimal(arr[1])
		if err != nil {
			return market.Level{}, fmt.Errorf("size: %w", err)
		}
		return market.Level{Price: price, Size: size}, nil
	}

	var obj map[string]interface{}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return market.Level{}, fmt.Errorf("level is neither array nor object")
	}
	priceRaw, ok := pickValue(obj, "price", "Price")
	if !ok {
		return market.Level{}, fmt.Errorf("level has no price")
	}
	sizeRaw, ok := pickValue(obj, "size", "Size", "quantity", "Quantity", "amount", "Amount", "volume", "Volume")
	if !ok {
		return market.Level{}, fmt.Errorf("level has no size")
	}
	price, err := market.ParseDecimal(priceRaw)
	if err != nil {
		return market.Level{}, fmt.Errorf("price: %w", err)
	}
	size, err := market.ParseDecimal(sizeRaw)
	if err != nil {
		return market.Level{}, fmt.Errorf("size: %w", err)
	}
	return market.Level{Price: price, Size: size}, nil
}

func pickValue(obj map[string]interface{}, keys ...string) (interface{}, bool) {
	for _, k := range keys {
		if v, ok := obj[k]; ok {
			return v, true
		}
	}
	return nil, false
}
