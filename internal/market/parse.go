package market

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ParseDecimal parses the string/number shapes venues return into a decimal.
// Venue payloads are decoded into interface{} because most venues mix string
// and numeric JSON types within one response.
func ParseDecimal(v interface{}) (decimal.Decimal, error) {
	switch t := v.(type) {
	case string:
		return decimal.NewFromString(t)
	case float64:
		return decimal.NewFromFloat(t), nil
	case int64:
		return decimal.NewFromInt(t), nil
	case int:
		return decimal.NewFromInt(int64(t)), nil
	case nil:
		return decimal.Zero, fmt.Errorf("nil numeric value")
	default:
		return decimal.Zero, fmt.Errorf("unsupported numeric type %T", v)
	}
}

// MustDecimal is ParseDecimal for trusted constants in tests and tables.
func MustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// ParseTimestampMs accepts the second/millisecond integer or string epoch
// shapes venues use for candle open times and normalises to milliseconds.
func ParseTimestampMs(v interface{}) (int64, error) {
	d, err := ParseDecimal(v)
	if err != nil {
		return 0, err
	}
	ts := d.IntPart()
	// Kraken and a few others report seconds.
	if ts > 0 && ts < 100_000_000_000 {
		ts *= 1000
	}
	return ts, nil
}
