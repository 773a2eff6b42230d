package triarb

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"momentum-arb-bot/internal/exchange"
	"momentum-arb-bot/internal/market"
)

// strictVenueDelay spaces book fetches on venues that ban bursty public
// traffic outright instead of returning 429s.
const strictVenueDelay = 5 * time.Second

var strictVenues = map[string]bool{
	"valr":    true,
	"luno":    true,
	"chainex": true,
}

// ScanRequest parameterises one scan pass
type ScanRequest struct {
	Exchange        string
	PathSet         string          // empty selects the venue's default set
	StartAmount     decimal.Decimal
	ProfitThreshold decimal.Decimal // percent; may be negative to surface near-misses
}

// ScanResult is one pass over a venue's paths
type ScanResult struct {
	Exchange      string          `json:"exchange"`
	StartAmount   decimal.Decimal `json:"startAmount"`
	FeeRate       decimal.Decimal `json:"feeRate"`
	ScannedPaths  int             `json:"scannedPaths"`
	Opportunities []*Opportunity  `json:"opportunities"`
	ScannedAt     time.Time       `json:"scannedAt"`
}

// Scanner evaluates a venue's triangular paths against live order books
type Scanner struct {
	registry *exchange.Registry
}

// NewScanner creates a scanner
func NewScanner(registry *exchange.Registry) *Scanner {
	return &Scanner{registry: registry}
}

// Scan fetches each path's books sequentially and computes fee-adjusted
// profit per path. Opportunities at or above the threshold are returned
// sorted by profit percent descending. One path's fetch failure skips that
// path, not the scan.
func (s *Scanner) Scan(ctx context.Context, req ScanRequest) (*ScanResult, error) {
	adapter, err := s.registry.Get(req.Exchange)
	if err != nil {
		return nil, err
	}

	paths := PathsForExchange(req.Exchange)
	if req.PathSet != "" {
		paths, err = PathSet(req.PathSet)
		if err != nil {
			return nil, err
		}
	}

	feeRate := TakerFee(req.Exchange)
	books, err := s.fetchBooks(ctx, adapter, req.Exchange, UnionPairs(paths))
	if err != nil {
		return nil, err
	}

	result := &ScanResult{
		Exchange:     req.Exchange,
		StartAmount:  req.StartAmount,
		FeeRate:      feeRate,
		ScannedPaths: len(paths),
		ScannedAt:    time.Now().UTC(),
	}
	for _, path := range paths {
		opp, err := ComputeProfit(path, req.Exchange, books, req.StartAmount, feeRate)
		if err != nil {
			log.Warn().Err(err).
				Str("exchange", req.Exchange).
				Str("path", path.ID).
				Msg("path skipped during scan")
			continue
		}
		if opp.ProfitPercent.GreaterThanOrEqual(req.ProfitThreshold) {
			result.Opportunities = append(result.Opportunities, opp)
		}
	}

	sort.Slice(result.Opportunities, func(i, j int) bool {
		return result.Opportunities[i].ProfitPercent.GreaterThan(result.Opportunities[j].ProfitPercent)
	})
	return result, nil
}

// QuotePath recomputes a single path at current books. The executor uses
// this for its pre-flight profitability re-check.
func (s *Scanner) QuotePath(ctx context.Context, exchangeName string, path Path, start decimal.Decimal) (*Opportunity, error) {
	adapter, err := s.registry.Get(exchangeName)
	if err != nil {
		return nil, err
	}
	books, err := s.fetchBooks(ctx, adapter, exchangeName, path.Pairs[:])
	if err != nil {
		return nil, err
	}
	return ComputeProfit(path, exchangeName, books, start, TakerFee(exchangeName))
}

// fetchBooks loads books one pair at a time. The adapters already pace
// requests; strict venues get an extra inter-request delay on top.
func (s *Scanner) fetchBooks(ctx context.Context, adapter exchange.Adapter, exchangeName string, pairs []string) (map[string]*market.OrderBook, error) {
	books := make(map[string]*market.OrderBook, len(pairs))
	for i, pair := range pairs {
		if i > 0 && strictVenues[exchangeName] {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(strictVenueDelay):
			}
		}
		book, err := adapter.FetchOrderBook(ctx, pair)
		if err != nil {
			log.Warn().Err(err).
				Str("exchange", exchangeName).
				Str("pair", pair).
				Msg("order book fetch failed")
			continue
		}
		books[pair] = book
	}
	return books, nil
}
