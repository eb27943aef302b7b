// Package marketstats tracks rolling market statistics (last/mark price,
// 24h high/low/volume, open interest) and buckets trades into OHLCV
// candles, per spec.md §4.3 and §4.7.
//
// Grounded on internal/marketmaking/analytics/metrics's SlidingWindow,
// referenced from the orderbook package for slippage tracking,
// generalized from a generic float64 window to a decimal-safe,
// trade-driven OHLCV tracker.
package marketstats

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rindex/perpkernel/internal/model"
)

const rollingWindow = 24 * time.Hour

type tradePoint struct {
	at    time.Time
	price decimal.Decimal
	size  decimal.Decimal
}

// Tracker maintains one instrument's rolling stats and its in-progress
// candle buckets across every supported interval.
type Tracker struct {
	instrument string

	mu         sync.Mutex
	lastPrice  decimal.Decimal
	markPrice  decimal.Decimal
	trades     []tradePoint // ring of trades within rollingWindow, oldest first
	candles    map[model.CandleInterval]*bucket
	closed     map[model.CandleInterval][]model.Candle
}

type bucket struct {
	openTime   time.Time
	closeTime  time.Time
	open       decimal.Decimal
	openAt     time.Time // timestamp of the trade that set open, for the explicit min-timestamp rule
	high       decimal.Decimal
	low        decimal.Decimal
	close      decimal.Decimal
	volume     decimal.Decimal
	tradeCount int64
}

var allIntervals = []model.CandleInterval{
	model.Interval1m, model.Interval5m, model.Interval15m,
	model.Interval1h, model.Interval4h, model.Interval1d,
}

// maxClosedCandles bounds how many completed candles per interval are kept
// in memory for get_historical_candles before the caller must fall back to
// the store.
const maxClosedCandles = 1000

// New creates a Tracker for one instrument. startingMarkPrice seeds the
// mark price returned by MarkPrice/Snapshot before any trade has occurred
// (spec.md §4.3.5: "last trade price, or a configured initial value ...
// if no trade has yet occurred").
func New(instrument string, startingMarkPrice decimal.Decimal) *Tracker {
	return &Tracker{
		instrument: instrument,
		markPrice:  startingMarkPrice,
		candles:    make(map[model.CandleInterval]*bucket),
		closed:     make(map[model.CandleInterval][]model.Candle),
	}
}

// RecordTrade folds a newly executed trade into the rolling window and
// every candle interval's current bucket, and sets both the last price and
// the mark price to the trade's price (spec.md §9's Open Question resolves
// mark price to "last trade price").
func (t *Tracker) RecordTrade(price, size decimal.Decimal, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.lastPrice = price
	t.markPrice = price
	t.trades = append(t.trades, tradePoint{at: at, price: price, size: size})
	t.evictOldLocked(at)

	for _, interval := range allIntervals {
		t.foldLocked(interval, price, size, at)
	}
}

func (t *Tracker) evictOldLocked(now time.Time) {
	cutoff := now.Add(-rollingWindow)
	i := 0
	for i < len(t.trades) && t.trades[i].at.Before(cutoff) {
		i++
	}
	if i > 0 {
		t.trades = t.trades[i:]
	}
}

func (t *Tracker) foldLocked(interval model.CandleInterval, price, size decimal.Decimal, at time.Time) {
	dur := interval.Duration()
	openTime := at.Truncate(dur)
	closeTime := openTime.Add(dur)

	b := t.candles[interval]
	if b == nil || b.openTime != openTime {
		if b != nil {
			t.closeBucketLocked(interval, b)
		}
		b = &bucket{
			openTime: openTime, closeTime: closeTime,
			open: price, openAt: at, high: price, low: price, close: price,
		}
		t.candles[interval] = b
	}

	// Explicit min-timestamp open rule (spec.md §9): the bucket's open is
	// whichever trade has the earliest timestamp seen for this bucket, not
	// simply the first one processed — relevant if trades arrive slightly
	// out of order.
	if at.Before(b.openAt) {
		b.open = price
		b.openAt = at
	}
	if price.GreaterThan(b.high) {
		b.high = price
	}
	if price.LessThan(b.low) {
		b.low = price
	}
	b.close = price
	b.volume = b.volume.Add(size)
	b.tradeCount++
}

func (t *Tracker) closeBucketLocked(interval model.CandleInterval, b *bucket) {
	candle := model.Candle{
		Instrument: t.instrument, Interval: interval,
		OpenTime: b.openTime, CloseTime: b.closeTime,
		Open: b.open, High: b.high, Low: b.low, Close: b.close,
		Volume: b.volume, TradeCount: b.tradeCount,
	}
	list := append(t.closed[interval], candle)
	if len(list) > maxClosedCandles {
		list = list[len(list)-maxClosedCandles:]
	}
	t.closed[interval] = list
}

// CurrentCandle returns the in-progress candle for an interval, if any.
func (t *Tracker) CurrentCandle(interval model.CandleInterval) (model.Candle, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	b := t.candles[interval]
	if b == nil {
		return model.Candle{}, false
	}
	return model.Candle{
		Instrument: t.instrument, Interval: interval,
		OpenTime: b.openTime, CloseTime: b.closeTime,
		Open: b.open, High: b.high, Low: b.low, Close: b.close,
		Volume: b.volume, TradeCount: b.tradeCount,
	}, true
}

// HistoricalCandles returns up to limit of the most recent closed candles
// for an interval, oldest first.
func (t *Tracker) HistoricalCandles(interval model.CandleInterval, limit int) []model.Candle {
	t.mu.Lock()
	defer t.mu.Unlock()
	list := t.closed[interval]
	if limit <= 0 || limit >= len(list) {
		out := make([]model.Candle, len(list))
		copy(out, list)
		return out
	}
	out := make([]model.Candle, limit)
	copy(out, list[len(list)-limit:])
	return out
}

// Snapshot computes the rolling 24h high/low/volume and returns a
// model.MarketStats with last/mark price filled in. Open interest and
// insurance fund are supplied by the caller, which owns that state. Trades
// more than 24h older than the time of the call are evicted first.
func (t *Tracker) Snapshot(openInterest, insuranceFund decimal.Decimal) model.MarketStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.evictOldLocked(time.Now())

	stats := model.MarketStats{
		Instrument:    t.instrument,
		LastPrice:     t.lastPrice,
		MarkPrice:     t.markPrice,
		OpenInterest:  openInterest,
		InsuranceFund: insuranceFund,
	}
	if len(t.trades) == 0 {
		return stats
	}
	stats.High24h = t.trades[0].price
	stats.Low24h = t.trades[0].price
	for _, tp := range t.trades {
		if tp.price.GreaterThan(stats.High24h) {
			stats.High24h = tp.price
		}
		if tp.price.LessThan(stats.Low24h) {
			stats.Low24h = tp.price
		}
		// spec.md §4.7: volume_24h is notional (size·price), distinct from a
		// candle's plain Σ size volume computed in foldLocked.
		stats.Volume24h = stats.Volume24h.Add(tp.size.Mul(tp.price))
	}
	return stats
}

// MarkPrice returns the current mark price (last trade price).
func (t *Tracker) MarkPrice() decimal.Decimal {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.markPrice
}
