// Package orderbook implements the per-instrument price-time-priority book:
// a B-tree of price levels on each side, each level a FIFO queue of resting
// orders, plus an O(1) order-ID index for cancellation.
//
// Grounded on internal/trading/orderbook/orderbook.go (tidwall/btree.Map
// [string, *PriceLevel] keyed by decimal-string price, per-level
// sync.RWMutex, ordersByID index for O(1) cancel). That PriceLevel is a
// hand-rolled ring-buffer chunk chain tuned for an order-pooling hot path
// this kernel does not need; here each level is a doubly linked FIFO list,
// which is what Orders()/AddOrder()/RemoveOrder() describe the data
// structure as being used for (price-time priority, append at tail,
// remove anywhere in O(1) given a back-pointer) without the pooling
// complexity. PriceLevel also exposes Orders(), a queue snapshot, so the
// matching engine can walk it head to tail and skip a same-trader maker
// in place, exactly as AddOrder walks level.Orders() and does
// `if maker.UserID == order.UserID { continue }`.
package orderbook

import (
	"container/list"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tidwall/btree"

	"github.com/rindex/perpkernel/internal/model"
)

// PriceLevel is a FIFO queue of resting orders at a single price.
type PriceLevel struct {
	Price decimal.Decimal
	mu    sync.RWMutex
	queue *list.List // of *model.Order
}

func newPriceLevel(price decimal.Decimal) *PriceLevel {
	return &PriceLevel{Price: price, queue: list.New()}
}

// TotalSize sums the remaining size of every order resting at this level.
func (pl *PriceLevel) TotalSize() decimal.Decimal {
	pl.mu.RLock()
	defer pl.mu.RUnlock()
	total := decimal.Zero
	for e := pl.queue.Front(); e != nil; e = e.Next() {
		total = total.Add(e.Value.(*model.Order).RemainingSize())
	}
	return total
}

// Count returns the number of orders resting at this level.
func (pl *PriceLevel) Count() int {
	pl.mu.RLock()
	defer pl.mu.RUnlock()
	return pl.queue.Len()
}

// Front returns the oldest resting order at this level, or nil if empty.
func (pl *PriceLevel) Front() *model.Order {
	pl.mu.RLock()
	defer pl.mu.RUnlock()
	if e := pl.queue.Front(); e != nil {
		return e.Value.(*model.Order)
	}
	return nil
}

// Orders returns a snapshot of the orders resting at this level, oldest
// first. The matching engine walks this snapshot head to tail so a
// self-trade-skipped order keeps its queue position rather than being
// removed and re-inserted.
func (pl *PriceLevel) Orders() []*model.Order {
	pl.mu.RLock()
	defer pl.mu.RUnlock()
	orders := make([]*model.Order, 0, pl.queue.Len())
	for e := pl.queue.Front(); e != nil; e = e.Next() {
		orders = append(orders, e.Value.(*model.Order))
	}
	return orders
}

// priceKeyWidth is the length every B-tree key is left-padded to.
const priceKeyWidth = 40

// priceKey formats a decimal price as a lexicographically order-preserving
// B-tree key. Prices in this kernel are always non-negative; StringFixed
// gives every key the same number of fractional digits, and left-padding
// with zeros to priceKeyWidth gives every key the same number of integer
// digits, so plain string comparison sorts keys in price order.
func priceKey(price decimal.Decimal) string {
	s := price.StringFixed(8)
	if pad := priceKeyWidth - len(s); pad > 0 {
		s = strings.Repeat("0", pad) + s
	}
	return s
}

// OrderBook holds the resting bids and asks for one instrument.
type OrderBook struct {
	Instrument string

	mu   sync.RWMutex // guards bids/asks B-trees and ordersByID together
	bids *btree.Map[string, *PriceLevel]
	asks *btree.Map[string, *PriceLevel]

	ordersByID map[uuid.UUID]*orderLocation
}

type orderLocation struct {
	level *PriceLevel
	elem  *list.Element
	side  model.Side
}

// New creates an empty order book for an instrument.
func New(instrument string) *OrderBook {
	return &OrderBook{
		Instrument: instrument,
		bids:       btree.NewMap[string, *PriceLevel](32),
		asks:       btree.NewMap[string, *PriceLevel](32),
		ordersByID: make(map[uuid.UUID]*orderLocation),
	}
}

func (ob *OrderBook) bookFor(side model.Side) *btree.Map[string, *PriceLevel] {
	if side == model.SideBuy {
		return ob.bids
	}
	return ob.asks
}

// Rest adds an order to the book at its limit price, at the back of that
// price level's FIFO queue. The caller must already have validated the
// order (e.g. via model.Order's own invariants).
func (ob *OrderBook) Rest(o *model.Order) {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	book := ob.bookFor(o.Side)
	key := priceKey(o.Price)
	level, ok := book.Get(key)
	if !ok {
		level = newPriceLevel(o.Price)
		book.Set(key, level)
	}

	level.mu.Lock()
	elem := level.queue.PushBack(o)
	level.mu.Unlock()

	ob.ordersByID[o.ID] = &orderLocation{level: level, elem: elem, side: o.Side}
}

// Remove removes a resting order from the book by ID. It reports whether
// the order was found. If removing it empties the price level, the level
// is dropped from the B-tree.
func (ob *OrderBook) Remove(id uuid.UUID) bool {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	loc, ok := ob.ordersByID[id]
	if !ok {
		return false
	}
	delete(ob.ordersByID, id)

	loc.level.mu.Lock()
	loc.level.queue.Remove(loc.elem)
	empty := loc.level.queue.Len() == 0
	loc.level.mu.Unlock()

	if empty {
		ob.bookFor(loc.side).Delete(priceKey(loc.level.Price))
	}
	return true
}

// PopFront removes and returns the oldest order resting at level on the
// given side, or nil if the level is empty. If that empties the level, the
// level is dropped from the B-tree.
func (ob *OrderBook) PopFront(side model.Side, level *PriceLevel) *model.Order {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	level.mu.Lock()
	e := level.queue.Front()
	if e == nil {
		level.mu.Unlock()
		return nil
	}
	o := e.Value.(*model.Order)
	level.queue.Remove(e)
	empty := level.queue.Len() == 0
	level.mu.Unlock()

	delete(ob.ordersByID, o.ID)
	if empty {
		ob.bookFor(side).Delete(priceKey(level.Price))
	}
	return o
}

// BestBid returns the highest resting bid level, or nil if the bid side is
// empty.
func (ob *OrderBook) BestBid() *PriceLevel {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	var best *PriceLevel
	ob.bids.Reverse(func(_ string, level *PriceLevel) bool {
		best = level
		return false
	})
	return best
}

// BestAsk returns the lowest resting ask level, or nil if the ask side is
// empty.
func (ob *OrderBook) BestAsk() *PriceLevel {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	var best *PriceLevel
	ob.asks.Scan(func(_ string, level *PriceLevel) bool {
		best = level
		return false
	})
	return best
}

// Get looks up a resting order by ID.
func (ob *OrderBook) Get(id uuid.UUID) (*model.Order, bool) {
	ob.mu.RLock()
	loc, ok := ob.ordersByID[id]
	ob.mu.RUnlock()
	if !ok {
		return nil, false
	}
	loc.level.mu.RLock()
	defer loc.level.mu.RUnlock()
	for e := loc.level.queue.Front(); e != nil; e = e.Next() {
		if o := e.Value.(*model.Order); o.ID == id {
			return o, true
		}
	}
	return nil, false
}

// Levels returns a snapshot of the resting price levels on side, in
// best-first order (highest price first for bids, lowest first for asks).
// Grounded on oppBook.Scan/Reverse walk in AddOrder; taken as
// a snapshot rather than a held-lock callback so the matching engine can
// remove filled orders (which locks the book itself) while walking it.
func (ob *OrderBook) Levels(side model.Side) []*PriceLevel {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	book := ob.bookFor(side)
	levels := make([]*PriceLevel, 0, book.Len())
	if side == model.SideBuy {
		ob.bids.Reverse(func(_ string, level *PriceLevel) bool {
			levels = append(levels, level)
			return true
		})
	} else {
		ob.asks.Scan(func(_ string, level *PriceLevel) bool {
			levels = append(levels, level)
			return true
		})
	}
	return levels
}

// Depth returns the number of distinct price levels resting on a side.
func (ob *OrderBook) Depth(side model.Side) int {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	return ob.bookFor(side).Len()
}

// Snapshot returns the top maxLevels price levels of each side, best first.
func (ob *OrderBook) Snapshot(maxLevels int) model.OrderBookSnapshot {
	ob.mu.RLock()
	defer ob.mu.RUnlock()

	snap := model.OrderBookSnapshot{Instrument: ob.Instrument}
	ob.bids.Reverse(func(_ string, level *PriceLevel) bool {
		if len(snap.Bids) >= maxLevels {
			return false
		}
		snap.Bids = append(snap.Bids, model.OrderBookLevel{
			Price: level.Price, TotalSize: level.TotalSize(), Count: level.Count(),
		})
		return true
	})
	ob.asks.Scan(func(_ string, level *PriceLevel) bool {
		if len(snap.Asks) >= maxLevels {
			return false
		}
		snap.Asks = append(snap.Asks, model.OrderBookLevel{
			Price: level.Price, TotalSize: level.TotalSize(), Count: level.Count(),
		})
		return true
	})
	return snap
}

// Crossed reports whether the best bid is at or above the best ask, i.e.
// whether the book currently has a crossable spread.
func (ob *OrderBook) Crossed() bool {
	bid, ask := ob.BestBid(), ob.BestAsk()
	if bid == nil || ask == nil {
		return false
	}
	return bid.Price.GreaterThanOrEqual(ask.Price)
}
