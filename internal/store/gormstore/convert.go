package gormstore

import (
	"github.com/rindex/perpkernel/internal/model"
)

func traderFromModel(t *model.Trader) traderRow {
	return traderRow{
		ID: t.ID, Username: t.Username, Type: string(t.Type),
		Balance: t.Balance, TotalPnL: t.TotalPnL,
		TradeCount: t.TradeCount, MaxLeverageUsed: t.MaxLeverageUsed,
		CreatedAt: t.CreatedAt,
	}
}

func (r traderRow) toModel() *model.Trader {
	return &model.Trader{
		ID: r.ID, Username: r.Username, Type: model.TraderType(r.Type),
		Balance: r.Balance, TotalPnL: r.TotalPnL,
		TradeCount: r.TradeCount, MaxLeverageUsed: r.MaxLeverageUsed,
		CreatedAt: r.CreatedAt,
	}
}

func positionFromModel(p *model.Position) positionRow {
	return positionRow{
		TraderID: p.TraderID, Instrument: p.Instrument,
		Size: p.Size, EntryPrice: p.EntryPrice, Leverage: p.Leverage,
		Margin: p.Margin, RealizedPnL: p.RealizedPnL,
		LiquidationPrice: p.LiquidationPrice, UpdatedAt: p.UpdatedAt,
	}
}

func (r positionRow) toModel() *model.Position {
	return &model.Position{
		TraderID: r.TraderID, Instrument: r.Instrument,
		Size: r.Size, EntryPrice: r.EntryPrice, Leverage: r.Leverage,
		Margin: r.Margin, RealizedPnL: r.RealizedPnL,
		LiquidationPrice: r.LiquidationPrice, UpdatedAt: r.UpdatedAt,
	}
}

func orderFromModel(o *model.Order) orderRow {
	return orderRow{
		ID: o.ID, ClientOrderID: o.ClientOrderID, TraderID: o.TraderID,
		Instrument: o.Instrument, Side: string(o.Side), Type: string(o.Type),
		Price: o.Price, Size: o.Size, FilledSize: o.FilledSize,
		Leverage: o.Leverage, Status: string(o.Status),
		CreatedAt: o.CreatedAt, UpdatedAt: o.UpdatedAt,
	}
}

func (r orderRow) toModel() *model.Order {
	return &model.Order{
		ID: r.ID, ClientOrderID: r.ClientOrderID, TraderID: r.TraderID,
		Instrument: r.Instrument, Side: model.Side(r.Side), Type: model.OrderType(r.Type),
		Price: r.Price, Size: r.Size, FilledSize: r.FilledSize,
		Leverage: r.Leverage, Status: model.OrderStatus(r.Status),
		CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
	}
}

func tradeFromModel(t *model.Trade) tradeRow {
	return tradeRow{
		ID: t.ID, Instrument: t.Instrument, Price: t.Price, Size: t.Size,
		Timestamp: t.Timestamp, BuyerID: t.BuyerID, SellerID: t.SellerID,
		BuyerOrderID: t.BuyerOrderID, SellerOrderID: t.SellerOrderID,
		BuyerLeverage: t.BuyerLeverage, SellerLeverage: t.SellerLeverage,
		BuyerEffect: string(t.BuyerEffect), SellerEffect: string(t.SellerEffect),
		BuyerNewPosition: t.BuyerNewPosition, SellerNewPosition: t.SellerNewPosition,
		AggressorSide: string(t.AggressorSide),
	}
}

func (r tradeRow) toModel() *model.Trade {
	return &model.Trade{
		ID: r.ID, Instrument: r.Instrument, Price: r.Price, Size: r.Size,
		Timestamp: r.Timestamp, BuyerID: r.BuyerID, SellerID: r.SellerID,
		BuyerOrderID: r.BuyerOrderID, SellerOrderID: r.SellerOrderID,
		BuyerLeverage: r.BuyerLeverage, SellerLeverage: r.SellerLeverage,
		BuyerEffect: model.PositionEffect(r.BuyerEffect), SellerEffect: model.PositionEffect(r.SellerEffect),
		BuyerNewPosition: r.BuyerNewPosition, SellerNewPosition: r.SellerNewPosition,
		AggressorSide: model.Side(r.AggressorSide),
	}
}

func liquidationFromModel(l *model.Liquidation) liquidationRow {
	return liquidationRow{
		ID: l.ID, TraderID: l.TraderID, Instrument: l.Instrument, Side: string(l.Side),
		Size: l.Size, EntryPrice: l.EntryPrice, LiquidationPrice: l.LiquidationPrice,
		MarkPrice: l.MarkPrice, Leverage: l.Leverage, Loss: l.Loss,
		InsuranceFundHit: l.InsuranceFundHit, Timestamp: l.Timestamp,
	}
}

func (r liquidationRow) toModel() *model.Liquidation {
	return &model.Liquidation{
		ID: r.ID, TraderID: r.TraderID, Instrument: r.Instrument, Side: model.Side(r.Side),
		Size: r.Size, EntryPrice: r.EntryPrice, LiquidationPrice: r.LiquidationPrice,
		MarkPrice: r.MarkPrice, Leverage: r.Leverage, Loss: r.Loss,
		InsuranceFundHit: r.InsuranceFundHit, Timestamp: r.Timestamp,
	}
}

func marketStatsFromModel(s *model.MarketStats) marketStatsRow {
	return marketStatsRow{
		Instrument: s.Instrument, LastPrice: s.LastPrice, MarkPrice: s.MarkPrice,
		High24h: s.High24h, Low24h: s.Low24h, Volume24h: s.Volume24h,
		OpenInterest: s.OpenInterest, InsuranceFund: s.InsuranceFund,
	}
}

func (r marketStatsRow) toModel() *model.MarketStats {
	return &model.MarketStats{
		Instrument: r.Instrument, LastPrice: r.LastPrice, MarkPrice: r.MarkPrice,
		High24h: r.High24h, Low24h: r.Low24h, Volume24h: r.Volume24h,
		OpenInterest: r.OpenInterest, InsuranceFund: r.InsuranceFund,
	}
}
