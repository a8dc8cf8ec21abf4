package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceSample is one successfully fetched observation.
type PriceSample struct {
	Symbol     string
	ObservedAt time.Time
	Price      decimal.Decimal
	Size       decimal.Decimal
	BestBid    decimal.Decimal
	BestAsk    decimal.Decimal
	WindowLen  int
	Frames     uint64
	CreatedAt  time.Time
}

// AlertRecord audits a fired detection and whether delivery succeeded.
type AlertRecord struct {
	ID        string
	Symbol    string
	FiredAt   time.Time
	Price     decimal.Decimal
	PctChange decimal.Decimal
	Delta     decimal.Decimal
	Direction string
	Channels  []string
	Delivered bool
	Error     *string
	CreatedAt time.Time
}
