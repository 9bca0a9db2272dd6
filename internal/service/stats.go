package service

import "context"

// StatsSource supplies order aggregates for an account.
type StatsSource interface {
	OrderStats(ctx context.Context, accountID int64) (orders int64, revenue float64, err error)
}

// NoOrders is the StatsSource used until an order backend exists. It
// reports zero for every account.
type NoOrders struct{}

func (NoOrders) OrderStats(context.Context, int64) (int64, float64, error) {
	return 0, 0, nil
}
