// Package spot fetches day-ahead electricity spot prices.
package spot

import (
	"context"
	"time"

	"github.com/wattkoll/wattkoll/pkg/types"
)

// Source provides spot prices for one bidding area.
type Source interface {
	// DayPrices returns the published prices for the given calendar day,
	// or nil if the day has not been published yet.
	DayPrices(ctx context.Context, day time.Time) ([]types.PriceRecord, error)
}
