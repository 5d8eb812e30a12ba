package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/levenlabs/go-lflag"
	"github.com/wattkoll/wattkoll/pkg/timekey"
	"github.com/wattkoll/wattkoll/pkg/types"
)

// Database defines the interface for persisting readings, prices, cached
// monthly summaries, and sync watermarks.
type Database interface {
	// Readings
	// UpsertReadings writes readings keyed by device and timestamp so
	// re-ingesting an overlapping window never duplicates rows. Returns
	// the number of readings written.
	UpsertReadings(ctx context.Context, readings []types.Reading) (int, error)
	// GetReadings returns readings whose face timestamp falls in
	// [start, end). deviceID narrows to one device when non-empty.
	GetReadings(ctx context.Context, start, end timekey.FaceTime, deviceID string) ([]types.Reading, error)

	// Prices
	UpsertPrices(ctx context.Context, prices []types.PriceRecord) (int, error)
	// GetPrices returns price records with true-UTC timestamps in
	// [start, end).
	GetPrices(ctx context.Context, start, end time.Time) ([]types.PriceRecord, error)

	// Monthly summary cache
	// GetMonthlySummaries returns the cached summaries for the given
	// month keys. Months with no cached summary are absent from the map.
	GetMonthlySummaries(ctx context.Context, months []string) (map[string]types.MonthlySummary, error)
	UpsertMonthlySummary(ctx context.Context, sum types.MonthlySummary) error

	// Sync watermarks
	// GetSyncStatus returns the last successful sync time for a
	// (syncType, deviceID) pair, or the zero time if none is recorded.
	GetSyncStatus(ctx context.Context, syncType, deviceID string) (time.Time, error)
	SetSyncStatus(ctx context.Context, syncType, deviceID string, ts time.Time) error

	// Lifecycle
	Close() error
}

// Configured sets up the storage provider based on flags.
func Configured() Database {
	provider := lflag.String("storage-provider", "firestore", "Storage provider to use (available: firestore)")

	var p struct{ Database }

	fs := configuredFirestore()

	lflag.Do(func() {
		switch *provider {
		case "firestore":
			p.Database = fs
			if err := fs.Init(context.Background()); err != nil {
				panic(fmt.Sprintf("firestore init failed: %v", err))
			}
		default:
			panic(fmt.Sprintf("unknown storage provider: %s", *provider))
		}
	})

	return &p
}
