package main

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"os"
	"time"

	"github.com/levenlabs/go-lflag"
	"github.com/wattkoll/wattkoll/pkg/log"
	"github.com/wattkoll/wattkoll/pkg/storage"
	"github.com/wattkoll/wattkoll/pkg/timekey"
	"github.com/wattkoll/wattkoll/pkg/types"
)

// Seeds the firestore emulator with a week of synthetic readings and spot
// prices so the API has something to serve during local development.
func main() {
	os.Setenv("FIRESTORE_EMULATOR_HOST", "127.0.0.1:8087")
	s := storage.Configured()
	lflag.Configure()

	ctx := context.Background()

	log.Ctx(ctx).InfoContext(ctx, "seeding mock data")

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	devices := []struct {
		id   string
		name string
		// baseWatts is the device's idle draw; the daily curve rides on top
		baseWatts float64
	}{
		{"seed-heater", "Varmvattenberedare", 150},
		{"seed-car", "Elbilsladdare", 0},
	}

	now := time.Now().UTC().Truncate(time.Hour)
	start := now.AddDate(0, 0, -7)

	// Hourly prices with morning and evening peaks, in öre/kWh.
	var prices []types.PriceRecord
	for t := start.Add(-2 * time.Hour); t.Before(now.AddDate(0, 0, 1)); t = t.Add(time.Hour) {
		hour := t.Hour()
		ore := 40.0
		if hour >= 6 && hour < 9 {
			ore = 120 // morning peak
		} else if hour >= 17 && hour < 21 {
			ore = 180 // evening peak
		} else if hour >= 10 && hour < 15 {
			ore = 25 // mid-day lull
		}
		ore += (rng.Float64() * 10) - 5

		prices = append(prices, types.PriceRecord{
			Timestamp: t,
			PriceArea: "SE3",
			OrePerKWH: ore,
		})
	}
	if _, err := s.UpsertPrices(ctx, prices); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to seed prices", "error", err)
		os.Exit(1)
	}
	fmt.Printf("Seeded %d hourly prices\n", len(prices))

	// Quarter-hour readings per device.
	for _, dev := range devices {
		var readings []types.Reading
		var accumulated float64
		for t := start; t.Before(now); t = t.Add(15 * time.Minute) {
			hour := t.Hour()

			watts := dev.baseWatts
			// heater runs hard in the morning, the car charges overnight
			if dev.id == "seed-heater" && hour >= 6 && hour < 9 {
				dist := math.Abs(float64(hour) - 7.0)
				watts += 2500 * math.Exp(-(dist * dist))
			}
			if dev.id == "seed-car" && (hour >= 22 || hour < 5) {
				watts = 11000
			}
			watts += rng.Float64() * 50

			kwh := watts * 0.25 / 1000
			accumulated += kwh
			readings = append(readings, types.Reading{
				DeviceID:       dev.id,
				DeviceName:     dev.name,
				Timestamp:      timekey.FaceOf(t),
				DeltaKWH:       kwh,
				AccumulatedKWH: accumulated,
				Watts:          watts,
			})
		}

		saved, err := s.UpsertReadings(ctx, readings)
		if err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to seed readings", "error", err)
			os.Exit(1)
		}
		if err := s.SetSyncStatus(ctx, types.SyncTypeEnergy, dev.id, now); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to seed sync status", "error", err)
			os.Exit(1)
		}
		fmt.Printf("Seeded %d readings for %s\n", saved, dev.name)
	}

	log.Ctx(ctx).InfoContext(ctx, "seeded mock data successfully")
}
