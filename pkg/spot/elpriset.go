package spot

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/levenlabs/go-lflag"
	"github.com/wattkoll/wattkoll/pkg/common"
	"github.com/wattkoll/wattkoll/pkg/log"
	"github.com/wattkoll/wattkoll/pkg/types"
)

// Elpriset implements the Source interface against the public
// elprisetjustnu.se price API. Prices are published as one JSON file per day
// and area; a day that is not published yet returns 404.
type Elpriset struct {
	client  *http.Client
	baseURL string
	area    string
}

// NewElpriset returns a price source for the given API base URL and bidding
// area.
func NewElpriset(baseURL, area string) *Elpriset {
	return &Elpriset{
		client:  common.HTTPClient(30 * time.Second),
		baseURL: baseURL,
		area:    area,
	}
}

// Configured sets up the spot price source.
// It registers flags for configuration.
func Configured() Source {
	baseURL := lflag.String("spot-api-url", "https://www.elprisetjustnu.se/api/v1/prices", "Base URL for the spot price API")
	area := lflag.String("price-area", "SE3", "Electricity bidding area to fetch prices for")

	e := &Elpriset{client: common.HTTPClient(30 * time.Second)}

	lflag.Do(func() {
		e.baseURL = *baseURL
		e.area = *area
	})

	return e
}

// dayEntry is one interval of the upstream day file. The unit price arrives
// in SEK per kWh and is converted to öre on ingestion.
type dayEntry struct {
	SEKPerKWH float64  `json:"SEK_per_kWh"`
	EURPerKWH *float64 `json:"EUR_per_kWh"`
	TimeStart string   `json:"time_start"`
	TimeEnd   string   `json:"time_end"`
}

// DayPrices fetches the published prices for one calendar day. An
// unpublished day (404) is not an error; it returns nil so the caller just
// moves on.
func (e *Elpriset) DayPrices(ctx context.Context, day time.Time) ([]types.PriceRecord, error) {
	day = day.UTC()
	url := fmt.Sprintf("%s/%04d/%02d-%02d_%s.json", e.baseURL, day.Year(), int(day.Month()), day.Day(), e.area)

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch prices for %s: %w", day.Format("2006-01-02"), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		log.Ctx(ctx).DebugContext(ctx, "spot prices not published yet",
			slog.String("day", day.Format("2006-01-02")), slog.String("area", e.area))
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("spot price fetch for %s returned status %d", day.Format("2006-01-02"), resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var entries []dayEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode spot prices for %s: %w", day.Format("2006-01-02"), err)
	}

	records := make([]types.PriceRecord, 0, len(entries))
	for _, entry := range entries {
		ts, err := time.Parse(time.RFC3339, entry.TimeStart)
		if err != nil {
			log.Ctx(ctx).WarnContext(ctx, "skipping price entry with bad time_start",
				slog.String("time_start", entry.TimeStart), slog.Any("error", err))
			continue
		}
		records = append(records, types.PriceRecord{
			Timestamp: ts.UTC(),
			PriceArea: e.area,
			// SEK -> öre
			OrePerKWH: entry.SEKPerKWH * 100,
			EurPerKWH: entry.EURPerKWH,
		})
	}
	return records, nil
}
