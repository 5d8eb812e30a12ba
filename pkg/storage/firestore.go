package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/levenlabs/go-lflag"
	"github.com/wattkoll/wattkoll/pkg/log"
	"github.com/wattkoll/wattkoll/pkg/timekey"
	"github.com/wattkoll/wattkoll/pkg/types"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// fetchPageSize is how many documents each range query page requests. A page
// shorter than this ends the fetch; equal length means another page may exist.
const fetchPageSize = 1000

const (
	readingsCollection  = "energy_readings"
	pricesCollection    = "price_history"
	summariesCollection = "monthly_summaries"
	syncCollection      = "sync_status"
)

// FirestoreProvider implements the Database interface using Google Cloud
// Firestore. Records are stored as JSON blobs under deterministic document
// IDs so re-writes of the same record are idempotent upserts.
type FirestoreProvider struct {
	client    *firestore.Client
	projectID string
	database  string
}

// configuredFirestore sets up the Firestore provider.
// It registers flags for configuration.
func configuredFirestore() *FirestoreProvider {
	projectID := lflag.String("firestore-project-id", "", "Google Cloud Project ID for Firestore")
	database := lflag.String("firestore-database", "", "Google Cloud Firestore Database")
	emulator := lflag.String("firestore-emulator", "", "Use Firestore emulator")

	f := &FirestoreProvider{}

	lflag.Do(func() {
		f.projectID = *projectID
		f.database = *database

		// set this because that's how firestore client expects it
		if *emulator != "" {
			os.Setenv("FIRESTORE_EMULATOR_HOST", *emulator)
		}
	})

	return f
}

// Init initializes the Firestore client.
// This must be called before using the provider methods.
func (f *FirestoreProvider) Init(ctx context.Context) error {
	projectID := f.projectID
	if projectID == "" {
		projectID = firestore.DetectProjectID
	}
	database := f.database
	if database == "" {
		database = firestore.DefaultDatabaseID
	}
	client, err := firestore.NewClientWithDatabase(ctx, projectID, database)
	if err != nil {
		return fmt.Errorf("failed to create firestore client (project=%s, database=%s): %w", projectID, database, err)
	}
	f.client = client
	return nil
}

// Close closes the Firestore client connection.
func (f *FirestoreProvider) Close() error {
	if f.client != nil {
		return f.client.Close()
	}
	return nil
}

// readingDocID keys a reading on (device, face timestamp) so overlapping
// sync windows overwrite instead of duplicating.
func readingDocID(r types.Reading) string {
	return r.DeviceID + "|" + string(r.Timestamp)
}

// UpsertReadings writes readings as JSON blobs. The timestamp field carries
// the face-value string so range queries compare lexicographically in
// local-time order.
func (f *FirestoreProvider) UpsertReadings(ctx context.Context, readings []types.Reading) (int, error) {
	coll := f.client.Collection(readingsCollection)
	var saved int
	for _, r := range readings {
		if r.DeviceID == "" || !r.Timestamp.Valid() {
			log.Ctx(ctx).WarnContext(ctx, "skipping unkeyable reading",
				slog.String("deviceID", r.DeviceID), slog.String("timestamp", string(r.Timestamp)))
			continue
		}
		jsonBytes, err := json.Marshal(r)
		if err != nil {
			return saved, fmt.Errorf("failed to marshal reading: %w", err)
		}
		_, err = coll.Doc(readingDocID(r)).Set(ctx, map[string]interface{}{
			"json":      string(jsonBytes),
			"timestamp": string(r.Timestamp),
			"device_id": r.DeviceID,
		})
		if err != nil {
			return saved, fmt.Errorf("failed to upsert reading %s: %w", readingDocID(r), err)
		}
		saved++
	}
	return saved, nil
}

// GetReadings retrieves readings whose face timestamp is in [start, end),
// optionally limited to one device. Results come back in timestamp order.
func (f *FirestoreProvider) GetReadings(ctx context.Context, start, end timekey.FaceTime, deviceID string) ([]types.Reading, error) {
	q := f.client.Collection(readingsCollection).
		Where("timestamp", ">=", string(start)).
		Where("timestamp", "<", string(end))
	if deviceID != "" {
		q = q.Where("device_id", "==", deviceID)
	}
	return fetchJSONPages[types.Reading](ctx, q.OrderBy("timestamp", firestore.Asc), "readings")
}

func priceDocID(p types.PriceRecord) string {
	return p.Timestamp.UTC().Format(time.RFC3339) + "|" + p.PriceArea
}

// UpsertPrices writes price records keyed on (timestamp, area).
func (f *FirestoreProvider) UpsertPrices(ctx context.Context, prices []types.PriceRecord) (int, error) {
	coll := f.client.Collection(pricesCollection)
	var saved int
	for _, p := range prices {
		jsonBytes, err := json.Marshal(p)
		if err != nil {
			return saved, fmt.Errorf("failed to marshal price: %w", err)
		}
		_, err = coll.Doc(priceDocID(p)).Set(ctx, map[string]interface{}{
			"json":      string(jsonBytes),
			"timestamp": p.Timestamp.UTC(),
		})
		if err != nil {
			return saved, fmt.Errorf("failed to upsert price %s: %w", priceDocID(p), err)
		}
		saved++
	}
	return saved, nil
}

// GetPrices retrieves price records with true-UTC timestamps in [start, end).
func (f *FirestoreProvider) GetPrices(ctx context.Context, start, end time.Time) ([]types.PriceRecord, error) {
	q := f.client.Collection(pricesCollection).
		Where("timestamp", ">=", start.UTC()).
		Where("timestamp", "<", end.UTC()).
		OrderBy("timestamp", firestore.Asc)
	return fetchJSONPages[types.PriceRecord](ctx, q, "prices")
}

// GetMonthlySummaries fetches cached summaries for the given month keys in a
// single round trip. Months without a cached document are simply absent from
// the returned map.
func (f *FirestoreProvider) GetMonthlySummaries(ctx context.Context, months []string) (map[string]types.MonthlySummary, error) {
	if len(months) == 0 {
		return map[string]types.MonthlySummary{}, nil
	}
	coll := f.client.Collection(summariesCollection)
	refs := make([]*firestore.DocumentRef, 0, len(months))
	for _, m := range months {
		refs = append(refs, coll.Doc(m))
	}

	docs, err := f.client.GetAll(ctx, refs)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch monthly summaries: %w", err)
	}

	out := make(map[string]types.MonthlySummary, len(docs))
	for _, doc := range docs {
		if !doc.Exists() {
			continue
		}
		var sum types.MonthlySummary
		if !decodeJSONDoc(ctx, doc, "monthly summary", &sum) {
			continue
		}
		out[sum.Month] = sum
	}
	return out, nil
}

// UpsertMonthlySummary caches one month's summary under its month key. The
// stored version lets a future format change invalidate old rows.
func (f *FirestoreProvider) UpsertMonthlySummary(ctx context.Context, sum types.MonthlySummary) error {
	jsonBytes, err := json.Marshal(sum)
	if err != nil {
		return fmt.Errorf("failed to marshal monthly summary: %w", err)
	}
	_, err = f.client.Collection(summariesCollection).Doc(sum.Month).Set(ctx, map[string]interface{}{
		"json":    string(jsonBytes),
		"version": types.CurrentMonthlySummaryVersion,
		"updated": time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to upsert monthly summary %s: %w", sum.Month, err)
	}
	return nil
}

// GetSyncStatus returns the stored watermark for a sync type and device, or
// the zero time if this pair has never synced.
func (f *FirestoreProvider) GetSyncStatus(ctx context.Context, syncType, deviceID string) (time.Time, error) {
	doc, err := f.client.Collection(syncCollection).Doc(syncType + "|" + deviceID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return time.Time{}, nil
		}
		return time.Time{}, fmt.Errorf("failed to fetch sync status %s|%s: %w", syncType, deviceID, err)
	}

	val, err := doc.DataAt("timestamp")
	if err != nil {
		return time.Time{}, fmt.Errorf("sync status %s|%s missing timestamp: %w", syncType, deviceID, err)
	}
	ts, ok := val.(time.Time)
	if !ok {
		return time.Time{}, fmt.Errorf("sync status %s|%s timestamp is not a time", syncType, deviceID)
	}
	return ts, nil
}

// SetSyncStatus records the watermark for a sync type and device.
func (f *FirestoreProvider) SetSyncStatus(ctx context.Context, syncType, deviceID string, ts time.Time) error {
	_, err := f.client.Collection(syncCollection).Doc(syncType+"|"+deviceID).Set(ctx, map[string]interface{}{
		"timestamp": ts.UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to set sync status %s|%s: %w", syncType, deviceID, err)
	}
	return nil
}

// fetchJSONPages drains a range query in fixed-size offset pages and decodes
// each document's json blob. Individually malformed documents are skipped
// with a warning but still count toward the page size.
func fetchJSONPages[T any](ctx context.Context, q firestore.Query, label string) ([]T, error) {
	return drainPages(func(offset, limit int) ([]T, int, error) {
		iter := q.Offset(offset).Limit(limit).Documents(ctx)
		defer iter.Stop()

		var items []T
		var fetched int
		for {
			doc, err := iter.Next()
			if err == iterator.Done {
				return items, fetched, nil
			}
			if err != nil {
				return nil, 0, fmt.Errorf("failed to fetch %s page at offset %d: %w", label, offset, err)
			}
			fetched++
			var v T
			if decodeJSONDoc(ctx, doc, label, &v) {
				items = append(items, v)
			}
		}
	})
}

// drainPages pulls fixed-size offset pages until a short page signals the
// range is exhausted. Any page error aborts the whole fetch so callers never
// aggregate over a silent gap. fetched is the raw document count of the page,
// which may exceed the decoded item count.
func drainPages[T any](fetch func(offset, limit int) (items []T, fetched int, err error)) ([]T, error) {
	var out []T
	for offset := 0; ; offset += fetchPageSize {
		items, fetched, err := fetch(offset, fetchPageSize)
		if err != nil {
			return nil, err
		}
		out = append(out, items...)
		if fetched < fetchPageSize {
			return out, nil
		}
	}
}

// decodeJSONDoc unpacks the json blob field of a document. Malformed
// documents log a warning and report false rather than failing the query.
func decodeJSONDoc(ctx context.Context, doc *firestore.DocumentSnapshot, label string, v interface{}) bool {
	val, err := doc.DataAt("json")
	if err != nil {
		log.Ctx(ctx).WarnContext(ctx, "doc missing json field",
			slog.String("label", label), slog.String("docID", doc.Ref.ID), slog.Any("err", err))
		return false
	}
	jsonStr, ok := val.(string)
	if !ok {
		log.Ctx(ctx).WarnContext(ctx, "doc json field not a string",
			slog.String("label", label), slog.String("docID", doc.Ref.ID))
		return false
	}
	if err := json.Unmarshal([]byte(jsonStr), v); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to unmarshal doc json",
			slog.String("label", label), slog.String("docID", doc.Ref.ID), slog.Any("err", err))
		return false
	}
	return true
}
