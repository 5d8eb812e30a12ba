package telemetry

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTempiro struct {
	t           *testing.T
	logins      int
	validTokens map[string]bool
	expireAll   bool
	devicesJSON string
	valuesJSON  string
	lastValues  map[string]string
}

func newFakeTempiro(t *testing.T) *fakeTempiro {
	return &fakeTempiro{
		t:           t,
		validTokens: map[string]bool{},
		devicesJSON: `[]`,
		valuesJSON:  `[]`,
	}
}

func (f *fakeTempiro) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/token", func(w http.ResponseWriter, r *http.Request) {
		var creds map[string]string
		require.NoError(f.t, json.NewDecoder(r.Body).Decode(&creds))
		require.Equal(f.t, "user@example.com", creds["username"])
		require.Equal(f.t, "hunter2", creds["password"])

		f.logins++
		token := "token-" + string(rune('0'+f.logins))
		f.validTokens[token] = true
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": token,
			"expires_in":   3600,
		})
	})

	authed := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			token, ok := trimBearer(r.Header.Get("Authorization"))
			if !ok || !f.validTokens[token] || f.expireAll {
				// expireAll simulates the upstream revoking every issued
				// token; reset it so the retry succeeds.
				f.expireAll = false
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			next(w, r)
		}
	}

	mux.HandleFunc("GET /devices", authed(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(f.devicesJSON))
	}))
	mux.HandleFunc("GET /devices/{id}/values", authed(func(w http.ResponseWriter, r *http.Request) {
		f.lastValues = map[string]string{
			"id":       r.PathValue("id"),
			"from":     r.URL.Query().Get("from"),
			"to":       r.URL.Query().Get("to"),
			"interval": r.URL.Query().Get("interval"),
		}
		w.Write([]byte(f.valuesJSON))
	}))
	mux.HandleFunc("PUT /devices/{id}/switch", authed(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]int
		require.NoError(f.t, json.NewDecoder(r.Body).Decode(&body))
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":    r.PathValue("id"),
			"value": body["value"],
		})
	}))
	return mux
}

func mustParse(t *testing.T, s string) time.Time {
	ts, err := time.Parse(time.RFC3339, s)
	require.NoError(t, err)
	return ts
}

func trimBearer(h string) (string, bool) {
	const prefix = "Bearer "
	if len(h) <= len(prefix) || h[:len(prefix)] != prefix {
		return "", false
	}
	return h[len(prefix):], true
}

func TestTempiroTokenCached(t *testing.T) {
	fake := newFakeTempiro(t)
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	tp := New(srv.URL, "user@example.com", "hunter2")
	ctx := context.Background()

	_, err := tp.Devices(ctx)
	require.NoError(t, err)
	_, err = tp.Devices(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, fake.logins, "second call should reuse the cached token")
}

func TestTempiroReauthOn401(t *testing.T) {
	fake := newFakeTempiro(t)
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	tp := New(srv.URL, "user@example.com", "hunter2")
	ctx := context.Background()

	_, err := tp.Devices(ctx)
	require.NoError(t, err)

	fake.expireAll = true
	_, err = tp.Devices(ctx)
	require.NoError(t, err, "a revoked token should trigger one transparent re-login")
	assert.Equal(t, 2, fake.logins)
}

func TestTempiroValuesParams(t *testing.T) {
	fake := newFakeTempiro(t)
	fake.valuesJSON = `[
		{"DateTime": "2025-06-01T10:00:00Z", "DeltaPower": 0.25, "AccumulatedValue": 1042.5, "CurrentValue": 1000},
		{"timestamp": "2025-06-01T10:15:00Z", "CurrentValue": 2000}
	]`
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	tp := New(srv.URL, "user@example.com", "hunter2")

	from := mustParse(t, "2025-06-01T10:00:00Z")
	to := mustParse(t, "2025-06-01T11:00:00Z")
	values, err := tp.Values(context.Background(), "dev-1", from, to)
	require.NoError(t, err)

	assert.Equal(t, "dev-1", fake.lastValues["id"])
	assert.Equal(t, "2025-06-01T10:00:00", fake.lastValues["from"])
	assert.Equal(t, "2025-06-01T11:00:00", fake.lastValues["to"])
	assert.Equal(t, "15", fake.lastValues["interval"])

	require.Len(t, values, 2)
	assert.Equal(t, "2025-06-01T10:00:00Z", values[0].When())
	assert.Equal(t, 1000.0, values[0].CurrentValue)
	// older firmware shape
	assert.Equal(t, "2025-06-01T10:15:00Z", values[1].When())
}

func TestTempiroDevicesNormalized(t *testing.T) {
	fake := newFakeTempiro(t)
	fake.devicesJSON = `[
		{"id": "a", "name": "Heater", "deviceId": "ha-1", "value": 1, "currentPower": 420.5,
		 "batteryOK": false, "fuseVoltageOK": true, "offline": false, "lastUpdate": "2025-06-01T10:00:00Z", "hoursActive": 12.5},
		{"id": "b", "name": "Pump"}
	]`
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	tp := New(srv.URL, "user@example.com", "hunter2")
	devices, err := tp.Devices(context.Background())
	require.NoError(t, err)
	require.Len(t, devices, 2)

	assert.Equal(t, "Heater", devices[0].Name)
	assert.Equal(t, 1, devices[0].Value)
	assert.Equal(t, 420.5, devices[0].CurrentPower)
	assert.False(t, devices[0].BatteryOK)

	// absent optional fields fall back to healthy defaults
	assert.True(t, devices[1].BatteryOK)
	assert.True(t, devices[1].FuseVoltageOK)
	assert.False(t, devices[1].Offline)
	assert.Equal(t, 0.0, devices[1].CurrentPower)
}

func TestTempiroSwitch(t *testing.T) {
	fake := newFakeTempiro(t)
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	tp := New(srv.URL, "user@example.com", "hunter2")
	res, err := tp.Switch(context.Background(), "dev-1", 1)
	require.NoError(t, err)

	var echoed map[string]interface{}
	require.NoError(t, json.Unmarshal(res, &echoed))
	assert.Equal(t, "dev-1", echoed["id"])
	assert.Equal(t, 1.0, echoed["value"])

	_, err = tp.Switch(context.Background(), "dev-1", 2)
	assert.Error(t, err, "only 0 and 1 are valid switch values")
}

func TestTempiroLoginRequiresCredentials(t *testing.T) {
	srv := httptest.NewServer(newFakeTempiro(t).handler())
	defer srv.Close()

	tp := New(srv.URL, "", "")
	_, err := tp.Devices(context.Background())
	assert.Error(t, err)
}
