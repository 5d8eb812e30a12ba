package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/levenlabs/go-lflag"
	"github.com/wattkoll/wattkoll/pkg/common"
	"github.com/wattkoll/wattkoll/pkg/log"
	"github.com/wattkoll/wattkoll/pkg/types"
)

const tempiroLoginPath = "auth/token"

// tokenSlack is how long before expiry a cached token is treated as stale,
// so a token that expires mid-request is refreshed up front.
const tokenSlack = time.Minute

// valueTimeLayout is the interval bound format the values endpoint expects.
const valueTimeLayout = "2006-01-02T15:04:05"

// Tempiro implements the Source interface for the Tempiro device cloud.
// A bearer token is cached until shortly before its reported expiry; an
// unexpected 401 clears the cache and the request is retried once with a
// fresh token.
type Tempiro struct {
	client       *http.Client
	baseURL      string
	username     string
	password     string
	mu           sync.Mutex
	tokenStr     string
	tokenExpires time.Time
}

// New returns a Tempiro client for the given API and credentials.
func New(baseURL, username, password string) *Tempiro {
	return &Tempiro{
		client:   common.HTTPClient(time.Minute),
		baseURL:  baseURL,
		username: username,
		password: password,
	}
}

// Configured sets up the Tempiro source.
// It registers flags for configuration.
func Configured() Source {
	baseURL := lflag.String("tempiro-api-url", "https://api.tempiro.com", "Base URL for the Tempiro cloud API")
	username := lflag.String("tempiro-username", "", "Tempiro account username")
	password := lflag.String("tempiro-password", "", "Tempiro account password")

	t := &Tempiro{client: common.HTTPClient(time.Minute)}

	lflag.Do(func() {
		t.baseURL = *baseURL
		t.username = *username
		t.password = *password
	})

	return t
}

type tokenResult struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// ensureToken refreshes the cached token if it is missing or about to
// expire. Must be called with t.mu held.
func (t *Tempiro) ensureToken(ctx context.Context) error {
	if t.tokenStr != "" && time.Now().Add(tokenSlack).Before(t.tokenExpires) {
		return nil
	}
	return t.login(ctx)
}

// login fetches a fresh token. Must be called with t.mu held.
func (t *Tempiro) login(ctx context.Context) error {
	if t.username == "" {
		return errors.New("missing tempiro username")
	}
	if t.password == "" {
		return errors.New("missing tempiro password")
	}

	req, err := t.newJSONRequest(ctx, "POST", tempiroLoginPath, map[string]string{
		"username": t.username,
		"password": t.password,
	})
	if err != nil {
		return err
	}

	var res tokenResult
	if err := t.doRequest(req, &res); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "tempiro login failed", slog.Any("error", err))
		return fmt.Errorf("login failed: %w", err)
	}
	if res.ExpiresIn <= 0 {
		res.ExpiresIn = 3600
	}

	t.tokenStr = res.AccessToken
	t.tokenExpires = time.Now().Add(time.Duration(res.ExpiresIn) * time.Second)
	log.Ctx(ctx).DebugContext(ctx, "tempiro login success", slog.String("username", t.username))
	return nil
}

func (t *Tempiro) newGetRequest(ctx context.Context, endpoint string, params url.Values) (*http.Request, error) {
	u, err := url.Parse(t.baseURL)
	if err != nil {
		return nil, err
	}
	u.Path, err = url.JoinPath(u.Path, endpoint)
	if err != nil {
		return nil, err
	}

	u.RawQuery = params.Encode()
	return http.NewRequestWithContext(ctx, "GET", u.String(), nil)
}

func (t *Tempiro) newJSONRequest(ctx context.Context, method, endpoint string, data interface{}) (*http.Request, error) {
	u, err := url.Parse(t.baseURL)
	if err != nil {
		return nil, err
	}
	u.Path, err = url.JoinPath(u.Path, endpoint)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// doRequest sends the request with the cached bearer token. A 401 on a
// non-login request clears the token and retries once after a fresh login.
// Must be called with t.mu held.
func (t *Tempiro) doRequest(req *http.Request, dest interface{}) error {
	isLogin := strings.HasSuffix(req.URL.Path, tempiroLoginPath)

	// we try up to 2 times because we might have an expired token
	for i := 0; i < 2; i++ {
		if !isLogin {
			if err := t.ensureToken(req.Context()); err != nil {
				return err
			}
			req.Header.Set("Authorization", "Bearer "+t.tokenStr)
		}
		if i > 0 && req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return err
			}
			req.Body = body
		}

		resp, err := t.client.Do(req)
		if err != nil {
			return err
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return err
		}

		if resp.StatusCode == http.StatusUnauthorized && !isLogin && t.tokenStr != "" {
			log.Ctx(req.Context()).DebugContext(req.Context(), "tempiro token expired")
			t.tokenStr = ""
			continue
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("status %d", resp.StatusCode)
		}

		if dest != nil {
			if err := json.Unmarshal(body, dest); err != nil {
				log.Ctx(req.Context()).ErrorContext(req.Context(), "failed to decode tempiro response",
					slog.Any("error", err), slog.String("body", string(body)))
				return fmt.Errorf("failed to decode tempiro response: %w", err)
			}
		}
		return nil
	}
	return errors.New("request unauthorized after token refresh")
}

type tempiroDevice struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	DeviceID      string   `json:"deviceId"`
	Value         *int     `json:"value"`
	CurrentPower  *float64 `json:"currentPower"`
	BatteryOK     *bool    `json:"batteryOK"`
	FuseVoltageOK *bool    `json:"fuseVoltageOK"`
	Offline       *bool    `json:"offline"`
	LastUpdate    string   `json:"lastUpdate"`
	HoursActive   *float64 `json:"hoursActive"`
}

// Devices returns the normalized live status of every registered device.
// Absent optional fields get the upstream's documented defaults: healthy
// battery and fuse, online, zero power.
func (t *Tempiro) Devices(ctx context.Context) ([]types.Device, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	req, err := t.newGetRequest(ctx, "devices", nil)
	if err != nil {
		return nil, err
	}

	var raw []tempiroDevice
	if err := t.doRequest(req, &raw); err != nil {
		return nil, fmt.Errorf("failed to fetch devices: %w", err)
	}

	devices := make([]types.Device, 0, len(raw))
	for _, d := range raw {
		dev := types.Device{
			ID:            d.ID,
			Name:          d.Name,
			DeviceID:      d.DeviceID,
			BatteryOK:     true,
			FuseVoltageOK: true,
			LastUpdate:    d.LastUpdate,
		}
		if d.Value != nil {
			dev.Value = *d.Value
		}
		if d.CurrentPower != nil {
			dev.CurrentPower = *d.CurrentPower
		}
		if d.BatteryOK != nil {
			dev.BatteryOK = *d.BatteryOK
		}
		if d.FuseVoltageOK != nil {
			dev.FuseVoltageOK = *d.FuseVoltageOK
		}
		if d.Offline != nil {
			dev.Offline = *d.Offline
		}
		if d.HoursActive != nil {
			dev.HoursActive = *d.HoursActive
		}
		devices = append(devices, dev)
	}
	return devices, nil
}

// Values returns energy samples for one device between from and to at a
// 15-minute interval.
func (t *Tempiro) Values(ctx context.Context, deviceID string, from, to time.Time) ([]Value, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	params := url.Values{}
	params.Set("from", from.UTC().Format(valueTimeLayout))
	params.Set("to", to.UTC().Format(valueTimeLayout))
	params.Set("interval", "15")

	req, err := t.newGetRequest(ctx, "devices/"+url.PathEscape(deviceID)+"/values", params)
	if err != nil {
		return nil, err
	}

	var values []Value
	if err := t.doRequest(req, &values); err != nil {
		return nil, fmt.Errorf("failed to fetch values for device %s: %w", deviceID, err)
	}
	return values, nil
}

// Switch turns a device on or off. The upstream's response is returned
// verbatim so the caller can pass it through.
func (t *Tempiro) Switch(ctx context.Context, deviceID string, value int) (json.RawMessage, error) {
	if value != 0 && value != 1 {
		return nil, fmt.Errorf("invalid switch value %d", value)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	req, err := t.newJSONRequest(ctx, "PUT", "devices/"+url.PathEscape(deviceID)+"/switch", map[string]int{
		"value": value,
	})
	if err != nil {
		return nil, err
	}

	var res json.RawMessage
	if err := t.doRequest(req, &res); err != nil {
		return nil, fmt.Errorf("failed to switch device %s: %w", deviceID, err)
	}
	log.Ctx(ctx).InfoContext(ctx, "switched device",
		slog.String("deviceID", deviceID), slog.Int("value", value))
	return res, nil
}
