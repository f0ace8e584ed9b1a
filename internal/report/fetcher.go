// Package report implements the daily revenue-reconciliation pipeline: fetch
// yesterday's per-app stats from the ad network, reduce them with the
// aggregation package, and mirror the results to the reporting sheet and the
// aggregate store.
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/adbridge-lab/adbridge/internal/aggregation"
	"github.com/shopspring/decimal"
)

// NetworkCredentials is the static secret material for the ad network's
// publisher API, passed in explicitly so the fetcher stays testable.
type NetworkCredentials struct {
	SecretKey    string
	RefreshToken string
}

// Fetcher calls the ad network's auth and reporting endpoints. Both calls are
// synchronous and unretried; failures are fatal for the reporting run.
type Fetcher struct {
	authURL   string
	reportURL string
	creds     NetworkCredentials
	client    *http.Client
}

// NewFetcher creates a fetcher against fixed auth and reporting endpoints.
func NewFetcher(authURL, reportURL string, creds NetworkCredentials, timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Fetcher{
		authURL:   authURL,
		reportURL: reportURL,
		creds:     creds,
		client:    &http.Client{Timeout: timeout},
	}
}

// BearerToken exchanges the static secret key and refresh token for a bearer
// token. The auth endpoint returns the token as a bare JSON string.
func (f *Fetcher) BearerToken(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.authURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build auth request: %w", err)
	}
	req.Header.Set("secretkey", f.creds.SecretKey)
	req.Header.Set("refreshToken", f.creds.RefreshToken)

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("auth call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("auth call returned status %d: %s", resp.StatusCode, body)
	}

	var token string
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return "", fmt.Errorf("failed to decode auth response: %w", err)
	}
	if token == "" {
		return "", fmt.Errorf("auth endpoint returned an empty token")
	}
	return token, nil
}

// reportEntry is the per-app shape of the network's stats response. The
// per-day figures sit in a nested data array; impressions are only present for
// sources that report them.
type reportEntry struct {
	AppKey string `json:"appKey"`
	Date   string `json:"date"`
	Data   []struct {
		Revenue     json.Number `json:"revenue"`
		ECPM        json.Number `json:"eCPM"`
		Impressions *int64      `json:"impressions"`
	} `json:"data"`
}

// DailyReport fetches the per-app stats for [startDate, endDate] broken down
// by app for one ad source, flattened into stat records.
func (f *Fetcher) DailyReport(ctx context.Context, bearerToken, startDate, endDate, adSource string) ([]aggregation.StatRecord, error) {
	q := url.Values{}
	q.Set("startDate", startDate)
	q.Set("endDate", endDate)
	q.Set("breakdown", "app")
	q.Set("adSource", adSource)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.reportURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build report request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+bearerToken)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("report call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("report call returned status %d: %s", resp.StatusCode, body)
	}

	var entries []reportEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("failed to decode report response: %w", err)
	}

	var records []aggregation.StatRecord
	for _, entry := range entries {
		date := entry.Date
		if date == "" {
			date = startDate
		}
		for _, d := range entry.Data {
			rec := aggregation.StatRecord{
				AppKey: entry.AppKey,
				Date:   date,
			}
			if rec.Revenue, err = parseNumber(d.Revenue); err != nil {
				return nil, fmt.Errorf("invalid revenue for app %q: %w", entry.AppKey, err)
			}
			if rec.ECPM, err = parseNumber(d.ECPM); err != nil {
				return nil, fmt.Errorf("invalid eCPM for app %q: %w", entry.AppKey, err)
			}
			if d.Impressions != nil {
				rec.Impressions = *d.Impressions
				rec.HasImpressions = true
			}
			records = append(records, rec)
		}
	}
	return records, nil
}

// parseNumber converts a JSON number field to decimal without a float64
// round-trip. An absent field decodes as the empty json.Number and maps to 0.
func parseNumber(n json.Number) (decimal.Decimal, error) {
	if n == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(n.String())
}
