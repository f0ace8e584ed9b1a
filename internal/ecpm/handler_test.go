package ecpm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/adbridge-lab/adbridge/internal/httperr"
	"github.com/adbridge-lab/adbridge/internal/storage"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type fakeDirectory struct {
	client *storage.Client
}

func (f *fakeDirectory) Lookup(_ context.Context, clientID string) (*storage.Client, error) {
	if f.client == nil || f.client.ClientID != clientID {
		return nil, storage.ErrClientNotFound
	}
	return f.client, nil
}

type fakeAggStore struct {
	agg *storage.DailyAggregate
}

func (f *fakeAggStore) Upsert(_ context.Context, _ storage.DailyAggregate) error { return nil }

func (f *fakeAggStore) Get(_ context.Context, appKey, date string) (*storage.DailyAggregate, error) {
	if f.agg == nil || f.agg.AppKey != appKey || f.agg.Date != date {
		return nil, storage.ErrAggregateNotFound
	}
	return f.agg, nil
}

func serve(t *testing.T, client *storage.Client, agg *storage.DailyAggregate, query string) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)

	svc := NewService(&fakeDirectory{client: client}, &fakeAggStore{agg: agg})
	r := gin.New()
	svc.RegisterRoutes(r)

	req := httptest.NewRequest(http.MethodGet, "/v1/ecpm?"+query, nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestLookupHandler(t *testing.T) {
	client := &storage.Client{ClientID: "app-1", Secret: "someSecret"}
	agg := &storage.DailyAggregate{
		AppKey:  "app-1",
		Date:    "2026-08-28",
		ECPM:    decimal.RequireFromString("2.13"),
		Revenue: decimal.RequireFromString("1.50"),
	}

	tests := []struct {
		name       string
		client     *storage.Client
		agg        *storage.DailyAggregate
		query      string
		wantStatus int
		wantError  string
	}{
		{
			name: "returns the eCPM", client: client, agg: agg,
			query:      "appKey=app-1&date=2026-08-28&secret=someSecret",
			wantStatus: http.StatusOK,
		},
		{
			name: "unknown client", client: nil, agg: agg,
			query:      "appKey=app-1&date=2026-08-28&secret=someSecret",
			wantStatus: http.StatusBadRequest, wantError: httperr.MsgIncorrectClient,
		},
		{
			name: "wrong secret", client: client, agg: agg,
			query:      "appKey=app-1&date=2026-08-28&secret=nope",
			wantStatus: http.StatusBadRequest, wantError: httperr.MsgIncorrectSecret,
		},
		{
			name: "no aggregate for date", client: client, agg: agg,
			query:      "appKey=app-1&date=2000-01-01&secret=someSecret",
			wantStatus: http.StatusBadRequest, wantError: httperr.MsgRecordNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := serve(t, tt.client, tt.agg, tt.query)
			require.Equal(t, tt.wantStatus, resp.Code)

			if tt.wantError != "" {
				var body httperr.ErrorResponse
				require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
				require.Equal(t, tt.wantError, body.Error)
				return
			}

			var body map[string]float64
			require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
			require.Equal(t, 2.13, body["eCPM"])
		})
	}
}
