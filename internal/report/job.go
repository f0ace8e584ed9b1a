package report

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/adbridge-lab/adbridge/internal/aggregation"
	"github.com/adbridge-lab/adbridge/internal/storage"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const dateLayout = "2006-01-02"

// TokenSource obtains a bearer token for the reporting API.
type TokenSource interface {
	BearerToken(ctx context.Context) (string, error)
}

// ReportSource fetches one ad source's per-app stats for a date range.
type ReportSource interface {
	DailyReport(ctx context.Context, bearerToken, startDate, endDate, adSource string) ([]aggregation.StatRecord, error)
}

// NetworkAPI is the full ad-network surface the job depends on. *Fetcher
// satisfies it.
type NetworkAPI interface {
	TokenSource
	ReportSource
}

// Job runs one daily reconciliation pass: fetch every configured ad source's
// report for yesterday, write one sheet row per source, and upsert one
// aggregate per app. Any upstream failure aborts the whole run; partial sheet
// continuation is deliberately not supported.
type Job struct {
	network   NetworkAPI
	sink      Sink
	aggStore  storage.AggregateStore
	adSources []string

	// now is stubbed in tests to pin the reporting window.
	now func() time.Time
}

// NewJob wires a reporting job over its collaborators.
func NewJob(network NetworkAPI, sink Sink, aggStore storage.AggregateStore, adSources []string) *Job {
	return &Job{
		network:   network,
		sink:      sink,
		aggStore:  aggStore,
		adSources: adSources,
		now:       time.Now,
	}
}

// Window returns yesterday's UTC day boundaries formatted for the reporting
// API. Start and end name the same calendar day; the API treats them as
// 00:00:00 and 23:59:59.
func (j *Job) Window() (startDate, endDate string) {
	yesterday := j.now().UTC().AddDate(0, 0, -1).Format(dateLayout)
	return yesterday, yesterday
}

// Run executes one reporting pass. Per-ad-source fetches run concurrently;
// every sheet and aggregate write completes (or fails the run) before Run
// returns, so a zero return means the day's mirror and aggregates are durable.
func (j *Job) Run(ctx context.Context) error {
	runID := uuid.NewString()
	startDate, endDate := j.Window()

	slog.Info("[Reporting] Starting daily run",
		"run_id", runID,
		"start_date", startDate,
		"end_date", endDate,
		"ad_sources", j.adSources)

	token, err := j.network.BearerToken(ctx)
	if err != nil {
		return fmt.Errorf("reporting run %s: %w", runID, err)
	}

	// Fetch all sources first. Aggregation needs every source's rows for an
	// app before it can reduce them, so no write starts until all fetches
	// have returned.
	bySource := make([][]aggregation.StatRecord, len(j.adSources))
	g, gctx := errgroup.WithContext(ctx)
	for i, source := range j.adSources {
		g.Go(func() error {
			records, err := j.network.DailyReport(gctx, token, startDate, endDate, source)
			if err != nil {
				return fmt.Errorf("ad source %q: %w", source, err)
			}
			bySource[i] = records
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("reporting run %s: %w", runID, err)
	}

	// One sheet row per ad source: Date plus that source's revenue per app.
	for i, source := range j.adSources {
		row := map[string]string{"Date": startDate}
		for appKey, rows := range groupByApp(bySource[i]) {
			row[appKey] = aggregation.RevenueSum(rows).String()
		}
		if err := j.sink.AppendRow(ctx, source, row); err != nil {
			return fmt.Errorf("reporting run %s: sheet write for source %q: %w", runID, source, err)
		}
		slog.Info("[Reporting] Sheet row appended",
			"run_id", runID, "ad_source", source, "apps", len(row)-1)
	}

	// One aggregate per app over its rows from every source. Upsert
	// overwrites, so re-running a day is idempotent.
	var all []aggregation.StatRecord
	for _, records := range bySource {
		all = append(all, records...)
	}
	byApp := groupByApp(all)

	for _, appKey := range sortedKeys(byApp) {
		summary := aggregation.Summarize(byApp[appKey])
		agg := storage.DailyAggregate{
			AppKey:  appKey,
			Date:    startDate,
			ECPM:    summary.WeightedAvgECPM,
			Revenue: summary.TotalRevenue,
		}
		if err := j.aggStore.Upsert(ctx, agg); err != nil {
			return fmt.Errorf("reporting run %s: aggregate upsert for app %q: %w", runID, appKey, err)
		}
		slog.Info("[Reporting] Aggregate upserted",
			"run_id", runID,
			"app_key", appKey,
			"date", startDate,
			"ecpm", summary.WeightedAvgECPM.String(),
			"revenue", summary.TotalRevenue.String())
	}

	slog.Info("[Reporting] Run complete", "run_id", runID, "apps", len(byApp))
	return nil
}

func groupByApp(records []aggregation.StatRecord) map[string][]aggregation.StatRecord {
	byApp := make(map[string][]aggregation.StatRecord)
	for _, r := range records {
		byApp[r.AppKey] = append(byApp[r.AppKey], r)
	}
	return byApp
}

// sortedKeys pins the upsert order so logs and failures are deterministic.
func sortedKeys(m map[string][]aggregation.StatRecord) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
