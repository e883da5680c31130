// Package recoveryapi is the client of the remote recovery service that owns
// campaigns, journeys and dispatch.
package recoveryapi

import (
	"context"
	"fmt"

	"github.com/AtRiskMedia/cartrecovery-go/internal/domain/campaign"
	"github.com/AtRiskMedia/cartrecovery-go/internal/domain/journey"
)

// Client is the consumed contract of the remote recovery service.
type Client interface {
	GetCampaign(ctx context.Context) (campaign.Policy, error)
	UpdateCampaign(ctx context.Context, p campaign.Policy) (campaign.Policy, error)
	GetInsights(ctx context.Context, rangeDays int) (Insights, error)
	GetOrderMetrics(ctx context.Context, q OrderMetricsQuery) (OrderMetrics, error)
	GetJourneys(ctx context.Context, q journey.Query) (JourneyPage, error)
	GetJourneyTimeline(ctx context.Context, id string) (journey.Timeline, error)
	RunRecoveryNow(ctx context.Context, batchSize int) (RunResult, error)
}

// InsightsQuery selects an insights range.
type InsightsQuery struct {
	RangeDays int `json:"rangeDays"`
}

func (q InsightsQuery) CacheKey() string { return fmt.Sprintf("insights|%d", q.RangeDays) }

// InsightsTotals are the headline recovery numbers for a range.
type InsightsTotals struct {
	TotalJourneys     int     `json:"totalJourneys"`
	RecoveredJourneys int     `json:"recoveredJourneys"`
	RecoveryRate      float64 `json:"recoveryRate"`
	RecoveredValue    int64   `json:"recoveredValue"`
}

// InsightsPoint is one day of the insights series.
type InsightsPoint struct {
	Date      string `json:"date"`
	Journeys  int    `json:"journeys"`
	Recovered int    `json:"recovered"`
}

// Insights aggregates abandoned-cart recovery over a range.
type Insights struct {
	RangeDays int             `json:"rangeDays"`
	Totals    InsightsTotals  `json:"totals"`
	ByStatus  map[string]int  `json:"byStatus,omitempty"`
	Series    []InsightsPoint `json:"series,omitempty"`
}

// OrderMetricsQuery selects order metrics by range and order status.
type OrderMetricsQuery struct {
	RangeDays int    `json:"rangeDays"`
	Status    string `json:"status,omitempty"`
}

func (q OrderMetricsQuery) CacheKey() string {
	return fmt.Sprintf("orders|%d|%s", q.RangeDays, q.Status)
}

// OrderMetricsTotals are the headline order numbers for a range.
type OrderMetricsTotals struct {
	Orders            int     `json:"orders"`
	RevenueMinorUnits int64   `json:"revenueMinorUnits"`
	AverageOrderValue float64 `json:"averageOrderValue"`
	Paid              int     `json:"paid"`
	Pending           int     `json:"pending"`
}

// OrderMetrics aggregates orders over a range.
type OrderMetrics struct {
	RangeDays int                `json:"rangeDays"`
	Status    string             `json:"status,omitempty"`
	Totals    OrderMetricsTotals `json:"totals"`
	ByStatus  map[string]int     `json:"byStatus,omitempty"`
}

// JourneyPage is one page of the remote journey list.
type JourneyPage struct {
	Journeys []journey.Journey `json:"journeys"`
	Total    int               `json:"total"`
}

// RunStats summarizes one run-now batch.
type RunStats struct {
	Due           int            `json:"due"`
	Sent          int            `json:"sent"`
	Skipped       int            `json:"skipped"`
	Failed        int            `json:"failed"`
	Recovered     int            `json:"recovered"`
	Cancelled     int            `json:"cancelled"`
	Expired       int            `json:"expired"`
	FailedReasons map[string]int `json:"failedReasons"`
}

// RunResult is the response of run-now.
type RunResult struct {
	Stats RunStats `json:"stats"`
}
