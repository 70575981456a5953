package issuance

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const MeterName = "issuance"

// Metrics holds the issuance-specific OpenTelemetry metrics.
type Metrics struct {
	MintAttempts metric.Int64Counter
	MintSuccess  metric.Int64Counter
	MintFailures metric.Int64Counter
	MintDuration metric.Float64Histogram

	OffersCreated metric.Int64Counter
	OffersRevoked metric.Int64Counter
	RootUpdates   metric.Int64Counter
}

// InitializeMetrics creates the issuance metric instruments.
func InitializeMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.MintAttempts, err = meter.Int64Counter(
		"issuance_mint_attempts_total",
		metric.WithDescription("Total number of mint attempts by strategy"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create mint attempts counter: %w", err)
	}

	m.MintSuccess, err = meter.Int64Counter(
		"issuance_mint_success_total",
		metric.WithDescription("Total number of successful mints by strategy"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create mint success counter: %w", err)
	}

	m.MintFailures, err = meter.Int64Counter(
		"issuance_mint_failures_total",
		metric.WithDescription("Total number of failed mints by strategy"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create mint failures counter: %w", err)
	}

	m.MintDuration, err = meter.Float64Histogram(
		"issuance_mint_duration_seconds",
		metric.WithDescription("Mint duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create mint duration histogram: %w", err)
	}

	m.OffersCreated, err = meter.Int64Counter(
		"issuance_offers_created_total",
		metric.WithDescription("Total number of offers created"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create offers created counter: %w", err)
	}

	m.OffersRevoked, err = meter.Int64Counter(
		"issuance_offers_revoked_total",
		metric.WithDescription("Total number of offers revoked"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create offers revoked counter: %w", err)
	}

	m.RootUpdates, err = meter.Int64Counter(
		"issuance_root_updates_total",
		metric.WithDescription("Total number of allowlist root updates"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create root updates counter: %w", err)
	}

	return m, nil
}

// recordMint records one attempt with its outcome and duration. Safe on a
// nil receiver so strategies can run without instrumentation.
func (m *Metrics) recordMint(ctx context.Context, strategy string, start time.Time, err error) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("strategy", strategy))
	m.MintAttempts.Add(ctx, 1, attrs)
	if err != nil {
		m.MintFailures.Add(ctx, 1, attrs)
	} else {
		m.MintSuccess.Add(ctx, 1, attrs)
	}
	m.MintDuration.Record(ctx, time.Since(start).Seconds(), attrs)
}

func (m *Metrics) recordOfferCreated(ctx context.Context) {
	if m == nil {
		return
	}
	m.OffersCreated.Add(ctx, 1)
}

func (m *Metrics) recordOfferRevoked(ctx context.Context) {
	if m == nil {
		return
	}
	m.OffersRevoked.Add(ctx, 1)
}

func (m *Metrics) recordRootUpdate(ctx context.Context) {
	if m == nil {
		return
	}
	m.RootUpdates.Add(ctx, 1)
}
