package usecase

import (
	"context"
	"log/slog"
	"time"

	"CompetitorReports/internal/ports"
	"CompetitorReports/internal/report"
)

// IntegritySweep wires the ticker driver with the out-of-band integrity check.
type IntegritySweep struct {
	driver    ports.Scheduler
	validator *report.IntegrityValidator
	lookback  time.Duration
	logger    *slog.Logger
}

// NewIntegritySweep returns a helper to start/stop the recurring sweep.
func NewIntegritySweep(driver ports.Scheduler, validator *report.IntegrityValidator, lookback time.Duration, logger *slog.Logger) *IntegritySweep {
	if lookback <= 0 {
		lookback = 24 * time.Hour
	}
	return &IntegritySweep{driver: driver, validator: validator, lookback: lookback, logger: logger}
}

// RunOnce checks every report created within the lookback before trigger.
func (s *IntegritySweep) RunOnce(ctx context.Context, trigger time.Time) ([]report.Verdict, error) {
	verdicts, err := s.validator.Sweep(ctx, trigger.Add(-s.lookback))
	if err != nil {
		return nil, err
	}
	if s.logger != nil {
		var risky int
		for _, v := range verdicts {
			if v.Risk == report.RiskHigh {
				risky++
			}
		}
		s.logger.Info("integrity sweep finished", "checked", len(verdicts), "zombies", risky)
	}
	return verdicts, nil
}

// Start registers the sweep with the provided scheduler.
func (s *IntegritySweep) Start(ctx context.Context) error {
	if s.driver == nil || s.validator == nil {
		return nil
	}

	job := func(trigger time.Time) {
		if _, err := s.RunOnce(ctx, trigger); err != nil && s.logger != nil {
			s.logger.Warn("integrity sweep failed", "error", err)
		}
	}

	return s.driver.Start(ctx, job)
}

// Stop gracefully tears down the underlying scheduler.
func (s *IntegritySweep) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}

	return s.driver.Stop(ctx)
}
