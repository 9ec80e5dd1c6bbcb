package telemetry

import (
	"context"
	"errors"
	"log/slog"

	"CompetitorReports/internal/domain"
	"CompetitorReports/internal/ports"
)

// LogAlerter writes alerts to the structured log. It never fails.
type LogAlerter struct {
	logger *slog.Logger
}

var _ ports.Alerter = (*LogAlerter)(nil)

// NewLogAlerter wraps logger.
func NewLogAlerter(logger *slog.Logger) *LogAlerter {
	return &LogAlerter{logger: logger}
}

// Send logs the alert at a level matching its severity.
func (a *LogAlerter) Send(ctx context.Context, alert domain.Alert) error {
	if a.logger == nil {
		return nil
	}
	level := slog.LevelInfo
	switch alert.Severity {
	case domain.SeverityWarning:
		level = slog.LevelWarn
	case domain.SeverityCritical:
		level = slog.LevelError
	}
	a.logger.Log(ctx, level, alert.Message,
		"operation", alert.Operation,
		"severity", alert.Severity,
		"project", alert.ProjectID,
		"report", alert.ReportID)
	return nil
}

// FanOut delivers every alert to all sinks and joins their errors.
type FanOut []ports.Alerter

// Send implements ports.Alerter.
func (f FanOut) Send(ctx context.Context, alert domain.Alert) error {
	var errs []error
	for _, sink := range f {
		if sink == nil {
			continue
		}
		if err := sink.Send(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
