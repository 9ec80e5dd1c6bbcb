package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"CompetitorReports/internal/app"
	"CompetitorReports/internal/domain"
)

type generateOutput struct {
	ReportID  string               `json:"reportId"`
	VersionID string               `json:"versionId"`
	Status    domain.ReportStatus  `json:"status"`
	Reused    bool                 `json:"reused"`
	Emergency bool                 `json:"emergency"`
	Stages    []stageOutput        `json:"stages"`
	Content   domain.ReportContent `json:"content"`
}

type stageOutput struct {
	Stage      string `json:"stage"`
	Status     string `json:"status"`
	Detail     string `json:"detail,omitempty"`
	DurationMs int64  `json:"durationMs"`
}

func runGenerate(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, application *app.Application, logger *slog.Logger) error {
		opts := generateOptions()

		result, err := application.Generator().Generate(ctx, args[0], opts)
		if err != nil {
			kind, _ := domain.FailureKindOf(err)
			logger.Error("report generation failed", "project", args[0], "kind", kind, "error", err)
			return err
		}

		out := generateOutput{
			ReportID:  result.Report.ID,
			VersionID: result.Version.ID,
			Reused:    result.Reused,
			Emergency: result.Emergency,
			Content:   result.Version.Content,
			Status:    result.Report.Status,
		}
		for _, s := range result.Stages {
			out.Stages = append(out.Stages, stageOutput{
				Stage:      s.Stage,
				Status:     string(s.Status),
				Detail:     s.Detail,
				DurationMs: s.Duration.Milliseconds(),
			})
		}
		return printJSON(cmd, out)
	})
}

func generateOptions() domain.GenerateOptions {
	return domain.GenerateOptions{
		Template:             template,
		Priority:             domain.ParsePriority(priority),
		Timeout:              timeout,
		FallbackToPartial:    allowPartial,
		RequireFreshSnapshot: requireFresh,
		ForceGeneration:      force,
		InitialReport:        initialReport,
	}
}

func runValidate(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, application *app.Application, _ *slog.Logger) error {
		result, err := application.Generator().Validate(ctx, args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd, result)
	})
}

func runCheck(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, application *app.Application, _ *slog.Logger) error {
		verdict, err := application.Integrity().Validate(ctx, args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd, verdict)
	})
}

func runSweep(cmd *cobra.Command, _ []string) error {
	return withApp(cmd, func(ctx context.Context, application *app.Application, _ *slog.Logger) error {
		verdicts, err := application.SweepOnce(ctx)
		if err != nil {
			return err
		}
		return printJSON(cmd, verdicts)
	})
}

func runZombies(cmd *cobra.Command, _ []string) error {
	return withApp(cmd, func(ctx context.Context, application *app.Application, logger *slog.Logger) error {
		zombies, err := application.Store().FindZombieReports(ctx)
		if err != nil {
			return err
		}
		if len(zombies) > 0 {
			logger.Warn("zombie reports found", "count", len(zombies))
		}
		return printJSON(cmd, zombies)
	})
}

func runWatch(cmd *cobra.Command, _ []string) error {
	return withApp(cmd, func(ctx context.Context, application *app.Application, logger *slog.Logger) error {
		if addr := application.Config().Telemetry.MetricsAddr; addr != "" {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(application.Metrics(), promhttp.HandlerOpts{}))
			server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

			go func() {
				logger.Info("serving metrics", "addr", addr)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("metrics server stopped", "error", err)
				}
			}()
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					logger.Warn("shutdown metrics server", "error", err)
				}
			}()
		}

		if err := application.Watch(ctx); err != nil {
			return fmt.Errorf("watch: %w", err)
		}
		return nil
	})
}
