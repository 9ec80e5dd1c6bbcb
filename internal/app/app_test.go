package app

import (
	"context"
	"path/filepath"
	"testing"

	"CompetitorReports/internal/config"
	"CompetitorReports/internal/domain"
	"CompetitorReports/internal/infrastructure/llm"
	"CompetitorReports/internal/infrastructure/ml"
	"CompetitorReports/internal/logging"
)

func TestNewAnalyzerSelectsProvider(t *testing.T) {
	t.Parallel()

	legacy, err := newAnalyzer(config.AnalysisConfig{Provider: config.ProviderLegacy, Endpoint: "http://ml.test"})
	if err != nil {
		t.Fatalf("legacy: %v", err)
	}
	if _, ok := legacy.(*ml.Client); !ok {
		t.Fatalf("expected ml client, got %T", legacy)
	}

	unified, err := newAnalyzer(config.AnalysisConfig{Provider: config.ProviderUnified, APIKey: "key"})
	if err != nil {
		t.Fatalf("unified: %v", err)
	}
	if _, ok := unified.(*llm.ChatGPTAnalyzer); !ok {
		t.Fatalf("expected chatgpt analyzer, got %T", unified)
	}

	for _, cfg := range []config.AnalysisConfig{
		{Provider: config.ProviderLegacy},
		{Provider: config.ProviderUnified},
		{Provider: "bogus", APIKey: "key"},
	} {
		if _, err := newAnalyzer(cfg); err == nil {
			t.Fatalf("expected error for %+v", cfg)
		}
	}
}

func TestApplicationGeneratesWithoutAnalyzer(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	cfg := config.Default()
	cfg.Database.DSN = filepath.Join(t.TempDir(), "reports.db")
	cfg.Scraping.Disabled = true
	cfg.Analysis.APIKey = ""

	application, err := New(ctx, cfg, logging.Discard())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { application.Close() })

	project := domain.Project{
		ID:          "proj-1",
		Name:        "Acme Analysis",
		Products:    []domain.Product{{ID: "prod-1", Name: "Acme", Website: "https://acme.test"}},
		Competitors: []domain.Competitor{{ID: "comp-1", Name: "Globex", Website: "https://globex.test"}},
	}
	if err := application.Store().CreateProject(ctx, project); err != nil {
		t.Fatalf("CreateProject: %v", err)
	}

	result, err := application.Generator().Generate(ctx, "proj-1", domain.GenerateOptions{FallbackToPartial: true})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if result.Report.ID == "" || result.Version.Content.Metadata.Kind != domain.KindPartial {
		t.Fatalf("expected partial report, got %+v", result.Version.Content.Metadata)
	}

	verdicts, err := application.SweepOnce(ctx)
	if err != nil {
		t.Fatalf("SweepOnce: %v", err)
	}
	if len(verdicts) != 1 || !verdicts[0].Valid {
		t.Fatalf("unexpected verdicts: %+v", verdicts)
	}
}
