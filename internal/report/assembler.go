// Package report builds, persists and checks comparative reports.
package report

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"CompetitorReports/internal/domain"
	"CompetitorReports/internal/ports"
)

// DefaultPartialThreshold is the completeness score below which a report is
// built on the partial-data path.
const DefaultPartialThreshold = 70

// AssemblerConfig tunes the assembler.
type AssemblerConfig struct {
	PartialThreshold int
	AnalysisTimeout  time.Duration
}

// Assembler turns collected data into report content, delegating text to
// the analysis collaborator.
type Assembler struct {
	analyzer ports.Analyzer
	cfg      AssemblerConfig
	logger   *slog.Logger
	now      func() time.Time
}

// NewAssembler creates an assembler. A nil analyzer fails every full report.
func NewAssembler(analyzer ports.Analyzer, cfg AssemblerConfig, logger *slog.Logger) *Assembler {
	if cfg.PartialThreshold <= 0 {
		cfg.PartialThreshold = DefaultPartialThreshold
	}
	if cfg.AnalysisTimeout <= 0 {
		cfg.AnalysisTimeout = 90 * time.Second
	}
	return &Assembler{analyzer: analyzer, cfg: cfg, logger: logger, now: time.Now}
}

// UsePartial reports whether the partial-data path applies.
func (a *Assembler) UsePartial(summary domain.DataCollectionSummary, opts domain.GenerateOptions) bool {
	return opts.FallbackToPartial || summary.CompletenessScore < a.cfg.PartialThreshold
}

// Assemble builds the content for project. Analyzer failures abort the full
// path with an assembly StageError and are swallowed on the partial path.
func (a *Assembler) Assemble(ctx context.Context, project domain.Project, summary domain.DataCollectionSummary, opts domain.GenerateOptions) (domain.ReportContent, error) {
	opts = opts.Normalize()
	input := BuildAnalysisInput(project, summary, opts.Template)

	if a.UsePartial(summary, opts) {
		return a.partial(ctx, project, summary, input, opts), nil
	}

	analysis, err := a.analyze(ctx, input)
	if err != nil {
		return domain.ReportContent{}, domain.NewStageError(domain.FailureAssembly, "full-analysis", err)
	}
	content := a.fromAnalysis(project, summary, opts, analysis)
	content.Metadata.Kind = domain.KindFull
	content.Metadata.AnalysisIncluded = true
	return content, nil
}

func (a *Assembler) partial(ctx context.Context, project domain.Project, summary domain.DataCollectionSummary, input domain.AnalysisInput, opts domain.GenerateOptions) domain.ReportContent {
	var content domain.ReportContent
	analysis, err := a.analyze(ctx, input)
	if err != nil {
		if a.logger != nil {
			a.logger.Warn("analysis unavailable, continuing without it", "project", project.ID, "error", err)
		}
		content = a.fromCollectedData(project, summary, opts)
	} else {
		content = a.fromAnalysis(project, summary, opts, analysis)
		content.Metadata.AnalysisIncluded = true
	}
	content.DataGaps = DataGaps(summary)
	content.Metadata.Kind = domain.KindPartial
	return content
}

func (a *Assembler) analyze(ctx context.Context, input domain.AnalysisInput) (domain.Analysis, error) {
	if a.analyzer == nil {
		return domain.Analysis{}, errors.New("no analysis service configured")
	}
	ctx, cancel := context.WithTimeout(ctx, a.cfg.AnalysisTimeout)
	defer cancel()
	analysis, err := a.analyzer.Analyze(ctx, input)
	if err != nil {
		return domain.Analysis{}, fmt.Errorf("analyze: %w", err)
	}
	return analysis, nil
}

func (a *Assembler) fromAnalysis(project domain.Project, summary domain.DataCollectionSummary, opts domain.GenerateOptions, analysis domain.Analysis) domain.ReportContent {
	content := domain.ReportContent{
		Title:                    Title(project, opts.Template),
		ExecutiveSummary:         analysis.Summary,
		KeyFindings:              analysis.KeyFindings,
		StrategicRecommendations: analysis.Recommendations,
		CompetitiveIntelligence: domain.CompetitiveIntelligence{
			MarketPosition: analysis.MarketPosition,
			Threats:        analysis.Threats,
			Opportunities:  analysis.Opportunities,
		},
		Metadata: a.metadata(project, summary, opts, analysis.Confidence),
	}
	if strings.TrimSpace(content.ExecutiveSummary) == "" {
		content.ExecutiveSummary = collectedSummary(project, summary)
	}
	if content.StrategicRecommendations.Empty() {
		content.StrategicRecommendations = partialRecommendations(summary)
	}
	return content
}

func (a *Assembler) fromCollectedData(project domain.Project, summary domain.DataCollectionSummary, opts domain.GenerateOptions) domain.ReportContent {
	return domain.ReportContent{
		Title:                    Title(project, opts.Template),
		ExecutiveSummary:         collectedSummary(project, summary),
		KeyFindings:              collectedFindings(summary),
		StrategicRecommendations: partialRecommendations(summary),
		CompetitiveIntelligence: domain.CompetitiveIntelligence{
			MarketPosition: "Not assessed: analysis was unavailable for this report.",
		},
		Metadata: a.metadata(project, summary, opts, summary.CompletenessScore/2),
	}
}

func (a *Assembler) metadata(project domain.Project, summary domain.DataCollectionSummary, opts domain.GenerateOptions, confidence int) domain.ReportMetadata {
	md := domain.ReportMetadata{
		ProjectID:         project.ID,
		ProjectName:       project.Name,
		CompetitorCount:   len(project.Competitors),
		Template:          opts.Template,
		CompletenessScore: summary.CompletenessScore,
		DataFreshness:     summary.Freshness,
		QualityTier:       domain.QualityTierFor(summary.CompletenessScore),
		Confidence:        confidence,
		GeneratedAt:       a.now().UTC(),
	}
	if product, ok := project.PrimaryProduct(); ok {
		md.ProductName = product.Name
	}
	return md
}

// Title names a report after its project and template.
func Title(project domain.Project, template string) string {
	name := project.Name
	if product, ok := project.PrimaryProduct(); ok && product.Name != "" {
		name = product.Name
	}
	if name == "" {
		name = "Project"
	}
	switch template {
	case domain.TemplateExecutive:
		return "Executive Brief: " + name
	case domain.TemplateTechnical:
		return "Technical Comparison: " + name
	case domain.TemplateStrategic:
		return "Strategic Outlook: " + name
	default:
		return "Competitive Analysis: " + name
	}
}

// BuildAnalysisInput pairs every entity with the data the collector found.
func BuildAnalysisInput(project domain.Project, summary domain.DataCollectionSummary, template string) domain.AnalysisInput {
	input := domain.AnalysisInput{ProjectName: project.Name, Template: template}
	if product, ok := project.PrimaryProduct(); ok {
		ref := product.Target()
		input.Product = &ref
		if product.HasFormData() {
			p := product
			input.ProductForm = &p
		}
		if summary.Product != nil {
			input.ProductSnapshot = summary.Product.Snapshot
		}
	}
	for _, c := range summary.Competitors {
		input.Competitors = append(input.Competitors, domain.CompetitorInput{Competitor: c.Entity, Snapshot: c.Snapshot})
	}
	return input
}

// DataGaps lists every entity that was not satisfied by fresh data.
func DataGaps(summary domain.DataCollectionSummary) []domain.DataGap {
	var gaps []domain.DataGap
	for _, r := range summary.Results() {
		if r.Tier.Fresh() {
			continue
		}
		gap := domain.DataGap{
			Entity: entityLabel(r.Entity),
			Kind:   string(r.Entity.Kind),
			Tier:   r.Tier.String(),
		}
		switch r.Tier {
		case domain.TierExistingSnapshot:
			gap.Impact = fmt.Sprintf("Based on a previously captured snapshot (%s quality).", r.Quality)
		default:
			gap.Impact = "Only name, website and industry were available."
		}
		gaps = append(gaps, gap)
	}
	if summary.Product == nil {
		gaps = append(gaps, domain.DataGap{Entity: "product", Kind: string(domain.EntityProduct), Impact: "No product is attached to the project."})
	}
	return gaps
}

func entityLabel(e domain.EntityRef) string {
	if e.Name != "" {
		return e.Name
	}
	return e.ID
}

func collectedSummary(project domain.Project, summary domain.DataCollectionSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s is compared against %d competitor(s).", projectName(project), len(project.Competitors))
	fmt.Fprintf(&b, " Data completeness is %d%% (%s data).", summary.CompletenessScore, summary.Freshness)
	if gaps := len(DataGaps(summary)); gaps > 0 {
		fmt.Fprintf(&b, " %d input(s) were degraded or missing and are listed in the data gaps section.", gaps)
	}
	return b.String()
}

func projectName(project domain.Project) string {
	if project.Name != "" {
		return project.Name
	}
	return "This project"
}

func collectedFindings(summary domain.DataCollectionSummary) []string {
	var findings []string
	for _, r := range summary.Results() {
		if r.Snapshot == nil {
			continue
		}
		c := r.Snapshot.Content
		line := entityLabel(r.Entity)
		if c.Title != "" {
			line += ": " + c.Title
		}
		if c.Description != "" {
			line += ". " + c.Description
		}
		if len(c.Features) > 0 {
			n := len(c.Features)
			if n > 3 {
				n = 3
			}
			line += " Highlights: " + strings.Join(c.Features[:n], "; ")
		}
		findings = append(findings, line)
	}
	if len(findings) == 0 {
		findings = append(findings, "No captured website content was available for this report.")
	}
	return findings
}

func partialRecommendations(summary domain.DataCollectionSummary) domain.Recommendations {
	rec := domain.Recommendations{
		Immediate: []string{"Review the data gaps listed in this report"},
		ShortTerm: []string{"Refresh competitor snapshots and regenerate the report"},
		LongTerm:  []string{"Schedule regular competitor monitoring"},
	}
	if summary.Product == nil || summary.Product.Tier == domain.TierBasicMetadata {
		rec.Immediate = append(rec.Immediate, "Complete the product positioning and customer details")
	}
	return rec
}
