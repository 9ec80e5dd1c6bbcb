package ml

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"CompetitorReports/internal/domain"
	"CompetitorReports/internal/ports"
)

// Client talks to the legacy analysis service over plain JSON HTTP.
type Client struct {
	endpoint string
	apiKey   string
	http     *http.Client
}

var _ ports.Analyzer = (*Client)(nil)

// NewClient creates a reusable HTTP client.
func NewClient(endpoint, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		endpoint: strings.TrimSuffix(endpoint, "/"),
		apiKey:   apiKey,
		http:     &http.Client{Timeout: timeout},
	}
}

type entityPayload struct {
	Name     string   `json:"name"`
	Website  string   `json:"website,omitempty"`
	Industry string   `json:"industry,omitempty"`
	Title    string   `json:"title,omitempty"`
	Summary  string   `json:"summary,omitempty"`
	Features []string `json:"features,omitempty"`
	Text     string   `json:"text,omitempty"`
}

type analyzeRequest struct {
	Project     string          `json:"project"`
	Template    string          `json:"template"`
	Product     *entityPayload  `json:"product,omitempty"`
	Positioning string          `json:"positioning,omitempty"`
	Competitors []entityPayload `json:"competitors"`
}

type analyzeResponse struct {
	Summary        string   `json:"summary"`
	KeyFindings    []string `json:"key_findings"`
	Immediate      []string `json:"immediate_actions"`
	ShortTerm      []string `json:"short_term_actions"`
	LongTerm       []string `json:"long_term_actions"`
	MarketPosition string   `json:"market_position"`
	Threats        []string `json:"threats"`
	Opportunities  []string `json:"opportunities"`
	Confidence     int      `json:"confidence"`
}

// Analyze posts the collected input to /analyze.
func (c *Client) Analyze(ctx context.Context, input domain.AnalysisInput) (domain.Analysis, error) {
	if c.endpoint == "" {
		return domain.Analysis{}, fmt.Errorf("analysis endpoint is not configured")
	}

	payload := analyzeRequest{Project: input.ProjectName, Template: input.Template}
	if input.Product != nil {
		p := toPayload(*input.Product, input.ProductSnapshot)
		payload.Product = &p
	}
	if input.ProductForm != nil {
		payload.Positioning = input.ProductForm.Positioning
	}
	for _, comp := range input.Competitors {
		payload.Competitors = append(payload.Competitors, toPayload(comp.Competitor, comp.Snapshot))
	}

	var resp analyzeResponse
	if err := c.post(ctx, "/analyze", payload, &resp); err != nil {
		return domain.Analysis{}, err
	}
	if strings.TrimSpace(resp.Summary) == "" {
		return domain.Analysis{}, fmt.Errorf("analysis service returned an empty summary")
	}

	return domain.Analysis{
		Summary:     resp.Summary,
		KeyFindings: resp.KeyFindings,
		Recommendations: domain.Recommendations{
			Immediate: resp.Immediate,
			ShortTerm: resp.ShortTerm,
			LongTerm:  resp.LongTerm,
		},
		MarketPosition: resp.MarketPosition,
		Threats:        resp.Threats,
		Opportunities:  resp.Opportunities,
		Confidence:     resp.Confidence,
	}, nil
}

func toPayload(ref domain.EntityRef, snap *domain.Snapshot) entityPayload {
	p := entityPayload{Name: ref.Name, Website: ref.Website, Industry: ref.Industry}
	if snap != nil {
		p.Title = snap.Content.Title
		p.Summary = snap.Content.Description
		p.Features = snap.Content.Features
		p.Text = snap.Content.Text
	}
	return p
}

func (c *Client) post(ctx context.Context, path string, payload any, v any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	if v == nil {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	return nil
}
