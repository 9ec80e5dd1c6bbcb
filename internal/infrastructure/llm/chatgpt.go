package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"

	"CompetitorReports/internal/config"
	"CompetitorReports/internal/domain"
	"CompetitorReports/internal/ports"
)

// ChatGPTAnalyzer implements ports.Analyzer backed by OpenAI-compatible APIs.
type ChatGPTAnalyzer struct {
	client       *openai.Client
	model        string
	systemPrompt string
}

var _ ports.Analyzer = (*ChatGPTAnalyzer)(nil)

// NewChatGPTAnalyzer builds an analyzer from configuration. A non-empty
// endpoint replaces the default API base URL.
func NewChatGPTAnalyzer(cfg config.AnalysisConfig) (*ChatGPTAnalyzer, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key is not set")
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.Endpoint != "" {
		clientCfg.BaseURL = strings.TrimSuffix(cfg.Endpoint, "/")
	}
	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	return &ChatGPTAnalyzer{
		client:       openai.NewClientWithConfig(clientCfg),
		model:        model,
		systemPrompt: cfg.SystemPrompt,
	}, nil
}

// Analyze asks the model for a JSON analysis of the collected input.
func (c *ChatGPTAnalyzer) Analyze(ctx context.Context, input domain.AnalysisInput) (domain.Analysis, error) {
	if c == nil || c.client == nil {
		return domain.Analysis{}, fmt.Errorf("chatgpt analyzer is nil")
	}

	prompt, err := BuildPrompt(input)
	if err != nil {
		return domain.Analysis{}, err
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: safePrompt(c.systemPrompt)},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	})
	if err != nil {
		return domain.Analysis{}, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return domain.Analysis{}, fmt.Errorf("chat completion returned no choices")
	}

	return ParseAnalysis(resp.Choices[0].Message.Content)
}

type promptEntity struct {
	Name        string   `json:"name"`
	Website     string   `json:"website,omitempty"`
	Industry    string   `json:"industry,omitempty"`
	Description string   `json:"description,omitempty"`
	Title       string   `json:"pageTitle,omitempty"`
	Summary     string   `json:"pageSummary,omitempty"`
	Features    []string `json:"features,omitempty"`
}

type promptPayload struct {
	Project      string         `json:"project"`
	Template     string         `json:"template"`
	Product      *promptEntity  `json:"product,omitempty"`
	Positioning  string         `json:"positioning,omitempty"`
	Customers    string         `json:"customers,omitempty"`
	UserProblem  string         `json:"userProblem,omitempty"`
	Competitors  []promptEntity `json:"competitors"`
	Instructions string         `json:"instructions"`
}

const responseShape = `Respond with a JSON object: {"summary": string, "keyFindings": [string], ` +
	`"recommendations": {"immediate": [string], "shortTerm": [string], "longTerm": [string]}, ` +
	`"marketPosition": string, "threats": [string], "opportunities": [string], "confidence": integer 0-100}.`

// BuildPrompt renders the analysis input as the user message.
func BuildPrompt(input domain.AnalysisInput) (string, error) {
	payload := promptPayload{
		Project:      input.ProjectName,
		Template:     input.Template,
		Instructions: templateInstructions(input.Template) + " " + responseShape,
	}
	if input.Product != nil {
		p := toPromptEntity(*input.Product, input.ProductSnapshot)
		payload.Product = &p
	}
	if input.ProductForm != nil {
		payload.Positioning = input.ProductForm.Positioning
		payload.Customers = input.ProductForm.CustomerData
		payload.UserProblem = input.ProductForm.UserProblem
	}
	for _, c := range input.Competitors {
		payload.Competitors = append(payload.Competitors, toPromptEntity(c.Competitor, c.Snapshot))
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal prompt: %w", err)
	}
	return string(raw), nil
}

func toPromptEntity(ref domain.EntityRef, snap *domain.Snapshot) promptEntity {
	e := promptEntity{Name: ref.Name, Website: ref.Website, Industry: ref.Industry, Description: ref.Description}
	if snap != nil {
		e.Title = snap.Content.Title
		e.Summary = snap.Content.Description
		e.Features = snap.Content.Features
	}
	return e
}

func templateInstructions(template string) string {
	switch template {
	case domain.TemplateExecutive:
		return "Write a short executive brief comparing the product with its competitors."
	case domain.TemplateTechnical:
		return "Compare the product and competitors feature by feature with a technical focus."
	case domain.TemplateStrategic:
		return "Focus on market positioning, threats and long-term strategic moves."
	default:
		return "Write a comprehensive competitive analysis of the product against its competitors."
	}
}

type analysisResponse struct {
	Summary         string                 `json:"summary"`
	KeyFindings     []string               `json:"keyFindings"`
	Recommendations domain.Recommendations `json:"recommendations"`
	MarketPosition  string                 `json:"marketPosition"`
	Threats         []string               `json:"threats"`
	Opportunities   []string               `json:"opportunities"`
	Confidence      int                    `json:"confidence"`
}

// ParseAnalysis decodes the model reply, tolerating surrounding code fences.
func ParseAnalysis(reply string) (domain.Analysis, error) {
	reply = strings.TrimSpace(reply)
	reply = strings.TrimPrefix(reply, "```json")
	reply = strings.TrimPrefix(reply, "```")
	reply = strings.TrimSuffix(reply, "```")

	var resp analysisResponse
	if err := json.Unmarshal([]byte(strings.TrimSpace(reply)), &resp); err != nil {
		return domain.Analysis{}, fmt.Errorf("decode analysis: %w", err)
	}
	if strings.TrimSpace(resp.Summary) == "" {
		return domain.Analysis{}, fmt.Errorf("analysis has no summary")
	}
	if resp.Confidence < 0 || resp.Confidence > 100 {
		resp.Confidence = 50
	}
	return domain.Analysis{
		Summary:         resp.Summary,
		KeyFindings:     resp.KeyFindings,
		Recommendations: resp.Recommendations,
		MarketPosition:  resp.MarketPosition,
		Threats:         resp.Threats,
		Opportunities:   resp.Opportunities,
		Confidence:      resp.Confidence,
	}, nil
}

func safePrompt(prompt string) string {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "You are a market analyst who compares a product against its competitors."
	}
	return prompt
}
