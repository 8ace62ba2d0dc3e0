package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"ContentDigest/internal/config"
	"ContentDigest/internal/domain"
	"ContentDigest/internal/ports"
)

const (
	defaultMaxTokens = 2048
	maxItemRunes     = 1200
)

type chatCompletions interface {
	New(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// Synthesizer implements ports.Synthesizer on top of OpenAI-compatible chat completions.
type Synthesizer struct {
	completions     chatCompletions
	model           string
	systemPrompt    string
	maxTokens       int
	temperature     float64
	promptPrice     float64
	completionPrice float64
	timeout         time.Duration
	logger          *slog.Logger
}

var _ ports.Synthesizer = (*Synthesizer)(nil)

// NewSynthesizer builds a client from configuration. A nil httpClient uses the SDK default.
func NewSynthesizer(cfg config.SynthesisConfig, httpClient *http.Client, logger *slog.Logger) (*Synthesizer, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" || strings.TrimSpace(cfg.Model) == "" {
		return nil, errors.New("synthesizer misconfigured: api key and model are required")
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}
	client := openai.NewClient(opts...)

	return newSynthesizer(&client.Chat.Completions, cfg, logger), nil
}

func newSynthesizer(completions chatCompletions, cfg config.SynthesisConfig, logger *slog.Logger) *Synthesizer {
	if logger == nil {
		logger = slog.Default()
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return &Synthesizer{
		completions:     completions,
		model:           strings.TrimSpace(cfg.Model),
		systemPrompt:    safePrompt(cfg.SystemPrompt),
		maxTokens:       maxTokens,
		temperature:     cfg.Temperature,
		promptPrice:     cfg.PromptPricePer1K,
		completionPrice: cfg.CompletionPricePer1K,
		timeout:         cfg.Timeout,
		logger:          logger.With("component", "synthesizer"),
	}
}

// Analyze sends the grouped content to the model and parses the structured answer.
func (s *Synthesizer) Analyze(ctx context.Context, input domain.SynthesisInput) (domain.AnalysisResult, error) {
	if s == nil || s.completions == nil {
		return domain.AnalysisResult{}, errors.New("synthesizer is nil")
	}
	if input.ItemCount() == 0 {
		return domain.AnalysisResult{}, errors.New("nothing to analyze")
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	params := openai.ChatCompletionNewParams{
		Model:               shared.ChatModel(s.model),
		MaxCompletionTokens: openai.Int(int64(s.maxTokens)),
		Temperature:         openai.Float(s.temperature),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(s.systemPrompt),
			openai.UserMessage(buildPrompt(input)),
		},
	}

	started := time.Now()
	completion, err := s.completions.New(ctx, params)
	if err != nil {
		return domain.AnalysisResult{}, fmt.Errorf("chat completion: %w", err)
	}
	if completion == nil || len(completion.Choices) == 0 {
		return domain.AnalysisResult{}, errors.New("chat completion returned no choices")
	}

	raw := strings.TrimSpace(completion.Choices[0].Message.Content)
	if raw == "" {
		return domain.AnalysisResult{}, errors.New("chat completion returned empty content")
	}

	result := parseAnswer(raw, input)
	result.Model = completion.Model
	if result.Model == "" {
		result.Model = s.model
	}
	result.Usage = domain.Usage{
		PromptTokens:     completion.Usage.PromptTokens,
		CompletionTokens: completion.Usage.CompletionTokens,
		TotalTokens:      completion.Usage.TotalTokens,
	}
	result.Usage.CostUSD = s.cost(result.Usage)

	s.logger.Info("synthesis complete",
		"model", result.Model,
		"items", input.ItemCount(),
		"tokens", result.Usage.TotalTokens,
		"cost_usd", result.Usage.CostUSD,
		"duration", time.Since(started),
	)
	return result, nil
}

func (s *Synthesizer) cost(u domain.Usage) float64 {
	return float64(u.PromptTokens)/1000*s.promptPrice + float64(u.CompletionTokens)/1000*s.completionPrice
}

func buildPrompt(input domain.SynthesisInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Analysis type: %s\n", input.AnalysisType)
	fmt.Fprintf(&b, "Window: %s .. %s\n", input.WindowStart.UTC().Format(time.RFC3339), input.WindowEnd.UTC().Format(time.RFC3339))
	b.WriteString(`Answer with a single JSON object {"title": string, "summary": string, "content": string}. `)
	b.WriteString("The content field holds the full digest in Markdown.\n")

	for _, t := range groupOrder(input.Groups) {
		items := input.Groups[t]
		if len(items) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n## %s (%d items)\n", t, len(items))
		for _, it := range items {
			fmt.Fprintf(&b, "- [%s] %s | quality %.2f | %s\n",
				it.Timestamp.UTC().Format(time.RFC3339), it.Author, it.QualityScore, it.URL)
			fmt.Fprintf(&b, "  %s\n", truncate(it.Text, maxItemRunes))
		}
	}
	return b.String()
}

// groupOrder keeps known types in collection order and appends unknown ones sorted.
func groupOrder(groups map[domain.SourceType][]domain.ContentItem) []domain.SourceType {
	order := make([]domain.SourceType, 0, len(groups))
	seen := make(map[domain.SourceType]bool, len(groups))
	for _, t := range domain.SourceTypes {
		if _, ok := groups[t]; ok {
			order = append(order, t)
			seen[t] = true
		}
	}
	var extra []domain.SourceType
	for t := range groups {
		if !seen[t] {
			extra = append(extra, t)
		}
	}
	sort.Slice(extra, func(i, j int) bool { return extra[i] < extra[j] })
	return append(order, extra...)
}

type answer struct {
	Title   string `json:"title"`
	Summary string `json:"summary"`
	Content string `json:"content"`
}

// parseAnswer accepts the requested JSON shape, optionally fenced, and falls back to raw text.
func parseAnswer(raw string, input domain.SynthesisInput) domain.AnalysisResult {
	var a answer
	if err := json.Unmarshal([]byte(stripFence(raw)), &a); err == nil && strings.TrimSpace(a.Content) != "" {
		result := domain.AnalysisResult{
			Title:   strings.TrimSpace(a.Title),
			Summary: strings.TrimSpace(a.Summary),
			Content: strings.TrimSpace(a.Content),
		}
		if result.Title == "" {
			result.Title = defaultTitle(input)
		}
		if result.Summary == "" {
			result.Summary = firstLine(result.Content)
		}
		return result
	}
	return domain.AnalysisResult{
		Title:   defaultTitle(input),
		Summary: firstLine(raw),
		Content: raw,
	}
}

func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}

func defaultTitle(input domain.SynthesisInput) string {
	kind := input.AnalysisType
	if kind == "" {
		kind = "digest"
	}
	return fmt.Sprintf("%s %s", kind, input.WindowEnd.UTC().Format("2006-01-02"))
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return truncate(strings.TrimLeft(s, "# "), 280)
}

func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + "…"
}

func safePrompt(prompt string) string {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "You are an analyst that turns collected posts and articles into a concise digest."
	}
	return prompt
}
