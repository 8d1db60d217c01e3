package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const defaultModel = "claude-sonnet-4-20250514"

// AnthropicProvider talks to the Anthropic Messages API.
type AnthropicProvider struct {
	client anthropic.Client
	model  string
}

// NewAnthropicProvider builds a provider from the given model name and
// API key environment variable.
func NewAnthropicProvider(model, apiKeyEnv string) (*AnthropicProvider, error) {
	if apiKeyEnv == "" {
		apiKeyEnv = "ANTHROPIC_API_KEY"
	}
	apiKey := os.Getenv(apiKeyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("%s not set", apiKeyEnv)
	}
	if model == "" {
		model = defaultModel
	}
	return &AnthropicProvider{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}, nil
}

func (p *AnthropicProvider) complete(ctx context.Context, prompt string) (string, error) {
	resp, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: 8192,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", err
	}
	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return text.String(), nil
}

func (p *AnthropicProvider) GenerateBacklog(ctx context.Context, prd string) (Backlog, error) {
	prompt := fmt.Sprintf(`You are a product planning assistant. Read the PRD below and produce a work breakdown.

Respond with ONLY raw JSON matching this schema, no markdown fences:
{"epics":[{"title":"","description":"","priority":"low|medium|high|critical","stories":[{"title":"","description":"","acceptance_criteria":"","story_points":1,"estimated_hours":8,"priority":"medium","tasks":[{"title":"","description":"","estimated_hours":4}]}]}]}

PRD:
%s`, prd)
	raw, err := p.complete(ctx, prompt)
	if err != nil {
		return Backlog{}, err
	}
	return Parse[Backlog](raw)
}

func (p *AnthropicProvider) GenerateLifecycleTasks(ctx context.Context, projectName, prd string) ([]PhasePlan, error) {
	prompt := fmt.Sprintf(`You are a service delivery planner. The project %q moves through six lifecycle phases: concept, define, plan, develop, launch, sustain. Generate a checklist of service tasks per phase from the PRD below.

Respond with ONLY raw JSON matching this schema, no markdown fences:
{"phases":[{"phase":"concept","tasks":[{"title":"","definition":"","category":"","subcategory":"","days_required":3,"is_required":true,"confidence":0.9,"reasoning":""}]}]}

PRD:
%s`, projectName, prd)
	raw, err := p.complete(ctx, prompt)
	if err != nil {
		return nil, err
	}
	out, err := Parse[struct {
		Phases []PhasePlan `json:"phases"`
	}](raw)
	if err != nil {
		return nil, err
	}
	return out.Phases, nil
}

func (p *AnthropicProvider) InferDependencies(ctx context.Context, items []ItemSummary) ([]InferredEdge, error) {
	payload, err := json.Marshal(items)
	if err != nil {
		return nil, err
	}
	prompt := fmt.Sprintf(`You are a technical project analyst. Given the planning items below, identify likely dependencies between them. A dependency means the source item cannot start or finish until the target item is done.

Respond with ONLY raw JSON matching this schema, no markdown fences:
{"dependencies":[{"source_type":"story","source_id":1,"target_type":"story","target_id":2,"dependency_type":"depends_on","confidence":0.8,"reason":""}]}

Items:
%s`, string(payload))
	raw, err := p.complete(ctx, prompt)
	if err != nil {
		return nil, err
	}
	out, err := Parse[struct {
		Dependencies []InferredEdge `json:"dependencies"`
	}](raw)
	if err != nil {
		return nil, err
	}
	return out.Dependencies, nil
}

func (p *AnthropicProvider) ExtractPlanning(ctx context.Context, prd string) (PlanningExtract, error) {
	prompt := fmt.Sprintf(`You are an architecture analyst. Extract the decisions and assumptions embedded in the PRD below.

Respond with ONLY raw JSON matching this schema, no markdown fences:
{"decisions":[{"title":"","context":"","decision":"","rationale":"","alternatives":[],"consequences":"","confidence":0.9}],"assumptions":[{"assumption":"","context":"","impact_if_wrong":"","risk_level":"low|medium|high|critical","confidence":0.8}]}

PRD:
%s`, prd)
	raw, err := p.complete(ctx, prompt)
	if err != nil {
		return PlanningExtract{}, err
	}
	return Parse[PlanningExtract](raw)
}

func (p *AnthropicProvider) EstimateStory(ctx context.Context, story StorySummary) (Estimate, error) {
	payload, err := json.Marshal(story)
	if err != nil {
		return Estimate{}, err
	}
	prompt := fmt.Sprintf(`You are an estimation assistant. Produce a three-point effort estimate in hours (p10 optimistic, p50 likely, p90 pessimistic) for the story below.

Respond with ONLY raw JSON matching this schema, no markdown fences:
{"p10":4,"p50":8,"p90":16,"confidence":0.7,"reasoning":""}

Story:
%s`, string(payload))
	raw, err := p.complete(ctx, prompt)
	if err != nil {
		return Estimate{}, err
	}
	return Parse[Estimate](raw)
}
