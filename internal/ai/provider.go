// Package ai wraps the LLM collaborator behind a small Provider
// interface so the engine can run against a live model or the
// deterministic stub.
package ai

import "context"

// Backlog is a generated product backlog: epics containing stories
// containing work tasks.
type Backlog struct {
	Epics []EpicPlan `json:"epics"`
}

type EpicPlan struct {
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Priority    string      `json:"priority"`
	Stories     []StoryPlan `json:"stories"`
}

type StoryPlan struct {
	Title              string     `json:"title"`
	Description        string     `json:"description"`
	AcceptanceCriteria string     `json:"acceptance_criteria"`
	StoryPoints        *int       `json:"story_points,omitempty"`
	EstimatedHours     *int       `json:"estimated_hours,omitempty"`
	Priority           string     `json:"priority"`
	Tasks              []TaskPlan `json:"tasks"`
}

type TaskPlan struct {
	Title          string `json:"title"`
	Description    string `json:"description"`
	EstimatedHours *int   `json:"estimated_hours,omitempty"`
}

// PhasePlan is a generated service-task checklist for one lifecycle phase.
type PhasePlan struct {
	Phase string            `json:"phase"`
	Tasks []ServiceTaskPlan `json:"tasks"`
}

type ServiceTaskPlan struct {
	Title        string   `json:"title"`
	Definition   string   `json:"definition"`
	Category     string   `json:"category"`
	Subcategory  string   `json:"subcategory"`
	DaysRequired *int     `json:"days_required,omitempty"`
	IsRequired   bool     `json:"is_required"`
	Confidence   *float64 `json:"confidence,omitempty"`
	Reasoning    string   `json:"reasoning,omitempty"`
}

// ItemSummary describes a planning item handed to dependency inference.
type ItemSummary struct {
	Type        string `json:"type"`
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// InferredEdge is one dependency the model proposed between two items.
type InferredEdge struct {
	SourceType     string  `json:"source_type"`
	SourceID       int64   `json:"source_id"`
	TargetType     string  `json:"target_type"`
	TargetID       int64   `json:"target_id"`
	DependencyType string  `json:"dependency_type"`
	Confidence     float64 `json:"confidence"`
	Reason         string  `json:"reason"`
}

// PlanningExtract holds decisions and assumptions mined from a PRD.
type PlanningExtract struct {
	Decisions   []DecisionPlan   `json:"decisions"`
	Assumptions []AssumptionPlan `json:"assumptions"`
}

type DecisionPlan struct {
	Title        string   `json:"title"`
	Context      string   `json:"context"`
	Decision     string   `json:"decision"`
	Rationale    string   `json:"rationale"`
	Alternatives []string `json:"alternatives,omitempty"`
	Consequences string   `json:"consequences"`
	Confidence   float64  `json:"confidence"`
}

type AssumptionPlan struct {
	Assumption    string  `json:"assumption"`
	Context       string  `json:"context"`
	ImpactIfWrong string  `json:"impact_if_wrong"`
	RiskLevel     string  `json:"risk_level"`
	Confidence    float64 `json:"confidence"`
}

// StorySummary describes a story handed to range estimation.
type StorySummary struct {
	Title              string `json:"title"`
	Description        string `json:"description,omitempty"`
	AcceptanceCriteria string `json:"acceptance_criteria,omitempty"`
	StoryPoints        *int   `json:"story_points,omitempty"`
}

// Estimate is a three-point range estimate in hours.
type Estimate struct {
	P10        float64 `json:"p10"`
	P50        float64 `json:"p50"`
	P90        float64 `json:"p90"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// Provider is the LLM collaborator surface the engine depends on.
type Provider interface {
	GenerateBacklog(ctx context.Context, prd string) (Backlog, error)
	GenerateLifecycleTasks(ctx context.Context, projectName, prd string) ([]PhasePlan, error)
	InferDependencies(ctx context.Context, items []ItemSummary) ([]InferredEdge, error)
	ExtractPlanning(ctx context.Context, prd string) (PlanningExtract, error)
	EstimateStory(ctx context.Context, story StorySummary) (Estimate, error)
}
