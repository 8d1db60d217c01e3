package server

import (
	"encoding/json"

	"planline/internal/domain"
)

// Request payloads

type CreateProjectRequest struct {
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
	PRDContent  *string `json:"prd_content,omitempty"`
}

type UpdateProjectRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	PRDContent  *string `json:"prd_content,omitempty"`
	Status      *string `json:"status,omitempty" enum:"draft,analyzing,ready,planned,error"`
}

type OverridePhaseRequest struct {
	Reason string `json:"reason"`
}

type ApprovePhaseRequest struct {
	Notes string `json:"notes,omitempty"`
}

type RejectPhaseRequest struct {
	Notes string `json:"notes,omitempty"`
}

type SkipPhaseRequest struct {
	Reason string `json:"reason,omitempty"`
}

type CreateServiceTaskRequest struct {
	Title        string `json:"title"`
	Definition   string `json:"definition,omitempty"`
	Category     string `json:"category,omitempty"`
	Subcategory  string `json:"subcategory,omitempty"`
	DaysRequired *int   `json:"days_required,omitempty"`
	Owner        string `json:"owner,omitempty"`
	Team         string `json:"team,omitempty"`
	IsRequired   bool   `json:"is_required,omitempty"`
	Notes        string `json:"notes,omitempty"`
}

type UpdateServiceTaskRequest struct {
	Title              *string `json:"title,omitempty"`
	Definition         *string `json:"definition,omitempty"`
	Category           *string `json:"category,omitempty"`
	Subcategory        *string `json:"subcategory,omitempty"`
	Status             *string `json:"status,omitempty" enum:"not_started,in_progress,blocked,completed,deferred,not_applicable"`
	DaysRequired       *int    `json:"days_required,omitempty"`
	TargetStartDate    *string `json:"target_start_date,omitempty" format:"date"`
	TargetCompleteDate *string `json:"target_complete_date,omitempty" format:"date"`
	Owner              *string `json:"owner,omitempty"`
	Team               *string `json:"team,omitempty"`
	Notes              *string `json:"notes,omitempty"`
	CompletionNotes    *string `json:"completion_notes,omitempty"`
}

type BulkTaskStatusRequest struct {
	TaskIDs []int64 `json:"task_ids"`
	Status  string  `json:"status" enum:"not_started,in_progress,blocked,completed,deferred,not_applicable"`
}

// LinkServiceTaskRequest attaches a service task to backlog work. A
// zero id clears the corresponding link.
type LinkServiceTaskRequest struct {
	EpicID  *int64 `json:"epic_id,omitempty"`
	StoryID *int64 `json:"story_id,omitempty"`
}

type CreateDependencyRequest struct {
	SourceType     string `json:"source_type" enum:"epic,story,task"`
	SourceID       int64  `json:"source_id"`
	TargetType     string `json:"target_type" enum:"epic,story,task"`
	TargetID       int64  `json:"target_id"`
	DependencyType string `json:"dependency_type,omitempty" enum:"depends_on,blocks,related"`
	Notes          string `json:"notes,omitempty"`
}

type UpdateDependencyRequest struct {
	DependencyType *string `json:"dependency_type,omitempty" enum:"depends_on,blocks,related"`
	Status         *string `json:"status,omitempty" enum:"pending,in_progress,resolved,blocked"`
	Notes          *string `json:"notes,omitempty"`
}

type CreateDecisionRequest struct {
	Title        string `json:"title"`
	Context      string `json:"context,omitempty"`
	Decision     string `json:"decision"`
	Rationale    string `json:"rationale,omitempty"`
	Consequences string `json:"consequences,omitempty"`
	Maker        string `json:"decision_maker,omitempty"`
}

type DecisionStatusRequest struct {
	Status string `json:"status" enum:"proposed,accepted,superseded,deprecated"`
}

type CreateAssumptionRequest struct {
	Assumption       string `json:"assumption"`
	Context          string `json:"context,omitempty"`
	ImpactIfWrong    string `json:"impact_if_wrong,omitempty"`
	RiskLevel        string `json:"risk_level,omitempty" enum:"low,medium,high,critical"`
	ValidationMethod string `json:"validation_method,omitempty"`
	ValidationOwner  string `json:"validation_owner,omitempty"`
}

type ValidateAssumptionRequest struct {
	Status string `json:"status" enum:"validated,invalidated"`
	Result string `json:"result,omitempty"`
}

type RICEScoreRequest struct {
	Reach      float64 `json:"reach"`
	Impact     float64 `json:"impact"`
	Confidence float64 `json:"confidence"`
	Effort     float64 `json:"effort"`
}

type WSJFScoreRequest struct {
	BusinessValue   float64 `json:"business_value"`
	TimeCriticality float64 `json:"time_criticality"`
	RiskReduction   float64 `json:"risk_reduction"`
	JobSize         float64 `json:"job_size"`
}

type RangeEstimateRequest struct {
	P10 float64 `json:"p10"`
	P50 float64 `json:"p50"`
	P90 float64 `json:"p90"`
}

// Response payloads

// PhaseResponse is a lifecycle phase plus its derived task progress.
type PhaseResponse struct {
	domain.LifecyclePhase
	Progress int `json:"progress"`
}

type DecisionResponse struct {
	ID                   int64    `json:"id"`
	ProjectID            int64    `json:"project_id"`
	Title                string   `json:"title"`
	Context              string   `json:"context,omitempty"`
	Decision             string   `json:"decision"`
	Rationale            string   `json:"rationale,omitempty"`
	Alternatives         []string `json:"alternatives,omitempty"`
	Consequences         string   `json:"consequences,omitempty"`
	Status               string   `json:"status" enum:"proposed,accepted,superseded,deprecated"`
	DecisionMaker        *string  `json:"decision_maker,omitempty"`
	DecisionDate         *string  `json:"decision_date,omitempty" format:"date-time"`
	ExtractedFrom        *string  `json:"extracted_from,omitempty"`
	ExtractionConfidence *float64 `json:"extraction_confidence,omitempty"`
	CreatedAt            string   `json:"created_at" format:"date-time"`
}

type EventResponse struct {
	ID         string         `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	ProjectID  int64          `json:"project_id,omitempty"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload,omitempty"`
}

type PlanningExtractResponse struct {
	Decisions   []DecisionResponse  `json:"decisions"`
	Assumptions []domain.Assumption `json:"assumptions"`
}

type CriticalPathResponse struct {
	Path          []domain.PathItem `json:"path"`
	TotalDuration float64           `json:"total_duration"`
}

type BulkTaskStatusResponse struct {
	Updated int `json:"updated"`
}

// Conversion helpers

func phaseResponse(p domain.LifecyclePhase) PhaseResponse {
	return PhaseResponse{LifecyclePhase: p, Progress: p.ProgressPercent()}
}

func mapPhases(in []domain.LifecyclePhase) []PhaseResponse {
	out := make([]PhaseResponse, 0, len(in))
	for _, p := range in {
		out = append(out, phaseResponse(p))
	}
	return out
}

func decisionResponse(d domain.Decision) DecisionResponse {
	return DecisionResponse{
		ID:                   d.ID,
		ProjectID:            d.ProjectID,
		Title:                d.Title,
		Context:              d.Context,
		Decision:             d.Decision,
		Rationale:            d.Rationale,
		Alternatives:         decodeStringSlice(d.AlternativesJSON),
		Consequences:         d.Consequences,
		Status:               d.Status,
		DecisionMaker:        d.DecisionMaker,
		DecisionDate:         d.DecisionDate,
		ExtractedFrom:        d.ExtractedFrom,
		ExtractionConfidence: d.ExtractionConfidence,
		CreatedAt:            d.CreatedAt,
	}
}

func mapDecisions(in []domain.Decision) []DecisionResponse {
	out := make([]DecisionResponse, 0, len(in))
	for _, d := range in {
		out = append(out, decisionResponse(d))
	}
	return out
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		ProjectID:  e.ProjectID,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    decodeJSONMap(e.Payload),
	}
}

// JSON helpers

func decodeJSONMap(raw string) map[string]any {
	if raw == "" {
		return nil
	}
	var tmp any
	if err := json.Unmarshal([]byte(raw), &tmp); err != nil {
		return nil
	}
	if obj, ok := tmp.(map[string]any); ok {
		return obj
	}
	return nil
}

func decodeStringSlice(raw *string) []string {
	if raw == nil || *raw == "" {
		return nil
	}
	var arr []string
	if err := json.Unmarshal([]byte(*raw), &arr); err != nil {
		return nil
	}
	return arr
}
