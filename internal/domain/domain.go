package domain

// Lifecycle phase kinds in sequential order.
const (
	PhaseConcept = "concept"
	PhaseDefine  = "define"
	PhasePlan    = "plan"
	PhaseDevelop = "develop"
	PhaseLaunch  = "launch"
	PhaseSustain = "sustain"
)

// PhaseOrder maps each phase kind to its fixed position (1..6).
var PhaseOrder = map[string]int{
	PhaseConcept: 1,
	PhaseDefine:  2,
	PhasePlan:    3,
	PhaseDevelop: 4,
	PhaseLaunch:  5,
	PhaseSustain: 6,
}

// PhaseKinds lists the phase kinds in sequence order.
var PhaseKinds = []string{PhaseConcept, PhaseDefine, PhasePlan, PhaseDevelop, PhaseLaunch, PhaseSustain}

// Phase statuses.
const (
	PhaseNotStarted      = "not_started"
	PhaseInProgress      = "in_progress"
	PhasePendingApproval = "pending_approval"
	PhaseApproved        = "approved"
	PhaseSkipped         = "skipped"
)

type Project struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	PRDContent  string `json:"prd_content,omitempty"`
	Status      string `json:"status" enum:"draft,analyzing,ready,planned,error"`
	CreatedAt   string `json:"created_at" format:"date-time"`
	UpdatedAt   string `json:"updated_at" format:"date-time"`
}

type Epic struct {
	ID          int64  `json:"id"`
	ProjectID   int64  `json:"project_id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Priority    string `json:"priority" enum:"low,medium,high,critical"`
	Position    int    `json:"position"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

type Story struct {
	ID                 int64  `json:"id"`
	EpicID             int64  `json:"epic_id"`
	Title              string `json:"title"`
	Description        string `json:"description,omitempty"`
	AcceptanceCriteria string `json:"acceptance_criteria,omitempty"`
	StoryPoints        *int   `json:"story_points,omitempty"`
	EstimatedHours     *int   `json:"estimated_hours,omitempty"`
	Priority           string `json:"priority" enum:"low,medium,high,critical"`
	Status             string `json:"status" enum:"backlog,ready,in_progress,in_review,done"`
	Position           int    `json:"position"`
	CreatedAt          string `json:"created_at" format:"date-time"`
}

// WorkTask is a development task under a story, distinct from the
// lifecycle ServiceTask checklist items.
type WorkTask struct {
	ID             int64  `json:"id"`
	StoryID        int64  `json:"story_id"`
	Title          string `json:"title"`
	Description    string `json:"description,omitempty"`
	EstimatedHours *int   `json:"estimated_hours,omitempty"`
	Status         string `json:"status" enum:"todo,in_progress,done"`
	Position       int    `json:"position"`
}

type LifecyclePhase struct {
	ID                 int64   `json:"id"`
	ProjectID          int64   `json:"project_id"`
	Phase              string  `json:"phase" enum:"concept,define,plan,develop,launch,sustain"`
	Status             string  `json:"status" enum:"not_started,in_progress,pending_approval,approved,skipped"`
	PhaseOrder         int     `json:"order"`
	ApprovalRequired   bool    `json:"approval_required"`
	ApprovedBy         *string `json:"approved_by,omitempty"`
	ApprovedAt         *string `json:"approved_at,omitempty" format:"date-time"`
	ApprovalNotes      *string `json:"approval_notes,omitempty"`
	SequenceOverridden bool    `json:"sequence_overridden"`
	OverriddenBy       *string `json:"overridden_by,omitempty"`
	OverriddenAt       *string `json:"overridden_at,omitempty" format:"date-time"`
	OverrideReason     *string `json:"override_reason,omitempty"`
	TargetStartDate    *string `json:"target_start_date,omitempty" format:"date"`
	TargetEndDate      *string `json:"target_end_date,omitempty" format:"date"`
	ActualStartDate    *string `json:"actual_start_date,omitempty" format:"date"`
	ActualEndDate      *string `json:"actual_end_date,omitempty" format:"date"`
	CreatedAt          string  `json:"created_at" format:"date-time"`

	// Derived from the phase's service tasks, never stored.
	TaskCount          int `json:"task_count"`
	CompletedTaskCount int `json:"completed_task_count"`
}

// ProgressPercent returns the completed share of the phase's tasks as a
// whole percent. A phase with no tasks reports zero.
func (p LifecyclePhase) ProgressPercent() int {
	if p.TaskCount == 0 {
		return 0
	}
	return int(float64(p.CompletedTaskCount)/float64(p.TaskCount)*100 + 0.5)
}

type ServiceTask struct {
	ID                 int64    `json:"id"`
	PhaseID            int64    `json:"phase_id"`
	Title              string   `json:"title"`
	Definition         string   `json:"definition,omitempty"`
	Category           string   `json:"category,omitempty"`
	Subcategory        string   `json:"subcategory,omitempty"`
	Status             string   `json:"status" enum:"not_started,in_progress,blocked,completed,deferred,not_applicable"`
	Source             string   `json:"source" enum:"ai_generated,template,manual"`
	DaysRequired       *int     `json:"days_required,omitempty"`
	TargetStartDate    *string  `json:"target_start_date,omitempty" format:"date"`
	TargetCompleteDate *string  `json:"target_complete_date,omitempty" format:"date"`
	ActualStartDate    *string  `json:"actual_start_date,omitempty" format:"date"`
	ActualCompleteDate *string  `json:"actual_complete_date,omitempty" format:"date"`
	Owner              *string  `json:"owner,omitempty"`
	Team               *string  `json:"team,omitempty"`
	LinkedEpicID       *int64   `json:"linked_epic_id,omitempty"`
	LinkedStoryID      *int64   `json:"linked_story_id,omitempty"`
	Position           int      `json:"position"`
	IsRequired         bool     `json:"is_required"`
	AIConfidence       *float64 `json:"ai_confidence,omitempty"`
	AIReasoning        *string  `json:"ai_reasoning,omitempty"`
	Notes              *string  `json:"notes,omitempty"`
	CompletionNotes    *string  `json:"completion_notes,omitempty"`
	CreatedAt          string   `json:"created_at" format:"date-time"`
	CompletedAt        *string  `json:"completed_at,omitempty" format:"date-time"`
}

// Dependency is a directed edge between two planning items: source
// depends on (or blocks, or relates to) target. Edges hold weak
// type+id references, never ownership.
type Dependency struct {
	ID              int64    `json:"id"`
	ProjectID       int64    `json:"project_id"`
	SourceType      string   `json:"source_type" enum:"epic,story,task"`
	SourceID        int64    `json:"source_id"`
	TargetType      string   `json:"target_type" enum:"epic,story,task"`
	TargetID        int64    `json:"target_id"`
	DependencyType  string   `json:"dependency_type" enum:"depends_on,blocks,related"`
	Status          string   `json:"status" enum:"pending,in_progress,resolved,blocked"`
	Inferred        bool     `json:"inferred"`
	Confidence      *float64 `json:"confidence,omitempty"`
	InferenceReason *string  `json:"inference_reason,omitempty"`
	Notes           *string  `json:"notes,omitempty"`
	CreatedAt       string   `json:"created_at" format:"date-time"`
}

type Decision struct {
	ID                   int64    `json:"id"`
	ProjectID            int64    `json:"project_id"`
	Title                string   `json:"title"`
	Context              string   `json:"context,omitempty"`
	Decision             string   `json:"decision"`
	Rationale            string   `json:"rationale,omitempty"`
	AlternativesJSON     *string  `json:"alternatives_json,omitempty"`
	Consequences         string   `json:"consequences,omitempty"`
	Status               string   `json:"status" enum:"proposed,accepted,superseded,deprecated"`
	DecisionMaker        *string  `json:"decision_maker,omitempty"`
	DecisionDate         *string  `json:"decision_date,omitempty" format:"date-time"`
	ExtractedFrom        *string  `json:"extracted_from,omitempty"`
	ExtractionConfidence *float64 `json:"extraction_confidence,omitempty"`
	CreatedAt            string   `json:"created_at" format:"date-time"`
}

type Assumption struct {
	ID                   int64    `json:"id"`
	ProjectID            int64    `json:"project_id"`
	Assumption           string   `json:"assumption"`
	Context              string   `json:"context,omitempty"`
	ImpactIfWrong        string   `json:"impact_if_wrong,omitempty"`
	Status               string   `json:"status" enum:"unvalidated,validating,validated,invalidated"`
	RiskLevel            string   `json:"risk_level" enum:"low,medium,high,critical"`
	ValidationMethod     *string  `json:"validation_method,omitempty"`
	ValidationOwner      *string  `json:"validation_owner,omitempty"`
	ValidationDeadline   *string  `json:"validation_deadline,omitempty" format:"date-time"`
	ValidationResult     *string  `json:"validation_result,omitempty"`
	ValidatedAt          *string  `json:"validated_at,omitempty" format:"date-time"`
	ExtractedFrom        *string  `json:"extracted_from,omitempty"`
	ExtractionConfidence *float64 `json:"extraction_confidence,omitempty"`
	CreatedAt            string   `json:"created_at" format:"date-time"`
}

// StoryEstimate holds range estimates plus RICE/WSJF components for a
// story, one row per story.
type StoryEstimate struct {
	ID      int64 `json:"id"`
	StoryID int64 `json:"story_id"`

	EstimateP10 *float64 `json:"estimate_p10,omitempty"`
	EstimateP50 *float64 `json:"estimate_p50,omitempty"`
	EstimateP90 *float64 `json:"estimate_p90,omitempty"`

	RICEReach      *float64 `json:"rice_reach,omitempty"`
	RICEImpact     *float64 `json:"rice_impact,omitempty"`
	RICEConfidence *float64 `json:"rice_confidence,omitempty"`
	RICEEffort     *float64 `json:"rice_effort,omitempty"`
	RICEScore      *float64 `json:"rice_score,omitempty"`

	WSJFBusinessValue   *float64 `json:"wsjf_business_value,omitempty"`
	WSJFTimeCriticality *float64 `json:"wsjf_time_criticality,omitempty"`
	WSJFRiskReduction   *float64 `json:"wsjf_risk_reduction,omitempty"`
	WSJFJobSize         *float64 `json:"wsjf_job_size,omitempty"`
	WSJFScore           *float64 `json:"wsjf_score,omitempty"`

	AIEstimateP10 *float64 `json:"ai_estimate_p10,omitempty"`
	AIEstimateP50 *float64 `json:"ai_estimate_p50,omitempty"`
	AIEstimateP90 *float64 `json:"ai_estimate_p90,omitempty"`
	AIConfidence  *float64 `json:"ai_confidence,omitempty"`
	AIReasoning   *string  `json:"ai_reasoning,omitempty"`

	CreatedAt string `json:"created_at" format:"date-time"`
	UpdatedAt string `json:"updated_at" format:"date-time"`
}

// PriorityScore returns the estimate's score under the given model
// ("rice" or "wsjf"), or nil when unscored.
func (e StoryEstimate) PriorityScore(model string) *float64 {
	if model == "wsjf" {
		return e.WSJFScore
	}
	return e.RICEScore
}

type Event struct {
	ID         string `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	ProjectID  int64  `json:"project_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

// ItemRef is a weak reference to a planning item (epic, story or work
// task) used by dependency edges and critical-path output.
type ItemRef struct {
	Type string `json:"type" enum:"epic,story,task"`
	ID   int64  `json:"id"`
}

// PathItem is one step of a critical path.
type PathItem struct {
	Item          ItemRef `json:"item"`
	Duration      float64 `json:"duration"`
	TotalDuration float64 `json:"total_duration"`
}

// LifecycleSummary aggregates phase progress for one project.
type LifecycleSummary struct {
	ProjectID               int64            `json:"project_id"`
	Phases                  []LifecyclePhase `json:"phases"`
	TotalTasks              int              `json:"total_tasks"`
	CompletedTasks          int              `json:"completed_tasks"`
	CurrentPhase            *string          `json:"current_phase,omitempty"`
	OverallProgress         float64          `json:"overall_progress"`
	EstimatedCompletionDate *string          `json:"estimated_completion_date,omitempty" format:"date"`
}

// ValidItemType reports whether t names a planning item type a
// dependency edge may reference.
func ValidItemType(t string) bool {
	switch t {
	case "epic", "story", "task":
		return true
	}
	return false
}

// ValidDependencyType reports whether t is a known edge type.
func ValidDependencyType(t string) bool {
	switch t {
	case "depends_on", "blocks", "related":
		return true
	}
	return false
}

// ValidServiceTaskStatus reports whether s is a known service-task status.
func ValidServiceTaskStatus(s string) bool {
	switch s {
	case "not_started", "in_progress", "blocked", "completed", "deferred", "not_applicable":
		return true
	}
	return false
}

// ValidDependencyStatus reports whether s is a known edge status.
func ValidDependencyStatus(s string) bool {
	switch s {
	case "pending", "in_progress", "resolved", "blocked":
		return true
	}
	return false
}
