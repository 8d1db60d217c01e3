package engine

import (
	"context"
	"encoding/json"

	"planline/internal/domain"
	"planline/internal/events"
	"planline/internal/repo"
)

// AnalyzeProject turns the project's PRD into a backlog of epics,
// stories and work tasks. The project moves draft -> analyzing ->
// ready, or to error when the collaborator fails.
func (e Engine) AnalyzeProject(ctx context.Context, projectID int64, actorID string) (domain.Project, error) {
	p, err := e.Repo.GetProject(ctx, projectID)
	if err != nil {
		return domain.Project{}, err
	}
	if p.PRDContent == "" {
		return domain.Project{}, &ValidationError{Msg: "project has no PRD content to analyze"}
	}

	analyzing := "analyzing"
	if _, err := e.UpdateProject(ctx, projectID, repo.ProjectUpdate{Status: &analyzing}, actorID); err != nil {
		return domain.Project{}, err
	}

	backlog, err := e.provider().GenerateBacklog(ctx, p.PRDContent)
	if err != nil {
		e.markProjectError(ctx, projectID)
		return domain.Project{}, &CollaboratorError{Op: "generate backlog", Err: err}
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()

	now := e.timestamp()
	epics, stories := 0, 0
	for ei, ep := range backlog.Epics {
		epic := domain.Epic{
			ProjectID:   projectID,
			Title:       ep.Title,
			Description: ep.Description,
			Priority:    normalizePriority(ep.Priority),
			Position:    ei,
			CreatedAt:   now,
		}
		epicID, err := e.Repo.InsertEpicTx(ctx, tx, epic)
		if err != nil {
			return domain.Project{}, err
		}
		epics++
		for si, sp := range ep.Stories {
			story := domain.Story{
				EpicID:             epicID,
				Title:              sp.Title,
				Description:        sp.Description,
				AcceptanceCriteria: sp.AcceptanceCriteria,
				StoryPoints:        sp.StoryPoints,
				EstimatedHours:     sp.EstimatedHours,
				Priority:           normalizePriority(sp.Priority),
				Status:             "backlog",
				Position:           si,
				CreatedAt:          now,
			}
			storyID, err := e.Repo.InsertStoryTx(ctx, tx, story)
			if err != nil {
				return domain.Project{}, err
			}
			stories++
			for ti, tp := range sp.Tasks {
				task := domain.WorkTask{
					StoryID:        storyID,
					Title:          tp.Title,
					Description:    tp.Description,
					EstimatedHours: tp.EstimatedHours,
					Status:         "todo",
					Position:       ti,
				}
				if _, err := e.Repo.InsertWorkTaskTx(ctx, tx, task); err != nil {
					return domain.Project{}, err
				}
			}
		}
	}
	if err := e.Repo.SetProjectStatusTx(ctx, tx, projectID, "ready", now); err != nil {
		return domain.Project{}, err
	}
	if err := e.Events.Append(ctx, tx, "project.analyzed", projectID, "project", itoa(projectID), actorID,
		events.EventPayload{"epics": epics, "stories": stories}); err != nil {
		return domain.Project{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Project{}, err
	}
	return e.Repo.GetProject(ctx, projectID)
}

func (e Engine) markProjectError(ctx context.Context, projectID int64) {
	status := "error"
	_ = e.Repo.UpdateProject(ctx, projectID, repo.ProjectUpdate{Status: &status}, e.timestamp())
}

func normalizePriority(p string) string {
	switch p {
	case "low", "medium", "high", "critical":
		return p
	}
	return "medium"
}

// ExtractPlanning mines decisions and assumptions out of the project's
// PRD and records them.
func (e Engine) ExtractPlanning(ctx context.Context, projectID int64, actorID string) ([]domain.Decision, []domain.Assumption, error) {
	p, err := e.Repo.GetProject(ctx, projectID)
	if err != nil {
		return nil, nil, err
	}
	if p.PRDContent == "" {
		return nil, nil, &ValidationError{Msg: "project has no PRD content to extract from"}
	}
	extract, err := e.provider().ExtractPlanning(ctx, p.PRDContent)
	if err != nil {
		return nil, nil, &CollaboratorError{Op: "extract planning", Err: err}
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback()
	now := e.timestamp()
	source := "prd"
	for _, dp := range extract.Decisions {
		d := domain.Decision{
			ProjectID:     projectID,
			Title:         dp.Title,
			Context:       dp.Context,
			Decision:      dp.Decision,
			Rationale:     dp.Rationale,
			Consequences:  dp.Consequences,
			Status:        "proposed",
			ExtractedFrom: &source,
			CreatedAt:     now,
		}
		if dp.Confidence > 0 {
			conf := dp.Confidence
			d.ExtractionConfidence = &conf
		}
		if len(dp.Alternatives) > 0 {
			data, err := json.Marshal(dp.Alternatives)
			if err != nil {
				return nil, nil, err
			}
			alts := string(data)
			d.AlternativesJSON = &alts
		}
		if _, err := e.Repo.InsertDecisionTx(ctx, tx, d); err != nil {
			return nil, nil, err
		}
	}
	for _, ap := range extract.Assumptions {
		a := domain.Assumption{
			ProjectID:     projectID,
			Assumption:    ap.Assumption,
			Context:       ap.Context,
			ImpactIfWrong: ap.ImpactIfWrong,
			Status:        "unvalidated",
			RiskLevel:     normalizePriority(ap.RiskLevel),
			ExtractedFrom: &source,
			CreatedAt:     now,
		}
		if ap.Confidence > 0 {
			conf := ap.Confidence
			a.ExtractionConfidence = &conf
		}
		if _, err := e.Repo.InsertAssumptionTx(ctx, tx, a); err != nil {
			return nil, nil, err
		}
	}
	if err := e.Events.Append(ctx, tx, "planning.extracted", projectID, "project", itoa(projectID), actorID,
		events.EventPayload{"decisions": len(extract.Decisions), "assumptions": len(extract.Assumptions)}); err != nil {
		return nil, nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, nil, err
	}

	decisions, err := e.Repo.ListDecisions(ctx, projectID)
	if err != nil {
		return nil, nil, err
	}
	assumptions, err := e.Repo.ListAssumptions(ctx, projectID)
	if err != nil {
		return nil, nil, err
	}
	return decisions, assumptions, nil
}

// DecisionCreate are parameters for recording a decision by hand.
type DecisionCreate struct {
	Title        string
	Context      string
	Decision     string
	Rationale    string
	Consequences string
	Maker        string
}

func (e Engine) CreateDecision(ctx context.Context, projectID int64, opts DecisionCreate, actorID string) (domain.Decision, error) {
	if opts.Title == "" || opts.Decision == "" {
		return domain.Decision{}, &ValidationError{Msg: "title and decision are required"}
	}
	if _, err := e.Repo.GetProject(ctx, projectID); err != nil {
		return domain.Decision{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Decision{}, err
	}
	defer tx.Rollback()
	now := e.timestamp()
	d := domain.Decision{
		ProjectID:    projectID,
		Title:        opts.Title,
		Context:      opts.Context,
		Decision:     opts.Decision,
		Rationale:    opts.Rationale,
		Consequences: opts.Consequences,
		// decision_date is stamped on acceptance, not on recording.
		Status:    "proposed",
		CreatedAt: now,
	}
	if opts.Maker != "" {
		d.DecisionMaker = &opts.Maker
	}
	id, err := e.Repo.InsertDecisionTx(ctx, tx, d)
	if err != nil {
		return domain.Decision{}, err
	}
	if err := e.Events.Append(ctx, tx, "decision.recorded", projectID, "decision", itoa(id), actorID,
		events.EventPayload{"title": opts.Title}); err != nil {
		return domain.Decision{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Decision{}, err
	}
	return e.Repo.GetDecision(ctx, id)
}

func (e Engine) SetDecisionStatus(ctx context.Context, id int64, status, actorID string) (domain.Decision, error) {
	switch status {
	case "proposed", "accepted", "superseded", "deprecated":
	default:
		return domain.Decision{}, &ValidationError{Msg: "unknown decision status " + status}
	}
	// Acceptance dates the decision.
	var decided *string
	if status == "accepted" {
		ts := e.timestamp()
		decided = &ts
	}
	if err := e.Repo.UpdateDecisionStatus(ctx, id, status, decided); err != nil {
		return domain.Decision{}, err
	}
	return e.Repo.GetDecision(ctx, id)
}

// AssumptionCreate are parameters for recording an assumption by hand.
type AssumptionCreate struct {
	Assumption       string
	Context          string
	ImpactIfWrong    string
	RiskLevel        string
	ValidationMethod string
	ValidationOwner  string
}

func (e Engine) CreateAssumption(ctx context.Context, projectID int64, opts AssumptionCreate, actorID string) (domain.Assumption, error) {
	if opts.Assumption == "" {
		return domain.Assumption{}, &ValidationError{Msg: "assumption text is required"}
	}
	if _, err := e.Repo.GetProject(ctx, projectID); err != nil {
		return domain.Assumption{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Assumption{}, err
	}
	defer tx.Rollback()
	a := domain.Assumption{
		ProjectID:     projectID,
		Assumption:    opts.Assumption,
		Context:       opts.Context,
		ImpactIfWrong: opts.ImpactIfWrong,
		Status:        "unvalidated",
		RiskLevel:     normalizePriority(opts.RiskLevel),
		CreatedAt:     e.timestamp(),
	}
	if opts.ValidationMethod != "" {
		a.ValidationMethod = &opts.ValidationMethod
	}
	if opts.ValidationOwner != "" {
		a.ValidationOwner = &opts.ValidationOwner
	}
	id, err := e.Repo.InsertAssumptionTx(ctx, tx, a)
	if err != nil {
		return domain.Assumption{}, err
	}
	if err := e.Events.Append(ctx, tx, "assumption.recorded", projectID, "assumption", itoa(id), actorID, nil); err != nil {
		return domain.Assumption{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Assumption{}, err
	}
	return e.Repo.GetAssumption(ctx, id)
}

// ValidateAssumption records the outcome of validating an assumption.
func (e Engine) ValidateAssumption(ctx context.Context, id int64, status, result, actorID string) (domain.Assumption, error) {
	switch status {
	case "validating", "validated", "invalidated":
	default:
		return domain.Assumption{}, &ValidationError{Msg: "unknown validation status " + status}
	}
	validatedAt := ""
	if status == "validated" || status == "invalidated" {
		validatedAt = e.timestamp()
	}
	if err := e.Repo.SetAssumptionValidation(ctx, id, status, result, validatedAt); err != nil {
		return domain.Assumption{}, err
	}
	return e.Repo.GetAssumption(ctx, id)
}
