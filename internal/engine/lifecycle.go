package engine

import (
	"context"
	"database/sql"
	"fmt"

	"planline/internal/domain"
	"planline/internal/events"
	"planline/internal/repo"
)

// ensurePhaseTransition enforces the phase status machine:
// not_started -> in_progress -> pending_approval -> approved, with
// skipped reachable only from not_started.
func ensurePhaseTransition(from, to string) error {
	allowed := false
	switch from {
	case domain.PhaseNotStarted:
		allowed = to == domain.PhaseInProgress || to == domain.PhaseSkipped
	case domain.PhaseInProgress:
		allowed = to == domain.PhasePendingApproval
	case domain.PhasePendingApproval:
		allowed = to == domain.PhaseApproved || to == domain.PhaseInProgress
	}
	if !allowed {
		return &InvalidTransitionError{From: from, To: to}
	}
	return nil
}

// ensureSequence checks every earlier phase cleared its gate.
func ensureSequence(phases []domain.LifecyclePhase, target domain.LifecyclePhase) error {
	for _, p := range phases {
		if p.PhaseOrder >= target.PhaseOrder {
			continue
		}
		if p.Status != domain.PhaseApproved && p.Status != domain.PhaseSkipped {
			return &SequenceViolationError{Phase: target.Phase, Previous: p.Phase}
		}
	}
	return nil
}

// InitLifecyclePhases creates any missing phases for the project with
// target dates rolled forward by the configured durations. Existing
// phases are left untouched.
func (e Engine) InitLifecyclePhases(ctx context.Context, projectID int64, actorID string) ([]domain.LifecyclePhase, error) {
	if _, err := e.Repo.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if err := e.createMissingPhases(ctx, tx, projectID, actorID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return e.Repo.ListPhases(ctx, projectID)
}

func (e Engine) createMissingPhases(ctx context.Context, tx *sql.Tx, projectID int64, actorID string) error {
	existing, err := e.Repo.ListPhases(ctx, projectID)
	if err != nil {
		return err
	}
	have := make(map[string]bool, len(existing))
	for _, p := range existing {
		have[p.Phase] = true
	}
	now := e.timestamp()
	cursor := e.now().UTC()
	created := 0
	for _, kind := range domain.PhaseKinds {
		days := e.Config.PhaseDuration(kind)
		start := cursor.Format("2006-01-02")
		cursor = cursor.AddDate(0, 0, days)
		end := cursor.Format("2006-01-02")
		if have[kind] {
			continue
		}
		p := domain.LifecyclePhase{
			ProjectID:        projectID,
			Phase:            kind,
			Status:           domain.PhaseNotStarted,
			PhaseOrder:       domain.PhaseOrder[kind],
			ApprovalRequired: e.Config.PhaseApprovalRequired(kind),
			TargetStartDate:  &start,
			TargetEndDate:    &end,
			CreatedAt:        now,
		}
		if _, err := e.Repo.InsertPhaseTx(ctx, tx, p); err != nil {
			return err
		}
		created++
	}
	if created == 0 {
		return nil
	}
	return e.Events.Append(ctx, tx, "lifecycle.initialized", projectID, "lifecycle", "", actorID,
		events.EventPayload{"phases_created": created})
}

// AnalyzeLifecycle asks the collaborator for a per-phase service-task
// checklist and materializes it along with the phases. A project whose
// phases already exist must delete the lifecycle first; re-running the
// analysis would duplicate every generated task.
func (e Engine) AnalyzeLifecycle(ctx context.Context, projectID int64, actorID string) (domain.LifecycleSummary, error) {
	project, err := e.Repo.GetProject(ctx, projectID)
	if err != nil {
		return domain.LifecycleSummary{}, err
	}
	existing, err := e.Repo.ListPhases(ctx, projectID)
	if err != nil {
		return domain.LifecycleSummary{}, err
	}
	if len(existing) > 0 {
		return domain.LifecycleSummary{}, &ValidationError{Msg: "lifecycle phases already exist; delete the lifecycle before re-analyzing"}
	}
	plans, err := e.provider().GenerateLifecycleTasks(ctx, project.Name, project.PRDContent)
	if err != nil {
		return domain.LifecycleSummary{}, &CollaboratorError{Op: "generate lifecycle tasks", Err: err}
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.LifecycleSummary{}, err
	}
	defer tx.Rollback()

	if err := e.createMissingPhases(ctx, tx, projectID, actorID); err != nil {
		return domain.LifecycleSummary{}, err
	}
	// Re-read inside the tx so freshly created phases are visible.
	phaseIDs := make(map[string]int64)
	rows, err := tx.QueryContext(ctx, `SELECT id, phase FROM lifecycle_phases WHERE project_id=?`, projectID)
	if err != nil {
		return domain.LifecycleSummary{}, err
	}
	for rows.Next() {
		var (
			id    int64
			phase string
		)
		if err := rows.Scan(&id, &phase); err != nil {
			rows.Close()
			return domain.LifecycleSummary{}, err
		}
		phaseIDs[phase] = id
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return domain.LifecycleSummary{}, err
	}

	now := e.timestamp()
	inserted := 0
	for _, plan := range plans {
		phaseID, ok := phaseIDs[plan.Phase]
		if !ok {
			continue
		}
		for i, tp := range plan.Tasks {
			t := domain.ServiceTask{
				PhaseID:      phaseID,
				Title:        tp.Title,
				Definition:   tp.Definition,
				Category:     tp.Category,
				Subcategory:  tp.Subcategory,
				Status:       "not_started",
				Source:       "ai_generated",
				DaysRequired: tp.DaysRequired,
				Position:     i,
				IsRequired:   tp.IsRequired,
				AIConfidence: tp.Confidence,
				CreatedAt:    now,
			}
			if tp.Reasoning != "" {
				reasoning := tp.Reasoning
				t.AIReasoning = &reasoning
			}
			if _, err := e.Repo.InsertServiceTaskTx(ctx, tx, t); err != nil {
				return domain.LifecycleSummary{}, err
			}
			inserted++
		}
	}
	if err := e.Events.Append(ctx, tx, "lifecycle.analyzed", projectID, "lifecycle", "", actorID,
		events.EventPayload{"tasks_created": inserted}); err != nil {
		return domain.LifecycleSummary{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.LifecycleSummary{}, err
	}
	return e.LifecycleSummary(ctx, projectID)
}

// DeleteLifecycle removes the project's phases and their tasks.
func (e Engine) DeleteLifecycle(ctx context.Context, projectID int64, actorID string) error {
	if _, err := e.Repo.GetProject(ctx, projectID); err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	n, err := e.Repo.DeletePhasesTx(ctx, tx, projectID)
	if err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "lifecycle.deleted", projectID, "lifecycle", "", actorID,
		events.EventPayload{"phases_deleted": n}); err != nil {
		return err
	}
	return tx.Commit()
}

// LifecycleSummary aggregates phase progress for a project.
func (e Engine) LifecycleSummary(ctx context.Context, projectID int64) (domain.LifecycleSummary, error) {
	if _, err := e.Repo.GetProject(ctx, projectID); err != nil {
		return domain.LifecycleSummary{}, err
	}
	phases, err := e.Repo.ListPhases(ctx, projectID)
	if err != nil {
		return domain.LifecycleSummary{}, err
	}
	s := domain.LifecycleSummary{ProjectID: projectID, Phases: phases}
	for _, p := range phases {
		s.TotalTasks += p.TaskCount
		s.CompletedTasks += p.CompletedTaskCount
		if s.CurrentPhase == nil && (p.Status == domain.PhaseInProgress || p.Status == domain.PhasePendingApproval) {
			phase := p.Phase
			s.CurrentPhase = &phase
		}
		if p.TargetEndDate != nil {
			if s.EstimatedCompletionDate == nil || *p.TargetEndDate > *s.EstimatedCompletionDate {
				s.EstimatedCompletionDate = p.TargetEndDate
			}
		}
	}
	if s.TotalTasks > 0 {
		s.OverallProgress = float64(s.CompletedTasks) / float64(s.TotalTasks) * 100
	}
	return s, nil
}

// StartPhase moves a not_started phase to in_progress, enforcing the
// sequence gate.
func (e Engine) StartPhase(ctx context.Context, phaseID int64, actorID string) (domain.LifecyclePhase, error) {
	p, err := e.Repo.GetPhase(ctx, phaseID)
	if err != nil {
		return domain.LifecyclePhase{}, err
	}
	if err := ensurePhaseTransition(p.Status, domain.PhaseInProgress); err != nil {
		return domain.LifecyclePhase{}, err
	}
	phases, err := e.Repo.ListPhases(ctx, p.ProjectID)
	if err != nil {
		return domain.LifecyclePhase{}, err
	}
	if err := ensureSequence(phases, p); err != nil {
		return domain.LifecyclePhase{}, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.LifecyclePhase{}, err
	}
	defer tx.Rollback()
	status := domain.PhaseInProgress
	started := e.date()
	if err := e.Repo.UpdatePhaseTx(ctx, tx, phaseID, repo.PhaseUpdate{Status: &status, ActualStartDate: &started}); err != nil {
		return domain.LifecyclePhase{}, err
	}
	if err := e.Events.Append(ctx, tx, "phase.started", p.ProjectID, "phase", itoa(phaseID), actorID,
		events.EventPayload{"phase": p.Phase}); err != nil {
		return domain.LifecyclePhase{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.LifecyclePhase{}, err
	}
	return e.Repo.GetPhase(ctx, phaseID)
}

// OverridePhase starts a phase out of sequence. A reason and a named
// actor are mandatory; the override trail is stamped on the phase.
func (e Engine) OverridePhase(ctx context.Context, phaseID int64, reason, actorID string) (domain.LifecyclePhase, error) {
	if reason == "" {
		return domain.LifecyclePhase{}, &ValidationError{Msg: "override reason is required"}
	}
	if actorID == "" {
		return domain.LifecyclePhase{}, &ValidationError{Msg: "override actor is required"}
	}
	p, err := e.Repo.GetPhase(ctx, phaseID)
	if err != nil {
		return domain.LifecyclePhase{}, err
	}
	if err := ensurePhaseTransition(p.Status, domain.PhaseInProgress); err != nil {
		return domain.LifecyclePhase{}, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.LifecyclePhase{}, err
	}
	defer tx.Rollback()
	overridden := true
	status := domain.PhaseInProgress
	started := e.date()
	at := e.timestamp()
	if err := e.Repo.UpdatePhaseTx(ctx, tx, phaseID, repo.PhaseUpdate{
		Status:             &status,
		ActualStartDate:    &started,
		SequenceOverridden: &overridden,
		OverriddenBy:       &actorID,
		OverriddenAt:       &at,
		OverrideReason:     &reason,
	}); err != nil {
		return domain.LifecyclePhase{}, err
	}
	if err := e.Events.Append(ctx, tx, "phase.overridden", p.ProjectID, "phase", itoa(phaseID), actorID,
		events.EventPayload{"phase": p.Phase, "reason": reason}); err != nil {
		return domain.LifecyclePhase{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.LifecyclePhase{}, err
	}
	return e.Repo.GetPhase(ctx, phaseID)
}

// SubmitForApproval moves an in_progress phase to pending_approval.
func (e Engine) SubmitForApproval(ctx context.Context, phaseID int64, actorID string) (domain.LifecyclePhase, error) {
	p, err := e.Repo.GetPhase(ctx, phaseID)
	if err != nil {
		return domain.LifecyclePhase{}, err
	}
	if err := ensurePhaseTransition(p.Status, domain.PhasePendingApproval); err != nil {
		return domain.LifecyclePhase{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.LifecyclePhase{}, err
	}
	defer tx.Rollback()
	status := domain.PhasePendingApproval
	if err := e.Repo.UpdatePhaseTx(ctx, tx, phaseID, repo.PhaseUpdate{Status: &status}); err != nil {
		return domain.LifecyclePhase{}, err
	}
	if err := e.Events.Append(ctx, tx, "phase.submitted", p.ProjectID, "phase", itoa(phaseID), actorID,
		events.EventPayload{"phase": p.Phase}); err != nil {
		return domain.LifecyclePhase{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.LifecyclePhase{}, err
	}
	return e.Repo.GetPhase(ctx, phaseID)
}

// RejectApproval sends a pending_approval phase back to in_progress.
func (e Engine) RejectApproval(ctx context.Context, phaseID int64, notes, actorID string) (domain.LifecyclePhase, error) {
	p, err := e.Repo.GetPhase(ctx, phaseID)
	if err != nil {
		return domain.LifecyclePhase{}, err
	}
	if err := ensurePhaseTransition(p.Status, domain.PhaseInProgress); err != nil {
		return domain.LifecyclePhase{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.LifecyclePhase{}, err
	}
	defer tx.Rollback()
	status := domain.PhaseInProgress
	if err := e.Repo.UpdatePhaseTx(ctx, tx, phaseID, repo.PhaseUpdate{Status: &status, ApprovalNotes: &notes}); err != nil {
		return domain.LifecyclePhase{}, err
	}
	if err := e.Events.Append(ctx, tx, "phase.rejected", p.ProjectID, "phase", itoa(phaseID), actorID,
		events.EventPayload{"phase": p.Phase, "notes": notes}); err != nil {
		return domain.LifecyclePhase{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.LifecyclePhase{}, err
	}
	return e.Repo.GetPhase(ctx, phaseID)
}

// ApprovePhase approves a pending phase, stamps the approval trail and
// auto-starts the next not_started phase in sequence.
func (e Engine) ApprovePhase(ctx context.Context, phaseID int64, approver, notes string) (domain.LifecyclePhase, error) {
	if approver == "" {
		return domain.LifecyclePhase{}, &ValidationError{Msg: "approver is required"}
	}
	p, err := e.Repo.GetPhase(ctx, phaseID)
	if err != nil {
		return domain.LifecyclePhase{}, err
	}
	if err := ensurePhaseTransition(p.Status, domain.PhaseApproved); err != nil {
		return domain.LifecyclePhase{}, err
	}
	phases, err := e.Repo.ListPhases(ctx, p.ProjectID)
	if err != nil {
		return domain.LifecyclePhase{}, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.LifecyclePhase{}, err
	}
	defer tx.Rollback()
	// The stamps always reflect the latest approval; a phase approved
	// again after a rejection round overwrites the earlier trail.
	status := domain.PhaseApproved
	at := e.timestamp()
	ended := e.date()
	if err := e.Repo.UpdatePhaseTx(ctx, tx, phaseID, repo.PhaseUpdate{
		Status:        &status,
		ApprovedBy:    &approver,
		ApprovedAt:    &at,
		ApprovalNotes: &notes,
		ActualEndDate: &ended,
	}); err != nil {
		return domain.LifecyclePhase{}, err
	}
	if err := e.Events.Append(ctx, tx, "phase.approved", p.ProjectID, "phase", itoa(phaseID), approver,
		events.EventPayload{"phase": p.Phase}); err != nil {
		return domain.LifecyclePhase{}, err
	}

	// Auto-start the next phase so work rolls forward without an extra
	// explicit start.
	for _, next := range phases {
		if next.PhaseOrder <= p.PhaseOrder || next.Status != domain.PhaseNotStarted {
			continue
		}
		nextStatus := domain.PhaseInProgress
		started := e.date()
		if err := e.Repo.UpdatePhaseTx(ctx, tx, next.ID, repo.PhaseUpdate{Status: &nextStatus, ActualStartDate: &started}); err != nil {
			return domain.LifecyclePhase{}, err
		}
		if err := e.Events.Append(ctx, tx, "phase.auto_started", p.ProjectID, "phase", itoa(next.ID), approver,
			events.EventPayload{"phase": next.Phase}); err != nil {
			return domain.LifecyclePhase{}, err
		}
		break
	}
	if err := tx.Commit(); err != nil {
		return domain.LifecyclePhase{}, err
	}
	return e.Repo.GetPhase(ctx, phaseID)
}

// SkipPhase marks a not_started phase as skipped.
func (e Engine) SkipPhase(ctx context.Context, phaseID int64, reason, actorID string) (domain.LifecyclePhase, error) {
	p, err := e.Repo.GetPhase(ctx, phaseID)
	if err != nil {
		return domain.LifecyclePhase{}, err
	}
	if err := ensurePhaseTransition(p.Status, domain.PhaseSkipped); err != nil {
		return domain.LifecyclePhase{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.LifecyclePhase{}, err
	}
	defer tx.Rollback()
	status := domain.PhaseSkipped
	if err := e.Repo.UpdatePhaseTx(ctx, tx, phaseID, repo.PhaseUpdate{Status: &status, ApprovalNotes: &reason}); err != nil {
		return domain.LifecyclePhase{}, err
	}
	if err := e.Events.Append(ctx, tx, "phase.skipped", p.ProjectID, "phase", itoa(phaseID), actorID,
		events.EventPayload{"phase": p.Phase, "reason": reason}); err != nil {
		return domain.LifecyclePhase{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.LifecyclePhase{}, err
	}
	return e.Repo.GetPhase(ctx, phaseID)
}

// ServiceTaskCreate are parameters for adding a service task to a phase.
type ServiceTaskCreate struct {
	Title        string
	Definition   string
	Category     string
	Subcategory  string
	DaysRequired *int
	Owner        string
	Team         string
	IsRequired   bool
	Notes        string
}

func (e Engine) CreateServiceTask(ctx context.Context, phaseID int64, opts ServiceTaskCreate, actorID string) (domain.ServiceTask, error) {
	if opts.Title == "" {
		return domain.ServiceTask{}, &ValidationError{Msg: "title is required"}
	}
	p, err := e.Repo.GetPhase(ctx, phaseID)
	if err != nil {
		return domain.ServiceTask{}, err
	}
	existing, err := e.Repo.ListServiceTasks(ctx, phaseID)
	if err != nil {
		return domain.ServiceTask{}, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.ServiceTask{}, err
	}
	defer tx.Rollback()
	t := domain.ServiceTask{
		PhaseID:      phaseID,
		Title:        opts.Title,
		Definition:   opts.Definition,
		Category:     opts.Category,
		Subcategory:  opts.Subcategory,
		Status:       "not_started",
		Source:       "manual",
		DaysRequired: opts.DaysRequired,
		Position:     len(existing),
		IsRequired:   opts.IsRequired,
		CreatedAt:    e.timestamp(),
	}
	if opts.Owner != "" {
		t.Owner = &opts.Owner
	}
	if opts.Team != "" {
		t.Team = &opts.Team
	}
	if opts.Notes != "" {
		t.Notes = &opts.Notes
	}
	id, err := e.Repo.InsertServiceTaskTx(ctx, tx, t)
	if err != nil {
		return domain.ServiceTask{}, err
	}
	if err := e.Events.Append(ctx, tx, "service_task.created", p.ProjectID, "service_task", itoa(id), actorID,
		events.EventPayload{"phase": p.Phase, "title": opts.Title}); err != nil {
		return domain.ServiceTask{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.ServiceTask{}, err
	}
	return e.Repo.GetServiceTask(ctx, id)
}

// UpdateServiceTask applies the update and stamps the lifecycle dates
// that follow from a status change.
func (e Engine) UpdateServiceTask(ctx context.Context, id int64, upd repo.ServiceTaskUpdate, actorID string) (domain.ServiceTask, error) {
	t, err := e.Repo.GetServiceTask(ctx, id)
	if err != nil {
		return domain.ServiceTask{}, err
	}
	p, err := e.Repo.GetPhase(ctx, t.PhaseID)
	if err != nil {
		return domain.ServiceTask{}, err
	}
	if upd.Status != nil {
		if !domain.ValidServiceTaskStatus(*upd.Status) {
			return domain.ServiceTask{}, &ValidationError{Msg: "unknown task status " + *upd.Status}
		}
		e.stampTaskStatus(t, *upd.Status, &upd)
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.ServiceTask{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateServiceTaskTx(ctx, tx, id, upd); err != nil {
		return domain.ServiceTask{}, err
	}
	payload := events.EventPayload{}
	if upd.Status != nil {
		payload["status"] = *upd.Status
	}
	if err := e.Events.Append(ctx, tx, "service_task.updated", p.ProjectID, "service_task", itoa(id), actorID, payload); err != nil {
		return domain.ServiceTask{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.ServiceTask{}, err
	}
	return e.Repo.GetServiceTask(ctx, id)
}

// LinkServiceTask attaches a service task to the backlog work it
// tracks. A zero id clears the corresponding link; a non-zero id must
// name an epic or story inside the task's own project.
func (e Engine) LinkServiceTask(ctx context.Context, id int64, epicID, storyID *int64, actorID string) (domain.ServiceTask, error) {
	if epicID == nil && storyID == nil {
		return domain.ServiceTask{}, &ValidationError{Msg: "an epic or story link is required"}
	}
	t, err := e.Repo.GetServiceTask(ctx, id)
	if err != nil {
		return domain.ServiceTask{}, err
	}
	p, err := e.Repo.GetPhase(ctx, t.PhaseID)
	if err != nil {
		return domain.ServiceTask{}, err
	}
	check := func(typ string, itemID int64) error {
		ok, err := e.itemInProject(ctx, p.ProjectID, domain.ItemRef{Type: typ, ID: itemID})
		if err != nil {
			return err
		}
		if !ok {
			return &ValidationError{Msg: fmt.Sprintf("%s %d not found in project", typ, itemID)}
		}
		return nil
	}
	upd := repo.ServiceTaskUpdate{}
	payload := events.EventPayload{"phase": p.Phase}
	if epicID != nil {
		if *epicID != 0 {
			if err := check("epic", *epicID); err != nil {
				return domain.ServiceTask{}, err
			}
		}
		upd.LinkedEpicID = epicID
		payload["epic_id"] = *epicID
	}
	if storyID != nil {
		if *storyID != 0 {
			if err := check("story", *storyID); err != nil {
				return domain.ServiceTask{}, err
			}
		}
		upd.LinkedStoryID = storyID
		payload["story_id"] = *storyID
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.ServiceTask{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateServiceTaskTx(ctx, tx, id, upd); err != nil {
		return domain.ServiceTask{}, err
	}
	if err := e.Events.Append(ctx, tx, "service_task.linked", p.ProjectID, "service_task", itoa(id), actorID, payload); err != nil {
		return domain.ServiceTask{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.ServiceTask{}, err
	}
	return e.Repo.GetServiceTask(ctx, id)
}

// stampTaskStatus fills the date stamps implied by a status change.
func (e Engine) stampTaskStatus(t domain.ServiceTask, status string, upd *repo.ServiceTaskUpdate) {
	switch status {
	case "in_progress":
		if t.ActualStartDate == nil && upd.ActualStartDate == nil {
			d := e.date()
			upd.ActualStartDate = &d
		}
	case "completed":
		ts := e.timestamp()
		d := e.date()
		upd.CompletedAt = &ts
		if upd.ActualCompleteDate == nil {
			upd.ActualCompleteDate = &d
		}
		if t.ActualStartDate == nil && upd.ActualStartDate == nil {
			upd.ActualStartDate = &d
		}
	}
}

func (e Engine) DeleteServiceTask(ctx context.Context, id int64, actorID string) error {
	t, err := e.Repo.GetServiceTask(ctx, id)
	if err != nil {
		return err
	}
	p, err := e.Repo.GetPhase(ctx, t.PhaseID)
	if err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM service_tasks WHERE id=?`, id); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "service_task.deleted", p.ProjectID, "service_task", itoa(id), actorID, nil); err != nil {
		return err
	}
	return tx.Commit()
}

// BulkUpdateTaskStatus sets the status on each listed task that belongs
// to the phase. Unknown or foreign ids are skipped silently; the count
// of rows actually updated is returned.
func (e Engine) BulkUpdateTaskStatus(ctx context.Context, phaseID int64, taskIDs []int64, status, actorID string) (int, error) {
	if !domain.ValidServiceTaskStatus(status) {
		return 0, &ValidationError{Msg: "unknown task status " + status}
	}
	p, err := e.Repo.GetPhase(ctx, phaseID)
	if err != nil {
		return 0, err
	}
	tasks, err := e.Repo.ListServiceTasks(ctx, phaseID)
	if err != nil {
		return 0, err
	}
	inPhase := make(map[int64]domain.ServiceTask, len(tasks))
	for _, t := range tasks {
		inPhase[t.ID] = t
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()
	updated := 0
	for _, id := range taskIDs {
		t, ok := inPhase[id]
		if !ok {
			continue
		}
		upd := repo.ServiceTaskUpdate{Status: &status}
		e.stampTaskStatus(t, status, &upd)
		if err := e.Repo.UpdateServiceTaskTx(ctx, tx, id, upd); err != nil {
			return 0, err
		}
		updated++
	}
	if err := e.Events.Append(ctx, tx, "service_task.bulk_updated", p.ProjectID, "phase", itoa(phaseID), actorID,
		events.EventPayload{"status": status, "updated": updated}); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return updated, nil
}
