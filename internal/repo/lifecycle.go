package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"planline/internal/domain"
)

const phaseCols = `id,project_id,phase,status,phase_order,approval_required,approved_by,approved_at,approval_notes,
sequence_overridden,overridden_by,overridden_at,override_reason,
target_start_date,target_end_date,actual_start_date,actual_end_date,created_at`

func scanPhase(scan func(...any) error) (domain.LifecyclePhase, error) {
	var (
		p                                      domain.LifecyclePhase
		approvedBy, approvedAt, approvalNotes  sql.NullString
		overriddenBy, overriddenAt, overReason sql.NullString
		tStart, tEnd, aStart, aEnd             sql.NullString
	)
	err := scan(&p.ID, &p.ProjectID, &p.Phase, &p.Status, &p.PhaseOrder, &p.ApprovalRequired,
		&approvedBy, &approvedAt, &approvalNotes,
		&p.SequenceOverridden, &overriddenBy, &overriddenAt, &overReason,
		&tStart, &tEnd, &aStart, &aEnd, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	p.ApprovedBy = strPtr(approvedBy)
	p.ApprovedAt = strPtr(approvedAt)
	p.ApprovalNotes = strPtr(approvalNotes)
	p.OverriddenBy = strPtr(overriddenBy)
	p.OverriddenAt = strPtr(overriddenAt)
	p.OverrideReason = strPtr(overReason)
	p.TargetStartDate = strPtr(tStart)
	p.TargetEndDate = strPtr(tEnd)
	p.ActualStartDate = strPtr(aStart)
	p.ActualEndDate = strPtr(aEnd)
	return p, err
}

func (r Repo) InsertPhaseTx(ctx context.Context, tx *sql.Tx, p domain.LifecyclePhase) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO lifecycle_phases(project_id,phase,status,phase_order,approval_required,target_start_date,target_end_date,created_at) VALUES (?,?,?,?,?,?,?,?)`,
		p.ProjectID, p.Phase, p.Status, p.PhaseOrder, p.ApprovalRequired, nullableStringPtr(p.TargetStartDate), nullableStringPtr(p.TargetEndDate), p.CreatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r Repo) GetPhase(ctx context.Context, id int64) (domain.LifecyclePhase, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+phaseCols+` FROM lifecycle_phases WHERE id=?`, id)
	p, err := scanPhase(row.Scan)
	if err != nil {
		return p, err
	}
	return p, r.fillPhaseCounts(ctx, &p)
}

func (r Repo) GetPhaseByKind(ctx context.Context, projectID int64, phase string) (domain.LifecyclePhase, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+phaseCols+` FROM lifecycle_phases WHERE project_id=? AND phase=?`, projectID, phase)
	p, err := scanPhase(row.Scan)
	if err != nil {
		return p, err
	}
	return p, r.fillPhaseCounts(ctx, &p)
}

// ListPhases returns the project's phases in sequence order with task
// counts filled in.
func (r Repo) ListPhases(ctx context.Context, projectID int64) ([]domain.LifecyclePhase, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+phaseCols+` FROM lifecycle_phases WHERE project_id=? ORDER BY phase_order`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.LifecyclePhase
	for rows.Next() {
		p, err := scanPhase(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range res {
		if err := r.fillPhaseCounts(ctx, &res[i]); err != nil {
			return nil, err
		}
	}
	return res, nil
}

func (r Repo) fillPhaseCounts(ctx context.Context, p *domain.LifecyclePhase) error {
	return r.DB.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(CASE WHEN status='completed' THEN 1 ELSE 0 END),0) FROM service_tasks WHERE phase_id=?`,
		p.ID).Scan(&p.TaskCount, &p.CompletedTaskCount)
}

// PhaseUpdate carries optional phase mutations applied in one UPDATE.
type PhaseUpdate struct {
	Status             *string
	ApprovedBy         *string
	ApprovedAt         *string
	ApprovalNotes      *string
	SequenceOverridden *bool
	OverriddenBy       *string
	OverriddenAt       *string
	OverrideReason     *string
	TargetStartDate    *string
	TargetEndDate      *string
	ActualStartDate    *string
	ActualEndDate      *string
}

func (r Repo) UpdatePhaseTx(ctx context.Context, tx *sql.Tx, id int64, upd PhaseUpdate) error {
	var (
		fields []string
		args   []any
	)
	set := func(col string, v any) {
		fields = append(fields, col+"=?")
		args = append(args, v)
	}
	if upd.Status != nil {
		set("status", *upd.Status)
	}
	if upd.ApprovedBy != nil {
		set("approved_by", nullable(*upd.ApprovedBy))
	}
	if upd.ApprovedAt != nil {
		set("approved_at", nullable(*upd.ApprovedAt))
	}
	if upd.ApprovalNotes != nil {
		set("approval_notes", nullable(*upd.ApprovalNotes))
	}
	if upd.SequenceOverridden != nil {
		set("sequence_overridden", *upd.SequenceOverridden)
	}
	if upd.OverriddenBy != nil {
		set("overridden_by", nullable(*upd.OverriddenBy))
	}
	if upd.OverriddenAt != nil {
		set("overridden_at", nullable(*upd.OverriddenAt))
	}
	if upd.OverrideReason != nil {
		set("override_reason", nullable(*upd.OverrideReason))
	}
	if upd.TargetStartDate != nil {
		set("target_start_date", nullable(*upd.TargetStartDate))
	}
	if upd.TargetEndDate != nil {
		set("target_end_date", nullable(*upd.TargetEndDate))
	}
	if upd.ActualStartDate != nil {
		set("actual_start_date", nullable(*upd.ActualStartDate))
	}
	if upd.ActualEndDate != nil {
		set("actual_end_date", nullable(*upd.ActualEndDate))
	}
	if len(fields) == 0 {
		return nil
	}
	args = append(args, id)
	res, err := tx.ExecContext(ctx, fmt.Sprintf(`UPDATE lifecycle_phases SET %s WHERE id=?`, strings.Join(fields, ",")), args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeletePhasesTx(ctx context.Context, tx *sql.Tx, projectID int64) (int64, error) {
	res, err := tx.ExecContext(ctx, `DELETE FROM lifecycle_phases WHERE project_id=?`, projectID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const serviceTaskCols = `id,phase_id,title,COALESCE(definition,''),COALESCE(category,''),COALESCE(subcategory,''),status,source,days_required,
target_start_date,target_complete_date,actual_start_date,actual_complete_date,owner,team,linked_epic_id,linked_story_id,
position,is_required,ai_confidence,ai_reasoning,notes,completion_notes,created_at,completed_at`

func scanServiceTask(scan func(...any) error) (domain.ServiceTask, error) {
	var (
		t                          domain.ServiceTask
		days                       sql.NullInt64
		tStart, tEnd, aStart, aEnd sql.NullString
		owner, team                sql.NullString
		epicID, storyID            sql.NullInt64
		conf                       sql.NullFloat64
		reason, notes, cNotes      sql.NullString
		completedAt                sql.NullString
	)
	err := scan(&t.ID, &t.PhaseID, &t.Title, &t.Definition, &t.Category, &t.Subcategory, &t.Status, &t.Source, &days,
		&tStart, &tEnd, &aStart, &aEnd, &owner, &team, &epicID, &storyID,
		&t.Position, &t.IsRequired, &conf, &reason, &notes, &cNotes, &t.CreatedAt, &completedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	t.DaysRequired = intPtr(days)
	t.TargetStartDate = strPtr(tStart)
	t.TargetCompleteDate = strPtr(tEnd)
	t.ActualStartDate = strPtr(aStart)
	t.ActualCompleteDate = strPtr(aEnd)
	t.Owner = strPtr(owner)
	t.Team = strPtr(team)
	t.LinkedEpicID = int64Ptr(epicID)
	t.LinkedStoryID = int64Ptr(storyID)
	t.AIConfidence = floatPtr(conf)
	t.AIReasoning = strPtr(reason)
	t.Notes = strPtr(notes)
	t.CompletionNotes = strPtr(cNotes)
	t.CompletedAt = strPtr(completedAt)
	return t, err
}

func (r Repo) InsertServiceTaskTx(ctx context.Context, tx *sql.Tx, t domain.ServiceTask) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO service_tasks(phase_id,title,definition,category,subcategory,status,source,days_required,
		target_start_date,target_complete_date,owner,team,linked_epic_id,linked_story_id,position,is_required,ai_confidence,ai_reasoning,notes,created_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.PhaseID, t.Title, t.Definition, t.Category, t.Subcategory, t.Status, t.Source, nullableIntPtr(t.DaysRequired),
		nullableStringPtr(t.TargetStartDate), nullableStringPtr(t.TargetCompleteDate), nullableStringPtr(t.Owner), nullableStringPtr(t.Team),
		nullableInt64Ptr(t.LinkedEpicID), nullableInt64Ptr(t.LinkedStoryID), t.Position, t.IsRequired,
		nullableFloatPtr(t.AIConfidence), nullableStringPtr(t.AIReasoning), nullableStringPtr(t.Notes), t.CreatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r Repo) GetServiceTask(ctx context.Context, id int64) (domain.ServiceTask, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+serviceTaskCols+` FROM service_tasks WHERE id=?`, id)
	return scanServiceTask(row.Scan)
}

func (r Repo) ListServiceTasks(ctx context.Context, phaseID int64) ([]domain.ServiceTask, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+serviceTaskCols+` FROM service_tasks WHERE phase_id=? ORDER BY position, id`, phaseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ServiceTask
	for rows.Next() {
		t, err := scanServiceTask(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

// ServiceTaskUpdate carries optional service-task mutations.
type ServiceTaskUpdate struct {
	Title              *string
	Definition         *string
	Category           *string
	Subcategory        *string
	Status             *string
	DaysRequired       *int
	TargetStartDate    *string
	TargetCompleteDate *string
	ActualStartDate    *string
	ActualCompleteDate *string
	Owner              *string
	Team               *string
	LinkedEpicID       *int64
	LinkedStoryID      *int64
	Position           *int
	Notes              *string
	CompletionNotes    *string
	CompletedAt        *string
}

func (r Repo) UpdateServiceTaskTx(ctx context.Context, tx *sql.Tx, id int64, upd ServiceTaskUpdate) error {
	var (
		fields []string
		args   []any
	)
	set := func(col string, v any) {
		fields = append(fields, col+"=?")
		args = append(args, v)
	}
	if upd.Title != nil {
		set("title", *upd.Title)
	}
	if upd.Definition != nil {
		set("definition", *upd.Definition)
	}
	if upd.Category != nil {
		set("category", *upd.Category)
	}
	if upd.Subcategory != nil {
		set("subcategory", *upd.Subcategory)
	}
	if upd.Status != nil {
		set("status", *upd.Status)
	}
	if upd.DaysRequired != nil {
		set("days_required", *upd.DaysRequired)
	}
	if upd.TargetStartDate != nil {
		set("target_start_date", nullable(*upd.TargetStartDate))
	}
	if upd.TargetCompleteDate != nil {
		set("target_complete_date", nullable(*upd.TargetCompleteDate))
	}
	if upd.ActualStartDate != nil {
		set("actual_start_date", nullable(*upd.ActualStartDate))
	}
	if upd.ActualCompleteDate != nil {
		set("actual_complete_date", nullable(*upd.ActualCompleteDate))
	}
	if upd.Owner != nil {
		set("owner", nullable(*upd.Owner))
	}
	if upd.Team != nil {
		set("team", nullable(*upd.Team))
	}
	if upd.LinkedEpicID != nil {
		set("linked_epic_id", nullableID(*upd.LinkedEpicID))
	}
	if upd.LinkedStoryID != nil {
		set("linked_story_id", nullableID(*upd.LinkedStoryID))
	}
	if upd.Position != nil {
		set("position", *upd.Position)
	}
	if upd.Notes != nil {
		set("notes", nullable(*upd.Notes))
	}
	if upd.CompletionNotes != nil {
		set("completion_notes", nullable(*upd.CompletionNotes))
	}
	if upd.CompletedAt != nil {
		set("completed_at", nullable(*upd.CompletedAt))
	}
	if len(fields) == 0 {
		return nil
	}
	args = append(args, id)
	res, err := tx.ExecContext(ctx, fmt.Sprintf(`UPDATE service_tasks SET %s WHERE id=?`, strings.Join(fields, ",")), args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteServiceTask(ctx context.Context, id int64) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM service_tasks WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
