package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"planline/internal/domain"
)

const depCols = `id,project_id,source_type,source_id,target_type,target_id,dependency_type,status,inferred,confidence,inference_reason,notes,created_at`

func scanDependency(scan func(...any) error) (domain.Dependency, error) {
	var (
		d             domain.Dependency
		conf          sql.NullFloat64
		reason, notes sql.NullString
	)
	err := scan(&d.ID, &d.ProjectID, &d.SourceType, &d.SourceID, &d.TargetType, &d.TargetID,
		&d.DependencyType, &d.Status, &d.Inferred, &conf, &reason, &notes, &d.CreatedAt)
	if err == sql.ErrNoRows {
		return d, ErrNotFound
	}
	d.Confidence = floatPtr(conf)
	d.InferenceReason = strPtr(reason)
	d.Notes = strPtr(notes)
	return d, err
}

func (r Repo) InsertDependencyTx(ctx context.Context, tx *sql.Tx, d domain.Dependency) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO dependencies(project_id,source_type,source_id,target_type,target_id,dependency_type,status,inferred,confidence,inference_reason,notes,created_at) VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		d.ProjectID, d.SourceType, d.SourceID, d.TargetType, d.TargetID, d.DependencyType, d.Status, d.Inferred,
		nullableFloatPtr(d.Confidence), nullableStringPtr(d.InferenceReason), nullableStringPtr(d.Notes), d.CreatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r Repo) GetDependency(ctx context.Context, id int64) (domain.Dependency, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+depCols+` FROM dependencies WHERE id=?`, id)
	return scanDependency(row.Scan)
}

func (r Repo) ListDependencies(ctx context.Context, projectID int64) ([]domain.Dependency, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+depCols+` FROM dependencies WHERE project_id=? ORDER BY id`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Dependency
	for rows.Next() {
		d, err := scanDependency(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, rows.Err()
}

type DependencyUpdate struct {
	DependencyType *string
	Status         *string
	Notes          *string
}

func (r Repo) UpdateDependencyTx(ctx context.Context, tx *sql.Tx, id int64, upd DependencyUpdate) error {
	var (
		fields []string
		args   []any
	)
	if upd.DependencyType != nil {
		fields = append(fields, "dependency_type=?")
		args = append(args, *upd.DependencyType)
	}
	if upd.Status != nil {
		fields = append(fields, "status=?")
		args = append(args, *upd.Status)
	}
	if upd.Notes != nil {
		fields = append(fields, "notes=?")
		args = append(args, nullable(*upd.Notes))
	}
	if len(fields) == 0 {
		return nil
	}
	args = append(args, id)
	res, err := tx.ExecContext(ctx, fmt.Sprintf(`UPDATE dependencies SET %s WHERE id=?`, strings.Join(fields, ",")), args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteDependency(ctx context.Context, id int64) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM dependencies WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

const decisionCols = `id,project_id,title,COALESCE(context,''),decision,COALESCE(rationale,''),alternatives_json,COALESCE(consequences,''),status,decision_maker,decision_date,extracted_from,extraction_confidence,created_at`

func scanDecision(scan func(...any) error) (domain.Decision, error) {
	var (
		d           domain.Decision
		alts        sql.NullString
		maker, date sql.NullString
		from        sql.NullString
		conf        sql.NullFloat64
	)
	err := scan(&d.ID, &d.ProjectID, &d.Title, &d.Context, &d.Decision, &d.Rationale, &alts, &d.Consequences,
		&d.Status, &maker, &date, &from, &conf, &d.CreatedAt)
	if err == sql.ErrNoRows {
		return d, ErrNotFound
	}
	d.AlternativesJSON = strPtr(alts)
	d.DecisionMaker = strPtr(maker)
	d.DecisionDate = strPtr(date)
	d.ExtractedFrom = strPtr(from)
	d.ExtractionConfidence = floatPtr(conf)
	return d, err
}

func (r Repo) InsertDecisionTx(ctx context.Context, tx *sql.Tx, d domain.Decision) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO decisions(project_id,title,context,decision,rationale,alternatives_json,consequences,status,decision_maker,decision_date,extracted_from,extraction_confidence,created_at) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		d.ProjectID, d.Title, d.Context, d.Decision, d.Rationale, nullableStringPtr(d.AlternativesJSON), d.Consequences,
		d.Status, nullableStringPtr(d.DecisionMaker), nullableStringPtr(d.DecisionDate),
		nullableStringPtr(d.ExtractedFrom), nullableFloatPtr(d.ExtractionConfidence), d.CreatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r Repo) GetDecision(ctx context.Context, id int64) (domain.Decision, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+decisionCols+` FROM decisions WHERE id=?`, id)
	return scanDecision(row.Scan)
}

func (r Repo) ListDecisions(ctx context.Context, projectID int64) ([]domain.Decision, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+decisionCols+` FROM decisions WHERE project_id=? ORDER BY id`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Decision
	for rows.Next() {
		d, err := scanDecision(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, rows.Err()
}

func (r Repo) UpdateDecisionStatus(ctx context.Context, id int64, status string, decisionDate *string) error {
	var (
		res sql.Result
		err error
	)
	if decisionDate != nil {
		res, err = r.DB.ExecContext(ctx, `UPDATE decisions SET status=?, decision_date=? WHERE id=?`, status, *decisionDate, id)
	} else {
		res, err = r.DB.ExecContext(ctx, `UPDATE decisions SET status=? WHERE id=?`, status, id)
	}
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

const assumptionCols = `id,project_id,assumption,COALESCE(context,''),COALESCE(impact_if_wrong,''),status,risk_level,validation_method,validation_owner,validation_deadline,validation_result,validated_at,extracted_from,extraction_confidence,created_at`

func scanAssumption(scan func(...any) error) (domain.Assumption, error) {
	var (
		a                               domain.Assumption
		method, owner, deadline, result sql.NullString
		validatedAt, from               sql.NullString
		conf                            sql.NullFloat64
	)
	err := scan(&a.ID, &a.ProjectID, &a.Assumption, &a.Context, &a.ImpactIfWrong, &a.Status, &a.RiskLevel,
		&method, &owner, &deadline, &result, &validatedAt, &from, &conf, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	a.ValidationMethod = strPtr(method)
	a.ValidationOwner = strPtr(owner)
	a.ValidationDeadline = strPtr(deadline)
	a.ValidationResult = strPtr(result)
	a.ValidatedAt = strPtr(validatedAt)
	a.ExtractedFrom = strPtr(from)
	a.ExtractionConfidence = floatPtr(conf)
	return a, err
}

func (r Repo) InsertAssumptionTx(ctx context.Context, tx *sql.Tx, a domain.Assumption) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO assumptions(project_id,assumption,context,impact_if_wrong,status,risk_level,validation_method,validation_owner,validation_deadline,extracted_from,extraction_confidence,created_at) VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		a.ProjectID, a.Assumption, a.Context, a.ImpactIfWrong, a.Status, a.RiskLevel,
		nullableStringPtr(a.ValidationMethod), nullableStringPtr(a.ValidationOwner), nullableStringPtr(a.ValidationDeadline),
		nullableStringPtr(a.ExtractedFrom), nullableFloatPtr(a.ExtractionConfidence), a.CreatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r Repo) GetAssumption(ctx context.Context, id int64) (domain.Assumption, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+assumptionCols+` FROM assumptions WHERE id=?`, id)
	return scanAssumption(row.Scan)
}

func (r Repo) ListAssumptions(ctx context.Context, projectID int64) ([]domain.Assumption, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+assumptionCols+` FROM assumptions WHERE project_id=? ORDER BY id`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Assumption
	for rows.Next() {
		a, err := scanAssumption(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

func (r Repo) SetAssumptionValidation(ctx context.Context, id int64, status, result, validatedAt string) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE assumptions SET status=?, validation_result=?, validated_at=? WHERE id=?`,
		status, nullable(result), nullable(validatedAt), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

const estimateCols = `id,story_id,estimate_p10,estimate_p50,estimate_p90,
rice_reach,rice_impact,rice_confidence,rice_effort,rice_score,
wsjf_business_value,wsjf_time_criticality,wsjf_risk_reduction,wsjf_job_size,wsjf_score,
ai_estimate_p10,ai_estimate_p50,ai_estimate_p90,ai_confidence,ai_reasoning,created_at,updated_at`

func scanEstimate(scan func(...any) error) (domain.StoryEstimate, error) {
	var (
		e                                  domain.StoryEstimate
		p10, p50, p90                      sql.NullFloat64
		reach, impact, conf, effort, rice  sql.NullFloat64
		bv, tc, rr, size, wsjf             sql.NullFloat64
		aiP10, aiP50, aiP90, aiConfidence  sql.NullFloat64
		aiReasoning                        sql.NullString
	)
	err := scan(&e.ID, &e.StoryID, &p10, &p50, &p90,
		&reach, &impact, &conf, &effort, &rice,
		&bv, &tc, &rr, &size, &wsjf,
		&aiP10, &aiP50, &aiP90, &aiConfidence, &aiReasoning, &e.CreatedAt, &e.UpdatedAt)
	if err == sql.ErrNoRows {
		return e, ErrNotFound
	}
	e.EstimateP10 = floatPtr(p10)
	e.EstimateP50 = floatPtr(p50)
	e.EstimateP90 = floatPtr(p90)
	e.RICEReach = floatPtr(reach)
	e.RICEImpact = floatPtr(impact)
	e.RICEConfidence = floatPtr(conf)
	e.RICEEffort = floatPtr(effort)
	e.RICEScore = floatPtr(rice)
	e.WSJFBusinessValue = floatPtr(bv)
	e.WSJFTimeCriticality = floatPtr(tc)
	e.WSJFRiskReduction = floatPtr(rr)
	e.WSJFJobSize = floatPtr(size)
	e.WSJFScore = floatPtr(wsjf)
	e.AIEstimateP10 = floatPtr(aiP10)
	e.AIEstimateP50 = floatPtr(aiP50)
	e.AIEstimateP90 = floatPtr(aiP90)
	e.AIConfidence = floatPtr(aiConfidence)
	e.AIReasoning = strPtr(aiReasoning)
	return e, err
}

// EnsureEstimateTx returns the story's estimate row, creating an empty
// one if none exists yet.
func (r Repo) EnsureEstimateTx(ctx context.Context, tx *sql.Tx, storyID int64, now string) (domain.StoryEstimate, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+estimateCols+` FROM story_estimates WHERE story_id=?`, storyID)
	e, err := scanEstimate(row.Scan)
	if err == nil {
		return e, nil
	}
	if err != ErrNotFound {
		return e, err
	}
	res, err := tx.ExecContext(ctx, `INSERT INTO story_estimates(story_id,created_at,updated_at) VALUES (?,?,?)`, storyID, now, now)
	if err != nil {
		return e, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return e, err
	}
	e = domain.StoryEstimate{ID: id, StoryID: storyID, CreatedAt: now, UpdatedAt: now}
	return e, nil
}

func (r Repo) GetEstimate(ctx context.Context, storyID int64) (domain.StoryEstimate, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+estimateCols+` FROM story_estimates WHERE story_id=?`, storyID)
	return scanEstimate(row.Scan)
}

// ListEstimatesByProject returns estimate rows for the project's stories
// keyed by story id.
func (r Repo) ListEstimatesByProject(ctx context.Context, projectID int64) (map[int64]domain.StoryEstimate, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT se.id,se.story_id,se.estimate_p10,se.estimate_p50,se.estimate_p90,
		se.rice_reach,se.rice_impact,se.rice_confidence,se.rice_effort,se.rice_score,
		se.wsjf_business_value,se.wsjf_time_criticality,se.wsjf_risk_reduction,se.wsjf_job_size,se.wsjf_score,
		se.ai_estimate_p10,se.ai_estimate_p50,se.ai_estimate_p90,se.ai_confidence,se.ai_reasoning,se.created_at,se.updated_at
		FROM story_estimates se
		JOIN stories s ON s.id=se.story_id
		JOIN epics e ON e.id=s.epic_id
		WHERE e.project_id=?`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := make(map[int64]domain.StoryEstimate)
	for rows.Next() {
		e, err := scanEstimate(rows.Scan)
		if err != nil {
			return nil, err
		}
		res[e.StoryID] = e
	}
	return res, rows.Err()
}

// EstimateUpdate carries optional estimate-row mutations.
type EstimateUpdate struct {
	EstimateP10 *float64
	EstimateP50 *float64
	EstimateP90 *float64

	RICEReach      *float64
	RICEImpact     *float64
	RICEConfidence *float64
	RICEEffort     *float64
	RICEScore      *float64

	WSJFBusinessValue   *float64
	WSJFTimeCriticality *float64
	WSJFRiskReduction   *float64
	WSJFJobSize         *float64
	WSJFScore           *float64

	AIEstimateP10 *float64
	AIEstimateP50 *float64
	AIEstimateP90 *float64
	AIConfidence  *float64
	AIReasoning   *string
}

func (r Repo) UpdateEstimateTx(ctx context.Context, tx *sql.Tx, storyID int64, upd EstimateUpdate, updatedAt string) error {
	var (
		fields []string
		args   []any
	)
	set := func(col string, v any) {
		fields = append(fields, col+"=?")
		args = append(args, v)
	}
	if upd.EstimateP10 != nil {
		set("estimate_p10", *upd.EstimateP10)
	}
	if upd.EstimateP50 != nil {
		set("estimate_p50", *upd.EstimateP50)
	}
	if upd.EstimateP90 != nil {
		set("estimate_p90", *upd.EstimateP90)
	}
	if upd.RICEReach != nil {
		set("rice_reach", *upd.RICEReach)
	}
	if upd.RICEImpact != nil {
		set("rice_impact", *upd.RICEImpact)
	}
	if upd.RICEConfidence != nil {
		set("rice_confidence", *upd.RICEConfidence)
	}
	if upd.RICEEffort != nil {
		set("rice_effort", *upd.RICEEffort)
	}
	if upd.RICEScore != nil {
		set("rice_score", *upd.RICEScore)
	}
	if upd.WSJFBusinessValue != nil {
		set("wsjf_business_value", *upd.WSJFBusinessValue)
	}
	if upd.WSJFTimeCriticality != nil {
		set("wsjf_time_criticality", *upd.WSJFTimeCriticality)
	}
	if upd.WSJFRiskReduction != nil {
		set("wsjf_risk_reduction", *upd.WSJFRiskReduction)
	}
	if upd.WSJFJobSize != nil {
		set("wsjf_job_size", *upd.WSJFJobSize)
	}
	if upd.WSJFScore != nil {
		set("wsjf_score", *upd.WSJFScore)
	}
	if upd.AIEstimateP10 != nil {
		set("ai_estimate_p10", *upd.AIEstimateP10)
	}
	if upd.AIEstimateP50 != nil {
		set("ai_estimate_p50", *upd.AIEstimateP50)
	}
	if upd.AIEstimateP90 != nil {
		set("ai_estimate_p90", *upd.AIEstimateP90)
	}
	if upd.AIConfidence != nil {
		set("ai_confidence", *upd.AIConfidence)
	}
	if upd.AIReasoning != nil {
		set("ai_reasoning", nullable(*upd.AIReasoning))
	}
	if len(fields) == 0 {
		return nil
	}
	set("updated_at", updatedAt)
	args = append(args, storyID)
	res, err := tx.ExecContext(ctx, fmt.Sprintf(`UPDATE story_estimates SET %s WHERE story_id=?`, strings.Join(fields, ",")), args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) ListEvents(ctx context.Context, projectID int64, limit int) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id,ts,type,COALESCE(project_id,0),entity_kind,entity_id,actor_id,payload_json FROM events`
	args := []any{}
	if projectID != 0 {
		query += ` WHERE project_id=?`
		args = append(args, projectID)
	}
	query += ` ORDER BY ts DESC, id DESC LIMIT ?`
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var ev domain.Event
		if err := rows.Scan(&ev.ID, &ev.TS, &ev.Type, &ev.ProjectID, &ev.EntityKind, &ev.EntityID, &ev.ActorID, &ev.Payload); err != nil {
			return nil, err
		}
		res = append(res, ev)
	}
	return res, rows.Err()
}
