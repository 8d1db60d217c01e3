package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"planline/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

// nullableID treats zero as NULL so callers can clear a reference.
func nullableID(v int64) any {
	if v == 0 {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableIntPtr(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableInt64Ptr(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableFloatPtr(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func strPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}

func int64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

const projectCols = `id,name,COALESCE(description,'') AS description,COALESCE(prd_content,'') AS prd_content,status,created_at,updated_at`

func scanProject(row *sql.Row) (domain.Project, error) {
	var p domain.Project
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.PRDContent, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	return p, err
}

func (r Repo) InsertProject(ctx context.Context, p domain.Project) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `INSERT INTO projects(name,description,prd_content,status,created_at,updated_at) VALUES (?,?,?,?,?,?)`,
		p.Name, p.Description, p.PRDContent, p.Status, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r Repo) GetProject(ctx context.Context, id int64) (domain.Project, error) {
	return scanProject(r.DB.QueryRowContext(ctx, `SELECT `+projectCols+` FROM projects WHERE id=?`, id))
}

// SingleProject resolves the project when the workspace holds exactly one.
func (r Repo) SingleProject(ctx context.Context) (domain.Project, error) {
	projects, err := r.ListProjects(ctx)
	if err != nil {
		return domain.Project{}, err
	}
	if len(projects) == 0 {
		return domain.Project{}, ErrNotFound
	}
	if len(projects) > 1 {
		return domain.Project{}, fmt.Errorf("multiple projects exist; specify --project")
	}
	return projects[0], nil
}

func (r Repo) ListProjects(ctx context.Context) ([]domain.Project, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+projectCols+` FROM projects ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Project
	for rows.Next() {
		var p domain.Project
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.PRDContent, &p.Status, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

// ProjectUpdate carries the optional fields of a project update; nil
// fields are left untouched.
type ProjectUpdate struct {
	Name        *string
	Description *string
	PRDContent  *string
	Status      *string
}

func (r Repo) UpdateProject(ctx context.Context, id int64, upd ProjectUpdate, updatedAt string) error {
	var (
		fields []string
		args   []any
	)
	if upd.Name != nil {
		fields = append(fields, "name=?")
		args = append(args, *upd.Name)
	}
	if upd.Description != nil {
		fields = append(fields, "description=?")
		args = append(args, *upd.Description)
	}
	if upd.PRDContent != nil {
		fields = append(fields, "prd_content=?")
		args = append(args, *upd.PRDContent)
	}
	if upd.Status != nil {
		fields = append(fields, "status=?")
		args = append(args, *upd.Status)
	}
	if len(fields) == 0 {
		return nil
	}
	fields = append(fields, "updated_at=?")
	args = append(args, updatedAt, id)
	res, err := r.DB.ExecContext(ctx, fmt.Sprintf(`UPDATE projects SET %s WHERE id=?`, strings.Join(fields, ",")), args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) SetProjectStatusTx(ctx context.Context, tx *sql.Tx, id int64, status, updatedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE projects SET status=?, updated_at=? WHERE id=?`, status, updatedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteProject(ctx context.Context, id int64) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM projects WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

const epicCols = `id,project_id,title,COALESCE(description,'') AS description,priority,position,created_at`

func (r Repo) InsertEpicTx(ctx context.Context, tx *sql.Tx, e domain.Epic) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO epics(project_id,title,description,priority,position,created_at) VALUES (?,?,?,?,?,?)`,
		e.ProjectID, e.Title, e.Description, e.Priority, e.Position, e.CreatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r Repo) GetEpic(ctx context.Context, id int64) (domain.Epic, error) {
	var e domain.Epic
	err := r.DB.QueryRowContext(ctx, `SELECT `+epicCols+` FROM epics WHERE id=?`, id).
		Scan(&e.ID, &e.ProjectID, &e.Title, &e.Description, &e.Priority, &e.Position, &e.CreatedAt)
	if err == sql.ErrNoRows {
		return e, ErrNotFound
	}
	return e, err
}

func (r Repo) ListEpics(ctx context.Context, projectID int64) ([]domain.Epic, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+epicCols+` FROM epics WHERE project_id=? ORDER BY position, id`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Epic
	for rows.Next() {
		var e domain.Epic
		if err := rows.Scan(&e.ID, &e.ProjectID, &e.Title, &e.Description, &e.Priority, &e.Position, &e.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

const storyCols = `id,epic_id,title,COALESCE(description,'') AS description,COALESCE(acceptance_criteria,'') AS acceptance_criteria,story_points,estimated_hours,priority,status,position,created_at`

func scanStory(scan func(...any) error) (domain.Story, error) {
	var (
		s      domain.Story
		points sql.NullInt64
		hours  sql.NullInt64
	)
	err := scan(&s.ID, &s.EpicID, &s.Title, &s.Description, &s.AcceptanceCriteria, &points, &hours, &s.Priority, &s.Status, &s.Position, &s.CreatedAt)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	s.StoryPoints = intPtr(points)
	s.EstimatedHours = intPtr(hours)
	return s, err
}

func (r Repo) InsertStoryTx(ctx context.Context, tx *sql.Tx, s domain.Story) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO stories(epic_id,title,description,acceptance_criteria,story_points,estimated_hours,priority,status,position,created_at) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		s.EpicID, s.Title, s.Description, s.AcceptanceCriteria, nullableIntPtr(s.StoryPoints), nullableIntPtr(s.EstimatedHours), s.Priority, s.Status, s.Position, s.CreatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r Repo) GetStory(ctx context.Context, id int64) (domain.Story, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+storyCols+` FROM stories WHERE id=?`, id)
	return scanStory(row.Scan)
}

func (r Repo) ListStoriesByEpic(ctx context.Context, epicID int64) ([]domain.Story, error) {
	return r.queryStories(ctx, `SELECT `+storyCols+` FROM stories WHERE epic_id=? ORDER BY position, id`, epicID)
}

// ListStoriesByProject returns every story under the project's epics.
func (r Repo) ListStoriesByProject(ctx context.Context, projectID int64) ([]domain.Story, error) {
	return r.queryStories(ctx, `SELECT s.id,s.epic_id,s.title,COALESCE(s.description,''),COALESCE(s.acceptance_criteria,''),s.story_points,s.estimated_hours,s.priority,s.status,s.position,s.created_at
		FROM stories s JOIN epics e ON e.id=s.epic_id WHERE e.project_id=? ORDER BY s.id`, projectID)
}

func (r Repo) queryStories(ctx context.Context, query string, args ...any) ([]domain.Story, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Story
	for rows.Next() {
		s, err := scanStory(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

func (r Repo) InsertWorkTaskTx(ctx context.Context, tx *sql.Tx, t domain.WorkTask) (int64, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO work_tasks(story_id,title,description,estimated_hours,status,position) VALUES (?,?,?,?,?,?)`,
		t.StoryID, t.Title, t.Description, nullableIntPtr(t.EstimatedHours), t.Status, t.Position)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r Repo) GetWorkTask(ctx context.Context, id int64) (domain.WorkTask, error) {
	var (
		t     domain.WorkTask
		hours sql.NullInt64
	)
	err := r.DB.QueryRowContext(ctx, `SELECT id,story_id,title,COALESCE(description,''),estimated_hours,status,position FROM work_tasks WHERE id=?`, id).
		Scan(&t.ID, &t.StoryID, &t.Title, &t.Description, &hours, &t.Status, &t.Position)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	t.EstimatedHours = intPtr(hours)
	return t, err
}

func (r Repo) ListWorkTasksByStory(ctx context.Context, storyID int64) ([]domain.WorkTask, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,story_id,title,COALESCE(description,''),estimated_hours,status,position FROM work_tasks WHERE story_id=? ORDER BY position, id`, storyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.WorkTask
	for rows.Next() {
		var (
			t     domain.WorkTask
			hours sql.NullInt64
		)
		if err := rows.Scan(&t.ID, &t.StoryID, &t.Title, &t.Description, &hours, &t.Status, &t.Position); err != nil {
			return nil, err
		}
		t.EstimatedHours = intPtr(hours)
		res = append(res, t)
	}
	return res, rows.Err()
}
