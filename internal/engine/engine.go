package engine

import (
	"context"
	"database/sql"
	"strconv"
	"time"

	"planline/internal/ai"
	"planline/internal/config"
	"planline/internal/domain"
	"planline/internal/events"
	"planline/internal/repo"
)

type Engine struct {
	DB       *sql.DB
	Repo     repo.Repo
	Events   events.Writer
	Config   *config.Config
	Provider ai.Provider
	Now      func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:       db,
		Repo:     repo.Repo{DB: db},
		Events:   events.Writer{DB: db},
		Config:   cfg,
		Provider: ai.StubProvider{},
		Now:      time.Now,
	}
}

// ResolveProvider picks the LLM provider named by the config. The stub
// is the default so offline workspaces keep working.
func ResolveProvider(cfg *config.Config) (ai.Provider, error) {
	if cfg != nil && cfg.LLM.Provider == "anthropic" {
		return ai.NewAnthropicProvider(cfg.LLM.Model, cfg.LLM.APIKeyEnv)
	}
	return ai.StubProvider{}, nil
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) timestamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

func (e Engine) date() string {
	return e.now().UTC().Format("2006-01-02")
}

func (e Engine) provider() ai.Provider {
	if e.Provider != nil {
		return e.Provider
	}
	return ai.StubProvider{}
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}

// CreateProject creates a project in draft status.
func (e Engine) CreateProject(ctx context.Context, name, description, prd, actorID string) (domain.Project, error) {
	if name == "" {
		return domain.Project{}, &ValidationError{Msg: "project name is required"}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()

	now := e.timestamp()
	p := domain.Project{
		Name:        name,
		Description: description,
		PRDContent:  prd,
		Status:      "draft",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	res, err := tx.ExecContext(ctx, `INSERT INTO projects(name,description,prd_content,status,created_at,updated_at) VALUES (?,?,?,?,?,?)`,
		p.Name, p.Description, p.PRDContent, p.Status, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return domain.Project{}, err
	}
	p.ID, err = res.LastInsertId()
	if err != nil {
		return domain.Project{}, err
	}
	if err := e.Events.Append(ctx, tx, "project.created", p.ID, "project", itoa(p.ID), actorID, events.EventPayload{"name": name}); err != nil {
		return domain.Project{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

// UpdateProject applies the optional fields and bumps updated_at.
func (e Engine) UpdateProject(ctx context.Context, id int64, upd repo.ProjectUpdate, actorID string) (domain.Project, error) {
	if upd.Status != nil {
		switch *upd.Status {
		case "draft", "analyzing", "ready", "planned", "error":
		default:
			return domain.Project{}, &ValidationError{Msg: "unknown project status " + *upd.Status}
		}
	}
	if err := e.Repo.UpdateProject(ctx, id, upd, e.timestamp()); err != nil {
		return domain.Project{}, err
	}
	return e.Repo.GetProject(ctx, id)
}

func (e Engine) DeleteProject(ctx context.Context, id int64, actorID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	res, err := tx.ExecContext(ctx, `DELETE FROM projects WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return repo.ErrNotFound
	}
	if err := e.Events.Append(ctx, tx, "project.deleted", id, "project", itoa(id), actorID, nil); err != nil {
		return err
	}
	return tx.Commit()
}
