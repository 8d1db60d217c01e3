package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"planline/internal/domain"
	"planline/internal/engine"
	"planline/internal/repo"
)

func registerProjects(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-project",
		Method:        http.MethodPost,
		Path:          "/projects",
		Summary:       "Create project",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		ActorID string               `header:"X-Actor-Id"`
		Body    CreateProjectRequest `json:"body"`
	}) (*struct {
		Body domain.Project `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		desc := ""
		if input.Body.Description != nil {
			desc = *input.Body.Description
		}
		prd := ""
		if input.Body.PRDContent != nil {
			prd = *input.Body.PRDContent
		}
		p, err := e.CreateProject(ctx, input.Body.Name, desc, prd, actorOrDefault(input.ActorID))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Project `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-projects",
		Method:      http.MethodGet,
		Path:        "/projects",
		Summary:     "List projects",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Project `json:"body"`
	}, error) {
		items, err := e.Repo.ListProjects(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Project `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-project",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}",
		Summary:     "Get project",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID int64 `path:"project_id"`
	}) (*struct {
		Body domain.Project `json:"body"`
	}, error) {
		p, err := e.Repo.GetProject(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Project `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-project",
		Method:      http.MethodPatch,
		Path:        "/projects/{project_id}",
		Summary:     "Update project",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID int64                `path:"project_id"`
		ActorID   string               `header:"X-Actor-Id"`
		Body      UpdateProjectRequest `json:"body"`
	}) (*struct {
		Body domain.Project `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		upd := repo.ProjectUpdate{
			Name:        input.Body.Name,
			Description: input.Body.Description,
			PRDContent:  input.Body.PRDContent,
			Status:      input.Body.Status,
		}
		p, err := e.UpdateProject(ctx, input.ProjectID, upd, actorOrDefault(input.ActorID))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Project `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-project",
		Method:      http.MethodDelete,
		Path:        "/projects/{project_id}",
		Summary:     "Delete project",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID int64  `path:"project_id"`
		ActorID   string `header:"X-Actor-Id"`
	}) (*struct{}, error) {
		if err := e.DeleteProject(ctx, input.ProjectID, actorOrDefault(input.ActorID)); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "analyze-project",
		Method:      http.MethodPost,
		Path:        "/projects/{project_id}/analyze",
		Summary:     "Analyze PRD into a backlog",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusBadGateway,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID int64  `path:"project_id"`
		ActorID   string `header:"X-Actor-Id"`
	}) (*struct {
		Body domain.Project `json:"body"`
	}, error) {
		p, err := e.AnalyzeProject(ctx, input.ProjectID, actorOrDefault(input.ActorID))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Project `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "extract-planning",
		Method:      http.MethodPost,
		Path:        "/projects/{project_id}/planning/extract",
		Summary:     "Extract decisions and assumptions from the PRD",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusBadGateway,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID int64  `path:"project_id"`
		ActorID   string `header:"X-Actor-Id"`
	}) (*struct {
		Body PlanningExtractResponse `json:"body"`
	}, error) {
		decisions, assumptions, err := e.ExtractPlanning(ctx, input.ProjectID, actorOrDefault(input.ActorID))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body PlanningExtractResponse `json:"body"`
		}{Body: PlanningExtractResponse{
			Decisions:   mapDecisions(decisions),
			Assumptions: assumptions,
		}}, nil
	})
}

func registerBacklog(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-epics",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/epics",
		Summary:     "List epics",
	}, func(ctx context.Context, input *struct {
		ProjectID int64 `path:"project_id"`
	}) (*struct {
		Body []domain.Epic `json:"body"`
	}, error) {
		items, err := e.Repo.ListEpics(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Epic `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-stories",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/stories",
		Summary:     "List stories",
	}, func(ctx context.Context, input *struct {
		ProjectID int64 `path:"project_id"`
		EpicID    int64 `query:"epic_id"`
	}) (*struct {
		Body []domain.Story `json:"body"`
	}, error) {
		var (
			items []domain.Story
			err   error
		)
		if input.EpicID != 0 {
			items, err = e.Repo.ListStoriesByEpic(ctx, input.EpicID)
		} else {
			items, err = e.Repo.ListStoriesByProject(ctx, input.ProjectID)
		}
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Story `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-story-tasks",
		Method:      http.MethodGet,
		Path:        "/stories/{story_id}/tasks",
		Summary:     "List a story's work tasks",
	}, func(ctx context.Context, input *struct {
		StoryID int64 `path:"story_id"`
	}) (*struct {
		Body []domain.WorkTask `json:"body"`
	}, error) {
		items, err := e.Repo.ListWorkTasksByStory(ctx, input.StoryID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.WorkTask `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "prioritized-backlog",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/backlog",
		Summary:     "Stories ordered by priority score",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		ProjectID int64  `path:"project_id"`
		Model     string `query:"model" enum:"rice,wsjf"`
	}) (*struct {
		Body []engine.BacklogItem `json:"body"`
	}, error) {
		items, err := e.PrioritizedBacklog(ctx, input.ProjectID, input.Model)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []engine.BacklogItem `json:"body"`
		}{Body: items}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/events",
		Summary:     "List project events",
	}, func(ctx context.Context, input *struct {
		ProjectID int64 `path:"project_id"`
		Limit     int   `query:"limit" default:"100"`
	}) (*struct {
		Body []EventResponse `json:"body"`
	}, error) {
		items, err := e.Repo.ListEvents(ctx, input.ProjectID, input.Limit)
		if err != nil {
			return nil, handleError(err)
		}
		out := make([]EventResponse, 0, len(items))
		for _, ev := range items {
			out = append(out, eventResponse(ev))
		}
		return &struct {
			Body []EventResponse `json:"body"`
		}{Body: out}, nil
	})
}
